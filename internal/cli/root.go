package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/rl1809/prepfire/internal/config"
	"github.com/rl1809/prepfire/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Verbose    bool

	// LogWriter receives the JSON log stream; stderr when nil.
	LogWriter io.Writer
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepfire",
		Short: "Advance-order fire scheduling and POS delivery",
		Long: `prepfire holds advance orders until 90 minutes before the customer's time,
releases them to the kitchen POS, retries failed deliveries and reports
kitchen overload.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", os.Getenv("PREPFIRE_CONFIG"), "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewAlertCommand(opts))
	cmd.AddCommand(NewRetryCommand(opts))
	cmd.AddCommand(NewFailedCommand(opts))
	cmd.AddCommand(NewConflictsCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewTenantCommand(opts))

	return cmd
}

// loadApp reads the configuration and wires the app for one command run.
func loadApp(ctx context.Context, opts *RootOptions) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}

	level := cfg.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	w := opts.LogWriter
	if w == nil {
		w = os.Stderr
	}
	log := logger.New(cfg.Service, level, w)
	slog.SetDefault(log)

	app, err := NewApp(ctx, cfg, log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "start app", err)
	}
	return app, nil
}
