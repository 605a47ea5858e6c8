package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rl1809/prepfire/internal/core/domain"
)

func NewTenantCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants and their POS settings",
	}
	cmd.AddCommand(newTenantPutCommand(rootOpts))
	cmd.AddCommand(newTenantSetCommand(rootOpts))
	return cmd
}

func newTenantPutCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		t        domain.Tenant
		inactive bool
	)

	cmd := &cobra.Command{
		Use:   "put",
		Short: "Create or update a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := loadApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()

			t.Active = !inactive
			if err := app.Store.UpsertTenant(ctx, t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s saved (active=%t)\n", t.ID, t.Active)
			return nil
		},
	}
	cmd.Flags().StringVar(&t.ID, "id", "", "tenant id (required)")
	cmd.Flags().StringVar(&t.Name, "name", "", "display name")
	cmd.Flags().StringVar(&t.NotifyEmail, "email", "", "daily alert recipient")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "exclude from sweeps and alerts")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newTenantSetCommand(rootOpts *RootOptions) *cobra.Command {
	var tenant, key, value string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set one tenant setting (pos_endpoint, pos_api_key, pos_timeout, pos_enabled)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := loadApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.PutTenantSetting(ctx, tenant, key, value); err != nil {
				return err
			}
			if _, err := app.Store.GetPOSConfig(ctx, tenant); err != nil {
				return WrapExitError(ExitCommandError, "setting saved but POS config is invalid", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s.%s updated\n", tenant, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&key, "key", "", "setting key (required)")
	cmd.Flags().StringVar(&value, "value", "", "setting value")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
