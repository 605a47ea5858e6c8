package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rl1809/prepfire/internal/adapter/handler"
	"github.com/rl1809/prepfire/internal/logger"
)

const healthCheckInterval = 15 * time.Second

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health, sweeper and daily alert trigger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := loadApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.Migrate(ctx); err != nil {
				return WrapExitError(ExitCommandError, "migrate", err)
			}
			return serve(ctx, app)
		},
	}
}

func serve(ctx context.Context, app *App) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := app.Config
	log := logger.Action(app.Log, "serve")

	h := handler.NewHTTPHandler(app.Services, app.Store.DB(), app.Metrics.Handler(), cfg.Location(), log)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer, health := handler.NewGRPCServer(app.Store.DB(), log)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "listen grpc", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("gRPC server listening", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		log.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Go(func() { app.Services.Sweeper.Run(ctx, cfg.Scheduler.SweepInterval) })
	wg.Go(func() {
		app.Services.Alerts.RunDaily(ctx, cfg.Scheduler.AlertHour, cfg.Scheduler.AlertCheckInterval)
	})
	wg.Go(func() { health.Run(ctx, healthCheckInterval) })

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.Error("server failed, shutting down", "error", runErr)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	wg.Wait()
	log.Info("background loops stopped")
	return runErr
}
