package handler

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// SchedulerServiceName is the service name reported by the gRPC health server
// alongside the overall "" status.
const SchedulerServiceName = "prepfire.v1.Scheduler"

// HealthReporter keeps the gRPC health status in step with the database.
type HealthReporter struct {
	health *health.Server
	db     Pinger
	log    *slog.Logger
}

// NewGRPCServer builds a gRPC server exposing the standard health service.
func NewGRPCServer(db Pinger, log *slog.Logger) (*grpc.Server, *HealthReporter) {
	srv := grpc.NewServer()
	reporter := &HealthReporter{
		health: health.NewServer(),
		db:     db,
		log:    log.With("component", "grpc_health"),
	}
	healthpb.RegisterHealthServer(srv, reporter.health)
	reflection.Register(srv)
	return srv, reporter
}

// Check pings the database once and publishes the result.
func (r *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if r.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := r.db.PingContext(pingCtx); err != nil {
			r.log.Warn("database unreachable", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	r.health.SetServingStatus("", status)
	r.health.SetServingStatus(SchedulerServiceName, status)
	return status
}

// Run checks every interval until ctx is done, then marks the server as
// shutting down.
func (r *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	r.Check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.health.Shutdown()
			return
		case <-ticker.C:
			r.Check(ctx)
		}
	}
}
