package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rl1809/prepfire/internal/port"
)

const sweepLockPrefix = "sweep:"

// Sweeper drives Scheduler.ProcessReadyOrders for every active tenant. Tenants
// run concurrently up to a limit, and each tenant's sweep is single-flight
// across processes through a cache lease.
type Sweeper struct {
	scheduler   *Scheduler
	tenants     port.TenantRepository
	cache       port.CacheRepository
	concurrency int
	lockTTL     time.Duration
	options
}

func NewSweeper(
	scheduler *Scheduler,
	tenants port.TenantRepository,
	cache port.CacheRepository,
	concurrency int,
	lockTTL time.Duration,
	opts ...Option,
) *Sweeper {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Sweeper{
		scheduler:   scheduler,
		tenants:     tenants,
		cache:       cache,
		concurrency: concurrency,
		lockTTL:     lockTTL,
		options:     buildOptions("sweeper", opts),
	}
}

// SweepTenant runs one sweep for tenantID. It returns false without sweeping
// when another process holds the tenant's lease.
func (s *Sweeper) SweepTenant(ctx context.Context, tenantID string) (SweepReport, bool, error) {
	key := sweepLockPrefix + tenantID

	token, ok, err := s.cache.AcquireLock(ctx, key, s.lockTTL)
	if err != nil {
		return SweepReport{TenantID: tenantID}, false, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		s.log.Debug("sweep already running elsewhere", "tenant_id", tenantID)
		return SweepReport{TenantID: tenantID}, false, nil
	}
	defer func() {
		// the sweep ctx may already be cancelled; the lease must still go
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.cache.ReleaseLock(releaseCtx, key, token); err != nil {
			s.log.Warn("failed to release sweep lock", "tenant_id", tenantID, "error", err)
		}
	}()

	report, err := s.scheduler.ProcessReadyOrders(ctx, tenantID)
	return report, true, err
}

// SweepAll sweeps every active tenant once. A failing tenant is logged and does
// not affect the others.
func (s *Sweeper) SweepAll(ctx context.Context) ([]SweepReport, error) {
	tenants, err := s.tenants.ListActiveTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	var (
		mu      sync.Mutex
		reports []SweepReport
	)

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, tenant := range tenants {
		g.Go(func() error {
			report, swept, err := s.SweepTenant(ctx, tenant.ID)
			if err != nil {
				s.log.Error("tenant sweep failed", "tenant_id", tenant.ID, "error", err)
			}
			if swept {
				mu.Lock()
				reports = append(reports, report)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return reports, nil
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	s.log.Info("sweeper started", "interval", interval, "concurrency", s.concurrency)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepAll(ctx); err != nil {
				s.log.Error("sweep tick failed", "error", err)
			}
		}
	}
}
