package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/prepfire/internal/core/domain"
	"github.com/rl1809/prepfire/internal/port"
)

var base = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

// runRepositoryContract exercises every persistence port against one backend.
// tenant ids are suffixed so shared databases can be reused between runs.
func runRepositoryContract(t *testing.T, a *SQLAdapter, suffix string) {
	tenant := "tenant-" + suffix
	id := func(s string) string { return s + "-" + suffix }

	t.Run("schedule lifecycle", func(t *testing.T) {
		ctx := context.Background()
		s := domain.FireSchedule{
			OrderID:             id("sched-1"),
			TenantID:            tenant,
			CustomerDesiredTime: base.Add(2 * time.Hour),
			FireTime:            base.Add(30 * time.Minute),
			Status:              domain.ScheduleStatusHold,
			CreatedAt:           base,
			UpdatedAt:           base,
		}
		require.NoError(t, a.CreateSchedule(ctx, s))
		assert.ErrorIs(t, a.CreateSchedule(ctx, s), port.ErrDuplicate)

		got, err := a.GetSchedule(ctx, s.OrderID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, s.FireTime, got.FireTime)
		assert.Equal(t, s.CustomerDesiredTime, got.CustomerDesiredTime)
		assert.Equal(t, domain.ScheduleStatusHold, got.Status)
		assert.Nil(t, got.LastRetryAt)
		assert.Equal(t, 0, got.Version)

		due, err := a.ListDueSchedules(ctx, tenant, base.Add(29*time.Minute))
		require.NoError(t, err)
		assert.Empty(t, due)

		due, err = a.ListDueSchedules(ctx, tenant, base.Add(30*time.Minute))
		require.NoError(t, err)
		require.Len(t, due, 1)

		claimed := due[0]
		claimed.Status = domain.ScheduleStatusFired
		claimed.UpdatedAt = base.Add(31 * time.Minute)
		claimed, err = a.UpdateSchedule(ctx, claimed)
		require.NoError(t, err)
		assert.Equal(t, 1, claimed.Version)

		// the stale copy loses
		stale := due[0]
		stale.Status = domain.ScheduleStatusFired
		_, err = a.UpdateSchedule(ctx, stale)
		assert.ErrorIs(t, err, port.ErrOptimisticLock)

		retryAt := base.Add(34 * time.Minute)
		claimed.Status = domain.ScheduleStatusFailed
		claimed.RetryCount = 2
		claimed.LastRetryAt = &retryAt
		claimed.LastError = "pos timeout"
		claimed.FailureKind = domain.FailureTransport
		_, err = a.UpdateSchedule(ctx, claimed)
		require.NoError(t, err)

		failed, err := a.ListSchedules(ctx, tenant, domain.ScheduleStatusFailed)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, 2, failed[0].RetryCount)
		require.NotNil(t, failed[0].LastRetryAt)
		assert.Equal(t, retryAt, *failed[0].LastRetryAt)
		assert.Equal(t, "pos timeout", failed[0].LastError)
		assert.Equal(t, domain.FailureTransport, failed[0].FailureKind)
		assert.Equal(t, 2, failed[0].Version)

		require.NoError(t, a.DeleteSchedule(ctx, s.OrderID))
		got, err = a.GetSchedule(ctx, s.OrderID)
		require.NoError(t, err)
		assert.Nil(t, got)

		_, err = a.UpdateSchedule(ctx, failed[0])
		assert.ErrorIs(t, err, port.ErrOptimisticLock)
	})

	t.Run("schedules by fire time", func(t *testing.T) {
		ctx := context.Background()
		day := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
		for i, fire := range []time.Time{day.Add(-time.Minute), day, day.Add(10 * time.Hour), day.Add(24 * time.Hour)} {
			require.NoError(t, a.CreateSchedule(ctx, domain.FireSchedule{
				OrderID:             id("window-" + string(rune('a'+i))),
				TenantID:            tenant,
				CustomerDesiredTime: fire.Add(domain.PreparationLead),
				FireTime:            fire,
				Status:              domain.ScheduleStatusHold,
				CreatedAt:           base,
				UpdatedAt:           base,
			}))
		}

		got, err := a.ListSchedulesByFireTime(ctx, tenant, day, day.Add(24*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, day, got[0].FireTime)
		assert.Equal(t, day.Add(10*time.Hour), got[1].FireTime)

		other, err := a.ListSchedulesByFireTime(ctx, "nobody-"+suffix, day, day.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("concurrent claims", func(t *testing.T) {
		ctx := context.Background()
		s := domain.FireSchedule{
			OrderID:             id("race-1"),
			TenantID:            tenant,
			CustomerDesiredTime: base.Add(3 * time.Hour),
			FireTime:            base.Add(90 * time.Minute),
			Status:              domain.ScheduleStatusHold,
			CreatedAt:           base,
			UpdatedAt:           base,
		}
		require.NoError(t, a.CreateSchedule(ctx, s))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				claim := s
				claim.Status = domain.ScheduleStatusFired
				if _, err := a.UpdateSchedule(ctx, claim); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("orders", func(t *testing.T) {
		ctx := context.Background()
		scheduled := time.Date(2026, 3, 21, 12, 0, 0, 0, time.UTC)
		o := domain.Order{
			ID:              id("order-1"),
			TenantID:        tenant,
			OrderNumber:     "A-101",
			CustomerName:    "Jane Doe",
			CustomerPhone:   "+15550100",
			CustomerAddress: "1 Main St",
			OrderType:       domain.OrderTypeDelivery,
			Items: []domain.OrderItem{{
				ID: "lasagna", Name: "Lasagna", Quantity: 2, Price: 12.25,
				Addons: []domain.ItemAddon{{Group: "Cheese", Option: "Extra", Price: 1.5}},
			}},
			Subtotal:       24.5,
			DeliveryFee:    3,
			Total:          27.5,
			IsAdvanceOrder: true,
			ScheduledTime:  &scheduled,
			Status:         domain.OrderStatusConfirmed,
		}
		require.NoError(t, a.SaveOrder(ctx, o))

		got, err := a.GetOrder(ctx, tenant, o.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, o.Items, got.Items)
		assert.Equal(t, scheduled, *got.ScheduledTime)
		assert.Equal(t, 27.5, got.Total)
		assert.False(t, got.Printed)

		missing, err := a.GetOrder(ctx, "other-"+suffix, o.ID)
		require.NoError(t, err)
		assert.Nil(t, missing)

		require.NoError(t, a.MarkPrinted(ctx, tenant, o.ID))
		got, _ = a.GetOrder(ctx, tenant, o.ID)
		assert.True(t, got.Printed)

		// a second insert of the same id never rewrites the stored row
		resubmitted := o
		resubmitted.CustomerName = "Mallory"
		resubmitted.Printed = false
		assert.ErrorIs(t, a.SaveOrder(ctx, resubmitted), port.ErrDuplicate)

		otherTenant := o
		otherTenant.TenantID = "other-" + suffix
		otherTenant.CustomerName = "Someone Else"
		assert.ErrorIs(t, a.SaveOrder(ctx, otherTenant), port.ErrDuplicate)

		got, _ = a.GetOrder(ctx, tenant, o.ID)
		assert.Equal(t, "Jane Doe", got.CustomerName)
		assert.True(t, got.Printed)

		immediate := o
		immediate.ID = id("order-2")
		immediate.IsAdvanceOrder = false
		require.NoError(t, a.SaveOrder(ctx, immediate))

		cancelled := o
		cancelled.ID = id("order-3")
		require.NoError(t, a.SaveOrder(ctx, cancelled))
		require.NoError(t, a.MarkCancelled(ctx, tenant, cancelled.ID))

		dayStart := time.Date(2026, 3, 21, 0, 0, 0, 0, time.UTC)
		list, err := a.ListAdvanceOrders(ctx, tenant, dayStart, dayStart.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, o.ID, list[0].ID)
	})

	t.Run("daily alert claim", func(t *testing.T) {
		ctx := context.Background()
		rec := domain.DailyAlertRecord{TenantID: tenant, Date: "2026-03-14", OrderCount: 3, SentAt: base}

		ok, err := a.ClaimDailyAlert(ctx, rec)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = a.ClaimDailyAlert(ctx, rec)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := a.GetDailyAlert(ctx, tenant, "2026-03-14")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 3, got.OrderCount)
		assert.Equal(t, base, got.SentAt)

		require.NoError(t, a.ReleaseDailyAlert(ctx, tenant, "2026-03-14"))
		got, err = a.GetDailyAlert(ctx, tenant, "2026-03-14")
		require.NoError(t, err)
		assert.Nil(t, got)

		ok, err = a.ClaimDailyAlert(ctx, rec)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("print job logs", func(t *testing.T) {
		ctx := context.Background()
		orderID := id("logged")
		require.NoError(t, a.AppendPrintJobLog(ctx, domain.PrintJobLog{
			ID: id("log-1"), TenantID: tenant, OrderID: orderID, Kind: domain.AttemptFire,
			Success: false, Message: "timeout", CreatedAt: base,
		}))
		require.NoError(t, a.AppendPrintJobLog(ctx, domain.PrintJobLog{
			ID: id("log-2"), TenantID: tenant, OrderID: orderID, PrintJobID: "job-9", Kind: domain.AttemptRetry,
			Success: true, Message: "queued", CreatedAt: base.Add(3 * time.Minute),
		}))

		logs, err := a.ListPrintJobLogs(ctx, tenant, orderID)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, domain.AttemptFire, logs[0].Kind)
		assert.False(t, logs[0].Success)
		assert.Equal(t, "job-9", logs[1].PrintJobID)
		assert.True(t, logs[1].Success)
	})

	t.Run("tenants and pos config", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, a.UpsertTenant(ctx, domain.Tenant{ID: tenant, Name: "Bella", Active: true}))
		require.NoError(t, a.UpsertTenant(ctx, domain.Tenant{ID: tenant, Name: "Bella Cucina", NotifyEmail: "chef@bella.test", Active: true}))
		require.NoError(t, a.UpsertTenant(ctx, domain.Tenant{ID: "closed-" + suffix, Name: "Closed", Active: false}))

		tenants, err := a.ListActiveTenants(ctx)
		require.NoError(t, err)
		var found *domain.Tenant
		for i := range tenants {
			assert.NotEqual(t, "closed-"+suffix, tenants[i].ID)
			if tenants[i].ID == tenant {
				found = &tenants[i]
			}
		}
		require.NotNil(t, found)
		assert.Equal(t, "Bella Cucina", found.Name)
		assert.Equal(t, "chef@bella.test", found.NotifyEmail)

		cfg, err := a.GetPOSConfig(ctx, tenant)
		require.NoError(t, err)
		assert.Nil(t, cfg)

		require.NoError(t, a.PutTenantSetting(ctx, tenant, SettingPOSEndpoint, "http://pos.local/"))
		require.NoError(t, a.PutTenantSetting(ctx, tenant, SettingPOSAPIKey, "secret"))
		require.NoError(t, a.PutTenantSetting(ctx, tenant, SettingPOSEnabled, "true"))

		cfg, err = a.GetPOSConfig(ctx, tenant)
		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, "http://pos.local", cfg.Endpoint)
		assert.Equal(t, "secret", cfg.APIKey)
		assert.Equal(t, domain.DefaultPOSTimeout, cfg.Timeout)
		assert.True(t, cfg.Configured())

		require.NoError(t, a.PutTenantSetting(ctx, tenant, SettingPOSTimeout, "12"))
		require.NoError(t, a.PutTenantSetting(ctx, tenant, SettingPOSEnabled, "false"))
		cfg, err = a.GetPOSConfig(ctx, tenant)
		require.NoError(t, err)
		assert.Equal(t, 12*time.Second, cfg.Timeout)
		assert.False(t, cfg.Configured())

		require.NoError(t, a.PutTenantSetting(ctx, tenant, SettingPOSTimeout, "soon"))
		_, err = a.GetPOSConfig(ctx, tenant)
		assert.Error(t, err)
	})
}
