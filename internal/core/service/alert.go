package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rl1809/prepfire/internal/core/domain"
	"github.com/rl1809/prepfire/internal/port"
)

type AlertOutcome string

const (
	AlertSent      AlertOutcome = "sent"
	AlertNoOrders  AlertOutcome = "no_orders"
	AlertDuplicate AlertOutcome = "duplicate"
	AlertFailed    AlertOutcome = "failed"
)

type AlertReport struct {
	Date      string
	Sent      int
	NoOrders  int
	Duplicate int
	Failed    int
}

// DailyAlertNotifier sends each active tenant one summary of the day's advance
// orders. The (tenant, date) claim is a unique insert taken before sending and
// released again if the hand-off fails.
type DailyAlertNotifier struct {
	tenants  port.TenantRepository
	orders   port.OrderRepository
	alerts   port.AlertRepository
	notifier port.Notifier
	options
}

func NewDailyAlertNotifier(
	tenants port.TenantRepository,
	orders port.OrderRepository,
	alerts port.AlertRepository,
	notifier port.Notifier,
	opts ...Option,
) *DailyAlertNotifier {
	return &DailyAlertNotifier{
		tenants:  tenants,
		orders:   orders,
		alerts:   alerts,
		notifier: notifier,
		options:  buildOptions("daily_alert", opts),
	}
}

func (n *DailyAlertNotifier) SendDailyAlerts(ctx context.Context, date time.Time) (AlertReport, error) {
	day, _ := dayBounds(date, n.loc)
	report := AlertReport{Date: day.Format(time.DateOnly)}

	tenants, err := n.tenants.ListActiveTenants(ctx)
	if err != nil {
		return report, fmt.Errorf("list tenants: %w", err)
	}

	for _, tenant := range tenants {
		outcome, err := n.SendTenantAlert(ctx, tenant, date)
		if err != nil {
			n.log.Error("daily alert failed", "tenant_id", tenant.ID, "date", report.Date, "error", err)
		}
		switch outcome {
		case AlertSent:
			report.Sent++
		case AlertNoOrders:
			report.NoOrders++
		case AlertDuplicate:
			report.Duplicate++
		default:
			report.Failed++
		}
	}
	return report, nil
}

func (n *DailyAlertNotifier) SendTenantAlert(ctx context.Context, tenant domain.Tenant, date time.Time) (outcome AlertOutcome, err error) {
	defer func() { n.metrics.ObserveDailyAlert(string(outcome)) }()

	from, to := dayBounds(date, n.loc)
	dateKey := from.Format(time.DateOnly)

	orders, err := n.orders.ListAdvanceOrders(ctx, tenant.ID, from.UTC(), to.UTC())
	if err != nil {
		return AlertFailed, fmt.Errorf("list advance orders: %w", err)
	}
	if len(orders) == 0 {
		return AlertNoOrders, nil
	}

	existing, err := n.alerts.GetDailyAlert(ctx, tenant.ID, dateKey)
	if err != nil {
		return AlertFailed, fmt.Errorf("get daily alert: %w", err)
	}
	if existing != nil {
		return AlertDuplicate, nil
	}

	alert := BuildDailyAlert(tenant, dateKey, orders, n.loc)

	claimed, err := n.alerts.ClaimDailyAlert(ctx, domain.DailyAlertRecord{
		TenantID:   tenant.ID,
		Date:       dateKey,
		OrderCount: alert.OrderCount,
		SentAt:     n.now(),
	})
	if err != nil {
		return AlertFailed, fmt.Errorf("claim daily alert: %w", err)
	}
	if !claimed {
		return AlertDuplicate, nil
	}

	if err := n.notifier.SendDailyAlert(ctx, alert); err != nil {
		if releaseErr := n.alerts.ReleaseDailyAlert(ctx, tenant.ID, dateKey); releaseErr != nil {
			n.log.Error("failed to release daily alert claim", "tenant_id", tenant.ID, "date", dateKey, "error", releaseErr)
		}
		return AlertFailed, fmt.Errorf("send daily alert: %w", err)
	}

	n.log.Info("daily alert sent", "tenant_id", tenant.ID, "date", dateKey, "orders", alert.OrderCount)
	return AlertSent, nil
}

// RunDaily triggers SendDailyAlerts once per calendar day, at the first check
// on or after hour o'clock in the notifier's location.
func (n *DailyAlertNotifier) RunDaily(ctx context.Context, hour int, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	lastRun := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := n.now().In(n.loc)
			today := now.Format(time.DateOnly)
			if now.Hour() < hour || lastRun == today {
				continue
			}
			report, err := n.SendDailyAlerts(ctx, now)
			if err != nil {
				n.log.Error("daily alert run failed", "date", today, "error", err)
				continue
			}
			lastRun = today
			n.log.Info("daily alert run completed",
				"date", today, "sent", report.Sent, "no_orders", report.NoOrders,
				"duplicate", report.Duplicate, "failed", report.Failed)
		}
	}
}

// BuildDailyAlert groups orders by fire time, earliest first.
func BuildDailyAlert(tenant domain.Tenant, date string, orders []domain.Order, loc *time.Location) domain.DailyAlert {
	groups := make(map[int64]*domain.AlertGroup)
	for _, o := range orders {
		if o.ScheduledTime == nil {
			continue
		}
		fire := domain.FireTimeFor(*o.ScheduledTime).In(loc)
		g, ok := groups[fire.Unix()]
		if !ok {
			g = &domain.AlertGroup{FireTime: fire}
			groups[fire.Unix()] = g
		}
		g.Orders = append(g.Orders, domain.AlertOrder{
			OrderID:       o.ID,
			OrderNumber:   o.OrderNumber,
			CustomerName:  o.CustomerName,
			CustomerPhone: o.CustomerPhone,
			ScheduledTime: o.ScheduledTime.In(loc),
			ItemCount:     o.ItemCount(),
			Total:         o.Total,
		})
	}

	alert := domain.DailyAlert{
		TenantID:   tenant.ID,
		TenantName: tenant.Name,
		Recipient:  tenant.NotifyEmail,
		Date:       date,
	}
	for _, g := range groups {
		sort.Slice(g.Orders, func(i, j int) bool { return g.Orders[i].OrderNumber < g.Orders[j].OrderNumber })
		alert.Groups = append(alert.Groups, *g)
		alert.OrderCount += len(g.Orders)
	}
	sort.Slice(alert.Groups, func(i, j int) bool { return alert.Groups[i].FireTime.Before(alert.Groups[j].FireTime) })

	alert.Summary = renderAlertSummary(alert)
	return alert
}

func renderAlertSummary(alert domain.DailyAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Advance orders for %s on %s: %d\n", alert.TenantName, alert.Date, alert.OrderCount)
	for _, g := range alert.Groups {
		fmt.Fprintf(&b, "\nFire %s (ready %s)\n",
			g.FireTime.Format("15:04"), g.FireTime.Add(domain.PreparationLead).Format("15:04"))
		for _, o := range g.Orders {
			fmt.Fprintf(&b, "  #%s %s, %d items, %.2f\n", o.OrderNumber, o.CustomerName, o.ItemCount, o.Total)
		}
	}
	return b.String()
}
