package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rl1809/prepfire/internal/core/domain"
	"github.com/rl1809/prepfire/internal/port"
)

// Dispatcher hands orders to the POS and keeps the audit trail. Every attempt,
// successful or not, produces one print job log row.
type Dispatcher struct {
	orders    port.OrderRepository
	printLogs port.PrintJobLogRepository
	pos       port.POSClient
	options
}

func NewDispatcher(orders port.OrderRepository, printLogs port.PrintJobLogRepository, pos port.POSClient, opts ...Option) *Dispatcher {
	return &Dispatcher{
		orders:    orders,
		printLogs: printLogs,
		pos:       pos,
		options:   buildOptions("dispatcher", opts),
	}
}

// Send delivers order to the tenant's POS. A failed delivery is returned as an
// error wrapping ErrPOSUnavailable or ErrPOSTransport.
func (d *Dispatcher) Send(ctx context.Context, tenantID string, order domain.Order, kind domain.AttemptKind) (domain.PrintResult, error) {
	result, err := d.pos.SendOrderToPOS(ctx, tenantID, order)
	if err == nil && !result.Success {
		err = fmt.Errorf("%w: %s", ErrPOSTransport, result.Message)
	}

	entry := domain.PrintJobLog{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		OrderID:    order.ID,
		PrintJobID: result.PrintJobID,
		Kind:       kind,
		Success:    err == nil,
		Message:    result.Message,
		CreatedAt:  d.now(),
	}
	if err != nil {
		entry.Message = err.Error()
	}
	if logErr := d.printLogs.AppendPrintJobLog(ctx, entry); logErr != nil {
		d.log.Warn("failed to append print job log", "tenant_id", tenantID, "order_id", order.ID, "error", logErr)
	}
	d.metrics.ObserveDispatch(tenantID, kind, err == nil)

	if err != nil {
		return result, err
	}

	if err := d.orders.MarkPrinted(ctx, tenantID, order.ID); err != nil {
		d.log.Error("order printed but flag not saved", "tenant_id", tenantID, "order_id", order.ID, "error", err)
	}
	return result, nil
}

// SendByID loads the order before sending it.
func (d *Dispatcher) SendByID(ctx context.Context, tenantID, orderID string, kind domain.AttemptKind) (domain.PrintResult, error) {
	order, err := d.orders.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return domain.PrintResult{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order == nil {
		return domain.PrintResult{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return d.Send(ctx, tenantID, *order, kind)
}

func (d *Dispatcher) CheckPrintStatus(ctx context.Context, tenantID, orderID, printJobID string) (domain.PrintStatusResult, error) {
	return d.pos.CheckPrintStatus(ctx, tenantID, orderID, printJobID)
}

func (d *Dispatcher) PrintJobLogs(ctx context.Context, tenantID, orderID string) ([]domain.PrintJobLog, error) {
	return d.printLogs.ListPrintJobLogs(ctx, tenantID, orderID)
}
