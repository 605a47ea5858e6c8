package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/prepfire/internal/core/domain"
)

// ClaimDailyAlert relies on the (tenant_id, alert_date) primary key, so two
// concurrent claims cannot both succeed.
func (a *SQLAdapter) ClaimDailyAlert(ctx context.Context, r domain.DailyAlertRecord) (bool, error) {
	_, err := a.exec(ctx, `
		INSERT INTO daily_prep_alerts (tenant_id, alert_date, order_count, sent_at)
		VALUES (?, ?, ?, ?)`,
		r.TenantID, r.Date, r.OrderCount, r.SentAt.UTC())
	if err != nil {
		if a.dialect.isDuplicate(err) {
			return false, nil
		}
		return false, fmt.Errorf("claim daily alert: %w", err)
	}
	return true, nil
}

func (a *SQLAdapter) ReleaseDailyAlert(ctx context.Context, tenantID, date string) error {
	_, err := a.exec(ctx, `
		DELETE FROM daily_prep_alerts WHERE tenant_id = ? AND alert_date = ?`, tenantID, date)
	if err != nil {
		return fmt.Errorf("release daily alert: %w", err)
	}
	return nil
}

func (a *SQLAdapter) GetDailyAlert(ctx context.Context, tenantID, date string) (*domain.DailyAlertRecord, error) {
	var r domain.DailyAlertRecord
	err := a.queryRow(ctx, `
		SELECT tenant_id, alert_date, order_count, sent_at
		FROM daily_prep_alerts WHERE tenant_id = ? AND alert_date = ?`, tenantID, date,
	).Scan(&r.TenantID, &r.Date, &r.OrderCount, &r.SentAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query daily alert: %w", err)
	}
	r.SentAt = r.SentAt.UTC()
	return &r, nil
}

func (a *SQLAdapter) AppendPrintJobLog(ctx context.Context, e domain.PrintJobLog) error {
	_, err := a.exec(ctx, `
		INSERT INTO print_job_logs (id, tenant_id, order_id, print_job_id, attempt_kind, success, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.OrderID, e.PrintJobID, string(e.Kind), e.Success, e.Message, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert print job log: %w", err)
	}
	return nil
}

func (a *SQLAdapter) ListPrintJobLogs(ctx context.Context, tenantID, orderID string) ([]domain.PrintJobLog, error) {
	rows, err := a.query(ctx, `
		SELECT id, tenant_id, order_id, print_job_id, attempt_kind, success, message, created_at
		FROM print_job_logs
		WHERE tenant_id = ? AND order_id = ?
		ORDER BY created_at, id`, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("query print job logs: %w", err)
	}
	defer rows.Close()

	var out []domain.PrintJobLog
	for rows.Next() {
		var (
			e    domain.PrintJobLog
			kind string
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.OrderID, &e.PrintJobID, &kind, &e.Success, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan print job log: %w", err)
		}
		e.Kind = domain.AttemptKind(kind)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
