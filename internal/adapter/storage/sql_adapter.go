package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rl1809/prepfire/internal/core/domain"
	"github.com/rl1809/prepfire/internal/port"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// dialect holds what differs between the SQL backends.
type dialect struct {
	name        string
	schemaFile  string
	isDuplicate func(error) bool
	// numbered placeholders ($1, $2) instead of ?
	numbered bool
}

// SQLAdapter implements every persistence port over database/sql. All times
// are written in UTC.
type SQLAdapter struct {
	db      *sql.DB
	dialect dialect
}

func (a *SQLAdapter) DB() *sql.DB {
	return a.db
}

func (a *SQLAdapter) Dialect() string {
	return a.dialect.name
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (a *SQLAdapter) Migrate(ctx context.Context) error {
	raw, err := schemaFS.ReadFile(a.dialect.schemaFile)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	for _, stmt := range strings.Split(string(raw), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (a *SQLAdapter) Close() error {
	return a.db.Close()
}

// q rewrites ? placeholders for dialects that number them. Queries in this
// package never contain a literal question mark.
func (a *SQLAdapter) q(query string) string {
	if !a.dialect.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (a *SQLAdapter) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return a.db.ExecContext(ctx, a.q(query), args...)
}

func (a *SQLAdapter) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return a.db.QueryContext(ctx, a.q(query), args...)
}

func (a *SQLAdapter) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return a.db.QueryRowContext(ctx, a.q(query), args...)
}

const scheduleColumns = `order_id, tenant_id, customer_desired_time, fire_time, status, retry_count,
	last_retry_at, print_job_id, last_error, failure_kind, version, created_at, updated_at`

func (a *SQLAdapter) CreateSchedule(ctx context.Context, s domain.FireSchedule) error {
	_, err := a.exec(ctx, `
		INSERT INTO advance_order_schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.OrderID, s.TenantID, s.CustomerDesiredTime.UTC(), s.FireTime.UTC(), string(s.Status), s.RetryCount,
		nullTime(s.LastRetryAt), s.PrintJobID, s.LastError, string(s.FailureKind), s.Version,
		s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	)
	if err != nil {
		if a.dialect.isDuplicate(err) {
			return port.ErrDuplicate
		}
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (a *SQLAdapter) GetSchedule(ctx context.Context, orderID string) (*domain.FireSchedule, error) {
	row := a.queryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM advance_order_schedules WHERE order_id = ?`, orderID)

	s, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	return &s, nil
}

func (a *SQLAdapter) UpdateSchedule(ctx context.Context, s domain.FireSchedule) (domain.FireSchedule, error) {
	result, err := a.exec(ctx, `
		UPDATE advance_order_schedules
		SET status = ?, retry_count = ?, last_retry_at = ?, print_job_id = ?, last_error = ?,
			failure_kind = ?, version = version + 1, updated_at = ?
		WHERE order_id = ? AND version = ?`,
		string(s.Status), s.RetryCount, nullTime(s.LastRetryAt), s.PrintJobID, s.LastError,
		string(s.FailureKind), s.UpdatedAt.UTC(),
		s.OrderID, s.Version,
	)
	if err != nil {
		return s, fmt.Errorf("update schedule: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return s, port.ErrOptimisticLock
	}

	s.Version++
	return s, nil
}

func (a *SQLAdapter) DeleteSchedule(ctx context.Context, orderID string) error {
	if _, err := a.exec(ctx, `DELETE FROM advance_order_schedules WHERE order_id = ?`, orderID); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

func (a *SQLAdapter) ListSchedules(ctx context.Context, tenantID string, status domain.ScheduleStatus) ([]domain.FireSchedule, error) {
	return a.querySchedules(ctx, `
		SELECT `+scheduleColumns+`
		FROM advance_order_schedules
		WHERE tenant_id = ? AND status = ?
		ORDER BY fire_time, order_id`, tenantID, string(status))
}

func (a *SQLAdapter) ListDueSchedules(ctx context.Context, tenantID string, now time.Time) ([]domain.FireSchedule, error) {
	return a.querySchedules(ctx, `
		SELECT `+scheduleColumns+`
		FROM advance_order_schedules
		WHERE tenant_id = ? AND status = ? AND fire_time <= ?
		ORDER BY fire_time, order_id`, tenantID, string(domain.ScheduleStatusHold), now.UTC())
}

func (a *SQLAdapter) ListSchedulesByFireTime(ctx context.Context, tenantID string, from, to time.Time) ([]domain.FireSchedule, error) {
	return a.querySchedules(ctx, `
		SELECT `+scheduleColumns+`
		FROM advance_order_schedules
		WHERE tenant_id = ? AND fire_time >= ? AND fire_time < ?
		ORDER BY fire_time, order_id`, tenantID, from.UTC(), to.UTC())
}

func (a *SQLAdapter) querySchedules(ctx context.Context, query string, args ...any) ([]domain.FireSchedule, error) {
	rows, err := a.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	var out []domain.FireSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (domain.FireSchedule, error) {
	var (
		s           domain.FireSchedule
		status      string
		failureKind string
		lastRetryAt sql.NullTime
	)
	err := row.Scan(
		&s.OrderID, &s.TenantID, &s.CustomerDesiredTime, &s.FireTime, &status, &s.RetryCount,
		&lastRetryAt, &s.PrintJobID, &s.LastError, &failureKind, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return s, err
	}

	s.Status = domain.ScheduleStatus(status)
	s.FailureKind = domain.FailureKind(failureKind)
	s.CustomerDesiredTime = s.CustomerDesiredTime.UTC()
	s.FireTime = s.FireTime.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	if lastRetryAt.Valid {
		t := lastRetryAt.Time.UTC()
		s.LastRetryAt = &t
	}
	return s, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
