package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rl1809/prepfire/internal/core/domain"
	"github.com/rl1809/prepfire/internal/port"
)

const orderColumns = `id, tenant_id, order_number, customer_name, customer_phone, customer_email,
	customer_address, order_type, items, subtotal, delivery_fee, discount, total, voucher_code,
	special_instructions, is_advance_order, scheduled_time, status, printed, created_at, updated_at`

// SaveOrder inserts a new order. An id that is already stored, for any tenant,
// is port.ErrDuplicate and leaves the stored row untouched.
func (a *SQLAdapter) SaveOrder(ctx context.Context, o domain.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	if o.Items == nil {
		items = []byte("[]")
	}

	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}

	_, err = a.exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.TenantID, o.OrderNumber, o.CustomerName, o.CustomerPhone, o.CustomerEmail,
		o.CustomerAddress, string(o.OrderType), string(items), o.Subtotal, o.DeliveryFee, o.Discount,
		o.Total, o.VoucherCode, o.SpecialInstructions, o.IsAdvanceOrder, nullTime(o.ScheduledTime),
		string(o.Status), o.Printed, o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	)
	if err != nil {
		if a.dialect.isDuplicate(err) {
			return port.ErrDuplicate
		}
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

func (a *SQLAdapter) GetOrder(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	row := a.queryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE tenant_id = ? AND id = ?`, tenantID, orderID)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &o, nil
}

func (a *SQLAdapter) MarkPrinted(ctx context.Context, tenantID, orderID string) error {
	_, err := a.exec(ctx, `
		UPDATE orders SET printed = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		true, time.Now().UTC(), tenantID, orderID)
	if err != nil {
		return fmt.Errorf("mark printed: %w", err)
	}
	return nil
}

func (a *SQLAdapter) MarkCancelled(ctx context.Context, tenantID, orderID string) error {
	_, err := a.exec(ctx, `
		UPDATE orders SET status = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		string(domain.OrderStatusCancelled), time.Now().UTC(), tenantID, orderID)
	if err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	return nil
}

func (a *SQLAdapter) ListAdvanceOrders(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Order, error) {
	rows, err := a.query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE tenant_id = ? AND is_advance_order = ? AND status <> ?
			AND scheduled_time >= ? AND scheduled_time < ?
		ORDER BY scheduled_time, order_number`,
		tenantID, true, string(domain.OrderStatusCancelled), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query advance orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row scanner) (domain.Order, error) {
	var (
		o         domain.Order
		orderType string
		status    string
		items     string
		scheduled sql.NullTime
	)
	err := row.Scan(
		&o.ID, &o.TenantID, &o.OrderNumber, &o.CustomerName, &o.CustomerPhone, &o.CustomerEmail,
		&o.CustomerAddress, &orderType, &items, &o.Subtotal, &o.DeliveryFee, &o.Discount, &o.Total,
		&o.VoucherCode, &o.SpecialInstructions, &o.IsAdvanceOrder, &scheduled, &status, &o.Printed,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return o, fmt.Errorf("decode items of order %s: %w", o.ID, err)
	}
	o.OrderType = domain.OrderType(orderType)
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	if scheduled.Valid {
		t := scheduled.Time.UTC()
		o.ScheduledTime = &t
	}
	return o, nil
}

func (a *SQLAdapter) UpsertTenant(ctx context.Context, t domain.Tenant) error {
	result, err := a.exec(ctx, `
		UPDATE tenants SET name = ?, notify_email = ?, active = ? WHERE id = ?`,
		t.Name, t.NotifyEmail, t.Active, t.ID)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}

	_, err = a.exec(ctx, `
		INSERT INTO tenants (id, name, notify_email, active) VALUES (?, ?, ?, ?)`,
		t.ID, t.Name, t.NotifyEmail, t.Active)
	if err != nil && !a.dialect.isDuplicate(err) {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (a *SQLAdapter) ListActiveTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := a.query(ctx, `
		SELECT id, name, notify_email, active FROM tenants WHERE active = ? ORDER BY id`, true)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	var out []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.NotifyEmail, &t.Active); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Tenant setting keys read by GetPOSConfig.
const (
	SettingPOSEndpoint = "pos_endpoint"
	SettingPOSAPIKey   = "pos_api_key"
	SettingPOSTimeout  = "pos_timeout"
	SettingPOSEnabled  = "pos_enabled"
)

func (a *SQLAdapter) PutTenantSetting(ctx context.Context, tenantID, key, value string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, a.q(`
		DELETE FROM tenant_settings WHERE tenant_id = ? AND setting_key = ?`), tenantID, key); err != nil {
		return fmt.Errorf("clear setting: %w", err)
	}
	if _, err := tx.ExecContext(ctx, a.q(`
		INSERT INTO tenant_settings (tenant_id, setting_key, setting_value) VALUES (?, ?, ?)`),
		tenantID, key, value); err != nil {
		return fmt.Errorf("insert setting: %w", err)
	}
	return tx.Commit()
}

// GetPOSConfig assembles the POS integration from the tenant's key-value
// settings. pos_timeout is in seconds.
func (a *SQLAdapter) GetPOSConfig(ctx context.Context, tenantID string) (*domain.POSConfig, error) {
	rows, err := a.query(ctx, `
		SELECT setting_key, setting_value FROM tenant_settings
		WHERE tenant_id = ? AND setting_key IN (?, ?, ?, ?)`,
		tenantID, SettingPOSEndpoint, SettingPOSAPIKey, SettingPOSTimeout, SettingPOSEnabled)
	if err != nil {
		return nil, fmt.Errorf("query pos settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan pos setting: %w", err)
		}
		settings[key] = strings.TrimSpace(value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(settings) == 0 {
		return nil, nil
	}

	cfg := &domain.POSConfig{
		TenantID: tenantID,
		Endpoint: strings.TrimRight(settings[SettingPOSEndpoint], "/"),
		APIKey:   settings[SettingPOSAPIKey],
		Timeout:  domain.DefaultPOSTimeout,
	}
	if raw := settings[SettingPOSTimeout]; raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid %s %q for tenant %s", SettingPOSTimeout, raw, tenantID)
		}
		cfg.Timeout = time.Duration(secs) * time.Second
	}
	if raw := settings[SettingPOSEnabled]; raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q for tenant %s", SettingPOSEnabled, raw, tenantID)
		}
		cfg.Enabled = enabled
	}
	return cfg, nil
}
