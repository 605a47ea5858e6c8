package domain

import "time"

type Tenant struct {
	ID          string
	Name        string
	NotifyEmail string
	Active      bool
}

// POSConfig is the per-tenant POS integration setting.
type POSConfig struct {
	TenantID string
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Enabled  bool
}

const DefaultPOSTimeout = 30 * time.Second

// Configured reports whether dispatch can be attempted at all.
func (c *POSConfig) Configured() bool {
	return c != nil && c.Enabled && c.Endpoint != ""
}
