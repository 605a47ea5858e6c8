package port

import (
	"context"
	"errors"

	"github.com/rl1809/prepfire/internal/core/domain"
)

// POSConfigProvider resolves per-tenant POS integration settings.
type POSConfigProvider interface {
	// GetPOSConfig returns nil when the tenant has no POS configuration
	GetPOSConfig(ctx context.Context, tenantID string) (*domain.POSConfig, error)
}

type POSClient interface {
	SendOrderToPOS(ctx context.Context, tenantID string, order domain.Order) (domain.PrintResult, error)

	CheckPrintStatus(ctx context.Context, tenantID, orderID, printJobID string) (domain.PrintStatusResult, error)
}

var (
	// ErrPOSUnavailable means the tenant has no enabled POS integration. It is reported,
	// never retried automatically.
	ErrPOSUnavailable = errors.New("pos integration unavailable")
	ErrPOSTransport   = errors.New("pos transport failure")
)
