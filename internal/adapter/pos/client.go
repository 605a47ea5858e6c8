package pos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/prepfire/internal/core/domain"
	"github.com/rl1809/prepfire/internal/port"
)

const maxResponseBody = 64 << 10

// Client talks to each tenant's POS over HTTP. It holds no per-tenant state;
// endpoint, credentials and timeout are resolved on every call.
type Client struct {
	configs    port.POSConfigProvider
	httpClient *http.Client
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

func NewClient(configs port.POSConfigProvider, opts ...Option) *Client {
	c := &Client{
		configs:    configs,
		httpClient: &http.Client{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SendOrderToPOS(ctx context.Context, tenantID string, order domain.Order) (domain.PrintResult, error) {
	cfg, err := c.config(ctx, tenantID)
	if err != nil {
		return domain.PrintResult{Success: false, Message: err.Error()}, err
	}

	body, err := json.Marshal(newPrintRequest(order, c.now()))
	if err != nil {
		err = fmt.Errorf("%w: encode order %s: %v", port.ErrPOSTransport, order.ID, err)
		return domain.PrintResult{Success: false, Message: err.Error()}, err
	}

	var resp printResponse
	if err := c.do(ctx, cfg, http.MethodPost, "/api/print-order", bytes.NewReader(body), &resp); err != nil {
		return domain.PrintResult{Success: false, Message: err.Error()}, err
	}

	jobID := resp.jobID()
	message := resp.Message
	if message == "" {
		message = "sent to POS"
	}
	return domain.PrintResult{Success: true, Message: message, PrintJobID: jobID}, nil
}

func (c *Client) CheckPrintStatus(ctx context.Context, tenantID, orderID, printJobID string) (domain.PrintStatusResult, error) {
	if printJobID == "" {
		return domain.PrintStatusResult{}, fmt.Errorf("%w: order %s has no print job id", port.ErrPOSTransport, orderID)
	}

	cfg, err := c.config(ctx, tenantID)
	if err != nil {
		return domain.PrintStatusResult{}, err
	}

	var resp statusResponse
	if err := c.do(ctx, cfg, http.MethodGet, "/api/print-status/"+url.PathEscape(printJobID), nil, &resp); err != nil {
		return domain.PrintStatusResult{}, err
	}

	status := domain.PrintStatus(resp.Status)
	switch status {
	case domain.PrintStatusPending, domain.PrintStatusPrinting, domain.PrintStatusCompleted, domain.PrintStatusFailed:
	default:
		return domain.PrintStatusResult{}, fmt.Errorf("%w: unknown print status %q", port.ErrPOSTransport, resp.Status)
	}
	return domain.PrintStatusResult{Status: status, Message: resp.Message}, nil
}

func (c *Client) config(ctx context.Context, tenantID string) (*domain.POSConfig, error) {
	cfg, err := c.configs.GetPOSConfig(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: load config for tenant %s: %v", port.ErrPOSUnavailable, tenantID, err)
	}
	if !cfg.Configured() {
		return nil, fmt.Errorf("%w: tenant %s has no enabled POS endpoint", port.ErrPOSUnavailable, tenantID)
	}
	return cfg, nil
}

// do performs one request bounded by the tenant timeout. Any network error,
// timeout or non-2xx answer is a transport failure.
func (c *Client) do(ctx context.Context, cfg *domain.POSConfig, method, path string, body io.Reader, out any) error {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultPOSTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, cfg.Endpoint+path, body)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", port.ErrPOSTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", port.ErrPOSTransport, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", port.ErrPOSTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s returned %d: %s", port.ErrPOSTransport, method, path, resp.StatusCode, bytes.TrimSpace(raw))
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", port.ErrPOSTransport, err)
	}
	return nil
}
