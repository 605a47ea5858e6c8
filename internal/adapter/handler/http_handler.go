package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rl1809/prepfire/internal/core/domain"
	"github.com/rl1809/prepfire/internal/core/service"
	"github.com/rl1809/prepfire/internal/port"
)

const requestIDHeader = "X-Request-ID"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Services struct {
	Router     *service.Router
	Scheduler  *service.Scheduler
	Retry      *service.RetryEngine
	Conflicts  *service.ConflictDetector
	Alerts     *service.DailyAlertNotifier
	Sweeper    *service.Sweeper
	Dispatcher *service.Dispatcher
	Orders     port.OrderRepository
}

type HTTPHandler struct {
	svc     Services
	db      Pinger
	metrics http.Handler
	loc     *time.Location
	log     *slog.Logger
}

func NewHTTPHandler(svc Services, db Pinger, metrics http.Handler, loc *time.Location, log *slog.Logger) *HTTPHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &HTTPHandler{
		svc:     svc,
		db:      db,
		metrics: metrics,
		loc:     loc,
		log:     log.With("component", "http"),
	}
}

func (h *HTTPHandler) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/health", h.HealthCheck)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}

	api := r.Group("/api/v1")
	api.POST("/alerts/daily", h.SendDailyAlerts)

	t := api.Group("/tenants/:tenantID")
	t.POST("/orders", h.PlaceOrder)
	t.GET("/orders/:orderID/print-status", h.PrintStatus)
	t.GET("/orders/:orderID/print-logs", h.PrintLogs)
	t.GET("/schedules/failed", h.FailedSchedules)
	t.GET("/schedules/:orderID", h.GetSchedule)
	t.DELETE("/schedules/:orderID", h.CancelSchedule)
	t.POST("/schedules/:orderID/retry", h.RetrySchedule)
	t.GET("/conflicts", h.Conflicts)
	t.POST("/sweep", h.Sweep)

	return r
}

func (h *HTTPHandler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		started := time.Now()
		c.Next()

		h.log.Debug("request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(started),
		)
	}
}

type OrderRequest struct {
	ID                  string             `json:"id" binding:"required"`
	OrderNumber         string             `json:"order_number"`
	CustomerName        string             `json:"customer_name"`
	CustomerPhone       string             `json:"customer_phone"`
	CustomerEmail       string             `json:"customer_email"`
	CustomerAddress     string             `json:"customer_address"`
	OrderType           domain.OrderType   `json:"order_type"`
	Items               []domain.OrderItem `json:"items"`
	Subtotal            float64            `json:"subtotal"`
	DeliveryFee         float64            `json:"delivery_fee"`
	Discount            float64            `json:"discount"`
	Total               float64            `json:"total"`
	VoucherCode         string             `json:"voucher_code"`
	SpecialInstructions string             `json:"special_instructions"`
	IsAdvanceOrder      bool               `json:"is_advance_order"`
	// ScheduledTime is RFC 3339 or a zone-less local time.
	ScheduledTime string `json:"scheduled_time"`
}

type RouteResponse struct {
	OrderID        string        `json:"order_id"`
	Classification string        `json:"classification"`
	Schedule       *ScheduleView `json:"schedule,omitempty"`
	PrintJobID     string        `json:"print_job_id,omitempty"`
	Error          string        `json:"error,omitempty"`
}

type ScheduleView struct {
	OrderID             string     `json:"order_id"`
	TenantID            string     `json:"tenant_id"`
	CustomerDesiredTime time.Time  `json:"customer_desired_time"`
	FireTime            time.Time  `json:"fire_time"`
	Status              string     `json:"status"`
	RetryCount          int        `json:"retry_count"`
	LastRetryAt         *time.Time `json:"last_retry_at,omitempty"`
	PrintJobID          string     `json:"print_job_id,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	FailureKind         string     `json:"failure_kind,omitempty"`
	NeedsManual         bool       `json:"needs_manual_intervention"`
}

func (h *HTTPHandler) scheduleView(s domain.FireSchedule) *ScheduleView {
	return &ScheduleView{
		OrderID:             s.OrderID,
		TenantID:            s.TenantID,
		CustomerDesiredTime: s.CustomerDesiredTime.In(h.loc),
		FireTime:            s.FireTime.In(h.loc),
		Status:              s.DisplayStatus(h.svc.Scheduler.Now()),
		RetryCount:          s.RetryCount,
		LastRetryAt:         s.LastRetryAt,
		PrintJobID:          s.PrintJobID,
		LastError:           s.LastError,
		FailureKind:         string(s.FailureKind),
		NeedsManual:         s.Exhausted(),
	}
}

// PlaceOrder stores the order and routes it. An unparseable scheduled time
// does not reject the order; it prints immediately. A re-submitted id never
// rewrites the stored order.
func (h *HTTPHandler) PlaceOrder(c *gin.Context) {
	tenantID := c.Param("tenantID")

	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scheduled, err := service.ParseScheduledTime(req.ScheduledTime, h.loc)
	if err != nil {
		h.log.Warn("scheduled time rejected, routing as immediate", "tenant_id", tenantID, "order_id", req.ID, "error", err)
	}

	now := h.svc.Scheduler.Now()
	order := domain.Order{
		ID:                  req.ID,
		TenantID:            tenantID,
		OrderNumber:         req.OrderNumber,
		CustomerName:        req.CustomerName,
		CustomerPhone:       req.CustomerPhone,
		CustomerEmail:       req.CustomerEmail,
		CustomerAddress:     req.CustomerAddress,
		OrderType:           req.OrderType,
		Items:               req.Items,
		Subtotal:            req.Subtotal,
		DeliveryFee:         req.DeliveryFee,
		Discount:            req.Discount,
		Total:               req.Total,
		VoucherCode:         req.VoucherCode,
		SpecialInstructions: req.SpecialInstructions,
		IsAdvanceOrder:      req.IsAdvanceOrder,
		ScheduledTime:       scheduled,
		Status:              domain.OrderStatusConfirmed,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := h.svc.Orders.SaveOrder(c.Request.Context(), order); err != nil {
		if !errors.Is(err, port.ErrDuplicate) {
			h.fail(c, err)
			return
		}
		stored, ok := h.storedOrder(c, tenantID, req.ID)
		if !ok {
			return
		}
		order = *stored
	}

	result, err := h.svc.Router.Route(c.Request.Context(), order)
	resp := RouteResponse{OrderID: order.ID, Classification: string(result.Classification)}
	if result.Schedule != nil {
		resp.Schedule = h.scheduleView(*result.Schedule)
	}
	if result.Print != nil {
		resp.PrintJobID = result.Print.PrintJobID
	}

	if err != nil {
		resp.Error = err.Error()
		c.JSON(statusFor(err), resp)
		return
	}

	status := http.StatusOK
	if result.Classification == service.ClassAdvance {
		status = http.StatusAccepted
	}
	c.JSON(status, resp)
}

// storedOrder resolves a re-submitted order id. The stored copy is routed
// as it is, never the re-submitted body, and only while it is still open.
func (h *HTTPHandler) storedOrder(c *gin.Context, tenantID, orderID string) (*domain.Order, bool) {
	stored, err := h.svc.Orders.GetOrder(c.Request.Context(), tenantID, orderID)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	switch {
	case stored == nil:
		c.JSON(http.StatusConflict, gin.H{"error": "order id already in use"})
		return nil, false
	case stored.Status == domain.OrderStatusCancelled:
		c.JSON(http.StatusConflict, gin.H{"error": "order was cancelled"})
		return nil, false
	case stored.Printed:
		c.JSON(http.StatusConflict, gin.H{"error": "order already printed"})
		return nil, false
	}
	return stored, true
}

func (h *HTTPHandler) GetSchedule(c *gin.Context) {
	schedule, err := h.svc.Scheduler.GetSchedule(c.Request.Context(), c.Param("tenantID"), c.Param("orderID"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.scheduleView(*schedule))
}

func (h *HTTPHandler) CancelSchedule(c *gin.Context) {
	schedule, err := h.svc.Scheduler.Cancel(c.Request.Context(), c.Param("tenantID"), c.Param("orderID"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.scheduleView(*schedule))
}

func (h *HTTPHandler) RetrySchedule(c *gin.Context) {
	schedule, err := h.svc.Retry.ManualRetry(c.Request.Context(), c.Param("tenantID"), c.Param("orderID"))
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if schedule.Status != domain.ScheduleStatusPrinted {
		status = http.StatusBadGateway
	}
	c.JSON(status, h.scheduleView(schedule))
}

func (h *HTTPHandler) FailedSchedules(c *gin.Context) {
	failed, err := h.svc.Scheduler.FailedSchedules(c.Request.Context(), c.Param("tenantID"))
	if err != nil {
		h.fail(c, err)
		return
	}
	views := make([]*ScheduleView, 0, len(failed))
	for _, s := range failed {
		views = append(views, h.scheduleView(s))
	}
	c.JSON(http.StatusOK, gin.H{"schedules": views})
}

type conflictView struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Count    int       `json:"count"`
	Level    string    `json:"level"`
	OrderIDs []string  `json:"order_ids"`
}

func (h *HTTPHandler) Conflicts(c *gin.Context) {
	date, err := h.dateParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buckets, err := h.svc.Conflicts.GetOrderConflicts(c.Request.Context(), c.Param("tenantID"), date)
	if err != nil {
		h.fail(c, err)
		return
	}
	views := make([]conflictView, 0, len(buckets))
	for _, b := range buckets {
		views = append(views, conflictView{Start: b.Start, End: b.End, Count: b.Count, Level: string(b.Level), OrderIDs: b.OrderIDs})
	}
	c.JSON(http.StatusOK, gin.H{"date": date.Format(time.DateOnly), "buckets": views})
}

func (h *HTTPHandler) Sweep(c *gin.Context) {
	tenantID := c.Param("tenantID")
	report, swept, err := h.svc.Sweeper.SweepTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !swept {
		c.JSON(http.StatusConflict, gin.H{"error": "sweep already running for tenant"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tenant_id": report.TenantID,
		"due":       report.Due,
		"printed":   report.Printed,
		"failed":    report.Failed,
		"skipped":   report.Skipped,
		"recovered": report.Recovered,
		"retry": gin.H{
			"attempted": report.Retry.Attempted,
			"printed":   report.Retry.Printed,
			"failed":    report.Retry.Failed,
			"waiting":   report.Retry.Waiting,
			"exhausted": report.Retry.Exhausted,
		},
	})
}

func (h *HTTPHandler) PrintStatus(c *gin.Context) {
	tenantID, orderID := c.Param("tenantID"), c.Param("orderID")

	jobID := c.Query("job")
	if jobID == "" {
		schedule, err := h.svc.Scheduler.GetSchedule(c.Request.Context(), tenantID, orderID)
		if err != nil {
			h.fail(c, err)
			return
		}
		jobID = schedule.PrintJobID
	}
	if jobID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "order has no print job"})
		return
	}

	status, err := h.svc.Dispatcher.CheckPrintStatus(c.Request.Context(), tenantID, orderID, jobID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"print_job_id": jobID, "status": status.Status, "message": status.Message})
}

type printLogView struct {
	ID         string    `json:"id"`
	PrintJobID string    `json:"print_job_id,omitempty"`
	Kind       string    `json:"kind"`
	Success    bool      `json:"success"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *HTTPHandler) PrintLogs(c *gin.Context) {
	logs, err := h.svc.Dispatcher.PrintJobLogs(c.Request.Context(), c.Param("tenantID"), c.Param("orderID"))
	if err != nil {
		h.fail(c, err)
		return
	}
	views := make([]printLogView, 0, len(logs))
	for _, l := range logs {
		views = append(views, printLogView{
			ID:         l.ID,
			PrintJobID: l.PrintJobID,
			Kind:       string(l.Kind),
			Success:    l.Success,
			Message:    l.Message,
			CreatedAt:  l.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"logs": views})
}

func (h *HTTPHandler) SendDailyAlerts(c *gin.Context) {
	date, err := h.dateParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.svc.Alerts.SendDailyAlerts(c.Request.Context(), date)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":      report.Date,
		"sent":      report.Sent,
		"no_orders": report.NoOrders,
		"duplicate": report.Duplicate,
		"failed":    report.Failed,
	})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	if h.db != nil {
		if err := h.db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// dateParam reads ?date=YYYY-MM-DD, defaulting to today in the handler's zone.
func (h *HTTPHandler) dateParam(c *gin.Context) (time.Time, error) {
	raw := strings.TrimSpace(c.Query("date"))
	if raw == "" {
		return h.svc.Scheduler.Now().In(h.loc), nil
	}
	return time.ParseInLocation(time.DateOnly, raw, h.loc)
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "tenant_id", c.Param("tenantID"), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidOrder), errors.Is(err, service.ErrClassification):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrScheduleNotFound), errors.Is(err, service.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDuplicateRequest),
		errors.Is(err, port.ErrDuplicate),
		errors.Is(err, service.ErrScheduleExists),
		errors.Is(err, service.ErrAlreadyPrinted),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrAlreadyClaimed):
		return http.StatusConflict
	case errors.Is(err, service.ErrRetryTooSoon):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrPOSUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrPOSTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
