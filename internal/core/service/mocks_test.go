package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/prepfire/internal/core/domain"
	"github.com/rl1809/prepfire/internal/port"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Mock store covering every repository port
type mockStore struct {
	mu        sync.Mutex
	schedules map[string]domain.FireSchedule
	orders    map[string]domain.Order
	alerts    map[string]domain.DailyAlertRecord
	printLogs []domain.PrintJobLog
	tenants   []domain.Tenant

	// beforeUpdate runs inside UpdateSchedule before the version check
	beforeUpdate func(s domain.FireSchedule)
	listErr      error
	// createErrs are returned by the next CreateSchedule calls, one per call
	createErrs []error
}

func newMockStore() *mockStore {
	return &mockStore{
		schedules: make(map[string]domain.FireSchedule),
		orders:    make(map[string]domain.Order),
		alerts:    make(map[string]domain.DailyAlertRecord),
	}
}

func (m *mockStore) CreateSchedule(ctx context.Context, s domain.FireSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		return err
	}
	if _, ok := m.schedules[s.OrderID]; ok {
		return port.ErrDuplicate
	}
	m.schedules[s.OrderID] = s
	return nil
}

func (m *mockStore) GetSchedule(ctx context.Context, orderID string) (*domain.FireSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[orderID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *mockStore) UpdateSchedule(ctx context.Context, s domain.FireSchedule) (domain.FireSchedule, error) {
	if m.beforeUpdate != nil {
		m.beforeUpdate(s)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.schedules[s.OrderID]
	if !ok || current.Version != s.Version {
		return s, port.ErrOptimisticLock
	}
	s.Version++
	m.schedules[s.OrderID] = s
	return s, nil
}

func (m *mockStore) DeleteSchedule(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, orderID)
	return nil
}

func (m *mockStore) filter(keep func(domain.FireSchedule) bool) ([]domain.FireSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.FireSchedule
	for _, s := range m.schedules {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireTime.Before(out[j].FireTime) })
	return out, nil
}

func (m *mockStore) ListSchedules(ctx context.Context, tenantID string, status domain.ScheduleStatus) ([]domain.FireSchedule, error) {
	return m.filter(func(s domain.FireSchedule) bool {
		return s.TenantID == tenantID && s.Status == status
	})
}

func (m *mockStore) ListDueSchedules(ctx context.Context, tenantID string, now time.Time) ([]domain.FireSchedule, error) {
	return m.filter(func(s domain.FireSchedule) bool {
		return s.TenantID == tenantID && s.Status == domain.ScheduleStatusHold && !s.FireTime.After(now)
	})
}

func (m *mockStore) ListSchedulesByFireTime(ctx context.Context, tenantID string, from, to time.Time) ([]domain.FireSchedule, error) {
	return m.filter(func(s domain.FireSchedule) bool {
		return s.TenantID == tenantID && !s.FireTime.Before(from) && s.FireTime.Before(to)
	})
}

func (m *mockStore) schedule(orderID string) domain.FireSchedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedules[orderID]
}

func (m *mockStore) SaveOrder(ctx context.Context, o domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *mockStore) GetOrder(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return nil, nil
	}
	return &o, nil
}

func (m *mockStore) MarkPrinted(ctx context.Context, tenantID, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.orders[orderID]
	o.Printed = true
	m.orders[orderID] = o
	return nil
}

func (m *mockStore) MarkCancelled(ctx context.Context, tenantID, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.orders[orderID]
	o.Status = domain.OrderStatusCancelled
	m.orders[orderID] = o
	return nil
}

func (m *mockStore) ListAdvanceOrders(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Order
	for _, o := range m.orders {
		if o.TenantID != tenantID || !o.IsAdvanceOrder || o.ScheduledTime == nil || o.Status == domain.OrderStatusCancelled {
			continue
		}
		if o.ScheduledTime.Before(from) || !o.ScheduledTime.Before(to) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *mockStore) order(orderID string) domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[orderID]
}

func alertKey(tenantID, date string) string {
	return tenantID + "|" + date
}

func (m *mockStore) ClaimDailyAlert(ctx context.Context, r domain.DailyAlertRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := alertKey(r.TenantID, r.Date)
	if _, ok := m.alerts[key]; ok {
		return false, nil
	}
	m.alerts[key] = r
	return true, nil
}

func (m *mockStore) ReleaseDailyAlert(ctx context.Context, tenantID, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.alerts, alertKey(tenantID, date))
	return nil
}

func (m *mockStore) GetDailyAlert(ctx context.Context, tenantID, date string) (*domain.DailyAlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.alerts[alertKey(tenantID, date)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *mockStore) AppendPrintJobLog(ctx context.Context, e domain.PrintJobLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.printLogs = append(m.printLogs, e)
	return nil
}

func (m *mockStore) ListPrintJobLogs(ctx context.Context, tenantID, orderID string) ([]domain.PrintJobLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.PrintJobLog
	for _, e := range m.printLogs {
		if e.TenantID == tenantID && e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStore) ListActiveTenants(ctx context.Context) ([]domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Tenant
	for _, t := range m.tenants {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

// Mock POSClient. Results are consumed in order; once exhausted the last one repeats.
type mockPOS struct {
	mu      sync.Mutex
	results []error
	calls   []string
	jobSeq  int
}

func (m *mockPOS) SendOrderToPOS(ctx context.Context, tenantID string, order domain.Order) (domain.PrintResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, order.ID)

	var err error
	if len(m.results) > 0 {
		err = m.results[0]
		if len(m.results) > 1 {
			m.results = m.results[1:]
		}
	}
	if err != nil {
		return domain.PrintResult{Success: false, Message: err.Error()}, err
	}
	m.jobSeq++
	return domain.PrintResult{Success: true, Message: "queued", PrintJobID: fmt.Sprintf("job-%d", m.jobSeq)}, nil
}

func (m *mockPOS) CheckPrintStatus(ctx context.Context, tenantID, orderID, printJobID string) (domain.PrintStatusResult, error) {
	return domain.PrintStatusResult{Status: domain.PrintStatusCompleted}, nil
}

func (m *mockPOS) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockPOS) failWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = errs
}

// Mock CacheRepository
type mockCache struct {
	mu             sync.Mutex
	locks          map[string]string
	idempotencySet map[string]bool
	seq            int
}

func newMockCache() *mockCache {
	return &mockCache{
		locks:          make(map[string]string),
		idempotencySet: make(map[string]bool),
	}
}

func (m *mockCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[key]; held {
		return "", false, nil
	}
	m.seq++
	token := fmt.Sprintf("token-%d", m.seq)
	m.locks[key] = token
	return token, true, nil
}

func (m *mockCache) ReleaseLock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks[key] == token {
		delete(m.locks, key)
	}
	return nil
}

func (m *mockCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCache) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	return nil
}

// Mock Notifier
type mockNotifier struct {
	mu   sync.Mutex
	sent []domain.DailyAlert
	err  error
}

func (m *mockNotifier) SendDailyAlert(ctx context.Context, alert domain.DailyAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, alert)
	return nil
}

// testEnv wires every service over the mocks.
type testEnv struct {
	clock      *fakeClock
	store      *mockStore
	pos        *mockPOS
	cache      *mockCache
	notifier   *mockNotifier
	dispatcher *Dispatcher
	retry      *RetryEngine
	scheduler  *Scheduler
	router     *Router
	conflicts  *ConflictDetector
	alerts     *DailyAlertNotifier
	sweeper    *Sweeper
}

func newTestEnv(start time.Time) *testEnv {
	env := &testEnv{
		clock:    newFakeClock(start),
		store:    newMockStore(),
		pos:      &mockPOS{},
		cache:    newMockCache(),
		notifier: &mockNotifier{},
	}

	opts := []Option{WithClock(env.clock.Now)}
	env.dispatcher = NewDispatcher(env.store, env.store, env.pos, opts...)
	env.retry = NewRetryEngine(env.store, env.dispatcher, opts...)
	env.scheduler = NewScheduler(env.store, env.store, env.dispatcher, env.retry, opts...)
	env.router = NewRouter(env.scheduler, env.dispatcher, env.cache, opts...)
	env.conflicts = NewConflictDetector(env.store, opts...)
	env.alerts = NewDailyAlertNotifier(env.store, env.store, env.store, env.notifier, opts...)
	env.sweeper = NewSweeper(env.scheduler, env.store, env.cache, 4, time.Minute, opts...)
	return env
}

func (e *testEnv) advanceOrder(id string, scheduled time.Time) domain.Order {
	o := domain.Order{
		ID:             id,
		TenantID:       "tenant-1",
		OrderNumber:    "N-" + id,
		CustomerName:   "Customer " + id,
		OrderType:      domain.OrderTypePickup,
		Items:          []domain.OrderItem{{ID: "item-1", Name: "Lasagna", Quantity: 2, Price: 12.5}},
		Subtotal:       25,
		Total:          25,
		IsAdvanceOrder: true,
		ScheduledTime:  &scheduled,
		Status:         domain.OrderStatusConfirmed,
	}
	e.store.SaveOrder(context.Background(), o)
	return o
}
