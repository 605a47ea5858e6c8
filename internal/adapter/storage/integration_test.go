package storage_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/prepfire/internal/adapter/pos"
	"github.com/rl1809/prepfire/internal/adapter/storage"
	"github.com/rl1809/prepfire/internal/core/domain"
	"github.com/rl1809/prepfire/internal/core/service"
)

type testEnv struct {
	redis   *redis.Client
	cache   *storage.RedisAdapter
	db      *storage.SQLAdapter
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/prepfire?parseTime=true"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := storage.OpenMySQL(ctx, mysqlDSN, 20, 10)
	if err != nil {
		rdb.Close()
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	return &testEnv{
		redis: rdb,
		cache: storage.NewRedisAdapter(rdb),
		db:    db,
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

// countingPOS records how often each order reached the printer.
type countingPOS struct {
	mu     sync.Mutex
	prints map[string]int
}

func (p *countingPOS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrderID string `json:"orderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.prints[body.OrderID]++
	p.mu.Unlock()
	fmt.Fprintf(w, `{"printJobId":"job-%s"}`, body.OrderID)
}

func TestIntegration_ConcurrentSweepsPrintOnce(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	tenantID := "it-" + time.Now().Format("150405.000000")
	now := time.Now().UTC().Truncate(time.Second)

	printer := &countingPOS{prints: make(map[string]int)}
	srv := httptest.NewServer(printer)
	defer srv.Close()

	if err := env.db.UpsertTenant(ctx, domain.Tenant{ID: tenantID, Name: "Integration", Active: true}); err != nil {
		t.Fatalf("upsert tenant: %v", err)
	}
	env.db.PutTenantSetting(ctx, tenantID, storage.SettingPOSEndpoint, srv.URL)
	env.db.PutTenantSetting(ctx, tenantID, storage.SettingPOSEnabled, "true")

	clock := func() time.Time { return now }
	dispatcher := service.NewDispatcher(env.db, env.db, pos.NewClient(env.db), service.WithClock(clock))
	retry := service.NewRetryEngine(env.db, dispatcher, service.WithClock(clock))
	scheduler := service.NewScheduler(env.db, env.db, dispatcher, retry, service.WithClock(clock))

	const orders = 20
	for i := 0; i < orders; i++ {
		desired := now.Add(-time.Duration(i) * time.Minute).Add(domain.PreparationLead)
		order := domain.Order{
			ID: fmt.Sprintf("%s-o%02d", tenantID, i), TenantID: tenantID,
			IsAdvanceOrder: true, ScheduledTime: &desired,
			Status: domain.OrderStatusConfirmed, CreatedAt: now, UpdatedAt: now,
		}
		if err := env.db.SaveOrder(ctx, order); err != nil {
			t.Fatalf("save order: %v", err)
		}
		if _, err := scheduler.Schedule(ctx, order); err != nil {
			t.Fatalf("schedule: %v", err)
		}
	}

	// Five processes share the Redis lease; each also bypasses it once so the
	// version check alone has to hold.
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		sweeper := service.NewSweeper(scheduler, env.db, env.cache, 1, time.Minute, service.WithClock(clock))
		wg.Add(2)
		go func() {
			defer wg.Done()
			sweeper.SweepTenant(ctx, tenantID)
		}()
		go func() {
			defer wg.Done()
			scheduler.ProcessReadyOrders(ctx, tenantID)
		}()
	}
	wg.Wait()

	printed, err := env.db.ListSchedules(ctx, tenantID, domain.ScheduleStatusPrinted)
	if err != nil {
		t.Fatalf("list printed: %v", err)
	}
	if len(printed) != orders {
		t.Errorf("expected %d printed, got %d", orders, len(printed))
	}

	printer.mu.Lock()
	defer printer.mu.Unlock()
	for id, n := range printer.prints {
		if n != 1 {
			t.Errorf("order %s printed %d times", id, n)
		}
	}
}

func TestIntegration_RedisLeaseIsExclusive(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	key := "sweep:it-" + time.Now().Format("150405.000000")

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := env.cache.AcquireLock(ctx, key, time.Minute); err == nil && ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly 1 lease holder, got %d", winners)
	}
}
