package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPostgresAdapter_Contract(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := OpenPostgres(ctx, dsn, 10, 5)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer a.Close()

	if err := a.Migrate(ctx); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	runRepositoryContract(t, a, time.Now().Format("20060102150405.000000"))
}

func TestRebind(t *testing.T) {
	pg := &SQLAdapter{dialect: postgresDialect}
	my := &SQLAdapter{dialect: mysqlDialect}

	query := `SELECT a FROM t WHERE x = ? AND y IN (?, ?)`
	assert.Equal(t, `SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)`, pg.q(query))
	assert.Equal(t, query, my.q(query))
}
