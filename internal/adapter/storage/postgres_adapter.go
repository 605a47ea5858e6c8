package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

var postgresDialect = dialect{
	name:        "postgres",
	schemaFile:  "schema/postgres.sql",
	numbered:    true,
	isDuplicate: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
	},
}

func NewPostgresAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: postgresDialect}
}

func OpenPostgres(ctx context.Context, dsn string, maxOpen, maxIdle int) (*SQLAdapter, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresAdapter(db), nil
}
