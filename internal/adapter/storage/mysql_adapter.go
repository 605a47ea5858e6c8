package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

var mysqlDialect = dialect{
	name:       "mysql",
	schemaFile: "schema/mysql.sql",
	isDuplicate: func(err error) bool {
		var mysqlErr *mysql.MySQLError
		return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
	},
}

func NewMySQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: mysqlDialect}
}

// OpenMySQL connects with UTC time parsing forced on, whatever the DSN says.
func OpenMySQL(ctx context.Context, dsn string, maxOpen, maxIdle int) (*SQLAdapter, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return NewMySQLAdapter(db), nil
}
