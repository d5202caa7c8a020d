// Package pg implements the store over Postgres (managed mode), using the
// pgx driver through database/sql and sqlx for row scanning.
package pg

import (
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// OpenDB connects to Postgres. maxConns should be at least twice the worker
// pool concurrency so terminal writes never starve behind reads.
func OpenDB(dsn string, maxConns int) (*sqlx.DB, error) {
	if maxConns <= 0 {
		maxConns = 20
	}

	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.Info("postgres connected", "max_conns", maxConns)
	return db, nil
}
