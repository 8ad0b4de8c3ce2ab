package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/gdbrns/autoservice-whatsapp/pkg/env"
	"github.com/gdbrns/autoservice-whatsapp/pkg/log"
)

const historySchema = `CREATE TABLE IF NOT EXISTS whatsapp_message_history (
	id BIGSERIAL PRIMARY KEY,
	organization_id TEXT NOT NULL,
	sent_by TEXT NOT NULL,
	customer_id TEXT,
	phone TEXT NOT NULL,
	message TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT,
	is_bulk BOOLEAN NOT NULL DEFAULT FALSE,
	campaign_name TEXT,
	sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const historyIndex = `CREATE INDEX IF NOT EXISTS whatsapp_message_history_org_sent_idx
	ON whatsapp_message_history (organization_id, sent_at DESC)`

// NormalizeDriver maps configured database types onto registered
// database/sql driver names.
func NormalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pq":
		return "postgres"
	case "", "pgx":
		return "pgx"
	default:
		return strings.ToLower(driver)
	}
}

// NormalizeDSN makes pgx connections safe behind transaction poolers.
func NormalizeDSN(driver string, dsn string) string {
	if driver != "pgx" {
		return dsn
	}
	appendParam := func(current string, key string, value string) string {
		if strings.Contains(current, key+"=") {
			return current
		}
		separator := "?"
		if strings.Contains(current, "?") {
			if strings.HasSuffix(current, "?") || strings.HasSuffix(current, "&") {
				separator = ""
			} else {
				separator = "&"
			}
		}
		return current + separator + key + "=" + value
	}
	dsn = appendParam(dsn, "default_query_exec_mode", "simple_protocol")
	return dsn
}

// OpenFromEnv opens the application database described by DATABASE_TYPE
// and DATABASE_URI.
func OpenFromEnv(ctx context.Context) (*sql.DB, error) {
	dsn, err := env.GetEnvString("DATABASE_URI")
	if err != nil {
		return nil, err
	}
	return Open(ctx, env.GetEnvStringOrDefault("DATABASE_TYPE", "pgx"), dsn)
}

func Open(ctx context.Context, driver string, dsn string) (*sql.DB, error) {
	driver = NormalizeDriver(driver)
	if driver != "pgx" && driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %s", driver)
	}

	db, err := sql.Open(driver, NormalizeDSN(driver, dsn))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(env.GetEnvIntOrDefault("DATABASE_MAX_OPEN_CONNS", 25))
	db.SetMaxIdleConns(env.GetEnvIntOrDefault("DATABASE_MAX_IDLE_CONNS", 10))
	db.SetConnMaxLifetime(10 * time.Minute)
	db.SetConnMaxIdleTime(3 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Print(nil).Info("Database connected with driver=" + driver)
	return db, nil
}

// EnsureSchema creates the tables owned by the messaging core.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{historySchema, historyIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
