// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	// SQL drivers registered for the supported database types.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// TypeNone disables the journal.
const TypeNone = "none"

// sqlOpenFunc allows tests to override database opening behavior.
var sqlOpenFunc = sql.Open

// dialect describes one supported database type.
type dialect struct {
	name        string
	driver      string
	placeholder func(n int) string
	prepareDSN  func(dsn string) (string, error)
	newDialect  func() schema.Dialect
	// singleConn forces one open connection.
	singleConn bool
}

func questionMark(int) string { return "?" }

var dialects = map[string]dialect{}

func register(d dialect) { dialects[d.name] = d }

// Enabled reports whether dbType selects a real journal.
func Enabled(dbType string) bool {
	return dbType != "" && dbType != TypeNone
}

// Journal records runs and their audit entries.
type Journal struct {
	bun     *bun.DB
	dialect dialect
	user    string

	mu    sync.Mutex
	runID string
}

// Open connects to the database, applies pending migrations and returns the
// journal.
func Open(ctx context.Context, dbType, dsn string) (*Journal, error) {
	d, ok := dialects[dbType]
	if !ok {
		return nil, fmt.Errorf("unsupported database type '%s'", dbType)
	}
	dsn, err := d.prepareDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid %s dsn: %w", dbType, err)
	}

	start := time.Now()
	sqlDB, err := sqlOpenFunc(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	configurePool(sqlDB, d)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	dbLogf("db: opened %s driver in %s", d.driver, time.Since(start))

	if err := RunMigrations(ctx, sqlDB, d); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Journal{
		bun:     bun.NewDB(sqlDB, d.newDialect()),
		dialect: d,
		user:    currentUser(),
	}, nil
}

// configurePool applies pool limits. REGVAULT_DB_MAX_OPEN_CONNS and
// REGVAULT_DB_CONN_MAX_LIFETIME_SECONDS override the defaults.
func configurePool(sqlDB *sql.DB, d dialect) {
	const (
		defaultMaxOpenConns    = 10
		defaultConnMaxLifetime = 5 * time.Minute
	)
	maxOpen := envInt("REGVAULT_DB_MAX_OPEN_CONNS", defaultMaxOpenConns)
	lifetime := defaultConnMaxLifetime
	if n := envInt("REGVAULT_DB_CONN_MAX_LIFETIME_SECONDS", -1); n >= 0 {
		lifetime = time.Duration(n) * time.Second
	}
	if d.singleConn {
		// Recycling the only connection would drop an in-memory database.
		maxOpen = 1
		lifetime = 0
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)
	sqlDB.SetConnMaxLifetime(lifetime)
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	if parts := strings.Split(u.Username, `\`); len(parts) > 1 {
		return parts[1]
	}
	return u.Username
}

// Close releases the database connection.
func (j *Journal) Close() error {
	return j.bun.Close()
}
