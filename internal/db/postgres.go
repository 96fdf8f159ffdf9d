// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/schema"
)

func init() {
	register(dialect{
		name: "postgres",
		// The pgx stdlib registers driver name "pgx".
		driver:      "pgx",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		prepareDSN:  preparePostgresDSN,
		newDialect:  func() schema.Dialect { return pgdialect.New() },
	})
}

// preparePostgresDSN validates the connection string early so a typo is
// reported before any work starts.
func preparePostgresDSN(dsn string) (string, error) {
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return "", err
	}
	return dsn, nil
}
