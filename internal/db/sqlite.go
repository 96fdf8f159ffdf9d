// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"strings"

	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

func init() {
	register(dialect{
		name:        "sqlite",
		driver:      "sqlite",
		placeholder: questionMark,
		prepareDSN:  prepareSqliteDSN,
		newDialect:  func() schema.Dialect { return sqlitedialect.New() },
		// Restore workers log concurrently; SQLite allows one writer and an
		// in-memory database exists per connection.
		singleConn: true,
	})
}

// prepareSqliteDSN adds a busy timeout to file databases.
func prepareSqliteDSN(dsn string) (string, error) {
	if dsn == "" {
		dsn = "./regvault.db"
	}
	if dsn == ":memory:" || strings.Contains(dsn, "_pragma=busy_timeout") {
		return dsn, nil
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)", nil
}
