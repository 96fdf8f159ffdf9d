// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"time"

	"github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/schema"
)

func init() {
	register(dialect{
		name:        "mysql",
		driver:      "mysql",
		placeholder: questionMark,
		prepareDSN:  prepareMySQLDSN,
		newDialect:  func() schema.Dialect { return mysqldialect.New() },
	})
}

// prepareMySQLDSN turns on parseTime so DATETIME columns scan into
// time.Time, and stores times as UTC.
func prepareMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}
