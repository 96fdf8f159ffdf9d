// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

// Package db is the run journal. Every CLI run gets a row in `runs`, and
// every resource a restore creates or links gets a row in `audit_log`.
// Storage goes through bun over SQLite, PostgreSQL or MySQL.
package db // import "github.com/toeirei/regvault/internal/db"
