// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for Regvault.
//
// Usage:
//
//	go run . [flags]
//	./regvault export --source-region us-east-1 --bucket my-backups
//
// See --help for options.
package main

import (
	"os"

	"github.com/toeirei/regvault/internal/logging"
	"github.com/toeirei/regvault/ui/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		logging.Errorf("%v", err)
		os.Exit(1)
	}
}
