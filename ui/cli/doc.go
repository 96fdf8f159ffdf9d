// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.
//
// Package cli implements the command-line interface for Regvault using Cobra.
// It wires configuration, logging, the AWS clients and the run journal, and
// delegates the actual work to the `core` pipelines. CLI code should remain
// thin.
package cli
