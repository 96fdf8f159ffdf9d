// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model holds the exported document types of a registry snapshot and
// the object key layout they are stored under. Field names follow the JSON
// shape of the IoT API so snapshots stay readable with other tooling.
package model
