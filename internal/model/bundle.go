// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"encoding/json"
	"time"
)

// BundleSchemaVersion is the current archive layout version.
const BundleSchemaVersion = 1

// Bundle is a whole snapshot packed into one file. It is the offline form of
// a run prefix and is written Zstandard-compressed.
type Bundle struct {
	// SchemaVersion helps in handling layout changes during unarchive.
	SchemaVersion int       `json:"schema_version"`
	Prefix        string    `json:"prefix"`
	CreatedAt     time.Time `json:"created_at"`

	// Documents maps keys relative to the run prefix to their JSON bodies.
	Documents map[string]json.RawMessage `json:"documents"`
}

// SnapshotSummary describes the contents of one run prefix.
type SnapshotSummary struct {
	Prefix               string       `json:"prefix" yaml:"prefix"`
	Counts               map[Kind]int `json:"counts" yaml:"counts"`
	PrincipalAssignments int          `json:"principal_assignments" yaml:"principal_assignments"`
	PolicyAssignments    int          `json:"policy_assignments" yaml:"policy_assignments"`
	RootGroups           []string     `json:"root_groups" yaml:"root_groups"`
}
