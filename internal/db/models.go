// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/toeirei/regvault/internal/model"
)

// RunModel maps runs.
type RunModel struct {
	bun.BaseModel `bun:"table:runs"`
	ID            string    `bun:"id,pk"`
	Command       string    `bun:"command"`
	Prefix        string    `bun:"prefix"`
	Region        string    `bun:"region"`
	State         string    `bun:"state"`
	Error         string    `bun:"error,nullzero"`
	StartedAt     time.Time `bun:"started_at"`
	FinishedAt    time.Time `bun:"finished_at,nullzero"`
}

func (m RunModel) toModel() model.Run {
	return model.Run{
		ID:         m.ID,
		Command:    m.Command,
		Prefix:     m.Prefix,
		Region:     m.Region,
		State:      m.State,
		Error:      m.Error,
		StartedAt:  m.StartedAt.UTC(),
		FinishedAt: m.FinishedAt.UTC(),
	}
}

// AuditLogModel maps audit_log.
type AuditLogModel struct {
	bun.BaseModel `bun:"table:audit_log"`
	ID            int       `bun:"id,pk,autoincrement"`
	RunID         string    `bun:"run_id,nullzero"`
	Timestamp     time.Time `bun:"timestamp"`
	Username      string    `bun:"username"`
	Action        string    `bun:"action"`
	Details       string    `bun:"details"`
}

func (m AuditLogModel) toModel() model.AuditLogEntry {
	return model.AuditLogEntry{
		ID:        m.ID,
		RunID:     m.RunID,
		Timestamp: m.Timestamp.UTC(),
		Username:  m.Username,
		Action:    m.Action,
		Details:   m.Details,
	}
}
