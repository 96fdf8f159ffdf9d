// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/toeirei/regvault/internal/model"
	"github.com/toeirei/regvault/util/slicest"
)

// RunStateRunning marks a run that has not finished yet.
const RunStateRunning = "running"

// ErrNoRun is returned when a run id is not in the journal.
var ErrNoRun = errors.New("run not found")

// StartRun inserts a running row and makes it the run that later LogAction
// calls are attributed to.
func (j *Journal) StartRun(ctx context.Context, command, prefix, region string) (*model.Run, error) {
	m := RunModel{
		ID:        uuid.NewString(),
		Command:   command,
		Prefix:    prefix,
		Region:    region,
		State:     RunStateRunning,
		StartedAt: time.Now().UTC(),
	}
	if _, err := j.bun.NewInsert().Model(&m).Exec(ctx); err != nil {
		return nil, MapDBError(err)
	}
	j.mu.Lock()
	j.runID = m.ID
	j.mu.Unlock()
	dbLogf("db: started run %s (%s)", m.ID, command)
	run := m.toModel()
	return &run, nil
}

// FinishRun stores the final state and error of run.
func (j *Journal) FinishRun(ctx context.Context, run *model.Run, state string, runErr error) error {
	run.State = state
	run.FinishedAt = time.Now().UTC()
	run.Error = ""
	if runErr != nil {
		run.Error = runErr.Error()
	}
	m := RunModel{ID: run.ID, State: run.State, Error: run.Error, FinishedAt: run.FinishedAt}
	res, err := j.bun.NewUpdate().Model(&m).Column("state", "error", "finished_at").WherePK().Exec(ctx)
	if err != nil {
		return MapDBError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNoRun
	}
	return nil
}

// LogAction writes an audit entry for the current run.
func (j *Journal) LogAction(action, details string) error {
	j.mu.Lock()
	runID := j.runID
	j.mu.Unlock()

	m := AuditLogModel{
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Username:  j.user,
		Action:    action,
		Details:   details,
	}
	_, err := j.bun.NewInsert().Model(&m).Exec(context.Background())
	return MapDBError(err)
}

// History returns the most recent runs, newest first. limit <= 0 returns all.
func (j *Journal) History(ctx context.Context, limit int) ([]model.Run, error) {
	var rows []RunModel
	q := j.bun.NewSelect().Model(&rows).OrderExpr("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return slicest.Map(rows, RunModel.toModel), nil
}

// AuditEntries returns the audit entries of one run in insertion order.
func (j *Journal) AuditEntries(ctx context.Context, runID string) ([]model.AuditLogEntry, error) {
	var rows []AuditLogModel
	if err := j.bun.NewSelect().Model(&rows).Where("run_id = ?", runID).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return slicest.Map(rows, AuditLogModel.toModel), nil
}
