// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"errors"

	clog "github.com/charmbracelet/log"

	"github.com/toeirei/regvault/internal/model"
)

// Final states recorded for commands that have no phase state machine.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// RunJournal records CLI runs and the audit entries written during them.
type RunJournal interface {
	AuditWriter
	StartRun(ctx context.Context, command, prefix, region string) (*model.Run, error)
	FinishRun(ctx context.Context, run *model.Run, state string, err error) error
}

// Journaled runs fn inside a journal run. fn returns the final state to
// record. A journal that cannot be written is logged and never fails the
// run itself. A nil journal runs fn directly.
func Journaled(ctx context.Context, j RunJournal, logger *clog.Logger, command, prefix, region string, fn func(ctx context.Context) (string, error)) error {
	if j == nil {
		_, err := fn(ctx)
		return err
	}
	if logger == nil {
		logger = clog.Default()
	}
	run, err := j.StartRun(ctx, command, prefix, region)
	if err != nil {
		logger.Warn("run journal unavailable", "err", err)
		_, err := fn(ctx)
		return err
	}
	state, runErr := fn(ctx)
	// The run context may already be cancelled; the journal row still gets
	// its final state.
	if err := j.FinishRun(context.WithoutCancel(ctx), run, state, runErr); err != nil {
		logger.Warn("could not record run result", "run", run.ID, "err", err)
	}
	return runErr
}

// ExportState maps an export result onto a journal state.
func ExportState(err error) string {
	if err != nil {
		return RunFailed
	}
	return RunSucceeded
}

// IsPrecondition reports whether err carries a *PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
