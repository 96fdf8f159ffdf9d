package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toeirei/regvault/internal/model"
)

type fakeJournal struct {
	recordingAudit
	startErr  error
	finishErr error
	started   []string
	finished  map[string]string
	ctxErr    error
}

func (j *fakeJournal) StartRun(_ context.Context, command, prefix, region string) (*model.Run, error) {
	if j.startErr != nil {
		return nil, j.startErr
	}
	j.started = append(j.started, command+" "+prefix+" "+region)
	return &model.Run{ID: "run-" + command, Command: command, StartedAt: time.Now()}, nil
}

func (j *fakeJournal) FinishRun(ctx context.Context, run *model.Run, state string, _ error) error {
	j.ctxErr = ctx.Err()
	if j.finished == nil {
		j.finished = map[string]string{}
	}
	j.finished[run.ID] = state
	return j.finishErr
}

func TestJournaled_RecordsFinalState(t *testing.T) {
	j := &fakeJournal{}
	boom := errors.New("boom")

	err := Journaled(context.Background(), j, quietLogger(), "restore", "2024/05/01", "eu-west-1", func(context.Context) (string, error) {
		return StatePhase1Failed.String(), boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"restore 2024/05/01 eu-west-1"}, j.started)
	assert.Equal(t, "phase1-failed", j.finished["run-restore"])
}

func TestJournaled_FinishesAfterCancel(t *testing.T) {
	j := &fakeJournal{}
	ctx, cancel := context.WithCancel(context.Background())

	err := Journaled(ctx, j, quietLogger(), "export", "p", "us-east-1", func(context.Context) (string, error) {
		cancel()
		return RunFailed, context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, j.ctxErr, "the journal must be written with a live context")
	assert.Equal(t, RunFailed, j.finished["run-export"])
}

func TestJournaled_JournalFailuresDoNotFailTheRun(t *testing.T) {
	calls := 0
	fn := func(context.Context) (string, error) {
		calls++
		return RunSucceeded, nil
	}

	require.NoError(t, Journaled(context.Background(), &fakeJournal{startErr: errors.New("locked")}, quietLogger(), "export", "p", "r", fn))
	require.NoError(t, Journaled(context.Background(), &fakeJournal{finishErr: errors.New("gone")}, quietLogger(), "export", "p", "r", fn))
	require.NoError(t, Journaled(context.Background(), nil, nil, "export", "p", "r", fn))
	assert.Equal(t, 3, calls)
}

func TestExportStateAndIsPrecondition(t *testing.T) {
	assert.Equal(t, RunSucceeded, ExportState(nil))
	assert.Equal(t, RunFailed, ExportState(errors.New("x")))

	wrapped := errors.Join(errors.New("other"), precondition(model.KindThing, "dev-1", "already exists"))
	assert.True(t, IsPrecondition(wrapped))
	assert.False(t, IsPrecondition(errors.New("plain")))
}
