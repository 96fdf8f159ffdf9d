// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

// Package tasks runs batches of independent units of work concurrently.
//
// A batch never fails fast: every task runs to completion, successful results
// are kept, and all failures are reported together as a single *BatchError
// once the last task has returned.
package tasks

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Unbounded lets every task of a batch run at the same time.
const Unbounded = 0

// Task is a named unit of work producing a T.
type Task[T any] struct {
	// Name identifies the task in failure messages, e.g. "thing sensor-1".
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Func is a unit of work without a result.
type Func func(ctx context.Context) error

// Failure is the error of a single task inside a batch.
type Failure struct {
	Name string
	Err  error
}

func (f Failure) Error() string {
	if f.Name == "" {
		return f.Err.Error()
	}
	return fmt.Sprintf("%s: %v", f.Name, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// BatchError is returned when one or more tasks of a batch failed. It keeps
// the results of the tasks that succeeded so callers can still use them.
type BatchError[T any] struct {
	Failures  []Failure
	Succeeded []T
	Total     int
}

func (e *BatchError[T]) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("%d of %d tasks failed:\n%s", len(e.Failures), e.Total, strings.Join(msgs, "\n"))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *BatchError[T]) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f)
	}
	return out
}

type outcome[T any] struct {
	value T
	err   error
}

// Run executes all tasks with at most limit running at once (limit <= 0 means
// no bound) and waits for every one of them. Successful results are returned
// in submission order. If any task failed the returned error is a
// *BatchError[T] and the returned slice still holds the successes.
func Run[T any](ctx context.Context, limit int, tasks []Task[T]) ([]T, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	outcomes := make([]outcome[T], len(tasks))

	// A plain Group, not WithContext: a failing task must not cancel its siblings.
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, t := range tasks {
		g.Go(func() error {
			v, err := runOne(ctx, t)
			outcomes[i] = outcome[T]{value: v, err: err}
			return nil
		})
	}
	_ = g.Wait()

	results := make([]T, 0, len(tasks))
	var failures []Failure
	for i, o := range outcomes {
		if o.err != nil {
			failures = append(failures, Failure{Name: tasks[i].Name, Err: o.err})
			continue
		}
		results = append(results, o.value)
	}
	if len(failures) > 0 {
		return results, &BatchError[T]{Failures: failures, Succeeded: results, Total: len(tasks)}
	}
	return results, nil
}

// Go runs result-less functions as one batch. The returned error, if any, is a
// *BatchError[struct{}].
func Go(ctx context.Context, limit int, fns ...Func) error {
	batch := make([]Task[struct{}], 0, len(fns))
	for _, fn := range fns {
		batch = append(batch, Do("", fn))
	}
	_, err := Run(ctx, limit, batch)
	return err
}

// Do wraps fn as a named task without a result.
func Do(name string, fn Func) Task[struct{}] {
	return Task[struct{}]{
		Name: name,
		Run: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx)
		},
	}
}

func runOne[T any](ctx context.Context, t Task[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return t.Run(ctx)
}
