// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"fmt"

	"github.com/toeirei/regvault/internal/model"
)

// PreconditionError reports that a restore cannot proceed for a resource
// because of the state of the registry or the snapshot, e.g. a thing that
// already exists or a group whose parent is missing from the snapshot.
type PreconditionError struct {
	Kind   model.Kind
	ID     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed for %s %q: %s", e.Kind, e.ID, e.Reason)
}

func precondition(kind model.Kind, id, format string, args ...any) error {
	return &PreconditionError{Kind: kind, ID: id, Reason: fmt.Sprintf(format, args...)}
}
