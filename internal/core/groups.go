// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	clog "github.com/charmbracelet/log"

	"github.com/toeirei/regvault/internal/model"
	"github.com/toeirei/regvault/internal/registry"
	"github.com/toeirei/regvault/util/slicest"
)

// GroupResolver creates thing groups from a snapshot, parents first.
// Groups known to exist are remembered, so each is checked against the
// registry at most once per resolver.
type GroupResolver struct {
	reg      registry.Registry
	snapshot map[string]model.ThingGroup
	audit    AuditWriter
	log      *clog.Logger

	mu    sync.Mutex
	ready map[string]bool
}

// NewGroupResolver returns a resolver over the group descriptions of a
// snapshot (the contents of thing_groups.json).
func NewGroupResolver(reg registry.Registry, groups []model.ThingGroup, audit AuditWriter, logger *clog.Logger) *GroupResolver {
	snapshot := slicest.ToMap(groups, func(g model.ThingGroup) (string, model.ThingGroup) {
		return g.ThingGroupName, g
	})
	if audit == nil {
		audit = nopAudit{}
	}
	if logger == nil {
		logger = clog.Default()
	}
	return &GroupResolver{reg: reg, snapshot: snapshot, audit: audit, log: logger, ready: map[string]bool{}}
}

// Ensure makes sure group name exists, creating it and every missing
// ancestor from the root down. It fails with a *PreconditionError when an
// ancestor that does not exist remotely is missing from the snapshot or the
// snapshot's parent links form a cycle.
func (r *GroupResolver) Ensure(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// chain collects the missing groups from name up to the first ancestor
	// that exists or a root.
	var chain []string
	onChain := map[string]bool{}
	for cur := name; cur != ""; {
		if r.ready[cur] {
			break
		}
		if onChain[cur] {
			return precondition(model.KindThingGroup, name, "parent cycle %s", strings.Join(append(chain, cur), " -> "))
		}
		exists, err := registry.Exists(ctx, r.reg, model.KindThingGroup, cur)
		if err != nil {
			return err
		}
		if exists {
			r.ready[cur] = true
			break
		}
		g, ok := r.snapshot[cur]
		if !ok {
			if cur == name {
				return precondition(model.KindThingGroup, name, "not in snapshot")
			}
			return precondition(model.KindThingGroup, name, "ancestor %q is neither in the registry nor in the snapshot", cur)
		}
		onChain[cur] = true
		chain = append(chain, cur)
		cur = g.Parent()
	}

	for i := len(chain) - 1; i >= 0; i-- {
		g := r.snapshot[chain[i]]
		if err := registry.IgnoreExists(r.reg.CreateThingGroup(ctx, &g)); err != nil {
			return fmt.Errorf("create thing group %s: %w", g.ThingGroupName, err)
		}
		r.ready[g.ThingGroupName] = true
		_ = r.audit.LogAction(ActionCreateThingGroup, fmt.Sprintf("group: %s, parent: %s", g.ThingGroupName, g.Parent()))
		r.log.Debug("restored", "kind", model.KindThingGroup, "id", g.ThingGroupName, "parent", g.Parent())
	}
	return nil
}
