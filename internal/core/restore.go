// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	clog "github.com/charmbracelet/log"

	"github.com/toeirei/regvault/internal/model"
	"github.com/toeirei/regvault/internal/objstore"
	"github.com/toeirei/regvault/internal/registry"
	"github.com/toeirei/regvault/internal/tasks"
)

// State is the progress of a full restore.
type State int

const (
	StateIdle State = iota
	StatePhase1Running
	StatePhase1Failed
	StatePhase1Succeeded
	StatePhase2Running
	StatePhase2Failed
	StatePhase2Succeeded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePhase1Running:
		return "phase1-running"
	case StatePhase1Failed:
		return "phase1-failed"
	case StatePhase1Succeeded:
		return "phase1-succeeded"
	case StatePhase2Running:
		return "phase2-running"
	case StatePhase2Failed:
		return "phase2-failed"
	case StatePhase2Succeeded:
		return "phase2-succeeded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// RestoreOptions tunes a restore run.
type RestoreOptions struct {
	// MaxWorkers bounds the per-item tasks of each kind; zero is unbounded.
	MaxWorkers int
	// Rewriter maps export-time regions to the restore region. Nil leaves
	// documents untouched.
	Rewriter *registry.RegionRewriter
	Audit    AuditWriter
	Logger   *clog.Logger
}

// Restorer replays a snapshot into a registry.
//
// A full restore runs in two phases separated by a barrier: phase 1 creates
// the resources, phase 2 recreates the links between them from the
// assignment documents. Phase 2 only starts when phase 1 fully succeeded.
// Every create is preceded by an existence check, so rerunning a failed
// restore converges.
type Restorer struct {
	reg     registry.Registry
	store   *objstore.Store
	workers int
	rw      *registry.RegionRewriter
	audit   AuditWriter
	log     *clog.Logger

	mu    sync.Mutex
	state State
}

func NewRestorer(reg registry.Registry, store *objstore.Store, opts RestoreOptions) *Restorer {
	r := &Restorer{
		reg:     reg,
		store:   store,
		workers: opts.MaxWorkers,
		rw:      opts.Rewriter,
		audit:   opts.Audit,
		log:     opts.Logger,
	}
	if r.workers < 0 {
		r.workers = tasks.Unbounded
	}
	if r.audit == nil {
		r.audit = nopAudit{}
	}
	if r.log == nil {
		r.log = clog.Default()
	}
	return r
}

// State reports where the last Restore call got to.
func (r *Restorer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Restorer) setState(s State) {
	r.mu.Lock()
	prev := r.state
	r.state = s
	r.mu.Unlock()
	r.log.Info("restore state", "from", prev, "to", s)
}

// Restore runs both phases. On failure the returned error aggregates every
// failed item of the failing phase; nothing is rolled back.
func (r *Restorer) Restore(ctx context.Context) error {
	start := time.Now()
	r.log.Info("restore started", "location", r.store.Location(), "region", r.rw.Target(), "workers", r.workers)

	r.setState(StatePhase1Running)
	err := tasks.Go(ctx, tasks.Unbounded,
		r.restorePolicies,
		r.restoreCertificates,
		r.restoreThings,
		r.restoreThingGroups,
		r.restoreProvisioningTemplates,
	)
	if err != nil {
		r.setState(StatePhase1Failed)
		r.log.Error("failed to restore resources")
		return fmt.Errorf("restore resources: %w", err)
	}
	r.setState(StatePhase1Succeeded)

	r.setState(StatePhase2Running)
	err = tasks.Go(ctx, tasks.Unbounded,
		r.restorePolicyAssignments,
		r.restorePrincipalAssignments,
		r.restoreGroupMemberships,
	)
	if err != nil {
		r.setState(StatePhase2Failed)
		r.log.Error("failed to restore assignments")
		return fmt.Errorf("restore assignments: %w", err)
	}
	r.setState(StatePhase2Succeeded)
	r.log.Info("restore finished", "duration", time.Since(start))
	return nil
}

// restoreEach runs fn for every document of kind in the snapshot as one
// batch bounded by the worker count.
func restoreEach[T any](ctx context.Context, r *Restorer, kind model.Kind, fn func(context.Context, T) error) error {
	batch, err := objstore.ListAndMap(ctx, r.store, kind.Prefix(), func(_ context.Context, key string, doc T) (tasks.Task[struct{}], error) {
		id := model.IDFromKey(key)
		return tasks.Do(fmt.Sprintf("%s %s", kind, id), func(ctx context.Context) error {
			if err := fn(ctx, doc); err != nil {
				return err
			}
			r.log.Debug("restored", "kind", kind, "id", id)
			return nil
		}), nil
	})
	if err != nil {
		return fmt.Errorf("load %s: %w", kind, err)
	}
	_, err = tasks.Run(ctx, r.workers, batch)
	return err
}

// ensure creates a resource unless it already exists. It reports whether a
// create call was made.
func (r *Restorer) ensure(ctx context.Context, kind model.Kind, id string, create func(context.Context) error) (bool, error) {
	exists, err := registry.Exists(ctx, r.reg, kind, id)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := registry.IgnoreExists(create(ctx)); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Restorer) ensurePolicy(ctx context.Context, p model.Policy) error {
	created, err := r.ensure(ctx, model.KindPolicy, p.PolicyName, func(ctx context.Context) error {
		return r.reg.CreatePolicy(ctx, p.PolicyName, r.rw.Rewrite(p.PolicyDocument))
	})
	if created {
		_ = r.audit.LogAction(ActionCreatePolicy, "policy: "+p.PolicyName)
	}
	return err
}

// ensureCertificate registers c unless a certificate with its id exists.
func (r *Restorer) ensureCertificate(ctx context.Context, c model.Certificate) error {
	created, err := r.ensure(ctx, model.KindCertificate, c.CertificateID, func(ctx context.Context) error {
		_, err := r.reg.RegisterCertificate(ctx, c.CertificatePem)
		return err
	})
	if created {
		_ = r.audit.LogAction(ActionRegisterCertificate, "certificate: "+c.CertificateID)
	}
	return err
}

func (r *Restorer) ensureThingType(ctx context.Context, tt model.ThingType) error {
	created, err := r.ensure(ctx, model.KindThingType, tt.ThingTypeName, func(ctx context.Context) error {
		return r.reg.CreateThingType(ctx, &tt)
	})
	if created {
		_ = r.audit.LogAction(ActionCreateThingType, "thing type: "+tt.ThingTypeName)
	}
	return err
}

func (r *Restorer) ensureThing(ctx context.Context, t model.Thing) error {
	created, err := r.ensure(ctx, model.KindThing, t.ThingName, func(ctx context.Context) error {
		return r.reg.CreateThing(ctx, &t)
	})
	if created {
		_ = r.audit.LogAction(ActionCreateThing, fmt.Sprintf("thing: %s, type: %s", t.ThingName, t.ThingTypeName))
	}
	return err
}

func (r *Restorer) ensureTemplate(ctx context.Context, t model.ProvisioningTemplate) error {
	created, err := r.ensure(ctx, model.KindProvisioningTemplate, t.TemplateName, func(ctx context.Context) error {
		return r.reg.CreateProvisioningTemplate(ctx, &t)
	})
	if created {
		_ = r.audit.LogAction(ActionCreateTemplate, "template: "+t.TemplateName)
	}
	return err
}

// Phase 1 -------------------------------------------------------------------

func (r *Restorer) restorePolicies(ctx context.Context) error {
	return restoreEach(ctx, r, model.KindPolicy, r.ensurePolicy)
}

func (r *Restorer) restoreCertificates(ctx context.Context) error {
	return restoreEach(ctx, r, model.KindCertificate, r.ensureCertificate)
}

// restoreThings restores the thing types first since things reference them.
// Things are attempted even when some types failed; things of a missing
// type fail on their own.
func (r *Restorer) restoreThings(ctx context.Context) error {
	typesErr := restoreEach(ctx, r, model.KindThingType, r.ensureThingType)
	thingsErr := restoreEach(ctx, r, model.KindThing, r.ensureThing)
	return errors.Join(typesErr, thingsErr)
}

func (r *Restorer) loadGroups(ctx context.Context) ([]model.ThingGroup, error) {
	var groups []model.ThingGroup
	if err := r.store.Get(ctx, model.ThingGroupsKey, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// restoreThingGroups walks the groups one at a time through the resolver.
func (r *Restorer) restoreThingGroups(ctx context.Context) error {
	groups, err := r.loadGroups(ctx)
	if err != nil {
		return err
	}
	resolver := NewGroupResolver(r.reg, groups, r.audit, r.log)
	batch := make([]tasks.Task[struct{}], 0, len(groups))
	for _, g := range groups {
		name := g.ThingGroupName
		batch = append(batch, tasks.Do(fmt.Sprintf("%s %s", model.KindThingGroup, name), func(ctx context.Context) error {
			return resolver.Ensure(ctx, name)
		}))
	}
	_, err = tasks.Run(ctx, 1, batch)
	return err
}

func (r *Restorer) restoreProvisioningTemplates(ctx context.Context) error {
	return restoreEach(ctx, r, model.KindProvisioningTemplate, r.ensureTemplate)
}

// Phase 2 -------------------------------------------------------------------

// liveCertificateArn resolves a certificate id to its ARN in the target
// registry. Re-registered certificates keep their id but not their ARN.
func (r *Restorer) liveCertificateArn(ctx context.Context, id string) (string, error) {
	cert, err := r.reg.DescribeCertificate(ctx, id)
	if err != nil {
		return "", fmt.Errorf("resolve certificate %s: %w", id, err)
	}
	return cert.CertificateArn, nil
}

func (r *Restorer) restorePolicyAssignments(ctx context.Context) error {
	var assignments model.PolicyAssignments
	if err := r.store.Get(ctx, model.PolicyAssignmentsKey, &assignments); err != nil {
		return err
	}
	batch := make([]tasks.Task[struct{}], 0, len(assignments))
	for certID, policies := range assignments {
		if len(policies) == 0 {
			continue
		}
		batch = append(batch, tasks.Do("policies of certificate "+certID, func(ctx context.Context) error {
			arn, err := r.liveCertificateArn(ctx, certID)
			if err != nil {
				return err
			}
			var errs []error
			for _, p := range policies {
				if err := r.reg.AttachPolicy(ctx, p.PolicyName, arn); err != nil {
					errs = append(errs, fmt.Errorf("attach policy %s: %w", p.PolicyName, err))
					continue
				}
				_ = r.audit.LogAction(ActionAttachPolicy, fmt.Sprintf("policy: %s, certificate: %s", p.PolicyName, certID))
			}
			return errors.Join(errs...)
		}))
	}
	_, err := tasks.Run(ctx, r.workers, batch)
	return err
}

func (r *Restorer) restorePrincipalAssignments(ctx context.Context) error {
	var assignments model.PrincipalAssignments
	if err := r.store.Get(ctx, model.PrincipalAssignmentsKey, &assignments); err != nil {
		return err
	}
	var batch []tasks.Task[struct{}]
	for thing, arns := range assignments {
		for _, exported := range arns {
			if !model.IsCertificateArn(exported) {
				r.log.Warn("skipping non-certificate principal", "thing", thing, "principal", exported)
				continue
			}
			certID := model.CertificateIDFromArn(exported)
			batch = append(batch, tasks.Do(fmt.Sprintf("principal %s of thing %s", certID, thing), func(ctx context.Context) error {
				arn, err := r.liveCertificateArn(ctx, certID)
				if err != nil {
					return err
				}
				if err := r.reg.AttachThingPrincipal(ctx, thing, arn); err != nil {
					return err
				}
				_ = r.audit.LogAction(ActionAttachPrincipal, fmt.Sprintf("thing: %s, certificate: %s", thing, certID))
				return nil
			}))
		}
	}
	_, err := tasks.Run(ctx, r.workers, batch)
	return err
}

func (r *Restorer) restoreGroupMemberships(ctx context.Context) error {
	groups, err := r.loadGroups(ctx)
	if err != nil {
		return err
	}
	batch := make([]tasks.Task[struct{}], 0, len(groups))
	for _, g := range groups {
		group := g.ThingGroupName
		batch = append(batch, tasks.Do("members of thing group "+group, func(ctx context.Context) error {
			var members model.Membership
			if err := r.store.Get(ctx, model.KindThingGroup.Key(group), &members); err != nil {
				return err
			}
			var errs []error
			for _, thing := range members {
				if err := r.reg.AddThingToThingGroup(ctx, group, thing); err != nil {
					errs = append(errs, fmt.Errorf("add thing %s: %w", thing, err))
					continue
				}
				_ = r.audit.LogAction(ActionAddToGroup, fmt.Sprintf("thing: %s, group: %s", thing, group))
			}
			return errors.Join(errs...)
		}))
	}
	_, err = tasks.Run(ctx, r.workers, batch)
	return err
}
