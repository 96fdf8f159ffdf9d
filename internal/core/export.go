// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"fmt"
	"time"

	clog "github.com/charmbracelet/log"

	"github.com/toeirei/regvault/internal/model"
	"github.com/toeirei/regvault/internal/objstore"
	"github.com/toeirei/regvault/internal/registry"
	"github.com/toeirei/regvault/internal/tasks"
)

// DefaultExportWorkers is the per-kind worker count of an export.
const DefaultExportWorkers = 1

// ExportOptions tunes an export run.
type ExportOptions struct {
	// MaxWorkers bounds the per-item tasks of each kind. Zero uses
	// DefaultExportWorkers.
	MaxWorkers int
	Logger     *clog.Logger
}

// ExportReport summarizes a finished export.
type ExportReport struct {
	Prefix   string
	Counts   map[model.Kind]int
	Duration time.Duration
}

// Exporter writes a full snapshot of a registry to a store.
type Exporter struct {
	reg     registry.Registry
	store   *objstore.Store
	workers int
	log     *clog.Logger
}

func NewExporter(reg registry.Registry, store *objstore.Store, opts ExportOptions) *Exporter {
	e := &Exporter{reg: reg, store: store, workers: opts.MaxWorkers, log: opts.Logger}
	if e.workers <= 0 {
		e.workers = DefaultExportWorkers
	}
	if e.log == nil {
		e.log = clog.Default()
	}
	return e
}

// Export writes every resource kind as one batch. Kinds do not wait for
// each other and a failing kind does not stop the others; the returned
// error aggregates every failure once all kinds are done. The report counts
// documents written per kind, including kinds that partially failed.
func (e *Exporter) Export(ctx context.Context) (*ExportReport, error) {
	start := time.Now()
	e.log.Info("export started", "location", e.store.Location(), "workers", e.workers)

	kinds := []struct {
		kind model.Kind
		run  func(context.Context) (int, error)
	}{
		{model.KindThing, e.exportThings},
		{model.KindCertificate, e.exportCertificates},
		{model.KindThingGroup, e.exportThingGroups},
		{model.KindThingType, e.exportThingTypes},
		{model.KindPolicy, e.exportPolicies},
		{model.KindProvisioningTemplate, e.exportProvisioningTemplates},
	}
	// Each task writes only its own slot; Run returns after all of them.
	written := make([]int, len(kinds))
	batch := make([]tasks.Task[struct{}], 0, len(kinds))
	for i, k := range kinds {
		batch = append(batch, tasks.Do(string(k.kind), func(ctx context.Context) error {
			n, err := k.run(ctx)
			written[i] = n
			if err != nil {
				e.log.Warn("export of kind failed", "kind", k.kind, "written", n)
				return err
			}
			e.log.Info("exported kind", "kind", k.kind, "count", n)
			return nil
		}))
	}

	_, err := tasks.Run(ctx, tasks.Unbounded, batch)
	report := &ExportReport{
		Prefix:   e.store.Prefix(),
		Counts:   make(map[model.Kind]int, len(kinds)),
		Duration: time.Since(start),
	}
	for i, k := range kinds {
		report.Counts[k.kind] = written[i]
	}
	if err != nil {
		e.log.Error("failed to export data")
		return report, err
	}
	e.log.Info("export finished", "duration", report.Duration)
	return report, nil
}

// eachItem runs fn for every id as a batch bounded by the export worker
// count. Results of succeeded items are returned even when others failed.
func eachItem[R any](ctx context.Context, e *Exporter, kind model.Kind, ids []string, fn func(context.Context, string) (R, error)) ([]R, error) {
	batch := make([]tasks.Task[R], 0, len(ids))
	for _, id := range ids {
		batch = append(batch, tasks.Task[R]{
			Name: fmt.Sprintf("%s %s", kind, id),
			Run: func(ctx context.Context) (R, error) {
				r, err := fn(ctx, id)
				if err == nil {
					e.log.Debug("exported", "kind", kind, "id", id)
				}
				return r, err
			},
		})
	}
	return tasks.Run(ctx, e.workers, batch)
}

type thingPrincipals struct {
	thing      string
	principals []string
}

func (e *Exporter) exportThings(ctx context.Context) (int, error) {
	names, err := e.reg.ListThings(ctx)
	if err != nil {
		return 0, err
	}
	records, batchErr := eachItem(ctx, e, model.KindThing, names, func(ctx context.Context, name string) (thingPrincipals, error) {
		thing, err := e.reg.DescribeThing(ctx, name)
		if err != nil {
			return thingPrincipals{}, err
		}
		if err := e.store.Put(ctx, model.KindThing.Key(name), thing); err != nil {
			return thingPrincipals{}, err
		}
		principals, err := e.reg.ListThingPrincipals(ctx, name)
		if err != nil {
			return thingPrincipals{}, err
		}
		return thingPrincipals{thing: name, principals: principals}, nil
	})

	assignments := make(model.PrincipalAssignments, len(records))
	for _, r := range records {
		assignments[r.thing] = nonNil(r.principals)
	}
	if err := e.store.Put(ctx, model.PrincipalAssignmentsKey, assignments); err != nil {
		return len(records), joinErrs(batchErr, err)
	}
	return len(records), batchErr
}

type certPolicies struct {
	certID   string
	policies []model.PolicyRef
}

func (e *Exporter) exportCertificates(ctx context.Context) (int, error) {
	ids, err := e.reg.ListCertificates(ctx)
	if err != nil {
		return 0, err
	}
	records, batchErr := eachItem(ctx, e, model.KindCertificate, ids, func(ctx context.Context, id string) (certPolicies, error) {
		cert, err := e.reg.DescribeCertificate(ctx, id)
		if err != nil {
			return certPolicies{}, err
		}
		if err := e.store.Put(ctx, model.KindCertificate.Key(id), cert); err != nil {
			return certPolicies{}, err
		}
		policies, err := e.reg.ListAttachedPolicies(ctx, cert.CertificateArn)
		if err != nil {
			return certPolicies{}, err
		}
		return certPolicies{certID: id, policies: policies}, nil
	})

	assignments := make(model.PolicyAssignments, len(records))
	for _, r := range records {
		assignments[r.certID] = nonNil(r.policies)
	}
	if err := e.store.Put(ctx, model.PolicyAssignmentsKey, assignments); err != nil {
		return len(records), joinErrs(batchErr, err)
	}
	return len(records), batchErr
}

// exportThingGroups walks the groups one by one. A failing group is recorded
// and the walk goes on; the description list always holds every group that
// was exported.
func (e *Exporter) exportThingGroups(ctx context.Context) (int, error) {
	names, err := e.reg.ListThingGroups(ctx)
	if err != nil {
		return 0, err
	}
	groups := make([]model.ThingGroup, 0, len(names))
	var failures []tasks.Failure
	for _, name := range names {
		group, err := e.exportThingGroup(ctx, name)
		if err != nil {
			e.log.Warn("thing group export failed", "id", name)
			failures = append(failures, tasks.Failure{Name: fmt.Sprintf("%s %s", model.KindThingGroup, name), Err: err})
			continue
		}
		groups = append(groups, *group)
	}

	var batchErr error
	if len(failures) > 0 {
		batchErr = &tasks.BatchError[model.ThingGroup]{Failures: failures, Succeeded: groups, Total: len(names)}
	}
	if err := e.store.Put(ctx, model.ThingGroupsKey, groups); err != nil {
		return len(groups), joinErrs(batchErr, err)
	}
	return len(groups), batchErr
}

func (e *Exporter) exportThingGroup(ctx context.Context, name string) (*model.ThingGroup, error) {
	group, err := e.reg.DescribeThingGroup(ctx, name)
	if err != nil {
		return nil, err
	}
	members, err := e.reg.ListThingsInThingGroup(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := e.store.Put(ctx, model.KindThingGroup.Key(name), model.Membership(nonNil(members))); err != nil {
		return nil, err
	}
	e.log.Debug("exported", "kind", model.KindThingGroup, "id", name, "members", len(members))
	return group, nil
}

func (e *Exporter) exportThingTypes(ctx context.Context) (int, error) {
	names, err := e.reg.ListThingTypes(ctx)
	if err != nil {
		return 0, err
	}
	done, err := eachItem(ctx, e, model.KindThingType, names, func(ctx context.Context, name string) (struct{}, error) {
		tt, err := e.reg.DescribeThingType(ctx, name)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, e.store.Put(ctx, model.KindThingType.Key(name), tt)
	})
	return len(done), err
}

func (e *Exporter) exportPolicies(ctx context.Context) (int, error) {
	names, err := e.reg.ListPolicies(ctx)
	if err != nil {
		return 0, err
	}
	done, err := eachItem(ctx, e, model.KindPolicy, names, func(ctx context.Context, name string) (struct{}, error) {
		p, err := e.reg.GetPolicy(ctx, name)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, e.store.Put(ctx, model.KindPolicy.Key(name), p)
	})
	return len(done), err
}

func (e *Exporter) exportProvisioningTemplates(ctx context.Context) (int, error) {
	names, err := e.reg.ListProvisioningTemplates(ctx)
	if err != nil {
		return 0, err
	}
	done, err := eachItem(ctx, e, model.KindProvisioningTemplate, names, func(ctx context.Context, name string) (struct{}, error) {
		t, err := e.reg.DescribeProvisioningTemplate(ctx, name)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, e.store.Put(ctx, model.KindProvisioningTemplate.Key(name), t)
	})
	return len(done), err
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func joinErrs(batchErr, err error) error {
	if batchErr == nil {
		return err
	}
	return fmt.Errorf("%w; %w", batchErr, err)
}
