// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/toeirei/regvault/internal/model"
	"github.com/toeirei/regvault/internal/objstore"
	"github.com/toeirei/regvault/internal/registry"
	"github.com/toeirei/regvault/util/slicest"
)

// RestoreThing restores one thing and everything it depends on: its type,
// its certificates with their policies and attachments, and its group
// memberships including missing ancestor groups. It runs sequentially.
//
// If the thing already exists it returns a *PreconditionError before any
// create or attach call is made.
func (r *Restorer) RestoreThing(ctx context.Context, name string) error {
	exists, err := registry.Exists(ctx, r.reg, model.KindThing, name)
	if err != nil {
		return err
	}
	if exists {
		return precondition(model.KindThing, name, "already exists in the registry")
	}

	var thing model.Thing
	if err := r.store.Get(ctx, model.KindThing.Key(name), &thing); err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			return precondition(model.KindThing, name, "not in snapshot %s", r.store.Location())
		}
		return err
	}
	log := r.log.With("thing", name)

	if thing.ThingTypeName != "" {
		var tt model.ThingType
		if err := r.store.Get(ctx, model.KindThingType.Key(thing.ThingTypeName), &tt); err != nil {
			return fmt.Errorf("load thing type %s: %w", thing.ThingTypeName, err)
		}
		if err := r.ensureThingType(ctx, tt); err != nil {
			return err
		}
	}
	if err := r.ensureThing(ctx, thing); err != nil {
		return err
	}
	log.Info("thing created")

	if err := r.restoreThingCertificates(ctx, name); err != nil {
		return err
	}
	if err := r.restoreThingMemberships(ctx, name); err != nil {
		return err
	}
	log.Info("thing restored")
	return nil
}

func (r *Restorer) restoreThingCertificates(ctx context.Context, thing string) error {
	var principals model.PrincipalAssignments
	if err := r.store.Get(ctx, model.PrincipalAssignmentsKey, &principals); err != nil {
		return err
	}
	var policies model.PolicyAssignments
	if err := r.store.Get(ctx, model.PolicyAssignmentsKey, &policies); err != nil {
		return err
	}

	for _, exported := range principals[thing] {
		if !model.IsCertificateArn(exported) {
			r.log.Warn("skipping non-certificate principal", "thing", thing, "principal", exported)
			continue
		}
		certID := model.CertificateIDFromArn(exported)
		var cert model.Certificate
		if err := r.store.Get(ctx, model.KindCertificate.Key(certID), &cert); err != nil {
			return fmt.Errorf("load certificate %s: %w", certID, err)
		}
		if err := r.ensureCertificate(ctx, cert); err != nil {
			return err
		}
		arn, err := r.liveCertificateArn(ctx, certID)
		if err != nil {
			return err
		}

		for _, ref := range policies[certID] {
			if err := r.ensureAttachedPolicy(ctx, ref.PolicyName, certID, arn); err != nil {
				return err
			}
		}

		attached, err := r.reg.ListThingPrincipals(ctx, thing)
		if err != nil {
			return err
		}
		if !slicest.Contains(attached, arn) {
			if err := r.reg.AttachThingPrincipal(ctx, thing, arn); err != nil {
				return fmt.Errorf("attach certificate %s to %s: %w", certID, thing, err)
			}
			_ = r.audit.LogAction(ActionAttachPrincipal, fmt.Sprintf("thing: %s, certificate: %s", thing, certID))
		}
	}
	return nil
}

func (r *Restorer) ensureAttachedPolicy(ctx context.Context, policyName, certID, certArn string) error {
	exists, err := registry.Exists(ctx, r.reg, model.KindPolicy, policyName)
	if err != nil {
		return err
	}
	if !exists {
		var p model.Policy
		if err := r.store.Get(ctx, model.KindPolicy.Key(policyName), &p); err != nil {
			return fmt.Errorf("load policy %s: %w", policyName, err)
		}
		if err := r.ensurePolicy(ctx, p); err != nil {
			return err
		}
	}

	attached, err := r.reg.ListAttachedPolicies(ctx, certArn)
	if err != nil {
		return err
	}
	if slicest.ContainsFunc(attached, func(p model.PolicyRef) bool { return p.PolicyName == policyName }) {
		return nil
	}
	if err := r.reg.AttachPolicy(ctx, policyName, certArn); err != nil {
		return fmt.Errorf("attach policy %s: %w", policyName, err)
	}
	_ = r.audit.LogAction(ActionAttachPolicy, fmt.Sprintf("policy: %s, certificate: %s", policyName, certID))
	return nil
}

// restoreThingMemberships scans every group membership document of the
// snapshot and re-adds the thing to the groups that list it.
func (r *Restorer) restoreThingMemberships(ctx context.Context, thing string) error {
	groups, err := r.loadGroups(ctx)
	if err != nil {
		return err
	}
	resolver := NewGroupResolver(r.reg, groups, r.audit, r.log)
	for _, g := range groups {
		group := g.ThingGroupName
		var members model.Membership
		if err := r.store.Get(ctx, model.KindThingGroup.Key(group), &members); err != nil {
			return err
		}
		if !members.Contains(thing) {
			continue
		}
		if err := resolver.Ensure(ctx, group); err != nil {
			return err
		}
		current, err := r.reg.ListThingsInThingGroup(ctx, group)
		if err != nil {
			return err
		}
		if slicest.Contains(current, thing) {
			continue
		}
		if err := r.reg.AddThingToThingGroup(ctx, group, thing); err != nil {
			return fmt.Errorf("add %s to group %s: %w", thing, group, err)
		}
		_ = r.audit.LogAction(ActionAddToGroup, fmt.Sprintf("thing: %s, group: %s", thing, group))
	}
	return nil
}
