// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

// Package registry defines the device-registry facade used by the export and
// restore pipelines, together with its AWS IoT implementation. Keep the
// interface small and typed: every method is one remote call (pagination is
// hidden inside the List methods).
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/toeirei/regvault/internal/model"
)

var (
	// ErrNotFound reports that the queried resource does not exist. It is an
	// existence signal, not a failure.
	ErrNotFound = errors.New("resource not found")
	// ErrAlreadyExists is returned by create calls for resources that are
	// already present. Restore treats it as converged.
	ErrAlreadyExists = errors.New("resource already exists")
)

// Registry is the set of registry operations the pipelines depend on.
// Implementations must be safe for concurrent use.
type Registry interface {
	ListThings(ctx context.Context) ([]string, error)
	DescribeThing(ctx context.Context, name string) (*model.Thing, error)
	CreateThing(ctx context.Context, thing *model.Thing) error
	ListThingPrincipals(ctx context.Context, thing string) ([]string, error)
	AttachThingPrincipal(ctx context.Context, thing, principalArn string) error

	ListCertificates(ctx context.Context) ([]string, error)
	DescribeCertificate(ctx context.Context, id string) (*model.Certificate, error)
	// RegisterCertificate registers an ACTIVE certificate without a CA and
	// returns its ARN in the current region.
	RegisterCertificate(ctx context.Context, pem string) (string, error)
	ListAttachedPolicies(ctx context.Context, target string) ([]model.PolicyRef, error)
	AttachPolicy(ctx context.Context, policyName, target string) error

	ListPolicies(ctx context.Context) ([]string, error)
	GetPolicy(ctx context.Context, name string) (*model.Policy, error)
	CreatePolicy(ctx context.Context, name, document string) error

	ListThingTypes(ctx context.Context) ([]string, error)
	DescribeThingType(ctx context.Context, name string) (*model.ThingType, error)
	CreateThingType(ctx context.Context, thingType *model.ThingType) error

	ListThingGroups(ctx context.Context) ([]string, error)
	DescribeThingGroup(ctx context.Context, name string) (*model.ThingGroup, error)
	// CreateThingGroup creates the group under group.Parent(), which must exist.
	CreateThingGroup(ctx context.Context, group *model.ThingGroup) error
	ListThingsInThingGroup(ctx context.Context, group string) ([]string, error)
	AddThingToThingGroup(ctx context.Context, group, thing string) error

	ListProvisioningTemplates(ctx context.Context) ([]string, error)
	DescribeProvisioningTemplate(ctx context.Context, name string) (*model.ProvisioningTemplate, error)
	CreateProvisioningTemplate(ctx context.Context, template *model.ProvisioningTemplate) error
}

// Exists reports whether the resource id of the given kind exists. A not-found
// answer is (false, nil); any other failure is returned.
func Exists(ctx context.Context, r Registry, kind model.Kind, id string) (bool, error) {
	var err error
	switch kind {
	case model.KindThing:
		_, err = r.DescribeThing(ctx, id)
	case model.KindCertificate:
		_, err = r.DescribeCertificate(ctx, id)
	case model.KindPolicy:
		_, err = r.GetPolicy(ctx, id)
	case model.KindThingType:
		_, err = r.DescribeThingType(ctx, id)
	case model.KindThingGroup:
		_, err = r.DescribeThingGroup(ctx, id)
	case model.KindProvisioningTemplate:
		_, err = r.DescribeProvisioningTemplate(ctx, id)
	default:
		return false, fmt.Errorf("unknown resource kind %q", kind)
	}
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("check %s %s: %w", kind, id, err)
}

// IgnoreExists maps ErrAlreadyExists to nil.
func IgnoreExists(err error) error {
	if errors.Is(err, ErrAlreadyExists) {
		return nil
	}
	return err
}
