// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

// Package registrytest provides an in-memory registry.Registry for tests.
package registrytest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/toeirei/regvault/internal/model"
	"github.com/toeirei/regvault/internal/registry"
	"github.com/toeirei/regvault/util/mapst"
)

// Account is the account id used in generated ARNs.
const Account = "123456789012"

// Fake is an in-memory registry. It is safe for concurrent use and records
// every mutating call as "Op:arg[:arg]" in the order they happened.
type Fake struct {
	Region string

	mu           sync.Mutex
	things       map[string]model.Thing
	principals   map[string][]string
	certs        map[string]model.Certificate
	certPolicies map[string][]model.PolicyRef
	policies     map[string]model.Policy
	thingTypes   map[string]model.ThingType
	groups       map[string]model.ThingGroup
	members      map[string][]string
	templates    map[string]model.ProvisioningTemplate

	calls []string
	fail  map[string]error
}

var _ registry.Registry = (*Fake)(nil)

// New returns an empty registry in region.
func New(region string) *Fake {
	return &Fake{
		Region:       region,
		things:       map[string]model.Thing{},
		principals:   map[string][]string{},
		certs:        map[string]model.Certificate{},
		certPolicies: map[string][]model.PolicyRef{},
		policies:     map[string]model.Policy{},
		thingTypes:   map[string]model.ThingType{},
		groups:       map[string]model.ThingGroup{},
		members:      map[string][]string{},
		templates:    map[string]model.ProvisioningTemplate{},
		fail:         map[string]error{},
	}
}

// FailOn makes the call identified by op (as it appears in Calls, or the
// read form "DescribeThing:x") return err.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

// Calls returns the mutating calls recorded so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallsWithPrefix returns the recorded calls that start with prefix.
func (f *Fake) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// CertificateArn is the ARN the fake assigns to certificate id.
func (f *Fake) CertificateArn(id string) string {
	return fmt.Sprintf("arn:aws:iot:%s:%s:cert/%s", f.Region, Account, id)
}

// CertificateIDForPem is the id the fake derives for a PEM body.
func CertificateIDForPem(pem string) string {
	sum := sha256.Sum256([]byte(pem))
	return hex.EncodeToString(sum[:])
}

func (f *Fake) check(op string) error {
	if err, ok := f.fail[op]; ok {
		return err
	}
	return nil
}

// record logs a mutating call. Callers hold f.mu.
func (f *Fake) record(op string) error {
	if err := f.check(op); err != nil {
		return err
	}
	f.calls = append(f.calls, op)
	return nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, registry.ErrNotFound)
}

func exists(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, registry.ErrAlreadyExists)
}

// Seeding helpers. They bypass the call log.

// PutThing stores a thing with the given certificate ARNs attached.
func (f *Fake) PutThing(t model.Thing, principals ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ThingArn == "" {
		t.ThingArn = fmt.Sprintf("arn:aws:iot:%s:%s:thing/%s", f.Region, Account, t.ThingName)
	}
	f.things[t.ThingName] = t
	if len(principals) > 0 {
		f.principals[t.ThingName] = append([]string(nil), principals...)
	}
}

// PutCertificate stores a certificate with the given policies attached.
func (f *Fake) PutCertificate(c model.Certificate, policies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.CertificateArn == "" {
		c.CertificateArn = f.CertificateArn(c.CertificateID)
	}
	f.certs[c.CertificateID] = c
	for _, p := range policies {
		f.certPolicies[c.CertificateID] = append(f.certPolicies[c.CertificateID], model.PolicyRef{PolicyName: p})
	}
}

func (f *Fake) PutPolicy(p model.Policy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policies[p.PolicyName] = p
}

func (f *Fake) PutThingType(tt model.ThingType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.thingTypes[tt.ThingTypeName] = tt
}

// PutThingGroup stores a group and its members.
func (f *Fake) PutThingGroup(g model.ThingGroup, members ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[g.ThingGroupName] = g
	f.members[g.ThingGroupName] = append([]string(nil), members...)
}

func (f *Fake) PutProvisioningTemplate(t model.ProvisioningTemplate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates[t.TemplateName] = t
}

// Inspection helpers.

func (f *Fake) HasThing(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.things[name]
	return ok
}

func (f *Fake) Policy(name string) (model.Policy, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.policies[name]
	return p, ok
}

func (f *Fake) Members(group string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.members[group]...)
}

// Count returns the number of stored resources of kind.
func (f *Fake) Count(kind model.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch kind {
	case model.KindThing:
		return len(f.things)
	case model.KindCertificate:
		return len(f.certs)
	case model.KindPolicy:
		return len(f.policies)
	case model.KindThingType:
		return len(f.thingTypes)
	case model.KindThingGroup:
		return len(f.groups)
	case model.KindProvisioningTemplate:
		return len(f.templates)
	}
	return 0
}

// Things ---------------------------------------------------------------------

func (f *Fake) ListThings(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("ListThings"); err != nil {
		return nil, err
	}
	return mapst.SortedKeys(f.things), nil
}

func (f *Fake) DescribeThing(_ context.Context, name string) (*model.Thing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("DescribeThing:" + name); err != nil {
		return nil, err
	}
	t, ok := f.things[name]
	if !ok {
		return nil, notFound("thing", name)
	}
	return &t, nil
}

func (f *Fake) CreateThing(_ context.Context, thing *model.Thing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateThing:" + thing.ThingName); err != nil {
		return err
	}
	if _, ok := f.things[thing.ThingName]; ok {
		return exists("thing", thing.ThingName)
	}
	if thing.ThingTypeName != "" {
		if _, ok := f.thingTypes[thing.ThingTypeName]; !ok {
			return notFound("thing type", thing.ThingTypeName)
		}
	}
	f.things[thing.ThingName] = model.Thing{
		ThingName:     thing.ThingName,
		ThingArn:      fmt.Sprintf("arn:aws:iot:%s:%s:thing/%s", f.Region, Account, thing.ThingName),
		ThingTypeName: thing.ThingTypeName,
		Attributes:    thing.Attributes,
	}
	return nil
}

func (f *Fake) ListThingPrincipals(_ context.Context, thing string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("ListThingPrincipals:" + thing); err != nil {
		return nil, err
	}
	if _, ok := f.things[thing]; !ok {
		return nil, notFound("thing", thing)
	}
	return append([]string(nil), f.principals[thing]...), nil
}

func (f *Fake) AttachThingPrincipal(_ context.Context, thing, principalArn string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AttachThingPrincipal:" + thing + ":" + principalArn); err != nil {
		return err
	}
	if _, ok := f.things[thing]; !ok {
		return notFound("thing", thing)
	}
	if _, ok := f.certs[model.CertificateIDFromArn(principalArn)]; !ok {
		return notFound("certificate", principalArn)
	}
	for _, p := range f.principals[thing] {
		if p == principalArn {
			return nil
		}
	}
	f.principals[thing] = append(f.principals[thing], principalArn)
	return nil
}

// Certificates ---------------------------------------------------------------

func (f *Fake) ListCertificates(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("ListCertificates"); err != nil {
		return nil, err
	}
	return mapst.SortedKeys(f.certs), nil
}

func (f *Fake) DescribeCertificate(_ context.Context, id string) (*model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("DescribeCertificate:" + id); err != nil {
		return nil, err
	}
	c, ok := f.certs[id]
	if !ok {
		return nil, notFound("certificate", id)
	}
	return &c, nil
}

// RegisterCertificate derives the certificate id from the PEM body, so the
// same PEM always maps to the same id in every region.
func (f *Fake) RegisterCertificate(_ context.Context, pem string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := CertificateIDForPem(pem)
	if err := f.record("RegisterCertificate:" + id); err != nil {
		return "", err
	}
	if _, ok := f.certs[id]; ok {
		return "", exists("certificate", id)
	}
	arn := f.CertificateArn(id)
	f.certs[id] = model.Certificate{CertificateID: id, CertificateArn: arn, CertificatePem: pem, Status: "ACTIVE"}
	return arn, nil
}

func (f *Fake) ListAttachedPolicies(_ context.Context, target string) ([]model.PolicyRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("ListAttachedPolicies:" + target); err != nil {
		return nil, err
	}
	id := model.CertificateIDFromArn(target)
	if _, ok := f.certs[id]; !ok {
		return nil, notFound("certificate", target)
	}
	return append([]model.PolicyRef(nil), f.certPolicies[id]...), nil
}

func (f *Fake) AttachPolicy(_ context.Context, policyName, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AttachPolicy:" + policyName + ":" + target); err != nil {
		return err
	}
	p, ok := f.policies[policyName]
	if !ok {
		return notFound("policy", policyName)
	}
	id := model.CertificateIDFromArn(target)
	c, ok := f.certs[id]
	if !ok || c.CertificateArn != target {
		return notFound("certificate", target)
	}
	for _, ref := range f.certPolicies[id] {
		if ref.PolicyName == policyName {
			return nil
		}
	}
	f.certPolicies[id] = append(f.certPolicies[id], model.PolicyRef{PolicyName: policyName, PolicyArn: p.PolicyArn})
	return nil
}

// Policies -------------------------------------------------------------------

func (f *Fake) ListPolicies(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("ListPolicies"); err != nil {
		return nil, err
	}
	return mapst.SortedKeys(f.policies), nil
}

func (f *Fake) GetPolicy(_ context.Context, name string) (*model.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("GetPolicy:" + name); err != nil {
		return nil, err
	}
	p, ok := f.policies[name]
	if !ok {
		return nil, notFound("policy", name)
	}
	return &p, nil
}

func (f *Fake) CreatePolicy(_ context.Context, name, document string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreatePolicy:" + name); err != nil {
		return err
	}
	if _, ok := f.policies[name]; ok {
		return exists("policy", name)
	}
	f.policies[name] = model.Policy{
		PolicyName:       name,
		PolicyArn:        fmt.Sprintf("arn:aws:iot:%s:%s:policy/%s", f.Region, Account, name),
		PolicyDocument:   document,
		DefaultVersionID: "1",
	}
	return nil
}

// Thing types ----------------------------------------------------------------

func (f *Fake) ListThingTypes(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("ListThingTypes"); err != nil {
		return nil, err
	}
	return mapst.SortedKeys(f.thingTypes), nil
}

func (f *Fake) DescribeThingType(_ context.Context, name string) (*model.ThingType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("DescribeThingType:" + name); err != nil {
		return nil, err
	}
	tt, ok := f.thingTypes[name]
	if !ok {
		return nil, notFound("thing type", name)
	}
	return &tt, nil
}

func (f *Fake) CreateThingType(_ context.Context, thingType *model.ThingType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateThingType:" + thingType.ThingTypeName); err != nil {
		return err
	}
	if _, ok := f.thingTypes[thingType.ThingTypeName]; ok {
		return exists("thing type", thingType.ThingTypeName)
	}
	f.thingTypes[thingType.ThingTypeName] = model.ThingType{
		ThingTypeName:       thingType.ThingTypeName,
		ThingTypeProperties: thingType.ThingTypeProperties,
	}
	return nil
}

// Thing groups ---------------------------------------------------------------

func (f *Fake) ListThingGroups(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("ListThingGroups"); err != nil {
		return nil, err
	}
	return mapst.SortedKeys(f.groups), nil
}

func (f *Fake) DescribeThingGroup(_ context.Context, name string) (*model.ThingGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("DescribeThingGroup:" + name); err != nil {
		return nil, err
	}
	g, ok := f.groups[name]
	if !ok {
		return nil, notFound("thing group", name)
	}
	return &g, nil
}

func (f *Fake) CreateThingGroup(_ context.Context, group *model.ThingGroup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateThingGroup:" + group.ThingGroupName); err != nil {
		return err
	}
	if _, ok := f.groups[group.ThingGroupName]; ok {
		return exists("thing group", group.ThingGroupName)
	}
	if parent := group.Parent(); parent != "" {
		if _, ok := f.groups[parent]; !ok {
			return notFound("thing group", parent)
		}
	}
	f.groups[group.ThingGroupName] = model.ThingGroup{
		ThingGroupName:       group.ThingGroupName,
		ThingGroupProperties: group.ThingGroupProperties,
		ThingGroupMetadata:   model.ThingGroupMetadata{ParentGroupName: group.Parent()},
	}
	return nil
}

func (f *Fake) ListThingsInThingGroup(_ context.Context, group string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("ListThingsInThingGroup:" + group); err != nil {
		return nil, err
	}
	if _, ok := f.groups[group]; !ok {
		return nil, notFound("thing group", group)
	}
	return append([]string(nil), f.members[group]...), nil
}

func (f *Fake) AddThingToThingGroup(_ context.Context, group, thing string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AddThingToThingGroup:" + group + ":" + thing); err != nil {
		return err
	}
	if _, ok := f.groups[group]; !ok {
		return notFound("thing group", group)
	}
	if _, ok := f.things[thing]; !ok {
		return notFound("thing", thing)
	}
	for _, m := range f.members[group] {
		if m == thing {
			return nil
		}
	}
	f.members[group] = append(f.members[group], thing)
	return nil
}

// Provisioning templates -----------------------------------------------------

func (f *Fake) ListProvisioningTemplates(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("ListProvisioningTemplates"); err != nil {
		return nil, err
	}
	return mapst.SortedKeys(f.templates), nil
}

func (f *Fake) DescribeProvisioningTemplate(_ context.Context, name string) (*model.ProvisioningTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("DescribeProvisioningTemplate:" + name); err != nil {
		return nil, err
	}
	t, ok := f.templates[name]
	if !ok {
		return nil, notFound("provisioning template", name)
	}
	return &t, nil
}

func (f *Fake) CreateProvisioningTemplate(_ context.Context, template *model.ProvisioningTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateProvisioningTemplate:" + template.TemplateName); err != nil {
		return err
	}
	if _, ok := f.templates[template.TemplateName]; ok {
		return exists("provisioning template", template.TemplateName)
	}
	t := *template
	t.TemplateArn = fmt.Sprintf("arn:aws:iot:%s:%s:provisioningtemplate/%s", f.Region, Account, template.TemplateName)
	f.templates[template.TemplateName] = t
	return nil
}
