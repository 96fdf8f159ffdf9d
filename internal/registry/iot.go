// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	"github.com/aws/aws-sdk-go-v2/service/iot/types"
	"github.com/aws/smithy-go"
	"golang.org/x/time/rate"

	"github.com/toeirei/regvault/internal/model"
)

// iotAPI is the subset of the IoT client used by IoT. Tests substitute it.
type iotAPI interface {
	ListThings(ctx context.Context, in *iot.ListThingsInput, optFns ...func(*iot.Options)) (*iot.ListThingsOutput, error)
	DescribeThing(ctx context.Context, in *iot.DescribeThingInput, optFns ...func(*iot.Options)) (*iot.DescribeThingOutput, error)
	CreateThing(ctx context.Context, in *iot.CreateThingInput, optFns ...func(*iot.Options)) (*iot.CreateThingOutput, error)
	ListThingPrincipals(ctx context.Context, in *iot.ListThingPrincipalsInput, optFns ...func(*iot.Options)) (*iot.ListThingPrincipalsOutput, error)
	AttachThingPrincipal(ctx context.Context, in *iot.AttachThingPrincipalInput, optFns ...func(*iot.Options)) (*iot.AttachThingPrincipalOutput, error)

	ListCertificates(ctx context.Context, in *iot.ListCertificatesInput, optFns ...func(*iot.Options)) (*iot.ListCertificatesOutput, error)
	DescribeCertificate(ctx context.Context, in *iot.DescribeCertificateInput, optFns ...func(*iot.Options)) (*iot.DescribeCertificateOutput, error)
	RegisterCertificateWithoutCA(ctx context.Context, in *iot.RegisterCertificateWithoutCAInput, optFns ...func(*iot.Options)) (*iot.RegisterCertificateWithoutCAOutput, error)
	ListAttachedPolicies(ctx context.Context, in *iot.ListAttachedPoliciesInput, optFns ...func(*iot.Options)) (*iot.ListAttachedPoliciesOutput, error)
	AttachPolicy(ctx context.Context, in *iot.AttachPolicyInput, optFns ...func(*iot.Options)) (*iot.AttachPolicyOutput, error)

	ListPolicies(ctx context.Context, in *iot.ListPoliciesInput, optFns ...func(*iot.Options)) (*iot.ListPoliciesOutput, error)
	GetPolicy(ctx context.Context, in *iot.GetPolicyInput, optFns ...func(*iot.Options)) (*iot.GetPolicyOutput, error)
	CreatePolicy(ctx context.Context, in *iot.CreatePolicyInput, optFns ...func(*iot.Options)) (*iot.CreatePolicyOutput, error)

	ListThingTypes(ctx context.Context, in *iot.ListThingTypesInput, optFns ...func(*iot.Options)) (*iot.ListThingTypesOutput, error)
	DescribeThingType(ctx context.Context, in *iot.DescribeThingTypeInput, optFns ...func(*iot.Options)) (*iot.DescribeThingTypeOutput, error)
	CreateThingType(ctx context.Context, in *iot.CreateThingTypeInput, optFns ...func(*iot.Options)) (*iot.CreateThingTypeOutput, error)

	ListThingGroups(ctx context.Context, in *iot.ListThingGroupsInput, optFns ...func(*iot.Options)) (*iot.ListThingGroupsOutput, error)
	DescribeThingGroup(ctx context.Context, in *iot.DescribeThingGroupInput, optFns ...func(*iot.Options)) (*iot.DescribeThingGroupOutput, error)
	CreateThingGroup(ctx context.Context, in *iot.CreateThingGroupInput, optFns ...func(*iot.Options)) (*iot.CreateThingGroupOutput, error)
	ListThingsInThingGroup(ctx context.Context, in *iot.ListThingsInThingGroupInput, optFns ...func(*iot.Options)) (*iot.ListThingsInThingGroupOutput, error)
	AddThingToThingGroup(ctx context.Context, in *iot.AddThingToThingGroupInput, optFns ...func(*iot.Options)) (*iot.AddThingToThingGroupOutput, error)

	ListProvisioningTemplates(ctx context.Context, in *iot.ListProvisioningTemplatesInput, optFns ...func(*iot.Options)) (*iot.ListProvisioningTemplatesOutput, error)
	DescribeProvisioningTemplate(ctx context.Context, in *iot.DescribeProvisioningTemplateInput, optFns ...func(*iot.Options)) (*iot.DescribeProvisioningTemplateOutput, error)
	CreateProvisioningTemplate(ctx context.Context, in *iot.CreateProvisioningTemplateInput, optFns ...func(*iot.Options)) (*iot.CreateProvisioningTemplateOutput, error)
}

// IoTOptions configures the AWS IoT registry.
type IoTOptions struct {
	// Endpoint overrides the service endpoint, e.g. for a local emulator.
	Endpoint string
	// RateLimit caps registry calls per second across all workers. Zero
	// disables the limiter.
	RateLimit float64
}

// IoT implements Registry on top of the AWS IoT control plane.
type IoT struct {
	api     iotAPI
	limiter *rate.Limiter
}

var _ Registry = (*IoT)(nil)

// NewIoT creates an IoT registry for the region configured in cfg.
func NewIoT(cfg aws.Config, opts IoTOptions) *IoT {
	client := iot.NewFromConfig(cfg, func(o *iot.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return newIoT(client, opts.RateLimit)
}

func newIoT(api iotAPI, ratePerSecond float64) *IoT {
	r := &IoT{api: api}
	if ratePerSecond > 0 {
		burst := int(ratePerSecond)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	return r
}

func (r *IoT) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// mapError translates IoT API error codes into the package sentinels while
// keeping the original error in the chain.
func mapError(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ResourceNotFoundException":
			return fmt.Errorf("%s %s: %w: %w", op, id, ErrNotFound, err)
		case "ResourceAlreadyExistsException":
			return fmt.Errorf("%s %s: %w: %w", op, id, ErrAlreadyExists, err)
		}
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

// fromOutput copies an SDK output into an exported document. The SDK output
// fields carry the same names as the document fields, so a JSON round trip
// maps them and drops ResultMetadata.
func fromOutput(out any, doc any) error {
	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := json.Unmarshal(b, doc); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Things ---------------------------------------------------------------------

func (r *IoT) ListThings(ctx context.Context) ([]string, error) {
	var names []string
	p := iot.NewListThingsPaginator(r.api, &iot.ListThingsInput{})
	for p.HasMorePages() {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, mapError("list things", "", err)
		}
		for _, item := range page.Things {
			names = append(names, aws.ToString(item.ThingName))
		}
	}
	return names, nil
}

func (r *IoT) DescribeThing(ctx context.Context, name string) (*model.Thing, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	out, err := r.api.DescribeThing(ctx, &iot.DescribeThingInput{ThingName: aws.String(name)})
	if err != nil {
		return nil, mapError("describe thing", name, err)
	}
	var thing model.Thing
	if err := fromOutput(out, &thing); err != nil {
		return nil, fmt.Errorf("describe thing %s: %w", name, err)
	}
	return &thing, nil
}

func (r *IoT) CreateThing(ctx context.Context, thing *model.Thing) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	in := &iot.CreateThingInput{
		ThingName:        aws.String(thing.ThingName),
		AttributePayload: &types.AttributePayload{Attributes: thing.Attributes},
	}
	if thing.ThingTypeName != "" {
		in.ThingTypeName = aws.String(thing.ThingTypeName)
	}
	_, err := r.api.CreateThing(ctx, in)
	return mapError("create thing", thing.ThingName, err)
}

func (r *IoT) ListThingPrincipals(ctx context.Context, thing string) ([]string, error) {
	var principals []string
	p := iot.NewListThingPrincipalsPaginator(r.api, &iot.ListThingPrincipalsInput{ThingName: aws.String(thing)})
	for p.HasMorePages() {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, mapError("list thing principals", thing, err)
		}
		principals = append(principals, page.Principals...)
	}
	return principals, nil
}

func (r *IoT) AttachThingPrincipal(ctx context.Context, thing, principalArn string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	_, err := r.api.AttachThingPrincipal(ctx, &iot.AttachThingPrincipalInput{
		ThingName: aws.String(thing),
		Principal: aws.String(principalArn),
	})
	return mapError("attach thing principal", thing, err)
}

// Certificates ---------------------------------------------------------------

func (r *IoT) ListCertificates(ctx context.Context) ([]string, error) {
	var ids []string
	p := iot.NewListCertificatesPaginator(r.api, &iot.ListCertificatesInput{})
	for p.HasMorePages() {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, mapError("list certificates", "", err)
		}
		for _, item := range page.Certificates {
			ids = append(ids, aws.ToString(item.CertificateId))
		}
	}
	return ids, nil
}

func (r *IoT) DescribeCertificate(ctx context.Context, id string) (*model.Certificate, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	out, err := r.api.DescribeCertificate(ctx, &iot.DescribeCertificateInput{CertificateId: aws.String(id)})
	if err != nil {
		return nil, mapError("describe certificate", id, err)
	}
	if out.CertificateDescription == nil {
		return nil, fmt.Errorf("describe certificate %s: empty description", id)
	}
	var cert model.Certificate
	if err := fromOutput(out.CertificateDescription, &cert); err != nil {
		return nil, fmt.Errorf("describe certificate %s: %w", id, err)
	}
	return &cert, nil
}

func (r *IoT) RegisterCertificate(ctx context.Context, pem string) (string, error) {
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	out, err := r.api.RegisterCertificateWithoutCA(ctx, &iot.RegisterCertificateWithoutCAInput{
		CertificatePem: aws.String(pem),
		Status:         types.CertificateStatusActive,
	})
	if err != nil {
		return "", mapError("register certificate", "", err)
	}
	return aws.ToString(out.CertificateArn), nil
}

func (r *IoT) ListAttachedPolicies(ctx context.Context, target string) ([]model.PolicyRef, error) {
	var refs []model.PolicyRef
	p := iot.NewListAttachedPoliciesPaginator(r.api, &iot.ListAttachedPoliciesInput{Target: aws.String(target)})
	for p.HasMorePages() {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, mapError("list attached policies", target, err)
		}
		for _, item := range page.Policies {
			refs = append(refs, model.PolicyRef{PolicyName: aws.ToString(item.PolicyName), PolicyArn: aws.ToString(item.PolicyArn)})
		}
	}
	return refs, nil
}

func (r *IoT) AttachPolicy(ctx context.Context, policyName, target string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	_, err := r.api.AttachPolicy(ctx, &iot.AttachPolicyInput{
		PolicyName: aws.String(policyName),
		Target:     aws.String(target),
	})
	return mapError("attach policy", policyName, err)
}

// Policies -------------------------------------------------------------------

func (r *IoT) ListPolicies(ctx context.Context) ([]string, error) {
	var names []string
	p := iot.NewListPoliciesPaginator(r.api, &iot.ListPoliciesInput{})
	for p.HasMorePages() {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, mapError("list policies", "", err)
		}
		for _, item := range page.Policies {
			names = append(names, aws.ToString(item.PolicyName))
		}
	}
	return names, nil
}

func (r *IoT) GetPolicy(ctx context.Context, name string) (*model.Policy, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	out, err := r.api.GetPolicy(ctx, &iot.GetPolicyInput{PolicyName: aws.String(name)})
	if err != nil {
		return nil, mapError("get policy", name, err)
	}
	var policy model.Policy
	if err := fromOutput(out, &policy); err != nil {
		return nil, fmt.Errorf("get policy %s: %w", name, err)
	}
	return &policy, nil
}

func (r *IoT) CreatePolicy(ctx context.Context, name, document string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	_, err := r.api.CreatePolicy(ctx, &iot.CreatePolicyInput{
		PolicyName:     aws.String(name),
		PolicyDocument: aws.String(document),
	})
	return mapError("create policy", name, err)
}

// Thing types ----------------------------------------------------------------

func (r *IoT) ListThingTypes(ctx context.Context) ([]string, error) {
	var names []string
	p := iot.NewListThingTypesPaginator(r.api, &iot.ListThingTypesInput{})
	for p.HasMorePages() {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, mapError("list thing types", "", err)
		}
		for _, item := range page.ThingTypes {
			names = append(names, aws.ToString(item.ThingTypeName))
		}
	}
	return names, nil
}

func (r *IoT) DescribeThingType(ctx context.Context, name string) (*model.ThingType, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	out, err := r.api.DescribeThingType(ctx, &iot.DescribeThingTypeInput{ThingTypeName: aws.String(name)})
	if err != nil {
		return nil, mapError("describe thing type", name, err)
	}
	var tt model.ThingType
	if err := fromOutput(out, &tt); err != nil {
		return nil, fmt.Errorf("describe thing type %s: %w", name, err)
	}
	return &tt, nil
}

func (r *IoT) CreateThingType(ctx context.Context, thingType *model.ThingType) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	props := &types.ThingTypeProperties{SearchableAttributes: thingType.ThingTypeProperties.SearchableAttributes}
	if d := thingType.ThingTypeProperties.ThingTypeDescription; d != "" {
		props.ThingTypeDescription = aws.String(d)
	}
	_, err := r.api.CreateThingType(ctx, &iot.CreateThingTypeInput{
		ThingTypeName:       aws.String(thingType.ThingTypeName),
		ThingTypeProperties: props,
	})
	return mapError("create thing type", thingType.ThingTypeName, err)
}

// Thing groups ---------------------------------------------------------------

func (r *IoT) ListThingGroups(ctx context.Context) ([]string, error) {
	var names []string
	p := iot.NewListThingGroupsPaginator(r.api, &iot.ListThingGroupsInput{})
	for p.HasMorePages() {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, mapError("list thing groups", "", err)
		}
		for _, item := range page.ThingGroups {
			names = append(names, aws.ToString(item.GroupName))
		}
	}
	return names, nil
}

func (r *IoT) DescribeThingGroup(ctx context.Context, name string) (*model.ThingGroup, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	out, err := r.api.DescribeThingGroup(ctx, &iot.DescribeThingGroupInput{ThingGroupName: aws.String(name)})
	if err != nil {
		return nil, mapError("describe thing group", name, err)
	}
	var group model.ThingGroup
	if err := fromOutput(out, &group); err != nil {
		return nil, fmt.Errorf("describe thing group %s: %w", name, err)
	}
	return &group, nil
}

func (r *IoT) CreateThingGroup(ctx context.Context, group *model.ThingGroup) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	in := &iot.CreateThingGroupInput{ThingGroupName: aws.String(group.ThingGroupName)}
	if parent := group.Parent(); parent != "" {
		in.ParentGroupName = aws.String(parent)
	}
	props := group.ThingGroupProperties
	if props.ThingGroupDescription != "" || props.AttributePayload != nil {
		in.ThingGroupProperties = &types.ThingGroupProperties{}
		if props.ThingGroupDescription != "" {
			in.ThingGroupProperties.ThingGroupDescription = aws.String(props.ThingGroupDescription)
		}
		if props.AttributePayload != nil {
			in.ThingGroupProperties.AttributePayload = &types.AttributePayload{Attributes: props.AttributePayload.Attributes}
		}
	}
	_, err := r.api.CreateThingGroup(ctx, in)
	return mapError("create thing group", group.ThingGroupName, err)
}

func (r *IoT) ListThingsInThingGroup(ctx context.Context, group string) ([]string, error) {
	var things []string
	p := iot.NewListThingsInThingGroupPaginator(r.api, &iot.ListThingsInThingGroupInput{ThingGroupName: aws.String(group)})
	for p.HasMorePages() {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, mapError("list things in thing group", group, err)
		}
		things = append(things, page.Things...)
	}
	return things, nil
}

func (r *IoT) AddThingToThingGroup(ctx context.Context, group, thing string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	_, err := r.api.AddThingToThingGroup(ctx, &iot.AddThingToThingGroupInput{
		ThingGroupName: aws.String(group),
		ThingName:      aws.String(thing),
	})
	return mapError("add thing to thing group", group+"/"+thing, err)
}

// Provisioning templates -----------------------------------------------------

func (r *IoT) ListProvisioningTemplates(ctx context.Context) ([]string, error) {
	var names []string
	p := iot.NewListProvisioningTemplatesPaginator(r.api, &iot.ListProvisioningTemplatesInput{})
	for p.HasMorePages() {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, mapError("list provisioning templates", "", err)
		}
		for _, item := range page.Templates {
			names = append(names, aws.ToString(item.TemplateName))
		}
	}
	return names, nil
}

func (r *IoT) DescribeProvisioningTemplate(ctx context.Context, name string) (*model.ProvisioningTemplate, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	out, err := r.api.DescribeProvisioningTemplate(ctx, &iot.DescribeProvisioningTemplateInput{TemplateName: aws.String(name)})
	if err != nil {
		return nil, mapError("describe provisioning template", name, err)
	}
	var tmpl model.ProvisioningTemplate
	if err := fromOutput(out, &tmpl); err != nil {
		return nil, fmt.Errorf("describe provisioning template %s: %w", name, err)
	}
	return &tmpl, nil
}

func (r *IoT) CreateProvisioningTemplate(ctx context.Context, template *model.ProvisioningTemplate) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	in := &iot.CreateProvisioningTemplateInput{
		TemplateName:        aws.String(template.TemplateName),
		TemplateBody:        aws.String(template.TemplateBody),
		ProvisioningRoleArn: aws.String(template.ProvisioningRoleArn),
		Enabled:             aws.Bool(template.Enabled),
		Type:                types.TemplateType(template.Type),
	}
	if template.Description != "" {
		in.Description = aws.String(template.Description)
	}
	_, err := r.api.CreateProvisioningTemplate(ctx, in)
	return mapError("create provisioning template", template.TemplateName, err)
}
