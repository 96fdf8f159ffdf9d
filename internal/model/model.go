// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import "time"

// Thing is the exported description of a registered device.
type Thing struct {
	ThingName        string            `json:"thingName"`
	ThingID          string            `json:"thingId,omitempty"`
	ThingArn         string            `json:"thingArn,omitempty"`
	ThingTypeName    string            `json:"thingTypeName,omitempty"`
	Attributes       map[string]string `json:"attributes"`
	Version          int64             `json:"version,omitempty"`
	DefaultClientID  string            `json:"defaultClientId,omitempty"`
	BillingGroupName string            `json:"billingGroupName,omitempty"`
}

// CertificateValidity is the validity window of a certificate.
type CertificateValidity struct {
	NotBefore *time.Time `json:"notBefore,omitempty"`
	NotAfter  *time.Time `json:"notAfter,omitempty"`
}

// Certificate is the exported description of an X.509 device certificate,
// including the full PEM body so it can be registered again.
type Certificate struct {
	CertificateID    string               `json:"certificateId"`
	CertificateArn   string               `json:"certificateArn"`
	CertificatePem   string               `json:"certificatePem"`
	Status           string               `json:"status,omitempty"`
	CaCertificateID  string               `json:"caCertificateId,omitempty"`
	OwnedBy          string               `json:"ownedBy,omitempty"`
	CustomerVersion  int32                `json:"customerVersion,omitempty"`
	CertificateMode  string               `json:"certificateMode,omitempty"`
	CreationDate     *time.Time           `json:"creationDate,omitempty"`
	LastModifiedDate *time.Time           `json:"lastModifiedDate,omitempty"`
	Validity         *CertificateValidity `json:"validity,omitempty"`
}

// Policy is the exported policy including its JSON document.
type Policy struct {
	PolicyName       string     `json:"policyName"`
	PolicyArn        string     `json:"policyArn,omitempty"`
	PolicyDocument   string     `json:"policyDocument"`
	DefaultVersionID string     `json:"defaultVersionId,omitempty"`
	CreationDate     *time.Time `json:"creationDate,omitempty"`
	LastModifiedDate *time.Time `json:"lastModifiedDate,omitempty"`
}

// PolicyRef identifies a policy attached to a certificate. It is the element
// type of the policy assignment aggregate.
type PolicyRef struct {
	PolicyName string `json:"policyName"`
	PolicyArn  string `json:"policyArn,omitempty"`
}

type ThingTypeProperties struct {
	ThingTypeDescription string   `json:"thingTypeDescription,omitempty"`
	SearchableAttributes []string `json:"searchableAttributes,omitempty"`
}

type ThingTypeMetadata struct {
	Deprecated      bool       `json:"deprecated,omitempty"`
	DeprecationDate *time.Time `json:"deprecationDate,omitempty"`
	CreationDate    *time.Time `json:"creationDate,omitempty"`
}

// ThingType is an exported thing type. Thing types are immutable once created.
type ThingType struct {
	ThingTypeName       string              `json:"thingTypeName"`
	ThingTypeID         string              `json:"thingTypeId,omitempty"`
	ThingTypeArn        string              `json:"thingTypeArn,omitempty"`
	ThingTypeProperties ThingTypeProperties `json:"thingTypeProperties"`
	ThingTypeMetadata   *ThingTypeMetadata  `json:"thingTypeMetadata,omitempty"`
}

type AttributePayload struct {
	Attributes map[string]string `json:"attributes,omitempty"`
}

type ThingGroupProperties struct {
	ThingGroupDescription string            `json:"thingGroupDescription,omitempty"`
	AttributePayload      *AttributePayload `json:"attributePayload,omitempty"`
}

// GroupNameAndArn is an entry of a group's ancestor list.
type GroupNameAndArn struct {
	GroupName string `json:"groupName"`
	GroupArn  string `json:"groupArn,omitempty"`
}

type ThingGroupMetadata struct {
	ParentGroupName         string            `json:"parentGroupName,omitempty"`
	RootToParentThingGroups []GroupNameAndArn `json:"rootToParentThingGroups,omitempty"`
	CreationDate            *time.Time        `json:"creationDate,omitempty"`
}

// ThingGroup is an exported thing group description. Groups form a forest
// through ThingGroupMetadata.ParentGroupName.
type ThingGroup struct {
	ThingGroupName       string               `json:"thingGroupName"`
	ThingGroupID         string               `json:"thingGroupId,omitempty"`
	ThingGroupArn        string               `json:"thingGroupArn,omitempty"`
	Version              int64                `json:"version,omitempty"`
	ThingGroupProperties ThingGroupProperties `json:"thingGroupProperties"`
	ThingGroupMetadata   ThingGroupMetadata   `json:"thingGroupMetadata"`
}

// Parent returns the name of the parent group, or "" for a root group.
func (g ThingGroup) Parent() string {
	return g.ThingGroupMetadata.ParentGroupName
}

// ProvisioningTemplate is an exported fleet provisioning template.
type ProvisioningTemplate struct {
	TemplateName        string     `json:"templateName"`
	TemplateArn         string     `json:"templateArn,omitempty"`
	Description         string     `json:"description"`
	TemplateBody        string     `json:"templateBody"`
	Enabled             bool       `json:"enabled"`
	ProvisioningRoleArn string     `json:"provisioningRoleArn"`
	Type                string     `json:"type"`
	DefaultVersionID    int32      `json:"defaultVersionId,omitempty"`
	CreationDate        *time.Time `json:"creationDate,omitempty"`
	LastModifiedDate    *time.Time `json:"lastModifiedDate,omitempty"`
}

// PrincipalAssignments maps a thing name to the ARNs of its attached
// certificates, as recorded at export time.
type PrincipalAssignments map[string][]string

// PolicyAssignments maps a certificate id to the policies attached to it.
type PolicyAssignments map[string][]PolicyRef

// Membership lists the thing names of one thing group.
type Membership []string

// Contains reports whether thing is a member.
func (m Membership) Contains(thing string) bool {
	for _, t := range m {
		if t == thing {
			return true
		}
	}
	return false
}
