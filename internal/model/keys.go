// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"path"
	"strings"
	"time"
)

// Kind is a resource kind of the registry.
type Kind string

const (
	KindThing                Kind = "things"
	KindCertificate          Kind = "certs"
	KindPolicy               Kind = "policies"
	KindThingType            Kind = "thing_types"
	KindThingGroup           Kind = "thing_groups"
	KindProvisioningTemplate Kind = "provisioning_templates"
)

// Kinds lists every exported resource kind.
var Kinds = []Kind{
	KindThing,
	KindCertificate,
	KindPolicy,
	KindThingType,
	KindThingGroup,
	KindProvisioningTemplate,
}

// Aggregate document keys.
const (
	PrincipalAssignmentsKey = "principals-assignments.json"
	PolicyAssignmentsKey    = "policy-assignments.json"
	ThingGroupsKey          = "thing_groups.json"
)

// Key returns the object key of the document for id of this kind, relative
// to the run prefix, e.g. "things/sensor-1.json".
func (k Kind) Key(id string) string {
	return string(k) + "/" + id + ".json"
}

// Prefix is the listing prefix of this kind ("things/").
func (k Kind) Prefix() string {
	return string(k) + "/"
}

// IDFromKey extracts the resource id from a document key. It accepts keys
// with or without the run prefix.
func IDFromKey(key string) string {
	return strings.TrimSuffix(path.Base(key), ".json")
}

// DatePrefix is the default run prefix of an export started at t.
func DatePrefix(t time.Time) string {
	return t.UTC().Format("2006/01/02")
}

// IsCertificateArn reports whether a thing principal is an X.509
// certificate. Things can also carry Cognito identities or IAM principals.
func IsCertificateArn(arn string) bool {
	return strings.HasPrefix(arn, "arn:") && strings.Contains(arn, ":cert/")
}

// CertificateIDFromArn returns the certificate id embedded in a certificate
// ARN (arn:aws:iot:<region>:<account>:cert/<id>).
func CertificateIDFromArn(arn string) string {
	if i := strings.LastIndex(arn, "/"); i >= 0 {
		return arn[i+1:]
	}
	return arn
}
