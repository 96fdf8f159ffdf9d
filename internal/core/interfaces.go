// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

// Package core contains the export and restore pipelines and the small
// facades the CLI calls. Side-effect boundaries are the registry.Registry,
// the objstore.Store and the interfaces below.
package core

// AuditWriter is the minimal contract for emitting audit events.
type AuditWriter interface {
	LogAction(action, details string) error
}

type nopAudit struct{}

func (nopAudit) LogAction(string, string) error { return nil }

// Audit actions written for every resource a restore creates or links.
const (
	ActionCreateThing         = "CREATE_THING"
	ActionCreateThingType     = "CREATE_THING_TYPE"
	ActionRegisterCertificate = "REGISTER_CERTIFICATE"
	ActionCreatePolicy        = "CREATE_POLICY"
	ActionCreateThingGroup    = "CREATE_THING_GROUP"
	ActionCreateTemplate      = "CREATE_PROVISIONING_TEMPLATE"
	ActionAttachPolicy        = "ATTACH_POLICY"
	ActionAttachPrincipal     = "ATTACH_THING_PRINCIPAL"
	ActionAddToGroup          = "ADD_THING_TO_THING_GROUP"
)
