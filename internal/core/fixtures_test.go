package core

import (
	"context"
	"io"
	"sync"
	"testing"

	clog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/toeirei/regvault/internal/model"
	"github.com/toeirei/regvault/internal/objstore"
	"github.com/toeirei/regvault/internal/registry"
	"github.com/toeirei/regvault/internal/registry/registrytest"
)

const (
	sourceRegion = "us-east-1"
	targetRegion = "eu-west-1"
)

var (
	pem1 = "-----BEGIN CERTIFICATE-----\nMIIB-one\n-----END CERTIFICATE-----\n"
	pem2 = "-----BEGIN CERTIFICATE-----\nMIIB-two\n-----END CERTIFICATE-----\n"
	cert1 = registrytest.CertificateIDForPem(pem1)
	cert2 = registrytest.CertificateIDForPem(pem2)
)

func quietLogger() *clog.Logger {
	return clog.New(io.Discard)
}

func group(name, parent string) model.ThingGroup {
	return model.ThingGroup{
		ThingGroupName:     name,
		ThingGroupMetadata: model.ThingGroupMetadata{ParentGroupName: parent},
	}
}

// sourceRegistry builds a small registry covering every kind and link:
//
//	thing type sensor
//	things dev-1 (sensor, cert1), dev-2 (cert2), dev-3
//	cert1 -> p-read, p-write; cert2 -> p-read
//	groups building > floor-1 > room-101; room-101 has dev-1, building has dev-2
//	template fleet
func sourceRegistry(t *testing.T) *registrytest.Fake {
	t.Helper()
	src := registrytest.New(sourceRegion)
	src.PutThingType(model.ThingType{
		ThingTypeName:       "sensor",
		ThingTypeProperties: model.ThingTypeProperties{ThingTypeDescription: "temperature sensor", SearchableAttributes: []string{"floor"}},
	})
	src.PutPolicy(model.Policy{
		PolicyName:     "p-read",
		PolicyDocument: `{"Statement":[{"Effect":"Allow","Action":"iot:Subscribe","Resource":"arn:aws:iot:us-east-1:123456789012:topicfilter/read/*"}]}`,
	})
	src.PutPolicy(model.Policy{
		PolicyName:     "p-write",
		PolicyDocument: `{"Statement":[{"Effect":"Allow","Action":"iot:Publish","Resource":"arn:aws:iot:us-east-1:123456789012:topic/write"}]}`,
	})
	src.PutCertificate(model.Certificate{CertificateID: cert1, CertificatePem: pem1, Status: "ACTIVE"}, "p-read", "p-write")
	src.PutCertificate(model.Certificate{CertificateID: cert2, CertificatePem: pem2, Status: "ACTIVE"}, "p-read")
	src.PutThing(model.Thing{ThingName: "dev-1", ThingTypeName: "sensor", Attributes: map[string]string{"floor": "1"}}, src.CertificateArn(cert1))
	src.PutThing(model.Thing{ThingName: "dev-2", Attributes: map[string]string{}}, src.CertificateArn(cert2))
	src.PutThing(model.Thing{ThingName: "dev-3", Attributes: map[string]string{"spare": "yes"}})
	src.PutThingGroup(group("building", ""), "dev-2")
	src.PutThingGroup(group("floor-1", "building"))
	src.PutThingGroup(group("room-101", "floor-1"), "dev-1")
	src.PutProvisioningTemplate(model.ProvisioningTemplate{
		TemplateName:        "fleet",
		TemplateBody:        `{"Resources":{}}`,
		Enabled:             true,
		ProvisioningRoleArn: "arn:aws:iam::123456789012:role/provisioning",
		Type:                "FLEET_PROVISIONING",
	})
	return src
}

// exportedSnapshot exports sourceRegistry into a fresh memory store.
func exportedSnapshot(t *testing.T) *objstore.Store {
	t.Helper()
	store := objstore.New(objstore.NewMemory(), "2024/05/01")
	_, err := NewExporter(sourceRegistry(t), store, ExportOptions{Logger: quietLogger()}).Export(context.Background())
	require.NoError(t, err)
	return store
}

func newTestRestorer(reg registry.Registry, store *objstore.Store, audit AuditWriter) *Restorer {
	return NewRestorer(reg, store, RestoreOptions{
		Rewriter: registry.NewRegionRewriter(targetRegion, nil),
		Audit:    audit,
		Logger:   quietLogger(),
	})
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) LogAction(action, details string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action+" "+details)
	return nil
}

func (a *recordingAudit) count(action string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, s := range a.actions {
		if len(s) > len(action) && s[:len(action)+1] == action+" " {
			n++
		}
	}
	return n
}
