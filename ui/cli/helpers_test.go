package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toeirei/regvault/internal/config"
	"github.com/toeirei/regvault/internal/model"
	"github.com/toeirei/regvault/internal/objstore"
	"github.com/toeirei/regvault/internal/registry"
	"github.com/toeirei/regvault/internal/registry/registrytest"
)

const testPem = "-----BEGIN CERTIFICATE-----\nMIIB-cli\n-----END CERTIFICATE-----\n"

// testEnv replaces the AWS clients with one fake registry per region and a
// shared in-memory object store.
type testEnv struct {
	mu         sync.Mutex
	registries map[string]*registrytest.Fake
	mem        *objstore.Memory
	dir        string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Setenv("REGVAULT_DATABASE_DSN", filepath.Join(dir, "journal.db"))
	for _, name := range []string{"BACKUP_REGION", "RESTORE_REGION", "BACKUP_BUCKET", "BACKUP_DATE_PREFIX", "THING_NAME", "MAX_WORKERS"} {
		t.Setenv(name, "")
	}

	env := &testEnv{registries: map[string]*registrytest.Fake{}, mem: objstore.NewMemory(), dir: dir}
	origRegistry, origStore := openRegistry, openStore
	t.Cleanup(func() { openRegistry, openStore = origRegistry, origStore })
	openRegistry = func(_ context.Context, _ config.Config, region string) (registry.Registry, error) {
		return env.registry(region), nil
	}
	openStore = func(_ context.Context, _ config.Config, _, prefix string) (*objstore.Store, func() error, error) {
		return objstore.New(env.mem, prefix), noClose, nil
	}
	return env
}

func (e *testEnv) registry(region string) *registrytest.Fake {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.registries[region]
	if !ok {
		r = registrytest.New(region)
		e.registries[region] = r
	}
	return r
}

func (e *testEnv) store(prefix string) *objstore.Store {
	return objstore.New(e.mem, prefix)
}

// seed fills the registry of region with two things, one of them linked to
// a certificate, a policy, a thing type and a group.
func (e *testEnv) seed(region string) {
	r := e.registry(region)
	certID := registrytest.CertificateIDForPem(testPem)
	r.PutThingType(model.ThingType{ThingTypeName: "sensor"})
	r.PutPolicy(model.Policy{
		PolicyName:     "p-telemetry",
		PolicyDocument: `{"Statement":[{"Effect":"Allow","Action":"iot:Publish","Resource":"arn:aws:iot:` + region + `:123456789012:topic/telemetry"}]}`,
	})
	r.PutCertificate(model.Certificate{CertificateID: certID, CertificatePem: testPem, Status: "ACTIVE"}, "p-telemetry")
	r.PutThing(model.Thing{ThingName: "dev-1", ThingTypeName: "sensor", Attributes: map[string]string{"site": "north"}}, r.CertificateArn(certID))
	r.PutThing(model.Thing{ThingName: "dev-2", Attributes: map[string]string{}})
	r.PutThingGroup(model.ThingGroup{ThingGroupName: "north"}, "dev-1")
}

// executeCommand runs a fresh root command with args and returns stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	if testing.Verbose() && errOut.Len() > 0 {
		t.Log(errOut.String())
	}
	return out.String(), err
}

// mustExecute is executeCommand for commands expected to succeed.
func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := executeCommand(t, args...)
	require.NoError(t, err, "%v", args)
	return out
}
