package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toeirei/regvault/internal/model"
	"github.com/toeirei/regvault/internal/objstore"
	"github.com/toeirei/regvault/internal/registry/registrytest"
)

func TestRestoreThing_RestoresDependencies(t *testing.T) {
	ctx := context.Background()
	store := exportedSnapshot(t)
	dst := registrytest.New(targetRegion)
	audit := &recordingAudit{}

	require.NoError(t, newTestRestorer(dst, store, audit).RestoreThing(ctx, "dev-1"))

	assert.True(t, dst.HasThing("dev-1"))
	assert.False(t, dst.HasThing("dev-2"), "unrelated things stay untouched")
	assert.Equal(t, 1, dst.Count(model.KindThingType))
	assert.Equal(t, 1, dst.Count(model.KindCertificate))
	assert.Equal(t, 2, dst.Count(model.KindPolicy))
	assert.Equal(t, 0, dst.Count(model.KindProvisioningTemplate))

	p, ok := dst.Policy("p-write")
	require.True(t, ok)
	assert.Contains(t, p.PolicyDocument, targetRegion)

	principals, err := dst.ListThingPrincipals(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, []string{dst.CertificateArn(cert1)}, principals)

	refs, err := dst.ListAttachedPolicies(ctx, dst.CertificateArn(cert1))
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	// Only the group chain leading to dev-1's group is created.
	assert.Equal(t,
		[]string{"CreateThingGroup:building", "CreateThingGroup:floor-1", "CreateThingGroup:room-101"},
		dst.CallsWithPrefix("CreateThingGroup"))
	assert.Equal(t, []string{"dev-1"}, dst.Members("room-101"))
	assert.Empty(t, dst.Members("building"))

	assert.Equal(t, 1, audit.count(ActionAddToGroup))
	assert.Equal(t, 1, audit.count(ActionAttachPrincipal))
}

func TestRestoreThing_ExistingThingAborts(t *testing.T) {
	ctx := context.Background()
	store := exportedSnapshot(t)
	dst := registrytest.New(targetRegion)
	dst.PutThing(model.Thing{ThingName: "dev-1"})

	err := newTestRestorer(dst, store, nil).RestoreThing(ctx, "dev-1")
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.KindThing, pe.Kind)
	assert.Equal(t, "dev-1", pe.ID)
	assert.Empty(t, dst.Calls(), "no create or attach call may be issued")
}

func TestRestoreThing_NotInSnapshot(t *testing.T) {
	ctx := context.Background()
	store := exportedSnapshot(t)
	dst := registrytest.New(targetRegion)

	err := newTestRestorer(dst, store, nil).RestoreThing(ctx, "dev-99")
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "not in snapshot")
	assert.Empty(t, dst.Calls())
}

func TestRestoreThing_ReusesExistingDependencies(t *testing.T) {
	ctx := context.Background()
	store := exportedSnapshot(t)
	dst := registrytest.New(targetRegion)

	// dev-2 shares p-read with dev-1's certificate and lives in building.
	require.NoError(t, newTestRestorer(dst, store, nil).RestoreThing(ctx, "dev-2"))
	dst.ResetCalls()

	require.NoError(t, newTestRestorer(dst, store, nil).RestoreThing(ctx, "dev-1"))
	assert.NotContains(t, dst.Calls(), "CreatePolicy:p-read")
	assert.NotContains(t, dst.Calls(), "CreateThingGroup:building")
	assert.Contains(t, dst.Calls(), "CreatePolicy:p-write")
	assert.Contains(t, dst.Calls(), "CreateThingGroup:floor-1")
}

func TestRestoreThing_ThingWithoutLinks(t *testing.T) {
	ctx := context.Background()
	store := exportedSnapshot(t)
	dst := registrytest.New(targetRegion)

	require.NoError(t, newTestRestorer(dst, store, nil).RestoreThing(ctx, "dev-3"))
	assert.Equal(t, []string{"CreateThing:dev-3"}, dst.Calls())
}

func TestRestoreThing_SkipsNonCertificatePrincipals(t *testing.T) {
	ctx := context.Background()
	src := sourceRegistry(t)
	src.PutThing(model.Thing{ThingName: "gw-1", Attributes: map[string]string{}}, "arn:aws:iam::123456789012:role/gateway")
	store := objstore.New(objstore.NewMemory(), "run")
	_, err := NewExporter(src, store, ExportOptions{Logger: quietLogger()}).Export(ctx)
	require.NoError(t, err)

	dst := registrytest.New(targetRegion)
	require.NoError(t, newTestRestorer(dst, store, nil).RestoreThing(ctx, "gw-1"))
	assert.Equal(t, []string{"CreateThing:gw-1"}, dst.Calls())
}
