package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	clog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toeirei/regvault/internal/model"
	"github.com/toeirei/regvault/internal/objstore"
	"github.com/toeirei/regvault/internal/registry"
	"github.com/toeirei/regvault/internal/registry/registrytest"
)

func TestRestore_RecreatesRegistryInTargetRegion(t *testing.T) {
	ctx := context.Background()
	store := exportedSnapshot(t)
	dst := registrytest.New(targetRegion)
	audit := &recordingAudit{}
	r := newTestRestorer(dst, store, audit)

	require.Equal(t, StateIdle, r.State())
	require.NoError(t, r.Restore(ctx))
	assert.Equal(t, StatePhase2Succeeded, r.State())

	for _, kind := range model.Kinds {
		assert.Equal(t, sourceRegistry(t).Count(kind), dst.Count(kind), "kind %s", kind)
	}

	// Policy documents are moved to the target region.
	p, ok := dst.Policy("p-read")
	require.True(t, ok)
	assert.Contains(t, p.PolicyDocument, "arn:aws:iot:eu-west-1:")
	assert.NotContains(t, p.PolicyDocument, "us-east-1")

	// Links are rebuilt against the live certificate ARNs.
	principals, err := dst.ListThingPrincipals(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, []string{dst.CertificateArn(cert1)}, principals)

	refs, err := dst.ListAttachedPolicies(ctx, dst.CertificateArn(cert1))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p-read", "p-write"}, []string{refs[0].PolicyName, refs[1].PolicyName})

	assert.Equal(t, []string{"dev-1"}, dst.Members("room-101"))
	assert.Equal(t, []string{"dev-2"}, dst.Members("building"))

	g, err := dst.DescribeThingGroup(ctx, "room-101")
	require.NoError(t, err)
	assert.Equal(t, "floor-1", g.Parent())

	assert.Equal(t, 3, audit.count(ActionCreateThing))
	assert.Equal(t, 3, audit.count(ActionAttachPolicy))
	assert.Equal(t, 2, audit.count(ActionAttachPrincipal))
}

func TestRestore_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := exportedSnapshot(t)
	dst := registrytest.New(targetRegion)

	require.NoError(t, newTestRestorer(dst, store, nil).Restore(ctx))
	counts := map[model.Kind]int{}
	for _, kind := range model.Kinds {
		counts[kind] = dst.Count(kind)
	}

	dst.ResetCalls()
	second := newTestRestorer(dst, store, nil)
	require.NoError(t, second.Restore(ctx))
	assert.Equal(t, StatePhase2Succeeded, second.State())

	assert.Empty(t, dst.CallsWithPrefix("Create"), "second run must not create anything")
	assert.Empty(t, dst.CallsWithPrefix("Register"))
	for _, kind := range model.Kinds {
		assert.Equal(t, counts[kind], dst.Count(kind), "kind %s", kind)
	}
	assert.Equal(t, []string{"dev-1"}, dst.Members("room-101"))
}

func TestRestore_ConvergesAfterPartialFailure(t *testing.T) {
	ctx := context.Background()
	store := exportedSnapshot(t)
	dst := registrytest.New(targetRegion)
	dst.FailOn("CreateThing:dev-2", errors.New("throttled"))

	r := newTestRestorer(dst, store, nil)
	require.Error(t, r.Restore(ctx))
	assert.Equal(t, StatePhase1Failed, r.State())
	assert.True(t, dst.HasThing("dev-1"), "siblings of a failed item still run")
	assert.False(t, dst.HasThing("dev-2"))

	dst.FailOn("CreateThing:dev-2", nil)
	dst.ResetCalls()

	r2 := newTestRestorer(dst, store, nil)
	require.NoError(t, r2.Restore(ctx))
	assert.True(t, dst.HasThing("dev-2"))
	assert.Equal(t, []string{"CreateThing:dev-2"}, dst.CallsWithPrefix("Create"))
}

func TestRestore_Phase2WaitsForPhase1(t *testing.T) {
	ctx := context.Background()
	store := exportedSnapshot(t)
	dst := registrytest.New(targetRegion)
	boom := errors.New("access denied")
	dst.FailOn("CreatePolicy:p-write", boom)

	r := newTestRestorer(dst, store, nil)
	err := r.Restore(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StatePhase1Failed, r.State())

	for _, c := range dst.Calls() {
		assert.False(t, strings.HasPrefix(c, "Attach") || strings.HasPrefix(c, "AddThing"), "unexpected link call %s", c)
	}
	// Unrelated phase 1 work still completed.
	assert.True(t, dst.HasThing("dev-3"))
	assert.Equal(t, 3, dst.Count(model.KindThingGroup))
}

func TestRestore_GroupsCreatedParentsFirst(t *testing.T) {
	ctx := context.Background()
	store := exportedSnapshot(t)

	// Reverse the description list so children come before their parents.
	var groups []model.ThingGroup
	require.NoError(t, store.Get(ctx, model.ThingGroupsKey, &groups))
	for i, j := 0, len(groups)-1; i < j; i, j = i+1, j-1 {
		groups[i], groups[j] = groups[j], groups[i]
	}
	require.Equal(t, "room-101", groups[0].ThingGroupName)
	require.NoError(t, store.Put(ctx, model.ThingGroupsKey, groups))

	dst := registrytest.New(targetRegion)
	require.NoError(t, newTestRestorer(dst, store, nil).Restore(ctx))
	assert.Equal(t,
		[]string{"CreateThingGroup:building", "CreateThingGroup:floor-1", "CreateThingGroup:room-101"},
		dst.CallsWithPrefix("CreateThingGroup"))
}

func TestRestore_MissingAggregateFailsPhase(t *testing.T) {
	ctx := context.Background()
	store := objstore.New(objstore.NewMemory(), "broken")
	dst := registrytest.New(targetRegion)

	r := newTestRestorer(dst, store, nil)
	err := r.Restore(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, objstore.ErrNotFound)
	assert.Equal(t, StatePhase1Failed, r.State())
}

func TestRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	first := exportedSnapshot(t)
	dst := registrytest.New(targetRegion)
	require.NoError(t, newTestRestorer(dst, first, nil).Restore(ctx))

	second := objstore.New(objstore.NewMemory(), "again")
	_, err := NewExporter(dst, second, ExportOptions{Logger: quietLogger()}).Export(ctx)
	require.NoError(t, err)

	for _, kind := range model.Kinds {
		a, err := first.Keys(ctx, kind.Prefix())
		require.NoError(t, err)
		b, err := second.Keys(ctx, kind.Prefix())
		require.NoError(t, err)
		assert.Equal(t, a, b, "kind %s", kind)
	}

	var t1, t2 model.Thing
	require.NoError(t, first.Get(ctx, "things/dev-1.json", &t1))
	require.NoError(t, second.Get(ctx, "things/dev-1.json", &t2))
	assert.Equal(t, t1.ThingTypeName, t2.ThingTypeName)
	assert.Equal(t, t1.Attributes, t2.Attributes)

	var p1, p2 model.PrincipalAssignments
	require.NoError(t, first.Get(ctx, model.PrincipalAssignmentsKey, &p1))
	require.NoError(t, second.Get(ctx, model.PrincipalAssignmentsKey, &p2))
	for thing, arns := range p1 {
		require.Len(t, p2[thing], len(arns), "thing %s", thing)
		for i := range arns {
			assert.Equal(t, model.CertificateIDFromArn(arns[i]), model.CertificateIDFromArn(p2[thing][i]))
		}
	}

	var a1, a2 model.PolicyAssignments
	require.NoError(t, first.Get(ctx, model.PolicyAssignmentsKey, &a1))
	require.NoError(t, second.Get(ctx, model.PolicyAssignmentsKey, &a2))
	for id, refs := range a1 {
		names := func(rs []model.PolicyRef) []string {
			out := make([]string, 0, len(rs))
			for _, r := range rs {
				out = append(out, r.PolicyName)
			}
			return out
		}
		assert.ElementsMatch(t, names(refs), names(a2[id]), "certificate %s", id)
	}

	var m1, m2 model.Membership
	require.NoError(t, first.Get(ctx, "thing_groups/room-101.json", &m1))
	require.NoError(t, second.Get(ctx, "thing_groups/room-101.json", &m2))
	assert.Equal(t, m1, m2)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "phase1-failed", StatePhase1Failed.String())
	assert.Equal(t, "phase2-succeeded", StatePhase2Succeeded.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestRestore_SkipsNonCertificatePrincipals(t *testing.T) {
	ctx := context.Background()
	src := sourceRegistry(t)
	iamRole := "arn:aws:iam::123456789012:role/gateway"
	src.PutThing(model.Thing{ThingName: "gw-1", Attributes: map[string]string{}}, iamRole, src.CertificateArn(cert2))
	store := objstore.New(objstore.NewMemory(), "run")
	_, err := NewExporter(src, store, ExportOptions{Logger: quietLogger()}).Export(ctx)
	require.NoError(t, err)

	dst := registrytest.New(targetRegion)
	r := newTestRestorer(dst, store, nil)
	require.NoError(t, r.Restore(ctx))
	assert.Equal(t, StatePhase2Succeeded, r.State())

	principals, err := dst.ListThingPrincipals(ctx, "gw-1")
	require.NoError(t, err)
	assert.Equal(t, []string{dst.CertificateArn(cert2)}, principals)

	// A rerun converges instead of failing on the same principal again.
	require.NoError(t, newTestRestorer(dst, store, nil).Restore(ctx))
}

func TestRestore_FailureLogsNoBatchDetail(t *testing.T) {
	ctx := context.Background()
	store := exportedSnapshot(t)
	dst := registrytest.New(targetRegion)
	dst.FailOn("CreateThing:dev-2", errors.New("throttled"))

	var buf bytes.Buffer
	r := NewRestorer(dst, store, RestoreOptions{
		Rewriter: registry.NewRegionRewriter(targetRegion, nil),
		Logger:   clog.New(&buf),
	})
	err := r.Restore(ctx)
	require.Error(t, err)

	// The aggregated error is reported once by the caller.
	out := buf.String()
	assert.Contains(t, out, "failed to restore resources")
	assert.NotContains(t, out, "throttled")
	assert.Contains(t, err.Error(), "throttled")
}
