package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toeirei/regvault/internal/model"
	"github.com/toeirei/regvault/internal/registry/registrytest"
)

func TestGroupResolver_CreatesAncestorsTopDown(t *testing.T) {
	ctx := context.Background()
	reg := registrytest.New(targetRegion)
	// Snapshot order is child first.
	snapshot := []model.ThingGroup{group("C", "B"), group("B", "A"), group("A", "")}
	audit := &recordingAudit{}
	res := NewGroupResolver(reg, snapshot, audit, quietLogger())

	require.NoError(t, res.Ensure(ctx, "C"))
	assert.Equal(t, []string{"CreateThingGroup:A", "CreateThingGroup:B", "CreateThingGroup:C"}, reg.Calls())
	assert.Equal(t, 3, audit.count(ActionCreateThingGroup))

	// Already ensured groups are not created again.
	reg.ResetCalls()
	require.NoError(t, res.Ensure(ctx, "B"))
	require.NoError(t, res.Ensure(ctx, "A"))
	assert.Empty(t, reg.Calls())
}

func TestGroupResolver_StopsAtExistingAncestor(t *testing.T) {
	ctx := context.Background()
	reg := registrytest.New(targetRegion)
	// The root exists remotely but is not part of the snapshot.
	reg.PutThingGroup(group("site", ""))
	res := NewGroupResolver(reg, []model.ThingGroup{group("line-2", "cell"), group("cell", "site")}, nil, quietLogger())

	require.NoError(t, res.Ensure(ctx, "line-2"))
	assert.Equal(t, []string{"CreateThingGroup:cell", "CreateThingGroup:line-2"}, reg.Calls())
}

func TestGroupResolver_MissingAncestorIsPrecondition(t *testing.T) {
	reg := registrytest.New(targetRegion)
	res := NewGroupResolver(reg, []model.ThingGroup{group("child", "ghost")}, nil, quietLogger())

	err := res.Ensure(context.Background(), "child")
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.KindThingGroup, pe.Kind)
	assert.Equal(t, "child", pe.ID)
	assert.Contains(t, pe.Reason, `"ghost"`)
	assert.Empty(t, reg.Calls())

	err = res.Ensure(context.Background(), "nowhere")
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "not in snapshot")
}

func TestGroupResolver_RejectsCycles(t *testing.T) {
	reg := registrytest.New(targetRegion)
	res := NewGroupResolver(reg, []model.ThingGroup{group("x", "y"), group("y", "z"), group("z", "x")}, nil, quietLogger())

	err := res.Ensure(context.Background(), "x")
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "cycle x -> y -> z -> x")
	assert.Empty(t, reg.Calls(), "nothing is created for a cyclic chain")
}

func TestGroupResolver_ExistingGroupAndCreateFailure(t *testing.T) {
	ctx := context.Background()
	reg := registrytest.New(targetRegion)
	res := NewGroupResolver(reg, []model.ThingGroup{group("g", "")}, nil, quietLogger())

	reg.PutThingGroup(group("g", ""))
	require.NoError(t, res.Ensure(ctx, "g"))
	assert.Empty(t, reg.Calls())

	boom := errors.New("denied")
	reg2 := registrytest.New(targetRegion)
	reg2.FailOn("CreateThingGroup:g", boom)
	res2 := NewGroupResolver(reg2, []model.ThingGroup{group("g", "")}, nil, quietLogger())
	assert.ErrorIs(t, res2.Ensure(ctx, "g"), boom)
}
