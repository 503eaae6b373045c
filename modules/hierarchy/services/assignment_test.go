package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/infrastructure/memstore"
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/services"
)

func seededEntities() *memstore.Store {
	return memstore.New(domain.AxisEntity).Seed(
		domain.Hierarchy{ID: "h1", Name: "Legal"},
		[]domain.Node{
			{ID: "N1", Code: "ROOT", Name: "Root", Level: 0},
			{ID: "N2", Code: "EMEA", Name: "EMEA", ParentID: ptr("N1"), Level: 1},
			{ID: "N3", Code: "DACH", Name: "DACH", ParentID: ptr("N2"), Level: 2},
		},
		[]domain.Element{
			{ID: "E4", Code: "E4", NodeID: ptr("N1"), HierarchyID: ptr("h1"), Level: 1},
			{ID: "E5", Code: "E5"},
			{ID: "E6", Code: "E6"},
		},
	)
}

func TestAssign_SetsNodeAndLevel(t *testing.T) {
	store := seededEntities()
	svc := services.NewHierarchyService(store, nil)

	res, err := svc.Assign(context.Background(), "h1", "N2", []string{"E5"})
	require.NoError(t, err)
	require.Equal(t, []string{"E5"}, res.Succeeded)
	require.Equal(t, 2, res.Level)

	e, _ := store.Element("E5")
	require.Equal(t, "N2", domain.Deref(e.NodeID))
	require.Equal(t, "h1", domain.Deref(e.HierarchyID))
	require.Equal(t, 2, e.Level)
}

func TestAssign_RequiresTarget(t *testing.T) {
	store := seededEntities()

	_, err := services.AssignElements(context.Background(), store, nil, []string{"E5"})
	require.ErrorIs(t, err, services.ErrTargetNodeRequired)
	require.Empty(t, store.WriteCalls())

	svc := services.NewHierarchyService(store, nil)
	_, err = svc.Assign(context.Background(), "h1", " ", []string{"E5"})
	var se *services.ServiceError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "HIERARCHY_TARGET_REQUIRED", se.Code)
}

func TestAssign_UnknownTargetNode(t *testing.T) {
	svc := services.NewHierarchyService(seededEntities(), nil)

	_, err := svc.Assign(context.Background(), "h1", "N9", []string{"E5"})
	var se *services.ServiceError
	require.ErrorAs(t, err, &se)
	require.Equal(t, 404, se.Status)
}

func TestAssign_PartialFailureKeepsSuccessfulWrites(t *testing.T) {
	store := seededEntities()
	store.FailOn["E5"] = errors.New("locked")
	svc := services.NewHierarchyService(store, nil)

	res, err := svc.Assign(context.Background(), "h1", "N3", []string{"E5", "E6", "E6"})
	require.NoError(t, err)
	require.True(t, res.Partial())
	require.Equal(t, []string{"E6"}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	require.Equal(t, "E5", res.Failed[0].ElementID)

	e6, _ := store.Element("E6")
	require.Equal(t, "N3", domain.Deref(e6.NodeID))
	require.Equal(t, 3, e6.Level)
	e5, _ := store.Element("E5")
	require.Nil(t, e5.NodeID)
}

func TestUnassign_ClearsPlacement(t *testing.T) {
	store := seededEntities()
	svc := services.NewHierarchyService(store, nil)

	res := svc.Unassign(context.Background(), []string{"E4"})
	require.Equal(t, []string{"E4"}, res.Succeeded)

	e, ok := store.Element("E4")
	require.True(t, ok)
	require.Nil(t, e.NodeID)
	require.Nil(t, e.HierarchyID)

	view, err := svc.Load(context.Background(), "h1")
	require.NoError(t, err)
	require.Len(t, view.Unassigned, 3)
	require.Empty(t, view.ElementsByNode)
}

func TestMoveNode_RecomputesSubtreeLevels(t *testing.T) {
	store := seededEntities()
	svc := services.NewHierarchyService(store, nil)

	res, err := svc.MoveNode(context.Background(), "h1", "N2", nil)
	require.NoError(t, err)
	require.Equal(t, 0, res.Level)
	require.Equal(t, []string{"N2", "N3"}, res.LevelsUpdated)

	view, err := svc.Load(context.Background(), "h1")
	require.NoError(t, err)
	require.Empty(t, view.LevelViolations)
	require.Equal(t, 1, view.Tree().ByID["N3"].Level)
}

func TestMoveNode_RejectsDescendantParent(t *testing.T) {
	store := seededEntities()
	svc := services.NewHierarchyService(store, nil)

	_, err := svc.MoveNode(context.Background(), "h1", "N1", ptr("N3"))
	var se *services.ServiceError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "HIERARCHY_CYCLE", se.Code)
	require.ErrorIs(t, err, services.ErrNodeCycle)
	require.Empty(t, store.WriteCalls())
}

func TestLoad_UnassignedMatchesNilNode(t *testing.T) {
	svc := services.NewHierarchyService(seededEntities(), nil)

	view, err := svc.Load(context.Background(), "h1")
	require.NoError(t, err)
	require.Len(t, view.Roots, 1)
	require.Len(t, view.Unassigned, 2)
	for _, e := range view.Unassigned {
		require.Nil(t, e.NodeID)
	}
	require.Len(t, view.ElementsByNode["N1"], 1)
}

func TestLoad_FallsBackToStructureUnassigned(t *testing.T) {
	store := seededEntities()
	store.FailOn["list_elements"] = errors.New("unavailable")
	svc := services.NewHierarchyService(store, nil)

	view, err := svc.Load(context.Background(), "h1")
	require.NoError(t, err)
	require.Len(t, view.Unassigned, 2)
}

func TestLoad_CycleIsConflict(t *testing.T) {
	store := memstore.New(domain.AxisEntity).Seed(
		domain.Hierarchy{ID: "h1", Name: "Broken"},
		[]domain.Node{{ID: "a", ParentID: ptr("b")}, {ID: "b", ParentID: ptr("a")}},
		nil,
	)
	svc := services.NewHierarchyService(store, nil)

	_, err := svc.Load(context.Background(), "h1")
	var se *services.ServiceError
	require.ErrorAs(t, err, &se)
	require.Equal(t, 409, se.Status)
	var cyc *services.CyclicHierarchyError
	require.ErrorAs(t, err, &cyc)
}
