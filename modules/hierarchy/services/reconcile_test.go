package services_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/infrastructure/memstore"
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/services"
)

const twoNodeCSV = `"node_id","node_name","elements","level","parent_node_code"
"1","Americas","[ACC001, ACC002]","0",""
"2","Europe","[]","0",""`

func newAccountService(t *testing.T) (*services.HierarchyService, *memstore.Store) {
	t.Helper()
	store := memstore.New(domain.AxisAccount).Seed(domain.Hierarchy{ID: "h1", Name: "Regions"}, nil, nil)
	return services.NewHierarchyService(store, nil), store
}

func readTable(t *testing.T, csv string) services.Table {
	t.Helper()
	table, err := services.ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	return table
}

func TestImport_CreatesNodesAndElementsOnEmptyState(t *testing.T) {
	ctx := context.Background()
	svc, store := newAccountService(t)

	res, err := svc.Import(ctx, "h1", readTable(t, twoNodeCSV), false)
	require.NoError(t, err)
	require.Equal(t, 2, res.NodesCreated)
	require.Equal(t, 2, res.ElementsCreated)
	require.Equal(t, 0, res.ElementsUpdated)
	require.Equal(t, 0, res.ElementsUnchanged)
	require.Equal(t, 0, res.Failed)
	require.Equal(t, "2 new, 0 updated, 0 unchanged (2 nodes created)", res.Summary)

	nodes := store.Nodes("h1")
	require.Len(t, nodes, 2)
	var americas domain.Node
	for _, n := range nodes {
		require.Nil(t, n.ParentID)
		require.Equal(t, 0, n.Level)
		if n.Name == "Americas" {
			americas = n
		}
	}
	require.Equal(t, "AMERICAS", americas.Code)

	for _, code := range []string{"ACC001", "ACC002"} {
		e, ok := store.Element(code)
		require.True(t, ok)
		require.Equal(t, americas.ID, domain.Deref(e.NodeID))
		require.Equal(t, "h1", domain.Deref(e.HierarchyID))
		require.Equal(t, code, e.Name)
		require.Equal(t, 1, e.Level)
	}
}

func TestImport_ReimportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, store := newAccountService(t)

	_, err := svc.Import(ctx, "h1", readTable(t, twoNodeCSV), false)
	require.NoError(t, err)
	writes := len(store.WriteCalls())

	res, err := svc.Import(ctx, "h1", readTable(t, twoNodeCSV), false)
	require.NoError(t, err)
	require.Equal(t, 0, res.NodesCreated)
	require.Equal(t, 0, res.ElementsCreated)
	require.Equal(t, 0, res.ElementsUpdated)
	require.Equal(t, 2, res.ElementsUnchanged)
	require.Len(t, store.WriteCalls(), writes)
}

func TestImport_ExportRoundTripIsNoop(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(domain.AxisEntity).Seed(
		domain.Hierarchy{ID: "h1", Name: "Group"},
		[]domain.Node{
			{ID: "n1", Code: "GRP", Name: "Group", Level: 0},
			{ID: "n2", Name: "Sub Holding", ParentID: ptr("n1"), Level: 1},
			{ID: "n3", Code: "OPS", Name: "Operations", ParentID: ptr("n2"), Level: 2},
		},
		[]domain.Element{
			{ID: "e1", Code: "E1", NodeID: ptr("n2"), HierarchyID: ptr("h1"), Level: 2, CustomFields: map[string]any{"country": "DE", "share": float64(100)}},
			{ID: "e2", Code: "E2", NodeID: ptr("n3"), HierarchyID: ptr("h1"), Level: 3},
			{ID: "e3", Code: "E3"},
		},
	).SetFields([]domain.CustomFieldDefinition{
		{FieldName: "share", Type: domain.FieldNumber, DisplayOrder: 2},
		{FieldName: "country", Type: domain.FieldText, DisplayOrder: 1},
	})
	svc := services.NewHierarchyService(store, nil)

	var buf bytes.Buffer
	info, err := svc.Export(ctx, "h1", services.FormatCSV, &buf)
	require.NoError(t, err)
	require.Equal(t, 3, info.Rows)
	require.Contains(t, buf.String(), `"node_id","node_name","elements","level","parent_node_code","country","share"`)
	require.Contains(t, buf.String(), `"n2","Sub Holding","[E1]","1","GRP","DE","100"`)
	require.Contains(t, buf.String(), `"n3","Operations","[E2]","2","SUB_HOLDING_NEW","",""`)

	res, err := svc.Import(ctx, "h1", readTable(t, buf.String()), false)
	require.NoError(t, err)
	require.Equal(t, 0, res.NodesCreated)
	require.Equal(t, 0, res.ElementsCreated)
	require.Equal(t, 0, res.ElementsUpdated)
	require.Equal(t, 2, res.ElementsUnchanged)
}

// One row carries one value per custom column, so re-importing an export of
// a node whose elements disagree overwrites the later elements with the
// first element's value. The export warning is the only signal.
func TestImport_ExportOfDisagreeingValuesIsLossyOnReimport(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(domain.AxisAccount).Seed(
		domain.Hierarchy{ID: "h1", Name: "COA"},
		[]domain.Node{{ID: "n1", Code: "CASH", Name: "Cash"}},
		[]domain.Element{
			{ID: "e1", Code: "1000", NodeID: ptr("n1"), HierarchyID: ptr("h1"), Level: 1, CustomFields: map[string]any{"region": "EU"}},
			{ID: "e2", Code: "1010", NodeID: ptr("n1"), HierarchyID: ptr("h1"), Level: 1, CustomFields: map[string]any{"region": "US"}},
		},
	).SetFields([]domain.CustomFieldDefinition{{FieldName: "region", Type: domain.FieldText}})
	svc := services.NewHierarchyService(store, nil)

	var buf bytes.Buffer
	info, err := svc.Export(ctx, "h1", services.FormatCSV, &buf)
	require.NoError(t, err)
	require.Len(t, info.Warnings, 1)
	require.Equal(t, "region", info.Warnings[0].Column)
	require.Contains(t, buf.String(), `"n1","Cash","[1000, 1010]","0","","EU"`)

	res, err := svc.Import(ctx, "h1", readTable(t, buf.String()), false)
	require.NoError(t, err)
	require.Equal(t, 1, res.ElementsUnchanged)
	require.Equal(t, 1, res.ElementsUpdated)

	e, _ := store.Element("1010")
	require.Equal(t, "EU", e.CustomFields["region"])
}

func TestImport_UpdatesMergeCustomFields(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(domain.AxisAccount).Seed(
		domain.Hierarchy{ID: "h1", Name: "COA"},
		[]domain.Node{{ID: "n1", Code: "ASSETS", Name: "Assets"}},
		[]domain.Element{{ID: "e1", Code: "1000", NodeID: ptr("n1"), Level: 1, CustomFields: map[string]any{"owner": "ana", "region": "EU"}}},
	)
	svc := services.NewHierarchyService(store, nil)

	csv := "node_id,node_name,elements,level,parent_node_code,region,owner\n" +
		"n1,Assets,[1000],0,,US,\n"
	res, err := svc.Import(ctx, "h1", readTable(t, csv), false)
	require.NoError(t, err)
	require.Equal(t, 1, res.ElementsUpdated)
	require.NotEmpty(t, res.Elements[0].Diff)

	e, _ := store.Element("1000")
	require.Equal(t, map[string]any{"owner": "ana", "region": "US"}, e.CustomFields)
	require.Equal(t, "n1", domain.Deref(e.NodeID))
}

func TestImport_MovesElementToResolvedNode(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(domain.AxisAccount).Seed(
		domain.Hierarchy{ID: "h1", Name: "COA"},
		[]domain.Node{
			{ID: "n1", Code: "ASSETS", Name: "Assets"},
			{ID: "n2", Code: "CASH", Name: "Cash", ParentID: ptr("n1"), Level: 1},
		},
		[]domain.Element{{ID: "e1", Code: "1000", NodeID: ptr("n1"), Level: 1}},
	)
	svc := services.NewHierarchyService(store, nil)

	res, err := svc.Import(ctx, "h1", readTable(t, "node_id,node_name,elements,level,parent_node_code\n,Cash,[1000],1,ASSETS\n"), false)
	require.NoError(t, err)
	require.Equal(t, 0, res.NodesCreated)
	require.Equal(t, 1, res.ElementsUpdated)

	e, _ := store.Element("1000")
	require.Equal(t, "n2", domain.Deref(e.NodeID))
	require.Equal(t, 2, e.Level)
}

func TestImport_SameNameUnderDifferentParentsStaysSeparate(t *testing.T) {
	ctx := context.Background()
	svc, store := newAccountService(t)

	csv := `"node_id","node_name","elements","level","parent_node_code"
"1","Americas","[]","0",""
"2","Other","[ACC001]","1","AMERICAS"
"3","Europe","[]","0",""
"4","Other","[ACC002]","1","EUROPE"`
	res, err := svc.Import(ctx, "h1", readTable(t, csv), false)
	require.NoError(t, err)
	require.Equal(t, 4, res.NodesCreated)
	require.Equal(t, 2, res.ElementsCreated)
	require.Len(t, res.Warnings, 1)
	require.Equal(t, 5, res.Warnings[0].Line)
	require.Contains(t, res.Warnings[0].Message, "under another parent")

	nodes := store.Nodes("h1")
	require.Len(t, nodes, 4)
	byID := map[string]domain.Node{}
	for _, n := range nodes {
		byID[n.ID] = n
	}
	parentName := func(code string) string {
		e, ok := store.Element(code)
		require.True(t, ok)
		node := byID[domain.Deref(e.NodeID)]
		require.Equal(t, "Other", node.Name)
		return byID[domain.Deref(node.ParentID)].Name
	}
	require.Equal(t, "Americas", parentName("ACC001"))
	require.Equal(t, "Europe", parentName("ACC002"))

	res, err = svc.Import(ctx, "h1", readTable(t, csv), false)
	require.NoError(t, err)
	require.Zero(t, res.NodesCreated)
	require.Equal(t, 2, res.ElementsUnchanged)
	require.Empty(t, res.Warnings)
}

func TestImport_NameMatchRequiresSameParent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(domain.AxisAccount).Seed(
		domain.Hierarchy{ID: "h1", Name: "COA"},
		[]domain.Node{
			{ID: "n1", Code: "ASSETS", Name: "Assets"},
			{ID: "n2", Code: "A_OTHER", Name: "Other", ParentID: ptr("n1"), Level: 1},
			{ID: "n3", Code: "LIABILITIES", Name: "Liabilities"},
			{ID: "n4", Code: "L_OTHER", Name: "Other", ParentID: ptr("n3"), Level: 1},
			{ID: "n5", Code: "CASH", Name: "Cash", ParentID: ptr("n1"), Level: 1},
		},
		[]domain.Element{{ID: "e1", Code: "2000"}, {ID: "e2", Code: "1000"}},
	)
	svc := services.NewHierarchyService(store, nil)

	csv := "node_id,node_name,elements,level,parent_node_code\n" +
		",Other,[2000],1,LIABILITIES\n" +
		",Cash,[1000],,\n"
	res, err := svc.Import(ctx, "h1", readTable(t, csv), false)
	require.NoError(t, err)
	require.Zero(t, res.NodesCreated)
	require.Empty(t, res.Warnings)

	e, _ := store.Element("2000")
	require.Equal(t, "n4", domain.Deref(e.NodeID))
	// a unique name with no parent given still resolves
	e, _ = store.Element("1000")
	require.Equal(t, "n5", domain.Deref(e.NodeID))
}

func TestPlanImport_ParentMatchesNameBeforeID(t *testing.T) {
	state := services.ReconcileState{
		HierarchyID: "h1",
		Nodes: []domain.Node{
			{ID: "cash", Code: "C1", Name: "Bank"},
			{ID: "n2", Code: "C2", Name: "Cash"},
		},
	}
	table := services.Table{Rows: []services.Row{{NodeName: "Petty", ParentNodeCode: "cash", Line: 2}}}

	plan := services.PlanImport(state, table)
	require.Len(t, plan.Nodes, 1)
	require.Equal(t, "n2", plan.Nodes[0].ParentRef)
	require.Equal(t, 1, plan.Nodes[0].Level)
}

func TestImport_ChildRowBeforeParentRow(t *testing.T) {
	ctx := context.Background()
	svc, store := newAccountService(t)

	csv := "node_id,node_name,elements,level,parent_node_code\n" +
		",Cash,[1010],,CURRENT_ASSETS\n" +
		",Current Assets,[],,ASSETS\n" +
		",Assets,[],0,\n"
	res, err := svc.Import(ctx, "h1", readTable(t, csv), false)
	require.NoError(t, err)
	require.Equal(t, 3, res.NodesCreated)
	require.Empty(t, res.Warnings)

	byName := map[string]domain.Node{}
	for _, n := range store.Nodes("h1") {
		byName[n.Name] = n
	}
	require.Equal(t, 0, byName["Assets"].Level)
	require.Equal(t, byName["Assets"].ID, domain.Deref(byName["Current Assets"].ParentID))
	require.Equal(t, 1, byName["Current Assets"].Level)
	require.Equal(t, byName["Current Assets"].ID, domain.Deref(byName["Cash"].ParentID))
	require.Equal(t, 2, byName["Cash"].Level)

	e, _ := store.Element("1010")
	require.Equal(t, 3, e.Level)
}

func TestImport_UnresolvedParentBecomesRootWithSuggestion(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(domain.AxisAccount).Seed(
		domain.Hierarchy{ID: "h1", Name: "COA"},
		[]domain.Node{{ID: "n1", Code: "LIABILITIES", Name: "Liabilities"}},
		nil,
	)
	svc := services.NewHierarchyService(store, nil)

	res, err := svc.Import(ctx, "h1", readTable(t, "node_id,node_name,elements,level,parent_node_code\n,Loans,[],,LIABILITES\n"), false)
	require.NoError(t, err)
	require.Equal(t, 1, res.NodesCreated)
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0].Message, `"LIABILITIES"`)

	for _, n := range store.Nodes("h1") {
		if n.Name == "Loans" {
			require.Nil(t, n.ParentID)
			require.Equal(t, 0, n.Level)
		}
	}
}

func TestImport_DuplicateElementCodeFirstWins(t *testing.T) {
	ctx := context.Background()
	svc, store := newAccountService(t)

	csv := "node_id,node_name,elements,level,parent_node_code\n" +
		",Americas,[ACC001],0,\n" +
		",Europe,[ACC001],0,\n"
	res, err := svc.Import(ctx, "h1", readTable(t, csv), false)
	require.NoError(t, err)
	require.Equal(t, 1, res.ElementsCreated)
	require.Len(t, res.Warnings, 1)
	require.Equal(t, 3, res.Warnings[0].Line)

	e, _ := store.Element("ACC001")
	for _, n := range store.Nodes("h1") {
		if n.ID == domain.Deref(e.NodeID) {
			require.Equal(t, "Americas", n.Name)
		}
	}
}

func TestImport_BlankRowsSkippedAndBadElementListWarned(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAccountService(t)

	csv := "node_id,node_name,elements,level,parent_node_code\n" +
		",,[X],,\n" +
		",Europe,ACC001,0,\n"
	res, err := svc.Import(ctx, "h1", readTable(t, csv), false)
	require.NoError(t, err)
	require.Equal(t, 1, res.RowsSkipped)
	require.Equal(t, 1, res.RowsProcessed)
	require.Equal(t, 0, res.ElementsCreated)
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0].Message, "not a [A, B] list")
}

func TestImport_FailedWriteDoesNotStopBatch(t *testing.T) {
	ctx := context.Background()
	svc, store := newAccountService(t)
	store.FailOn["ACC001"] = errors.New("validation failed")

	res, err := svc.Import(ctx, "h1", readTable(t, twoNodeCSV), false)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, 1, res.ElementsCreated)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "ACC001", res.Errors[0].Element)
	require.Equal(t, "1 new, 0 updated, 0 unchanged (2 nodes created), 1 failed", res.Summary)

	_, ok := store.Element("ACC002")
	require.True(t, ok)
}

func TestImport_FailedNodeFailsItsElements(t *testing.T) {
	ctx := context.Background()
	svc, store := newAccountService(t)
	store.FailOn["Americas"] = errors.New("boom")

	res, err := svc.Import(ctx, "h1", readTable(t, twoNodeCSV), false)
	require.NoError(t, err)
	require.Equal(t, 1, res.NodesCreated)
	require.Equal(t, 3, res.Failed)
	require.Equal(t, 0, res.ElementsCreated)
}

func TestImport_DryRunDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	svc, store := newAccountService(t)

	res, err := svc.Import(ctx, "h1", readTable(t, twoNodeCSV), true)
	require.NoError(t, err)
	require.True(t, res.DryRun)
	require.Equal(t, 2, res.NodesCreated)
	require.Equal(t, 2, res.ElementsCreated)
	require.Empty(t, store.WriteCalls())
	require.NotEmpty(t, res.RunID)
}

func TestImport_InvalidCustomValueIsWarningOnly(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(domain.AxisAccount).Seed(domain.Hierarchy{ID: "h1", Name: "COA"}, nil, nil).
		SetFields([]domain.CustomFieldDefinition{{FieldName: "rate", Type: domain.FieldNumber}})
	svc := services.NewHierarchyService(store, nil)

	csv := "node_id,node_name,elements,level,parent_node_code,rate\n,Cash,[1000],0,,abc\n"
	res, err := svc.Import(ctx, "h1", readTable(t, csv), false)
	require.NoError(t, err)
	require.Equal(t, 1, res.ElementsCreated)
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0].Message, "not a number")

	e, _ := store.Element("1000")
	require.Equal(t, "abc", e.CustomFields["rate"])
}

func TestPlanImport_ValueComparisonUsesCellText(t *testing.T) {
	state := services.ReconcileState{
		HierarchyID: "h1",
		Nodes:       []domain.Node{{ID: "n1", Code: "A", Name: "A"}},
		Elements:    []domain.Element{{ID: "e1", Code: "X", NodeID: ptr("n1"), CustomFields: map[string]any{"share": float64(50), "flag": true}}},
	}
	table := services.Table{
		CustomColumns: []string{"share", "flag"},
		Rows: []services.Row{{NodeID: "n1", NodeName: "A", Elements: []string{"X"}, Custom: map[string]string{"share": "50", "flag": "true"}}},
	}

	plan := services.PlanImport(state, table)
	require.Len(t, plan.Elements, 1)
	require.Equal(t, services.ActionUnchanged, plan.Elements[0].Action)
}

func TestPlanImport_NewNodeCycleIsBroken(t *testing.T) {
	table := services.Table{Rows: []services.Row{
		{NodeName: "A", ParentNodeCode: "B", Line: 2},
		{NodeName: "B", ParentNodeCode: "A", Line: 3},
	}}

	plan := services.PlanImport(services.ReconcileState{HierarchyID: "h1"}, table)
	require.Len(t, plan.Nodes, 2)
	require.Len(t, plan.Warnings, 1)
	require.Contains(t, plan.Warnings[0].Message, "cycle")
	roots := 0
	for _, n := range plan.Nodes {
		if n.ParentRef == "" {
			roots++
			require.Equal(t, 0, n.Level)
		} else {
			require.Equal(t, 1, n.Level)
		}
	}
	require.Equal(t, 1, roots)
}

func ptr(v string) *string { return &v }
