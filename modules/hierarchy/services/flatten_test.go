package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
)

func TestDeriveCode(t *testing.T) {
	require.Equal(t, "NORTH_AMERICA", DeriveCode("  North America "))
	require.Equal(t, "ÉTÉ", DeriveCode("été"))
	require.Equal(t, "", DeriveCode("   "))
	require.Equal(t, "NORTH_AMERICA_NEW", GeneratedParentCode("North America"))
}

func TestParentCode_Fallbacks(t *testing.T) {
	require.Equal(t, "", ParentCode(nil))
	require.Equal(t, "AM", ParentCode(&domain.Node{ID: "1", Code: "AM", Name: "Americas"}))
	require.Equal(t, "LATIN_AMERICA_NEW", ParentCode(&domain.Node{ID: "1", Name: "Latin America"}))
	require.Equal(t, "42", ParentCode(&domain.Node{ID: "42"}))
}

func TestFlatten_PreOrderRows(t *testing.T) {
	tree, err := BuildTree([]domain.Node{
		{ID: "2", Code: "EU", Name: "Europe", ParentID: ptr("1"), Level: 1},
		{ID: "1", Name: "World", Level: 0},
		{ID: "3", Code: "AM", Name: "Americas", ParentID: ptr("1"), Level: 1},
	})
	require.NoError(t, err)
	elements := []domain.Element{
		{Code: "ACC002", NodeID: ptr("2")},
		{Code: "ACC001", NodeID: ptr("2")},
		{Code: "ACC009"},
	}

	table, warnings, err := Flatten(tree, elements, nil)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, [][]string{
		{"1", "World", "[]", "0", ""},
		{"2", "Europe", "[ACC002, ACC001]", "1", "WORLD_NEW"},
		{"3", "Americas", "[]", "1", "WORLD_NEW"},
	}, table.Records())
}

// A node row can only carry one value per custom column, so the value of
// the first assigned element is exported and the disagreement is reported.
func TestFlatten_CustomColumnsUseFirstElement(t *testing.T) {
	tree, err := BuildTree([]domain.Node{{ID: "n1", Code: "EU", Name: "Europe"}, {ID: "n2", Code: "AS", Name: "Asia"}})
	require.NoError(t, err)
	elements := []domain.Element{
		{Code: "E1", NodeID: ptr("n1"), CustomFields: map[string]any{"jurisdiction": "DE"}},
		{Code: "E2", NodeID: ptr("n1"), CustomFields: map[string]any{"jurisdiction": "FR"}},
	}

	table, warnings, err := Flatten(tree, elements, []string{"jurisdiction"})
	require.NoError(t, err)
	require.Equal(t, []string{"node_id", "node_name", "elements", "level", "parent_node_code", "jurisdiction"}, table.Header())
	require.Equal(t, "DE", table.Rows[0].Custom["jurisdiction"])
	require.Equal(t, "", table.Rows[1].Custom["jurisdiction"])
	require.Len(t, warnings, 1)
	require.Equal(t, "n1", warnings[0].NodeID)
	require.Equal(t, "jurisdiction", warnings[0].Column)
}

func TestFormatFieldValue(t *testing.T) {
	require.Equal(t, "", FormatFieldValue(nil))
	require.Equal(t, "100", FormatFieldValue(float64(100)))
	require.Equal(t, "1.5", FormatFieldValue(1.5))
	require.Equal(t, "true", FormatFieldValue(true))
	require.Equal(t, "x", FormatFieldValue("x"))
}

func TestParseElementList(t *testing.T) {
	got, ok := ParseElementList("[ACC001, ACC002]")
	require.True(t, ok)
	require.Equal(t, []string{"ACC001", "ACC002"}, got)

	got, ok = ParseElementList("[]")
	require.True(t, ok)
	require.Empty(t, got)

	got, ok = ParseElementList(" [ A ,, B ] ")
	require.True(t, ok)
	require.Equal(t, []string{"A", "B"}, got)

	got, ok = ParseElementList("ACC001, ACC002")
	require.False(t, ok)
	require.Empty(t, got)
}
