package apiclient

import (
	"strings"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
)

// AxisAdapter maps the backend's per-axis field names and endpoints onto
// the canonical Element type.
type AxisAdapter struct {
	Axis           domain.Axis
	Collection     string
	CodeKeys       []string
	NameKeys       []string
	UnassignedKeys []string
}

func AdapterFor(axis domain.Axis) AxisAdapter {
	switch axis {
	case domain.AxisEntity:
		return AxisAdapter{
			Axis:           axis,
			Collection:     "entities",
			CodeKeys:       []string{"entity_code", "code"},
			NameKeys:       []string{"entity_name", "name"},
			UnassignedKeys: []string{"unassigned_entities", "unassigned"},
		}
	case domain.AxisAccount:
		return AxisAdapter{
			Axis:           axis,
			Collection:     "accounts",
			CodeKeys:       []string{"account_code", "code"},
			NameKeys:       []string{"account_name", "name"},
			UnassignedKeys: []string{"unassigned_accounts", "unassigned"},
		}
	}
	name := strings.TrimSpace(axis.String())
	return AxisAdapter{
		Axis:           axis,
		Collection:     name + "s",
		CodeKeys:       []string{name + "_code", "code"},
		NameKeys:       []string{name + "_name", "name"},
		UnassignedKeys: []string{"unassigned_" + name + "s", "unassigned"},
	}
}

func (a AxisAdapter) elementPath(id string) string {
	if id == "" {
		return "/" + a.Collection
	}
	return "/" + a.Collection + "/" + id
}

func (a AxisAdapter) decodeElement(m map[string]any) domain.Element {
	e := domain.Element{
		ID:           idString(m["id"]),
		Code:         firstString(m, a.CodeKeys...),
		Name:         firstString(m, a.NameKeys...),
		NodeID:       optionalID(m["node_id"]),
		HierarchyID:  optionalID(m["hierarchy_id"]),
		Level:        intValue(m["level"]),
		CustomFields: customFields(m["custom_fields"]),
	}
	return e
}

func (a AxisAdapter) encodeElement(code, name string) map[string]any {
	return map[string]any{
		a.CodeKeys[0]: code,
		a.NameKeys[0]: name,
	}
}

func (a AxisAdapter) decodeUnassigned(m map[string]any) []domain.Element {
	for _, key := range a.UnassignedKeys {
		items, ok := m[key].([]any)
		if !ok {
			continue
		}
		out := make([]domain.Element, 0, len(items))
		for _, it := range items {
			if em, ok := it.(map[string]any); ok {
				out = append(out, a.decodeElement(em))
			}
		}
		return out
	}
	return []domain.Element{}
}
