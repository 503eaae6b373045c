package apiclient

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
)

// idString accepts numeric or string ids.
func idString(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return ""
	}
}

func optionalID(v any) *string {
	id := idString(v)
	if id == "" {
		return nil
	}
	return &id
}

func intValue(v any) int {
	switch typed := v.(type) {
	case json.Number:
		n, err := typed.Int64()
		if err != nil {
			f, _ := typed.Float64()
			return int(f)
		}
		return int(n)
	case float64:
		return int(typed)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(typed))
		return n
	}
	return 0
}

func boolValue(v any) bool {
	switch typed := v.(type) {
	case bool:
		return typed
	case string:
		b, _ := strconv.ParseBool(typed)
		return b
	case json.Number:
		return typed.String() != "0"
	}
	return false
}

func stringValue(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case json.Number:
		return typed.String()
	default:
		b, _ := json.Marshal(typed)
		return string(b)
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if s := strings.TrimSpace(stringValue(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

// customFields accepts an object or a JSON-encoded object string.
func customFields(v any) map[string]any {
	switch typed := v.(type) {
	case map[string]any:
		return normalizeNumbers(typed)
	case string:
		if strings.TrimSpace(typed) == "" {
			return nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(typed), &m); err != nil {
			return nil
		}
		return m
	}
	return nil
}

func normalizeNumbers(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if n, ok := v.(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				out[k] = f
				continue
			}
			out[k] = n.String()
			continue
		}
		out[k] = v
	}
	return out
}

func stringList(v any) []string {
	switch typed := v.(type) {
	case []any:
		out := make([]string, 0, len(typed))
		for _, it := range typed {
			if s := strings.TrimSpace(stringValue(it)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		typed = strings.TrimSpace(typed)
		if typed == "" {
			return nil
		}
		var list []string
		if strings.HasPrefix(typed, "[") && json.Unmarshal([]byte(typed), &list) == nil {
			return list
		}
		parts := strings.Split(typed, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

func decodeNode(m map[string]any) domain.Node {
	n := domain.Node{
		ID:          idString(m["id"]),
		HierarchyID: idString(m["hierarchy_id"]),
		Code:        firstString(m, "code", "node_code"),
		Name:        firstString(m, "name", "node_name"),
		ParentID:    optionalID(m["parent_id"]),
		Level:       intValue(m["level"]),
	}
	if children, ok := m["children"].([]any); ok {
		for _, c := range children {
			if cm, ok := c.(map[string]any); ok {
				child := decodeNode(cm)
				n.Children = append(n.Children, &child)
			}
		}
	}
	return n
}

func decodeHierarchy(m map[string]any) domain.Hierarchy {
	return domain.Hierarchy{
		ID:          idString(m["id"]),
		Name:        firstString(m, "name", "hierarchy_name"),
		Description: firstString(m, "description"),
		Type:        firstString(m, "hierarchy_type", "type"),
	}
}

func decodeFieldDefinition(m map[string]any) domain.CustomFieldDefinition {
	return domain.CustomFieldDefinition{
		FieldName:    firstString(m, "field_name", "name"),
		Label:        firstString(m, "field_label", "label"),
		Type:         domain.FieldType(strings.ToLower(firstString(m, "field_type", "type"))),
		IsRequired:   boolValue(m["is_required"]),
		IsUnique:     boolValue(m["is_unique"]),
		DefaultValue: firstString(m, "default_value"),
		Options:      stringList(m["options"]),
		SQLQuery:     firstString(m, "sql_query"),
		DisplayOrder: intValue(m["display_order"]),
	}
}

// listPayload unwraps either a bare array or {key: [...]}.
func listPayload(v any, keys ...string) []map[string]any {
	var items []any
	switch typed := v.(type) {
	case []any:
		items = typed
	case map[string]any:
		for _, k := range keys {
			if arr, ok := typed[k].([]any); ok {
				items = arr
				break
			}
		}
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
