package domain

import (
	"fmt"
	"strings"
)

// Axis selects which kind of element a hierarchy classifies.
type Axis string

const (
	AxisEntity  Axis = "entity"
	AxisAccount Axis = "account"
)

func ParseAxis(v string) (Axis, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "", "entity", "entities":
		return AxisEntity, nil
	case "account", "accounts":
		return AxisAccount, nil
	}
	if strings.ContainsAny(v, "/?# ") {
		return "", fmt.Errorf("invalid axis: %q", v)
	}
	return Axis(v), nil
}

func (a Axis) String() string { return string(a) }

type Hierarchy struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"hierarchy_type,omitempty"`
}

// Node is a grouping point inside a hierarchy. Children is only populated on
// nodes returned by BuildTree.
type Node struct {
	ID          string  `json:"id"`
	HierarchyID string  `json:"hierarchy_id"`
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	ParentID    *string `json:"parent_id"`
	Level       int     `json:"level"`
	Children    []*Node `json:"children,omitempty"`
}

func (n *Node) IsRoot() bool {
	return n.ParentID == nil || strings.TrimSpace(*n.ParentID) == ""
}

// Element is a leaf item (entity or account). NodeID == nil means unassigned.
type Element struct {
	ID           string         `json:"id"`
	Code         string         `json:"code"`
	Name         string         `json:"name"`
	NodeID       *string        `json:"node_id"`
	HierarchyID  *string        `json:"hierarchy_id"`
	Level        int            `json:"level"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

func (e *Element) Assigned() bool {
	return e.NodeID != nil && strings.TrimSpace(*e.NodeID) != ""
}

// Structure is a snapshot of one hierarchy as loaded from the store.
type Structure struct {
	Hierarchy  Hierarchy `json:"hierarchy"`
	Nodes      []Node    `json:"nodes"`
	Unassigned []Element `json:"unassigned"`
}

func StringPtr(v string) *string { return &v }

func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
