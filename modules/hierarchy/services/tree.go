package services

import (
	"sort"
	"strings"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
)

// Tree is a forest built from a flat node list. Nodes are copies; the input
// slice is never mutated.
type Tree struct {
	Roots []*domain.Node
	ByID  map[string]*domain.Node
	// Order preserves the input order of unique node ids.
	Order []string
}

// FlattenNested turns already-nested input into a flat list. Children that
// carry no parent id inherit their container as parent.
func FlattenNested(nodes []domain.Node) []domain.Node {
	out := make([]domain.Node, 0, len(nodes))
	var walk func(n domain.Node, parentID *string)
	walk = func(n domain.Node, parentID *string) {
		children := n.Children
		n.Children = nil
		if n.ParentID == nil && parentID != nil {
			p := *parentID
			n.ParentID = &p
		}
		out = append(out, n)
		id := n.ID
		for _, c := range children {
			if c == nil {
				continue
			}
			walk(*c, &id)
		}
	}
	for _, n := range nodes {
		walk(n, nil)
	}
	return out
}

// BuildTree links nodes by ParentID. A node whose parent is not in the list
// becomes a root. Parent cycles yield *CyclicHierarchyError.
func BuildTree(nodes []domain.Node) (*Tree, error) {
	flat := FlattenNested(nodes)

	t := &Tree{
		Roots: make([]*domain.Node, 0),
		ByID:  make(map[string]*domain.Node, len(flat)),
		Order: make([]string, 0, len(flat)),
	}
	for i := range flat {
		id := strings.TrimSpace(flat[i].ID)
		if id == "" {
			continue
		}
		if _, dup := t.ByID[id]; dup {
			continue
		}
		n := flat[i]
		n.ID = id
		n.Children = nil
		t.ByID[id] = &n
		t.Order = append(t.Order, id)
	}

	for _, id := range t.Order {
		n := t.ByID[id]
		if n.IsRoot() {
			t.Roots = append(t.Roots, n)
			continue
		}
		parent, ok := t.ByID[strings.TrimSpace(*n.ParentID)]
		if !ok {
			t.Roots = append(t.Roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}

	reached := make(map[string]struct{}, len(t.ByID))
	var mark func(n *domain.Node)
	mark = func(n *domain.Node) {
		if _, ok := reached[n.ID]; ok {
			return
		}
		reached[n.ID] = struct{}{}
		for _, c := range n.Children {
			mark(c)
		}
	}
	for _, r := range t.Roots {
		mark(r)
	}
	if len(reached) != len(t.ByID) {
		var cyclic []string
		for _, id := range t.Order {
			if _, ok := reached[id]; !ok {
				cyclic = append(cyclic, id)
			}
		}
		sort.Strings(cyclic)
		return nil, &CyclicHierarchyError{NodeIDs: cyclic}
	}
	return t, nil
}

// Walk visits nodes depth-first, parent before children.
func (t *Tree) Walk(fn func(n *domain.Node, depth int) error) error {
	visited := make(map[string]struct{}, len(t.ByID))
	var visit func(n *domain.Node, depth int) error
	visit = func(n *domain.Node, depth int) error {
		if _, ok := visited[n.ID]; ok {
			return &CyclicHierarchyError{NodeIDs: []string{n.ID}}
		}
		visited[n.ID] = struct{}{}
		if err := fn(n, depth); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := visit(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range t.Roots {
		if err := visit(r, 0); err != nil {
			return err
		}
	}
	return nil
}

// Descendants returns the ids of every node below id.
func (t *Tree) Descendants(id string) map[string]struct{} {
	out := make(map[string]struct{})
	n, ok := t.ByID[id]
	if !ok {
		return out
	}
	stack := append([]*domain.Node(nil), n.Children...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := out[cur.ID]; seen {
			continue
		}
		out[cur.ID] = struct{}{}
		stack = append(stack, cur.Children...)
	}
	return out
}

func (t *Tree) Parent(n *domain.Node) *domain.Node {
	if n == nil || n.IsRoot() {
		return nil
	}
	return t.ByID[strings.TrimSpace(*n.ParentID)]
}

// SplitElements separates elements placed on a node from unassigned ones.
func SplitElements(elements []domain.Element) (assigned, unassigned []domain.Element) {
	assigned = make([]domain.Element, 0, len(elements))
	unassigned = make([]domain.Element, 0)
	for _, e := range elements {
		if e.Assigned() {
			assigned = append(assigned, e)
		} else {
			unassigned = append(unassigned, e)
		}
	}
	return assigned, unassigned
}

// ElementsByNode groups assigned elements by node id, preserving list order.
func ElementsByNode(elements []domain.Element) map[string][]domain.Element {
	out := make(map[string][]domain.Element)
	for _, e := range elements {
		if !e.Assigned() {
			continue
		}
		id := strings.TrimSpace(*e.NodeID)
		out[id] = append(out[id], e)
	}
	return out
}

type LevelViolation struct {
	NodeID   string `json:"node_id"`
	Code     string `json:"code"`
	Level    int    `json:"level"`
	Expected int    `json:"expected"`
}

// CheckLevels reports nodes whose level is not parent level + 1 (roots: 0).
func CheckLevels(t *Tree) []LevelViolation {
	var out []LevelViolation
	_ = t.Walk(func(n *domain.Node, depth int) error {
		expected := 0
		if p := t.Parent(n); p != nil {
			expected = p.Level + 1
		}
		if n.Level != expected {
			out = append(out, LevelViolation{NodeID: n.ID, Code: n.Code, Level: n.Level, Expected: expected})
		}
		return nil
	})
	return out
}
