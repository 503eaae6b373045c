// Package memstore is an in-process Store used by tests and local dry runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/services"
)

var _ services.Store = (*Store)(nil)

type Store struct {
	mu          sync.Mutex
	axis        domain.Axis
	hierarchies []domain.Hierarchy
	nodes       []domain.Node
	elements    []domain.Element
	fields      []domain.CustomFieldDefinition

	// FailOn makes writes for the listed ids (or codes on create) fail.
	FailOn map[string]error
	Calls  []string
}

func New(axis domain.Axis) *Store {
	return &Store{axis: axis, FailOn: make(map[string]error)}
}

func (s *Store) Axis() domain.Axis { return s.axis }

func (s *Store) Seed(h domain.Hierarchy, nodes []domain.Node, elements []domain.Element) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hierarchies = append(s.hierarchies, h)
	for _, n := range nodes {
		n.Children = nil
		if n.HierarchyID == "" {
			n.HierarchyID = h.ID
		}
		s.nodes = append(s.nodes, n)
	}
	for _, e := range elements {
		e.CustomFields = cloneFields(e.CustomFields)
		s.elements = append(s.elements, e)
	}
	return s
}

func (s *Store) SetFields(defs []domain.CustomFieldDefinition) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = append([]domain.CustomFieldDefinition(nil), defs...)
	return s
}

func (s *Store) record(format string, args ...any) {
	s.Calls = append(s.Calls, fmt.Sprintf(format, args...))
}

func (s *Store) WriteCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.Calls))
	for _, c := range s.Calls {
		if !strings.HasPrefix(c, "GET ") {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) ListHierarchies(_ context.Context) ([]domain.Hierarchy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GET /hierarchies")
	return append([]domain.Hierarchy(nil), s.hierarchies...), nil
}

func (s *Store) CreateHierarchy(_ context.Context, h domain.Hierarchy) (domain.Hierarchy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("POST /hierarchies %s", h.Name)
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	s.hierarchies = append(s.hierarchies, h)
	return h, nil
}

func (s *Store) DeleteHierarchy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("DELETE /hierarchies/%s", id)
	idx := -1
	for i, h := range s.hierarchies {
		if h.ID == id {
			idx = i
		}
	}
	if idx < 0 {
		return services.ErrNodeNotFound
	}
	s.hierarchies = append(s.hierarchies[:idx], s.hierarchies[idx+1:]...)
	kept := s.nodes[:0]
	for _, n := range s.nodes {
		if n.HierarchyID != id {
			kept = append(kept, n)
		}
	}
	s.nodes = kept
	for i := range s.elements {
		if domain.Deref(s.elements[i].HierarchyID) == id {
			s.elements[i].NodeID = nil
			s.elements[i].HierarchyID = nil
		}
	}
	return nil
}

func (s *Store) GetStructure(_ context.Context, hierarchyID string) (domain.Structure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GET /hierarchy-structure/%s", hierarchyID)
	st := domain.Structure{Nodes: make([]domain.Node, 0), Unassigned: make([]domain.Element, 0)}
	found := false
	for _, h := range s.hierarchies {
		if h.ID == hierarchyID {
			st.Hierarchy = h
			found = true
		}
	}
	if !found {
		return domain.Structure{}, fmt.Errorf("hierarchy %s: %w", hierarchyID, services.ErrNodeNotFound)
	}
	for _, n := range s.nodes {
		if n.HierarchyID == hierarchyID {
			st.Nodes = append(st.Nodes, n)
		}
	}
	for _, e := range s.elements {
		if !e.Assigned() {
			e.CustomFields = cloneFields(e.CustomFields)
			st.Unassigned = append(st.Unassigned, e)
		}
	}
	return st, nil
}

func (s *Store) CreateNode(_ context.Context, in services.NodeInput) (domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("POST /hierarchy-nodes %s", in.Name)
	if err := s.FailOn[in.Name]; err != nil {
		return domain.Node{}, err
	}
	n := domain.Node{
		ID:          uuid.NewString(),
		HierarchyID: in.HierarchyID,
		Code:        in.Code,
		Name:        in.Name,
		ParentID:    in.ParentID,
		Level:       in.Level,
	}
	s.nodes = append(s.nodes, n)
	return n, nil
}

func (s *Store) UpdateNode(_ context.Context, id string, parentID *string, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("PUT /hierarchy-nodes/%s", id)
	if err := s.FailOn[id]; err != nil {
		return err
	}
	for i := range s.nodes {
		if s.nodes[i].ID == id {
			s.nodes[i].ParentID = parentID
			s.nodes[i].Level = level
			return nil
		}
	}
	return services.ErrNodeNotFound
}

func (s *Store) DeleteNode(_ context.Context, id string, cascade bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("DELETE /hierarchy-nodes/%s cascade=%t", id, cascade)
	remove := map[string]struct{}{id: {}}
	if cascade {
		for changed := true; changed; {
			changed = false
			for _, n := range s.nodes {
				if _, ok := remove[n.ID]; ok || n.ParentID == nil {
					continue
				}
				if _, ok := remove[*n.ParentID]; ok {
					remove[n.ID] = struct{}{}
					changed = true
				}
			}
		}
	}
	kept := s.nodes[:0]
	for _, n := range s.nodes {
		if _, ok := remove[n.ID]; ok {
			continue
		}
		if n.ParentID != nil {
			if _, ok := remove[*n.ParentID]; ok {
				n.ParentID = nil
				n.Level = 0
			}
		}
		kept = append(kept, n)
	}
	s.nodes = kept
	for i := range s.elements {
		if _, ok := remove[domain.Deref(s.elements[i].NodeID)]; ok {
			s.elements[i].NodeID = nil
			s.elements[i].HierarchyID = nil
		}
	}
	return nil
}

func (s *Store) ListElements(_ context.Context) ([]domain.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GET /%s", s.collection())
	if err := s.FailOn["list_elements"]; err != nil {
		return nil, err
	}
	out := make([]domain.Element, 0, len(s.elements))
	for _, e := range s.elements {
		e.CustomFields = cloneFields(e.CustomFields)
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) CreateElement(_ context.Context, in services.ElementInput) (domain.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("POST /%s %s", s.collection(), in.Code)
	if err := s.FailOn[in.Code]; err != nil {
		return domain.Element{}, err
	}
	e := domain.Element{
		ID:           uuid.NewString(),
		Code:         in.Code,
		Name:         in.Name,
		NodeID:       in.NodeID,
		HierarchyID:  in.HierarchyID,
		Level:        in.Level,
		CustomFields: cloneFields(in.CustomFields),
	}
	s.elements = append(s.elements, e)
	return e, nil
}

func (s *Store) UpdateElement(_ context.Context, id string, upd services.ElementUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("PUT /%s/%s", s.collection(), id)
	if err := s.FailOn[id]; err != nil {
		return err
	}
	for i := range s.elements {
		if s.elements[i].ID != id {
			continue
		}
		if upd.SetPlacement {
			s.elements[i].NodeID = upd.NodeID
			s.elements[i].HierarchyID = upd.HierarchyID
			s.elements[i].Level = upd.Level
		}
		if upd.CustomFields != nil {
			s.elements[i].CustomFields = cloneFields(upd.CustomFields)
		}
		return nil
	}
	return fmt.Errorf("element %s not found", id)
}

func (s *Store) ListCustomFields(_ context.Context) ([]domain.CustomFieldDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GET /custom-fields")
	out := append([]domain.CustomFieldDefinition(nil), s.fields...)
	services.SortDefinitions(out)
	return out, nil
}

// Element returns a copy of the element with the given code.
func (s *Store) Element(code string) (domain.Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.elements {
		if e.Code == code {
			e.CustomFields = cloneFields(e.CustomFields)
			return e, true
		}
	}
	return domain.Element{}, false
}

// Nodes returns the nodes of a hierarchy sorted by level, then name.
func (s *Store) Nodes(hierarchyID string) []domain.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Node, 0)
	for _, n := range s.nodes {
		if n.HierarchyID == hierarchyID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Store) collection() string {
	if s.axis == domain.AxisAccount {
		return "accounts"
	}
	return "entities"
}

func cloneFields(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
