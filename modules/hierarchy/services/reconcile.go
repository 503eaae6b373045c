package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
)

const plannedRefPrefix = "+new/"

type ElementAction string

const (
	ActionCreate    ElementAction = "create"
	ActionUpdate    ElementAction = "update"
	ActionUnchanged ElementAction = "unchanged"
)

type RowIssue struct {
	Line    int    `json:"line,omitempty"`
	Node    string `json:"node,omitempty"`
	Element string `json:"element,omitempty"`
	Message string `json:"message"`
}

type PlannedNode struct {
	Ref        string `json:"ref"`
	Line       int    `json:"line"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	ParentRef  string `json:"parent_ref,omitempty"`
	ParentCode string `json:"parent_node_code,omitempty"`
	Level      int    `json:"level"`

	levelColumn string
}

type PlannedElement struct {
	Line         int             `json:"line"`
	Code         string          `json:"code"`
	Action       ElementAction   `json:"action"`
	ElementID    string          `json:"element_id,omitempty"`
	NodeRef      string          `json:"node_ref"`
	Move         bool            `json:"move,omitempty"`
	Level        int             `json:"level"`
	CustomFields map[string]any  `json:"custom_fields,omitempty"`
	Diff         json.RawMessage `json:"diff,omitempty"`
}

// ImportPlan is the write-free outcome of diffing a table against the
// current state. Nodes are in creation order (parents first).
type ImportPlan struct {
	HierarchyID   string           `json:"hierarchy_id"`
	Nodes         []PlannedNode    `json:"nodes"`
	Elements      []PlannedElement `json:"elements"`
	RowsProcessed int              `json:"rows_processed"`
	RowsSkipped   int              `json:"rows_skipped"`
	Warnings      []RowIssue       `json:"warnings,omitempty"`
}

// ReconcileState is the freshly loaded server state an import diffs against.
type ReconcileState struct {
	HierarchyID string
	Nodes       []domain.Node
	Elements    []domain.Element
}

type ImportResult struct {
	RunID             string           `json:"run_id"`
	HierarchyID       string           `json:"hierarchy_id"`
	DryRun            bool             `json:"dry_run"`
	RowsProcessed     int              `json:"rows_processed"`
	RowsSkipped       int              `json:"rows_skipped"`
	NodesCreated      int              `json:"nodes_created"`
	ElementsCreated   int              `json:"elements_created"`
	ElementsUpdated   int              `json:"elements_updated"`
	ElementsUnchanged int              `json:"elements_unchanged"`
	Failed            int              `json:"failed"`
	Warnings          []RowIssue       `json:"warnings,omitempty"`
	Errors            []RowIssue       `json:"errors,omitempty"`
	Elements          []PlannedElement `json:"elements,omitempty"`
	Summary           string           `json:"summary"`
}

func (r *ImportResult) summarize() {
	s := fmt.Sprintf("%d new, %d updated, %d unchanged", r.ElementsCreated, r.ElementsUpdated, r.ElementsUnchanged)
	if r.NodesCreated > 0 {
		s += fmt.Sprintf(" (%d nodes created)", r.NodesCreated)
	}
	if r.Failed > 0 {
		s += fmt.Sprintf(", %d failed", r.Failed)
	}
	r.Summary = s
}

type nodeIndex struct {
	byID   map[string]*domain.Node
	byCode map[string]*domain.Node
	byName map[string]*domain.Node
	byGen  map[string]*domain.Node
	levels map[string]int

	// byRowKey lists every node under its folded name and derived code.
	byRowKey map[string][]*domain.Node
}

func foldKey(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

func newNodeIndex(nodes []domain.Node) *nodeIndex {
	idx := &nodeIndex{
		byID:   make(map[string]*domain.Node, len(nodes)),
		byCode: make(map[string]*domain.Node, len(nodes)),
		byName: make(map[string]*domain.Node, len(nodes)),
		byGen:  make(map[string]*domain.Node, len(nodes)),
		levels: make(map[string]int, len(nodes)),

		byRowKey: make(map[string][]*domain.Node, len(nodes)),
	}
	for i := range nodes {
		n := &nodes[i]
		idx.add(n)
	}
	return idx
}

// add keeps the first node for every key.
func (idx *nodeIndex) add(n *domain.Node) {
	if _, ok := idx.byID[n.ID]; ok {
		return
	}
	idx.byID[n.ID] = n
	idx.levels[n.ID] = n.Level
	putFirst(idx.byCode, foldKey(n.Code), n)
	putFirst(idx.byName, foldKey(n.Name), n)
	putFirst(idx.byGen, foldKey(GeneratedParentCode(n.Name)), n)

	nameKey := foldKey(n.Name)
	codeKey := foldKey(DeriveCode(n.Name))
	if c := foldKey(n.Code); c != "" {
		codeKey = c
	}
	for _, key := range []string{nameKey, codeKey} {
		if key != "" {
			idx.byRowKey[key] = append(idx.byRowKey[key], n)
		}
		if codeKey == nameKey {
			break
		}
	}
}

func putFirst(m map[string]*domain.Node, key string, n *domain.Node) {
	if key == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = n
	}
}

// rowCandidates returns the nodes a node_name may refer to, matched by
// derived code or by name, in index order and without duplicates.
func (idx *nodeIndex) rowCandidates(name string) []*domain.Node {
	var out []*domain.Node
	seen := make(map[string]struct{})
	for _, key := range []string{foldKey(DeriveCode(name)), foldKey(name)} {
		for _, n := range idx.byRowKey[key] {
			if _, ok := seen[n.ID]; ok {
				continue
			}
			seen[n.ID] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}

// lookupParent matches a parent_node_code by code, name, id and generated
// code, in that order.
func (idx *nodeIndex) lookupParent(code string) *domain.Node {
	key := foldKey(code)
	if key == "" {
		return nil
	}
	if n := idx.byCode[key]; n != nil {
		return n
	}
	if n := idx.byName[key]; n != nil {
		return n
	}
	if n := idx.byID[strings.TrimSpace(code)]; n != nil {
		return n
	}
	return idx.byGen[key]
}

// parentKey names the node a parent_node_code resolves to right now, so two
// spellings of the same parent compare equal. Unresolved codes compare by
// their folded text.
func parentKey(code string, existing, planned *nodeIndex) string {
	if strings.TrimSpace(code) == "" {
		return ""
	}
	if n := existing.lookupParent(code); n != nil {
		return "id:" + n.ID
	}
	if n := planned.lookupParent(code); n != nil {
		return "id:" + n.ID
	}
	return "code:" + foldKey(code)
}

// resolveRowNode finds the node a row without a known node_id refers to.
// A same-named node only matches when it sits under the row's parent; a row
// with no parent_node_code may also reuse the only node of that name. The
// second result reports that same-named nodes exist but none qualified.
func resolveRowNode(row Row, existing, planned *nodeIndex, plannedByRef map[string]*PlannedNode) (string, bool) {
	want := parentKey(row.ParentNodeCode, existing, planned)

	existingCands := existing.rowCandidates(row.NodeName)
	for _, n := range existingCands {
		got := ""
		if !n.IsRoot() {
			got = "id:" + strings.TrimSpace(*n.ParentID)
		}
		if got == want {
			return n.ID, false
		}
	}
	plannedCands := planned.rowCandidates(row.NodeName)
	for _, n := range plannedCands {
		if parentKey(plannedByRef[n.ID].ParentCode, existing, planned) == want {
			return n.ID, false
		}
	}

	total := len(existingCands) + len(plannedCands)
	if want == "" && total == 1 {
		if len(existingCands) == 1 {
			return existingCands[0].ID, false
		}
		return plannedCands[0].ID, false
	}
	return "", total > 0
}

func (idx *nodeIndex) suggest(code string) string {
	targets := make([]string, 0, len(idx.byCode)+len(idx.byGen))
	for _, n := range idx.byID {
		if c := strings.TrimSpace(n.Code); c != "" {
			targets = append(targets, c)
		} else if g := GeneratedParentCode(n.Name); g != "" {
			targets = append(targets, g)
		}
	}
	sort.Strings(targets)
	ranks := fuzzy.RankFindNormalizedFold(code, targets)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}
	best, bestDist := "", 4
	for _, t := range targets {
		if d := fuzzy.LevenshteinDistance(strings.ToUpper(code), strings.ToUpper(t)); d < bestDist {
			best, bestDist = t, d
		}
	}
	return best
}

func isPlannedRef(ref string) bool { return strings.HasPrefix(ref, plannedRefPrefix) }

// PlanImport diffs table against state without performing any write.
func PlanImport(state ReconcileState, table Table) *ImportPlan {
	plan := &ImportPlan{HierarchyID: state.HierarchyID, Nodes: make([]PlannedNode, 0), Elements: make([]PlannedElement, 0)}

	flat := FlattenNested(state.Nodes)
	existing := newNodeIndex(flat)
	planned := newNodeIndex(nil)
	plannedByRef := make(map[string]*PlannedNode)
	var plannedOrder []string

	type resolvedRow struct {
		row   Row
		ref   string
		codes []string
	}
	resolved := make([]resolvedRow, 0, len(table.Rows))

	for _, row := range table.Rows {
		if row.NodeID == "" && row.NodeName == "" {
			plan.RowsSkipped++
			continue
		}
		plan.RowsProcessed++

		codes := row.Elements
		if row.RawElements != "" {
			var ok bool
			codes, ok = ParseElementList(row.RawElements)
			if !ok {
				plan.Warnings = append(plan.Warnings, RowIssue{
					Line:    row.Line,
					Node:    row.NodeName,
					Message: fmt.Sprintf("elements value %q is not a [A, B] list, treated as empty", row.RawElements),
				})
			}
		}

		ref := ""
		if n := existing.byID[row.NodeID]; row.NodeID != "" && n != nil {
			ref = n.ID
		}
		namesake := false
		if ref == "" && row.NodeName != "" {
			ref, namesake = resolveRowNode(row, existing, planned, plannedByRef)
		}
		if ref == "" && row.NodeName != "" {
			if namesake {
				plan.Warnings = append(plan.Warnings, RowIssue{
					Line:    row.Line,
					Node:    row.NodeName,
					Message: fmt.Sprintf("a node named %q exists under another parent, created a new node under %q", row.NodeName, row.ParentNodeCode),
				})
			}
			ref = fmt.Sprintf("%s%d", plannedRefPrefix, len(plannedOrder)+1)
			pn := &PlannedNode{
				Ref:         ref,
				Line:        row.Line,
				Code:        DeriveCode(row.NodeName),
				Name:        row.NodeName,
				ParentCode:  row.ParentNodeCode,
				levelColumn: row.Level,
			}
			plannedByRef[ref] = pn
			plannedOrder = append(plannedOrder, ref)
			planned.add(&domain.Node{ID: ref, Code: pn.Code, Name: pn.Name})
		}
		if ref == "" {
			plan.Warnings = append(plan.Warnings, RowIssue{
				Line:    row.Line,
				Node:    row.NodeID,
				Message: fmt.Sprintf("node %s not found and node_name is empty, row ignored", row.NodeID),
			})
			continue
		}
		resolved = append(resolved, resolvedRow{row: row, ref: ref, codes: codes})
	}

	for _, ref := range plannedOrder {
		pn := plannedByRef[ref]
		if pn.ParentCode == "" {
			continue
		}
		parent := existing.lookupParent(pn.ParentCode)
		if parent == nil {
			parent = planned.lookupParent(pn.ParentCode)
		}
		switch {
		case parent == nil:
			msg := fmt.Sprintf("parent %q not found, created as root", pn.ParentCode)
			all := newNodeIndex(append(append([]domain.Node(nil), flat...), plannedNodes(plannedByRef, plannedOrder)...))
			if s := all.suggest(pn.ParentCode); s != "" {
				msg += fmt.Sprintf(" (did you mean %q?)", s)
			}
			plan.Warnings = append(plan.Warnings, RowIssue{Line: pn.Line, Node: pn.Name, Message: msg})
		case parent.ID == pn.Ref:
			plan.Warnings = append(plan.Warnings, RowIssue{Line: pn.Line, Node: pn.Name, Message: "node cannot be its own parent, created as root"})
		default:
			pn.ParentRef = parent.ID
		}
	}

	levels := make(map[string]int, len(existing.levels)+len(plannedOrder))
	for id, lvl := range existing.levels {
		levels[id] = lvl
	}
	for _, ref := range orderPlannedNodes(plannedByRef, plannedOrder, plan) {
		pn := plannedByRef[ref]
		switch lvl, err := strconv.Atoi(pn.levelColumn); {
		case pn.levelColumn != "" && err == nil && lvl >= 0:
			pn.Level = lvl
		case pn.ParentRef != "":
			pn.Level = levels[pn.ParentRef] + 1
		default:
			pn.Level = 0
		}
		if pn.levelColumn != "" && (pn.Level != mustAtoi(pn.levelColumn)) {
			plan.Warnings = append(plan.Warnings, RowIssue{Line: pn.Line, Node: pn.Name, Message: fmt.Sprintf("level %q is not a non-negative integer, derived %d", pn.levelColumn, pn.Level)})
		}
		levels[ref] = pn.Level
		plan.Nodes = append(plan.Nodes, *pn)
	}

	elementsByCode := make(map[string]domain.Element, len(state.Elements))
	for _, e := range state.Elements {
		code := strings.TrimSpace(e.Code)
		if _, ok := elementsByCode[code]; code != "" && !ok {
			elementsByCode[code] = e
		}
	}
	seen := make(map[string]int)
	for _, rr := range resolved {
		rowFields := rowCustomFields(rr.row, table.CustomColumns)
		for _, code := range rr.codes {
			code = strings.TrimSpace(code)
			if code == "" {
				continue
			}
			if first, dup := seen[code]; dup {
				plan.Warnings = append(plan.Warnings, RowIssue{
					Line:    rr.row.Line,
					Node:    rr.row.NodeName,
					Element: code,
					Message: fmt.Sprintf("element already listed on line %d, ignored", first),
				})
				continue
			}
			seen[code] = rr.row.Line
			plan.Elements = append(plan.Elements, planElement(rr.row.Line, code, rr.ref, levels[rr.ref]+1, rowFields, elementsByCode))
		}
	}
	return plan
}

func mustAtoi(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

func plannedNodes(byRef map[string]*PlannedNode, order []string) []domain.Node {
	out := make([]domain.Node, 0, len(order))
	for _, ref := range order {
		pn := byRef[ref]
		out = append(out, domain.Node{ID: ref, Code: pn.Code, Name: pn.Name})
	}
	return out
}

// orderPlannedNodes returns refs with planned parents before their children.
// A cycle among new nodes is broken by turning the node that closes it into a root.
func orderPlannedNodes(byRef map[string]*PlannedNode, order []string, plan *ImportPlan) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(order))
	out := make([]string, 0, len(order))
	var visit func(ref string)
	visit = func(ref string) {
		state[ref] = visiting
		pn := byRef[ref]
		if isPlannedRef(pn.ParentRef) {
			switch state[pn.ParentRef] {
			case visiting:
				plan.Warnings = append(plan.Warnings, RowIssue{Line: pn.Line, Node: pn.Name, Message: fmt.Sprintf("parent %q forms a cycle, created as root", pn.ParentCode)})
				pn.ParentRef = ""
			case unvisited:
				visit(pn.ParentRef)
			}
		}
		state[ref] = done
		out = append(out, ref)
	}
	for _, ref := range order {
		if state[ref] == unvisited {
			visit(ref)
		}
	}
	return out
}

func rowCustomFields(row Row, columns []string) map[string]any {
	out := make(map[string]any, len(columns))
	for _, c := range columns {
		if v := row.Custom[c]; strings.TrimSpace(v) != "" {
			out[c] = v
		}
	}
	return out
}

func planElement(line int, code, ref string, level int, rowFields map[string]any, existing map[string]domain.Element) PlannedElement {
	pe := PlannedElement{Line: line, Code: code, NodeRef: ref, Level: level}
	cur, ok := existing[code]
	if !ok {
		pe.Action = ActionCreate
		pe.CustomFields = rowFields
		return pe
	}
	pe.ElementID = cur.ID
	pe.Move = !cur.Assigned() || strings.TrimSpace(*cur.NodeID) != ref
	changed := FieldsDiffer(cur.CustomFields, rowFields)
	if !pe.Move && !changed {
		pe.Action = ActionUnchanged
		return pe
	}
	pe.Action = ActionUpdate
	if changed {
		pe.CustomFields = MergeCustomFields(cur.CustomFields, rowFields)
		if patch, err := jsondiff.Compare(nonNilMap(cur.CustomFields), pe.CustomFields); err == nil && len(patch) > 0 {
			pe.Diff, _ = json.Marshal(patch)
		}
	}
	return pe
}

// FieldsDiffer reports whether any incoming value differs from the stored one
// once both are rendered as cell text. Keys absent from incoming never differ.
func FieldsDiffer(current, incoming map[string]any) bool {
	for k, v := range incoming {
		if FormatFieldValue(current[k]) != FormatFieldValue(v) {
			return true
		}
	}
	return false
}

// MergeCustomFields is current ∪ incoming with incoming winning, computed as
// an RFC 7386 merge patch.
func MergeCustomFields(current, incoming map[string]any) map[string]any {
	doc, err1 := json.Marshal(nonNilMap(current))
	patch, err2 := json.Marshal(nonNilMap(incoming))
	if err1 == nil && err2 == nil {
		if merged, err := jsonpatch.MergePatch(doc, patch); err == nil {
			out := make(map[string]any)
			if err := json.Unmarshal(merged, &out); err == nil {
				return out
			}
		}
	}
	out := make(map[string]any, len(current)+len(incoming))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// ApplyPlan performs the plan's writes one at a time. A failed write is
// recorded and the remaining writes still run.
func ApplyPlan(ctx context.Context, store Store, plan *ImportPlan) *ImportResult {
	res := &ImportResult{
		HierarchyID:   plan.HierarchyID,
		RowsProcessed: plan.RowsProcessed,
		RowsSkipped:   plan.RowsSkipped,
		Warnings:      append([]RowIssue(nil), plan.Warnings...),
		Elements:      plan.Elements,
	}
	created := make(map[string]string, len(plan.Nodes))
	fail := func(issue RowIssue, err error) {
		res.Failed++
		issue.Message = err.Error()
		res.Errors = append(res.Errors, issue)
		logWithFields(ctx, logrus.WarnLevel, "hierarchy import write failed", logrus.Fields{
			"hierarchy_id": plan.HierarchyID,
			"line":         issue.Line,
			"node":         issue.Node,
			"element":      issue.Element,
			"error":        err.Error(),
		})
	}
	resolve := func(ref string) (string, bool) {
		if !isPlannedRef(ref) {
			return ref, ref != ""
		}
		id, ok := created[ref]
		return id, ok
	}

	for _, pn := range plan.Nodes {
		var parentID *string
		if pn.ParentRef != "" {
			id, ok := resolve(pn.ParentRef)
			if !ok {
				fail(RowIssue{Line: pn.Line, Node: pn.Name}, fmt.Errorf("parent node %q was not created", pn.ParentCode))
				continue
			}
			parentID = &id
		}
		n, err := store.CreateNode(ctx, NodeInput{
			HierarchyID: plan.HierarchyID,
			Code:        pn.Code,
			Name:        pn.Name,
			ParentID:    parentID,
			Level:       pn.Level,
		})
		if err != nil {
			fail(RowIssue{Line: pn.Line, Node: pn.Name}, fmt.Errorf("create node: %w", err))
			continue
		}
		created[pn.Ref] = n.ID
		res.NodesCreated++
	}

	hierarchyID := plan.HierarchyID
	for _, pe := range plan.Elements {
		issue := RowIssue{Line: pe.Line, Element: pe.Code}
		if pe.Action == ActionUnchanged {
			res.ElementsUnchanged++
			continue
		}
		nodeID, ok := resolve(pe.NodeRef)
		if !ok {
			fail(issue, fmt.Errorf("node for element %s was not created", pe.Code))
			continue
		}
		switch pe.Action {
		case ActionCreate:
			_, err := store.CreateElement(ctx, ElementInput{
				Code:         pe.Code,
				Name:         pe.Code,
				NodeID:       domain.StringPtr(nodeID),
				HierarchyID:  domain.StringPtr(hierarchyID),
				Level:        pe.Level,
				CustomFields: pe.CustomFields,
			})
			if err != nil {
				fail(issue, fmt.Errorf("create element: %w", err))
				continue
			}
			res.ElementsCreated++
		case ActionUpdate:
			upd := ElementUpdate{CustomFields: pe.CustomFields}
			if pe.Move {
				upd.SetPlacement = true
				upd.NodeID = domain.StringPtr(nodeID)
				upd.HierarchyID = domain.StringPtr(hierarchyID)
				upd.Level = pe.Level
			}
			if err := store.UpdateElement(ctx, pe.ElementID, upd); err != nil {
				fail(issue, fmt.Errorf("update element: %w", err))
				continue
			}
			res.ElementsUpdated++
		}
	}
	res.summarize()
	return res
}

// DryRunResult reports what ApplyPlan would do.
func DryRunResult(plan *ImportPlan) *ImportResult {
	res := &ImportResult{
		HierarchyID:   plan.HierarchyID,
		DryRun:        true,
		RowsProcessed: plan.RowsProcessed,
		RowsSkipped:   plan.RowsSkipped,
		NodesCreated:  len(plan.Nodes),
		Warnings:      append([]RowIssue(nil), plan.Warnings...),
		Elements:      plan.Elements,
	}
	for _, pe := range plan.Elements {
		switch pe.Action {
		case ActionCreate:
			res.ElementsCreated++
		case ActionUpdate:
			res.ElementsUpdated++
		case ActionUnchanged:
			res.ElementsUnchanged++
		}
	}
	res.summarize()
	return res
}
