package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
)

var tracer = otel.Tracer("hierarchy/services")

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

func ParseFormat(v string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported format: %s", v)
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// ArtifactSink archives exports, pre-import backups and import manifests.
type ArtifactSink interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

type HierarchyService struct {
	store    Store
	registry *FieldRegistry
	sink     ArtifactSink
	now      func() time.Time
}

type ServiceOption func(*HierarchyService)

func WithArtifactSink(sink ArtifactSink) ServiceOption {
	return func(s *HierarchyService) { s.sink = sink }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *HierarchyService) { s.now = now }
}

func NewHierarchyService(store Store, registry *FieldRegistry, opts ...ServiceOption) *HierarchyService {
	if registry == nil {
		registry = NewFieldRegistry(store.Axis(), store)
	}
	s := &HierarchyService{store: store, registry: registry, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HierarchyService) Axis() domain.Axis { return s.store.Axis() }

func (s *HierarchyService) Registry() *FieldRegistry { return s.registry }

func (s *HierarchyService) startSpan(ctx context.Context, name, hierarchyID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("hierarchy.axis", s.Axis().String()),
		attribute.String("hierarchy.id", hierarchyID),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *HierarchyService) ListHierarchies(ctx context.Context) ([]domain.Hierarchy, error) {
	return s.store.ListHierarchies(ctx)
}

func (s *HierarchyService) CreateHierarchy(ctx context.Context, h domain.Hierarchy) (domain.Hierarchy, error) {
	h.Name = strings.TrimSpace(h.Name)
	if h.Name == "" {
		return domain.Hierarchy{}, newServiceError(400, "HIERARCHY_INVALID_BODY", "name is required", nil)
	}
	if h.Type == "" {
		h.Type = s.Axis().String()
	}
	return s.store.CreateHierarchy(ctx, h)
}

// DeleteHierarchy removes the hierarchy and its nodes. Its elements are
// unassigned by the backend, not deleted.
func (s *HierarchyService) DeleteHierarchy(ctx context.Context, id string) error {
	return s.store.DeleteHierarchy(ctx, id)
}

// TreeView is the nested view of one hierarchy.
type TreeView struct {
	Hierarchy       domain.Hierarchy            `json:"hierarchy"`
	Roots           []*domain.Node              `json:"nodes"`
	ElementsByNode  map[string][]domain.Element `json:"elements_by_node"`
	Unassigned      []domain.Element            `json:"unassigned"`
	LevelViolations []LevelViolation            `json:"level_violations,omitempty"`

	tree        *Tree
	elements    []domain.Element
	elementsErr error
}

func (v *TreeView) Tree() *Tree { return v.tree }

// Load fetches structure and elements and builds the tree. The full element
// list is authoritative for assignment; when it cannot be read the
// structure's pre-filtered unassigned list is used.
func (s *HierarchyService) Load(ctx context.Context, hierarchyID string) (*TreeView, error) {
	if strings.TrimSpace(hierarchyID) == "" {
		return nil, newServiceError(400, "HIERARCHY_INVALID_ID", "hierarchy id is required", nil)
	}
	st, err := s.store.GetStructure(ctx, hierarchyID)
	if err != nil {
		return nil, err
	}
	tree, err := BuildTree(st.Nodes)
	if err != nil {
		var cyc *CyclicHierarchyError
		if errors.As(err, &cyc) {
			return nil, newServiceError(409, "HIERARCHY_CYCLE", "hierarchy contains a parent cycle", err)
		}
		return nil, err
	}

	view := &TreeView{Hierarchy: st.Hierarchy, Roots: tree.Roots, tree: tree, LevelViolations: CheckLevels(tree)}
	if view.Hierarchy.ID == "" {
		view.Hierarchy.ID = hierarchyID
	}

	all, err := s.store.ListElements(ctx)
	if err != nil {
		logWithFields(ctx, logrus.WarnLevel, "element list unavailable, using structure unassigned list", logrus.Fields{
			"hierarchy_id": hierarchyID,
			"error":        err.Error(),
		})
		view.Unassigned = append([]domain.Element{}, st.Unassigned...)
		view.ElementsByNode = map[string][]domain.Element{}
		view.elementsErr = err
		return view, nil
	}
	var assigned []domain.Element
	assigned, view.Unassigned = SplitElements(all)
	inTree := make([]domain.Element, 0, len(assigned))
	for _, e := range assigned {
		if _, ok := tree.ByID[strings.TrimSpace(*e.NodeID)]; ok {
			inTree = append(inTree, e)
		}
	}
	view.elements = all
	view.ElementsByNode = ElementsByNode(inTree)
	return view, nil
}

func (s *HierarchyService) ExportTable(ctx context.Context, hierarchyID string) (Table, *TreeView, []ExportWarning, error) {
	view, err := s.Load(ctx, hierarchyID)
	if err != nil {
		return Table{}, nil, nil, err
	}
	if view.elementsErr != nil {
		return Table{}, nil, nil, fmt.Errorf("list elements: %w", view.elementsErr)
	}
	cols, err := s.registry.Columns(ctx)
	if err != nil {
		logWithFields(ctx, logrus.WarnLevel, "custom fields unavailable, exporting structural columns only", logrus.Fields{"error": err.Error()})
		cols = nil
	}
	table, warnings, err := Flatten(view.tree, view.elements, cols)
	if err != nil {
		return Table{}, nil, nil, newServiceError(409, "HIERARCHY_CYCLE", "hierarchy contains a parent cycle", err)
	}
	return table, view, warnings, nil
}

type ExportInfo struct {
	Filename string          `json:"filename"`
	Format   Format          `json:"format"`
	Rows     int             `json:"rows"`
	Warnings []ExportWarning `json:"warnings,omitempty"`
	Artifact string          `json:"artifact,omitempty"`
}

func (s *HierarchyService) Export(ctx context.Context, hierarchyID string, format Format, w io.Writer) (info *ExportInfo, err error) {
	ctx, span := s.startSpan(ctx, "hierarchy.export", hierarchyID)
	defer func() { endSpan(span, err) }()

	table, view, warnings, err := s.ExportTable(ctx, hierarchyID)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := EncodeTable(&buf, table, format); err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	info = &ExportInfo{
		Filename: ExportFilename(view.Hierarchy.Name, s.now(), format),
		Format:   format,
		Rows:     len(table.Rows),
		Warnings: warnings,
	}
	if s.sink != nil {
		if loc, err := s.sink.Put(ctx, "exports/"+info.Filename, format.ContentType(), buf.Bytes()); err != nil {
			logWithFields(ctx, logrus.WarnLevel, "export archive failed", logrus.Fields{"hierarchy_id": hierarchyID, "error": err.Error()})
		} else {
			info.Artifact = loc
		}
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, err
	}
	recordExportRows(s.Axis().String(), string(format), info.Rows)
	for _, wn := range warnings {
		logWithFields(ctx, logrus.InfoLevel, "export dropped differing custom field values", logrus.Fields{
			"hierarchy_id": hierarchyID,
			"node_id":      wn.NodeID,
			"column":       wn.Column,
		})
	}
	return info, nil
}

func EncodeTable(w io.Writer, t Table, format Format) error {
	if format == FormatXLSX {
		return WriteXLSX(w, t)
	}
	return WriteCSV(w, t)
}

func DecodeTable(r io.Reader, format Format) (Table, error) {
	if format == FormatXLSX {
		return ReadXLSX(r)
	}
	return ReadCSV(r)
}

var filenameUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ExportFilename builds hierarchy_<name>_<YYYY-MM-DD>.<ext>.
func ExportFilename(name string, now time.Time, format Format) string {
	safe := strings.Trim(filenameUnsafe.ReplaceAllString(strings.TrimSpace(name), "_"), "_")
	if safe == "" {
		safe = "export"
	}
	return fmt.Sprintf("hierarchy_%s_%s.%s", safe, now.Format("2006-01-02"), format)
}

// Import reconciles table against the current server state. With dryRun the
// plan is returned without writes.
func (s *HierarchyService) Import(ctx context.Context, hierarchyID string, table Table, dryRun bool) (res *ImportResult, err error) {
	ctx, span := s.startSpan(ctx, "hierarchy.import", hierarchyID)
	defer func() { endSpan(span, err) }()
	runID := uuid.NewString()

	if strings.TrimSpace(hierarchyID) == "" {
		return nil, newServiceError(400, "HIERARCHY_INVALID_ID", "hierarchy id is required", nil)
	}
	st, err := s.store.GetStructure(ctx, hierarchyID)
	if err != nil {
		return nil, err
	}
	elements, err := s.store.ListElements(ctx)
	if err != nil {
		return nil, err
	}
	state := ReconcileState{HierarchyID: hierarchyID, Nodes: st.Nodes, Elements: elements}

	fieldWarnings := s.checkCells(ctx, table)
	plan := PlanImport(state, table)
	plan.Warnings = append(fieldWarnings, plan.Warnings...)

	if dryRun {
		res = DryRunResult(plan)
	} else {
		s.backup(ctx, hierarchyID, runID)
		res = ApplyPlan(ctx, s.store, plan)
		recordImportResult(s.Axis().String(), res)
	}
	res.RunID = runID
	span.SetAttributes(
		attribute.Int("import.elements_created", res.ElementsCreated),
		attribute.Int("import.elements_updated", res.ElementsUpdated),
		attribute.Int("import.failed", res.Failed),
	)
	logWithFields(ctx, logrus.InfoLevel, "hierarchy import finished", logrus.Fields{
		"hierarchy_id": hierarchyID,
		"axis":         s.Axis(),
		"run_id":       runID,
		"dry_run":      dryRun,
		"summary":      res.Summary,
		"warnings":     len(res.Warnings),
	})
	if !dryRun {
		s.writeManifest(ctx, res)
	}
	return res, nil
}

func (s *HierarchyService) checkCells(ctx context.Context, table Table) []RowIssue {
	defs, err := s.registry.Fields(ctx)
	if err != nil || len(defs) == 0 {
		return nil
	}
	byName := make(map[string]domain.CustomFieldDefinition, len(defs))
	for _, d := range defs {
		byName[d.FieldName] = d
	}
	var out []RowIssue
	for _, col := range table.CustomColumns {
		if _, ok := byName[col]; !ok {
			out = append(out, RowIssue{Line: 1, Message: fmt.Sprintf("column %q is not a defined custom field, values are stored as-is", col)})
		}
	}
	for _, row := range table.Rows {
		if row.NodeID == "" && row.NodeName == "" {
			continue
		}
		if len(row.Elements) == 0 {
			continue
		}
		for _, col := range table.CustomColumns {
			def, ok := byName[col]
			if !ok || strings.TrimSpace(row.Custom[col]) == "" {
				continue
			}
			if err := s.registry.CheckValue(ctx, def, row.Custom[col]); err != nil {
				out = append(out, RowIssue{Line: row.Line, Node: row.NodeName, Message: err.Error()})
			}
		}
	}
	return out
}

func (s *HierarchyService) backup(ctx context.Context, hierarchyID, runID string) {
	if s.sink == nil {
		return
	}
	table, view, _, err := s.ExportTable(ctx, hierarchyID)
	if err != nil {
		logWithFields(ctx, logrus.WarnLevel, "pre-import backup skipped", logrus.Fields{"hierarchy_id": hierarchyID, "error": err.Error()})
		return
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, table); err != nil {
		return
	}
	name := fmt.Sprintf("backups/%s_%s", runID, ExportFilename(view.Hierarchy.Name, s.now(), FormatCSV))
	if _, err := s.sink.Put(ctx, name, FormatCSV.ContentType(), buf.Bytes()); err != nil {
		logWithFields(ctx, logrus.WarnLevel, "pre-import backup failed", logrus.Fields{"hierarchy_id": hierarchyID, "error": err.Error()})
	}
}

func (s *HierarchyService) writeManifest(ctx context.Context, res *ImportResult) {
	if s.sink == nil {
		return
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return
	}
	name := fmt.Sprintf("manifests/import_manifest_%s_%s.json", s.now().UTC().Format("20060102T150405Z"), res.RunID)
	if _, err := s.sink.Put(ctx, name, "application/json", b); err != nil {
		logWithFields(ctx, logrus.WarnLevel, "import manifest archive failed", logrus.Fields{"run_id": res.RunID, "error": err.Error()})
	}
}

// Assign loads the hierarchy to find the target node, then assigns.
func (s *HierarchyService) Assign(ctx context.Context, hierarchyID, nodeID string, elementIDs []string) (res *AssignmentResult, err error) {
	ctx, span := s.startSpan(ctx, "hierarchy.assign", hierarchyID)
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(nodeID) == "" {
		return nil, newServiceError(422, "HIERARCHY_TARGET_REQUIRED", "target node is required", ErrTargetNodeRequired)
	}
	view, err := s.Load(ctx, hierarchyID)
	if err != nil {
		return nil, err
	}
	target, ok := view.tree.ByID[strings.TrimSpace(nodeID)]
	if !ok {
		return nil, newServiceError(404, "HIERARCHY_NODE_NOT_FOUND", "target node not found", ErrNodeNotFound)
	}
	if target.HierarchyID == "" {
		target.HierarchyID = hierarchyID
	}
	return AssignElements(ctx, s.store, target, elementIDs)
}

func (s *HierarchyService) Unassign(ctx context.Context, elementIDs []string) *AssignmentResult {
	return UnassignElements(ctx, s.store, elementIDs)
}

func (s *HierarchyService) MoveNode(ctx context.Context, hierarchyID, nodeID string, parentID *string) (res *MoveResult, err error) {
	ctx, span := s.startSpan(ctx, "hierarchy.move_node", hierarchyID)
	defer func() { endSpan(span, err) }()

	view, err := s.Load(ctx, hierarchyID)
	if err != nil {
		return nil, err
	}
	res, err = MoveNode(ctx, s.store, view.tree, nodeID, parentID)
	switch {
	case errors.Is(err, ErrNodeCycle):
		return nil, newServiceError(409, "HIERARCHY_CYCLE", err.Error(), err)
	case errors.Is(err, ErrNodeNotFound):
		return nil, newServiceError(404, "HIERARCHY_NODE_NOT_FOUND", err.Error(), err)
	}
	return res, err
}

func (s *HierarchyService) DeleteNode(ctx context.Context, nodeID string, cascade bool) error {
	if strings.TrimSpace(nodeID) == "" {
		return newServiceError(400, "HIERARCHY_INVALID_ID", "node id is required", nil)
	}
	return s.store.DeleteNode(ctx, nodeID, cascade)
}

func (s *HierarchyService) CustomFields(ctx context.Context) ([]domain.CustomFieldDefinition, error) {
	return s.registry.Fields(ctx)
}
