package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/services"
	"github.com/prabaj-wq/allinonecompdev-sub004/pkg/application"
	"github.com/prabaj-wq/allinonecompdev-sub004/pkg/httpapi"
	"github.com/prabaj-wq/allinonecompdev-sub004/pkg/middleware"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type HierarchyController struct {
	services      *services.ServiceSet
	apiPrefix     string
	maxUploadSize int64

	// running holds "<axis>/<hierarchy id>" for imports in flight.
	running sync.Map
}

type ControllerOptions struct {
	MaxUploadSize int64
}

func NewHierarchyController(app application.Application, opts ControllerOptions) application.Controller {
	return newHierarchyController(app.Service(services.ServiceSet{}).(*services.ServiceSet), opts)
}

func newHierarchyController(set *services.ServiceSet, opts ControllerOptions) *HierarchyController {
	maxUpload := opts.MaxUploadSize
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &HierarchyController{
		services:      set,
		apiPrefix:     "/hierarchy/api",
		maxUploadSize: maxUpload,
	}
}

func (c *HierarchyController) Key() string {
	return c.apiPrefix
}

func (c *HierarchyController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix + "/{axis}").Subrouter()

	api.HandleFunc("/hierarchies", c.instrumentAPI("hierarchy.list", c.ListHierarchies)).Methods(http.MethodGet)
	api.HandleFunc("/hierarchies", c.instrumentAPI("hierarchy.create", c.CreateHierarchy)).Methods(http.MethodPost)
	api.HandleFunc("/hierarchies/{id}", c.instrumentAPI("hierarchy.delete", c.DeleteHierarchy)).Methods(http.MethodDelete)
	api.HandleFunc("/hierarchies/{id}/tree", c.instrumentAPI("hierarchy.tree", c.GetTree)).Methods(http.MethodGet)
	api.HandleFunc("/hierarchies/{id}/export", c.instrumentAPI("hierarchy.export", c.Export)).Methods(http.MethodGet)
	api.HandleFunc("/hierarchies/{id}/import", c.instrumentAPI("hierarchy.import", c.Import)).Methods(http.MethodPost)
	api.HandleFunc("/hierarchies/{id}/assign", c.instrumentAPI("hierarchy.assign", c.Assign)).Methods(http.MethodPost)
	api.HandleFunc("/hierarchies/{id}/unassign", c.instrumentAPI("hierarchy.unassign", c.Unassign)).Methods(http.MethodPost)
	api.HandleFunc("/hierarchies/{id}/nodes/{node_id}:move", c.instrumentAPI("hierarchy.node.move", c.MoveNode)).Methods(http.MethodPost)
	api.HandleFunc("/hierarchies/{id}/nodes/{node_id}", c.instrumentAPI("hierarchy.node.delete", c.DeleteNode)).Methods(http.MethodDelete)
	api.HandleFunc("/custom-fields", c.instrumentAPI("hierarchy.custom_fields", c.CustomFields)).Methods(http.MethodGet)
}

// service resolves {axis}; it writes the error response itself.
func (c *HierarchyController) service(w http.ResponseWriter, r *http.Request) (*services.HierarchyService, string, bool) {
	requestID := middleware.RequestID(r.Context())
	axis, err := domain.ParseAxis(mux.Vars(r)["axis"])
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "HIERARCHY_INVALID_AXIS", err.Error())
		return nil, requestID, false
	}
	svc, ok := c.services.Get(axis)
	if !ok {
		writeAPIError(w, http.StatusNotFound, requestID, "HIERARCHY_UNKNOWN_AXIS", fmt.Sprintf("axis %q is not configured", axis))
		return nil, requestID, false
	}
	return svc, requestID, true
}

func (c *HierarchyController) ListHierarchies(w http.ResponseWriter, r *http.Request) {
	svc, requestID, ok := c.service(w, r)
	if !ok {
		return
	}
	items, err := svc.ListHierarchies(r.Context())
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	if items == nil {
		items = []domain.Hierarchy{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hierarchies": items})
}

type createHierarchyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (c *HierarchyController) CreateHierarchy(w http.ResponseWriter, r *http.Request) {
	svc, requestID, ok := c.service(w, r)
	if !ok {
		return
	}
	var req createHierarchyRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "HIERARCHY_INVALID_BODY", "invalid json body")
		return
	}
	h, err := svc.CreateHierarchy(r.Context(), domain.Hierarchy{Name: req.Name, Description: req.Description})
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (c *HierarchyController) DeleteHierarchy(w http.ResponseWriter, r *http.Request) {
	svc, requestID, ok := c.service(w, r)
	if !ok {
		return
	}
	if err := svc.DeleteHierarchy(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *HierarchyController) GetTree(w http.ResponseWriter, r *http.Request) {
	svc, requestID, ok := c.service(w, r)
	if !ok {
		return
	}
	view, err := svc.Load(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (c *HierarchyController) Export(w http.ResponseWriter, r *http.Request) {
	svc, requestID, ok := c.service(w, r)
	if !ok {
		return
	}
	format, err := services.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "HIERARCHY_INVALID_QUERY", err.Error())
		return
	}

	var buf bytes.Buffer
	info, err := svc.Export(r.Context(), mux.Vars(r)["id"], format, &buf)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Filename))
	w.Header().Set("X-Export-Rows", strconv.Itoa(info.Rows))
	if len(info.Warnings) > 0 {
		w.Header().Set("X-Export-Warnings", strconv.Itoa(len(info.Warnings)))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (c *HierarchyController) Import(w http.ResponseWriter, r *http.Request) {
	svc, requestID, ok := c.service(w, r)
	if !ok {
		return
	}
	hierarchyID := mux.Vars(r)["id"]

	dryRun := true
	if raw := strings.TrimSpace(r.URL.Query().Get("dry_run")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, "HIERARCHY_INVALID_QUERY", "dry_run must be true or false")
			return
		}
		dryRun = v
	}

	r.Body = http.MaxBytesReader(w, r.Body, c.maxUploadSize)
	if err := r.ParseMultipartForm(c.maxUploadSize); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "HIERARCHY_INVALID_BODY", "multipart form with a file field is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "HIERARCHY_INVALID_BODY", "file is required")
		return
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "HIERARCHY_INVALID_BODY", "failed to read upload")
		return
	}

	format, err := detectUploadFormat(data, header.Filename)
	if err != nil {
		writeAPIError(w, http.StatusUnsupportedMediaType, requestID, "HIERARCHY_UNSUPPORTED_MEDIA", err.Error())
		return
	}
	table, err := services.DecodeTable(bytes.NewReader(data), format)
	if err != nil {
		var malformed *services.MalformedCSVError
		if errors.As(err, &malformed) {
			writeServiceError(w, requestID, err)
			return
		}
		writeAPIError(w, http.StatusBadRequest, requestID, "HIERARCHY_MALFORMED_CSV", err.Error())
		return
	}

	if !dryRun {
		key := svc.Axis().String() + "/" + hierarchyID
		if _, busy := c.running.LoadOrStore(key, struct{}{}); busy {
			writeAPIError(w, http.StatusConflict, requestID, "HIERARCHY_IMPORT_IN_PROGRESS", "an import for this hierarchy is already running")
			return
		}
		defer c.running.Delete(key)
	}

	res, err := svc.Import(r.Context(), hierarchyID, table, dryRun)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// detectUploadFormat sniffs the upload; the file extension only breaks ties
// for plain text.
func detectUploadFormat(data []byte, filename string) (services.Format, error) {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is(xlsxMIME):
		return services.FormatXLSX, nil
	case mt.Is("application/zip"):
		if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
			return services.FormatXLSX, nil
		}
	case mt.Is("text/csv"), mt.Is("text/plain"), strings.HasPrefix(mt.String(), "text/"):
		return services.FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported upload type %s", mt.String())
}

type assignRequest struct {
	NodeID     string   `json:"node_id"`
	ElementIDs []string `json:"element_ids"`
}

func (c *HierarchyController) Assign(w http.ResponseWriter, r *http.Request) {
	svc, requestID, ok := c.service(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "HIERARCHY_INVALID_BODY", "invalid json body")
		return
	}
	if len(req.ElementIDs) == 0 {
		writeAPIError(w, http.StatusBadRequest, requestID, "HIERARCHY_INVALID_BODY", "element_ids is required")
		return
	}
	res, err := svc.Assign(r.Context(), mux.Vars(r)["id"], req.NodeID, req.ElementIDs)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, assignmentStatus(res), res)
}

type unassignRequest struct {
	ElementIDs []string `json:"element_ids"`
}

func (c *HierarchyController) Unassign(w http.ResponseWriter, r *http.Request) {
	svc, requestID, ok := c.service(w, r)
	if !ok {
		return
	}
	var req unassignRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "HIERARCHY_INVALID_BODY", "invalid json body")
		return
	}
	if len(req.ElementIDs) == 0 {
		writeAPIError(w, http.StatusBadRequest, requestID, "HIERARCHY_INVALID_BODY", "element_ids is required")
		return
	}
	res := svc.Unassign(r.Context(), req.ElementIDs)
	writeJSON(w, assignmentStatus(res), res)
}

// assignmentStatus is 207 when some writes failed and 502 when all did.
func assignmentStatus(res *services.AssignmentResult) int {
	switch {
	case res.Partial():
		return http.StatusMultiStatus
	case len(res.Failed) > 0:
		return http.StatusBadGateway
	}
	return http.StatusOK
}

type moveNodeRequest struct {
	ParentID *string `json:"parent_id"`
}

func (c *HierarchyController) MoveNode(w http.ResponseWriter, r *http.Request) {
	svc, requestID, ok := c.service(w, r)
	if !ok {
		return
	}
	var req moveNodeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "HIERARCHY_INVALID_BODY", "invalid json body")
		return
	}
	vars := mux.Vars(r)
	res, err := svc.MoveNode(r.Context(), vars["id"], vars["node_id"], req.ParentID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *HierarchyController) DeleteNode(w http.ResponseWriter, r *http.Request) {
	svc, requestID, ok := c.service(w, r)
	if !ok {
		return
	}
	cascade := false
	if raw := strings.TrimSpace(r.URL.Query().Get("cascade")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, "HIERARCHY_INVALID_QUERY", "cascade must be true or false")
			return
		}
		cascade = v
	}
	if err := svc.DeleteNode(r.Context(), mux.Vars(r)["node_id"], cascade); err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *HierarchyController) CustomFields(w http.ResponseWriter, r *http.Request) {
	svc, requestID, ok := c.service(w, r)
	if !ok {
		return
	}
	defs, err := svc.CustomFields(r.Context())
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	if defs == nil {
		defs = []domain.CustomFieldDefinition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"axis": svc.Axis(), "fields": defs})
}

func decodeJSON(body io.ReadCloser, out any) error {
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	var coded httpapi.CodedError
	if errors.As(err, &coded) {
		status := coded.HTTPStatus()
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		writeAPIError(w, status, requestID, coded.ErrorCode(), coded.Error())
		return
	}
	writeAPIError(w, http.StatusInternalServerError, requestID, "HIERARCHY_INTERNAL", err.Error())
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	_ = httpapi.WriteError(w, status, code, message, meta)
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	_ = httpapi.WriteJSON(w, status, payload)
}
