package controllers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/infrastructure/memstore"
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/services"
	"github.com/prabaj-wq/allinonecompdev-sub004/pkg/httpapi"
)

const twoNodeCSV = `"node_id","node_name","elements","level","parent_node_code"
"1","Americas","[ACC001, ACC002]","0",""
"2","Europe","[]","0",""`

func ptr(s string) *string { return &s }

type fixture struct {
	controller *HierarchyController
	router     *mux.Router
	accounts   *memstore.Store
	entities   *memstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	accounts := memstore.New(domain.AxisAccount).Seed(domain.Hierarchy{ID: "h1", Name: "Chart"}, nil, nil)
	accounts.SetFields([]domain.CustomFieldDefinition{{FieldName: "region", Type: domain.FieldText}})
	entities := memstore.New(domain.AxisEntity).Seed(
		domain.Hierarchy{ID: "h2", Name: "Legal"},
		[]domain.Node{
			{ID: "N1", Code: "ROOT", Name: "Root", Level: 0},
			{ID: "N2", Code: "EMEA", Name: "EMEA", ParentID: ptr("N1"), Level: 1},
		},
		[]domain.Element{{ID: "E5", Code: "E5"}},
	)

	set := services.NewServiceSet(
		services.NewHierarchyService(accounts, nil),
		services.NewHierarchyService(entities, nil),
	)
	c := newHierarchyController(set, ControllerOptions{})
	r := mux.NewRouter()
	c.Register(r)
	return &fixture{controller: c, router: r, accounts: accounts, entities: entities}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) upload(t *testing.T, path, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) httpapi.ErrorEnvelope {
	t.Helper()
	var env httpapi.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	return env
}

func TestHierarchyController_ListHierarchiesPerAxis(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/hierarchy/api/accounts/hierarchies", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var payload struct {
		Hierarchies []domain.Hierarchy `json:"hierarchies"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&payload))
	require.Len(t, payload.Hierarchies, 1)
	require.Equal(t, "Chart", payload.Hierarchies[0].Name)

	rr = f.do(t, http.MethodGet, "/hierarchy/api/widgets/hierarchies", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "HIERARCHY_UNKNOWN_AXIS", decodeEnvelope(t, rr).Code)
}

func TestHierarchyController_ImportDryRunThenApply(t *testing.T) {
	f := newFixture(t)

	rr := f.upload(t, "/hierarchy/api/accounts/hierarchies/h1/import", "chart.csv", []byte(twoNodeCSV))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res services.ImportResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	require.True(t, res.DryRun)
	require.Equal(t, 2, res.ElementsCreated)
	require.Empty(t, f.accounts.WriteCalls())

	rr = f.upload(t, "/hierarchy/api/accounts/hierarchies/h1/import?dry_run=false", "chart.csv", []byte(twoNodeCSV))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res = services.ImportResult{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	require.False(t, res.DryRun)
	require.Equal(t, "2 new, 0 updated, 0 unchanged (2 nodes created)", res.Summary)
	require.Len(t, f.accounts.Nodes("h1"), 2)
}

func TestHierarchyController_ImportRejectsMalformedCSV(t *testing.T) {
	f := newFixture(t)

	rr := f.upload(t, "/hierarchy/api/accounts/hierarchies/h1/import?dry_run=false", "bad.csv", []byte("node_name,elements\nA,[X]\n"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "HIERARCHY_MALFORMED_CSV", decodeEnvelope(t, rr).Code)
	require.Empty(t, f.accounts.WriteCalls())
}

func TestHierarchyController_ImportGuardRejectsConcurrentApply(t *testing.T) {
	f := newFixture(t)
	f.controller.running.Store("account/h1", struct{}{})

	rr := f.upload(t, "/hierarchy/api/accounts/hierarchies/h1/import?dry_run=false", "chart.csv", []byte(twoNodeCSV))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "HIERARCHY_IMPORT_IN_PROGRESS", decodeEnvelope(t, rr).Code)

	// dry runs never write, so they are not guarded
	rr = f.upload(t, "/hierarchy/api/accounts/hierarchies/h1/import", "chart.csv", []byte(twoNodeCSV))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHierarchyController_ExportCSVAttachment(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/hierarchy/api/entities/hierarchies/h2/export?format=csv", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Header().Get("Content-Disposition"), "hierarchy_Legal_")
	require.Equal(t, "2", rr.Header().Get("X-Export-Rows"))
	lines := strings.Split(rr.Body.String(), "\n")
	require.Equal(t, `"node_id","node_name","elements","level","parent_node_code"`, lines[0])

	rr = f.do(t, http.MethodGet, "/hierarchy/api/entities/hierarchies/h2/export?format=pdf", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHierarchyController_ExportXLSXReimports(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/hierarchy/api/entities/hierarchies/h2/export?format=xlsx", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	format, err := detectUploadFormat(rr.Body.Bytes(), "legal.xlsx")
	require.NoError(t, err)
	require.Equal(t, services.FormatXLSX, format)

	up := f.upload(t, "/hierarchy/api/entities/hierarchies/h2/import", "legal.xlsx", rr.Body.Bytes())
	require.Equal(t, http.StatusOK, up.Code, up.Body.String())
	var res services.ImportResult
	require.NoError(t, json.NewDecoder(up.Body).Decode(&res))
	require.Zero(t, res.NodesCreated)
	require.Zero(t, res.ElementsCreated)
}

func TestHierarchyController_AssignAndUnassign(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/hierarchy/api/entities/hierarchies/h2/assign", map[string]any{"element_ids": []string{"E5"}})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "HIERARCHY_TARGET_REQUIRED", decodeEnvelope(t, rr).Code)

	rr = f.do(t, http.MethodPost, "/hierarchy/api/entities/hierarchies/h2/assign", map[string]any{"node_id": "N2", "element_ids": []string{"E5"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res services.AssignmentResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	require.Equal(t, 2, res.Level)
	e, _ := f.entities.Element("E5")
	require.Equal(t, "N2", domain.Deref(e.NodeID))

	rr = f.do(t, http.MethodPost, "/hierarchy/api/entities/hierarchies/h2/unassign", map[string]any{"element_ids": []string{"E5"}})
	require.Equal(t, http.StatusOK, rr.Code)
	e, _ = f.entities.Element("E5")
	require.False(t, e.Assigned())

	rr = f.do(t, http.MethodPost, "/hierarchy/api/entities/hierarchies/h2/unassign", map[string]any{"element_ids": []string{}})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHierarchyController_MoveNodeRejectsCycle(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/hierarchy/api/entities/hierarchies/h2/nodes/N1:move", map[string]any{"parent_id": "N2"})
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "HIERARCHY_CYCLE", decodeEnvelope(t, rr).Code)

	rr = f.do(t, http.MethodPost, "/hierarchy/api/entities/hierarchies/h2/nodes/N2:move", map[string]any{"parent_id": nil})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res services.MoveResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	require.Equal(t, 0, res.Level)
	require.Nil(t, res.ParentID)
}

func TestHierarchyController_CustomFields(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/hierarchy/api/account/custom-fields", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var payload struct {
		Axis   string                         `json:"axis"`
		Fields []domain.CustomFieldDefinition `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&payload))
	require.Equal(t, "account", payload.Axis)
	require.Len(t, payload.Fields, 1)
	require.Equal(t, "region", payload.Fields[0].FieldName)
}

func TestHierarchyController_instrumentAPI_UsesStableEndpointLabel(t *testing.T) {
	c := newFixture(t).controller

	handler := c.instrumentAPI("hierarchy.test.endpoint", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	req := httptest.NewRequest(http.MethodGet, "/hierarchy/api/accounts/hierarchies/"+strings.Repeat("a", 36)+"/tree", nil)
	handler(httptest.NewRecorder(), mux.SetURLVars(req, map[string]string{"axis": "accounts"}))
	req = httptest.NewRequest(http.MethodGet, "/hierarchy/api/bogus/hierarchies", nil)
	handler(httptest.NewRecorder(), mux.SetURLVars(req, map[string]string{"axis": "bogus"}))

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	axes := map[string]bool{}
	for _, mf := range mfs {
		if mf.GetName() != "hierarchy_api_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := labelsToMap(m)
			if labels["endpoint"] == "hierarchy.test.endpoint" && labels["result"] == "4xx" {
				require.GreaterOrEqual(t, m.GetCounter().GetValue(), float64(1))
				axes[labels["axis"]] = true
			}
		}
	}
	require.Equal(t, map[string]bool{"account": true, "other": true}, axes)
}

func labelsToMap(m *dto.Metric) map[string]string {
	out := map[string]string{}
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}
