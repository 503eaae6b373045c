package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/services"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
	Header http.Header
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]func(w http.ResponseWriter)
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Body:   body,
		Header: r.Header.Clone(),
	})
	f.mu.Unlock()

	if h, ok := f.routes[r.Method+" "+r.URL.Path]; ok {
		h(w)
		return
	}
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, `{"code":"NOT_FOUND","message":"no route"}`)
}

func (f *fakeBackend) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func jsonRoute(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func newTestClient(t *testing.T, axis domain.Axis, routes map[string]func(w http.ResponseWriter)) (*Client, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{routes: routes}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:         srv.URL + "/api",
		Authorization:   "Bearer token",
		CompanyName:     "Acme",
		RequestIDHeader: "X-Request-Id",
	}, axis)
	require.NoError(t, err)
	return c, backend
}

func TestNew_RejectsInvalidURL(t *testing.T) {
	_, err := New(Config{BaseURL: "not a url"}, domain.AxisEntity)
	require.Error(t, err)
}

func TestClient_GetStructureDecodesNodesAndUnassigned(t *testing.T) {
	c, backend := newTestClient(t, domain.AxisAccount, map[string]func(w http.ResponseWriter){
		"GET /api/hierarchy-structure/7": jsonRoute(http.StatusOK, `{
			"hierarchy": {"id": 7, "hierarchy_name": "Chart", "hierarchy_type": "accounts"},
			"nodes": [
				{"id": 1, "name": "Assets", "code": "ASSETS", "parent_id": null, "level": 0,
				 "children": [{"id": 2, "node_name": "Cash", "parent_id": 1, "level": 1}]}
			],
			"unassigned_accounts": [{"id": "a9", "account_code": "9999", "account_name": "Suspense"}]
		}`),
	})

	st, err := c.GetStructure(context.Background(), "7")
	require.NoError(t, err)
	require.Equal(t, "7", st.Hierarchy.ID)
	require.Equal(t, "Chart", st.Hierarchy.Name)
	require.Len(t, st.Nodes, 1)
	require.Equal(t, "ASSETS", st.Nodes[0].Code)
	require.Nil(t, st.Nodes[0].ParentID)
	require.Len(t, st.Nodes[0].Children, 1)
	require.Equal(t, "Cash", st.Nodes[0].Children[0].Name)
	require.Equal(t, "1", *st.Nodes[0].Children[0].ParentID)
	require.Len(t, st.Unassigned, 1)
	require.Equal(t, "9999", st.Unassigned[0].Code)

	req := backend.last()
	require.Equal(t, "company_name=Acme", req.Query)
	require.Equal(t, "Bearer token", req.Header.Get("Authorization"))
	require.NotEmpty(t, req.Header.Get("X-Request-Id"))
}

func TestClient_ListElementsUsesAxisFieldNames(t *testing.T) {
	c, _ := newTestClient(t, domain.AxisEntity, map[string]func(w http.ResponseWriter){
		"GET /api/entities": jsonRoute(http.StatusOK, `{"entities": [
			{"id": 5, "entity_code": "E5", "entity_name": "Five", "node_id": 2, "hierarchy_id": 1, "level": 2,
			 "custom_fields": "{\"region\":\"EU\",\"headcount\":12}"},
			{"id": 6, "code": "E6", "name": "Six"}
		]}`),
	})

	got, err := c.ListElements(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "E5", got[0].Code)
	require.Equal(t, "2", *got[0].NodeID)
	require.Equal(t, 2, got[0].Level)
	require.Equal(t, "EU", got[0].CustomFields["region"])
	require.InDelta(t, 12.0, got[0].CustomFields["headcount"], 0.0001)
	require.Equal(t, "Six", got[1].Name)
	require.False(t, got[1].Assigned())
}

func TestClient_CreateNodeSendsBothNameKeys(t *testing.T) {
	c, backend := newTestClient(t, domain.AxisEntity, map[string]func(w http.ResponseWriter){
		"POST /api/hierarchy-nodes": jsonRoute(http.StatusCreated, `{"node": {"id": 42}}`),
	})

	parent := "3"
	n, err := c.CreateNode(context.Background(), services.NodeInput{
		HierarchyID: "1", Code: "EMEA", Name: "Emea", ParentID: &parent, Level: 1,
	})
	require.NoError(t, err)
	require.Equal(t, "42", n.ID)
	require.Equal(t, "Emea", n.Name)
	require.Equal(t, "EMEA", n.Code)

	body := backend.last().Body
	require.Equal(t, "Emea", body["name"])
	require.Equal(t, "Emea", body["node_name"])
	require.Equal(t, "EMEA", body["node_code"])
	require.Equal(t, "3", body["parent_id"])
	require.InDelta(t, 1.0, body["level"], 0.0001)
}

func TestClient_UpdateElementPayloads(t *testing.T) {
	c, backend := newTestClient(t, domain.AxisAccount, map[string]func(w http.ResponseWriter){
		"PUT /api/accounts/a1": jsonRoute(http.StatusOK, `{}`),
	})
	ctx := context.Background()

	node, h := "n2", "h1"
	require.NoError(t, c.UpdateElement(ctx, "a1", services.ElementUpdate{SetPlacement: true, NodeID: &node, HierarchyID: &h, Level: 2}))
	body := backend.last().Body
	require.Equal(t, "n2", body["node_id"])
	require.InDelta(t, 2.0, body["level"], 0.0001)
	require.NotContains(t, body, "custom_fields")

	require.NoError(t, c.UpdateElement(ctx, "a1", services.ElementUpdate{SetPlacement: true}))
	body = backend.last().Body
	require.Contains(t, body, "node_id")
	require.Nil(t, body["node_id"])
	require.Nil(t, body["hierarchy_id"])
	require.NotContains(t, body, "level")

	require.NoError(t, c.UpdateElement(ctx, "a1", services.ElementUpdate{CustomFields: map[string]any{"region": "US"}}))
	body = backend.last().Body
	require.NotContains(t, body, "node_id")
	require.Equal(t, map[string]any{"region": "US"}, body["custom_fields"])
}

func TestClient_ErrorEnvelopeBecomesServiceError(t *testing.T) {
	c, _ := newTestClient(t, domain.AxisEntity, map[string]func(w http.ResponseWriter){
		"DELETE /api/hierarchy-nodes/9": jsonRoute(http.StatusConflict, `{"code":"NODE_HAS_CHILDREN","message":"node has children"}`),
		"GET /api/hierarchies":          jsonRoute(http.StatusBadGateway, `upstream exploded`),
	})

	err := c.DeleteNode(context.Background(), "9", false)
	var svcErr *services.ServiceError
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, http.StatusConflict, svcErr.Status)
	require.Equal(t, "NODE_HAS_CHILDREN", svcErr.Code)
	require.Contains(t, svcErr.Message, "node has children")

	_, err = c.ListHierarchies(context.Background())
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, "HIERARCHY_UPSTREAM_ERROR", svcErr.Code)
	require.Contains(t, svcErr.Message, "upstream exploded")
}

func TestClient_ListHierarchiesFiltersByAxis(t *testing.T) {
	c, backend := newTestClient(t, domain.AxisAccount, map[string]func(w http.ResponseWriter){
		"GET /api/hierarchies": jsonRoute(http.StatusOK, `[{"id": 1, "name": "Chart", "hierarchy_type": "accounts"}]`),
	})

	got, err := c.ListHierarchies(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.Hierarchy{{ID: "1", Name: "Chart", Type: "accounts"}}, got)
	require.Contains(t, backend.last().Query, "hierarchy_type=accounts")
}

func TestClient_ListCustomFields(t *testing.T) {
	c, _ := newTestClient(t, domain.AxisEntity, map[string]func(w http.ResponseWriter){
		"GET /api/custom-fields": jsonRoute(http.StatusOK, `{"fields": [
			{"field_name": "region", "field_type": "SELECT", "options": "[\"EU\",\"US\"]", "display_order": 2, "is_required": true}
		]}`),
	})

	defs, err := c.ListCustomFields(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.Equal(t, domain.FieldSelect, defs[0].Type)
	require.Equal(t, []string{"EU", "US"}, defs[0].Options)
	require.True(t, defs[0].IsRequired)
	require.Equal(t, 2, defs[0].DisplayOrder)
}
