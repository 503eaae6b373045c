// Package apiclient implements services.Store on top of the external
// hierarchy REST backend.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/services"
)

type APIError struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Detail  string            `json:"detail"`
	Meta    map[string]string `json:"meta,omitempty"`
}

type Config struct {
	BaseURL         string
	Authorization   string
	CompanyName     string
	RequestIDHeader string
	Timeout         time.Duration
}

var _ services.Store = (*Client)(nil)

type Client struct {
	baseURL         *url.URL
	authorization   string
	companyName     string
	requestIDHeader string
	httpClient      *http.Client
	adapter         AxisAdapter
}

func New(cfg Config, axis domain.Axis) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid hierarchy api url: %q", base)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:         u,
		authorization:   strings.TrimSpace(cfg.Authorization),
		companyName:     strings.TrimSpace(cfg.CompanyName),
		requestIDHeader: cfg.RequestIDHeader,
		httpClient:      &http.Client{Timeout: timeout},
		adapter:         AdapterFor(axis),
	}, nil
}

func (c *Client) Axis() domain.Axis { return c.adapter.Axis }

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, reqBody any, out any) (int, *APIError, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query == nil {
		query = url.Values{}
	}
	if c.companyName != "" {
		query.Set("company_name", c.companyName)
	}
	u.RawQuery = query.Encode()

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return 0, nil, errors.Wrap(err, "json marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "http request")
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.requestIDHeader != "" {
		req.Header.Set(c.requestIDHeader, uuid.NewString())
	}
	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, errors.Wrap(err, "http read")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && (strings.TrimSpace(apiErr.Code) != "" || strings.TrimSpace(apiErr.Detail) != "") {
			return resp.StatusCode, &apiErr, nil
		}
		return resp.StatusCode, &APIError{Message: strings.TrimSpace(string(respBody))}, nil
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return resp.StatusCode, nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return resp.StatusCode, nil, errors.Wrap(err, "json unmarshal response")
	}
	return resp.StatusCode, nil, nil
}

// call turns API error envelopes into *services.ServiceError.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, reqBody any, out any) error {
	status, apiErr, err := c.doJSON(ctx, method, path, query, reqBody, out)
	if err != nil {
		return err
	}
	if apiErr != nil {
		code := apiErr.Code
		if code == "" {
			code = "HIERARCHY_UPSTREAM_ERROR"
		}
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Detail
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &services.ServiceError{
			Status:  status,
			Code:    code,
			Message: fmt.Sprintf("%s %s failed: %s", method, path, msg),
		}
	}
	return nil
}

func (c *Client) ListHierarchies(ctx context.Context) ([]domain.Hierarchy, error) {
	q := url.Values{}
	q.Set("hierarchy_type", c.adapter.Axis.String())
	var raw any
	if err := c.call(ctx, http.MethodGet, "/hierarchies", q, nil, &raw); err != nil {
		return nil, err
	}
	items := listPayload(raw, "hierarchies", "items")
	out := make([]domain.Hierarchy, 0, len(items))
	for _, m := range items {
		out = append(out, decodeHierarchy(m))
	}
	return out, nil
}

func (c *Client) CreateHierarchy(ctx context.Context, h domain.Hierarchy) (domain.Hierarchy, error) {
	body := map[string]any{
		"hierarchy_name": h.Name,
		"name":           h.Name,
		"description":    h.Description,
		"hierarchy_type": h.Type,
	}
	var raw map[string]any
	if err := c.call(ctx, http.MethodPost, "/hierarchies", nil, body, &raw); err != nil {
		return domain.Hierarchy{}, err
	}
	created := decodeHierarchy(unwrap(raw, "hierarchy"))
	if created.Name == "" {
		created.Name = h.Name
	}
	return created, nil
}

func (c *Client) DeleteHierarchy(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/hierarchies/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) GetStructure(ctx context.Context, hierarchyID string) (domain.Structure, error) {
	var raw map[string]any
	if err := c.call(ctx, http.MethodGet, "/hierarchy-structure/"+url.PathEscape(hierarchyID), nil, nil, &raw); err != nil {
		return domain.Structure{}, err
	}
	st := domain.Structure{
		Hierarchy:  domain.Hierarchy{ID: hierarchyID},
		Nodes:      make([]domain.Node, 0),
		Unassigned: c.adapter.decodeUnassigned(raw),
	}
	if hm, ok := raw["hierarchy"].(map[string]any); ok {
		st.Hierarchy = decodeHierarchy(hm)
		if st.Hierarchy.ID == "" {
			st.Hierarchy.ID = hierarchyID
		}
	}
	for _, m := range listPayload(raw["nodes"]) {
		n := decodeNode(m)
		if n.HierarchyID == "" {
			n.HierarchyID = hierarchyID
		}
		st.Nodes = append(st.Nodes, n)
	}
	return st, nil
}

func (c *Client) CreateNode(ctx context.Context, in services.NodeInput) (domain.Node, error) {
	body := map[string]any{
		"name":         in.Name,
		"node_name":    in.Name,
		"code":         in.Code,
		"node_code":    in.Code,
		"parent_id":    in.ParentID,
		"hierarchy_id": in.HierarchyID,
		"level":        in.Level,
	}
	var raw map[string]any
	if err := c.call(ctx, http.MethodPost, "/hierarchy-nodes", nil, body, &raw); err != nil {
		return domain.Node{}, err
	}
	n := decodeNode(unwrap(raw, "node"))
	if n.ID == "" {
		return domain.Node{}, fmt.Errorf("create node %s: response has no id", in.Name)
	}
	if n.Name == "" {
		n.Name = in.Name
	}
	if n.Code == "" {
		n.Code = in.Code
	}
	if n.HierarchyID == "" {
		n.HierarchyID = in.HierarchyID
	}
	return n, nil
}

func (c *Client) UpdateNode(ctx context.Context, id string, parentID *string, level int) error {
	body := map[string]any{"parent_id": parentID, "level": level}
	return c.call(ctx, http.MethodPut, "/hierarchy-nodes/"+url.PathEscape(id), nil, body, nil)
}

func (c *Client) DeleteNode(ctx context.Context, id string, cascade bool) error {
	q := url.Values{}
	q.Set("cascade", strconv.FormatBool(cascade))
	return c.call(ctx, http.MethodDelete, "/hierarchy-nodes/"+url.PathEscape(id), q, nil, nil)
}

func (c *Client) ListElements(ctx context.Context) ([]domain.Element, error) {
	var raw any
	if err := c.call(ctx, http.MethodGet, c.adapter.elementPath(""), nil, nil, &raw); err != nil {
		return nil, err
	}
	items := listPayload(raw, c.adapter.Collection, "items", "data")
	out := make([]domain.Element, 0, len(items))
	for _, m := range items {
		out = append(out, c.adapter.decodeElement(m))
	}
	return out, nil
}

func (c *Client) CreateElement(ctx context.Context, in services.ElementInput) (domain.Element, error) {
	body := c.adapter.encodeElement(in.Code, in.Name)
	body["node_id"] = in.NodeID
	body["hierarchy_id"] = in.HierarchyID
	body["level"] = in.Level
	if in.CustomFields != nil {
		body["custom_fields"] = in.CustomFields
	}
	var raw map[string]any
	if err := c.call(ctx, http.MethodPost, c.adapter.elementPath(""), nil, body, &raw); err != nil {
		return domain.Element{}, err
	}
	return c.adapter.decodeElement(unwrap(raw, strings.TrimSuffix(c.adapter.Collection, "s"), "entity", "account")), nil
}

func (c *Client) UpdateElement(ctx context.Context, id string, upd services.ElementUpdate) error {
	body := map[string]any{}
	if upd.SetPlacement {
		body["node_id"] = upd.NodeID
		body["hierarchy_id"] = upd.HierarchyID
		if upd.NodeID != nil {
			body["level"] = upd.Level
		}
	}
	if upd.CustomFields != nil {
		body["custom_fields"] = upd.CustomFields
	}
	if len(body) == 0 {
		return nil
	}
	return c.call(ctx, http.MethodPut, c.adapter.elementPath(url.PathEscape(id)), nil, body, nil)
}

func (c *Client) ListCustomFields(ctx context.Context) ([]domain.CustomFieldDefinition, error) {
	q := url.Values{}
	q.Set("axis", c.adapter.Axis.String())
	var raw any
	if err := c.call(ctx, http.MethodGet, "/custom-fields", q, nil, &raw); err != nil {
		return nil, err
	}
	items := listPayload(raw, "fields", "custom_fields")
	out := make([]domain.CustomFieldDefinition, 0, len(items))
	for _, m := range items {
		out = append(out, decodeFieldDefinition(m))
	}
	return out, nil
}

// unwrap returns the first nested object under keys, or m itself.
func unwrap(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if inner, ok := m[k].(map[string]any); ok {
			return inner
		}
	}
	if m == nil {
		return map[string]any{}
	}
	return m
}
