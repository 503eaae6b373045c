package services

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
)

const (
	ColNodeID         = "node_id"
	ColNodeName       = "node_name"
	ColElements       = "elements"
	ColLevel          = "level"
	ColParentNodeCode = "parent_node_code"

	generatedCodeSuffix = "_NEW"
)

var RequiredColumns = []string{ColNodeID, ColNodeName, ColElements, ColLevel, ColParentNodeCode}

var upper = cases.Upper(language.Und)

// DeriveCode upper-cases a node name and replaces whitespace with "_".
func DeriveCode(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, upper.String(name))
}

// GeneratedParentCode is the fallback code written for a parent without a code.
func GeneratedParentCode(name string) string {
	code := DeriveCode(name)
	if code == "" {
		return ""
	}
	return code + generatedCodeSuffix
}

// ParentCode resolves the parent_node_code column: the parent's code, else a
// code generated from its name, else its id. Roots get "".
func ParentCode(parent *domain.Node) string {
	if parent == nil {
		return ""
	}
	if c := strings.TrimSpace(parent.Code); c != "" {
		return c
	}
	if c := GeneratedParentCode(parent.Name); c != "" {
		return c
	}
	return parent.ID
}

type Row struct {
	NodeID         string            `json:"node_id"`
	NodeName       string            `json:"node_name"`
	Elements       []string          `json:"elements"`
	Level          string            `json:"level"`
	ParentNodeCode string            `json:"parent_node_code"`
	Custom         map[string]string `json:"custom,omitempty"`
	Line           int               `json:"line,omitempty"`
	RawElements    string            `json:"-"`
}

// Table is the flat representation shared by the CSV and XLSX codecs.
type Table struct {
	CustomColumns []string
	Rows          []Row
}

func (t Table) Header() []string {
	h := make([]string, 0, len(RequiredColumns)+len(t.CustomColumns))
	h = append(h, RequiredColumns...)
	h = append(h, t.CustomColumns...)
	return h
}

func (t Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		rec := []string{r.NodeID, r.NodeName, FormatElementList(r.Elements), r.Level, r.ParentNodeCode}
		for _, c := range t.CustomColumns {
			rec = append(rec, r.Custom[c])
		}
		out = append(out, rec)
	}
	return out
}

type ExportWarning struct {
	NodeID  string `json:"node_id"`
	Column  string `json:"column"`
	Message string `json:"message"`
}

// Flatten emits one row per node in pre-order. Custom columns are taken from
// the first element assigned to the node; disagreeing values on later
// elements are reported as warnings since a single row cannot carry them.
func Flatten(tree *Tree, elements []domain.Element, customColumns []string) (Table, []ExportWarning, error) {
	table := Table{CustomColumns: append([]string(nil), customColumns...), Rows: make([]Row, 0, len(tree.ByID))}
	var warnings []ExportWarning
	byNode := ElementsByNode(elements)

	err := tree.Walk(func(n *domain.Node, _ int) error {
		els := byNode[n.ID]
		codes := make([]string, 0, len(els))
		for _, e := range els {
			codes = append(codes, e.Code)
		}
		row := Row{
			NodeID:         n.ID,
			NodeName:       n.Name,
			Elements:       codes,
			Level:          strconv.Itoa(n.Level),
			ParentNodeCode: ParentCode(tree.Parent(n)),
			Custom:         make(map[string]string, len(customColumns)),
		}
		for _, col := range customColumns {
			if len(els) == 0 {
				row.Custom[col] = ""
				continue
			}
			first := FormatFieldValue(els[0].CustomFields[col])
			row.Custom[col] = first
			for _, e := range els[1:] {
				if v := FormatFieldValue(e.CustomFields[col]); v != first {
					warnings = append(warnings, ExportWarning{
						NodeID:  n.ID,
						Column:  col,
						Message: fmt.Sprintf("element %s has %q, exported %q from %s", e.Code, v, first, els[0].Code),
					})
					break
				}
			}
		}
		table.Rows = append(table.Rows, row)
		return nil
	})
	if err != nil {
		return Table{}, nil, err
	}
	return table, warnings, nil
}

// FormatFieldValue renders a custom field value the way it appears in a cell.
func FormatFieldValue(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

func FormatElementList(codes []string) string {
	return "[" + strings.Join(codes, ", ") + "]"
}

// ParseElementList accepts "[A, B]" or "[]". Anything else is rejected so the
// caller can warn instead of guessing.
func ParseElementList(v string) ([]string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return []string{}, true
	}
	if !strings.HasPrefix(v, "[") || !strings.HasSuffix(v, "]") {
		return []string{}, false
	}
	inner := strings.TrimSpace(v[1 : len(v)-1])
	if inner == "" {
		return []string{}, true
	}
	parts := strings.Split(inner, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out, true
}
