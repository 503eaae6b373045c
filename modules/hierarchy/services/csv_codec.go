package services

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// WriteCSV writes the table with every field quoted and rows joined by "\n".
// Embedded quotes are doubled so the output reads back unchanged.
func WriteCSV(w io.Writer, t Table) error {
	bw := bufio.NewWriter(w)
	lines := append([][]string{t.Header()}, t.Records()...)
	for i, rec := range lines {
		if i > 0 {
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
		for j, field := range rec {
			if j > 0 {
				if err := bw.WriteByte(','); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(quoteField(field)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func quoteField(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

func readHeader(r *csv.Reader) ([]string, error) {
	h, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &MalformedCSVError{Reason: "missing header"}
		}
		return nil, &MalformedCSVError{Line: 1, Reason: err.Error()}
	}
	for i := range h {
		h[i] = strings.TrimSpace(h[i])
		if !utf8.ValidString(h[i]) {
			return nil, &MalformedCSVError{Line: 1, Reason: "invalid header encoding"}
		}
	}
	return h, nil
}

// TableFromRecords validates the header and maps raw records to rows.
// firstLine is the line number of records[0].
func TableFromRecords(header []string, records [][]string, firstLine int) (Table, error) {
	idx := make(map[string]int, len(header))
	var custom []string
	for i, name := range header {
		if name == "" {
			continue
		}
		if _, dup := idx[name]; dup {
			return Table{}, &MalformedCSVError{Line: 1, Reason: fmt.Sprintf("duplicate header column: %s", name)}
		}
		idx[name] = i
	}
	for _, req := range RequiredColumns {
		if _, ok := idx[req]; !ok {
			return Table{}, &MalformedCSVError{Line: 1, Reason: fmt.Sprintf("missing required header column: %s", req)}
		}
	}
	required := make(map[string]struct{}, len(RequiredColumns))
	for _, c := range RequiredColumns {
		required[c] = struct{}{}
	}
	for _, name := range header {
		if _, ok := required[name]; ok || name == "" {
			continue
		}
		custom = append(custom, name)
	}

	t := Table{CustomColumns: custom, Rows: make([]Row, 0, len(records))}
	for n, rec := range records {
		get := func(name string) string {
			i, ok := idx[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		row := Row{
			Line:           firstLine + n,
			NodeID:         strings.TrimSpace(get(ColNodeID)),
			NodeName:       strings.TrimSpace(get(ColNodeName)),
			Level:          strings.TrimSpace(get(ColLevel)),
			ParentNodeCode: strings.TrimSpace(get(ColParentNodeCode)),
			Custom:         make(map[string]string, len(custom)),
		}
		row.RawElements = get(ColElements)
		row.Elements, _ = ParseElementList(row.RawElements)
		for _, c := range custom {
			row.Custom[c] = get(c)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ReadCSV parses an import file. Structural problems return *MalformedCSVError.
func ReadCSV(r io.Reader) (Table, error) {
	br := stripUTF8BOM(bufio.NewReader(r))
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := readHeader(cr)
	if err != nil {
		return Table{}, err
	}
	var records [][]string
	var lines []int
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return Table{}, &MalformedCSVError{Line: pe.Line, Reason: pe.Err.Error()}
			}
			return Table{}, &MalformedCSVError{Reason: err.Error()}
		}
		line, _ := cr.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	t, err := TableFromRecords(header, records, 2)
	if err != nil {
		return Table{}, err
	}
	for i := range t.Rows {
		t.Rows[i].Line = lines[i]
	}
	return t, nil
}

func trimCell(v string) string {
	return strings.TrimSpace(strings.TrimPrefix(v, "\ufeff"))
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
