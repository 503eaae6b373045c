package services

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Hierarchy"

func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	lines := append([][]string{t.Header()}, t.Records()...)
	for i, rec := range lines {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx row %d: %w", i+1, err)
		}
	}
	if err := f.SetPanes(xlsxSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("xlsx panes: %w", err)
	}
	_, err := f.WriteTo(w)
	return err
}

// ReadXLSX reads the first sheet of a workbook into a Table.
func ReadXLSX(r io.Reader) (Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Table{}, &MalformedCSVError{Reason: fmt.Sprintf("open xlsx: %v", err)}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, &MalformedCSVError{Reason: "workbook has no sheets"}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, &MalformedCSVError{Reason: fmt.Sprintf("read sheet %s: %v", sheets[0], err)}
	}
	if len(rows) == 0 {
		return Table{}, &MalformedCSVError{Reason: "missing header"}
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = trimCell(h)
	}
	records := make([][]string, 0, len(rows)-1)
	lines := make([]int, 0, len(rows)-1)
	for i, rec := range rows[1:] {
		if isBlankRecord(rec) {
			continue
		}
		records = append(records, rec)
		lines = append(lines, i+2)
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
