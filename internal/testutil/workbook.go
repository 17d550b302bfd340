// Package testutil builds SF133 workbook fixtures for tests.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

// StandardHeader is a Raw Data header row in the monthly layout.
var StandardHeader = []interface{}{
	"AGENCY", "BUREAU", "OMB_ACCT", "TRAG", "ALLOC", "TRACCT", "FY1", "FY2", "LINENO", "LINE_DESC",
	"AMT_OCT", "AMT_NOV", "AMT_DEC", "AMT_JAN", "AMT_FEB", "AMT_MAR",
	"AMT_APR", "AMT_MAY", "AMT_JUN", "AMT_JUL", "AMT_AUG", "AMT_SEP",
}

// Row builds a data row for StandardHeader. amounts are the monthly
// values from October onward; missing months are left blank.
func Row(agency, bureau, account, fy1, fy2 string, line int, amounts ...interface{}) []interface{} {
	return TreasuryRow(agency, "", bureau, account, fy1, fy2, line, amounts...)
}

// TreasuryRow is Row with a TRAG (treasury agency) code.
func TreasuryRow(agency, trag, bureau, account, fy1, fy2 string, line int, amounts ...interface{}) []interface{} {
	row := []interface{}{agency, bureau, account, trag, "", account, fy1, fy2, line, "line"}
	for i := 0; i < 12; i++ {
		if i < len(amounts) {
			row = append(row, amounts[i])
		} else {
			row = append(row, nil)
		}
	}
	return row
}

// Sheet is one sheet of a fixture workbook.
type Sheet struct {
	Name string
	Rows [][]interface{}
}

// BuildWorkbook returns the bytes of a workbook holding the given sheets.
func BuildWorkbook(t *testing.T, sheets ...Sheet) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			t.Fatalf("new sheet %s: %v", s.Name, err)
		}
		for r, row := range s.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetSheetRow(s.Name, cell, &row); err != nil {
				t.Fatalf("set row %d: %v", r+1, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return bytes.Clone(buf.Bytes())
}

// WriteRawData writes a workbook with a single Raw Data sheet to
// dir/name and returns its path.
func WriteRawData(t *testing.T, dir, name string, rows ...[]interface{}) string {
	t.Helper()

	data := BuildWorkbook(t, Sheet{Name: "Raw Data", Rows: append([][]interface{}{StandardHeader}, rows...)})
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
