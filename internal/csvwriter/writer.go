// =============================================================================
// SF133 Pipeline - Output Writer
// =============================================================================
//
// This module writes the per-year outputs consumed by the dashboards:
//
//   sf133_<year>_master.csv   one row per NormalizedRecord
//   summary_<year>.json       status, coverage, dedup report, validation
//   approved_years.json       years cleared for publishing
//
// MASTER CSV LAYOUT:
//
//   fiscal_year,agency,bureau,omb_account,tas,line_number,month,amount,source_file
//   2024,Department of Labor,05,0165,0165 /24,2500,Oct,5000,labor.xlsx
//
// Rows are written in record-key order and amounts in their exact decimal
// form, so re-running a year on unchanged inputs produces a byte-identical
// file. Every file is written to a temporary name and renamed into place.
//
// =============================================================================

package csvwriter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/ginjaninja78/sf133-pipeline/internal/types"
)

// Header is the master dataset column order.
var Header = []string{
	"fiscal_year", "agency", "bureau", "omb_account", "tas",
	"line_number", "month", "amount", "source_file",
}

// =============================================================================
// MASTER DATASET
// =============================================================================

// EncodeDataset renders records as master CSV. Records are sorted by key
// on a copy; the input slice is not reordered.
func EncodeDataset(records []types.NormalizedRecord) ([]byte, error) {
	sorted := append([]types.NormalizedRecord(nil), records...)
	types.SortRecords(sorted)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, err
	}
	for _, r := range sorted {
		row := []string{
			strconv.Itoa(r.FiscalYear),
			r.Agency,
			r.Bureau,
			r.OMBAccount,
			r.TAS,
			strconv.Itoa(r.LineNumber),
			r.Month,
			r.Amount.String(),
			r.SourceFile,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteDataset writes a year's master CSV to path.
func WriteDataset(path string, ds *types.FiscalYearDataset) error {
	data, err := EncodeDataset(ds.Records)
	if err != nil {
		return fmt.Errorf("failed to encode FY%d dataset: %w", ds.FiscalYear, err)
	}
	return writeAtomic(path, data)
}

// =============================================================================
// SUMMARY
// =============================================================================

// FileReport is the per-part line of a year summary.
type FileReport struct {
	SourceFile        string `json:"source_file"`
	Agency            string `json:"agency,omitempty"`
	Status            string `json:"status"`
	Reason            string `json:"reason,omitempty"`
	Consolidated      bool   `json:"consolidated,omitempty"`
	Records           int    `json:"records"`
	RowsRead          int    `json:"rows_read"`
	DroppedMissing    int    `json:"dropped_missing"`
	DroppedBadLine    int    `json:"dropped_bad_line"`
	DroppedOutOfRange int    `json:"dropped_out_of_range"`
	CoercedAmounts    int    `json:"coerced_amounts"`
}

// Summary is the machine-readable report of one fiscal year.
type Summary struct {
	FiscalYear      int                     `json:"fiscal_year"`
	Status          string                  `json:"status"`
	Reason          string                  `json:"reason,omitempty"`
	RecordCount     int                     `json:"record_count"`
	AgenciesCovered []string                `json:"agencies_covered"`
	MonthsCovered   []string                `json:"months_covered"`
	MonthTotals     map[string]string       `json:"month_totals"`
	Files           []FileReport            `json:"files"`
	Validation      *types.ValidationResult `json:"validation,omitempty"`
	Diagnostics     []types.Diagnostic      `json:"diagnostics"`
}

// WriteSummary writes a year summary as indented JSON.
func WriteSummary(path string, s Summary) error {
	if s.AgenciesCovered == nil {
		s.AgenciesCovered = []string{}
	}
	if s.MonthsCovered == nil {
		s.MonthsCovered = []string{}
	}
	if s.Files == nil {
		s.Files = []FileReport{}
	}
	if s.Diagnostics == nil {
		s.Diagnostics = []types.Diagnostic{}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode FY%d summary: %w", s.FiscalYear, err)
	}
	return writeAtomic(path, append(data, '\n'))
}

// ReadSummary reads a summary written by WriteSummary.
func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse summary %s: %w", path, err)
	}
	return &s, nil
}

// =============================================================================
// APPROVED YEARS
// =============================================================================

// ApprovedYears lists the years downstream publishing may show.
type ApprovedYears struct {
	ApprovedYears []int             `json:"approved_years"`
	FailedYears   map[string]string `json:"failed_years,omitempty"`
}

// ReadApprovedYears reads the approved-years file. A missing file lists no
// years.
func ReadApprovedYears(path string) (*ApprovedYears, error) {
	current := &ApprovedYears{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, current); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	return current, nil
}

// MergeApprovedYears updates the approved-years file at path: years that
// succeeded in this run are added, years that failed are removed (with
// their reason recorded), other previously approved years are kept.
func MergeApprovedYears(path string, succeeded []int, failed map[int]string) (*ApprovedYears, error) {
	current, err := ReadApprovedYears(path)
	if err != nil {
		return nil, err
	}

	approved := make(map[int]bool)
	for _, y := range current.ApprovedYears {
		approved[y] = true
	}
	failedYears := make(map[string]string)
	for y, reason := range current.FailedYears {
		failedYears[y] = reason
	}

	for _, y := range succeeded {
		approved[y] = true
		delete(failedYears, strconv.Itoa(y))
	}
	for y, reason := range failed {
		delete(approved, y)
		failedYears[strconv.Itoa(y)] = reason
	}

	out := &ApprovedYears{ApprovedYears: []int{}}
	for y := range approved {
		out.ApprovedYears = append(out.ApprovedYears, y)
	}
	sort.Ints(out.ApprovedYears)
	if len(failedYears) > 0 {
		out.FailedYears = failedYears
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(path, append(encoded, '\n')); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
