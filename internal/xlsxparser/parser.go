// =============================================================================
// SF133 Pipeline - Spreadsheet Loader
// =============================================================================
//
// This module reads the "Raw Data" sheet of an SF133 workbook and turns each
// data row into a types.RawRow. Other sheets (Agency Total, TAFS detail,
// ...) are ignored: they are presentation views of the same numbers.
//
// RAW DATA SHEET (typical layout, one row per TAFS line):
//
//   | AGENCY | BUREAU | OMB_ACCT | TRAG | ALLOC | TRACCT | FY1 | FY2 | LINENO | LINE_DESC | AMT_OCT | ... | AMT1 | ... |
//   |--------|--------|----------|------|-------|--------|-----|-----|--------|-----------|---------|-----|------|-----|
//   | Dept.. | 10     | 0100     | 091  |       | 0100   | 24  | 25  | 1000   | Unobl...  | 1234.50 |     |      |     |
//
// Column layouts differ from year to year; the column mapper decides which
// headers are data. Cell values are returned raw (no number formatting) and
// left as text for the normalizer.
//
// AGENCY HANDLING:
//   - AGENCY labels are canonicalized by the AgencyResolver.
//   - A workbook whose rows carry more than one agency is a consolidated
//     submission; it is split into one FilePart per agency.
//   - A workbook without an AGENCY column takes its agency from the file
//     name.
//
// =============================================================================

package xlsxparser

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/sf133-pipeline/internal/columnmap"
	"github.com/ginjaninja78/sf133-pipeline/internal/types"
)

// RawDataSheet is the name of the sheet carrying the row-level data.
const RawDataSheet = "Raw Data"

// headerSearchRows is how many leading rows are searched for the header.
const headerSearchRows = 10

var (
	// ErrNoRawDataSheet is returned when a workbook has no Raw Data sheet.
	ErrNoRawDataSheet = errors.New("workbook has no Raw Data sheet")

	// ErrEmptySheet is returned when the Raw Data sheet has no data rows.
	ErrEmptySheet = errors.New("Raw Data sheet has no data rows")
)

// =============================================================================
// WORKBOOK STRUCTURE
// =============================================================================

// Workbook is the loaded content of one SF133 file.
type Workbook struct {
	// SourceFile is the workbook's file name (no directory).
	SourceFile string

	// Header is the mapped header row of the Raw Data sheet.
	Header columnmap.HeaderMap

	// Parts holds the rows grouped by agency, sorted by agency name. Most
	// workbooks have exactly one part.
	Parts []FilePart

	// Diagnostics collected while loading.
	Diagnostics []types.Diagnostic
}

// FilePart is the slice of a workbook belonging to a single agency.
type FilePart struct {
	Agency       string
	SourceFile   string
	Consolidated bool
	Rows         []types.RawRow
}

// Bureaus returns the distinct non-empty bureau codes of the part, sorted.
func (p FilePart) Bureaus() []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range p.Rows {
		if row.Bureau != "" && !seen[row.Bureau] {
			seen[row.Bureau] = true
			out = append(out, row.Bureau)
		}
	}
	sort.Strings(out)
	return out
}

// HasUnattributedRows reports whether some rows carry no bureau code.
func (p FilePart) HasUnattributedRows() bool {
	for _, row := range p.Rows {
		if row.Bureau == "" {
			return true
		}
	}
	return false
}

// =============================================================================
// LOADER
// =============================================================================

// Options configures a Loader.
type Options struct {
	// Resolver canonicalizes agency labels. Nil uses a resolver with no
	// aliases.
	Resolver *AgencyResolver

	// ConsolidatedFiles lists file names that are always flagged as
	// consolidated submissions.
	ConsolidatedFiles []string
}

// Loader reads SF133 workbooks.
type Loader struct {
	resolver     *AgencyResolver
	consolidated map[string]bool
}

// NewLoader creates a Loader.
func NewLoader(opts Options) *Loader {
	l := &Loader{
		resolver:     opts.Resolver,
		consolidated: make(map[string]bool),
	}
	if l.resolver == nil {
		l.resolver = NewAgencyResolver(nil)
	}
	for _, name := range opts.ConsolidatedFiles {
		l.consolidated[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return l
}

// Open loads a workbook from disk with default options.
func Open(path string) (*Workbook, error) {
	return NewLoader(Options{}).Open(path)
}

// OpenReader loads a workbook from a reader with default options.
func OpenReader(r io.Reader, name string) (*Workbook, error) {
	return NewLoader(Options{}).OpenReader(r, name)
}

// Open loads a workbook from disk.
//
// PARAMETERS:
//   - path: The path to the .xlsx file.
//
// RETURNS:
//   - The loaded Workbook.
//   - ErrNoRawDataSheet, ErrEmptySheet, or an open/read error.
func (l *Loader) Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	return l.load(f, filepath.Base(path))
}

// OpenReader loads a workbook from r; name is used as the source file.
func (l *Loader) OpenReader(r io.Reader, name string) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", name, err)
	}
	defer f.Close()

	return l.load(f, filepath.Base(name))
}

func (l *Loader) load(f *excelize.File, name string) (*Workbook, error) {
	sheet := findRawDataSheet(f.GetSheetList())
	if sheet == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrNoRawDataSheet)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read rows: %w", name, err)
	}

	headerIdx := findHeaderRow(rows)
	if headerIdx < 0 {
		return nil, fmt.Errorf("%s: no header row with %s: %w", name, columnmap.ColLineNumber, ErrEmptySheet)
	}

	wb := &Workbook{
		SourceFile: name,
		Header:     columnmap.MapHeaders(rows[headerIdx]),
	}
	if len(wb.Header.Skipped) > 0 {
		wb.Diagnostics = append(wb.Diagnostics, types.Infof("columns_skipped", name,
			"columns skipped: %s", strings.Join(wb.Header.Skipped, ", ")))
	}
	if len(wb.Header.Amounts) == 0 {
		wb.Diagnostics = append(wb.Diagnostics, types.Warningf("no_amount_columns", name,
			"no recognized amount columns"))
	}

	fileAgency := ""
	if !wb.Header.Has(columnmap.ColAgency) {
		fileAgency = l.resolver.AgencyFromFileName(name)
	}

	byAgency := make(map[string][]types.RawRow)
	for i := headerIdx + 1; i < len(rows); i++ {
		if isRowEmpty(rows[i]) {
			continue
		}
		raw := l.parseRow(rows[i], wb.Header, name, i+1)
		if fileAgency != "" {
			raw.Agency = fileAgency
		}
		byAgency[raw.Agency] = append(byAgency[raw.Agency], raw)
	}

	if len(byAgency) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptySheet)
	}

	// Rows without an AGENCY value belong to the file's single agency when
	// there is one.
	if blank, ok := byAgency[""]; ok && len(byAgency) == 2 {
		delete(byAgency, "")
		for agency := range byAgency {
			for i := range blank {
				blank[i].Agency = agency
			}
			byAgency[agency] = append(byAgency[agency], blank...)
		}
	}

	multiAgency := len(byAgency) > 1
	forced := l.consolidated[strings.ToLower(name)]
	if multiAgency {
		wb.Diagnostics = append(wb.Diagnostics, types.Infof("multi_agency", name,
			"workbook spans %d agencies; split into per-agency parts", len(byAgency)))
	}

	agencies := make([]string, 0, len(byAgency))
	for agency := range byAgency {
		agencies = append(agencies, agency)
	}
	sort.Strings(agencies)

	for _, agency := range agencies {
		part := FilePart{
			Agency:       agency,
			SourceFile:   name,
			Consolidated: multiAgency || forced,
			Rows:         byAgency[agency],
		}
		for i := range part.Rows {
			part.Rows[i].IsConsolidated = part.Consolidated
		}
		wb.Parts = append(wb.Parts, part)
	}

	return wb, nil
}

// parseRow extracts a RawRow from a single sheet row.
func (l *Loader) parseRow(row []string, hm columnmap.HeaderMap, name string, rowNumber int) types.RawRow {
	cell := func(identifier string) string {
		idx, ok := hm.Identifiers[identifier]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	raw := types.RawRow{
		Agency:          l.resolver.Resolve(cell(columnmap.ColAgency)),
		Bureau:          cell(columnmap.ColBureau),
		OMBAccount:      cell(columnmap.ColOMBAccount),
		LineNumber:      cell(columnmap.ColLineNumber),
		TreasuryAgency:  cell(columnmap.ColTreasuryAgency),
		TreasuryAccount: cell(columnmap.ColTreasuryAccount),
		Allocation:      cell(columnmap.ColAllocation),
		FY1:             cell(columnmap.ColFY1),
		FY2:             cell(columnmap.ColFY2),
		LineDescription: cell(columnmap.ColLineDescription),
		MonthlyAmounts:  make(map[string]string, len(hm.Amounts)),
		SourceFile:      name,
		RowNumber:       rowNumber,
	}

	for _, col := range hm.Amounts {
		value := ""
		if col.Index < len(row) {
			value = strings.TrimSpace(row[col.Index])
		}
		raw.MonthlyAmounts[col.Source] = value
	}

	return raw
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// findRawDataSheet returns the sheet whose name matches RawDataSheet,
// ignoring case and surrounding spaces.
func findRawDataSheet(sheets []string) string {
	for _, s := range sheets {
		if strings.EqualFold(strings.TrimSpace(s), RawDataSheet) {
			return s
		}
	}
	return ""
}

// findHeaderRow returns the index of the first row containing a LINENO
// header, or -1.
func findHeaderRow(rows [][]string) int {
	for i := 0; i < len(rows) && i < headerSearchRows; i++ {
		for _, cell := range rows[i] {
			if columnmap.Map(cell).Label == columnmap.ColLineNumber {
				return i
			}
		}
	}
	return -1
}

// isRowEmpty checks if a row contains only empty cells.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
