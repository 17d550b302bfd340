// =============================================================================
// SF133 Pipeline - Shared Types
// =============================================================================
//
// This package contains the data model shared by every stage of the
// pipeline. Keeping it in one leaf package avoids import cycles between:
//   - xlsxparser  (produces RawRow)
//   - normalizer  (produces NormalizedRecord)
//   - dedup, aggregator, validation, processor
//
// LIFECYCLE:
//   RawRow            - transient, one per spreadsheet row
//   NormalizedRecord  - immutable once created; corrections need re-ingestion
//   FiscalYearDataset - rebuilt from scratch on every run of a year
//   BaselineProfile   - loaded once per run, read-only afterwards
//
// =============================================================================

package types

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DIAGNOSTICS
// =============================================================================

// Severity classifies a diagnostic.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is a collected (not thrown) finding about a file, a row or a
// dataset. Diagnostics travel with the result they describe.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	File     string   `json:"file,omitempty"`
}

func (d Diagnostic) String() string {
	if d.File != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", d.Severity, d.Code, d.Message, d.File)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Severity, d.Code, d.Message)
}

// Warningf builds a warning diagnostic.
func Warningf(code, file, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Code: code, File: file, Message: fmt.Sprintf(format, args...)}
}

// Infof builds an info diagnostic.
func Infof(code, file, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Severity: SeverityInfo, Code: code, File: file, Message: fmt.Sprintf(format, args...)}
}

// Errorf builds an error diagnostic.
func Errorf(code, file, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Severity: SeverityError, Code: code, File: file, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// RAW ROW
// =============================================================================

// RawRow represents one row of a workbook's Raw Data sheet, before any
// numeric parsing has happened. Cell values are kept as trimmed text so the
// normalizer can decide how to treat blanks and stray text.
type RawRow struct {
	// Agency is the canonical agency name the row belongs to.
	Agency string

	// Bureau is the bureau code (BUREAU column).
	Bureau string

	// OMBAccount is the OMB account code (OMB_ACCT column).
	OMBAccount string

	// LineNumber is the SF133 line code as written in the sheet (LINENO).
	LineNumber string

	// Treasury account components used to build the TAS.
	TreasuryAgency  string // TRAG
	TreasuryAccount string // TRACCT
	Allocation      string // ALLOC
	FY1             string // beginning period of availability
	FY2             string // ending period of availability

	// LineDescription is the LINE_DESC text, kept for diagnostics only.
	LineDescription string

	// MonthlyAmounts maps the source column header (e.g. "AMT_JUL", "AMT3")
	// to the cell text. Only amount columns recognized by the column mapper
	// are present.
	MonthlyAmounts map[string]string

	// SourceFile identifies the workbook the row came from.
	SourceFile string

	// IsConsolidated is true when the row's file is a rolled-up,
	// multi-bureau (or multi-agency) submission.
	IsConsolidated bool

	// RowNumber is the 1-indexed sheet row, for diagnostics.
	RowNumber int
}

// =============================================================================
// NORMALIZED RECORD
// =============================================================================

// RecordKey is the uniqueness key of a record within one fiscal year.
type RecordKey struct {
	Bureau     string
	OMBAccount string
	TAS        string
	LineNumber int
	Month      string
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%d|%s", k.Bureau, k.OMBAccount, k.TAS, k.LineNumber, k.Month)
}

// Less orders keys by bureau, account, TAS, line number and then fiscal
// month order.
func (k RecordKey) Less(o RecordKey) bool {
	if k.Bureau != o.Bureau {
		return k.Bureau < o.Bureau
	}
	if k.OMBAccount != o.OMBAccount {
		return k.OMBAccount < o.OMBAccount
	}
	if k.TAS != o.TAS {
		return k.TAS < o.TAS
	}
	if k.LineNumber != o.LineNumber {
		return k.LineNumber < o.LineNumber
	}
	return MonthLess(k.Month, o.Month)
}

// NormalizedRecord is the canonical unit of a master dataset. Amounts are
// in dollars, as reported in the Raw Data sheet.
type NormalizedRecord struct {
	FiscalYear int
	Agency     string
	Bureau     string
	OMBAccount string
	TAS        string
	LineNumber int
	Month      string
	Amount     decimal.Decimal
	SourceFile string
}

// Key returns the record's uniqueness key.
func (r NormalizedRecord) Key() RecordKey {
	return RecordKey{
		Bureau:     r.Bureau,
		OMBAccount: r.OMBAccount,
		TAS:        r.TAS,
		LineNumber: r.LineNumber,
		Month:      r.Month,
	}
}

// SortRecords sorts records in key order. Records with equal keys keep
// their relative order.
func SortRecords(records []NormalizedRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Key().Less(records[j].Key())
	})
}

// =============================================================================
// FISCAL YEAR DATASET
// =============================================================================

// FiscalYearDataset is the assembled master dataset for one fiscal year.
type FiscalYearDataset struct {
	FiscalYear int

	// Records are unique by RecordKey and sorted in key order.
	Records []NormalizedRecord

	// AgenciesCovered is derived from the admitted records, sorted.
	AgenciesCovered []string

	// MonthsCovered lists the fiscal months with data, in fiscal order.
	// Quarter-end labels are folded into their month.
	MonthsCovered []string

	// MonthTotals is the sum of amounts per month label (quarter labels
	// kept separate).
	MonthTotals map[string]decimal.Decimal

	// Diagnostics collected while assembling the dataset.
	Diagnostics []Diagnostic

	// Validation is filled in once the dataset has been validated.
	Validation *ValidationResult
}

// TASSet returns the distinct TAS values present in the dataset.
func (d *FiscalYearDataset) TASSet() map[string]bool {
	set := make(map[string]bool)
	for _, r := range d.Records {
		set[r.TAS] = true
	}
	return set
}

// TASByAgency returns the distinct TAS values per agency.
func (d *FiscalYearDataset) TASByAgency() map[string]map[string]bool {
	out := make(map[string]map[string]bool)
	for _, r := range d.Records {
		if out[r.Agency] == nil {
			out[r.Agency] = make(map[string]bool)
		}
		out[r.Agency][r.TAS] = true
	}
	return out
}

// AccountKey strips the period of availability from a TAS, keeping the
// account and its availability type: "016-0100 /25" and "016-0100 /20"
// both give "016-0100 annual". Multi-year accounts give "multi" and no-year
// accounts "X".
func AccountKey(tas string) string {
	account, period, ok := strings.Cut(strings.TrimSpace(tas), " ")
	if !ok {
		return account
	}
	period = strings.TrimSpace(period)
	switch {
	case strings.EqualFold(period, "/X"):
		return account + " X"
	case strings.HasPrefix(period, "/"):
		return account + " annual"
	default:
		return account + " multi"
	}
}

// LineTotal sums the amounts of one line number for one month label.
func (d *FiscalYearDataset) LineTotal(line int, month string) decimal.Decimal {
	total := decimal.Zero
	for _, r := range d.Records {
		if r.LineNumber == line && r.Month == month {
			total = total.Add(r.Amount)
		}
	}
	return total
}

// HasMonth reports whether month is in MonthsCovered.
func (d *FiscalYearDataset) HasMonth(month string) bool {
	for _, m := range d.MonthsCovered {
		if m == month {
			return true
		}
	}
	return false
}

// =============================================================================
// BASELINE PROFILE
// =============================================================================

// BaselineProfile holds the reference expectations used by the coverage
// validator. It is derived from an already-ingested reference year and is
// never mutated after loading; ForYear returns a copy.
type BaselineProfile struct {
	// BaselineYear is the reference fiscal year (0 when no baseline file
	// was available and the profile comes from configuration only).
	BaselineYear int

	// ExpectedAgencyCount is the lower bound on agencies_covered.
	ExpectedAgencyCount int

	// RequiredYearEndMonth is true for historical (completed) years.
	RequiredYearEndMonth bool

	// BaselineTASSet is the set of TAS expected to be present.
	BaselineTASSet map[string]bool

	// TASByAgency is the baseline's distinct TAS per agency, used for the
	// per-agency coverage percentage.
	TASByAgency map[string]map[string]bool
}

// ForYear returns a copy of the profile configured for the candidate year.
// Years before the current fiscal year are historical and must contain
// their year-end month.
func (p BaselineProfile) ForYear(year, currentFiscalYear int) BaselineProfile {
	cp := p
	cp.RequiredYearEndMonth = year < currentFiscalYear
	return cp
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationState is a state of the coverage validator.
type ValidationState string

const (
	StateNotStarted  ValidationState = "NotStarted"
	StateAgencyCheck ValidationState = "AgencyCheck"
	StateMonthCheck  ValidationState = "MonthCheck"
	StateTASCheck    ValidationState = "TASCheck"
	StatePassed      ValidationState = "Passed"
	StateFailed      ValidationState = "Failed"
)

// ValidationResult is the machine-readable outcome of validating a
// dataset.
type ValidationResult struct {
	State        ValidationState   `json:"state"`
	Passed       bool              `json:"passed"`
	FailedAt     ValidationState   `json:"failed_at,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	Trace        []ValidationState `json:"trace"`
	Diagnostics  []Diagnostic      `json:"diagnostics"`
	WarningCount int               `json:"warning_count"`
	ErrorCount   int               `json:"error_count"`

	// TASCoverage is the per-agency TAS coverage percentage against the
	// baseline (empty when no baseline was available).
	TASCoverage map[string]float64 `json:"tas_coverage,omitempty"`
}
