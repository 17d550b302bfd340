// =============================================================================
// SF133 Pipeline - Column Mapper
// =============================================================================
//
// This module translates the column headers found in Raw Data sheets into
// the standardized schema used by the master dataset. Header layouts differ
// between fiscal years:
//
//   | Source header | Kind       | Standard label |
//   |---------------|------------|----------------|
//   | AMT_OCT       | month      | Oct            |
//   | AMT_JUL       | month      | Jul            |
//   | AMT1          | quarter    | Dec (1Q)       |
//   | AMT3          | quarter    | Jun (3Q)       |
//   | AMT4          | quarter    | Sep (4Q)       |
//   | BUREAU        | identifier | BUREAU         |
//   | OMB_ACCT      | identifier | OMB_ACCT       |
//   | LINENO        | identifier | LINENO         |
//
// Anything else is a descriptive column. Unknown headers are expected (the
// layouts keep changing) and are skipped rather than rejected; they are
// reported through HeaderMap.Skipped so validation can surface them.
//
// =============================================================================

package columnmap

import (
	"strings"

	"github.com/ginjaninja78/sf133-pipeline/internal/types"
)

// =============================================================================
// COLUMN KINDS
// =============================================================================

// Kind classifies a source column.
type Kind int

const (
	// KindUnknown marks a column that is not a data column.
	KindUnknown Kind = iota

	// KindMonth marks a single-month amount column (AMT_<MON>).
	KindMonth

	// KindQuarter marks a cumulative quarter-end amount column (AMT<N>).
	KindQuarter

	// KindIdentifier marks a key or descriptive column the pipeline uses.
	KindIdentifier
)

func (k Kind) String() string {
	switch k {
	case KindMonth:
		return "month"
	case KindQuarter:
		return "quarter"
	case KindIdentifier:
		return "identifier"
	default:
		return "unknown"
	}
}

// Identifier column names.
const (
	ColAgency          = "AGENCY"
	ColBureau          = "BUREAU"
	ColOMBAccount      = "OMB_ACCT"
	ColLineNumber      = "LINENO"
	ColTreasuryAgency  = "TRAG"
	ColTreasuryAccount = "TRACCT"
	ColAllocation      = "ALLOC"
	ColFY1             = "FY1"
	ColFY2             = "FY2"
	ColLineDescription = "LINE_DESC"
)

// Column is the result of mapping one header.
type Column struct {
	// Source is the header as it appeared in the sheet (trimmed).
	Source string

	// Kind is the column classification.
	Kind Kind

	// Label is the standardized label (month label, quarter label or
	// identifier name). Empty for KindUnknown.
	Label string
}

// IsAmount reports whether the column carries monthly or quarterly amounts.
func (c Column) IsAmount() bool {
	return c.Kind == KindMonth || c.Kind == KindQuarter
}

// =============================================================================
// MAPPING TABLE
// =============================================================================

var monthColumns = map[string]string{
	"AMT_OCT": "Oct",
	"AMT_NOV": "Nov",
	"AMT_DEC": "Dec",
	"AMT_JAN": "Jan",
	"AMT_FEB": "Feb",
	"AMT_MAR": "Mar",
	"AMT_APR": "Apr",
	"AMT_MAY": "May",
	"AMT_JUN": "Jun",
	"AMT_JUL": "Jul",
	"AMT_AUG": "Aug",
	"AMT_SEP": "Sep",
}

var quarterColumns = map[string]string{
	"AMT1": "Dec (1Q)",
	"AMT2": "Mar (2Q)",
	"AMT3": "Jun (3Q)",
	"AMT4": "Sep (4Q)",
}

var identifierColumns = map[string]bool{
	ColAgency:          true,
	ColBureau:          true,
	ColOMBAccount:      true,
	ColLineNumber:      true,
	ColTreasuryAgency:  true,
	ColTreasuryAccount: true,
	ColAllocation:      true,
	ColFY1:             true,
	ColFY2:             true,
	ColLineDescription: true,
}

// Map classifies a single header. Matching ignores case and surrounding
// whitespace.
func Map(header string) Column {
	src := strings.TrimSpace(header)
	key := strings.ToUpper(src)

	if label, ok := monthColumns[key]; ok {
		return Column{Source: src, Kind: KindMonth, Label: label}
	}
	if label, ok := quarterColumns[key]; ok {
		return Column{Source: src, Kind: KindQuarter, Label: label}
	}
	if identifierColumns[key] {
		return Column{Source: src, Kind: KindIdentifier, Label: key}
	}
	return Column{Source: src, Kind: KindUnknown}
}

// =============================================================================
// HEADER MAP
// =============================================================================

// HeaderMap indexes a Raw Data header row.
type HeaderMap struct {
	// Identifiers maps an identifier name to its 0-based column index.
	Identifiers map[string]int

	// Amounts holds the amount columns, in fiscal order.
	Amounts []IndexedColumn

	// Skipped lists the headers that are not data columns.
	Skipped []string
}

// IndexedColumn is a mapped column together with its position.
type IndexedColumn struct {
	Column
	Index int
}

// MapHeaders maps every header of a sheet. When a header appears twice the
// first occurrence wins and the duplicate is reported as skipped.
func MapHeaders(headers []string) HeaderMap {
	hm := HeaderMap{Identifiers: make(map[string]int)}
	seenAmount := make(map[string]bool)

	for i, h := range headers {
		col := Map(h)
		switch col.Kind {
		case KindIdentifier:
			if _, dup := hm.Identifiers[col.Label]; dup {
				hm.Skipped = append(hm.Skipped, col.Source)
				continue
			}
			hm.Identifiers[col.Label] = i
		case KindMonth, KindQuarter:
			if seenAmount[col.Label] {
				hm.Skipped = append(hm.Skipped, col.Source)
				continue
			}
			seenAmount[col.Label] = true
			hm.Amounts = append(hm.Amounts, IndexedColumn{Column: col, Index: i})
		default:
			if col.Source != "" {
				hm.Skipped = append(hm.Skipped, col.Source)
			}
		}
	}

	sortAmounts(hm.Amounts)
	return hm
}

// Has reports whether the identifier column is present.
func (hm HeaderMap) Has(identifier string) bool {
	_, ok := hm.Identifiers[identifier]
	return ok
}

// Labels returns the standardized labels of the amount columns.
func (hm HeaderMap) Labels() []string {
	labels := make([]string, len(hm.Amounts))
	for i, c := range hm.Amounts {
		labels[i] = c.Label
	}
	return labels
}

func sortAmounts(cols []IndexedColumn) {
	// Insertion sort; a sheet has at most 16 amount columns.
	for i := 1; i < len(cols); i++ {
		for j := i; j > 0 && types.MonthLess(cols[j].Label, cols[j-1].Label); j-- {
			cols[j], cols[j-1] = cols[j-1], cols[j]
		}
	}
}
