// =============================================================================
// SF133 Pipeline - Row Normalizer
// =============================================================================
//
// This module converts the RawRows of one file part into NormalizedRecords,
// one record per (row, amount column) with a non-blank cell.
//
// ROW FILTERS (counted, never fatal):
//   - missing LINENO or OMB_ACCT      -> DroppedMissing
//   - LINENO not a whole number       -> DroppedBadLine
//   - LINENO outside 1000..9999       -> DroppedOutOfRange
//
// AMOUNT CELLS:
//   - blank                           -> no record for that column
//   - numeric text                    -> parsed as a decimal
//   - anything else                   -> zero, with a warning
//
// Records that share a key inside one file (the same TAS line reported on
// several TAFS detail rows) are summed.
//
// =============================================================================

package normalizer

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/sf133-pipeline/internal/columnmap"
	"github.com/ginjaninja78/sf133-pipeline/internal/types"
	"github.com/ginjaninja78/sf133-pipeline/internal/xlsxparser"
)

// SF133 line numbers are four digits.
const (
	MinLineNumber = 1000
	MaxLineNumber = 9999
)

// Context carries the values every record of a part shares.
type Context struct {
	FiscalYear int
	Agency     string
}

// FileResult is the outcome of normalizing one file part.
type FileResult struct {
	SourceFile   string
	Agency       string
	Consolidated bool

	// Records are unique by key and sorted in key order.
	Records []types.NormalizedRecord

	RowsRead          int
	DroppedMissing    int
	DroppedBadLine    int
	DroppedOutOfRange int
	CoercedAmounts    int
	MergedRows        int

	Diagnostics []types.Diagnostic
}

// Dropped returns the total number of dropped rows.
func (r FileResult) Dropped() int {
	return r.DroppedMissing + r.DroppedBadLine + r.DroppedOutOfRange
}

// Normalize converts a file part into records.
//
// PARAMETERS:
//   - part: The loaded rows of one agency of one workbook.
//   - ctx: The fiscal year and agency to stamp on the records. An empty
//     ctx.Agency falls back to the part's agency.
//
// RETURNS:
//   - The FileResult with records and drop counters.
func Normalize(part xlsxparser.FilePart, ctx Context) FileResult {
	agency := ctx.Agency
	if agency == "" {
		agency = part.Agency
	}

	res := FileResult{
		SourceFile:   part.SourceFile,
		Agency:       agency,
		Consolidated: part.Consolidated,
	}

	sums := make(map[types.RecordKey]*types.NormalizedRecord)
	var order []types.RecordKey

	for _, row := range part.Rows {
		res.RowsRead++

		if row.LineNumber == "" || row.OMBAccount == "" {
			res.DroppedMissing++
			continue
		}
		line, err := ParseLineNumber(row.LineNumber)
		if err != nil {
			res.DroppedBadLine++
			continue
		}
		if line < MinLineNumber || line > MaxLineNumber {
			res.DroppedOutOfRange++
			continue
		}

		tas := DeriveTAS(row, ctx.FiscalYear)

		for _, source := range sortedSources(row.MonthlyAmounts) {
			text := row.MonthlyAmounts[source]
			col := columnmap.Map(source)
			if !col.IsAmount() {
				continue
			}

			amount, ok, err := ParseAmount(text)
			if !ok {
				continue
			}
			if err != nil {
				res.CoercedAmounts++
				res.Diagnostics = append(res.Diagnostics, types.Warningf("amount_coerced", part.SourceFile,
					"row %d column %s: %q is not numeric; treated as 0", row.RowNumber, source, text))
				amount = decimal.Zero
			}

			rec := types.NormalizedRecord{
				FiscalYear: ctx.FiscalYear,
				Agency:     agency,
				Bureau:     row.Bureau,
				OMBAccount: row.OMBAccount,
				TAS:        tas,
				LineNumber: line,
				Month:      col.Label,
				Amount:     amount,
				SourceFile: part.SourceFile,
			}

			key := rec.Key()
			if existing, dup := sums[key]; dup {
				existing.Amount = existing.Amount.Add(amount)
				res.MergedRows++
				continue
			}
			sums[key] = &rec
			order = append(order, key)
		}
	}

	res.Records = make([]types.NormalizedRecord, 0, len(order))
	for _, key := range order {
		res.Records = append(res.Records, *sums[key])
	}
	types.SortRecords(res.Records)

	if d := res.Dropped(); d > 0 {
		res.Diagnostics = append(res.Diagnostics, types.Infof("rows_dropped", part.SourceFile,
			"%d of %d rows dropped (missing=%d bad_line=%d out_of_range=%d)",
			d, res.RowsRead, res.DroppedMissing, res.DroppedBadLine, res.DroppedOutOfRange))
	}

	return res
}

// Summary is a one-line description of the result, for logs.
func (r FileResult) Summary() string {
	return fmt.Sprintf("%s [%s]: %d rows, %d records, %d dropped, %d coerced",
		r.SourceFile, r.Agency, r.RowsRead, len(r.Records), r.Dropped(), r.CoercedAmounts)
}

func sortedSources(amounts map[string]string) []string {
	keys := make([]string, 0, len(amounts))
	for k := range amounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
