// =============================================================================
// SF133 Pipeline - Year Aggregator
// =============================================================================
//
// This module merges the records of every admitted file part of a fiscal
// year into one FiscalYearDataset and enforces the key uniqueness of the
// master dataset:
//
//   same key, same amount       -> merged (the record is reported twice)
//   same key, different amount  -> conflict; the year cannot be assembled
//   same key, other agency      -> conflict, whatever the amounts
//
// agencies_covered and months_covered are derived from the records once
// everything has been added.
//
// =============================================================================

package aggregator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/sf133-pipeline/internal/types"
)

// ErrConflict is wrapped by ConflictError.
var ErrConflict = errors.New("conflicting records for the same key")

// Conflict is one key reported with two different amounts.
type Conflict struct {
	Key          types.RecordKey
	FirstAmount  decimal.Decimal
	FirstSource  string
	FirstAgency  string
	SecondAmount decimal.Decimal
	SecondSource string
	SecondAgency string
}

func (c Conflict) String() string {
	if c.FirstAgency != c.SecondAgency {
		return fmt.Sprintf("%s: %s (%s, %s) vs %s (%s, %s)",
			c.Key, c.FirstAmount, c.FirstSource, c.FirstAgency, c.SecondAmount, c.SecondSource, c.SecondAgency)
	}
	return fmt.Sprintf("%s: %s (%s) vs %s (%s)",
		c.Key, c.FirstAmount, c.FirstSource, c.SecondAmount, c.SecondSource)
}

// ConflictError lists the conflicting keys of a fiscal year.
type ConflictError struct {
	FiscalYear int
	Conflicts  []Conflict
}

func (e *ConflictError) Error() string {
	const shown = 5
	lines := make([]string, 0, shown)
	for i, c := range e.Conflicts {
		if i == shown {
			lines = append(lines, fmt.Sprintf("... and %d more", len(e.Conflicts)-shown))
			break
		}
		lines = append(lines, c.String())
	}
	return fmt.Sprintf("FY%d: %d conflicting keys: %s", e.FiscalYear, len(e.Conflicts), strings.Join(lines, "; "))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Options tunes month coverage detection.
type Options struct {
	// MinMonthTotal is the absolute monthly total a month must exceed to
	// count as covered.
	MinMonthTotal decimal.Decimal
}

// Aggregator accumulates one fiscal year's records. It is not safe for
// concurrent use; each year has its own Aggregator.
type Aggregator struct {
	year      int
	opts      Options
	records   map[types.RecordKey]types.NormalizedRecord
	conflicts []Conflict
	merged    int
}

// New creates an aggregator for a fiscal year.
func New(year int, opts Options) *Aggregator {
	return &Aggregator{
		year:    year,
		opts:    opts,
		records: make(map[types.RecordKey]types.NormalizedRecord),
	}
}

// Add merges records into the year. Conflicts are collected and reported
// by Dataset.
func (a *Aggregator) Add(records []types.NormalizedRecord) {
	for _, rec := range records {
		key := rec.Key()
		existing, ok := a.records[key]
		if !ok {
			a.records[key] = rec
			continue
		}
		if existing.Amount.Equal(rec.Amount) && existing.Agency == rec.Agency {
			a.merged++
			continue
		}
		a.conflicts = append(a.conflicts, Conflict{
			Key:          key,
			FirstAmount:  existing.Amount,
			FirstSource:  existing.SourceFile,
			FirstAgency:  existing.Agency,
			SecondAmount: rec.Amount,
			SecondSource: rec.SourceFile,
			SecondAgency: rec.Agency,
		})
	}
}

// Merged returns how many identical duplicates were folded.
func (a *Aggregator) Merged() int {
	return a.merged
}

// Records returns the accumulated records sorted by key.
func (a *Aggregator) Records() []types.NormalizedRecord {
	out := make([]types.NormalizedRecord, 0, len(a.records))
	for _, r := range a.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out
}

// MonthTotals sums the amounts per month label.
func (a *Aggregator) MonthTotals() map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	for _, r := range a.records {
		totals[r.Month] = totals[r.Month].Add(r.Amount)
	}
	return totals
}

// Dataset finalizes the year. A *ConflictError is returned when two
// sources disagree on a key; no dataset is produced in that case.
func (a *Aggregator) Dataset() (*types.FiscalYearDataset, error) {
	if len(a.conflicts) > 0 {
		conflicts := append([]Conflict(nil), a.conflicts...)
		sort.SliceStable(conflicts, func(i, j int) bool { return conflicts[i].Key.Less(conflicts[j].Key) })
		return nil, &ConflictError{FiscalYear: a.year, Conflicts: conflicts}
	}

	ds := &types.FiscalYearDataset{
		FiscalYear:  a.year,
		Records:     a.Records(),
		MonthTotals: a.MonthTotals(),
	}

	agencies := make(map[string]bool)
	for _, r := range ds.Records {
		if r.Agency != "" {
			agencies[r.Agency] = true
		}
	}
	for agency := range agencies {
		ds.AgenciesCovered = append(ds.AgenciesCovered, agency)
	}
	sort.Strings(ds.AgenciesCovered)

	ds.MonthsCovered = CoveredMonths(ds.MonthTotals, a.opts.MinMonthTotal)

	if a.merged > 0 {
		ds.Diagnostics = append(ds.Diagnostics, types.Infof("duplicates_merged", "",
			"%d identical duplicate records merged", a.merged))
	}

	return ds, nil
}

// CoveredMonths returns, in fiscal order, the months whose absolute total
// (month label or its quarter-end label) exceeds threshold.
func CoveredMonths(totals map[string]decimal.Decimal, threshold decimal.Decimal) []string {
	present := make(map[string]bool)
	for label, total := range totals {
		if types.MonthIndex(label) < 0 {
			continue
		}
		if total.Abs().GreaterThan(threshold) {
			present[types.CoveredMonth(label)] = true
		}
	}

	var months []string
	for _, m := range types.FiscalMonths {
		if present[m] {
			months = append(months, m)
		}
	}
	return months
}
