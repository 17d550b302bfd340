// =============================================================================
// SF133 Pipeline - Coverage Validator
// =============================================================================
//
// This module decides whether an assembled fiscal year is complete enough
// to publish. It runs as a small state machine:
//
//   NotStarted -> AgencyCheck -> MonthCheck -> TASCheck -> Passed
//                      |             |
//                      +-> Failed <--+
//
//   AgencyCheck  fails when fewer agencies than the baseline expects are
//                covered.
//   MonthCheck   fails when a historical year lacks its year-end month
//                (Sep, or the Sep (4Q) column). Gaps before the last
//                reported month are warnings.
//   TASCheck     advisory only: accounts missing against the baseline,
//                low per-agency coverage, absent critical lines and a
//                shrinking line 2500 are reported as warnings.
//
// ERROR HANDLING:
//   - Findings are collected as diagnostics, not thrown.
//   - The visited states are recorded in ValidationResult.Trace.
//   - A failed year keeps its dataset; the caller decides what to publish.
//
// =============================================================================

package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/sf133-pipeline/internal/types"
)

// CriticalLines are the SF133 lines every complete year reports:
// unobligated balance brought forward, new budget authority, total
// budgetary resources, new obligations and outlays.
var CriticalLines = []int{1000, 2490, 2500, 3020, 4110}

// TotalResourcesLine is the SF133 "Total budgetary resources" line.
const TotalResourcesLine = 2500

// maxListed bounds how many missing TAS are spelled out in a message.
const maxListed = 10

// =============================================================================
// VALIDATOR
// =============================================================================

// Options contains options for validation.
type Options struct {
	// TASCoveragePercent is the per-agency TAS coverage below which a
	// warning is raised.
	// Default: 80
	TASCoveragePercent float64

	// CriticalLines overrides the critical line list.
	CriticalLines []int
}

// DefaultOptions returns the default validation options.
func DefaultOptions() Options {
	return Options{TASCoveragePercent: 80, CriticalLines: CriticalLines}
}

// Validator checks datasets against a baseline profile.
type Validator struct {
	profile types.BaselineProfile
	options Options
}

// NewValidator creates a validator for a profile already adjusted with
// BaselineProfile.ForYear.
func NewValidator(profile types.BaselineProfile, options Options) *Validator {
	if options.CriticalLines == nil {
		options.CriticalLines = CriticalLines
	}
	return &Validator{profile: profile, options: options}
}

// run carries the state of one validation.
type run struct {
	result *types.ValidationResult
}

func (r *run) enter(state types.ValidationState) {
	r.result.State = state
	r.result.Trace = append(r.result.Trace, state)
}

func (r *run) add(d types.Diagnostic) {
	r.result.Diagnostics = append(r.result.Diagnostics, d)
	switch d.Severity {
	case types.SeverityWarning:
		r.result.WarningCount++
	case types.SeverityError:
		r.result.ErrorCount++
	}
}

func (r *run) fail(reason string, d types.Diagnostic) *types.ValidationResult {
	r.add(d)
	r.result.FailedAt = r.result.State
	r.result.Reason = reason
	r.enter(types.StateFailed)
	r.result.Passed = false
	return r.result
}

// Validate runs the state machine over a dataset. The dataset is not
// modified.
func (v *Validator) Validate(ds *types.FiscalYearDataset) *types.ValidationResult {
	r := &run{result: &types.ValidationResult{Diagnostics: []types.Diagnostic{}}}
	r.enter(types.StateNotStarted)

	// AgencyCheck
	r.enter(types.StateAgencyCheck)
	if got, want := len(ds.AgenciesCovered), v.profile.ExpectedAgencyCount; got < want {
		reason := fmt.Sprintf("only %d agencies covered, expected at least %d", got, want)
		return r.fail(reason, types.Errorf("agency_count", "", "%s", reason))
	}

	// MonthCheck
	r.enter(types.StateMonthCheck)
	if v.profile.RequiredYearEndMonth && !ds.HasMonth(types.YearEndMonth) {
		reason := fmt.Sprintf("historical year FY%d is missing %s data", ds.FiscalYear, types.YearEndMonth)
		return r.fail(reason, types.Errorf("year_end_missing", "", "%s", reason))
	}
	for _, d := range monthGaps(ds.MonthsCovered) {
		r.add(d)
	}

	// TASCheck
	r.enter(types.StateTASCheck)
	r.result.TASCoverage = v.checkTAS(ds, r)
	v.checkCriticalLines(ds, r)
	v.checkResourcesProgression(ds, r)

	r.enter(types.StatePassed)
	r.result.Passed = true
	return r.result
}

// =============================================================================
// MONTH CHECKS
// =============================================================================

// monthGaps reports months missing between October and the last month
// with data.
func monthGaps(covered []string) []types.Diagnostic {
	if len(covered) == 0 {
		return []types.Diagnostic{types.Warningf("no_months", "", "no month has data above the reporting threshold")}
	}

	present := make(map[string]bool, len(covered))
	last := 0
	for _, m := range covered {
		present[m] = true
		if i := types.MonthIndex(m); i > last {
			last = i
		}
	}

	var out []types.Diagnostic
	for i := 0; i < last; i++ {
		m := types.FiscalMonths[i]
		if present[m] {
			continue
		}
		if m == "Oct" {
			out = append(out, types.Infof("month_gap", "", "Oct has no data (common: October is often not reported separately)"))
			continue
		}
		out = append(out, types.Warningf("month_gap", "", "%s has no data but later months do", m))
	}
	return out
}

// =============================================================================
// TAS CHECKS (advisory)
// =============================================================================

func (v *Validator) checkTAS(ds *types.FiscalYearDataset, r *run) map[string]float64 {
	if len(v.profile.BaselineTASSet) == 0 {
		return nil
	}

	// TAS carry their period of availability, so accounts are compared
	// across years by account and availability type.
	present := make(map[string]bool)
	for tas := range ds.TASSet() {
		present[types.AccountKey(tas)] = true
	}
	expected := make(map[string]bool)
	for tas := range v.profile.BaselineTASSet {
		expected[types.AccountKey(tas)] = true
	}
	var missing []string
	for account := range expected {
		if !present[account] {
			missing = append(missing, account)
		}
	}
	sort.Strings(missing)
	if len(missing) > 0 {
		listed := missing
		if len(listed) > maxListed {
			listed = listed[:maxListed]
		}
		r.add(types.Warningf("tas_missing", "", "%d baseline accounts missing: %s", len(missing), strings.Join(listed, ", ")))
	}

	// Coverage compares distinct TAS counts per agency.
	byAgency := ds.TASByAgency()
	coverage := make(map[string]float64, len(v.profile.TASByAgency))
	agencies := make([]string, 0, len(v.profile.TASByAgency))
	for agency := range v.profile.TASByAgency {
		agencies = append(agencies, agency)
	}
	sort.Strings(agencies)

	for _, agency := range agencies {
		baseline := len(v.profile.TASByAgency[agency])
		if baseline == 0 {
			continue
		}
		current := len(byAgency[agency])
		pct := float64(current) * 100 / float64(baseline)
		coverage[agency] = pct
		if pct < v.options.TASCoveragePercent {
			r.add(types.Warningf("tas_coverage", "", "%s: %d TAS against %d in the baseline (%.1f%%)",
				agency, current, baseline, pct))
		}
	}
	return coverage
}

func (v *Validator) checkCriticalLines(ds *types.FiscalYearDataset, r *run) {
	lines := make(map[int]bool)
	for _, rec := range ds.Records {
		lines[rec.LineNumber] = true
	}
	for _, line := range v.options.CriticalLines {
		if !lines[line] {
			r.add(types.Warningf("critical_line_missing", "", "line %d not reported", line))
		}
	}
}

// checkResourcesProgression warns when line 2500 shrinks from one
// reported month to the next. The line is cumulative over the year. A
// month column wins over the quarter-end column of the same month.
func (v *Validator) checkResourcesProgression(ds *types.FiscalYearDataset, r *run) {
	labels := make(map[string]bool)
	for _, rec := range ds.Records {
		if rec.LineNumber == TotalResourcesLine {
			labels[rec.Month] = true
		}
	}

	var prevMonth string
	var prev decimal.Decimal
	for _, m := range types.FiscalMonths {
		if !ds.HasMonth(m) {
			continue
		}
		label := m
		if !labels[label] {
			label = quarterLabel(m)
			if !labels[label] {
				continue
			}
		}
		total := ds.LineTotal(TotalResourcesLine, label)
		if prevMonth != "" && total.LessThan(prev) {
			r.add(types.Warningf("line_2500_decrease", "", "line %d total fell from %s (%s) to %s (%s)",
				TotalResourcesLine, prev.StringFixed(2), prevMonth, total.StringFixed(2), m))
		}
		prevMonth, prev = m, total
	}
}

// quarterLabel returns the quarter-end label closing on month, or "".
func quarterLabel(month string) string {
	for _, q := range types.QuarterLabels {
		if types.CoveredMonth(q) == month {
			return q
		}
	}
	return ""
}

// =============================================================================
// REPORTING
// =============================================================================

// FormatResult formats a validation result for display.
func FormatResult(year int, res *types.ValidationResult) string {
	var sb strings.Builder

	status := "PASSED"
	if !res.Passed {
		status = "FAILED"
	}
	sb.WriteString(fmt.Sprintf("FY%d validation %s (%d errors, %d warnings)\n", year, status, res.ErrorCount, res.WarningCount))

	trace := make([]string, len(res.Trace))
	for i, s := range res.Trace {
		trace[i] = string(s)
	}
	sb.WriteString(fmt.Sprintf("  trace: %s\n", strings.Join(trace, " -> ")))
	if res.Reason != "" {
		sb.WriteString(fmt.Sprintf("  reason: %s (at %s)\n", res.Reason, res.FailedAt))
	}
	for _, d := range res.Diagnostics {
		sb.WriteString("  ")
		sb.WriteString(d.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
