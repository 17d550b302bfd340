// =============================================================================
// SF133 Pipeline - Consolidation Deduplicator
// =============================================================================
//
// An agency can appear in a fiscal year twice: once as a consolidated,
// agency-wide submission and once as a set of per-bureau files. Admitting
// both would count every line twice. This module decides, per agency,
// which representation is admitted to the aggregation.
//
// RULES (per agency, files visited by name):
//   1. No consolidated part             -> admit everything.
//   2. Consolidated parts only          -> admit them.
//   3. Both present, and the consolidated rows carry bureau codes:
//        a. every consolidated bureau is in some sub-bureau file
//           -> admit the sub-bureau files, exclude the consolidated ones
//        b. otherwise (partial coverage)
//           -> admit the consolidated parts, exclude overlapping sub files
//              and sub files with rows lacking a bureau code (ambiguous)
//   4. Both present, consolidated rows without bureau codes (coverage
//      cannot be confirmed) -> admit the consolidated parts, exclude all
//      sub files, and report the decision as ambiguous.
//
// Sub-bureau files whose bureaus do not appear in the consolidated parts
// at all are admitted in case 3b: they are not represented twice.
//
// Every part gets a report line (admitted/excluded + reason).
//
// =============================================================================

package dedup

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ginjaninja78/sf133-pipeline/internal/types"
)

// FileSummary describes one part (one agency of one workbook) for the
// deduplicator.
type FileSummary struct {
	SourceFile string
	Agency     string

	// Flagged is true when the loader already knows the part is a
	// consolidated submission.
	Flagged bool

	// Bureaus are the distinct bureau codes of the part's rows.
	Bureaus []string

	// Unattributed is true when some rows carry no bureau code.
	Unattributed bool
}

// ID identifies a part within a year.
func (f FileSummary) ID() string {
	return f.SourceFile + "#" + f.Agency
}

// Status is the outcome for one part.
type Status string

const (
	StatusAdmitted Status = "admitted"
	StatusExcluded Status = "excluded"
)

// ReportEntry is one line of the deduplication report.
type ReportEntry struct {
	SourceFile   string `json:"source_file"`
	Agency       string `json:"agency"`
	Consolidated bool   `json:"consolidated"`
	Status       Status `json:"status"`
	Reason       string `json:"reason"`
	Ambiguous    bool   `json:"ambiguous,omitempty"`
}

// Decision is the deduplication outcome for one fiscal year.
type Decision struct {
	Report      []ReportEntry
	Diagnostics []types.Diagnostic

	admitted map[string]bool
}

// Admits reports whether the part was admitted.
func (d Decision) Admits(f FileSummary) bool {
	return d.admitted[f.ID()]
}

// Excluded returns the report entries of excluded parts.
func (d Decision) Excluded() []ReportEntry {
	var out []ReportEntry
	for _, e := range d.Report {
		if e.Status == StatusExcluded {
			out = append(out, e)
		}
	}
	return out
}

// Resolve decides which parts of a fiscal year are admitted.
func Resolve(parts []FileSummary) Decision {
	dec := Decision{admitted: make(map[string]bool)}

	groups := make(map[string][]FileSummary)
	for _, p := range parts {
		groups[p.Agency] = append(groups[p.Agency], p)
	}
	agencies := make([]string, 0, len(groups))
	for a := range groups {
		agencies = append(agencies, a)
	}
	sort.Strings(agencies)

	for _, agency := range agencies {
		group := groups[agency]
		sort.SliceStable(group, func(i, j int) bool { return group[i].SourceFile < group[j].SourceFile })
		dec.resolveAgency(agency, group)
	}

	return dec
}

func (d *Decision) resolveAgency(agency string, group []FileSummary) {
	var consolidated, subs []FileSummary
	isConsolidated := make(map[string]bool)
	for _, p := range group {
		if Consolidated(p, group) {
			consolidated = append(consolidated, p)
			isConsolidated[p.ID()] = true
		} else {
			subs = append(subs, p)
		}
	}

	switch {
	case len(consolidated) == 0:
		for _, p := range subs {
			d.admit(p, false, "only representation of agency", false)
		}
		return
	case len(subs) == 0:
		for _, p := range consolidated {
			d.admit(p, true, "consolidated file; no sub-bureau files present", false)
		}
		return
	}

	consolidatedBureaus := make(map[string]bool)
	unattributed := false
	for _, p := range consolidated {
		for _, b := range p.Bureaus {
			consolidatedBureaus[b] = true
		}
		unattributed = unattributed || p.Unattributed
	}

	if unattributed || len(consolidatedBureaus) == 0 {
		for _, p := range consolidated {
			d.admit(p, true, "bureau coverage cannot be confirmed; consolidated file preferred", true)
		}
		for _, p := range subs {
			d.exclude(p, false, "bureau coverage cannot be confirmed; consolidated file preferred", true)
		}
		d.Diagnostics = append(d.Diagnostics, types.Warningf("dedup_ambiguous", "",
			"%s: consolidated rows without bureau codes; kept %s", agency, names(consolidated)))
		return
	}

	covered := make(map[string]bool)
	for _, p := range subs {
		for _, b := range p.Bureaus {
			covered[b] = true
		}
	}
	var missing []string
	for b := range consolidatedBureaus {
		if !covered[b] {
			missing = append(missing, b)
		}
	}
	sort.Strings(missing)

	if len(missing) == 0 {
		for _, p := range subs {
			d.admit(p, false, "sub-bureau files cover every consolidated bureau", false)
		}
		for _, p := range consolidated {
			d.exclude(p, true, fmt.Sprintf("superseded by sub-bureau files %s", names(subs)), false)
		}
		return
	}

	for _, p := range consolidated {
		d.admit(p, true, fmt.Sprintf("sub-bureau files miss bureaus %s", strings.Join(missing, ",")), false)
	}
	var unconfirmed []FileSummary
	for _, p := range subs {
		switch {
		case p.Unattributed || len(p.Bureaus) == 0:
			d.exclude(p, false, fmt.Sprintf("rows without bureau codes; consolidated %s kept", names(consolidated)), true)
			unconfirmed = append(unconfirmed, p)
		case overlaps(p.Bureaus, consolidatedBureaus):
			d.exclude(p, false, fmt.Sprintf("partial coverage; consolidated %s kept", names(consolidated)), false)
		default:
			d.admit(p, false, "bureaus not present in consolidated file", false)
		}
	}
	if len(unconfirmed) > 0 {
		d.Diagnostics = append(d.Diagnostics, types.Warningf("dedup_ambiguous", "",
			"%s: sub-bureau files %s have rows without bureau codes; kept consolidated %s",
			agency, names(unconfirmed), names(consolidated)))
	}
	d.Diagnostics = append(d.Diagnostics, types.Infof("dedup_partial", "",
		"%s: sub-bureau files miss bureaus %s; kept consolidated %s", agency, strings.Join(missing, ","), names(consolidated)))
}

// Consolidated reports whether p is a consolidated part within its agency
// group: flagged by the loader, or spanning at least two bureaus of which
// another part of the group holds a strict subset.
func Consolidated(p FileSummary, group []FileSummary) bool {
	if p.Flagged {
		return true
	}
	if len(p.Bureaus) < 2 {
		return false
	}
	for _, other := range group {
		if other.ID() == p.ID() || len(other.Bureaus) == 0 {
			continue
		}
		if strictSubset(other.Bureaus, p.Bureaus) {
			return true
		}
	}
	return false
}

func (d *Decision) admit(p FileSummary, consolidated bool, reason string, ambiguous bool) {
	d.admitted[p.ID()] = true
	d.Report = append(d.Report, ReportEntry{
		SourceFile: p.SourceFile, Agency: p.Agency, Consolidated: consolidated,
		Status: StatusAdmitted, Reason: reason, Ambiguous: ambiguous,
	})
}

func (d *Decision) exclude(p FileSummary, consolidated bool, reason string, ambiguous bool) {
	d.Report = append(d.Report, ReportEntry{
		SourceFile: p.SourceFile, Agency: p.Agency, Consolidated: consolidated,
		Status: StatusExcluded, Reason: reason, Ambiguous: ambiguous,
	})
}

func strictSubset(a, b []string) bool {
	if len(a) >= len(b) {
		return false
	}
	set := make(map[string]bool, len(b))
	for _, x := range b {
		set[x] = true
	}
	for _, x := range a {
		if !set[x] {
			return false
		}
	}
	return true
}

func overlaps(bureaus []string, set map[string]bool) bool {
	for _, b := range bureaus {
		if set[b] {
			return true
		}
	}
	return false
}

func names(parts []FileSummary) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.SourceFile
	}
	return strings.Join(out, ",")
}
