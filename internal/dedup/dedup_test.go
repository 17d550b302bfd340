package dedup

import (
	"testing"

	"github.com/ginjaninja78/sf133-pipeline/internal/types"
)

func statusOf(t *testing.T, d Decision, file string) ReportEntry {
	t.Helper()
	for _, e := range d.Report {
		if e.SourceFile == file {
			return e
		}
	}
	t.Fatalf("no report entry for %s", file)
	return ReportEntry{}
}

func TestResolve_SubBureauFilesWinWhenComplete(t *testing.T) {
	parts := []FileSummary{
		{SourceFile: "ed_all.xlsx", Agency: "Education", Flagged: true, Bureaus: []string{"10", "20"}},
		{SourceFile: "ed_10.xlsx", Agency: "Education", Bureaus: []string{"10"}},
		{SourceFile: "ed_20.xlsx", Agency: "Education", Bureaus: []string{"20"}},
	}

	d := Resolve(parts)

	if d.Admits(parts[0]) {
		t.Fatal("consolidated file should be excluded")
	}
	if !d.Admits(parts[1]) || !d.Admits(parts[2]) {
		t.Fatal("sub-bureau files should be admitted")
	}
	if e := statusOf(t, d, "ed_all.xlsx"); e.Status != StatusExcluded || !e.Consolidated {
		t.Fatalf("report entry = %+v", e)
	}
	if len(d.Report) != 3 {
		t.Fatalf("report has %d entries, want 3", len(d.Report))
	}
}

func TestResolve_PartialCoverageKeepsConsolidated(t *testing.T) {
	parts := []FileSummary{
		{SourceFile: "a_all.xlsx", Agency: "A", Bureaus: []string{"10", "20", "30"}},
		{SourceFile: "a_10.xlsx", Agency: "A", Bureaus: []string{"10"}},
		{SourceFile: "a_99.xlsx", Agency: "A", Bureaus: []string{"99"}},
	}

	d := Resolve(parts)

	if !d.Admits(parts[0]) {
		t.Fatal("structurally consolidated file should be kept on partial coverage")
	}
	if d.Admits(parts[1]) {
		t.Fatal("overlapping sub file should be excluded")
	}
	if !d.Admits(parts[2]) {
		t.Fatal("disjoint sub file should be admitted")
	}
	if len(d.Excluded()) != 1 {
		t.Fatalf("excluded = %+v", d.Excluded())
	}
}

func TestResolve_AmbiguousPrefersConsolidated(t *testing.T) {
	parts := []FileSummary{
		{SourceFile: "b_sub.xlsx", Agency: "B", Bureaus: []string{"10"}},
		{SourceFile: "b_all.xlsx", Agency: "B", Flagged: true, Unattributed: true},
	}

	d := Resolve(parts)

	if !d.Admits(parts[1]) || d.Admits(parts[0]) {
		t.Fatal("ambiguous coverage should keep the consolidated file only")
	}
	if e := statusOf(t, d, "b_all.xlsx"); !e.Ambiguous {
		t.Fatalf("entry not marked ambiguous: %+v", e)
	}
	if len(d.Diagnostics) != 1 || d.Diagnostics[0].Code != "dedup_ambiguous" {
		t.Fatalf("diagnostics = %v", d.Diagnostics)
	}
}

func TestResolve_SubFileWithoutBureausIsAmbiguous(t *testing.T) {
	tests := []struct {
		name string
		sub  FileSummary
	}{
		{"no bureau codes", FileSummary{SourceFile: "labor.xlsx", Agency: "Labor", Unattributed: true}},
		{"some rows unattributed", FileSummary{SourceFile: "labor.xlsx", Agency: "Labor", Bureaus: []string{"07"}, Unattributed: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			all := FileSummary{SourceFile: "all_agencies.xlsx", Agency: "Labor", Flagged: true, Bureaus: []string{"05"}}

			d := Resolve([]FileSummary{all, tt.sub})

			if !d.Admits(all) || d.Admits(tt.sub) {
				t.Fatal("only the consolidated part should be admitted")
			}
			if e := statusOf(t, d, "labor.xlsx"); e.Status != StatusExcluded || !e.Ambiguous {
				t.Fatalf("report entry = %+v", e)
			}
			found := false
			for _, diag := range d.Diagnostics {
				if diag.Code == "dedup_ambiguous" && diag.Severity == types.SeverityWarning {
					found = true
				}
			}
			if !found {
				t.Fatalf("diagnostics = %v", d.Diagnostics)
			}
		})
	}
}

func TestResolve_IndependentAgenciesAndReportOrder(t *testing.T) {
	parts := []FileSummary{
		{SourceFile: "z.xlsx", Agency: "Labor", Bureaus: []string{"05"}},
		{SourceFile: "m2.xlsx", Agency: "Energy", Flagged: true, Bureaus: []string{"10"}},
		{SourceFile: "m1.xlsx", Agency: "Energy", Flagged: true, Bureaus: []string{"10"}},
	}

	d := Resolve(parts)

	for _, p := range parts {
		if !d.Admits(p) {
			t.Fatalf("%s should be admitted", p.SourceFile)
		}
	}
	want := []string{"m1.xlsx", "m2.xlsx", "z.xlsx"}
	for i, e := range d.Report {
		if e.SourceFile != want[i] {
			t.Fatalf("report order = %+v", d.Report)
		}
	}
}

func TestConsolidated_SameBureauSetIsNotConsolidation(t *testing.T) {
	oct := FileSummary{SourceFile: "oct.xlsx", Agency: "A", Bureaus: []string{"10", "20"}}
	nov := FileSummary{SourceFile: "nov.xlsx", Agency: "A", Bureaus: []string{"10", "20"}}
	if Consolidated(oct, []FileSummary{oct, nov}) {
		t.Fatal("files with equal bureau sets are not consolidations of each other")
	}
}
