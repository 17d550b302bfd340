package normalizer

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/sf133-pipeline/internal/types"
	"github.com/ginjaninja78/sf133-pipeline/internal/xlsxparser"
)

func rawRow(line, account string, amounts map[string]string) types.RawRow {
	return types.RawRow{
		Bureau:         "10",
		OMBAccount:     account,
		LineNumber:     line,
		FY1:            "24",
		FY2:            "25",
		MonthlyAmounts: amounts,
		SourceFile:     "education.xlsx",
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		present bool
		wantErr bool
	}{
		{"", "0", false, false},
		{"   ", "0", false, false},
		{"123.4", "123.4", true, false},
		{"1,234,567.89", "1234567.89", true, false},
		{"$1,000", "1000", true, false},
		{"(500)", "-500", true, false},
		{"-42.5", "-42.5", true, false},
		{"1.5E+06", "1500000", true, false},
		{"n/a", "0", true, true},
		{"-", "0", true, true},
	}

	for _, tt := range tests {
		got, present, err := ParseAmount(tt.in)
		if present != tt.present || (err != nil) != tt.wantErr {
			t.Errorf("ParseAmount(%q) present=%v err=%v", tt.in, present, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestDeriveTAS(t *testing.T) {
	tests := []struct {
		trag, alloc, tracct, fy1, fy2 string
		want                          string
	}{
		{"", "", "", "", "25", "0100 /25"},
		{"", "", "", "24", "25", "0100 24/25"},
		{"", "", "", "2023", "2025", "0100 23/25"},
		{"", "", "", "", "X", "0100 /X"},
		{"", "", "", "x", "", "0100 /X"},
		{"", "", "", "", "", "0100 /24"},
		{"", "", "", "25", "25", "0100 /25"},
		{"016", "", "", "", "25", "016-0100 /25"},
		{"016", "", "0165", "", "X", "016-0165 /X"},
		{"016", "12", "", "", "25", "12-016-0100 /25"},
	}

	for _, tt := range tests {
		row := types.RawRow{
			OMBAccount:      "0100",
			TreasuryAgency:  tt.trag,
			TreasuryAccount: tt.tracct,
			Allocation:      tt.alloc,
			FY1:             tt.fy1,
			FY2:             tt.fy2,
		}
		if got := DeriveTAS(row, 2024); got != tt.want {
			t.Errorf("DeriveTAS(trag=%q alloc=%q tracct=%q fy1=%q fy2=%q) = %q, want %q",
				tt.trag, tt.alloc, tt.tracct, tt.fy1, tt.fy2, got, tt.want)
		}
	}
}

func TestNormalize_TreasuryAgencySeparatesAccounts(t *testing.T) {
	labor := rawRow("2500", "0100", map[string]string{"AMT_SEP": "10000"})
	labor.TreasuryAgency = "016"
	energy := rawRow("2500", "0100", map[string]string{"AMT_SEP": "10000"})
	energy.TreasuryAgency = "089"

	l := Normalize(xlsxparser.FilePart{Agency: "Labor", SourceFile: "all.xlsx", Rows: []types.RawRow{labor}}, Context{FiscalYear: 2025})
	e := Normalize(xlsxparser.FilePart{Agency: "Energy", SourceFile: "all.xlsx", Rows: []types.RawRow{energy}}, Context{FiscalYear: 2025})

	if len(l.Records) != 1 || len(e.Records) != 1 {
		t.Fatalf("records = %+v / %+v", l.Records, e.Records)
	}
	if l.Records[0].Key() == e.Records[0].Key() {
		t.Fatalf("agencies share key %s", l.Records[0].Key())
	}
	if l.Records[0].TAS != "016-0100 24/25" {
		t.Fatalf("labor TAS = %q", l.Records[0].TAS)
	}
}

func TestNormalize_MapsColumnsToMonths(t *testing.T) {
	part := xlsxparser.FilePart{
		Agency:     "Department of Education",
		SourceFile: "education.xlsx",
		Rows: []types.RawRow{
			rawRow("2500", "0100", map[string]string{"AMT_JUL": "123.4", "AMT3": "500", "AMT_AUG": ""}),
		},
	}

	res := Normalize(part, Context{FiscalYear: 2025})

	if len(res.Records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(res.Records), res.Records)
	}
	// Jun (3Q) sorts before Jul.
	q3, jul := res.Records[0], res.Records[1]
	if q3.Month != "Jun (3Q)" || !q3.Amount.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("quarter record = %+v", q3)
	}
	if jul.Month != "Jul" || !jul.Amount.Equal(decimal.RequireFromString("123.4")) {
		t.Fatalf("month record = %+v", jul)
	}
	if jul.Agency != "Department of Education" || jul.FiscalYear != 2025 || jul.TAS != "0100 24/25" || jul.LineNumber != 2500 {
		t.Fatalf("record fields = %+v", jul)
	}
}

func TestNormalize_DropsAndCoerces(t *testing.T) {
	part := xlsxparser.FilePart{
		Agency:     "Department of Education",
		SourceFile: "education.xlsx",
		Rows: []types.RawRow{
			rawRow("", "0100", map[string]string{"AMT_OCT": "1"}),
			rawRow("1000", "", map[string]string{"AMT_OCT": "1"}),
			rawRow("ten", "0100", map[string]string{"AMT_OCT": "1"}),
			rawRow("1000.5", "0100", map[string]string{"AMT_OCT": "1"}),
			rawRow("999", "0100", map[string]string{"AMT_OCT": "1"}),
			rawRow("10000", "0100", map[string]string{"AMT_OCT": "1"}),
			rawRow("1000.0", "0100", map[string]string{"AMT_OCT": "pending"}),
		},
	}

	res := Normalize(part, Context{FiscalYear: 2025, Agency: "Education"})

	if res.DroppedMissing != 2 || res.DroppedBadLine != 2 || res.DroppedOutOfRange != 2 {
		t.Fatalf("drop counters = %d/%d/%d", res.DroppedMissing, res.DroppedBadLine, res.DroppedOutOfRange)
	}
	if res.RowsRead != 7 || res.CoercedAmounts != 1 {
		t.Fatalf("rows=%d coerced=%d", res.RowsRead, res.CoercedAmounts)
	}
	if len(res.Records) != 1 || !res.Records[0].Amount.IsZero() || res.Records[0].LineNumber != 1000 {
		t.Fatalf("records = %+v", res.Records)
	}
	if res.Records[0].Agency != "Education" {
		t.Fatalf("context agency not applied: %q", res.Records[0].Agency)
	}

	warnings := 0
	for _, d := range res.Diagnostics {
		if d.Severity == types.SeverityWarning {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("warnings = %d, want 1: %v", warnings, res.Diagnostics)
	}
}

func TestNormalize_SumsRowsWithSameKey(t *testing.T) {
	part := xlsxparser.FilePart{
		Agency:     "Department of Education",
		SourceFile: "education.xlsx",
		Rows: []types.RawRow{
			rawRow("2500", "0100", map[string]string{"AMT_OCT": "1000"}),
			rawRow("2500", "0100", map[string]string{"AMT_OCT": "250.25"}),
		},
	}

	res := Normalize(part, Context{FiscalYear: 2025})

	if len(res.Records) != 1 || res.MergedRows != 1 {
		t.Fatalf("records=%d merged=%d", len(res.Records), res.MergedRows)
	}
	if !res.Records[0].Amount.Equal(decimal.RequireFromString("1250.25")) {
		t.Fatalf("amount = %s", res.Records[0].Amount)
	}
}
