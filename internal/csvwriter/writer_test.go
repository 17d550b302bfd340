package csvwriter

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/sf133-pipeline/internal/csvparser"
	"github.com/ginjaninja78/sf133-pipeline/internal/types"
)

func sampleRecords() []types.NormalizedRecord {
	return []types.NormalizedRecord{
		{FiscalYear: 2024, Agency: "Labor, Department of", Bureau: "05", OMBAccount: "0165", TAS: "0165 /24", LineNumber: 2500, Month: "Nov", Amount: decimal.RequireFromString("6000.10"), SourceFile: "labor.xlsx"},
		{FiscalYear: 2024, Agency: "Labor, Department of", Bureau: "05", OMBAccount: "0165", TAS: "0165 /24", LineNumber: 2500, Month: "Oct", Amount: decimal.RequireFromString("-5000"), SourceFile: "labor.xlsx"},
		{FiscalYear: 2024, Agency: "Education", Bureau: "01", OMBAccount: "0100", TAS: "0100 23/24", LineNumber: 1000, Month: "Jun (3Q)", Amount: decimal.RequireFromString("500"), SourceFile: "ed.xlsx"},
	}
}

func TestEncodeDataset_IsOrderIndependent(t *testing.T) {
	records := sampleRecords()
	reversed := []types.NormalizedRecord{records[2], records[0], records[1]}

	a, err := EncodeDataset(records)
	if err != nil {
		t.Fatalf("EncodeDataset: %v", err)
	}
	b, err := EncodeDataset(reversed)
	if err != nil {
		t.Fatalf("EncodeDataset: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("output depends on input order:\n%s\n---\n%s", a, b)
	}
	if records[0].Month != "Nov" {
		t.Fatal("input slice was reordered")
	}
}

func TestWriteDataset_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site", "data", "sf133_2024_master.csv")
	ds := &types.FiscalYearDataset{FiscalYear: 2024, Records: sampleRecords()}

	if err := WriteDataset(path, ds); err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}

	got, err := csvparser.ReadDatasetFile(path)
	if err != nil {
		t.Fatalf("ReadDatasetFile: %v", err)
	}
	want := append([]types.NormalizedRecord(nil), sampleRecords()...)
	types.SortRecords(want)

	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Key() != want[i].Key() || !got[i].Amount.Equal(want[i].Amount) || got[i].Agency != want[i].Agency {
			t.Fatalf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestMergeApprovedYears(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approved_years.json")

	first, err := MergeApprovedYears(path, []int{2021, 2020}, map[int]string{2022: "validation failed"})
	if err != nil {
		t.Fatalf("MergeApprovedYears: %v", err)
	}
	if !reflect.DeepEqual(first.ApprovedYears, []int{2020, 2021}) || first.FailedYears["2022"] == "" {
		t.Fatalf("first = %+v", first)
	}

	second, err := MergeApprovedYears(path, []int{2022}, map[int]string{2020: "download failed"})
	if err != nil {
		t.Fatalf("MergeApprovedYears: %v", err)
	}
	if !reflect.DeepEqual(second.ApprovedYears, []int{2021, 2022}) {
		t.Fatalf("ApprovedYears = %v", second.ApprovedYears)
	}
	if _, ok := second.FailedYears["2022"]; ok {
		t.Fatalf("2022 should no longer be failed: %v", second.FailedYears)
	}
}

func TestWriteSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary_2024.json")
	s := Summary{FiscalYear: 2024, Status: "failed", Reason: "no files"}

	if err := WriteSummary(path, s); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	got, err := ReadSummary(path)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	if got.Status != "failed" || got.Reason != "no files" || got.AgenciesCovered == nil {
		t.Fatalf("summary = %+v", got)
	}
	if entries, _ := os.ReadDir(filepath.Dir(path)); len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}
