package store

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/sf133-pipeline/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "catalog", "sf133.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveYear_ReplacesPreviousRun(t *testing.T) {
	s := openTestStore(t)

	records := []types.NormalizedRecord{
		{FiscalYear: 2024, Agency: "Labor", Bureau: "05", OMBAccount: "0165", TAS: "0165 /24", LineNumber: 2500, Month: "Nov", Amount: decimal.RequireFromString("12.50"), SourceFile: "a.xlsx"},
		{FiscalYear: 2024, Agency: "Labor", Bureau: "05", OMBAccount: "0165", TAS: "0165 /24", LineNumber: 2500, Month: "Oct", Amount: decimal.RequireFromString("10"), SourceFile: "a.xlsx"},
	}

	if err := s.StartRun("run-1", []int{2024}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	res := YearResult{FiscalYear: 2024, RunID: "run-1", Status: StatusSucceeded, AgenciesCovered: []string{"Labor"}, MonthsCovered: []string{"Oct", "Nov"}}
	if err := s.SaveYear(res, records); err != nil {
		t.Fatalf("SaveYear: %v", err)
	}
	if err := s.SaveYear(res, records); err != nil {
		t.Fatalf("SaveYear (rerun): %v", err)
	}

	got, err := s.LoadRecords(2024)
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if len(got) != 2 || got[0].Month != "Oct" || !got[1].Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("records = %+v", got)
	}

	status, err := s.YearStatus(2024)
	if err != nil {
		t.Fatalf("YearStatus: %v", err)
	}
	if status.RecordCount != 2 || !reflect.DeepEqual(status.MonthsCovered, []string{"Oct", "Nov"}) {
		t.Fatalf("status = %+v", status)
	}

	failed := YearResult{FiscalYear: 2024, RunID: "run-2", Status: StatusFailed, Reason: "download failed"}
	if err := s.SaveYear(failed, nil); err != nil {
		t.Fatalf("SaveYear (failed): %v", err)
	}
	if got, _ := s.LoadRecords(2024); len(got) != 0 {
		t.Fatalf("failed run should clear records, got %d", len(got))
	}
	if err := s.FinishRun("run-1", 1, 0); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
}

func TestApprovedYearsAndNotFound(t *testing.T) {
	s := openTestStore(t)

	for _, r := range []YearResult{
		{FiscalYear: 2022, RunID: "r", Status: StatusFailed, Reason: "validation failed"},
		{FiscalYear: 2021, RunID: "r", Status: StatusSucceeded},
		{FiscalYear: 2020, RunID: "r", Status: StatusSucceeded},
	} {
		if err := s.SaveYear(r, nil); err != nil {
			t.Fatalf("SaveYear: %v", err)
		}
	}

	years, err := s.ApprovedYears()
	if err != nil {
		t.Fatalf("ApprovedYears: %v", err)
	}
	if !reflect.DeepEqual(years, []int{2020, 2021}) {
		t.Fatalf("ApprovedYears = %v", years)
	}

	if _, err := s.YearStatus(1999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
