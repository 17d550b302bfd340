package aggregator

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/sf133-pipeline/internal/types"
)

func rec(agency, bureau string, line int, month, amount, source string) types.NormalizedRecord {
	return types.NormalizedRecord{
		FiscalYear: 2024,
		Agency:     agency,
		Bureau:     bureau,
		OMBAccount: "0100",
		TAS:        "0100 /24",
		LineNumber: line,
		Month:      month,
		Amount:     decimal.RequireFromString(amount),
		SourceFile: source,
	}
}

func TestAggregator_MergesIdenticalDuplicates(t *testing.T) {
	a := New(2024, Options{MinMonthTotal: decimal.NewFromInt(1000)})
	a.Add([]types.NormalizedRecord{
		rec("Labor", "05", 2500, "Oct", "5000", "a.xlsx"),
		rec("Labor", "05", 2500, "Nov", "6000", "a.xlsx"),
	})
	a.Add([]types.NormalizedRecord{
		rec("Labor", "05", 2500, "Oct", "5000", "b.xlsx"),
	})

	ds, err := a.Dataset()
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	if len(ds.Records) != 2 || a.Merged() != 1 {
		t.Fatalf("records=%d merged=%d", len(ds.Records), a.Merged())
	}
	if ds.Records[0].Month != "Oct" || ds.Records[1].Month != "Nov" {
		t.Fatalf("records not in fiscal order: %+v", ds.Records)
	}
}

func TestAggregator_ConflictFailsYear(t *testing.T) {
	a := New(2024, Options{})
	a.Add([]types.NormalizedRecord{rec("Labor", "05", 2500, "Oct", "5000", "a.xlsx")})
	a.Add([]types.NormalizedRecord{rec("Labor", "05", 2500, "Oct", "5001", "b.xlsx")})

	ds, err := a.Dataset()
	if ds != nil {
		t.Fatal("no dataset expected on conflict")
	}
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	var ce *ConflictError
	if !errors.As(err, &ce) || len(ce.Conflicts) != 1 {
		t.Fatalf("ConflictError = %+v", ce)
	}
	c := ce.Conflicts[0]
	if c.FirstSource != "a.xlsx" || c.SecondSource != "b.xlsx" || c.Key.LineNumber != 2500 {
		t.Fatalf("conflict = %s", c)
	}
}

func TestAggregator_KeySharedByTwoAgenciesConflicts(t *testing.T) {
	a := New(2024, Options{})
	a.Add([]types.NormalizedRecord{rec("Labor", "05", 2500, "Oct", "5000", "labor.xlsx")})
	a.Add([]types.NormalizedRecord{rec("Energy", "05", 2500, "Oct", "5000", "energy.xlsx")})

	_, err := a.Dataset()
	var ce *ConflictError
	if !errors.As(err, &ce) || len(ce.Conflicts) != 1 {
		t.Fatalf("err = %v, want one conflict", err)
	}
	if a.Merged() != 0 {
		t.Fatal("records of different agencies must not be merged")
	}
	if c := ce.Conflicts[0]; c.FirstAgency != "Labor" || c.SecondAgency != "Energy" {
		t.Fatalf("conflict = %s", c)
	}
}

func TestAggregator_DerivesCoverage(t *testing.T) {
	a := New(2024, Options{MinMonthTotal: decimal.NewFromInt(1000)})
	a.Add([]types.NormalizedRecord{
		rec("Labor", "05", 2500, "Oct", "0", "a.xlsx"),
		rec("Labor", "05", 2500, "Nov", "1500", "a.xlsx"),
		rec("Education", "10", 2500, "Dec", "-2000", "b.xlsx"),
		rec("Education", "10", 2500, "Jan", "999", "b.xlsx"),
		rec("Education", "10", 2500, "Jun (3Q)", "7000", "b.xlsx"),
	})

	ds, err := a.Dataset()
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	if !reflect.DeepEqual(ds.AgenciesCovered, []string{"Education", "Labor"}) {
		t.Fatalf("AgenciesCovered = %v", ds.AgenciesCovered)
	}
	if want := []string{"Nov", "Dec", "Jun"}; !reflect.DeepEqual(ds.MonthsCovered, want) {
		t.Fatalf("MonthsCovered = %v, want %v", ds.MonthsCovered, want)
	}
	if got := ds.LineTotal(2500, "Dec"); !got.Equal(decimal.NewFromInt(-2000)) {
		t.Fatalf("LineTotal(2500, Dec) = %s", got)
	}
}
