package csvparser

import (
	"errors"
	"strings"
	"testing"
)

func TestReadDataset(t *testing.T) {
	input := "\ufeffFiscal_Year,bureau,omb_account,tas,line_number,month,amount,source_file\n" +
		"2025,10,0100,0100 /25,2500,Sep (4Q),1234.56,ed.xlsx\n" +
		"\n" +
		"2025,10,0100,0100 /25,1000,Oct,-7,ed.xlsx\n"

	records, err := ReadDataset(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadDataset: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	r := records[0]
	if r.FiscalYear != 2025 || r.Month != "Sep (4Q)" || r.Amount.String() != "1234.56" || r.Agency != "" {
		t.Fatalf("record = %+v", r)
	}
}

func TestReadDataset_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"missing column", "fiscal_year,bureau\n2025,10\n", ErrMissingColumn},
		{"bad amount", "fiscal_year,bureau,omb_account,tas,line_number,month,amount\n2025,10,0100,0100 /25,2500,Oct,abc\n", nil},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadDataset(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
