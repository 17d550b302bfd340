package cmd

import (
	"reflect"
	"testing"
)

func TestParseYears(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "2021", want: []int{2021}},
		{in: "2022, 2020,2022", want: []int{2020, 2022}},
		{in: "2019-2021,2024", want: []int{2019, 2020, 2021, 2024}},
		{in: "2021-2019", wantErr: true},
		{in: "FY21", wantErr: true},
		{in: "21", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseYears(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseYears(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseYears(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
