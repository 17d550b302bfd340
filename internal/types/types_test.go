package types

import "testing"

func TestAccountKey(t *testing.T) {
	tests := []struct {
		tas  string
		want string
	}{
		{"016-0100 /25", "016-0100 annual"},
		{"016-0100 /20", "016-0100 annual"},
		{"016-0165 /X", "016-0165 X"},
		{"016-0300 24/25", "016-0300 multi"},
		{"12-016-0100 /25", "12-016-0100 annual"},
		{"0100", "0100"},
	}

	for _, tt := range tests {
		if got := AccountKey(tt.tas); got != tt.want {
			t.Errorf("AccountKey(%q) = %q, want %q", tt.tas, got, tt.want)
		}
	}
}

func TestMonthLess_QuarterAfterItsMonth(t *testing.T) {
	if !MonthLess("Sep", "Sep (4Q)") || MonthLess("Sep (4Q)", "Sep") {
		t.Fatal("month must sort before its quarter-end label")
	}
	if !MonthLess("Dec (1Q)", "Jan") {
		t.Fatal("Dec (1Q) must sort before Jan")
	}
}
