package xlsxparser

import "testing"

func TestAgencyResolver_Resolve(t *testing.T) {
	r := NewAgencyResolver(map[string]string{
		"Dept. of Ed": "Department of Education",
	})

	tests := []struct {
		label string
		want  string
	}{
		{"Department of Education", "Department of Education"},
		{"  department of   the treasury ", "Department of the Treasury"},
		{"Department of Defense--Military Programs", "Department of Defense-Military"},
		{"Corps of Engineers--Civil Works", "Corps of Engineers-Civil Works"},
		{"Other Defense -- Civil Programs", "Other Defense Civil Programs"},
		{"dept. of ed", "Department of Education"},
		{"Departmnt of Agriculture", "Department of Agriculture"},
		{"Tennessee Valley Authority", "Tennessee Valley Authority"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := r.Resolve(tt.label); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestAgencyResolver_AgencyFromFileName(t *testing.T) {
	r := NewAgencyResolver(nil)
	if got := r.AgencyFromFileName("raw/Corps_of_Engineers-Civil_Works.xlsx"); got != "Corps of Engineers-Civil Works" {
		t.Fatalf("got %q", got)
	}
	if got := r.AgencyFromFileName("2668331098.xlsx"); got != "2668331098" {
		t.Fatalf("got %q", got)
	}
}
