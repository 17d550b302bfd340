package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadMainConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadMainConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadMainConfig: %v", err)
	}
	if cfg.BaselineYear != 2025 || cfg.MaxConcurrency != 1 || cfg.MinMonthTotal != 1000 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if !cfg.ShouldBackup() {
		t.Fatalf("backups should default to enabled")
	}
}

func TestLoadMainConfig_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
base_dir: /srv/sf133
baseline_year: 2024
max_concurrency: 3
backup_before_write: false
consolidated_files:
  - 2668331098.xlsx
agency_aliases:
  "Dept of Education": "Department of Education"
`)

	cfg, err := LoadMainConfig(path)
	if err != nil {
		t.Fatalf("LoadMainConfig: %v", err)
	}
	if cfg.BaselineYear != 2024 || cfg.MaxConcurrency != 3 {
		t.Fatalf("unexpected values: %+v", cfg)
	}
	if cfg.ShouldBackup() {
		t.Fatalf("backup_before_write: false was ignored")
	}
	if got := cfg.MasterPath(2021); got != filepath.Join("/srv/sf133", "site", "data", "sf133_2021_master.csv") {
		t.Fatalf("MasterPath = %s", got)
	}
	if cfg.AgencyAliases["Dept of Education"] != "Department of Education" {
		t.Fatalf("aliases = %v", cfg.AgencyAliases)
	}
}

func TestLoadMainConfig_RejectsBadValues(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "max_concurrency: -2\n")
	if _, err := LoadMainConfig(path); err == nil {
		t.Fatal("expected error for negative max_concurrency")
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	year := 2023
	skip := true
	if err := ApplyOverrides(cfg, Overrides{BaselineYear: &year, SkipDownload: &skip}); err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}
	if cfg.BaselineYear != 2023 || !cfg.SkipDownload {
		t.Fatalf("overrides not applied: %+v", cfg)
	}

	bad := "verbose"
	if err := ApplyOverrides(cfg, Overrides{LogLevel: &bad}); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestLoadURLTable_Formats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"urls.json": `{"sf133_urls": {"2024": "https://example.test/fy24", "2025": "https://example.test/fy25"}}`,
		"urls.yaml": "sf133_urls:\n  \"2024\": https://example.test/fy24\n  \"2025\": https://example.test/fy25\n",
		"urls.toml": "[sf133_urls]\n2024 = \"https://example.test/fy24\"\n2025 = \"https://example.test/fy25\"\n",
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			table, err := LoadURLTable(writeFile(t, dir, name, content))
			if err != nil {
				t.Fatalf("LoadURLTable: %v", err)
			}
			if !reflect.DeepEqual(table.Years(), []int{2024, 2025}) {
				t.Fatalf("Years() = %v", table.Years())
			}
			url, err := table.Lookup(2025)
			if err != nil || url != "https://example.test/fy25" {
				t.Fatalf("Lookup(2025) = %q, %v", url, err)
			}
		})
	}
}

func TestURLTable_LookupMissingYear(t *testing.T) {
	table, err := LoadURLTable(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("LoadURLTable: %v", err)
	}
	if _, err := table.Lookup(2019); !errors.Is(err, ErrNoURL) {
		t.Fatalf("Lookup error = %v, want ErrNoURL", err)
	}
	table.Set(2019, "https://example.test/fy19")
	if url, _ := table.Lookup(2019); url != "https://example.test/fy19" {
		t.Fatalf("Set/Lookup = %q", url)
	}
}

func TestLoadURLTable_RejectsNonYearKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "urls.json", `{"sf133_urls": {"latest": "https://example.test"}}`)
	if _, err := LoadURLTable(path); err == nil {
		t.Fatal("expected error for non-year key")
	}
}

func TestLoadURLTable_NormalizesYearKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "urls.json", `{"sf133_urls": {" 2024": "https://example.test/fy24", "2025 ": "https://example.test/fy25"}}`)

	table, err := LoadURLTable(path)
	if err != nil {
		t.Fatalf("LoadURLTable: %v", err)
	}
	for year, want := range map[int]string{2024: "https://example.test/fy24", 2025: "https://example.test/fy25"} {
		if url, err := table.Lookup(year); err != nil || url != want {
			t.Errorf("Lookup(%d) = %q, %v", year, url, err)
		}
	}

	dup := writeFile(t, dir, "dup.json", `{"sf133_urls": {"2024": "a", " 2024": "b"}}`)
	if _, err := LoadURLTable(dup); err == nil {
		t.Fatal("expected error for a year listed twice")
	}
}
