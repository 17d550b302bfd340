package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func touch(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverYearFiles(t *testing.T) {
	root := t.TempDir()
	fm := NewFileManager(filepath.Join(root, "raw_data"), filepath.Join(root, "out"), filepath.Join(root, "backups"))

	for _, name := range []string{"b.xlsx", "a.XLS", "~$b.xlsx", "notes.txt", "c.xlsx.part"} {
		touch(t, filepath.Join(fm.YearDir(2024), name), "x")
	}

	files, err := fm.DiscoverYearFiles(2024)
	if err != nil {
		t.Fatalf("DiscoverYearFiles: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.XLS" || filepath.Base(files[1]) != "b.xlsx" {
		t.Fatalf("files = %v", files)
	}

	none, err := fm.DiscoverYearFiles(1999)
	if err != nil || len(none) != 0 {
		t.Fatalf("missing year = %v, %v", none, err)
	}
}

func TestBackupOutput(t *testing.T) {
	root := t.TempDir()
	fm := NewFileManager(filepath.Join(root, "raw_data"), filepath.Join(root, "site", "data"), filepath.Join(root, "backups"))
	fm.Now = func() time.Time { return time.Date(2025, 10, 1, 9, 30, 0, 0, time.UTC) }

	if path, err := fm.BackupOutput(); err != nil || path != "" {
		t.Fatalf("empty output should not be backed up: %q, %v", path, err)
	}

	touch(t, filepath.Join(fm.OutputDir, "sf133_2024_master.csv"), "header\n")
	touch(t, filepath.Join(fm.OutputDir, "monthly", "2024.json"), "{}")

	path, err := fm.BackupOutput()
	if err != nil {
		t.Fatalf("BackupOutput: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "backup_20251001_093000_") {
		t.Fatalf("backup name = %s", filepath.Base(path))
	}
	data, err := os.ReadFile(filepath.Join(path, "monthly", "2024.json"))
	if err != nil || string(data) != "{}" {
		t.Fatalf("nested file not copied: %q, %v", data, err)
	}
	if !FileExists(filepath.Join(path, "sf133_2024_master.csv")) {
		t.Fatal("master file not copied")
	}
}

func TestWriteSummaryLog(t *testing.T) {
	start := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	summary := RunSummary{
		RunID:     "abc",
		StartTime: start,
		EndTime:   start.Add(90 * time.Second),
		Years: []YearLine{
			{Year: 2020, Status: "succeeded", Files: 3, Records: 120, Agencies: 2, Months: []string{"Oct", "Sep"}},
			{Year: 2021, Status: "failed", Reason: "download failed"},
		},
	}

	path, err := WriteSummaryLog(summary, t.TempDir())
	if err != nil {
		t.Fatalf("WriteSummaryLog: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{"1 succeeded, 1 failed", "download failed", "2020"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
}

func TestWriteSummaryLog_RunsInSameSecondKeepSeparateLogs(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

	first, err := WriteSummaryLog(RunSummary{RunID: "11111111-aaaa", StartTime: start}, dir)
	if err != nil {
		t.Fatalf("WriteSummaryLog: %v", err)
	}
	second, err := WriteSummaryLog(RunSummary{RunID: "22222222-bbbb", StartTime: start}, dir)
	if err != nil {
		t.Fatalf("WriteSummaryLog: %v", err)
	}

	if first == second {
		t.Fatalf("both runs wrote %s", first)
	}
	if filepath.Base(first) != "run_summary_20251001_090000_11111111.txt" {
		t.Fatalf("log name = %s", filepath.Base(first))
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 2 {
		t.Fatalf("log dir has %d entries, %v", len(entries), err)
	}
}
