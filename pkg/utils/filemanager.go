// =============================================================================
// SF133 Pipeline - File Manager Utility
// =============================================================================
//
// This module provides the file handling around a pipeline run:
//   - Workbook discovery under raw_data/<year>/
//   - Backups of the output directory before it is overwritten
//   - The human-readable run summary log
//
// BACKUP STRATEGY:
//   - The whole output directory is copied, not moved
//   - Each backup gets its own directory: backups/backup_<timestamp>_<id>
//   - Subdirectories of the output directory are copied recursively
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for the pipeline.
type FileManager struct {
	// RawDataDir holds one subdirectory of workbooks per fiscal year.
	RawDataDir string

	// OutputDir receives the master datasets and reports.
	OutputDir string

	// BackupDir receives copies of OutputDir.
	BackupDir string

	// Now is the clock used for backup and log names.
	Now func() time.Time
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(rawDataDir, outputDir, backupDir string) *FileManager {
	return &FileManager{
		RawDataDir: rawDataDir,
		OutputDir:  outputDir,
		BackupDir:  backupDir,
		Now:        time.Now,
	}
}

// YearDir returns the raw data directory of a fiscal year.
func (fm *FileManager) YearDir(year int) string {
	return filepath.Join(fm.RawDataDir, fmt.Sprint(year))
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverYearFiles lists the workbooks of a fiscal year, sorted by name.
// Temporary Office lock files (~$name.xlsx) and partial downloads are
// ignored. A missing directory yields no files.
//
// PARAMETERS:
//   - year: The fiscal year.
//
// RETURNS:
//   - The workbook paths.
//   - An error if the directory exists but cannot be read.
func (fm *FileManager) DiscoverYearFiles(year int) ([]string, error) {
	dir := fm.YearDir(year)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".xlsx", ".xls":
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// =============================================================================
// BACKUPS
// =============================================================================

// BackupOutput copies the output directory into a new backup directory
// and returns its path. An empty or missing output directory is not backed
// up and yields "".
func (fm *FileManager) BackupOutput() (string, error) {
	entries, err := os.ReadDir(fm.OutputDir)
	if os.IsNotExist(err) || (err == nil && len(entries) == 0) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read output directory: %w", err)
	}

	name := fmt.Sprintf("backup_%s_%s", fm.Now().Format("20060102_150405"), uuid.New().String()[:8])
	dst := filepath.Join(fm.BackupDir, name)

	err = filepath.Walk(fm.OutputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(fm.OutputDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
	if err != nil {
		return "", fmt.Errorf("failed to back up %s: %w", fm.OutputDir, err)
	}

	return dst, nil
}

// =============================================================================
// RUN SUMMARY
// =============================================================================

// RunSummary contains summary information about a pipeline run.
type RunSummary struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	Years     []YearLine
}

// YearLine is one fiscal year of a run summary.
type YearLine struct {
	Year     int
	Status   string
	Reason   string
	Files    int
	Records  int
	Agencies int
	Months   []string
	Warnings int
	Duration time.Duration
}

// Succeeded counts the succeeded years.
func (s RunSummary) Succeeded() int {
	n := 0
	for _, y := range s.Years {
		if y.Status == "succeeded" {
			n++
		}
	}
	return n
}

// WriteSummaryLog writes a run summary to a log file in dir.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func WriteSummaryLog(summary RunSummary, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	runID := summary.RunID
	if len(runID) < 8 {
		runID = uuid.New().String()
	}
	timestamp := summary.StartTime.Format("20060102_150405")
	summaryPath := filepath.Join(dir, fmt.Sprintf("run_summary_%s_%s.txt", timestamp, runID[:8]))

	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	writer.WriteString(FormatRunSummary(summary))

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary file: %w", err)
	}
	return summaryPath, nil
}

// FormatRunSummary renders the per-year table printed at the end of a run.
func FormatRunSummary(summary RunSummary) string {
	var sb strings.Builder

	sb.WriteString("SF133 Pipeline - Run Summary\n")
	sb.WriteString("================================================================================\n")
	sb.WriteString(fmt.Sprintf("  Run ID:     %s\n", summary.RunID))
	sb.WriteString(fmt.Sprintf("  Start Time: %s\n", summary.StartTime.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("  Duration:   %s\n", summary.EndTime.Sub(summary.StartTime).Round(time.Millisecond)))
	sb.WriteString(fmt.Sprintf("  Years:      %d succeeded, %d failed\n\n",
		summary.Succeeded(), len(summary.Years)-summary.Succeeded()))

	sb.WriteString(fmt.Sprintf("  %-6s %-10s %6s %9s %9s %7s  %s\n", "FY", "STATUS", "FILES", "RECORDS", "AGENCIES", "MONTHS", "DETAIL"))
	sb.WriteString("  ------------------------------------------------------------------------------\n")
	for _, y := range summary.Years {
		detail := y.Reason
		if detail == "" && y.Warnings > 0 {
			detail = fmt.Sprintf("%d warnings", y.Warnings)
		}
		sb.WriteString(fmt.Sprintf("  %-6d %-10s %6d %9d %9d %7d  %s\n",
			y.Year, y.Status, y.Files, y.Records, y.Agencies, len(y.Months), detail))
	}
	sb.WriteString("================================================================================\n")
	return sb.String()
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}
	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
