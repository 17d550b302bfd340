// =============================================================================
// SF133 Pipeline - Year Processor
// =============================================================================
//
// This module contains the ingestion pipeline for a single fiscal year.
//
// PROCESSING PIPELINE:
//   1. Download the year's workbooks (unless skip_download)
//   2. Discover raw_data/<year>/*.xlsx|*.xls in name order
//   3. Load the Raw Data sheet of every workbook
//   4. Normalize every file part into records
//   5. Decide which parts are admitted (consolidation deduplication)
//   6. Aggregate admitted records into the year's dataset
//   7. Validate the dataset against the baseline profile
//   8. Write the master CSV, the summary JSON and the catalog entry
//
// FAILURES:
//   Row-level and file-level problems become diagnostics. A download
//   failure, no usable files, an aggregation conflict or a failed
//   validation fail the year only. A dataset that fails validation is
//   still written so it can be inspected.
//
// =============================================================================

package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/sf133-pipeline/internal/aggregator"
	"github.com/ginjaninja78/sf133-pipeline/internal/config"
	"github.com/ginjaninja78/sf133-pipeline/internal/csvparser"
	"github.com/ginjaninja78/sf133-pipeline/internal/csvwriter"
	"github.com/ginjaninja78/sf133-pipeline/internal/dedup"
	"github.com/ginjaninja78/sf133-pipeline/internal/downloader"
	"github.com/ginjaninja78/sf133-pipeline/internal/normalizer"
	"github.com/ginjaninja78/sf133-pipeline/internal/store"
	"github.com/ginjaninja78/sf133-pipeline/internal/types"
	"github.com/ginjaninja78/sf133-pipeline/internal/validation"
	"github.com/ginjaninja78/sf133-pipeline/internal/xlsxparser"
	"github.com/ginjaninja78/sf133-pipeline/pkg/utils"
)

var (
	// ErrNoFiles is returned when a year has no workbooks on disk.
	ErrNoFiles = errors.New("no workbooks found")

	// ErrNoReadableFiles is returned when every workbook of a year failed
	// to load.
	ErrNoReadableFiles = errors.New("no readable workbooks")

	// ErrValidationFailed is returned when a dataset does not pass the
	// coverage validator.
	ErrValidationFailed = errors.New("validation failed")
)

// File statuses in the year summary, next to dedup's admitted/excluded.
const fileStatusFailed = "failed"

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// YearResult is the outcome of processing one fiscal year.
type YearResult struct {
	Year int

	// Status is store.StatusSucceeded or store.StatusFailed.
	Status string

	// Reason explains a failure. Err is the underlying error.
	Reason string
	Err    error

	Files    int
	Records  int
	Warnings int
	Agencies []string
	Months   []string

	// MasterPath is set when a master dataset was written.
	MasterPath string

	// Dataset is set once aggregation succeeded, including for years
	// that failed validation.
	Dataset *types.FiscalYearDataset

	Duration time.Duration
}

// Succeeded reports whether the year passed.
func (r YearResult) Succeeded() bool {
	return r.Status == store.StatusSucceeded
}

// =============================================================================
// PROCESSOR STRUCTURE
// =============================================================================

// Options configures a Processor.
type Options struct {
	// Fetcher downloads workbooks. Nil uses downloader.NewHTTPFetcher().
	Fetcher downloader.Fetcher

	// Store is the optional run catalog.
	Store *store.Store

	// Logger defaults to NopLogger().
	Logger Logger

	// Now is the clock used to derive the current fiscal year.
	Now func() time.Time
}

// Processor runs the pipeline for fiscal years. ProcessYear may be called
// concurrently for different years.
type Processor struct {
	cfg     *config.MainConfig
	fetcher downloader.Fetcher
	store   *store.Store
	files   *utils.FileManager
	logger  Logger
	now     func() time.Time

	baselineOnce sync.Once
	baseline     types.BaselineProfile

	backupOnce sync.Once
	backupPath string
	backupErr  error
}

// New creates a Processor.
//
// PARAMETERS:
//   - cfg: The validated main configuration.
//   - opts: Collaborators; zero values select the defaults.
//
// RETURNS:
//   - A new Processor.
func New(cfg *config.MainConfig, opts Options) *Processor {
	p := &Processor{
		cfg:     cfg,
		fetcher: opts.Fetcher,
		store:   opts.Store,
		logger:  opts.Logger,
		now:     opts.Now,
		files: utils.NewFileManager(
			cfg.Resolve(cfg.RawDataDir),
			cfg.Resolve(cfg.OutputDir),
			cfg.Resolve(cfg.BackupDir),
		),
	}
	if p.fetcher == nil {
		p.fetcher = downloader.NewHTTPFetcher()
	}
	if p.logger == nil {
		p.logger = NopLogger()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// CurrentFiscalYear is the configured current fiscal year, or the one
// containing today.
func (p *Processor) CurrentFiscalYear() int {
	if p.cfg.CurrentFiscalYear > 0 {
		return p.cfg.CurrentFiscalYear
	}
	return types.FiscalYearOf(p.now())
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// ProcessYear runs the pipeline for one fiscal year.
//
// PARAMETERS:
//   - ctx: Cancels the download step.
//   - year: The fiscal year.
//   - url: The year's download URL; empty uses the files already on disk.
//
// RETURNS:
//   - The YearResult. Failures are reported in the result, never panicked
//     or returned.
func (p *Processor) ProcessYear(ctx context.Context, year int, url string) YearResult {
	return p.process(ctx, "", year, url)
}

func (p *Processor) process(ctx context.Context, runID string, year int, url string) YearResult {
	start := time.Now()
	y := &yearRun{p: p, runID: runID, year: year}

	p.logger.Info("FY%d: processing", year)
	err := y.run(ctx, url)
	return y.finish(err, time.Since(start))
}

// yearRun holds the state of one ProcessYear call.
type yearRun struct {
	p     *Processor
	runID string
	year  int

	files   []string
	reports []csvwriter.FileReport
	diags   []types.Diagnostic
	ds      *types.FiscalYearDataset
	master  string
}

func (y *yearRun) run(ctx context.Context, url string) error {
	p := y.p

	// =========================================================================
	// STEP 1: DOWNLOAD
	// =========================================================================

	if err := y.download(ctx, url); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// =========================================================================
	// STEP 2: DISCOVER FILES
	// =========================================================================

	files, err := p.files.DiscoverYearFiles(y.year)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%s: %w", p.files.YearDir(y.year), ErrNoFiles)
	}
	y.files = files
	p.logger.Debug("FY%d: %d workbook(s) found", y.year, len(files))

	// =========================================================================
	// STEP 3: LOAD WORKBOOKS
	// =========================================================================

	parts := y.load(files)
	if len(parts) == 0 {
		return fmt.Errorf("%w: all %d file(s) failed to load", ErrNoReadableFiles, len(files))
	}

	// =========================================================================
	// STEP 4: NORMALIZE
	// =========================================================================

	results := make([]normalizer.FileResult, len(parts))
	summaries := make([]dedup.FileSummary, len(parts))
	for i, part := range parts {
		results[i] = normalizer.Normalize(part, normalizer.Context{FiscalYear: y.year, Agency: part.Agency})
		y.diags = append(y.diags, results[i].Diagnostics...)
		p.logger.Debug("FY%d: %s", y.year, results[i].Summary())

		summaries[i] = dedup.FileSummary{
			SourceFile:   part.SourceFile,
			Agency:       part.Agency,
			Flagged:      part.Consolidated,
			Bureaus:      part.Bureaus(),
			Unattributed: part.HasUnattributedRows(),
		}
	}

	// =========================================================================
	// STEP 5: DEDUPLICATE
	// =========================================================================

	decision := dedup.Resolve(summaries)
	y.diags = append(y.diags, decision.Diagnostics...)
	for _, e := range decision.Excluded() {
		p.logger.Info("FY%d: excluded %s (%s): %s", y.year, e.SourceFile, e.Agency, e.Reason)
	}

	entries := make(map[string]dedup.ReportEntry, len(decision.Report))
	for _, e := range decision.Report {
		entries[dedup.FileSummary{SourceFile: e.SourceFile, Agency: e.Agency}.ID()] = e
	}

	// =========================================================================
	// STEP 6: AGGREGATE
	// =========================================================================

	agg := aggregator.New(y.year, p.aggregatorOptions())
	for i, r := range results {
		entry := entries[summaries[i].ID()]
		report := fileReport(r)
		report.Status = string(entry.Status)
		report.Reason = entry.Reason
		report.Consolidated = report.Consolidated || entry.Consolidated

		if decision.Admits(summaries[i]) {
			agg.Add(r.Records)
		}
		y.reports = append(y.reports, report)
	}

	ds, err := agg.Dataset()
	if err != nil {
		return err
	}
	y.ds = ds
	y.diags = append(y.diags, ds.Diagnostics...)

	// =========================================================================
	// STEP 7: VALIDATE
	// =========================================================================

	ds.Validation = p.Validate(ds)

	// =========================================================================
	// STEP 8: WRITE MASTER DATASET
	// =========================================================================

	if err := y.writeMaster(); err != nil {
		return err
	}

	if !ds.Validation.Passed {
		return fmt.Errorf("%w at %s: %s", ErrValidationFailed, ds.Validation.FailedAt, ds.Validation.Reason)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// download fetches the year's workbooks. A year without a URL proceeds
// with the files already on disk.
func (y *yearRun) download(ctx context.Context, url string) error {
	p := y.p
	if p.cfg.SkipDownload {
		p.logger.Debug("FY%d: download skipped", y.year)
		return nil
	}
	if url == "" {
		p.logger.Warn("FY%d: no download URL configured, using files on disk", y.year)
		y.diags = append(y.diags, types.Warningf("no_url", "", "no download URL configured for FY%d", y.year))
		return nil
	}

	paths, err := p.fetcher.Fetch(ctx, url, p.cfg.YearRawDir(y.year))
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	p.logger.Info("FY%d: %d workbook(s) available from %s", y.year, len(paths), url)
	return nil
}

// load reads every workbook and returns the file parts ordered by agency,
// then file name. Unreadable files become diagnostics.
func (y *yearRun) load(files []string) []xlsxparser.FilePart {
	p := y.p
	loader := xlsxparser.NewLoader(xlsxparser.Options{
		Resolver:          xlsxparser.NewAgencyResolver(p.cfg.AgencyAliases),
		ConsolidatedFiles: p.cfg.ConsolidatedFiles,
	})

	var parts []xlsxparser.FilePart
	for _, path := range files {
		name := filepath.Base(path)
		wb, err := loader.Open(path)
		if err != nil {
			p.logger.Warn("FY%d: skipping %s: %v", y.year, name, err)
			y.diags = append(y.diags, types.Errorf(loadErrorCode(name, err), name, "%v", err))
			y.reports = append(y.reports, csvwriter.FileReport{
				SourceFile: name,
				Status:     fileStatusFailed,
				Reason:     err.Error(),
			})
			continue
		}
		y.diags = append(y.diags, wb.Diagnostics...)
		parts = append(parts, wb.Parts...)
	}

	sort.SliceStable(parts, func(i, j int) bool {
		if parts[i].Agency != parts[j].Agency {
			return parts[i].Agency < parts[j].Agency
		}
		return parts[i].SourceFile < parts[j].SourceFile
	})
	return parts
}

func loadErrorCode(name string, err error) string {
	switch {
	case errors.Is(err, xlsxparser.ErrNoRawDataSheet):
		return "no_raw_data_sheet"
	case errors.Is(err, xlsxparser.ErrEmptySheet):
		return "empty_sheet"
	case strings.EqualFold(filepath.Ext(name), ".xls"):
		return "legacy_xls"
	default:
		return "file_unreadable"
	}
}

// writeMaster writes the master CSV, backing up the output directory first
// when a previous master exists.
func (y *yearRun) writeMaster() error {
	p := y.p
	path := p.cfg.MasterPath(y.year)

	if utils.FileExists(path) {
		if _, err := p.backupOutputs(); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
	}
	if err := csvwriter.WriteDataset(path, y.ds); err != nil {
		return fmt.Errorf("failed to write master dataset: %w", err)
	}
	y.master = path
	p.logger.Info("FY%d: wrote %d records to %s", y.year, len(y.ds.Records), path)
	return nil
}

// finish turns the run state into a YearResult and writes the summary and
// catalog entry.
func (y *yearRun) finish(err error, elapsed time.Duration) YearResult {
	p := y.p
	res := YearResult{
		Year:       y.year,
		Status:     store.StatusSucceeded,
		Files:      len(y.files),
		MasterPath: y.master,
		Dataset:    y.ds,
		Duration:   elapsed,
	}
	if y.ds != nil {
		res.Records = len(y.ds.Records)
		res.Agencies = y.ds.AgenciesCovered
		res.Months = y.ds.MonthsCovered
	}
	if err != nil {
		res.Status = store.StatusFailed
		res.Err = err
		res.Reason = err.Error()
	}

	summary := y.summary(res)
	for _, d := range summary.Diagnostics {
		if d.Severity == types.SeverityWarning {
			res.Warnings++
		}
	}
	if summary.Validation != nil {
		res.Warnings += summary.Validation.WarningCount
	}

	if werr := csvwriter.WriteSummary(p.cfg.SummaryPath(y.year), summary); werr != nil {
		p.logger.Error("FY%d: failed to write summary: %v", y.year, werr)
		if res.Succeeded() {
			res.Status = store.StatusFailed
			res.Err = werr
			res.Reason = "failed to write summary: " + werr.Error()
		}
	}

	if p.store != nil {
		var records []types.NormalizedRecord
		if y.master != "" {
			records = y.ds.Records
		}
		serr := p.store.SaveYear(store.YearResult{
			FiscalYear:      y.year,
			RunID:           y.runID,
			Status:          res.Status,
			Reason:          res.Reason,
			AgenciesCovered: res.Agencies,
			MonthsCovered:   res.Months,
		}, records)
		if serr != nil {
			p.logger.Error("FY%d: catalog update failed: %v", y.year, serr)
		}
	}

	if res.Succeeded() {
		p.logger.Info("FY%d: succeeded (%d records, %d agencies, %d months, %d warnings)",
			y.year, res.Records, len(res.Agencies), len(res.Months), res.Warnings)
	} else {
		p.logger.Warn("FY%d: failed: %s", y.year, res.Reason)
	}
	return res
}

func (y *yearRun) summary(res YearResult) csvwriter.Summary {
	reports := append([]csvwriter.FileReport(nil), y.reports...)
	sort.SliceStable(reports, func(i, j int) bool {
		if reports[i].SourceFile != reports[j].SourceFile {
			return reports[i].SourceFile < reports[j].SourceFile
		}
		return reports[i].Agency < reports[j].Agency
	})

	s := csvwriter.Summary{
		FiscalYear:  y.year,
		Status:      res.Status,
		Reason:      res.Reason,
		Files:       reports,
		Diagnostics: y.diags,
	}
	if y.ds != nil {
		s.RecordCount = len(y.ds.Records)
		s.AgenciesCovered = y.ds.AgenciesCovered
		s.MonthsCovered = y.ds.MonthsCovered
		s.Validation = y.ds.Validation
		s.MonthTotals = make(map[string]string, len(y.ds.MonthTotals))
		for label, total := range y.ds.MonthTotals {
			s.MonthTotals[label] = total.String()
		}
	}
	return s
}

func fileReport(r normalizer.FileResult) csvwriter.FileReport {
	return csvwriter.FileReport{
		SourceFile:        r.SourceFile,
		Agency:            r.Agency,
		Consolidated:      r.Consolidated,
		Records:           len(r.Records),
		RowsRead:          r.RowsRead,
		DroppedMissing:    r.DroppedMissing,
		DroppedBadLine:    r.DroppedBadLine,
		DroppedOutOfRange: r.DroppedOutOfRange,
		CoercedAmounts:    r.CoercedAmounts,
	}
}

// =============================================================================
// DATASETS
// =============================================================================

func (p *Processor) aggregatorOptions() aggregator.Options {
	return aggregator.Options{MinMonthTotal: decimal.NewFromFloat(p.cfg.MinMonthTotal)}
}

// Validate runs the coverage validator on a dataset of any fiscal year.
func (p *Processor) Validate(ds *types.FiscalYearDataset) *types.ValidationResult {
	profile := p.baselineFor(ds.FiscalYear, ds).ForYear(ds.FiscalYear, p.CurrentFiscalYear())
	validator := validation.NewValidator(profile, validation.Options{
		TASCoveragePercent: p.cfg.TASCoveragePercent,
	})
	return validator.Validate(ds)
}

// DatasetFromRecords rebuilds a year's dataset from stored records.
func (p *Processor) DatasetFromRecords(year int, records []types.NormalizedRecord) (*types.FiscalYearDataset, error) {
	agg := aggregator.New(year, p.aggregatorOptions())
	agg.Add(records)
	return agg.Dataset()
}

// LoadDataset reads a year's master CSV back into a dataset.
func (p *Processor) LoadDataset(year int) (*types.FiscalYearDataset, error) {
	records, err := csvparser.ReadDatasetFile(p.cfg.MasterPath(year))
	if err != nil {
		return nil, err
	}
	return p.DatasetFromRecords(year, records)
}

// =============================================================================
// BASELINE
// =============================================================================

// Baseline returns the baseline profile, loading it from the baseline
// year's master dataset on first use. A missing or unreadable file yields
// a profile built from configuration only.
func (p *Processor) Baseline() types.BaselineProfile {
	p.baselineOnce.Do(func() {
		path := p.cfg.MasterPath(p.cfg.BaselineYear)
		records, err := csvparser.ReadDatasetFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			p.logger.Info("baseline FY%d not available yet (%s)", p.cfg.BaselineYear, path)
		case err != nil:
			p.logger.Warn("baseline FY%d unreadable: %v", p.cfg.BaselineYear, err)
		default:
			p.logger.Debug("baseline FY%d: %d records", p.cfg.BaselineYear, len(records))
		}
		p.baseline = validation.LoadBaseline(records, p.baselineConfig())
	})
	return p.baseline
}

// baselineFor returns the profile a year is validated against. The
// baseline year validates against its own records when no earlier master
// exists.
func (p *Processor) baselineFor(year int, ds *types.FiscalYearDataset) types.BaselineProfile {
	profile := p.Baseline()
	if profile.BaselineYear == 0 && year == p.cfg.BaselineYear {
		return validation.LoadBaseline(ds.Records, p.baselineConfig())
	}
	return profile
}

func (p *Processor) baselineConfig() validation.BaselineConfig {
	return validation.BaselineConfig{
		Year:                p.cfg.BaselineYear,
		MinAgencyCount:      p.cfg.MinAgencyCount,
		AgencyCoverageRatio: p.cfg.AgencyCoverageRatio,
	}
}

// =============================================================================
// BACKUP
// =============================================================================

// backupOutputs copies the output directory once per Processor.
func (p *Processor) backupOutputs() (string, error) {
	if !p.cfg.ShouldBackup() {
		return "", nil
	}
	p.backupOnce.Do(func() {
		p.backupPath, p.backupErr = p.files.BackupOutput()
		if p.backupPath != "" {
			p.logger.Info("backed up %s to %s", p.files.OutputDir, p.backupPath)
		}
	})
	return p.backupPath, p.backupErr
}

// BackupExisting backs up the output directory when any of years already
// has a master dataset. Call it before processing years concurrently.
func (p *Processor) BackupExisting(years []int) (string, error) {
	for _, year := range years {
		if utils.FileExists(p.cfg.MasterPath(year)) {
			return p.backupOutputs()
		}
	}
	return "", nil
}
