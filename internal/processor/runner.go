// =============================================================================
// SF133 Pipeline - Multi-Year Runner
// =============================================================================
//
// The Runner processes every requested fiscal year as an independent unit
// of work. Years run on at most max_concurrency workers; files within a
// year are always processed sequentially by the Processor.
//
// A failure in one year, including a panic, is recorded in that year's
// result and never stops the others. After all years finish the
// approved-years file is updated so downstream publishing omits failed
// years.
//
// =============================================================================

package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/sf133-pipeline/internal/config"
	"github.com/ginjaninja78/sf133-pipeline/internal/csvwriter"
	"github.com/ginjaninja78/sf133-pipeline/internal/store"
	"github.com/ginjaninja78/sf133-pipeline/pkg/utils"
)

// Runner processes several fiscal years.
type Runner struct {
	processor *Processor
}

// NewRunner creates a Runner around a Processor.
func NewRunner(p *Processor) *Runner {
	return &Runner{processor: p}
}

// RunReport is the outcome of a multi-year run.
type RunReport struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	// Years holds one result per requested year, ascending.
	Years []YearResult

	// Approved is the approved-years file after the run.
	Approved *csvwriter.ApprovedYears

	// LogPath is the written run summary log.
	LogPath string
}

// Succeeded lists the years that passed.
func (r *RunReport) Succeeded() []int {
	var out []int
	for _, y := range r.Years {
		if y.Succeeded() {
			out = append(out, y.Year)
		}
	}
	return out
}

// Failed maps failed years to their reason.
func (r *RunReport) Failed() map[int]string {
	out := make(map[int]string)
	for _, y := range r.Years {
		if !y.Succeeded() {
			out[y.Year] = y.Reason
		}
	}
	return out
}

// Summary converts the report to the run summary table.
func (r *RunReport) Summary() utils.RunSummary {
	s := utils.RunSummary{RunID: r.RunID, StartTime: r.Started, EndTime: r.Finished}
	for _, y := range r.Years {
		s.Years = append(s.Years, utils.YearLine{
			Year:     y.Year,
			Status:   y.Status,
			Reason:   y.Reason,
			Files:    y.Files,
			Records:  y.Records,
			Agencies: len(y.Agencies),
			Months:   y.Months,
			Warnings: y.Warnings,
			Duration: y.Duration,
		})
	}
	return s
}

// Run processes years and always returns a report covering every
// requested year.
//
// PARAMETERS:
//   - ctx: Cancels downloads.
//   - years: The fiscal years; duplicates are ignored.
//   - urls: The URL-per-year table; nil means no downloads have a URL.
//
// RETURNS:
//   - The run report.
//   - An error when the approved-years file could not be updated. The
//     report is complete in that case too.
func (r *Runner) Run(ctx context.Context, years []int, urls *config.URLTable) (*RunReport, error) {
	p := r.processor
	years = uniqueYears(years)

	report := &RunReport{RunID: uuid.New().String(), Started: p.now()}
	p.logger.Info("run %s: %d fiscal year(s) %v", report.RunID, len(years), years)

	if p.store != nil {
		if err := p.store.StartRun(report.RunID, years); err != nil {
			p.logger.Error("catalog: %v", err)
		}
	}

	if _, err := p.BackupExisting(years); err != nil {
		p.logger.Error("backup failed: %v", err)
	}

	// The baseline is shared read-only by every worker.
	p.Baseline()

	// =========================================================================
	// PROCESS YEARS CONCURRENTLY
	// =========================================================================

	workers := p.cfg.MaxConcurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(years) {
		workers = len(years)
	}

	jobs := make(chan int)
	results := make(chan YearResult, len(years))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for year := range jobs {
				results <- r.processSafely(ctx, report.RunID, year, lookupURL(urls, year))
			}
		}()
	}

	for _, year := range years {
		jobs <- year
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		report.Years = append(report.Years, res)
	}
	sort.Slice(report.Years, func(i, j int) bool { return report.Years[i].Year < report.Years[j].Year })
	report.Finished = p.now()

	// =========================================================================
	// RECORD OUTCOME
	// =========================================================================

	succeeded, failed := report.Succeeded(), report.Failed()
	if p.store != nil {
		if err := p.store.FinishRun(report.RunID, len(succeeded), len(failed)); err != nil {
			p.logger.Error("catalog: %v", err)
		}
	}

	logPath, err := utils.WriteSummaryLog(report.Summary(), p.cfg.Resolve(p.cfg.LogDir))
	if err != nil {
		p.logger.Warn("run summary log: %v", err)
	}
	report.LogPath = logPath

	approved, err := csvwriter.MergeApprovedYears(p.cfg.ApprovedYearsPath(), succeeded, failed)
	if err != nil {
		return report, fmt.Errorf("failed to update %s: %w", filepath.Base(p.cfg.ApprovedYearsPath()), err)
	}
	report.Approved = approved

	p.logger.Info("run %s: %d succeeded, %d failed", report.RunID, len(succeeded), len(failed))
	return report, nil
}

// processSafely runs one year and converts a panic into a failed result.
func (r *Runner) processSafely(ctx context.Context, runID string, year int, url string) (res YearResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.processor.logger.Error("FY%d: panic: %v", year, rec)
			err := fmt.Errorf("internal error: %v", rec)
			res = YearResult{Year: year, Status: store.StatusFailed, Err: err, Reason: err.Error()}
		}
	}()
	return r.processor.process(ctx, runID, year, url)
}

func lookupURL(urls *config.URLTable, year int) string {
	if urls == nil {
		return ""
	}
	url, err := urls.Lookup(year)
	if err != nil {
		return ""
	}
	return url
}

func uniqueYears(years []int) []int {
	seen := make(map[int]bool, len(years))
	out := make([]int, 0, len(years))
	for _, y := range years {
		if !seen[y] {
			seen[y] = true
			out = append(out, y)
		}
	}
	sort.Ints(out)
	return out
}
