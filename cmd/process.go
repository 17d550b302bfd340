// =============================================================================
// SF133 Pipeline - Process Command
// =============================================================================
//
// This file defines the 'process' command, the main command of the
// pipeline. It ingests the requested fiscal years and reports a per-year
// status table.
//
// COMMAND USAGE:
//   sf133 process [flags]
//
// FLAGS:
//   --years         : Fiscal years, e.g. "2019,2021" or "2019-2024"
//                     (default: every year in the URL table)
//   --url           : Download URL override (exactly one year)
//   --skip-download : Re-ingest the workbooks already in raw_data/<year>/
//   --concurrency   : Number of years processed in parallel
//
// EXIT STATUS:
//   0 when the run completes, even if some years failed. Failed years are
//   listed in the table and left out of approved_years.json. Non-zero only
//   for configuration and output errors.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/sf133-pipeline/internal/config"
	"github.com/ginjaninja78/sf133-pipeline/internal/processor"
	"github.com/ginjaninja78/sf133-pipeline/internal/store"
	"github.com/ginjaninja78/sf133-pipeline/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// yearsFlag lists the fiscal years to process.
var yearsFlag string

// urlFlag overrides the download URL of a single year.
var urlFlag string

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

// processCmd represents the 'process' command.
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Download, ingest and validate SF133 data for fiscal years",
	Long: `The process command runs the pipeline for every requested fiscal year:
download the year's workbooks, read their Raw Data sheets, normalize and
deduplicate the rows, aggregate them into a master dataset and validate it
against the baseline year.

Years are independent. A year that fails (download error, unreadable files,
conflicting records, failed validation) is reported and excluded from
approved_years.json; the other years are still processed.

Outputs per year (in output_dir):
  - sf133_<year>_master.csv
  - summary_<year>.json`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(cmd.Context())
	},
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.AddCommand(processCmd)

	flags := processCmd.Flags()
	flags.StringVar(&yearsFlag, "years", "", `Fiscal years, e.g. "2019,2021" or "2019-2024"`)
	flags.StringVar(&urlFlag, "url", "", "Download URL override (requires exactly one year)")
	flags.Bool("skip-download", false, "Reuse workbooks already in raw_data/<year>/")
	flags.Int("concurrency", 0, "Number of fiscal years processed in parallel")

	bindFlag(settings, "skip_download", flags.Lookup("skip-download"))
	bindFlag(settings, "max_concurrency", flags.Lookup("concurrency"))
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runProcess(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Println("=== SF133 Pipeline ===")

	// =========================================================================
	// STEP 1: RESOLVE YEARS AND URLS
	// =========================================================================

	urls, err := config.LoadURLTable(mainConfig.Resolve(mainConfig.URLTable))
	if err != nil {
		return err
	}

	years, err := parseYears(yearsFlag)
	if err != nil {
		return err
	}
	if len(years) == 0 {
		years = urls.Years()
	}
	if len(years) == 0 {
		return fmt.Errorf("no fiscal years requested and %s lists none", mainConfig.URLTable)
	}

	if urlFlag != "" {
		if len(years) != 1 {
			return fmt.Errorf("--url applies to exactly one year, got %d", len(years))
		}
		urls.Set(years[0], urlFlag)
	}

	if err := mainConfig.EnsureDirectories(); err != nil {
		return err
	}

	// =========================================================================
	// STEP 2: OPEN THE CATALOG
	// =========================================================================

	var st *store.Store
	if mainConfig.DBPath != "" {
		st, err = store.New(mainConfig.Resolve(mainConfig.DBPath))
		if err != nil {
			return err
		}
		defer st.Close()
	}

	// =========================================================================
	// STEP 3: RUN
	// =========================================================================

	fmt.Printf("Processing %d fiscal year(s): %s\n", len(years), joinYears(years))

	p := processor.New(mainConfig, processor.Options{Store: st, Logger: logger})
	report, runErr := processor.NewRunner(p).Run(ctx, years, urls)

	// =========================================================================
	// STEP 4: PRINT SUMMARY
	// =========================================================================

	for _, y := range report.Years {
		if y.Succeeded() {
			fmt.Printf("  ✓ FY%d -> %s\n", y.Year, y.MasterPath)
		} else {
			fmt.Printf("  ✗ FY%d: %s\n", y.Year, y.Reason)
		}
	}

	fmt.Println("\n=== Processing Complete ===")
	fmt.Print(utils.FormatRunSummary(report.Summary()))
	if report.LogPath != "" {
		fmt.Printf("Run log: %s\n", report.LogPath)
	}

	return runErr
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// parseYears parses "2019,2021" and "2019-2024" (or a mix) into sorted,
// unique fiscal years.
func parseYears(s string) ([]int, error) {
	seen := make(map[int]bool)
	var years []int
	add := func(y int) {
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}

	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if from, to, ok := strings.Cut(field, "-"); ok {
			a, err1 := parseYear(from)
			b, err2 := parseYear(to)
			if err1 != nil || err2 != nil || a > b {
				return nil, fmt.Errorf("invalid year range %q", field)
			}
			for y := a; y <= b; y++ {
				add(y)
			}
			continue
		}
		y, err := parseYear(field)
		if err != nil {
			return nil, err
		}
		add(y)
	}
	sort.Ints(years)
	return years, nil
}

func parseYear(s string) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || y < 1990 || y > 2100 {
		return 0, fmt.Errorf("invalid fiscal year %q", s)
	}
	return y, nil
}

func joinYears(years []int) string {
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ", ")
}
