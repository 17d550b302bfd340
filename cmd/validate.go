// =============================================================================
// SF133 Pipeline - Validate Command
// =============================================================================
//
// This file defines the 'validate' command. It re-runs the coverage
// validator on a master dataset that is already on disk (or in the run
// catalog) without downloading or re-ingesting anything.
//
// COMMAND USAGE:
//   sf133 validate --year 2023 [--from-catalog]
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/sf133-pipeline/internal/processor"
	"github.com/ginjaninja78/sf133-pipeline/internal/store"
	"github.com/ginjaninja78/sf133-pipeline/internal/types"
	"github.com/ginjaninja78/sf133-pipeline/internal/validation"
)

var (
	validateYear int
	fromCatalog  bool
)

// validateCmd represents the 'validate' command.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Re-validate an existing master dataset",
	Long: `The validate command loads sf133_<year>_master.csv (or the year's records
from the run catalog with --from-catalog), rebuilds the dataset and runs the
agency, month and TAS coverage checks against the baseline year.

The command fails when the dataset does not pass validation.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate()
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().IntVar(&validateYear, "year", 0, "Fiscal year to validate")
	validateCmd.Flags().BoolVar(&fromCatalog, "from-catalog", false, "Read the records from the run catalog instead of the master CSV")
	validateCmd.MarkFlagRequired("year")
}

func runValidate() error {
	p := processor.New(mainConfig, processor.Options{Logger: logger})

	ds, err := loadValidationDataset(p)
	if err != nil {
		return err
	}

	res := p.Validate(ds)
	fmt.Print(validation.FormatResult(validateYear, res))

	if !res.Passed {
		return fmt.Errorf("FY%d %w: %s", validateYear, processor.ErrValidationFailed, res.Reason)
	}
	return nil
}

func loadValidationDataset(p *processor.Processor) (*types.FiscalYearDataset, error) {
	if !fromCatalog {
		return p.LoadDataset(validateYear)
	}

	if mainConfig.DBPath == "" {
		return nil, fmt.Errorf("--from-catalog needs db_path to be configured")
	}
	st, err := store.New(mainConfig.Resolve(mainConfig.DBPath))
	if err != nil {
		return nil, err
	}
	defer st.Close()

	records, err := st.LoadRecords(validateYear)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("FY%d: %w", validateYear, store.ErrNotFound)
	}
	return p.DatasetFromRecords(validateYear, records)
}
