package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/sf133-pipeline/internal/csvwriter"
	"github.com/ginjaninja78/sf133-pipeline/internal/store"
)

var statusYears string

// statusCmd prints what the run catalog knows about fiscal years.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last outcome of each fiscal year",
	Long: `The status command reads the run catalog (db_path) and prints the last
status of each requested fiscal year. Without a catalog it falls back to
approved_years.json.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusYears, "years", "", `Fiscal years to show (default: approved years)`)
}

func runStatus() error {
	years, err := parseYears(statusYears)
	if err != nil {
		return err
	}

	if mainConfig.DBPath == "" {
		approved, err := csvwriter.ReadApprovedYears(mainConfig.ApprovedYearsPath())
		if err != nil {
			return err
		}
		fmt.Printf("Approved years: %s\n", joinYears(approved.ApprovedYears))
		failed := make([]string, 0, len(approved.FailedYears))
		for y := range approved.FailedYears {
			failed = append(failed, y)
		}
		sort.Strings(failed)
		for _, y := range failed {
			fmt.Printf("  ✗ FY%s: %s\n", y, approved.FailedYears[y])
		}
		return nil
	}

	st, err := store.New(mainConfig.Resolve(mainConfig.DBPath))
	if err != nil {
		return err
	}
	defer st.Close()

	approved, err := st.ApprovedYears()
	if err != nil {
		return err
	}
	fmt.Printf("Approved years: %s\n", joinYears(approved))
	if len(years) == 0 {
		years = approved
	}

	for _, year := range years {
		res, err := st.YearStatus(year)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Printf("  - FY%d: never processed\n", year)
			continue
		}
		if err != nil {
			return err
		}
		line := fmt.Sprintf("  %s FY%d: %s, %d records, %d agencies, months %s",
			statusMark(res.Status), year, res.Status, res.RecordCount,
			len(res.AgenciesCovered), strings.Join(res.MonthsCovered, " "))
		if res.Reason != "" {
			line += " (" + res.Reason + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func statusMark(status string) string {
	if status == store.StatusSucceeded {
		return "✓"
	}
	return "✗"
}
