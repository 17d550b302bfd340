// =============================================================================
// SF133 Pipeline - Master Dataset Reader
// =============================================================================
//
// This module reads a sf133_<year>_master.csv back into NormalizedRecords.
// It is used to load the baseline year and by the validate command.
//
// FEATURES:
//   - Column order is taken from the header row, not assumed
//   - Headers are matched case-insensitively after trimming
//   - The "agency" column is optional (older master files lack it)
//   - Amounts are parsed as exact decimals
//
// =============================================================================

package csvparser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/sf133-pipeline/internal/types"
)

// ErrMissingColumn is returned when a required column is absent.
var ErrMissingColumn = errors.New("master dataset is missing a required column")

var requiredColumns = []string{
	"fiscal_year", "bureau", "omb_account", "tas", "line_number", "month", "amount",
}

// ReadDatasetFile reads a master CSV from disk.
func ReadDatasetFile(path string) ([]types.NormalizedRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	records, err := ReadDataset(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ReadDataset reads master CSV rows from r.
//
// PARAMETERS:
//   - r: The CSV stream, header row first.
//
// RETURNS:
//   - The records in file order.
//   - ErrMissingColumn, or a parse error naming the offending line.
func ReadDataset(r io.Reader) ([]types.NormalizedRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("CSV file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	get := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var records []types.NormalizedRecord
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if isRowEmpty(row) {
			continue
		}

		year, err := strconv.Atoi(get(row, "fiscal_year"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid fiscal_year: %w", line, err)
		}
		lineNumber, err := strconv.Atoi(get(row, "line_number"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid line_number: %w", line, err)
		}
		amount, err := decimal.NewFromString(get(row, "amount"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid amount: %w", line, err)
		}

		records = append(records, types.NormalizedRecord{
			FiscalYear: year,
			Agency:     get(row, "agency"),
			Bureau:     get(row, "bureau"),
			OMBAccount: get(row, "omb_account"),
			TAS:        get(row, "tas"),
			LineNumber: lineNumber,
			Month:      get(row, "month"),
			Amount:     amount,
			SourceFile: get(row, "source_file"),
		})
	}

	return records, nil
}

// isRowEmpty checks if a row contains only empty cells.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
