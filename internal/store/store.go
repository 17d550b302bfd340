// Package store keeps a SQLite catalog of pipeline runs: which years were
// processed, their status, and the records of each year's last run.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/sf133-pipeline/internal/types"
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrNotFound is returned when a year has never been processed.
var ErrNotFound = errors.New("year not found in catalog")

// Year statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Store is the SQLite catalog.
type Store struct {
	db *sql.DB
}

// New opens (and creates when needed) the catalog at dbPath.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Years are processed concurrently; SQLite wants a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := s.db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StartRun records the start of a run.
func (s *Store) StartRun(runID string, years []int) error {
	_, err := s.db.Exec(`INSERT INTO runs (id, years) VALUES (?, ?)`, runID, joinInts(years))
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun records the outcome counts of a run.
func (s *Store) FinishRun(runID string, succeeded, failed int) error {
	_, err := s.db.Exec(`
		UPDATE runs SET succeeded = ?, failed = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, succeeded, failed, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// YearResult is the catalog row of one fiscal year.
type YearResult struct {
	FiscalYear      int
	RunID           string
	Status          string
	Reason          string
	RecordCount     int
	AgenciesCovered []string
	MonthsCovered   []string
}

// SaveYear replaces everything stored for a year in one transaction.
// records may be nil for a year that failed before aggregation.
func (s *Store) SaveYear(res YearResult, records []types.NormalizedRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM records WHERE fiscal_year = ?`, res.FiscalYear); err != nil {
		return fmt.Errorf("failed to clear FY%d records: %w", res.FiscalYear, err)
	}

	_, err = tx.Exec(`
		INSERT INTO year_results (fiscal_year, run_id, status, reason, record_count, agencies_covered, months_covered, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(fiscal_year) DO UPDATE SET
			run_id = excluded.run_id,
			status = excluded.status,
			reason = excluded.reason,
			record_count = excluded.record_count,
			agencies_covered = excluded.agencies_covered,
			months_covered = excluded.months_covered,
			updated_at = excluded.updated_at
	`, res.FiscalYear, res.RunID, res.Status, res.Reason, len(records),
		strings.Join(res.AgenciesCovered, "|"), strings.Join(res.MonthsCovered, "|"))
	if err != nil {
		return fmt.Errorf("failed to save FY%d result: %w", res.FiscalYear, err)
	}

	if len(records) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO records (fiscal_year, agency, bureau, omb_account, tas, line_number, month, amount, source_file)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			if _, err := stmt.Exec(r.FiscalYear, r.Agency, r.Bureau, r.OMBAccount, r.TAS,
				r.LineNumber, r.Month, r.Amount.String(), r.SourceFile); err != nil {
				return fmt.Errorf("failed to insert record %s: %w", r.Key(), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit FY%d: %w", res.FiscalYear, err)
	}
	return nil
}

// YearStatus returns the catalog row of a year.
func (s *Store) YearStatus(year int) (*YearResult, error) {
	var (
		res              YearResult
		agencies, months string
	)
	err := s.db.QueryRow(`
		SELECT fiscal_year, run_id, status, reason, record_count, agencies_covered, months_covered
		FROM year_results WHERE fiscal_year = ?
	`, year).Scan(&res.FiscalYear, &res.RunID, &res.Status, &res.Reason, &res.RecordCount, &agencies, &months)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("FY%d: %w", year, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query FY%d: %w", year, err)
	}
	res.AgenciesCovered = splitList(agencies)
	res.MonthsCovered = splitList(months)
	return &res, nil
}

// ApprovedYears returns the years whose last run succeeded, ascending.
func (s *Store) ApprovedYears() ([]int, error) {
	rows, err := s.db.Query(`SELECT fiscal_year FROM year_results WHERE status = ? ORDER BY fiscal_year`, StatusSucceeded)
	if err != nil {
		return nil, fmt.Errorf("failed to query approved years: %w", err)
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// LoadRecords returns the stored records of a year in key order.
func (s *Store) LoadRecords(year int) ([]types.NormalizedRecord, error) {
	rows, err := s.db.Query(`
		SELECT fiscal_year, agency, bureau, omb_account, tas, line_number, month, amount, source_file
		FROM records WHERE fiscal_year = ?
	`, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query FY%d records: %w", year, err)
	}
	defer rows.Close()

	var out []types.NormalizedRecord
	for rows.Next() {
		var (
			r      types.NormalizedRecord
			amount string
		)
		if err := rows.Scan(&r.FiscalYear, &r.Agency, &r.Bureau, &r.OMBAccount, &r.TAS,
			&r.LineNumber, &r.Month, &amount, &r.SourceFile); err != nil {
			return nil, err
		}
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("bad amount %q for %s: %w", amount, r.Key(), err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	types.SortRecords(out)
	return out, nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "|")
}
