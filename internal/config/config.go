// =============================================================================
// SF133 Pipeline - Configuration Module
// =============================================================================
//
// This module loads and validates the pipeline configuration.
//
// CONFIGURATION FILES:
//   1. Main Config (config.yaml): directories, baseline, thresholds
//   2. URL Table (sf133_urls.json|yaml|toml): download page per fiscal year
//
// PRECEDENCE (lowest to highest):
//   defaults -> config.yaml -> SF133_* environment -> command-line flags
//   The last two are layered by cmd/root.go and applied with ApplyOverrides.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global pipeline configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// BaseDir is the root all relative directories are resolved against.
	// Default: "."
	BaseDir string `yaml:"base_dir"`

	// RawDataDir holds downloaded workbooks, one subdirectory per fiscal
	// year (raw_data/<year>/*.xlsx).
	// Default: "raw_data"
	RawDataDir string `yaml:"raw_data_dir"`

	// OutputDir receives sf133_<year>_master.csv, summary_<year>.json and
	// approved_years.json.
	// Default: "site/data"
	OutputDir string `yaml:"output_dir"`

	// BackupDir receives copies of OutputDir taken before master files are
	// overwritten.
	// Default: "backups"
	BackupDir string `yaml:"backup_dir"`

	// URLTable is the URL-per-year lookup file.
	// Default: "sf133_urls.json"
	URLTable string `yaml:"url_table"`

	// DBPath is the SQLite catalog of runs. Empty disables the catalog.
	DBPath string `yaml:"db_path"`

	// LogDir receives the run summary logs.
	// Default: "logs"
	LogDir string `yaml:"log_dir"`

	// =========================================================================
	// VALIDATION SETTINGS
	// =========================================================================

	// BaselineYear is the reference year whose master dataset defines the
	// expected agencies and accounts.
	// Default: 2025
	BaselineYear int `yaml:"baseline_year"`

	// CurrentFiscalYear overrides the fiscal year derived from the clock.
	// Years before it are historical and must contain September.
	// Default: 0 (derive from the clock)
	CurrentFiscalYear int `yaml:"current_fiscal_year"`

	// MinAgencyCount fixes the agency lower bound. When 0 the bound is
	// derived from the baseline as AgencyCoverageRatio * baseline agencies.
	MinAgencyCount int `yaml:"min_agency_count"`

	// AgencyCoverageRatio is the share of baseline agencies a year must
	// cover.
	// Default: 0.85
	AgencyCoverageRatio float64 `yaml:"agency_coverage_ratio"`

	// TASCoveragePercent is the per-agency TAS coverage below which an
	// advisory warning is raised.
	// Default: 80
	TASCoveragePercent float64 `yaml:"tas_coverage_percent"`

	// MinMonthTotal is the absolute monthly total (dollars) above which a
	// month counts as having data. Raw Data sheets often carry all twelve
	// columns with zeros for months not yet reported.
	// Default: 1000
	MinMonthTotal float64 `yaml:"min_month_total"`

	// =========================================================================
	// PROCESSING SETTINGS
	// =========================================================================

	// MaxConcurrency is the number of fiscal years processed in parallel.
	// Files within a year are always processed sequentially.
	// Default: 1
	MaxConcurrency int `yaml:"max_concurrency"`

	// SkipDownload reuses the workbooks already in RawDataDir.
	SkipDownload bool `yaml:"skip_download"`

	// BackupBeforeWrite copies OutputDir to BackupDir before an existing
	// master file is replaced.
	// Default: true
	BackupBeforeWrite *bool `yaml:"backup_before_write"`

	// ConsolidatedFiles lists workbook file names that are always treated
	// as consolidated submissions.
	ConsolidatedFiles []string `yaml:"consolidated_files"`

	// AgencyAliases maps raw AGENCY labels to canonical agency names.
	AgencyAliases map[string]string `yaml:"agency_aliases"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogLevel controls verbosity: "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `yaml:"log_level"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Default returns a configuration with every default applied.
func Default() *MainConfig {
	cfg := &MainConfig{}
	applyMainConfigDefaults(cfg)
	return cfg
}

// LoadMainConfig loads the main configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file.
//
// RETURNS:
//   - A pointer to the MainConfig struct with defaults applied.
//   - An error if the file exists but cannot be read or parsed.
//
// A missing file is not an error: the pipeline runs on defaults.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	var config MainConfig

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyMainConfigDefaults(&config)

	if err := ValidateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyMainConfigDefaults sets default values for any unset option.
func applyMainConfigDefaults(config *MainConfig) {
	if config.BaseDir == "" {
		config.BaseDir = "."
	}
	if config.RawDataDir == "" {
		config.RawDataDir = "raw_data"
	}
	if config.OutputDir == "" {
		config.OutputDir = filepath.Join("site", "data")
	}
	if config.BackupDir == "" {
		config.BackupDir = "backups"
	}
	if config.URLTable == "" {
		config.URLTable = "sf133_urls.json"
	}
	if config.LogDir == "" {
		config.LogDir = "logs"
	}
	if config.BaselineYear == 0 {
		config.BaselineYear = 2025
	}
	if config.AgencyCoverageRatio == 0 {
		config.AgencyCoverageRatio = 0.85
	}
	if config.TASCoveragePercent == 0 {
		config.TASCoveragePercent = 80
	}
	if config.MinMonthTotal == 0 {
		config.MinMonthTotal = 1000
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 1
	}
	if config.BackupBeforeWrite == nil {
		enabled := true
		config.BackupBeforeWrite = &enabled
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
}

// ValidateMainConfig checks value ranges.
func ValidateMainConfig(config *MainConfig) error {
	if config.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", config.MaxConcurrency)
	}
	if config.AgencyCoverageRatio < 0 || config.AgencyCoverageRatio > 1 {
		return fmt.Errorf("agency_coverage_ratio must be within [0,1], got %v", config.AgencyCoverageRatio)
	}
	if config.TASCoveragePercent < 0 || config.TASCoveragePercent > 100 {
		return fmt.Errorf("tas_coverage_percent must be within [0,100], got %v", config.TASCoveragePercent)
	}
	if config.MinMonthTotal < 0 {
		return fmt.Errorf("min_month_total must not be negative")
	}
	switch strings.ToLower(config.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log_level %q", config.LogLevel)
	}
	return nil
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// Resolve joins a configured path with BaseDir unless it is absolute.
func (c *MainConfig) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.BaseDir, path)
}

// YearRawDir is the directory holding one fiscal year's workbooks.
func (c *MainConfig) YearRawDir(year int) string {
	return filepath.Join(c.Resolve(c.RawDataDir), fmt.Sprint(year))
}

// MasterPath is the master dataset file of one fiscal year.
func (c *MainConfig) MasterPath(year int) string {
	return filepath.Join(c.Resolve(c.OutputDir), fmt.Sprintf("sf133_%d_master.csv", year))
}

// SummaryPath is the validation report of one fiscal year.
func (c *MainConfig) SummaryPath(year int) string {
	return filepath.Join(c.Resolve(c.OutputDir), fmt.Sprintf("summary_%d.json", year))
}

// ApprovedYearsPath lists the years cleared for publishing.
func (c *MainConfig) ApprovedYearsPath() string {
	return filepath.Join(c.Resolve(c.OutputDir), "approved_years.json")
}

// ShouldBackup reports whether backups are enabled.
func (c *MainConfig) ShouldBackup() bool {
	return c.BackupBeforeWrite == nil || *c.BackupBeforeWrite
}

// EnsureDirectories creates the raw data and output directories.
func (c *MainConfig) EnsureDirectories() error {
	for _, dir := range []string{c.Resolve(c.RawDataDir), c.Resolve(c.OutputDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// =============================================================================
// OVERRIDES
// =============================================================================

// Overrides carries values set by flags or environment variables. Nil
// fields are left untouched.
type Overrides struct {
	BaseDir           *string
	OutputDir         *string
	DBPath            *string
	BaselineYear      *int
	CurrentFiscalYear *int
	MaxConcurrency    *int
	SkipDownload      *bool
	LogLevel          *string
}

// ApplyOverrides copies the set override values onto the configuration and
// re-validates it.
func ApplyOverrides(config *MainConfig, o Overrides) error {
	if o.BaseDir != nil {
		config.BaseDir = *o.BaseDir
	}
	if o.OutputDir != nil {
		config.OutputDir = *o.OutputDir
	}
	if o.DBPath != nil {
		config.DBPath = *o.DBPath
	}
	if o.BaselineYear != nil {
		config.BaselineYear = *o.BaselineYear
	}
	if o.CurrentFiscalYear != nil {
		config.CurrentFiscalYear = *o.CurrentFiscalYear
	}
	if o.MaxConcurrency != nil {
		config.MaxConcurrency = *o.MaxConcurrency
	}
	if o.SkipDownload != nil {
		config.SkipDownload = *o.SkipDownload
	}
	if o.LogLevel != nil {
		config.LogLevel = *o.LogLevel
	}
	return ValidateMainConfig(config)
}
