// =============================================================================
// SF133 Pipeline - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every other command
// (process, validate, status, version) is attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (sf133)
//   ├── processCmd  (sf133 process)
//   ├── validateCmd (sf133 validate)
//   ├── statusCmd   (sf133 status)
//   └── versionCmd  (sf133 version)
//
// CONFIGURATION:
//   config.yaml is loaded first. Values set through SF133_* environment
//   variables or command-line flags are layered on top with viper and
//   applied with config.ApplyOverrides.
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ginjaninja78/sf133-pipeline/internal/config"
	"github.com/ginjaninja78/sf133-pipeline/internal/processor"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// settings layers flags over SF133_* environment variables.
var settings = viper.New()

// mainConfig and logger are set by loadConfig before a command runs.
var (
	mainConfig *config.MainConfig
	logger     processor.Logger
)

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sf133",
	Short: "SF133 Pipeline - Ingest and reconcile SF133 budget execution data",
	Long: `SF133 Pipeline downloads the SF133 Report on Budget Execution workbooks
for the requested fiscal years, normalizes their Raw Data sheets into one
master dataset per year, and validates each year against a baseline year.

Key Features:
  - Column mapping across historical Raw Data layouts
  - Consolidated vs. sub-bureau file deduplication
  - Agency, month and TAS coverage validation
  - Per-year failure isolation with an approved-years list for publishing

Example Usage:
  sf133 process --years 2019-2024            # Download and ingest six years
  sf133 process --years 2024 --skip-download # Re-ingest files on disk
  sf133 validate --year 2023                 # Re-validate a master dataset
  sf133 status                               # Show the run catalog`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "config.yaml", "Path to the main configuration file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	flags.String("base-dir", "", "Root directory for relative paths")
	flags.String("output-dir", "", "Directory receiving master datasets and reports")
	flags.String("db", "", "Path to the SQLite run catalog")
	flags.Int("baseline-year", 0, "Reference fiscal year for validation")
	flags.Int("current-fy", 0, "Current fiscal year (years before it must contain September)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")

	bindFlag(settings, "base_dir", flags.Lookup("base-dir"))
	bindFlag(settings, "output_dir", flags.Lookup("output-dir"))
	bindFlag(settings, "db_path", flags.Lookup("db"))
	bindFlag(settings, "baseline_year", flags.Lookup("baseline-year"))
	bindFlag(settings, "current_fiscal_year", flags.Lookup("current-fy"))
	bindFlag(settings, "log_level", flags.Lookup("log-level"))

	// SF133_BASE_DIR, SF133_DB_PATH, SF133_MAX_CONCURRENCY, ...
	settings.SetEnvPrefix("SF133")
	settings.AutomaticEnv()

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd == versionCmd {
			return nil
		}
		return loadConfig()
	}
}

// =============================================================================
// CONFIGURATION LOADING
// =============================================================================

// loadConfig reads config.yaml and applies the flag and environment
// overrides.
func loadConfig() error {
	cfg, err := config.LoadMainConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load main config: %w", err)
	}

	var o config.Overrides
	if settings.IsSet("base_dir") {
		v := settings.GetString("base_dir")
		o.BaseDir = &v
	}
	if settings.IsSet("output_dir") {
		v := settings.GetString("output_dir")
		o.OutputDir = &v
	}
	if settings.IsSet("db_path") {
		v := settings.GetString("db_path")
		o.DBPath = &v
	}
	if settings.IsSet("baseline_year") {
		v := settings.GetInt("baseline_year")
		o.BaselineYear = &v
	}
	if settings.IsSet("current_fiscal_year") {
		v := settings.GetInt("current_fiscal_year")
		o.CurrentFiscalYear = &v
	}
	if settings.IsSet("max_concurrency") {
		v := settings.GetInt("max_concurrency")
		o.MaxConcurrency = &v
	}
	if settings.IsSet("skip_download") {
		v := settings.GetBool("skip_download")
		o.SkipDownload = &v
	}
	if settings.IsSet("log_level") {
		v := settings.GetString("log_level")
		o.LogLevel = &v
	}
	if verbose {
		v := "debug"
		o.LogLevel = &v
	}

	if err := config.ApplyOverrides(cfg, o); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	mainConfig = cfg
	logger = processor.NewLogger(os.Stderr, cfg.LogLevel)
	return nil
}

// bindFlag binds a flag to a viper key. Flags are registered in init, so a
// failure is a programming error.
func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
