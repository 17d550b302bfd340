// =============================================================================
// SF133 Pipeline - Main Entry Point
// =============================================================================
//
// USAGE:
//   sf133 process   - Download, ingest and validate fiscal years
//   sf133 validate  - Re-validate an existing master dataset
//   sf133 status    - Show the last outcome of each fiscal year
//   sf133 version   - Display the application version
//
// ARCHITECTURE:
//   - cmd/       : CLI command definitions (Cobra)
//   - internal/  : ingestion pipeline (loader, normalizer, dedup, aggregator,
//                  validation, processor) and its storage
//   - pkg/utils/ : file discovery, backups and run summary logs
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/sf133-pipeline/cmd"
)

func main() {
	cmd.Execute()
}
