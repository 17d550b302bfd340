package validation

import (
	"math"

	"github.com/ginjaninja78/sf133-pipeline/internal/types"
)

// BaselineConfig holds the configured expectations that complement the
// baseline year's data.
type BaselineConfig struct {
	Year int

	// MinAgencyCount, when positive, fixes the expected agency count.
	MinAgencyCount int

	// AgencyCoverageRatio derives the expected count from the baseline's
	// agencies when MinAgencyCount is 0.
	AgencyCoverageRatio float64
}

// LoadBaseline builds the baseline profile from the baseline year's master
// records. With no records the profile comes from configuration alone.
func LoadBaseline(records []types.NormalizedRecord, cfg BaselineConfig) types.BaselineProfile {
	profile := types.BaselineProfile{
		BaselineTASSet: make(map[string]bool),
		TASByAgency:    make(map[string]map[string]bool),
	}
	if len(records) > 0 {
		profile.BaselineYear = cfg.Year
	}

	agencies := make(map[string]bool)
	for _, r := range records {
		profile.BaselineTASSet[r.TAS] = true
		if r.Agency == "" {
			continue
		}
		agencies[r.Agency] = true
		if profile.TASByAgency[r.Agency] == nil {
			profile.TASByAgency[r.Agency] = make(map[string]bool)
		}
		profile.TASByAgency[r.Agency][r.TAS] = true
	}

	switch {
	case cfg.MinAgencyCount > 0:
		profile.ExpectedAgencyCount = cfg.MinAgencyCount
	case len(agencies) > 0:
		profile.ExpectedAgencyCount = int(math.Floor(cfg.AgencyCoverageRatio * float64(len(agencies))))
	}

	return profile
}
