package xlsxparser

import (
	"path/filepath"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// FederalAgencies is the list of agencies published in the SF133 report,
// in the order they are matched.
var FederalAgencies = []string{
	"Legislative Branch",
	"Judicial Branch",
	"Department of Agriculture",
	"Department of Commerce",
	"Department of Defense-Military",
	"Department of Education",
	"Department of Energy",
	"Department of Health and Human Services",
	"Department of Homeland Security",
	"Department of Housing and Urban Development",
	"Department of the Interior",
	"Department of Justice",
	"Department of Labor",
	"Department of State",
	"Department of Transportation",
	"Department of the Treasury",
	"Department of Veterans Affairs",
	"Corps of Engineers-Civil Works",
	"Other Defense Civil Programs",
	"Environmental Protection Agency",
	"Executive Office of the President",
	"General Services Administration",
	"International Assistance Programs",
	"National Aeronautics and Space Administration",
	"National Science Foundation",
	"Office of Personnel Management",
	"Small Business Administration",
	"Social Security Administration",
	"Other Independent Agencies",
}

// MinAgencyMatchRatio is the Levenshtein similarity above which a label is
// taken to be a misspelling of a known agency.
const MinAgencyMatchRatio = 0.85

// AgencyResolver maps raw AGENCY labels to canonical agency names.
// Results are memoized; a resolver is not safe for concurrent use.
type AgencyResolver struct {
	aliases map[string]string
	cache   map[string]string
}

// NewAgencyResolver builds a resolver. Alias keys are matched
// case-insensitively.
func NewAgencyResolver(aliases map[string]string) *AgencyResolver {
	r := &AgencyResolver{
		aliases: make(map[string]string, len(aliases)),
		cache:   make(map[string]string),
	}
	for raw, canonical := range aliases {
		r.aliases[normalizeLabel(raw)] = strings.TrimSpace(canonical)
	}
	return r
}

// Resolve returns the canonical agency for a label. Labels that match
// nothing are returned trimmed.
func (r *AgencyResolver) Resolve(label string) string {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return ""
	}
	if hit, ok := r.cache[trimmed]; ok {
		return hit
	}
	resolved := r.resolve(trimmed)
	r.cache[trimmed] = resolved
	return resolved
}

func (r *AgencyResolver) resolve(label string) string {
	norm := normalizeLabel(label)

	if canonical, ok := r.aliases[norm]; ok {
		return canonical
	}

	for _, agency := range FederalAgencies {
		if strings.Contains(norm, strings.ToLower(agency)) {
			return agency
		}
	}

	// Published labels vary in punctuation for the hyphenated names.
	switch {
	case strings.Contains(norm, "corps of engineers") && strings.Contains(norm, "civil"):
		return "Corps of Engineers-Civil Works"
	case strings.Contains(norm, "other defense") && strings.Contains(norm, "civil"):
		return "Other Defense Civil Programs"
	case strings.Contains(norm, "defense") && strings.Contains(norm, "military"):
		return "Department of Defense-Military"
	}

	best, bestRatio := "", 0.0
	for _, agency := range FederalAgencies {
		ratio := levenshtein.RatioForStrings([]rune(norm), []rune(strings.ToLower(agency)), levenshtein.DefaultOptions)
		if ratio > bestRatio {
			best, bestRatio = agency, ratio
		}
	}
	if bestRatio >= MinAgencyMatchRatio {
		return best
	}

	return label
}

// AgencyFromFileName derives an agency label from a workbook name, for
// files without an AGENCY column.
func (r *AgencyResolver) AgencyFromFileName(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	return r.Resolve(stem)
}

// normalizeLabel lower-cases, collapses whitespace and folds the double
// dashes found in older sheets.
func normalizeLabel(s string) string {
	s = strings.ReplaceAll(s, "--", "-")
	s = strings.ReplaceAll(s, " - ", "-")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
