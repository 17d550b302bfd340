package normalizer

import (
	"fmt"
	"strings"

	"github.com/ginjaninja78/sf133-pipeline/internal/types"
)

// DeriveTAS builds the Treasury Account Symbol of a row in Treasury form:
//
//	[<ALLOC>-]<TRAG>-<TRACCT> <period>
//
// TRACCT falls back to OMB_ACCT and the "<TRAG>-" part is left out when
// the sheet has no TRAG value. The treasury agency code is what tells two
// departments' "0100" accounts apart.
//
// The period of availability is:
//   - "/X"    no-year account (FY2 is "X")
//   - "/YY"   single-year account (FY1 empty or equal to FY2)
//   - "YY/YY" multi-year account
//
// When FY1 and FY2 are both empty the fiscal year's own single-year period
// is used.
func DeriveTAS(row types.RawRow, fiscalYear int) string {
	account := strings.TrimSpace(row.TreasuryAccount)
	if account == "" {
		account = strings.TrimSpace(row.OMBAccount)
	}
	if trag := strings.TrimSpace(row.TreasuryAgency); trag != "" {
		account = trag + "-" + account
	}
	if alloc := strings.TrimSpace(row.Allocation); alloc != "" {
		account = alloc + "-" + account
	}
	return account + " " + Period(row.FY1, row.FY2, fiscalYear)
}

// Period returns the period-of-availability part of a TAS.
func Period(fy1, fy2 string, fiscalYear int) string {
	begin := twoDigitYear(fy1)
	end := twoDigitYear(fy2)

	switch {
	case end == "X" || begin == "X":
		return "/X"
	case begin == "" && end == "":
		return "/" + twoDigitYear(fmt.Sprint(fiscalYear))
	case begin == "":
		return "/" + end
	case end == "" || begin == end:
		return "/" + begin
	default:
		return begin + "/" + end
	}
}

// twoDigitYear reduces "2025", "25" or "5" to "25"/"05". "X" (any case)
// is kept.
func twoDigitYear(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, ".0")
	switch {
	case s == "":
		return ""
	case s == "X":
		return "X"
	case len(s) == 1:
		return "0" + s
	case len(s) > 2:
		return s[len(s)-2:]
	default:
		return s
	}
}
