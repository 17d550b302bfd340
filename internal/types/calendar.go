package types

import "time"

// FiscalMonths lists the federal fiscal year's months in order. The fiscal
// year starts in October of the previous calendar year.
var FiscalMonths = []string{"Oct", "Nov", "Dec", "Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep"}

// QuarterLabels lists the quarter-end (cumulative) labels in order.
var QuarterLabels = []string{"Dec (1Q)", "Mar (2Q)", "Jun (3Q)", "Sep (4Q)"}

// YearEndMonth is the last month of the fiscal year.
const YearEndMonth = "Sep"

var quarterMonth = map[string]string{
	"Dec (1Q)": "Dec",
	"Mar (2Q)": "Mar",
	"Jun (3Q)": "Jun",
	"Sep (4Q)": "Sep",
}

// MonthIndex returns the 0-based fiscal position of a month or quarter
// label, or -1 for an unknown label. Quarter labels share the index of
// their month.
func MonthIndex(label string) int {
	if m, ok := quarterMonth[label]; ok {
		label = m
	}
	for i, m := range FiscalMonths {
		if m == label {
			return i
		}
	}
	return -1
}

// CoveredMonth folds a quarter-end label into the month it closes.
func CoveredMonth(label string) string {
	if m, ok := quarterMonth[label]; ok {
		return m
	}
	return label
}

// IsQuarterLabel reports whether label is a quarter-end label.
func IsQuarterLabel(label string) bool {
	_, ok := quarterMonth[label]
	return ok
}

// MonthLess orders labels in fiscal order; a month sorts before the
// quarter label that closes on it.
func MonthLess(a, b string) bool {
	ia, ib := MonthIndex(a), MonthIndex(b)
	if ia != ib {
		return ia < ib
	}
	qa, qb := IsQuarterLabel(a), IsQuarterLabel(b)
	if qa != qb {
		return !qa
	}
	return a < b
}

// FiscalYearOf returns the federal fiscal year containing t.
func FiscalYearOf(t time.Time) int {
	if t.Month() >= time.October {
		return t.Year() + 1
	}
	return t.Year()
}
