package normalizer

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// errNotNumeric is returned by ParseAmount for text that is not a number.
var errNotNumeric = errors.New("not a numeric amount")

// ParseAmount parses an amount cell. It accepts thousands separators, a
// leading dollar sign, a leading minus and accounting-style parentheses
// for negatives. ok is false for a blank cell.
func ParseAmount(text string) (amount decimal.Decimal, ok bool, err error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return decimal.Zero, false, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimSpace(s[1:])
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if s == "" || strings.HasPrefix(s, "-") {
		return decimal.Zero, true, errNotNumeric
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, true, errNotNumeric
	}
	if negative {
		d = d.Neg()
	}
	return d, true, nil
}

// ParseLineNumber parses an SF133 line code. Numeric cells may come back
// as "2500" or "2500.0"; anything that is not a whole number is rejected.
func ParseLineNumber(text string) (int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, errors.New("line number is not an integer")
	}
	return int(d.IntPart()), nil
}
