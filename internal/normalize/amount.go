// Package normalize turns the textual fragments found in bank statements into
// comparable values: signed decimal amounts, calendar dates and canonical
// description keys.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a string holds no parseable amount.
var ErrInvalidAmount = errors.New("invalid amount")

// Amount parses a locale-formatted monetary amount into a signed decimal.
//
// Both "." and "," are accepted as decimal separators. When both appear the
// right-most one is the decimal separator and the other is grouping. A lone
// separator that repeats is grouping, and so is a single one that splits one
// to three leading digits from exactly three trailing digits ("1,234" and
// "1.234" are both 1234). Negatives may be written with a leading
// or trailing minus, in parentheses, or with a trailing D (debit) marker.
// Currency symbols and spaces are ignored.
func Amount(s string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	negative := false
	upper := strings.ToUpper(raw)
	switch {
	case strings.HasSuffix(upper, " D"):
		negative = true
		raw = raw[:len(raw)-2]
	case strings.HasSuffix(upper, " C"):
		raw = raw[:len(raw)-2]
	}

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-':
			negative = !negative
		case r == '(':
			negative = true
		}
	}

	digits := b.String()
	if strings.IndexFunc(digits, func(r rune) bool { return r >= '0' && r <= '9' }) < 0 {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	normalized := ResolveSeparators(digits)
	value, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, s, err)
	}

	if negative {
		value = value.Neg()
	}
	return value, nil
}

// ResolveSeparators rewrites a numeric token so that "." is its only
// separator, following the rules documented on Amount. Characters other than
// "." and "," are left in place.
func ResolveSeparators(digits string) string {
	lastDot := strings.LastIndex(digits, ".")
	lastComma := strings.LastIndex(digits, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			digits = strings.ReplaceAll(digits, ".", "")
			return strings.Replace(digits, ",", ".", 1)
		}
		return strings.ReplaceAll(digits, ",", "")
	case lastComma >= 0:
		if strings.Count(digits, ",") > 1 || groupsThousands(digits, lastComma) {
			return strings.ReplaceAll(digits, ",", "")
		}
		return strings.Replace(digits, ",", ".", 1)
	case lastDot >= 0:
		if strings.Count(digits, ".") > 1 || groupsThousands(digits, lastDot) {
			return strings.ReplaceAll(digits, ".", "")
		}
	}
	return digits
}

// groupsThousands reports whether the only separator, at index i, reads as a
// thousands separator: 1-3 leading digits without a leading zero, then exactly
// three digits.
func groupsThousands(digits string, i int) bool {
	whole := strings.TrimLeft(digits[:i], "+-")
	fraction := digits[i+1:]
	if len(fraction) != 3 || len(whole) == 0 || len(whole) > 3 || whole[0] == '0' {
		return false
	}
	return allDigits(whole) && allDigits(fraction)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
