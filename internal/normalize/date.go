package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDate is returned when a string holds no recognizable calendar date.
var ErrInvalidDate = errors.New("invalid date")

// Date parses the date shapes seen in statements and returns it at UTC midnight.
//
// Year-first (2024-01-15, 2024/01/15, 20240115) and day-first (15/01/2024,
// 15-01-2024, 15.01.24) layouts are told apart by which token carries the
// four-digit year. Any time-of-day suffix is ignored.
func Date(s string) (time.Time, error) {
	raw := strings.TrimSpace(s)
	if i := strings.IndexAny(raw, " T"); i > 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}

	if isDigits(raw) {
		if len(raw) < 8 {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		return CompactDate(raw[:8])
	}

	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '/' || r == '-' || r == '.'
	})
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}

	var year, month, day string
	switch {
	case len(parts[0]) == 4:
		year, month, day = parts[0], parts[1], parts[2]
	case len(parts[2]) == 4 || len(parts[2]) == 2:
		day, month, year = parts[0], parts[1], parts[2]
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}

	return build(year, month, day, s)
}

// CompactDate parses the YYYYMMDD form.
func CompactDate(s string) (time.Time, error) {
	if len(s) != 8 || !isDigits(s) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return build(s[:4], s[4:6], s[6:8], s)
}

func build(yearStr, monthStr, dayStr, original string) (time.Time, error) {
	year, errY := strconv.Atoi(yearStr)
	month, errM := strconv.Atoi(monthStr)
	day, errD := strconv.Atoi(dayStr)
	if errY != nil || errM != nil || errD != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, original)
	}
	if len(yearStr) == 2 {
		year += 2000
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 -> Mar 1); reject instead.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, original)
	}
	return t, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
