// Package transform validates source rows and builds typed form answers.
package transform

import (
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used on the wire and in the
// tracking file.
const DateLayout = "2006-01-02"

// ToDate interprets v as a calendar date. It accepts time.Time (truncated to
// its date in its own location), *time.Time, and text whose first ten
// characters start with YYYY-MM-DD (or YYYY-M-D). Anything else reports false.
func ToDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return dateOf(d), true
	case *time.Time:
		if d == nil {
			return time.Time{}, false
		}
		return dateOf(*d), true
	case string:
		return parseDatePrefix(d)
	case []byte:
		return parseDatePrefix(string(d))
	default:
		return time.Time{}, false
	}
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ISODate returns v as YYYY-MM-DD, or "" when it is not a date.
func ISODate(v any) string {
	t, ok := ToDate(v)
	if !ok {
		return ""
	}
	return FormatDate(t)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseDatePrefix reads a date from the first ten characters of s, up to
// the first character that cannot belong to a date. Month and day may omit
// their leading zero.
func parseDatePrefix(s string) (time.Time, bool) {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	if i := strings.IndexFunc(s, func(r rune) bool { return r != '-' && (r < '0' || r > '9') }); i >= 0 {
		s = s[:i]
	}
	t, err := time.Parse("2006-1-2", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
