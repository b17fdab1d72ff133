package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/volcanowatch/volcano-risk/internal/models"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"20060102",
}

// ParseDate accepts the textual date forms users and deep links produce and returns the
// calendar date. Timestamps contribute only their date part.
func ParseDate(value string) (models.Date, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return models.Date{}, fmt.Errorf("empty date value")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return models.DateOf(t), nil
		}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return models.DateOf(t), nil
	}
	if i := strings.IndexAny(value, "T "); i > 0 {
		if d, err := ParseDate(value[:i]); err == nil {
			return d, nil
		}
	}
	return models.Date{}, fmt.Errorf("parse date %q: unrecognised format", value)
}

// maxEventMillis is 9999-12-31T23:59:59.999Z in epoch milliseconds.
const maxEventMillis = 253402300799999

// ParseEventTime decodes an event timestamp sent either as an RFC3339 string or as epoch milliseconds.
func ParseEventTime(raw []byte) (time.Time, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return time.Time{}, fmt.Errorf("missing time value")
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse time: %w", err)
		}
		unquoted = strings.TrimSpace(unquoted)
		if t, err := time.Parse(time.RFC3339Nano, unquoted); err == nil {
			return t.UTC(), nil
		}
		if ms, err := strconv.ParseInt(unquoted, 10, 64); err == nil {
			if ms < -maxEventMillis || ms > maxEventMillis {
				return time.Time{}, fmt.Errorf("parse time %q: epoch milliseconds out of range", unquoted)
			}
			return time.UnixMilli(ms).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("parse time %q: unrecognised format", unquoted)
	}
	ms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	if !IsFinite(ms) || math.Abs(ms) > maxEventMillis {
		return time.Time{}, fmt.Errorf("parse time %s: epoch milliseconds out of range", s)
	}
	// Sub-millisecond fractions are kept to the microsecond.
	return time.UnixMicro(int64(math.Round(ms * 1000))).UTC(), nil
}

// ParseFloat parses a finite float, tolerating surrounding whitespace.
func ParseFloat(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || !IsFinite(f) {
		return 0, false
	}
	return f, true
}

// IsFinite reports whether f is neither NaN nor infinite.
func IsFinite(f float64) bool {
	return f == f && f-f == 0
}
