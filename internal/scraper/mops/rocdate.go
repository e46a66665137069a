package mops

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	errsx "github.com/twmops/mops-linebot-go/internal/errors"
)

// Taipei is the upstream sources' reference timezone (UTC+8).
var Taipei = time.FixedZone("Asia/Taipei", 8*60*60)

// ParseROCDate parses a Minguo calendar date like "114/08/01" into a
// time.Time at midnight Taipei time. The year offset is 1911.
func ParseROCDate(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return time.Time{}, errsx.NewValidationError("date", fmt.Sprintf("invalid ROC date %q", s))
	}

	y, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	d, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, errsx.NewValidationError("date", fmt.Sprintf("invalid ROC date %q", s))
	}

	t := time.Date(y+1911, time.Month(m), d, 0, 0, 0, 0, Taipei)
	// time.Date normalizes out-of-range components; reject them instead
	if t.Year() != y+1911 || t.Month() != time.Month(m) || t.Day() != d {
		return time.Time{}, errsx.NewValidationError("date", fmt.Sprintf("no such date %q", s))
	}
	return t, nil
}

// FormatROCDate renders a time.Time in the zero-padded Minguo form the
// MOPS form fields expect, e.g. "114/08/01".
func FormatROCDate(t time.Time) string {
	t = t.In(Taipei)
	return fmt.Sprintf("%03d/%02d/%02d", t.Year()-1911, int(t.Month()), t.Day())
}

// truncateToDay strips the time-of-day component in Taipei time.
func truncateToDay(t time.Time) time.Time {
	t = t.In(Taipei)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Taipei)
}

// daysBetween returns the number of whole days from a to b (b after a).
func daysBetween(a, b time.Time) int {
	return int(truncateToDay(b).Sub(truncateToDay(a)) / (24 * time.Hour))
}

// sortKeyDate normalizes a raw upstream date string for lexicographic
// ordering. Upstream dates arrive as "114/8/1" or "114/08/01"; padding
// every component makes string comparison match chronological order.
func sortKeyDate(s string) string {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return s
	}
	return zeroPad(parts[0], 3) + "/" + zeroPad(parts[1], 2) + "/" + zeroPad(parts[2], 2)
}

func zeroPad(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// sortKeyTime zero-pads a raw "H:M:S" time string for the same reason.
func sortKeyTime(s string) string {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return s
	}
	for i, p := range parts {
		if len(p) == 1 {
			parts[i] = "0" + p
		}
	}
	return strings.Join(parts, ":")
}
