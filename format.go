package triathlon

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ClockLayout is the layout of absolute clock times such as start and end
// of a leg.
const ClockLayout = "15:04:05"

// startLayouts are the accepted forms of a user-entered start date and time.
// The first entries match an HTML datetime-local input.
var startLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// FormatTime formats a number of seconds as HH:MM:SS. Fractions are dropped;
// negative and NaN values format as 00:00:00.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	total := int64(math.Floor(seconds))
	hrs := total / 3600
	mins := (total % 3600) / 60
	secs := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hrs, mins, secs)
}

// FormatDuration formats d as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	return FormatTime(d.Seconds())
}

// TimeToSeconds parses an HH:MM:SS string back into seconds. Empty strings,
// ZeroTime and NotAvailable all mean zero.
func TimeToSeconds(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == ZeroTime || s == NotAvailable {
		return 0, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, wrapValidationf("invalid time %q: want HH:MM:SS", s)
	}

	var fields [3]int64
	for i, part := range parts {
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil || v < 0 {
			return 0, wrapValidationf("invalid time %q", s)
		}
		fields[i] = v
	}
	return fields[0]*3600 + fields[1]*60 + fields[2], nil
}

// FormatAbsoluteTime formats a wall-clock instant as HH:MM:SS in its own
// location. The zero time formats as NotAvailable.
func FormatAbsoluteTime(t time.Time) string {
	if t.IsZero() {
		return NotAvailable
	}
	return t.Format(ClockLayout)
}

// FormatDistance renders meters with two decimals, switching to kilometers
// from 1000 m up.
func FormatDistance(meters float64) string {
	d := decimal.NewFromFloat(meters)
	if meters >= 1000 {
		return d.Div(decimal.NewFromInt(1000)).StringFixed(2) + " Km"
	}
	return d.StringFixed(2) + " m"
}

// ParseStartTime parses the user-entered start date and time. RFC 3339
// strings carry their own offset; the other layouts are read in loc.
func ParseStartTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, wrapValidation("start date and time are required")
	}
	if loc == nil {
		loc = time.Local
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range startLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, wrapValidationf("invalid start date and time %q", s)
}
