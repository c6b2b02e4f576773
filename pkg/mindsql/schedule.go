package mindsql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Interval is a parsed MindsDB EVERY clause such as "2 hours".
type Interval struct {
	Count int
	Unit  string
}

var intervalPattern = regexp.MustCompile(`^(?i)(?:every\s+)?(\d+)?\s*([a-z]+)$`)

// unit lengths used for the next-run estimate; months are approximated
// as 30 days since the server owns the actual calendar.
var intervalUnits = map[string]time.Duration{
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
	"month":  30 * 24 * time.Hour,
}

// ParseInterval parses "N unit", "unit", or "every N unit". Plural units
// are accepted.
func ParseInterval(s string) (Interval, error) {
	m := intervalPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Interval{}, fmt.Errorf("invalid schedule %q: expected e.g. \"1 hour\"", s)
	}
	count := 1
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return Interval{}, fmt.Errorf("invalid schedule %q: count must be positive", s)
		}
		count = n
	}
	unit := strings.TrimSuffix(strings.ToLower(m[2]), "s")
	if _, ok := intervalUnits[unit]; !ok {
		return Interval{}, fmt.Errorf("invalid schedule %q: unit must be one of minute, hour, day, week, month", s)
	}
	return Interval{Count: count, Unit: unit}, nil
}

func (i Interval) String() string {
	if i.Count == 1 {
		return "1 " + i.Unit
	}
	return fmt.Sprintf("%d %ss", i.Count, i.Unit)
}

// Duration approximates the interval length.
func (i Interval) Duration() time.Duration {
	return time.Duration(i.Count) * intervalUnits[i.Unit]
}

// Next estimates the first run after from.
func (i Interval) Next(from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard("@every " + i.Duration().String())
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule %s: %w", i, err)
	}
	return sched.Next(from), nil
}

// NormalizeSchedule returns an EVERY clause for s. EVERY is prepended when
// absent and kept as given otherwise. Text after EVERY is passed through
// untouched so server-specific forms still work.
func NormalizeSchedule(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	if len(s) >= 6 && strings.EqualFold(s[:6], "every ") {
		return "EVERY " + s[6:]
	}
	if strings.EqualFold(s, "every") {
		return ""
	}
	return "EVERY " + s
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// NormalizeTimestamp accepts a date, a datetime, or RFC 3339 and renders
// MindsDB's 'YYYY-MM-DD HH:MM:SS' form.
func NormalizeTimestamp(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02 15:04:05"), nil
		}
	}
	return "", fmt.Errorf("invalid timestamp %q: expected YYYY-MM-DD [HH:MM:SS]", s)
}
