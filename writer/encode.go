package writer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// naiveTimeLayout is the zone-stripped ISO-8601 layout used for every
// timestamp column. The clock face of the instant's own zone is kept and the
// offset dropped, so repeated upserts of the same logical instant always
// produce the same encoded value and the conflict key dedupes across runs.
const naiveTimeLayout = "2006-01-02T15:04:05"

func encodeTime(t time.Time) string {
	return t.Format(naiveTimeLayout)
}

// encodeSeconds stores a duration as whole integer seconds, truncated toward
// zero.
func encodeSeconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

// formatLegacyDuration renders a duration the way the historical CSV exports
// did: "D days HH:MM:SS", with a negative day count carrying a positive
// clock remainder ("-1 days +23:57:00").
func formatLegacyDuration(d time.Duration) string {
	days := int64(d / (24 * time.Hour))
	rem := d - time.Duration(days)*24*time.Hour
	if rem < 0 {
		days--
		rem += 24 * time.Hour
	}

	h := rem / time.Hour
	m := (rem % time.Hour) / time.Minute
	s := (rem % time.Minute) / time.Second

	if days < 0 {
		return fmt.Sprintf("%d days +%02d:%02d:%02d", days, h, m, s)
	}
	return fmt.Sprintf("%d days %02d:%02d:%02d", days, h, m, s)
}

// parseLegacyDuration reads the export duration format, a bare HH:MM:SS
// clock, or a Go duration string.
func parseLegacyDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	rest := s
	days := int64(0)
	if idx := strings.Index(s, "days"); idx >= 0 {
		d, err := strconv.ParseInt(strings.TrimSpace(s[:idx]), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid day count in %q", s)
		}
		days = d
		rest = strings.TrimSpace(s[idx+len("days"):])
		rest = strings.TrimPrefix(rest, "+")
	}

	if rest == "" {
		return time.Duration(days) * 24 * time.Hour, nil
	}

	if clock, err := parseClock(rest); err == nil {
		return time.Duration(days)*24*time.Hour + clock, nil
	}

	if days == 0 {
		if d, err := time.ParseDuration(rest); err == nil {
			return d, nil
		}
	}

	return 0, fmt.Errorf("unparseable duration %q", s)
}

func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("expected HH:MM:SS, got %q", s)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hours in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minutes in %q", s)
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seconds in %q", s)
	}

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second)), nil
}

// parseLegacyTime accepts the timestamp spellings found in historical
// exports: RFC3339, space-separated with or without offset, or plain naive
// ISO.
func parseLegacyTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
