package config

import (
	"fmt"
	"time"
)

// TimeWindow is a trailing range of whole days ending yesterday.
type TimeWindow string

const (
	Window7d  TimeWindow = "7d"
	Window31d TimeWindow = "31d"
	Window90d TimeWindow = "90d"
)

var TimeWindows = []TimeWindow{Window7d, Window31d, Window90d}

const DefaultTimeWindow = Window7d

var windowDays = map[TimeWindow]int{
	Window7d:  7,
	Window31d: 31,
	Window90d: 90,
}

func ParseTimeWindow(s string) (TimeWindow, error) {
	// The dashboard links used a leading minus ("-7d").
	if len(s) > 0 && s[0] == '-' {
		s = s[1:]
	}
	w := TimeWindow(s)
	if _, ok := windowDays[w]; !ok {
		return "", fmt.Errorf("invalid time window %q, must be one of: %s, %s, %s", s, Window7d, Window31d, Window90d)
	}
	return w, nil
}

func (w TimeWindow) Days() int {
	return windowDays[w]
}

// Range returns the inclusive UTC date range for the window relative to now. The end is
// yesterday since today's partition is never complete.
func (w TimeWindow) Range(now time.Time) (start, end time.Time) {
	end = Day(now).AddDate(0, 0, -1)
	start = end.AddDate(0, 0, -w.Days())
	return start, end
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
