package domain

import "time"

// Well-known rollup metric names produced by the telemetry pipeline.
const (
	MetricHTTPRequestStatus   = "http.request.status"
	MetricHTTPRequestDuration = "http.request.duration"
)

// MetricRollup is a pre-aggregated telemetry bucket for one service and metric.
type MetricRollup struct {
	ServiceID   string
	Name        string
	BucketStart time.Time
	Count       int64
	Sum         float64
	Max         float64
	P99         *float64
	Tags        map[string]string
}

// Tag returns the tag value for key or an empty string.
func (r MetricRollup) Tag(key string) string {
	if r.Tags == nil {
		return ""
	}
	return r.Tags[key]
}

// IsServerError reports whether the rollup is tagged with a 5xx status.
func (r MetricRollup) IsServerError() bool {
	status := r.Tag("status")
	return len(status) > 0 && status[0] == '5'
}

// TimeRange is an inclusive interval.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// DayRange returns the UTC calendar day containing t, from 00:00:00.000 to 23:59:59.999.
func DayRange(t time.Time) TimeRange {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return TimeRange{Start: start, End: start.Add(24*time.Hour - time.Millisecond)}
}

// TrailingRange returns [now-window, now].
func TrailingRange(now time.Time, window time.Duration) TimeRange {
	return TimeRange{Start: now.Add(-window), End: now}
}

// Contains reports whether t falls inside the range, bounds included.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}
