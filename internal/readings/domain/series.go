package readings

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02 15:04:05.999999999-0700",
	"2006-01-02T15:04",
}

// Reading is one interval observation of a usage point.
type Reading struct {
	UsagePoint   string
	Timestamp    time.Time
	Quantity     float64
	QualityFlags []string
}

// Flagged reports whether the reading carries quality annotations.
func (r Reading) Flagged() bool {
	return len(r.QualityFlags) > 0
}

// Document is one uploaded export.
type Document struct {
	Name string
	Body []byte
}

// TimeSeries holds the readings of one usage point keyed by naive timestamp.
type TimeSeries struct {
	UsagePoint string
	values     map[time.Time]float64
}

// NewTimeSeries constructs an empty series.
func NewTimeSeries(usagePoint string) (*TimeSeries, error) {
	if strings.TrimSpace(usagePoint) == "" {
		return nil, ErrEmptyUsagePoint
	}
	return &TimeSeries{UsagePoint: usagePoint, values: make(map[time.Time]float64)}, nil
}

// Add inserts a quantity; quantities at the same timestamp are summed.
func (s *TimeSeries) Add(ts time.Time, quantity float64) {
	s.values[Canonical(ts)] += quantity
}

// AddReading inserts a reading's quantity.
func (s *TimeSeries) AddReading(r Reading) {
	s.Add(r.Timestamp, r.Quantity)
}

// Merge adds every value of other into s.
func (s *TimeSeries) Merge(other *TimeSeries) {
	if other == nil {
		return
	}
	for ts, v := range other.values {
		s.values[ts] += v
	}
}

// Value returns the quantity at ts.
func (s *TimeSeries) Value(ts time.Time) (float64, bool) {
	v, ok := s.values[Canonical(ts)]
	return v, ok
}

// Len returns the number of distinct timestamps.
func (s *TimeSeries) Len() int {
	return len(s.values)
}

// Timestamps returns the distinct timestamps in ascending order.
func (s *TimeSeries) Timestamps() []time.Time {
	result := make([]time.Time, 0, len(s.values))
	for ts := range s.values {
		result = append(result, ts)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result
}

// Canonical drops the zone of ts and keeps its wall clock, so instants from
// different sources compare equal by clock value alone.
func Canonical(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), time.UTC)
}

// ParseTimestamp parses an export timestamp into a naive instant.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return Canonical(ts), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
}
