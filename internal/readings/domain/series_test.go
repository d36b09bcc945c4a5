package readings

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimestamp_StripsZoneKeepsWallClock(t *testing.T) {
	cases := []string{
		"2026-01-05T10:15:00+01:00",
		"2026-01-05T10:15:00+02:00",
		"2026-01-05T10:15:00Z",
		"2026-01-05T10:15:00",
		"2026-01-05 10:15:00",
		"2026-01-05T10:15:00.000+01:00",
		"2026-01-05T10:15:00+0100",
		"2026-01-05T10:15:00.000-0500",
		"2026-01-05 10:15:00+0200",
	}
	want := time.Date(2026, 1, 5, 10, 15, 0, 0, time.UTC)
	for _, value := range cases {
		got, err := ParseTimestamp(value)
		if err != nil {
			t.Fatalf("parse %q: %v", value, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parse %q: expected %s, got %s", value, want, got)
		}
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	_, err := ParseTimestamp("yesterday")
	if !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
}

func TestTimeSeries_AddSumsDuplicates(t *testing.T) {
	series, err := NewTimeSeries("MT001")
	if err != nil {
		t.Fatalf("new series: %v", err)
	}
	t1 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	series.Add(t1, 1.5)
	series.Add(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC), 2.5)
	series.Add(time.Date(2026, 1, 5, 9, 45, 0, 0, time.UTC), 1)

	if series.Len() != 2 {
		t.Fatalf("expected 2 timestamps, got %d", series.Len())
	}
	value, ok := series.Value(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC))
	if !ok || value != 4 {
		t.Fatalf("expected summed value 4, got %v (ok=%v)", value, ok)
	}
	stamps := series.Timestamps()
	if !stamps[0].Before(stamps[1]) {
		t.Fatalf("expected ascending timestamps, got %v", stamps)
	}
}

func TestNewTimeSeries_EmptyUsagePoint(t *testing.T) {
	if _, err := NewTimeSeries(" "); !errors.Is(err, ErrEmptyUsagePoint) {
		t.Fatalf("expected ErrEmptyUsagePoint, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("ceeps"); err != nil || f != FormatCEEPS {
		t.Fatalf("expected CEEPS, got %q (%v)", f, err)
	}
	if f, err := ParseFormat(" MQ "); err != nil || f != FormatMQ {
		t.Fatalf("expected MQ, got %q (%v)", f, err)
	}
	if _, err := ParseFormat("xml"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}
