package application

import (
	"io"
	"log"
	"testing"
	"time"

	"metering-dist/internal/diagnostics"
	distribution "metering-dist/internal/distribution/domain"
	readings "metering-dist/internal/readings/domain"
	registry "metering-dist/internal/registry/domain"
)

var (
	t1 = time.Date(2026, 1, 5, 0, 15, 0, 0, time.UTC)
	t2 = time.Date(2026, 1, 5, 0, 30, 0, 0, time.UTC)
	t3 = time.Date(2026, 1, 5, 0, 45, 0, 0, time.UTC)
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func mustSeries(t *testing.T, usagePoint string, values map[time.Time]float64) *readings.TimeSeries {
	t.Helper()
	series, err := readings.NewTimeSeries(usagePoint)
	if err != nil {
		t.Fatalf("new series: %v", err)
	}
	for ts, v := range values {
		series.Add(ts, v)
	}
	return series
}

func mustRegistry(t *testing.T, records ...registry.MeteringPointRecord) *registry.Registry {
	t.Helper()
	reg, err := registry.NewRegistry(records)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg
}

func TestRouter_DropsUnmatchedOnce(t *testing.T) {
	reg := mustRegistry(t, registry.MeteringPointRecord{PointID: "MT001", Distributor: 3, PayerName: "A", Category: registry.CategorySupply})
	router, err := NewRouter(reg, discardLogger())
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	diag := diagnostics.New()
	routed := router.Route([]*readings.TimeSeries{
		mustSeries(t, "MT001", map[time.Time]float64{t1: 1}),
		mustSeries(t, "MT999", map[time.Time]float64{t1: 1}),
		mustSeries(t, "MT999", map[time.Time]float64{t2: 1}),
	}, diag)

	if len(routed) != 1 || routed[0].Series.UsagePoint != "MT001" {
		t.Fatalf("unexpected routed series: %+v", routed)
	}
	if routed[0].Category != registry.CategorySupply || routed[0].Distributor != 3 || routed[0].PayerName != "A" {
		t.Fatalf("unexpected tags: %+v", routed[0])
	}
	unmatched := diag.Unmatched()
	if len(unmatched) != 1 || unmatched[0] != "MT999" {
		t.Fatalf("expected MT999 once, got %v", unmatched)
	}
}

func TestNewRouter_NilLookup(t *testing.T) {
	if _, err := NewRouter(nil, discardLogger()); err == nil {
		t.Fatalf("expected error for nil lookup")
	}
}

func TestAggregator_SumsDuplicateTimestamps(t *testing.T) {
	reg := mustRegistry(t, registry.MeteringPointRecord{PointID: "MT001", Distributor: 3, PayerName: "A", Category: registry.CategorySupply})
	routed := distribution.RoutedSeries{
		Series:      mustSeries(t, "MT001", map[time.Time]float64{t1: 1.5, t2: 2}),
		Category:    registry.CategorySupply,
		Distributor: 3,
		PayerName:   "A",
	}
	partial := distribution.RoutedSeries{
		Series:      mustSeries(t, "MT001", map[time.Time]float64{t1: 0.5}),
		Category:    registry.CategorySupply,
		Distributor: 3,
		PayerName:   "A",
	}

	agg := NewAggregator(discardLogger())
	agg.AddAll([]distribution.RoutedSeries{routed, partial})
	groups := agg.Groups(reg)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	rows := groups[0].Rows
	if len(rows) != 2 || !rows[0].Timestamp.Equal(t1) || !rows[1].Timestamp.Equal(t2) {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].Cells[0].Value != 2 {
		t.Fatalf("expected 1.5+0.5=2, got %v", rows[0].Cells[0].Value)
	}

	// Feeding the same input again doubles the totals.
	agg.AddAll([]distribution.RoutedSeries{routed, partial})
	rows = agg.Groups(reg)[0].Rows
	if rows[0].Cells[0].Value != 4 || rows[1].Cells[0].Value != 4 {
		t.Fatalf("expected additive totals 4 and 4, got %v and %v", rows[0].Cells[0].Value, rows[1].Cells[0].Value)
	}
}

func TestAggregator_ColumnsFollowRegistryOrder(t *testing.T) {
	reg := mustRegistry(t,
		registry.MeteringPointRecord{PointID: "MT002", Distributor: 3, PayerName: "B", Category: registry.CategorySupply, Position: 0},
		registry.MeteringPointRecord{PointID: "MT001", Distributor: 3, PayerName: "A", Category: registry.CategorySupply, Position: 1},
		registry.MeteringPointRecord{PointID: "MT005", Distributor: 3, PayerName: "E", Category: registry.CategorySupply, Position: 2},
	)
	inputs := []distribution.RoutedSeries{
		{Series: mustSeries(t, "MT001", map[time.Time]float64{t1: 1, t3: 3}), Category: registry.CategorySupply, Distributor: 3, PayerName: "A"},
		{Series: mustSeries(t, "MT002", map[time.Time]float64{t2: 2}), Category: registry.CategorySupply, Distributor: 3, PayerName: "B"},
		{Series: mustSeries(t, "MT404", map[time.Time]float64{t1: 9}), Category: registry.CategorySupply, Distributor: 3, PayerName: "X"},
	}

	for _, order := range [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}} {
		agg := NewAggregator(discardLogger())
		for _, idx := range order {
			agg.Add(inputs[idx])
		}
		groups := agg.Groups(reg)
		if len(groups) != 1 {
			t.Fatalf("expected 1 group, got %d", len(groups))
		}
		cols := groups[0].Columns
		if len(cols) != 2 || cols[0].PointID != "MT002" || cols[1].PointID != "MT001" {
			t.Fatalf("order %v: unexpected columns %+v", order, cols)
		}
		rows := groups[0].Rows
		if len(rows) != 3 {
			t.Fatalf("expected 3 rows, got %d", len(rows))
		}
		for i := 1; i < len(rows); i++ {
			if !rows[i-1].Timestamp.Before(rows[i].Timestamp) {
				t.Fatalf("rows not strictly ascending: %v", rows)
			}
		}
		if rows[1].Cells[1].Valid {
			t.Fatalf("expected MT001 to have no value at t2")
		}
	}
}

func TestAggregator_GroupOrderAndEmptyBuckets(t *testing.T) {
	reg := mustRegistry(t,
		registry.MeteringPointRecord{PointID: "S7", Distributor: 7, Category: registry.CategorySupply},
		registry.MeteringPointRecord{PointID: "S2", Distributor: 2, Category: registry.CategorySupply},
		registry.MeteringPointRecord{PointID: "P4", Distributor: 4, Category: registry.CategoryPurchase},
	)
	agg := NewAggregator(discardLogger())
	agg.Add(distribution.RoutedSeries{Series: mustSeries(t, "P4", map[time.Time]float64{t1: 1}), Category: registry.CategoryPurchase, Distributor: 4})
	agg.Add(distribution.RoutedSeries{Series: mustSeries(t, "S7", map[time.Time]float64{t1: 1}), Category: registry.CategorySupply, Distributor: 7})
	agg.Add(distribution.RoutedSeries{Series: mustSeries(t, "S2", map[time.Time]float64{t1: 1}), Category: registry.CategorySupply, Distributor: 2})
	// Not declared for support/6, so the bucket ends up empty.
	agg.Add(distribution.RoutedSeries{Series: mustSeries(t, "S2", map[time.Time]float64{t1: 1}), Category: registry.CategorySupport, Distributor: 6})

	groups := agg.Groups(reg)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	want := []distribution.BucketKey{
		{Category: registry.CategorySupply, Distributor: 2},
		{Category: registry.CategorySupply, Distributor: 7},
		{Category: registry.CategoryPurchase, Distributor: 4},
	}
	for i, key := range want {
		if groups[i].Key != key {
			t.Fatalf("group %d: expected %+v, got %+v", i, key, groups[i].Key)
		}
	}
}
