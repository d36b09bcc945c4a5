package application

import (
	"log"
	"sort"
	"time"

	distribution "metering-dist/internal/distribution/domain"
	registry "metering-dist/internal/registry/domain"
)

// ColumnOrder supplies the registry declaration order of a bucket.
type ColumnOrder interface {
	DeclaredOrder(category registry.Category, distributor registry.DistributorID) []string
}

type columnData struct {
	payerName string
	values    map[time.Time]float64
}

type bucket struct {
	key     distribution.BucketKey
	columns map[string]*columnData
}

// Aggregator accumulates routed series per (category, distributor) bucket.
// Values landing on the same column and timestamp are summed.
type Aggregator struct {
	buckets map[distribution.BucketKey]*bucket
	logger  *log.Logger
}

// NewAggregator constructs an empty aggregator for one run.
func NewAggregator(logger *log.Logger) *Aggregator {
	return &Aggregator{
		buckets: make(map[distribution.BucketKey]*bucket),
		logger:  logger,
	}
}

// Add inserts a routed series into its bucket.
func (a *Aggregator) Add(rs distribution.RoutedSeries) {
	if rs.Series == nil {
		return
	}
	key := distribution.BucketKey{Category: rs.Category, Distributor: rs.Distributor}
	b, ok := a.buckets[key]
	if !ok {
		b = &bucket{key: key, columns: make(map[string]*columnData)}
		a.buckets[key] = b
	}
	col, ok := b.columns[rs.Series.UsagePoint]
	if !ok {
		col = &columnData{payerName: rs.PayerName, values: make(map[time.Time]float64)}
		b.columns[rs.Series.UsagePoint] = col
	}
	for _, ts := range rs.Series.Timestamps() {
		value, _ := rs.Series.Value(ts)
		col.values[ts] += value
	}
}

// AddAll inserts every routed series.
func (a *Aggregator) AddAll(series []distribution.RoutedSeries) {
	for _, rs := range series {
		a.Add(rs)
	}
}

// Groups materialises the non-empty buckets. Columns follow order; columns
// missing from it are dropped. Groups are sorted by category precedence and
// distributor id.
func (a *Aggregator) Groups(order ColumnOrder) []distribution.Group {
	keys := make([]distribution.BucketKey, 0, len(a.buckets))
	for key := range a.buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	var groups []distribution.Group
	for _, key := range keys {
		group := a.buckets[key].materialize(order.DeclaredOrder(key.Category, key.Distributor), a.logger)
		if group.Empty() {
			continue
		}
		groups = append(groups, group)
	}
	return groups
}

func (b *bucket) materialize(declared []string, logger *log.Logger) distribution.Group {
	group := distribution.Group{Key: b.key}

	var kept []*columnData
	placed := make(map[string]bool, len(declared))
	for _, pointID := range declared {
		col, ok := b.columns[pointID]
		if !ok || placed[pointID] {
			continue
		}
		placed[pointID] = true
		kept = append(kept, col)
		group.Columns = append(group.Columns, distribution.Column{PayerName: col.payerName, PointID: pointID})
	}
	if logger != nil {
		for pointID := range b.columns {
			if !placed[pointID] {
				logger.Printf("INFO: Dropping %s from %s/%s, not in registry order.", pointID, b.key.Category, b.key.Distributor.SheetName())
			}
		}
	}

	stamps := make(map[time.Time]struct{})
	for _, col := range kept {
		for ts := range col.values {
			stamps[ts] = struct{}{}
		}
	}
	ordered := make([]time.Time, 0, len(stamps))
	for ts := range stamps {
		ordered = append(ordered, ts)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	group.Rows = make([]distribution.Row, 0, len(ordered))
	for _, ts := range ordered {
		row := distribution.Row{Timestamp: ts, Cells: make([]distribution.Cell, len(kept))}
		for i, col := range kept {
			if value, ok := col.values[ts]; ok {
				row.Cells[i] = distribution.Cell{Value: value, Valid: true}
			}
		}
		group.Rows = append(group.Rows, row)
	}
	return group
}
