package distribution

import (
	"time"

	readings "metering-dist/internal/readings/domain"
	registry "metering-dist/internal/registry/domain"
)

// RoutedSeries is a time series tagged with its registry assignment.
type RoutedSeries struct {
	Series      *readings.TimeSeries
	Category    registry.Category
	Distributor registry.DistributorID
	PayerName   string
}

// BucketKey identifies a distribution group.
type BucketKey struct {
	Category    registry.Category
	Distributor registry.DistributorID
}

// Less orders keys by category precedence, then distributor id.
func (k BucketKey) Less(other BucketKey) bool {
	if k.Category != other.Category {
		return k.Category.Precedence() < other.Category.Precedence()
	}
	return k.Distributor < other.Distributor
}

// Column is one metering point column of a group.
type Column struct {
	PayerName string
	PointID   string
}

// Cell is a column value at a timestamp. Valid is false when the point had
// no reading at that timestamp.
type Cell struct {
	Value float64
	Valid bool
}

// Row holds the values of all columns at one timestamp.
type Row struct {
	Timestamp time.Time
	Cells     []Cell
}

// Group is the aggregated table of one (category, distributor) bucket.
// Rows are ascending by timestamp and columns follow registry order.
type Group struct {
	Key     BucketKey
	Columns []Column
	Rows    []Row
}

// Empty reports whether the group has nothing to export.
func (g Group) Empty() bool {
	return len(g.Columns) == 0 || len(g.Rows) == 0
}

// ByCategory splits groups per category, preserving order.
func ByCategory(groups []Group) map[registry.Category][]Group {
	result := make(map[registry.Category][]Group)
	for _, group := range groups {
		if group.Empty() {
			continue
		}
		result[group.Key.Category] = append(result[group.Key.Category], group)
	}
	return result
}

// Archive is the packaged output of a run.
type Archive struct {
	Data      []byte
	Workbooks []string
}
