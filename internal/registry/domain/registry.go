package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// MeteringPointRecord assigns a metering point to a distributor and category.
type MeteringPointRecord struct {
	PointID     string
	Distributor DistributorID
	PayerName   string
	Category    Category
	// Position is the row order of the record within its category sheet.
	Position int
}

// Validate checks record invariants.
func (r MeteringPointRecord) Validate() error {
	if strings.TrimSpace(r.PointID) == "" {
		return ErrEmptyPointID
	}
	if !r.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, r.Category)
	}
	if !r.Distributor.Valid() {
		return fmt.Errorf("%w: %d (point %s)", ErrInvalidDistributor, r.Distributor, r.PointID)
	}
	return nil
}

// Source loads registry records.
type Source interface {
	Load(ctx context.Context) ([]MeteringPointRecord, error)
}

type lookupTable struct {
	category Category
	records  map[string]MeteringPointRecord
	order    map[DistributorID][]string
}

// Registry resolves metering points against ordered per-category tables.
// Tables are probed in Categories order and the first match wins; within a
// table the first row of a point wins.
type Registry struct {
	tables     []*lookupTable
	duplicates []string
	size       int
}

// NewRegistry builds a registry from records of all categories.
func NewRegistry(records []MeteringPointRecord) (*Registry, error) {
	sorted := make([]MeteringPointRecord, len(records))
	copy(sorted, records)
	for i := range sorted {
		sorted[i].PointID = strings.TrimSpace(sorted[i].PointID)
		if err := sorted[i].Validate(); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := sorted[i].Category.Precedence(), sorted[j].Category.Precedence()
		if pi != pj {
			return pi < pj
		}
		return sorted[i].Position < sorted[j].Position
	})

	reg := &Registry{}
	byCategory := make(map[Category]*lookupTable, len(Categories))
	for _, category := range Categories {
		table := &lookupTable{
			category: category,
			records:  make(map[string]MeteringPointRecord),
			order:    make(map[DistributorID][]string),
		}
		byCategory[category] = table
		reg.tables = append(reg.tables, table)
	}

	seenIn := make(map[string]Category)
	duplicated := make(map[string]bool)
	for _, record := range sorted {
		table := byCategory[record.Category]
		if _, exists := table.records[record.PointID]; exists {
			continue
		}
		table.records[record.PointID] = record
		table.order[record.Distributor] = append(table.order[record.Distributor], record.PointID)
		reg.size++

		first, ok := seenIn[record.PointID]
		if !ok {
			seenIn[record.PointID] = record.Category
			continue
		}
		if first != record.Category && !duplicated[record.PointID] {
			duplicated[record.PointID] = true
			reg.duplicates = append(reg.duplicates, record.PointID)
		}
	}
	return reg, nil
}

// Lookup returns the record of a metering point using category precedence.
func (r *Registry) Lookup(pointID string) (MeteringPointRecord, bool) {
	pointID = strings.TrimSpace(pointID)
	for _, table := range r.tables {
		if record, ok := table.records[pointID]; ok {
			return record, true
		}
	}
	return MeteringPointRecord{}, false
}

// DeclaredOrder returns metering point ids of a category and distributor in
// registry row order.
func (r *Registry) DeclaredOrder(category Category, distributor DistributorID) []string {
	for _, table := range r.tables {
		if table.category == category {
			return append([]string(nil), table.order[distributor]...)
		}
	}
	return nil
}

// Duplicates returns ids present in more than one category sheet.
// Such points resolve to the earliest category.
func (r *Registry) Duplicates() []string {
	return append([]string(nil), r.duplicates...)
}

// Len returns the number of distinct (category, point) records.
func (r *Registry) Len() int {
	return r.size
}
