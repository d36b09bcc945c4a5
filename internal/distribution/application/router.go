package application

import (
	"errors"
	"log"

	"metering-dist/internal/diagnostics"
	distribution "metering-dist/internal/distribution/domain"
	readings "metering-dist/internal/readings/domain"
	registry "metering-dist/internal/registry/domain"
)

// PointLookup resolves a metering point to its registry record.
type PointLookup interface {
	Lookup(pointID string) (registry.MeteringPointRecord, bool)
}

// Router tags time series with their registry assignment.
type Router struct {
	lookup PointLookup
	logger *log.Logger
}

// NewRouter constructs a router.
func NewRouter(lookup PointLookup, logger *log.Logger) (*Router, error) {
	if lookup == nil {
		return nil, errors.New("router: nil lookup")
	}
	if logger == nil {
		return nil, errors.New("router: nil logger")
	}
	return &Router{lookup: lookup, logger: logger}, nil
}

// Route keeps series with a registry record and records the rest in diag.
func (r *Router) Route(series []*readings.TimeSeries, diag *diagnostics.Diagnostics) []distribution.RoutedSeries {
	routed := make([]distribution.RoutedSeries, 0, len(series))
	for _, s := range series {
		if s == nil {
			continue
		}
		record, ok := r.lookup.Lookup(s.UsagePoint)
		if !ok {
			r.logger.Printf("INFO: Could not find distribution for %s.", s.UsagePoint)
			diag.AddUnmatched(s.UsagePoint)
			continue
		}
		routed = append(routed, distribution.RoutedSeries{
			Series:      s,
			Category:    record.Category,
			Distributor: record.Distributor,
			PayerName:   record.PayerName,
		})
	}
	return routed
}
