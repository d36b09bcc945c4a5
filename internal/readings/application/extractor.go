package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"metering-dist/internal/diagnostics"
	readings "metering-dist/internal/readings/domain"
)

type normalizeFunc func(e *Extractor, doc readings.Document, diag *diagnostics.Diagnostics) ([]*readings.TimeSeries, error)

// Extractor normalises MQ and CEEPS exports into per-usage-point time series.
type Extractor struct {
	logger      *log.Logger
	normalizers map[readings.Format]normalizeFunc
}

// NewExtractor constructs an extractor.
func NewExtractor(logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	return &Extractor{
		logger: logger,
		normalizers: map[readings.Format]normalizeFunc{
			readings.FormatMQ:    normalizeMQ,
			readings.FormatCEEPS: normalizeCEEPS,
		},
	}
}

// Extract normalises one document.
func (e *Extractor) Extract(doc readings.Document, format readings.Format, diag *diagnostics.Diagnostics) ([]*readings.TimeSeries, error) {
	normalize, ok := e.normalizers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", readings.ErrUnknownFormat, format)
	}
	return normalize(e, doc, diag)
}

// ExtractAll normalises documents independently and concatenates the result
// in upload order. A malformed document is recorded in diag and skipped.
func (e *Extractor) ExtractAll(docs []readings.Document, format readings.Format, diag *diagnostics.Diagnostics) []*readings.TimeSeries {
	var result []*readings.TimeSeries
	for _, doc := range docs {
		series, err := e.Extract(doc, format, diag)
		if err != nil {
			e.logger.Printf("extract %s error: %v", doc.Name, err)
			diag.AddDocumentError(doc.Name, err)
			continue
		}
		result = append(result, series...)
	}
	return result
}

func normalizeMQ(e *Extractor, doc readings.Document, diag *diagnostics.Diagnostics) ([]*readings.TimeSeries, error) {
	keys, exports, err := splitEnvelope(doc.Body, "meterReadings")
	if err != nil {
		return nil, malformed(doc.Name, err)
	}

	var result []*readings.TimeSeries
	for _, key := range keys {
		var export mqExportPayload
		if err := json.Unmarshal(exports[key], &export); err != nil {
			return nil, malformed(doc.Name, err)
		}
		if export.MeterReadings == nil {
			return nil, malformed(doc.Name, errors.New("missing meterReadings"))
		}
		for i, meterReading := range *export.MeterReadings {
			usagePoint := meterReading.UsagePoint.String()
			if usagePoint == "" {
				return nil, malformed(doc.Name, fmt.Errorf("meterReadings[%d]: missing usagePoint", i))
			}
			if meterReading.IntervalBlocks == nil {
				return nil, malformed(doc.Name, fmt.Errorf("meterReadings[%d]: missing intervalBlocks", i))
			}
			blocks := *meterReading.IntervalBlocks
			if len(blocks) == 0 {
				e.note(diag, usagePoint)
				continue
			}
			series, err := e.normalizeBlock(usagePoint, blocks[0], diag)
			if err != nil {
				return nil, malformed(doc.Name, err)
			}
			if series == nil {
				e.note(diag, usagePoint)
				continue
			}
			result = append(result, series)
		}
	}
	return result, nil
}

func normalizeCEEPS(e *Extractor, doc readings.Document, diag *diagnostics.Diagnostics) ([]*readings.TimeSeries, error) {
	keys, points, err := splitEnvelope(doc.Body, "intervalBlocks")
	if err != nil {
		return nil, malformed(doc.Name, err)
	}

	var result []*readings.TimeSeries
	for _, key := range keys {
		var point meterReadingPayload
		if err := json.Unmarshal(points[key], &point); err != nil {
			return nil, malformed(doc.Name, err)
		}
		usagePoint := point.UsagePoint.String()
		if usagePoint == "" {
			usagePoint = key
		}
		if usagePoint == "" {
			return nil, malformed(doc.Name, errors.New("missing usagePoint"))
		}
		if point.IntervalBlocks == nil {
			return nil, malformed(doc.Name, fmt.Errorf("%s: missing intervalBlocks", usagePoint))
		}

		merged, err := readings.NewTimeSeries(usagePoint)
		if err != nil {
			return nil, malformed(doc.Name, err)
		}
		for _, block := range *point.IntervalBlocks {
			series, err := e.normalizeBlock(usagePoint, block, diag)
			if err != nil {
				return nil, malformed(doc.Name, err)
			}
			if series == nil {
				e.note(diag, usagePoint)
				continue
			}
			merged.Merge(series)
		}
		if merged.Len() == 0 {
			continue
		}
		result = append(result, merged)
	}
	return result, nil
}

// normalizeBlock flattens one interval block. It returns nil for a block
// without readings.
func (e *Extractor) normalizeBlock(usagePoint string, block intervalBlockPayload, diag *diagnostics.Diagnostics) (*readings.TimeSeries, error) {
	if len(block.IntervalReadings) == 0 {
		return nil, nil
	}
	series, err := readings.NewTimeSeries(usagePoint)
	if err != nil {
		return nil, err
	}
	flagged := false
	for i, raw := range block.IntervalReadings {
		reading, ok, err := toReading(usagePoint, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: intervalReadings[%d]: %w", usagePoint, i, err)
		}
		if !ok {
			e.logger.Printf("INFO: Missing value for %s at %s.", usagePoint, *raw.Timestamp)
			flagged = true
			continue
		}
		if reading.Flagged() {
			flagged = true
		}
		series.AddReading(reading)
	}
	if flagged {
		diag.AddQualityFlagged(usagePoint)
	}
	if series.Len() == 0 {
		return nil, nil
	}
	return series, nil
}

func toReading(usagePoint string, raw intervalReadingPayload) (readings.Reading, bool, error) {
	if raw.Timestamp == nil {
		return readings.Reading{}, false, errors.New("missing timestamp")
	}
	ts, err := readings.ParseTimestamp(*raw.Timestamp)
	if err != nil {
		return readings.Reading{}, false, err
	}
	if raw.Value == nil || raw.Value.null {
		return readings.Reading{}, false, nil
	}
	return readings.Reading{
		UsagePoint:   usagePoint,
		Timestamp:    ts,
		Quantity:     raw.Value.value,
		QualityFlags: qualityFlags(raw.ReadingQualities),
	}, true, nil
}

func (e *Extractor) note(diag *diagnostics.Diagnostics, usagePoint string) {
	msg := "Empty interval readings for " + usagePoint + "."
	e.logger.Printf("INFO: %s", msg)
	diag.AddNote(msg)
}

func malformed(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", readings.ErrMalformedDocument, name, err)
}
