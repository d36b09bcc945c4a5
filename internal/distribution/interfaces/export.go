package interfaces

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/xuri/excelize/v2"

	"metering-dist/internal/diagnostics"
	distribution "metering-dist/internal/distribution/domain"
	"metering-dist/internal/observability/metrics"
	registry "metering-dist/internal/registry/domain"
)

const (
	// TimestampHeader is the title of the first column of every sheet.
	TimestampHeader = "timestamp"
	// FirstDataRow is the 1-based row of the first timestamp.
	FirstDataRow = 4

	timestampNumFmt = "yyyy-mm-dd hh:mm:ss"
	timestampWidth  = 19
	minColumnWidth  = 8
	maxColumnWidth  = 60
)

// Layout controls sheet presentation.
type Layout struct {
	// Formatting applies the hidden spacer row, column widths and selection.
	Formatting bool
	// FixedColumnPixels is the width of the column at index 1.
	FixedColumnPixels int
	// Selection is the cell selected when the sheet opens.
	Selection string
}

// DefaultLayout matches the workbooks expected by downstream tooling.
func DefaultLayout() Layout {
	return Layout{Formatting: true, FixedColumnPixels: 130, Selection: "C4"}
}

// WorkbookBuilder renders one category workbook.
type WorkbookBuilder func(category registry.Category, groups []distribution.Group, layout Layout) ([]byte, error)

// Exporter packages category workbooks into a zip archive.
type Exporter struct {
	layout Layout
	logger *log.Logger
	build  WorkbookBuilder
}

// ExporterOption configures an exporter.
type ExporterOption func(*Exporter)

// WithLayout overrides the sheet layout.
func WithLayout(layout Layout) ExporterOption {
	return func(e *Exporter) {
		e.layout = layout
	}
}

// WithWorkbookBuilder overrides how workbooks are rendered.
func WithWorkbookBuilder(build WorkbookBuilder) ExporterOption {
	return func(e *Exporter) {
		if build != nil {
			e.build = build
		}
	}
}

// NewExporter constructs an exporter.
func NewExporter(logger *log.Logger, opts ...ExporterOption) (*Exporter, error) {
	if logger == nil {
		return nil, errors.New("exporter: nil logger")
	}
	e := &Exporter{layout: DefaultLayout(), logger: logger, build: BuildWorkbook}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// BuildArchive writes one workbook per category with data. A workbook that
// fails to render is logged, recorded in diag and left out.
func (e *Exporter) BuildArchive(groups []distribution.Group, diag *diagnostics.Diagnostics) (*distribution.Archive, error) {
	byCategory := distribution.ByCategory(groups)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	result := &distribution.Archive{}
	for _, category := range registry.Categories {
		categoryGroups := byCategory[category]
		if len(categoryGroups) == 0 {
			continue
		}
		name := category.WorkbookName()
		data, err := e.build(category, categoryGroups, e.layout)
		if err != nil {
			e.logger.Printf("ERROR - Could not write: %s: %v", name, err)
			diag.AddWorkbookError(name, err)
			metrics.IncWorkbook(string(category), metrics.ResultError)
			continue
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()})
		if err != nil {
			return nil, fmt.Errorf("exporter: archive %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("exporter: archive %s: %w", name, err)
		}
		metrics.IncWorkbook(string(category), metrics.ResultSuccess)
		result.Workbooks = append(result.Workbooks, name)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("exporter: close archive: %w", err)
	}
	result.Data = buf.Bytes()
	return result, nil
}

// BuildWorkbook renders one sheet per distributor group.
//
// Sheet layout: row 1 holds the timestamp title and payer names, row 2 the
// metering point ids, row 3 is a spacer and data starts at FirstDataRow.
func BuildWorkbook(category registry.Category, groups []distribution.Group, layout Layout) ([]byte, error) {
	if len(groups) == 0 {
		return nil, fmt.Errorf("exporter: no groups for %s", category)
	}
	f := excelize.NewFile()
	defer f.Close()

	numFmt := timestampNumFmt
	tsStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return nil, err
	}

	for i, group := range groups {
		if group.Key.Category != category {
			return nil, fmt.Errorf("exporter: group %s/%d in %s workbook", group.Key.Category, group.Key.Distributor, category)
		}
		sheet := group.Key.Distributor.SheetName()
		if sheet == "" {
			return nil, fmt.Errorf("exporter: unknown distributor %d", group.Key.Distributor)
		}
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
		if err := writeGroup(f, sheet, group, tsStyle); err != nil {
			return nil, fmt.Errorf("exporter: sheet %s: %w", sheet, err)
		}
		if layout.Formatting {
			if err := formatSheet(f, sheet, group, layout); err != nil {
				return nil, fmt.Errorf("exporter: format %s: %w", sheet, err)
			}
		}
	}
	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeGroup(f *excelize.File, sheet string, group distribution.Group, tsStyle int) error {
	payers := make([]interface{}, 0, len(group.Columns)+1)
	points := make([]interface{}, 0, len(group.Columns)+1)
	payers = append(payers, TimestampHeader)
	points = append(points, "")
	for _, col := range group.Columns {
		payers = append(payers, col.PayerName)
		points = append(points, col.PointID)
	}
	if err := f.SetSheetRow(sheet, "A1", &payers); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A2", &points); err != nil {
		return err
	}

	for i, row := range group.Rows {
		rowNum := FirstDataRow + i
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, row.Timestamp); err != nil {
			return err
		}
		for j, value := range row.Cells {
			if !value.Valid {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+2, rowNum)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value.Value); err != nil {
				return err
			}
		}
	}
	if len(group.Rows) > 0 {
		last := fmt.Sprintf("A%d", FirstDataRow+len(group.Rows)-1)
		if err := f.SetCellStyle(sheet, fmt.Sprintf("A%d", FirstDataRow), last, tsStyle); err != nil {
			return err
		}
	}
	return nil
}

func formatSheet(f *excelize.File, sheet string, group distribution.Group, layout Layout) error {
	if err := f.SetRowVisible(sheet, 3, false); err != nil {
		return err
	}
	for i, width := range columnWidths(group) {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if i == 1 && layout.FixedColumnPixels > 0 {
			width = pixelsToWidth(layout.FixedColumnPixels)
		}
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return err
		}
	}
	if layout.Selection != "" {
		return f.SetPanes(sheet, &excelize.Panes{
			Selection: []excelize.Selection{{SQRef: layout.Selection, ActiveCell: layout.Selection}},
		})
	}
	return nil
}

// columnWidths approximates content widths in character units.
func columnWidths(group distribution.Group) []float64 {
	widths := make([]float64, len(group.Columns)+1)
	widths[0] = fitWidth(max(len(TimestampHeader), timestampWidth))
	for i, col := range group.Columns {
		longest := max(len([]rune(col.PayerName)), len([]rune(col.PointID)))
		for _, row := range group.Rows {
			if row.Cells[i].Valid {
				longest = max(longest, len(fmt.Sprint(row.Cells[i].Value)))
			}
		}
		widths[i+1] = fitWidth(longest)
	}
	return widths
}

func fitWidth(chars int) float64 {
	width := float64(chars + 2)
	if width < minColumnWidth {
		return minColumnWidth
	}
	if width > maxColumnWidth {
		return maxColumnWidth
	}
	return width
}

// pixelsToWidth converts pixels to character units for the default font.
func pixelsToWidth(px int) float64 {
	if px <= 5 {
		return 0
	}
	return float64(px-5) / 7
}
