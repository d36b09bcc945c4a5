package xlsx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	registry "metering-dist/internal/registry/domain"
)

const (
	ColumnPointID     = "merilna_tocka"
	ColumnDistributor = "distribucija"
	ColumnPayerName   = "naziv_placnika"
)

var requiredColumns = []string{ColumnPointID, ColumnDistributor, ColumnPayerName}

// ReadRecords reads the three category sheets of a registry workbook.
func ReadRecords(r io.Reader) ([]registry.MeteringPointRecord, error) {
	if r == nil {
		return nil, errors.New("registry xlsx: nil reader")
	}
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("registry xlsx: open: %w", err)
	}
	defer f.Close()

	var records []registry.MeteringPointRecord
	for _, category := range registry.Categories {
		sheetRecords, err := readSheet(f, category)
		if err != nil {
			return nil, err
		}
		records = append(records, sheetRecords...)
	}
	return records, nil
}

// Load reads a registry workbook and builds the lookup registry.
func Load(r io.Reader) (*registry.Registry, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return nil, err
	}
	return registry.NewRegistry(records)
}

func readSheet(f *excelize.File, category registry.Category) ([]registry.MeteringPointRecord, error) {
	sheet := category.SheetName()
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %s", registry.ErrMissingSheet, sheet)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("registry xlsx: read %s: %w", sheet, err)
	}

	var header []string
	if len(rows) > 0 {
		header = rows[0]
	}
	columns := make(map[string]int, len(requiredColumns))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, ok := columns[name]; !ok {
			columns[name] = i
		}
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("%w: %s in sheet %s", registry.ErrMissingColumn, name, sheet)
		}
	}

	var records []registry.MeteringPointRecord
	for i, row := range rows[1:] {
		pointID := cell(row, columns[ColumnPointID])
		if pointID == "" {
			continue
		}
		distributor, err := registry.ParseDistributor(cell(row, columns[ColumnDistributor]))
		if err != nil {
			return nil, fmt.Errorf("sheet %s row %d: %w", sheet, i+2, err)
		}
		records = append(records, registry.MeteringPointRecord{
			PointID:     pointID,
			Distributor: distributor,
			PayerName:   cell(row, columns[ColumnPayerName]),
			Category:    category,
			Position:    i,
		})
	}
	return records, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// FileSource reads registry records from a workbook on disk.
type FileSource struct {
	Path string
}

// Load implements registry.Source.
func (s FileSource) Load(_ context.Context) ([]registry.MeteringPointRecord, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("registry xlsx: %w", err)
	}
	defer file.Close()
	return ReadRecords(file)
}
