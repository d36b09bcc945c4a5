package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"metering-dist/internal/diagnostics"
)

// ReportInfo carries run metadata printed on the diagnostics report.
type ReportInfo struct {
	RunID       string
	Format      string
	Documents   int
	Workbooks   []string
	GeneratedAt time.Time
}

// BuildDiagnosticsPDF renders a printable diagnostics report.
func BuildDiagnosticsPDF(info ReportInfo, report diagnostics.Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Distribution Run Diagnostics")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	if info.RunID != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Run: %s", info.RunID))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Format: %s", info.Format))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Documents: %d", info.Documents))
	pdf.Ln(5)
	if !info.GeneratedAt.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", info.GeneratedAt.Format(time.RFC3339)))
		pdf.Ln(5)
	}
	workbooks := "none"
	if len(info.Workbooks) > 0 {
		workbooks = fmt.Sprint(info.Workbooks)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Workbooks: %s", workbooks))
	pdf.Ln(8)

	section := func(title string, lines []string) {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 6, fmt.Sprintf("%s (%d)", title, len(lines)), "B", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		if len(lines) == 0 {
			pdf.CellFormat(0, 6, "-", "", 1, "L", false, 0, "")
		}
		for _, line := range lines {
			pdf.MultiCell(0, 5, tr(line), "", "L", false)
		}
		pdf.Ln(3)
	}

	section("Unmatched metering points", report.Unmatched)
	section("Quality-flagged metering points", report.QualityFlagged)

	docErrors := make([]string, 0, len(report.DocumentErrors))
	for _, e := range report.DocumentErrors {
		docErrors = append(docErrors, fmt.Sprintf("%s: %s", e.Document, e.Error))
	}
	section("Document errors", docErrors)

	wbErrors := make([]string, 0, len(report.WorkbookErrors))
	for _, e := range report.WorkbookErrors {
		wbErrors = append(wbErrors, fmt.Sprintf("%s: %s", e.Workbook, e.Error))
	}
	section("Workbook errors", wbErrors)
	section("Notes", report.Notes)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
