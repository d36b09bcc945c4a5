package application

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	distribution "metering-dist/internal/distribution/domain"
	distinterfaces "metering-dist/internal/distribution/interfaces"
	"metering-dist/internal/notify"
	readingsapp "metering-dist/internal/readings/application"
	readings "metering-dist/internal/readings/domain"
	registry "metering-dist/internal/registry/domain"
	"metering-dist/internal/registry/infrastructure/xlsx"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recordingNotifier struct {
	messages []notify.RunMessage
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.RunMessage) error {
	n.messages = append(n.messages, msg)
	return n.err
}

type memoryHistory struct {
	runs []distribution.RunRecord
}

func (h *memoryHistory) Record(_ context.Context, run distribution.RunRecord) error {
	h.runs = append(h.runs, run)
	return nil
}

func (h *memoryHistory) ListRecent(_ context.Context, limit int) ([]distribution.RunRecord, error) {
	if limit > len(h.runs) {
		limit = len(h.runs)
	}
	return h.runs[:limit], nil
}

func (h *memoryHistory) GetRun(_ context.Context, id string) (*distribution.RunRecord, error) {
	for i := range h.runs {
		if h.runs[i].ID == id {
			run := h.runs[i]
			return &run, nil
		}
	}
	return nil, nil
}

type staticSource struct {
	records []registry.MeteringPointRecord
	err     error
}

func (s staticSource) Load(context.Context) ([]registry.MeteringPointRecord, error) {
	return s.records, s.err
}

var registryHeader = []interface{}{"merilna_tocka", "distribucija", "naziv_placnika"}

func registryWorkbook(t *testing.T, sheets map[string][][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for _, name := range []string{"dobava", "odkup", "obratovalna_podpora"} {
		if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("new sheet: %v", err)
		}
		rows, ok := sheets[name]
		if !ok {
			rows = [][]interface{}{registryHeader}
		}
		for i, row := range rows {
			row := row
			if err := f.SetSheetRow(name, fmt.Sprintf("A%d", i+1), &row); err != nil {
				t.Fatalf("set row: %v", err)
			}
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		t.Fatalf("delete sheet: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write registry: %v", err)
	}
	return buf
}

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	exporter, err := distinterfaces.NewExporter(discardLogger())
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	opts = append([]ServiceOption{WithRecordReader(xlsx.ReadRecords), WithClock(fixedClock{now: t1})}, opts...)
	svc, err := NewService(readingsapp.NewExtractor(discardLogger()), exporter, discardLogger(), opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func mqDoc(name, usagePoint string) readings.Document {
	body := fmt.Sprintf(`{"meterReadings": [{"usagePoint": %q, "intervalBlocks": [{"intervalReadings": [
		{"timestamp": "2026-01-05T00:15:00+01:00", "value": 1.5, "readingQualities": []},
		{"timestamp": "2026-01-05T00:30:00+01:00", "value": 2.5, "readingQualities": []}
	]}]}]}`, usagePoint)
	return readings.Document{Name: name, Body: []byte(body)}
}

const ceepsSplitDoc = `{
  "MT003": {
    "usagePoint": "MT003",
    "intervalBlocks": [
      {"intervalReadings": [
        {"timestamp": "2026-01-05T00:15:00+01:00", "value": 1, "readingQualities": [{"ref": "1.4.9"}]},
        {"timestamp": "2026-01-05T00:30:00+01:00", "value": 2, "readingQualities": [{"ref": "1.4.9"}]}
      ]},
      {"intervalReadings": [
        {"timestamp": "2026-01-05T00:45:00+01:00", "value": 3, "readingQualities": []}
      ]}
    ]
  }
}`

func workbookRows(t *testing.T, archive []byte, workbook, sheet string) [][]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	for _, file := range zr.File {
		if file.Name != workbook {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			t.Fatalf("open %s: %v", workbook, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", workbook, err)
		}
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("open workbook: %v", err)
		}
		defer f.Close()
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			t.Fatalf("rows %s/%s: %v", workbook, sheet, err)
		}
		return rows
	}
	t.Fatalf("workbook %s not in archive", workbook)
	return nil
}

func TestRun_TwoMQDocumentsShareOneSheet(t *testing.T) {
	reg := registryWorkbook(t, map[string][][]interface{}{
		"dobava": {registryHeader, {"MT002", 3, "Payer B"}, {"MT001", 3, "Payer A"}},
	})
	result, err := newTestService(t).Run(context.Background(), RunInput{
		Documents: []readings.Document{mqDoc("a.json", "MT001"), mqDoc("b.json", "MT002")},
		Format:    readings.FormatMQ,
		Registry:  reg,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Archive.Workbooks) != 1 || result.Archive.Workbooks[0] != "Odjem.xlsx" {
		t.Fatalf("unexpected workbooks: %v", result.Archive.Workbooks)
	}
	rows := workbookRows(t, result.Archive.Data, "Odjem.xlsx", "3_Elektro_Ljubljana")
	if len(rows) != distinterfaces.FirstDataRow+1 {
		t.Fatalf("expected 2 data rows, got %d rows", len(rows))
	}
	if rows[1][1] != "MT002" || rows[1][2] != "MT001" {
		t.Fatalf("expected registry column order, got %v", rows[1])
	}
	if !result.Diagnostics.Empty() {
		t.Fatalf("expected clean diagnostics, got %+v", result.Diagnostics.Snapshot())
	}
	if result.Summary.SeriesExtracted != 2 || result.Summary.SeriesRouted != 2 {
		t.Fatalf("unexpected summary: %+v", result.Summary)
	}
	if result.RunID == "" || !result.StartedAt.Equal(t1) {
		t.Fatalf("unexpected run metadata: %q %s", result.RunID, result.StartedAt)
	}
}

func TestRun_CEEPSBlocksMergeAndFlagOnce(t *testing.T) {
	reg := registryWorkbook(t, map[string][][]interface{}{
		"odkup": {registryHeader, {"MT003", 2, "Seller"}},
	})
	result, err := newTestService(t).Run(context.Background(), RunInput{
		Documents: []readings.Document{{Name: "c.json", Body: []byte(ceepsSplitDoc)}},
		Format:    "ceeps",
		Registry:  reg,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Format != readings.FormatCEEPS {
		t.Fatalf("expected normalised format, got %q", result.Format)
	}
	if result.Summary.SeriesExtracted != 1 {
		t.Fatalf("expected one merged series, got %d", result.Summary.SeriesExtracted)
	}
	rows := workbookRows(t, result.Archive.Data, "Oddaja.xlsx", "2_Elektro_Celje")
	if len(rows) != distinterfaces.FirstDataRow+2 {
		t.Fatalf("expected 3 data rows, got %d rows", len(rows))
	}
	if rows[1][1] != "MT003" {
		t.Fatalf("expected MT003 column, got %v", rows[1])
	}
	flagged := result.Diagnostics.QualityFlagged()
	if len(flagged) != 1 || flagged[0] != "MT003" {
		t.Fatalf("expected MT003 flagged once, got %v", flagged)
	}
}

func TestRun_MissingRegistryColumnIsFatal(t *testing.T) {
	reg := registryWorkbook(t, map[string][][]interface{}{
		"dobava": {{"merilna_tocka", "naziv_placnika"}, {"MT001", "Payer A"}},
	})
	result, err := newTestService(t).Run(context.Background(), RunInput{
		Documents: []readings.Document{mqDoc("a.json", "MT001")},
		Format:    readings.FormatMQ,
		Registry:  reg,
	})
	if !errors.Is(err, ErrRegistryLoad) || !errors.Is(err, registry.ErrMissingColumn) {
		t.Fatalf("expected registry load error, got %v", err)
	}
	if result != nil {
		t.Fatalf("expected no result on registry failure")
	}
}

func TestRun_UsesConfiguredSourceAndNotifies(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	source := staticSource{records: []registry.MeteringPointRecord{
		{PointID: "MT001", Distributor: 7, PayerName: "Payer A", Category: registry.CategorySupport},
	}}
	svc := newTestService(t, WithRegistrySource("postgres", source), WithNotifier(notifier))
	result, err := svc.Run(context.Background(), RunInput{
		Documents: []readings.Document{
			mqDoc("a.json", "MT001"),
			mqDoc("b.json", "MT999"),
			{Name: "broken.json", Body: []byte(`{"meterReadings": 5}`)},
		},
		Format: readings.FormatMQ,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Archive.Workbooks) != 1 || result.Archive.Workbooks[0] != "Obratovalna_podpora.xlsx" {
		t.Fatalf("unexpected workbooks: %v", result.Archive.Workbooks)
	}
	if len(result.Diagnostics.DocumentErrors()) != 1 {
		t.Fatalf("expected one document error, got %+v", result.Diagnostics.DocumentErrors())
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.messages))
	}
	msg := notifier.messages[0]
	if len(msg.Unmatched) != 1 || msg.Unmatched[0] != "MT999" || msg.DocumentErrors != 1 {
		t.Fatalf("unexpected notification: %+v", msg)
	}
}

func TestRun_RejectsBadInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Run(ctx, RunInput{Format: readings.FormatMQ}); !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("expected ErrNoDocuments, got %v", err)
	}
	docs := []readings.Document{mqDoc("a.json", "MT001")}
	if _, err := svc.Run(ctx, RunInput{Documents: docs, Format: "XML"}); !errors.Is(err, readings.ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
	if _, err := svc.Run(ctx, RunInput{Documents: docs, Format: readings.FormatMQ}); !errors.Is(err, ErrNoRegistry) {
		t.Fatalf("expected ErrNoRegistry, got %v", err)
	}
}

func TestRun_RecordsHistory(t *testing.T) {
	history := &memoryHistory{}
	svc := newTestService(t, WithRunHistory(history))
	ctx := context.Background()

	reg := registryWorkbook(t, map[string][][]interface{}{
		"dobava": {registryHeader, {"MT001", 6, "Payer A"}},
	})
	result, err := svc.Run(ctx, RunInput{
		Documents: []readings.Document{mqDoc("a.json", "MT001")},
		Format:    readings.FormatMQ,
		Registry:  reg,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := svc.Run(ctx, RunInput{Format: readings.FormatMQ}); err == nil {
		t.Fatalf("expected failed run")
	}

	runs, err := svc.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 recorded runs, got %d", len(runs))
	}
	ok := runs[0]
	if ok.ID != result.RunID || ok.Status != distribution.RunStatusSucceeded || ok.SeriesRouted != 1 {
		t.Fatalf("unexpected success record: %+v", ok)
	}
	if len(ok.Workbooks) != 1 || ok.Workbooks[0] != "Odjem.xlsx" || len(ok.Diagnostics) == 0 {
		t.Fatalf("unexpected success record: %+v", ok)
	}
	if runs[1].Status != distribution.RunStatusFailed || runs[1].Error == "" {
		t.Fatalf("unexpected failure record: %+v", runs[1])
	}
}

func TestRecentRuns_WithoutHistory(t *testing.T) {
	if _, err := newTestService(t).RecentRuns(context.Background(), 5); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
	if _, err := newTestService(t).GetRun(context.Background(), "run-1"); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
}

func TestGetRun(t *testing.T) {
	history := &memoryHistory{runs: []distribution.RunRecord{
		{ID: "run-1", Status: distribution.RunStatusSucceeded},
	}}
	svc := newTestService(t, WithRunHistory(history))

	run, err := svc.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.ID != "run-1" || run.Status != distribution.RunStatusSucceeded {
		t.Fatalf("unexpected run: %+v", run)
	}
	if _, err := svc.GetRun(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
