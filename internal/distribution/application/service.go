package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"metering-dist/internal/diagnostics"
	distribution "metering-dist/internal/distribution/domain"
	"metering-dist/internal/notify"
	"metering-dist/internal/observability/metrics"
	readingsapp "metering-dist/internal/readings/application"
	readings "metering-dist/internal/readings/domain"
	registry "metering-dist/internal/registry/domain"
)

var (
	ErrRegistryLoad = errors.New("distribution: registry load failed")
	ErrNoDocuments  = errors.New("distribution: no documents")
	ErrNoRegistry   = errors.New("distribution: no registry workbook or source")
	ErrNoHistory    = errors.New("distribution: run history not configured")
	ErrRunNotFound  = errors.New("distribution: run not found")
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ArchiveBuilder packages aggregated groups.
type ArchiveBuilder interface {
	BuildArchive(groups []distribution.Group, diag *diagnostics.Diagnostics) (*distribution.Archive, error)
}

// RunHistory persists run records.
type RunHistory interface {
	Record(ctx context.Context, run distribution.RunRecord) error
	ListRecent(ctx context.Context, limit int) ([]distribution.RunRecord, error)
	// GetRun returns nil without error when the id is unknown.
	GetRun(ctx context.Context, id string) (*distribution.RunRecord, error)
}

// RecordReader parses registry records from an uploaded workbook.
type RecordReader func(r io.Reader) ([]registry.MeteringPointRecord, error)

// RunInput is one distribution request.
type RunInput struct {
	Documents []readings.Document
	Format    readings.Format
	// Registry is an uploaded registry workbook. When nil the configured
	// registry source is used.
	Registry io.Reader
}

// Summary counts what a run processed.
type Summary struct {
	Documents       int `json:"documents"`
	SeriesExtracted int `json:"series_extracted"`
	SeriesRouted    int `json:"series_routed"`
	RegistryPoints  int `json:"registry_points"`
	Groups          int `json:"groups"`
}

// RunResult is the outcome of a successful run.
type RunResult struct {
	RunID       string
	StartedAt   time.Time
	Format      readings.Format
	Archive     *distribution.Archive
	Diagnostics *diagnostics.Diagnostics
	Summary     Summary
}

// Service runs the extract, route, aggregate and export pipeline.
type Service struct {
	extractor   *readingsapp.Extractor
	exporter    ArchiveBuilder
	logger      *log.Logger
	readRecords RecordReader
	source      registry.Source
	sourceName  string
	notifier    notify.Notifier
	history     RunHistory
	clock       Clock
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithRecordReader sets the parser for uploaded registry workbooks.
func WithRecordReader(read RecordReader) ServiceOption {
	return func(s *Service) {
		s.readRecords = read
	}
}

// WithRegistrySource sets the registry used when a run has no upload.
func WithRegistrySource(name string, source registry.Source) ServiceOption {
	return func(s *Service) {
		s.source = source
		s.sourceName = name
	}
}

// WithNotifier sets the notifier for runs with diagnostics.
func WithNotifier(n notify.Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithRunHistory records every run.
func WithRunHistory(history RunHistory) ServiceOption {
	return func(s *Service) {
		s.history = history
	}
}

// WithClock overrides the clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs the pipeline service.
func NewService(extractor *readingsapp.Extractor, exporter ArchiveBuilder, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if extractor == nil {
		return nil, errors.New("distribution service: nil extractor")
	}
	if exporter == nil {
		return nil, errors.New("distribution service: nil exporter")
	}
	if logger == nil {
		return nil, errors.New("distribution service: nil logger")
	}
	s := &Service{
		extractor: extractor,
		exporter:  exporter,
		logger:    logger,
		notifier:  notify.Nop{},
		clock:     SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run processes one batch of documents. A registry failure aborts the run
// before any output is produced. Per-document and per-workbook failures are
// collected in the result diagnostics.
func (s *Service) Run(ctx context.Context, in RunInput) (result *RunResult, err error) {
	started := s.clock.Now()
	runID := newRunID()
	defer func() {
		outcome := metrics.ResultSuccess
		if err != nil {
			outcome = metrics.ResultError
		}
		metrics.ObserveRun(outcome, time.Since(started))
		s.record(ctx, runID, started, in, result, err)
	}()

	if len(in.Documents) == 0 {
		return nil, ErrNoDocuments
	}
	format, err := readings.ParseFormat(string(in.Format))
	if err != nil {
		return nil, err
	}

	reg, err := s.loadRegistry(ctx, in.Registry)
	if err != nil {
		return nil, err
	}

	diag := diagnostics.New()
	for _, id := range reg.Duplicates() {
		diag.AddNote(fmt.Sprintf("Metering point %s is listed in more than one category.", id))
	}

	series := s.extractor.ExtractAll(in.Documents, format, diag)
	failed := len(diag.DocumentErrors())
	metrics.AddDocuments(string(format), metrics.ResultSuccess, len(in.Documents)-failed)
	metrics.AddDocuments(string(format), metrics.ResultError, failed)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	router, err := NewRouter(reg, s.logger)
	if err != nil {
		return nil, err
	}
	routed := router.Route(series, diag)
	metrics.AddSeries(metrics.OutcomeRouted, len(routed))
	metrics.AddSeries(metrics.OutcomeUnmatched, len(diag.Unmatched()))
	metrics.AddSeries(metrics.OutcomeQualityFlagged, len(diag.QualityFlagged()))

	agg := NewAggregator(s.logger)
	agg.AddAll(routed)
	groups := agg.Groups(reg)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	archive, err := s.exporter.BuildArchive(groups, diag)
	if err != nil {
		return nil, fmt.Errorf("distribution: export: %w", err)
	}

	result = &RunResult{
		RunID:       runID,
		StartedAt:   started,
		Format:      format,
		Archive:     archive,
		Diagnostics: diag,
		Summary: Summary{
			Documents:       len(in.Documents),
			SeriesExtracted: len(series),
			SeriesRouted:    len(routed),
			RegistryPoints:  reg.Len(),
			Groups:          len(groups),
		},
	}
	s.logger.Printf("run %s: %d documents, %d series, %d routed, workbooks %v",
		runID, len(in.Documents), len(series), len(routed), archive.Workbooks)
	s.notify(ctx, result)
	return result, nil
}

// RecentRuns lists recorded runs, newest first.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]distribution.RunRecord, error) {
	if s.history == nil {
		return nil, ErrNoHistory
	}
	return s.history.ListRecent(ctx, limit)
}

// GetRun returns a single recorded run.
func (s *Service) GetRun(ctx context.Context, id string) (*distribution.RunRecord, error) {
	if s.history == nil {
		return nil, ErrNoHistory
	}
	run, err := s.history.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

func (s *Service) record(ctx context.Context, runID string, started time.Time, in RunInput, result *RunResult, runErr error) {
	if s.history == nil {
		return
	}
	run := distribution.RunRecord{
		ID:         runID,
		Format:     string(in.Format),
		Status:     distribution.RunStatusSucceeded,
		Documents:  len(in.Documents),
		StartedAt:  started,
		FinishedAt: s.clock.Now(),
	}
	if runErr != nil {
		run.Status = distribution.RunStatusFailed
		run.Error = runErr.Error()
	}
	if result != nil {
		run.Format = string(result.Format)
		run.SeriesRouted = result.Summary.SeriesRouted
		run.Workbooks = result.Archive.Workbooks
		if raw, err := json.Marshal(result.Diagnostics.Snapshot()); err == nil {
			run.Diagnostics = raw
		}
	}
	if err := s.history.Record(ctx, run); err != nil {
		s.logger.Printf("record run %s error: %v", runID, err)
	}
}

func (s *Service) loadRegistry(ctx context.Context, upload io.Reader) (*registry.Registry, error) {
	var (
		records []registry.MeteringPointRecord
		source  string
		err     error
	)
	switch {
	case upload != nil:
		source = "upload"
		if s.readRecords == nil {
			err = errors.New("no workbook reader configured")
		} else {
			records, err = s.readRecords(upload)
		}
	case s.source != nil:
		source = s.sourceName
		records, err = s.source.Load(ctx)
	default:
		return nil, ErrNoRegistry
	}

	var reg *registry.Registry
	if err == nil {
		reg, err = registry.NewRegistry(records)
	}
	if err != nil {
		metrics.IncRegistryLoad(source, metrics.ResultError)
		s.logger.Printf("registry load (%s) error: %v", source, err)
		return nil, fmt.Errorf("%w: %w", ErrRegistryLoad, err)
	}
	metrics.IncRegistryLoad(source, metrics.ResultSuccess)
	return reg, nil
}

func (s *Service) notify(ctx context.Context, result *RunResult) {
	diag := result.Diagnostics
	if diag.Empty() {
		return
	}
	msg := notify.RunMessage{
		RunID:          result.RunID,
		Format:         string(result.Format),
		Documents:      result.Summary.Documents,
		Workbooks:      result.Archive.Workbooks,
		Unmatched:      diag.Unmatched(),
		QualityFlagged: diag.QualityFlagged(),
		DocumentErrors: len(diag.DocumentErrors()),
		WorkbookErrors: len(diag.WorkbookErrors()),
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Printf("notify run %s error: %v", result.RunID, err)
	}
}

func newRunID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf[:])
}
