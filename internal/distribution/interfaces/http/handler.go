package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"metering-dist/internal/diagnostics"
	distapp "metering-dist/internal/distribution/application"
	distribution "metering-dist/internal/distribution/domain"
	distinterfaces "metering-dist/internal/distribution/interfaces"
	readings "metering-dist/internal/readings/domain"
)

const (
	archiveFilename = "files.zip"
	reportFilename  = "diagnostics.pdf"

	defaultMaxUploadBytes = 32 << 20

	timeLayout = time.RFC3339
)

// Handler provides distribution HTTP endpoints.
type Handler struct {
	service        *distapp.Service
	logger         *log.Logger
	defaultFormat  readings.Format
	maxUploadBytes int64
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithDefaultFormat sets the format used when a request omits it.
func WithDefaultFormat(format readings.Format) HandlerOption {
	return func(h *Handler) {
		h.defaultFormat = format
	}
}

// WithMaxUploadBytes limits the multipart request size.
func WithMaxUploadBytes(limit int64) HandlerOption {
	return func(h *Handler) {
		if limit > 0 {
			h.maxUploadBytes = limit
		}
	}
}

// NewHandler constructs a handler.
func NewHandler(service *distapp.Service, logger *log.Logger, opts ...HandlerOption) (*Handler, error) {
	if service == nil {
		return nil, errors.New("distribution handler: nil service")
	}
	if logger == nil {
		return nil, errors.New("distribution handler: nil logger")
	}
	h := &Handler{
		service:        service,
		logger:         logger,
		defaultFormat:  readings.FormatMQ,
		maxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP handles /api/v1/distributions and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/distributions":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleRun(w, r)
	case "/api/v1/distributions/runs":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleRuns(w, r)
	case "/api/v1/distributions/report":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleReport(w, r)
	default:
		id, ok := strings.CutPrefix(r.URL.Path, "/api/v1/distributions/runs/")
		if !ok || id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGetRun(w, r, id)
	}
}

type runResponse struct {
	RunID       string             `json:"run_id"`
	Format      string             `json:"format"`
	Workbooks   []string           `json:"workbooks"`
	Archive     []byte             `json:"archive"`
	Summary     distapp.Summary    `json:"summary"`
	Diagnostics diagnostics.Report `json:"diagnostics"`
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	result, ok := h.run(w, r)
	if !ok {
		return
	}
	writeDiagnosticsHeaders(w, result)

	if r.URL.Query().Get("response") == "json" {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(runResponse{
			RunID:       result.RunID,
			Format:      string(result.Format),
			Workbooks:   nonNil(result.Archive.Workbooks),
			Archive:     result.Archive.Data,
			Summary:     result.Summary,
			Diagnostics: result.Diagnostics.Snapshot(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archiveFilename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Archive.Data)))
	if _, err := w.Write(result.Archive.Data); err != nil {
		h.logger.Printf("write archive error: %v", err)
	}
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	result, ok := h.run(w, r)
	if !ok {
		return
	}
	pdf, err := distinterfaces.BuildDiagnosticsPDF(distinterfaces.ReportInfo{
		RunID:       result.RunID,
		Format:      string(result.Format),
		Documents:   result.Summary.Documents,
		Workbooks:   result.Archive.Workbooks,
		GeneratedAt: result.StartedAt,
	}, result.Diagnostics.Snapshot())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeDiagnosticsHeaders(w, result)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", reportFilename))
	_, _ = w.Write(pdf)
}

type runRecordResponse struct {
	ID           string          `json:"id"`
	Format       string          `json:"format"`
	Status       string          `json:"status"`
	Error        string          `json:"error,omitempty"`
	Documents    int             `json:"documents"`
	SeriesRouted int             `json:"series_routed"`
	Workbooks    []string        `json:"workbooks"`
	Diagnostics  json.RawMessage `json:"diagnostics,omitempty"`
	StartedAt    string          `json:"started_at"`
	FinishedAt   string          `json:"finished_at"`
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if value := r.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	runs, err := h.service.RecentRuns(r.Context(), limit)
	if err != nil {
		if errors.Is(err, distapp.ErrNoHistory) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := make([]runRecordResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toRunRecordResponse(run))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request, id string) {
	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, distapp.ErrNoHistory) || errors.Is(err, distapp.ErrRunNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toRunRecordResponse(*run))
}

func toRunRecordResponse(run distribution.RunRecord) runRecordResponse {
	item := runRecordResponse{
		ID:           run.ID,
		Format:       run.Format,
		Status:       run.Status,
		Error:        run.Error,
		Documents:    run.Documents,
		SeriesRouted: run.SeriesRouted,
		Workbooks:    nonNil(run.Workbooks),
		StartedAt:    run.StartedAt.UTC().Format(timeLayout),
		FinishedAt:   run.FinishedAt.UTC().Format(timeLayout),
	}
	if json.Valid(run.Diagnostics) {
		item.Diagnostics = run.Diagnostics
	}
	return item
}

// run parses the upload and executes the pipeline. It writes the error
// response itself and reports false when the request failed.
func (h *Handler) run(w http.ResponseWriter, r *http.Request) (*distapp.RunResult, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	defer r.MultipartForm.RemoveAll()

	format := h.defaultFormat
	if value := r.FormValue("format"); value != "" {
		parsed, err := readings.ParseFormat(value)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return nil, false
		}
		format = parsed
	}

	docs, err := readDocuments(r.MultipartForm.File["files"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	in := distapp.RunInput{Documents: docs, Format: format}
	if headers := r.MultipartForm.File["registry"]; len(headers) > 0 {
		file, err := headers[0].Open()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return nil, false
		}
		defer file.Close()
		in.Registry = file
	}

	result, err := h.service.Run(r.Context(), in)
	if err != nil {
		h.logger.Printf("distribution run error: %v", err)
		http.Error(w, err.Error(), statusFor(err))
		return nil, false
	}
	return result, true
}

func readDocuments(headers []*multipart.FileHeader) ([]readings.Document, error) {
	docs := make([]readings.Document, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", header.Filename, err)
		}
		body, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", header.Filename, err)
		}
		docs = append(docs, readings.Document{Name: header.Filename, Body: body})
	}
	return docs, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, distapp.ErrRegistryLoad):
		return http.StatusUnprocessableEntity
	case errors.Is(err, distapp.ErrNoDocuments),
		errors.Is(err, distapp.ErrNoRegistry),
		errors.Is(err, readings.ErrUnknownFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeDiagnosticsHeaders(w http.ResponseWriter, result *distapp.RunResult) {
	diag := result.Diagnostics
	header := w.Header()
	header.Set("X-Run-ID", result.RunID)
	header.Set("X-Diagnostics-Unmatched", strconv.Itoa(len(diag.Unmatched())))
	header.Set("X-Diagnostics-Quality-Flagged", strconv.Itoa(len(diag.QualityFlagged())))
	header.Set("X-Diagnostics-Document-Errors", strconv.Itoa(len(diag.DocumentErrors())))
	header.Set("X-Diagnostics-Workbook-Errors", strconv.Itoa(len(diag.WorkbookErrors())))
	header.Set("X-Diagnostics-Notes", strconv.Itoa(len(diag.Notes())))
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
