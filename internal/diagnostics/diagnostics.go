package diagnostics

import "sync"

// DocumentError describes an input document that could not be processed.
type DocumentError struct {
	Document string `json:"document"`
	Error    string `json:"error"`
}

// WorkbookError describes a category workbook that could not be written.
type WorkbookError struct {
	Workbook string `json:"workbook"`
	Error    string `json:"error"`
}

// Diagnostics collects non-fatal findings of a single run.
// A fresh value is created per run and returned to the caller.
type Diagnostics struct {
	mu sync.Mutex

	unmatched      []string
	unmatchedSeen  map[string]struct{}
	qualityFlagged []string
	qualitySeen    map[string]struct{}
	notes          []string
	documentErrors []DocumentError
	workbookErrors []WorkbookError
}

// New constructs an empty collector.
func New() *Diagnostics {
	return &Diagnostics{
		unmatchedSeen: make(map[string]struct{}),
		qualitySeen:   make(map[string]struct{}),
	}
}

// AddUnmatched records a metering point without a registry record.
// Each id is kept once, in first-seen order.
func (d *Diagnostics) AddUnmatched(id string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.unmatchedSeen[id]; ok {
		return
	}
	d.unmatchedSeen[id] = struct{}{}
	d.unmatched = append(d.unmatched, id)
}

// AddQualityFlagged records a metering point whose readings carried quality flags.
func (d *Diagnostics) AddQualityFlagged(id string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.qualitySeen[id]; ok {
		return
	}
	d.qualitySeen[id] = struct{}{}
	d.qualityFlagged = append(d.qualityFlagged, id)
}

// AddNote records an informational message.
func (d *Diagnostics) AddNote(note string) {
	if d == nil || note == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notes = append(d.notes, note)
}

// AddDocumentError records a document-level failure.
func (d *Diagnostics) AddDocumentError(document string, err error) {
	if d == nil || err == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.documentErrors = append(d.documentErrors, DocumentError{Document: document, Error: err.Error()})
}

// AddWorkbookError records a workbook that was left out of the archive.
func (d *Diagnostics) AddWorkbookError(workbook string, err error) {
	if d == nil || err == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workbookErrors = append(d.workbookErrors, WorkbookError{Workbook: workbook, Error: err.Error()})
}

// Unmatched returns metering points that were dropped for lack of a registry record.
func (d *Diagnostics) Unmatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.unmatched...)
}

// QualityFlagged returns metering points whose readings carried quality flags.
func (d *Diagnostics) QualityFlagged() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.qualityFlagged...)
}

// Notes returns informational messages.
func (d *Diagnostics) Notes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.notes...)
}

// DocumentErrors returns per-document failures.
func (d *Diagnostics) DocumentErrors() []DocumentError {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DocumentError(nil), d.documentErrors...)
}

// WorkbookErrors returns per-workbook failures.
func (d *Diagnostics) WorkbookErrors() []WorkbookError {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]WorkbookError(nil), d.workbookErrors...)
}

// Empty reports whether nothing was recorded apart from notes.
func (d *Diagnostics) Empty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.unmatched) == 0 &&
		len(d.qualityFlagged) == 0 &&
		len(d.documentErrors) == 0 &&
		len(d.workbookErrors) == 0
}

// Report is a serialisable snapshot of the diagnostics.
type Report struct {
	Unmatched      []string        `json:"unmatched"`
	QualityFlagged []string        `json:"quality_flagged"`
	Notes          []string        `json:"notes,omitempty"`
	DocumentErrors []DocumentError `json:"document_errors,omitempty"`
	WorkbookErrors []WorkbookError `json:"workbook_errors,omitempty"`
}

// Snapshot copies the collected diagnostics.
func (d *Diagnostics) Snapshot() Report {
	return Report{
		Unmatched:      d.Unmatched(),
		QualityFlagged: d.QualityFlagged(),
		Notes:          d.Notes(),
		DocumentErrors: d.DocumentErrors(),
		WorkbookErrors: d.WorkbookErrors(),
	}
}
