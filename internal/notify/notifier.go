package notify

import "context"

// RunMessage summarises a distribution run that needs attention.
type RunMessage struct {
	RunID          string   `json:"run_id"`
	Format         string   `json:"format"`
	Documents      int      `json:"documents"`
	Workbooks      []string `json:"workbooks"`
	Unmatched      []string `json:"unmatched"`
	QualityFlagged []string `json:"quality_flagged"`
	DocumentErrors int      `json:"document_errors"`
	WorkbookErrors int      `json:"workbook_errors"`
}

// Notifier sends notifications.
type Notifier interface {
	Notify(ctx context.Context, msg RunMessage) error
}

// Nop discards notifications.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, RunMessage) error { return nil }
