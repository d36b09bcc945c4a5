package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	maxListed      = 20
)

// WebhookNotifier posts run summaries to a chat webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookNotifier constructs a notifier. A non-positive timeout uses the default.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify sends a run summary to the webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, msg RunMessage) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	payload := webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: FormatRunMessage(msg)},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notifier: status %d", resp.StatusCode)
	}
	return nil
}

// FormatRunMessage renders the plain-text body of a notification.
func FormatRunMessage(msg RunMessage) string {
	var b strings.Builder
	b.WriteString("[Metering Distribution]\n")
	if msg.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", msg.RunID)
	}
	if msg.Format != "" {
		fmt.Fprintf(&b, "Format: %s\n", msg.Format)
	}
	fmt.Fprintf(&b, "Documents: %d\n", msg.Documents)
	if len(msg.Workbooks) > 0 {
		fmt.Fprintf(&b, "Workbooks: %s\n", strings.Join(msg.Workbooks, ", "))
	}
	writeList(&b, "Unmatched", msg.Unmatched)
	writeList(&b, "Quality flagged", msg.QualityFlagged)
	if msg.DocumentErrors > 0 {
		fmt.Fprintf(&b, "Document errors: %d\n", msg.DocumentErrors)
	}
	if msg.WorkbookErrors > 0 {
		fmt.Fprintf(&b, "Workbook errors: %d\n", msg.WorkbookErrors)
	}
	return strings.TrimSpace(b.String())
}

func writeList(b *strings.Builder, title string, ids []string) {
	if len(ids) == 0 {
		return
	}
	shown := ids
	if len(shown) > maxListed {
		shown = shown[:maxListed]
	}
	fmt.Fprintf(b, "%s (%d): %s", title, len(ids), strings.Join(shown, ", "))
	if len(ids) > maxListed {
		fmt.Fprintf(b, " (+%d more)", len(ids)-maxListed)
	}
	b.WriteString("\n")
}
