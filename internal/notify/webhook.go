package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"text/template"
	"time"

	"sessionhub/internal/config"
)

// WebhookNotifier posts notifications to a chat webhook.
type WebhookNotifier struct {
	URL    string
	Format string
	Extra  map[string]string
	client *http.Client
}

// NewWebhookNotifier creates a notifier for one configured webhook.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		URL:    cfg.URL,
		Format: cfg.Format,
		Extra:  cfg.Extra,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts n in the webhook's format.
func (w *WebhookNotifier) Send(n Notification) error {
	body, err := w.payload(n)
	if err != nil {
		return err
	}

	resp, err := w.client.Post(w.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (w *WebhookNotifier) payload(n Notification) ([]byte, error) {
	text := fmt.Sprintf("%s: %s", n.Title, n.Message)

	var payload any
	switch w.Format {
	case "feishu":
		payload = map[string]any{"msg_type": "text", "content": map[string]string{"text": text}}
	case "dingtalk":
		payload = map[string]any{"msgtype": "text", "text": map[string]string{"content": text}}
	case "telegram":
		payload = map[string]any{"chat_id": w.Extra["chat_id"], "text": text, "parse_mode": "HTML"}
	case "custom":
		rendered, err := w.render(n, text)
		if err != nil {
			return nil, err
		}
		// Re-encoded below so a bad template never reaches the endpoint.
		if err := json.Unmarshal(rendered, &payload); err != nil {
			return nil, fmt.Errorf("webhook template produced invalid JSON: %w", err)
		}
	default:
		payload = map[string]string{"text": text}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("webhook marshal: %w", err)
	}
	return body, nil
}

func (w *WebhookNotifier) render(n Notification, text string) ([]byte, error) {
	src := w.Extra["template"]
	if src == "" {
		return nil, fmt.Errorf("webhook custom format: missing 'template' in extra")
	}
	tmpl, err := template.New("webhook").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse webhook template: %w", err)
	}
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, map[string]string{
		"Title":       n.Title,
		"Message":     n.Message,
		"Text":        text,
		"SessionID":   n.SessionID,
		"Provider":    string(n.Provider),
		"ProjectPath": n.ProjectPath,
		"Status":      string(n.Status),
	})
	if err != nil {
		return nil, fmt.Errorf("execute webhook template: %w", err)
	}
	return buf.Bytes(), nil
}

// Name returns "webhook:<format>".
func (w *WebhookNotifier) Name() string {
	format := w.Format
	if format == "" {
		format = "slack"
	}
	return "webhook:" + format
}
