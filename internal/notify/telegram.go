package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TelegramSender delivers alerts via the Telegram Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the alert to the configured chat via sendMessage: severity
// marker, bold title, one field per line.
func (t *TelegramSender) Send(ctx context.Context, alert Alert) error {
	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     telegramText(alert),
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

// telegramText renders the alert as a Markdown message.
func telegramText(alert Alert) string {
	var b strings.Builder
	b.WriteString(severityTag(alert.Severity))
	b.WriteString(" *")
	b.WriteString(alert.Title)
	b.WriteString("*")
	for _, f := range alert.Fields {
		b.WriteString("\n")
		b.WriteString(f.Key)
		b.WriteString(": `")
		b.WriteString(f.Value)
		b.WriteString("`")
	}
	return b.String()
}

func severityTag(s Severity) string {
	switch s {
	case SeverityCritical:
		return "[CRIT]"
	case SeverityWarning:
		return "[WARN]"
	default:
		return "[INFO]"
	}
}
