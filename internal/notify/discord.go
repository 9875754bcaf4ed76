package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Discord embed sidebar colors per severity.
const (
	discordGreen  = 0x3ba55d
	discordYellow = 0xfaa81a
	discordRed    = 0xed4245
)

// DiscordSender delivers alerts via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the alert as a single embed; severity drives the sidebar color,
// alert fields map onto inline embed fields.
func (d *DiscordSender) Send(ctx context.Context, alert Alert) error {
	fields := make([]map[string]any, 0, len(alert.Fields))
	for _, f := range alert.Fields {
		fields = append(fields, map[string]any{
			"name":   f.Key,
			"value":  f.Value,
			"inline": true,
		})
	}

	payload := map[string]any{
		"embeds": []map[string]any{{
			"title":  alert.Title,
			"color":  severityColor(alert.Severity),
			"fields": fields,
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

func severityColor(s Severity) int {
	switch s {
	case SeverityCritical:
		return discordRed
	case SeverityWarning:
		return discordYellow
	default:
		return discordGreen
	}
}
