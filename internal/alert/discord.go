// Package alert sends operator notifications.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
)

var colours = map[Level]int{
	LevelError:   0xE74C3C,
	LevelWarning: 0xF39C12,
	LevelSuccess: 0x2ECC71,
	LevelInfo:    0x3498DB,
}

// Discord posts alerts as embeds to a webhook. Delivery failures are logged
// and never returned.
type Discord struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

func NewDiscord(webhookURL string, timeout time.Duration, logger *slog.Logger) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "alert"),
		now:        time.Now,
	}
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Description string      `json:"description"`
	Color       int         `json:"color"`
	Footer      embedFooter `json:"footer"`
}

type embedFooter struct {
	Text string `json:"text"`
}

func (d *Discord) Notify(ctx context.Context, level Level, message string) {
	colour, ok := colours[level]
	if !ok {
		colour = colours[LevelError]
	}

	payload := webhookPayload{Embeds: []embed{{
		Description: message,
		Color:       colour,
		Footer:      embedFooter{Text: "autopost • " + d.now().UTC().Format("2006-01-02 15:04 UTC")},
	}}}

	if err := d.send(ctx, payload); err != nil {
		d.logger.Warn("discord webhook failed", "level", level, "error", err)
	}
}

func (d *Discord) send(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

// Noop drops every alert.
type Noop struct{}

func (Noop) Notify(context.Context, Level, string) {}
