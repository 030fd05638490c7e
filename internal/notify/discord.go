// Package notify forwards selected client events to a Discord webhook.
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

	"github.com/rs/zerolog/log"

	"github.com/realmwalker-project/realmwalker/internal/config"
	"github.com/realmwalker-project/realmwalker/internal/events"
)

// Notification levels map to embed colors.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Discord posts embeds to a webhook. Whispers and disconnects are
// forwarded when enabled in the configuration.
type Discord struct {
	cfg    *config.Config
	client *http.Client
	now    func() time.Time
}

// NewDiscord creates a notifier using the webhook of cfg.
func NewDiscord(cfg *config.Config) *Discord {
	return &Discord{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Attach subscribes the notifier to the bus.
func (d *Discord) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventChat, "discord.whisper", d.onChat)
	bus.Subscribe(events.EventDisconnected, "discord.disconnect", d.onDisconnected)
}

// Send posts one embed. It is a no-op without a webhook.
func (d *Discord) Send(ctx context.Context, title, message, level string) error {
	url := d.cfg.GetDiscord().WebhookURL
	if url == "" {
		return nil
	}

	var color int
	switch level {
	case LevelError:
		color = 0xFF0000
	case LevelWarning:
		color = 0xFFAA00
	default:
		color = 0x00FF00
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       title,
				"description": message,
				"color":       color,
				"timestamp":   d.now().Format(time.RFC3339),
				"footer": map[string]string{
					"text": "realmwalker",
				},
			},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	log.Debug().Str("title", title).Msg("discord webhook notification sent")
	return nil
}

func (d *Discord) onChat(ctx context.Context, ev events.Event) error {
	if !d.cfg.GetDiscord().NotifyOnWhisper {
		return nil
	}
	p, ok := ev.Payload.(events.ChatPayload)
	if !ok || p.Type != "whisper" {
		return nil
	}
	sender := p.Sender
	if sender == "" {
		sender = "unknown"
	}
	return d.Send(ctx, "Whisper from "+sender, p.Text, LevelInfo)
}

func (d *Discord) onDisconnected(ctx context.Context, ev events.Event) error {
	if !d.cfg.GetDiscord().NotifyOnDisconnect {
		return nil
	}
	p, ok := ev.Payload.(events.DisconnectedPayload)
	if !ok {
		return nil
	}

	level := LevelWarning
	title := fmt.Sprintf("Disconnected (attempt %d)", p.Attempt)
	if p.Fatal {
		level = LevelError
		title = "Session stopped"
	}
	if strings.Contains(p.Reason, "logout complete") {
		level = LevelInfo
		title = "Logged out"
	}
	return d.Send(ctx, title, p.Reason, level)
}
