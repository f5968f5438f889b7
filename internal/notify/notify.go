// Package notify announces job progress to chat webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	EnvDiscordWebhook = "USAGI_DISCORD_WEBHOOK_URL"
	EnvSlackWebhook   = "USAGI_SLACK_WEBHOOK_URL"
)

// Notifier is a chat integration that can post one message.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, message string) error
}

// Registry holds notifiers by name. A nil or empty Registry announces nothing.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Notifier
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Notifier)}
}

// FromEnv registers the webhooks configured in the environment.
func FromEnv() *Registry {
	r := NewRegistry()
	if u := os.Getenv(EnvDiscordWebhook); u != "" {
		r.Register(DiscordWebhook{WebhookURL: u})
	}
	if u := os.Getenv(EnvSlackWebhook); u != "" {
		r.Register(SlackWebhook{WebhookURL: u})
	}
	return r
}

func (r *Registry) Register(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[n.Name()] = n
}

func (r *Registry) Get(name string) Notifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[name]
}

// Names returns the registered notifier names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.items))
	for n := range r.items {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Announce posts "[agent] text" to every notifier. Failures are logged only.
func (r *Registry) Announce(ctx context.Context, agent, text string) {
	msg := Format(agent, text)
	for _, name := range r.Names() {
		if err := r.Get(name).Notify(ctx, msg); err != nil {
			slog.Warn("announce failed", "notifier", name, "err", err)
		}
	}
}

// Format renders "[agent] text" with @everyone and @here defused.
func Format(agent, text string) string {
	text = strings.ReplaceAll(text, "@everyone", "@\u200beveryone")
	text = strings.ReplaceAll(text, "@here", "@\u200bhere")
	return "[" + agent + "] " + text
}

var client = &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)}

func post(ctx context.Context, name, url string, payload map[string]any) error {
	if url == "" {
		return fmt.Errorf("%s webhook URL not set", name)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s webhook returned %d", name, resp.StatusCode)
	}
	return nil
}

// SlackWebhook sends messages to a Slack channel via incoming webhook URL.
type SlackWebhook struct {
	WebhookURL string
	Channel    string // optional override
	Username   string // optional
}

func (s SlackWebhook) Name() string { return "slack" }

func (s SlackWebhook) Notify(ctx context.Context, message string) error {
	payload := map[string]any{"text": message}
	if s.Channel != "" {
		payload["channel"] = s.Channel
	}
	if s.Username != "" {
		payload["username"] = s.Username
	}
	return post(ctx, s.Name(), s.WebhookURL, payload)
}

// DiscordWebhook posts to a Discord channel webhook with mentions disabled.
type DiscordWebhook struct {
	WebhookURL string
}

func (d DiscordWebhook) Name() string { return "discord" }

func (d DiscordWebhook) Notify(ctx context.Context, message string) error {
	return post(ctx, d.Name(), d.WebhookURL, map[string]any{
		"content":          message,
		"allowed_mentions": map[string]any{"parse": []string{}},
	})
}
