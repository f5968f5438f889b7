package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestRegistry_RegisterGet(t *testing.T) {
	reg := NewRegistry()
	c := SlackWebhook{WebhookURL: "https://example.com"}
	reg.Register(c)
	if got := reg.Get("slack"); got != c {
		t.Fatalf("Get(slack): got %+v", got)
	}
	if reg.Get("nonexistent") != nil {
		t.Fatal("Get(nonexistent) should be nil")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvDiscordWebhook, "https://discord.example/hook")
	t.Setenv(EnvSlackWebhook, "")
	names := FromEnv().Names()
	if len(names) != 1 || names[0] != "discord" {
		t.Fatalf("names = %v", names)
	}
}

func TestFormat(t *testing.T) {
	got := Format("社長うさぎ", "開始: a.md @everyone")
	if !strings.HasPrefix(got, "[社長うさぎ] 開始: a.md") || strings.Contains(got, " @everyone") {
		t.Fatalf("Format = %q", got)
	}
}

func TestAnnounce_postsToEveryNotifier(t *testing.T) {
	var mu sync.Mutex
	bodies := map[string]map[string]any{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: %s", r.Method)
		}
		var m map[string]any
		_ = json.NewDecoder(r.Body).Decode(&m)
		mu.Lock()
		bodies[r.URL.Path] = m
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	reg := NewRegistry()
	reg.Register(SlackWebhook{WebhookURL: srv.URL + "/slack"})
	reg.Register(DiscordWebhook{WebhookURL: srv.URL + "/discord"})
	reg.Announce(context.Background(), "boss", "終了: a.md")

	mu.Lock()
	defer mu.Unlock()
	if bodies["/slack"]["text"] != "[boss] 終了: a.md" {
		t.Errorf("slack body = %v", bodies["/slack"])
	}
	if bodies["/discord"]["content"] != "[boss] 終了: a.md" {
		t.Errorf("discord body = %v", bodies["/discord"])
	}
}

func TestNotify_errors(t *testing.T) {
	ctx := context.Background()
	if err := (SlackWebhook{}).Notify(ctx, "msg"); err == nil {
		t.Fatal("expected error when webhook URL empty")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	if err := (DiscordWebhook{WebhookURL: srv.URL}).Notify(ctx, "msg"); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestAnnounce_nilRegistry(t *testing.T) {
	var reg *Registry
	reg.Announce(context.Background(), "boss", "noop")
}
