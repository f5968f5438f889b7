package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics: status=%d", rec.Code)
	}
	return rec.Body.String()
}

func TestSetup_servesRuntimeCollectors(t *testing.T) {
	p, err := Setup(context.Background(), "usagi-test", "v0.0.1")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer func() { _ = p.Shutdown(context.Background()) }()
	if body := scrape(t, p.Handler); !strings.Contains(body, "go_goroutines") {
		t.Error("expected go runtime collector in /metrics")
	}
}

func TestSetup_defaultServiceName(t *testing.T) {
	p, err := Setup(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if p.Handler == nil || Meter() == nil {
		t.Fatal("expected handler and meter")
	}
}

func TestProvider_nilShutdown(t *testing.T) {
	var p *Provider
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
