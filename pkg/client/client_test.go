package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNew_defaultsAndTrims(t *testing.T) {
	if c := New("", ""); c.BaseURL != DefaultURL {
		t.Errorf("BaseURL = %q", c.BaseURL)
	}
	if c := New("http://h:1/", "secret"); c.BaseURL != "http://h:1" || c.APIKey != "secret" {
		t.Errorf("New = %+v", c)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ok, err := New(srv.URL, "").Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !ok {
		t.Fatal("Health: expected ok true")
	}
}

func TestHealth_errorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"ledger unavailable"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Health: err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable || apiErr.Message != "ledger unavailable" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if IsNotFound(err) {
		t.Error("503 reported as not found")
	}
}

func TestJob_notFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/jobs/a%2Fb" && r.URL.RawPath != "/api/jobs/a%2Fb" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "").Job(context.Background(), "a/b"); !IsNotFound(err) {
		t.Fatalf("Job: err = %v, want not found", err)
	}
}

func TestClient_setsAPIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "k" {
			t.Errorf("X-API-Key: %q", got)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "k").Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestEventsAndJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/events":
			if r.URL.Query().Get("n") != "2" {
				t.Errorf("n: %q", r.URL.Query().Get("n"))
			}
			w.Write([]byte(`{"lines":["a","b"]}`))
		case "/api/jobs":
			if r.URL.Query().Get("limit") != "5" {
				t.Errorf("limit: %q", r.URL.Query().Get("limit"))
			}
			w.Write([]byte(`[{"job_id":"1-demo","project":"demo","result":"ok"}]`))
		case "/api/jobs/1-demo":
			w.Write([]byte(`{"job_id":"1-demo","project":"demo","result":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	ctx := context.Background()
	lines, err := c.Events(ctx, 2)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(lines) != 2 || lines[1] != "b" {
		t.Errorf("Events: %v", lines)
	}
	jobs, err := c.Jobs(ctx, 5)
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Project != "demo" {
		t.Errorf("Jobs: %+v", jobs)
	}
	job, err := c.Job(ctx, "1-demo")
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if job.Result != "ok" {
		t.Errorf("Job: %+v", job)
	}
	if _, err := c.Ballots(ctx, 0); err == nil {
		t.Error("Ballots: expected 404 error")
	}
}

func TestSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/inbox" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body["source"] != "cli" || body["text"] != "hello" {
			t.Errorf("body: %v", body)
		}
		w.Write([]byte(`{"ok":true,"path":"/tmp/x.txt"}`))
	}))
	defer srv.Close()

	p, err := New(srv.URL, "").Send(context.Background(), "cli", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if p != "/tmp/x.txt" {
		t.Errorf("path: %q", p)
	}
}
