// Package httpapi serves the read-only daemon API: health, agent status, the event log
// tail, ledger listings, an SSE stream and Prometheus metrics.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ankittk/usagi/internal/eventlog"
	"github.com/ankittk/usagi/internal/org"
	"github.com/ankittk/usagi/internal/secretary"
	"github.com/ankittk/usagi/internal/status"
	"github.com/ankittk/usagi/internal/store"
	"github.com/ankittk/usagi/internal/ui"
	"github.com/ankittk/usagi/pkg/models"
)

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	Root           string
	Addr           string
	APIKey         string                           // if set, require X-API-Key header or query api_key
	Ledger         store.Ledger                     // optional; ledger routes answer 503 without it
	Org            func() (*org.Organization, error) // optional; /api/org answers 503 without it
	MetricsHandler http.Handler                     // if set, used for /metrics (OTel Prometheus handler)
	UseOtelHTTP    bool                             // if true, wrap handler with otelhttp for request metrics
}

// App holds the HTTP server and the SSE hub the daemon publishes to.
type App struct {
	Server *http.Server
	Hub    *SSEHub
	Root   string
}

// NewApp creates the HTTP app and registers all routes.
func NewApp(opts ServerOptions) *App {
	hub := NewSSEHub()
	statuses := status.New(opts.Root)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, statuses.Load())
	})

	mux.HandleFunc("GET /api/events", func(w http.ResponseWriter, r *http.Request) {
		n, err := intParam(r, "n", models.DefaultEventTail, models.DefaultMaxEventTail)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		lines, err := eventlog.Tail(opts.Root, n)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if lines == nil {
			lines = []string{}
		}
		writeJSON(w, models.Events{Lines: lines})
	})

	mux.HandleFunc("GET /api/jobs", ledgerList(opts.Ledger, models.DefaultJobListLimit, func(r *http.Request, l store.Ledger, n int) (any, error) {
		return l.ListJobs(r.Context(), n)
	}))
	mux.HandleFunc("GET /api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ledger == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "no ledger")
			return
		}
		job, err := opts.Ledger.GetJob(r.Context(), r.PathValue("id"))
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "job not found")
			return
		}
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, job)
	})
	mux.HandleFunc("GET /api/ballots", ledgerList(opts.Ledger, models.DefaultBallotListMax, func(r *http.Request, l store.Ledger, n int) (any, error) {
		return l.ListBallots(r.Context(), n)
	}))
	mux.HandleFunc("GET /api/merges", ledgerList(opts.Ledger, models.DefaultJobListLimit, func(r *http.Request, l store.Ledger, n int) (any, error) {
		return l.ListMerges(r.Context(), n)
	}))

	mux.HandleFunc("GET /api/org", func(w http.ResponseWriter, r *http.Request) {
		if opts.Org == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "no org chart")
			return
		}
		o, err := opts.Org()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, o.Agents)
	})

	// Text for the boss: lands in .usagi/inbox and becomes an input on the next round.
	mux.HandleFunc("POST /api/inbox", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Source string `json:"source"`
			Text   string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}
		if req.Source == "" {
			req.Source = "api"
		}
		p, err := secretary.WriteBossInput(opts.Root, req.Source, req.Text)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		hub.PublishEvent("inbox", map[string]any{"source": req.Source})
		writeJSON(w, map[string]any{"ok": true, "path": p})
	})

	mux.HandleFunc("GET /api/stream", hub.Handler())
	mux.Handle("GET /", ui.Handler())

	handler := chain(mux,
		limitBody(maxBodyBytes),
		requireAPIKey(opts.APIKey),
		logRequests,
	)
	if opts.UseOtelHTTP {
		handler = otelhttp.NewHandler(handler, "usagi")
	}
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // /api/stream is long-lived
		IdleTimeout:       60 * time.Second,
	}
	return &App{Server: srv, Hub: hub, Root: opts.Root}
}

func ledgerList(l store.Ledger, def int, list func(r *http.Request, l store.Ledger, n int) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if l == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "no ledger")
			return
		}
		n, err := intParam(r, "limit", def, 1000)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		v, err := list(r, l, n)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, v)
	}
}

func intParam(r *http.Request, name string, def, max int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return store.Limit(n, def, max), nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeJSONError sends a JSON body {"error": "message"} with the given status code.
func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}
