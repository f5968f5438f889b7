package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ankittk/usagi/internal/otel"
)

const (
	subscriberBuffer = 256
	replaySize       = 64
	keepaliveEvery   = 30 * time.Second
)

// Frame is one published event: a sequence id, the event type and its JSON payload.
type Frame struct {
	ID   uint64
	Type string
	Data []byte
}

// SSEHub fans control-loop and inbox events out to /api/stream subscribers. The last
// replaySize frames are kept so a reconnecting client resumes from Last-Event-ID.
// Slow subscribers lose frames instead of blocking publishers.
type SSEHub struct {
	mu     sync.Mutex
	seq    uint64
	recent []Frame
	subs   map[chan Frame]struct{}
}

func NewSSEHub() *SSEHub {
	return &SSEHub{subs: make(map[chan Frame]struct{})}
}

// Subscribe registers a subscriber that only sees frames published from now on.
func (h *SSEHub) Subscribe() chan Frame {
	ch, _ := h.subscribeAfter(^uint64(0))
	return ch
}

func (h *SSEHub) subscribeAfter(after uint64) (chan Frame, []Frame) {
	ch := make(chan Frame, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[ch] = struct{}{}
	otel.AddStreamConnection()
	var backlog []Frame
	for _, f := range h.recent {
		if f.ID > after {
			backlog = append(backlog, f)
		}
	}
	return ch, backlog
}

func (h *SSEHub) Unsubscribe(ch chan Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
		otel.RemoveStreamConnection()
	}
}

// PublishEvent publishes fields with "type" set to typ and a timestamp.
func (h *SSEHub) PublishEvent(typ string, fields map[string]any) {
	ev := map[string]any{"type": typ, "timestamp": time.Now().UTC().Format(time.RFC3339Nano)}
	for k, v := range fields {
		ev[k] = v
	}
	h.publish(typ, ev)
}

// PublishJSON publishes v as a "message" event.
func (h *SSEHub) PublishJSON(v any) {
	h.publish("message", v)
}

func (h *SSEHub) publish(typ string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	otel.RecordStreamEvent(context.Background())
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	f := Frame{ID: h.seq, Type: typ, Data: b}
	h.recent = append(h.recent, f)
	if len(h.recent) > replaySize {
		h.recent = h.recent[len(h.recent)-replaySize:]
	}
	for ch := range h.subs {
		select {
		case ch <- f:
		default:
		}
	}
}

func writeFrame(w http.ResponseWriter, f Frame) {
	_, _ = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", f.ID, f.Type, f.Data)
}

// Handler streams frames as server-sent events. Without Last-Event-ID nothing is replayed.
func (h *SSEHub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		after := ^uint64(0)
		if v := r.Header.Get("Last-Event-ID"); v != "" {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				after = n
			}
		}
		ch, backlog := h.subscribeAfter(after)
		defer h.Unsubscribe(ch)

		_, _ = fmt.Fprintf(w, "data: %s\n\n", `{"type":"connected"}`)
		for _, f := range backlog {
			writeFrame(w, f)
		}
		flusher.Flush()

		keepalive := time.NewTicker(keepaliveEvery)
		defer keepalive.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepalive.C:
				_, _ = fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			case f, ok := <-ch:
				if !ok {
					return
				}
				writeFrame(w, f)
				flusher.Flush()
			}
		}
	}
}
