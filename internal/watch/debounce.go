package watch

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/ankittk/usagi/internal/eventlog"
)

// DefaultDebounce is how long a path must stay quiet before it is queued.
const DefaultDebounce = 400 * time.Millisecond

// Debouncer collapses bursts of events on one path into a single job.
type Debouncer struct {
	delay time.Duration
	out   chan<- string
	root  string

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	done    chan struct{}
}

// NewDebouncer queues paths on out once they have been quiet for delay. root, when set,
// receives a "queued" event line per job.
func NewDebouncer(delay time.Duration, out chan<- string, root string) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay, out: out, root: root, timers: make(map[string]*time.Timer), done: make(chan struct{})}
}

// Add arms (or re-arms) the timer for path.
func (d *Debouncer) Add(path, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[path]; ok {
		t.Stop()
	}
	d.timers[path] = time.AfterFunc(d.delay, func() { d.fire(path, reason) })
}

func (d *Debouncer) fire(path, reason string) {
	d.mu.Lock()
	delete(d.timers, path)
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return
	}
	if d.root != "" {
		eventlog.Appendf(d.root, "queued(%s): %s", reason, filepath.Base(path))
	}
	select {
	case d.out <- path:
	case <-d.done:
	}
}

// Pending reports how many paths are waiting for their timer.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop cancels every pending timer and unblocks timers waiting on a full channel.
// Later Adds are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	close(d.done)
	for p, t := range d.timers {
		t.Stop()
		delete(d.timers, p)
	}
}
