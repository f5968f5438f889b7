package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// queueSize bounds the FIFO between the debouncer and the pool.
const queueSize = 256

// Service wires Watcher, Debouncer and Pool around a Processor.
type Service struct {
	Processor *Processor
	Debounce  time.Duration
	Workers   int
	// Root receives event log lines; empty disables them.
	Root string
}

// Run watches the processor's inputs until ctx is done, then stops the debouncer and
// waits for in-flight jobs.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	jobs := make(chan string, queueSize)
	deb := NewDebouncer(s.Debounce, jobs, s.Root)
	w := &Watcher{Dir: s.Processor.InputsDir, Debouncer: deb}

	watchErr := make(chan error, 1)
	go func() { watchErr <- w.Run(ctx) }()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pool := &Pool{Size: s.Workers, Jobs: jobs, Fn: func(ctx context.Context, path string) {
			if err := s.Processor.Process(ctx, path); err != nil {
				slog.Error("watch job failed", "path", path, "err", err)
			}
		}}
		pool.Run(ctx)
	}()

	slog.Info("watch started", "inputs", s.Processor.InputsDir, "workers", ClampWorkers(s.Workers))
	var err error
	select {
	case <-ctx.Done():
	case err = <-watchErr:
		if err != nil {
			slog.Error("watcher stopped", "err", err)
		}
	}
	cancel()
	deb.Stop()
	wg.Wait()
	slog.Info("watch stopped")
	return err
}
