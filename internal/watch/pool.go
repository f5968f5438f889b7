package watch

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

// MaxWorkers caps the pool size.
const MaxWorkers = 20

// ClampWorkers bounds n to 1..MaxWorkers.
func ClampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// Pool runs size workers over one FIFO channel of paths.
type Pool struct {
	Size int
	Jobs <-chan string
	Fn   func(ctx context.Context, path string)
}

// Run blocks until ctx is done or Jobs is closed, then waits for in-flight jobs.
// A job that started before cancellation runs to completion.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < ClampWorkers(p.Size); i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case path, ok := <-p.Jobs:
					if !ok {
						return
					}
					p.run(context.WithoutCancel(ctx), id, path)
				}
			}
		}(i)
	}
	wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int, path string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("watch job panic", "worker", id, "path", path, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	p.Fn(ctx, path)
}
