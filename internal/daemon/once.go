package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/watch"
)

// DefaultRounds is enough control-loop rounds for one spec to reach the boss report
// on the happy path (plan, impl, worker, impl result, review, report).
const DefaultRounds = 8

// RunOnce processes inputs synchronously and then runs rounds control-loop rounds,
// without the watcher. It holds the daemon lock, so it fails while a daemon is running.
func RunOnce(ctx context.Context, opts StartOptions, rounds int, inputs ...string) error {
	if opts.Root == "" {
		return errors.New("root is required")
	}
	root := opts.Root
	lock, err := acquireLock(lockPath(root))
	if err != nil {
		return err
	}
	defer lock.release()

	ledger, err := OpenLedger(root, opts.DBDriver, opts.DBURL)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	svc := newServices(root, ledger, !opts.NoGit)
	env, err := svc.env()
	if err != nil {
		return err
	}
	if len(inputs) > 0 {
		state, err := watch.OpenState(watch.StatePath(root))
		if err != nil {
			return err
		}
		p := &watch.Processor{
			InputsDir: config.Resolve(root, env.Runtime.Watch.InputsDir),
			WorkRoot:  config.Resolve(root, env.Runtime.Watch.WorkRoot),
			State:     state,
			Env:       svc.current,
		}
		var errs []error
		for _, in := range inputs {
			if err := p.Process(ctx, in); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", in, err))
			}
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
	}

	c := &controller{svc: svc}
	for i := 0; i < rounds; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.round(ctx); err != nil {
			return fmt.Errorf("round %d: %w", i+1, err)
		}
	}
	return nil
}
