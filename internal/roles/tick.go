package roles

import (
	"context"
	"errors"

	"github.com/ankittk/usagi/internal/org"
)

// TickAll runs one round: manager, lead, worker, boss, board, then every assist target.
// Each tick is a no-op on an empty inbox, so cross-agent order does not matter.
func (e *Env) TickAll(ctx context.Context, a org.Assignment) error {
	errs := []error{
		e.ManagerTick(ctx, a),
		e.LeadTick(ctx, a),
		e.WorkerTick(ctx, a),
		e.BossTick(ctx),
		e.BoardTick(ctx),
	}
	for _, t := range e.AssistTargets(a) {
		errs = append(errs, e.AssistTick(ctx, t))
	}
	return errors.Join(errs...)
}
