package roles

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/ankittk/usagi/internal/eventlog"
	"github.com/ankittk/usagi/internal/mailbox"
	"github.com/ankittk/usagi/internal/otel"
	"github.com/ankittk/usagi/pkg/models"
)

// Handler processes one accepted message. Returning an error (or panicking) leaves the
// message in the inbox for the next tick.
type Handler func(ctx context.Context, h mailbox.Handle, msg mailbox.Message) error

// drain processes agentID's inbox in delivery order. Kinds outside accepts are archived
// without any other effect. A failed message never stops the ones after it.
func (e *Env) drain(ctx context.Context, agentID, role string, accepts mailbox.KindSet, handle Handler) error {
	otel.RecordTick(ctx, role)
	hs, err := mailbox.ListInbox(e.Root, agentID)
	if err != nil {
		return fmt.Errorf("list inbox %s: %w", agentID, err)
	}
	for _, h := range hs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := mailbox.Read(h)
		if err != nil {
			slog.Warn("read mail failed", "agent", agentID, "mail", h.Name(), "err", err)
			continue
		}
		if !accepts.Has(msg.Kind) {
			if _, err := mailbox.Archive(ctx, e.Root, agentID, h); err != nil {
				slog.Warn("archive failed", "agent", agentID, "mail", h.Name(), "err", err)
			}
			eventlog.Appendf(e.Root, "%s: ignored kind=%s %s", agentID, msg.Kind, h.Name())
			continue
		}

		e.SetStatus(agentID, models.StateWorking, string(msg.Kind)+": "+msg.Title)
		if err := safeHandle(ctx, handle, h, msg); err != nil {
			slog.Error("handler failed", "agent", agentID, "role", role, "kind", msg.Kind, "mail", h.Name(), "err", err)
			eventlog.Appendf(e.Root, "%s: handler failed kind=%s %s: %s", agentID, msg.Kind, h.Name(), firstLine(err.Error()))
			otel.RecordHandlerFailure(ctx, role)
			e.SetStatus(agentID, models.StateIdle, "")
			continue
		}
		if _, err := mailbox.Archive(ctx, e.Root, agentID, h); err != nil {
			slog.Error("archive failed", "agent", agentID, "mail", h.Name(), "err", err)
		}
		e.SetStatus(agentID, models.StateIdle, "")
	}
	return nil
}

func safeHandle(ctx context.Context, handle Handler, h mailbox.Handle, msg mailbox.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panic", "mail", h.Name(), "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handle(ctx, h, msg)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > 200 {
		s = string(r[:200]) + "…"
	}
	return s
}
