package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/eventlog"
	"github.com/ankittk/usagi/internal/httpapi"
	"github.com/ankittk/usagi/internal/org"
	"github.com/ankittk/usagi/internal/secretary"
)

// controller drives the mailbox chain: one round per tick, every inbox drained once.
type controller struct {
	svc *services
	hub *httpapi.SSEHub // optional

	lastErr string
}

// runControlLoop ticks until ctx is done or the STOP file appears, in which case it
// calls stop so the watcher and workers wind down too.
func runControlLoop(ctx context.Context, c *controller, interval time.Duration, stop context.CancelFunc) {
	if interval <= 0 {
		interval = config.DefaultRuntime().Watch.TickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if StopRequested(c.svc.root) {
				slog.Info("stop file found, shutting down", "path", config.StopPath(c.svc.root))
				eventlog.Appendf(c.svc.root, "daemon: stop requested")
				c.publish("stop", nil)
				stop()
				return
			}
			_ = c.round(ctx)
		}
	}
}

// round runs one pass and returns its error. Repeated identical errors are logged once.
func (c *controller) round(ctx context.Context) error {
	err := c.tick(ctx)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if msg != c.lastErr {
		switch {
		case err != nil:
			slog.Error("control round failed", "err", err)
			c.publish("error", map[string]any{"error": msg})
		case c.lastErr != "":
			slog.Info("control round recovered")
		}
		c.lastErr = msg
	}
	return err
}

func (c *controller) tick(ctx context.Context) error {
	e, loadErr := c.svc.env()
	if e == nil {
		return loadErr
	}
	a, err := org.AssignDefault(e.Org, e.Runtime.BossID)
	if err != nil {
		return errors.Join(loadErr, err)
	}
	created, drainErr := secretary.DrainBossInbox(e.Root, config.Resolve(e.Root, e.Runtime.Watch.InputsDir))
	for _, p := range created {
		c.publish("inbox_drained", map[string]any{"path": p})
	}
	tickErr := e.TickAll(ctx, a)
	return errors.Join(loadErr, drainErr, tickErr)
}

func (c *controller) publish(typ string, fields map[string]any) {
	if c.hub == nil {
		return
	}
	c.hub.PublishEvent(typ, fields)
}
