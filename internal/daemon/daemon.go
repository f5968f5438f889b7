// Package daemon runs usagi as a singleton process: the input watcher and worker pool,
// the mailbox control loop, and the optional status API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/eventlog"
	"github.com/ankittk/usagi/internal/httpapi"
	"github.com/ankittk/usagi/internal/otel"
	"github.com/ankittk/usagi/internal/watch"
)

var errNotRunning = errors.New("usagi is not running")

// StartForeground runs the daemon until ctx is done or the STOP file appears.
func StartForeground(ctx context.Context, opts StartOptions) error {
	if opts.Root == "" {
		return errors.New("root is required")
	}
	root := opts.Root

	if err := os.MkdirAll(config.StateDir(root), 0o755); err != nil {
		return err
	}

	// Singleton lock (released on exit).
	lock, err := acquireLock(lockPath(root))
	if err != nil {
		return err
	}
	defer lock.release()

	pprofCtx, stopPprof := context.WithCancel(ctx)
	defer stopPprof()
	startPprof(pprofCtx, opts.PprofAddr)

	if opts.HTTPAddr != "" {
		if err := checkPortAvailable(opts.HTTPAddr); err != nil {
			return err
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(pidPath(root), []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return err
	}
	_ = os.WriteFile(addrPath(root), []byte(opts.HTTPAddr+"\n"), 0o644)
	defer func() {
		_ = os.Remove(pidPath(root))
		_ = os.Remove(addrPath(root))
	}()
	if err := ClearStop(root); err != nil {
		return err
	}

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
	rt := env.Runtime

	var metricsHandler http.Handler
	if opts.EnableOtel {
		provider, err := otel.Setup(ctx, "usagi", opts.Version)
		switch {
		case provider == nil:
			slog.Warn("otel init failed, metrics disabled", "err", err)
		default:
			if err != nil {
				slog.Warn("otel instruments failed", "err", err)
			}
			metricsHandler = provider.Handler
			defer func() { _ = provider.Shutdown(context.Background()) }()
		}
	}

	state, err := watch.OpenState(watch.StatePath(root))
	if err != nil {
		return err
	}
	ws := &watch.Service{
		Processor: &watch.Processor{
			InputsDir: config.Resolve(root, rt.Watch.InputsDir),
			WorkRoot:  config.Resolve(root, rt.Watch.WorkRoot),
			State:     state,
			Env:       svc.current,
		},
		Debounce: rt.Watch.Debounce,
		Workers:  rt.Watch.Workers,
		Root:     root,
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	errCh := make(chan error, 2)
	ctl := &controller{svc: svc}

	var app *httpapi.App
	if opts.HTTPAddr != "" {
		app = httpapi.NewApp(httpapi.ServerOptions{
			Root:           root,
			Addr:           opts.HTTPAddr,
			APIKey:         opts.APIKey,
			Ledger:         ledger,
			Org:            svc.loader.Org,
			MetricsHandler: metricsHandler,
			UseOtelHTTP:    metricsHandler != nil,
		})
		ctl.hub = app.Hub
		go func() {
			if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	slog.Info("daemon starting", "root", root, "pipeline", rt.Pipeline, "addr", opts.HTTPAddr, "git", svc.repo != nil)
	eventlog.Appendf(root, "daemon: started pid=%d pipeline=%s", pid, rt.Pipeline)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := ws.Run(runCtx); err != nil {
			errCh <- err
		}
	}()
	go func() {
		defer wg.Done()
		runControlLoop(runCtx, ctl, rt.Watch.TickInterval, stop)
	}()

	var runErr error
	select {
	case <-runCtx.Done():
	case runErr = <-errCh:
	}
	stop()
	wg.Wait()
	if app != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Server.Shutdown(shutdownCtx)
	}
	eventlog.Appendf(root, "daemon: stopped pid=%d", pid)
	slog.Info("daemon stopped")
	return runErr
}

// StartBackground re-executes the current binary as a detached "daemon" process and
// returns its pid once the pid file appears.
func StartBackground(ctx context.Context, opts StartOptions) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(config.LogsDir(opts.Root), 0o755); err != nil {
		return 0, err
	}

	// Best-effort: refuse to start if already running.
	if st, _ := Status(ctx, opts.Root); st.Running {
		return 0, fmt.Errorf("usagi already running (pid %d)", st.PID)
	}

	out, err := os.OpenFile(LogPath(opts.Root)+".out", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	// Kept open for child lifetime; closing here may break writes on some platforms.

	cmd := exec.Command(exe, daemonArgs(opts)...)
	cmd.Stdout = io.Discard
	cmd.Stderr = out
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	// Wait briefly for pid file to appear or process to die.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := Status(ctx, opts.Root); st.Running {
			return st.PID, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cmd.Process.Pid, nil
}

func daemonArgs(opts StartOptions) []string {
	args := []string{"daemon", "--root", opts.Root}
	if opts.HTTPAddr != "" {
		args = append(args, "--addr", opts.HTTPAddr)
	}
	if opts.PprofAddr != "" {
		args = append(args, "--pprof", opts.PprofAddr)
	}
	if opts.DBDriver != "" {
		args = append(args, "--db-driver", opts.DBDriver)
	}
	if opts.DBURL != "" {
		args = append(args, "--db-url", opts.DBURL)
	}
	if opts.LogLevel != "" {
		args = append(args, "--log-level", opts.LogLevel)
	}
	args = append(args, "--otel="+strconv.FormatBool(opts.EnableOtel))
	if opts.NoGit {
		args = append(args, "--no-git")
	}
	return args
}

// Stop asks the daemon to exit through the STOP file, then SIGTERM, then kills it.
// It reports whether a daemon was running.
func Stop(ctx context.Context, root string) (bool, error) {
	st, err := Status(ctx, root)
	if err != nil {
		return false, err
	}
	if !st.Running {
		return false, nil
	}
	if err := RequestStop(root); err != nil {
		return false, err
	}
	if waitExit(ctx, root, 5*time.Second) {
		return true, nil
	}

	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return false, errNotRunning
	}
	if err := signalTerm(proc); err != nil {
		return false, err
	}
	if waitExit(ctx, root, 10*time.Second) {
		return true, nil
	}
	_ = proc.Kill()
	return true, nil
}

func waitExit(ctx context.Context, root string, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if st, _ := Status(ctx, root); !st.Running {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// Status reads the pid file and checks that the process is alive. A stale pid file is removed.
func Status(ctx context.Context, root string) (StatusInfo, error) {
	pb, err := os.ReadFile(pidPath(root))
	if err != nil {
		return StatusInfo{Running: false}, nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pb)))
	if err != nil || pid <= 0 {
		return StatusInfo{Running: false}, nil
	}
	if !processExists(pid) {
		_ = os.Remove(pidPath(root))
		return StatusInfo{Running: false}, nil
	}

	addr := ""
	if ab, err := os.ReadFile(addrPath(root)); err == nil {
		addr = strings.TrimSpace(string(ab))
	}
	if addr == "" {
		addr = "none"
	}
	return StatusInfo{Running: true, PID: pid, Addr: addr}, nil
}

func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use", addr)
	}
	_ = ln.Close()
	return nil
}
