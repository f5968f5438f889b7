package watch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/llm"
	"github.com/ankittk/usagi/internal/mailbox"
	"github.com/ankittk/usagi/internal/memory"
	"github.com/ankittk/usagi/internal/merge"
	"github.com/ankittk/usagi/internal/org"
	"github.com/ankittk/usagi/internal/report"
	"github.com/ankittk/usagi/internal/roles"
	"github.com/ankittk/usagi/internal/status"
	"github.com/ankittk/usagi/internal/store/sqlite"
	"github.com/ankittk/usagi/pkg/models"
)

func TestDebouncer_collapsesBurst(t *testing.T) {
	out := make(chan string, 10)
	d := NewDebouncer(30*time.Millisecond, out, "")
	defer d.Stop()
	for i := 0; i < 5; i++ {
		d.Add("/in/a.md", "modified")
		time.Sleep(5 * time.Millisecond)
	}
	d.Add("/in/b.md", "created")

	got := map[string]int{}
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case p := <-out:
			got[p]++
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	select {
	case p := <-out:
		t.Fatalf("unexpected extra job %s", p)
	case <-time.After(150 * time.Millisecond):
	}
	if got["/in/a.md"] != 1 || got["/in/b.md"] != 1 {
		t.Fatalf("got %v", got)
	}
}

func TestDebouncer_spacedEventsQueueEach(t *testing.T) {
	out := make(chan string, 10)
	d := NewDebouncer(20*time.Millisecond, out, "")
	defer d.Stop()
	for i := 0; i < 3; i++ {
		d.Add("/in/a.md", "modified")
		select {
		case p := <-out:
			if p != "/in/a.md" {
				t.Fatalf("job %d = %s", i, p)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for job %d", i)
		}
		time.Sleep(80 * time.Millisecond)
	}
	select {
	case p := <-out:
		t.Fatalf("unexpected extra job %s", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncer_stopCancelsPending(t *testing.T) {
	out := make(chan string, 1)
	d := NewDebouncer(50*time.Millisecond, out, "")
	d.Add("/in/a.md", "scan")
	if d.Pending() != 1 {
		t.Fatalf("Pending = %d", d.Pending())
	}
	d.Stop()
	d.Add("/in/b.md", "scan")
	select {
	case p := <-out:
		t.Fatalf("job after Stop: %s", p)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestStateStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".usagi", "watch_state.json")
	s, err := OpenState(path)
	if err != nil {
		t.Fatalf("OpenState: %v", err)
	}
	s.Set("/in/a.md", 100)
	s.Set("/in/a.md", 50)
	if got := s.Last("/in/a.md"); got != 100 {
		t.Fatalf("Last = %d, want 100", got)
	}
	if s.Claim("/in/a.md", 100) {
		t.Fatal("claim at watermark should fail")
	}
	if !s.Claim("/in/a.md", 200) {
		t.Fatal("claim of newer mtime should succeed")
	}
	if s.Claim("/in/a.md", 200) {
		t.Fatal("second claim of the same mtime should fail")
	}
	s.Release("/in/a.md")
	if !s.Claim("/in/a.md", 200) {
		t.Fatal("claim after release should succeed")
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var raw map[string]map[string]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if raw["mtime_ns"]["/in/a.md"] != 100 {
		t.Fatalf("file = %s", data)
	}
	s2, err := OpenState(path)
	if err != nil {
		t.Fatalf("OpenState: %v", err)
	}
	if s2.Last("/in/a.md") != 100 {
		t.Fatalf("reloaded Last = %d", s2.Last("/in/a.md"))
	}
}

func TestOpenState_corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch_state.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenState(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestClampWorkers(t *testing.T) {
	for in, want := range map[int]int{-1: 1, 0: 1, 5: 5, 20: 20, 99: 20} {
		if got := ClampWorkers(in); got != want {
			t.Errorf("ClampWorkers(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestPool_runsAllJobs(t *testing.T) {
	jobs := make(chan string, 10)
	for _, p := range []string{"a", "b", "c", "panic"} {
		jobs <- p
	}
	close(jobs)
	var mu sync.Mutex
	var seen []string
	pool := &Pool{Size: 3, Jobs: jobs, Fn: func(ctx context.Context, path string) {
		if path == "panic" {
			panic("boom")
		}
		mu.Lock()
		seen = append(seen, path)
		mu.Unlock()
	}}
	pool.Run(context.Background())
	if len(seen) != 3 {
		t.Fatalf("seen = %v", seen)
	}
}

type fixture struct {
	root string
	env  *roles.Env
	proc *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	ledger, err := sqlite.Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	env := &roles.Env{
		Root:       root,
		OutputsDir: filepath.Join(root, "outputs"),
		RepoRoot:   root,
		Org:        org.Default(),
		Runtime:    config.DefaultRuntime(),
		LLM:        llm.Offline{},
		Merger:     &merge.Merger{Ledger: ledger, Root: root},
		Status:     status.New(root),
		Memory:     memory.New(root),
		Ledger:     ledger,
	}
	state, err := OpenState(StatePath(root))
	if err != nil {
		t.Fatalf("OpenState: %v", err)
	}
	f := &fixture{root: root, env: env}
	f.proc = &Processor{
		InputsDir: filepath.Join(root, "inputs"),
		WorkRoot:  filepath.Join(root, "work"),
		State:     state,
		Env:       func() *roles.Env { return f.env },
	}
	return f
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(f.proc.InputsDir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

const demoInput = "---\nproject: demo\n---\n## 目的\n\nbuild X\n\n## やること\n\n- README\n"

func TestProcessor_runsOncePerMtime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.write(t, "a.md", demoInput)

	if err := f.proc.Process(ctx, p); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := f.proc.Process(ctx, p); err != nil {
		t.Fatalf("Process again: %v", err)
	}
	hs, _ := mailbox.ListInbox(f.root, "dev_mgr")
	if len(hs) != 1 {
		t.Fatalf("manager inbox = %d, want 1", len(hs))
	}
	jobs, err := f.env.Ledger.ListJobs(ctx, 0)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("jobs = %+v, %v", jobs, err)
	}
	if jobs[0].Result != models.JobDone || jobs[0].Project != "demo" || jobs[0].Source != "a.md" {
		t.Fatalf("job = %+v", jobs[0])
	}
	if st, _ := f.env.Status.Get("boss"); st.State != models.StateIdle {
		t.Fatalf("boss status = %+v", st)
	}

	// A newer version of the file is a new job.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(p, future, future); err != nil {
		t.Fatal(err)
	}
	if err := f.proc.Process(ctx, p); err != nil {
		t.Fatalf("Process modified: %v", err)
	}
	if hs, _ := mailbox.ListInbox(f.root, "dev_mgr"); len(hs) != 2 {
		t.Fatalf("manager inbox = %d, want 2", len(hs))
	}

	// The watermark survives a restart.
	state, err := OpenState(StatePath(f.root))
	if err != nil {
		t.Fatalf("OpenState: %v", err)
	}
	if state.Last(p) != future.UnixNano() {
		t.Fatalf("watermark = %d", state.Last(p))
	}
}

func TestProcessor_nilEnv(t *testing.T) {
	f := newFixture(t)
	p := f.write(t, "a.md", demoInput)
	f.proc.Env = func() *roles.Env { return nil }
	if err := f.proc.Process(context.Background(), p); err == nil {
		t.Fatal("Process with no env should fail")
	}
	if f.proc.State.Last(p) != 0 {
		t.Fatalf("watermark advanced to %d", f.proc.State.Last(p))
	}

	// Once the env is back the same file still runs.
	f.proc.Env = func() *roles.Env { return f.env }
	if err := f.proc.Process(context.Background(), p); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if hs, _ := mailbox.ListInbox(f.root, "dev_mgr"); len(hs) != 1 {
		t.Fatalf("manager inbox = %d, want 1", len(hs))
	}
}

func TestProcessor_emptyInput(t *testing.T) {
	f := newFixture(t)
	p := f.write(t, "empty.md", "  \n")
	if err := f.proc.Process(context.Background(), p); err != nil {
		t.Fatalf("Process: %v", err)
	}
	errs, _ := filepath.Glob(filepath.Join(f.env.OutputsDir, "errors", "*-empty.md"))
	if len(errs) != 1 {
		t.Fatalf("error reports = %v", errs)
	}
	if f.proc.State.Last(p) == 0 {
		t.Fatal("watermark should advance for malformed input")
	}
	if hs, _ := mailbox.ListInbox(f.root, "dev_mgr"); len(hs) != 0 {
		t.Fatalf("manager inbox = %d", len(hs))
	}
}

func TestProcessor_ignoresOtherFiles(t *testing.T) {
	f := newFixture(t)
	p := f.write(t, "notes.txt", demoInput)
	if err := f.proc.Process(context.Background(), p); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := f.proc.Process(context.Background(), filepath.Join(f.proc.InputsDir, "gone.md")); err != nil {
		t.Fatalf("Process missing: %v", err)
	}
	if jobs, _ := f.env.Ledger.ListJobs(context.Background(), 0); len(jobs) != 0 {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestProcessor_pipelineFailure(t *testing.T) {
	f := newFixture(t)
	f.env.Org = org.New(org.Agent{ID: "boss", Name: "社長うさぎ", Role: org.RoleBoss})
	p := f.write(t, "team/b.md", demoInput)

	err := f.proc.Process(context.Background(), p)
	if !errors.Is(err, org.ErrAssignment) {
		t.Fatalf("err = %v, want ErrAssignment", err)
	}
	jobs, _ := f.env.Ledger.ListJobs(context.Background(), 0)
	if len(jobs) != 1 || jobs[0].Result != models.JobFailed || jobs[0].Source != filepath.Join("team", "b.md") {
		t.Fatalf("jobs = %+v", jobs)
	}
	errs, _ := filepath.Glob(filepath.Join(f.env.OutputsDir, "errors", "*-b.md"))
	if len(errs) != 1 {
		t.Fatalf("error reports = %v", errs)
	}
	if f.proc.State.Last(p) == 0 {
		t.Fatal("watermark should advance after a failed job")
	}
}

func TestProcessor_approvalModeAndTrash(t *testing.T) {
	f := newFixture(t)
	f.env.Runtime.Pipeline = config.PipelineApproval
	f.env.Runtime.Watch.InputPostprocess = "trash"
	p := f.write(t, "sub/c.md", demoInput)

	if err := f.proc.Process(context.Background(), p); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("input should be trashed, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(config.TrashDir(f.root), "inputs", "sub", "c.md")); err != nil {
		t.Fatalf("trashed input: %v", err)
	}
	rep, err := os.ReadFile(report.Path(f.env.OutputsDir))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(string(rep), "承認フロー") {
		t.Fatalf("report:\n%s", rep)
	}
	jobs, _ := f.env.Ledger.ListJobs(context.Background(), 0)
	if len(jobs) != 1 || jobs[0].Result != models.JobDone {
		t.Fatalf("jobs = %+v", jobs)
	}
	if _, err := os.Stat(filepath.Join(report.ArtifactsDir(jobs[0].Workdir), "90-report.md")); err != nil {
		t.Fatalf("approval report artifact: %v", err)
	}
}

func TestService_picksUpExistingInputs(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", demoInput)
	svc := &Service{Processor: f.proc, Debounce: 20 * time.Millisecond, Workers: 2}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		jobs, _ := f.env.Ledger.ListJobs(context.Background(), 0)
		if len(jobs) == 1 && jobs[0].Result == models.JobDone {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("job not processed, jobs = %+v", jobs)
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}
