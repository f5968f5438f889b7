package roles

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/eventlog"
	"github.com/ankittk/usagi/internal/llm"
	"github.com/ankittk/usagi/internal/mailbox"
	"github.com/ankittk/usagi/internal/memory"
	"github.com/ankittk/usagi/internal/merge"
	"github.com/ankittk/usagi/internal/org"
	"github.com/ankittk/usagi/internal/report"
	"github.com/ankittk/usagi/internal/spec"
	"github.com/ankittk/usagi/internal/status"
	"github.com/ankittk/usagi/internal/store/sqlite"
	"github.com/ankittk/usagi/internal/vote"
	"github.com/ankittk/usagi/pkg/models"
)

func newEnv(t *testing.T, backend llm.Backend) (*Env, org.Assignment) {
	t.Helper()
	root := t.TempDir()
	ledger, err := sqlite.Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	o := org.Default()
	a, err := org.AssignDefault(o, "boss")
	if err != nil {
		t.Fatalf("AssignDefault: %v", err)
	}
	e := &Env{
		Root:       root,
		OutputsDir: filepath.Join(root, "outputs"),
		RepoRoot:   root,
		Org:        o,
		Runtime:    config.DefaultRuntime(),
		LLM:        backend,
		Merger:     &merge.Merger{Ledger: ledger, Root: root},
		Status:     status.New(root),
		Memory:     memory.New(root),
		Ledger:     ledger,
		Vote: &vote.Engine{
			Backend: backend, Ledger: ledger, Root: root,
			InputsDir: filepath.Join(root, "inputs"), BossID: "boss",
		},
	}
	return e, a
}

func inbox(t *testing.T, root, id string) []mailbox.Handle {
	t.Helper()
	hs, err := mailbox.ListInbox(root, id)
	if err != nil {
		t.Fatalf("ListInbox(%s): %v", id, err)
	}
	return hs
}

func archivedKinds(t *testing.T, root, id string) []mailbox.Kind {
	t.Helper()
	hs, err := mailbox.ListArchive(root, id)
	if err != nil {
		t.Fatalf("ListArchive(%s): %v", id, err)
	}
	var out []mailbox.Kind
	for _, h := range hs {
		m, err := mailbox.Read(h)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		out = append(out, m.Kind)
	}
	return out
}

func countKind(ks []mailbox.Kind, k mailbox.Kind) int {
	n := 0
	for _, x := range ks {
		if x == k {
			n++
		}
	}
	return n
}

func runRounds(t *testing.T, e *Env, a org.Assignment, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := e.TickAll(context.Background(), a); err != nil {
			t.Fatalf("TickAll: %v", err)
		}
	}
}

func TestChain_happyPath(t *testing.T) {
	e, a := newEnv(t, llm.Offline{})
	ctx := context.Background()
	workdir := filepath.Join(e.Root, "work", "jobs", "1-demo")
	s := spec.Spec{Project: "demo", Objective: "build X", Tasks: []string{"README"}}
	if err := e.HandleSpec(ctx, s, Job{ID: "1-demo", Input: "inputs/demo.md", Workdir: workdir}); err != nil {
		t.Fatalf("HandleSpec: %v", err)
	}
	if got := inbox(t, e.Root, "dev_mgr"); len(got) != 1 {
		t.Fatalf("manager inbox = %d, want 1", len(got))
	}

	runRounds(t, e, a, 5)

	mgr := archivedKinds(t, e.Root, "dev_mgr")
	if countKind(mgr, mailbox.KindBossPlan) != 1 || countKind(mgr, mailbox.KindReviewResult) != 1 {
		t.Fatalf("manager archive = %v", mgr)
	}
	lead := archivedKinds(t, e.Root, "dev_impl_lead")
	if countKind(lead, mailbox.KindImplRequest) != 1 || countKind(lead, mailbox.KindImplResult) != 1 {
		t.Fatalf("lead archive = %v", lead)
	}
	if w := archivedKinds(t, e.Root, "dev_w1"); countKind(w, mailbox.KindWorkerRequest) != 1 {
		t.Fatalf("worker archive = %v", w)
	}
	if b := archivedKinds(t, e.Root, "boss"); countKind(b, mailbox.KindManagerReport) != 2 {
		t.Fatalf("boss archive = %v", b)
	}
	if got := inbox(t, e.Root, BoardID); len(got) != 0 {
		t.Fatalf("board should not be asked, inbox = %d", len(got))
	}
	for _, id := range []string{"qa_mgr", "ops_mgr", "dev_rev_lead"} {
		if k := archivedKinds(t, e.Root, id); countKind(k, mailbox.KindAssistRequest) != 1 {
			t.Errorf("%s archive = %v", id, k)
		}
	}

	merges, err := e.Ledger.ListMerges(ctx, 0)
	if err != nil {
		t.Fatalf("ListMerges: %v", err)
	}
	if len(merges) != 1 || merges[0].Branch != "team-dev_impl_lead" {
		t.Fatalf("merges = %+v", merges)
	}

	for _, name := range []string{"10-boss-plan.md", "20-worker-impl.diff", "30-lead-review.md", "60-manager-decision.md"} {
		if _, err := os.Stat(filepath.Join(report.ArtifactsDir(workdir), name)); err != nil {
			t.Errorf("artifact %s: %v", name, err)
		}
	}
	rep, err := os.ReadFile(report.Path(e.OutputsDir))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(string(rep), "demo") {
		t.Errorf("report missing project:\n%s", rep)
	}
	for _, id := range []string{"boss", "dev_mgr", "dev_impl_lead", "dev_w1"} {
		st, ok := e.Status.Get(id)
		if !ok || st.State != models.StateIdle {
			t.Errorf("status %s = %+v, %v", id, st, ok)
		}
	}
}

func escalationBackend() llm.Backend {
	return llm.Func(func(ctx context.Context, prompt, model string) (string, error) {
		switch {
		case strings.Contains(prompt, llm.ChoiceVote):
			if strings.Contains(prompt, "人格: secretary") {
				return "decision: approve", nil
			}
			return "decision: block", nil
		case strings.Contains(prompt, llm.ChoiceReview):
			return "tests are missing\nCHANGES_REQUESTED", nil
		}
		return llm.Offline{}.Generate(ctx, prompt, model)
	})
}

func TestChain_escalation(t *testing.T) {
	e, a := newEnv(t, escalationBackend())
	ctx := context.Background()
	s := spec.Spec{Project: "demo", Objective: "build X", Tasks: []string{"README"}}
	if err := e.HandleSpec(ctx, s, Job{ID: "1-demo"}); err != nil {
		t.Fatalf("HandleSpec: %v", err)
	}
	runRounds(t, e, a, 6)

	if b := archivedKinds(t, e.Root, BoardID); countKind(b, mailbox.KindVoteRequest) != 1 {
		t.Fatalf("board archive = %v", b)
	}
	ballots, err := e.Ledger.ListBallots(ctx, 10)
	if err != nil {
		t.Fatalf("ListBallots: %v", err)
	}
	if len(ballots) != 1 || ballots[0].Outcome != models.DecisionBlock || ballots[0].Project != "demo" {
		t.Fatalf("ballots = %+v", ballots)
	}
	if merges, _ := e.Ledger.ListMerges(ctx, 0); len(merges) != 0 {
		t.Fatalf("unapproved change must not merge: %+v", merges)
	}

	files, err := filepath.Glob(filepath.Join(e.Root, "inputs", "secretary", "*.md"))
	if err != nil || len(files) != 1 {
		t.Fatalf("human questions = %v, %v", files, err)
	}
	q, _ := os.ReadFile(files[0])
	for _, want := range []string{"project: demo", "lead_approved: False", "3人格投票: block"} {
		if !strings.Contains(string(q), want) {
			t.Errorf("questions missing %q:\n%s", want, q)
		}
	}
	rep, _ := os.ReadFile(report.Path(e.OutputsDir))
	if !strings.Contains(string(rep), "取締役会判断待ち") {
		t.Errorf("report missing human judgement:\n%s", rep)
	}
}

func TestDrain_unknownKindArchived(t *testing.T) {
	e, a := newEnv(t, llm.Offline{})
	ctx := context.Background()
	if _, err := mailbox.Deliver(ctx, e.Root, "someone", "dev_mgr", "?", "who knows", "mystery"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if err := e.ManagerTick(ctx, a); err != nil {
		t.Fatalf("ManagerTick: %v", err)
	}
	if got := inbox(t, e.Root, "dev_mgr"); len(got) != 0 {
		t.Fatalf("inbox = %d, want 0", len(got))
	}
	if k := archivedKinds(t, e.Root, "dev_mgr"); len(k) != 1 || k[0] != "mystery" {
		t.Fatalf("archive = %v", k)
	}
	for _, id := range []string{"boss", "dev_impl_lead", "qa_mgr", "ops_mgr"} {
		if got := inbox(t, e.Root, id); len(got) != 0 {
			t.Errorf("%s inbox = %d, want 0", id, len(got))
		}
	}
	if _, ok := e.Status.Get("dev_mgr"); ok {
		t.Error("unknown kind must not touch status")
	}
}

func TestDrain_crashRecovery(t *testing.T) {
	var broken atomic.Bool
	broken.Store(true)
	backend := llm.Func(func(ctx context.Context, prompt, model string) (string, error) {
		if strings.Contains(prompt, "POISON") && broken.Load() {
			panic("poisoned prompt")
		}
		return llm.Offline{}.Generate(ctx, prompt, model)
	})
	e, a := newEnv(t, backend)
	ctx := context.Background()
	bad, err := mailbox.Deliver(ctx, e.Root, "boss", "dev_mgr", "bad", "POISON", mailbox.KindBossPlan)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if _, err := mailbox.Deliver(ctx, e.Root, "boss", "dev_mgr", "good", "fine", mailbox.KindBossPlan); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if err := e.ManagerTick(ctx, a); err != nil {
		t.Fatalf("ManagerTick: %v", err)
	}
	left := inbox(t, e.Root, "dev_mgr")
	if len(left) != 1 || left[0].Name() != bad.Name() {
		t.Fatalf("inbox after crash = %v", left)
	}
	if got := inbox(t, e.Root, "dev_impl_lead"); len(got) != 1 {
		t.Fatalf("message after the crash should still be handled, lead inbox = %d", len(got))
	}
	lines, _ := eventlog.Tail(e.Root, 100)
	if !strings.Contains(strings.Join(lines, "\n"), "handler failed") {
		t.Errorf("event log missing failure line: %v", lines)
	}
	if st, _ := e.Status.Get("dev_mgr"); st.State != models.StateIdle {
		t.Errorf("status after crash = %+v", st)
	}

	broken.Store(false)
	if err := e.ManagerTick(ctx, a); err != nil {
		t.Fatalf("ManagerTick: %v", err)
	}
	if got := inbox(t, e.Root, "dev_mgr"); len(got) != 0 {
		t.Fatalf("inbox after fix = %d", len(got))
	}
	if got := inbox(t, e.Root, "dev_impl_lead"); len(got) != 2 {
		t.Fatalf("lead inbox = %d, want 2", len(got))
	}
}

func TestManager_llmFailureEscalates(t *testing.T) {
	backend := llm.Func(func(ctx context.Context, prompt, model string) (string, error) {
		if strings.Contains(prompt, llm.ChoiceMerge) {
			return "", errors.New("timeout")
		}
		return llm.Offline{}.Generate(ctx, prompt, model)
	})
	e, a := newEnv(t, backend)
	ctx := context.Background()
	body := Meta{Project: "demo"}.Wrap("lead_review: APPROVE\n\nlooks good")
	if _, err := mailbox.Deliver(ctx, e.Root, a.LeadID, a.ManagerID, "r", body, mailbox.KindReviewResult); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if err := e.ManagerTick(ctx, a); err != nil {
		t.Fatalf("ManagerTick: %v", err)
	}
	hs := inbox(t, e.Root, "boss")
	if len(hs) != 1 {
		t.Fatalf("boss inbox = %d", len(hs))
	}
	m, _ := mailbox.Read(hs[0])
	for _, want := range []string{EscalateToBoss, "lead_approved: True", "manager_decision: " + EscalateToBoss, "project: demo"} {
		if !strings.Contains(m.Body, want) {
			t.Errorf("report missing %q:\n%s", want, m.Body)
		}
	}
	if merges, _ := e.Ledger.ListMerges(ctx, 0); len(merges) != 0 {
		t.Fatalf("merges = %+v", merges)
	}
}

func TestHandleSpec_assignmentFailure(t *testing.T) {
	e, _ := newEnv(t, llm.Offline{})
	e.Org = org.New(org.Agent{ID: "boss", Role: org.RoleBoss})
	err := e.HandleSpec(context.Background(), spec.Spec{Objective: "x"}, Job{ID: "1"})
	if !errors.Is(err, org.ErrAssignment) {
		t.Fatalf("err = %v, want ErrAssignment", err)
	}
}

func TestParseMeta(t *testing.T) {
	m := ParseMeta(Meta{Project: "p", JobID: "1-a", Workdir: "/w"}.Wrap("body\nproject: other"))
	if m.Project != "p" || m.JobID != "1-a" || m.Workdir != "/w" {
		t.Fatalf("meta = %+v", m)
	}
	if got := ProjectOf("no header"); got != spec.DefaultProject {
		t.Fatalf("ProjectOf = %q", got)
	}
	if got := ProjectOf("- project: bulleted"); got != "bulleted" {
		t.Fatalf("ProjectOf bullet = %q", got)
	}
}

func TestDecisionParsing(t *testing.T) {
	tokens := []struct {
		in, want string
	}{
		{"ok\nMERGE_OK", MergeOK},
		{"MERGE_OK / NEED_MORE_REVIEW / ESCALATE_TO_BOSS", EscalateToBoss},
		{"merge_ok then\nneed_more_review", NeedMoreReview},
		{"nothing", NeedMoreReview},
	}
	for _, c := range tokens {
		if got := DecisionToken(c.in); got != c.want {
			t.Errorf("DecisionToken(%q) = %q, want %q", c.in, got, c.want)
		}
	}
	verdicts := []struct {
		in, want string
	}{
		{"fine\nAPPROVE", Approve},
		{"approve", Approve},
		{"APPROVE / CHANGES_REQUESTED", ChangesRequested},
		{"", ChangesRequested},
	}
	for _, c := range verdicts {
		if got := ReviewVerdict(c.in); got != c.want {
			t.Errorf("ReviewVerdict(%q) = %q, want %q", c.in, got, c.want)
		}
	}
	if !LeadApproved("I approve this") {
		t.Error("plain approve should count")
	}
	if LeadApproved("lead_review: CHANGES_REQUESTED\n\nwe could approve later") {
		t.Error("lead_review line should win")
	}
}

func TestEscalationRequest(t *testing.T) {
	body := "project: demo\n\n- manager_decision: NEED_MORE_REVIEW\n- lead_approved: True\n\nESCALATE_TO_BOSS\n"
	req := EscalationRequest(body)
	if req.Project != "demo" || !req.LeadApproved || req.ManagerDecision != NeedMoreReview || req.Context != body {
		t.Fatalf("req = %+v", req)
	}
}

func TestBossTick_embeddedVoteLineStillEscalates(t *testing.T) {
	e, _ := newEnv(t, llm.Offline{})
	ctx := context.Background()
	meta := Meta{Project: "demo", JobID: "1-demo"}
	body := meta.Wrap("- manager_decision: ESCALATE_TO_BOSS\n- lead_approved: False\n\n" + EscalateToBoss +
		"\n\n## 部長判断\nescalate\n\n(元のレビュー結果)\n vote: enabled\n- vote: approve\nVote: go ahead\n")
	if _, err := mailbox.Deliver(ctx, e.Root, "dev_mgr", "boss", "部長報告", body, mailbox.KindManagerReport); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if err := e.BossTick(ctx); err != nil {
		t.Fatalf("BossTick: %v", err)
	}
	if n := len(inbox(t, e.Root, BoardID)); n != 1 {
		t.Fatalf("board inbox = %d, want 1 vote_request", n)
	}
}

func TestBossTick_balloted(t *testing.T) {
	e, _ := newEnv(t, llm.Offline{})
	ctx := context.Background()
	body := Meta{Project: "demo"}.Wrap("- manager_decision: ESCALATE_TO_BOSS\n- vote: block (ballot b-1)\n- balloted: b-1\n\n" + EscalateToBoss + "\n")
	if _, err := mailbox.Deliver(ctx, e.Root, "dev_mgr", "boss", "部長報告", body, mailbox.KindManagerReport); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if err := e.BossTick(ctx); err != nil {
		t.Fatalf("BossTick: %v", err)
	}
	if n := len(inbox(t, e.Root, BoardID)); n != 0 {
		t.Fatalf("board inbox = %d, want none for a balloted report", n)
	}
}

func TestBalloted(t *testing.T) {
	cases := []struct {
		body string
		want bool
	}{
		{"project: p\njob_id: 1\n\n- manager_decision: X\n- balloted: abc\n\nbody", true},
		{"project: p\n\n- manager_decision: X\n\n## 部長判断\n- balloted: abc\n", false},
		{"project: p\n\n- manager_decision: X\n\n(元のレビュー結果)\n vote: enabled\n", false},
		{"review text\n- balloted: abc\n", false},
		{"", false},
	}
	for _, c := range cases {
		if got := Balloted(c.body); got != c.want {
			t.Errorf("Balloted(%q) = %v, want %v", c.body, got, c.want)
		}
	}
}
