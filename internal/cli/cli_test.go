package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestNewRootCmd_hasSubcommands(t *testing.T) {
	root := NewRootCmd("test")
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"start", "stop", "status", "run", "send", "inbox", "org", "validate", "vote", "jobs", "events", "apikey", "daemon"} {
		if !names[want] {
			t.Errorf("expected subcommand %q", want)
		}
	}
}

func TestNewRootCmd_versionFlag(t *testing.T) {
	root := NewRootCmd("1.2.3")
	if root.Version != "1.2.3" {
		t.Errorf("Version: got %q", root.Version)
	}
}

func TestNewRootCmd_hasRootFlag(t *testing.T) {
	root := NewRootCmd("")
	if root.PersistentFlags().Lookup("root") == nil {
		t.Fatal("expected --root persistent flag")
	}
}

func TestApikeyGenerate(t *testing.T) {
	out, err := execute(t, "", "--root", t.TempDir(), "apikey", "generate")
	if err != nil {
		t.Fatalf("apikey generate: %v", err)
	}
	hexKey := regexp.MustCompile(`(?m)^  ([a-f0-9]{64})$`)
	if !hexKey.MatchString(out) {
		t.Errorf("output should contain a 64-char hex key on its own line; got:\n%s", out)
	}
	if !strings.Contains(out, "USAGI_API_KEY") {
		t.Errorf("output should mention USAGI_API_KEY")
	}
}

func TestApikeyGenerate_quietEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	out, err := execute(t, "", "--root", dir, "apikey", "generate", "-q", "--env", envFile)
	if err != nil {
		t.Fatalf("apikey generate: %v", err)
	}
	key := strings.TrimSpace(out)
	if len(key) != 64 {
		t.Fatalf("quiet output = %q", out)
	}
	b, err := os.ReadFile(envFile)
	if err != nil {
		t.Fatalf("read env: %v", err)
	}
	if string(b) != "USAGI_API_KEY="+key+"\n" {
		t.Errorf("env file = %q", b)
	}
}

func TestSend_writesBossInbox(t *testing.T) {
	dir := t.TempDir()
	if _, err := execute(t, "", "--root", dir, "send", "--source", "slack", "ship", "the", "docs"); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, _ := filepath.Glob(filepath.Join(dir, ".usagi", "inbox", "*-slack.txt"))
	if len(got) != 1 {
		t.Fatalf("inbox files = %v", got)
	}
	b, _ := os.ReadFile(got[0])
	if !strings.Contains(string(b), "ship the docs") {
		t.Errorf("inbox text = %q", b)
	}
	if _, err := execute(t, "  \n", "--root", dir, "send"); err == nil {
		t.Error("send with empty stdin: expected error")
	}
}

func TestOrg_printsAssignment(t *testing.T) {
	out, err := execute(t, "", "--root", t.TempDir(), "org")
	if err != nil {
		t.Fatalf("org: %v", err)
	}
	if !strings.Contains(out, "assignment: boss=boss manager=dev_mgr lead=dev_impl_lead") {
		t.Errorf("org output:\n%s", out)
	}
	if _, err := execute(t, "", "--root", t.TempDir(), "org", "validate"); err != nil {
		t.Fatalf("org validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.md")
	_ = os.WriteFile(good, []byte("---\nproject: demo\n---\n# demo\n\n## 目的\n\nbuild X\n\n## やること\n\n- a\n"), 0o644)
	out, err := execute(t, "", "--root", dir, "validate", good)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "project: demo") {
		t.Errorf("validate output:\n%s", out)
	}
	empty := filepath.Join(dir, "empty.md")
	_ = os.WriteFile(empty, nil, 0o644)
	if _, err := execute(t, "", "--root", dir, "validate", empty); err == nil {
		t.Error("validate empty: expected error")
	}
}

func TestRunJobsEvents(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "inputs", "demo.md")
	_ = os.MkdirAll(filepath.Dir(in), 0o755)
	_ = os.WriteFile(in, []byte("---\nproject: demo\n---\n# demo\n\n## 目的\n\nbuild X\n"), 0o644)

	if out, err := execute(t, "", "--root", dir, "run", "--no-git", in); err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if _, err := os.Stat(filepath.Join(dir, "outputs", "report.md")); err != nil {
		t.Fatalf("report: %v", err)
	}

	out, err := execute(t, "", "--root", dir, "jobs")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, "-demo") || !strings.Contains(out, "demo") {
		t.Errorf("jobs output:\n%s", out)
	}
	out, err = execute(t, "", "--root", dir, "jobs", "merges")
	if err != nil {
		t.Fatalf("jobs merges: %v", err)
	}
	if !strings.Contains(out, "team-dev_impl_lead") {
		t.Errorf("merges output:\n%s", out)
	}
	out, err = execute(t, "", "--root", dir, "events", "-n", "5")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if strings.Count(out, "\n") != 5 {
		t.Errorf("events output:\n%s", out)
	}
	out, err = execute(t, "", "--root", dir, "inbox", "--archive", "boss")
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if !strings.Contains(out, "manager_report") {
		t.Errorf("boss archive:\n%s", out)
	}
}

func TestInbox_empty(t *testing.T) {
	out, err := execute(t, "", "--root", t.TempDir(), "inbox", "dev_mgr")
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if !strings.Contains(out, "(empty)") {
		t.Errorf("inbox output: %q", out)
	}
}

func TestVoteRunAndList(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "", "--root", dir, "vote", "run", "--project", "demo", "--context", "ship it?")
	if err != nil {
		t.Fatalf("vote run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "outcome: approve") {
		t.Errorf("vote run output:\n%s", out)
	}
	out, err = execute(t, "", "--root", dir, "vote", "list")
	if err != nil {
		t.Fatalf("vote list: %v", err)
	}
	if !strings.Contains(out, "demo") {
		t.Errorf("vote list output:\n%s", out)
	}
	if _, err := execute(t, "", "--root", dir, "vote", "run"); err == nil {
		t.Error("vote run without --project: expected error")
	}
}

func TestStatusAndNuke(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "", "--root", dir, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "usagi not running") {
		t.Errorf("status output: %q", out)
	}
	_ = os.MkdirAll(filepath.Join(dir, ".usagi", "logs"), 0o755)
	_ = os.WriteFile(filepath.Join(dir, ".usagi", "logs", "events.log"), []byte("x\n"), 0o644)
	out, err = execute(t, "no\n", "--root", dir, "nuke")
	if err != nil {
		t.Fatalf("nuke: %v", err)
	}
	if !strings.Contains(out, "Aborted.") {
		t.Errorf("nuke output: %q", out)
	}
	if _, err := execute(t, "delete everything\n", "--root", dir, "nuke"); err != nil {
		t.Fatalf("nuke confirm: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".usagi")); !os.IsNotExist(err) {
		t.Errorf(".usagi still present: %v", err)
	}
	out, err = execute(t, "", "--root", dir, "nuke", "--yes")
	if err != nil || !strings.Contains(out, "Nothing to delete") {
		t.Errorf("nuke on empty root: %q %v", out, err)
	}
}
