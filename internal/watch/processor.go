// Package watch turns markdown files dropped under the inputs directory into jobs:
// fsnotify events are debounced, queued and processed by a bounded worker pool, with a
// per-file mtime watermark so each version of a file runs once.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ankittk/usagi/internal/approval"
	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/eventlog"
	"github.com/ankittk/usagi/internal/otel"
	"github.com/ankittk/usagi/internal/report"
	"github.com/ankittk/usagi/internal/roles"
	"github.com/ankittk/usagi/internal/spec"
	"github.com/ankittk/usagi/internal/vote"
	"github.com/ankittk/usagi/pkg/models"
)

// Processor handles one input file at a time. Env is called per job so policy reloads
// take effect without a restart.
type Processor struct {
	InputsDir string
	WorkRoot  string
	State     *StateStore
	Env       func() *roles.Env
}

// Process runs the pipeline for path unless its current mtime was already handled.
// Malformed inputs produce an error report and still advance the watermark; so does a
// failed pipeline, whose error is returned after the bookkeeping is done.
func (p *Processor) Process(ctx context.Context, path string) error {
	if !IsInput(path) {
		return nil
	}
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return nil
	}
	env := p.Env()
	if env == nil {
		return errors.New("watch: runtime env not ready")
	}
	mtime := fi.ModTime().UnixNano()
	if !p.State.Claim(path, mtime) {
		return nil
	}
	defer p.State.Release(path)

	rel := p.rel(path)
	name := filepath.Base(path)
	advance := func() {
		p.State.Set(path, mtime)
		if err := p.State.Save(); err != nil {
			slog.Error("save watch state", "err", err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", rel, err)
	}
	s, err := spec.Parse(string(raw))
	if err != nil {
		detail := "入力ファイルを解釈できませんでした。\n\n## 元の内容\n\n```\n" + string(raw) + "\n```"
		if errors.Is(err, spec.ErrEmpty) {
			detail = "入力ファイルが空です。"
		}
		if _, werr := report.WriteErrorReport(env.OutputsDir, rel, "", "読み込みエラー", detail); werr != nil {
			slog.Error("write error report", "input", rel, "err", werr)
		}
		eventlog.Appendf(env.Root, "parse error (%s): %v", name, err)
		advance()
		return nil
	}
	if vr := spec.Validate(s, false); len(vr.Warnings) > 0 {
		eventlog.Appendf(env.Root, "warnings (%s): %s", name, strings.Join(vr.Warnings, "; "))
	}
	if s.Objective == "" {
		s.Objective = strings.TrimSpace(string(raw))
	}

	start := time.Now()
	job := roles.Job{
		ID:    fmt.Sprintf("%d-%s", start.Unix(), strings.TrimSuffix(name, filepath.Ext(name))),
		Input: rel,
	}
	job.Workdir = filepath.Join(p.WorkRoot, "jobs", job.ID)
	if err := os.MkdirAll(job.Workdir, 0o755); err != nil {
		slog.Warn("create workdir", "workdir", job.Workdir, "err", err)
	}

	bossID := env.Runtime.BossID
	if bossID == "" {
		bossID = "boss"
	}
	bossName := displayName(env, bossID)
	env.SetStatus(bossID, models.StateWorking, name)
	env.Notify.Announce(ctx, bossName, "開始: "+name)
	eventlog.Appendf(env.Root, "開始: %s", name)
	if env.Ledger != nil {
		rec := models.Job{JobID: job.ID, Source: rel, Project: s.Project, Workdir: job.Workdir, Result: models.JobRunning, StartedAt: start.UTC()}
		if err := env.Ledger.StartJob(ctx, rec); err != nil {
			slog.Error("ledger start job", "job", job.ID, "err", err)
		}
	}
	otel.AddInflightJob()
	defer otel.RemoveInflightJob()

	eventlog.Appendf(env.Root, "pipeline start: project=%s job_id=%s mode=%s", s.Project, job.ID, env.Runtime.Pipeline)
	runErr := safeRun(func() error { return p.run(ctx, env, s, job) })

	result, detail := models.JobDone, ""
	if runErr != nil {
		result, detail = models.JobFailed, runErr.Error()
		slog.Error("pipeline failed", "input", rel, "job", job.ID, "err", runErr)
		eventlog.Appendf(env.Root, "pipeline error: %v", runErr)
		body := "パイプライン実行中にエラーが発生しました。\n\n## エラー\n\n```\n" + runErr.Error() + "\n```"
		if _, err := report.WriteErrorReport(env.OutputsDir, rel, job.ID, "実行エラー", body); err != nil {
			slog.Error("write error report", "input", rel, "err", err)
		}
		env.Notify.Announce(ctx, bossName, "失敗: "+name)
	}
	env.Notify.Announce(ctx, bossName, "終了: "+name)
	eventlog.Appendf(env.Root, "終了: %s", name)
	env.SetStatus(bossID, models.StateIdle, "")
	advance()
	if env.Ledger != nil {
		if err := env.Ledger.FinishJob(ctx, job.ID, result, detail); err != nil {
			slog.Error("ledger finish job", "job", job.ID, "err", err)
		}
	}
	otel.RecordJob(ctx, result, time.Since(start))

	if env.Runtime.Watch.InputPostprocess == "trash" {
		p.trash(env.Root, path, rel)
	}
	return runErr
}

func (p *Processor) run(ctx context.Context, env *roles.Env, s spec.Spec, job roles.Job) error {
	if env.Runtime.Pipeline != config.PipelineApproval {
		if err := env.HandleSpec(ctx, s, job); err != nil {
			return err
		}
		eventlog.Appendf(env.Root, "boss delegated: %s", job.ID)
		return nil
	}
	res, err := approval.Run(ctx, approval.Params{Env: env, Spec: s, JobID: job.ID, Workdir: job.Workdir})
	if err != nil {
		return err
	}
	ok := res.Outcome == roles.MergeOK || res.Outcome == models.DecisionApprove
	_, err = report.Update(env.OutputsDir, report.Entry{
		Input:   job.Input,
		Project: s.Project,
		JobID:   job.ID,
		Workdir: job.Workdir,
		OK:      ok,
		Tasks:   s.Tasks,
		Note:    "承認フロー: " + res.Outcome,
		Summary: firstLine(s.Objective),
		Decisions: []string{
			"manager/vote: " + res.Outcome,
			fmt.Sprintf("messages: %d (quorum %d)", len(res.Messages), vote.Quorum),
		},
	})
	return err
}

// trash moves a consumed input to .usagi/trash/inputs/<rel>.
func (p *Processor) trash(root, path, rel string) {
	dst := filepath.Join(config.TrashDir(root), "inputs", rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		eventlog.Appendf(root, "input trash failed: %s", filepath.Base(path))
		return
	}
	if err := os.Rename(path, dst); err != nil {
		eventlog.Appendf(root, "input trash failed: %s", filepath.Base(path))
		return
	}
	eventlog.Appendf(root, "input trashed: %s", rel)
}

func (p *Processor) rel(path string) string {
	if p.InputsDir != "" {
		if r, err := filepath.Rel(p.InputsDir, path); err == nil && !strings.HasPrefix(r, "..") {
			return r
		}
	}
	return filepath.Base(path)
}

func displayName(env *roles.Env, id string) string {
	if env.Org != nil {
		if a, ok := env.Org.Find(id); ok {
			return a.DisplayName()
		}
	}
	return id
}

func safeRun(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
