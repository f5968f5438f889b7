// Package report maintains outputs/report.md, the boss's state file. The file is rewritten
// section by section: TODO and history are merged, the human-judgement queue is carried over.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	title        = "# 社長レポート"
	secTODO      = "## TODO"
	secLatest    = "## 最新状況"
	secHistory   = "## 履歴（直近20）"
	secHuman     = "## 人間判断が必要"
	placeholder  = "- [ ] (なし)"
	historyLimit = 20
	tsLayout     = "2006-01-02 15:04:05"
)

var mu sync.Mutex

// Path returns <outputsDir>/report.md.
func Path(outputsDir string) string {
	return filepath.Join(outputsDir, "report.md")
}

// Entry is one update of the report.
type Entry struct {
	Time      time.Time
	Input     string
	Project   string
	JobID     string
	Workdir   string
	OK        bool
	Tasks     []string
	Note      string
	Summary   string
	Decisions []string
}

// Update merges e into the report: new tasks are added to TODO (and checked when e.OK),
// e becomes the latest status and the newest of at most 20 history items.
func Update(outputsDir string, e Entry) (string, error) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Project == "" {
		e.Project = "default"
	}
	mu.Lock()
	defer mu.Unlock()
	p := Path(outputsDir)
	existing, err := readFile(p)
	if err != nil {
		return "", err
	}
	todo := parseTODO(existing)
	for _, t := range e.Tasks {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := todo[t]; !ok {
			todo[t] = false
		}
		if e.OK {
			todo[t] = true
		}
	}
	hist := append([]historyItem{itemFrom(e)}, parseHistory(existing)...)
	if len(hist) > historyLimit {
		hist = hist[:historyLimit]
	}
	human := Section(existing, secHuman)
	return p, writeFile(p, render(todo, e, hist, human))
}

// AppendHumanJudgement adds an unchecked item to the human-judgement section.
func AppendHumanJudgement(outputsDir, what, details string) (string, error) {
	mu.Lock()
	defer mu.Unlock()
	p := Path(outputsDir)
	text, err := readFile(p)
	if err != nil {
		return "", err
	}
	if text == "" {
		text = title + "\n"
	}
	item := fmt.Sprintf("- [ ] [%s] %s", time.Now().Format(tsLayout), what)
	if d := strings.TrimSpace(details); d != "" {
		item += "\n  - " + d
	}
	sec := Section(text, secHuman)
	if sec == "" || sec == placeholder {
		sec = item
	} else {
		sec += "\n" + item
	}
	return p, writeFile(p, ReplaceSection(text, secHuman, sec))
}

// WriteErrorReport stores a malformed-input or pipeline failure report under outputs/errors/
// and records a failed history entry pointing at it.
func WriteErrorReport(outputsDir, input, jobID, heading, detail string) (string, error) {
	now := time.Now()
	dir := filepath.Join(outputsDir, "errors")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	p := filepath.Join(dir, fmt.Sprintf("%s-%s.md", now.Format("20060102-150405"), stem))
	body := fmt.Sprintf("# usagi watch: %s\n\n- input: %s\n- time: %s\n\n%s\n", heading, input, now.Format(tsLayout), strings.TrimSpace(detail))
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		return "", err
	}
	if jobID == "" {
		jobID = stem
	}
	_, err := Update(outputsDir, Entry{
		Time:  now,
		Input: input,
		JobID: jobID,
		Note:  fmt.Sprintf("%s (errors/%s)", heading, filepath.Base(p)),
	})
	return p, err
}

type historyItem struct {
	TS, Input, Project, JobID, Note string
	OK                              bool
}

func itemFrom(e Entry) historyItem {
	return historyItem{
		TS:      e.Time.Format(tsLayout),
		Input:   e.Input,
		Project: e.Project,
		JobID:   e.JobID,
		OK:      e.OK,
		Note:    oneLine(e.Note),
	}
}

func render(todo map[string]bool, e Entry, hist []historyItem, human string) string {
	var b strings.Builder
	b.WriteString(title + "\n\n")

	b.WriteString(secTODO + "\n")
	if len(todo) == 0 {
		b.WriteString(placeholder + "\n")
	}
	keys := make([]string, 0, len(todo))
	for k := range todo {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if todo[keys[i]] != todo[keys[j]] {
			return !todo[keys[i]]
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		mark := " "
		if todo[k] {
			mark = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s\n", mark, k)
	}
	b.WriteString("\n")

	b.WriteString(secLatest + "\n")
	fmt.Fprintf(&b, "- updated: %s\n", e.Time.Format(tsLayout))
	fmt.Fprintf(&b, "- input: %s\n", e.Input)
	fmt.Fprintf(&b, "- project: %s\n", e.Project)
	fmt.Fprintf(&b, "- job_id: %s\n", e.JobID)
	fmt.Fprintf(&b, "- ok: %s\n", titleBool(e.OK))
	if e.Workdir != "" {
		fmt.Fprintf(&b, "- workdir: `%s`\n", e.Workdir)
	}
	if n := oneLine(e.Note); n != "" {
		fmt.Fprintf(&b, "- note: %s\n", n)
	}
	if s := oneLine(e.Summary); s != "" {
		fmt.Fprintf(&b, "- summary: %s\n", s)
	}
	if len(e.Decisions) > 0 {
		b.WriteString("- decisions:\n")
		for _, d := range e.Decisions {
			fmt.Fprintf(&b, "  - %s\n", oneLine(d))
		}
	}
	b.WriteString("\n")

	b.WriteString(secHistory + "\n")
	for _, h := range hist {
		b.WriteString("-\n")
		fmt.Fprintf(&b, "  - ts: %s\n", h.TS)
		fmt.Fprintf(&b, "  - input: %s\n", h.Input)
		fmt.Fprintf(&b, "  - project: %s\n", h.Project)
		fmt.Fprintf(&b, "  - job_id: %s\n", h.JobID)
		fmt.Fprintf(&b, "  - ok: %s\n", titleBool(h.OK))
		if h.Note != "" {
			fmt.Fprintf(&b, "  - note: %s\n", h.Note)
		}
	}
	b.WriteString("\n")

	b.WriteString(secHuman + "\n")
	if strings.TrimSpace(human) == "" {
		human = placeholder
	}
	b.WriteString(human + "\n")
	return b.String()
}

func parseTODO(text string) map[string]bool {
	todo := map[string]bool{}
	for _, line := range strings.Split(Section(text, secTODO), "\n") {
		s := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(s, "- [x] "):
			todo[strings.TrimPrefix(s, "- [x] ")] = true
		case strings.HasPrefix(s, "- [ ] "):
			todo[strings.TrimPrefix(s, "- [ ] ")] = false
		}
	}
	delete(todo, "(なし)")
	return todo
}

// parseHistory returns history items newest first, as rendered.
func parseHistory(text string) []historyItem {
	var out []historyItem
	var cur map[string]string
	flush := func() {
		if cur != nil && cur["ts"] != "" {
			out = append(out, historyItem{
				TS:      cur["ts"],
				Input:   cur["input"],
				Project: cur["project"],
				JobID:   cur["job_id"],
				OK:      strings.EqualFold(cur["ok"], "true"),
				Note:    cur["note"],
			})
		}
		cur = nil
	}
	for _, line := range strings.Split(Section(text, secHistory), "\n") {
		s := strings.TrimSpace(line)
		if s == "-" {
			flush()
			cur = map[string]string{}
			continue
		}
		if cur == nil || !strings.HasPrefix(s, "- ") {
			continue
		}
		k, v, ok := strings.Cut(s[2:], ":")
		if ok {
			cur[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	flush()
	return out
}

// Section returns the trimmed body under heading, up to the next "## " heading.
func Section(text, heading string) string {
	var buf []string
	in := false
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == heading {
			in = true
			continue
		}
		if in && strings.HasPrefix(line, "## ") {
			break
		}
		if in {
			buf = append(buf, line)
		}
	}
	return strings.TrimSpace(strings.Join(buf, "\n"))
}

// ReplaceSection swaps the body under heading, appending the section when absent.
func ReplaceSection(text, heading, body string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == heading {
			start = i
			break
		}
	}
	if start < 0 {
		return strings.TrimRight(text, "\n") + "\n\n" + heading + "\n" + body + "\n"
	}
	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "## ") {
			end = i
			break
		}
	}
	out := append([]string{}, lines[:start+1]...)
	out = append(out, strings.Split(body, "\n")...)
	if end < len(lines) {
		out = append(out, "")
		out = append(out, lines[end:]...)
	}
	return strings.Join(out, "\n") + "\n"
}

func readFile(p string) (string, error) {
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return "", nil
	}
	return string(data), err
}

func writeFile(p, content string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func titleBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
