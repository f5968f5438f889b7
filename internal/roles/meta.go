package roles

import (
	"strings"

	"github.com/ankittk/usagi/internal/spec"
)

// Meta is the job context carried at the top of every body the chain sends.
type Meta struct {
	Project string
	JobID   string
	Workdir string
}

// ParseMeta reads "project:", "job_id:" and "workdir:" lines (optionally bulleted);
// the first occurrence of each wins. Project defaults to usagi-project.
func ParseMeta(body string) Meta {
	var m Meta
	for _, line := range strings.Split(body, "\n") {
		k, v, ok := field(line)
		if !ok {
			continue
		}
		switch k {
		case "project":
			if m.Project == "" {
				m.Project = v
			}
		case "job_id":
			if m.JobID == "" {
				m.JobID = v
			}
		case "workdir":
			if m.Workdir == "" {
				m.Workdir = v
			}
		}
	}
	if m.Project == "" {
		m.Project = spec.DefaultProject
	}
	return m
}

// ProjectOf returns the project named in body.
func ProjectOf(body string) string {
	return ParseMeta(body).Project
}

// Wrap prefixes body with the meta lines.
func (m Meta) Wrap(body string) string {
	var b strings.Builder
	p := m.Project
	if p == "" {
		p = spec.DefaultProject
	}
	b.WriteString("project: " + p + "\n")
	if m.JobID != "" {
		b.WriteString("job_id: " + m.JobID + "\n")
	}
	if m.Workdir != "" {
		b.WriteString("workdir: " + m.Workdir + "\n")
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n")
	return b.String()
}

// BallotedKey marks a report whose sender already ran the board vote.
const BallotedKey = "balloted"

// Balloted reports whether the report header carries a "- balloted:" bullet. The header is
// the bullet block right after the meta lines; embedded review, diff or LLM text is never scanned.
func Balloted(body string) bool {
	lines := strings.Split(body, "\n")
	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "- ") {
			break
		}
		if line == "" {
			continue
		}
		k, _, ok := field(line)
		if !ok || (k != "project" && k != "job_id" && k != "workdir") {
			return false
		}
	}
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "- ") {
			return false
		}
		if k, _, ok := field(line); ok && k == BallotedKey {
			return true
		}
	}
	return false
}

// field parses "key: value" or "- key: value".
func field(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	line = strings.TrimSpace(strings.TrimPrefix(line, "- "))
	k, v, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	k = strings.ToLower(strings.TrimSpace(k))
	v = strings.TrimSpace(v)
	if k == "" || v == "" || strings.ContainsAny(k, " \t") {
		return "", "", false
	}
	return k, v, true
}

// bullets returns up to n "- " lines of text with the marker stripped.
func bullets(text string, n int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		l := strings.TrimSpace(line)
		if !strings.HasPrefix(l, "-") {
			continue
		}
		l = strings.TrimSpace(strings.TrimLeft(l, "-"))
		if l == "" {
			continue
		}
		out = append(out, l)
		if len(out) == n {
			break
		}
	}
	return out
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(なし)"
	}
	return s
}
