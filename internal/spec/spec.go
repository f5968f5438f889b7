// Package spec parses the Markdown request files dropped into the inputs directory.
//
// A request has optional YAML front matter (project) and sections matched by heading text:
// 目的/Objective, 背景/Context, やること/Tasks and 制約/Constraints. Missing pieces default to
// empty, so every parse yields a fully populated Spec.
package spec

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultProject is used when the front matter does not name a project.
const DefaultProject = "usagi-project"

// ErrEmpty is returned for blank input.
var ErrEmpty = errors.New("spec is empty")

// Spec is a parsed request.
type Spec struct {
	Project     string
	Objective   string
	Context     string
	Tasks       []string
	Constraints []string
}

var (
	objectiveNames  = []string{"目的", "Objective"}
	contextNames    = []string{"背景", "Context"}
	taskNames       = []string{"やること", "Tasks"}
	constraintNames = []string{"制約", "Constraints"}
)

type frontMatter struct {
	Project any `yaml:"project"`
}

// Parse reads a request. Only blank text and malformed front matter are errors.
func Parse(md string) (Spec, error) {
	if strings.TrimSpace(md) == "" {
		return Spec{}, ErrEmpty
	}
	md = strings.ReplaceAll(md, "\r\n", "\n")
	fm, body := splitFrontMatter(md)
	s := Spec{Project: DefaultProject}
	if fm != "" {
		var f frontMatter
		if err := yaml.Unmarshal([]byte(fm), &f); err != nil {
			return Spec{}, fmt.Errorf("parse front matter: %w", err)
		}
		if f.Project != nil {
			if p := strings.TrimSpace(fmt.Sprint(f.Project)); p != "" {
				s.Project = p
			}
		}
	}
	s.Objective = section(body, objectiveNames)
	s.Context = section(body, contextNames)
	s.Tasks = bullets(body, taskNames)
	s.Constraints = bullets(body, constraintNames)
	return s, nil
}

func splitFrontMatter(md string) (string, string) {
	if !strings.HasPrefix(md, "---\n") {
		return "", md
	}
	rest := md[len("---\n"):]
	if i := strings.Index(rest, "\n---\n"); i >= 0 {
		return rest[:i], rest[i+len("\n---\n"):]
	}
	return "", md
}

// heading splits "## Title" into its level and title; level 0 means not a heading.
func heading(line string) (int, string) {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, "#") {
		return 0, ""
	}
	hashes := s
	if i := strings.IndexByte(s, ' '); i >= 0 {
		hashes = s[:i]
	}
	title := strings.TrimSpace(s[len(hashes):])
	if title == "" {
		return 0, ""
	}
	return len(hashes), title
}

// section returns the text under the first heading whose title is one of names, up to the next
// heading of the same or higher level.
func section(body string, names []string) string {
	lines := strings.Split(body, "\n")
	start, level := -1, 0
	for i, line := range lines {
		lv, title := heading(line)
		if lv == 0 {
			continue
		}
		for _, n := range names {
			if title == n {
				start, level = i+1, lv
				break
			}
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return ""
	}
	var out []string
	for _, line := range lines[start:] {
		if lv, _ := heading(line); lv > 0 && lv <= level {
			break
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func bullets(body string, names []string) []string {
	var out []string
	for _, line := range strings.Split(section(body, names), "\n") {
		s := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(s, "- "):
			out = append(out, strings.TrimSpace(s[2:]))
		case strings.HasPrefix(s, "* "):
			out = append(out, strings.TrimSpace(s[2:]))
		}
	}
	return out
}

// Markdown renders the spec back into request form.
func (s Spec) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "---\nproject: %s\n---\n\n", s.Project)
	fmt.Fprintf(&b, "## 目的\n\n%s\n\n", s.Objective)
	if s.Context != "" {
		fmt.Fprintf(&b, "## 背景\n\n%s\n\n", s.Context)
	}
	b.WriteString("## やること\n\n")
	for _, t := range s.Tasks {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	if len(s.Constraints) > 0 {
		b.WriteString("\n## 制約\n\n")
		for _, c := range s.Constraints {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	return b.String()
}
