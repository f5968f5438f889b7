package approval

import (
	"strings"
	"time"

	"github.com/ankittk/usagi/internal/spec"
)

var roleEmoji = map[string]string{
	"planner":  "🧭",
	"coder":    "🛠",
	"reviewer": "🔎",
	"vote":     "🗳",
}

// render formats the run report: header, request, conversation log and action log.
func render(s spec.Spec, project, workdir string, started time.Time, msgs []Message, actions []string) string {
	var b strings.Builder
	line := func(l string) { b.WriteString(l + "\n") }

	line("# 🐰 うさぎさん株式会社レポート")
	line("")
	line("- 開始: " + started.UTC().Format(time.RFC3339))
	line("- project: " + project)
	line("- workdir: `" + workdir + "`")
	line("")
	line("---")
	line("")
	line("## 目的")
	line("")
	line(orDefault(s.Objective, "(未記載)"))
	line("")
	line("## 依頼内容(抽出)")
	line("")
	bulletsOr(line, s.Tasks)
	line("")
	if len(s.Constraints) > 0 {
		line("## 制約")
		line("")
		bulletsOr(line, s.Constraints)
		line("")
	}

	line("---")
	line("")
	line("## エージェント会話ログ")
	line("")
	for _, m := range msgs {
		emoji, ok := roleEmoji[m.Role]
		if !ok {
			emoji = "🐰"
		}
		line("#### " + emoji + " " + m.Agent + " (" + m.Role + ")")
		line("")
		line(m.Content)
		line("")
	}

	line("---")
	line("")
	line("## 実行ログ")
	line("")
	bulletsOr(line, actions)
	return b.String()
}

func bulletsOr(line func(string), items []string) {
	if len(items) == 0 {
		line("(なし)")
		return
	}
	for _, it := range items {
		line("- " + it)
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
