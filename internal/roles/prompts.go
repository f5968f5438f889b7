package roles

import (
	"strings"

	"github.com/ankittk/usagi/internal/llm"
	"github.com/ankittk/usagi/internal/spec"
)

const (
	bossSystem = "あなたは社長(boss)です。絶対に実装しません。\n" +
		"依頼を部長に委任できるように、方針/手順/リスク/完了条件をMarkdownで書いてください。\n" +
		"必ず `## 決定事項` を含め、箇条書きで書いてください。"

	managerDigestSystem = "あなたは開発部長です。社長からの委任を咀嚼し、課長へ具体的に指示してください。\n" +
		"出力は必ず短く。形式:\n## 目的\n...\n\n## 指示\n- ...\n\n## 注意\n- ...\n"

	managerDecisionSystem = "あなたは部長(manager)です。\n" +
		"課長のレビュー結果を踏まえ、課ブランチを main にマージしてよいか判断してください。\n" +
		"判断は 'MERGE_OK' / 'NEED_MORE_REVIEW' / 'ESCALATE_TO_BOSS' のいずれかを必ず含めてください。\n" +
		"また、判断内容は必ず社長へ報告する前提で、報告用に要点も簡潔に書いてください。"

	leadBriefSystem = "あなたは開発実装課長です。部長指示を咀嚼し、ワーカーへ実装指示を作ってください。\n" +
		"出力は短く、実装に必要な情報だけ。形式:\n## 実装指示\n- ...\n\n## 受け入れ条件\n- ...\n\n## 注意\n- ...\n"

	leadReviewSystem = "あなたは課長(lead)でレビュー責任者です。\n" +
		"ワーカーの差分をレビューし、承認する場合は必ず 'APPROVE' と書き、\n" +
		"差戻しなら 'CHANGES_REQUESTED' と書いてください。"

	siblingAssistIntro = "あなたは同一階層の部長です。以下の依頼/方針を見て、\n" +
		"リスク/懸念/見落とし/追加で確認すべき点を短く返してください。\n\n"

	peerReviewIntro = "あなたはレビュー課長です。以下の差分(圧縮)を見て、\n" +
		"重大な懸念点/見落とし/確認項目を短く箇条書きで返してください。\n\n"
)

func assistSystem(roleHint string) string {
	return "あなたは" + roleHint + "です。\n" +
		"依頼内容を読み、リスク/懸念/追加確認/代替案を短く返してください。\n" +
		"出力は箇条書き中心で。"
}

// PlanPrompt renders the boss's planning request for s.
func PlanPrompt(s spec.Spec) string {
	var b strings.Builder
	b.WriteString("目的:\n" + s.Objective + "\n\n")
	if s.Context != "" {
		b.WriteString("背景:\n" + s.Context + "\n\n")
	}
	b.WriteString("やること:\n")
	for _, t := range s.Tasks {
		b.WriteString("- " + t + "\n")
	}
	if len(s.Constraints) > 0 {
		b.WriteString("\n制約:\n")
		for _, c := range s.Constraints {
			b.WriteString("- " + c + "\n")
		}
	}
	return b.String()
}

// WorkerPrompt asks the coder to implement the plan in the team worktree.
func WorkerPrompt(planCompact, project, branch string) string {
	return "社長の方針/計画(圧縮):\n\n" + planCompact + "\n\n" +
		"プロジェクト名: " + project + "\n" +
		"課ブランチ: " + branch + "\n\n" +
		"作業はこの作業ディレクトリ上で行ってください。\n" +
		"最終的に `git diff` 相当の Unified diff 形式で出力してください。\n"
}

// ReviewPrompt asks for an APPROVE or CHANGES_REQUESTED verdict on a diff.
func ReviewPrompt(diffCompact string) string {
	return "ワーカー差分(圧縮):\n\n" + diffCompact + "\n\n" + llm.ChoiceReview + "\n"
}

// DecisionPrompt asks for a merge decision token.
func DecisionPrompt(planCompact, reviewCompact, branch string) string {
	var b strings.Builder
	if planCompact != "" {
		b.WriteString("社長の方針(圧縮):\n\n" + planCompact + "\n\n")
	}
	b.WriteString("課長レビュー(圧縮):\n\n" + reviewCompact + "\n\n")
	if branch != "" {
		b.WriteString("課ブランチ: " + branch + "\n\n")
	}
	b.WriteString(llm.ChoiceMerge + "\n")
	return b.String()
}
