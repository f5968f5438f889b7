// Package vote runs the three-voter escalation ballot and turns split outcomes into
// questions for a human.
package vote

import (
	"fmt"
	"strings"

	"github.com/ankittk/usagi/pkg/models"
)

// Vote is one voter's decision.
type Vote = models.Vote

// Quorum is the fixed ballot size. The 2-of-3 threshold in Decide assumes it.
const Quorum = 3

var (
	approveWords = []string{"approve", "go", "進め"}
	blockWords   = []string{"block", "stop", "止め"}
)

// ParseDecision maps free text to approve, block or abstain. When the text has a
// "decision:" line the first word after it decides; otherwise the whole text is searched.
func ParseDecision(text string) string {
	lower := strings.ToLower(text)
	lines := strings.Split(lower, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		idx := strings.Index(lines[i], "decision:")
		if idx < 0 {
			continue
		}
		if f := strings.Fields(lines[i][idx+len("decision:"):]); len(f) > 0 {
			return keyword(f[0])
		}
	}
	return keyword(lower)
}

func keyword(s string) string {
	for _, w := range approveWords {
		if strings.Contains(s, w) {
			return models.DecisionApprove
		}
	}
	for _, w := range blockWords {
		if strings.Contains(s, w) {
			return models.DecisionBlock
		}
	}
	return models.DecisionAbstain
}

// Decide applies the 2-of-3 rule: approve or block on a majority, tie otherwise.
func Decide(votes []Vote) string {
	var approve, block int
	for _, v := range votes {
		switch v.Decision {
		case models.DecisionApprove:
			approve++
		case models.DecisionBlock:
			block++
		}
	}
	switch {
	case approve >= 2:
		return models.DecisionApprove
	case block >= 2:
		return models.DecisionBlock
	default:
		return models.OutcomeTie
	}
}

// Voters returns exactly Quorum voter ids: configured ids first, padded with
// bossID, ghost_boss and secretary, duplicates skipped.
func Voters(configured []string, bossID string) []string {
	if bossID == "" {
		bossID = "boss"
	}
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] || len(out) >= Quorum {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, id := range configured {
		add(id)
	}
	for _, id := range []string{bossID, "ghost_boss", "secretary"} {
		add(id)
	}
	for n := 1; len(out) < Quorum; n++ {
		add(fmt.Sprintf("voter%d", n))
	}
	return out
}

// HumanQuestions renders the question set placed for the boss when the ballot does not approve.
func HumanQuestions(project string, leadApproved bool, managerDecision, outcome string) []string {
	return []string{
		"以下の判断が割れました。人間の意思決定が必要です。",
		"",
		"- project: " + project,
		"- lead_approved: " + titleBool(leadApproved),
		"- manager_decision: " + managerDecision,
		"- 3人格投票: " + outcome,
		"",
		"質問:",
		"- この変更を進めてよいですか？（Yes/No）",
		"- リスク許容度は？（低/中/高）",
		"- 追加で見たい確認事項は？",
	}
}

func titleBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
