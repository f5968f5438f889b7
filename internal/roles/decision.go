package roles

import "strings"

// Review verdicts.
const (
	Approve          = "APPROVE"
	ChangesRequested = "CHANGES_REQUESTED"
)

// Manager decision tokens.
const (
	MergeOK        = "MERGE_OK"
	NeedMoreReview = "NEED_MORE_REVIEW"
	EscalateToBoss = "ESCALATE_TO_BOSS"
)

// ReviewVerdict scans from the last line up for a verdict. A line naming both
// (for example an echoed choice list) counts as CHANGES_REQUESTED; no verdict at all too.
func ReviewVerdict(text string) string {
	lines := strings.Split(strings.ToUpper(text), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.Contains(lines[i], ChangesRequested) {
			return ChangesRequested
		}
		if strings.Contains(lines[i], Approve) {
			return Approve
		}
	}
	return ChangesRequested
}

// DecisionToken scans from the last line up for a manager token. Within one line the
// most conservative token wins; no token means NEED_MORE_REVIEW.
func DecisionToken(text string) string {
	lines := strings.Split(strings.ToUpper(text), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		for _, tok := range []string{EscalateToBoss, NeedMoreReview, MergeOK} {
			if strings.Contains(lines[i], tok) {
				return tok
			}
		}
	}
	return NeedMoreReview
}

// LeadApproved reports whether a review_result body carries the lead's approval: the
// "lead_review:" line when present, otherwise any case-insensitive APPROVE.
func LeadApproved(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		if k, v, ok := field(line); ok && k == "lead_review" {
			return strings.EqualFold(v, Approve)
		}
	}
	return strings.Contains(strings.ToUpper(body), Approve)
}

func titleBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
