package spec

// Result lists problems found in a Spec. OK is false only when Errors is non-empty.
type Result struct {
	OK       bool
	Warnings []string
	Errors   []string
}

// Validate checks a parsed spec. Missing sections are warnings unless strict is set,
// in which case an empty objective or task list is an error.
func Validate(s Spec, strict bool) Result {
	var r Result
	if s.Objective == "" {
		if strict {
			r.Errors = append(r.Errors, "「目的」セクションが空です。")
		} else {
			r.Warnings = append(r.Warnings, "「目的」セクションが空です。AIが内容から推測します。")
		}
	}
	if len(s.Tasks) == 0 {
		if strict {
			r.Errors = append(r.Errors, "「やること」セクションが空です。少なくとも1つのタスクを指定してください。")
		} else {
			r.Warnings = append(r.Warnings, "「やること」セクションが空です。AIが内容から推測します。")
		}
	}
	if s.Project == "" || s.Project == DefaultProject {
		r.Warnings = append(r.Warnings, "project名がデフォルトのままです。frontmatterで `project: xxx` を指定すると区別しやすくなります。")
	}
	if len(s.Constraints) == 0 {
		r.Warnings = append(r.Warnings, "「制約」セクションがありません。必要に応じて追加を検討してください。")
	}
	r.OK = len(r.Errors) == 0
	return r
}
