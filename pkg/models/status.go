package models

// Agent states.
const (
	StateIdle    = "idle"
	StateWorking = "working"
	StateBlocked = "blocked"
)

// Job results.
const (
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// Vote decisions and outcomes.
const (
	DecisionApprove = "approve"
	DecisionBlock   = "block"
	DecisionAbstain = "abstain"
	OutcomeTie      = "tie"
)

// Merge results.
const (
	MergeMerged  = "merged"
	MergeSkipped = "skipped"
	MergeFailed  = "failed"
)

// Default limits.
const (
	DefaultEventTail     = 50
	DefaultMaxEventTail  = 1000
	DefaultJobListLimit  = 100
	DefaultBallotListMax = 100
)
