// Package models provides shared types for the usagi HTTP API and external viewers.
// These types mirror the status JSON and the API responses and are stable for pkg/client.
package models

import "time"

// AgentStatus is the last known state of one agent.
type AgentStatus struct {
	AgentID   string    `json:"agent_id"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Task      string    `json:"task"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SystemStatus is the status document: one record per agent id.
type SystemStatus struct {
	Agents map[string]AgentStatus `json:"agents"`
}

// Job is one processed input spec.
type Job struct {
	JobID      string     `json:"job_id"`
	Source     string     `json:"source"`
	Project    string     `json:"project"`
	Workdir    string     `json:"workdir,omitempty"`
	Result     string     `json:"result"`
	Detail     string     `json:"detail,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Ballot is one escalation vote with its outcome.
type Ballot struct {
	BallotID  string    `json:"ballot_id"`
	Project   string    `json:"project"`
	Outcome   string    `json:"outcome"`
	Votes     []Vote    `json:"votes"`
	CreatedAt time.Time `json:"created_at"`
}

// Vote is a single voter's decision inside a ballot.
type Vote struct {
	VoterID  string `json:"voter_id"`
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

// Merge records one merge attempt keyed for idempotency.
type Merge struct {
	Key       string    `json:"key"`
	Branch    string    `json:"branch"`
	Result    string    `json:"result"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Events is the /api/events response.
type Events struct {
	Lines []string `json:"lines"`
}
