// Package org holds the organization chart: agents, their roles and reporting edges.
package org

import (
	"errors"
	"fmt"
)

// Role is an agent's position in the hierarchy.
type Role string

const (
	RoleBoss      Role = "boss"
	RoleGhostBoss Role = "ghost_boss"
	RoleManager   Role = "manager"
	RoleLead      Role = "lead"
	RoleWorker    Role = "worker"
	RoleReviewer  Role = "reviewer"
)

// Agent is one member of the organization.
type Agent struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Role       Role     `yaml:"role"`
	Model      string   `yaml:"model,omitempty"`
	Emoji      string   `yaml:"emoji,omitempty"`
	ReportsTo  string   `yaml:"reports_to,omitempty"`
	CanCommand []string `yaml:"can_command,omitempty"`
}

// DisplayName returns Name, or ID when Name is empty.
func (a Agent) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// Organization is a flat, read-only list of agents with derived queries.
type Organization struct {
	Agents []Agent
}

// New returns an Organization over agents.
func New(agents ...Agent) *Organization {
	return &Organization{Agents: agents}
}

// Find returns the agent with id, if any.
func (o *Organization) Find(id string) (Agent, bool) {
	if o == nil || id == "" {
		return Agent{}, false
	}
	for _, a := range o.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// SubordinatesOf returns direct reports only, in chart order.
func (o *Organization) SubordinatesOf(id string) []Agent {
	if o == nil || id == "" {
		return nil
	}
	var out []Agent
	for _, a := range o.Agents {
		if a.ReportsTo == id {
			out = append(out, a)
		}
	}
	return out
}

// CanCommand reports whether commander may instruct target: target is listed in
// commander.CanCommand or reports directly to commander. Unknown ids are never authorized.
func (o *Organization) CanCommand(commanderID, targetID string) bool {
	commander, ok := o.Find(commanderID)
	if !ok {
		return false
	}
	for _, id := range commander.CanCommand {
		if id == targetID {
			return true
		}
	}
	target, ok := o.Find(targetID)
	return ok && target.ReportsTo == commanderID
}

// PickWorker returns workerID if it names a worker, otherwise the first worker reporting to underID.
func (o *Organization) PickWorker(workerID, underID string) (Agent, bool) {
	if workerID != "" {
		w, ok := o.Find(workerID)
		if ok && w.Role == RoleWorker {
			return w, true
		}
		return Agent{}, false
	}
	return o.firstUnder(underID, RoleWorker)
}

func (o *Organization) firstUnder(parentID string, roles ...Role) (Agent, bool) {
	for _, a := range o.SubordinatesOf(parentID) {
		for _, r := range roles {
			if a.Role == r {
				return a, true
			}
		}
	}
	return Agent{}, false
}

// Walk visits rootID and its transitive reports depth-first, passing the depth to fn.
func (o *Organization) Walk(rootID string, fn func(a Agent, depth int)) {
	seen := map[string]bool{}
	var visit func(id string, depth int)
	visit = func(id string, depth int) {
		if seen[id] {
			return
		}
		seen[id] = true
		a, ok := o.Find(id)
		if !ok {
			return
		}
		fn(a, depth)
		for _, s := range o.SubordinatesOf(id) {
			visit(s.ID, depth+1)
		}
	}
	visit(rootID, 0)
}

// Roots returns agents with no manager.
func (o *Organization) Roots() []Agent {
	var out []Agent
	for _, a := range o.Agents {
		if a.ReportsTo == "" {
			out = append(out, a)
		}
	}
	return out
}

// ErrInvalidChart is returned by Validate.
var ErrInvalidChart = errors.New("invalid organization chart")

// Validate checks ids are unique and non-empty and that reporting edges form a forest.
func (o *Organization) Validate() error {
	ids := make(map[string]bool, len(o.Agents))
	for _, a := range o.Agents {
		if a.ID == "" {
			return fmt.Errorf("%w: agent with empty id", ErrInvalidChart)
		}
		if ids[a.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidChart, a.ID)
		}
		ids[a.ID] = true
	}
	for _, a := range o.Agents {
		seen := map[string]bool{a.ID: true}
		cur := a
		for cur.ReportsTo != "" {
			if seen[cur.ReportsTo] {
				return fmt.Errorf("%w: reporting cycle through %q", ErrInvalidChart, a.ID)
			}
			seen[cur.ReportsTo] = true
			next, ok := o.Find(cur.ReportsTo)
			if !ok {
				break
			}
			cur = next
		}
	}
	return nil
}
