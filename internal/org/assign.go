package org

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAssignment means the chart lacks an agent the chain needs. It is a configuration
// error and is always returned to the caller.
var ErrAssignment = errors.New("assignment failed")

// Assignment is the boss → manager → lead → worker chain used for one run.
type Assignment struct {
	BossID    string
	ManagerID string
	LeadID    string
	WorkerID  string
}

// TeamBranch returns the lead's team branch.
func (a Assignment) TeamBranch() string {
	b, _ := TeamBranch(a.LeadID)
	return b
}

// AssignDefault walks down from bossID picking the first manager, lead and worker at each level.
func AssignDefault(o *Organization, bossID string) (Assignment, error) {
	if bossID == "" {
		bossID = "boss"
	}
	if _, ok := o.Find(bossID); !ok {
		return Assignment{}, fmt.Errorf("%w: boss %q not found", ErrAssignment, bossID)
	}
	mgr, ok := o.firstUnder(bossID, RoleManager)
	if !ok {
		return Assignment{}, fmt.Errorf("%w: no manager reports to %q", ErrAssignment, bossID)
	}
	lead, ok := o.firstUnder(mgr.ID, RoleLead)
	if !ok {
		return Assignment{}, fmt.Errorf("%w: no lead reports to %q", ErrAssignment, mgr.ID)
	}
	worker, ok := o.firstUnder(lead.ID, RoleWorker)
	if !ok {
		return Assignment{}, fmt.Errorf("%w: no worker reports to %q", ErrAssignment, lead.ID)
	}
	return Assignment{BossID: bossID, ManagerID: mgr.ID, LeadID: lead.ID, WorkerID: worker.ID}, nil
}

// SiblingManagers returns the other managers reporting to the same boss.
func (o *Organization) SiblingManagers(a Assignment) []Agent {
	var out []Agent
	for _, s := range o.SubordinatesOf(a.BossID) {
		if s.Role == RoleManager && s.ID != a.ManagerID {
			out = append(out, s)
		}
	}
	return out
}

// PeerReviewLead returns a second lead (or reviewer) under the assigned manager, if any.
func (o *Organization) PeerReviewLead(a Assignment) (Agent, bool) {
	for _, s := range o.SubordinatesOf(a.ManagerID) {
		if s.ID == a.LeadID {
			continue
		}
		if s.Role == RoleLead || s.Role == RoleReviewer {
			return s, true
		}
	}
	return Agent{}, false
}

// TeamBranch returns "team-<leadID>".
func TeamBranch(leadID string) (string, error) {
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return "", errors.New("lead id is required")
	}
	return "team-" + leadID, nil
}
