package org

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// chartFile accepts both the agents-list format and the legacy boss + departments format.
type chartFile struct {
	Agents      []Agent      `yaml:"agents"`
	Boss        *Agent       `yaml:"boss"`
	Departments []department `yaml:"departments"`
}

type department struct {
	Manager Agent   `yaml:"manager"`
	Members []Agent `yaml:"members"`
}

// Load reads an organization chart from a YAML file.
func Load(path string) (*Organization, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadOrDefault loads path, or returns Default when path is empty or missing.
func LoadOrDefault(path string) (*Organization, error) {
	if path == "" {
		return Default(), nil
	}
	o, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return o, err
}

// Parse decodes chart YAML and validates it.
func Parse(data []byte) (*Organization, error) {
	var f chartFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse org chart: %w", err)
	}
	var o *Organization
	if len(f.Agents) > 0 {
		var agents []Agent
		for _, a := range f.Agents {
			if a.ID == "" {
				continue
			}
			agents = append(agents, normalize(a))
		}
		o = New(agents...)
	} else {
		o = fromDepartments(f)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func normalize(a Agent) Agent {
	if a.Role == "" || a.Role == "coder" {
		a.Role = RoleWorker
	}
	return a
}

func fromDepartments(f chartFile) *Organization {
	boss := Agent{ID: "boss", Name: "社長うさぎ", Role: RoleBoss}
	if f.Boss != nil {
		if f.Boss.Name != "" {
			boss.Name = f.Boss.Name
		}
		boss.Model = f.Boss.Model
		boss.Emoji = f.Boss.Emoji
		boss.CanCommand = f.Boss.CanCommand
	}
	agents := []Agent{boss}
	for i, d := range f.Departments {
		mgr := d.Manager
		if mgr.ID == "" {
			mgr.ID = fmt.Sprintf("mgr%d", i+1)
		}
		if mgr.Name == "" {
			mgr.Name = fmt.Sprintf("部長うさぎ%d", i+1)
		}
		mgr.Role = RoleManager
		mgr.ReportsTo = boss.ID
		agents = append(agents, mgr)
		for j, m := range d.Members {
			if m.ID == "" {
				m.ID = fmt.Sprintf("%s_m%d", mgr.ID, j+1)
			}
			if m.Name == "" {
				m.Name = fmt.Sprintf("メンバー%d", j+1)
			}
			if m.ReportsTo == "" {
				m.ReportsTo = mgr.ID
			}
			agents = append(agents, normalize(m))
		}
	}
	return New(agents...)
}

// Default is the built-in chart: one development department with an implementation lead,
// a review lead and two workers, plus QA and Ops managers as peers.
func Default() *Organization {
	return New(
		Agent{ID: "boss", Name: "社長うさぎ", Role: RoleBoss, CanCommand: []string{"dev_mgr", "qa_mgr", "ops_mgr"}},
		Agent{ID: "ghost_boss", Name: "ゴースト社長", Role: RoleGhostBoss, ReportsTo: "boss"},
		Agent{ID: "dev_mgr", Name: "開発部長うさぎ", Role: RoleManager, ReportsTo: "boss"},
		Agent{ID: "dev_impl_lead", Name: "実装課長うさぎ", Role: RoleLead, ReportsTo: "dev_mgr"},
		Agent{ID: "dev_rev_lead", Name: "レビュー課長うさぎ", Role: RoleLead, ReportsTo: "dev_mgr"},
		Agent{ID: "dev_w1", Name: "実装うさぎ1", Role: RoleWorker, ReportsTo: "dev_impl_lead"},
		Agent{ID: "dev_w2", Name: "実装うさぎ2", Role: RoleWorker, ReportsTo: "dev_impl_lead"},
		Agent{ID: "qa_mgr", Name: "品質部長うさぎ", Role: RoleManager, ReportsTo: "boss"},
		Agent{ID: "ops_mgr", Name: "運用部長うさぎ", Role: RoleManager, ReportsTo: "boss"},
	)
}
