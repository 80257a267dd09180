// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the pv-planner workbench.
package types

// PlanStatus tracks where a planning idea sits in its lifecycle.
type PlanStatus string

const (
	StatusIdea      PlanStatus = "idea"
	StatusExploring PlanStatus = "exploring"
	StatusMVP       PlanStatus = "mvp"
	StatusParked    PlanStatus = "parked"
)

// KnownPlanStatuses lists the accepted lifecycle states in display order.
var KnownPlanStatuses = []PlanStatus{StatusIdea, StatusExploring, StatusMVP, StatusParked}

// ValidPlanStatus reports whether s is one of the accepted lifecycle states.
func ValidPlanStatus(s PlanStatus) bool {
	for _, known := range KnownPlanStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// PlanMeta holds the YAML frontmatter of a plan document.
type PlanMeta struct {
	// PlanID is the stable identifier, matching the document's filename slug.
	PlanID string `json:"plan_id" yaml:"plan_id"`

	// Title is the human-readable plan title.
	Title string `json:"title" yaml:"title"`

	// Status is the lifecycle state: idea, exploring, mvp, or parked.
	Status PlanStatus `json:"status" yaml:"status"`

	// Region is the geographic focus of the plan, when it has one
	// (e.g. "Switzerland").
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// Tags are free-form topic labels.
	Tags []string `json:"tags" yaml:"tags"`

	// Created is the creation date in YYYY-MM-DD form.
	Created string `json:"created" yaml:"created"`
}
