// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// EntryKind categorizes a planning entry extracted from a plan document.
type EntryKind string

const (
	KindIdea     EntryKind = "idea"
	KindQuestion EntryKind = "question"
	KindRisk     EntryKind = "risk"
	KindResource EntryKind = "resource"
	KindDecision EntryKind = "decision"
)

// KnownEntryKinds lists the accepted entry kinds in display order.
var KnownEntryKinds = []EntryKind{KindIdea, KindQuestion, KindRisk, KindResource, KindDecision}

// ValidEntryKind reports whether k is one of the accepted entry kinds.
func ValidEntryKind(k EntryKind) bool {
	for _, known := range KnownEntryKinds {
		if k == known {
			return true
		}
	}
	return false
}

// PlanningEntry is a typed item extracted from one section of a plan document.
type PlanningEntry struct {
	// ID is a stable content hash: the first 12 hex characters of
	// sha256(plan_id + section + content). Re-extracting an unchanged
	// plan yields the same IDs.
	ID string `json:"id" yaml:"id"`

	// Kind categorizes the entry: idea, question, risk, resource, or decision.
	Kind EntryKind `json:"kind" yaml:"kind"`

	// Content is the entry text, preserved verbatim from the document.
	Content string `json:"content" yaml:"content"`

	// PlanID identifies the plan document the entry came from.
	PlanID string `json:"plan_id" yaml:"plan_id"`

	// Section is the heading of the section the entry came from.
	Section string `json:"section" yaml:"section"`

	// Seq is the entry's position within its section, starting at 1.
	Seq int `json:"seq" yaml:"seq"`

	// Confidence is the extractor's confidence in [0.0, 1.0].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Tags are lowercase topic labels assigned during extraction.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// ExtractionResult holds the extraction output for one plan document.
type ExtractionResult struct {
	PlanID string          `json:"plan_id" yaml:"plan_id"`
	Items  []PlanningEntry `json:"items" yaml:"items"`
}
