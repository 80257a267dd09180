// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package plan

import (
	"fmt"
	"strings"

	"github.com/RadimMusalek/pv-planner/pkg/types"
)

// DefaultRequiredSections lists the headings every plan document must carry
// unless the configuration overrides the set.
var DefaultRequiredSections = []string{"Goal", "Data", "Approach", "MVP Scope", "Risks"}

// Validate checks a parsed document against the structural rules and returns
// every violation found, in check order. An empty result means the document
// is valid. When required is empty, DefaultRequiredSections applies.
func Validate(doc *Document, required []string) []string {
	if len(required) == 0 {
		required = DefaultRequiredSections
	}

	var violations []string

	slug := doc.Slug()
	switch {
	case doc.Meta.PlanID == "":
		violations = append(violations, "missing plan_id in frontmatter")
	case doc.Meta.PlanID != slug:
		violations = append(violations, fmt.Sprintf("plan_id %q does not match filename slug %q", doc.Meta.PlanID, slug))
	}

	switch {
	case doc.Meta.Status == "":
		violations = append(violations, "missing status in frontmatter")
	case !types.ValidPlanStatus(doc.Meta.Status):
		violations = append(violations, fmt.Sprintf("unknown status %q (want one of: %s)", doc.Meta.Status, knownStatusList()))
	}

	have := make(map[string]bool, len(doc.Sections))
	for _, sec := range doc.Sections {
		have[sec.Heading] = true
	}
	for _, req := range required {
		if !have[req] {
			violations = append(violations, fmt.Sprintf("missing required section %q", req))
		}
	}

	counts := make(map[string]int, len(doc.Sections))
	for _, sec := range doc.Sections {
		if sec.Heading != "" {
			counts[sec.Heading]++
		}
	}
	reported := make(map[string]bool)
	for _, sec := range doc.Sections {
		if sec.Heading == "" || counts[sec.Heading] < 2 || reported[sec.Heading] {
			continue
		}
		violations = append(violations, fmt.Sprintf("duplicate section heading %q", sec.Heading))
		reported[sec.Heading] = true
	}

	for _, sec := range doc.Sections {
		if !IsPromptSection(sec.Heading) {
			continue
		}
		if !startsWithBlockquote(sec.Body) {
			violations = append(violations, fmt.Sprintf("prompt section %q does not open with a blockquoted prompt", sec.Heading))
		}
	}

	return violations
}

// ValidateFile loads and validates the plan document at path. Load failures
// are returned as violations rather than errors so a batch run can report
// every file instead of stopping at the first unparseable one.
func ValidateFile(path string, required []string) []string {
	doc, err := Load(path)
	if err != nil {
		return []string{err.Error()}
	}
	return Validate(doc, required)
}

func knownStatusList() string {
	names := make([]string, len(types.KnownPlanStatuses))
	for i, s := range types.KnownPlanStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// startsWithBlockquote reports whether the first non-blank line of body is a
// Markdown blockquote.
func startsWithBlockquote(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		return strings.HasPrefix(trimmed, ">")
	}
	return false
}
