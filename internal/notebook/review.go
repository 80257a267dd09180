// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package notebook

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/RadimMusalek/pv-planner/pkg/types"
)

// ReviewFile is the on-disk representation of a retrieval query and its
// results. A review can be saved during planning and reloaded later, or
// shared, without touching the database.
type ReviewFile struct {
	Query   ReviewParams  `yaml:"query"`
	Config  ReviewConfig  `yaml:"config"`
	Results []QueryResult `yaml:"results"`
	Summary ReviewSummary `yaml:"summary"`
}

// ReviewParams stores the query parameters in a serializable form.
type ReviewParams struct {
	Text   string   `yaml:"text,omitempty"`
	Kind   string   `yaml:"kind,omitempty"`
	Tags   []string `yaml:"tags,omitempty"`
	PlanID string   `yaml:"plan_id,omitempty"`
	Status string   `yaml:"status,omitempty"`
}

// ReviewConfig stores the retrieval configuration that produced the results.
type ReviewConfig struct {
	MaxResults int `yaml:"max_results"`
}

// ReviewSummary stores result statistics and a timestamp.
type ReviewSummary struct {
	Total     int       `yaml:"total"`
	Timestamp time.Time `yaml:"timestamp"`
}

// WriteReviewFile saves query parameters and results to a YAML file.
func WriteReviewFile(path string, opts QueryOptions, results []QueryResult) error {
	rf := ReviewFile{
		Query: ReviewParams{
			Text:   opts.Query,
			Kind:   string(opts.Kind),
			Tags:   opts.Tags,
			PlanID: opts.PlanID,
			Status: string(opts.Status),
		},
		Config: ReviewConfig{
			MaxResults: opts.MaxResults,
		},
		Results: results,
		Summary: ReviewSummary{
			Total:     len(results),
			Timestamp: time.Now(),
		},
	}

	data, err := yaml.Marshal(&rf)
	if err != nil {
		return fmt.Errorf("marshaling review file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadReviewFile loads a previously saved review file from disk.
func ReadReviewFile(path string) (*ReviewFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading review file: %w", err)
	}
	var rf ReviewFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing review file: %w", err)
	}
	return &rf, nil
}

// ToOptions converts stored ReviewParams back into QueryOptions. Review
// files can be hand-edited, so the kind and status fields are validated.
func (p ReviewParams) ToOptions() (QueryOptions, error) {
	opts := QueryOptions{
		Query:  p.Text,
		Tags:   p.Tags,
		PlanID: p.PlanID,
	}
	if p.Kind != "" {
		kind := types.EntryKind(p.Kind)
		if !types.ValidEntryKind(kind) {
			return opts, fmt.Errorf("invalid kind %q in review file", p.Kind)
		}
		opts.Kind = kind
	}
	if p.Status != "" {
		status := types.PlanStatus(p.Status)
		if !types.ValidPlanStatus(status) {
			return opts, fmt.Errorf("invalid status %q in review file", p.Status)
		}
		opts.Status = status
	}
	return opts, nil
}
