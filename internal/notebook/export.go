// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package notebook

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// ExportEntry holds a planning entry with plan metadata for export.
type ExportEntry struct {
	ID         string      `json:"id" yaml:"id"`
	Kind       string      `json:"kind" yaml:"kind"`
	Content    string      `json:"content" yaml:"content"`
	PlanID     string      `json:"plan_id" yaml:"plan_id"`
	Section    string      `json:"section" yaml:"section"`
	Seq        int         `json:"seq" yaml:"seq"`
	Confidence float64     `json:"confidence" yaml:"confidence"`
	Tags       []string    `json:"tags" yaml:"tags"`
	Plan       *ExportPlan `json:"plan,omitempty" yaml:"plan,omitempty"`
}

// ExportPlan holds the plan-level fields included in each export entry.
type ExportPlan struct {
	Title  string `json:"title" yaml:"title"`
	Status string `json:"status" yaml:"status"`
}

const exportLimit = 100000

// ExportYAML writes the notebook to planning/index/export.yaml. It
// supports the same filters as Retrieve.
func (s *Store) ExportYAML(ctx context.Context, opts QueryOptions) error {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return err
	}

	path := filepath.Join(s.planningDir, indexDir, "export.yaml")
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ExportJSON writes the notebook to planning/index/export.json. It
// supports the same filters as Retrieve.
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions) error {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return err
	}

	path := filepath.Join(s.planningDir, indexDir, "export.json")
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) exportEntries(ctx context.Context, opts QueryOptions) ([]ExportEntry, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = exportLimit
	}
	results, err := s.Retrieve(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}

	entries := make([]ExportEntry, len(results))
	for i, r := range results {
		entries[i] = ExportEntry{
			ID:         r.ID,
			Kind:       string(r.Kind),
			Content:    r.Content,
			PlanID:     r.PlanID,
			Section:    r.Section,
			Seq:        r.Seq,
			Confidence: r.Confidence,
			Tags:       r.Tags,
		}
		if r.PlanTitle != "" || r.PlanStatus != "" {
			entries[i].Plan = &ExportPlan{
				Title:  r.PlanTitle,
				Status: string(r.PlanStatus),
			}
		}
	}

	return entries, nil
}
