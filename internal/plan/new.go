package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RadimMusalek/pv-planner/pkg/types"
)

// New scaffolds a plan document for the given title and returns its path.
// The filename and plan_id are the slugified title, the status starts at
// "idea", and the body carries one empty section per required heading.
// A plan whose identifier already exists is never overwritten.
func New(title string, cfg types.PlanConfig) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("plan title is empty")
	}

	slug := Slugify(title)
	if slug == "" {
		return "", fmt.Errorf("title %q yields an empty identifier", title)
	}

	if err := os.MkdirAll(cfg.PlansDir, 0o755); err != nil {
		return "", fmt.Errorf("creating plans directory %s: %w", cfg.PlansDir, err)
	}

	path := filepath.Join(cfg.PlansDir, slug+".md")
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("plan %q already exists at %s", slug, path)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	meta := types.PlanMeta{
		PlanID:  slug,
		Title:   title,
		Status:  types.StatusIdea,
		Tags:    []string{},
		Created: time.Now().Format("2006-01-02"),
	}

	required := cfg.RequiredSections
	if len(required) == 0 {
		required = DefaultRequiredSections
	}
	var body strings.Builder
	for _, heading := range required {
		fmt.Fprintf(&body, "## %s\n\n", heading)
	}

	content, err := renderDocument(meta, body.String())
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("writing plan %s: %w", path, err)
	}
	return path, nil
}
