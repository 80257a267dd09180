// Package assist runs Generative AI operations over plan documents:
// extracting typed planning entries and recording brainstorming exchanges.
// Every backend call passes through the usage gate first and is counted
// after it succeeds.
package assist

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/RadimMusalek/pv-planner/internal/plan"
	"github.com/RadimMusalek/pv-planner/internal/usage"
	"github.com/RadimMusalek/pv-planner/pkg/types"
)

const extractedDir = "extracted"

// Backend abstracts the Generative AI API so tests can supply a mock. It
// takes a fully rendered prompt and returns the model's raw text response.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Gate authorizes AI calls against the daily usage ledger.
type Gate interface {
	Allow(user string) error
	Record(user string) error
}

// Assistant wires a backend, the usage gate, and the worklog into the
// assist operations. Log may be nil; logging is then dropped.
type Assistant struct {
	Backend Backend
	Gate    Gate
	User    string
	Config  types.AssistConfig
	Log     *zap.Logger
}

func (a *Assistant) logger() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}

// BatchSummary holds counts from a batch extraction run.
type BatchSummary struct {
	Extracted int
	Skipped   int
	Failed    int
}

// Total returns the number of plans processed.
func (s BatchSummary) Total() int {
	return s.Extracted + s.Skipped + s.Failed
}

// HasFailures reports whether any plans failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// ExtractAll extracts planning entries from the named plans, or from every
// plan document when planIDs is empty, writing per-plan progress to w.
// Plans whose extraction output is newer than the document are skipped.
// Failures are counted and the batch continues, except for a usage limit
// denial, which aborts the run since every remaining call would be denied
// too.
func (a *Assistant) ExtractAll(ctx context.Context, planIDs []string, w io.Writer) (BatchSummary, error) {
	outDir := filepath.Join(a.Config.PlanningDir, extractedDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return BatchSummary{}, fmt.Errorf("creating output directory: %w", err)
	}

	var paths []string
	if len(planIDs) > 0 {
		for _, id := range planIDs {
			paths = append(paths, filepath.Join(a.Config.PlansDir, id+".md"))
		}
	} else {
		var err error
		paths, err = plan.Files(a.Config.PlansDir)
		if err != nil {
			return BatchSummary{}, err
		}
	}

	var summary BatchSummary

	for _, mdPath := range paths {
		planID := strings.TrimSuffix(filepath.Base(mdPath), ".md")
		outPath := filepath.Join(outDir, planID+"-items.yaml")

		changed, err := hasChanged(mdPath, outPath)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", planID, err)
			summary.Failed++
			continue
		}
		if !changed {
			fmt.Fprintf(w, "skipped %s\n", planID)
			summary.Skipped++
			continue
		}

		fmt.Fprintf(w, "extracting %s\n", planID)

		doc, err := plan.Load(mdPath)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", planID, err)
			summary.Failed++
			continue
		}

		result, err := a.ExtractPlan(ctx, doc)
		if err != nil {
			summary.Failed++

			var limitErr *usage.LimitError
			if errors.As(err, &limitErr) {
				fmt.Fprintf(w, "aborted %s: %v\n", planID, err)
				return summary, err
			}

			fmt.Fprintf(w, "failed  %s: %v\n", planID, err)
			continue
		}

		if err := writeResult(outPath, result); err != nil {
			fmt.Fprintf(w, "failed  %s: write error: %v\n", planID, err)
			summary.Failed++
			continue
		}

		fmt.Fprintf(w, "extracted %s (%d items)\n", planID, len(result.Items))
		summary.Extracted++
	}

	fmt.Fprintf(w, "\nextracted: %d, skipped: %d, failed: %d\n",
		summary.Extracted, summary.Skipped, summary.Failed)
	return summary, nil
}

// ExtractPlan extracts planning entries from a single parsed plan document.
// Each non-empty section goes to the backend as one gated call.
func (a *Assistant) ExtractPlan(ctx context.Context, doc *plan.Document) (*types.ExtractionResult, error) {
	planID := doc.Meta.PlanID
	if planID == "" {
		planID = doc.Slug()
	}
	result := &types.ExtractionResult{PlanID: planID}

	maxRetries := a.Config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	for _, sec := range doc.Sections {
		if strings.TrimSpace(sec.Body) == "" {
			continue
		}

		if err := a.Gate.Allow(a.User); err != nil {
			a.logger().Warn("usage denied",
				zap.String("stage", "extract"),
				zap.String("plan", planID),
				zap.String("user", a.User),
				zap.Error(err))
			return nil, fmt.Errorf("usage check before section %q: %w", sec.Heading, err)
		}

		prompt, err := renderExtractionPrompt(formatSection(sec))
		if err != nil {
			return nil, fmt.Errorf("rendering prompt: %w", err)
		}

		start := time.Now()
		raw, err := a.callWithRetry(ctx, prompt, maxRetries)
		if err != nil {
			a.logger().Warn("assist call failed",
				zap.String("stage", "extract"),
				zap.String("plan", planID),
				zap.String("section", sec.Heading),
				zap.String("model", a.Config.Model),
				zap.Error(err))
			return nil, fmt.Errorf("extracting section %q: %w", sec.Heading, err)
		}
		if err := a.Gate.Record(a.User); err != nil {
			return nil, fmt.Errorf("recording usage: %w", err)
		}
		a.logger().Info("assist call",
			zap.String("stage", "extract"),
			zap.String("plan", planID),
			zap.String("section", sec.Heading),
			zap.String("model", a.Config.Model),
			zap.Duration("duration", time.Since(start)))

		items, err := parseItemsResponse(raw)
		if err != nil {
			return nil, fmt.Errorf("section %q: %w", sec.Heading, err)
		}

		entries, validationErrors := convertItems(items, planID, sec.Heading)
		if len(validationErrors) > 0 {
			return nil, fmt.Errorf("validation errors in section %q: %s", sec.Heading, strings.Join(validationErrors, "; "))
		}

		result.Items = append(result.Items, entries...)
	}

	return result, nil
}

// formatSection prepares a section for the backend by combining heading and
// body the way they appear in the document.
func formatSection(sec plan.Section) string {
	if sec.Heading == "" {
		return sec.Body
	}
	return fmt.Sprintf("## %s\n\n%s", sec.Heading, sec.Body)
}

// responseItem is a single item as returned by the backend.
type responseItem struct {
	Kind       string   `json:"kind"`
	Content    string   `json:"content"`
	Section    string   `json:"section"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
}

// itemsResponse is the JSON envelope the extraction prompt requests.
type itemsResponse struct {
	Items []responseItem `json:"items"`
}

// parseItemsResponse decodes the backend's raw text as the extraction JSON
// envelope.
func parseItemsResponse(raw string) ([]responseItem, error) {
	var resp itemsResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("response is not the requested JSON envelope: %w", err)
	}
	return resp.Items, nil
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

// callWithRetry calls the backend with exponential backoff: 1s, 2s, 4s...
// between attempts, cancellable through ctx.
func (a *Assistant) callWithRetry(ctx context.Context, prompt string, maxRetries int) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		raw, err := a.Backend.Complete(ctx, prompt)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}

// convertItems validates backend items and converts them to PlanningEntries.
// Seq numbers the valid items within the section, starting at 1.
func convertItems(items []responseItem, planID, sectionHeading string) ([]types.PlanningEntry, []string) {
	var entries []types.PlanningEntry
	var errs []string

	seq := 0
	for i, item := range items {
		kind := types.EntryKind(item.Kind)
		if !types.ValidEntryKind(kind) {
			errs = append(errs, fmt.Sprintf("item %d: invalid kind %q", i, item.Kind))
			continue
		}
		if item.Content == "" {
			errs = append(errs, fmt.Sprintf("item %d: empty content", i))
			continue
		}
		if item.Confidence < 0.0 || item.Confidence > 1.0 {
			errs = append(errs, fmt.Sprintf("item %d: confidence %f out of range [0,1]", i, item.Confidence))
			continue
		}

		sec := sectionHeading
		if item.Section != "" {
			sec = item.Section
		}

		seq++
		entries = append(entries, types.PlanningEntry{
			ID:         stableID(planID, sec, item.Content),
			Kind:       kind,
			Content:    item.Content,
			PlanID:     planID,
			Section:    sec,
			Seq:        seq,
			Confidence: item.Confidence,
			Tags:       item.Tags,
		})
	}

	return entries, errs
}

// stableID generates a deterministic entry ID: the first 12 hex characters
// of SHA-256(planID + section + content). Re-extracting unchanged text
// yields the same ID.
func stableID(planID, section, content string) string {
	h := sha256.New()
	h.Write([]byte(planID))
	h.Write([]byte(section))
	h.Write([]byte(content))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// hasChanged reports whether the plan document is newer than the extraction
// output. It returns true when the output does not exist yet.
func hasChanged(mdPath, outPath string) (bool, error) {
	mdInfo, err := os.Stat(mdPath)
	if err != nil {
		return false, fmt.Errorf("stat plan %s: %w", mdPath, err)
	}

	outInfo, err := os.Stat(outPath)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("stat output %s: %w", outPath, err)
	}

	return mdInfo.ModTime().After(outInfo.ModTime()), nil
}

// writeResult marshals the ExtractionResult to its YAML output file.
func writeResult(path string, result *types.ExtractionResult) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
