// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package assist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RadimMusalek/pv-planner/internal/plan"
)

// BrainstormRequest describes one brainstorming exchange to run and record.
type BrainstormRequest struct {
	PlanID string

	// Topic names the exchange in the section heading. When empty, the
	// first words of the prompt are used.
	Topic string

	Prompt string
}

// Brainstorm sends a plan-aware prompt to the backend and appends the
// exchange to the plan document as a new "Prompt — <topic>" section: the
// prompt as a blockquote, the response as the section body. The document is
// rewritten atomically. It returns the heading of the appended section.
func (a *Assistant) Brainstorm(ctx context.Context, req BrainstormRequest) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", fmt.Errorf("brainstorm prompt is empty")
	}

	path := filepath.Join(a.Config.PlansDir, req.PlanID+".md")
	doc, err := plan.Load(path)
	if err != nil {
		return "", err
	}

	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		topic = defaultTopic(prompt)
	}

	fullPrompt, err := renderBrainstormPrompt(brainstormContext{
		Title:    doc.Meta.Title,
		PlanID:   req.PlanID,
		Status:   string(doc.Meta.Status),
		Region:   doc.Meta.Region,
		Tags:     strings.Join(doc.Meta.Tags, ", "),
		Headings: doc.Headings(),
		Prompt:   prompt,
	})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}

	if err := a.Gate.Allow(a.User); err != nil {
		a.logger().Warn("usage denied",
			zap.String("stage", "brainstorm"),
			zap.String("plan", req.PlanID),
			zap.String("user", a.User),
			zap.Error(err))
		return "", fmt.Errorf("usage check: %w", err)
	}

	maxRetries := a.Config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	start := time.Now()
	response, err := a.callWithRetry(ctx, fullPrompt, maxRetries)
	if err != nil {
		a.logger().Warn("assist call failed",
			zap.String("stage", "brainstorm"),
			zap.String("plan", req.PlanID),
			zap.String("model", a.Config.Model),
			zap.Error(err))
		return "", fmt.Errorf("brainstorming %s: %w", req.PlanID, err)
	}
	if err := a.Gate.Record(a.User); err != nil {
		return "", fmt.Errorf("recording usage: %w", err)
	}
	a.logger().Info("assist call",
		zap.String("stage", "brainstorm"),
		zap.String("plan", req.PlanID),
		zap.String("model", a.Config.Model),
		zap.Duration("duration", time.Since(start)))

	heading := plan.PromptHeadingPrefix + topic

	// Re-read raw bytes: the parsed document does not preserve formatting.
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("re-reading plan %s: %w", path, err)
	}
	content := strings.TrimRight(string(data), "\n") + "\n\n" + renderPromptSection(heading, prompt, response)

	if err := plan.WriteAtomic(path, []byte(content)); err != nil {
		return "", err
	}
	return heading, nil
}

// renderPromptSection lays out an exchange as a Markdown section: the
// heading, the prompt as a blockquote, then the response body.
func renderPromptSection(heading, prompt, response string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", heading)
	for _, line := range strings.Split(strings.TrimRight(prompt, "\n"), "\n") {
		if line == "" {
			b.WriteString(">\n")
			continue
		}
		fmt.Fprintf(&b, "> %s\n", line)
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(response))
	b.WriteString("\n")
	return b.String()
}

// defaultTopic derives a short heading topic from the prompt's first words.
func defaultTopic(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) > 6 {
		words = words[:6]
	}
	return strings.Join(words, " ")
}
