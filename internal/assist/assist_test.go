package assist

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/RadimMusalek/pv-planner/internal/plan"
	"github.com/RadimMusalek/pv-planner/internal/usage"
	"github.com/RadimMusalek/pv-planner/pkg/types"
)

// --- mock backend ---

// mockBackend returns canned raw responses keyed by the first line of the
// prompt's document section, and counts calls.
type mockBackend struct {
	responses map[string]string // section heading line -> raw response
	err       error             // forced error for retry testing
	calls     int
	prompts   []string
}

func (m *mockBackend) Complete(_ context.Context, prompt string) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	for key, resp := range m.responses {
		if strings.Contains(prompt, key) {
			return resp, nil
		}
	}
	return `{"items": []}`, nil
}

// failNTimesBackend fails the first N calls, then succeeds.
type failNTimesBackend struct {
	failures  int
	callCount int
	response  string
}

func (f *failNTimesBackend) Complete(_ context.Context, _ string) (string, error) {
	f.callCount++
	if f.callCount <= f.failures {
		return "", fmt.Errorf("transient error (call %d)", f.callCount)
	}
	return f.response, nil
}

// --- stub gate ---

// stubGate allows a fixed number of calls, then denies with a LimitError.
type stubGate struct {
	allowed  int // calls allowed before denial; negative means unlimited
	allows   int
	records  []string
	allowErr error // overrides the limit behavior when set
}

func (g *stubGate) Allow(user string) error {
	if g.allowErr != nil {
		return g.allowErr
	}
	if g.allowed >= 0 && g.allows >= g.allowed {
		return &usage.LimitError{Scope: "user", User: user, Used: g.allows, Limit: g.allowed}
	}
	g.allows++
	return nil
}

func (g *stubGate) Record(user string) error {
	g.records = append(g.records, user)
	return nil
}

func openGate() *stubGate {
	return &stubGate{allowed: -1}
}

func TestMain(m *testing.M) {
	// Override backoff to avoid real sleeps in retry tests.
	backoffBase = time.Millisecond
	os.Exit(m.Run())
}

// --- fixtures ---

const extractPlanDoc = `---
plan_id: alpine-irradiance
title: Alpine irradiance forecasting
status: exploring
tags: [forecasting]
created: "2026-02-10"
---

## Goal

Forecast hourly irradiance for alpine PV sites.

## Risks

Sparse winter data.
`

func writePlanFile(t *testing.T, dir, id, content string) string {
	t.Helper()
	path := filepath.Join(dir, id+".md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testAssistant(t *testing.T, backend Backend, gate Gate) (*Assistant, string, string) {
	t.Helper()
	root := t.TempDir()
	plansDir := filepath.Join(root, "plans")
	planningDir := filepath.Join(root, "planning")
	if err := os.MkdirAll(plansDir, 0o755); err != nil {
		t.Fatal(err)
	}
	a := &Assistant{
		Backend: backend,
		Gate:    gate,
		User:    "tester",
		Config: types.AssistConfig{
			AIConfig:    types.AIConfig{Model: "test-model", MaxRetries: 3},
			PlansDir:    plansDir,
			PlanningDir: planningDir,
		},
	}
	return a, plansDir, planningDir
}

var sampleResponses = map[string]string{
	"## Goal":  `{"items": [{"kind": "idea", "content": "Forecast hourly irradiance for alpine PV sites.", "section": "Goal", "confidence": 0.95, "tags": ["irradiance", "forecasting"]}]}`,
	"## Risks": `{"items": [{"kind": "risk", "content": "Sparse winter data.", "section": "Risks", "confidence": 0.88, "tags": ["data-availability"]}]}`,
}

// --- ExtractPlan ---

func TestExtractPlan(t *testing.T) {
	backend := &mockBackend{responses: sampleResponses}
	gate := openGate()
	a, plansDir, _ := testAssistant(t, backend, gate)
	path := writePlanFile(t, plansDir, "alpine-irradiance", extractPlanDoc)

	doc, err := plan.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	result, err := a.ExtractPlan(context.Background(), doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.PlanID != "alpine-irradiance" {
		t.Errorf("PlanID = %q, want %q", result.PlanID, "alpine-irradiance")
	}
	if len(result.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(result.Items))
	}

	first := result.Items[0]
	if first.Kind != types.KindIdea {
		t.Errorf("Kind = %q, want %q", first.Kind, types.KindIdea)
	}
	if first.Section != "Goal" {
		t.Errorf("Section = %q, want %q", first.Section, "Goal")
	}
	if first.Seq != 1 {
		t.Errorf("Seq = %d, want 1", first.Seq)
	}
	if len(first.ID) != 12 {
		t.Errorf("len(ID) = %d, want 12", len(first.ID))
	}
	if first.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", first.Confidence)
	}

	// One gated call per non-empty section, recorded after success.
	if backend.calls != 2 {
		t.Errorf("backend calls = %d, want 2", backend.calls)
	}
	if len(gate.records) != 2 {
		t.Errorf("recorded calls = %d, want 2", len(gate.records))
	}
	for _, user := range gate.records {
		if user != "tester" {
			t.Errorf("recorded user = %q, want %q", user, "tester")
		}
	}
}

func TestExtractPlanStableIDs(t *testing.T) {
	backend := &mockBackend{responses: sampleResponses}
	a, plansDir, _ := testAssistant(t, backend, openGate())
	path := writePlanFile(t, plansDir, "alpine-irradiance", extractPlanDoc)

	doc, err := plan.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	first, err := a.ExtractPlan(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.ExtractPlan(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}

	for i := range first.Items {
		if first.Items[i].ID != second.Items[i].ID {
			t.Errorf("item %d: ID changed between runs: %q vs %q", i, first.Items[i].ID, second.Items[i].ID)
		}
	}
}

func TestExtractPlanValidationFailure(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantSub  string
	}{
		{
			name:     "invalid kind",
			response: `{"items": [{"kind": "task", "content": "x", "section": "Goal", "confidence": 0.5}]}`,
			wantSub:  `invalid kind "task"`,
		},
		{
			name:     "empty content",
			response: `{"items": [{"kind": "idea", "content": "", "section": "Goal", "confidence": 0.5}]}`,
			wantSub:  "empty content",
		},
		{
			name:     "confidence out of range",
			response: `{"items": [{"kind": "idea", "content": "x", "section": "Goal", "confidence": 1.5}]}`,
			wantSub:  "out of range",
		},
		{
			name:     "not the JSON envelope",
			response: "Sure! Here are the items you asked for.",
			wantSub:  "JSON envelope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockBackend{responses: map[string]string{"## Goal": tt.response, "## Risks": tt.response}}
			a, plansDir, _ := testAssistant(t, backend, openGate())
			path := writePlanFile(t, plansDir, "alpine-irradiance", extractPlanDoc)

			doc, err := plan.Load(path)
			if err != nil {
				t.Fatal(err)
			}

			_, err = a.ExtractPlan(context.Background(), doc)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestExtractPlanGateDenied(t *testing.T) {
	backend := &mockBackend{responses: sampleResponses}
	gate := &stubGate{allowed: 0}
	a, plansDir, _ := testAssistant(t, backend, gate)
	path := writePlanFile(t, plansDir, "alpine-irradiance", extractPlanDoc)

	doc, err := plan.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	_, err = a.ExtractPlan(context.Background(), doc)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "daily user limit reached") {
		t.Errorf("error = %q, want limit message", err)
	}
	if backend.calls != 0 {
		t.Errorf("backend calls = %d, want 0 (denied before the call)", backend.calls)
	}
	if len(gate.records) != 0 {
		t.Errorf("recorded calls = %d, want 0", len(gate.records))
	}
}

// --- ExtractAll ---

func TestExtractAll(t *testing.T) {
	backend := &mockBackend{responses: sampleResponses}
	a, plansDir, planningDir := testAssistant(t, backend, openGate())
	writePlanFile(t, plansDir, "alpine-irradiance", extractPlanDoc)

	var out bytes.Buffer
	summary, err := a.ExtractAll(context.Background(), nil, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Extracted != 1 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Errorf("summary = %+v, want 1 extracted", summary)
	}

	outPath := filepath.Join(planningDir, "extracted", "alpine-irradiance-items.yaml")
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}

	var result types.ExtractionResult
	if err := yaml.Unmarshal(data, &result); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if result.PlanID != "alpine-irradiance" {
		t.Errorf("PlanID = %q, want %q", result.PlanID, "alpine-irradiance")
	}
	if len(result.Items) != 2 {
		t.Errorf("len(Items) = %d, want 2", len(result.Items))
	}

	if !strings.Contains(out.String(), "extracted alpine-irradiance (2 items)") {
		t.Errorf("output = %q, want extracted line", out.String())
	}
	if !strings.Contains(out.String(), "extracted: 1, skipped: 0, failed: 0") {
		t.Errorf("output = %q, want summary line", out.String())
	}
}

func TestExtractAllSkipsUnchanged(t *testing.T) {
	backend := &mockBackend{responses: sampleResponses}
	a, plansDir, _ := testAssistant(t, backend, openGate())
	mdPath := writePlanFile(t, plansDir, "alpine-irradiance", extractPlanDoc)

	if _, err := a.ExtractAll(context.Background(), nil, io.Discard); err != nil {
		t.Fatal(err)
	}
	callsAfterFirst := backend.calls

	// Make the plan older than its extraction output.
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(mdPath, past, past); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	summary, err := a.ExtractAll(context.Background(), nil, &out)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Skipped != 1 || summary.Extracted != 0 {
		t.Errorf("summary = %+v, want 1 skipped", summary)
	}
	if backend.calls != callsAfterFirst {
		t.Errorf("backend called again for unchanged plan")
	}

	// Touching the plan re-extracts it.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(mdPath, future, future); err != nil {
		t.Fatal(err)
	}
	summary, err = a.ExtractAll(context.Background(), nil, &out)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Extracted != 1 {
		t.Errorf("summary = %+v, want 1 extracted after touch", summary)
	}
}

func TestExtractAllNamedPlans(t *testing.T) {
	backend := &mockBackend{responses: sampleResponses}
	a, plansDir, planningDir := testAssistant(t, backend, openGate())
	writePlanFile(t, plansDir, "alpine-irradiance", extractPlanDoc)
	writePlanFile(t, plansDir, "other-plan", strings.ReplaceAll(extractPlanDoc, "alpine-irradiance", "other-plan"))

	summary, err := a.ExtractAll(context.Background(), []string{"other-plan"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total() != 1 || summary.Extracted != 1 {
		t.Errorf("summary = %+v, want exactly the named plan", summary)
	}

	if _, err := os.Stat(filepath.Join(planningDir, "extracted", "alpine-irradiance-items.yaml")); !os.IsNotExist(err) {
		t.Error("unnamed plan was extracted")
	}
}

func TestExtractAllContinuesPastFailures(t *testing.T) {
	backend := &mockBackend{responses: sampleResponses}
	a, plansDir, _ := testAssistant(t, backend, openGate())
	writePlanFile(t, plansDir, "broken-plan", "---\nplan_id: broken-plan\n") // unterminated
	writePlanFile(t, plansDir, "good-plan", strings.ReplaceAll(extractPlanDoc, "alpine-irradiance", "good-plan"))

	var out bytes.Buffer
	summary, err := a.ExtractAll(context.Background(), nil, &out)
	if err != nil {
		t.Fatalf("batch error: %v", err)
	}
	if summary.Failed != 1 || summary.Extracted != 1 {
		t.Errorf("summary = %+v, want 1 failed and 1 extracted", summary)
	}
	if !summary.HasFailures() {
		t.Error("HasFailures() = false, want true")
	}
	if !strings.Contains(out.String(), "failed  broken-plan") {
		t.Errorf("output = %q, want failed line for broken-plan", out.String())
	}
}

func TestExtractAllAbortsOnQuota(t *testing.T) {
	backend := &mockBackend{responses: sampleResponses}
	gate := &stubGate{allowed: 1} // first section allowed, second denied
	a, plansDir, _ := testAssistant(t, backend, gate)
	writePlanFile(t, plansDir, "alpine-irradiance", extractPlanDoc)
	writePlanFile(t, plansDir, "second-plan", strings.ReplaceAll(extractPlanDoc, "alpine-irradiance", "second-plan"))

	var out bytes.Buffer
	summary, err := a.ExtractAll(context.Background(), nil, &out)
	if err == nil {
		t.Fatal("expected quota error, got nil")
	}
	if !strings.Contains(err.Error(), "daily user limit reached") {
		t.Errorf("error = %q, want limit message", err)
	}
	if summary.Failed != 1 {
		t.Errorf("summary = %+v, want the aborted plan counted as failed", summary)
	}
	// The second plan must not have been attempted.
	if backend.calls != 1 {
		t.Errorf("backend calls = %d, want 1", backend.calls)
	}
	if !strings.Contains(out.String(), "aborted alpine-irradiance") {
		t.Errorf("output = %q, want aborted line", out.String())
	}
}

// --- retry ---

func TestCallWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		maxRetry  int
		wantErr   bool
		wantCalls int
	}{
		{name: "immediate success", failures: 0, maxRetry: 3, wantCalls: 1},
		{name: "succeeds after two failures", failures: 2, maxRetry: 3, wantCalls: 3},
		{name: "exhausts retries", failures: 10, maxRetry: 2, wantErr: true, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &failNTimesBackend{failures: tt.failures, response: `{"items": []}`}
			a := &Assistant{Backend: backend, Gate: openGate()}

			_, err := a.callWithRetry(context.Background(), "prompt", tt.maxRetry)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), fmt.Sprintf("after %d retries", tt.maxRetry)) {
					t.Errorf("error = %q, want retry count", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if backend.callCount != tt.wantCalls {
				t.Errorf("calls = %d, want %d", backend.callCount, tt.wantCalls)
			}
		})
	}
}

func TestCallWithRetryContextCancelled(t *testing.T) {
	backend := &failNTimesBackend{failures: 10}
	a := &Assistant{Backend: backend, Gate: openGate()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.callWithRetry(ctx, "prompt", 5)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err != context.Canceled && !strings.Contains(err.Error(), "context canceled") {
		t.Errorf("error = %v, want context cancellation", err)
	}
}

// --- convertItems ---

func TestConvertItemsSeq(t *testing.T) {
	items := []responseItem{
		{Kind: "idea", Content: "first", Confidence: 0.9},
		{Kind: "question", Content: "second", Confidence: 0.8},
	}

	entries, errs := convertItems(items, "p", "Goal")
	if len(errs) != 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
	if entries[0].Seq != 1 || entries[1].Seq != 2 {
		t.Errorf("Seq = %d, %d, want 1, 2", entries[0].Seq, entries[1].Seq)
	}
	if entries[0].Section != "Goal" {
		t.Errorf("Section = %q, want heading fallback", entries[0].Section)
	}
}

func TestConvertItemsSectionOverride(t *testing.T) {
	items := []responseItem{{Kind: "risk", Content: "x", Section: "Risks", Confidence: 0.7}}
	entries, _ := convertItems(items, "p", "Goal")
	if entries[0].Section != "Risks" {
		t.Errorf("Section = %q, want backend-provided heading", entries[0].Section)
	}
}

func TestStableID(t *testing.T) {
	id1 := stableID("plan", "Goal", "content")
	id2 := stableID("plan", "Goal", "content")
	if id1 != id2 {
		t.Errorf("stableID not deterministic: %q vs %q", id1, id2)
	}
	if len(id1) != 12 {
		t.Errorf("len(id) = %d, want 12", len(id1))
	}
	if stableID("plan", "Goal", "other") == id1 {
		t.Error("different content produced the same ID")
	}
}
