package assist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/RadimMusalek/pv-planner/internal/httputil"
)

// withClaudeServer points the backend at a test server for the duration of
// the test.
func withClaudeServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	old := claudeAPIURL
	claudeAPIURL = server.URL
	t.Cleanup(func() {
		claudeAPIURL = old
		server.Close()
	})
	return server
}

func claudeTextResponse(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"content": []map[string]string{{"type": "text", "text": text}},
	})
}

func TestClaudeBackendComplete(t *testing.T) {
	var gotReq claudeRequest
	var gotHeaders http.Header

	withClaudeServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		claudeTextResponse(w, `{"items": []}`)
	})

	backend := &ClaudeBackend{APIKey: "test-key", Model: "test-model", UserAgent: "pv-planner/test"}
	got, err := backend.Complete(context.Background(), "extract from this section")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"items": []}` {
		t.Errorf("Complete() = %q, want the text block", got)
	}

	if gotHeaders.Get("x-api-key") != "test-key" {
		t.Errorf("x-api-key = %q, want %q", gotHeaders.Get("x-api-key"), "test-key")
	}
	if gotHeaders.Get("anthropic-version") != "2023-06-01" {
		t.Errorf("anthropic-version = %q, want %q", gotHeaders.Get("anthropic-version"), "2023-06-01")
	}
	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotHeaders.Get("Content-Type"))
	}
	if gotHeaders.Get("User-Agent") != "pv-planner/test" {
		t.Errorf("User-Agent = %q, want %q", gotHeaders.Get("User-Agent"), "pv-planner/test")
	}

	if gotReq.Model != "test-model" {
		t.Errorf("Model = %q, want %q", gotReq.Model, "test-model")
	}
	if gotReq.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", gotReq.MaxTokens)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Fatalf("Messages = %+v, want one user message", gotReq.Messages)
	}
	if gotReq.Messages[0].Content != "extract from this section" {
		t.Errorf("Content = %q, want the prompt", gotReq.Messages[0].Content)
	}
}

func TestClaudeBackendRetriesOn429(t *testing.T) {
	oldDelay := httputil.RetryBaseDelay
	httputil.RetryBaseDelay = time.Millisecond
	defer func() { httputil.RetryBaseDelay = oldDelay }()

	var models []string
	withClaudeServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req claudeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		models = append(models, req.Model)
		if len(models) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		claudeTextResponse(w, "ok")
	})

	backend := &ClaudeBackend{APIKey: "k", Model: "test-model", MaxRetries: 3}
	got, err := backend.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("Complete() = %q, want %q", got, "ok")
	}

	// Both attempts must carry the full request body.
	if len(models) != 2 {
		t.Fatalf("requests = %d, want 2", len(models))
	}
	for i, model := range models {
		if model != "test-model" {
			t.Errorf("request %d: model = %q, want the body resent intact", i, model)
		}
	}
}

func TestClaudeBackendErrorStatus(t *testing.T) {
	withClaudeServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	backend := &ClaudeBackend{APIKey: "k", Model: "m"}
	_, err := backend.Complete(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "overloaded") {
		t.Errorf("error = %q, want status and body", err)
	}
}

func TestClaudeBackendNoTextBlock(t *testing.T) {
	withClaudeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "tool_use"}},
		})
	})

	backend := &ClaudeBackend{APIKey: "k", Model: "m"}
	_, err := backend.Complete(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "no text content") {
		t.Errorf("error = %q, want missing text block message", err)
	}
}

func TestClaudeBackendSkipsNonTextBlocks(t *testing.T) {
	withClaudeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "thinking", "text": "mulling it over"},
				{"type": "text", "text": "the answer"},
			},
		})
	})

	backend := &ClaudeBackend{APIKey: "k", Model: "m"}
	got, err := backend.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "the answer" {
		t.Errorf("Complete() = %q, want the first text block", got)
	}
}

func TestRenderExtractionPrompt(t *testing.T) {
	prompt, err := renderExtractionPrompt("## Risks\n\nSparse winter data.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		`"idea", "question", "risk", "resource", "decision"`,
		"JSON object",
		"Document section:",
		"## Risks",
		"Sparse winter data.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestRenderBrainstormPrompt(t *testing.T) {
	full := brainstormContext{
		Title:    "Alpine irradiance forecasting",
		PlanID:   "alpine-irradiance",
		Status:   "exploring",
		Region:   "Alps",
		Tags:     "forecasting, irradiance",
		Headings: []string{"Goal", "Risks"},
		Prompt:   "What data do we need?",
	}

	prompt, err := renderBrainstormPrompt(full)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"Plan: Alpine irradiance forecasting (alpine-irradiance, status: exploring)",
		"Region: Alps",
		"Tags: forecasting, irradiance",
		"- Goal",
		"- Risks",
		"What data do we need?",
		"Answer in Markdown",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	// Optional lines drop out when the plan has no region or tags.
	bare := full
	bare.Region = ""
	bare.Tags = ""
	prompt, err = renderBrainstormPrompt(bare)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(prompt, "Region:") {
		t.Error("prompt contains Region line for a plan without one")
	}
	if strings.Contains(prompt, "Tags:") {
		t.Error("prompt contains Tags line for a plan without one")
	}
}
