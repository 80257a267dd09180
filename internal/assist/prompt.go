// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/template"

	"github.com/RadimMusalek/pv-planner/internal/httputil"
)

// extractionPromptTmpl is the prompt sent for each plan section. It
// instructs the model to extract typed planning items with provenance.
var extractionPromptTmpl = template.Must(template.New("extraction").Parse(`You are a planning assistant for photovoltaic (PV) energy machine-learning projects. Analyze the following section of a project planning document and extract typed planning items.

For each item, identify:
- kind: one of "idea", "question", "risk", "resource", "decision"
  - idea: a candidate project, feature, or modelling approach
  - question: an open question that needs an answer before work proceeds
  - risk: a concern that could delay or sink the project
  - resource: a dataset, API, tool, or reference the plan relies on
  - decision: a choice the plan has already committed to
- content: the original text from the document (preserve exact language, do not paraphrase)
- section: the section heading where the item appears
- confidence: a float between 0.0 and 1.0 indicating how certain you are about the kind classification and item boundaries
- tags: one or more lowercase, hyphenated topic labels drawn from the document's vocabulary (e.g. "irradiance", "off-grid", "time-series")

Respond with a JSON object containing an "items" array. Each element must have all fields listed above. Do not include any text outside the JSON object.

Example response:
{"items": [{"kind": "risk", "content": "Hourly irradiance data for alpine sites may be too sparse to train on.", "section": "Risks", "confidence": 0.88, "tags": ["irradiance", "data-availability"]}]}

Document section:
{{.Section}}
`))

// brainstormPromptTmpl frames a brainstorming prompt with the plan's
// frontmatter and section headings so the model answers in context.
var brainstormPromptTmpl = template.Must(template.New("brainstorm").Parse(`You are a planning assistant for photovoltaic (PV) energy machine-learning projects.

Plan: {{.Title}} ({{.PlanID}}, status: {{.Status}})
{{- if .Region}}
Region: {{.Region}}
{{- end}}
{{- if .Tags}}
Tags: {{.Tags}}
{{- end}}
Sections already in the plan:
{{- range .Headings}}
- {{.}}
{{- end}}

{{.Prompt}}

Answer in Markdown suitable for appending to the plan document. Do not repeat the frontmatter and do not restate existing sections.
`))

// renderExtractionPrompt executes the extraction template for one section.
func renderExtractionPrompt(section string) (string, error) {
	var buf bytes.Buffer
	if err := extractionPromptTmpl.Execute(&buf, struct{ Section string }{Section: section}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// brainstormContext carries the plan metadata into the brainstorm template.
type brainstormContext struct {
	Title    string
	PlanID   string
	Status   string
	Region   string
	Tags     string
	Headings []string
	Prompt   string
}

// renderBrainstormPrompt executes the brainstorm template.
func renderBrainstormPrompt(data brainstormContext) (string, error) {
	var buf bytes.Buffer
	if err := brainstormPromptTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// claudeAPIURL is the Claude API endpoint. Package-level var for test
// substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeBackend calls the Claude Messages API. Rate limiting (HTTP 429) is
// handled by the shared retry helper; other failures surface to the caller,
// which retries with its own backoff.
type ClaudeBackend struct {
	APIKey string
	Model  string
	Client *http.Client

	// UserAgent is sent with every request when set.
	UserAgent string

	// MaxRetries bounds 429 retries; 0 means the helper's default.
	MaxRetries int
}

// claudeRequest is the request body for the Claude Messages API.
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

// claudeMessage is a single message in the Claude API conversation.
type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the response body from the Claude Messages API.
type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

// claudeContent is a content block in the Claude API response.
type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Complete sends the prompt as a single user message and returns the first
// text block of the response.
func (c *ClaudeBackend) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := claudeRequest{
		Model:     c.Model,
		MaxTokens: 4096,
		Messages: []claudeMessage{
			{Role: "user", Content: prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, c.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("decoding Claude response: %w", err)
	}

	for _, block := range cResp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Claude API response")
}
