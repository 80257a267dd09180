package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "pv-planner/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// PlanConfig holds settings for plan document operations.
type PlanConfig struct {
	// PlansDir is the base directory for plan documents (contains attic/).
	PlansDir string `json:"plans_dir" yaml:"plans_dir"`

	// RequiredSections lists the headings every plan document must carry.
	// Empty means the default set: Goal, Data, Approach, MVP Scope, Risks.
	RequiredSections []string `json:"required_sections" yaml:"required_sections"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// AssistConfig holds settings for the AI assist stage.
type AssistConfig struct {
	AIConfig `yaml:",inline"`

	// PlansDir is the base directory for plan documents.
	PlansDir string `json:"plans_dir" yaml:"plans_dir"`

	// PlanningDir is the base directory for planning output (contains extracted/).
	PlanningDir string `json:"planning_dir" yaml:"planning_dir"`
}

// NotebookConfig holds settings for the planning notebook.
type NotebookConfig struct {
	// PlanningDir is the base directory for planning data (contains extracted/, index/).
	PlanningDir string `json:"planning_dir" yaml:"planning_dir"`

	// PlansDir is the base directory for plan documents, used to trace
	// entries back to their source sections.
	PlansDir string `json:"plans_dir" yaml:"plans_dir"`

	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// UsageConfig holds settings for the daily API usage ledger.
type UsageConfig struct {
	// DailyUserLimit is the maximum number of API calls per user per day (default 10).
	DailyUserLimit int `json:"daily_user_limit" yaml:"daily_user_limit"`

	// DailyTotalLimit is the maximum number of API calls across all users
	// per day (default 100).
	DailyTotalLimit int `json:"daily_total_limit" yaml:"daily_total_limit"`

	// LedgerPath is the path of the persisted ledger file (default "api_usage.json"
	// at the workspace root).
	LedgerPath string `json:"ledger_path" yaml:"ledger_path"`
}

// ToolConfig groups all stage configurations for the workbench.
type ToolConfig struct {
	Plan     PlanConfig     `json:"plan" yaml:"plan"`
	Assist   AssistConfig   `json:"assist" yaml:"assist"`
	Notebook NotebookConfig `json:"notebook" yaml:"notebook"`
	Usage    UsageConfig    `json:"usage" yaml:"usage"`
}
