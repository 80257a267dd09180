package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RadimMusalek/pv-planner/internal/assist"
	"github.com/RadimMusalek/pv-planner/internal/credentials"
	"github.com/RadimMusalek/pv-planner/internal/usage"
	"github.com/RadimMusalek/pv-planner/internal/worklog"
	"github.com/RadimMusalek/pv-planner/pkg/types"
)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "pv-planner/0.1"
)

var assistCmd = &cobra.Command{
	Use:   "assist",
	Short: "AI assistance over plan documents",
	Long: `The assist commands call the Claude API on plan documents. Every call
is checked against the daily usage ledger first and recorded after; once a
limit is hit the command stops.`,
}

// --- extract subcommand ---

var assistExtractCmd = &cobra.Command{
	Use:   "extract [plan...]",
	Short: "Extract typed planning entries from plan documents",
	Long: `Extract sends each plan section to the AI backend and captures the
typed planning entries it finds (ideas, questions, risks, resources,
decisions) as YAML under planning/extracted/. Plans whose extraction output
is newer than the document are skipped. Name the plans to extract, or pass
--batch for all of them.`,
	RunE: runAssistExtract,
}

func runAssistExtract(cmd *cobra.Command, args []string) error {
	batch, _ := cmd.Flags().GetBool("batch")
	if len(args) == 0 && !batch {
		return fmt.Errorf("name one or more plans, or pass --batch to extract all of them")
	}

	assistant, done, err := buildAssistant(cmd)
	if err != nil {
		return err
	}
	defer done()

	summary, err := assistant.ExtractAll(context.Background(), args, os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d plan(s) failed extraction", summary.Failed)
	}
	return nil
}

// --- brainstorm subcommand ---

var assistBrainstormCmd = &cobra.Command{
	Use:   "brainstorm <prompt...>",
	Short: "Ask a plan-aware question and record the exchange",
	Long: `Brainstorm sends the prompt to the AI backend together with the plan's
frontmatter and section headings, then appends the exchange to the plan
document as a new "Prompt" section: the prompt quoted, the response below.
Later extraction runs pick the new section up like any other.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAssistBrainstorm,
}

func runAssistBrainstorm(cmd *cobra.Command, args []string) error {
	planID, _ := cmd.Flags().GetString("plan")
	if planID == "" {
		return fmt.Errorf("--plan is required")
	}
	topic, _ := cmd.Flags().GetString("topic")

	assistant, done, err := buildAssistant(cmd)
	if err != nil {
		return err
	}
	defer done()

	heading, err := assistant.Brainstorm(context.Background(), assist.BrainstormRequest{
		PlanID: planID,
		Topic:  topic,
		Prompt: strings.Join(args, " "),
	})
	if err != nil {
		return err
	}

	path := filepath.Join(assistant.Config.PlansDir, planID+".md")
	fmt.Printf("Appended %q to %s\n", heading, path)
	return nil
}

// --- shared helpers ---

// assistConfig assembles the assist stage configuration from flags and config.
func assistConfig(cmd *cobra.Command) types.AssistConfig {
	model, _ := cmd.Flags().GetString("model")
	if model == "" {
		model = viper.GetString("assist.model")
	}
	if model == "" {
		model = defaultModel
	}

	maxRetries, _ := cmd.Flags().GetInt("max-retries")

	plansDir, _ := cmd.Flags().GetString("plans-dir")
	if plansDir == "" {
		plansDir = filepath.Join(workspacePath(cmd), "plans")
	}
	planningDir, _ := cmd.Flags().GetString("planning-dir")
	if planningDir == "" {
		planningDir = filepath.Join(workspacePath(cmd), "planning")
	}

	return types.AssistConfig{
		AIConfig: types.AIConfig{
			Model:      model,
			MaxRetries: maxRetries,
		},
		PlansDir:    plansDir,
		PlanningDir: planningDir,
	}
}

// httpConfig assembles HTTP client settings from config.
func httpConfig() types.HTTPConfig {
	timeout := viper.GetDuration("http.timeout")
	if timeout == 0 {
		timeout = defaultTimeout
	}
	userAgent := viper.GetString("http.user_agent")
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return types.HTTPConfig{Timeout: timeout, UserAgent: userAgent}
}

// buildAssistant wires the Claude backend, the usage ledger, and the worklog
// into an Assistant. The returned func flushes the worklog.
func buildAssistant(cmd *cobra.Command) (*assist.Assistant, func(), error) {
	cfg := assistConfig(cmd)

	vals, err := creds.Resolve(credentials.ServiceAnthropic)
	if err != nil {
		return nil, nil, err
	}

	httpCfg := httpConfig()
	backend := &assist.ClaudeBackend{
		APIKey:     vals[credentials.KeyAnthropicAPIKey],
		Model:      cfg.Model,
		Client:     &http.Client{Timeout: httpCfg.Timeout},
		UserAgent:  httpCfg.UserAgent,
		MaxRetries: cfg.MaxRetries,
	}

	ledger := usage.NewLedger(usageConfig(cmd))

	logPath, _ := cmd.Flags().GetString("log")
	log, closeLog := worklog.Open(worklog.Options{
		Workspace: workspacePath(cmd),
		Path:      logPath,
	})

	assistant := &assist.Assistant{
		Backend: backend,
		Gate:    ledger,
		User:    currentUser(cmd),
		Config:  cfg,
		Log:     log,
	}
	return assistant, closeLog, nil
}

func init() {
	assistCmd.PersistentFlags().String("plans-dir", "", "plan documents directory (default <workspace>/plans)")
	assistCmd.PersistentFlags().String("planning-dir", "", "planning output directory (default <workspace>/planning)")
	assistCmd.PersistentFlags().String("model", "", "AI model identifier (default "+defaultModel+")")
	assistCmd.PersistentFlags().Int("max-retries", 3, "retry attempts for failed API calls")

	assistExtractCmd.Flags().Bool("batch", false, "extract every plan in plans/")

	assistBrainstormCmd.Flags().String("plan", "", "plan ID to brainstorm against (required)")
	assistBrainstormCmd.Flags().String("topic", "", "short name for the appended section heading")

	assistCmd.AddCommand(assistExtractCmd)
	assistCmd.AddCommand(assistBrainstormCmd)

	rootCmd.AddCommand(assistCmd)
}
