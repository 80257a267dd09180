// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RadimMusalek/pv-planner/internal/notebook"
	"github.com/RadimMusalek/pv-planner/pkg/types"
)

var notebookCmd = &cobra.Command{
	Use:   "notebook",
	Short: "Manage the planning notebook (store, retrieve, export, review)",
	Long: `Notebook manages a local SQLite database built from extracted planning
entries. Use subcommands to index entries, query them, trace them back to
their plan sections, export, or replay saved queries.`,
}

// --- store subcommand ---

var notebookStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Ingest extracted planning entries into the notebook",
	Long: `Store reads extraction YAML files from planning/extracted/, ingests
them into a SQLite database with FTS5 indexing, and refreshes the export
file. Unchanged plans are skipped on subsequent runs.`,
	RunE: runNotebookStore,
}

func runNotebookStore(cmd *cobra.Command, args []string) error {
	store, err := notebook.NewStore(notebookConfig(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Ingest(context.Background(), os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d extraction file(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- retrieve subcommand ---

var notebookRetrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Query the notebook with full-text search and filters",
	Long: `Retrieve searches the notebook using FTS5 full-text search, structured
filters (kind, tag, plan, status), or a combination of both. Results carry
the plan title and status alongside each entry.

Use --trace with an entry ID to view the source plan section the entry was
extracted from. Use --save to record the query and its results in a review
file for later replay.`,
	RunE: runNotebookRetrieve,
}

func runNotebookRetrieve(cmd *cobra.Command, args []string) error {
	traceID, _ := cmd.Flags().GetString("trace")

	store, err := notebook.NewStore(notebookConfig(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	// Trace mode: show source context for a specific entry.
	if traceID != "" {
		text, err := store.Trace(context.Background(), traceID)
		if err != nil {
			return err
		}
		if text == "" {
			fmt.Println("Source section no longer exists in the plan document.")
			return nil
		}
		fmt.Println(text)
		return nil
	}

	opts, err := queryOptsFromFlags(cmd, args)
	if err != nil {
		return err
	}
	if opts.IsEmpty() {
		return fmt.Errorf("query or filter required: provide a search query, --kind, --tag, --plan, or --status")
	}

	results, err := store.Retrieve(context.Background(), opts)
	if err != nil {
		return err
	}

	if savePath, _ := cmd.Flags().GetString("save"); savePath != "" {
		if err := notebook.WriteReviewFile(savePath, opts, results); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved %d result(s) to %s\n", len(results), savePath)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatRetrieveOutput(results, jsonOutput)
}

func formatRetrieveOutput(results []notebook.QueryResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-8s  %-50s  %-24s  %-14s  %s\n",
		"Rank", "Kind", "Content", "Plan", "Section", "Seq")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 112))

	for i, r := range results {
		content := r.Content
		if len(content) > 50 {
			content = content[:47] + "..."
		}
		planID := r.PlanID
		if len(planID) > 24 {
			planID = planID[:21] + "..."
		}
		section := r.Section
		if len(section) > 14 {
			section = section[:11] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-8s  %-50s  %-24s  %-14s  %d\n",
			i+1, r.Kind, content, planID, section, r.Seq)
	}

	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

// --- export subcommand ---

var notebookExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the notebook to YAML or JSON",
	Long: `Export writes the full notebook (or a filtered subset) to
planning/index/export.yaml or export.json. Supports the same filter flags
as retrieve for partial exports.`,
	RunE: runNotebookExport,
}

func runNotebookExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	cfg := notebookConfig(cmd)
	store, err := notebook.NewStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	opts, err := queryOptsFromFlags(cmd, args)
	if err != nil {
		return err
	}

	indexDir := filepath.Join(cfg.PlanningDir, "index")
	switch format {
	case "yaml", "":
		if err := store.ExportYAML(context.Background(), opts); err != nil {
			return err
		}
		fmt.Println("Exported to", filepath.Join(indexDir, "export.yaml"))
	case "json":
		if err := store.ExportJSON(context.Background(), opts); err != nil {
			return err
		}
		fmt.Println("Exported to", filepath.Join(indexDir, "export.json"))
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}

	return nil
}

// --- review subcommand ---

var notebookReviewCmd = &cobra.Command{
	Use:   "review <file>",
	Short: "Replay a saved retrieval",
	Long: `Review reads a review file written by retrieve --save: the query, the
results as of the save, and a summary. By default the saved results are
shown as-is; --rerun executes the saved query against the current notebook
instead, which shows how the answers have moved since the save.`,
	Args: cobra.ExactArgs(1),
	RunE: runNotebookReview,
}

func runNotebookReview(cmd *cobra.Command, args []string) error {
	review, err := notebook.ReadReviewFile(args[0])
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	rerun, _ := cmd.Flags().GetBool("rerun")

	if !rerun {
		fmt.Printf("Saved %s: %d result(s) for %s\n\n",
			review.Summary.Timestamp.Format("2006-01-02 15:04"),
			review.Summary.Total, describeQuery(review.Query))
		return formatRetrieveOutput(review.Results, jsonOutput)
	}

	opts, err := review.Query.ToOptions()
	if err != nil {
		return err
	}
	if review.Config.MaxResults > 0 {
		opts.MaxResults = review.Config.MaxResults
	}

	store, err := notebook.NewStore(notebookConfig(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.Retrieve(context.Background(), opts)
	if err != nil {
		return err
	}

	fmt.Printf("Rerun of %s: %d result(s) saved, %d now\n\n",
		describeQuery(review.Query), review.Summary.Total, len(results))
	return formatRetrieveOutput(results, jsonOutput)
}

// describeQuery renders saved query parameters for display.
func describeQuery(p notebook.ReviewParams) string {
	var parts []string
	if p.Text != "" {
		parts = append(parts, fmt.Sprintf("query %q", p.Text))
	}
	if p.Kind != "" {
		parts = append(parts, "kind "+p.Kind)
	}
	for _, tag := range p.Tags {
		parts = append(parts, "tag "+tag)
	}
	if p.PlanID != "" {
		parts = append(parts, "plan "+p.PlanID)
	}
	if p.Status != "" {
		parts = append(parts, "status "+p.Status)
	}
	if len(parts) == 0 {
		return "(empty query)"
	}
	return strings.Join(parts, ", ")
}

// --- shared helpers ---

func notebookConfig(cmd *cobra.Command) types.NotebookConfig {
	planningDir, _ := cmd.Flags().GetString("planning-dir")
	if planningDir == "" {
		planningDir = filepath.Join(workspacePath(cmd), "planning")
	}
	plansDir, _ := cmd.Flags().GetString("plans-dir")
	if plansDir == "" {
		plansDir = filepath.Join(workspacePath(cmd), "plans")
	}
	maxResults, _ := cmd.Flags().GetInt("max-results")

	return types.NotebookConfig{
		PlanningDir: planningDir,
		PlansDir:    plansDir,
		MaxResults:  maxResults,
	}
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) (notebook.QueryOptions, error) {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}

	kind, _ := cmd.Flags().GetString("kind")
	if kind != "" && !types.ValidEntryKind(types.EntryKind(kind)) {
		return notebook.QueryOptions{}, fmt.Errorf("invalid kind %q: use idea, question, risk, resource, or decision", kind)
	}
	status, _ := cmd.Flags().GetString("status")
	if status != "" && !types.ValidPlanStatus(types.PlanStatus(status)) {
		return notebook.QueryOptions{}, fmt.Errorf("invalid status %q: use idea, exploring, mvp, or parked", status)
	}

	tag, _ := cmd.Flags().GetString("tag")
	planID, _ := cmd.Flags().GetString("plan")
	limit, _ := cmd.Flags().GetInt("limit")

	opts := notebook.QueryOptions{
		Query:      queryText,
		Kind:       types.EntryKind(kind),
		PlanID:     planID,
		Status:     types.PlanStatus(status),
		MaxResults: limit,
	}
	if tag != "" {
		opts.Tags = []string{tag}
	}
	return opts, nil
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	notebookCmd.PersistentFlags().String("planning-dir", "", "planning data directory (default <workspace>/planning)")
	notebookCmd.PersistentFlags().String("plans-dir", "", "plan documents directory (default <workspace>/plans)")
	notebookCmd.PersistentFlags().Int("max-results", 20, "maximum number of query results")

	// Retrieve flags.
	notebookRetrieveCmd.Flags().String("query", "", "full-text search query")
	notebookRetrieveCmd.Flags().String("kind", "", "filter by entry kind: idea, question, risk, resource, decision")
	notebookRetrieveCmd.Flags().String("tag", "", "filter by tag")
	notebookRetrieveCmd.Flags().String("plan", "", "filter by plan ID")
	notebookRetrieveCmd.Flags().String("status", "", "filter by plan status: idea, exploring, mvp, parked")
	notebookRetrieveCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	notebookRetrieveCmd.Flags().String("trace", "", "show the source plan section for an entry ID")
	notebookRetrieveCmd.Flags().Bool("json", false, "output results as JSON")
	notebookRetrieveCmd.Flags().String("save", "", "write the query and results to a review file")

	// Export flags.
	notebookExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	notebookExportCmd.Flags().String("query", "", "full-text search filter for partial export")
	notebookExportCmd.Flags().String("kind", "", "filter by entry kind")
	notebookExportCmd.Flags().String("tag", "", "filter by tag")
	notebookExportCmd.Flags().String("plan", "", "filter by plan ID")
	notebookExportCmd.Flags().String("status", "", "filter by plan status")
	notebookExportCmd.Flags().Int("limit", 0, "maximum results (0 = export everything)")

	// Review flags.
	notebookReviewCmd.Flags().Bool("rerun", false, "execute the saved query against the current notebook")
	notebookReviewCmd.Flags().Bool("json", false, "output results as JSON")

	notebookCmd.AddCommand(notebookStoreCmd)
	notebookCmd.AddCommand(notebookRetrieveCmd)
	notebookCmd.AddCommand(notebookExportCmd)
	notebookCmd.AddCommand(notebookReviewCmd)

	rootCmd.AddCommand(notebookCmd)
}
