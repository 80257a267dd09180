package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RadimMusalek/pv-planner/internal/convert"
	"github.com/RadimMusalek/pv-planner/internal/plan"
	"github.com/RadimMusalek/pv-planner/pkg/types"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Create, import, list, and validate plan documents",
	Long: `The plan commands manage the Markdown plan documents under plans/.
Each plan is a single file with YAML frontmatter (plan_id, title, status,
region, tags, created) followed by the sections the later stages read.`,
}

// --- new subcommand ---

var planNewCmd = &cobra.Command{
	Use:   "new <title>",
	Short: "Scaffold a new plan document",
	Long: `New creates a plan document from the standard template. The plan ID is
the slugified title; the file lands in plans/<id>.md with status "exploring"
and the default section skeleton.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlanNew,
}

func runPlanNew(cmd *cobra.Command, args []string) error {
	title := strings.Join(args, " ")

	path, err := plan.New(title, planConfig(cmd))
	if err != nil {
		return err
	}

	fmt.Println("Created", path)
	return nil
}

// --- import subcommand ---

var planImportCmd = &cobra.Command{
	Use:   "import <file...>",
	Short: "Import existing documents as plans",
	Long: `Import brings external documents into plans/. Markdown files gain
frontmatter when they have none; PDFs are converted to Markdown through the
markitdown container image first. Originals are preserved under
plans/attic/. Sources whose plan already exists are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlanImport,
}

func runPlanImport(cmd *cobra.Command, args []string) error {
	converter, err := convert.NewDefault()
	if err != nil {
		// Markdown imports still work without a container runtime.
		fmt.Fprintf(os.Stderr, "warning: PDF conversion unavailable: %v\n", err)
		converter = nil
	}

	importer := &plan.Importer{
		Converter: converter,
		Config:    planConfig(cmd),
	}

	result := importer.ImportAll(args, os.Stdout)
	if result.HasFailures() {
		return fmt.Errorf("%d document(s) failed to import", result.Failed)
	}
	return nil
}

// --- list subcommand ---

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plan documents and their status",
	RunE:  runPlanList,
}

func runPlanList(cmd *cobra.Command, args []string) error {
	cfg := planConfig(cmd)

	paths, err := plan.Files(cfg.PlansDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("No plans found.")
		return nil
	}

	fmt.Printf("%-32s %-10s %s\n", "Plan", "Status", "Title")
	fmt.Println(strings.Repeat("-", 72))
	for _, path := range paths {
		id := strings.TrimSuffix(filepath.Base(path), ".md")
		doc, err := plan.Load(path)
		if err != nil {
			fmt.Printf("%-32s %-10s %s\n", id, "invalid", err)
			continue
		}
		fmt.Printf("%-32s %-10s %s\n", id, doc.Meta.Status, doc.Meta.Title)
	}
	fmt.Printf("\n%d plan(s)\n", len(paths))
	return nil
}

// --- validate subcommand ---

var planValidateCmd = &cobra.Command{
	Use:   "validate [plan...]",
	Short: "Check plan documents for structural problems",
	Long: `Validate checks frontmatter fields, status values, and required
sections. With no arguments every plan in plans/ is checked; otherwise only
the named plans are. A non-zero exit means at least one plan is invalid.`,
	RunE: runPlanValidate,
}

func runPlanValidate(cmd *cobra.Command, args []string) error {
	cfg := planConfig(cmd)

	var paths []string
	if len(args) > 0 {
		for _, id := range args {
			paths = append(paths, filepath.Join(cfg.PlansDir, id+".md"))
		}
	} else {
		var err error
		paths, err = plan.Files(cfg.PlansDir)
		if err != nil {
			return err
		}
	}

	invalid := 0
	for _, path := range paths {
		id := strings.TrimSuffix(filepath.Base(path), ".md")
		violations := plan.ValidateFile(path, cfg.RequiredSections)
		if len(violations) == 0 {
			fmt.Printf("ok      %s\n", id)
			continue
		}
		invalid++
		fmt.Printf("invalid %s\n", id)
		for _, v := range violations {
			fmt.Printf("  - %s\n", v)
		}
	}

	fmt.Printf("\nchecked: %d, invalid: %d\n", len(paths), invalid)
	if invalid > 0 {
		return fmt.Errorf("%d plan(s) failed validation", invalid)
	}
	return nil
}

// --- shared helpers ---

// planConfig assembles the plan stage configuration from flags and config.
func planConfig(cmd *cobra.Command) types.PlanConfig {
	dir, _ := cmd.Flags().GetString("plans-dir")
	if dir == "" {
		dir = filepath.Join(workspacePath(cmd), "plans")
	}

	required := viper.GetStringSlice("plan.required_sections")

	return types.PlanConfig{
		PlansDir:         dir,
		RequiredSections: required,
	}
}

func init() {
	planCmd.PersistentFlags().String("plans-dir", "", "plan documents directory (default <workspace>/plans)")

	planCmd.AddCommand(planNewCmd)
	planCmd.AddCommand(planImportCmd)
	planCmd.AddCommand(planListCmd)
	planCmd.AddCommand(planValidateCmd)

	rootCmd.AddCommand(planCmd)
}
