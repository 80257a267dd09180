package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RadimMusalek/pv-planner/internal/plan"
	"github.com/RadimMusalek/pv-planner/internal/usage"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Inspect the planning workspace",
}

// --- info subcommand ---

var workspaceInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show workspace layout and contents",
	Long: `Info reports the workspace directories the stages read and write, how
much each holds, and today's usage counts. Run it from a fresh checkout to
see what mage init would create.`,
	RunE: runWorkspaceInfo,
}

func runWorkspaceInfo(cmd *cobra.Command, args []string) error {
	ws := workspacePath(cmd)
	plansDir := filepath.Join(ws, "plans")
	extractedDir := filepath.Join(ws, "planning", "extracted")

	planFiles, _ := plan.Files(plansDir)
	extracted := countSuffix(extractedDir, "-items.yaml")

	fmt.Printf("Workspace: %s\n\n", ws)
	fmt.Printf("  %-10s %s (%d plan(s))\n", "plans", plansDir, len(planFiles))
	fmt.Printf("  %-10s %s (%d extraction file(s))\n", "extracted", extractedDir, extracted)

	dbPath := filepath.Join(ws, "planning", "index", "planning.db")
	if _, err := os.Stat(dbPath); err == nil {
		fmt.Printf("  %-10s %s\n", "notebook", dbPath)
	} else {
		fmt.Printf("  %-10s %s (not built; run notebook store)\n", "notebook", dbPath)
	}

	logPath := filepath.Join(ws, "logs", "pv-planner.log")
	if _, err := os.Stat(logPath); err == nil {
		fmt.Printf("  %-10s %s\n", "worklog", logPath)
	}

	stats := usage.NewLedger(usageConfig(cmd)).Stats()
	fmt.Printf("\nUsage today (%s): %d/%d calls\n", stats.Date, stats.TotalCalls, stats.TotalLimit)
	return nil
}

// countSuffix counts files in dir whose name ends with suffix.
func countSuffix(dir, suffix string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			n++
		}
	}
	return n
}

func init() {
	workspaceCmd.AddCommand(workspaceInfoCmd)

	rootCmd.AddCommand(workspaceCmd)
}
