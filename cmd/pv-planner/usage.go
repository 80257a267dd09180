package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RadimMusalek/pv-planner/internal/usage"
	"github.com/RadimMusalek/pv-planner/pkg/types"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect daily AI API usage limits",
	Long: `Usage reads the api_usage.json ledger at the workspace root. Counts
reset at the first command of each new day; assist commands stop once the
per-user or total daily limit is reached.`,
}

// --- stats subcommand ---

var usageStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show today's API call counts",
	RunE:  runUsageStats,
}

func runUsageStats(cmd *cobra.Command, args []string) error {
	ledger := usage.NewLedger(usageConfig(cmd))
	stats := ledger.Stats()

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Printf("Date:  %s\n", stats.Date)
	fmt.Printf("Total: %d/%d calls\n", stats.TotalCalls, stats.TotalLimit)

	if len(stats.UserCalls) == 0 {
		fmt.Println("\nNo calls recorded today.")
		return nil
	}

	users := make([]string, 0, len(stats.UserCalls))
	for user := range stats.UserCalls {
		users = append(users, user)
	}
	sort.Strings(users)

	fmt.Printf("\n%-20s %s\n", "User", "Calls")
	for _, user := range users {
		fmt.Printf("%-20s %d/%d\n", user, stats.UserCalls[user], stats.UserLimit)
	}
	return nil
}

// --- check subcommand ---

var usageCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether the current user may make an AI call",
	Long: `Check applies the same gate the assist commands use, without recording
a call. A non-zero exit means the next call would be denied.`,
	RunE: runUsageCheck,
}

func runUsageCheck(cmd *cobra.Command, args []string) error {
	user := currentUser(cmd)

	ledger := usage.NewLedger(usageConfig(cmd))
	if err := ledger.Allow(user); err != nil {
		return err
	}

	stats := ledger.Stats()
	fmt.Printf("ok: %s has used %d/%d calls today (total %d/%d)\n",
		user, stats.UserCalls[user], stats.UserLimit, stats.TotalCalls, stats.TotalLimit)
	return nil
}

// --- shared helpers ---

// usageConfig assembles the ledger configuration. Limits come from config
// (usage.daily_user_limit, usage.daily_total_limit); zero means the default.
func usageConfig(cmd *cobra.Command) types.UsageConfig {
	return types.UsageConfig{
		DailyUserLimit:  viper.GetInt("usage.daily_user_limit"),
		DailyTotalLimit: viper.GetInt("usage.daily_total_limit"),
		LedgerPath:      filepath.Join(workspacePath(cmd), usage.DefaultLedgerFile),
	}
}

func init() {
	usageStatsCmd.Flags().Bool("json", false, "output stats as JSON")

	usageCmd.AddCommand(usageStatsCmd)
	usageCmd.AddCommand(usageCheckCmd)

	rootCmd.AddCommand(usageCmd)
}
