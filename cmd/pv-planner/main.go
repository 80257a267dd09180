// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the pv-planner CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RadimMusalek/pv-planner/internal/credentials"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// creds is the layered credential provider, loaded once before any
// subcommand runs.
var creds *credentials.Provider

var rootCmd = &cobra.Command{
	Use:   "pv-planner",
	Short: "Planning workbench for photovoltaic ML projects",
	Long: `pv-planner keeps photovoltaic machine-learning project planning in plain
Markdown and makes it searchable. Plan documents live under plans/, an AI
assistant extracts typed planning entries (ideas, questions, risks,
resources, decisions) into planning/extracted/, and a SQLite notebook under
planning/index/ answers full-text and structured queries over everything
captured so far.

Stages are subcommands: plan, assist, notebook, usage, credentials.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		secretsDir := filepath.Join(workspacePath(cmd), ".secrets")
		provider, err := credentials.Load(secretsDir)
		if err != nil {
			return fmt.Errorf("loading credentials: %w", err)
		}
		creds = provider

		if keys := creds.LoadedKeys(); len(keys) > 0 {
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default ./pv-planner.yaml or ~/.config/pv-planner)")
	rootCmd.PersistentFlags().String("workspace", ".", "workspace root containing plans/, planning/, logs/")
	rootCmd.PersistentFlags().String("user", "", "user name for usage accounting (default $USER)")
	rootCmd.PersistentFlags().String("log", "", "worklog path (default <workspace>/logs/pv-planner.log when logs/ exists)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pv-planner")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "pv-planner"))
		}
	}

	viper.SetEnvPrefix("PV_PLANNER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// workspacePath returns the workspace root from the --workspace flag.
func workspacePath(cmd *cobra.Command) string {
	ws, _ := cmd.Flags().GetString("workspace")
	if ws == "" {
		ws = "."
	}
	return ws
}

// currentUser resolves the identity charged for AI calls: the --user flag,
// then config, then $USER.
func currentUser(cmd *cobra.Command) string {
	if user, _ := cmd.Flags().GetString("user"); user != "" {
		return user
	}
	if user := viper.GetString("user"); user != "" {
		return user
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "default"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
