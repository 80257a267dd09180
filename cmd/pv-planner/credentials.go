package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RadimMusalek/pv-planner/internal/credentials"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Inspect configured service credentials",
	Long: `Credentials are resolved in layers: environment variables first, then a
.env file, then per-key files in .secrets/ at the workspace root. Values are
never printed in full.`,
}

// --- check subcommand ---

var credentialsCheckCmd = &cobra.Command{
	Use:   "check [service...]",
	Short: "Report which credentials are present, masked",
	Long: `Check lists each service's keys with masked values. With no arguments
every known service is checked. A non-zero exit means at least one required
credential is missing.`,
	RunE: runCredentialsCheck,
}

func runCredentialsCheck(cmd *cobra.Command, args []string) error {
	services := args
	if len(services) == 0 {
		services = credentials.ServiceNames()
	}

	for _, service := range services {
		keys := credentials.Keys(service)
		if len(keys) == 0 {
			return fmt.Errorf("unknown service %q: known services are %s",
				service, strings.Join(credentials.ServiceNames(), ", "))
		}

		fmt.Println(service)
		vals, err := creds.Resolve(service)
		for _, key := range keys {
			if err == nil {
				fmt.Printf("  %-24s %s\n", key, credentials.Mask(vals[key]))
				continue
			}
			if v, ok := creds.Lookup(key); ok {
				fmt.Printf("  %-24s %s\n", key, credentials.Mask(v))
			} else {
				fmt.Printf("  %-24s MISSING\n", key)
			}
		}
	}

	if missing := creds.Missing(services...); len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}

	fmt.Println("\nAll credentials present.")
	return nil
}

func init() {
	credentialsCmd.AddCommand(credentialsCheckCmd)

	rootCmd.AddCommand(credentialsCmd)
}
