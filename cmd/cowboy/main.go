package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cowboy",
		Short: "Local tooling for cowboy edge applications",
		Long: `Cowboy is a small routing and middleware layer for one-shot edge
compute programs. This tool runs a cowboy application locally behind a
plain HTTP listener, so routes can be exercised with curl or a browser
before deploying to the edge host.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cowboy %s (%s)\n", version, commit)
		},
	}
}
