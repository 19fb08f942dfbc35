// Package cmd wires the router core into a small operator-facing CLI with
// a route subcommand for one-shot dispatch and a serve subcommand exposing
// the operational HTTP surface.
package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "llmrouter",
	Short: "Policy-driven multi-provider LLM request router",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "router.toml", "path to the router configuration file")
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(serveCmd)
}
