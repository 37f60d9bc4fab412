// Package cmd implements the cobra command tree: serve, migrate, doctor,
// version. Grounded on the teacher's internal/cli.rootCmd/Execute shape.
package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "agentmaild",
	Short: "agentmaild - MCP coordination server for autonomous coding agents",
	Long:  color.CyanString("agentmaild") + "\nAn MCP server for multi-agent messaging, file reservations, and build-slot coordination.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}
