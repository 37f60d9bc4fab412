// Package main is the entry point for the agentmaild MCP server.
package main

import (
	"os"

	"github.com/agentmail/agentmaild/cmd/agentmaild/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
