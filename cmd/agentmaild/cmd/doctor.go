package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/agentmail/agentmaild/internal/cliconfig"
	"github.com/spf13/cobra"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run config and environment diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		report := cliconfig.RunDoctor(cmd.Context())

		if doctorJSON {
			payload := map[string]any{"status": "ok", "command": "doctor", "result": report}
			if report.HasFailures() {
				payload["status"] = "error"
			}
			b, _ := json.MarshalIndent(payload, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			if report.HasFailures() {
				return fmt.Errorf("doctor found one or more failing checks")
			}
			return nil
		}

		for _, check := range report.Checks {
			symbol := "PASS"
			switch check.Status {
			case cliconfig.DoctorWarn:
				symbol = "WARN"
			case cliconfig.DoctorFail:
				symbol = "FAIL"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", symbol, check.Name, check.Message)
		}
		if report.HasFailures() {
			return fmt.Errorf("doctor found one or more failing checks")
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output machine-readable JSON report")
}
