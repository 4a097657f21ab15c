package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vcanalyst/internal/aggregate"
	"vcanalyst/internal/display"
)

func init() {
	rootCmd.AddCommand(healthCmd, basicsCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newClient(cfg)
		h, err := client.HealthCheck(cmd.Context())
		if err != nil {
			return fmt.Errorf("health check: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", client.BaseURL(), h.Status)
		return nil
	},
}

var basicsCmd = &cobra.Command{
	Use:   "basics <company>",
	Short: "Fetch the short company profile without a full research run",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rec, err := newClient(cfg).StartupBasics(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("basics: %w", err)
		}
		reg := aggregate.NewRegistry()
		aggregate.IngestRecord(reg, rec)
		fmt.Fprintln(cmd.OutOrStdout(), display.RenderCards(reg.Cards()))
		return nil
	},
}
