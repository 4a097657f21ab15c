package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vcanalyst/internal/display"
	"vcanalyst/internal/snapshot"
)

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotListCmd, snapshotShowCmd)
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Browse saved dashboards",
}

var snapshotListCmd = &cobra.Command{
	Use:   "list [company]",
	Short: "List saved dashboards, newest first",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := snapshot.Open(cfg.Snapshot)
		if err != nil {
			return err
		}
		defer closeStore(store)

		list, err := store.List(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("list snapshots: %w", err)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No snapshots found.")
			if !cfg.Snapshot.Durable() {
				fmt.Fprintf(cmd.OutOrStdout(), "The %s snapshot backend keeps nothing between runs; set SNAPSHOT_BACKEND to postgres or s3.\n", cfg.Snapshot.Backend)
			}
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCOMPANY\tCARDS\tCREATED")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				s.ID,
				s.Company,
				s.CardCount,
				s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved dashboard and its transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := snapshot.Open(cfg.Snapshot)
		if err != nil {
			return err
		}
		defer closeStore(store)

		snap, err := store.Get(cmd.Context(), args[0])
		if errors.Is(err, snapshot.ErrNotFound) {
			return fmt.Errorf("snapshot %s not found", args[0])
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s, saved %s\n\n", snap.Company, snap.CreatedAt.Local().Format("2006-01-02 15:04"))
		for _, m := range snap.Transcript {
			fmt.Fprintln(out, display.RenderMessage(m))
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, display.RenderCards(snap.Cards))
		return nil
	},
}
