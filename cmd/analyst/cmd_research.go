package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"vcanalyst/internal/card"
	"vcanalyst/internal/display"
	"vcanalyst/internal/session"
	"vcanalyst/internal/snapshot"
)

var (
	flagSave        bool
	flagInteractive bool
)

func init() {
	rootCmd.AddCommand(researchCmd, chatCmd)
	researchCmd.Flags().BoolVar(&flagSave, "save", false, "save a snapshot of the dashboard when research completes")
	chatCmd.Flags().BoolVar(&flagSave, "save", false, "save a snapshot of the dashboard when the conversation ends")
	chatCmd.Flags().BoolVarP(&flagInteractive, "interactive", "i", false, "keep reading questions from stdin")
}

var researchCmd = &cobra.Command{
	Use:     "research <company>",
	Short:   "Research a company and print its dashboard",
	Args:    cobra.MinimumNArgs(1),
	PreRunE: checkSaveTarget,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		d, err := runResearch(ctx, cmd.OutOrStdout(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		if flagSave {
			return saveSnapshot(ctx, cmd.OutOrStdout(), d.Snapshot())
		}
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:     "chat <company> [question...]",
	Short:   "Research a company, then ask follow-up questions",
	Args:    cobra.MinimumNArgs(1),
	PreRunE: checkSaveTarget,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		out := cmd.OutOrStdout()

		d, err := runResearch(ctx, out, args[0])
		if err != nil {
			return err
		}
		if q := strings.TrimSpace(strings.Join(args[1:], " ")); q != "" {
			if err := runChatTurn(ctx, out, d, q); err != nil {
				return err
			}
		}
		if flagInteractive {
			if err := chatLoop(ctx, cmd.InOrStdin(), out, d); err != nil {
				return err
			}
		}
		if flagSave {
			return saveSnapshot(ctx, out, d.Snapshot())
		}
		return nil
	},
}

// runResearch drives one research session to completion, printing progress
// as it arrives and the dashboard once it settles.
func runResearch(ctx context.Context, out io.Writer, company string) (*session.Dashboard, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	d := session.New(newClient(cfg))

	var mu sync.Mutex
	last := -1.0
	unsubscribe := d.Subscribe(func(v session.View) {
		if v.Stream.Operation != session.OpResearch || v.Stream.Progress <= 0 || v.Stream.Progress >= 100 {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if v.Stream.Progress == last {
			return
		}
		last = v.Stream.Progress
		fmt.Fprintln(out, display.RenderProgress(placeholderStatus(v), v.Stream.Progress))
	})
	defer unsubscribe()

	call, err := d.Research(ctx, company)
	if err != nil {
		return nil, err
	}
	if err := call.Wait(ctx); err != nil {
		printLastMessage(out, d.Snapshot())
		return nil, err
	}

	v := d.Snapshot()
	printLastMessage(out, v)
	fmt.Fprintln(out)
	fmt.Fprintln(out, display.RenderCards(v.Cards))
	return d, nil
}

func runChatTurn(ctx context.Context, out io.Writer, d *session.Dashboard, question string) error {
	before := len(d.Snapshot().Stream.Emitted)
	call, err := d.Chat(ctx, question)
	if err != nil {
		return err
	}
	waitErr := call.Wait(ctx)

	v := d.Snapshot()
	printLastMessage(out, v)
	if emitted := v.Stream.Emitted; len(emitted) > before {
		fmt.Fprintln(out)
		fmt.Fprintln(out, display.RenderCards(cardsByID(v.Cards, emitted[before:])))
	}
	if errors.Is(waitErr, context.Canceled) {
		return waitErr
	}
	// a failed turn is already reported in the transcript
	return nil
}

func chatLoop(ctx context.Context, in io.Reader, out io.Writer, d *session.Dashboard) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		q := strings.TrimSpace(scanner.Text())
		switch q {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := runChatTurn(ctx, out, d, q); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// checkSaveTarget refuses --save up front when the snapshot backend would
// lose the dashboard on exit.
func checkSaveTarget(_ *cobra.Command, _ []string) error {
	if !flagSave {
		return nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Snapshot.Durable() {
		return fmt.Errorf("--save needs SNAPSHOT_BACKEND=postgres or s3; the %s backend is gone when this command exits", cfg.Snapshot.Backend)
	}
	return nil
}

func saveSnapshot(ctx context.Context, out io.Writer, v session.View) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := snapshot.Open(cfg.Snapshot)
	if err != nil {
		return err
	}
	defer closeStore(store)

	snap, err := snapshot.FromView(v)
	if err != nil {
		return err
	}
	if err := store.Save(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	fmt.Fprintf(out, "Saved snapshot %s (%d cards)\n", snap.ID, len(snap.Cards))
	return nil
}

func placeholderStatus(v session.View) string {
	for i := len(v.Transcript) - 1; i >= 0; i-- {
		m := v.Transcript[i]
		if m.Transient && m.Status != nil {
			text := m.Status.Text
			if i := strings.LastIndex(text, " ("); i > 0 {
				text = text[:i]
			}
			return text
		}
	}
	return "Researching"
}

func printLastMessage(out io.Writer, v session.View) {
	for i := len(v.Transcript) - 1; i >= 0; i-- {
		if m := v.Transcript[i]; !m.Transient && m.Role == session.RoleAgent {
			fmt.Fprintln(out, display.RenderMessage(m))
			return
		}
	}
}

func cardsByID(cards []card.Card, ids []string) []card.Card {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]card.Card, 0, len(ids))
	for _, c := range cards {
		if _, ok := want[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}

func closeStore(s snapshot.Store) {
	if c, ok := s.(io.Closer); ok {
		_ = c.Close()
	}
}
