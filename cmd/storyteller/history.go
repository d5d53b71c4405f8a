package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"Storyteller/internal/history"
	"Storyteller/internal/render"
)

func newHistoryCmd(opts *options) *cobra.Command {
	var htmlOut string

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List logged sessions or print one transcript",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.historyDB
			if path == "" {
				cfg, err := loadConfig(cmd, opts)
				if err != nil {
					return err
				}
				path = cfg.HistoryDB
			}
			if path == "" {
				return errors.New("no history database (use --history-db or history_db in the settings file)")
			}

			store, err := history.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 0 {
				return listSessions(cmd, store)
			}
			return showSession(cmd, store, args[0], htmlOut)
		},
	}
	cmd.Flags().StringVar(&htmlOut, "html", "", "Write the transcript to this HTML file instead of printing it")
	return cmd
}

func listSessions(cmd *cobra.Command, store *history.Store) error {
	sums, err := store.ListSessions(cmd.Context())
	if err != nil {
		return err
	}
	if len(sums) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions logged.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tTARGET\tLEVEL\tNATIVE\tMESSAGES")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			s.ID, s.StartedAt.Local().Format(time.DateTime),
			s.Selection.TargetLanguage, s.Selection.Level, s.Selection.NativeLanguage,
			s.MessageCount)
	}
	return tw.Flush()
}

func showSession(cmd *cobra.Command, store *history.Store, id, htmlOut string) error {
	msgs, err := store.Messages(cmd.Context(), id)
	if err != nil {
		return err
	}

	if htmlOut != "" {
		f, err := os.Create(htmlOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", htmlOut, err)
		}
		if err := render.NewHTML().WriteTranscript(f, "Session "+id, msgs); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d messages to %s\n", len(msgs), htmlOut)
		return nil
	}

	out := cmd.OutOrStdout()
	for _, m := range msgs {
		line := fmt.Sprintf("[%s] %s: %s", m.Timestamp.Local().Format(time.TimeOnly), m.Role, render.StripControl(m.Content))
		if m.Status != "" {
			line += fmt.Sprintf(" (%s)", m.Status)
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
