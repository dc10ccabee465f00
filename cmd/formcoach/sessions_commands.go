package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"formcoach/internal/config"
	"formcoach/internal/session"
)

func newSessionsCommand(configFlag *string) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored analysis sessions",
	}

	sessionsCmd.AddCommand(newSessionsListCommand(configFlag))
	sessionsCmd.AddCommand(newSessionsShowCommand(configFlag))

	return sessionsCmd
}

func openStore(configFlag *string) (*session.Store, error) {
	cfg, _, _, err := config.Load(*configFlag)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	store, err := session.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return store, nil
}

func newSessionsListCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(configFlag)
			if err != nil {
				return err
			}
			defer store.Close()

			summaries, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No sessions recorded yet")
				return nil
			}

			headers := []string{"ID", "Exercise", "Started", "Reps", "Efficiency", "Status"}
			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				status := "finished"
				if s.Aborted {
					status = "aborted"
				}
				rows = append(rows, []string{
					shortID(s.ID),
					s.ExerciseID,
					s.StartedAt.Local().Format("2006-01-02 15:04:05"),
					fmt.Sprintf("%d/%d", s.Metrics.CompleteReps, s.TargetReps),
					fmt.Sprintf("%.0f%%", s.Metrics.Efficiency*100),
					status,
				})
			}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			return nil
		},
	}
}

func newSessionsShowCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session with repetitions and detected errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(configFlag)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := resolveSessionID(cmd, store, args[0])
			if err != nil {
				return err
			}
			sess, err := store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session %s\n", sess.ID)
			fmt.Fprintf(out, "Exercise:   %s (target %d reps)\n", sess.ExerciseID, sess.TargetReps)
			fmt.Fprintf(out, "Started:    %s\n", sess.StartedAt.Local().Format(time.RFC1123))
			fmt.Fprintf(out, "Duration:   %s\n", sess.EndedAt.Sub(sess.StartedAt).Round(time.Second))
			fmt.Fprintf(out, "Reps:       %d complete, %d incomplete\n",
				sess.Metrics.CompleteReps, sess.Metrics.IncompleteReps)
			fmt.Fprintf(out, "Avg ROM:    %.1f°\n", sess.Metrics.AverageROM)
			fmt.Fprintf(out, "Efficiency: %.0f%%\n", sess.Metrics.Efficiency*100)
			if sess.Aborted {
				fmt.Fprintln(out, "Status:     aborted by user")
			}

			if len(sess.Reps) > 0 {
				headers := []string{"Rep", "Status", "Duration", "ROM", "Peak Vel", "Errors"}
				rows := make([][]string, 0, len(sess.Reps))
				for _, rep := range sess.Reps {
					labels := make([]string, 0, len(rep.Errors))
					for _, ev := range rep.Errors {
						labels = append(labels, fmt.Sprintf("%s (%s)", ev.Label, ev.Severity))
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", rep.Index+1),
						string(rep.Status),
						rep.EndedAt.Sub(rep.StartedAt).Round(100 * time.Millisecond).String(),
						fmt.Sprintf("%.1f°", rep.Metrics.RangeOfMotion),
						fmt.Sprintf("%.0f°/s", rep.Metrics.PeakVelocity),
						strings.Join(labels, ", "),
					})
				}
				aligns := []columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft}
				fmt.Fprintln(out, renderTable(headers, rows, aligns))
			}
			return nil
		},
	}
}

// resolveSessionID accepts either a full session ID or a unique prefix.
func resolveSessionID(cmd *cobra.Command, store *session.Store, arg string) (string, error) {
	summaries, err := store.List(cmd.Context())
	if err != nil {
		return "", fmt.Errorf("list sessions: %w", err)
	}
	var matches []string
	for _, s := range summaries {
		if s.ID == arg {
			return arg, nil
		}
		if strings.HasPrefix(s.ID, arg) {
			matches = append(matches, s.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return arg, nil // let the store report not found
	default:
		return "", fmt.Errorf("session id prefix %q is ambiguous (%d matches)", arg, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
