package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"formcoach/internal/config"
	"formcoach/internal/ipc"
)

func dialDaemon(configFlag *string) (*ipc.Client, error) {
	cfg, _, _, err := config.Load(*configFlag)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	client, err := ipc.Dial(ipc.SocketPath(cfg.Paths.StateDir))
	if err != nil {
		return nil, fmt.Errorf("connect to daemon (is formcoachd running?): %w", err)
	}
	return client, nil
}

// newSayCommand injects a transcript as if it came from speech recognition,
// for driving sessions without a microphone.
func newSayCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "say <transcript>...",
		Short: "Send a voice command to the running daemon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialDaemon(configFlag)
			if err != nil {
				return err
			}
			defer client.Close()

			text := strings.Join(args, " ")
			resp, err := client.Transcript(text, true)
			if err != nil {
				return fmt.Errorf("send transcript: %w", err)
			}
			if !resp.Accepted {
				return fmt.Errorf("daemon rejected transcript %q", text)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent: %s\n", text)
			return nil
		},
	}
}

func newStatusCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and capture status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			client, err := dialDaemon(configFlag)
			if err != nil {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return fmt.Errorf("query status: %w", err)
			}

			state := "stopped"
			if status.Running {
				state = "running"
			}
			rows := [][]string{
				{"State", state},
				{"PID", fmt.Sprintf("%d", status.PID)},
				{"Camera A", status.CameraA},
				{"Camera B", status.CameraB},
				{"Sessions DB", status.SessionsDB},
				{"Paired frames", fmt.Sprintf("%d", status.PairedPairs)},
				{"Degraded frames", fmt.Sprintf("%d", status.DegradedPairs)},
				{"Dropped frames", fmt.Sprintf("%d", status.DroppedFrames)},
			}
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))
			return nil
		},
	}
}
