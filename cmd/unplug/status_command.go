package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"unplug/internal/eject"
	"unplug/internal/ipc"
	"unplug/internal/volume"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and eject status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Daemon:  running (pid %d, started %s)\n",
					resp.PID, humanize.Time(resp.StartedAt))
				fmt.Fprintf(out, "Socket:  %s\n", resp.SocketPath)
				fmt.Fprintf(out, "State:   %s\n", describeState(resp.State))
				return nil
			})
		},
	}
}

func describeState(state eject.State) string {
	switch state.Kind {
	case eject.StateIdle:
		return "idle"
	case eject.StateScanning:
		if state.Message != "" {
			return state.Message
		}
		return "scanning drive " + volume.Prefix(state.Drive)
	case eject.StateOccupied:
		return fmt.Sprintf("drive %s occupied by %d process(es)",
			volume.Prefix(state.Drive), len(state.Occupants))
	case eject.StateEjecting:
		return "ejecting drive " + volume.Prefix(state.Drive)
	case eject.StateDone:
		return state.Message
	default:
		return string(state.Kind)
	}
}
