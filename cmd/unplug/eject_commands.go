package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"unplug/internal/eject"
	"unplug/internal/ipc"
	"unplug/internal/volume"
)

const (
	watchPoll    = 150 * time.Millisecond
	watchTimeout = 5 * time.Minute
)

func newEjectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "eject <drive>",
		Short: "Safely eject a removable drive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Scan(args[0]); err != nil {
					return err
				}
				return watchDrive(cmd, client, args[0])
			})
		},
	}
}

func newForceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "force <drive> [pid...]",
		Short: "Forcibly eject a drive, terminating its occupants",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pids, err := parsePIDs(args[1:])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ForceEject(args[0], pids); err != nil {
					return err
				}
				return watchDrive(cmd, client, args[0])
			})
		},
	}
}

func newDismountCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dismount <drive>",
		Short: "Dismount a drive with the OS utility, then eject it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Dismount(args[0]); err != nil {
					return err
				}
				return watchDrive(cmd, client, args[0])
			})
		},
	}
}

func newKillCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "kill <drive> <pid>",
		Short: "Terminate one occupant of a drive and eject if it clears",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.ParseInt(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid pid %q", args[1])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Kill(args[0], int32(pid)); err != nil {
					return err
				}
				return watchDrive(cmd, client, args[0])
			})
		},
	}
}

func parsePIDs(args []string) ([]int32, error) {
	pids := make([]int32, 0, len(args))
	for _, arg := range args {
		pid, err := strconv.ParseInt(arg, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid pid %q", arg)
		}
		pids = append(pids, int32(pid))
	}
	return pids, nil
}

// watchDrive polls daemon status until the request for the drive reaches a
// terminal state, then renders the result.
func watchDrive(cmd *cobra.Command, client *ipc.Client, drive string) error {
	letter, err := volume.NormalizeLetter(drive)
	if err != nil {
		return err
	}

	spin := newSpinner("waiting for drive " + volume.Prefix(letter))
	defer spin.Stop()

	deadline := time.Now().Add(watchTimeout)
	for time.Now().Before(deadline) {
		status, err := client.Status()
		if err != nil {
			return err
		}
		state := status.State
		if state.Drive != letter {
			time.Sleep(watchPoll)
			continue
		}
		switch state.Kind {
		case eject.StateDone:
			spin.Stop()
			fmt.Fprintln(cmd.OutOrStdout(), state.Message)
			if !state.OK {
				return errors.New("eject did not complete")
			}
			return nil
		case eject.StateOccupied:
			spin.Stop()
			printOccupants(cmd, state)
			if len(state.Occupants) > 0 {
				return errors.New("drive is occupied")
			}
			return nil
		}
		time.Sleep(watchPoll)
	}
	spin.Stop()
	return fmt.Errorf("timed out waiting for drive %s", volume.Prefix(letter))
}

func printOccupants(cmd *cobra.Command, state eject.State) {
	out := cmd.OutOrStdout()
	prefix := volume.Prefix(state.Drive)
	if len(state.Occupants) == 0 {
		fmt.Fprintf(out, "Drive %s could not be ejected and no occupant was found.\n", prefix)
		fmt.Fprintf(out, "Try `unplug force %s` or `unplug dismount %s`.\n", prefix, prefix)
		return
	}

	fmt.Fprintf(out, "Drive %s is in use by:\n", prefix)
	rows := make([][]string, 0, len(state.Occupants))
	for _, occ := range state.Occupants {
		rows = append(rows, []string{strconv.Itoa(int(occ.PID)), occ.Name, occ.Detail})
	}
	fmt.Fprintln(out, renderTable([]string{"PID", "Process", "Reason"}, rows, 1))
	fmt.Fprintf(out, "Close them, or run `unplug kill %s <pid>` / `unplug force %s`.\n", prefix, prefix)
}

type progressSpinner struct {
	inner *spinner.Spinner
}

func newSpinner(message string) *progressSpinner {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return &progressSpinner{}
	}
	s := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + message
	s.Start()
	return &progressSpinner{inner: s}
}

func (p *progressSpinner) Stop() {
	if p.inner != nil {
		p.inner.Stop()
		p.inner = nil
	}
}
