package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"unplug/internal/ipc"
	"unplug/internal/sampler"
)

func newDrivesCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "drives",
		Short: "List removable drives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Drives(!all)
				if err != nil {
					return err
				}
				if len(resp.Volumes) == 0 {
					if all {
						fmt.Fprintln(cmd.OutOrStdout(), "No volumes found.")
					} else {
						fmt.Fprintln(cmd.OutOrStdout(), "No removable drives found.")
					}
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderDrives(resp.Volumes))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include fixed and system volumes")
	return cmd
}

func renderDrives(volumes []sampler.Volume) string {
	rows := make([][]string, 0, len(volumes))
	for _, v := range volumes {
		kind := "fixed"
		if v.Removable {
			kind = "removable"
		}
		rows = append(rows, []string{
			v.MountPoint,
			displayLabel(v.Label),
			humanize.IBytes(v.FreeBytes),
			humanize.IBytes(v.TotalBytes),
			kind,
		})
	}
	return renderTable([]string{"Drive", "Label", "Free", "Total", "Type"}, rows, 3, 4)
}

// displayLabel tames the all-caps labels most flash drives ship with.
func displayLabel(label string) string {
	if label == "" {
		return "(no label)"
	}
	if label == strings.ToUpper(label) {
		return cases.Title(language.Und).String(strings.ToLower(label))
	}
	return label
}
