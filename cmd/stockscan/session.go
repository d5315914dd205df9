package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aquaflora/stockscan/internal/model"
	"github.com/aquaflora/stockscan/internal/ui"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Short:   "Control the server's scan session",
	GroupID: "scanning",
}

var sessionStartCmd = &cobra.Command{
	Use:       "start <lookup|reconcile>",
	Short:     "Open a capture device and start scanning",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(model.ModeSingleLookup), string(model.ModeReconciliation)},
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stockClient.StartSession(cmd.Context(), model.ScanMode(args[0]))
		if err != nil {
			return err
		}
		return showStatus(cmd, st)
	},
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop scanning and release the device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stockClient.StopSession(cmd.Context())
		if err != nil {
			return err
		}
		return showStatus(cmd, st)
	},
}

var sessionSwitchCmd = &cobra.Command{
	Use:   "switch",
	Short: "Move the session to the next capture device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stockClient.SwitchDevice(cmd.Context())
		if err != nil {
			return err
		}
		return showStatus(cmd, st)
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stockClient.GetSession(cmd.Context())
		if err != nil {
			return err
		}
		return showStatus(cmd, st)
	},
}

func showStatus(cmd *cobra.Command, st *model.SessionStatus) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), st)
	}
	printSessionStatus(cmd.OutOrStdout(), *st)
	return nil
}

var tallyCmd = &cobra.Command{
	Use:     "tally [<sku>]",
	Short:   "Show the reconciliation tally, or one entry of it",
	GroupID: "scanning",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if export, _ := cmd.Flags().GetString("export"); export != "" {
			format, _ := cmd.Flags().GetString("format")
			return downloadReport(cmd, export, format)
		}

		if len(args) == 1 {
			e, err := stockClient.GetTallyEntry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, e)
			}
			printTally(out, []model.TallyEntry{*e})
			return nil
		}

		t, err := stockClient.GetTally(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, t)
		}
		printTally(out, t.Entries)
		return nil
	},
}

// downloadReport saves the server's tally report. When dest is a directory
// the server's suggested file name is used inside it.
func downloadReport(cmd *cobra.Command, dest, format string) error {
	if format == "" {
		format = formatFromPath(dest)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".stockscan-report-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	name, err := stockClient.DownloadTallyReport(cmd.Context(), format, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		if name == "" {
			name = fmt.Sprintf("tally-%s.%s", time.Now().UTC().Format("20060102T150405Z"), format)
		}
		dest = filepath.Join(dest, name)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "report saved to %s\n", ui.RenderAccent(dest))
	return nil
}

// formatFromPath picks the report format from a file extension; anything
// but .jsonl is a workbook.
func formatFromPath(path string) string {
	if filepath.Ext(path) == ".jsonl" {
		return "jsonl"
	}
	return "xlsx"
}

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Short:   "List the server's capture devices",
	GroupID: "scanning",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if roster, _ := cmd.Flags().GetBool("roster"); roster {
			staleAfter, _ := cmd.Flags().GetDuration("stale-after")
			entries, err := stockClient.DeviceRoster(cmd.Context(), staleAfter)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "no gateways have reported devices")
				return nil
			}
			for _, e := range entries {
				state := ui.RenderPass("online")
				if e.Lost {
					state = ui.RenderFail("lost")
				}
				fmt.Fprintf(out, "%-24s %-8s idle %5.1fs  heartbeats %d  %s\n", e.DeviceID, state, e.IdleSecs, e.HeartbeatCount, e.Label)
			}
			return nil
		}

		d, err := stockClient.ListDevices(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, d)
		}
		printDevices(out, d.Devices, d.Selected)
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionStopCmd)
	sessionCmd.AddCommand(sessionSwitchCmd)
	sessionCmd.AddCommand(sessionStatusCmd)

	tallyCmd.Flags().String("export", "", "save the tally report to this file or directory")
	tallyCmd.Flags().String("format", "", "report format: xlsx or jsonl (default from the file extension)")

	devicesCmd.Flags().Bool("roster", false, "show the heartbeat roster of gateway devices")
	devicesCmd.Flags().Duration("stale-after", 0, "roster staleness threshold (default: server setting)")
}
