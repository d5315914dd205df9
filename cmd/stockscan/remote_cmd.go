package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage the stockscan servers of each store",
	GroupID: "system",
	Long: `Manage named stockscan servers, typically one per store.

The active remote supplies the default --server, --token and watch NATS URL.
Remotes are kept in $STOCKSCAN_REMOTES, or remotes.toml under
$XDG_STATE_HOME/stockscan (~/.local/state/stockscan).`,
	// Remote subcommands only touch the local remotes file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add or update a remote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		natsURL, _ := cmd.Flags().GetString("nats")
		use, _ := cmd.Flags().GetBool("use")
		r := Remote{URL: args[1], Token: token, NATSURL: natsURL}

		var active bool
		err := editRemotes(func(s *remoteSet) error {
			if err := s.put(args[0], r, use); err != nil {
				return err
			}
			active = s.Active == args[0]
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q saved%s\n", args[0], activeSuffix(active))
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := editRemotes(func(s *remoteSet) error { return s.drop(args[0]) }); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q removed\n", args[0])
		return nil
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a remote the default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := editRemotes(func(s *remoteSet) error { return s.use(args[0]) }); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "using remote %q\n", args[0])
		return nil
	},
}

// remoteView is the printable form of a remote; the token is masked.
type remoteView struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Token   string `json:"token,omitempty"`
	NATSURL string `json:"nats_url,omitempty"`
	Active  bool   `json:"active"`
}

func viewRemote(s *remoteSet, name string, fill func(int) string) remoteView {
	r := s.Remotes[name]
	return remoteView{
		Name:    name,
		URL:     r.URL,
		Token:   maskToken(r.Token, 8, fill),
		NATSURL: r.NATSURL,
		Active:  name == s.Active,
	}
}

func ellipsis(int) string { return "..." }

func stars(n int) string { return strings.Repeat("*", n) }

func activeSuffix(active bool) string {
	if active {
		return " (active)"
	}
	return ""
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remotes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readRemotes()
		if err != nil {
			return err
		}
		views := make([]remoteView, 0, len(s.Remotes))
		for _, name := range s.names() {
			views = append(views, viewRemote(s, name, ellipsis))
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, views)
		}
		if len(views) == 0 {
			fmt.Fprintln(out, "no remotes configured")
			return nil
		}
		return printRemoteTable(out, views)
	},
}

func printRemoteTable(out io.Writer, views []remoteView) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tURL\tTOKEN\tNATS")
	for _, v := range views {
		marker := "  "
		if v.Active {
			marker = "* "
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\n", marker, v.Name, v.URL, v.Token, v.NATSURL)
	}
	return w.Flush()
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [<name>]",
	Short: "Show a remote (default: the active one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readRemotes()
		if err != nil {
			return err
		}
		var name string
		if len(args) == 1 {
			name = args[0]
		}
		name, _, err = s.resolve(name)
		if err != nil {
			return err
		}
		v := viewRemote(s, name, stars)
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, v)
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "name:\t%s%s\n", v.Name, activeSuffix(v.Active))
		fmt.Fprintf(w, "url:\t%s\n", v.URL)
		if v.Token != "" {
			fmt.Fprintf(w, "token:\t%s\n", v.Token)
		}
		if v.NATSURL != "" {
			fmt.Fprintf(w, "nats_url:\t%s\n", v.NATSURL)
		}
		return w.Flush()
	},
}

func init() {
	remoteAddCmd.Flags().String("token", "", "bearer token for the server")
	remoteAddCmd.Flags().String("nats", "", "NATS URL the server publishes events on")
	remoteAddCmd.Flags().Bool("use", false, "make this the active remote")

	remoteCmd.AddCommand(remoteAddCmd, remoteRemoveCmd, remoteListCmd, remoteUseCmd, remoteShowCmd)
}
