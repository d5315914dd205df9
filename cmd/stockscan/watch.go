package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/aquaflora/stockscan/internal/client"
	"github.com/aquaflora/stockscan/internal/events"
	"github.com/aquaflora/stockscan/internal/ui"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

// sseRetryDelay is how long watch waits before re-opening a dropped stream.
const sseRetryDelay = 2 * time.Second

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream scan, session and catalog events",
	GroupID: "system",
	Long: `Stream scan, session and catalog events as they happen.

Events are read from NATS when --nats, STOCKSCAN_NATS_URL or the active
remote's NATS URL is set, and from the server's event stream otherwise.
--topics takes comma-separated patterns where "*" matches one segment and
">" matches the rest, e.g. "stock.scan.*,stock.session.>".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		raw, _ := cmd.Flags().GetString("topics")
		patterns := splitTopics(raw)
		for _, p := range patterns {
			if len(matchingTopics([]string{p})) == 0 {
				return fmt.Errorf("--topics: %q matches no event topic", p)
			}
		}

		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" {
			natsURL = os.Getenv("STOCKSCAN_NATS_URL")
		}
		if natsURL == "" {
			natsURL = activeRemoteNATSURL()
		}
		if natsURL != "" {
			return watchNATS(ctx, cmd, natsURL, patterns)
		}
		return watchSSE(ctx, cmd, patterns)
	},
}

// watchNATS prints events read from NATS until ctx is done.
func watchNATS(ctx context.Context, cmd *cobra.Command, natsURL string, patterns []string) error {
	stderr := cmd.ErrOrStderr()
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			fmt.Fprintf(stderr, "nats: disconnected: %v\n", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			fmt.Fprintln(stderr, "nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	msgs, err := sub.Subscribe(ctx, patterns...)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	out := cmd.OutOrStdout()
	for m := range msgs {
		printEvent(out, m.Topic, m.Data)
	}
	return nil
}

// watchSSE reads the server's event stream, resuming from the last event ID
// whenever the connection drops.
func watchSSE(ctx context.Context, cmd *cobra.Command, patterns []string) error {
	out := cmd.OutOrStdout()
	var lastID string
	for {
		err := stockClient.StreamEvents(ctx, patterns, lastID, func(ev client.Event) error {
			lastID = ev.ID
			printEvent(out, ev.Topic, ev.Data)
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			return err
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "stream: %v; retrying\n", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sseRetryDelay):
		}
	}
}

func printEvent(w io.Writer, topic string, data []byte) {
	if jsonOutput {
		line, err := json.Marshal(struct {
			Topic string          `json:"topic"`
			Data  json.RawMessage `json:"data"`
		}{topic, json.RawMessage(data)})
		if err != nil {
			return
		}
		fmt.Fprintln(w, string(line))
		return
	}
	fmt.Fprintf(w, "%s %s %s\n",
		ui.RenderMuted(time.Now().Format("15:04:05")),
		ui.RenderAccent(topic),
		strings.TrimSpace(string(data)))
}

func splitTopics(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// matchingTopics returns the published topics matched by any pattern, or
// all of them when patterns is empty.
func matchingTopics(patterns []string) []string {
	if len(patterns) == 0 {
		return events.Topics
	}
	var out []string
	for _, topic := range events.Topics {
		for _, p := range patterns {
			if events.MatchTopic(p, topic) {
				out = append(out, topic)
				break
			}
		}
	}
	return out
}

func init() {
	watchCmd.Flags().String("topics", "", "comma-separated topic patterns to show (default all)")
	watchCmd.Flags().String("nats", "", "NATS URL to read events from instead of the server")
}
