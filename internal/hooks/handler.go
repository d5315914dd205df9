package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/aquaflora/stockscan/internal/events"
)

// Handler is an events.Publisher that runs the hooks whose topic matches each
// published event. Commands run in the background; Close waits for them.
type Handler struct {
	hooks  []Hook
	logger *slog.Logger
	wg     sync.WaitGroup
}

var _ events.Publisher = (*Handler)(nil)

// NewHandler creates a handler for the given hooks.
func NewHandler(hooks []Hook, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hooks: hooks, logger: logger}
}

// Publish starts the matching hooks and returns without waiting for them.
func (h *Handler) Publish(ctx context.Context, topic string, event any) error {
	matched := h.matching(topic)
	if len(matched) == 0 {
		return nil
	}
	env, err := eventEnv(topic, event)
	if err != nil {
		return err
	}
	for _, hook := range matched {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.run(context.WithoutCancel(ctx), hook, env)
		}()
	}
	return nil
}

// Run executes the hooks matching topic synchronously, in file order.
func (h *Handler) Run(ctx context.Context, topic string, event any) ([]Result, error) {
	env, err := eventEnv(topic, event)
	if err != nil {
		return nil, err
	}
	var results []Result
	for _, hook := range h.matching(topic) {
		results = append(results, h.run(ctx, hook, env))
	}
	return results, nil
}

// Close waits for running hooks.
func (h *Handler) Close() error {
	h.wg.Wait()
	return nil
}

func (h *Handler) matching(topic string) []Hook {
	var out []Hook
	for _, hook := range h.hooks {
		if events.MatchTopic(hook.Topic, topic) {
			out = append(out, hook)
		}
	}
	return out
}

func (h *Handler) run(ctx context.Context, hook Hook, env map[string]string) Result {
	res := Execute(ctx, hook.Command, hook.Timeout(), env)
	if res.Err != nil && hook.OnFailure != OnFailureIgnore {
		h.logger.Warn("hooks: command failed",
			"topic", env["STOCKSCAN_TOPIC"], "command", hook.Command, "err", res.Err, "output", res.Output)
		return res
	}
	h.logger.Info("hooks: executed hook",
		"topic", env["STOCKSCAN_TOPIC"], "ok", res.Err == nil, "duration", res.Duration)
	return res
}

// eventEnv exposes the event to the command: the raw JSON payload plus the
// identifiers scripts most often need.
func eventEnv(topic string, event any) (map[string]string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("hooks: marshaling %s: %w", topic, err)
	}
	env := map[string]string{
		"STOCKSCAN_TOPIC": topic,
		"STOCKSCAN_EVENT": string(payload),
	}

	var fields map[string]any
	if json.Unmarshal(payload, &fields) != nil {
		return env, nil
	}
	for key, name := range map[string]string{
		"session_id": "STOCKSCAN_SESSION_ID",
		"mode":       "STOCKSCAN_MODE",
		"device_id":  "STOCKSCAN_DEVICE_ID",
		"entries":    "STOCKSCAN_ENTRIES",
	} {
		switch v := fields[key].(type) {
		case string:
			env[name] = v
		case float64:
			env[name] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return env, nil
}
