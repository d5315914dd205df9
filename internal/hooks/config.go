package hooks

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/aquaflora/stockscan/internal/events"
)

// OnFailure values for Hook.OnFailure.
const (
	OnFailureWarn   = "warn"
	OnFailureIgnore = "ignore"
)

// Hook binds a shell command to a topic pattern ("*" and ">" wildcards as
// in NATS subjects).
type Hook struct {
	Topic     string `toml:"topic"`
	Command   string `toml:"command"`
	TimeoutS  int    `toml:"timeout"`
	OnFailure string `toml:"on_failure"`
}

// Timeout returns the effective command timeout.
func (h Hook) Timeout() time.Duration {
	return clampTimeout(time.Duration(h.TimeoutS) * time.Second)
}

type hooksFile struct {
	Hooks []Hook `toml:"hook"`
}

// LoadFile reads hooks from a TOML file of [[hook]] tables:
//
//	[[hook]]
//	topic = "stock.session.stopped"
//	command = "/usr/local/bin/post-count"
//	timeout = 60
func LoadFile(path string) ([]Hook, error) {
	var f hooksFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("hooks file %s: %w", path, err)
	}
	if err := Validate(f.Hooks); err != nil {
		return nil, fmt.Errorf("hooks file %s: %w", path, err)
	}
	return f.Hooks, nil
}

// Validate rejects hooks without a command and topics that can never match
// a published event.
func Validate(hooks []Hook) error {
	var errs []error
	for i, h := range hooks {
		if strings.TrimSpace(h.Command) == "" {
			errs = append(errs, fmt.Errorf("hook %d: command is required", i))
		}
		if !slices.ContainsFunc(events.Topics, func(t string) bool { return events.MatchTopic(h.Topic, t) }) {
			errs = append(errs, fmt.Errorf("hook %d: topic %q matches no event", i, h.Topic))
		}
		switch h.OnFailure {
		case "", OnFailureWarn, OnFailureIgnore:
		default:
			errs = append(errs, fmt.Errorf("hook %d: on_failure must be %q or %q", i, OnFailureWarn, OnFailureIgnore))
		}
	}
	return errors.Join(errs...)
}
