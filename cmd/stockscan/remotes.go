package main

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Remote is a store's server profile. NATSURL is set when the store's
// server publishes events on NATS.
type Remote struct {
	URL     string `toml:"url"`
	Token   string `toml:"token,omitempty"`
	NATSURL string `toml:"nats_url,omitempty"`
}

func (r Remote) validate() error {
	if err := checkURL(r.URL, "http", "https"); err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	if r.NATSURL == "" {
		return nil
	}
	if err := checkURL(r.NATSURL, "nats", "tls", "ws", "wss"); err != nil {
		return fmt.Errorf("nats url: %w", err)
	}
	return nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !slices.Contains(schemes, u.Scheme) {
		return fmt.Errorf("%q: scheme must be one of %s", raw, strings.Join(schemes, ", "))
	}
	if u.Host == "" {
		return fmt.Errorf("%q: missing host", raw)
	}
	return nil
}

// remoteSet is the on-disk remotes file.
type remoteSet struct {
	Active  string            `toml:"active"`
	Remotes map[string]Remote `toml:"remotes"`
}

var errNoActiveRemote = errors.New("no active remote; name one or run 'stockscan remote use <name>'")

func (s *remoteSet) names() []string {
	return slices.Sorted(maps.Keys(s.Remotes))
}

// resolve looks up name, or the active remote when name is empty.
func (s *remoteSet) resolve(name string) (string, Remote, error) {
	if name == "" {
		name = s.Active
	}
	if name == "" {
		return "", Remote{}, errNoActiveRemote
	}
	r, ok := s.Remotes[name]
	if !ok {
		return "", Remote{}, fmt.Errorf("remote %q not found", name)
	}
	return name, r, nil
}

// put adds or replaces a remote. The first remote, or one added with
// activate, becomes active.
func (s *remoteSet) put(name string, r Remote, activate bool) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("remote name is empty")
	}
	r.URL = strings.TrimRight(r.URL, "/")
	if err := r.validate(); err != nil {
		return err
	}
	s.Remotes[name] = r
	if activate || len(s.Remotes) == 1 {
		s.Active = name
	}
	return nil
}

func (s *remoteSet) drop(name string) error {
	if _, _, err := s.resolve(name); err != nil {
		return err
	}
	delete(s.Remotes, name)
	if s.Active == name {
		s.Active = ""
	}
	return nil
}

func (s *remoteSet) use(name string) error {
	if _, _, err := s.resolve(name); err != nil {
		return err
	}
	s.Active = name
	return nil
}

// remotesPath is $STOCKSCAN_REMOTES, else remotes.toml under the user's
// state directory.
func remotesPath() (string, error) {
	if p := os.Getenv("STOCKSCAN_REMOTES"); p != "" {
		return p, nil
	}
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "stockscan", "remotes.toml"), nil
}

func readRemotes() (*remoteSet, error) {
	path, err := remotesPath()
	if err != nil {
		return nil, err
	}
	s := &remoteSet{}
	if _, err := toml.DecodeFile(path, s); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if s.Remotes == nil {
		s.Remotes = map[string]Remote{}
	}
	return s, nil
}

// write replaces the remotes file atomically. Tokens live in it, so the
// file is 0600 and its directory 0700.
func (s *remoteSet) write() error {
	path, err := remotesPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".remotes-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := toml.NewEncoder(tmp).Encode(s); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding remotes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// editRemotes applies fn to the remotes file and saves the result.
func editRemotes(fn func(*remoteSet) error) error {
	s, err := readRemotes()
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	return s.write()
}

// activeRemote is read once per process; flags default from it.
var activeRemote = sync.OnceValue(func() Remote {
	s, err := readRemotes()
	if err != nil {
		return Remote{}
	}
	_, r, err := s.resolve("")
	if err != nil {
		return Remote{}
	}
	return r
})

func activeRemoteURL() string     { return activeRemote().URL }
func activeRemoteToken() string   { return activeRemote().Token }
func activeRemoteNATSURL() string { return activeRemote().NATSURL }

// maskToken keeps the first n characters of token and replaces the rest
// with fill.
func maskToken(token string, n int, fill func(hidden int) string) string {
	if len(token) <= n {
		return token
	}
	return token[:n] + fill(len(token)-n)
}
