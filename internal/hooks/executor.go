// Package hooks runs operator-configured shell commands when engine events
// are published, e.g. to hand a finished count to a back-office script.
package hooks

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Default and max timeout for hook commands.
const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 300 * time.Second
)

// Result holds the output of running a single hook command.
type Result struct {
	Output   string
	Err      error
	Duration time.Duration
}

// clampTimeout applies the default and the ceiling.
func clampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return min(d, MaxTimeout)
}

// Execute runs command via "sh -c" with the process environment plus env.
// Output is stdout, or stderr when stdout is empty.
func Execute(ctx context.Context, command string, timeout time.Duration, env map[string]string) Result {
	hookCtx, cancel := context.WithTimeout(ctx, clampTimeout(timeout))
	defer cancel()

	cmd := exec.CommandContext(hookCtx, "sh", "-c", command) //nolint:gosec // commands come from the operator's hooks file
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	start := time.Now()
	err := cmd.Run()
	output := strings.TrimSpace(stdout.String())
	if output == "" {
		output = strings.TrimSpace(stderr.String())
	}
	return Result{Output: output, Err: err, Duration: time.Since(start)}
}
