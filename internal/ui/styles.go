package ui

import (
	"fmt"
	"strconv"

	"github.com/aquaflora/stockscan/internal/model"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorPass   = 114 // green
	colorWarn   = 179 // amber
	colorFail   = 203 // red
)

var noColor bool

func paint(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderPass returns s in the success (green) color.
func RenderPass(s string) string { return paint(colorPass, s) }

// RenderWarn returns s in the warning (amber) color.
func RenderWarn(s string) string { return paint(colorWarn, s) }

// RenderFail returns s in the failure (red) color.
func RenderFail(s string) string { return paint(colorFail, s) }

// FormatVariance renders a variance with an explicit sign: "+2", "-1", "0".
func FormatVariance(v int) string {
	if v > 0 {
		return "+" + strconv.Itoa(v)
	}
	return strconv.Itoa(v)
}

// RenderVariance colors a variance: green when counted equals system stock,
// amber for a surplus, red for a shortage.
func RenderVariance(v int) string {
	s := FormatVariance(v)
	switch {
	case v == 0:
		return RenderPass(s)
	case v > 0:
		return RenderWarn(s)
	default:
		return RenderFail(s)
	}
}

// RenderOutcome renders a scan outcome label for live feedback.
func RenderOutcome(o model.MatchOutcome) string {
	switch o {
	case model.OutcomeNewEntry:
		return RenderAccent("new")
	case model.OutcomeIncremented:
		return RenderPass("+1")
	case model.OutcomeFound:
		return RenderPass("found")
	case model.OutcomeUnmatched:
		return RenderFail("not found")
	}
	return string(o)
}

// RenderState renders a session state.
func RenderState(s model.SessionState) string {
	switch s {
	case model.StateScanning:
		return RenderPass(string(s))
	case model.StateStarting, model.StateStopping:
		return RenderWarn(string(s))
	case model.StateFailed:
		return RenderFail(string(s))
	}
	return RenderMuted(string(s))
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
