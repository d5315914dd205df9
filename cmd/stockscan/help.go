package main

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/aquaflora/stockscan/internal/ui"
	"github.com/spf13/cobra"
)

// helpRule restyles every match of re in cobra's plain help text.
type helpRule struct {
	re    *regexp.Regexp
	style func(groups []string) string
}

// helpRules are applied in order. Group headers ("Catalog:", "Flags:") go
// first so later rules never see their escape codes.
var helpRules = []helpRule{
	{
		re:    regexp.MustCompile(`(?m)^([A-Z][^\n]*:)[ \t]*$`),
		style: func(g []string) string { return ui.RenderAccent(g[1]) },
	},
	{
		// Command rows: two-space indent, name, then the description column.
		re:    regexp.MustCompile(`(?m)^(  )([a-z][\w-]*)(  )`),
		style: func(g []string) string { return g[1] + ui.RenderCommand(g[2]) + g[3] },
	},
	{
		re:    regexp.MustCompile(`(--?[\w-]+\s+)(string|int|duration|stringSlice)\b`),
		style: func(g []string) string { return g[1] + ui.RenderMuted(g[2]) },
	},
	{
		re:    regexp.MustCompile(`\(default [^)]*\)`),
		style: func(g []string) string { return ui.RenderMuted(g[0]) },
	},
}

// colorizedHelpFunc returns a cobra help function that colors the default
// usage text when stdout supports it.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		setupColor()
		out := cmd.OutOrStdout()
		if !ui.ShouldUseColor() || noColor {
			_ = cmd.Usage()
			return
		}

		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)

		fmt.Fprint(out, colorizeHelp(buf.String()))
	}
}

func colorizeHelp(s string) string {
	for _, rule := range helpRules {
		s = rule.re.ReplaceAllStringFunc(s, func(match string) string {
			return rule.style(rule.re.FindStringSubmatch(match))
		})
	}
	return s
}
