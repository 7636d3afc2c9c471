package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
)

// runSelect implements `vigil select`.
//
// Exit codes:
//
//	0 = a pack was selected (the default fallback counts)
//	2 = load or usage error
func runSelect(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("select", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		profilePath string
		explain     bool
		jsonOutput  bool
	)

	cmd.StringVar(&profilePath, "profile", "", "Path to the run profile (default: built-in defaults)")
	cmd.BoolVar(&explain, "explain", false, "Show every keyword hit behind the selection")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	text := strings.TrimSpace(strings.Join(cmd.Args(), " "))
	if text == "" {
		_, _ = fmt.Fprintln(stderr, "Error: a feature description is required")
		_, _ = fmt.Fprintln(stderr, "Usage: vigil select [flags] <description...>")
		return 2
	}

	prof, ok := loadProfile(profilePath, stderr)
	if !ok {
		return 2
	}
	kn, ok := loadKnowledge(prof, stderr)
	if !ok {
		return 2
	}

	sel := kn.matcher.Select(text)
	for _, warn := range sel.Warnings {
		_, _ = fmt.Fprintf(stderr, "Warning: %s\n", warn)
	}

	if jsonOutput {
		out := map[string]any{"selection": sel}
		if explain {
			out["matches"] = kn.matcher.Explain(text)
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}

	_, _ = fmt.Fprintln(stdout, "Selected packs:")
	for _, ps := range sel.Packs {
		_, _ = fmt.Fprintf(stdout, "  %s%-42s%s %.2f\n", ColorGreen, ps.PackID, ColorReset, ps.Score)
	}
	if len(sel.Obligations) > 0 {
		_, _ = fmt.Fprintln(stdout, "Obligations touched:")
		for _, ob := range sel.Obligations {
			_, _ = fmt.Fprintf(stdout, "  %s\n", ob)
		}
	}
	if explain {
		_, _ = fmt.Fprintln(stdout, "Keyword hits:")
		for _, m := range kn.matcher.Explain(text) {
			_, _ = fmt.Fprintf(stdout, "  %-18s %-42s %.2f\n", m.Keyword, m.Target, m.Weight)
		}
	}
	return 0
}
