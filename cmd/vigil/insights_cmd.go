package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/vigil/pkg/insight"
)

// runInsights implements `vigil insights`.
func runInsights(args []string, stdout, stderr io.Writer) int {
	switch args[0] {
	case "ingest":
		return runInsightsIngest(args[1:], stdout, stderr)
	case "list":
		return runInsightsList(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown insights subcommand: %s\n", args[0])
		_, _ = fmt.Fprintln(stderr, "Usage: vigil insights <ingest|list>")
		return 2
	}
}

// runInsightsIngest records extracted insight records in the pending
// ledger partition. The file may hold one record or an array; `-`
// reads stdin.
//
// Exit codes:
//
//	0 = all records ingested
//	1 = ledger rejected a record (earlier records stay recorded)
//	2 = unreadable or malformed input
func runInsightsIngest(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("insights ingest", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		profilePath string
		filePath    string
	)

	cmd.StringVar(&profilePath, "profile", "", "Path to the run profile")
	cmd.StringVar(&filePath, "file", "", "Insight record JSON file, or - for stdin (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if filePath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file is required")
		cmd.Usage()
		return 2
	}

	var (
		data []byte
		err  error
	)
	if filePath == "-" {
		data, err = io.ReadAll(os.Stdin)
		filePath = "stdin"
	} else {
		data, err = os.ReadFile(filePath)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read insights: %v\n", err)
		return 2
	}

	records, err := parseRecords(data, filePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	prof, ok := loadProfile(profilePath, stderr)
	if !ok {
		return 2
	}

	ctx := context.Background()
	l, closeLedger, ok := openLedger(ctx, prof, stderr)
	if !ok {
		return 2
	}
	defer closeLedger()

	for i, ins := range records {
		if _, err := l.Record(ctx, ins); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: record %s: %v\n", ins.ID, err)
			_, _ = fmt.Fprintf(stderr, "%d of %d records ingested before the failure\n", i, len(records))
			return 1
		}
	}

	_, _ = fmt.Fprintf(stdout, "✅ Ingested %d insight record(s) into the pending partition\n", len(records))
	return 0
}

// parseRecords accepts a single insight record or a JSON array of
// them. Every record is schema-validated before anything is returned.
func parseRecords(data []byte, source string) ([]*insight.Insight, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("parse %s: %w", source, err)
		}
		out := make([]*insight.Insight, 0, len(raws))
		for i, raw := range raws {
			ins, err := insight.ParseRecord(raw, fmt.Sprintf("%s[%d]", source, i))
			if err != nil {
				return nil, err
			}
			out = append(out, ins)
		}
		return out, nil
	}
	ins, err := insight.ParseRecord(data, source)
	if err != nil {
		return nil, err
	}
	return []*insight.Insight{ins}, nil
}

// runInsightsList shows the ledger partitions.
//
// Exit codes:
//
//	0 = listed
//	2 = load error
func runInsightsList(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("insights list", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		profilePath string
		pendingOnly bool
		curatedOnly bool
		jsonOutput  bool
	)

	cmd.StringVar(&profilePath, "profile", "", "Path to the run profile")
	cmd.BoolVar(&pendingOnly, "pending", false, "List only the pending partition")
	cmd.BoolVar(&curatedOnly, "curated", false, "List only the curated partition")
	cmd.BoolVar(&jsonOutput, "json", false, "Output partitions as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	prof, ok := loadProfile(profilePath, stderr)
	if !ok {
		return 2
	}

	ctx := context.Background()
	l, closeLedger, ok := openLedger(ctx, prof, stderr)
	if !ok {
		return 2
	}
	defer closeLedger()

	showPending := !curatedOnly
	showCurated := !pendingOnly

	if jsonOutput {
		out := map[string]any{}
		if showPending {
			out["pending"] = l.Pending()
		}
		if showCurated {
			out["curated"] = l.Curated()
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}

	if showPending {
		pending := l.Pending()
		_, _ = fmt.Fprintf(stdout, "Pending (%d):\n", len(pending))
		for _, ins := range pending {
			target := "proposes new obligation"
			if ins.ObligationID != nil {
				target = *ins.ObligationID
			}
			_, _ = fmt.Fprintf(stdout, "  %s%-12s%s %-38s %s/%s  x%d\n",
				ColorYellow, ins.ID, ColorReset, target, ins.Confidence, ins.Scope, ins.EvidenceCount)
		}
	}
	if showCurated {
		curated := l.Curated()
		_, _ = fmt.Fprintf(stdout, "Curated (%d):\n", len(curated))
		for _, cur := range curated {
			target := "new obligation"
			if cur.Insight.ObligationID != nil {
				target = *cur.Insight.ObligationID
			}
			_, _ = fmt.Fprintf(stdout, "  %s%-12s%s %-38s by %s at %s\n",
				ColorGreen, cur.ID, ColorReset, target, cur.ReviewerID,
				cur.PromotedAt.Format("2006-01-02T15:04:05Z"))
		}
	}
	return 0
}
