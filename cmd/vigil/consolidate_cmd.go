package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/vigil/pkg/consolidate"
)

// runConsolidate implements `vigil consolidate`. The batch never
// promotes anything; it produces the summary a maintainer reviews.
//
// Exit codes:
//
//	0 = summary produced (contradictions and proposals are warnings)
//	2 = load or run failure
func runConsolidate(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("consolidate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		profilePath string
		minEvidence int
		parallelism int
		summaryPath string
		jsonOutput  bool
	)

	cmd.StringVar(&profilePath, "profile", "", "Path to the run profile")
	cmd.IntVar(&minEvidence, "min-evidence", 0, "Proposal evidence minimum (overrides profile)")
	cmd.IntVar(&parallelism, "parallelism", 0, "Concurrent group workers (overrides profile)")
	cmd.StringVar(&summaryPath, "out", "", "Summary output path (overrides profile)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output summary as JSON to stdout")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	prof, ok := loadProfile(profilePath, stderr)
	if !ok {
		return 2
	}
	if minEvidence > 0 {
		prof.Consolidation.ProposalMinEvidence = minEvidence
	}
	if parallelism > 0 {
		prof.Consolidation.Parallelism = parallelism
	}
	if summaryPath != "" {
		prof.Consolidation.SummaryPath = summaryPath
	}

	logger := newLogger(prof, stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry := newTelemetry(ctx, prof, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	l, closeLedger, ok := openLedger(ctx, prof, stderr)
	if !ok {
		return 2
	}
	defer closeLedger()

	opts := []consolidate.Option{
		consolidate.WithMinEvidence(prof.Consolidation.ProposalMinEvidence),
		consolidate.WithParallelism(prof.Consolidation.Parallelism),
		consolidate.WithLogger(logger),
	}
	if addr := prof.Consolidation.RedisAddr; addr != "" {
		opts = append(opts, consolidate.WithLocker(
			consolidate.NewRedisLocker(addr, os.Getenv("VIGIL_REDIS_PASSWORD"), 0)))
	}

	engine := consolidate.New(l, opts...)

	runCtx, finish := telemetry.TrackRun(ctx, "vigil.consolidate")
	summary, err := engine.Run(runCtx)
	finish(err)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: consolidation: %v\n", err)
		return 2
	}

	reinforced := 0
	for _, r := range summary.Reinforced {
		reinforced += r.InsightCount
	}
	telemetry.RecordInsights(runCtx, "reinforced", reinforced)
	telemetry.RecordInsights(runCtx, "proposed", len(summary.Proposals))
	telemetry.RecordInsights(runCtx, "contradicted", len(summary.Contradictions)*2)

	// Contradictions and pending proposals always surface, even under
	// --json.
	for _, c := range summary.Contradictions {
		_, _ = fmt.Fprintf(stderr, "Warning: contradiction in group %s: %s vs %s\n", c.Group, c.A, c.B)
	}
	for _, p := range summary.Proposals {
		_, _ = fmt.Fprintf(stderr, "Warning: proposal %s awaits review (%d evidence)\n", p.InsightID, p.EvidenceCount)
	}

	if err := consolidate.WriteSummary(prof.Consolidation.SummaryPath, summary); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: write summary: %v\n", err)
		return 2
	}
	logger.Info("summary written", "path", prof.Consolidation.SummaryPath)

	if jsonOutput {
		data, _ := json.MarshalIndent(summary, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		printSummary(stdout, summary)
	}
	return 0
}

func printSummary(w io.Writer, s *consolidate.Summary) {
	_, _ = fmt.Fprintf(w, "Vigil Consolidation Summary\n")
	_, _ = fmt.Fprintf(w, "───────────────────────────\n")
	_, _ = fmt.Fprintf(w, "Generated: %s\n", s.GeneratedAt.Format("2006-01-02T15:04:05Z"))
	_, _ = fmt.Fprintf(w, "Pending:   %d insights\n\n", s.PendingCount)

	if len(s.Reinforced) > 0 {
		_, _ = fmt.Fprintln(w, "Reinforced obligations:")
		for _, r := range s.Reinforced {
			_, _ = fmt.Fprintf(w, "  %s%-40s%s %d insights, %d evidence\n",
				ColorGreen, r.ObligationID, ColorReset, r.InsightCount, r.EvidenceCount)
		}
	}
	if len(s.Proposals) > 0 {
		_, _ = fmt.Fprintln(w, "Proposals awaiting review:")
		for _, p := range s.Proposals {
			_, _ = fmt.Fprintf(w, "  %s%-12s%s %q (%d evidence)\n",
				ColorYellow, p.InsightID, ColorReset, p.Invariant, p.EvidenceCount)
		}
	}
	if len(s.Contradictions) > 0 {
		_, _ = fmt.Fprintln(w, "Contradictions:")
		for _, c := range s.Contradictions {
			_, _ = fmt.Fprintf(w, "  %sgroup %s%s: %s vs %s\n", ColorRed, c.Group, ColorReset, c.A, c.B)
		}
	}
	if len(s.SkippedScopes) > 0 {
		_, _ = fmt.Fprintln(w, "Skipped scopes:")
		scopes := make([]string, 0, len(s.SkippedScopes))
		for scope := range s.SkippedScopes {
			scopes = append(scopes, scope)
		}
		sort.Strings(scopes)
		for _, scope := range scopes {
			_, _ = fmt.Fprintf(w, "  %s: %d\n", scope, s.SkippedScopes[scope])
		}
	}
	if s.IneligibleProposals > 0 {
		_, _ = fmt.Fprintf(w, "Ineligible proposals: %d\n", s.IneligibleProposals)
	}
}
