package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mindburn-Labs/vigil/pkg/artifacts"
	"github.com/Mindburn-Labs/vigil/pkg/capability"
	"github.com/Mindburn-Labs/vigil/pkg/config"
	"github.com/Mindburn-Labs/vigil/pkg/evidence"
	"github.com/Mindburn-Labs/vigil/pkg/gate"
	"github.com/Mindburn-Labs/vigil/pkg/observability"
	"github.com/Mindburn-Labs/vigil/pkg/report"
)

// runGate implements `vigil gate`.
func runGate(args []string, stdout, stderr io.Writer) int {
	switch args[0] {
	case "run":
		return runGateRun(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown gate subcommand: %s\n", args[0])
		_, _ = fmt.Fprintln(stderr, "Usage: vigil gate run [flags]")
		return 2
	}
}

// runGateRun evaluates obligations against captured evidence and
// persists the report.
//
// Exit codes:
//
//	0 = PASS, or PARTIAL without --strict
//	1 = FAIL, or PARTIAL with --strict
//	2 = ERROR, or a load failure
func runGateRun(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("gate run", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		profilePath string
		evidenceDir string
		obligations string
		reportsDir  string
		strict      bool
		privileged  bool
		archive     bool
		jsonOutput  bool
	)

	cmd.StringVar(&profilePath, "profile", "", "Path to the run profile")
	cmd.StringVar(&evidenceDir, "evidence", "", "Evidence directory (overrides profile)")
	cmd.StringVar(&obligations, "obligations", "", "Comma-separated obligation ids (default: all registered)")
	cmd.StringVar(&reportsDir, "reports", "", "Report directory (overrides profile)")
	cmd.BoolVar(&strict, "strict", false, "Treat PARTIAL as failing")
	cmd.BoolVar(&privileged, "privileged", false, "Claim privileged tooling for this run")
	cmd.BoolVar(&archive, "archive", false, "Archive evidence documents to the artifact store")
	cmd.BoolVar(&jsonOutput, "json", false, "Output report as JSON to stdout")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	prof, ok := loadProfile(profilePath, stderr)
	if !ok {
		return 2
	}
	if evidenceDir != "" {
		prof.Gate.EvidenceDir = evidenceDir
	}
	if reportsDir != "" {
		prof.Reports.Dir = reportsDir
	}
	if strict {
		prof.Gate.Strict = true
	}
	if privileged {
		prof.Gate.Privileged = true
	}

	logger := newLogger(prof, stderr)

	kn, ok := loadKnowledge(prof, stderr)
	if !ok {
		return 2
	}

	ev, err := evidence.LoadDir(prof.Gate.EvidenceDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// A fresh checkout has no evidence yet; every check skips.
			_, _ = fmt.Fprintf(stderr, "Warning: evidence dir %s not found; checks will skip\n", prof.Gate.EvidenceDir)
			ev = evidence.EmptySet()
		} else {
			_, _ = fmt.Fprintf(stderr, "Error: load evidence: %v\n", err)
			return 2
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry := newTelemetry(ctx, prof, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	caps, err := capability.Resolve(ctx, prof.Gate.Privileged, prof.Gate.PrivilegedTools, prof.Gate.Facilities, capability.DefaultSandboxConfig())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: resolve capabilities: %v\n", err)
		return 2
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = caps.Close(closeCtx)
	}()

	l, closeLedger, ok := openLedger(ctx, prof, stderr)
	if !ok {
		return 2
	}
	defer closeLedger()

	rc := &gate.RunContext{
		Capabilities: caps,
		Evidence:     ev,
		Hints:        l.Curated(),
		CheckTimeout: prof.Gate.CheckTimeout(),
		Logger:       logger,
	}

	var ids []string
	if obligations != "" {
		for _, id := range strings.Split(obligations, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	evaluator := gate.NewEvaluator(kn.registry, kn.rules)

	startedAt := time.Now()
	runCtx, finish := telemetry.TrackRun(ctx, "vigil.gate.run",
		attribute.Int("vigil.run.obligations", len(ids)))
	checks, err := evaluator.Run(runCtx, rc, ids...)
	finish(err)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: gate run: %v\n", err)
		return 2
	}

	rep := report.Build(checks, startedAt, time.Now())

	span := trace.SpanFromContext(runCtx)
	span.SetAttributes(observability.GateRunAttrs(rep.RunID, len(rep.Checks))...)
	for _, c := range rep.Checks {
		domain := ""
		if ob, lookErr := kn.registry.Lookup(c.ObligationID); lookErr == nil {
			domain = ob.Domain
		}
		span.AddEvent("check.resolved", trace.WithAttributes(
			observability.CheckAttrs(c.ObligationID, domain, string(c.Status))...))
		telemetry.RecordCheck(runCtx, c.ObligationID, string(c.Status))
	}
	telemetry.RecordRun(runCtx, string(rep.Status), rep.Duration)

	persisted, err := report.NewWriter(prof.Reports.Dir).Write(rep)
	if err != nil {
		// A run whose report cannot be written must not look green.
		_, _ = fmt.Fprintf(stderr, "Error: persist report: %v\n", err)
		return 2
	}
	logger.Info("report persisted",
		"latest", persisted.LatestPath,
		"history", persisted.HistoryPath,
		"hash", persisted.ContentHash)

	if archive {
		if n, archErr := archiveEvidence(ctx, prof, ev); archErr != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: archive evidence: %v\n", archErr)
		} else {
			logger.Info("evidence archived", "documents", n, "backend", prof.Artifacts.Backend)
		}
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(rep, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		printGateReport(stdout, rep)
	}

	return report.ExitCode(rep.Status, prof.Gate.Strict)
}

// archiveEvidence copies every loaded evidence document into the
// configured artifact store, content-addressed. With a remote backend
// the local store fronts it through a rate-limited mirror.
func archiveEvidence(ctx context.Context, prof *config.Profile, ev *evidence.Set) (int, error) {
	store, err := openArchive(ctx, prof)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, id := range ev.ObligationIDs() {
		doc, ok := ev.For(id)
		if !ok || doc.Source == "" {
			continue
		}
		data, err := os.ReadFile(doc.Source)
		if err != nil {
			return stored, fmt.Errorf("read %s: %w", doc.Source, err)
		}
		if _, err := store.Store(ctx, data); err != nil {
			return stored, fmt.Errorf("store %s: %w", doc.Source, err)
		}
		stored++
	}
	return stored, nil
}

// openArchive builds the artifact store from the profile. Remote
// backends are fronted by the local filesystem store so reads stay
// cheap and uploads honor the mirror rate limit.
func openArchive(ctx context.Context, prof *config.Profile) (artifacts.Store, error) {
	cfg := artifacts.Config{
		Backend:  artifacts.Backend(prof.Artifacts.Backend),
		Dir:      prof.Artifacts.Dir,
		Bucket:   prof.Artifacts.Bucket,
		Region:   prof.Artifacts.Region,
		Endpoint: prof.Artifacts.Endpoint,
		Prefix:   prof.Artifacts.Prefix,
	}
	if cfg.Backend == artifacts.BackendFS || cfg.Backend == "" {
		return artifacts.New(ctx, cfg)
	}

	remote, err := artifacts.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	localDir := prof.Artifacts.Dir
	if localDir == "" {
		localDir = "artifacts"
	}
	local, err := artifacts.NewFileStore(localDir)
	if err != nil {
		return nil, err
	}
	return artifacts.NewMirror(local, remote, prof.Artifacts.MirrorRate, prof.Artifacts.MirrorBurst), nil
}

func printGateReport(w io.Writer, rep *report.Report) {
	_, _ = fmt.Fprintf(w, "Vigil Gate Report\n")
	_, _ = fmt.Fprintf(w, "─────────────────\n")
	_, _ = fmt.Fprintf(w, "Run ID:    %s\n", rep.RunID)
	_, _ = fmt.Fprintf(w, "Timestamp: %s\n", rep.Timestamp.Format("2006-01-02T15:04:05Z"))
	_, _ = fmt.Fprintf(w, "Duration:  %s\n\n", rep.Duration)

	for _, c := range rep.Checks {
		_, _ = fmt.Fprintf(w, "  %s  %-36s %s\n", coloredStatus(c.Status), c.ObligationID, c.Message)
	}

	_, _ = fmt.Fprintln(w)
	passed := 0
	for _, c := range rep.Checks {
		if c.Status == gate.StatusPass {
			passed++
		}
	}
	switch rep.Status {
	case gate.StatusPass:
		_, _ = fmt.Fprintf(w, "Result: ✅ PASS (%d checks)\n", len(rep.Checks))
	case gate.StatusPartial, gate.StatusSkip:
		_, _ = fmt.Fprintf(w, "Result: ⚠️ %s (%d/%d checks passed)\n", rep.Status, passed, len(rep.Checks))
	default:
		_, _ = fmt.Fprintf(w, "Result: ❌ %s (%d/%d checks passed)\n", rep.Status, passed, len(rep.Checks))
	}
}

func coloredStatus(s gate.Status) string {
	label := fmt.Sprintf("%-7s", string(s))
	switch s {
	case gate.StatusPass:
		return ColorGreen + label + ColorReset
	case gate.StatusFail, gate.StatusError:
		return ColorRed + label + ColorReset
	case gate.StatusSkip, gate.StatusPartial:
		return ColorYellow + label + ColorReset
	default:
		return label
	}
}
