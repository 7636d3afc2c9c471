package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Mindburn-Labs/vigil/pkg/config"
	"github.com/Mindburn-Labs/vigil/pkg/criteria"
	"github.com/Mindburn-Labs/vigil/pkg/ledger"
	"github.com/Mindburn-Labs/vigil/pkg/match"
	"github.com/Mindburn-Labs/vigil/pkg/obligation"
	"github.com/Mindburn-Labs/vigil/pkg/observability"
	"github.com/Mindburn-Labs/vigil/pkg/pack"
	"github.com/Mindburn-Labs/vigil/pkg/store"

	_ "github.com/lib/pq"  // Postgres Driver
	_ "modernc.org/sqlite" // SQLite Driver
)

const appVersion = "v0.3.0"

// envApprovalSecret holds the HS256 secret reviewers share with the
// approve and promote commands. Never placed in the profile file.
const envApprovalSecret = "VIGIL_APPROVAL_SECRET"

// knowledge bundles everything a command needs from the committed
// catalog: the obligation registry, the loaded packs, the compiled
// assertion rules and a matcher over both.
type knowledge struct {
	registry *obligation.Registry
	catalog  *pack.Catalog
	rules    *criteria.RuleSet
	matcher  *match.Matcher
}

// loadProfile reads the run profile. An empty path yields defaults.
// Load failures are terminal: every command exits 2 on a bad profile.
func loadProfile(path string, stderr io.Writer) (*config.Profile, bool) {
	prof, err := config.Load(path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: load profile: %v\n", err)
		return nil, false
	}
	return prof, true
}

// loadKnowledge loads and cross-checks the obligation registry and
// pack catalog, compiles the assertion rules, and builds the matcher.
// Any schema, duplicate-id or coverage failure is terminal.
func loadKnowledge(prof *config.Profile, stderr io.Writer) (*knowledge, bool) {
	registry, err := obligation.LoadDir(prof.Catalog.ObligationsDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: load obligations: %v\n", err)
		return nil, false
	}
	catalog, err := pack.LoadDir(prof.Catalog.PacksDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: load packs: %v\n", err)
		return nil, false
	}
	if err := catalog.VerifyCoverage(registry); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: pack coverage: %v\n", err)
		return nil, false
	}

	engine, err := criteria.NewEngine()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: assertion engine: %v\n", err)
		return nil, false
	}
	rules, err := criteria.BuildRuleSet(catalog, engine)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: compile assertions: %v\n", err)
		return nil, false
	}

	table := match.DefaultTable()
	table.AddCatalog(catalog)
	table.AddRegistry(registry)
	matcher := match.New(table, catalog,
		match.WithThreshold(prof.Match.Threshold),
		match.WithDefaultPack(prof.Match.DefaultPack))

	return &knowledge{
		registry: registry,
		catalog:  catalog,
		rules:    rules,
		matcher:  matcher,
	}, true
}

// openLedger opens the insight ledger on the configured backend and
// replays the chain. The returned closer releases the database handle.
func openLedger(ctx context.Context, prof *config.Profile, stderr io.Writer) (*ledger.Ledger, func(), bool) {
	noop := func() {}

	switch prof.Ledger.Driver {
	case "", "memory":
		l, err := ledger.Open(ctx, ledger.NewMemoryStore())
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: open ledger: %v\n", err)
			return nil, noop, false
		}
		return l, noop, true

	case "sqlite":
		db, err := sql.Open("sqlite", prof.Ledger.DSN)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: open sqlite ledger: %v\n", err)
			return nil, noop, false
		}
		st, err := store.NewSQLiteLedgerStore(db)
		if err != nil {
			_ = db.Close()
			_, _ = fmt.Fprintf(stderr, "Error: migrate sqlite ledger: %v\n", err)
			return nil, noop, false
		}
		l, err := ledger.Open(ctx, st)
		if err != nil {
			_ = db.Close()
			_, _ = fmt.Fprintf(stderr, "Error: replay ledger: %v\n", err)
			return nil, noop, false
		}
		return l, func() { _ = db.Close() }, true

	case "postgres":
		db, err := sql.Open("postgres", prof.Ledger.DSN)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: open postgres ledger: %v\n", err)
			return nil, noop, false
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			_, _ = fmt.Fprintf(stderr, "Error: postgres ping: %v\n", err)
			return nil, noop, false
		}
		st, err := store.NewPostgresLedgerStore(db)
		if err != nil {
			_ = db.Close()
			_, _ = fmt.Fprintf(stderr, "Error: migrate postgres ledger: %v\n", err)
			return nil, noop, false
		}
		l, err := ledger.Open(ctx, st)
		if err != nil {
			_ = db.Close()
			_, _ = fmt.Fprintf(stderr, "Error: replay ledger: %v\n", err)
			return nil, noop, false
		}
		return l, func() { _ = db.Close() }, true

	default:
		_, _ = fmt.Fprintf(stderr, "Error: unknown ledger driver %q\n", prof.Ledger.Driver)
		return nil, noop, false
	}
}

// newLogger builds the command logger at the profile's level, writing
// to stderr so stdout stays parseable.
func newLogger(prof *config.Profile, stderr io.Writer) *slog.Logger {
	var level slog.Level
	switch prof.Observability.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// newTelemetry builds the OpenTelemetry provider from the profile. A
// disabled profile returns an inert provider; export failures degrade
// to a warning rather than blocking the run.
func newTelemetry(ctx context.Context, prof *config.Profile, logger *slog.Logger) *observability.Provider {
	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = appVersion
	cfg.Enabled = prof.Observability.Enabled
	cfg.Insecure = prof.Observability.Insecure
	cfg.SampleRate = prof.Observability.SampleRate
	if prof.Observability.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = prof.Observability.OTLPEndpoint
	}
	if env := os.Getenv("VIGIL_ENV"); env != "" {
		cfg.Environment = env
	}

	provider, err := observability.New(ctx, cfg)
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
		cfg.Enabled = false
		provider, _ = observability.New(ctx, cfg)
	}
	return provider
}
