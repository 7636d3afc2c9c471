// Package config loads the vigil run profile.
//
// One YAML profile drives every command: catalog locations, matcher
// tuning, gate execution bounds, ledger and artifact backends. Decoding
// is strict so a typoed key fails the load instead of silently running
// with a default. Secrets never live in the profile; the DSN and Redis
// address can be overridden from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is the complete runtime configuration.
type Profile struct {
	Catalog       CatalogConfig       `yaml:"catalog"`
	Match         MatchConfig         `yaml:"match"`
	Gate          GateConfig          `yaml:"gate"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
	Ledger        LedgerConfig        `yaml:"ledger"`
	Reports       ReportsConfig       `yaml:"reports"`
	Artifacts     ArtifactsConfig     `yaml:"artifacts"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// CatalogConfig locates the committed obligation and pack sources.
type CatalogConfig struct {
	ObligationsDir string `yaml:"obligations_dir"`
	PacksDir       string `yaml:"packs_dir"`
}

// MatchConfig tunes failure-description matching.
type MatchConfig struct {
	// Threshold is the minimum pack score for a confident selection;
	// below it the default pack is returned with a warning.
	Threshold   float64 `yaml:"threshold"`
	DefaultPack string  `yaml:"default_pack"`
}

// GateConfig bounds gate execution.
type GateConfig struct {
	Strict         bool   `yaml:"strict"`
	CheckTimeoutMs int    `yaml:"check_timeout_ms"`
	EvidenceDir    string `yaml:"evidence_dir"`
	// Facilities are the unprivileged collaborator capabilities
	// available to checks (probes, scrapers).
	Facilities      []string `yaml:"facilities,omitempty"`
	Privileged      bool     `yaml:"privileged"`
	PrivilegedTools []string `yaml:"privileged_tools,omitempty"`
}

// CheckTimeout returns the per-check bound as a duration.
func (g GateConfig) CheckTimeout() time.Duration {
	return time.Duration(g.CheckTimeoutMs) * time.Millisecond
}

// ConsolidationConfig tunes the insight consolidation batch.
type ConsolidationConfig struct {
	ProposalMinEvidence int    `yaml:"proposal_min_evidence"`
	Parallelism         int    `yaml:"parallelism"`
	SummaryPath         string `yaml:"summary_path"`
	// RedisAddr enables cross-process group locking; empty keeps the
	// in-process locker.
	RedisAddr string `yaml:"redis_addr,omitempty"`
}

// LedgerConfig selects the insight ledger backend.
type LedgerConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite or postgres
	DSN    string `yaml:"dsn"`
}

// ReportsConfig locates persisted gate reports.
type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

// ArtifactsConfig selects the evidence artifact store.
type ArtifactsConfig struct {
	Backend  string `yaml:"backend"` // fs, s3 or gcs
	Dir      string `yaml:"dir"`
	Bucket   string `yaml:"bucket,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	// MirrorRate caps remote mirror uploads per second; MirrorBurst is
	// the token bucket depth.
	MirrorRate  float64 `yaml:"mirror_rate"`
	MirrorBurst int     `yaml:"mirror_burst"`
}

// ObservabilityConfig configures telemetry export.
type ObservabilityConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint,omitempty"`
	Insecure     bool    `yaml:"insecure"`
	SampleRate   float64 `yaml:"sample_rate"`
	LogLevel     string  `yaml:"log_level"`
}

// Default returns the profile used when no file is given. Paths are
// relative to the working directory.
func Default() *Profile {
	return &Profile{
		Catalog: CatalogConfig{
			ObligationsDir: "catalog/obligations",
			PacksDir:       "catalog/packs",
		},
		Match: MatchConfig{
			Threshold:   0.5,
			DefaultPack: "edge-http-cache-correctness",
		},
		Gate: GateConfig{
			CheckTimeoutMs: 30_000,
			EvidenceDir:    "evidence",
			Facilities:     []string{"http-probe", "prometheus"},
		},
		Consolidation: ConsolidationConfig{
			ProposalMinEvidence: 5,
			Parallelism:         4,
			SummaryPath:         "reports/consolidation.json",
		},
		Ledger: LedgerConfig{
			Driver: "sqlite",
			DSN:    "vigil-ledger.db",
		},
		Reports: ReportsConfig{
			Dir: "reports",
		},
		Artifacts: ArtifactsConfig{
			Backend:     "fs",
			Dir:         "artifacts",
			MirrorRate:  4,
			MirrorBurst: 2,
		},
		Observability: ObservabilityConfig{
			SampleRate: 1.0,
			LogLevel:   "info",
		},
	}
}

// Load reads a profile file over the defaults. An empty path returns
// the defaults unchanged. Unknown keys fail the load.
func Load(path string) (*Profile, error) {
	p := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open profile %s: %w", path, err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(p); err != nil {
			return nil, fmt.Errorf("config: parse profile %s: %w", path, err)
		}
	}
	p.applyEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// applyEnv overrides the connection secrets from the environment.
func (p *Profile) applyEnv() {
	if dsn := os.Getenv("VIGIL_LEDGER_DSN"); dsn != "" {
		p.Ledger.DSN = dsn
	}
	if addr := os.Getenv("VIGIL_REDIS_ADDR"); addr != "" {
		p.Consolidation.RedisAddr = addr
	}
}

// Validate checks the profile for values no command could run with.
func (p *Profile) Validate() error {
	if p.Match.Threshold <= 0 || p.Match.Threshold > 1 {
		return fmt.Errorf("config: match threshold %v out of range (0, 1]", p.Match.Threshold)
	}
	if p.Match.DefaultPack == "" {
		return fmt.Errorf("config: match default_pack must be set")
	}
	if p.Gate.CheckTimeoutMs <= 0 {
		return fmt.Errorf("config: gate check_timeout_ms must be positive, got %d", p.Gate.CheckTimeoutMs)
	}
	if p.Consolidation.ProposalMinEvidence < 0 {
		return fmt.Errorf("config: consolidation proposal_min_evidence must not be negative")
	}
	if p.Consolidation.Parallelism < 1 {
		return fmt.Errorf("config: consolidation parallelism must be at least 1, got %d", p.Consolidation.Parallelism)
	}
	switch p.Ledger.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown ledger driver %q (memory, sqlite, postgres)", p.Ledger.Driver)
	}
	if p.Ledger.Driver != "memory" && p.Ledger.DSN == "" {
		return fmt.Errorf("config: ledger driver %q requires a dsn", p.Ledger.Driver)
	}
	switch p.Artifacts.Backend {
	case "fs":
		if p.Artifacts.Dir == "" {
			return fmt.Errorf("config: fs artifact backend requires a dir")
		}
	case "s3", "gcs":
		if p.Artifacts.Bucket == "" {
			return fmt.Errorf("config: %s artifact backend requires a bucket", p.Artifacts.Backend)
		}
	default:
		return fmt.Errorf("config: unknown artifact backend %q (fs, s3, gcs)", p.Artifacts.Backend)
	}
	if p.Artifacts.MirrorRate <= 0 {
		return fmt.Errorf("config: artifacts mirror_rate must be positive, got %v", p.Artifacts.MirrorRate)
	}
	if p.Artifacts.MirrorBurst < 1 {
		return fmt.Errorf("config: artifacts mirror_burst must be at least 1, got %d", p.Artifacts.MirrorBurst)
	}
	if p.Observability.SampleRate < 0 || p.Observability.SampleRate > 1 {
		return fmt.Errorf("config: observability sample_rate %v out of range [0, 1]", p.Observability.SampleRate)
	}
	return nil
}
