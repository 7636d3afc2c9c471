package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// SandboxConfig bounds probe execution inside the simulator.
type SandboxConfig struct {
	MemoryLimitBytes int64
	Timeout          time.Duration
}

// DefaultSandboxConfig is a conservative bound for untrusted probes.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		MemoryLimitBytes: 16 * 1024 * 1024,
		Timeout:          2 * time.Second,
	}
}

// probeOutputMaxBytes caps stdout+stderr of one probe execution.
const probeOutputMaxBytes = 1024 * 1024

// Deterministic error codes for sandbox limit violations.
const (
	ErrProbeTimeExhausted   = "ERR_PROBE_TIME_EXHAUSTED"
	ErrProbeMemoryExhausted = "ERR_PROBE_MEMORY_EXHAUSTED"
	ErrProbeOutputExhausted = "ERR_PROBE_OUTPUT_EXHAUSTED"
)

// SandboxError is a typed error for probe limit violations.
type SandboxError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// SimulatorCapability executes collaborator-supplied probe modules in
// a deny-by-default WASM sandbox: no filesystem, no network, no
// environment, no high-resolution time, no randomness source. Probes
// read their input document from stdin and write an evidence document
// as JSON to stdout.
type SimulatorCapability struct {
	runtime wazero.Runtime
	limits  SandboxConfig
}

// NewSimulator creates the sandboxed simulator.
func NewSimulator(ctx context.Context, cfg SandboxConfig) (*SimulatorCapability, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitBytes > 0 {
		// wazero measures memory in 64KB pages.
		pages := uint32(cfg.MemoryLimitBytes / (64 * 1024))
		if pages == 0 {
			pages = 1
		}
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(pages)
	}

	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	return &SimulatorCapability{runtime: r, limits: cfg}, nil
}

func (s *SimulatorCapability) Name() string     { return NameSimulator }
func (s *SimulatorCapability) Privileged() bool { return false }

// Limits returns the configured execution bounds.
func (s *SimulatorCapability) Limits() SandboxConfig { return s.limits }

// RunProbe executes one probe module against an input document and
// decodes its stdout as an evidence document.
func (s *SimulatorCapability) RunProbe(ctx context.Context, module, input []byte) (map[string]any, error) {
	execCtx := ctx
	if s.limits.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.limits.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName("vigil-probe").
		WithStartFunctions("_start").
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)
	// Deny-by-default: no WithFSConfig, no WithSysNanotime, no
	// WithRandSource, no environment variables.

	compiled, err := s.runtime.CompileModule(execCtx, module)
	if err != nil {
		return nil, fmt.Errorf("compile probe: %w", err)
	}
	defer func() { _ = compiled.Close(execCtx) }()

	mod, err := s.runtime.InstantiateModule(execCtx, compiled, modCfg)
	if err != nil {
		if execCtx.Err() != nil {
			return nil, &SandboxError{
				Code:    ErrProbeTimeExhausted,
				Message: fmt.Sprintf("probe exceeded time limit (%s)", s.limits.Timeout),
			}
		}
		if isMemoryError(err) {
			return nil, &SandboxError{
				Code:    ErrProbeMemoryExhausted,
				Message: fmt.Sprintf("probe exceeded memory limit (%d bytes)", s.limits.MemoryLimitBytes),
			}
		}
		return nil, fmt.Errorf("probe execution failed: %w", err)
	}
	defer func() { _ = mod.Close(execCtx) }()

	if stdout.Len()+stderr.Len() > probeOutputMaxBytes {
		return nil, &SandboxError{
			Code:    ErrProbeOutputExhausted,
			Message: fmt.Sprintf("probe output %d exceeds limit %d", stdout.Len()+stderr.Len(), probeOutputMaxBytes),
		}
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("probe produced no evidence (stderr: %q)", stderr.String())
	}

	var doc map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &doc); err != nil {
		return nil, fmt.Errorf("decode probe evidence: %w", err)
	}
	return doc, nil
}

// Close shuts down the wazero runtime, freeing all compiled modules.
func (s *SimulatorCapability) Close(ctx context.Context) error {
	return s.runtime.Close(ctx)
}

// isMemoryError matches wazero's memory.grow failure surface.
func isMemoryError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "memory") &&
		(strings.Contains(msg, "limit") || strings.Contains(msg, "grow") || strings.Contains(msg, "exceeded"))
}
