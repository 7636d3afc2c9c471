// Package criteria compiles and evaluates pack assertion expressions.
//
// Assertions are CEL over the evidence document. They are validated for
// determinism and compiled once at catalog load; the gate evaluator
// runs the compiled programs against each obligation's evidence.
package criteria

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Engine compiles and runs assertion expressions. Compiled programs are
// cached per expression text and shared across gate runs.
type Engine struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewEngine builds the evaluation environment. Assertions see the whole
// evidence document as `evidence`, with its `metrics` and `criteria`
// sections also bound as top-level shortcuts.
func NewEngine() (*Engine, error) {
	// Metrics arrive as JSON numbers (doubles); assertions compare them
	// against integer literals, so cross-type comparison must be on.
	env, err := cel.NewEnv(
		cel.CrossTypeNumericComparisons(true),
		cel.Variable("evidence", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("metrics", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("criteria", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return &Engine{env: env, cache: make(map[string]cel.Program)}, nil
}

// program returns the compiled form of an expression, compiling on
// first use with double-checked locking.
func (e *Engine) program(expression string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.cache[expression]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.cache[expression]; hit {
		return prg, nil
	}
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile assertion %q: %w", expression, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program assertion %q: %w", expression, err)
	}
	e.cache[expression] = prg
	return prg, nil
}

// Compile warms the cache so load time surfaces compile errors instead
// of the first gate run.
func (e *Engine) Compile(expression string) error {
	_, err := e.program(expression)
	return err
}

// Evaluate runs one assertion against an evidence document. The
// expression must produce a boolean.
func (e *Engine) Evaluate(expression string, evidence map[string]any) (bool, error) {
	prg, err := e.program(expression)
	if err != nil {
		return false, err
	}
	if evidence == nil {
		evidence = map[string]any{}
	}
	activation := map[string]any{
		"evidence": evidence,
		"metrics":  section(evidence, "metrics"),
		"criteria": section(evidence, "criteria"),
	}
	out, _, err := prg.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("evaluate assertion %q: %w", expression, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("assertion %q did not produce a boolean", expression)
	}
	return result, nil
}

func section(doc map[string]any, key string) map[string]any {
	if m, ok := doc[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
