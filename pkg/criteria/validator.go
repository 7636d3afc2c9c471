package criteria

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// DeterminismError reports an assertion expression that could evaluate
// differently between two runs over the same evidence.
type DeterminismError struct {
	Expression string
	Issues     []string
}

func (e *DeterminismError) Error() string {
	return fmt.Sprintf("non-deterministic assertion %q: %s", e.Expression, strings.Join(e.Issues, "; "))
}

// Validator screens assertion expressions before they enter a ruleset.
// Gate verdicts must be reproducible, so floating-point literals,
// wall-clock access, and map iteration are refused at catalog load.
type Validator struct {
	env *cel.Env
}

// NewValidator builds a parse-only environment.
func NewValidator() (*Validator, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, err
	}
	return &Validator{env: env}, nil
}

// Validate parses the expression and walks its AST. A nil return means
// the expression is safe to compile into a ruleset.
func (v *Validator) Validate(expression string) error {
	ast, issues := v.env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("parse assertion %q: %w", expression, issues.Err())
	}

	expr := ast.Expr() //nolint:staticcheck // Deprecated but no alternative for AST traversal yet
	var found []string
	walk(expr, &found)
	if len(found) > 0 {
		return &DeterminismError{Expression: expression, Issues: found}
	}
	return nil
}

func walk(e *exprpb.Expr, found *[]string) {
	if e == nil {
		return
	}

	switch k := e.ExprKind.(type) {
	case *exprpb.Expr_ConstExpr:
		if _, ok := k.ConstExpr.ConstantKind.(*exprpb.Constant_DoubleValue); ok {
			*found = append(*found, "floating-point literal")
		}

	case *exprpb.Expr_CallExpr:
		call := k.CallExpr
		switch call.Function {
		case "now":
			*found = append(*found, "now() reads the wall clock")
		case "keys", "values":
			*found = append(*found, "map iteration order is undefined")
		}
		if call.Target != nil {
			walk(call.Target, found)
		}
		for _, arg := range call.Args {
			walk(arg, found)
		}

	case *exprpb.Expr_SelectExpr:
		walk(k.SelectExpr.Operand, found)

	case *exprpb.Expr_IdentExpr:
		// No children.

	case *exprpb.Expr_ListExpr:
		for _, el := range k.ListExpr.Elements {
			walk(el, found)
		}

	case *exprpb.Expr_StructExpr:
		for _, entry := range k.StructExpr.Entries {
			if mk := entry.GetMapKey(); mk != nil {
				walk(mk, found)
			}
			walk(entry.Value, found)
		}

	case *exprpb.Expr_ComprehensionExpr:
		comp := k.ComprehensionExpr
		walk(comp.IterRange, found)
		walk(comp.AccuInit, found)
		walk(comp.LoopCondition, found)
		walk(comp.LoopStep, found)
		walk(comp.Result, found)
	}
}
