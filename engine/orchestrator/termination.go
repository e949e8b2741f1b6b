package orchestrator

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/turnforge/simcore/engine/core"
	"github.com/turnforge/simcore/engine/schema"
)

// TerminationPredicate wraps a compiled CEL program evaluated over the
// final global state at the end of every turn (spec §4.10, §6).
type TerminationPredicate struct {
	program cel.Program
}

// CompileTermination compiles a CEL expression over a `global` map
// variable, e.g. `global.treasury > 1000.0`. An empty expression yields
// a predicate that never terminates the run.
func CompileTermination(expr string) (*TerminationPredicate, error) {
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(cel.Variable("global", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, core.NewError(fmt.Errorf("build cel environment: %w", err), core.CodeConfigError, nil)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, core.NewError(fmt.Errorf("compile termination predicate %q: %w", expr, iss.Err()), core.CodeConfigError, nil)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, core.NewError(fmt.Errorf("build termination program: %w", err), core.CodeConfigError, nil)
	}
	return &TerminationPredicate{program: prg}, nil
}

// Evaluate reports whether globals satisfies the predicate.
func (p *TerminationPredicate) Evaluate(globals map[string]schema.TypedValue) (bool, error) {
	if p == nil {
		return false, nil
	}
	raw := make(map[string]any, len(globals))
	for name, v := range globals {
		raw[name] = v.Raw()
	}
	out, _, err := p.program.Eval(map[string]any{"global": raw})
	if err != nil {
		return false, core.NewError(fmt.Errorf("evaluate termination predicate: %w", err), core.CodeSchemaViolation, nil)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, core.NewError(fmt.Errorf("termination predicate must evaluate to bool, got %T", out.Value()), core.CodeSchemaViolation, nil)
	}
	return result, nil
}
