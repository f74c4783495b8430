// Package exlang wires github.com/expr-lang/expr into the two call sites
// where a full expression language (list predicates, structured
// environments) is useful and the ${...} evaluator's never-raise contract
// does not apply: conditional-edge truth evaluation and the loop node's
// items expression. Provides a compiled-program cache over expr.Env and
// AsBool.
package exlang

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator compiles and caches expr-lang programs keyed by source text, so
// the same condition isn't recompiled on every edge check.
type Evaluator struct {
	mu    sync.Mutex
	cache map[string]*vm.Program
}

func New() *Evaluator {
	return &Evaluator{cache: map[string]*vm.Program{}}
}

func (e *Evaluator) compile(source string, opts ...expr.Option) (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.cache[source]; ok {
		return p, nil
	}
	p, err := expr.Compile(source, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", source, err)
	}
	e.cache[source] = p
	return p, nil
}

// EvalBool evaluates source as a boolean predicate against env (the
// connection's merged variable scope). Used for conditional Connection
// truth evaluation. Unlike internal/expr, a compile or runtime error here is
// surfaced to the caller rather than swallowed: a malformed edge condition
// is a workflow authoring defect, not a best-effort template gap.
func (e *Evaluator) EvalBool(source string, env map[string]any) (bool, error) {
	program, err := e.compile(source, expr.AsBool())
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate expression %q: %w", source, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not evaluate to a boolean, got %T", source, out)
	}
	return b, nil
}

// EvalList evaluates source against env and coerces the result into a
// []any, for the loop node's items expression.
func (e *Evaluator) EvalList(source string, env map[string]any) ([]any, error) {
	program, err := e.compile(source)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression %q: %w", source, err)
	}
	switch v := out.(type) {
	case []any:
		return v, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("expression %q did not evaluate to a list, got %T", source, out)
	}
}
