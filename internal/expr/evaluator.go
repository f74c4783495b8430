// Package expr implements the expression language: ${var} variable
// interpolation plus a fixed function library, evaluated variables-first
// then functions innermost-first to a fixed point. A single hand-written
// evaluator rather than expr-lang/expr, since expr-lang/expr's
// raise-on-unknown-identifier behavior does not match this grammar's
// "never raise" contract.
package expr

import (
	"regexp"
	"strconv"
	"strings"
)

var varPattern = regexp.MustCompile(`\$\{([^{}]+)\}`)

const maxIterations = 32

// Evaluate interpolates ${var} references and evaluates function calls
// against vars, returning the best-effort string result. It never returns an
// error: unresolvable variables and unknown functions render literally.
func Evaluate(input string, vars map[string]any) string {
	prev := input
	// Variables are substituted first, then functions are evaluated
	// innermost-first until a fixed point.
	for i := 0; i < maxIterations; i++ {
		substituted := substituteVariables(prev, vars)
		next := substituted
		if substituted == prev {
			next = evaluateFunctionsOnce(substituted, vars)
		}
		if next == prev {
			return next
		}
		prev = next
	}
	return prev
}

// EvaluateCondition evaluates input to its final string form and applies
// truthy set {"true","1","yes"} (case-insensitive); used by the if and
// switch executors wherever a boolean decision is needed from expression
// text.
func EvaluateCondition(input string, vars map[string]any) bool {
	return isTruthy(Evaluate(input, vars))
}

// EvaluateToObject parses the fully-evaluated string as long, then double,
// then boolean, otherwise returns the string itself.
func EvaluateToObject(input string, vars map[string]any) any {
	result := Evaluate(input, vars)
	if n, err := strconv.ParseInt(result, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(result, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(result); err == nil {
		return b
	}
	return result
}

// substituteVariables replaces every ${dotted.path} with its resolved value;
// unresolved paths are left as the literal placeholder.
func substituteVariables(input string, vars map[string]any) string {
	return varPattern.ReplaceAllStringFunc(input, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-1])
		// A ${...} body that itself looks like a function call is left to
		// evaluateFunctionsOnce, but its arguments still get variable
		// substitution first so nested calls see resolved values.
		if looksLikeCall(path) {
			return substituteVariables(path, vars)
		}
		if val, ok := resolvePath(vars, path); ok {
			return formatValue(val)
		}
		return match
	})
}

func looksLikeCall(s string) bool {
	idx := strings.IndexByte(s, '(')
	return idx > 0 && strings.HasSuffix(s, ")")
}

// resolvePath performs successive map lookups for a dotted path; best
// effort, never panics on shape mismatches.
func resolvePath(vars map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = vars
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case nil:
		return ""
	default:
		return toStringFallback(v)
	}
}
