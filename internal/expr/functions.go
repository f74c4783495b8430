package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// evaluateFunctionsOnce scans input for the innermost function calls (calls
// containing no nested, still-unevaluated call in their argument list) and
// replaces each with its rendered result. One pass only; Evaluate drives the
// fixed-point loop across passes so nested calls unwind from the inside out.
func evaluateFunctionsOnce(input string, vars map[string]any) string {
	var out strings.Builder
	i := 0
	for i < len(input) {
		name, args, start, end, ok := matchInnermostCall(input, i)
		if !ok {
			out.WriteByte(input[i])
			i++
			continue
		}
		out.WriteString(input[i:start])
		out.WriteString(callFunction(name, args, vars))
		i = end
	}
	return out.String()
}

// matchInnermostCall looks for `funcName(` starting at or after pos whose
// argument list contains no further unmatched '(' belonging to a nested call
// that itself still needs evaluating on a later pass: the first
// well-formed call whose args contain no parens, OR whose nested parens are
// already-evaluated literal/quoted content. In practice this finds the
// leftmost innermost call: scan for '(' positions and pick one whose matching
// ')' is the nearest (no other '(' between it and its ')').
func matchInnermostCall(s string, pos int) (name string, args []string, start, end int, ok bool) {
	// Find candidate call starts: identifier immediately followed by '('.
	type candidate struct{ nameStart, parenPos int }
	var  candidates []candidate
	for j := pos; j < len(s); j++ {
		if s[j] != '(' {
			continue
		}
		k := j
		for k > pos && isIdentByte(s[k-1]) {
			k--
		}
		if k == j {
			continue // '(' not preceded by an identifier char
		}
		candidates = append(candidates, candidate{nameStart: k, parenPos: j})
	}
	if len(candidates) == 0 {
		return "", nil, 0, 0, false
	}
	// Prefer the innermost: the candidate whose paren-matched span contains
	// no other candidate's '(' strictly inside it.
	for _, c := range candidates {
		closeIdx := matchParen(s, c.parenPos)
		if closeIdx < 0 {
			continue
		}
		inner := s[c.parenPos+1 : closeIdx]
		if containsUnquotedParen(inner) {
			continue
		}
		argsStr := inner
		return s[c.nameStart:c.parenPos], splitArgs(argsStr), c.nameStart, closeIdx + 1, true
	}
	return "", nil, 0, 0, false
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// matchParen returns the index of the ')' matching the '(' at openPos,
// respecting quoted strings, or -1 if unmatched.
func matchParen(s string, openPos int) int {
	depth := 0
	var quote byte
	for i := openPos; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' && i+1 < len(s) {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func containsUnquotedParen(s string) bool {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' && i+1 < len(s) {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
		} else if c == '(' || c == ')' {
			return true
		}
	}
	return false
}

// splitArgs splits a call's argument string at top-level commas, respecting
// quoted strings. Depth is already 0 here since matchInnermostCall only
// selected calls with no nested parens.
func splitArgs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var args []string
	var cur strings.Builder
	var quote byte
	bracketDepth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' && i+1 < len(s) && s[i+1] == quote {
				cur.WriteByte(quote)
				i++
				continue
			}
			if c == quote {
				quote = 0
				continue
			}
			cur.WriteByte(c)
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
		case c == '[':
			bracketDepth++
			cur.WriteByte(c)
		case c == ']':
			if bracketDepth > 0 {
				bracketDepth--
			}
			cur.WriteByte(c)
		case c == ',' && bracketDepth == 0:
			args = append(args, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	args   = append(args, strings.TrimSpace(cur.String()))
	return args
}

// callFunction dispatches a parsed call. Unknown names render literally.
func callFunction(name string, args []string, vars map[string]any) string {
	switch name {
	case "if":
		return fnIf(args)
	case "and":
		return fnAnd(args)
	case "or":
		return fnOr(args)
	case "not":
		return fnNot(args)
	case "eq":
		return fnEq(args)
	case "ne":
		return fnNe(args)
	case "gt":
		return fnCompare(args, func(a, b float64) bool { return a > b })
	case "lt":
		return fnCompare(args, func(a, b float64) bool { return a < b })
	case "gte":
		return fnCompare(args, func(a, b float64) bool { return a >= b })
	case "lte":
		return fnCompare(args, func(a, b float64) bool { return a <= b })
	case "contains":
		return boolStr(len(args) == 2 && strings.Contains(args[0], args[1]))
	case "startsWith":
		return boolStr(len(args) == 2 && strings.HasPrefix(args[0], args[1]))
	case "endsWith":
		return boolStr(len(args) == 2 && strings.HasSuffix(args[0], args[1]))
	case "length":
		if len(args) != 1 {
			return renderLiteral(name, args)
		}
		return strconv.Itoa(len([]rune(args[0])))
	case "trim":
		if len(args) != 1 {
			return renderLiteral(name, args)
		}
		return strings.TrimSpace(args[0])
	case "upper":
		if len(args) != 1 {
			return renderLiteral(name, args)
		}
		return strings.ToUpper(args[0])
	case "lower":
		if len(args) != 1 {
			return renderLiteral(name, args)
		}
		return strings.ToLower(args[0])
	case "concat":
		return strings.Join(args, "")
	case "substring":
		return fnSubstring(args)
	case "replace":
		if len(args) != 3 {
			return renderLiteral(name, args)
		}
		return strings.ReplaceAll(args[0], args[1], args[2])
	case "split":
		return fnSplit(args)
	case "join":
		return fnJoin(args)
	case "now":
		return time.Now().UTC().Format(time.RFC3339)
	case "format":
		return fnFormat(args)
	case "toNumber":
		return fnToNumber(args)
	case "toString":
		if len(args) != 1 {
			return renderLiteral(name, args)
		}
		return args[0]
	case "toBoolean":
		if len(args) != 1 {
			return renderLiteral(name, args)
		}
		return boolStr(isTruthy(args[0]))
	default:
		return renderLiteral(name, args)
	}
}

func renderLiteral(name string, args []string) string {
	return name + "(" + strings.Join(args, ", ") + ")"
}

// isTruthy implements truthy set {"true","1","yes"}
// (case-insensitive); everything else is falsy.
func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func fnIf(args []string) string {
	if len(args) != 3 {
		return renderLiteral("if", args)
	}
	if isTruthy(args[0]) {
		return args[1]
	}
	return args[2]
}

func fnAnd(args []string) string {
	for _, a := range args {
		if !isTruthy(a) {
			return "false"
		}
	}
	return boolStr(len(args) > 0)
}

func fnOr(args []string) string {
	for _, a := range args {
		if isTruthy(a) {
			return "true"
		}
	}
	return "false"
}

func fnNot(args []string) string {
	if len(args) != 1 {
		return renderLiteral("not", args)
	}
	return boolStr(!isTruthy(args[0]))
}

func fnEq(args []string) string {
	if len(args) != 2 {
		return renderLiteral("eq", args)
	}
	return boolStr(args[0] == args[1])
}

func fnNe(args []string) string {
	if len(args) != 2 {
		return renderLiteral("ne", args)
	}
	return boolStr(args[0] != args[1])
}

// fnCompare parses both sides as double; on parse failure returns false.
func fnCompare(args []string, cmp func(a, b float64) bool) string {
	if len(args) != 2 {
		return "false"
	}
	a, errA := strconv.ParseFloat(strings.TrimSpace(args[0]), 64)
	b, errB := strconv.ParseFloat(strings.TrimSpace(args[1]), 64)
	if errA != nil || errB != nil {
		return "false"
	}
	return boolStr(cmp(a, b))
}

func fnSubstring(args []string) string {
	if len(args) < 2 || len(args) > 3 {
		return renderLiteral("substring", args)
	}
	s := []rune(args[0])
	start, err := strconv.Atoi(strings.TrimSpace(args[1]))
	if err != nil || start < 0 {
		return args[0]
	}
	if start > len(s) {
		start = len(s)
	}
	end := len(s)
	if len(args) == 3 {
		if e, err := strconv.Atoi(strings.TrimSpace(args[2])); err == nil {
			end = e
		}
	}
	if end > len(s) {
		end = len(s)
	}
	if end < start {
		end = start
	}
	return string(s[start:end])
}

// fnSplit renders the result as a bracketed string "[a, b, c]" per 
func fnSplit(args []string) string {
	if len(args) != 2 {
		return renderLiteral("split", args)
	}
	parts := strings.Split(args[0], args[1])
	return "[" + strings.Join(parts, ", ") + "]"
}

// fnJoin accepts either a bracketed "[a, b]" string (as produced by split) or
// a raw comma-separated list, and re-joins it with sep.
func fnJoin(args []string) string {
	if len(args) != 2 {
		return renderLiteral("join", args)
	}
	list := args[0]
	list = strings.TrimPrefix(list, "[")
	list = strings.TrimSuffix(list, "]")
	if strings.TrimSpace(list) == "" {
		return ""
	}
	parts := strings.Split(list, ", ")
	return strings.Join(parts, args[1])
}

func fnFormat(args []string) string {
	if len(args) != 2 {
		return renderLiteral("format", args)
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(args[0]))
	if err != nil {
		return args[0] // unparseable dates return the input verbatim
	}
	return t.Local().Format(goLayoutFromPattern(args[1]))
}

// goLayoutFromPattern maps a small set of common Java/strftime-ish pattern
// tokens to Go's reference-time layout; unrecognized characters pass
// through unchanged so "yyyy-MM-dd" and "2006-01-02" both degrade sanely.
func goLayoutFromPattern(pattern string) string {
	replacer := strings.NewReplacer(
		"yyyy", "2006", "yy", "06",
		"MM", "01", "dd", "02",
		"HH", "15", "mm", "04", "ss", "05",
	)
	return replacer.Replace(pattern)
}

func fnToNumber(args []string) string {
	if len(args) != 1 {
		return renderLiteral("toNumber", args)
	}
	s := strings.TrimSpace(args[0])
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return s
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return "0"
}

func toStringFallback(v any) string {
	return fmt.Sprintf("%v", v)
}
