package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_VariableSubstitution(t *testing.T) {
	vars := map[string]any{"name": "Alice", "age": int64(30)}
	assert.Equal(t, "Hello Alice!", Evaluate("Hello ${name}!", vars))
}

func TestEvaluate_UnknownVariableRendersLiterally(t *testing.T) {
	assert.Equal(t, "Hello ${missing}!", Evaluate("Hello ${missing}!", map[string]any{}))
}

func TestEvaluate_DottedPath(t *testing.T) {
	vars := map[string]any{"user": map[string]any{"name": "Bob"}}
	assert.Equal(t, "Bob", Evaluate("${user.name}", vars))
}

func TestEvaluate_IfGtAdultMinor(t *testing.T) {
	vars := map[string]any{"age": int64(30)}
	assert.Equal(t, "adult", Evaluate("if(gt(${age},18),'adult','minor')", vars))

	vars2 := map[string]any{"age": int64(10)}
	assert.Equal(t, "minor", Evaluate("if(gt(${age},18),'adult','minor')", vars2))
}

func TestEvaluateToObject(t *testing.T) {
	vars := map[string]any{"age": int64(30)}
	assert.Equal(t, int64(30), EvaluateToObject("${age}", vars))
}

func TestEvaluate_ComparisonNonNumeric(t *testing.T) {
	assert.Equal(t, "false", Evaluate("gt(foo, bar)", nil))
}

func TestEvaluate_StringFunctions(t *testing.T) {
	assert.Equal(t, "true", Evaluate("contains('hello world','world')", nil))
	assert.Equal(t, "HELLO", Evaluate("upper('hello')", nil))
	assert.Equal(t, "hello", Evaluate("lower('HELLO')", nil))
	assert.Equal(t, "3", Evaluate("length('abc')", nil))
	assert.Equal(t, "ell", Evaluate("substring('hello',1,4)", nil))
	assert.Equal(t, "abc", Evaluate("trim(' abc ')", nil))
	assert.Equal(t, "abXc", Evaluate("replace('abYc','Y','X')", nil))
}

func TestEvaluate_SplitJoin(t *testing.T) {
	assert.Equal(t, "[a, b, c]", Evaluate("split('a,b,c', ',')", nil))
	assert.Equal(t, "a-b-c", Evaluate("join(split('a,b,c', ','), '-')", nil))
}

func TestEvaluate_LogicalFunctions(t *testing.T) {
	assert.Equal(t, "true", Evaluate("and('true','yes','1')", nil))
	assert.Equal(t, "false", Evaluate("and('true','no')", nil))
	assert.Equal(t, "true", Evaluate("or('false','yes')", nil))
	assert.Equal(t, "false", Evaluate("not('true')", nil))
}

func TestEvaluate_UnknownFunctionRendersLiterally(t *testing.T) {
	assert.Equal(t, "mystery(1, 2)", Evaluate("mystery(1, 2)", nil))
}

func TestEvaluate_Idempotent(t *testing.T) {
	vars := map[string]any{"name": "Carl", "age": int64(21)}
	s := "if(gte(${age},18),concat('Hi ',${name}),'minor')"
	once := Evaluate(s, vars)
	twice := Evaluate(once, vars)
	require.Equal(t, once, twice)
}

func TestEvaluate_NestedFunctions(t *testing.T) {
	assert.Equal(t, "true", Evaluate("and(eq(1,1), or(eq(2,3), eq(4,4)))", nil))
}
