package criteria

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnv() *Env {
	return &Env{
		Headers: map[string]string{
			"content-type": "application/json",
			"x-tenant":     "acme",
		},
		Body: map[string]any{
			"user": map[string]any{"name": "alice", "age": float64(30)},
			"tags": []any{"a", "b", "c"},
			"n":    float64(5),
		},
		Path:   "/api/users/42",
		Query:  map[string]string{"page": "2", "debug": "true"},
		Params: map[string]string{"id": "42"},
		Method: "get",
	}
}

func TestValidateRejectsForbiddenConstructs(t *testing.T) {
	e := New()

	tests := []string{
		`process.env.SECRET == "x"`,
		`eval("1 == 1")`,
		`setTimeout(1000) == true`,
		`setInterval(1) != false`,
		`require("fs") == nil`,
		`import("os") == nil`,
		`"".constructor != nil`,
		`__proto__ == nil`,
		`globalThis != nil`,
		`child_process == nil`,
		`fs.readFileSync("/etc/passwd") == ""`,
	}

	for _, expression := range tests {
		t.Run(expression, func(t *testing.T) {
			err := e.Validate(expression)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrForbiddenConstruct)
		})
	}
}

func TestValidateRejectsEmptyAndOversized(t *testing.T) {
	e := New()

	assert.ErrorIs(t, e.Validate(""), ErrEmptyExpression)
	assert.ErrorIs(t, e.Validate("   \t\n"), ErrEmptyExpression)

	long := `path == "` + string(make([]byte, MaxExpressionLength)) + `"`
	assert.ErrorIs(t, e.Validate(long), ErrExpressionTooLong)
}

func TestValidateRejectsBadSyntaxAndUnknownIdentifiers(t *testing.T) {
	e := New()

	assert.Error(t, e.Validate(`path == `))
	assert.Error(t, e.Validate(`document.cookie == "x"`))
	assert.Error(t, e.Validate(`path`)) // not boolean-producing
}

func TestValidateAcceptsBooleanExpressions(t *testing.T) {
	e := New()

	tests := []string{
		`path == "/api/users/42"`,
		`method == "get" && query.page == "2"`,
		`hasPrefix(path, "/api")`,
		`has(headers["x-tenant"], "acme")`,
		`regexTest("^/api/users/\\d+$", path)`,
		`num(query.page) > 1`,
		`empty(params) || size(params) > 0`,
		`first(body.tags) == "a" and last(body.tags) == "c"`,
		`isNumber(body.n) && body.n >= 5`,
	}

	for _, expression := range tests {
		t.Run(expression, func(t *testing.T) {
			assert.NoError(t, e.Validate(expression))
		})
	}
}

func TestEvaluate(t *testing.T) {
	e := New()
	env := testEnv()

	tests := []struct {
		expression string
		want       bool
	}{
		{`path == "/api/users/42"`, true},
		{`path == "/api/users/43"`, false},
		{`method == "get"`, true},
		{`method == "post"`, false},
		{`headers["content-type"] == "application/json"`, true},
		{`query.page == "2" && query.debug == "true"`, true},
		{`params.id == "42"`, true},
		{`hasPrefix(path, "/api")`, true},
		{`hasSuffix(path, "/42")`, true},
		{`hasSuffix(path, "/41")`, false},
		{`has(path, "users")`, true},
		{`has(body.tags, "b")`, true},
		{`has(body.tags, "z")`, false},
		{`has(body, "user")`, true},
		{`regexTest("^/api/users/\\d+$", path)`, true},
		{`regexTest("^/orders/", path)`, false},
		{`regexTest("[invalid", path)`, false},
		{`body.user.name == "alice"`, true},
		{`body.user.age > 18`, true},
		{`num(query.page) == 2`, true},
		{`num(params.id) >= 42`, true},
		{`str(body.n) == "5"`, true},
		{`empty(query)`, false},
		{`empty(headers["missing"])`, true},
		{`size(body.tags) == 3`, true},
		{`first(body.tags) == "a"`, true},
		{`last(body.tags) == "c"`, true},
		{`isString(body.user.name) && isNumber(body.user.age)`, true},
		{`isBool(body.user.name)`, false},
		{`!(method == "post") || query.page == "9"`, true},
		{`error == ""`, true},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			got, err := e.Evaluate(tt.expression, env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOperatorKeywordSpellings(t *testing.T) {
	e := New()
	env := testEnv()

	// contains, startsWith and endsWith are infix operators in the
	// expression language; the operator spellings must evaluate and the
	// call spellings must fail to parse. The callable helpers are named
	// has/hasPrefix/hasSuffix instead.
	tests := []struct {
		expression string
		want       bool
	}{
		{`path startsWith "/api"`, true},
		{`path endsWith "/42"`, true},
		{`path contains "users"`, true},
		{`path contains "orders"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			got, err := e.Evaluate(tt.expression, env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Error(t, e.Validate(`startsWith(path, "/api")`))
	assert.Error(t, e.Validate(`endsWith(path, "/42")`))
	assert.Error(t, e.Validate(`contains(path, "users")`))
}

func TestEvaluateErrorBinding(t *testing.T) {
	e := New()
	env := testEnv()
	env.Error = "timeout"

	got, err := e.Evaluate(`error == "timeout"`, env)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateFailuresDegradeToFalse(t *testing.T) {
	e := New()

	t.Run("forbidden construct", func(t *testing.T) {
		got, err := e.Evaluate(`process.exit(1) == nil`, testEnv())
		assert.False(t, got)
		assert.ErrorIs(t, err, ErrForbiddenConstruct)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		got, err := e.Evaluate(`window.location == "x"`, testEnv())
		assert.False(t, got)
		assert.Error(t, err)
	})

	t.Run("runtime type failure", func(t *testing.T) {
		// body.user is a map, not a bool-producing comparison operand
		got, err := e.Evaluate(`body.missing.deeply.nested == 1`, testEnv())
		assert.False(t, got)
		assert.Error(t, err)
	})

	t.Run("nil env", func(t *testing.T) {
		got, err := e.Evaluate(`method == "get"`, nil)
		require.NoError(t, err)
		assert.False(t, got)
	})
}

func TestEvaluateTimeBudget(t *testing.T) {
	e := New()

	// A large quantifier forces the VM to grind well past the 100ms budget.
	start := time.Now()
	got, err := e.Evaluate(`all(1..50000000, {# >= 0})`, testEnv())
	elapsed := time.Since(start)

	assert.False(t, got)
	require.Error(t, err)
	assert.Less(t, elapsed, time.Second, "evaluation must be cut off by the budget, not run to completion")
}

func TestEvaluateDeterminism(t *testing.T) {
	e := New()
	env := testEnv()

	for i := 0; i < 10; i++ {
		got, err := e.Evaluate(`num(query.page) * 2 == 4`, env)
		require.NoError(t, err)
		assert.True(t, got)
	}

	// Clock access is disabled inside the sandbox.
	assert.Error(t, e.Validate(`now() != nil`))
}

func TestProgramCacheReuse(t *testing.T) {
	e := New()
	env := testEnv()

	_, err := e.Evaluate(`method == "get"`, env)
	require.NoError(t, err)

	e.programMu.RLock()
	_, cached := e.programCache[`method == "get"`]
	e.programMu.RUnlock()
	assert.True(t, cached)
}
