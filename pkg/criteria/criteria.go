// Package criteria validates and executes the boolean rule expressions that
// drive conditional response overrides.
//
// Expressions run inside a restricted sandbox: only the request bindings
// (headers, body, path, query, params, method, error) and a fixed helper set
// resolve, a raw-text denylist rejects dangerous constructs before parsing,
// and every evaluation is bounded by a hard wall-clock budget. A misbehaving
// expression degrades to "predicate is false" and can never stall or crash
// the serving path.
package criteria

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// MaxExpressionLength caps accepted expression sizes.
const MaxExpressionLength = 2000

// DefaultTimeout is the hard wall-clock budget per evaluation.
const DefaultTimeout = 100 * time.Millisecond

// Validation errors.
var (
	ErrEmptyExpression    = errors.New("expression is empty")
	ErrExpressionTooLong  = errors.New("expression exceeds maximum length")
	ErrForbiddenConstruct = errors.New("expression contains a forbidden construct")
	ErrTimeout            = errors.New("evaluation exceeded time budget")
)

// denylist is checked against the lower-cased raw expression text before any
// parsing. It covers dynamic code loading, timers, runtime/global access,
// and filesystem or process-spawning identifiers.
var denylist = []string{
	"require(",
	"import(",
	"eval(",
	"function(",
	"new function",
	"constructor",
	"prototype",
	"__proto__",
	"settimeout(",
	"setinterval(",
	"setimmediate(",
	"process.",
	"global.",
	"globalthis",
	"child_process",
	"spawn(",
	"execsync",
	"fs.",
	"readfile",
	"writefile",
}

// Env is the read-only request projection exposed to expressions. It is
// built fresh per evaluation and never mutated by the evaluator.
type Env struct {
	Headers map[string]string
	Body    any
	Path    string
	Query   map[string]string
	Params  map[string]string
	Method  string

	// Error is the classified upstream error class; only populated when a
	// fallback's conditions are evaluated.
	Error string
}

// exprEnv is the concrete environment handed to the expression VM: the five
// request bindings plus the whitelisted helper set. Compiling against this
// struct makes any other identifier a compile error.
type exprEnv struct {
	Headers map[string]string `expr:"headers"`
	Body    any               `expr:"body"`
	Path    string            `expr:"path"`
	Query   map[string]string `expr:"query"`
	Params  map[string]string `expr:"params"`
	Method  string            `expr:"method"`
	Error   string            `expr:"error"`

	// The membership and affix helpers are named has/hasPrefix/hasSuffix
	// because contains, startsWith and endsWith are operator keywords in
	// the expression language and cannot be called as functions.
	Has       func(container, item any) bool `expr:"has"`
	HasPrefix func(s, prefix any) bool       `expr:"hasPrefix"`
	HasSuffix func(s, suffix any) bool       `expr:"hasSuffix"`
	RegexTest func(pattern, s any) bool      `expr:"regexTest"`
	Empty     func(v any) bool               `expr:"empty"`
	Size      func(v any) int                `expr:"size"`
	First     func(v any) any                `expr:"first"`
	Last      func(v any) any                `expr:"last"`
	Num       func(v any) float64            `expr:"num"`
	Str       func(v any) string             `expr:"str"`
	IsString  func(v any) bool               `expr:"isString"`
	IsNumber  func(v any) bool               `expr:"isNumber"`
	IsBool    func(v any) bool               `expr:"isBool"`
}

// Evaluator validates and executes rule expressions with a shared program
// cache. Safe for concurrent use.
type Evaluator struct {
	timeout time.Duration

	programMu    sync.RWMutex
	programCache map[string]*vm.Program
}

// New creates an evaluator with the default time budget.
func New() *Evaluator {
	return &Evaluator{
		timeout:      DefaultTimeout,
		programCache: make(map[string]*vm.Program),
	}
}

// Validate checks an expression without executing it: size bounds, the
// raw-text denylist, and a dry compile whose artifact is discarded.
func (e *Evaluator) Validate(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return ErrEmptyExpression
	}
	if len(expression) > MaxExpressionLength {
		return fmt.Errorf("%w (%d > %d)", ErrExpressionTooLong, len(expression), MaxExpressionLength)
	}
	if token := matchDenylist(expression); token != "" {
		return fmt.Errorf("%w: %q", ErrForbiddenConstruct, token)
	}
	if _, err := expr.Compile(expression, compileOptions()...); err != nil {
		return fmt.Errorf("invalid expression: %w", err)
	}
	return nil
}

// Evaluate runs an expression against the given request view and returns its
// boolean result. Any failure — validation, compile, runtime error, panic,
// non-boolean result, or budget overrun — is returned as an error with a
// false result; nothing ever propagates as a panic to the caller.
func (e *Evaluator) Evaluate(expression string, env *Env) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return false, ErrEmptyExpression
	}
	if len(expression) > MaxExpressionLength {
		return false, fmt.Errorf("%w (%d > %d)", ErrExpressionTooLong, len(expression), MaxExpressionLength)
	}
	if token := matchDenylist(expression); token != "" {
		return false, fmt.Errorf("%w: %q", ErrForbiddenConstruct, token)
	}

	program, err := e.compile(expression)
	if err != nil {
		return false, fmt.Errorf("compile %q: %w", expression, err)
	}

	if env == nil {
		env = &Env{}
	}
	runEnv := newExprEnv(env)

	type evalResult struct {
		value any
		err   error
	}
	done := make(chan evalResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- evalResult{err: fmt.Errorf("evaluation panicked: %v", r)}
			}
		}()
		value, runErr := expr.Run(program, runEnv)
		done <- evalResult{value: value, err: runErr}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			return false, fmt.Errorf("eval %q: %w", expression, res.err)
		}
		b, ok := res.value.(bool)
		if !ok {
			return false, fmt.Errorf("expression %q returned %T, want bool", expression, res.value)
		}
		return b, nil
	case <-timer.C:
		// The runaway goroutine is abandoned; it holds no locks and its
		// result channel is buffered, so it cannot wedge anything.
		return false, fmt.Errorf("%w (%s)", ErrTimeout, e.timeout)
	}
}

func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.programMu.RLock()
	if program, ok := e.programCache[expression]; ok {
		e.programMu.RUnlock()
		return program, nil
	}
	e.programMu.RUnlock()

	program, err := expr.Compile(expression, compileOptions()...)
	if err != nil {
		return nil, err
	}

	e.programMu.Lock()
	if existing, ok := e.programCache[expression]; ok {
		e.programMu.Unlock()
		return existing, nil
	}
	e.programCache[expression] = program
	e.programMu.Unlock()

	return program, nil
}

func compileOptions() []expr.Option {
	return []expr.Option{
		expr.Env(exprEnv{}),
		expr.AsBool(),
		// Clock reads would break evaluation determinism.
		expr.DisableBuiltin("now"),
	}
}

func newExprEnv(env *Env) exprEnv {
	return exprEnv{
		Headers: env.Headers,
		Body:    env.Body,
		Path:    env.Path,
		Query:   env.Query,
		Params:  env.Params,
		Method:  env.Method,
		Error:   env.Error,

		Has:       helperHas,
		HasPrefix: helperHasPrefix,
		HasSuffix: helperHasSuffix,
		RegexTest: helperRegexTest,
		Empty:     helperEmpty,
		Size:      helperSize,
		First:     helperFirst,
		Last:      helperLast,
		Num:       helperNum,
		Str:       helperStr,
		IsString:  helperIsString,
		IsNumber:  helperIsNumber,
		IsBool:    helperIsBool,
	}
}

func matchDenylist(expression string) string {
	lowered := strings.ToLower(expression)
	for _, token := range denylist {
		if strings.Contains(lowered, token) {
			return token
		}
	}
	return ""
}
