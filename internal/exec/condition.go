package exec

import (
	"fmt"
	"strconv"

	"github.com/flowtitan/flowtitan/internal/dsl"
	"github.com/flowtitan/flowtitan/internal/logging"
	"github.com/flowtitan/flowtitan/internal/value"
)

// Resolver looks up the current value bound to a top-level name (e.g. "t1"
// in "t1.result.ok"). It never resolves attribute paths itself — that is
// done by repeated value.Get lookups over whatever it returns.
type Resolver func(name string) value.Value

// ConditionEvaluator safely evaluates the restricted expression grammar
// (§4.1, §4.5) against values supplied by a Resolver. It never executes
// arbitrary code: expressions are re-lexed and walked by a small recursive
// descent evaluator, not passed to any interpreter.
type ConditionEvaluator struct {
	resolver Resolver
}

func NewConditionEvaluator(resolver Resolver) *ConditionEvaluator {
	if resolver == nil {
		resolver = func(string) value.Value { return value.NullValue() }
	}
	return &ConditionEvaluator{resolver: resolver}
}

// Evaluate parses and evaluates condition, coercing the result to bool.
// Any failure (lex error, unsupported construct) is swallowed into false,
// matching the evaluator contract: conditions must never panic a plan.
func (c *ConditionEvaluator) Evaluate(condition string) (result bool) {
	v, err := c.Resolve(condition)
	if err != nil {
		logging.Get(logging.CategoryExec).Warn("condition evaluation failed for %q: %v", condition, err)
		return false
	}
	return v.Truthy()
}

// Resolve parses and evaluates an expression to its resolved Value, used
// directly by the loop engine when the expression denotes an iterable
// rather than a boolean.
func (c *ConditionEvaluator) Resolve(expr string) (v value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic evaluating %q: %v", expr, r)
		}
	}()

	if expr == "" {
		return value.NullValue(), nil
	}
	tokens, lexErr := dsl.Lex(expr)
	if lexErr != nil {
		return value.NullValue(), lexErr
	}
	ev := &exprEval{tokens: tokens, resolver: c.resolver}
	v = ev.orTest()
	for ev.cur().Kind == dsl.TNewline {
		ev.advance()
	}
	if ev.cur().Kind != dsl.TEOF {
		ev.fail("unexpected token %q in expression", ev.cur().Text)
	}
	if ev.err != nil {
		return value.NullValue(), ev.err
	}
	return v, nil
}

type exprEval struct {
	tokens   []dsl.Token
	pos      int
	resolver Resolver
	err      error
}

func (e *exprEval) cur() dsl.Token {
	if e.pos >= len(e.tokens) {
		return dsl.Token{Kind: dsl.TEOF}
	}
	return e.tokens[e.pos]
}

func (e *exprEval) advance() dsl.Token {
	t := e.cur()
	if e.pos < len(e.tokens) {
		e.pos++
	}
	return t
}

func (e *exprEval) fail(format string, args ...interface{}) {
	if e.err == nil {
		e.err = fmt.Errorf(format, args...)
	}
}

func (e *exprEval) orTest() value.Value {
	left := e.andTest()
	for e.cur().Kind == dsl.TOr {
		e.advance()
		right := e.andTest()
		left = value.OfBool(left.Truthy() || right.Truthy())
	}
	return left
}

func (e *exprEval) andTest() value.Value {
	left := e.notTest()
	for e.cur().Kind == dsl.TAnd {
		e.advance()
		right := e.notTest()
		left = value.OfBool(left.Truthy() && right.Truthy())
	}
	return left
}

func (e *exprEval) notTest() value.Value {
	if e.cur().Kind == dsl.TNot {
		e.advance()
		v := e.notTest()
		return value.OfBool(!v.Truthy())
	}
	return e.comparison()
}

func (e *exprEval) comparison() value.Value {
	left := e.attrAccess()
	for isCompOp(e.cur().Kind) {
		op := e.advance().Kind
		if op == dsl.TIs && e.cur().Kind == dsl.TNot {
			e.advance()
			op = "is not"
		}
		right := e.attrAccess()
		left = value.OfBool(applyComparison(op, left, right))
	}
	return left
}

func isCompOp(k dsl.TokenKind) bool {
	switch k {
	case dsl.TEqEq, dsl.TNotEq, dsl.TLt, dsl.TLe, dsl.TGt, dsl.TGe, dsl.TIn, dsl.TIs:
		return true
	}
	return false
}

func applyComparison(op interface{}, a, b value.Value) bool {
	switch op {
	case dsl.TEqEq:
		return value.Equal(a, b)
	case dsl.TNotEq:
		return !value.Equal(a, b)
	case dsl.TLt:
		if c, ok := value.Compare(a, b); ok {
			return c < 0
		}
		return false
	case dsl.TLe:
		if c, ok := value.Compare(a, b); ok {
			return c <= 0
		}
		return false
	case dsl.TGt:
		if c, ok := value.Compare(a, b); ok {
			return c > 0
		}
		return false
	case dsl.TGe:
		if c, ok := value.Compare(a, b); ok {
			return c >= 0
		}
		return false
	case dsl.TIs:
		return value.Equal(a, b)
	case "is not":
		return !value.Equal(a, b)
	case dsl.TIn:
		if list, ok := b.List(); ok {
			for _, item := range list {
				if value.Equal(a, item) {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

func (e *exprEval) attrAccess() value.Value {
	base := e.atom()
	for e.cur().Kind == dsl.TDot {
		e.advance()
		name := e.advance()
		if name.Kind != dsl.TName {
			e.fail("expected attribute name after '.', got %q", name.Text)
			return value.NullValue()
		}
		child, ok := base.Get(name.Text)
		if !ok {
			child = value.NullValue()
		}
		base = child
	}
	return base
}

func (e *exprEval) atom() value.Value {
	t := e.cur()
	switch t.Kind {
	case dsl.TName:
		e.advance()
		switch t.Text {
		case "True":
			return value.OfBool(true)
		case "False":
			return value.OfBool(false)
		case "None":
			return value.NullValue()
		}
		return e.resolver(t.Text)
	case dsl.TString:
		e.advance()
		return value.OfString(t.Text)
	case dsl.TNumber:
		e.advance()
		if i, err := strconv.ParseInt(t.Text, 10, 64); err == nil {
			return value.OfInt(i)
		}
		f, _ := strconv.ParseFloat(t.Text, 64)
		return value.OfFloat(f)
	default:
		e.fail("unexpected token %q in expression", t.Text)
		return value.NullValue()
	}
}
