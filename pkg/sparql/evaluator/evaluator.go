// Package evaluator computes SPARQL expression values over solution
// mappings.
package evaluator

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/sparql/binding"
)

// Error kinds carried by EvaluationError.
var (
	ErrTypeError       = errors.New("type error")
	ErrUnbound         = errors.New("unbound variable")
	ErrUnknownFunction = errors.New("unknown function")
)

// EvaluationError is an expression error. It is local: FILTER treats it
// as false and BIND leaves the variable unbound.
type EvaluationError struct {
	Kind error
	Msg  string
}

func (e *EvaluationError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Msg
}

func (e *EvaluationError) Unwrap() error { return e.Kind }

func typeError(format string, args ...any) error {
	return &EvaluationError{Kind: ErrTypeError, Msg: fmt.Sprintf(format, args...)}
}

// IsEvaluationError reports whether err is an expression error, as
// opposed to a storage or cancellation failure that must abort the query.
func IsEvaluationError(err error) bool {
	var ee *EvaluationError
	return errors.As(err, &ee)
}

// ExistsFunc evaluates an EXISTS pattern with b substituted in.
type ExistsFunc func(pattern algebra.Node, b *binding.Binding) (bool, error)

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithExists sets the hook used for EXISTS and NOT EXISTS.
func WithExists(fn ExistsFunc) Option {
	return func(e *Evaluator) { e.exists = fn }
}

// WithNow fixes the value returned by NOW().
func WithNow(t time.Time) Option {
	return func(e *Evaluator) { e.now = t }
}

// Evaluator evaluates SPARQL expressions against bindings. One Evaluator
// serves one query: NOW() is constant over it. It is not safe for
// concurrent use.
type Evaluator struct {
	exists  ExistsFunc
	now     time.Time
	regexps map[string]*regexp.Regexp
}

// NewEvaluator creates a new expression evaluator
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{now: time.Now()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate evaluates an expression against a binding and returns the
// result term. Expression failures are *EvaluationError values; any other
// error comes from the EXISTS hook.
func (e *Evaluator) Evaluate(expr algebra.Expression, b *binding.Binding) (rdf.Term, error) {
	switch ex := expr.(type) {
	case *algebra.BinaryExpression:
		return e.evaluateBinaryExpression(ex, b)
	case *algebra.UnaryExpression:
		return e.evaluateUnaryExpression(ex, b)
	case *algebra.VariableExpression:
		return e.evaluateVariableExpression(ex, b)
	case *algebra.LiteralExpression:
		if ex.Literal == nil {
			return nil, typeError("empty constant")
		}
		return ex.Literal, nil
	case *algebra.FunctionCallExpression:
		return e.evaluateFunctionCall(ex, b)
	case *algebra.ExistsExpression:
		return e.evaluateExistsExpression(ex, b)
	case *algebra.InExpression:
		return e.evaluateInExpression(ex, b)
	case nil:
		return nil, typeError("cannot evaluate nil expression")
	default:
		return nil, typeError("unsupported expression type %T", expr)
	}
}

// EvaluateBool evaluates expr and returns its effective boolean value.
func (e *Evaluator) EvaluateBool(expr algebra.Expression, b *binding.Binding) (bool, error) {
	t, err := e.Evaluate(expr, b)
	if err != nil {
		return false, err
	}
	return EffectiveBooleanValue(t)
}

func (e *Evaluator) evaluateVariableExpression(expr *algebra.VariableExpression, b *binding.Binding) (rdf.Term, error) {
	if expr.Variable == nil {
		return nil, typeError("variable expression has nil variable")
	}
	value, ok := b.Get(expr.Variable.Name)
	if !ok {
		return nil, &EvaluationError{Kind: ErrUnbound, Msg: "?" + expr.Variable.Name}
	}
	return value, nil
}

func (e *Evaluator) evaluateExistsExpression(expr *algebra.ExistsExpression, b *binding.Binding) (rdf.Term, error) {
	if e.exists == nil {
		return nil, &EvaluationError{Kind: ErrUnknownFunction, Msg: "EXISTS is not available here"}
	}
	found, err := e.exists(expr.Pattern, b)
	if err != nil {
		return nil, err
	}
	return rdf.NewBooleanLiteral(found != expr.Not), nil
}

// evaluateInExpression evaluates IN or NOT IN. x IN (e1, e2) is
// (x = e1) || (x = e2): a match wins over errors, otherwise an error is
// reported.
func (e *Evaluator) evaluateInExpression(expr *algebra.InExpression, b *binding.Binding) (rdf.Term, error) {
	left, err := e.Evaluate(expr.Expression, b)
	if err != nil {
		return nil, err
	}

	var firstErr error
	for _, valueExpr := range expr.Values {
		right, err := e.Evaluate(valueExpr, b)
		if err == nil {
			var eq bool
			eq, err = valueEqual(left, right)
			if err == nil && eq {
				return rdf.NewBooleanLiteral(!expr.Not), nil
			}
		}
		if err != nil {
			if !IsEvaluationError(err) {
				return nil, err
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return rdf.NewBooleanLiteral(expr.Not), nil
}
