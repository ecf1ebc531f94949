package algebra

import (
	"github.com/aleksaelezovic/quadra/pkg/rdf"
)

// Expression represents a SPARQL expression
type Expression interface {
	expressionNode()
}

// BinaryExpression represents a binary operation
type BinaryExpression struct {
	Left     Expression
	Operator Operator
	Right    Expression
}

func (e *BinaryExpression) expressionNode() {}

// UnaryExpression represents a unary operation
type UnaryExpression struct {
	Operator Operator
	Operand  Expression
}

func (e *UnaryExpression) expressionNode() {}

// VariableExpression represents a variable in an expression
type VariableExpression struct {
	Variable *Variable
}

func (e *VariableExpression) expressionNode() {}

// LiteralExpression represents a constant term in an expression
type LiteralExpression struct {
	Literal rdf.Term
}

func (e *LiteralExpression) expressionNode() {}

// FunctionCallExpression represents a function call. Function is a
// built-in name (case-insensitive) or an IRI for casts.
type FunctionCallExpression struct {
	Function  string
	Arguments []Expression
}

func (e *FunctionCallExpression) expressionNode() {}

// ExistsExpression represents EXISTS / NOT EXISTS over a pattern,
// evaluated with the current solution substituted in.
type ExistsExpression struct {
	Not     bool
	Pattern Node
}

func (e *ExistsExpression) expressionNode() {}

// InExpression represents IN / NOT IN
type InExpression struct {
	Expression Expression
	Values     []Expression
	Not        bool
}

func (e *InExpression) expressionNode() {}

// Operator represents an operator in expressions
type Operator int

const (
	// Logical operators
	OpAnd Operator = iota
	OpOr
	OpNot

	// Comparison operators
	OpEqual
	OpNotEqual
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual

	// Arithmetic operators
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide

	// Unary arithmetic
	OpNegate
	OpPlus
)

var operatorSymbols = [...]string{
	OpAnd:                "&&",
	OpOr:                 "||",
	OpNot:                "!",
	OpEqual:              "=",
	OpNotEqual:           "!=",
	OpLessThan:           "<",
	OpLessThanOrEqual:    "<=",
	OpGreaterThan:        ">",
	OpGreaterThanOrEqual: ">=",
	OpAdd:                "+",
	OpSubtract:           "-",
	OpMultiply:           "*",
	OpDivide:             "/",
	OpNegate:             "neg",
	OpPlus:               "pos",
}

func (o Operator) String() string {
	if o < 0 || int(o) >= len(operatorSymbols) {
		return "?op"
	}
	return operatorSymbols[o]
}

// AggregateFunction names a set function.
type AggregateFunction int

const (
	AggCount AggregateFunction = iota
	AggSum
	AggAvg
	AggMin
	AggMax
	AggSample
	AggGroupConcat
)

var aggregateNames = [...]string{
	AggCount:       "count",
	AggSum:         "sum",
	AggAvg:         "avg",
	AggMin:         "min",
	AggMax:         "max",
	AggSample:      "sample",
	AggGroupConcat: "group_concat",
}

func (a AggregateFunction) String() string {
	if a < 0 || int(a) >= len(aggregateNames) {
		return "?agg"
	}
	return aggregateNames[a]
}

// AggregateExpression is one set function call. A nil Expression on
// AggCount is COUNT(*).
type AggregateExpression struct {
	Function   AggregateFunction
	Distinct   bool
	Expression Expression
	// Separator of GROUP_CONCAT; defaults to a single space.
	Separator *string
}

// AggregateBinding assigns an aggregate result to a variable.
type AggregateBinding struct {
	Variable  *Variable
	Aggregate *AggregateExpression
}

// Convenience constructors, mostly for tests and hand-built plans.

func VarExpr(name string) *VariableExpression {
	return &VariableExpression{Variable: NewVariable(name)}
}

func TermExpr(term rdf.Term) *LiteralExpression {
	return &LiteralExpression{Literal: term}
}

func Binary(op Operator, left, right Expression) *BinaryExpression {
	return &BinaryExpression{Left: left, Operator: op, Right: right}
}

func Call(function string, args ...Expression) *FunctionCallExpression {
	return &FunctionCallExpression{Function: function, Arguments: args}
}

// Walk calls fn for e and every sub-expression, depth first. It does not
// descend into EXISTS patterns.
func Walk(e Expression, fn func(Expression)) {
	if e == nil {
		return
	}
	fn(e)
	switch ex := e.(type) {
	case *BinaryExpression:
		Walk(ex.Left, fn)
		Walk(ex.Right, fn)
	case *UnaryExpression:
		Walk(ex.Operand, fn)
	case *FunctionCallExpression:
		for _, a := range ex.Arguments {
			Walk(a, fn)
		}
	case *InExpression:
		Walk(ex.Expression, fn)
		for _, v := range ex.Values {
			Walk(v, fn)
		}
	}
}

// HasExists reports whether e contains EXISTS or NOT EXISTS.
func HasExists(e Expression) bool {
	found := false
	Walk(e, func(x Expression) {
		if _, ok := x.(*ExistsExpression); ok {
			found = true
		}
	})
	return found
}
