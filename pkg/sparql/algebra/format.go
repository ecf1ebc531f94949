package algebra

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
)

// Format renders n as a canonical S-expression. Two trees format equally
// exactly when they are structurally equal.
func Format(n Node) string {
	var b strings.Builder
	writeNode(&b, n, 0)
	return b.String()
}

// FormatExpression renders e on one line.
func FormatExpression(e Expression) string {
	var b strings.Builder
	writeExpr(&b, e)
	return b.String()
}

// FormatPath renders a property path on one line.
func FormatPath(p PathExpression) string {
	var b strings.Builder
	writePath(&b, p)
	return b.String()
}

// inline is a depth that renders a subtree on one line.
const inline = -1 << 20

func indent(b *strings.Builder, depth int) {
	if depth < 0 {
		b.WriteByte(' ')
		return
	}
	b.WriteByte('\n')
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}

func writeNode(b *strings.Builder, n Node, depth int) {
	if n == nil {
		b.WriteString("(null)")
		return
	}
	b.WriteByte('(')
	b.WriteString(n.Kind().String())
	switch x := n.(type) {
	case *BGP:
		for _, tp := range x.Patterns {
			indent(b, depth+1)
			writeTriple(b, tp)
		}
	case *Path:
		b.WriteByte(' ')
		writeTOV(b, x.Subject)
		b.WriteByte(' ')
		writePath(b, x.Path)
		b.WriteByte(' ')
		writeTOV(b, x.Object)
	case *Join:
		writeChildren(b, depth, x.Left, x.Right)
	case *LeftJoin:
		writeChildren(b, depth, x.Left, x.Right)
		if x.Expression != nil {
			indent(b, depth+1)
			writeExpr(b, x.Expression)
		}
	case *Filter:
		b.WriteByte(' ')
		writeExpr(b, x.Expression)
		writeChildren(b, depth, x.Inner)
	case *Union:
		writeChildren(b, depth, x.Left, x.Right)
	case *Graph:
		b.WriteByte(' ')
		writeTOV(b, x.Name)
		writeChildren(b, depth, x.Inner)
	case *Extend:
		b.WriteString(" (")
		b.WriteString(x.Variable.String())
		b.WriteByte(' ')
		writeExpr(b, x.Expression)
		b.WriteByte(')')
		writeChildren(b, depth, x.Inner)
	case *Minus:
		writeChildren(b, depth, x.Left, x.Right)
	case *Values:
		b.WriteByte(' ')
		writeVars(b, x.Variables)
		for _, row := range x.Rows {
			indent(b, depth+1)
			b.WriteByte('(')
			for i, cell := range row {
				if i > 0 {
					b.WriteByte(' ')
				}
				if cell == nil {
					b.WriteString("UNDEF")
				} else {
					b.WriteString(formatTerm(cell))
				}
			}
			b.WriteByte(')')
		}
	case *Project:
		b.WriteByte(' ')
		writeVars(b, x.Variables)
		writeChildren(b, depth, x.Inner)
	case *Group:
		b.WriteByte(' ')
		writeVars(b, x.By)
		b.WriteString(" (")
		for i, agg := range x.Aggregates {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteByte('(')
			b.WriteString(agg.Variable.String())
			b.WriteByte(' ')
			writeAggregate(b, agg.Aggregate)
			b.WriteByte(')')
		}
		b.WriteByte(')')
		writeChildren(b, depth, x.Inner)
	case *OrderBy:
		b.WriteString(" (")
		for i, c := range x.Conditions {
			if i > 0 {
				b.WriteByte(' ')
			}
			if c.Ascending {
				b.WriteString("(asc ")
			} else {
				b.WriteString("(desc ")
			}
			writeExpr(b, c.Expression)
			b.WriteByte(')')
		}
		b.WriteByte(')')
		writeChildren(b, depth, x.Inner)
	case *Slice:
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(x.Offset))
		b.WriteByte(' ')
		if x.Limit < 0 {
			b.WriteByte('_')
		} else {
			b.WriteString(strconv.Itoa(x.Limit))
		}
		writeChildren(b, depth, x.Inner)
	case *Distinct:
		writeChildren(b, depth, x.Inner)
	case *Reduced:
		writeChildren(b, depth, x.Inner)
	case *Service:
		if x.Silent {
			b.WriteString(" silent")
		}
		b.WriteByte(' ')
		writeTOV(b, x.Name)
		writeChildren(b, depth, x.Inner)
	}
	b.WriteByte(')')
}

func writeChildren(b *strings.Builder, depth int, children ...Node) {
	for _, c := range children {
		indent(b, depth+1)
		writeNode(b, c, depth+1)
	}
}

func writeVars(b *strings.Builder, vars []*Variable) {
	b.WriteByte('(')
	for i, v := range vars {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(v.String())
	}
	b.WriteByte(')')
}

func writeTriple(b *strings.Builder, tp *TriplePattern) {
	b.WriteString("(triple ")
	writeTOV(b, tp.Subject)
	b.WriteByte(' ')
	writeTOV(b, tp.Predicate)
	b.WriteByte(' ')
	writeTOV(b, tp.Object)
	b.WriteByte(')')
}

func writeTOV(b *strings.Builder, t TermOrVariable) {
	switch {
	case t.Variable != nil:
		b.WriteString(t.Variable.String())
	case t.Triple != nil:
		b.WriteString("(qtriple ")
		writeTOV(b, t.Triple.Subject)
		b.WriteByte(' ')
		writeTOV(b, t.Triple.Predicate)
		b.WriteByte(' ')
		writeTOV(b, t.Triple.Object)
		b.WriteByte(')')
	case t.Term != nil:
		b.WriteString(formatTerm(t.Term))
	default:
		b.WriteString("_")
	}
}

func formatTerm(t rdf.Term) string {
	if rdf.IsDefaultGraph(t) {
		return "DEFAULT"
	}
	return t.String()
}

func writeExpr(b *strings.Builder, e Expression) {
	switch x := e.(type) {
	case nil:
		b.WriteString("(null)")
	case *VariableExpression:
		b.WriteString(x.Variable.String())
	case *LiteralExpression:
		b.WriteString(formatTerm(x.Literal))
	case *BinaryExpression:
		b.WriteByte('(')
		b.WriteString(x.Operator.String())
		b.WriteByte(' ')
		writeExpr(b, x.Left)
		b.WriteByte(' ')
		writeExpr(b, x.Right)
		b.WriteByte(')')
	case *UnaryExpression:
		b.WriteByte('(')
		b.WriteString(x.Operator.String())
		b.WriteByte(' ')
		writeExpr(b, x.Operand)
		b.WriteByte(')')
	case *FunctionCallExpression:
		b.WriteByte('(')
		b.WriteString(strings.ToLower(x.Function))
		for _, a := range x.Arguments {
			b.WriteByte(' ')
			writeExpr(b, a)
		}
		b.WriteByte(')')
	case *InExpression:
		if x.Not {
			b.WriteString("(notin ")
		} else {
			b.WriteString("(in ")
		}
		writeExpr(b, x.Expression)
		for _, v := range x.Values {
			b.WriteByte(' ')
			writeExpr(b, v)
		}
		b.WriteByte(')')
	case *ExistsExpression:
		if x.Not {
			b.WriteString("(notexists ")
		} else {
			b.WriteString("(exists ")
		}
		writeNode(b, x.Pattern, inline)
		b.WriteByte(')')
	default:
		fmt.Fprintf(b, "(%T)", e)
	}
}

func writeAggregate(b *strings.Builder, a *AggregateExpression) {
	b.WriteByte('(')
	b.WriteString(a.Function.String())
	if a.Distinct {
		b.WriteString(" distinct")
	}
	if a.Expression == nil {
		b.WriteString(" *")
	} else {
		b.WriteByte(' ')
		writeExpr(b, a.Expression)
	}
	if a.Separator != nil {
		b.WriteString(" (separator ")
		b.WriteString(strconv.Quote(*a.Separator))
		b.WriteByte(')')
	}
	b.WriteByte(')')
}

func writePath(b *strings.Builder, p PathExpression) {
	switch x := p.(type) {
	case *PathLink:
		b.WriteString(formatTerm(x.Predicate))
	case *PathInverse:
		b.WriteString("(reverse ")
		writePath(b, x.Path)
		b.WriteByte(')')
	case *PathSequence:
		b.WriteString("(seq ")
		writePath(b, x.Left)
		b.WriteByte(' ')
		writePath(b, x.Right)
		b.WriteByte(')')
	case *PathAlternative:
		b.WriteString("(alt ")
		writePath(b, x.Left)
		b.WriteByte(' ')
		writePath(b, x.Right)
		b.WriteByte(')')
	case *PathZeroOrMore:
		b.WriteString("(path* ")
		writePath(b, x.Path)
		b.WriteByte(')')
	case *PathOneOrMore:
		b.WriteString("(path+ ")
		writePath(b, x.Path)
		b.WriteByte(')')
	case *PathZeroOrOne:
		b.WriteString("(path? ")
		writePath(b, x.Path)
		b.WriteByte(')')
	case *PathNegatedSet:
		b.WriteString("(notoneof")
		for _, iri := range x.Forward {
			b.WriteByte(' ')
			b.WriteString(formatTerm(iri))
		}
		for _, iri := range x.Inverse {
			b.WriteString(" (reverse ")
			b.WriteString(formatTerm(iri))
			b.WriteByte(')')
		}
		b.WriteByte(')')
	default:
		fmt.Fprintf(b, "(%T)", p)
	}
}
