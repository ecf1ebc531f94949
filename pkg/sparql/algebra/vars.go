package algebra

// Variables lists the variables that may be bound by solutions of n, in
// order of first appearance.
func Variables(n Node) []string {
	var c varCollector
	c.node(n)
	return c.names
}

type varCollector struct {
	names []string
	seen  map[string]bool
}

func (c *varCollector) add(name string) {
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	if !c.seen[name] {
		c.seen[name] = true
		c.names = append(c.names, name)
	}
}

func (c *varCollector) tov(t TermOrVariable) {
	switch {
	case t.Variable != nil:
		c.add(t.Variable.Name)
	case t.Triple != nil:
		c.triple(t.Triple)
	}
}

func (c *varCollector) triple(tp *TriplePattern) {
	c.tov(tp.Subject)
	c.tov(tp.Predicate)
	c.tov(tp.Object)
}

func (c *varCollector) node(n Node) {
	switch x := n.(type) {
	case *BGP:
		for _, tp := range x.Patterns {
			c.triple(tp)
		}
	case *Path:
		c.tov(x.Subject)
		c.tov(x.Object)
	case *Join:
		c.node(x.Left)
		c.node(x.Right)
	case *LeftJoin:
		c.node(x.Left)
		c.node(x.Right)
	case *Filter:
		c.node(x.Inner)
	case *Union:
		c.node(x.Left)
		c.node(x.Right)
	case *Graph:
		c.tov(x.Name)
		c.node(x.Inner)
	case *Extend:
		c.node(x.Inner)
		c.add(x.Variable.Name)
	case *Minus:
		c.node(x.Left)
	case *Values:
		for _, v := range x.Variables {
			c.add(v.Name)
		}
	case *Project:
		for _, v := range x.Variables {
			c.add(v.Name)
		}
	case *Group:
		for _, v := range x.By {
			c.add(v.Name)
		}
		for _, a := range x.Aggregates {
			c.add(a.Variable.Name)
		}
	case *OrderBy:
		c.node(x.Inner)
	case *Slice:
		c.node(x.Inner)
	case *Distinct:
		c.node(x.Inner)
	case *Reduced:
		c.node(x.Inner)
	case *Service:
		c.tov(x.Name)
		c.node(x.Inner)
	}
}

// CertainVariables returns the variables bound in every solution of n.
func CertainVariables(n Node) map[string]bool {
	out := make(map[string]bool)
	switch x := n.(type) {
	case *BGP, *Path:
		for _, v := range Variables(n) {
			out[v] = true
		}
	case *Join:
		for v := range CertainVariables(x.Left) {
			out[v] = true
		}
		for v := range CertainVariables(x.Right) {
			out[v] = true
		}
	case *LeftJoin:
		return CertainVariables(x.Left)
	case *Filter:
		return CertainVariables(x.Inner)
	case *Union:
		right := CertainVariables(x.Right)
		for v := range CertainVariables(x.Left) {
			if right[v] {
				out[v] = true
			}
		}
	case *Graph:
		out = CertainVariables(x.Inner)
		if x.Name.Variable != nil {
			out[x.Name.Variable.Name] = true
		}
	case *Extend:
		return CertainVariables(x.Inner)
	case *Minus:
		return CertainVariables(x.Left)
	case *Values:
	cols:
		for i, v := range x.Variables {
			for _, row := range x.Rows {
				if i >= len(row) || row[i] == nil {
					continue cols
				}
			}
			out[v.Name] = true
		}
	case *Project:
		inner := CertainVariables(x.Inner)
		for _, v := range x.Variables {
			if inner[v.Name] {
				out[v.Name] = true
			}
		}
	case *Group:
		inner := CertainVariables(x.Inner)
		for _, v := range x.By {
			if inner[v.Name] {
				out[v.Name] = true
			}
		}
	case *OrderBy:
		return CertainVariables(x.Inner)
	case *Slice:
		return CertainVariables(x.Inner)
	case *Distinct:
		return CertainVariables(x.Inner)
	case *Reduced:
		return CertainVariables(x.Inner)
	case *Service:
	}
	return out
}

// ExpressionVariables lists the variables e reads, excluding those inside
// EXISTS patterns.
func ExpressionVariables(e Expression) []string {
	var c varCollector
	Walk(e, func(x Expression) {
		if v, ok := x.(*VariableExpression); ok {
			c.add(v.Variable.Name)
		}
	})
	return c.names
}
