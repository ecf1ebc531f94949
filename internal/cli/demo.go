package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aleksaelezovic/quadra/pkg/engine"
	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const (
	exNS   = "http://example.org/"
	foafNS = "http://xmlns.com/foaf/0.1/"
)

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	Persist bool
	Trace   bool
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Load a sample graph and run sample queries",
		Long: `Load a small social graph and run a few algebra queries over it.

Without --persist the demo runs in memory and leaves the data directory
untouched.

Example:
  quadra demo --trace
  quadra demo --persist --data ./data`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Persist {
				opts.InMemory = true
			}
			return runDemo(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Persist, "persist", false, "write the sample graph to the configured store")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print query events and optimized plans")

	return cmd
}

func ex(name string) *rdf.NamedNode   { return rdf.NewNamedNode(exNS + name) }
func foaf(name string) *rdf.NamedNode { return rdf.NewNamedNode(foafNS + name) }

// sampleQuads is a small social graph with two named graphs.
func sampleQuads() []*rdf.Quad {
	alice, bob, carol, dave := ex("alice"), ex("bob"), ex("carol"), ex("dave")
	graph1, graph2 := ex("graph1"), ex("graph2")
	return []*rdf.Quad{
		rdf.NewQuad(alice, foaf("name"), rdf.NewLiteral("Alice"), nil),
		rdf.NewQuad(alice, foaf("age"), rdf.NewIntegerLiteral(30), nil),
		rdf.NewQuad(alice, foaf("knows"), bob, nil),
		rdf.NewQuad(bob, foaf("name"), rdf.NewLiteral("Bob"), nil),
		rdf.NewQuad(bob, foaf("age"), rdf.NewIntegerLiteral(25), nil),
		rdf.NewQuad(bob, foaf("knows"), carol, nil),
		rdf.NewQuad(carol, foaf("name"), rdf.NewLiteral("Carol"), nil),
		rdf.NewQuad(carol, foaf("age"), rdf.NewIntegerLiteral(28), nil),
		rdf.NewQuad(carol, foaf("knows"), dave, nil),
		rdf.NewQuad(dave, foaf("name"), rdf.NewLiteral("Dave"), nil),
		rdf.NewQuad(rdf.NewTripleTerm(alice, foaf("knows"), bob), ex("since"), rdf.NewIntegerLiteral(2019), nil),

		rdf.NewQuad(alice, foaf("name"), rdf.NewLiteral("Alice in Graph1"), graph1),
		rdf.NewQuad(bob, foaf("name"), rdf.NewLiteral("Bob in Graph1"), graph1),
		rdf.NewQuad(alice, foaf("name"), rdf.NewLiteral("Alice in Graph2"), graph2),
		rdf.NewQuad(carol, foaf("name"), rdf.NewLiteral("Carol in Graph2"), graph2),
	}
}

type demoQuery struct {
	title   string
	pattern algebra.Node
}

func triple(s, p, o algebra.TermOrVariable) *algebra.TriplePattern {
	return algebra.NewTriplePattern(s, p, o)
}

func demoQueries() []demoQuery {
	v, name, age, knows := algebra.Var, algebra.IRI(foafNS+"name"), algebra.IRI(foafNS+"age"), algebra.IRI(foafNS+"knows")
	return []demoQuery{
		{
			title: "People with a name and an age",
			pattern: &algebra.Project{
				Variables: algebra.Vars("person", "name", "age"),
				Inner: &algebra.BGP{Patterns: []*algebra.TriplePattern{
					triple(v("person"), name, v("name")),
					triple(v("person"), age, v("age")),
				}},
			},
		},
		{
			title: "Everyone Alice reaches through foaf:knows+",
			pattern: &algebra.Path{
				Subject: algebra.IRI(exNS + "alice"),
				Path:    &algebra.PathOneOrMore{Path: algebra.Link(foafNS + "knows")},
				Object:  v("reached"),
			},
		},
		{
			title: "Names per named graph",
			pattern: &algebra.Graph{
				Name:  v("g"),
				Inner: &algebra.BGP{Patterns: []*algebra.TriplePattern{triple(v("person"), name, v("name"))}},
			},
		},
		{
			title: "Friends per person",
			pattern: &algebra.Group{
				By: algebra.Vars("person"),
				Aggregates: []*algebra.AggregateBinding{{
					Variable:  algebra.NewVariable("friends"),
					Aggregate: &algebra.AggregateExpression{Function: algebra.AggCount, Expression: algebra.VarExpr("friend")},
				}},
				Inner: &algebra.LeftJoin{
					Left:  &algebra.BGP{Patterns: []*algebra.TriplePattern{triple(v("person"), name, v("name"))}},
					Right: &algebra.BGP{Patterns: []*algebra.TriplePattern{triple(v("person"), knows, v("friend"))}},
				},
			},
		},
		{
			title: "Older than 26, oldest first",
			pattern: &algebra.OrderBy{
				Conditions: []*algebra.OrderCondition{{Expression: algebra.VarExpr("age")}},
				Inner: &algebra.Filter{
					Expression: algebra.Binary(algebra.OpGreaterThan, algebra.VarExpr("age"), algebra.TermExpr(rdf.NewIntegerLiteral(26))),
					Inner:      &algebra.BGP{Patterns: []*algebra.TriplePattern{triple(v("person"), age, v("age"))}},
				},
			},
		},
		{
			title: "When Alice met Bob",
			pattern: &algebra.BGP{Patterns: []*algebra.TriplePattern{
				triple(algebra.Quoted(algebra.IRI(exNS+"alice"), knows, v("friend")), algebra.IRI(exNS+"since"), v("year")),
			}},
		},
	}
}

func runDemo(cmd *cobra.Command, opts *DemoOptions) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()
	s, cfg, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close() // #nosec G104 - close error is not actionable here

	heading := color.New(color.Bold)
	fmt.Fprintln(out, heading.Sprint("=== quadra demo ==="))

	stats, err := s.BulkLoad(ctx, store.NewSliceSource(sampleQuads()))
	if err != nil {
		return fmt.Errorf("load sample graph: %w", err)
	}
	fmt.Fprintf(out, "Loaded %d quads (%d new terms)\n", stats.Quads, stats.NewTerms)

	engineOpts := cfg.EngineOptions()
	if opts.Trace {
		engineOpts = append(engineOpts, engine.WithEventHandler(engine.NewOutputFormatter(cmd.ErrOrStderr(), !color.NoColor).Handle))
	}
	eng := engine.New(s, engineOpts...)

	for _, q := range demoQueries() {
		fmt.Fprintln(out)
		fmt.Fprintln(out, heading.Sprint(q.title))
		if err := printSolutions(ctx, out, eng, q.pattern); err != nil {
			return fmt.Errorf("%s: %w", q.title, err)
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, heading.Sprint("=== demo complete ==="))
	return nil
}

// printSolutions runs pattern and prints its solutions as a table.
func printSolutions(ctx context.Context, w io.Writer, eng *engine.Engine, pattern algebra.Node) error {
	sols, err := eng.Query(ctx, pattern)
	if err != nil {
		return err
	}
	defer sols.Close() // #nosec G104 - the iteration error is reported
	vars := sols.Variables()
	var rows [][]string
	for sols.Next() {
		b := sols.Binding()
		row := make([]string, len(vars))
		for i, name := range vars {
			if t, ok := b.Get(name); ok {
				row[i] = formatTerm(t)
			}
		}
		rows = append(rows, row)
	}
	if err := sols.Err(); err != nil {
		return err
	}
	return renderTable(w, vars, rows)
}
