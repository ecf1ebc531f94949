package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aleksaelezovic/quadra/pkg/engine"
	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/spf13/cobra"
)

// ReachOptions holds flags for the reach command.
type ReachOptions struct {
	*RootOptions
	From      string
	Predicate string
	Mode      string
	Inverse   bool
}

// ValidReachModes defines the path operators of the reach command.
var ValidReachModes = []string{"plus", "star", "opt"}

// NewReachCommand creates the reach command.
func NewReachCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReachOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reach",
		Short: "List the nodes reachable over a predicate",
		Long: `Evaluate the property path pred+ (plus), pred* (star) or pred? (opt)
from a start node in the default graph and print every node reached, one
per line in sorted order. --inverse walks the edges backwards.

Example:
  quadra reach --from http://example.org/alice --pred http://xmlns.com/foaf/0.1/knows
  quadra reach --from http://example.org/dave --pred http://xmlns.com/foaf/0.1/knows --inverse --mode star`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReach(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "start node (required)")
	cmd.Flags().StringVar(&opts.Predicate, "pred", "", "predicate IRI (required)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "plus", "path operator (plus|star|opt)")
	cmd.Flags().BoolVar(&opts.Inverse, "inverse", false, "follow edges from object to subject")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("pred")

	return cmd
}

// reachPath builds the path expression for the command flags.
func reachPath(pred *rdf.NamedNode, mode string, inverse bool) (algebra.PathExpression, error) {
	var step algebra.PathExpression = &algebra.PathLink{Predicate: pred}
	if inverse {
		step = &algebra.PathInverse{Path: step}
	}
	switch mode {
	case "plus":
		return &algebra.PathOneOrMore{Path: step}, nil
	case "star":
		return &algebra.PathZeroOrMore{Path: step}, nil
	case "opt":
		return &algebra.PathZeroOrOne{Path: step}, nil
	}
	return nil, fmt.Errorf("invalid mode %q: must be one of %v", mode, ValidReachModes)
}

func runReach(cmd *cobra.Command, opts *ReachOptions) error {
	from, err := parseTerm(opts.From)
	if err != nil {
		return err
	}
	predTerm, err := parseTerm(opts.Predicate)
	if err != nil {
		return err
	}
	pred, ok := predTerm.(*rdf.NamedNode)
	if !ok {
		return errors.New("--pred must be an IRI")
	}
	p, err := reachPath(pred, opts.Mode, opts.Inverse)
	if err != nil {
		return err
	}

	s, cfg, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close() // #nosec G104 - read-only command

	ctx := commandContext(cmd)
	eng := engine.New(s, cfg.EngineOptions()...)
	sols, err := eng.Query(ctx, &algebra.Path{Subject: algebra.Const(from), Path: p, Object: algebra.Var("node")})
	if err != nil {
		return err
	}
	defer sols.Close() // #nosec G104 - the iteration error is reported

	var lines []string
	for sols.Next() {
		if t, ok := sols.Binding().Get("node"); ok {
			lines = append(lines, t.String())
		}
	}
	if err := sols.Err(); err != nil {
		return err
	}
	sort.Strings(lines)
	out := cmd.OutOrStdout()
	for _, l := range lines {
		fmt.Fprintln(out, l)
	}
	return nil
}
