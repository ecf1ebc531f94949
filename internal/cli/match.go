package cli

import (
	"fmt"
	"sort"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/spf13/cobra"
)

// MatchOptions holds flags for the match command.
type MatchOptions struct {
	*RootOptions
	Subject   string
	Predicate string
	Object    string
	Graph     string
}

// NewMatchCommand creates the match command.
func NewMatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Print the quads matching a pattern",
		Long: `Print the stored quads matching a pattern, one per line in sorted order.
Omitted positions match anything; -g DEFAULT selects the default graph.

Terms are written as <iri>, _:label, "text", "text"@lang,
"text"^^<datatype>, or a bare IRI.

Example:
  quadra match -p http://xmlns.com/foaf/0.1/knows
  quadra match -s '<http://example.org/alice>' -g DEFAULT`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Subject, "subject", "s", "", "subject term")
	cmd.Flags().StringVarP(&opts.Predicate, "predicate", "p", "", "predicate term")
	cmd.Flags().StringVarP(&opts.Object, "object", "o", "", "object term")
	cmd.Flags().StringVarP(&opts.Graph, "graph", "g", "", "graph term")

	return cmd
}

func runMatch(cmd *cobra.Command, opts *MatchOptions) error {
	var terms [4]rdf.Term
	for i, raw := range []string{opts.Subject, opts.Predicate, opts.Object, opts.Graph} {
		t, err := parseTerm(raw)
		if err != nil {
			return err
		}
		terms[i] = t
	}

	s, _, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close() // #nosec G104 - read-only command

	ctx := commandContext(cmd)
	it, err := s.Quads(ctx, terms[0], terms[1], terms[2], terms[3])
	if err != nil {
		return err
	}
	defer it.Close() // #nosec G104 - the iteration error is reported

	var lines []string
	for it.Next() {
		lines = append(lines, it.Quad().String())
	}
	if err := it.Err(); err != nil {
		return err
	}
	sort.Strings(lines)
	out := cmd.OutOrStdout()
	for _, l := range lines {
		fmt.Fprintln(out, l)
	}
	return nil
}
