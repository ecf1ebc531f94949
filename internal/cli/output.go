package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// renderTable writes a markdown table followed by a row count.
func renderTable(w io.Writer, headers []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintf(w, "_Columns: %v_\n\n_No rows_\n", headers)
		return err
	}
	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n_%d rows_\n", len(rows))
	return err
}

// formatTerm shortens IRIs to their local name for tables.
func formatTerm(term rdf.Term) string {
	switch t := term.(type) {
	case nil:
		return ""
	case *rdf.NamedNode:
		if i := strings.LastIndexAny(t.IRI, "/#"); i >= 0 && i < len(t.IRI)-1 {
			return t.IRI[i+1:]
		}
		return t.IRI
	case *rdf.Literal:
		return t.Value
	case *rdf.TripleTerm:
		return "<< " + formatTerm(t.Subject) + " " + formatTerm(t.Predicate) + " " + formatTerm(t.Object) + " >>"
	default:
		return term.String()
	}
}

// parseTerm reads a term written on the command line: <iri>, _:label,
// "text", "text"@lang, "text"^^<datatype>, DEFAULT for the default graph,
// or a bare IRI.
func parseTerm(s string) (rdf.Term, error) {
	switch {
	case s == "":
		return nil, nil
	case s == "DEFAULT":
		return rdf.NewDefaultGraph(), nil
	case strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">"):
		return rdf.NewNamedNode(s[1 : len(s)-1]), nil
	case strings.HasPrefix(s, "_:"):
		return rdf.NewBlankNode(s[2:]), nil
	case strings.HasPrefix(s, `"`):
		end := strings.LastIndex(s, `"`)
		if end == 0 {
			return nil, fmt.Errorf("unterminated literal %s", s)
		}
		value, rest := s[1:end], s[end+1:]
		switch {
		case rest == "":
			return rdf.NewLiteral(value), nil
		case strings.HasPrefix(rest, "@"):
			return rdf.NewLiteralWithLanguage(value, rest[1:]), nil
		case strings.HasPrefix(rest, "^^<") && strings.HasSuffix(rest, ">"):
			return rdf.NewLiteralWithDatatype(value, rdf.NewNamedNode(rest[3:len(rest)-1])), nil
		}
		return nil, fmt.Errorf("malformed literal %s", s)
	}
	return rdf.NewNamedNode(s), nil
}
