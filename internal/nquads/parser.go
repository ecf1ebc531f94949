// Package nquads reads N-Quads documents as a stream of quads.
//
// Each line holds one statement: subject predicate object [graph] '.'.
// Lines without a graph belong to the default graph, so N-Triples input
// reads unchanged. Quoted triples are written << s p o >>.
package nquads

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
)

// maxLine bounds a single statement.
const maxLine = 1 << 20

// SyntaxError reports a malformed statement.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("nquads: line %d, column %d: %s", e.Line, e.Col, e.Msg)
}

// Reader pulls quads from an N-Quads document. It satisfies
// store.QuadSource.
type Reader struct {
	sc   *bufio.Scanner
	line int
	cur  *rdf.Quad
	err  error
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &Reader{sc: sc}
}

// Next advances to the next statement, skipping blank and comment lines.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for r.sc.Scan() {
		r.line++
		p := &lineParser{input: r.sc.Text(), line: r.line}
		q, err := p.statement()
		if err != nil {
			r.err = err
			return false
		}
		if q != nil {
			r.cur = q
			return true
		}
	}
	r.err = r.sc.Err()
	r.cur = nil
	return false
}

// Quad returns the current quad.
func (r *Reader) Quad() *rdf.Quad { return r.cur }

// Err returns the first read or syntax error.
func (r *Reader) Err() error { return r.err }

// Line is the number of the last line read.
func (r *Reader) Line() int { return r.line }

// ReadAll parses a whole document.
func ReadAll(r io.Reader) ([]*rdf.Quad, error) {
	var quads []*rdf.Quad
	rd := NewReader(r)
	for rd.Next() {
		quads = append(quads, rd.Quad())
	}
	return quads, rd.Err()
}

// Write writes q as one N-Quads line.
func Write(w io.Writer, q *rdf.Quad) error {
	_, err := io.WriteString(w, q.String()+"\n")
	return err
}

type lineParser struct {
	input string
	pos   int
	line  int
}

func (p *lineParser) errorf(format string, args ...any) error {
	return &SyntaxError{Line: p.line, Col: p.pos + 1, Msg: fmt.Sprintf(format, args...)}
}

func (p *lineParser) eof() bool { return p.pos >= len(p.input) }

func (p *lineParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.input[p.pos]
}

func (p *lineParser) skipSpace() {
	for !p.eof() && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\r') {
		p.pos++
	}
}

// statement parses one line. A blank or comment line yields nil.
func (p *lineParser) statement() (*rdf.Quad, error) {
	p.skipSpace()
	if p.eof() || p.peek() == '#' {
		return nil, nil
	}

	subject, err := p.term()
	if err != nil {
		return nil, err
	}
	switch subject.(type) {
	case *rdf.NamedNode, *rdf.BlankNode, *rdf.TripleTerm:
	default:
		return nil, p.errorf("subject must be an IRI, blank node or quoted triple")
	}

	p.skipSpace()
	predicate, err := p.term()
	if err != nil {
		return nil, err
	}
	if _, ok := predicate.(*rdf.NamedNode); !ok {
		return nil, p.errorf("predicate must be an IRI")
	}

	p.skipSpace()
	object, err := p.term()
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	var graph rdf.Term = rdf.NewDefaultGraph()
	if c := p.peek(); c == '<' || c == '_' {
		if graph, err = p.term(); err != nil {
			return nil, err
		}
		if _, ok := graph.(*rdf.TripleTerm); ok {
			return nil, p.errorf("graph name cannot be a quoted triple")
		}
		p.skipSpace()
	}

	if p.peek() != '.' {
		return nil, p.errorf("expected '.' at end of statement")
	}
	p.pos++
	p.skipSpace()
	if !p.eof() && p.peek() != '#' {
		return nil, p.errorf("unexpected %q after statement", p.input[p.pos:])
	}
	return rdf.NewQuad(subject, predicate, object, graph), nil
}

func (p *lineParser) term() (rdf.Term, error) {
	switch p.peek() {
	case '<':
		if strings.HasPrefix(p.input[p.pos:], "<<") {
			return p.quotedTriple()
		}
		iri, err := p.iri()
		if err != nil {
			return nil, err
		}
		return rdf.NewNamedNode(iri), nil
	case '_':
		return p.blankNode()
	case '"':
		return p.literal()
	case 0:
		return nil, p.errorf("unexpected end of line")
	}
	return nil, p.errorf("unexpected character %q", p.peek())
}

func (p *lineParser) quotedTriple() (rdf.Term, error) {
	p.pos += 2
	p.skipSpace()
	s, err := p.term()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	pred, err := p.term()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	o, err := p.term()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !strings.HasPrefix(p.input[p.pos:], ">>") {
		return nil, p.errorf("expected '>>' to close quoted triple")
	}
	p.pos += 2
	return rdf.NewTripleTerm(s, pred, o), nil
}

func (p *lineParser) iri() (string, error) {
	p.pos++ // '<'
	end := strings.IndexByte(p.input[p.pos:], '>')
	if end < 0 {
		return "", p.errorf("unclosed IRI")
	}
	raw := p.input[p.pos : p.pos+end]
	if strings.ContainsAny(raw, " \t\"{}|^`") {
		return "", p.errorf("invalid character in IRI %q", raw)
	}
	p.pos += end + 1
	if !strings.Contains(raw, `\`) {
		return raw, nil
	}
	return p.unescape(raw)
}

func (p *lineParser) blankNode() (rdf.Term, error) {
	if !strings.HasPrefix(p.input[p.pos:], "_:") {
		return nil, p.errorf("expected '_:' at start of blank node")
	}
	p.pos += 2
	start := p.pos
	for !p.eof() {
		c := p.input[p.pos]
		if c == ' ' || c == '\t' || c == '\r' || c == '<' || c == '>' {
			break
		}
		// A dot may sit inside a label but never ends one.
		if c == '.' && (p.pos+1 >= len(p.input) || p.input[p.pos+1] == ' ' || p.input[p.pos+1] == '\t') {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return nil, p.errorf("empty blank node label")
	}
	return rdf.NewBlankNode(p.input[start:p.pos]), nil
}

func (p *lineParser) literal() (rdf.Term, error) {
	p.pos++ // opening quote
	start := p.pos
	escaped := false
	for ; !p.eof(); p.pos++ {
		c := p.input[p.pos]
		if c == '\\' {
			escaped = true
			p.pos++
			continue
		}
		if c == '"' {
			break
		}
	}
	if p.eof() {
		return nil, p.errorf("unclosed string literal")
	}
	value := p.input[start:p.pos]
	p.pos++ // closing quote
	if escaped {
		var err error
		if value, err = p.unescape(value); err != nil {
			return nil, err
		}
	}

	switch {
	case p.peek() == '@':
		p.pos++
		start := p.pos
		for !p.eof() && (isAlnum(p.peek()) || p.peek() == '-') {
			p.pos++
		}
		if p.pos == start {
			return nil, p.errorf("empty language tag")
		}
		return rdf.NewLiteralWithLanguage(value, p.input[start:p.pos]), nil
	case strings.HasPrefix(p.input[p.pos:], "^^"):
		p.pos += 2
		if p.peek() != '<' {
			return nil, p.errorf("expected datatype IRI")
		}
		dt, err := p.iri()
		if err != nil {
			return nil, err
		}
		return rdf.NewLiteralWithDatatype(value, rdf.NewNamedNode(dt)), nil
	}
	return rdf.NewLiteral(value), nil
}

// unescape resolves ECHAR and UCHAR escapes.
func (p *lineParser) unescape(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i >= len(s) {
			return "", p.errorf("dangling escape")
		}
		switch s[i] {
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'f':
			b.WriteByte('\f')
		case '"', '\'', '\\':
			b.WriteByte(s[i])
		case 'u', 'U':
			n := 4
			if s[i] == 'U' {
				n = 8
			}
			if i+n >= len(s) {
				return "", p.errorf("short unicode escape")
			}
			r, err := strconv.ParseUint(s[i+1:i+1+n], 16, 32)
			if err != nil {
				return "", p.errorf("invalid unicode escape %q", s[i+1:i+1+n])
			}
			b.WriteRune(rune(r))
			i += n
		default:
			return "", p.errorf("unknown escape \\%c", s[i])
		}
	}
	return b.String(), nil
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
