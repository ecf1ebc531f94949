// Package binding holds SPARQL solution mappings.
package binding

import (
	"sort"
	"strconv"
	"strings"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/store"
)

// Binding represents a variable binding
type Binding struct {
	Vars map[string]rdf.Term
	ids  map[string]store.TermID // store ids of values that came from the store
}

// NewBinding creates a new empty binding
func NewBinding() *Binding {
	return &Binding{
		Vars: make(map[string]rdf.Term),
		ids:  make(map[string]store.TermID),
	}
}

// Clone creates a copy of the binding
func (b *Binding) Clone() *Binding {
	nb := &Binding{
		Vars: make(map[string]rdf.Term, len(b.Vars)+1),
		ids:  make(map[string]store.TermID, len(b.ids)+1),
	}
	for k, v := range b.Vars {
		nb.Vars[k] = v
	}
	for k, v := range b.ids {
		nb.ids[k] = v
	}
	return nb
}

// Get returns the value of name.
func (b *Binding) Get(name string) (rdf.Term, bool) {
	t, ok := b.Vars[name]
	return t, ok
}

// Set binds name to term.
func (b *Binding) Set(name string, term rdf.Term) {
	b.Vars[name] = term
	delete(b.ids, name)
}

// SetWithID binds name to a term read from the store.
func (b *Binding) SetWithID(name string, term rdf.Term, id store.TermID) {
	b.Vars[name] = term
	b.ids[name] = id
}

// ID returns the store id of name's value, when known.
func (b *Binding) ID(name string) (store.TermID, bool) {
	id, ok := b.ids[name]
	return id, ok
}

// Delete unbinds name.
func (b *Binding) Delete(name string) {
	delete(b.Vars, name)
	delete(b.ids, name)
}

// Len is the number of bound variables.
func (b *Binding) Len() int {
	return len(b.Vars)
}

// Names returns the bound variable names in sorted order.
func (b *Binding) Names() []string {
	names := make([]string, 0, len(b.Vars))
	for k := range b.Vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Compatible reports whether b and o agree on every variable bound in
// both.
func (b *Binding) Compatible(o *Binding) bool {
	small, large := b, o
	if len(small.Vars) > len(large.Vars) {
		small, large = large, small
	}
	for k, v := range small.Vars {
		if ov, ok := large.Vars[k]; ok && !sameTerm(v, ov) {
			return false
		}
	}
	return true
}

// SharesVariable reports whether b and o both bind one of among. A nil
// among considers every variable.
func (b *Binding) SharesVariable(o *Binding, among []string) bool {
	if among == nil {
		for k := range b.Vars {
			if _, ok := o.Vars[k]; ok {
				return true
			}
		}
		return false
	}
	for _, k := range among {
		_, inB := b.Vars[k]
		_, inO := o.Vars[k]
		if inB && inO {
			return true
		}
	}
	return false
}

// Merge returns the union of b and o, or nil when they are incompatible.
func (b *Binding) Merge(o *Binding) *Binding {
	if !b.Compatible(o) {
		return nil
	}
	m := b.Clone()
	for k, v := range o.Vars {
		if _, ok := m.Vars[k]; ok {
			continue
		}
		m.Vars[k] = v
		if id, ok := o.ids[k]; ok {
			m.ids[k] = id
		}
	}
	return m
}

// Project keeps only the named variables.
func (b *Binding) Project(names []string) *Binding {
	p := &Binding{
		Vars: make(map[string]rdf.Term, len(names)),
		ids:  make(map[string]store.TermID, len(names)),
	}
	for _, n := range names {
		if v, ok := b.Vars[n]; ok {
			p.Vars[n] = v
			if id, ok := b.ids[n]; ok {
				p.ids[n] = id
			}
		}
	}
	return p
}

// Equal reports whether b and o bind the same variables to the same terms.
func (b *Binding) Equal(o *Binding) bool {
	if len(b.Vars) != len(o.Vars) {
		return false
	}
	return b.Compatible(o)
}

// Key is a string identifying the content of the binding; equal bindings
// have equal keys and distinct bindings distinct keys. names fixes the
// variables considered; nil means all.
func (b *Binding) Key(names []string) string {
	if names == nil {
		names = b.Names()
	}
	var sb strings.Builder
	for _, n := range names {
		v, ok := b.Vars[n]
		if !ok {
			continue
		}
		writePart(&sb, n)
		sb.WriteString(TermKey(v))
	}
	return sb.String()
}

func (b *Binding) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, n := range b.Names() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("?" + n + "=" + b.Vars[n].String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// TermKey renders a term unambiguously, distinguishing kinds whose String
// forms could coincide. Keys are self-delimiting, so concatenated keys
// never collide.
func TermKey(t rdf.Term) string {
	var sb strings.Builder
	writeTermKey(&sb, t)
	return sb.String()
}

func writeTermKey(sb *strings.Builder, t rdf.Term) {
	switch v := t.(type) {
	case *rdf.Literal:
		sb.WriteByte('L')
		writePart(sb, v.Value)
		writePart(sb, v.Language)
		writePart(sb, v.DatatypeIRI())
	case *rdf.TripleTerm:
		sb.WriteByte('T')
		writeTermKey(sb, v.Subject)
		writeTermKey(sb, v.Predicate)
		writeTermKey(sb, v.Object)
	case *rdf.NamedNode:
		sb.WriteByte('I')
		writePart(sb, v.IRI)
	case *rdf.BlankNode:
		sb.WriteByte('B')
		writePart(sb, v.ID)
	case nil:
		sb.WriteByte('U')
	default:
		sb.WriteByte('?')
		writePart(sb, t.String())
	}
}

// writePart writes s prefixed by its length.
func writePart(sb *strings.Builder, s string) {
	sb.WriteString(strconv.Itoa(len(s)))
	sb.WriteByte(':')
	sb.WriteString(s)
}

func sameTerm(a, b rdf.Term) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equals(b)
}
