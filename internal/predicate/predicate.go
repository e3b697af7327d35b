// Package predicate implements the condition language used by validation
// rules. Expressions reference cells as business.<role>, finance.<role> or
// side["header"], combine them with comparison, arithmetic and logic
// operators, and call abs, num and date. There is no assignment, no loops
// and no host access; a parsed expression only ever reads the two rows it
// is given.
//
// Null propagates strictly: arithmetic over null yields null, comparisons
// against null are false (except both-null equality), and a null result is
// falsy at the top level.
package predicate

import (
	"fmt"
)

// Expr is a parsed, immutable predicate expression. It is safe for
// concurrent evaluation against different environments.
type Expr struct {
	root node
	src  string
}

// Parse compiles an expression. Literal regex patterns on the right side of
// matches are compiled here, so schema validation rejects them early.
func Parse(src string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokenEOF {
		return nil, fmt.Errorf("unexpected %s at position %d", t, t.pos)
	}
	return &Expr{root: root, src: src}, nil
}

// Eval evaluates the expression against an environment and reports whether
// the result is truthy. Errors indicate a malformed dynamic regex or date
// format, not bad data; bad data degrades to null and evaluates false.
func (e *Expr) Eval(env *Env) (bool, error) {
	v, err := e.root.eval(env)
	if err != nil {
		return false, err
	}
	return v.truthy(), nil
}

// String returns the original expression source.
func (e *Expr) String() string {
	return e.src
}
