package predicate

import (
	"fmt"
	"regexp"

	"reconciliation-task-service/internal/models"

	"github.com/shopspring/decimal"
)

const (
	sideBusiness = "business"
	sideFinance  = "finance"
)

var funcArity = map[string]int{
	"abs":  1,
	"num":  1,
	"date": 2,
}

// parser is a hand-written recursive descent parser. Precedence, loosest
// first: ||, &&, comparison (non-associative), + -, * /, unary ! -.
type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) expectOp(text string) error {
	t := p.next()
	if t.kind != tokenOp || t.text != text {
		return fmt.Errorf("expected %q, found %s at position %d", text, t, t.pos)
	}
	return nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenOp && p.peek().text == "||" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "||", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenOp && p.peek().text == "&&" {
		p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "&&", left: left, right: right}
	}
	return left, nil
}

func comparisonOp(t token) (string, bool) {
	switch t.kind {
	case tokenOp:
		switch t.text {
		case "==", "!=", "<", "<=", ">", ">=":
			return t.text, true
		}
	case tokenIdent:
		switch t.text {
		case "contains", "matches":
			return t.text, true
		}
	}
	return "", false
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	op, ok := comparisonOp(p.peek())
	if !ok {
		return left, nil
	}
	p.next()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokenEOF {
		if _, chained := comparisonOp(t); chained {
			return nil, fmt.Errorf("comparison operators do not chain, found %s at position %d", t, t.pos)
		}
	}

	n := &binaryNode{op: op, left: left, right: right}
	if op == "matches" {
		if lit, isLit := right.(*litNode); isLit && !lit.val.isBool && lit.val.cell.Kind() == models.KindString {
			re, err := regexp.Compile(lit.val.cell.String())
			if err != nil {
				return nil, fmt.Errorf("invalid regex %q: %v", lit.val.cell.String(), err)
			}
			n.re = re
		}
	}
	return n, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenOp && (p.peek().text == "+" || p.peek().text == "-") {
		op := p.next().text
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenOp && (p.peek().text == "*" || p.peek().text == "/") {
		op := p.next().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if t := p.peek(); t.kind == tokenOp && (t.text == "!" || t.text == "-") {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: t.text, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokenNumber:
		d, err := decimal.NewFromString(t.text)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", t.text, t.pos)
		}
		return &litNode{val: cellVal(models.NewNumber(d))}, nil

	case tokenString:
		return &litNode{val: cellVal(models.NewString(t.text))}, nil

	case tokenIdent:
		switch t.text {
		case "true":
			return &litNode{val: boolVal(true)}, nil
		case "false":
			return &litNode{val: boolVal(false)}, nil
		case "null":
			return &litNode{val: nullVal()}, nil
		case sideBusiness, sideFinance:
			return p.parseRef(t.text)
		}
		if _, ok := funcArity[t.text]; ok {
			return p.parseCall(t.text)
		}
		return nil, fmt.Errorf("unknown identifier %q at position %d", t.text, t.pos)

	case tokenOp:
		if t.text == "(" {
			inner, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
	}
	return nil, fmt.Errorf("unexpected %s at position %d", t, t.pos)
}

// parseRef parses business.<role>, finance.<role> or side["header"].
func (p *parser) parseRef(side string) (node, error) {
	t := p.next()
	if t.kind != tokenOp || (t.text != "." && t.text != "[") {
		return nil, fmt.Errorf("expected '.' or '[' after %q, found %s at position %d", side, t, t.pos)
	}

	if t.text == "." {
		name := p.next()
		if name.kind != tokenIdent {
			return nil, fmt.Errorf("expected field name after %q., found %s at position %d", side, name, name.pos)
		}
		return &refNode{side: side, name: name.text}, nil
	}

	name := p.next()
	if name.kind != tokenString {
		return nil, fmt.Errorf("expected quoted header after %q[, found %s at position %d", side, name, name.pos)
	}
	if err := p.expectOp("]"); err != nil {
		return nil, err
	}
	return &refNode{side: side, name: name.text}, nil
}

func (p *parser) parseCall(fn string) (node, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	var args []node
	if !(p.peek().kind == tokenOp && p.peek().text == ")") {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind == tokenOp && p.peek().text == "," {
				p.next()
				continue
			}
			break
		}
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	if want := funcArity[fn]; len(args) != want {
		return nil, fmt.Errorf("%s expects %d argument(s), got %d", fn, want, len(args))
	}
	return &callNode{fn: fn, args: args}, nil
}
