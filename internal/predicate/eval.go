package predicate

import (
	"fmt"
	"regexp"
	"strings"

	"reconciliation-task-service/internal/models"
	"reconciliation-task-service/internal/timefmt"

	"github.com/shopspring/decimal"
)

// Env supplies the rows visible to an expression during evaluation. A nil
// row resolves every reference on that side to null, which is how
// business_only and finance_only scopes evaluate.
type Env struct {
	Business models.Row
	Finance  models.Row

	// AmountTolerance widens numeric equality: two numbers whose absolute
	// difference is within the tolerance compare equal under == and !=.
	AmountTolerance decimal.Decimal
}

// value is the evaluator's runtime domain: a cell value or a boolean
// produced by comparisons and logic operators.
type value struct {
	cell   models.Value
	b      bool
	isBool bool
}

func cellVal(v models.Value) value { return value{cell: v} }
func boolVal(b bool) value         { return value{isBool: true, b: b} }
func nullVal() value               { return value{cell: models.Null()} }

func (v value) isNull() bool {
	return !v.isBool && v.cell.IsNull()
}

// truthy converts a value to the boolean used by logic operators and the
// top-level rule decision: booleans as-is, null false, numbers nonzero,
// strings nonempty, dates true.
func (v value) truthy() bool {
	if v.isBool {
		return v.b
	}
	switch v.cell.Kind() {
	case models.KindString:
		return v.cell.String() != ""
	case models.KindNumber:
		d, _ := v.cell.Decimal()
		return !d.IsZero()
	case models.KindDate:
		return true
	default:
		return false
	}
}

func (v value) asDecimal() (decimal.Decimal, bool) {
	if v.isBool {
		return decimal.Zero, false
	}
	return v.cell.AsDecimal()
}

// str renders the value the way detail templates do.
func (v value) str() string {
	if v.isBool {
		if v.b {
			return "true"
		}
		return "false"
	}
	return v.cell.String()
}

type node interface {
	eval(env *Env) (value, error)
}

type litNode struct {
	val value
}

func (n *litNode) eval(*Env) (value, error) {
	return n.val, nil
}

type refNode struct {
	side string
	name string
}

func (n *refNode) eval(env *Env) (value, error) {
	var row models.Row
	switch n.side {
	case sideBusiness:
		row = env.Business
	case sideFinance:
		row = env.Finance
	}
	return cellVal(row.Get(n.name)), nil
}

type unaryNode struct {
	op      string
	operand node
}

func (n *unaryNode) eval(env *Env) (value, error) {
	v, err := n.operand.eval(env)
	if err != nil {
		return value{}, err
	}
	switch n.op {
	case "!":
		return boolVal(!v.truthy()), nil
	case "-":
		d, ok := v.asDecimal()
		if !ok {
			return nullVal(), nil
		}
		return cellVal(models.NewNumber(d.Neg())), nil
	}
	return value{}, fmt.Errorf("unknown unary operator %q", n.op)
}

type binaryNode struct {
	op    string
	left  node
	right node

	// re caches the compiled pattern when the right side of matches is a
	// string literal, so invalid literal patterns fail at parse time.
	re *regexp.Regexp
}

func (n *binaryNode) eval(env *Env) (value, error) {
	switch n.op {
	case "||":
		l, err := n.left.eval(env)
		if err != nil {
			return value{}, err
		}
		if l.truthy() {
			return boolVal(true), nil
		}
		r, err := n.right.eval(env)
		if err != nil {
			return value{}, err
		}
		return boolVal(r.truthy()), nil

	case "&&":
		l, err := n.left.eval(env)
		if err != nil {
			return value{}, err
		}
		if !l.truthy() {
			return boolVal(false), nil
		}
		r, err := n.right.eval(env)
		if err != nil {
			return value{}, err
		}
		return boolVal(r.truthy()), nil
	}

	l, err := n.left.eval(env)
	if err != nil {
		return value{}, err
	}
	r, err := n.right.eval(env)
	if err != nil {
		return value{}, err
	}

	switch n.op {
	case "==", "!=", "<", "<=", ">", ">=":
		return compare(n.op, l, r, env.AmountTolerance), nil
	case "contains":
		if l.isNull() || r.isNull() {
			return boolVal(false), nil
		}
		return boolVal(strings.Contains(l.str(), r.str())), nil
	case "matches":
		return n.evalMatches(l, r)
	case "+", "-", "*", "/":
		return arith(n.op, l, r), nil
	}
	return value{}, fmt.Errorf("unknown operator %q", n.op)
}

func (n *binaryNode) evalMatches(l, r value) (value, error) {
	if l.isNull() || r.isNull() {
		return boolVal(false), nil
	}
	re := n.re
	if re == nil {
		var err error
		re, err = regexp.Compile(r.str())
		if err != nil {
			return value{}, fmt.Errorf("invalid regex %q: %v", r.str(), err)
		}
	}
	return boolVal(re.MatchString(l.str())), nil
}

// compare implements the comparison operators. Null short-circuits: any
// null operand yields false, except both-null equality which is true.
// Numeric comparison applies whenever both operands coerce to decimals,
// with equality widened by the amount tolerance.
func compare(op string, l, r value, tol decimal.Decimal) value {
	if l.isBool || r.isBool {
		if l.isBool && r.isBool {
			switch op {
			case "==":
				return boolVal(l.b == r.b)
			case "!=":
				return boolVal(l.b != r.b)
			}
		}
		return boolVal(false)
	}

	lc, rc := l.cell, r.cell
	if lc.IsNull() || rc.IsNull() {
		return boolVal(op == "==" && lc.IsNull() && rc.IsNull())
	}

	if ld, ok := lc.AsDecimal(); ok {
		if rd, ok := rc.AsDecimal(); ok {
			return boolVal(compareDecimals(op, ld, rd, tol))
		}
	}

	if lc.Kind() == models.KindString && rc.Kind() == models.KindString {
		switch op {
		case "==":
			return boolVal(lc.String() == rc.String())
		case "!=":
			return boolVal(lc.String() != rc.String())
		default:
			return boolVal(compareOrdering(op, strings.Compare(lc.String(), rc.String())))
		}
	}

	if lc.Kind() == models.KindDate && rc.Kind() == models.KindDate {
		lt, _ := lc.Date()
		rt, _ := rc.Date()
		switch op {
		case "==":
			return boolVal(lt.Equal(rt))
		case "!=":
			return boolVal(!lt.Equal(rt))
		default:
			switch {
			case lt.Before(rt):
				return boolVal(compareOrdering(op, -1))
			case lt.After(rt):
				return boolVal(compareOrdering(op, 1))
			default:
				return boolVal(compareOrdering(op, 0))
			}
		}
	}

	// Mixed kinds that do not coerce numerically are never equal.
	return boolVal(op == "!=")
}

func compareDecimals(op string, l, r, tol decimal.Decimal) bool {
	switch op {
	case "==":
		return models.CompareAmountsWithTolerance(l, r, tol)
	case "!=":
		return !models.CompareAmountsWithTolerance(l, r, tol)
	default:
		return compareOrdering(op, l.Cmp(r))
	}
}

func compareOrdering(op string, cmp int) bool {
	switch op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}

// arith implements + - * /. Operands that do not coerce to decimals
// propagate null, as does division by zero.
func arith(op string, l, r value) value {
	ld, lok := l.asDecimal()
	rd, rok := r.asDecimal()
	if !lok || !rok {
		return nullVal()
	}
	switch op {
	case "+":
		return cellVal(models.NewNumber(ld.Add(rd)))
	case "-":
		return cellVal(models.NewNumber(ld.Sub(rd)))
	case "*":
		return cellVal(models.NewNumber(ld.Mul(rd)))
	case "/":
		if rd.IsZero() {
			return nullVal()
		}
		return cellVal(models.NewNumber(ld.Div(rd)))
	}
	return nullVal()
}

type callNode struct {
	fn   string
	args []node
}

func (n *callNode) eval(env *Env) (value, error) {
	args := make([]value, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(env)
		if err != nil {
			return value{}, err
		}
		args[i] = v
	}

	switch n.fn {
	case "abs":
		d, ok := args[0].asDecimal()
		if !ok {
			return nullVal(), nil
		}
		return cellVal(models.NewNumber(d.Abs())), nil

	case "num":
		d, ok := args[0].asDecimal()
		if !ok {
			return nullVal(), nil
		}
		return cellVal(models.NewNumber(d)), nil

	case "date":
		return evalDate(args[0], args[1])
	}
	return value{}, fmt.Errorf("unknown function %q", n.fn)
}

// evalDate parses a string value into a date using a strftime-style format.
// Values already parsed to dates pass through; unparsable values degrade to
// null. A malformed format string is an evaluation error.
func evalDate(v, format value) (value, error) {
	if v.isBool || format.isBool {
		return nullVal(), nil
	}
	if v.cell.Kind() == models.KindDate {
		return v, nil
	}
	if v.isNull() || format.isNull() {
		return nullVal(), nil
	}
	layout := format.str()
	if _, err := timefmt.Layout(layout); err != nil {
		return value{}, err
	}
	raw := v.str()
	t, err := timefmt.Parse(raw, layout)
	if err != nil {
		return nullVal(), nil
	}
	return cellVal(models.NewDate(t, strings.TrimSpace(raw))), nil
}
