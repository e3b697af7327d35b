package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValueKind identifies the scalar type carried by a Value.
type ValueKind int

const (
	// KindNull marks an absent or degraded cell value
	KindNull ValueKind = iota
	// KindString marks an untouched source cell
	KindString
	// KindNumber marks a cell coerced to a decimal by cleaning
	KindNumber
	// KindDate marks a cell parsed to a date by cleaning
	KindDate
)

// String returns the kind name for logging
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a canonical cell value: null, string, number or date. Cells leave
// the file reader as strings; cleaning operations promote them to numbers or
// dates, or degrade them to null with a warning. The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	num  decimal.Decimal
	date time.Time
}

// Null returns the null value
func Null() Value {
	return Value{kind: KindNull}
}

// NewString creates a string value
func NewString(s string) Value {
	return Value{kind: KindString, str: s}
}

// NewNumber creates a numeric value
func NewNumber(d decimal.Decimal) Value {
	return Value{kind: KindNumber, num: d}
}

// NewDate creates a date value. The rendered form is captured alongside the
// instant so issue detail templates show the date the way the schema's
// date_format spells it.
func NewDate(t time.Time, rendered string) Value {
	return Value{kind: KindDate, date: t, str: rendered}
}

// Kind returns the value's kind
func (v Value) Kind() ValueKind {
	return v.kind
}

// IsNull returns true for the null value
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// String returns the stringified cell value: the raw string, the
// scale-preserving decimal rendering, the captured date rendering, or ""
// for null. This is the form used by detail templates and issue values.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return FormatDecimal(v.num)
	case KindDate:
		return v.str
	default:
		return ""
	}
}

// Decimal returns the numeric payload of a number value.
func (v Value) Decimal() (decimal.Decimal, bool) {
	if v.kind != KindNumber {
		return decimal.Zero, false
	}
	return v.num, true
}

// Date returns the date payload of a date value.
func (v Value) Date() (time.Time, bool) {
	if v.kind != KindDate {
		return time.Time{}, false
	}
	return v.date, true
}

// AsDecimal coerces the value to a decimal: numbers directly, strings via
// ParseDecimalFromString. Dates and null do not coerce.
func (v Value) AsDecimal() (decimal.Decimal, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		d, err := ParseDecimalFromString(v.str)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

// Equal compares two values: same kind and equal payload. Numbers compare
// by numeric value regardless of scale; dates by instant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num.Equal(o.num)
	case KindDate:
		return v.date.Equal(o.date)
	default:
		return false
	}
}

// Row is a canonical record: role name (or preserved source header) → value.
type Row map[string]Value

// Get returns the value for the given role, null when the role is absent.
func (r Row) Get(role string) Value {
	if r == nil {
		return Null()
	}
	if v, ok := r[role]; ok {
		return v
	}
	return Null()
}

// Has reports whether the row carries the given role at all.
func (r Row) Has(role string) bool {
	_, ok := r[role]
	return ok
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FormatDecimal renders a decimal preserving its scale: a value parsed from
// "100.00" renders back as "100.00", and 9800 shifted down two digits by a
// divide_by_100 rule renders as "98.00". Scale-free values render minimally.
func FormatDecimal(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	// Remove common currency symbols and thousand separators
	for _, symbol := range []string{"$", "¥", "￥", "€", "£", ","} {
		s = strings.ReplaceAll(s, symbol, "")
	}
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// CompareAmountsWithTolerance compares two decimal amounts with a tolerance
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	diff := a.Sub(b).Abs()
	return diff.LessThanOrEqual(tolerance)
}
