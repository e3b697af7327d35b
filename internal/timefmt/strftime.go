// Package timefmt converts strftime-style date format strings, as used in
// reconciliation schemas, into Go reference layouts.
package timefmt

import (
	"fmt"
	"strings"
	"time"
)

// directives maps strftime conversion specifiers to Go layout elements.
var directives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'e': "_2",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'f': "000000",
	'p': "PM",
	'a': "Mon",
	'A': "Monday",
	'b': "Jan",
	'B': "January",
	'j': "002",
	'z': "-0700",
	'Z': "MST",
	'%': "%",
}

// Layout converts a strftime-style format string to a Go time layout.
// Unsupported directives are rejected so schema validation can surface
// them instead of silently misparsing dates.
func Layout(format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(format) {
			return "", fmt.Errorf("trailing %% in date format %q", format)
		}
		elem, ok := directives[format[i]]
		if !ok {
			return "", fmt.Errorf("unsupported directive %%%c in date format %q", format[i], format)
		}
		b.WriteString(elem)
	}
	return b.String(), nil
}

// Parse parses value according to a strftime-style format.
func Parse(value, format string) (time.Time, error) {
	layout, err := Layout(format)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(layout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q with format %q: %w", value, format, err)
	}
	return t, nil
}

// Format renders t according to a strftime-style format.
func Format(t time.Time, format string) (string, error) {
	layout, err := Layout(format)
	if err != nil {
		return "", err
	}
	return t.Format(layout), nil
}
