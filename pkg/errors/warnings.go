package errors

import (
	"fmt"
	"strings"
	"sync"
)

// WarningCollector accumulates non-fatal errors raised while a task is
// processed (cleaning degradations, duplicate keys, rule evaluation
// failures). Warnings keep their emission order; the collector caps the
// number retained so a pathological input cannot grow the result artifact
// without bound.
type WarningCollector struct {
	mu        sync.Mutex
	warnings  []*ReconcilerError
	maxRecord int
	dropped   int
}

// DefaultMaxWarnings is the retention cap used when no explicit cap is given.
const DefaultMaxWarnings = 1000

// NewWarningCollector creates a collector retaining at most max warnings.
// max <= 0 selects DefaultMaxWarnings.
func NewWarningCollector(max int) *WarningCollector {
	if max <= 0 {
		max = DefaultMaxWarnings
	}
	return &WarningCollector{
		warnings:  make([]*ReconcilerError, 0),
		maxRecord: max,
	}
}

// Add records a warning. Nil warnings are ignored.
func (c *WarningCollector) Add(warning *ReconcilerError) {
	if warning == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.warnings) >= c.maxRecord {
		c.dropped++
		return
	}
	c.warnings = append(c.warnings, warning)
}

// Addf records a warning built from a category, code and message format.
func (c *WarningCollector) Addf(category ErrorCategory, code ErrorCode, format string, args ...interface{}) {
	c.Add(New(category, code, fmt.Sprintf(format, args...)))
}

// HasWarnings returns true if any warnings have been collected.
func (c *WarningCollector) HasWarnings() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.warnings) > 0
}

// Warnings returns the collected warnings in emission order.
func (c *WarningCollector) Warnings() []*ReconcilerError {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*ReconcilerError, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// Messages renders the collected warnings as "code: message" strings, the
// form persisted into the result artifact's metadata.
func (c *WarningCollector) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.warnings)+1)
	for _, w := range c.warnings {
		out = append(out, fmt.Sprintf("%s: %s", w.Code, w.Message))
	}
	if c.dropped > 0 {
		out = append(out, fmt.Sprintf("%d additional warnings dropped", c.dropped))
	}
	return out
}

// CountByCode returns how many collected warnings carry the given code.
func (c *WarningCollector) CountByCode(code ErrorCode) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, w := range c.warnings {
		if w.Code == code {
			n++
		}
	}
	return n
}

// String renders a one-line summary for logging.
func (c *WarningCollector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.warnings) == 0 {
		return "no warnings"
	}

	counts := make(map[ErrorCode]int)
	order := make([]ErrorCode, 0)
	for _, w := range c.warnings {
		if counts[w.Code] == 0 {
			order = append(order, w.Code)
		}
		counts[w.Code]++
	}

	parts := make([]string, 0, len(order))
	for _, code := range order {
		parts = append(parts, fmt.Sprintf("%s: %d", code, counts[code]))
	}
	return fmt.Sprintf("%d warnings (%s)", len(c.warnings), strings.Join(parts, ", "))
}
