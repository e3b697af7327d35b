package validation

import (
	"regexp"
	"strings"

	"reconciliation-task-service/internal/models"
)

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// RenderTemplate interpolates a detail template against the candidate's
// rows. Placeholders take three forms: {business.role}, {finance.role} and
// bare {role}. A bare role resolves against the business row first and
// falls back to the finance row, which makes it usable for pairs and for
// single-sided candidates alike. Unknown placeholders stay literal; null
// cells render empty.
func RenderTemplate(template string, business, finance models.Row) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]

		if role, ok := strings.CutPrefix(name, "business."); ok {
			if business != nil && business.Has(role) {
				return business.Get(role).String()
			}
			return match
		}
		if role, ok := strings.CutPrefix(name, "finance."); ok {
			if finance != nil && finance.Has(role) {
				return finance.Get(role).String()
			}
			return match
		}

		if business != nil && business.Has(name) {
			return business.Get(name).String()
		}
		if finance != nil && finance.Has(name) {
			return finance.Get(name).String()
		}
		return match
	})
}
