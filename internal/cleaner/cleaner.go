package cleaner

import (
	"sort"
	"strings"

	"reconciliation-task-service/internal/models"
	"reconciliation-task-service/internal/schema"
	"reconciliation-task-service/internal/timefmt"
	"reconciliation-task-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// Clean applies a side's cleaning directives to its canonical rows. The
// operations run in a fixed order: amount conversion (divide_by_100, then
// multiply_by), whitespace trimming, date parsing, duplicate aggregation.
// Values that fail a conversion degrade to null with a warning rather than
// failing the task. After all operations, rows whose key role is null or
// empty are discarded, one warning each.
func Clean(rows []models.Row, rules *schema.CleaningRules, tol schema.Tolerance, keyRole, sideName string, warnings *errors.WarningCollector) []models.Row {
	if rules != nil {
		if conv := rules.AmountConversion; conv != nil {
			for _, role := range conv.DivideBy100 {
				convertAmounts(rows, role, sideName, warnings, func(d decimal.Decimal) decimal.Decimal {
					return d.Shift(-2)
				})
			}
			for _, role := range sortedRoles(conv.MultiplyBy) {
				factor := conv.MultiplyBy[role]
				convertAmounts(rows, role, sideName, warnings, func(d decimal.Decimal) decimal.Decimal {
					return d.Mul(factor)
				})
			}
		}
		for _, role := range rules.TrimWhitespace {
			trimWhitespace(rows, role)
		}
		for _, role := range rules.DateParse {
			parseDates(rows, role, tol.DateFormat, sideName, warnings)
		}
		if agg := rules.AggregateDuplicates; agg != nil {
			rows = aggregateDuplicates(rows, agg)
		}
	}

	return dropKeylessRows(rows, keyRole, sideName, warnings)
}

// convertAmounts rewrites a numeric role field in place. String cells are
// parsed first; anything that does not parse as a decimal becomes null with
// a cleaning warning.
func convertAmounts(rows []models.Row, role, sideName string, warnings *errors.WarningCollector, fn func(decimal.Decimal) decimal.Decimal) {
	for i, row := range rows {
		v := row.Get(role)
		if v.IsNull() {
			continue
		}
		d, ok := v.AsDecimal()
		if !ok {
			warnings.Addf(errors.CategoryReconciliation, errors.CodeCleaningWarning,
				"side %s row %d: role %s value %q is not a number", sideName, i+1, role, v.String())
			row[role] = models.Null()
			continue
		}
		row[role] = models.NewNumber(fn(d))
	}
}

// trimWhitespace trims string cells of the role. Already-coerced numbers
// and dates carry no whitespace and pass through.
func trimWhitespace(rows []models.Row, role string) {
	for _, row := range rows {
		v := row.Get(role)
		if v.Kind() != models.KindString {
			continue
		}
		row[role] = models.NewString(strings.TrimSpace(v.String()))
	}
}

// parseDates coerces a role to dates using the schema's date format. The
// canonical rendering captured alongside the instant is the schema-format
// spelling, so detail templates show dates consistently.
func parseDates(rows []models.Row, role, format, sideName string, warnings *errors.WarningCollector) {
	for i, row := range rows {
		v := row.Get(role)
		if v.IsNull() || v.Kind() == models.KindDate {
			continue
		}
		t, err := timefmt.Parse(v.String(), format)
		if err != nil {
			warnings.Addf(errors.CategoryReconciliation, errors.CodeCleaningWarning,
				"side %s row %d: role %s value %q does not parse with date format %s",
				sideName, i+1, role, v.String(), format)
			row[role] = models.Null()
			continue
		}
		rendered, err := timefmt.Format(t, format)
		if err != nil {
			rendered = strings.TrimSpace(v.String())
		}
		row[role] = models.NewDate(t, rendered)
	}
}

// aggregateDuplicates collapses the rows to one per distinct group-by value,
// preserving first-seen group order. Roles without a declared aggregation
// default to first.
func aggregateDuplicates(rows []models.Row, rule *schema.AggregateRule) []models.Row {
	groups := make(map[string][]models.Row)
	var order []string
	for _, row := range rows {
		key := row.Get(rule.GroupBy).String()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	out := make([]models.Row, 0, len(order))
	for _, key := range order {
		out = append(out, aggregateGroup(groups[key], rule))
	}
	return out
}

func aggregateGroup(group []models.Row, rule *schema.AggregateRule) models.Row {
	roles := groupRoles(group)
	result := make(models.Row, len(roles))
	for _, role := range roles {
		fn := rule.Aggregations[role]
		if fn == "" {
			fn = "first"
		}
		result[role] = aggregateValues(collectValues(group, role), fn)
	}
	return result
}

// groupRoles returns the union of role keys across the group, ordered by
// first appearance so aggregation output is deterministic.
func groupRoles(group []models.Row) []string {
	seen := make(map[string]bool)
	var roles []string
	for _, row := range group {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				roles = append(roles, k)
			}
		}
	}
	return roles
}

func collectValues(group []models.Row, role string) []models.Value {
	values := make([]models.Value, len(group))
	for i, row := range group {
		values[i] = row.Get(role)
	}
	return values
}

func aggregateValues(values []models.Value, fn string) models.Value {
	if sep, ok := schema.AggregationJoinSeparator(fn); ok {
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = v.String()
		}
		return models.NewString(strings.Join(parts, sep))
	}

	switch fn {
	case "first":
		return values[0]
	case "last":
		return values[len(values)-1]
	case "count":
		return models.NewNumber(decimal.NewFromInt(int64(len(values))))
	case "sum":
		sum, ok := sumValues(values)
		if !ok {
			return models.Null()
		}
		return models.NewNumber(sum)
	case "mean":
		sum, ok := sumValues(values)
		if !ok {
			return models.Null()
		}
		n := countNumeric(values)
		if n == 0 {
			return models.Null()
		}
		return models.NewNumber(trimZeros(sum.Div(decimal.NewFromInt(int64(n)))))
	case "max":
		return extremum(values, func(cmp int) bool { return cmp > 0 })
	case "min":
		return extremum(values, func(cmp int) bool { return cmp < 0 })
	}
	return values[0]
}

// sumValues adds every value that coerces to a decimal. It reports false
// when no value coerces at all, which aggregates to null.
func sumValues(values []models.Value) (decimal.Decimal, bool) {
	sum := decimal.Zero
	any := false
	for _, v := range values {
		d, ok := v.AsDecimal()
		if !ok {
			continue
		}
		sum = sum.Add(d)
		any = true
	}
	return sum, any
}

func countNumeric(values []models.Value) int {
	n := 0
	for _, v := range values {
		if _, ok := v.AsDecimal(); ok {
			n++
		}
	}
	return n
}

// extremum compares numerically when every non-null member coerces to a
// decimal, lexicographically otherwise. Null members are skipped.
func extremum(values []models.Value, wins func(cmp int) bool) models.Value {
	numeric := true
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		if _, ok := v.AsDecimal(); !ok {
			numeric = false
			break
		}
	}

	var best models.Value
	bestSet := false
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		if !bestSet {
			best, bestSet = v, true
			continue
		}
		var cmp int
		if numeric {
			vd, _ := v.AsDecimal()
			bd, _ := best.AsDecimal()
			cmp = vd.Cmp(bd)
		} else {
			cmp = strings.Compare(v.String(), best.String())
		}
		if wins(cmp) {
			best = v
		}
	}
	if !bestSet {
		return models.Null()
	}
	return best
}

// dropKeylessRows removes rows without a usable key value and records a
// warning for each, so every surviving row can participate in matching.
func dropKeylessRows(rows []models.Row, keyRole, sideName string, warnings *errors.WarningCollector) []models.Row {
	out := rows[:0]
	for i, row := range rows {
		key := row.Get(keyRole)
		if key.IsNull() || strings.TrimSpace(key.String()) == "" {
			warnings.Addf(errors.CategoryReconciliation, errors.CodeCleaningWarning,
				"side %s row %d discarded: key role %s has no value", sideName, i+1, keyRole)
			continue
		}
		out = append(out, row)
	}
	return out
}

// trimZeros strips insignificant trailing decimal zeros so mean results
// render minimally.
func trimZeros(d decimal.Decimal) decimal.Decimal {
	s := d.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	out, err := decimal.NewFromString(s)
	if err != nil {
		return d
	}
	return out
}

func sortedRoles(m map[string]decimal.Decimal) []string {
	roles := make([]string, 0, len(m))
	for role := range m {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
