package schema

import (
	"fmt"
	"regexp"
	"strings"

	"reconciliation-task-service/internal/predicate"
	"reconciliation-task-service/internal/timefmt"
	"reconciliation-task-service/pkg/errors"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/shopspring/decimal"
)

// RegexPatternPrefix marks a file pattern as a regular expression instead
// of a glob.
const RegexPatternPrefix = "re:"

var aggregationFuncs = map[string]bool{
	"sum":   true,
	"mean":  true,
	"first": true,
	"last":  true,
	"count": true,
	"max":   true,
	"min":   true,
}

// Validate normalizes the schema in place, then checks it. It fills
// defaults (empty cleaning rules, empty validations, pair scope, default
// date format and key comparator) and rejects schemas that are structurally
// unusable: missing version, no sides, an unresolvable key role, empty file
// patterns, unparsable condition expressions or a negative amount
// tolerance. All failures carry the schema_invalid code.
func (s *Schema) Validate() error {
	s.normalize()

	if s.Version == "" {
		return errors.SchemaError("version is required", nil)
	}

	if len(s.Sides) == 0 {
		return errors.SchemaError("at least one side must be declared", nil)
	}
	if len(s.Sides) > 2 {
		return errors.SchemaError(fmt.Sprintf("at most two sides may be declared, got %d", len(s.Sides)), nil)
	}

	if s.KeyRole == "" {
		return errors.SchemaError("key_role is required", nil)
	}

	for _, name := range s.SideOrder {
		if err := s.validateSide(name, s.Sides[name]); err != nil {
			return err
		}
	}

	if s.Tolerance.AmountDiffMax.IsNegative() {
		return errors.SchemaError(
			fmt.Sprintf("tolerance.amount_diff_max cannot be negative, got %s", s.Tolerance.AmountDiffMax), nil)
	}
	if _, err := timefmt.Layout(s.Tolerance.DateFormat); err != nil {
		return errors.SchemaError(fmt.Sprintf("tolerance.date_format: %v", err), err)
	}
	switch s.Tolerance.KeyComparator {
	case ComparatorExact, ComparatorTrim, ComparatorNumeric:
	default:
		return errors.SchemaError(
			fmt.Sprintf("tolerance.key_comparator must be exact, trim or numeric, got %q", s.Tolerance.KeyComparator), nil)
	}

	for side, rules := range s.CleaningRules {
		if _, ok := s.Sides[side]; !ok {
			return errors.SchemaError(fmt.Sprintf("cleaning_rules reference undeclared side %q", side), nil)
		}
		if err := s.validateCleaning(side, rules); err != nil {
			return err
		}
	}

	for i, rule := range s.Validations {
		if err := validateRule(i, rule); err != nil {
			return err
		}
	}

	return nil
}

// normalize fills defaults and repairs order slices for schemas built in
// code rather than decoded from JSON.
func (s *Schema) normalize() {
	if s.Sides == nil {
		s.Sides = map[string]*Side{}
	}
	if s.CleaningRules == nil {
		s.CleaningRules = map[string]*CleaningRules{}
	}
	if s.Validations == nil {
		s.Validations = []ValidationRule{}
	}

	s.SideOrder = s.orderedSides()
	for _, side := range s.Sides {
		if side == nil {
			continue
		}
		if side.FieldRoles == nil {
			side.FieldRoles = map[string][]string{}
		}
		side.RoleOrder = side.roleOrder()
	}

	for i := range s.Validations {
		if s.Validations[i].Scope == "" {
			s.Validations[i].Scope = ScopePair
		}
	}

	if s.Tolerance.DateFormat == "" {
		s.Tolerance.DateFormat = DefaultDateFormat
	}
	if s.Tolerance.KeyComparator == "" {
		s.Tolerance.KeyComparator = ComparatorNumeric
	}
}

func (s *Schema) validateSide(name string, side *Side) error {
	if side == nil {
		return errors.SchemaError(fmt.Sprintf("side %q is empty", name), nil)
	}

	if len(side.FilePatterns) == 0 {
		return errors.SchemaError(fmt.Sprintf("side %q declares no file_pattern", name), nil)
	}
	for _, pattern := range side.FilePatterns {
		if strings.TrimSpace(pattern) == "" {
			return errors.SchemaError(fmt.Sprintf("side %q declares an empty file_pattern", name), nil)
		}
		if err := validatePattern(pattern); err != nil {
			return errors.SchemaError(fmt.Sprintf("side %q: file_pattern %q: %v", name, pattern, err), err)
		}
	}

	if len(side.FieldRoles) == 0 {
		return errors.SchemaError(fmt.Sprintf("side %q declares no field_roles", name), nil)
	}
	aliases, ok := side.FieldRoles[s.KeyRole]
	if !ok {
		return errors.SchemaError(
			fmt.Sprintf("key_role %q is not declared in field_roles of side %q", s.KeyRole, name), nil)
	}
	if len(aliases) == 0 {
		return errors.SchemaError(
			fmt.Sprintf("key_role %q has no aliases on side %q", s.KeyRole, name), nil)
	}
	return nil
}

func validatePattern(pattern string) error {
	if rest, ok := strings.CutPrefix(pattern, RegexPatternPrefix); ok {
		_, err := regexp.Compile(rest)
		return err
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid glob pattern")
	}
	return nil
}

func (s *Schema) validateCleaning(side string, rules *CleaningRules) error {
	if rules == nil {
		return nil
	}
	if conv := rules.AmountConversion; conv != nil {
		for role, factor := range conv.MultiplyBy {
			if factor.Equal(decimal.Zero) {
				return errors.SchemaError(
					fmt.Sprintf("side %q: multiply_by factor for role %q is zero", side, role), nil)
			}
		}
	}
	agg := rules.AggregateDuplicates
	if agg == nil {
		return nil
	}
	if agg.GroupBy == "" {
		return errors.SchemaError(fmt.Sprintf("side %q: aggregate_duplicates requires group_by", side), nil)
	}
	for role, fn := range agg.Aggregations {
		if _, isJoin := AggregationJoinSeparator(fn); !isJoin && !aggregationFuncs[fn] {
			return errors.SchemaError(
				fmt.Sprintf("side %q: unknown aggregation %q for role %q", side, fn, role), nil)
		}
		if role == s.KeyRole && fn != "first" {
			return errors.SchemaError(
				fmt.Sprintf("side %q: key role %q may only aggregate with first, got %q", side, role, fn), nil)
		}
	}
	return nil
}

func validateRule(index int, rule ValidationRule) error {
	label := rule.Name
	if label == "" {
		label = fmt.Sprintf("#%d", index)
	}

	if rule.ConditionExpr == "" {
		return errors.SchemaError(fmt.Sprintf("validation %s: condition_expr is required", label), nil)
	}
	if _, err := predicate.Parse(rule.ConditionExpr); err != nil {
		return errors.SchemaError(fmt.Sprintf("validation %s: condition_expr: %v", label, err), err)
	}
	if rule.IssueType == "" {
		return errors.SchemaError(fmt.Sprintf("validation %s: issue_type is required", label), nil)
	}
	switch rule.Scope {
	case ScopePair, ScopeBusinessOnly, ScopeFinanceOnly:
	default:
		return errors.SchemaError(
			fmt.Sprintf("validation %s: scope must be pair, business_only or finance_only, got %q", label, rule.Scope), nil)
	}
	return nil
}
