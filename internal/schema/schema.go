// Package schema parses, validates and normalizes reconciliation schemas.
// A schema declares the sides being compared, how source columns map to
// canonical roles, the cleaning applied before matching, and the validation
// rules evaluated on matched candidates.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Key comparator names accepted in tolerance.key_comparator.
const (
	ComparatorExact   = "exact"
	ComparatorTrim    = "trim"
	ComparatorNumeric = "numeric"
)

// Validation rule scopes.
const (
	ScopePair         = "pair"
	ScopeBusinessOnly = "business_only"
	ScopeFinanceOnly  = "finance_only"
)

// IssueTypeSkipped short-circuits remaining rules on a candidate when a rule
// with this issue type fires.
const IssueTypeSkipped = "skipped"

// DefaultDateFormat is assumed when the tolerance section declares none.
const DefaultDateFormat = "%Y-%m-%d"

// Conventional side names. Declared sides bind to the business/finance
// namespaces of the predicate language in declaration order.
const (
	SideBusiness = "business"
	SideFinance  = "finance"
)

// Schema describes one reconciliation: sides, key role, tolerances,
// cleaning and validations. Schemas are immutable after Validate and safe
// to share across goroutines.
type Schema struct {
	Version       string
	KeyRole       string
	Sides         map[string]*Side
	SideOrder     []string
	Tolerance     Tolerance
	CleaningRules map[string]*CleaningRules
	Validations   []ValidationRule
}

// Side declares where one side's files come from and how its columns map
// to roles. RoleOrder preserves the field_roles declaration order, which
// drives deterministic column claiming.
type Side struct {
	FilePatterns []string
	FieldRoles   map[string][]string
	RoleOrder    []string
	Sheet        string
}

// Tolerance holds comparison slack shared by matching and validation.
type Tolerance struct {
	AmountDiffMax decimal.Decimal `json:"amount_diff_max"`
	DateFormat    string          `json:"date_format,omitempty"`
	KeyComparator string          `json:"key_comparator,omitempty"`
}

// ValidationRule is one declared rule, evaluated in declaration order.
type ValidationRule struct {
	Name           string `json:"name"`
	ConditionExpr  string `json:"condition_expr"`
	IssueType      string `json:"issue_type"`
	DetailTemplate string `json:"detail_template"`
	Scope          string `json:"scope,omitempty"`
}

// CleaningRules lists the cleaning operations for one side. Operations
// apply in a fixed order: amount conversion, whitespace trimming, date
// parsing, then duplicate aggregation.
type CleaningRules struct {
	AmountConversion    *AmountConversion `json:"amount_conversion,omitempty"`
	TrimWhitespace      stringList        `json:"trim_whitespace,omitempty"`
	DateParse           stringList        `json:"date_parse,omitempty"`
	AggregateDuplicates *AggregateRule    `json:"aggregate_duplicates,omitempty"`
}

// AmountConversion rescales numeric role fields.
type AmountConversion struct {
	DivideBy100 stringList                 `json:"divide_by_100,omitempty"`
	MultiplyBy  map[string]decimal.Decimal `json:"multiply_by,omitempty"`
}

// AggregateRule collapses duplicate key values into one row per key.
type AggregateRule struct {
	GroupBy      string            `json:"group_by"`
	Aggregations map[string]string `json:"aggregations,omitempty"`
}

// stringList accepts both a bare string and a list of strings, lifting the
// single form to a one-element list.
type stringList []string

func (sl *stringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*sl = stringList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*sl = list
	return nil
}

type sideJSON struct {
	FilePattern stringList            `json:"file_pattern"`
	FieldRoles  map[string]stringList `json:"field_roles"`
	Sheet       string                `json:"sheet,omitempty"`
}

// UnmarshalJSON decodes a side and records the declaration order of its
// field_roles keys.
func (sd *Side) UnmarshalJSON(data []byte) error {
	var raw sideJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	sd.FilePatterns = raw.FilePattern
	sd.Sheet = raw.Sheet
	sd.FieldRoles = make(map[string][]string, len(raw.FieldRoles))
	for role, aliases := range raw.FieldRoles {
		sd.FieldRoles[role] = aliases
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return err
	}
	if rolesRaw, ok := top["field_roles"]; ok {
		order, err := objectKeys(rolesRaw)
		if err != nil {
			return fmt.Errorf("field_roles: %w", err)
		}
		sd.RoleOrder = order
	}
	return nil
}

// MarshalJSON renders the side with field_roles in declaration order so a
// rendered schema revalidates to the same normalized form.
func (sd *Side) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(`{"file_pattern":`)
	patterns, err := json.Marshal([]string(sd.FilePatterns))
	if err != nil {
		return nil, err
	}
	b.Write(patterns)

	b.WriteString(`,"field_roles":{`)
	for i, role := range sd.roleOrder() {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(role)
		if err != nil {
			return nil, err
		}
		aliases, err := json.Marshal(sd.FieldRoles[role])
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(aliases)
	}
	b.WriteByte('}')

	if sd.Sheet != "" {
		sheet, err := json.Marshal(sd.Sheet)
		if err != nil {
			return nil, err
		}
		b.WriteString(`,"sheet":`)
		b.Write(sheet)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// roleOrder returns the declared role order, falling back to sorted map
// keys for sides constructed in code.
func (sd *Side) roleOrder() []string {
	if len(sd.RoleOrder) == len(sd.FieldRoles) {
		return sd.RoleOrder
	}
	roles := make([]string, 0, len(sd.FieldRoles))
	for role := range sd.FieldRoles {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

type schemaJSON struct {
	Version       string                    `json:"version"`
	Sides         map[string]*Side          `json:"sides"`
	KeyRole       string                    `json:"key_role"`
	Tolerance     *Tolerance                `json:"tolerance,omitempty"`
	CleaningRules map[string]*CleaningRules `json:"cleaning_rules,omitempty"`
	Validations   []ValidationRule          `json:"validations,omitempty"`
}

// UnmarshalJSON decodes a schema and records the declaration order of its
// sides. Side order decides pattern tie-breaks and which side binds to the
// business and finance namespaces of the predicate language.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw schemaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Version = raw.Version
	s.KeyRole = raw.KeyRole
	s.Sides = raw.Sides
	if raw.Tolerance != nil {
		s.Tolerance = *raw.Tolerance
	} else {
		s.Tolerance = Tolerance{}
	}
	s.CleaningRules = raw.CleaningRules
	s.Validations = raw.Validations

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return err
	}
	if sidesRaw, ok := top["sides"]; ok {
		order, err := objectKeys(sidesRaw)
		if err != nil {
			return fmt.Errorf("sides: %w", err)
		}
		s.SideOrder = order
	}
	return nil
}

// MarshalJSON renders the normalized schema with sides in declaration order.
func (s *Schema) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')

	version, err := json.Marshal(s.Version)
	if err != nil {
		return nil, err
	}
	b.WriteString(`"version":`)
	b.Write(version)

	b.WriteString(`,"sides":{`)
	for i, name := range s.orderedSides() {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		side, err := json.Marshal(s.Sides[name])
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(side)
	}
	b.WriteByte('}')

	keyRole, err := json.Marshal(s.KeyRole)
	if err != nil {
		return nil, err
	}
	b.WriteString(`,"key_role":`)
	b.Write(keyRole)

	tolerance, err := json.Marshal(s.Tolerance)
	if err != nil {
		return nil, err
	}
	b.WriteString(`,"tolerance":`)
	b.Write(tolerance)

	if len(s.CleaningRules) > 0 {
		cleaning, err := json.Marshal(s.CleaningRules)
		if err != nil {
			return nil, err
		}
		b.WriteString(`,"cleaning_rules":`)
		b.Write(cleaning)
	}

	validations, err := json.Marshal(s.Validations)
	if err != nil {
		return nil, err
	}
	b.WriteString(`,"validations":`)
	b.Write(validations)

	b.WriteByte('}')
	return b.Bytes(), nil
}

// orderedSides returns side names in declaration order, falling back to the
// business/finance convention and then sorted names for schemas built in
// code.
func (s *Schema) orderedSides() []string {
	if len(s.SideOrder) == len(s.Sides) {
		ok := true
		for _, name := range s.SideOrder {
			if _, exists := s.Sides[name]; !exists {
				ok = false
				break
			}
		}
		if ok {
			return s.SideOrder
		}
	}

	names := make([]string, 0, len(s.Sides))
	for name := range s.Sides {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		// business sorts before finance; anything else alphabetical
		if names[i] == SideBusiness {
			return true
		}
		if names[j] == SideBusiness {
			return false
		}
		return names[i] < names[j]
	})
	return names
}

// BusinessSide returns the side name bound to the business namespace: the
// first declared side.
func (s *Schema) BusinessSide() string {
	sides := s.orderedSides()
	if len(sides) > 0 {
		return sides[0]
	}
	return ""
}

// FinanceSide returns the side name bound to the finance namespace: the
// second declared side, or "" for single-sided schemas.
func (s *Schema) FinanceSide() string {
	sides := s.orderedSides()
	if len(sides) > 1 {
		return sides[1]
	}
	return ""
}

// CleaningFor returns the cleaning rules declared for a side, or nil.
func (s *Schema) CleaningFor(side string) *CleaningRules {
	if s.CleaningRules == nil {
		return nil
	}
	return s.CleaningRules[side]
}

// AggregationJoinSeparator extracts the separator from a join:<sep>
// aggregation name. The second return is false when the name is not a join.
func AggregationJoinSeparator(name string) (string, bool) {
	if !strings.HasPrefix(name, "join:") {
		return "", false
	}
	return name[len("join:"):], true
}

// objectKeys returns the top-level keys of a JSON object in source order.
func objectKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	t, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := t.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}

	var keys []string
	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := t.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key")
		}
		keys = append(keys, key)
		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func skipValue(dec *json.Decoder) error {
	t, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := t.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		t, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := t.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
