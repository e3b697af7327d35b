package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"reconciliation-task-service/pkg/errors"

	"github.com/shopspring/decimal"
)

const fullSchema = `{
  "version": "1.0",
  "sides": {
    "business": {
      "file_pattern": ["*business*.csv", "re:^biz_\\d+\\.csv$"],
      "field_roles": {
        "order_id": ["订单号", "order_no"],
        "amount": ["金额", "amount"],
        "date": "日期"
      }
    },
    "finance": {
      "file_pattern": "*finance*",
      "field_roles": {
        "order_id": ["单号"],
        "amount": ["到账金额"],
        "date": ["到账日期"]
      },
      "sheet": "Sheet1"
    }
  },
  "key_role": "order_id",
  "tolerance": {
    "amount_diff_max": 0.01,
    "date_format": "%Y-%m-%d"
  },
  "cleaning_rules": {
    "finance": {
      "amount_conversion": {"divide_by_100": ["amount"]},
      "trim_whitespace": "order_id",
      "date_parse": ["date"],
      "aggregate_duplicates": {
        "group_by": "order_id",
        "aggregations": {"amount": "sum", "date": "first"}
      }
    }
  },
  "validations": [
    {
      "name": "amt",
      "condition_expr": "abs(num(business.amount) - num(finance.amount)) > 1.0",
      "issue_type": "amount_mismatch",
      "detail_template": "biz={business.amount} fin={finance.amount}"
    }
  ]
}`

func loadFull(t *testing.T) *Schema {
	t.Helper()
	s, err := LoadBytes([]byte(fullSchema))
	if err != nil {
		t.Fatalf("LoadBytes failed: %v", err)
	}
	return s
}

func TestLoadBytes_FullSchema(t *testing.T) {
	s := loadFull(t)

	if s.Version != "1.0" {
		t.Errorf("Version = %q, want 1.0", s.Version)
	}
	if s.KeyRole != "order_id" {
		t.Errorf("KeyRole = %q, want order_id", s.KeyRole)
	}
	if !reflect.DeepEqual(s.SideOrder, []string{"business", "finance"}) {
		t.Errorf("SideOrder = %v", s.SideOrder)
	}

	biz := s.Sides["business"]
	if biz == nil {
		t.Fatal("business side missing")
	}
	if !reflect.DeepEqual(biz.RoleOrder, []string{"order_id", "amount", "date"}) {
		t.Errorf("business RoleOrder = %v", biz.RoleOrder)
	}
	// single-string alias lifted to a list
	if !reflect.DeepEqual(biz.FieldRoles["date"], []string{"日期"}) {
		t.Errorf("date aliases = %v, want [日期]", biz.FieldRoles["date"])
	}

	fin := s.Sides["finance"]
	if fin == nil {
		t.Fatal("finance side missing")
	}
	// single-string file_pattern lifted to a list
	if !reflect.DeepEqual(fin.FilePatterns, []string{"*finance*"}) {
		t.Errorf("finance FilePatterns = %v", fin.FilePatterns)
	}
	if fin.Sheet != "Sheet1" {
		t.Errorf("finance Sheet = %q", fin.Sheet)
	}

	if !s.Tolerance.AmountDiffMax.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("AmountDiffMax = %s", s.Tolerance.AmountDiffMax)
	}

	rules := s.CleaningFor("finance")
	if rules == nil {
		t.Fatal("finance cleaning rules missing")
	}
	if !reflect.DeepEqual([]string(rules.AmountConversion.DivideBy100), []string{"amount"}) {
		t.Errorf("DivideBy100 = %v", rules.AmountConversion.DivideBy100)
	}
	if !reflect.DeepEqual([]string(rules.TrimWhitespace), []string{"order_id"}) {
		t.Errorf("TrimWhitespace = %v", rules.TrimWhitespace)
	}
	if rules.AggregateDuplicates.GroupBy != "order_id" {
		t.Errorf("GroupBy = %q", rules.AggregateDuplicates.GroupBy)
	}

	if len(s.Validations) != 1 {
		t.Fatalf("Validations = %d, want 1", len(s.Validations))
	}
}

func TestValidate_Defaults(t *testing.T) {
	minimal := `{
	  "version": "1.0",
	  "sides": {
	    "business": {"file_pattern": ["*.csv"], "field_roles": {"order_id": ["id"]}}
	  },
	  "key_role": "order_id"
	}`

	s, err := LoadBytes([]byte(minimal))
	if err != nil {
		t.Fatalf("LoadBytes failed: %v", err)
	}

	if s.Tolerance.DateFormat != DefaultDateFormat {
		t.Errorf("DateFormat = %q, want %q", s.Tolerance.DateFormat, DefaultDateFormat)
	}
	if s.Tolerance.KeyComparator != ComparatorNumeric {
		t.Errorf("KeyComparator = %q, want numeric", s.Tolerance.KeyComparator)
	}
	if !s.Tolerance.AmountDiffMax.IsZero() {
		t.Errorf("AmountDiffMax = %s, want 0", s.Tolerance.AmountDiffMax)
	}
	if s.Validations == nil || len(s.Validations) != 0 {
		t.Errorf("Validations = %v, want empty", s.Validations)
	}
	if s.CleaningRules == nil {
		t.Error("CleaningRules should be initialized")
	}
}

func TestValidate_ScopeDefault(t *testing.T) {
	s := loadFull(t)
	if s.Validations[0].Scope != ScopePair {
		t.Errorf("Scope = %q, want pair", s.Validations[0].Scope)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Schema)
	}{
		{"missing version", func(s *Schema) { s.Version = "" }},
		{"no sides", func(s *Schema) { s.Sides = nil; s.SideOrder = nil }},
		{"three sides", func(s *Schema) {
			s.Sides["extra"] = &Side{FilePatterns: []string{"*"}, FieldRoles: map[string][]string{"order_id": {"x"}}}
			s.SideOrder = append(s.SideOrder, "extra")
		}},
		{"missing key role", func(s *Schema) { s.KeyRole = "" }},
		{"key role not declared on side", func(s *Schema) { delete(s.Sides["finance"].FieldRoles, "order_id") }},
		{"no file patterns", func(s *Schema) { s.Sides["business"].FilePatterns = nil }},
		{"empty file pattern", func(s *Schema) { s.Sides["business"].FilePatterns = []string{"  "} }},
		{"invalid glob", func(s *Schema) { s.Sides["business"].FilePatterns = []string{"[unclosed"} }},
		{"invalid regex pattern", func(s *Schema) { s.Sides["business"].FilePatterns = []string{"re:["} }},
		{"negative tolerance", func(s *Schema) { s.Tolerance.AmountDiffMax = decimal.RequireFromString("-1") }},
		{"bad date format", func(s *Schema) { s.Tolerance.DateFormat = "%Q" }},
		{"bad key comparator", func(s *Schema) { s.Tolerance.KeyComparator = "fuzzy" }},
		{"bad condition expr", func(s *Schema) { s.Validations[0].ConditionExpr = "business.amount >" }},
		{"empty condition expr", func(s *Schema) { s.Validations[0].ConditionExpr = "" }},
		{"empty issue type", func(s *Schema) { s.Validations[0].IssueType = "" }},
		{"bad scope", func(s *Schema) { s.Validations[0].Scope = "everywhere" }},
		{"cleaning for undeclared side", func(s *Schema) {
			s.CleaningRules["ghost"] = &CleaningRules{TrimWhitespace: stringList{"order_id"}}
		}},
		{"aggregation without group_by", func(s *Schema) {
			s.CleaningRules["finance"].AggregateDuplicates.GroupBy = ""
		}},
		{"unknown aggregation", func(s *Schema) {
			s.CleaningRules["finance"].AggregateDuplicates.Aggregations["amount"] = "median"
		}},
		{"key role aggregated beyond first", func(s *Schema) {
			s.CleaningRules["finance"].AggregateDuplicates.Aggregations["order_id"] = "count"
		}},
		{"zero multiply factor", func(s *Schema) {
			s.CleaningRules["finance"].AmountConversion.MultiplyBy = map[string]decimal.Decimal{"amount": decimal.Zero}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loadFull(t)
			tt.mutate(s)
			err := s.Validate()
			if err == nil {
				t.Fatal("Validate should fail")
			}
			if !errors.HasCode(err, errors.CodeSchemaInvalid) {
				t.Errorf("error code = %v, want schema_invalid", err)
			}
		})
	}
}

func TestValidate_JoinAggregation(t *testing.T) {
	s := loadFull(t)
	s.CleaningRules["finance"].AggregateDuplicates.Aggregations["date"] = "join:;"
	if err := s.Validate(); err != nil {
		t.Errorf("join aggregation should validate: %v", err)
	}

	sep, ok := AggregationJoinSeparator("join:;")
	if !ok || sep != ";" {
		t.Errorf("AggregationJoinSeparator = %q, %v", sep, ok)
	}
	if _, ok := AggregationJoinSeparator("sum"); ok {
		t.Error("sum is not a join aggregation")
	}
}

func TestSchema_RenderRoundTrip(t *testing.T) {
	s := loadFull(t)

	rendered, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	again, err := LoadBytes(rendered)
	if err != nil {
		t.Fatalf("reloading rendered schema failed: %v", err)
	}

	if !reflect.DeepEqual(again.SideOrder, s.SideOrder) {
		t.Errorf("SideOrder changed: %v vs %v", again.SideOrder, s.SideOrder)
	}
	if !reflect.DeepEqual(again.Sides["business"].RoleOrder, s.Sides["business"].RoleOrder) {
		t.Errorf("RoleOrder changed: %v vs %v", again.Sides["business"].RoleOrder, s.Sides["business"].RoleOrder)
	}
	if !reflect.DeepEqual(again.Validations, s.Validations) {
		t.Errorf("Validations changed: %v vs %v", again.Validations, s.Validations)
	}
	if again.Sides["finance"].Sheet != "Sheet1" {
		t.Errorf("Sheet lost in round trip")
	}
	if !again.Tolerance.AmountDiffMax.Equal(s.Tolerance.AmountDiffMax) {
		t.Errorf("AmountDiffMax changed")
	}

	// Rendering twice is stable.
	rerendered, err := json.Marshal(again)
	if err != nil {
		t.Fatalf("second Marshal failed: %v", err)
	}
	if string(rerendered) != string(rendered) {
		t.Errorf("render not stable:\n%s\n%s", rendered, rerendered)
	}
}

func TestLoadFile_WithComments(t *testing.T) {
	commented := `{
	  // schema version
	  "version": "1.0",
	  /* two sides,
	     block comment */
	  "sides": {
	    "business": {"file_pattern": ["*.csv"], "field_roles": {"order_id": ["id"]}}
	  },
	  "key_role": "order_id",
	  "tolerance": {"date_format": "%Y-%m-%d"} // trailing comment
	}`

	dir := t.TempDir()
	path := filepath.Join(dir, "schema.json")
	if err := os.WriteFile(path, []byte(commented), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if s.Version != "1.0" {
		t.Errorf("Version = %q", s.Version)
	}
}

func TestStripComments_PreservesStrings(t *testing.T) {
	in := `{"url": "http://example.com/*notacomment*/", "re": "a//b"}`
	out := string(stripComments([]byte(in)))
	if out != in {
		t.Errorf("stripComments altered string content:\n%s\n%s", in, out)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("LoadFile should fail")
	}
	if !errors.HasCode(err, errors.CodeFileNotFound) {
		t.Errorf("error code = %v, want file_not_found", err)
	}
}

func TestLoadBytes_InvalidJSON(t *testing.T) {
	_, err := LoadBytes([]byte("{not json"))
	if err == nil {
		t.Fatal("LoadBytes should fail")
	}
	if !errors.HasCode(err, errors.CodeSchemaInvalid) {
		t.Errorf("error code = %v, want schema_invalid", err)
	}
}

func TestFromMap(t *testing.T) {
	m := map[string]interface{}{
		"version": "2.0",
		"sides": map[string]interface{}{
			"business": map[string]interface{}{
				"file_pattern": "*biz*",
				"field_roles":  map[string]interface{}{"order_id": "id"},
			},
			"finance": map[string]interface{}{
				"file_pattern": []interface{}{"*fin*"},
				"field_roles":  map[string]interface{}{"order_id": []interface{}{"单号"}},
			},
		},
		"key_role": "order_id",
	}

	s, err := FromMap(m)
	if err != nil {
		t.Fatalf("FromMap failed: %v", err)
	}
	if s.BusinessSide() != "business" || s.FinanceSide() != "finance" {
		t.Errorf("side binding = %q/%q", s.BusinessSide(), s.FinanceSide())
	}
	if !reflect.DeepEqual(s.Sides["business"].FilePatterns, []string{"*biz*"}) {
		t.Errorf("FilePatterns = %v", s.Sides["business"].FilePatterns)
	}
}

func TestSideBinding_SingleSide(t *testing.T) {
	oneSide := `{
	  "version": "1.0",
	  "sides": {"ledger": {"file_pattern": ["*.csv"], "field_roles": {"order_id": ["id"]}}},
	  "key_role": "order_id"
	}`

	s, err := LoadBytes([]byte(oneSide))
	if err != nil {
		t.Fatalf("LoadBytes failed: %v", err)
	}
	if s.BusinessSide() != "ledger" {
		t.Errorf("BusinessSide = %q, want ledger", s.BusinessSide())
	}
	if s.FinanceSide() != "" {
		t.Errorf("FinanceSide = %q, want empty", s.FinanceSide())
	}
}

func TestValidate_ErrorsNameTheProblem(t *testing.T) {
	s := loadFull(t)
	s.Validations[0].ConditionExpr = "nonsense.field > 1"
	err := s.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "amt") {
		t.Errorf("error should name the rule: %v", err)
	}
}
