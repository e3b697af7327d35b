package matcher

import (
	"testing"

	"reconciliation-task-service/internal/models"
	"reconciliation-task-service/internal/schema"
	"reconciliation-task-service/pkg/errors"
)

func keyRow(key, amount string) models.Row {
	return models.Row{
		"order_id": models.NewString(key),
		"amount":   models.NewString(amount),
	}
}

func TestMatch_Disjoint(t *testing.T) {
	business := []models.Row{keyRow("A001", "1"), keyRow("A002", "2")}
	finance := []models.Row{keyRow("A002", "2"), keyRow("A003", "3")}
	warnings := errors.NewWarningCollector(0)

	result := Match(business, finance, "order_id", schema.ComparatorNumeric, warnings)

	if result.MatchedKeys != 1 || len(result.Matched) != 1 {
		t.Fatalf("matched = %d keys, %d pairs, want 1/1", result.MatchedKeys, len(result.Matched))
	}
	if result.Matched[0].Business.Get("order_id").String() != "A002" {
		t.Errorf("matched pair key = %v", result.Matched[0].Key)
	}
	if len(result.BusinessOnly) != 1 || result.BusinessOnly[0].Get("order_id").String() != "A001" {
		t.Errorf("business_only = %v", result.BusinessOnly)
	}
	if len(result.FinanceOnly) != 1 || result.FinanceOnly[0].Get("order_id").String() != "A003" {
		t.Errorf("finance_only = %v", result.FinanceOnly)
	}

	// |matched| + |business_only| covers every distinct business key.
	if result.MatchedKeys+result.BusinessOnlyKeys != 2 {
		t.Errorf("matched+business_only keys = %d, want 2", result.MatchedKeys+result.BusinessOnlyKeys)
	}
	if result.MatchedKeys+result.FinanceOnlyKeys != 2 {
		t.Errorf("matched+finance_only keys = %d, want 2", result.MatchedKeys+result.FinanceOnlyKeys)
	}
	if warnings.HasWarnings() {
		t.Errorf("unexpected warnings: %v", warnings.Messages())
	}
}

func TestMatch_PairsKeyEquality(t *testing.T) {
	business := []models.Row{keyRow("000123", "1"), keyRow("B-9", "2")}
	finance := []models.Row{keyRow("123", "1"), keyRow("B-9", "2")}

	result := Match(business, finance, "order_id", schema.ComparatorNumeric, errors.NewWarningCollector(0))
	for _, pair := range result.Matched {
		b := FoldKey(pair.Business.Get("order_id"), schema.ComparatorNumeric)
		f := FoldKey(pair.Finance.Get("order_id"), schema.ComparatorNumeric)
		if b != f {
			t.Errorf("pair keys fold unequal: %q vs %q", b, f)
		}
	}
	if result.MatchedKeys != 2 {
		t.Errorf("matched keys = %d, want 2", result.MatchedKeys)
	}
}

func TestMatch_EmptySide(t *testing.T) {
	finance := []models.Row{keyRow("A001", "1"), keyRow("A002", "2")}

	result := Match(nil, finance, "order_id", schema.ComparatorNumeric, errors.NewWarningCollector(0))
	if result.MatchedKeys != 0 || len(result.Matched) != 0 {
		t.Errorf("matched = %v, want none", result.Matched)
	}
	if len(result.FinanceOnly) != 2 || result.FinanceOnlyKeys != 2 {
		t.Errorf("finance_only = %v", result.FinanceOnly)
	}
}

func TestMatch_DuplicateKeysCartesian(t *testing.T) {
	business := []models.Row{keyRow("A001", "40"), keyRow("A001", "60")}
	finance := []models.Row{keyRow("A001", "100")}
	warnings := errors.NewWarningCollector(0)

	result := Match(business, finance, "order_id", schema.ComparatorNumeric, warnings)
	if len(result.Matched) != 2 {
		t.Fatalf("got %d pairs, want Cartesian 2", len(result.Matched))
	}
	if result.MatchedKeys != 1 {
		t.Errorf("matched keys = %d, want 1", result.MatchedKeys)
	}
	if warnings.CountByCode(errors.CodeDuplicateKey) != 1 {
		t.Errorf("warnings = %v, want one duplicate_key", warnings.Messages())
	}
}

func TestMatch_ScanOrderDeterministic(t *testing.T) {
	business := []models.Row{keyRow("C", "1"), keyRow("A", "2"), keyRow("B", "3")}
	finance := []models.Row{keyRow("B", "3"), keyRow("A", "2")}

	result := Match(business, finance, "order_id", schema.ComparatorExact, errors.NewWarningCollector(0))
	// Pairs follow business scan order, not finance order.
	if result.Matched[0].Key != "A" || result.Matched[1].Key != "B" {
		t.Errorf("pair order = [%s %s], want business scan order", result.Matched[0].Key, result.Matched[1].Key)
	}
}

func TestFoldKey(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		comparator string
		want       string
	}{
		{"exact keeps raw", "  A1 ", schema.ComparatorExact, "  A1 "},
		{"trim strips", "  A1 ", schema.ComparatorTrim, "A1"},
		{"trim keeps leading zeros", "000123", schema.ComparatorTrim, "000123"},
		{"numeric folds leading zeros", "000123", schema.ComparatorNumeric, "123"},
		{"numeric folds thousands separators", "1,000", schema.ComparatorNumeric, "1000"},
		{"numeric keeps non-numeric", "A-17", schema.ComparatorNumeric, "A-17"},
		{"numeric trims non-numeric", " A-17 ", schema.ComparatorNumeric, "A-17"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FoldKey(models.NewString(tt.value), tt.comparator); got != tt.want {
				t.Errorf("FoldKey(%q, %s) = %q, want %q", tt.value, tt.comparator, got, tt.want)
			}
		})
	}
}
