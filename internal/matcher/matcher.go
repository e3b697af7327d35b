// Package matcher joins the two cleaned sides on the key role. The join
// classifies every row into a matched pair, a business-only row or a
// finance-only row; all three sets keep scan order so downstream issue
// emission is deterministic.
package matcher

import (
	"strings"

	"reconciliation-task-service/internal/models"
	"reconciliation-task-service/internal/schema"
	"reconciliation-task-service/pkg/errors"
	"reconciliation-task-service/pkg/logger"
)

// Pair is one matched candidate: a business row and a finance row whose
// folded key values compare equal.
type Pair struct {
	Key      string
	Business models.Row
	Finance  models.Row
}

// MatchResult partitions both sides by key. Counts are over distinct folded
// keys, which is what the summary reports; the row slices keep every row,
// including Cartesian pairings produced by duplicated keys.
type MatchResult struct {
	Matched      []Pair
	BusinessOnly []models.Row
	FinanceOnly  []models.Row

	MatchedKeys      int
	BusinessOnlyKeys int
	FinanceOnlyKeys  int
}

// keyIndex groups one side's rows by folded key, preserving first-seen key
// order.
type keyIndex struct {
	groups map[string][]models.Row
	order  []string
}

func buildIndex(rows []models.Row, keyRole, comparator string) *keyIndex {
	idx := &keyIndex{groups: make(map[string][]models.Row, len(rows))}
	for _, row := range rows {
		key := FoldKey(row.Get(keyRole), comparator)
		if _, seen := idx.groups[key]; !seen {
			idx.order = append(idx.order, key)
		}
		idx.groups[key] = append(idx.groups[key], row)
	}
	return idx
}

// Match joins business rows against finance rows on the key role. Duplicate
// keys within one side survive cleaning misconfiguration: they pair
// Cartesian per key and emit one duplicate_key warning per side and key.
func Match(business, finance []models.Row, keyRole, comparator string, warnings *errors.WarningCollector) *MatchResult {
	log := logger.GetGlobalLogger().WithComponent("matcher")

	bIdx := buildIndex(business, keyRole, comparator)
	fIdx := buildIndex(finance, keyRole, comparator)
	warnDuplicates(bIdx, schema.SideBusiness, warnings)
	warnDuplicates(fIdx, schema.SideFinance, warnings)

	result := &MatchResult{}
	matched := make(map[string]bool)

	for _, key := range bIdx.order {
		fRows, ok := fIdx.groups[key]
		if !ok {
			result.BusinessOnlyKeys++
			result.BusinessOnly = append(result.BusinessOnly, bIdx.groups[key]...)
			continue
		}
		matched[key] = true
		result.MatchedKeys++
		for _, b := range bIdx.groups[key] {
			for _, f := range fRows {
				result.Matched = append(result.Matched, Pair{Key: key, Business: b, Finance: f})
			}
		}
	}

	for _, key := range fIdx.order {
		if matched[key] {
			continue
		}
		result.FinanceOnlyKeys++
		result.FinanceOnly = append(result.FinanceOnly, fIdx.groups[key]...)
	}

	log.WithFields(logger.Fields{
		"matched_keys":       result.MatchedKeys,
		"business_only_keys": result.BusinessOnlyKeys,
		"finance_only_keys":  result.FinanceOnlyKeys,
	}).Debug("Key join finished")
	return result
}

func warnDuplicates(idx *keyIndex, side string, warnings *errors.WarningCollector) {
	for _, key := range idx.order {
		if n := len(idx.groups[key]); n > 1 {
			warnings.Addf(errors.CategoryReconciliation, errors.CodeDuplicateKey,
				"side %s has %d rows for key %q; pairs are produced per combination", side, n, key)
		}
	}
}

// FoldKey canonicalizes a key value under the configured comparator:
// exact keeps the raw rendering, trim strips surrounding whitespace, and
// numeric (the default) additionally folds numeric-looking keys to their
// canonical decimal form so "123", "000123" and "1,000"/"1000" collide.
func FoldKey(v models.Value, comparator string) string {
	raw := v.String()
	switch comparator {
	case schema.ComparatorExact:
		return raw
	case schema.ComparatorTrim:
		return strings.TrimSpace(raw)
	default:
		trimmed := strings.TrimSpace(raw)
		if d, err := models.ParseDecimalFromString(trimmed); err == nil {
			return d.String()
		}
		return trimmed
	}
}
