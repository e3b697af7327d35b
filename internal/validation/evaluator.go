// Package validation evaluates the schema's declared rules against the
// match result and emits typed issues. Candidates are scanned matched pairs
// first, then business-only rows, then finance-only rows; rules apply in
// declaration order within their scope, and a rule firing with the skipped
// issue type short-circuits the remaining rules on that candidate.
package validation

import (
	"reconciliation-task-service/internal/matcher"
	"reconciliation-task-service/internal/models"
	"reconciliation-task-service/internal/predicate"
	"reconciliation-task-service/internal/schema"
	"reconciliation-task-service/pkg/errors"
	"reconciliation-task-service/pkg/logger"
)

// AmountRole is the canonical role whose stringified cell values are carried
// on issues as business_value / finance_value.
const AmountRole = "amount"

type compiledRule struct {
	rule schema.ValidationRule
	expr *predicate.Expr
}

// Evaluator holds the compiled rule set for one schema.
type Evaluator struct {
	rules   []compiledRule
	keyRole string
	schema  *schema.Schema
	log     logger.Logger
}

// NewEvaluator compiles every validation rule. Schemas arrive validated, so
// a parse failure here means the schema was mutated after validation and is
// surfaced as schema_invalid.
func NewEvaluator(s *schema.Schema) (*Evaluator, error) {
	rules := make([]compiledRule, 0, len(s.Validations))
	for _, rule := range s.Validations {
		expr, err := predicate.Parse(rule.ConditionExpr)
		if err != nil {
			return nil, errors.SchemaError("validation "+rule.Name+" no longer parses", err)
		}
		rules = append(rules, compiledRule{rule: rule, expr: expr})
	}
	return &Evaluator{
		rules:   rules,
		keyRole: s.KeyRole,
		schema:  s,
		log:     logger.GetGlobalLogger().WithComponent("validation"),
	}, nil
}

// candidate is one rule-evaluation target: a pair or a single-sided row.
type candidate struct {
	scope    string
	key      string
	business models.Row
	finance  models.Row
}

// Evaluate runs the rule set over every candidate and returns the issues in
// emission order: candidate scan order crossed with rule declaration order.
// Rules whose predicate fails to evaluate are skipped for that candidate
// with a predicate_error warning.
func (e *Evaluator) Evaluate(result *matcher.MatchResult, warnings *errors.WarningCollector) []models.Issue {
	candidates := make([]candidate, 0, len(result.Matched)+len(result.BusinessOnly)+len(result.FinanceOnly))
	for _, pair := range result.Matched {
		candidates = append(candidates, candidate{
			scope:    schema.ScopePair,
			key:      pair.Business.Get(e.keyRole).String(),
			business: pair.Business,
			finance:  pair.Finance,
		})
	}
	for _, row := range result.BusinessOnly {
		candidates = append(candidates, candidate{
			scope:    schema.ScopeBusinessOnly,
			key:      row.Get(e.keyRole).String(),
			business: row,
		})
	}
	for _, row := range result.FinanceOnly {
		candidates = append(candidates, candidate{
			scope:   schema.ScopeFinanceOnly,
			key:     row.Get(e.keyRole).String(),
			finance: row,
		})
	}

	var issues []models.Issue
	for _, c := range candidates {
		issues = append(issues, e.evaluateCandidate(c, warnings)...)
	}
	return issues
}

func (e *Evaluator) evaluateCandidate(c candidate, warnings *errors.WarningCollector) []models.Issue {
	env := &predicate.Env{
		Business:        c.business,
		Finance:         c.finance,
		AmountTolerance: e.schema.Tolerance.AmountDiffMax,
	}

	var issues []models.Issue
	for _, cr := range e.rules {
		if cr.rule.Scope != c.scope {
			continue
		}

		fired, err := cr.expr.Eval(env)
		if err != nil {
			warnings.Addf(errors.CategoryReconciliation, errors.CodePredicateError,
				"rule %s skipped for key %q: %v", cr.rule.Name, c.key, err)
			continue
		}
		if !fired {
			continue
		}

		issues = append(issues, e.buildIssue(cr.rule, c, env))
		if cr.rule.IssueType == schema.IssueTypeSkipped {
			break
		}
	}
	return issues
}

func (e *Evaluator) buildIssue(rule schema.ValidationRule, c candidate, env *predicate.Env) models.Issue {
	issue := models.Issue{
		KeyValue:  c.key,
		IssueType: rule.IssueType,
		Detail:    RenderTemplate(rule.DetailTemplate, c.business, c.finance),
	}
	if c.business != nil && c.business.Has(AmountRole) {
		s := c.business.Get(AmountRole).String()
		issue.BusinessValue = &s
	}
	if c.finance != nil && c.finance.Has(AmountRole) {
		s := c.finance.Get(AmountRole).String()
		issue.FinanceValue = &s
	}
	return issue
}
