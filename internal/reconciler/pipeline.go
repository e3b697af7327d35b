// Package reconciler runs the reconciliation pipeline for one task: file
// classification, reading, role mapping, cleaning, key matching, rule
// evaluation and result assembly. Phases run sequentially; the task's
// context is observed at every phase boundary, which is where cancellation
// and timeouts take effect.
package reconciler

import (
	"context"
	"time"

	"reconciliation-task-service/internal/cleaner"
	"reconciliation-task-service/internal/filematch"
	"reconciliation-task-service/internal/matcher"
	"reconciliation-task-service/internal/models"
	"reconciliation-task-service/internal/reader"
	"reconciliation-task-service/internal/schema"
	"reconciliation-task-service/internal/validation"
	"reconciliation-task-service/pkg/errors"
	"reconciliation-task-service/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Pipeline phase names, in execution order. The phase tracker reports these
// as task progress.
var phases = []string{"classify", "read", "clean", "match", "validate", "report"}

// Pipeline executes one reconciliation run against a validated schema.
type Pipeline struct {
	schema   *schema.Schema
	taskID   string
	log      logger.Logger
	tracker  *logger.PhaseTracker
	warnings *errors.WarningCollector
}

// New creates a pipeline for the given task. The schema must already be
// validated.
func New(s *schema.Schema, taskID string, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Pipeline{
		schema:   s,
		taskID:   taskID,
		log:      log.WithComponent("reconciler").WithField("task_id", taskID),
		tracker:  logger.NewPhaseTracker(taskID, phases, log),
		warnings: errors.NewWarningCollector(0),
	}
}

// OnProgress registers an observer for phase transitions. The task manager
// uses this to report progress from reconciliation_status.
func (p *Pipeline) OnProgress(fn func(phase string, percent float64)) {
	p.tracker.OnEnter(fn)
}

// sideRows is one side's canonical rows between pipeline phases.
type sideRows struct {
	name string
	rows []models.Row
}

// Run executes the pipeline over the given input files and returns the
// completed result artifact. Fatal errors (classification, read, key
// resolution) abort the run; per-row degradations accumulate as warnings in
// the artifact metadata. A canceled or expired context surfaces as the
// context's error at the next phase boundary.
func (p *Pipeline) Run(ctx context.Context, files []string) (*models.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.tracker.Enter("classify")
	assignments, err := filematch.Classify(files, p.schema)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.tracker.Enter("read")
	business, finance, err := p.loadSides(ctx, assignments)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.tracker.Enter("clean")
	business.rows = cleaner.Clean(business.rows, p.schema.CleaningFor(business.name),
		p.schema.Tolerance, p.schema.KeyRole, business.name, p.warnings)
	finance.rows = cleaner.Clean(finance.rows, p.schema.CleaningFor(finance.name),
		p.schema.Tolerance, p.schema.KeyRole, finance.name, p.warnings)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.tracker.Enter("match")
	matchResult := matcher.Match(business.rows, finance.rows,
		p.schema.KeyRole, p.schema.Tolerance.KeyComparator, p.warnings)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.tracker.Enter("validate")
	evaluator, err := validation.NewEvaluator(p.schema)
	if err != nil {
		return nil, err
	}
	issues := evaluator.Evaluate(matchResult, p.warnings)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.tracker.Enter("report")
	result := p.buildResult(business, finance, matchResult, issues, assignments)
	p.tracker.Complete()

	p.log.WithFields(logger.Fields{
		"matched":   result.Summary.MatchedRecords,
		"unmatched": result.Summary.UnmatchedRecords,
		"issues":    len(result.Issues),
		"warnings":  p.warnings.String(),
	}).Info("Reconciliation finished")
	return result, nil
}

// loadSides reads and role-maps both sides concurrently. Files within one
// side load sequentially and concatenate row-wise in assignment order.
func (p *Pipeline) loadSides(ctx context.Context, assignments map[string][]string) (*sideRows, *sideRows, error) {
	business := &sideRows{name: p.schema.BusinessSide()}
	finance := &sideRows{name: p.schema.FinanceSide()}

	g, gctx := errgroup.WithContext(ctx)
	for _, side := range []*sideRows{business, finance} {
		if side.name == "" {
			continue
		}
		side := side
		g.Go(func() error {
			rows, err := p.loadSide(gctx, side.name, assignments[side.name])
			if err != nil {
				return err
			}
			side.rows = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return business, finance, nil
}

func (p *Pipeline) loadSide(ctx context.Context, sideName string, paths []string) ([]models.Row, error) {
	side := p.schema.Sides[sideName]
	opts := &reader.Options{Sheet: side.Sheet}

	tables := make([]*reader.Table, 0, len(paths))
	for _, path := range paths {
		table, err := reader.Read(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return cleaner.MapRoles(sideName, side, p.schema.KeyRole, tables)
}

func (p *Pipeline) buildResult(business, finance *sideRows, match *matcher.MatchResult, issues []models.Issue, assignments map[string][]string) *models.Result {
	result := models.NewResult(p.taskID, models.TaskCompleted)
	result.Summary = models.Summary{
		TotalBusinessRecords: len(business.rows),
		TotalFinanceRecords:  len(finance.rows),
		MatchedRecords:       match.MatchedKeys,
		UnmatchedRecords:     match.BusinessOnlyKeys + match.FinanceOnlyKeys,
	}
	result.Issues = issues
	result.Metadata = models.Metadata{
		RuleVersion:     p.schema.Version,
		ProcessedAt:     time.Now(),
		FileAssignments: filematch.Basenames(assignments),
		Warnings:        p.warnings.Messages(),
	}
	return result
}
