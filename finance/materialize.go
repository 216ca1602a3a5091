/*
materialize.go - Recurring rule materialization engine

PURPOSE:
  Turns the pending occurrences of a recurring rule into ledger
  transactions, exactly once each, and keeps account balances in step.

ALGORITHM (one rule):
  1. Lock the rule row inside a unit of work
  2. Missing rule -> NotFoundError, inactive -> InactiveRuleError
  3. Due dates = Schedule.DueDates(checkpoint, asOf)
  4. For each date: insert transaction tagged with the rule, apply effect
  5. Stop after safetyCap occurrences (reported as Truncated)
  6. Advance the checkpoint to the last processed date
  Any failure rolls back the whole unit, checkpoint included.

IDEMPOTENCE:
  The checkpoint moves in the same unit as the inserts, so a repeated call
  with the same asOf finds no pending dates. A truncated run resumes where
  it stopped on the next call.

BATCH:
  MaterializeAll runs every active rule in its own unit. A failing rule is
  recorded in its outcome and the batch moves on.

PREVIEW:
  Preview projects future occurrences without writing anything.

SEE ALSO:
  - recurrence.go: Schedule / DueDates
  - balance.go: ApplyEffect
  - api/scheduler.go: Periodic trigger
*/
package finance

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultSafetyCap bounds the occurrences written by one Materialize call.
	DefaultSafetyCap = 100

	// DefaultPreviewLimit bounds the items returned by Preview.
	DefaultPreviewLimit = 50
)

// =============================================================================
// RESULTS
// =============================================================================

type MaterializeResult struct {
	RuleID         RuleID          `json:"rule_id"`
	Created        int             `json:"created_count"`
	LastProcessed  *Date           `json:"last_processed_date,omitempty"`
	Truncated      bool            `json:"truncated"`
	TransactionIDs []TransactionID `json:"transaction_ids,omitempty"`
}

// RuleOutcome is one rule's line in a batch run.
type RuleOutcome struct {
	MaterializeResult
	Err error `json:"-"`
}

type BatchResult struct {
	TotalCreated int           `json:"total_created"`
	Processed    int           `json:"processed_count"`
	Failed       int           `json:"failed_count"`
	Rules        []RuleOutcome `json:"per_rule_results"`
}

type PreviewItem struct {
	Date        Date            `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type PreviewResult struct {
	RuleID RuleID          `json:"rule_id"`
	Items  []PreviewItem   `json:"items"`
	Total  decimal.Decimal `json:"total_amount"`
}

// =============================================================================
// MATERIALIZER
// =============================================================================

type Materializer struct {
	Store     Store
	SafetyCap int
	Logger    logrus.FieldLogger
}

func NewMaterializer(store Store, logger logrus.FieldLogger) *Materializer {
	return &Materializer{Store: store, SafetyCap: DefaultSafetyCap, Logger: logger}
}

func (m *Materializer) log() logrus.FieldLogger {
	if m.Logger == nil {
		return logrus.StandardLogger()
	}
	return m.Logger
}

func (m *Materializer) capOrDefault(safetyCap int) int {
	if safetyCap > 0 {
		return safetyCap
	}
	if m.SafetyCap > 0 {
		return m.SafetyCap
	}
	return DefaultSafetyCap
}

// Materialize writes every occurrence of rule id due on or before asOf, at
// most safetyCap of them. A non-positive safetyCap uses the configured cap.
func (m *Materializer) Materialize(ctx context.Context, id RuleID, asOf Date, safetyCap int) (MaterializeResult, error) {
	limit := m.capOrDefault(safetyCap)
	var result MaterializeResult

	err := m.Store.WithTx(ctx, func(tx Tx) error {
		result = MaterializeResult{RuleID: id}

		rule, err := tx.LockRule(ctx, id)
		if err != nil {
			return err
		}
		if !rule.IsActive {
			return &InactiveRuleError{RuleID: id}
		}

		due, err := rule.Schedule().DueDates(rule.Checkpoint(), asOf)
		if err != nil {
			return err
		}

		var last Date
		for d := range due {
			if result.Created == limit {
				result.Truncated = true
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			occurrence := rule.Occurrence(d)
			if err := occurrence.Validate(); err != nil {
				return fmt.Errorf("rule %d occurrence %s: %w", id, d, err)
			}
			txID, err := tx.InsertTransaction(ctx, occurrence)
			if err != nil {
				return fmt.Errorf("rule %d occurrence %s: %w", id, d, err)
			}
			if err := ApplyEffect(ctx, tx, EffectOf(occurrence)); err != nil {
				return fmt.Errorf("rule %d occurrence %s: %w", id, d, err)
			}

			result.TransactionIDs = append(result.TransactionIDs, txID)
			result.Created++
			last = d
		}

		if result.Created == 0 {
			return nil
		}
		if err := tx.AdvanceRuleCheckpoint(ctx, id, last); err != nil {
			return fmt.Errorf("advance checkpoint of rule %d: %w", id, err)
		}
		result.LastProcessed = &last
		return nil
	})
	if err != nil {
		return MaterializeResult{RuleID: id}, err
	}

	if result.Created > 0 {
		m.log().WithFields(logrus.Fields{
			"rule_id":             id,
			"created":             result.Created,
			"last_processed_date": result.LastProcessed.String(),
			"truncated":           result.Truncated,
		}).Info("Materializer.Materialize.Complete")
	}
	return result, nil
}

// MaterializeAll materializes every active rule, one unit per rule. The
// returned error is only set when the rule list itself can't be read.
func (m *Materializer) MaterializeAll(ctx context.Context, asOf Date, safetyCap int) (BatchResult, error) {
	ids, err := m.Store.ListActiveRuleIDs(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list active rules: %w", err)
	}

	batch := BatchResult{Rules: make([]RuleOutcome, 0, len(ids))}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		res, err := m.Materialize(ctx, id, asOf, safetyCap)
		outcome := RuleOutcome{MaterializeResult: res, Err: err}
		batch.Rules = append(batch.Rules, outcome)

		switch {
		case err == nil:
			batch.Processed++
			batch.TotalCreated += res.Created
		case errors.Is(err, ErrInactiveRule):
			// deactivated after the list was read
		default:
			batch.Failed++
			m.log().WithError(err).WithField("rule_id", id).Error("Materializer.MaterializeAll.RuleFailed")
		}
	}

	m.log().WithFields(logrus.Fields{
		"as_of":         asOf.String(),
		"rules":         len(ids),
		"processed":     batch.Processed,
		"failed":        batch.Failed,
		"total_created": batch.TotalCreated,
	}).Info("Materializer.MaterializeAll.Complete")
	return batch, nil
}

// Preview lists the occurrences rule id would produce through the given
// date, at most limit of them. Nothing is written. A non-positive limit uses
// DefaultPreviewLimit.
func (m *Materializer) Preview(ctx context.Context, id RuleID, through Date, limit int) (PreviewResult, error) {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	rule, err := m.Store.GetRule(ctx, id)
	if err != nil {
		return PreviewResult{}, err
	}

	dates, err := rule.Schedule().Occurrences(rule.Checkpoint(), through, limit)
	if err != nil {
		return PreviewResult{}, err
	}

	out := PreviewResult{RuleID: id, Items: make([]PreviewItem, 0, len(dates)), Total: decimal.Zero}
	for _, d := range dates {
		out.Items = append(out.Items, PreviewItem{
			Date:        d,
			Amount:      rule.Amount,
			Description: rule.OccurrenceDescription(),
		})
		out.Total = out.Total.Add(rule.Amount)
	}
	return out, nil
}
