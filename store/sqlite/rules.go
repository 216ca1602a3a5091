package sqlite

import (
	"context"

	"github.com/warp/finance-tracker/finance"
)

// =============================================================================
// RECURRING RULE STORE
// =============================================================================

// CreateRule inserts a recurring rule. The checkpoint starts empty.
func (s *Store) CreateRule(ctx context.Context, r finance.RecurringRule) (finance.RecurringRule, error) {
	if err := r.Validate(); err != nil {
		return finance.RecurringRule{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO recurring_transactions
		(name, type, amount, account_from_id, account_to_id, category_id, description,
		 frequency, start_date, end_date, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.Name, r.Type, r.Amount.String(), r.From, r.To, r.CategoryID, nullString(r.Description),
		r.Frequency, r.StartDate, r.EndDate, r.IsActive, stamp, stamp,
	)
	if err != nil {
		return finance.RecurringRule{}, constraintErr("create rule", err)
	}
	id, _ := res.LastInsertId()
	return getRule(ctx, s.db, finance.RuleID(id))
}

// ListRules returns rules ordered by name.
func (s *Store) ListRules(ctx context.Context, activeOnly bool) ([]finance.RecurringRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + ruleColumns + ` FROM recurring_transactions`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("list rules", err)
	}
	defer rows.Close()

	rules := []finance.RecurringRule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// UpdateRule rewrites the rule template. The checkpoint is kept, so already
// materialized occurrences are never regenerated.
func (s *Store) UpdateRule(ctx context.Context, r finance.RecurringRule) (finance.RecurringRule, error) {
	if err := r.Validate(); err != nil {
		return finance.RecurringRule{}, err
	}

	var out finance.RecurringRule
	err := s.withTx(ctx, func(tx *txStore) error {
		if _, err := tx.LockRule(ctx, r.ID); err != nil {
			return err
		}
		_, err := tx.tx.ExecContext(ctx, `
			UPDATE recurring_transactions SET
				name = ?, type = ?, amount = ?, account_from_id = ?, account_to_id = ?,
				category_id = ?, description = ?, frequency = ?, start_date = ?, end_date = ?,
				is_active = ?, updated_at = ?
			WHERE id = ?
		`,
			r.Name, r.Type, r.Amount.String(), r.From, r.To,
			r.CategoryID, nullString(r.Description), r.Frequency, r.StartDate, r.EndDate,
			r.IsActive, now(), r.ID,
		)
		if err != nil {
			return constraintErr("update rule", err)
		}
		out, err = getRule(ctx, tx.tx, r.ID)
		return err
	})
	return out, err
}

// SetRuleActive activates or deactivates a rule.
func (s *Store) SetRuleActive(ctx context.Context, id finance.RuleID, active bool) (finance.RecurringRule, error) {
	var out finance.RecurringRule
	err := s.withTx(ctx, func(tx *txStore) error {
		if _, err := tx.LockRule(ctx, id); err != nil {
			return err
		}
		_, err := tx.tx.ExecContext(ctx,
			`UPDATE recurring_transactions SET is_active = ?, updated_at = ? WHERE id = ?`, active, now(), id)
		if err != nil {
			return storageErr("toggle rule", err)
		}
		out, err = getRule(ctx, tx.tx, id)
		return err
	})
	return out, err
}

// DeleteRule deletes a rule that never produced a transaction. A rule with
// generated transactions is deactivated instead so the ledger keeps its link;
// deactivated reports which happened.
func (s *Store) DeleteRule(ctx context.Context, id finance.RuleID) (deactivated bool, err error) {
	err = s.withTx(ctx, func(tx *txStore) error {
		if _, err := tx.LockRule(ctx, id); err != nil {
			return err
		}

		var linked int
		err := tx.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE recurring_id = ?`, id).Scan(&linked)
		if err != nil {
			return storageErr("count rule transactions", err)
		}

		if linked > 0 {
			deactivated = true
			_, err = tx.tx.ExecContext(ctx,
				`UPDATE recurring_transactions SET is_active = 0, updated_at = ? WHERE id = ?`, now(), id)
			if err != nil {
				return storageErr("deactivate rule", err)
			}
			return nil
		}
		if _, err := tx.tx.ExecContext(ctx, `DELETE FROM recurring_transactions WHERE id = ?`, id); err != nil {
			return constraintErr("delete rule", err)
		}
		return nil
	})
	return deactivated, err
}
