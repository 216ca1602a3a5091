package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/finance-tracker/finance"
)

// =============================================================================
// SAVINGS GOAL STORE
// =============================================================================

const goalColumns = `id, name, target_amount, current_amount, target_date, account_id,
	notes, is_achieved, achieved_at`

func scanGoal(row scanner) (finance.SavingsGoal, error) {
	var (
		g          finance.SavingsGoal
		notes      sql.NullString
		achievedAt sql.NullString
	)
	err := row.Scan(
		&g.ID, &g.Name, &g.TargetAmount, &g.CurrentAmount, &g.TargetDate, &g.AccountID,
		&notes, &g.IsAchieved, &achievedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return g, err
		}
		return g, storageErr("scan savings goal", err)
	}
	g.Notes = notes.String
	if achievedAt.Valid {
		at := parseTime(achievedAt.String)
		g.AchievedAt = &at
	}
	return g, nil
}

func getGoal(ctx context.Context, q querier, id finance.GoalID) (finance.SavingsGoal, error) {
	g, err := scanGoal(q.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM savings_goals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return finance.SavingsGoal{}, &finance.NotFoundError{Kind: "savings goal", ID: int64(id)}
	}
	return g, err
}

func (s *Store) CreateGoal(ctx context.Context, g finance.SavingsGoal) (finance.SavingsGoal, error) {
	if err := g.Validate(); err != nil {
		return finance.SavingsGoal{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO savings_goals (name, target_amount, current_amount, target_date, account_id,
			notes, is_achieved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, g.Name, g.TargetAmount.String(), g.CurrentAmount.String(), g.TargetDate, g.AccountID,
		nullString(g.Notes), stamp, stamp)
	if err != nil {
		return finance.SavingsGoal{}, constraintErr("create savings goal", err)
	}
	id, _ := res.LastInsertId()
	return getGoal(ctx, s.db, finance.GoalID(id))
}

func (s *Store) GetGoal(ctx context.Context, id finance.GoalID) (finance.SavingsGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getGoal(ctx, s.db, id)
}

func (s *Store) ListGoals(ctx context.Context) ([]finance.SavingsGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+goalColumns+` FROM savings_goals ORDER BY is_achieved, target_date IS NULL, target_date, id`)
	if err != nil {
		return nil, storageErr("list savings goals", err)
	}
	defer rows.Close()

	goals := []finance.SavingsGoal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// UpdateGoal changes the goal's description and target. The current amount
// only moves through Deposit.
func (s *Store) UpdateGoal(ctx context.Context, g finance.SavingsGoal) (finance.SavingsGoal, error) {
	if err := g.Validate(); err != nil {
		return finance.SavingsGoal{}, err
	}

	var out finance.SavingsGoal
	err := s.withTx(ctx, func(tx *txStore) error {
		current, err := getGoal(ctx, tx.tx, g.ID)
		if err != nil {
			return err
		}
		g.CurrentAmount = current.CurrentAmount
		g.IsAchieved, g.AchievedAt = current.IsAchieved, current.AchievedAt
		if !g.IsAchieved && g.CurrentAmount.GreaterThanOrEqual(g.TargetAmount) {
			at := time.Now().UTC()
			g.IsAchieved, g.AchievedAt = true, &at
		}

		_, err = tx.tx.ExecContext(ctx, `
			UPDATE savings_goals SET name = ?, target_amount = ?, target_date = ?, account_id = ?,
				notes = ?, is_achieved = ?, achieved_at = ?, updated_at = ?
			WHERE id = ?
		`, g.Name, g.TargetAmount.String(), g.TargetDate, g.AccountID,
			nullString(g.Notes), g.IsAchieved, timeString(g.AchievedAt), now(), g.ID)
		if err != nil {
			return constraintErr("update savings goal", err)
		}
		out, err = getGoal(ctx, tx.tx, g.ID)
		return err
	})
	return out, err
}

func (s *Store) DeleteGoal(ctx context.Context, id finance.GoalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM savings_goals WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete savings goal", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &finance.NotFoundError{Kind: "savings goal", ID: int64(id)}
	}
	return nil
}

// DepositResult is the goal after a deposit plus the ledger row written for
// it, if any.
type DepositResult struct {
	Goal        finance.SavingsGoal  `json:"goal"`
	Transaction *finance.Transaction `json:"transaction,omitempty"`
}

// Deposit adds amount to a goal. When the goal has an account and linked is
// nil, an expense from that account is recorded in the same unit so the
// account balance follows the money into the goal.
func (s *Store) Deposit(ctx context.Context, id finance.GoalID, amount decimal.Decimal, on finance.Date, linked *finance.TransactionID) (DepositResult, error) {
	var out DepositResult
	err := s.withTx(ctx, func(tx *txStore) error {
		goal, err := getGoal(ctx, tx.tx, id)
		if err != nil {
			return err
		}
		if linked != nil {
			if _, err := tx.GetTransaction(ctx, *linked); err != nil {
				return err
			}
		}

		goal, err = goal.Deposit(amount, time.Now().UTC())
		if err != nil {
			return err
		}
		_, err = tx.tx.ExecContext(ctx, `
			UPDATE savings_goals SET current_amount = ?, is_achieved = ?, achieved_at = ?, updated_at = ?
			WHERE id = ?
		`, goal.CurrentAmount.String(), goal.IsAchieved, timeString(goal.AchievedAt), now(), id)
		if err != nil {
			return storageErr("update savings goal", err)
		}
		out.Goal = goal

		if linked != nil || goal.AccountID == nil {
			return nil
		}
		entry := finance.Transaction{
			Date:        on,
			Type:        finance.TxExpense,
			Amount:      amount,
			From:        goal.AccountID,
			Description: fmt.Sprintf("Savings goal deposit: %s", goal.Name),
		}
		if err := entry.Validate(); err != nil {
			return err
		}
		entry.ID, err = tx.InsertTransaction(ctx, entry)
		if err != nil {
			return err
		}
		if err := finance.ApplyEffect(ctx, tx, finance.EffectOf(entry)); err != nil {
			return err
		}
		out.Transaction = &entry
		return nil
	})
	return out, err
}

func timeString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}
