package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/warp/finance-tracker/finance"
)

// =============================================================================
// BUDGET STORE
// =============================================================================

const budgetColumns = `id, name, category_id, amount, period, start_date, end_date, is_active`

func scanBudget(row scanner) (finance.Budget, error) {
	var b finance.Budget
	err := row.Scan(&b.ID, &b.Name, &b.CategoryID, &b.Amount, &b.Period, &b.StartDate, &b.EndDate, &b.IsActive)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return b, storageErr("scan budget", err)
	}
	return b, err
}

func getBudget(ctx context.Context, q querier, id finance.BudgetID) (finance.Budget, error) {
	b, err := scanBudget(q.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return finance.Budget{}, &finance.NotFoundError{Kind: "budget", ID: int64(id)}
	}
	return b, err
}

func (s *Store) CreateBudget(ctx context.Context, b finance.Budget) (finance.Budget, error) {
	if err := b.Validate(); err != nil {
		return finance.Budget{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (name, category_id, amount, period, start_date, end_date, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
	`, b.Name, b.CategoryID, b.Amount.String(), b.Period, b.StartDate, b.EndDate, now())
	if err != nil {
		return finance.Budget{}, constraintErr("create budget", err)
	}
	id, _ := res.LastInsertId()
	return getBudget(ctx, s.db, finance.BudgetID(id))
}

func (s *Store) GetBudget(ctx context.Context, id finance.BudgetID) (finance.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBudget(ctx, s.db, id)
}

func (s *Store) ListBudgets(ctx context.Context, activeOnly bool) ([]finance.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + budgetColumns + ` FROM budgets`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("list budgets", err)
	}
	defer rows.Close()

	budgets := []finance.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (s *Store) UpdateBudget(ctx context.Context, b finance.Budget) (finance.Budget, error) {
	if err := b.Validate(); err != nil {
		return finance.Budget{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE budgets SET name = ?, category_id = ?, amount = ?, period = ?,
			start_date = ?, end_date = ?, is_active = ?
		WHERE id = ?
	`, b.Name, b.CategoryID, b.Amount.String(), b.Period, b.StartDate, b.EndDate, b.IsActive, b.ID)
	if err != nil {
		return finance.Budget{}, constraintErr("update budget", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return finance.Budget{}, &finance.NotFoundError{Kind: "budget", ID: int64(b.ID)}
	}
	return getBudget(ctx, s.db, b.ID)
}

func (s *Store) DeleteBudget(ctx context.Context, id finance.BudgetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete budget", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &finance.NotFoundError{Kind: "budget", ID: int64(id)}
	}
	return nil
}

// BudgetStatus computes spending against budget id for the period that
// contains asOf. Only expenses in the budget's category count.
func (s *Store) BudgetStatus(ctx context.Context, id finance.BudgetID, asOf finance.Date) (finance.BudgetStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := getBudget(ctx, s.db, id)
	if err != nil {
		return finance.BudgetStatus{}, err
	}
	period := finance.BudgetPeriodFor(b.Period, b.StartDate, asOf)

	spent, err := sumAmounts(ctx, s.db, `
		SELECT amount FROM transactions
		WHERE type = ? AND category_id = ? AND date BETWEEN ? AND ?
	`, finance.TxExpense, b.CategoryID, period.Start, period.End)
	if err != nil {
		return finance.BudgetStatus{}, err
	}
	return finance.NewBudgetStatus(b, period, spent), nil
}

// sumAmounts adds up a single decimal column. SQLite would sum TEXT as REAL.
func sumAmounts(ctx context.Context, q querier, query string, args ...any) (decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, storageErr("sum amounts", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, storageErr("scan amount", err)
		}
		total = total.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, storageErr("sum amounts", err)
	}
	return total, nil
}
