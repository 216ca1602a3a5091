package sqlite

import (
	"cmp"
	"context"
	"database/sql"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/warp/finance-tracker/finance"
)

// =============================================================================
// DASHBOARD (read-only analytics)
// =============================================================================

// topCategories is how many expense categories the dashboard breaks out.
const topCategories = 5

// Dashboard summarizes one date range.
type Dashboard struct {
	Period           finance.Period    `json:"period"`
	TotalIncome      decimal.Decimal   `json:"total_income"`
	TotalExpenses    decimal.Decimal   `json:"total_expenses"`
	NetSavings       decimal.Decimal   `json:"net_savings"`
	TransactionCount int               `json:"transaction_count"`
	TotalBalance     decimal.Decimal   `json:"total_balance"`
	TopCategories    []CategoryExpense `json:"top_categories"`
}

type CategoryExpense struct {
	CategoryID *finance.CategoryID `json:"category_id,omitempty"`
	Name       string              `json:"name"`
	Total      decimal.Decimal     `json:"total_amount"`
	Count      int                 `json:"transaction_count"`
}

// Dashboard aggregates transactions dated within period. Sums are computed in
// Go to keep decimal precision.
func (s *Store) Dashboard(ctx context.Context, period finance.Period) (Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := Dashboard{
		Period:        period,
		TotalIncome:   decimal.Zero,
		TotalExpenses: decimal.Zero,
		TopCategories: []CategoryExpense{},
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.type, t.amount, t.category_id, c.name
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.date BETWEEN ? AND ?
	`, period.Start, period.End)
	if err != nil {
		return d, storageErr("dashboard", err)
	}
	defer rows.Close()

	byCategory := map[finance.CategoryID]*CategoryExpense{}
	uncategorized := &CategoryExpense{Name: "Uncategorized"}
	for rows.Next() {
		var (
			typ      finance.TransactionType
			amount   decimal.Decimal
			category *finance.CategoryID
			name     sql.NullString
		)
		if err := rows.Scan(&typ, &amount, &category, &name); err != nil {
			return d, storageErr("scan dashboard row", err)
		}
		d.TransactionCount++

		switch typ {
		case finance.TxIncome:
			d.TotalIncome = d.TotalIncome.Add(amount)
		case finance.TxExpense:
			d.TotalExpenses = d.TotalExpenses.Add(amount)
			bucket := uncategorized
			if category != nil {
				bucket = byCategory[*category]
				if bucket == nil {
					bucket = &CategoryExpense{CategoryID: category, Name: name.String}
					byCategory[*category] = bucket
				}
			}
			bucket.Total = bucket.Total.Add(amount)
			bucket.Count++
		}
	}
	if err := rows.Err(); err != nil {
		return d, storageErr("dashboard", err)
	}
	d.NetSavings = d.TotalIncome.Sub(d.TotalExpenses)

	for _, c := range byCategory {
		d.TopCategories = append(d.TopCategories, *c)
	}
	if uncategorized.Count > 0 {
		d.TopCategories = append(d.TopCategories, *uncategorized)
	}
	slices.SortFunc(d.TopCategories, func(a, b CategoryExpense) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if len(d.TopCategories) > topCategories {
		d.TopCategories = d.TopCategories[:topCategories]
	}

	d.TotalBalance, err = sumAmounts(ctx, s.db, `SELECT current_balance FROM accounts WHERE is_active = 1`)
	if err != nil {
		return d, err
	}
	return d, nil
}
