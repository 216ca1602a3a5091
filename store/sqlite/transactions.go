package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/warp/finance-tracker/finance"
)

// =============================================================================
// TRANSACTION QUERIES (read side; writes go through finance.Ledger)
// =============================================================================

// TransactionFilter narrows ListTransactions. Zero values mean "any".
type TransactionFilter struct {
	AccountID   *finance.AccountID
	CategoryID  *finance.CategoryID
	RecurringID *finance.RuleID
	Type        finance.TransactionType
	From        *finance.Date
	To          *finance.Date
	Limit       int
	Offset      int
}

// ListTransactions returns transactions newest first.
func (s *Store) ListTransactions(ctx context.Context, f TransactionFilter) ([]finance.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.AccountID != nil {
		where = append(where, `(t.account_from_id = ? OR t.account_to_id = ?)`)
		args = append(args, *f.AccountID, *f.AccountID)
	}
	if f.CategoryID != nil {
		where = append(where, `t.category_id = ?`)
		args = append(args, *f.CategoryID)
	}
	if f.RecurringID != nil {
		where = append(where, `t.recurring_id = ?`)
		args = append(args, *f.RecurringID)
	}
	if f.Type != "" {
		where = append(where, `t.type = ?`)
		args = append(args, f.Type)
	}
	if f.From != nil {
		where = append(where, `t.date >= ?`)
		args = append(args, *f.From)
	}
	if f.To != nil {
		where = append(where, `t.date <= ?`)
		args = append(args, *f.To)
	}

	query := transactionSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY t.date DESC, t.id DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, max(f.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list transactions", err)
	}
	defer rows.Close()

	txs := []finance.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, id finance.TransactionID) (finance.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := scanTransaction(s.db.QueryRowContext(ctx, transactionSelect+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return finance.Transaction{}, &finance.NotFoundError{Kind: "transaction", ID: int64(id)}
	}
	return t, err
}

// AllTransactions returns the full ledger oldest first. Used to replay and
// verify balances.
func (s *Store) AllTransactions(ctx context.Context) ([]finance.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, transactionSelect+` ORDER BY t.date, t.id`)
	if err != nil {
		return nil, storageErr("list transactions", err)
	}
	defer rows.Close()

	var txs []finance.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
