package sqlite

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
	"github.com/warp/finance-tracker/finance"
)

// =============================================================================
// ACCOUNT STORE
// =============================================================================

// CreateAccount inserts an account whose current balance starts at its
// initial balance.
func (s *Store) CreateAccount(ctx context.Context, a finance.Account) (finance.Account, error) {
	if err := a.Validate(); err != nil {
		return finance.Account{}, err
	}
	if a.Currency == "" {
		a.Currency = "RUB"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (name, type, initial_balance, current_balance, credit_limit,
			currency, color, icon, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`,
		a.Name, a.Type, a.InitialBalance.String(), a.InitialBalance.String(), decimalPtr(a.CreditLimit),
		a.Currency, nullString(a.Color), nullString(a.Icon), stamp, stamp,
	)
	if err != nil {
		return finance.Account{}, constraintErr("create account", err)
	}
	id, _ := res.LastInsertId()
	return getAccount(ctx, s.db, finance.AccountID(id))
}

func (s *Store) GetAccount(ctx context.Context, id finance.AccountID) (finance.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, id)
}

// ListAccounts returns accounts ordered by name.
func (s *Store) ListAccounts(ctx context.Context, includeInactive bool) ([]finance.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + accountColumns + ` FROM accounts`
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("list accounts", err)
	}
	defer rows.Close()

	accounts := []finance.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// UpdateAccount changes descriptive fields. Balances are owned by the ledger
// and are left untouched.
func (s *Store) UpdateAccount(ctx context.Context, a finance.Account) (finance.Account, error) {
	if err := a.Validate(); err != nil {
		return finance.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET name = ?, type = ?, credit_limit = ?, currency = ?,
			color = ?, icon = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`,
		a.Name, a.Type, decimalPtr(a.CreditLimit), a.Currency,
		nullString(a.Color), nullString(a.Icon), a.IsActive, now(), a.ID,
	)
	if err != nil {
		return finance.Account{}, constraintErr("update account", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return finance.Account{}, &finance.NotFoundError{Kind: "account", ID: int64(a.ID)}
	}
	return getAccount(ctx, s.db, a.ID)
}

// DeleteAccount removes an unused account. An account with a non-zero
// balance is refused; an account still referenced by transactions, rules or
// goals is deactivated instead and deactivated is returned true.
func (s *Store) DeleteAccount(ctx context.Context, id finance.AccountID) (deactivated bool, err error) {
	err = s.withTx(ctx, func(tx *txStore) error {
		a, err := getAccount(ctx, tx.tx, id)
		if err != nil {
			return err
		}
		if !a.CurrentBalance.IsZero() {
			return &finance.ConflictError{Message: "account balance is not zero; move or correct it before deleting"}
		}

		var refs int
		err = tx.tx.QueryRowContext(ctx, `
			SELECT
				(SELECT COUNT(*) FROM transactions WHERE account_from_id = ?1 OR account_to_id = ?1) +
				(SELECT COUNT(*) FROM recurring_transactions WHERE account_from_id = ?1 OR account_to_id = ?1) +
				(SELECT COUNT(*) FROM savings_goals WHERE account_id = ?1)
		`, id).Scan(&refs)
		if err != nil {
			return storageErr("count account references", err)
		}

		if refs > 0 {
			deactivated = true
			_, err = tx.tx.ExecContext(ctx, `UPDATE accounts SET is_active = 0, updated_at = ? WHERE id = ?`, now(), id)
			if err != nil {
				return storageErr("deactivate account", err)
			}
			return nil
		}
		if _, err := tx.tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
			return constraintErr("delete account", err)
		}
		return nil
	})
	return deactivated, err
}

func decimalPtr(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
