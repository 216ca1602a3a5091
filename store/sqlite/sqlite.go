/*
Package sqlite provides a SQLite-backed implementation of the finance store.

PURPOSE:
  Implements finance.Store (units of work for the engine and ledger) plus
  the catalog CRUD used by the HTTP API: accounts, categories, tags,
  budgets, savings goals, recurring rules and materialization runs.

KEY TABLES:
  accounts:               Balance holders (current_balance kept in step)
  transactions:           Ledger rows, recurring_id links generated rows
  recurring_transactions: Rules with their last_materialized_date checkpoint
  transaction_tags:       Tag links
  materialization_runs:   Batch run history

LOCKING:
  Connections use _txlock=immediate, so every unit of work starts with
  BEGIN IMMEDIATE and holds the database write lock until commit. That is
  the row lock LockRule / LockAccount rely on: a second writer waits on
  busy_timeout, then reads the checkpoint the first one committed.
  Inside the process a sync.RWMutex serializes writers in front of SQLite.

MONEY AND DATES:
  Decimals are stored as TEXT and summed in Go, never with SQL arithmetic.
  Calendar dates are YYYY-MM-DD TEXT, timestamps RFC3339 TEXT.

MIGRATION:
  Schema changes are versioned SQL files under migrations/, applied with
  golang-migrate by Migrate (see migrate.go). New only opens the database.

USAGE:
  store, err := sqlite.Open("./data/finance.db")   // New + Migrate
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - finance/store.go: Interface definitions
  - finance/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/finance-tracker/finance"
)

// Store implements finance.Store and the catalog stores using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ finance.Store = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// New opens the database at dbPath without touching the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db}, nil
}

// Open opens the database and applies pending migrations.
func Open(dbPath string) (*Store, error) {
	store, err := New(dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// UNIT OF WORK (finance.Store interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(finance.Tx) error) error {
	return s.withTx(ctx, func(tx *txStore) error { return fn(tx) })
}

func (s *Store) withTx(ctx context.Context, fn func(*txStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// GetRule reads a rule without locking it.
func (s *Store) GetRule(ctx context.Context, id finance.RuleID) (finance.RecurringRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRule(ctx, s.db, id)
}

// ListActiveRuleIDs returns active rule IDs, ascending.
func (s *Store) ListActiveRuleIDs(ctx context.Context) ([]finance.RuleID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM recurring_transactions WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, storageErr("list active rules", err)
	}
	defer rows.Close()

	var ids []finance.RuleID
	for rows.Next() {
		var id finance.RuleID
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan rule id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// txStore is the finance.Tx view over one *sql.Tx. It must never reach for
// Store.db: with one connection (":memory:") that would deadlock.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) LockAccount(ctx context.Context, id finance.AccountID) (finance.Account, error) {
	return getAccount(ctx, ts.tx, id)
}

func (ts *txStore) AdjustAccountBalance(ctx context.Context, id finance.AccountID, delta decimal.Decimal) error {
	var current decimal.Decimal
	err := ts.tx.QueryRowContext(ctx, `SELECT current_balance FROM accounts WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return &finance.NotFoundError{Kind: "account", ID: int64(id)}
	}
	if err != nil {
		return storageErr("read balance", err)
	}

	_, err = ts.tx.ExecContext(ctx,
		`UPDATE accounts SET current_balance = ?, updated_at = ? WHERE id = ?`,
		current.Add(delta).String(), now(), id,
	)
	if err != nil {
		return storageErr("update balance", err)
	}
	return nil
}

func (ts *txStore) LockRule(ctx context.Context, id finance.RuleID) (finance.RecurringRule, error) {
	return getRule(ctx, ts.tx, id)
}

func (ts *txStore) AdvanceRuleCheckpoint(ctx context.Context, id finance.RuleID, to finance.Date) error {
	_, err := ts.tx.ExecContext(ctx, `
		UPDATE recurring_transactions
		SET last_materialized_date = ?, updated_at = ?
		WHERE id = ? AND (last_materialized_date IS NULL OR last_materialized_date < ?)
	`, to, now(), id, to)
	if err != nil {
		return storageErr("advance checkpoint", err)
	}
	return nil
}

func (ts *txStore) InsertTransaction(ctx context.Context, t finance.Transaction) (finance.TransactionID, error) {
	stamp := now()
	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO transactions
		(date, type, amount, account_from_id, account_to_id, category_id,
		 description, notes, recurring_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.Date, t.Type, t.Amount.String(), t.From, t.To, t.CategoryID,
		nullString(t.Description), nullString(t.Notes), t.RecurringID, stamp, stamp,
	)
	if err != nil {
		return 0, constraintErr("insert transaction", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("insert transaction", err)
	}
	txID := finance.TransactionID(id)
	if err := ts.replaceTags(ctx, txID, t.TagIDs); err != nil {
		return 0, err
	}
	return txID, nil
}

func (ts *txStore) GetTransaction(ctx context.Context, id finance.TransactionID) (finance.Transaction, error) {
	row := ts.tx.QueryRowContext(ctx, transactionSelect+` WHERE t.id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return finance.Transaction{}, &finance.NotFoundError{Kind: "transaction", ID: int64(id)}
	}
	return t, err
}

func (ts *txStore) UpdateTransaction(ctx context.Context, t finance.Transaction) error {
	res, err := ts.tx.ExecContext(ctx, `
		UPDATE transactions SET
			date = ?, type = ?, amount = ?, account_from_id = ?, account_to_id = ?,
			category_id = ?, description = ?, notes = ?, recurring_id = ?, updated_at = ?
		WHERE id = ?
	`,
		t.Date, t.Type, t.Amount.String(), t.From, t.To,
		t.CategoryID, nullString(t.Description), nullString(t.Notes), t.RecurringID, now(),
		t.ID,
	)
	if err != nil {
		return constraintErr("update transaction", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &finance.NotFoundError{Kind: "transaction", ID: int64(t.ID)}
	}
	return ts.replaceTags(ctx, t.ID, t.TagIDs)
}

func (ts *txStore) DeleteTransaction(ctx context.Context, id finance.TransactionID) error {
	res, err := ts.tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return constraintErr("delete transaction", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &finance.NotFoundError{Kind: "transaction", ID: int64(id)}
	}
	return nil
}

func (ts *txStore) replaceTags(ctx context.Context, id finance.TransactionID, tags []finance.TagID) error {
	if _, err := ts.tx.ExecContext(ctx, `DELETE FROM transaction_tags WHERE transaction_id = ?`, id); err != nil {
		return storageErr("clear tags", err)
	}
	for _, tag := range tags {
		_, err := ts.tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO transaction_tags (transaction_id, tag_id) VALUES (?, ?)`, id, tag)
		if err != nil {
			return constraintErr("link tag", err)
		}
	}
	return nil
}

// =============================================================================
// SHARED READERS
// =============================================================================

const accountColumns = `id, name, type, initial_balance, current_balance, credit_limit,
	currency, color, icon, is_active, created_at, updated_at`

func getAccount(ctx context.Context, q querier, id finance.AccountID) (finance.Account, error) {
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return finance.Account{}, &finance.NotFoundError{Kind: "account", ID: int64(id)}
	}
	return a, err
}

func scanAccount(row scanner) (finance.Account, error) {
	var (
		a                    finance.Account
		creditLimit          decimal.NullDecimal
		color, icon          sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&a.ID, &a.Name, &a.Type, &a.InitialBalance, &a.CurrentBalance, &creditLimit,
		&a.Currency, &color, &icon, &a.IsActive, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, err
		}
		return a, storageErr("scan account", err)
	}
	if creditLimit.Valid {
		a.CreditLimit = &creditLimit.Decimal
	}
	a.Color, a.Icon = color.String, icon.String
	a.CreatedAt, a.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
	return a, nil
}

const ruleColumns = `id, name, type, amount, account_from_id, account_to_id, category_id,
	description, frequency, start_date, end_date, is_active, last_materialized_date,
	created_at, updated_at`

func getRule(ctx context.Context, q querier, id finance.RuleID) (finance.RecurringRule, error) {
	row := q.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM recurring_transactions WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return finance.RecurringRule{}, &finance.NotFoundError{Kind: "recurring rule", ID: int64(id)}
	}
	return r, err
}

func scanRule(row scanner) (finance.RecurringRule, error) {
	var (
		r                    finance.RecurringRule
		description          sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&r.ID, &r.Name, &r.Type, &r.Amount, &r.From, &r.To, &r.CategoryID,
		&description, &r.Frequency, &r.StartDate, &r.EndDate, &r.IsActive, &r.LastMaterialized,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, storageErr("scan rule", err)
	}
	r.Description = description.String
	r.CreatedAt, r.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
	return r, nil
}

const transactionSelect = `
	SELECT t.id, t.date, t.type, t.amount, t.account_from_id, t.account_to_id, t.category_id,
	       t.description, t.notes, t.recurring_id, t.created_at, t.updated_at,
	       (SELECT GROUP_CONCAT(tag_id) FROM transaction_tags WHERE transaction_id = t.id)
	FROM transactions t`

func scanTransaction(row scanner) (finance.Transaction, error) {
	var (
		t                    finance.Transaction
		description, notes   sql.NullString
		tags                 sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&t.ID, &t.Date, &t.Type, &t.Amount, &t.From, &t.To, &t.CategoryID,
		&description, &notes, &t.RecurringID, &createdAt, &updatedAt, &tags,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, storageErr("scan transaction", err)
	}
	t.Description, t.Notes = description.String, notes.String
	t.CreatedAt, t.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
	t.TagIDs = parseTagIDs(tags.String)
	return t, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func now() string { return time.Now().UTC().Format(time.RFC3339) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseTagIDs(s string) []finance.TagID {
	if s == "" {
		return nil
	}
	var ids []finance.TagID
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil {
			ids = append(ids, finance.TagID(n))
		}
	}
	return ids
}

func storageErr(op string, err error) error {
	return &finance.StorageError{Op: op, Err: err}
}

// constraintErr classifies SQLite constraint failures as client errors and
// everything else as storage errors.
func constraintErr(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return &finance.ConflictError{Message: op + ": duplicate " + uniqueTarget(se.Error())}
		case sqlite3.ErrConstraintForeignKey:
			return &finance.ValidationError{Message: op + ": references a row that does not exist or is still referenced"}
		case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintNotNull:
			return &finance.ValidationError{Message: op + ": " + se.Error()}
		}
	}
	return storageErr(op, err)
}

func uniqueTarget(msg string) string {
	if _, after, ok := strings.Cut(msg, "UNIQUE constraint failed: "); ok {
		return after
	}
	return "row"
}
