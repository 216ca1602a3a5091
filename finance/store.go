/*
store.go - Persistence interfaces for the finance engine

PURPOSE:
  Defines what the engine needs from a database: an atomic unit of work
  with row locks on accounts and recurring rules. The storage handle is
  created by the caller and injected; the engine never opens or closes it.

KEY INTERFACES:
  Store: Unit-of-work entry point plus lock-free reads used by batch runs
  Tx:    Operations valid inside one unit; all-or-nothing

LOCKING CONTRACT:
  LockRule and LockAccount must give the calling unit exclusive access to
  the row until the unit ends. A second unit materializing the same rule
  must observe the checkpoint written by the first.

IMPLEMENTATIONS:
  - store/sqlite: SQLite with BEGIN IMMEDIATE write transactions
  - finance/store: In-memory for tests

SEE ALSO:
  - balance.go: Uses LockAccount / AdjustAccountBalance
  - materialize.go: Uses LockRule / AdvanceRuleCheckpoint
*/
package finance

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TX - Operations inside one atomic unit
// =============================================================================

type Tx interface {
	// LockAccount locks and returns the account. NotFoundError if missing.
	LockAccount(ctx context.Context, id AccountID) (Account, error)

	// AdjustAccountBalance adds delta to current_balance and bumps updated_at.
	AdjustAccountBalance(ctx context.Context, id AccountID, delta decimal.Decimal) error

	// LockRule locks and returns the recurring rule. NotFoundError if missing.
	LockRule(ctx context.Context, id RuleID) (RecurringRule, error)

	// AdvanceRuleCheckpoint sets last_materialized_date. It never moves the
	// checkpoint backwards.
	AdvanceRuleCheckpoint(ctx context.Context, id RuleID, to Date) error

	// InsertTransaction persists tx (including tag links) and returns its ID.
	InsertTransaction(ctx context.Context, tx Transaction) (TransactionID, error)

	// GetTransaction loads a transaction. NotFoundError if missing.
	GetTransaction(ctx context.Context, id TransactionID) (Transaction, error)

	// UpdateTransaction overwrites every mutable column of tx.ID.
	UpdateTransaction(ctx context.Context, tx Transaction) error

	DeleteTransaction(ctx context.Context, id TransactionID) error
}

// =============================================================================
// STORE - Unit-of-work entry point
// =============================================================================

type Store interface {
	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the Tx is rolled back.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// GetRule reads a rule without locking it.
	GetRule(ctx context.Context, id RuleID) (RecurringRule, error)

	// ListActiveRuleIDs returns the IDs of active rules, ascending.
	ListActiveRuleIDs(ctx context.Context) ([]RuleID, error)
}
