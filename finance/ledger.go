/*
ledger.go - Manual transaction lifecycle

PURPOSE:
  Records, amends and removes user-entered transactions and performs
  balance corrections. Each operation is one Store.WithTx unit that writes
  the transaction row and applies its balance effect together.

AMENDMENTS:
  A change to amount, date, type or accounts is applied as
  "reverse the old effect, write the new row, apply the new effect".
  A generated transaction keeps its rule link (RecurringID) unless its date
  moves: a re-dated occurrence becomes a manual entry, so it can never sit
  on a date the rule still has to materialize.

CORRECTIONS:
  AdjustBalance brings an account to a target balance by writing a
  correction transaction for the difference: a decrease debits the account
  (From), an increase credits it (To).

SEE ALSO:
  - balance.go: ApplyEffect / ReverseEffect
  - materialize.go: The recurring write path
*/
package finance

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

type Ledger struct {
	Store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store}
}

// Record validates and writes tx, then applies its effect.
func (l *Ledger) Record(ctx context.Context, tx Transaction) (Transaction, error) {
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	err := l.Store.WithTx(ctx, func(s Tx) error {
		id, err := s.InsertTransaction(ctx, tx)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		tx.ID = id
		return ApplyEffect(ctx, s, EffectOf(tx))
	})
	if err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// Amend replaces transaction tx.ID with tx.
func (l *Ledger) Amend(ctx context.Context, tx Transaction) (Transaction, error) {
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	err := l.Store.WithTx(ctx, func(s Tx) error {
		old, err := s.GetTransaction(ctx, tx.ID)
		if err != nil {
			return err
		}
		if err := ReverseEffect(ctx, s, EffectOf(old)); err != nil {
			return err
		}
		tx.RecurringID = nil
		if old.RecurringID != nil && old.Date.Equal(tx.Date) {
			tx.RecurringID = old.RecurringID
		}
		tx.CreatedAt = old.CreatedAt
		if err := s.UpdateTransaction(ctx, tx); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		return ApplyEffect(ctx, s, EffectOf(tx))
	})
	if err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// Remove deletes a transaction and reverses its effect.
func (l *Ledger) Remove(ctx context.Context, id TransactionID) error {
	return l.Store.WithTx(ctx, func(s Tx) error {
		old, err := s.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := ReverseEffect(ctx, s, EffectOf(old)); err != nil {
			return err
		}
		return s.DeleteTransaction(ctx, id)
	})
}

// AdjustBalance writes a correction so the account ends at target. It returns
// nil and no error when the balance already matches.
func (l *Ledger) AdjustBalance(ctx context.Context, id AccountID, target decimal.Decimal, on Date, note string) (*Transaction, error) {
	var out *Transaction
	err := l.Store.WithTx(ctx, func(s Tx) error {
		acct, err := s.LockAccount(ctx, id)
		if err != nil {
			return err
		}
		diff := target.Sub(acct.CurrentBalance)
		if diff.IsZero() {
			return nil
		}

		tx := Transaction{
			Date:        on,
			Type:        TxCorrection,
			Amount:      diff.Abs(),
			Description: "Balance correction",
			Notes:       note,
		}
		accountID := id
		if diff.IsNegative() {
			tx.From = &accountID
		} else {
			tx.To = &accountID
		}
		if err := tx.Validate(); err != nil {
			return err
		}

		txID, err := s.InsertTransaction(ctx, tx)
		if err != nil {
			return fmt.Errorf("insert correction: %w", err)
		}
		tx.ID = txID
		if err := ApplyEffect(ctx, s, EffectOf(tx)); err != nil {
			return err
		}
		out = &tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
