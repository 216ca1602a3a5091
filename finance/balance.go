/*
balance.go - The single write path for account balances

PURPOSE:
  Every balance change (manual transaction, amendment, deletion, balance
  correction, recurring materialization) goes through ApplyEffect. Nothing
  else touches Account.CurrentBalance.

EFFECT:
  A transaction's effect is "subtract Amount from From, add Amount to To".
  Reversing an effect swaps the sides, so Apply followed by Reverse is a
  no-op on every balance.

LOCK ORDER:
  Accounts are locked in ascending ID order before any adjustment so two
  units touching the same pair of accounts can't deadlock.

SEE ALSO:
  - ledger.go: Record / Amend / Remove / AdjustBalance
  - materialize.go: Applies one effect per generated occurrence
*/
package finance

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// Effect is the balance movement implied by one transaction.
type Effect struct {
	Amount decimal.Decimal
	From   *AccountID
	To     *AccountID
}

// EffectOf returns the balance effect of tx.
func EffectOf(tx Transaction) Effect {
	return Effect{Amount: tx.Amount, From: tx.From, To: tx.To}
}

// Reverse returns the effect that undoes e.
func (e Effect) Reverse() Effect {
	return Effect{Amount: e.Amount, From: e.To, To: e.From}
}

// Delta returns how much e changes the balance of account id.
func (e Effect) Delta(id AccountID) decimal.Decimal {
	delta := decimal.Zero
	if e.From != nil && *e.From == id {
		delta = delta.Sub(e.Amount)
	}
	if e.To != nil && *e.To == id {
		delta = delta.Add(e.Amount)
	}
	return delta
}

// Accounts returns the distinct accounts e touches, ascending.
func (e Effect) Accounts() []AccountID {
	var ids []AccountID
	if e.From != nil {
		ids = append(ids, *e.From)
	}
	if e.To != nil {
		ids = append(ids, *e.To)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// ApplyEffect locks the touched accounts and moves e.Amount from source to
// destination. A missing account yields a NotFoundError and the caller's unit
// is expected to roll back.
func ApplyEffect(ctx context.Context, tx Tx, e Effect) error {
	if e.Amount.IsZero() {
		return nil
	}
	for _, id := range e.Accounts() {
		if _, err := tx.LockAccount(ctx, id); err != nil {
			return fmt.Errorf("lock account %d: %w", id, err)
		}
	}
	for _, id := range e.Accounts() {
		if err := tx.AdjustAccountBalance(ctx, id, e.Delta(id)); err != nil {
			return fmt.Errorf("adjust account %d: %w", id, err)
		}
	}
	return nil
}

// ReverseEffect undoes a previously applied effect.
func ReverseEffect(ctx context.Context, tx Tx, e Effect) error {
	return ApplyEffect(ctx, tx, e.Reverse())
}

// ReplayBalance recomputes an account balance from its initial value and the
// full list of transactions. It is the reference the stored CurrentBalance
// must agree with.
func ReplayBalance(initial decimal.Decimal, id AccountID, txs []Transaction) decimal.Decimal {
	balance := initial
	for _, tx := range txs {
		balance = balance.Add(EffectOf(tx).Delta(id))
	}
	return balance
}
