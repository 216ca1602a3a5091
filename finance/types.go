/*
Package finance provides the personal-finance ledger engine.

PURPOSE:
  Accounts hold balances, transactions move money between them, and
  recurring rules expand into transactions on a schedule. This package owns
  the invariants; persistence lives behind the Store interface.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: A balance holder whose CurrentBalance is derived from its ledger
  - Transaction: One dated movement of money (expense, income, transfer, correction)
  - RecurringRule: A template that materializes into transactions
  - Category, Tag, Budget, SavingsGoal: Catalog entities around the ledger

DESIGN PRINCIPLES:
  1. Precision: Money is decimal.Decimal, never float64
  2. Type Safety: Distinct ID types so an AccountID can't be passed as a RuleID
  3. Single write path: Balances change only through ApplyEffect (balance.go)

SEE ALSO:
  - balance.go: Balance effects of a transaction
  - recurrence.go: Due-date calculation
  - materialize.go: Recurring rule expansion
*/
package finance

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID int64
type TransactionID int64
type CategoryID int64
type TagID int64
type RuleID int64
type BudgetID int64
type GoalID int64

// =============================================================================
// ENUMERATIONS
// =============================================================================

type TransactionType string

const (
	TxExpense    TransactionType = "expense"
	TxIncome     TransactionType = "income"
	TxTransfer   TransactionType = "transfer"
	TxCorrection TransactionType = "correction"
)

func (t TransactionType) Validate() error {
	switch t {
	case TxExpense, TxIncome, TxTransfer, TxCorrection:
		return nil
	}
	return invalid("type", "unknown transaction type %q", string(t))
}

type AccountType string

const (
	AccountCash       AccountType = "cash"
	AccountDebitCard  AccountType = "debit_card"
	AccountCreditCard AccountType = "credit_card"
	AccountSavings    AccountType = "savings"
	AccountInvestment AccountType = "investment"
)

func (t AccountType) Validate() error {
	switch t {
	case AccountCash, AccountDebitCard, AccountCreditCard, AccountSavings, AccountInvestment:
		return nil
	}
	return invalid("type", "unknown account type %q", string(t))
}

// =============================================================================
// ACCOUNT
// =============================================================================

// Account holds money. CurrentBalance always equals InitialBalance plus
// inbound minus outbound transaction amounts.
type Account struct {
	ID             AccountID        `json:"id"`
	Name           string           `json:"name"`
	Type           AccountType      `json:"type"`
	InitialBalance decimal.Decimal  `json:"initial_balance"`
	CurrentBalance decimal.Decimal  `json:"current_balance"`
	CreditLimit    *decimal.Decimal `json:"credit_limit,omitempty"`
	Currency       string           `json:"currency"`
	Color          string           `json:"color,omitempty"`
	Icon           string           `json:"icon,omitempty"`
	IsActive       bool             `json:"is_active"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return invalid("name", "must not be empty")
	}
	if err := a.Type.Validate(); err != nil {
		return err
	}
	if a.CreditLimit != nil && a.CreditLimit.IsNegative() {
		return invalid("credit_limit", "must not be negative")
	}
	return nil
}

// =============================================================================
// TRANSACTION
// =============================================================================

type Transaction struct {
	ID          TransactionID   `json:"id"`
	Date        Date            `json:"date"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	From        *AccountID      `json:"account_from_id,omitempty"`
	To          *AccountID      `json:"account_to_id,omitempty"`
	CategoryID  *CategoryID     `json:"category_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	TagIDs      []TagID         `json:"tag_ids,omitempty"`
	RecurringID *RuleID         `json:"recurring_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate enforces the per-type account shape:
//
//	expense    from only
//	income     to only
//	transfer   from and to, distinct
//	correction exactly one side
func (tx Transaction) Validate() error {
	if tx.Date.IsZero() {
		return invalid("date", "is required")
	}
	if !tx.Amount.IsPositive() {
		return invalid("amount", "must be greater than zero")
	}
	if err := tx.Type.Validate(); err != nil {
		return err
	}
	return validateSides(tx.Type, tx.From, tx.To)
}

func validateSides(t TransactionType, from, to *AccountID) error {
	switch t {
	case TxExpense:
		if from == nil || to != nil {
			return invalid("account_from_id", "expense requires a source account and no destination")
		}
	case TxIncome:
		if to == nil || from != nil {
			return invalid("account_to_id", "income requires a destination account and no source")
		}
	case TxTransfer:
		if from == nil || to == nil {
			return invalid("account_from_id", "transfer requires both source and destination accounts")
		}
		if *from == *to {
			return invalid("account_to_id", "transfer source and destination must differ")
		}
	case TxCorrection:
		if (from == nil) == (to == nil) {
			return invalid("account_from_id", "correction requires exactly one account")
		}
	}
	return nil
}

// =============================================================================
// RECURRING RULE
// =============================================================================

// RecurringRule is a template for transactions repeated on a schedule.
// LastMaterialized is the checkpoint: the date of the latest occurrence
// already written to the ledger. Nil means nothing was written yet and the
// start date acts as the checkpoint.
type RecurringRule struct {
	ID               RuleID          `json:"id"`
	Name             string          `json:"name"`
	Type             TransactionType `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	From             *AccountID      `json:"account_from_id,omitempty"`
	To               *AccountID      `json:"account_to_id,omitempty"`
	CategoryID       *CategoryID     `json:"category_id,omitempty"`
	Description      string          `json:"description,omitempty"`
	Frequency        Frequency       `json:"frequency"`
	StartDate        Date            `json:"start_date"`
	EndDate          *Date           `json:"end_date,omitempty"`
	IsActive         bool            `json:"is_active"`
	LastMaterialized *Date           `json:"last_materialized_date,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (r RecurringRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return invalid("name", "must not be empty")
	}
	if !r.Amount.IsPositive() {
		return invalid("amount", "must be greater than zero")
	}
	if err := r.Type.Validate(); err != nil {
		return err
	}
	if err := r.Frequency.Validate(); err != nil {
		return err
	}
	if r.StartDate.IsZero() {
		return invalid("start_date", "is required")
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return invalid("end_date", "must not be before start_date")
	}
	return validateSides(r.Type, r.From, r.To)
}

// Checkpoint is the date after which occurrences are still pending. It is
// never earlier than StartDate, so moving the start date forward skips the
// occurrences before it even when older ones were already written.
func (r RecurringRule) Checkpoint() Date {
	if r.LastMaterialized != nil && r.LastMaterialized.After(r.StartDate) {
		return *r.LastMaterialized
	}
	return r.StartDate
}

// Schedule returns the rule's recurrence, anchored on the start date's day.
func (r RecurringRule) Schedule() Schedule {
	return Schedule{
		Frequency: r.Frequency,
		AnchorDay: r.StartDate.Day(),
		End:       r.EndDate,
	}
}

// OccurrenceDescription labels ledger rows generated from the rule.
func (r RecurringRule) OccurrenceDescription() string {
	return r.Name + " (auto)"
}

// Occurrence builds the ledger transaction for one due date.
func (r RecurringRule) Occurrence(on Date) Transaction {
	id := r.ID
	return Transaction{
		Date:        on,
		Type:        r.Type,
		Amount:      r.Amount,
		From:        r.From,
		To:          r.To,
		CategoryID:  r.CategoryID,
		Description: r.OccurrenceDescription(),
		Notes:       r.Description,
		RecurringID: &id,
	}
}

// =============================================================================
// CATALOG
// =============================================================================

type Category struct {
	ID       CategoryID      `json:"id"`
	Name     string          `json:"name"`
	ParentID *CategoryID     `json:"parent_id,omitempty"`
	Type     TransactionType `json:"type"`
	Icon     string          `json:"icon,omitempty"`
	Color    string          `json:"color,omitempty"`
	IsActive bool            `json:"is_active"`
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("name", "must not be empty")
	}
	if c.ParentID != nil && c.ID != 0 && *c.ParentID == c.ID {
		return invalid("parent_id", "category cannot be its own parent")
	}
	return c.Type.Validate()
}

type Tag struct {
	ID    TagID  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

func (t Tag) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return invalid("name", "must not be empty")
	}
	return nil
}

// Budget caps expenses in one category per period.
type Budget struct {
	ID         BudgetID        `json:"id"`
	Name       string          `json:"name"`
	CategoryID CategoryID      `json:"category_id"`
	Amount     decimal.Decimal `json:"amount"`
	Period     Frequency       `json:"period"`
	StartDate  Date            `json:"start_date"`
	EndDate    *Date           `json:"end_date,omitempty"`
	IsActive   bool            `json:"is_active"`
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return invalid("name", "must not be empty")
	}
	if !b.Amount.IsPositive() {
		return invalid("amount", "must be greater than zero")
	}
	if b.CategoryID == 0 {
		return invalid("category_id", "is required")
	}
	if b.StartDate.IsZero() {
		return invalid("start_date", "is required")
	}
	if b.EndDate != nil && b.EndDate.Before(b.StartDate) {
		return invalid("end_date", "must not be before start_date")
	}
	return b.Period.Validate()
}

type SavingsGoal struct {
	ID            GoalID          `json:"id"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	TargetDate    *Date           `json:"target_date,omitempty"`
	AccountID     *AccountID      `json:"account_id,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	IsAchieved    bool            `json:"is_achieved"`
	AchievedAt    *time.Time      `json:"achieved_at,omitempty"`
}

func (g SavingsGoal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return invalid("name", "must not be empty")
	}
	if !g.TargetAmount.IsPositive() {
		return invalid("target_amount", "must be greater than zero")
	}
	if g.CurrentAmount.IsNegative() {
		return invalid("current_amount", "must not be negative")
	}
	return nil
}

// Deposit adds amount to the goal and marks it achieved once the target is
// reached.
func (g SavingsGoal) Deposit(amount decimal.Decimal, at time.Time) (SavingsGoal, error) {
	if !amount.IsPositive() {
		return g, invalid("amount", "must be greater than zero")
	}
	if g.IsAchieved {
		return g, &ConflictError{Message: "savings goal already achieved"}
	}
	g.CurrentAmount = g.CurrentAmount.Add(amount)
	if g.CurrentAmount.GreaterThanOrEqual(g.TargetAmount) {
		g.IsAchieved = true
		g.AchievedAt = &at
	}
	return g, nil
}
