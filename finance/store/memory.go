// Package store provides Store implementations.
package store

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/finance-tracker/finance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps accounts, rules and transactions in maps. A unit of work holds
// the store mutex for its whole duration, which serializes units the way row
// locks serialize them in a database.
type Memory struct {
	mu           sync.Mutex
	accounts     map[finance.AccountID]finance.Account
	rules        map[finance.RuleID]finance.RecurringRule
	transactions map[finance.TransactionID]finance.Transaction
	nextID       int64
}

func NewMemory() *Memory {
	return &Memory{
		accounts:     make(map[finance.AccountID]finance.Account),
		rules:        make(map[finance.RuleID]finance.RecurringRule),
		transactions: make(map[finance.TransactionID]finance.Transaction),
	}
}

func (m *Memory) newID() int64 {
	m.nextID++
	return m.nextID
}

// CreateAccount stores a new account with CurrentBalance = InitialBalance.
func (m *Memory) CreateAccount(a finance.Account) finance.Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	a.ID = finance.AccountID(m.newID())
	a.CurrentBalance = a.InitialBalance
	a.IsActive = true
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	m.accounts[a.ID] = a
	return a
}

// CreateRule stores a new recurring rule as given.
func (m *Memory) CreateRule(r finance.RecurringRule) finance.RecurringRule {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.ID = finance.RuleID(m.newID())
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	m.rules[r.ID] = r
	return r
}

// SetRuleActive flips a rule's active flag.
func (m *Memory) SetRuleActive(id finance.RuleID, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rules[id]; ok {
		r.IsActive = active
		m.rules[id] = r
	}
}

func (m *Memory) Account(id finance.AccountID) (finance.Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	return a, ok
}

// Transactions returns every stored transaction ordered by date, then ID.
func (m *Memory) Transactions() []finance.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := slices.Collect(maps.Values(m.transactions))
	slices.SortFunc(out, func(a, b finance.Transaction) int {
		if c := a.Date.Time().Compare(b.Date.Time()); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	return out
}

func (m *Memory) GetRule(_ context.Context, id finance.RuleID) (finance.RecurringRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[id]
	if !ok {
		return finance.RecurringRule{}, &finance.NotFoundError{Kind: "recurring rule", ID: int64(id)}
	}
	return r, nil
}

func (m *Memory) ListActiveRuleIDs(_ context.Context) ([]finance.RuleID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []finance.RuleID
	for id, r := range m.rules {
		if r.IsActive {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(finance.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&memoryTx{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	accounts     map[finance.AccountID]finance.Account
	rules        map[finance.RuleID]finance.RecurringRule
	transactions map[finance.TransactionID]finance.Transaction
	nextID       int64
}

func (m *Memory) snapshot() memorySnapshot {
	return memorySnapshot{
		accounts:     maps.Clone(m.accounts),
		rules:        maps.Clone(m.rules),
		transactions: maps.Clone(m.transactions),
		nextID:       m.nextID,
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.accounts = s.accounts
	m.rules = s.rules
	m.transactions = s.transactions
	m.nextID = s.nextID
}

type memoryTx struct {
	parent *Memory
}

func (tx *memoryTx) LockAccount(_ context.Context, id finance.AccountID) (finance.Account, error) {
	a, ok := tx.parent.accounts[id]
	if !ok {
		return finance.Account{}, &finance.NotFoundError{Kind: "account", ID: int64(id)}
	}
	return a, nil
}

func (tx *memoryTx) AdjustAccountBalance(_ context.Context, id finance.AccountID, delta decimal.Decimal) error {
	a, ok := tx.parent.accounts[id]
	if !ok {
		return &finance.NotFoundError{Kind: "account", ID: int64(id)}
	}
	a.CurrentBalance = a.CurrentBalance.Add(delta)
	a.UpdatedAt = time.Now().UTC()
	tx.parent.accounts[id] = a
	return nil
}

func (tx *memoryTx) LockRule(_ context.Context, id finance.RuleID) (finance.RecurringRule, error) {
	r, ok := tx.parent.rules[id]
	if !ok {
		return finance.RecurringRule{}, &finance.NotFoundError{Kind: "recurring rule", ID: int64(id)}
	}
	return r, nil
}

func (tx *memoryTx) AdvanceRuleCheckpoint(_ context.Context, id finance.RuleID, to finance.Date) error {
	r, ok := tx.parent.rules[id]
	if !ok {
		return &finance.NotFoundError{Kind: "recurring rule", ID: int64(id)}
	}
	if r.LastMaterialized != nil && !to.After(*r.LastMaterialized) {
		return nil
	}
	r.LastMaterialized = &to
	r.UpdatedAt = time.Now().UTC()
	tx.parent.rules[id] = r
	return nil
}

func (tx *memoryTx) InsertTransaction(_ context.Context, t finance.Transaction) (finance.TransactionID, error) {
	if t.RecurringID != nil {
		for _, existing := range tx.parent.transactions {
			if existing.RecurringID != nil && *existing.RecurringID == *t.RecurringID && existing.Date.Equal(t.Date) {
				return 0, &finance.ConflictError{Message: "occurrence already materialized"}
			}
		}
	}
	t.ID = finance.TransactionID(tx.parent.newID())
	t.TagIDs = slices.Clone(t.TagIDs)
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	tx.parent.transactions[t.ID] = t
	return t.ID, nil
}

func (tx *memoryTx) GetTransaction(_ context.Context, id finance.TransactionID) (finance.Transaction, error) {
	t, ok := tx.parent.transactions[id]
	if !ok {
		return finance.Transaction{}, &finance.NotFoundError{Kind: "transaction", ID: int64(id)}
	}
	return t, nil
}

func (tx *memoryTx) UpdateTransaction(_ context.Context, t finance.Transaction) error {
	if _, ok := tx.parent.transactions[t.ID]; !ok {
		return &finance.NotFoundError{Kind: "transaction", ID: int64(t.ID)}
	}
	t.UpdatedAt = time.Now().UTC()
	tx.parent.transactions[t.ID] = t
	return nil
}

func (tx *memoryTx) DeleteTransaction(_ context.Context, id finance.TransactionID) error {
	if _, ok := tx.parent.transactions[id]; !ok {
		return &finance.NotFoundError{Kind: "transaction", ID: int64(id)}
	}
	delete(tx.parent.transactions, id)
	return nil
}
