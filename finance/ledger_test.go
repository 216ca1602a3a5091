package finance_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finance-tracker/finance"
)

func TestLedger_RecordExpense(t *testing.T) {
	// GIVEN: Checking with 1000
	f := newFixture(t)
	ledger := finance.NewLedger(f.store)
	from := f.checking.ID

	// WHEN: A 42.10 expense is recorded
	tx, err := ledger.Record(context.Background(), finance.Transaction{
		Date: d("2024-03-01"), Type: finance.TxExpense, Amount: dec("42.10"), From: &from,
	})

	// THEN: It gets an ID and the balance drops
	require.NoError(t, err)
	assert.NotZero(t, tx.ID)
	assertAmount(t, "957.90", f.balance(t, f.checking.ID))
}

func TestLedger_RecordRejectsInvalidShape(t *testing.T) {
	f := newFixture(t)
	ledger := finance.NewLedger(f.store)
	a, b := f.checking.ID, f.savings.ID

	cases := map[string]finance.Transaction{
		"zero amount":          {Date: d("2024-03-01"), Type: finance.TxExpense, Amount: dec("0"), From: &a},
		"expense without from": {Date: d("2024-03-01"), Type: finance.TxExpense, Amount: dec("1"), To: &a},
		"income with from":     {Date: d("2024-03-01"), Type: finance.TxIncome, Amount: dec("1"), From: &a, To: &b},
		"transfer to self":     {Date: d("2024-03-01"), Type: finance.TxTransfer, Amount: dec("1"), From: &a, To: &a},
		"correction two sides": {Date: d("2024-03-01"), Type: finance.TxCorrection, Amount: dec("1"), From: &a, To: &b},
		"missing date":         {Type: finance.TxIncome, Amount: dec("1"), To: &a},
	}
	for name, tx := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ledger.Record(context.Background(), tx)
			assert.ErrorIs(t, err, finance.ErrValidation)
		})
	}
	assert.Empty(t, f.store.Transactions())
}

func TestLedger_AmendMovesEffect(t *testing.T) {
	// GIVEN: A 100 expense from checking
	f := newFixture(t)
	ledger := finance.NewLedger(f.store)
	ctx := context.Background()
	a, b := f.checking.ID, f.savings.ID
	tx, err := ledger.Record(ctx, finance.Transaction{
		Date: d("2024-03-01"), Type: finance.TxExpense, Amount: dec("100"), From: &a,
	})
	require.NoError(t, err)

	// WHEN: It is amended into a 30 income to savings
	tx.Type = finance.TxIncome
	tx.Amount = dec("30")
	tx.From = nil
	tx.To = &b
	_, err = ledger.Amend(ctx, tx)

	// THEN: The old effect is gone and the new one applied
	require.NoError(t, err)
	assertAmount(t, "1000", f.balance(t, f.checking.ID))
	assertAmount(t, "30", f.balance(t, f.savings.ID))
}

func TestLedger_AmendKeepsRuleLink(t *testing.T) {
	f := newFixture(t)
	rule := f.monthlyExpense("2024-01-15", nil)
	ctx := context.Background()
	res, err := f.engine.Materialize(ctx, rule.ID, d("2024-02-20"), 0)
	require.NoError(t, err)
	require.Len(t, res.TransactionIDs, 1)

	generated := f.store.Transactions()[0]
	generated.Amount = dec("55")
	generated.RecurringID = nil
	_, err = finance.NewLedger(f.store).Amend(ctx, generated)
	require.NoError(t, err)

	stored := f.store.Transactions()[0]
	require.NotNil(t, stored.RecurringID)
	assert.Equal(t, rule.ID, *stored.RecurringID)
	assertAmount(t, "945", f.balance(t, f.checking.ID))
}

func TestLedger_AmendDateDetachesFromRule(t *testing.T) {
	// GIVEN: The February occurrence of a monthly rule
	f := newFixture(t)
	rule := f.monthlyExpense("2024-01-15", nil)
	ctx := context.Background()
	_, err := f.engine.Materialize(ctx, rule.ID, d("2024-02-20"), 0)
	require.NoError(t, err)

	// WHEN: It is moved onto the March occurrence date
	generated := f.store.Transactions()[0]
	generated.Date = d("2024-03-15")
	_, err = finance.NewLedger(f.store).Amend(ctx, generated)
	require.NoError(t, err)

	// THEN: It no longer belongs to the rule
	assert.Nil(t, f.store.Transactions()[0].RecurringID)

	// AND: The rule still generates March and April
	res, err := f.engine.Materialize(ctx, rule.ID, d("2024-04-20"), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)

	linked := 0
	for _, tx := range f.store.Transactions() {
		if tx.RecurringID != nil {
			linked++
		}
	}
	assert.Equal(t, 2, linked)
	assertAmount(t, "850", f.balance(t, f.checking.ID))
}

func TestLedger_RemoveRestoresBalance(t *testing.T) {
	f := newFixture(t)
	ledger := finance.NewLedger(f.store)
	ctx := context.Background()
	a, b := f.checking.ID, f.savings.ID
	tx, err := ledger.Record(ctx, finance.Transaction{
		Date: d("2024-03-01"), Type: finance.TxTransfer, Amount: dec("200"), From: &a, To: &b,
	})
	require.NoError(t, err)

	require.NoError(t, ledger.Remove(ctx, tx.ID))

	assertAmount(t, "1000", f.balance(t, f.checking.ID))
	assertAmount(t, "0", f.balance(t, f.savings.ID))
	assert.Empty(t, f.store.Transactions())
}

func TestLedger_RemoveMissing(t *testing.T) {
	f := newFixture(t)

	err := finance.NewLedger(f.store).Remove(context.Background(), 77)

	assert.True(t, finance.IsNotFound(err))
}

func TestLedger_AdjustBalance(t *testing.T) {
	f := newFixture(t)
	ledger := finance.NewLedger(f.store)
	ctx := context.Background()

	// Down: correction debits the account
	down, err := ledger.AdjustBalance(ctx, f.checking.ID, dec("940"), d("2024-03-01"), "cash count")
	require.NoError(t, err)
	require.NotNil(t, down)
	assert.Equal(t, finance.TxCorrection, down.Type)
	require.NotNil(t, down.From)
	assert.Nil(t, down.To)
	assertAmount(t, "60", down.Amount)
	assertAmount(t, "940", f.balance(t, f.checking.ID))

	// Up: correction credits the account
	up, err := ledger.AdjustBalance(ctx, f.checking.ID, dec("1010"), d("2024-03-02"), "")
	require.NoError(t, err)
	require.NotNil(t, up)
	require.NotNil(t, up.To)
	assertAmount(t, "70", up.Amount)
	assertAmount(t, "1010", f.balance(t, f.checking.ID))

	// Same: nothing written
	same, err := ledger.AdjustBalance(ctx, f.checking.ID, dec("1010"), d("2024-03-03"), "")
	require.NoError(t, err)
	assert.Nil(t, same)
	assert.Len(t, f.store.Transactions(), 2)

	assertAmount(t, "1010", finance.ReplayBalance(dec("1000"), f.checking.ID, f.store.Transactions()))
}

func TestBudgetPeriodFor(t *testing.T) {
	on := d("2024-05-17")

	assert.Equal(t, finance.Period{Start: on, End: on}, finance.BudgetPeriodFor(finance.FrequencyDaily, d("2024-01-01"), on))
	assert.Equal(t, finance.Period{Start: d("2024-05-13"), End: d("2024-05-19")}, finance.BudgetPeriodFor(finance.FrequencyWeekly, d("2024-01-01"), on))
	assert.Equal(t, finance.Period{Start: d("2024-05-01"), End: d("2024-05-31")}, finance.BudgetPeriodFor(finance.FrequencyMonthly, d("2024-01-01"), on))
	assert.Equal(t, finance.Period{Start: d("2024-04-01"), End: d("2024-06-30")}, finance.BudgetPeriodFor(finance.FrequencyQuarterly, d("2024-01-01"), on))
	assert.Equal(t, finance.Period{Start: d("2024-01-01"), End: d("2024-12-31")}, finance.BudgetPeriodFor(finance.FrequencyYearly, d("2024-01-01"), on))
}

func TestNewBudgetStatus(t *testing.T) {
	b := finance.Budget{Name: "Food", CategoryID: 1, Amount: dec("200"), Period: finance.FrequencyMonthly, StartDate: d("2024-01-01")}
	p := finance.BudgetPeriodFor(b.Period, b.StartDate, d("2024-05-17"))

	st := finance.NewBudgetStatus(b, p, dec("250"))

	assert.True(t, st.OverBudget)
	assertAmount(t, "-50", st.Remaining)
	assert.InDelta(t, 125.0, st.UsagePct, 0.001)
}

func TestSavingsGoal_Deposit(t *testing.T) {
	g := finance.SavingsGoal{Name: "Bike", TargetAmount: dec("500"), CurrentAmount: dec("450")}

	g, err := g.Deposit(dec("60"), d("2024-05-01").Time())
	require.NoError(t, err)
	assert.True(t, g.IsAchieved)
	assert.NotNil(t, g.AchievedAt)
	assertAmount(t, "510", g.CurrentAmount)

	_, err = g.Deposit(dec("1"), d("2024-05-02").Time())
	assert.ErrorIs(t, err, finance.ErrConflict)
}
