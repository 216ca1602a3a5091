package sqlite

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finance-tracker/finance"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func d(s string) finance.Date { return finance.MustParseDate(s) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

type fixture struct {
	store    *Store
	engine   *finance.Materializer
	ledger   *finance.Ledger
	checking finance.Account
	savings  finance.Account
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newTestStore(t)
	logger, _ := test.NewNullLogger()
	ctx := context.Background()

	checking, err := store.CreateAccount(ctx, finance.Account{Name: "Checking", Type: finance.AccountDebitCard, InitialBalance: dec("1000")})
	require.NoError(t, err)
	savings, err := store.CreateAccount(ctx, finance.Account{Name: "Savings", Type: finance.AccountSavings, InitialBalance: dec("0")})
	require.NoError(t, err)

	return &fixture{
		store:    store,
		engine:   finance.NewMaterializer(store, logger),
		ledger:   finance.NewLedger(store),
		checking: checking,
		savings:  savings,
	}
}

func (f *fixture) monthlyRent(t *testing.T, start string) finance.RecurringRule {
	t.Helper()
	from := f.checking.ID
	rule, err := f.store.CreateRule(context.Background(), finance.RecurringRule{
		Name:      "Rent",
		Type:      finance.TxExpense,
		Amount:    dec("50"),
		From:      &from,
		Frequency: finance.FrequencyMonthly,
		StartDate: d(start),
		IsActive:  true,
	})
	require.NoError(t, err)
	return rule
}

func (f *fixture) balance(t *testing.T, id finance.AccountID) decimal.Decimal {
	t.Helper()
	a, err := f.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a.CurrentBalance
}

// =============================================================================
// MIGRATIONS
// =============================================================================

func TestMigrate_AppliesAllVersions(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	status, err := store.Migrate()
	require.NoError(t, err)
	assert.Equal(t, uint(0), status.Before)
	assert.Equal(t, uint(3), status.After)
	assert.False(t, status.Dirty)

	again, err := store.Migrate()
	require.NoError(t, err)
	assert.Equal(t, uint(3), again.Before)
	assert.Equal(t, uint(3), again.After)

	version, dirty, err := store.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)
}

// =============================================================================
// MATERIALIZATION AGAINST SQLITE
// =============================================================================

func TestMaterialize_PersistsOccurrencesAndCheckpoint(t *testing.T) {
	// GIVEN: Monthly 50 expense starting 2024-01-15
	f := newFixture(t)
	rule := f.monthlyRent(t, "2024-01-15")
	ctx := context.Background()

	// WHEN: Materialized as of 2024-04-20
	res, err := f.engine.Materialize(ctx, rule.ID, d("2024-04-20"), 0)

	// THEN: Rows, balance and checkpoint are committed together
	require.NoError(t, err)
	assert.Equal(t, 3, res.Created)

	txs, err := f.store.AllTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, d("2024-02-15"), txs[0].Date)
	assert.Equal(t, "Rent (auto)", txs[0].Description)
	require.NotNil(t, txs[0].RecurringID)
	assert.Equal(t, rule.ID, *txs[0].RecurringID)

	assertAmount(t, "850", f.balance(t, f.checking.ID))
	assertAmount(t, "850", finance.ReplayBalance(dec("1000"), f.checking.ID, txs))

	stored, err := f.store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMaterialized)
	assert.Equal(t, d("2024-04-15"), *stored.LastMaterialized)
}

func TestMaterialize_SafetyCapResumesAcrossCalls(t *testing.T) {
	f := newFixture(t)
	rule := f.monthlyRent(t, "2024-01-15")
	ctx := context.Background()

	first, err := f.engine.Materialize(ctx, rule.ID, d("2024-04-20"), 1)
	require.NoError(t, err)
	second, err := f.engine.Materialize(ctx, rule.ID, d("2024-04-20"), 0)
	require.NoError(t, err)

	assert.True(t, first.Truncated)
	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 2, second.Created)

	txs, err := f.store.AllTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

func TestCreateRule_UnknownAccountRejected(t *testing.T) {
	// GIVEN: A transfer rule into an account that does not exist
	f := newFixture(t)
	ctx := context.Background()
	from, to := f.checking.ID, finance.AccountID(999)
	rule, err := f.store.CreateRule(ctx, finance.RecurringRule{
		Name: "Broken", Type: finance.TxTransfer, Amount: dec("10"), From: &from, To: &to,
		Frequency: finance.FrequencyDaily, StartDate: d("2024-01-01"), IsActive: true,
	})

	// THEN: Foreign keys reject the rule as a client error
	require.Error(t, err)
	assert.True(t, finance.IsClientError(err))
	assert.Zero(t, rule.ID)

	txs, err := f.store.AllTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
	assertAmount(t, "1000", f.balance(t, f.checking.ID))
}

func TestMaterialize_ConcurrentCallersDoNotDuplicate(t *testing.T) {
	f := newFixture(t)
	rule := f.monthlyRent(t, "2024-01-15")

	var wg sync.WaitGroup
	created := make([]int, 4)
	errs := make([]error, 4)
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.Materialize(context.Background(), rule.ID, d("2024-04-20"), 0)
			created[i], errs[i] = res.Created, err
		}()
	}
	wg.Wait()

	total := 0
	for i := range 4 {
		require.NoError(t, errs[i])
		total += created[i]
	}
	assert.Equal(t, 3, total)
	assertAmount(t, "850", f.balance(t, f.checking.ID))
}

func TestInsertTransaction_DuplicateOccurrenceIsConflict(t *testing.T) {
	f := newFixture(t)
	rule := f.monthlyRent(t, "2024-01-15")
	ctx := context.Background()

	occurrence := rule.Occurrence(d("2024-02-15"))
	err := f.store.WithTx(ctx, func(tx finance.Tx) error {
		if _, err := tx.InsertTransaction(ctx, occurrence); err != nil {
			return err
		}
		_, err := tx.InsertTransaction(ctx, occurrence)
		return err
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, finance.ErrConflict)
	txs, err := f.store.AllTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestMaterializeAll_RecordsRun(t *testing.T) {
	f := newFixture(t)
	f.monthlyRent(t, "2024-01-15")
	ctx := context.Background()

	run := MaterializationRun{ID: "run-1", Trigger: "cli", AsOf: d("2024-04-20"), Status: RunRunning}
	require.NoError(t, f.store.SaveRun(ctx, run))

	batch, err := f.engine.MaterializeAll(ctx, run.AsOf, 0)
	run.Complete(batch, err)
	require.NoError(t, f.store.SaveRun(ctx, run))

	runs, err := f.store.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunCompleted, runs[0].Status)
	assert.Equal(t, 3, runs[0].TotalCreated)
	assert.Equal(t, 1, runs[0].RulesProcessed)
	assert.Equal(t, d("2024-04-20"), runs[0].AsOf)
	assert.NotNil(t, runs[0].CompletedAt)
}

// =============================================================================
// LEDGER AGAINST SQLITE
// =============================================================================

func TestLedger_RecordWithTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tag, err := f.store.CreateTag(ctx, finance.Tag{Name: "Food"})
	require.NoError(t, err)

	from := f.checking.ID
	tx, err := f.ledger.Record(ctx, finance.Transaction{
		Date: d("2024-03-01"), Type: finance.TxExpense, Amount: dec("12.34"),
		From: &from, TagIDs: []finance.TagID{tag.ID},
	})
	require.NoError(t, err)

	stored, err := f.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, []finance.TagID{tag.ID}, stored.TagIDs)
	assertAmount(t, "987.66", f.balance(t, f.checking.ID))

	// tag in use can't be deleted
	assert.ErrorIs(t, f.store.DeleteTag(ctx, tag.ID), finance.ErrConflict)
}

func TestTags_NamesUniqueIgnoringCase(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateTag(ctx, finance.Tag{Name: "Travel"})
	require.NoError(t, err)
	_, err = store.CreateTag(ctx, finance.Tag{Name: "travel"})

	assert.ErrorIs(t, err, finance.ErrConflict)
}

func TestListTransactions_FiltersAndPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from, to := f.checking.ID, f.savings.ID
	for _, day := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		_, err := f.ledger.Record(ctx, finance.Transaction{Date: d(day), Type: finance.TxExpense, Amount: dec("1"), From: &from})
		require.NoError(t, err)
	}
	_, err := f.ledger.Record(ctx, finance.Transaction{Date: d("2024-01-02"), Type: finance.TxIncome, Amount: dec("5"), To: &to})
	require.NoError(t, err)

	expenses, err := f.store.ListTransactions(ctx, TransactionFilter{Type: finance.TxExpense, Limit: 2})
	require.NoError(t, err)
	require.Len(t, expenses, 2)
	assert.Equal(t, d("2024-01-03"), expenses[0].Date)

	start := d("2024-01-02")
	bySavings, err := f.store.ListTransactions(ctx, TransactionFilter{AccountID: &to, From: &start})
	require.NoError(t, err)
	assert.Len(t, bySavings, 1)

	paged, err := f.store.ListTransactions(ctx, TransactionFilter{Offset: 3})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

// =============================================================================
// CATALOG
// =============================================================================

func TestDeleteAccount_DeactivatesWhenReferenced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// non-zero balance is refused
	_, err := f.store.DeleteAccount(ctx, f.checking.ID)
	assert.ErrorIs(t, err, finance.ErrConflict)

	// zero balance but referenced by a transaction: deactivated
	_, err = f.ledger.AdjustBalance(ctx, f.savings.ID, dec("10"), d("2024-01-01"), "")
	require.NoError(t, err)
	_, err = f.ledger.AdjustBalance(ctx, f.savings.ID, dec("0"), d("2024-01-02"), "")
	require.NoError(t, err)

	deactivated, err := f.store.DeleteAccount(ctx, f.savings.ID)
	require.NoError(t, err)
	assert.True(t, deactivated)
	active, err := f.store.ListAccounts(ctx, false)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// unused: deleted
	fresh, err := f.store.CreateAccount(ctx, finance.Account{Name: "Wallet", Type: finance.AccountCash})
	require.NoError(t, err)
	assert.Equal(t, "RUB", fresh.Currency)
	deactivated, err = f.store.DeleteAccount(ctx, fresh.ID)
	require.NoError(t, err)
	assert.False(t, deactivated)
	_, err = f.store.GetAccount(ctx, fresh.ID)
	assert.True(t, finance.IsNotFound(err))
}

func TestDeleteRule_DeactivatesOnceMaterialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	used := f.monthlyRent(t, "2024-01-15")
	unused := f.monthlyRent(t, "2024-06-01")
	_, err := f.engine.Materialize(ctx, used.ID, d("2024-03-01"), 0)
	require.NoError(t, err)

	deactivated, err := f.store.DeleteRule(ctx, used.ID)
	require.NoError(t, err)
	assert.True(t, deactivated)
	rule, err := f.store.GetRule(ctx, used.ID)
	require.NoError(t, err)
	assert.False(t, rule.IsActive)

	deactivated, err = f.store.DeleteRule(ctx, unused.ID)
	require.NoError(t, err)
	assert.False(t, deactivated)
	_, err = f.store.GetRule(ctx, unused.ID)
	assert.True(t, finance.IsNotFound(err))
}

func TestUpdateRule_KeepsCheckpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rule := f.monthlyRent(t, "2024-01-15")
	_, err := f.engine.Materialize(ctx, rule.ID, d("2024-03-20"), 0)
	require.NoError(t, err)

	rule.Amount = dec("75")
	updated, err := f.store.UpdateRule(ctx, rule)
	require.NoError(t, err)

	assertAmount(t, "75", updated.Amount)
	require.NotNil(t, updated.LastMaterialized)
	assert.Equal(t, d("2024-03-15"), *updated.LastMaterialized)
}

func TestUpdateRule_LaterStartDateSkipsEarlierOccurrences(t *testing.T) {
	// GIVEN: Rent materialized through February
	f := newFixture(t)
	ctx := context.Background()
	rule := f.monthlyRent(t, "2024-01-15")
	_, err := f.engine.Materialize(ctx, rule.ID, d("2024-02-20"), 0)
	require.NoError(t, err)

	// WHEN: The start date moves to June and the rule is processed in May
	rule.StartDate = d("2024-06-01")
	_, err = f.store.UpdateRule(ctx, rule)
	require.NoError(t, err)
	res, err := f.engine.Materialize(ctx, rule.ID, d("2024-05-20"), 0)

	// THEN: Nothing before the new start is written
	require.NoError(t, err)
	assert.Zero(t, res.Created)
	assertAmount(t, "950", f.balance(t, f.checking.ID))

	// WHEN: Processed after the new start
	res, err = f.engine.Materialize(ctx, rule.ID, d("2024-07-10"), 0)

	// THEN: Occurrences resume from the new start
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	require.NotNil(t, res.LastProcessed)
	assert.Equal(t, d("2024-07-01"), *res.LastProcessed)
}

func TestAmend_RedatedOccurrenceDoesNotBlockRule(t *testing.T) {
	// GIVEN: The February rent occurrence
	f := newFixture(t)
	ctx := context.Background()
	rule := f.monthlyRent(t, "2024-01-15")
	res, err := f.engine.Materialize(ctx, rule.ID, d("2024-02-20"), 0)
	require.NoError(t, err)
	require.Len(t, res.TransactionIDs, 1)

	// WHEN: It is moved onto the March occurrence date
	generated, err := f.store.GetTransaction(ctx, res.TransactionIDs[0])
	require.NoError(t, err)
	generated.Date = d("2024-03-15")
	_, err = f.ledger.Amend(ctx, generated)
	require.NoError(t, err)

	// THEN: It becomes a manual entry
	moved, err := f.store.GetTransaction(ctx, generated.ID)
	require.NoError(t, err)
	assert.Nil(t, moved.RecurringID)

	// AND: The rule still catches up, every time
	for range 2 {
		_, err = f.engine.Materialize(ctx, rule.ID, d("2024-04-20"), 0)
		require.NoError(t, err)
	}
	txs, err := f.store.ListTransactions(ctx, TransactionFilter{RecurringID: &rule.ID, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	assertAmount(t, "850", f.balance(t, f.checking.ID))
}

func TestMaterialize_LaterOccurrenceFailureRollsBackWholeUnit(t *testing.T) {
	// GIVEN: February materialized, and a row already linked to the rule on 2024-04-15
	f := newFixture(t)
	ctx := context.Background()
	rule := f.monthlyRent(t, "2024-01-15")
	_, err := f.engine.Materialize(ctx, rule.ID, d("2024-02-20"), 0)
	require.NoError(t, err)
	err = f.store.WithTx(ctx, func(tx finance.Tx) error {
		_, err := tx.InsertTransaction(ctx, rule.Occurrence(d("2024-04-15")))
		return err
	})
	require.NoError(t, err)

	// WHEN: March inserts fine but April collides
	_, err = f.engine.Materialize(ctx, rule.ID, d("2024-04-20"), 0)

	// THEN: Nothing from this call survives
	require.Error(t, err)
	assert.ErrorIs(t, err, finance.ErrConflict)

	txs, err := f.store.AllTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	for _, tx := range txs {
		assert.NotEqual(t, d("2024-03-15"), tx.Date)
	}
	assertAmount(t, "950", f.balance(t, f.checking.ID))
	stored, err := f.store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMaterialized)
	assert.Equal(t, d("2024-02-15"), *stored.LastMaterialized)
}

func TestDeleteCategory_RefusedWhileInUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	food, err := f.store.CreateCategory(ctx, finance.Category{Name: "Food", Type: finance.TxExpense})
	require.NoError(t, err)
	_, err = f.store.CreateBudget(ctx, finance.Budget{
		Name: "Food", CategoryID: food.ID, Amount: dec("100"),
		Period: finance.FrequencyMonthly, StartDate: d("2024-01-01"),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.store.DeleteCategory(ctx, food.ID), finance.ErrConflict)

	spare, err := f.store.CreateCategory(ctx, finance.Category{Name: "Spare", Type: finance.TxExpense})
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteCategory(ctx, spare.ID))
}

func TestBudgetStatus_SumsCategoryExpensesInPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	food, err := f.store.CreateCategory(ctx, finance.Category{Name: "Food", Type: finance.TxExpense})
	require.NoError(t, err)
	budget, err := f.store.CreateBudget(ctx, finance.Budget{
		Name: "Food", CategoryID: food.ID, Amount: dec("100"),
		Period: finance.FrequencyMonthly, StartDate: d("2024-01-01"),
	})
	require.NoError(t, err)

	from := f.checking.ID
	for _, e := range []struct{ day, amount string }{
		{"2024-03-01", "40.10"}, {"2024-03-31", "70"}, {"2024-04-01", "999"},
	} {
		_, err := f.ledger.Record(ctx, finance.Transaction{
			Date: d(e.day), Type: finance.TxExpense, Amount: dec(e.amount), From: &from, CategoryID: &food.ID,
		})
		require.NoError(t, err)
	}

	status, err := f.store.BudgetStatus(ctx, budget.ID, d("2024-03-15"))
	require.NoError(t, err)

	assert.Equal(t, d("2024-03-01"), status.Period.Start)
	assert.Equal(t, d("2024-03-31"), status.Period.End)
	assertAmount(t, "110.10", status.Spent)
	assertAmount(t, "-10.10", status.Remaining)
	assert.True(t, status.OverBudget)
}

func TestDeposit_RecordsExpenseAndAchievesGoal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.checking.ID
	goal, err := f.store.CreateGoal(ctx, finance.SavingsGoal{Name: "Bike", TargetAmount: dec("300"), AccountID: &account})
	require.NoError(t, err)

	res, err := f.store.Deposit(ctx, goal.ID, dec("300"), d("2024-05-01"), nil)
	require.NoError(t, err)

	assert.True(t, res.Goal.IsAchieved)
	assert.NotNil(t, res.Goal.AchievedAt)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, finance.TxExpense, res.Transaction.Type)
	assertAmount(t, "700", f.balance(t, f.checking.ID))

	// achieved goals take no more deposits
	_, err = f.store.Deposit(ctx, goal.ID, dec("1"), d("2024-05-02"), nil)
	assert.ErrorIs(t, err, finance.ErrConflict)
	stored, err := f.store.GetGoal(ctx, goal.ID)
	require.NoError(t, err)
	assertAmount(t, "300", stored.CurrentAmount)
}

func TestDeposit_LinkedTransactionSkipsLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.checking.ID
	goal, err := f.store.CreateGoal(ctx, finance.SavingsGoal{Name: "Trip", TargetAmount: dec("500"), AccountID: &account})
	require.NoError(t, err)
	from, to := f.checking.ID, f.savings.ID
	moved, err := f.ledger.Record(ctx, finance.Transaction{Date: d("2024-05-01"), Type: finance.TxTransfer, Amount: dec("100"), From: &from, To: &to})
	require.NoError(t, err)

	res, err := f.store.Deposit(ctx, goal.ID, dec("100"), d("2024-05-01"), &moved.ID)
	require.NoError(t, err)

	assert.Nil(t, res.Transaction)
	assertAmount(t, "100", res.Goal.CurrentAmount)
	assert.False(t, res.Goal.IsAchieved)
	assertAmount(t, "900", f.balance(t, f.checking.ID))
}

func TestDashboard_Totals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	food, err := f.store.CreateCategory(ctx, finance.Category{Name: "Food", Type: finance.TxExpense})
	require.NoError(t, err)

	from, to := f.checking.ID, f.checking.ID
	_, err = f.ledger.Record(ctx, finance.Transaction{Date: d("2024-03-02"), Type: finance.TxIncome, Amount: dec("500"), To: &to})
	require.NoError(t, err)
	_, err = f.ledger.Record(ctx, finance.Transaction{Date: d("2024-03-03"), Type: finance.TxExpense, Amount: dec("120.5"), From: &from, CategoryID: &food.ID})
	require.NoError(t, err)
	_, err = f.ledger.Record(ctx, finance.Transaction{Date: d("2024-03-04"), Type: finance.TxExpense, Amount: dec("30"), From: &from})
	require.NoError(t, err)
	_, err = f.ledger.Record(ctx, finance.Transaction{Date: d("2024-04-01"), Type: finance.TxExpense, Amount: dec("1"), From: &from})
	require.NoError(t, err)

	dash, err := f.store.Dashboard(ctx, finance.Period{Start: d("2024-03-01"), End: d("2024-03-31")})
	require.NoError(t, err)

	assertAmount(t, "500", dash.TotalIncome)
	assertAmount(t, "150.5", dash.TotalExpenses)
	assertAmount(t, "349.5", dash.NetSavings)
	assert.Equal(t, 3, dash.TransactionCount)
	assertAmount(t, "1348.5", dash.TotalBalance)
	require.Len(t, dash.TopCategories, 2)
	assert.Equal(t, "Food", dash.TopCategories[0].Name)
	assert.Equal(t, "Uncategorized", dash.TopCategories[1].Name)
}
