package finance_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finance-tracker/finance"
	"github.com/warp/finance-tracker/finance/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func jsonUnmarshal(s string, v any) error { return json.Unmarshal([]byte(s), v) }

func jsonMarshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

type fixture struct {
	store    *store.Memory
	engine   *finance.Materializer
	checking finance.Account
	savings  finance.Account
	logs     *test.Hook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	return &fixture{
		store:    mem,
		engine:   finance.NewMaterializer(mem, logger),
		checking: mem.CreateAccount(finance.Account{Name: "Checking", Type: finance.AccountDebitCard, InitialBalance: dec("1000"), Currency: "USD"}),
		savings:  mem.CreateAccount(finance.Account{Name: "Savings", Type: finance.AccountSavings, InitialBalance: dec("0"), Currency: "USD"}),
		logs:     hook,
	}
}

func (f *fixture) monthlyExpense(start string, end *finance.Date) finance.RecurringRule {
	from := f.checking.ID
	return f.store.CreateRule(finance.RecurringRule{
		Name:      "Rent",
		Type:      finance.TxExpense,
		Amount:    dec("50"),
		From:      &from,
		Frequency: finance.FrequencyMonthly,
		StartDate: d(start),
		EndDate:   end,
		IsActive:  true,
	})
}

func (f *fixture) balance(t *testing.T, id finance.AccountID) decimal.Decimal {
	t.Helper()
	a, ok := f.store.Account(id)
	require.True(t, ok)
	return a.CurrentBalance
}

func (f *fixture) checkpoint(t *testing.T, id finance.RuleID) *finance.Date {
	t.Helper()
	r, err := f.store.GetRule(context.Background(), id)
	require.NoError(t, err)
	return r.LastMaterialized
}

// =============================================================================
// MATERIALIZE
// =============================================================================

func TestMaterialize_MonthlyRule_CreatesPendingOccurrences(t *testing.T) {
	// GIVEN: Monthly 50 expense starting 2024-01-15
	f := newFixture(t)
	rule := f.monthlyExpense("2024-01-15", nil)

	// WHEN: Materialized as of 2024-04-20
	res, err := f.engine.Materialize(context.Background(), rule.ID, d("2024-04-20"), 0)

	// THEN: Three transactions, balance down by 150, checkpoint on the last one
	require.NoError(t, err)
	assert.Equal(t, 3, res.Created)
	assert.False(t, res.Truncated)
	require.NotNil(t, res.LastProcessed)
	assert.Equal(t, d("2024-04-15"), *res.LastProcessed)
	assert.Len(t, res.TransactionIDs, 3)

	txs := f.store.Transactions()
	require.Len(t, txs, 3)
	for i, want := range dates("2024-02-15", "2024-03-15", "2024-04-15") {
		assert.Equal(t, want, txs[i].Date)
		assert.Equal(t, finance.TxExpense, txs[i].Type)
		assert.Equal(t, "Rent (auto)", txs[i].Description)
		require.NotNil(t, txs[i].RecurringID)
		assert.Equal(t, rule.ID, *txs[i].RecurringID)
	}

	assertAmount(t, "850", f.balance(t, f.checking.ID))
	assert.Equal(t, d("2024-04-15"), *f.checkpoint(t, rule.ID))
}

func TestMaterialize_Idempotent(t *testing.T) {
	// GIVEN: A rule already materialized up to today
	f := newFixture(t)
	rule := f.monthlyExpense("2024-01-15", nil)
	_, err := f.engine.Materialize(context.Background(), rule.ID, d("2024-04-20"), 0)
	require.NoError(t, err)

	// WHEN: Materialized again with the same as-of date
	res, err := f.engine.Materialize(context.Background(), rule.ID, d("2024-04-20"), 0)

	// THEN: Nothing new is written
	require.NoError(t, err)
	assert.Zero(t, res.Created)
	assert.Nil(t, res.LastProcessed)
	assert.Len(t, f.store.Transactions(), 3)
	assertAmount(t, "850", f.balance(t, f.checking.ID))
	assert.Equal(t, d("2024-04-15"), *f.checkpoint(t, rule.ID))
}

func TestMaterialize_SafetyCapTruncatesAndResumes(t *testing.T) {
	// GIVEN: Three pending occurrences
	f := newFixture(t)
	rule := f.monthlyExpense("2024-01-15", nil)
	ctx := context.Background()

	// WHEN: First call capped at one
	first, err := f.engine.Materialize(ctx, rule.ID, d("2024-04-20"), 1)
	require.NoError(t, err)

	// THEN: One created, reported as truncated
	assert.Equal(t, 1, first.Created)
	assert.True(t, first.Truncated)
	assert.Equal(t, d("2024-02-15"), *first.LastProcessed)

	// WHEN: Next call with the default cap
	second, err := f.engine.Materialize(ctx, rule.ID, d("2024-04-20"), 0)
	require.NoError(t, err)

	// THEN: The remaining two are created, no duplicates
	assert.Equal(t, 2, second.Created)
	assert.False(t, second.Truncated)
	assert.Equal(t, d("2024-04-15"), *second.LastProcessed)
	assert.Len(t, f.store.Transactions(), 3)
	assertAmount(t, "850", f.balance(t, f.checking.ID))
}

func TestMaterialize_SafetyCapEqualToPending_NotTruncated(t *testing.T) {
	f := newFixture(t)
	rule := f.monthlyExpense("2024-01-15", nil)

	res, err := f.engine.Materialize(context.Background(), rule.ID, d("2024-04-20"), 3)

	require.NoError(t, err)
	assert.Equal(t, 3, res.Created)
	assert.False(t, res.Truncated)
}

func TestMaterialize_EndDate(t *testing.T) {
	f := newFixture(t)
	end := d("2024-03-01")
	rule := f.monthlyExpense("2024-01-15", &end)

	res, err := f.engine.Materialize(context.Background(), rule.ID, d("2024-04-20"), 0)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, d("2024-02-15"), *res.LastProcessed)
}

func TestMaterialize_MonthEndAnchorSurvivesCheckpoint(t *testing.T) {
	// GIVEN: Rule on the 31st, materialized through February
	f := newFixture(t)
	rule := f.monthlyExpense("2024-01-31", nil)
	ctx := context.Background()
	_, err := f.engine.Materialize(ctx, rule.ID, d("2024-02-29"), 0)
	require.NoError(t, err)
	assert.Equal(t, d("2024-02-29"), *f.checkpoint(t, rule.ID))

	// WHEN: Materialized again at the end of March
	res, err := f.engine.Materialize(ctx, rule.ID, d("2024-03-31"), 0)

	// THEN: March falls on the 31st, not the 29th
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, d("2024-03-31"), *res.LastProcessed)
}

func TestMaterialize_InactiveRule(t *testing.T) {
	f := newFixture(t)
	rule := f.monthlyExpense("2024-01-15", nil)
	f.store.SetRuleActive(rule.ID, false)

	_, err := f.engine.Materialize(context.Background(), rule.ID, d("2024-04-20"), 0)

	require.ErrorIs(t, err, finance.ErrInactiveRule)
	var ie *finance.InactiveRuleError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, rule.ID, ie.RuleID)
	assert.True(t, finance.IsClientError(err))
	assert.Empty(t, f.store.Transactions())
	assert.Nil(t, f.checkpoint(t, rule.ID))
}

func TestMaterialize_MissingRule(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Materialize(context.Background(), 4242, d("2024-04-20"), 0)

	assert.True(t, finance.IsNotFound(err))
}

func TestMaterialize_UnknownFrequency_NoWrites(t *testing.T) {
	f := newFixture(t)
	from := f.checking.ID
	rule := f.store.CreateRule(finance.RecurringRule{
		Name: "Broken", Type: finance.TxExpense, Amount: dec("10"), From: &from,
		Frequency: "hourly", StartDate: d("2024-01-01"), IsActive: true,
	})

	_, err := f.engine.Materialize(context.Background(), rule.ID, d("2024-04-20"), 0)

	assert.ErrorIs(t, err, finance.ErrUnknownFrequency)
	assert.Empty(t, f.store.Transactions())
}

func TestMaterialize_FailureRollsBackWholeUnit(t *testing.T) {
	// GIVEN: A rule whose source account does not exist
	f := newFixture(t)
	missing := finance.AccountID(999)
	rule := f.store.CreateRule(finance.RecurringRule{
		Name: "Ghost", Type: finance.TxExpense, Amount: dec("10"), From: &missing,
		Frequency: finance.FrequencyDaily, StartDate: d("2024-01-01"), IsActive: true,
	})

	// WHEN: Materialized
	_, err := f.engine.Materialize(context.Background(), rule.ID, d("2024-01-05"), 0)

	// THEN: The insert made before the balance failure is rolled back too
	require.Error(t, err)
	assert.True(t, finance.IsNotFound(err))
	assert.Empty(t, f.store.Transactions())
	assert.Nil(t, f.checkpoint(t, rule.ID))
}

func TestMaterialize_TransferConservesTotal(t *testing.T) {
	// GIVEN: Weekly transfer checking -> savings
	f := newFixture(t)
	from, to := f.checking.ID, f.savings.ID
	rule := f.store.CreateRule(finance.RecurringRule{
		Name: "Save", Type: finance.TxTransfer, Amount: dec("25.50"), From: &from, To: &to,
		Frequency: finance.FrequencyWeekly, StartDate: d("2024-01-01"), IsActive: true,
	})

	// WHEN: Four weeks are materialized
	res, err := f.engine.Materialize(context.Background(), rule.ID, d("2024-01-29"), 0)
	require.NoError(t, err)
	require.Equal(t, 4, res.Created)

	// THEN: Money moved, total unchanged, stored balances match a replay
	assertAmount(t, "898", f.balance(t, f.checking.ID))
	assertAmount(t, "102", f.balance(t, f.savings.ID))
	txs := f.store.Transactions()
	assertAmount(t, "898", finance.ReplayBalance(dec("1000"), f.checking.ID, txs))
	assertAmount(t, "102", finance.ReplayBalance(dec("0"), f.savings.ID, txs))
}

func TestMaterialize_ConcurrentCallsCreateEachOccurrenceOnce(t *testing.T) {
	// GIVEN: Three pending occurrences
	f := newFixture(t)
	rule := f.monthlyExpense("2024-01-15", nil)

	// WHEN: Two callers materialize the same rule at once
	var wg sync.WaitGroup
	results := make([]finance.MaterializeResult, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.engine.Materialize(context.Background(), rule.ID, d("2024-04-20"), 0)
		}()
	}
	wg.Wait()

	// THEN: One of them did all the work, the other found nothing pending
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 3, results[0].Created+results[1].Created)
	assert.Len(t, f.store.Transactions(), 3)
	assertAmount(t, "850", f.balance(t, f.checking.ID))
}

func TestMaterialize_LogsCompletion(t *testing.T) {
	f := newFixture(t)
	rule := f.monthlyExpense("2024-01-15", nil)

	_, err := f.engine.Materialize(context.Background(), rule.ID, d("2024-04-20"), 0)
	require.NoError(t, err)

	entry := f.logs.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "Materializer.Materialize.Complete", entry.Message)
	assert.Equal(t, 3, entry.Data["created"])
	assert.Equal(t, "2024-04-15", entry.Data["last_processed_date"])
}

// =============================================================================
// MATERIALIZE ALL
// =============================================================================

func TestMaterializeAll_FailuresAreIsolated(t *testing.T) {
	// GIVEN: A healthy rule, a broken rule, and an inactive rule
	f := newFixture(t)
	good := f.monthlyExpense("2024-01-15", nil)
	missing := finance.AccountID(999)
	broken := f.store.CreateRule(finance.RecurringRule{
		Name: "Ghost", Type: finance.TxExpense, Amount: dec("10"), From: &missing,
		Frequency: finance.FrequencyDaily, StartDate: d("2024-04-01"), IsActive: true,
	})
	inactive := f.monthlyExpense("2024-01-01", nil)
	f.store.SetRuleActive(inactive.ID, false)

	// WHEN: All rules are materialized
	batch, err := f.engine.MaterializeAll(context.Background(), d("2024-04-20"), 0)

	// THEN: The healthy rule ran, the broken one is reported, the inactive one skipped
	require.NoError(t, err)
	assert.Equal(t, 3, batch.TotalCreated)
	assert.Equal(t, 1, batch.Processed)
	assert.Equal(t, 1, batch.Failed)
	require.Len(t, batch.Rules, 2)

	byID := map[finance.RuleID]finance.RuleOutcome{}
	for _, o := range batch.Rules {
		byID[o.RuleID] = o
	}
	assert.NoError(t, byID[good.ID].Err)
	assert.Equal(t, 3, byID[good.ID].Created)
	assert.True(t, finance.IsNotFound(byID[broken.ID].Err))
	assert.Nil(t, f.checkpoint(t, broken.ID))
	assert.Nil(t, f.checkpoint(t, inactive.ID))
}

func TestMaterializeAll_SecondRunCreatesNothing(t *testing.T) {
	f := newFixture(t)
	f.monthlyExpense("2024-01-15", nil)
	f.monthlyExpense("2024-02-01", nil)
	ctx := context.Background()

	first, err := f.engine.MaterializeAll(ctx, d("2024-04-20"), 0)
	require.NoError(t, err)
	second, err := f.engine.MaterializeAll(ctx, d("2024-04-20"), 0)
	require.NoError(t, err)

	assert.Equal(t, 5, first.TotalCreated)
	assert.Zero(t, second.TotalCreated)
	assert.Equal(t, 2, second.Processed)
}

// =============================================================================
// PREVIEW
// =============================================================================

func TestPreview_ProjectsWithoutWriting(t *testing.T) {
	f := newFixture(t)
	rule := f.monthlyExpense("2024-01-15", nil)

	p, err := f.engine.Preview(context.Background(), rule.ID, d("2024-04-20"), 0)

	require.NoError(t, err)
	require.Len(t, p.Items, 3)
	assert.Equal(t, d("2024-02-15"), p.Items[0].Date)
	assert.Equal(t, "Rent (auto)", p.Items[0].Description)
	assertAmount(t, "150", p.Total)
	assert.Empty(t, f.store.Transactions())
	assert.Nil(t, f.checkpoint(t, rule.ID))
}

func TestPreview_StartsAfterCheckpointAndHonorsLimit(t *testing.T) {
	f := newFixture(t)
	from := f.checking.ID
	rule := f.store.CreateRule(finance.RecurringRule{
		Name: "Coffee", Type: finance.TxExpense, Amount: dec("3"), From: &from,
		Frequency: finance.FrequencyDaily, StartDate: d("2024-01-01"), IsActive: true,
	})
	_, err := f.engine.Materialize(context.Background(), rule.ID, d("2024-01-10"), 0)
	require.NoError(t, err)

	p, err := f.engine.Preview(context.Background(), rule.ID, d("2024-12-31"), finance.DefaultPreviewLimit)

	require.NoError(t, err)
	assert.Len(t, p.Items, finance.DefaultPreviewLimit)
	assert.Equal(t, d("2024-01-11"), p.Items[0].Date)
	assertAmount(t, "150", p.Total)
}
