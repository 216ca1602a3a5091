package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// =============================================================================
// PERIOD - Inclusive date range used for budgets and analytics
// =============================================================================

// Period is the inclusive range [Start, End].
type Period struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// Contains returns true if d is within the period [Start, End]
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

func (p Period) Days() int { return DaysBetween(p.Start, p.End) + 1 }

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// BUDGET PERIODS
// =============================================================================

// BudgetPeriodFor returns the budget period of the given length that
// contains date.
//
//	daily      the day itself
//	weekly     7-day blocks counted from anchor (the budget start date)
//	monthly    calendar month
//	quarterly  calendar quarter
//	yearly     calendar year
func BudgetPeriodFor(length Frequency, anchor, date Date) Period {
	switch length {
	case FrequencyDaily:
		return Period{Start: date, End: date}

	case FrequencyWeekly:
		if anchor.IsZero() || date.Before(anchor) {
			anchor = date
		}
		weeks := DaysBetween(anchor, date) / 7
		start := anchor.AddDays(weeks * 7)
		return Period{Start: start, End: start.AddDays(6)}

	case FrequencyQuarterly:
		first := time.Month((int(date.Month())-1)/3*3 + 1)
		return Period{
			Start: StartOfMonth(date.Year(), first),
			End:   EndOfMonth(date.Year(), first+2),
		}

	case FrequencyYearly:
		return Period{
			Start: NewDate(date.Year(), time.January, 1),
			End:   NewDate(date.Year(), time.December, 31),
		}

	default:
		return Period{
			Start: StartOfMonth(date.Year(), date.Month()),
			End:   EndOfMonth(date.Year(), date.Month()),
		}
	}
}

// BudgetStatus is a budget's spending within one period.
type BudgetStatus struct {
	Budget     Budget          `json:"budget"`
	Period     Period          `json:"period"`
	Spent      decimal.Decimal `json:"spent_amount"`
	Remaining  decimal.Decimal `json:"remaining"`
	UsagePct   float64         `json:"usage_percentage"`
	OverBudget bool            `json:"is_over_budget"`
}

// NewBudgetStatus derives the status of b for the given spend.
func NewBudgetStatus(b Budget, period Period, spent decimal.Decimal) BudgetStatus {
	st := BudgetStatus{
		Budget:     b,
		Period:     period,
		Spent:      spent,
		Remaining:  b.Amount.Sub(spent),
		OverBudget: spent.GreaterThan(b.Amount),
	}
	if b.Amount.IsPositive() {
		pct, _ := spent.Div(b.Amount).Mul(hundred).Round(1).Float64()
		st.UsagePct = pct
	}
	return st
}
