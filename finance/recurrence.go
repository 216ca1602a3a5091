package finance

import "iter"

// =============================================================================
// FREQUENCY
// =============================================================================

// Frequency is how often a recurring rule fires. Budgets reuse it as their
// period length.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

func (f Frequency) Validate() error {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return nil
	}
	return &UnknownFrequencyError{Frequency: string(f)}
}

// =============================================================================
// SCHEDULE - Pure due-date calculation
// =============================================================================

// Schedule steps through occurrences of a rule one period at a time.
//
// Month-based steps are calendar aware: the day-of-month is AnchorDay clamped
// to the target month, so a schedule anchored on the 31st yields
// Jan 31, Feb 29 (leap year), Mar 31, Apr 30. Anchoring on the start date
// keeps a short month from permanently pulling later dates back.
type Schedule struct {
	Frequency Frequency
	AnchorDay int
	End       *Date
}

// Next returns the occurrence one period after d.
func (s Schedule) Next(d Date) Date {
	switch s.Frequency {
	case FrequencyDaily:
		return d.AddDays(1)
	case FrequencyWeekly:
		return d.AddDays(7)
	case FrequencyMonthly:
		return d.AddMonths(1, s.AnchorDay)
	case FrequencyQuarterly:
		return d.AddMonths(3, s.AnchorDay)
	case FrequencyYearly:
		return d.AddMonths(12, s.AnchorDay)
	}
	return d
}

// DueDates yields, in increasing order, every occurrence strictly after
// `after` that is on or before asOf and on or before the schedule's end date.
// The sequence is lazy and can be ranged over more than once.
//
// An unknown frequency is reported here, before any date is produced.
func (s Schedule) DueDates(after, asOf Date) (iter.Seq[Date], error) {
	if err := s.Frequency.Validate(); err != nil {
		return nil, err
	}
	return func(yield func(Date) bool) {
		if !after.Before(asOf) {
			return
		}
		for d := s.Next(after); s.includes(d, asOf); d = s.Next(d) {
			if !yield(d) {
				return
			}
		}
	}, nil
}

func (s Schedule) includes(d, asOf Date) bool {
	if d.After(asOf) {
		return false
	}
	return s.End == nil || !d.After(*s.End)
}

// Occurrences collects at most limit due dates. A non-positive limit means
// no limit.
func (s Schedule) Occurrences(after, through Date, limit int) ([]Date, error) {
	seq, err := s.DueDates(after, through)
	if err != nil {
		return nil, err
	}
	var out []Date
	for d := range seq {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, d)
	}
	return out, nil
}
