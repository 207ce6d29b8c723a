package quota

import (
	"fmt"
	"time"
)

const periodLayout = "2006-01"

// Period is a calendar month in UTC, the quota accounting window.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	u := t.UTC()
	return Period{Year: u.Year(), Month: u.Month()}
}

// ParsePeriod parses the "YYYY-MM" form produced by String.
func ParsePeriod(value string) (Period, error) {
	t, err := time.Parse(periodLayout, value)
	if err != nil {
		return Period{}, fmt.Errorf("quota: parse period %q: %w", value, err)
	}
	return PeriodOf(t), nil
}

// Next returns the following month, carrying into the next year after December.
func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Year: p.Year + 1, Month: time.January}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Prev returns the preceding month, borrowing from the previous year before January.
func (p Period) Prev() Period {
	if p.Month == time.January {
		return Period{Year: p.Year - 1, Month: time.December}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// Start is the first instant of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the first instant of the next period; the period is [Start, End).
func (p Period) End() time.Time {
	return p.Next().Start()
}

// Contains reports whether t falls inside [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start()) && t.Before(p.End())
}

func (p Period) String() string {
	return p.Start().Format(periodLayout)
}

func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Period) UnmarshalText(text []byte) error {
	parsed, err := ParsePeriod(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
