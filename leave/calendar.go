/*
calendar.go - Holiday calendar provider and working-day calculator

WORKING DAY:
  A date that is neither Saturday/Sunday nor an organization holiday.
  Weekends are fixed; there is no per-organization work week.

RECURRING HOLIDAYS:
  A recurring holiday repeats on the same month/day every year. When a range
  spans several years it is projected onto each of them. A recurring Feb 29
  only exists in leap years.

EXAMPLE:
  holidays := leave.NewHolidaySet(leave.NewDate(2025, time.January, 1))
  n, _ := leave.CountWorkingDays(
      leave.NewDate(2024, time.December, 30),
      leave.NewDate(2025, time.January, 3),
      holidays,
  ) // n == 4
*/
package leave

import (
	"context"
	"fmt"
)

// =============================================================================
// HOLIDAY SET
// =============================================================================

// HolidaySet is a set of dates already filtered to an organization/country span.
type HolidaySet map[string]struct{}

func NewHolidaySet(dates ...Date) HolidaySet {
	s := make(HolidaySet, len(dates))
	for _, d := range dates {
		s.Add(d)
	}
	return s
}

func (s HolidaySet) Add(d Date) { s[d.String()] = struct{}{} }

func (s HolidaySet) Contains(d Date) bool {
	_, ok := s[d.String()]
	return ok
}

// =============================================================================
// WORKING-DAY CALCULATOR
// =============================================================================

// CountWorkingDays counts dates in [start, end] that are not weekend days and
// not in holidays. The result may be 0.
func CountWorkingDays(start, end Date, holidays HolidaySet) (int, error) {
	if start.After(end) {
		return 0, &InvalidRangeError{Start: start, End: end}
	}
	n := 0
	for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
		if d.IsWeekend() || holidays.Contains(d) {
			continue
		}
		n++
	}
	return n, nil
}

// =============================================================================
// HOLIDAY CALENDAR PROVIDER
// =============================================================================

// HolidayCalendar supplies organization holidays for a country and date span.
type HolidayCalendar interface {
	Holidays(ctx context.Context, organizationID, country string, from, to Date) (HolidaySet, error)
}

// StoreCalendar reads holidays from a HolidayStore.
type StoreCalendar struct {
	Store HolidayStore
}

func NewStoreCalendar(store HolidayStore) *StoreCalendar {
	return &StoreCalendar{Store: store}
}

func (c *StoreCalendar) Holidays(ctx context.Context, organizationID, country string, from, to Date) (HolidaySet, error) {
	if from.After(to) {
		return nil, &InvalidRangeError{Start: from, End: to}
	}
	holidays, err := c.Store.ListHolidays(ctx, organizationID, country)
	if err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	return ExpandHolidays(holidays, from, to), nil
}

// ExpandHolidays returns the holiday dates that fall in [from, to], projecting
// recurring holidays onto every year of the span.
func ExpandHolidays(holidays []Holiday, from, to Date) HolidaySet {
	set := make(HolidaySet)
	for _, h := range holidays {
		if !h.Recurring {
			if h.Date.AfterOrEqual(from) && h.Date.BeforeOrEqual(to) {
				set.Add(h.Date)
			}
			continue
		}
		for year := from.Year(); year <= to.Year(); year++ {
			d := NewDate(year, h.Date.Month(), h.Date.Day())
			if d.Month() != h.Date.Month() {
				continue // Feb 29 in a non-leap year
			}
			if d.AfterOrEqual(from) && d.BeforeOrEqual(to) {
				set.Add(d)
			}
		}
	}
	return set
}
