package closing

import (
	"time"

	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// Window is an inclusive range of calendar days.
type Window struct {
	Start shared.Date `json:"startDate"`
	End   shared.Date `json:"endDate"`
}

// Contains reports whether t falls on a day inside the window, reading the
// calendar day in loc.
func (w Window) Contains(t time.Time, loc *time.Location) bool {
	from, to := w.Bounds(loc)
	return !t.Before(from) && t.Before(to)
}

// Bounds returns the half-open instant range [from, to) covered by the window
// when its days are read as local calendar days in loc.
func (w Window) Bounds(loc *time.Location) (from, to time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	end := w.End.AddDays(1)
	from = time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, loc)
	to = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	return from, to
}

// LiveWindow is the unclosed period: the day after the last closing through
// today, or the current month so far when nothing was closed yet.
func LiveWindow(last *CashClosing, today shared.Date) Window {
	return Window{Start: nextStart(last, today), End: today}
}

// DefaultRange proposes the next closing period of the given type.
func DefaultRange(periodType PeriodType, last *CashClosing, today shared.Date) Window {
	start := nextStart(last, today)
	var end shared.Date
	switch periodType {
	case PeriodWeekly:
		end = start.AddDays(6)
	case PeriodBiweekly:
		end = start.AddDays(14)
	default:
		// Monthly periods end with the start's calendar month.
		end = shared.Date{Time: time.Date(start.Year(), start.Month()+1, 0, 0, 0, 0, 0, time.UTC)}
	}
	return Window{Start: start, End: end}
}

func nextStart(last *CashClosing, today shared.Date) shared.Date {
	if last != nil && !last.EndDate.IsZero() {
		return last.EndDate.AddDays(1)
	}
	return shared.Date{Time: time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)}
}
