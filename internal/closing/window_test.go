package closing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ampere-erp/ampere-erp/internal/shared"
)

func day(t *testing.T, raw string) shared.Date {
	t.Helper()
	d, err := shared.ParseDate(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return d
}

func TestLiveWindowWithoutClosingStartsAtMonth(t *testing.T) {
	w := LiveWindow(nil, day(t, "2024-03-17"))
	assert.Equal(t, "2024-03-01", w.Start.String())
	assert.Equal(t, "2024-03-17", w.End.String())
}

func TestLiveWindowStartsAfterLastClosing(t *testing.T) {
	last := &CashClosing{EndDate: day(t, "2024-02-29")}
	w := LiveWindow(last, day(t, "2024-03-17"))
	assert.Equal(t, "2024-03-01", w.Start.String())

	last.EndDate = day(t, "2024-03-10")
	w = LiveWindow(last, day(t, "2024-03-17"))
	assert.Equal(t, "2024-03-11", w.Start.String())
}

func TestDefaultRangePerPeriodType(t *testing.T) {
	last := &CashClosing{EndDate: day(t, "2024-01-31")}
	today := day(t, "2024-02-10")

	assert.Equal(t, "2024-02-07", DefaultRange(PeriodWeekly, last, today).End.String())
	assert.Equal(t, "2024-02-15", DefaultRange(PeriodBiweekly, last, today).End.String())
	monthly := DefaultRange(PeriodMonthly, last, today)
	assert.Equal(t, "2024-02-01", monthly.Start.String())
	assert.Equal(t, "2024-02-29", monthly.End.String())
}

func TestDefaultMonthlyRangeStopsAtEndOfMonth(t *testing.T) {
	today := day(t, "2024-02-10")

	tail := DefaultRange(PeriodMonthly, &CashClosing{EndDate: day(t, "2024-01-30")}, today)
	assert.Equal(t, "2024-01-31", tail.Start.String())
	assert.Equal(t, "2024-01-31", tail.End.String())

	mid := DefaultRange(PeriodMonthly, &CashClosing{EndDate: day(t, "2024-03-15")}, today)
	assert.Equal(t, "2024-03-16", mid.Start.String())
	assert.Equal(t, "2024-03-31", mid.End.String())

	fresh := DefaultRange(PeriodMonthly, nil, today)
	assert.Equal(t, "2024-02-01", fresh.Start.String())
	assert.Equal(t, "2024-02-29", fresh.End.String())
}

func TestWindowContainsIsInclusive(t *testing.T) {
	w := Window{Start: day(t, "2024-03-01"), End: day(t, "2024-03-31")}
	assert.True(t, w.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.UTC))
	assert.True(t, w.Contains(time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC), time.UTC))
	assert.False(t, w.Contains(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), time.UTC))
	_, to := w.Bounds(nil)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestWindowBoundsFollowBusinessZone(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*60*60)
	w := Window{Start: day(t, "2024-03-01"), End: day(t, "2024-03-31")}

	from, to := w.Bounds(saoPaulo)
	assert.Equal(t, time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC), from.UTC())
	assert.Equal(t, time.Date(2024, 4, 1, 3, 0, 0, 0, time.UTC), to.UTC())

	lateEvening := time.Date(2024, 3, 31, 22, 0, 0, 0, saoPaulo)
	assert.True(t, w.Contains(lateEvening, saoPaulo))
	assert.False(t, w.Contains(lateEvening, time.UTC))

	earlyMorning := time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)
	assert.False(t, w.Contains(earlyMorning, saoPaulo))
}
