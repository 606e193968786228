package wage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/backstage/services/attendance/internal/domain"
)

func hourlyTerms() Terms {
	return Terms{
		WageType:             Hourly,
		HourlyRate:           10000,
		OvertimeEnabled:      true,
		NightEnabled:         true,
		HolidayEnabled:       true,
		OvertimeThresholdMin: 480,
		OvertimePremiumPct:   50,
		NightPremiumPct:      25,
		HolidayPremiumPct:    50,
		WeeklyHolidayPct:     100,
	}
}

func nightCalendar() Calendar {
	return Calendar{NightStartMin: 1320, NightEndMin: 300}
}

func TestCalculateRegularShift(t *testing.T) {
	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	out := time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)

	b, err := Calculate(in, out, hourlyTerms(), nightCalendar())
	require.NoError(t, err)

	require.Equal(t, StatusFinal, b.Status)
	require.Equal(t, 480, b.WorkMinutes)
	require.Equal(t, 480, b.RegularMinutes)
	require.Equal(t, 0, b.OvertimeMinutes)
	require.Equal(t, int64(80000), b.BasePay)
	require.Equal(t, int64(0), b.OvertimePay)
	require.Equal(t, int64(0), b.NightPay)
	require.Equal(t, int64(80000), b.TotalPay)
}

func TestCalculateOvertime(t *testing.T) {
	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	out := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

	b, err := Calculate(in, out, hourlyTerms(), nightCalendar())
	require.NoError(t, err)

	require.Equal(t, 540, b.WorkMinutes)
	require.Equal(t, 480, b.RegularMinutes)
	require.Equal(t, 60, b.OvertimeMinutes)
	// All 540 minutes earn base pay; the premium covers only the excess.
	require.Equal(t, int64(90000), b.BasePay)
	require.Equal(t, int64(5000), b.OvertimePay)
	require.Equal(t, int64(95000), b.TotalPay)
}

func TestCalculateOvertimeDisabled(t *testing.T) {
	terms := hourlyTerms()
	terms.OvertimeEnabled = false

	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	out := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

	b, err := Calculate(in, out, terms, nightCalendar())
	require.NoError(t, err)

	require.Equal(t, 540, b.RegularMinutes)
	require.Equal(t, 0, b.OvertimeMinutes)
	require.Equal(t, int64(0), b.OvertimePay)
	require.Equal(t, int64(90000), b.TotalPay)
}

func TestCalculateMidnightCrossingNightShift(t *testing.T) {
	in := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	out := time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC)

	b, err := Calculate(in, out, hourlyTerms(), nightCalendar())
	require.NoError(t, err)

	require.Equal(t, 360, b.WorkMinutes)
	// 22:00-24:00 on the first day plus 00:00-03:00 on the second.
	require.Equal(t, 300, b.NightMinutes)
	require.Equal(t, int64(60000), b.BasePay)
	require.Equal(t, int64(12500), b.NightPay)
	require.Equal(t, int64(72500), b.TotalPay)
}

func TestCalculateHolidayPremium(t *testing.T) {
	cal := nightCalendar()
	cal.Days = map[string]DayContext{
		"2026-03-02": {Holiday: true},
	}

	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	out := time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)

	b, err := Calculate(in, out, hourlyTerms(), cal)
	require.NoError(t, err)

	require.Equal(t, int64(80000), b.BasePay)
	require.Equal(t, int64(40000), b.HolidayPay)
	require.Equal(t, int64(0), b.WeeklyHolidayPay)
	require.Equal(t, int64(120000), b.TotalPay)
}

func TestCalculateWeeklyHolidayPremium(t *testing.T) {
	cal := nightCalendar()
	cal.Days = map[string]DayContext{
		"2026-03-01": {WeeklyHoliday: true},
	}

	in := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	out := time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC)

	b, err := Calculate(in, out, hourlyTerms(), cal)
	require.NoError(t, err)

	require.Equal(t, int64(80000), b.BasePay)
	require.Equal(t, int64(80000), b.WeeklyHolidayPay)
	require.Equal(t, int64(160000), b.TotalPay)
}

func TestCalculateMonthlyRateHourlyEquivalent(t *testing.T) {
	terms := hourlyTerms()
	terms.WageType = Monthly
	terms.HourlyRate = 0
	terms.MonthlyRate = 2090000
	terms.MonthlyBaseHours = 209

	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	out := time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)

	b, err := Calculate(in, out, terms, nightCalendar())
	require.NoError(t, err)

	// 2090000 / 209 = 10000 per hour, same as the hourly fixture.
	require.Equal(t, int64(80000), b.BasePay)
}

func TestCalculateDeterministic(t *testing.T) {
	cal := nightCalendar()
	cal.Days = map[string]DayContext{
		"2026-03-02": {Holiday: true},
	}

	in := time.Date(2026, 3, 2, 20, 30, 0, 0, time.UTC)
	out := time.Date(2026, 3, 3, 6, 15, 0, 0, time.UTC)

	first, err := Calculate(in, out, hourlyTerms(), cal)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Calculate(in, out, hourlyTerms(), cal)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestCalculateClockOutBeforeClockIn(t *testing.T) {
	in := time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)
	out := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	_, err := Calculate(in, out, hourlyTerms(), nightCalendar())
	require.Error(t, err)
	require.True(t, domain.IsValidation(err))
}

func TestCalculateZeroLengthShift(t *testing.T) {
	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	b, err := Calculate(in, in, hourlyTerms(), nightCalendar())
	require.NoError(t, err)
	require.Equal(t, 0, b.WorkMinutes)
	require.Equal(t, int64(0), b.TotalPay)
}
