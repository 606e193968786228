// Package wage derives pay breakdowns from attendance intervals. Everything
// in here is pure: identical inputs always yield identical output, which is
// what makes stored wage fields auditable after the fact.
package wage

import (
	"time"

	"example.com/backstage/services/attendance/internal/domain"
)

// WageType is the contract's pay basis.
type WageType string

const (
	Hourly  WageType = "hourly"
	Monthly WageType = "monthly"
	Annual  WageType = "annual"
)

// Breakdown statuses. A record stays pending until the shift is closed.
const (
	StatusPending = "pending"
	StatusFinal   = "final"
)

const minutesPerHour = 60

// Terms are the contract inputs to the calculator. Rates are integer
// currency units; percentages are integer premium percents applied on top of
// base pay for the matching minutes.
type Terms struct {
	WageType   WageType
	HourlyRate int64
	// MonthlyRate is used when WageType is monthly or annual; the hourly
	// equivalent is MonthlyRate / MonthlyBaseHours.
	MonthlyRate      int64
	MonthlyBaseHours int64

	OvertimeEnabled bool
	NightEnabled    bool
	HolidayEnabled  bool

	OvertimeThresholdMin int
	OvertimePremiumPct   int64
	NightPremiumPct      int64
	HolidayPremiumPct    int64
	WeeklyHolidayPct     int64
}

// DayContext carries the calendar classification of a single date.
type DayContext struct {
	Holiday       bool
	WeeklyHoliday bool
}

// Calendar carries the calendar inputs for the dates a shift can touch.
// Shifts crossing midnight consult the context of both dates.
type Calendar struct {
	// NightStartMin and NightEndMin bound the late-night window in minutes
	// from midnight. The window crosses midnight when start > end
	// (e.g. 1320 and 300 for 22:00-05:00).
	NightStartMin int
	NightEndMin   int
	Days          map[string]DayContext
}

// Day returns the context for a date, zero value when unknown.
func (c Calendar) Day(d time.Time) DayContext {
	return c.Days[d.Format("2006-01-02")]
}

// Breakdown is the derived wage output. Every inapplicable component is an
// explicit zero, never absent.
type Breakdown struct {
	Status           string `json:"status"`
	WorkMinutes      int    `json:"work_minutes"`
	RegularMinutes   int    `json:"regular_minutes"`
	OvertimeMinutes  int    `json:"overtime_minutes"`
	NightMinutes     int    `json:"night_minutes"`
	BasePay          int64  `json:"base_pay"`
	OvertimePay      int64  `json:"overtime_pay"`
	NightPay         int64  `json:"night_pay"`
	HolidayPay       int64  `json:"holiday_pay"`
	WeeklyHolidayPay int64  `json:"weekly_holiday_pay"`
	TotalPay         int64  `json:"total_pay"`
}

// Pending returns the provisional breakdown used between clock-in and
// clock-out.
func Pending() Breakdown {
	return Breakdown{Status: StatusPending}
}

// Calculate derives the wage breakdown for a closed interval. clockOut before
// clockIn is a validation error, never a negative duration. Shifts crossing
// midnight are split at the boundary before night and holiday classification.
func Calculate(clockIn, clockOut time.Time, terms Terms, cal Calendar) (Breakdown, error) {
	if clockOut.Before(clockIn) {
		return Breakdown{}, domain.NewValidationError("clock_out", "clock-out precedes clock-in")
	}

	rate := terms.hourlyEquivalent()
	total := int(clockOut.Sub(clockIn).Minutes())

	b := Breakdown{Status: StatusFinal, WorkMinutes: total}

	b.RegularMinutes = total
	if terms.OvertimeEnabled && terms.OvertimeThresholdMin > 0 && total > terms.OvertimeThresholdMin {
		b.RegularMinutes = terms.OvertimeThresholdMin
		b.OvertimeMinutes = total - terms.OvertimeThresholdMin
	}

	// All worked minutes earn base pay; premium components stack on top.
	b.BasePay = payFor(total, rate, 100)
	b.OvertimePay = payFor(b.OvertimeMinutes, rate, terms.OvertimePremiumPct)

	for _, seg := range splitAtMidnight(clockIn, clockOut) {
		segMinutes := int(seg.end.Sub(seg.start).Minutes())

		if terms.NightEnabled {
			night := nightOverlap(seg, cal.NightStartMin, cal.NightEndMin)
			b.NightMinutes += night
			b.NightPay += payFor(night, rate, terms.NightPremiumPct)
		}

		day := cal.Day(seg.start)
		if terms.HolidayEnabled && day.Holiday {
			b.HolidayPay += payFor(segMinutes, rate, terms.HolidayPremiumPct)
		}
		if day.WeeklyHoliday {
			b.WeeklyHolidayPay += payFor(segMinutes, rate, terms.WeeklyHolidayPct)
		}
	}

	b.TotalPay = b.BasePay + b.OvertimePay + b.NightPay + b.HolidayPay + b.WeeklyHolidayPay
	return b, nil
}

// hourlyEquivalent resolves the contract to an hourly rate in currency units.
func (t Terms) hourlyEquivalent() int64 {
	baseHours := t.MonthlyBaseHours
	if baseHours == 0 {
		baseHours = 209
	}
	switch t.WageType {
	case Monthly:
		return t.MonthlyRate / baseHours
	case Annual:
		return t.MonthlyRate / 12 / baseHours
	default:
		return t.HourlyRate
	}
}

// payFor computes minutes at pct percent of the hourly rate using integer
// arithmetic only. Truncation happens once, at the end.
func payFor(minutes int, hourlyRate int64, pct int64) int64 {
	if minutes <= 0 || pct <= 0 {
		return 0
	}
	return int64(minutes) * hourlyRate * pct / (minutesPerHour * 100)
}

type segment struct {
	start, end time.Time
}

// splitAtMidnight cuts [start, end) into per-day segments so night and
// holiday classification never sees an interval spanning two dates.
func splitAtMidnight(start, end time.Time) []segment {
	var segs []segment
	cur := start
	for cur.Before(end) {
		next := time.Date(cur.Year(), cur.Month(), cur.Day(), 0, 0, 0, 0, cur.Location()).AddDate(0, 0, 1)
		if next.After(end) {
			next = end
		}
		segs = append(segs, segment{start: cur, end: next})
		cur = next
	}
	return segs
}

// nightOverlap counts the minutes of a single-day segment falling inside the
// configured night window.
func nightOverlap(seg segment, nightStartMin, nightEndMin int) int {
	dayStart := time.Date(seg.start.Year(), seg.start.Month(), seg.start.Day(), 0, 0, 0, 0, seg.start.Location())
	sm := int(seg.start.Sub(dayStart).Minutes())
	em := int(seg.end.Sub(dayStart).Minutes())

	if nightStartMin <= nightEndMin {
		return overlap(sm, em, nightStartMin, nightEndMin)
	}
	// Window crosses midnight: [start, 24:00) within this day plus
	// [00:00, end) of this day.
	return overlap(sm, em, nightStartMin, 24*minutesPerHour) + overlap(sm, em, 0, nightEndMin)
}

func overlap(aStart, aEnd, bStart, bEnd int) int {
	s := aStart
	if bStart > s {
		s = bStart
	}
	e := aEnd
	if bEnd < e {
		e = bEnd
	}
	if e <= s {
		return 0
	}
	return e - s
}
