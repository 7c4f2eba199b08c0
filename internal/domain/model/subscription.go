package model

import "time"

type SubscriptionLevel string

const (
	SubscriptionLevelFree SubscriptionLevel = "free"
	SubscriptionLevelPro  SubscriptionLevel = "pro"
)

// AddCalendarMonth moves t forward by one calendar month, keeping the time of day.
// When the day does not exist in the target month it lands on that month's last day
// (Jan 31 -> Feb 28/29), never overflowing into the month after.
func AddCalendarMonth(t time.Time) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	firstOfTarget := time.Date(y, m+1, 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(firstOfTarget.Year(), firstOfTarget.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}

// ComputeNewEndDate returns the subscription end date after a completed payment.
//   - not an extension: now + 1 month, whatever the current end date is
//   - extension with a current end date: current + 1 month, even when current is in the past
//   - extension without a current end date: now + 1 month
func ComputeNewEndDate(currentEndDate *time.Time, isExtension bool, now time.Time) time.Time {
	if isExtension && currentEndDate != nil && !currentEndDate.IsZero() {
		return AddCalendarMonth(*currentEndDate)
	}
	return AddCalendarMonth(now)
}

// DateOnly truncates t to midnight of its calendar day in loc. The result is
// expressed in UTC so it round-trips through a Postgres DATE column unchanged.
func DateOnly(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
