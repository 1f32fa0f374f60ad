/**
 * @description
 * Day-of-month gating helpers for the settlement calendar. Anchor days past
 * the end of a month clamp to the month's last day, so a pod anchored on
 * the 31st still settles in February.
 */
package app

import "time"

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// clampAnchorDay returns the effective anchor day-of-month for the month
// containing t.
func clampAnchorDay(anchor int, t time.Time) int {
	if max := daysInMonth(t); anchor > max {
		return max
	}
	return anchor
}

// isAnchorDay reports whether t falls on the (clamped) anchor day.
func isAnchorDay(anchor int, t time.Time) bool {
	return t.Day() == clampAnchorDay(anchor, t)
}

// sameDay reports whether two instants fall on the same calendar day.
func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// monthRange returns the first instant of t's month and the first instant
// of the next month.
func monthRange(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}
