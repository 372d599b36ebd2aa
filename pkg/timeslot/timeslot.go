// Package timeslot holds the pure time arithmetic of the reservation
// core: HH:MM slot parsing, half-open interval overlap, business-hours
// containment, and candidate slot generation. Everything here is
// side-effect free so the concurrency-critical callers stay testable.
package timeslot

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for reservation dates.
const DateLayout = "2006-01-02"

// SlotLayout is the wire format for reservation slots.
const SlotLayout = "15:04"

// ParseDate parses a YYYY-MM-DD date string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// ParseSlot parses an HH:MM slot string into minutes from midnight.
func ParseSlot(s string) (int, error) {
	t, err := time.Parse(SlotLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid slot %q: expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatSlot renders minutes from midnight as HH:MM.
func FormatSlot(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// Overlaps reports whether the half-open intervals [start1, start1+dur1)
// and [start2, start2+dur2) intersect. Both arguments are minutes from
// midnight. Back-to-back intervals at exactly T and T+D do not overlap.
func Overlaps(start1, dur1, start2, dur2 int) bool {
	return start1 < start2+dur2 && start2 < start1+dur1
}

// Interval is one open stretch of a restaurant's day, e.g. 12:00–22:00.
// The closing boundary is exclusive: a slot at exactly Close is outside.
type Interval struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// contains reports whether slotMin falls inside the interval. Malformed
// intervals contain nothing.
func (iv Interval) contains(slotMin int) bool {
	open, err := ParseSlot(iv.Open)
	if err != nil {
		return false
	}
	close, err := ParseSlot(iv.Close)
	if err != nil {
		return false
	}
	return slotMin >= open && slotMin < close
}

// WithinHours reports whether slotMin lies inside any of the day's open
// intervals.
func WithinHours(intervals []Interval, slotMin int) bool {
	for _, iv := range intervals {
		if iv.contains(slotMin) {
			return true
		}
	}
	return false
}

// SlotsWithin generates candidate slot starts (minutes from midnight) at
// the given cadence across the day's open intervals. Slots are aligned
// to each interval's opening time and stop before the closing boundary.
func SlotsWithin(intervals []Interval, cadenceMin int) []int {
	if cadenceMin <= 0 {
		return nil
	}
	var slots []int
	for _, iv := range intervals {
		open, err := ParseSlot(iv.Open)
		if err != nil {
			continue
		}
		close, err := ParseSlot(iv.Close)
		if err != nil {
			continue
		}
		for m := open; m < close; m += cadenceMin {
			slots = append(slots, m)
		}
	}
	return slots
}

// Combine materializes a (date, slot) pair as a wall-clock instant in
// the given location. Used for the temporal and advance-window checks,
// which are defined in the restaurant's timezone.
func Combine(date string, slotMin int, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), slotMin/60, slotMin%60, 0, 0, loc), nil
}
