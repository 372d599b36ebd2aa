package timeslot

import (
	"testing"
	"time"
)

func TestParseSlot(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"19:00", 1140, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"7pm", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSlot(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSlot(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseSlot(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatSlot_RoundTrip(t *testing.T) {
	for _, s := range []string{"00:00", "08:15", "19:00", "23:30"} {
		min, err := ParseSlot(s)
		if err != nil {
			t.Fatalf("ParseSlot(%q): %v", s, err)
		}
		if got := FormatSlot(min); got != s {
			t.Errorf("FormatSlot(ParseSlot(%q)) = %q", s, got)
		}
	}
}

func TestOverlaps_HalfOpen(t *testing.T) {
	// 19:00 = 1140 minutes, durations in minutes.
	tests := []struct {
		name                 string
		s1, d1, s2, d2       int
		want                 bool
	}{
		{"identical", 1140, 120, 1140, 120, true},
		{"contained", 1140, 120, 1170, 30, true},
		{"partial tail", 1140, 120, 1230, 120, true}, // 20:30 inside [19:00,21:00)
		{"back-to-back after", 1140, 120, 1260, 120, false}, // 21:00 starts exactly at end
		{"back-to-back before", 1140, 120, 1020, 120, false}, // 17:00+120 ends exactly at start
		{"disjoint", 600, 60, 1140, 120, false},
		// Intervals running past midnight must not wrap: 22:00+120 ends
		// at 24:00, 23:00+120 ends at 25:00 — they overlap on [23:00, 24:00).
		{"runs past midnight", 1320, 120, 1380, 120, true},
		{"back-to-back at 23:00", 1260, 120, 1380, 60, false},
	}
	for _, tt := range tests {
		if got := Overlaps(tt.s1, tt.d1, tt.s2, tt.d2); got != tt.want {
			t.Errorf("%s: Overlaps(%d,%d,%d,%d) = %v, want %v", tt.name, tt.s1, tt.d1, tt.s2, tt.d2, got, tt.want)
		}
		// Overlap is symmetric.
		if got := Overlaps(tt.s2, tt.d2, tt.s1, tt.d1); got != tt.want {
			t.Errorf("%s (swapped): Overlaps = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWithinHours(t *testing.T) {
	hours := []Interval{
		{Open: "12:00", Close: "15:00"},
		{Open: "18:00", Close: "22:00"},
	}
	tests := []struct {
		slot string
		want bool
	}{
		{"12:00", true},
		{"14:30", true},
		{"15:00", false}, // closing boundary is exclusive
		{"16:00", false},
		{"18:00", true},
		{"21:30", true},
		{"22:00", false},
	}
	for _, tt := range tests {
		min, err := ParseSlot(tt.slot)
		if err != nil {
			t.Fatalf("ParseSlot(%q): %v", tt.slot, err)
		}
		if got := WithinHours(hours, min); got != tt.want {
			t.Errorf("WithinHours(%s) = %v, want %v", tt.slot, got, tt.want)
		}
	}
}

func TestWithinHours_MalformedInterval(t *testing.T) {
	hours := []Interval{{Open: "noon", Close: "22:00"}}
	if WithinHours(hours, 780) {
		t.Error("WithinHours with malformed interval should contain nothing")
	}
}

func TestSlotsWithin(t *testing.T) {
	hours := []Interval{{Open: "12:00", Close: "14:00"}}
	got := SlotsWithin(hours, 30)
	want := []int{720, 750, 780, 810} // 12:00, 12:30, 13:00, 13:30 — 14:00 excluded
	if len(got) != len(want) {
		t.Fatalf("SlotsWithin = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SlotsWithin[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSlotsWithin_SplitService(t *testing.T) {
	hours := []Interval{
		{Open: "12:00", Close: "13:00"},
		{Open: "19:00", Close: "20:00"},
	}
	got := SlotsWithin(hours, 30)
	if len(got) != 4 {
		t.Fatalf("SlotsWithin(split) = %v, want 4 slots", got)
	}
	if got[2] != 1140 {
		t.Errorf("second service should start at 19:00 (1140), got %d", got[2])
	}
}

func TestSlotsWithin_BadCadence(t *testing.T) {
	if got := SlotsWithin([]Interval{{Open: "12:00", Close: "14:00"}}, 0); got != nil {
		t.Errorf("SlotsWithin with cadence 0 = %v, want nil", got)
	}
}

func TestCombine(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	got, err := Combine("2026-03-16", 1140, loc)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if got.Hour() != 19 || got.Minute() != 0 {
		t.Errorf("Combine wall clock = %02d:%02d, want 19:00", got.Hour(), got.Minute())
	}
	if got.Location() != loc {
		t.Errorf("Combine location = %v, want %v", got.Location(), loc)
	}
	if got.Weekday() != time.Monday {
		t.Errorf("2026-03-16 weekday = %v, want Monday", got.Weekday())
	}
}

func TestCombine_BadDate(t *testing.T) {
	if _, err := Combine("16-03-2026", 1140, time.UTC); err == nil {
		t.Error("Combine with malformed date should error")
	}
}
