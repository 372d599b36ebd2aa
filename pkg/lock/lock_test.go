package lock

import (
	"strings"
	"testing"
)

func TestNewOwnerToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok := NewOwnerToken()
		if seen[tok] {
			t.Fatalf("NewOwnerToken produced duplicate %q", tok)
		}
		seen[tok] = true
	}
}

func TestNewOwnerToken_Shape(t *testing.T) {
	tok := NewOwnerToken()
	// uuid (5 groups) + timestamp + random suffix, dash-joined.
	parts := strings.Split(tok, "-")
	if len(parts) != 7 {
		t.Errorf("NewOwnerToken = %q, want 7 dash-separated segments, got %d", tok, len(parts))
	}
}

func TestReservationKey(t *testing.T) {
	got := ReservationKey(42, "2026-03-16", "19:00")
	want := "lock:reservation:42:2026-03-16:19:00"
	if got != want {
		t.Errorf("ReservationKey = %q, want %q", got, want)
	}
}
