package clock

import (
	"testing"
	"time"
)

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("EAT", 3*3600))
	c := NewFakeClock(start)

	if !c.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, c.Now())
	}
	if c.Now().Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", c.Now().Location())
	}

	c.Advance(48 * time.Hour)
	if got := c.Now().Sub(start); got != 48*time.Hour {
		t.Fatalf("expected 48h advance, got %v", got)
	}
}
