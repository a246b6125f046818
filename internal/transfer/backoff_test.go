package transfer

import (
	"testing"
	"time"
)

// TestBackoffDelay tests the exponential growth and the cap with the
// default policy values.
func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	b := Backoff{
		Base:   1000 * time.Millisecond,
		Max:    30000 * time.Millisecond,
		Factor: 2.0,
	}

	testCases := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 1000 * time.Millisecond},
		{2, 2000 * time.Millisecond},
		{3, 4000 * time.Millisecond},
		{4, 8000 * time.Millisecond},
		{5, 16000 * time.Millisecond},
		{6, 30000 * time.Millisecond}, // 32000 capped
		{10, 30000 * time.Millisecond},
	}

	for _, tc := range testCases {
		if got := b.Delay(tc.attempt); got != tc.expected {
			t.Errorf("Delay(%d) = %v, expected %v", tc.attempt, got, tc.expected)
		}
	}
}

// TestBackoffJitter tests that jitter stays within the documented
// fraction above the base delay.
func TestBackoffJitter(t *testing.T) {
	t.Parallel()

	b := Backoff{
		Base:   1000 * time.Millisecond,
		Max:    30000 * time.Millisecond,
		Factor: 2.0,
		Jitter: true,
	}

	base := 2000 * time.Millisecond
	ceiling := time.Duration(float64(base) * (1 + jitterFraction))
	for i := 0; i < 100; i++ {
		got := b.Delay(2)
		if got < base || got > ceiling {
			t.Fatalf("Delay(2) = %v, expected within [%v, %v]", got, base, ceiling)
		}
	}
}

// TestBackoffInvalidAttempt tests that attempts below 1 behave like
// the first attempt.
func TestBackoffInvalidAttempt(t *testing.T) {
	t.Parallel()

	b := Backoff{Base: time.Second, Max: time.Minute, Factor: 2.0}
	if got := b.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, expected %v", got, time.Second)
	}
	if got := b.Delay(-3); got != time.Second {
		t.Errorf("Delay(-3) = %v, expected %v", got, time.Second)
	}
}
