package signal

import (
	"testing"
	"time"
)

func TestRoomRateLimiterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRoomRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	steps := []struct {
		advance time.Duration
		key     string
		want    bool
	}{
		{0, "a", true},
		{100 * time.Millisecond, "a", true},
		{100 * time.Millisecond, "a", false},
		{0, "b", true},
		{850 * time.Millisecond, "a", true},
		{0, "a", false},
	}
	for i, s := range steps {
		now = now.Add(s.advance)
		if got := rl.Allow(s.key); got != s.want {
			t.Fatalf("step %d: Allow(%s) = %v, want %v", i, s.key, got, s.want)
		}
	}

	rl.Forget("a")
	if !rl.Allow("a") {
		t.Fatal("Forget should reset the window")
	}
}
