package gate

import (
	"testing"
	"time"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	l := NewRateLimiter(3, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, ok := l.Allow("a@s.whatsapp.net"); !ok {
			t.Fatalf("Allow() refused command %d inside the budget", i+1)
		}
	}

	retryAfter, ok := l.Allow("a@s.whatsapp.net")
	if ok {
		t.Fatal("Allow() passed over budget")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Errorf("retryAfter = %v, want within (0, 1m]", retryAfter)
	}

	// The window is fixed, not sliding: it rolls over at start+size.
	now = now.Add(61 * time.Second)
	if _, ok := l.Allow("a@s.whatsapp.net"); !ok {
		t.Error("Allow() refused after the window rolled over")
	}
}

func TestRateLimiterPerSender(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)

	l.Allow("a@s.whatsapp.net")
	if _, ok := l.Allow("b@s.whatsapp.net"); !ok {
		t.Error("senders share a rate-limit window")
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	l := NewRateLimiter(0, 0)
	if l.max != 10 {
		t.Errorf("max = %d, want default 10", l.max)
	}
	if l.size != time.Minute {
		t.Errorf("size = %v, want default 1m", l.size)
	}
}

func TestRateLimiterPrune(t *testing.T) {
	l := NewRateLimiter(5, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("a@s.whatsapp.net")
	now = now.Add(10 * time.Minute)
	l.Allow("b@s.whatsapp.net")

	if removed := l.Prune(time.Minute); removed != 1 {
		t.Errorf("Prune() = %d, want 1", removed)
	}
}
