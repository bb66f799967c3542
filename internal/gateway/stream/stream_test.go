package stream

import (
	"testing"
	"time"
)

func TestSignAuthDeterministic(t *testing.T) {
	now := time.Unix(1700000000, 0)
	sig1, ts1 := SignAuth("secret", "/ws/user", now)
	sig2, ts2 := SignAuth("secret", "/ws/user", now)
	if sig1 != sig2 || ts1 != ts2 {
		t.Fatal("SignAuth should be deterministic for identical inputs")
	}
	if sig1 == "" || ts1 == "" {
		t.Fatal("SignAuth returned empty signature or timestamp")
	}
}

func TestSignAuthDiffersByPath(t *testing.T) {
	now := time.Unix(1700000000, 0)
	sig1, _ := SignAuth("secret", "/ws/user", now)
	sig2, _ := SignAuth("secret", "/ws/market", now)
	if sig1 == sig2 {
		t.Fatal("expected different signatures for different paths")
	}
}

func TestNextBackoffCapped(t *testing.T) {
	b := time.Second
	for i := 0; i < 10; i++ {
		b = nextBackoff(b)
	}
	if b != maxBackoff {
		t.Errorf("backoff = %v, want capped at %v", b, maxBackoff)
	}
}
