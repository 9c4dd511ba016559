package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

func TestNew_InvalidArgsDisables(t *testing.T) {
	if New(0, 1, 0) != nil || New(1, 0, 0) != nil {
		t.Fatal("expected nil limiter for non-positive args")
	}
	var l *MapLimiter
	if !l.Allow("0xabc", time.Now()) {
		t.Fatal("nil limiter must allow everything")
	}
}

func TestAllow_BurstThenBlock(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	if !l.Allow("0xE8EC", now) || !l.Allow("0xe8ec", now) {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow("0xE8EC", now) {
		t.Fatal("third request in the same instant should be blocked")
	}
	if !l.Allow("0xE8EC", now.Add(time.Second)) {
		t.Fatal("token should refill after one second")
	}
}

func TestAllow_KeysIndependent(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	l.Allow("a", now)
	if !l.Allow("b", now) {
		t.Fatal("different keys must not share a bucket")
	}
}

func TestAllow_EvictsIdleKeys(t *testing.T) {
	l := New(100, 100, time.Minute)
	start := time.Unix(1_700_000_000, 0)
	for i := 0; i < 511; i++ {
		l.Allow(fmt.Sprintf("k%d", i), start)
	}
	// The 512th hit triggers the sweep; everything seen at start is idle by now.
	l.Allow("fresh", start.Add(2*time.Minute))
	if got := l.Len(); got != 1 {
		t.Errorf("tracked keys after eviction: got %d want 1", got)
	}
}
