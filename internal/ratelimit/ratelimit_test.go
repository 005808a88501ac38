package ratelimit

import (
	"testing"
	"time"

	"github.com/switchboardhq/switchboard/internal/cherr"
)

func TestDisabledLimiterAlwaysAllows(t *testing.T) {
	l := New(Config{Enabled: false})
	for i := 0; i < 1000; i++ {
		if err := l.Allow("conn1"); err != nil {
			t.Fatalf("disabled limiter rejected frame %d: %v", i, err)
		}
	}
}

func TestBurstExhaustion(t *testing.T) {
	l := New(Config{Enabled: true, FramesPerSecond: 1, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if err := l.Allow("conn1"); err != nil {
			t.Fatalf("frame %d within burst rejected: %v", i, err)
		}
	}

	err := l.Allow("conn1")
	if err == nil {
		t.Fatal("frame beyond burst was allowed")
	}
	if cherr.KindOf(err) != cherr.Backpressure {
		t.Errorf("kind = %v, want Backpressure", cherr.KindOf(err))
	}
}

func TestConnectionsLimitedIndependently(t *testing.T) {
	l := New(Config{Enabled: true, FramesPerSecond: 1, BurstSize: 1})

	if err := l.Allow("conn1"); err != nil {
		t.Fatalf("conn1 first frame: %v", err)
	}
	if err := l.Allow("conn1"); err == nil {
		t.Fatal("conn1 second frame should be rejected")
	}
	if err := l.Allow("conn2"); err != nil {
		t.Fatalf("conn2 was starved by conn1's bucket: %v", err)
	}
}

func TestForgetResetsBucket(t *testing.T) {
	l := New(Config{Enabled: true, FramesPerSecond: 1, BurstSize: 1})

	_ = l.Allow("conn1")
	if err := l.Allow("conn1"); err == nil {
		t.Fatal("bucket should be empty")
	}

	l.Forget("conn1")
	if err := l.Allow("conn1"); err != nil {
		t.Fatalf("bucket not reset after Forget: %v", err)
	}
}

func TestCleanupStale(t *testing.T) {
	l := New(Config{Enabled: true})
	_ = l.Allow("conn1")
	_ = l.Allow("conn2")

	if removed := l.CleanupStale(time.Hour); removed != 0 {
		t.Errorf("removed %d fresh buckets", removed)
	}

	time.Sleep(2 * time.Millisecond)
	if removed := l.CleanupStale(time.Millisecond); removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
}
