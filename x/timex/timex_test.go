package timex

import (
	"context"
	"testing"
	"time"
)

func TestSleep(t *testing.T) {
	if !Sleep(context.Background(), time.Millisecond) {
		t.Fatal("uncancelled sleep reported early exit")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if Sleep(ctx, time.Second) {
		t.Fatal("cancelled sleep reported completion")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("cancelled sleep did not return promptly")
	}
	if Sleep(ctx, 0) {
		t.Fatal("zero sleep on a done context must report false")
	}
}

func TestBackoff(t *testing.T) {
	next := Backoff(100*time.Millisecond, 300*time.Millisecond)
	want := []time.Duration{100, 200, 300, 300}
	for i, w := range want {
		if got := next(); got != w*time.Millisecond {
			t.Fatalf("step %d = %v, want %v", i, got, w*time.Millisecond)
		}
	}
	if got := Backoff(0, 0)(); got != 100*time.Millisecond {
		t.Fatalf("default min = %v", got)
	}
}
