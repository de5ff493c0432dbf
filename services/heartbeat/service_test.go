package heartbeat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"chatpad-go/bus"
	"chatpad-go/types"
)

type countingSource struct{ n atomic.Int32 }

func (c *countingSource) PublishStatus() types.ChatpadStatus {
	c.n.Add(1)
	return types.ChatpadStopped
}

func TestIntervalOf(t *testing.T) {
	cases := []struct {
		in   any
		want time.Duration
		ok   bool
	}{
		{map[string]any{"interval": 2}, 2 * time.Second, true},
		{map[string]any{"interval": 0.5}, 500 * time.Millisecond, true},
		{map[string]any{"interval": 0.001}, minInterval, true},
		{map[string]any{"interval": "1"}, 0, false},
		{"interval", 0, false},
	}
	for _, c := range cases {
		got, ok := intervalOf(c.in)
		if got != c.want || ok != c.ok {
			t.Fatalf("intervalOf(%v) = %v, %v; want %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestService_PublishesOnConfiguredInterval(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("heartbeat")
	conn.Publish(conn.NewMessage(topicConfigHeartbeat, map[string]any{"interval": 0.1}, true))

	src := &countingSource{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := New(src, nil).Start(ctx, conn); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for src.n.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d status publishes", src.n.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
