package chatpad

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	drv "chatpad-go/drivers/chatpad"
	"chatpad-go/types"
)

// fakePort answers the init command when responsive and lets the test push
// received bytes.
type fakePort struct {
	mu         sync.Mutex
	fn         func(byte)
	tx         [][]byte
	responsive bool
	stopped    bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.tx = append(p.tx, append([]byte(nil), b...))
	reply := p.responsive && bytes.Equal(b, drv.InitCommand())
	fn := p.fn
	p.mu.Unlock()
	if reply && fn != nil {
		f := drv.NewReadyFrame()
		for _, c := range f {
			fn(c)
		}
	}
	return len(b), nil
}

func (p *fakePort) StartRx(fn func(byte)) error {
	p.mu.Lock()
	p.fn = fn
	p.mu.Unlock()
	return nil
}

func (p *fakePort) StopRx() {
	p.mu.Lock()
	p.fn = nil
	p.stopped = true
	p.mu.Unlock()
}

func (p *fakePort) feed(b ...byte) {
	p.mu.Lock()
	fn := p.fn
	p.mu.Unlock()
	for _, c := range b {
		fn(c)
	}
}

func (p *fakePort) feedFrame(f drv.Frame) { p.feed(f[:]...) }

func (p *fakePort) count(cmd []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, w := range p.tx {
		if bytes.Equal(w, cmd) {
			n++
		}
	}
	return n
}

type fakeLine struct {
	open, opened, closed bool
}

func (l *fakeLine) IsOpen() bool { return l.open }
func (l *fakeLine) Open(types.SerialConfig) error {
	l.open, l.opened = true, true
	return nil
}
func (l *fakeLine) Close() error {
	l.open, l.closed = false, true
	return nil
}

type sinkEvent struct {
	macro bool
	c     byte
}

type fakeSink struct{ ch chan sinkEvent }

func newFakeSink() *fakeSink { return &fakeSink{ch: make(chan sinkEvent, 16)} }

func (s *fakeSink) PublishChar(c byte)       { s.ch <- sinkEvent{c: c} }
func (s *fakeSink) PublishMacro(letter byte) { s.ch <- sinkEvent{macro: true, c: letter} }

type fakeHaptic struct {
	mu  sync.Mutex
	log []bool
}

func (h *fakeHaptic) Set(on bool) {
	h.mu.Lock()
	h.log = append(h.log, on)
	h.mu.Unlock()
}

func (h *fakeHaptic) pulses() []bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]bool(nil), h.log...)
}

func fastTimings() Timings {
	return Timings{
		InitAttempts:   2,
		InitReply:      20 * time.Millisecond,
		InitSettle:     time.Millisecond,
		Poll:           5 * time.Millisecond,
		HeartbeatEvery: 100,
		HapticPulse:    time.Millisecond,
	}
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func startSession(t *testing.T, p *fakePort, sink Sink, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithTimings(fastTimings()), WithLogger(quietLogger())}, opts...)
	s, err := Start(context.Background(), p, sink, opts...)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func expectEvent(t *testing.T, s *fakeSink, want sinkEvent) {
	t.Helper()
	select {
	case got := <-s.ch:
		if got != want {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for %+v", want)
	}
}

func expectNoEvent(t *testing.T, s *fakeSink) {
	t.Helper()
	select {
	case got := <-s.ch:
		t.Fatalf("unexpected event %+v", got)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestStart_RejectsMissingCollaborators(t *testing.T) {
	if _, err := Start(context.Background(), nil, newFakeSink()); err == nil {
		t.Fatal("expected error for nil port")
	}
	if _, err := Start(context.Background(), &fakePort{}, nil); err == nil {
		t.Fatal("expected error for nil sink")
	}
}

func TestSession_ReadyAndKeys(t *testing.T) {
	p := &fakePort{responsive: true}
	sink := newFakeSink()
	s := startSession(t, p, sink)

	waitFor(t, "init written", func() bool { return p.count(drv.InitCommand()) == 1 })
	waitFor(t, "syncing", func() bool { return s.State() == StateSyncing })

	p.feedFrame(drv.NewReadyFrame())
	waitFor(t, "ready", s.Ready)
	if s.State() != StateReady {
		t.Fatalf("state = %v", s.State())
	}

	p.feedFrame(drv.NewKeyFrame(0, 0x33))
	expectEvent(t, sink, sinkEvent{c: 'g'})

	// Repeats are suppressed until the pad reports ready again.
	p.feedFrame(drv.NewKeyFrame(0, 0x33))
	expectNoEvent(t, sink)

	p.feedFrame(drv.NewReadyFrame())
	p.feedFrame(drv.NewKeyFrame(drv.ModShift, 0x33))
	expectEvent(t, sink, sinkEvent{c: 'G'})
}

func TestSession_GarbageThenFramePublishesOnce(t *testing.T) {
	p := &fakePort{}
	sink := newFakeSink()
	s := startSession(t, p, sink)

	waitFor(t, "handshake exhausted", func() bool { return s.State() == StateSyncing })

	p.feed(0x17)
	p.feedFrame(drv.NewKeyFrame(0, 0x33))
	expectEvent(t, sink, sinkEvent{c: 'g'})
	expectNoEvent(t, sink)

	if st := s.Stats(); st.Resyncs != 1 || st.Keys != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestSession_PeopleKeyPublishesMacro(t *testing.T) {
	p := &fakePort{responsive: true}
	sink := newFakeSink()
	s := startSession(t, p, sink)
	waitFor(t, "syncing", func() bool { return s.State() == StateSyncing })

	// 0x37 is 'A' in the base layer; macros are keyed by the folded letter.
	p.feedFrame(drv.NewKeyFrame(drv.ModPeople, 0x37))
	expectEvent(t, sink, sinkEvent{macro: true, c: 'a'})
}

func TestSession_CapsToggle(t *testing.T) {
	p := &fakePort{responsive: true}
	sink := newFakeSink()
	h := &fakeHaptic{}
	s := startSession(t, p, sink, WithHaptic(h))
	waitFor(t, "syncing", func() bool { return s.State() == StateSyncing })

	p.feedFrame(drv.NewKeyFrame(drv.ModCapsToggle, 0))
	waitFor(t, "haptic pulse", func() bool { return len(h.pulses()) == 2 })
	if got := h.pulses(); !got[0] || got[1] {
		t.Fatalf("haptic sequence = %v", got)
	}
	expectNoEvent(t, sink)

	p.feedFrame(drv.NewReadyFrame())
	p.feedFrame(drv.NewKeyFrame(0, 0x33))
	expectEvent(t, sink, sinkEvent{c: 'G'})
}

func TestSession_ChecksumFailureCounted(t *testing.T) {
	p := &fakePort{responsive: true}
	sink := newFakeSink()
	s := startSession(t, p, sink)
	waitFor(t, "syncing", func() bool { return s.State() == StateSyncing })

	f := drv.NewKeyFrame(0, 0x33)
	f[7]++
	p.feedFrame(f)
	expectNoEvent(t, sink)
	if st := s.Stats(); st.ChecksumErrors != 1 {
		t.Fatalf("checksum errors = %d", st.ChecksumErrors)
	}
	if s.State() != StateErrorRecovery {
		t.Fatalf("state = %v", s.State())
	}

	p.feedFrame(drv.NewKeyFrame(0, 0x33))
	expectEvent(t, sink, sinkEvent{c: 'g'})
}

func TestSession_HandshakeRetries(t *testing.T) {
	p := &fakePort{}
	s := startSession(t, p, newFakeSink())

	waitFor(t, "syncing", func() bool { return s.State() == StateSyncing })
	if n := p.count(drv.InitCommand()); n != fastTimings().InitAttempts {
		t.Fatalf("init attempts = %d", n)
	}
	if s.Ready() {
		t.Fatal("silent pad must not be ready")
	}
}

func TestSession_Heartbeats(t *testing.T) {
	p := &fakePort{responsive: true}
	tm := fastTimings()
	tm.HeartbeatEvery = 2
	tm.Poll = time.Millisecond
	s := startSession(t, p, newFakeSink(), WithTimings(tm))

	waitFor(t, "heartbeats", func() bool { return p.count(drv.HeartbeatCommand()) >= 3 })
	if s.Stats().Heartbeats < 3 {
		t.Fatalf("stats = %+v", s.Stats())
	}
}

func TestSession_StopClosesOwnedLine(t *testing.T) {
	p := &fakePort{responsive: true}
	l := &fakeLine{}
	s, err := Start(context.Background(), p, newFakeSink(),
		WithTimings(fastTimings()), WithLogger(quietLogger()),
		WithLine(l, types.ChatpadSerial("uart1")))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !l.opened {
		t.Fatal("closed line was not opened")
	}
	s.Stop()
	s.Stop()

	select {
	case <-s.Done():
	default:
		t.Fatal("worker still running after Stop")
	}
	if !l.closed || !p.stopped {
		t.Fatalf("closed=%v rxStopped=%v", l.closed, p.stopped)
	}
	if s.State() != StateStopped || s.Ready() {
		t.Fatalf("state=%v ready=%v", s.State(), s.Ready())
	}
}

func TestSession_StopLeavesForeignLineOpen(t *testing.T) {
	p := &fakePort{}
	l := &fakeLine{open: true}
	s, err := Start(context.Background(), p, newFakeSink(),
		WithTimings(fastTimings()), WithLogger(quietLogger()),
		WithLine(l, types.ChatpadSerial("uart1")))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	if l.opened || l.closed {
		t.Fatalf("foreign line touched: opened=%v closed=%v", l.opened, l.closed)
	}
}
