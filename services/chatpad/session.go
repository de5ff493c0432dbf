// Package chatpad runs a chatpad session: it owns the receive ring, performs
// the init handshake, keeps the pad alive with heartbeats and turns key
// reports into published characters and macro triggers.
package chatpad

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	drv "chatpad-go/drivers/chatpad"
	"chatpad-go/errcode"
	"chatpad-go/types"
	"chatpad-go/x/conv"
	"chatpad-go/x/shmring"
	"chatpad-go/x/timex"
)

// RxRingSize holds 32 frames.
const RxRingSize = 256

// Sink receives decoded key actions. Calls come from the session goroutine.
type Sink interface {
	PublishChar(c byte)
	PublishMacro(letter byte)
}

// Haptic drives the vibration motor. machine.Pin satisfies it.
type Haptic interface {
	Set(on bool)
}

// State is the session's position in its lifecycle.
type State uint32

const (
	StateInitializing State = iota
	StateSyncing
	StateReady
	StateErrorRecovery
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateSyncing:
		return "syncing"
	case StateReady:
		return "ready"
	case StateErrorRecovery:
		return "error_recovery"
	default:
		return "stopped"
	}
}

// Timings are the liveness budgets of the session.
type Timings struct {
	InitAttempts   int
	InitReply      time.Duration // wait for the 8-byte init reply
	InitSettle     time.Duration // pause after each init attempt
	Poll           time.Duration // frame read timeout per loop iteration
	HeartbeatEvery int           // loop iterations between heartbeats
	HapticPulse    time.Duration
}

// DefaultTimings match the pad firmware's expectations.
func DefaultTimings() Timings {
	return Timings{
		InitAttempts:   5,
		InitReply:      time.Second,
		InitSettle:     500 * time.Millisecond,
		Poll:           20 * time.Millisecond,
		HeartbeatEvery: 100,
		HapticPulse:    100 * time.Millisecond,
	}
}

// Stats are cumulative session counters.
type Stats struct {
	drv.ReaderStats
	ChecksumErrors uint32
	Overflows      uint32 // bytes refused by the full receive ring
	Heartbeats     uint32
	Keys           uint32 // key bursts acted on
}

type Option func(*Session)

func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.log = l } }

func WithHaptic(h Haptic) Option { return func(s *Session) { s.haptic = h } }

func WithTimings(t Timings) Option { return func(s *Session) { s.tm = t } }

// WithLine lets the session open the serial line with cfg if it is closed.
// Only a line opened this way is closed again on Stop.
func WithLine(l drv.Line, cfg types.SerialConfig) Option {
	return func(s *Session) { s.line, s.lineCfg = l, cfg }
}

// Session is one connected-pad lifetime.
type Session struct {
	port    drv.Port
	line    drv.Line
	lineCfg types.SerialConfig
	ownLine bool
	sink    Sink
	haptic  Haptic
	log     *slog.Logger
	tm      Timings

	ring   *shmring.Ring
	reader *drv.Reader

	ready      atomic.Bool
	state      atomic.Uint32
	checksums  atomic.Uint32
	heartbeats atomic.Uint32
	keys       atomic.Uint32

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Start opens the line if needed, begins receiving and launches the session
// goroutine. A failed handshake does not fail Start: the session keeps
// running in a non-ready state in case the pad is plugged in later.
func Start(ctx context.Context, port drv.Port, sink Sink, opts ...Option) (*Session, error) {
	if port == nil || sink == nil {
		return nil, errcode.InvalidParams
	}
	s := &Session{
		port: port,
		sink: sink,
		log:  slog.Default(),
		tm:   DefaultTimings(),
		ring: shmring.New(RxRingSize),
		done: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "chatpad")
	s.reader = drv.NewReader(s.ring, s.log)

	if s.line != nil && !s.line.IsOpen() {
		if err := s.line.Open(s.lineCfg); err != nil {
			return nil, errcode.Wrap(errcode.Error, "open line", err)
		}
		s.ownLine = true
	} else if s.line != nil {
		s.log.Debug("serial line already open")
	}

	if err := port.StartRx(s.receive); err != nil {
		if s.ownLine {
			_ = s.line.Close()
		}
		return nil, errcode.Wrap(errcode.Busy, "start rx", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(cctx)
	return s, nil
}

// receive is the byte callback; it never blocks.
func (s *Session) receive(b byte) {
	s.ring.TryWriteByte(b)
}

// Ready reports whether the pad has sent a ready frame this session.
func (s *Session) Ready() bool { return s.ready.Load() }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) Stats() Stats {
	return Stats{
		ReaderStats:    s.reader.Stats(),
		ChecksumErrors: s.checksums.Load(),
		Overflows:      s.ring.Dropped(),
		Heartbeats:     s.heartbeats.Load(),
		Keys:           s.keys.Load(),
	}
}

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Stop requests exit, waits for the session goroutine, then releases the
// receive path and any line the session opened. Safe to call repeatedly.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.ready.Store(false)
		s.cancel()
		<-s.done
		s.port.StopRx()
		if s.ownLine {
			if err := s.line.Close(); err != nil {
				s.log.Warn("closing serial line", "err", err)
			}
		}
		s.state.Store(uint32(StateStopped))
		s.log.Debug("chatpad freed resources")
	})
}

func (s *Session) setState(st State) { s.state.Store(uint32(st)) }

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	s.log.Debug("chatpad worker started")

	s.setState(StateInitializing)
	if err := s.handshake(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn("chatpad init failed, continuing without reply", "err", err)
	}
	s.setState(StateSyncing)

	var (
		line uint32
		show = true
		caps = false
	)
	every := uint32(max(s.tm.HeartbeatEvery, 1))

	for ctx.Err() == nil {
		if line%every == 0 {
			s.heartbeat()
		}
		line++

		f, err := s.reader.ReadFrame(ctx, s.tm.Poll)
		if err != nil {
			if errors.Is(err, drv.ErrDesync) {
				s.setState(StateErrorRecovery)
			}
			continue
		}
		p, err := drv.Decode(f)
		if err != nil {
			s.checksums.Add(1)
			s.setState(StateErrorRecovery)
			s.log.Error("checksum failed", "frame", conv.Hex(f[:]))
			continue
		}
		if s.ready.Load() {
			s.setState(StateReady)
		} else {
			s.setState(StateSyncing)
		}

		switch p.Kind {
		case drv.PacketKeys:
			if !show {
				continue
			}
			if !p.Empty() {
				s.keys.Add(1)
				s.handleKeys(ctx, p, &caps)
			}
			show = false
			line = 1
		case drv.PacketReady:
			if !s.ready.Load() {
				s.log.Info("chatpad ready")
				s.ready.Store(true)
			}
			s.setState(StateReady)
			show = true
		}
	}
	s.log.Debug("chatpad worker exiting")
}

func (s *Session) handleKeys(ctx context.Context, p drv.Packet, caps *bool) {
	ch, ok := drv.Translate(p.Scancode, p.Modifier, *caps)
	switch {
	case p.Modifier == drv.ModPeople && p.Scancode != 0:
		if ok {
			s.log.Debug("macro key", "char", string(ch), "mod", p.Modifier, "btn", p.Scancode)
			s.sink.PublishMacro(ch)
		}
	case p.Modifier == drv.ModCapsToggle:
		*caps = !*caps
		s.log.Debug("caps lock", "on", *caps)
		s.pulse(ctx)
	case ok:
		s.log.Debug("char", "char", string(ch), "mod", p.Modifier, "btn", p.Scancode)
		s.sink.PublishChar(ch)
	case p.Scancode != 0:
		s.log.Debug("unmapped key", "mod", p.Modifier, "btn", p.Scancode)
	}
}

func (s *Session) handshake(ctx context.Context) error {
	for attempt := 1; attempt <= s.tm.InitAttempts; attempt++ {
		if _, err := s.port.Write(drv.InitCommand()); err != nil {
			s.log.Error("writing init command", "err", err)
		}
		var reply [drv.FrameSize]byte
		err := s.reader.Read(ctx, reply[:], s.tm.InitReply)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.log.Error("no response to chatpad init", "attempt", attempt)
			timex.Sleep(ctx, s.tm.InitSettle)
			continue
		}
		timex.Sleep(ctx, s.tm.InitSettle)
		return nil
	}
	return drv.ErrHandshake
}

func (s *Session) heartbeat() {
	if _, err := s.port.Write(drv.HeartbeatCommand()); err != nil {
		s.log.Debug("heartbeat write failed", "err", err)
		return
	}
	s.heartbeats.Add(1)
}

func (s *Session) pulse(ctx context.Context) {
	if s.haptic == nil {
		return
	}
	s.haptic.Set(true)
	timex.Sleep(ctx, s.tm.HapticPulse)
	s.haptic.Set(false)
}
