// Package keyboard is the keyboard event hub: it serialises published key
// actions into events on the bus, owns the macro table and the lifetime of
// the chatpad session feeding it.
package keyboard

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chatpad-go/bus"
	"chatpad-go/errcode"
	"chatpad-go/types"
	"chatpad-go/x/mathx"
)

// Peripheral is a running input session.
type Peripheral interface {
	Ready() bool
	Stop()
}

// Starter brings up a session that publishes into h.
type Starter func(h *Hub) (Peripheral, error)

type Option func(*Hub)

func WithLogger(l *slog.Logger) Option { return func(h *Hub) { h.log = l } }

// WithStarter sets how ChatpadStart creates a session.
func WithStarter(s Starter) Option { return func(h *Hub) { h.starter = s } }

// WithNewline sets the initial newline flag (default on).
func WithNewline(on bool) Option { return func(h *Hub) { h.newline = on } }

// Hub is safe for concurrent use. A nil *Hub is valid and inert.
type Hub struct {
	conn    *bus.Connection
	log     *slog.Logger
	macros  *MacroTable
	starter Starter

	mu      sync.Mutex // guards ev and newline
	ev      types.KeyEvent
	newline bool

	padMu sync.Mutex // serialises start and stop
	pad   atomic.Pointer[padRef]
}

type padRef struct{ p Peripheral }

func NewHub(conn *bus.Connection, opts ...Option) *Hub {
	h := &Hub{
		conn:    conn,
		log:     slog.Default(),
		macros:  NewMacroTable(),
		newline: true,
	}
	for _, o := range opts {
		o(h)
	}
	h.log = h.log.With("component", "keyboard")
	return h
}

// PubSub returns the connection events are published on.
func (h *Hub) PubSub() *bus.Connection {
	if h == nil {
		return nil
	}
	return h.conn
}

// Subscribe registers for key events on the hub's connection.
func (h *Hub) Subscribe() *bus.Subscription {
	if h == nil || h.conn == nil {
		return nil
	}
	return h.conn.Subscribe(TopicEvent())
}

// Macros exposes the table for bulk load and store.
func (h *Hub) Macros() *MacroTable {
	if h == nil {
		return nil
	}
	return h.macros
}

// Publish copies b into the hub's event slot and broadcasts a snapshot of it.
// Payloads beyond the event capacity are truncated; with newline enabled a
// text event ends in '\n'.
func (h *Hub) Publish(kind types.KeyEventType, b []byte) {
	if h == nil {
		slog.Error("keyboard hub is nil")
		return
	}
	h.mu.Lock()
	limit := types.MaxEventPayload
	nl := h.newline && kind == types.KeyEventText
	if nl {
		limit--
	}
	n := copy(h.ev.Data[:], b[:mathx.Clamp(len(b), 0, limit)])
	if nl {
		h.ev.Data[n] = '\n'
		n++
	}
	h.ev.Data[n] = 0
	h.ev.Length = n
	h.ev.Type = kind
	snap := h.ev
	h.mu.Unlock()

	if h.conn != nil {
		h.conn.Publish(h.conn.NewMessage(TopicEvent(), snap, false))
	}
}

func (h *Hub) PublishText(text []byte) { h.Publish(types.KeyEventText, text) }

func (h *Hub) PublishChar(c byte) { h.Publish(types.KeyEventChar, []byte{c}) }

// PublishMacro publishes the macro stored for letter, or the letter itself
// when none is set.
func (h *Hub) PublishMacro(letter byte) {
	if h == nil {
		slog.Error("keyboard hub is nil")
		return
	}
	if k, ok := macroKey(letter); ok {
		letter = k
	}
	text, ok := h.macros.Get(letter)
	if !ok {
		h.Publish(types.KeyEventMacro, []byte{letter})
		return
	}
	h.Publish(types.KeyEventMacro, []byte(text))
}

func (h *Hub) NewlineEnable(on bool) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.newline = on
	h.mu.Unlock()
}

func (h *Hub) NewlineEnabled() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.newline
}

func (h *Hub) GetMacro(letter byte) (string, bool) {
	if h == nil {
		return "", false
	}
	return h.macros.Get(letter)
}

func (h *Hub) SetMacro(letter byte, text string) {
	if h == nil {
		return
	}
	h.macros.Set(letter, text)
	h.log.Debug("macro set", "key", string(letter), "len", len(text))
}

// ChatpadStart starts a session, stopping any running one first.
func (h *Hub) ChatpadStart() error {
	if h == nil {
		return errcode.NoHub
	}
	if h.starter == nil {
		return errcode.Unsupported
	}
	h.padMu.Lock()
	defer h.padMu.Unlock()
	if old := h.pad.Swap(nil); old != nil {
		old.p.Stop()
	}
	p, err := h.starter(h)
	if err == nil && p == nil {
		err = errcode.Error
	}
	if err != nil {
		h.log.Error("chatpad start failed", "err", err)
		h.publishState(types.ChatpadError)
		return err
	}
	h.pad.Store(&padRef{p})
	h.publishState(types.ChatpadStarted)
	return nil
}

// ChatpadStop stops the running session, if any.
func (h *Hub) ChatpadStop() {
	if h == nil {
		return
	}
	h.padMu.Lock()
	defer h.padMu.Unlock()
	old := h.pad.Swap(nil)
	if old == nil {
		return
	}
	old.p.Stop()
	h.publishState(types.ChatpadStopped)
}

// ChatpadStatus never blocks on the session; without one it is Stopped.
func (h *Hub) ChatpadStatus() types.ChatpadStatus {
	if h == nil {
		return types.ChatpadError
	}
	ref := h.pad.Load()
	switch {
	case ref == nil:
		return types.ChatpadStopped
	case ref.p.Ready():
		return types.ChatpadReady
	default:
		return types.ChatpadStarted
	}
}

// PublishStatus refreshes the retained chatpad state.
func (h *Hub) PublishStatus() types.ChatpadStatus {
	st := h.ChatpadStatus()
	if h != nil {
		h.publishState(st)
	}
	return st
}

func (h *Hub) publishState(st types.ChatpadStatus) {
	if h.conn == nil {
		return
	}
	h.conn.Publish(h.conn.NewMessage(TopicChatpadState(),
		types.ChatpadState{Status: st, TS: time.Now().UnixMilli()}, true))
}
