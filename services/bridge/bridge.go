// bridge/bridge.go
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"chatpad-go/bus"
	"chatpad-go/services/keyboard"
	"chatpad-go/types"
	"chatpad-go/x/mathx"
	"chatpad-go/x/timex"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start starts the bridge service. It blocks until ctx is cancelled.
// It listens for config on topic {"config","bridge"} and (re)starts the
// websocket listener that streams key events to remote clients.
func Start(ctx context.Context, conn *bus.Connection, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		conn:       conn,
		log:        log.With("service", "bridge"),
		stateTopic: bus.T("bridge", "state"),
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the document expected on "config/bridge".
type Config struct {
	Addr       string `json:"addr"`
	Path       string `json:"path"`
	MaxClients int    `json:"max_clients,omitempty"`
}

const (
	defaultPath       = "/events"
	defaultMaxClients = 8
)

func (c *Config) normalise() error {
	if c.Addr == "" {
		return errors.New("bridge config requires addr")
	}
	c.Path = mathx.Coalesce(c.Path, defaultPath)
	if c.MaxClients < 0 {
		c.MaxClients = 0
	}
	c.MaxClients = mathx.Coalesce(c.MaxClients, defaultMaxClients)
	return nil
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn       *bus.Connection
	log        *slog.Logger
	stateTopic bus.Topic

	mu     sync.Mutex
	curRun context.CancelFunc
}

// run waits for config and supervises a single listener.
func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.T("config", "bridge"))
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.mu.Lock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Listener supervision
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	backoff := timex.Backoff(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ln, err := net.Listen("tcp", cfg.Addr)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "listen_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !timex.Sleep(ctx, delay) {
				return
			}
			continue
		}

		if err := s.serve(ctx, ln, cfg); err != nil {
			delay := backoff()
			s.publishState("degraded", "server_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !timex.Sleep(ctx, delay) {
				return
			}
			continue
		}
		return
	}
}

// serve owns one listener lifetime: it forwards bus events to websocket
// clients until ctx ends (nil) or the server fails.
func (s *Service) serve(ctx context.Context, ln net.Listener, cfg Config) error {
	b := newBroadcaster(cfg.MaxClients, s.log)
	defer b.closeAll()

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.handleWS(b))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	evSub := s.conn.Subscribe(keyboard.TopicEvent())
	stSub := s.conn.Subscribe(keyboard.TopicChatpadState())
	defer s.conn.Unsubscribe(evSub)
	defer s.conn.Unsubscribe(stSub)

	// A retained status is replayed on subscribe; take it before clients
	// can connect so their greeting carries it.
	select {
	case m := <-stSub.Channel():
		if st, ok := m.Payload.(types.ChatpadState); ok {
			b.setStatus(st)
		}
	default:
	}
	s.publishStateAddr("up", "listening", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	for {
		select {
		case <-ctx.Done():
			_ = srv.Close()
			return nil
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case m := <-evSub.Channel():
			if ev, ok := m.Payload.(types.KeyEvent); ok {
				b.broadcast(WSMessage{Type: MsgKey, Payload: KeyPayload{Kind: ev.Type, Text: ev.Text()}})
			}
		case m := <-stSub.Channel():
			if st, ok := m.Payload.(types.ChatpadState); ok {
				b.setStatus(st)
			}
		}
	}
}

func (s *Service) handleWS(b *Broadcaster) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if b.ClientCount() >= b.max {
			http.Error(w, "too many clients", http.StatusServiceUnavailable)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("ws upgrade failed", "err", err)
			return
		}
		s.log.Info("websocket client connected", "remote", r.RemoteAddr)
		c := b.AddClient(ws)

		go func() {
			defer func() {
				b.RemoveClient(c)
				s.log.Info("websocket client disconnected", "remote", r.RemoteAddr)
			}()
			for {
				_, data, err := ws.ReadMessage()
				if err != nil {
					return
				}
				s.handleInbound(data)
			}
		}()
	}
}

// handleInbound turns a client command into a fire-and-forget bus request.
func (s *Service) handleInbound(data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.log.Debug("ignoring malformed client message", "err", err)
		return
	}
	var (
		topic   bus.Topic
		payload any
	)
	switch cmd.Type {
	case CmdText:
		topic, payload = keyboard.TopicText(), types.TextEntry{Text: cmd.Text}
	case CmdMacroSet:
		topic, payload = keyboard.TopicMacro(keyboard.CtrlSet), types.MacroSet{Key: cmd.Key, Text: cmd.Text}
	case CmdNewline:
		topic, payload = keyboard.TopicNewline(), types.NewlineSet{Enable: cmd.Enable}
	case CmdChatpad:
		switch cmd.Verb {
		case keyboard.CtrlStart, keyboard.CtrlStop:
			topic = keyboard.TopicChatpad(cmd.Verb)
		default:
			s.log.Debug("ignoring chatpad verb", "verb", cmd.Verb)
			return
		}
	default:
		s.log.Debug("ignoring client command", "type", cmd.Type)
		return
	}
	s.conn.Publish(s.conn.NewMessage(topic, payload, false))
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (Config, error) {
	var cfg Config
	switch v := p.(type) {
	case Config:
		cfg = v
	case []byte:
		if err := json.Unmarshal(v, &cfg); err != nil {
			return cfg, err
		}
	case string:
		if err := json.Unmarshal([]byte(v), &cfg); err != nil {
			return cfg, err
		}
	case map[string]any:
		// Already decoded (YAML config); re-marshal for simplicity.
		b, err := json.Marshal(v)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config payload type: %T", p)
	}
	return cfg, cfg.normalise()
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,  // "up", "degraded", "error", "idle"
		"status": status, // short machine string
		"ts_ms":  time.Now().UnixMilli(),
	}
	if err != nil {
		payload["error"] = err.Error()
		s.log.Warn("bridge state", "level", level, "status", status, "err", err)
	}
	s.conn.Publish(s.conn.NewMessage(s.stateTopic, payload, true))
}

func (s *Service) publishStateAddr(level, status, addr string) {
	s.log.Info("bridge listening", "addr", addr)
	s.conn.Publish(s.conn.NewMessage(s.stateTopic, map[string]any{
		"level":  level,
		"status": status,
		"addr":   addr,
		"ts_ms":  time.Now().UnixMilli(),
	}, true))
}
