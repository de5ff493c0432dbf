package keyboard

import (
	"context"
	"log/slog"

	"chatpad-go/bus"
	"chatpad-go/errcode"
	"chatpad-go/types"
)

// Service exposes a Hub over bus request topics and applies the retained
// config/keyboard document.
type Service struct {
	hub  *Hub
	conn *bus.Connection
	log  *slog.Logger
}

func NewService(h *Hub, conn *bus.Connection, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{hub: h, conn: conn, log: log.With("service", "keyboard")}
}

type subscriptions struct {
	cfg, macro, pad, newline, text *bus.Subscription
}

func (s *Service) subscribe() subscriptions {
	return subscriptions{
		cfg:     s.conn.Subscribe(topicConfig()),
		macro:   s.conn.Subscribe(TopicMacro(bus.SingleWild)),
		pad:     s.conn.Subscribe(TopicChatpad(bus.SingleWild)),
		newline: s.conn.Subscribe(TopicNewline()),
		text:    s.conn.Subscribe(TopicText()),
	}
}

func (s *Service) unsubscribe(sb subscriptions) {
	for _, sub := range []*bus.Subscription{sb.cfg, sb.macro, sb.pad, sb.newline, sb.text} {
		s.conn.Unsubscribe(sub)
	}
}

// Start subscribes before returning, so requests sent afterwards are not
// lost, and serves them until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if s.conn == nil {
		return errcode.InvalidParams
	}
	go s.loop(ctx, s.subscribe())
	return nil
}

// Run is the blocking form of Start.
func (s *Service) Run(ctx context.Context) { s.loop(ctx, s.subscribe()) }

func (s *Service) loop(ctx context.Context, sb subscriptions) {
	defer s.unsubscribe(sb)
	for {
		select {
		case <-ctx.Done():
			s.hub.ChatpadStop()
			s.log.Info("keyboard service stopping")
			return
		case msg := <-sb.cfg.Channel():
			s.applyConfig(msg.Payload)
		case msg := <-sb.macro.Channel():
			s.handleMacro(msg)
		case msg := <-sb.pad.Channel():
			s.handleChatpad(msg)
		case msg := <-sb.newline.Channel():
			p, ok := msg.Payload.(types.NewlineSet)
			if !ok {
				s.replyErr(msg, errcode.InvalidPayload)
				continue
			}
			s.hub.NewlineEnable(p.Enable)
			s.replyOK(msg)
		case msg := <-sb.text.Channel():
			p, ok := msg.Payload.(types.TextEntry)
			if !ok {
				s.replyErr(msg, errcode.InvalidPayload)
				continue
			}
			s.hub.PublishText([]byte(p.Text))
			s.replyOK(msg)
		}
	}
}

func (s *Service) handleMacro(msg *bus.Message) {
	verb, _ := msg.Topic[len(msg.Topic)-1].(string)
	switch verb {
	case CtrlGet:
		p, ok := msg.Payload.(types.MacroGet)
		if !ok {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		k, ok := letterOf(p.Key)
		if !ok {
			s.replyErr(msg, errcode.InvalidParams)
			return
		}
		text, found := s.hub.GetMacro(k)
		s.conn.Reply(msg, types.MacroValue{Key: string(k), Text: text, OK: found}, false)
	case CtrlSet:
		p, ok := msg.Payload.(types.MacroSet)
		if !ok {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		k, ok := letterOf(p.Key)
		if !ok {
			s.replyErr(msg, errcode.InvalidParams)
			return
		}
		s.hub.SetMacro(k, p.Text)
		s.replyOK(msg)
	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

func (s *Service) handleChatpad(msg *bus.Message) {
	verb, _ := msg.Topic[len(msg.Topic)-1].(string)
	switch verb {
	case CtrlStart:
		if err := s.hub.ChatpadStart(); err != nil {
			s.replyErr(msg, errcode.Of(err))
			return
		}
	case CtrlStop:
		s.hub.ChatpadStop()
	case CtrlStatus:
	case TokState:
		return // our own retained state
	default:
		s.replyErr(msg, errcode.Unsupported)
		return
	}
	s.reply(msg, types.ChatpadState{Status: s.hub.ChatpadStatus()})
}

// applyConfig accepts the decoded config/keyboard map:
//
//	newline: bool
//	macros: {letter: text}
//	autostart: bool
func (s *Service) applyConfig(payload any) {
	m, ok := payload.(map[string]any)
	if !ok {
		s.log.Warn("config/keyboard is not a map")
		return
	}
	if v, ok := m["newline"].(bool); ok {
		s.hub.NewlineEnable(v)
	}
	if macros, ok := m["macros"].(map[string]any); ok {
		for key, v := range macros {
			text, ok := v.(string)
			k, valid := letterOf(key)
			if !ok || !valid {
				s.log.Warn("ignoring macro", "key", key)
				continue
			}
			s.hub.SetMacro(k, text)
		}
	}
	if v, ok := m["autostart"].(bool); ok && v {
		if err := s.hub.ChatpadStart(); err != nil {
			s.log.Error("chatpad autostart failed", "err", err)
		}
	}
	s.log.Info("keyboard configured", "macros", s.hub.Macros().Len(), "newline", s.hub.NewlineEnabled())
}

// letterOf accepts a single letter in either case.
func letterOf(key string) (byte, bool) {
	if len(key) != 1 {
		return 0, false
	}
	return macroKey(key[0])
}

func (s *Service) reply(m *bus.Message, payload any) {
	if m.CanReply() {
		s.conn.Reply(m, payload, false)
	}
}

func (s *Service) replyOK(m *bus.Message) { s.reply(m, types.OKReply{OK: true}) }

func (s *Service) replyErr(m *bus.Message, code errcode.Code) {
	if code == "" {
		code = errcode.Error
	}
	s.reply(m, types.ErrorReply{OK: false, Error: string(code)})
}
