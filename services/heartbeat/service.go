// Package heartbeat periodically republishes the retained chatpad state so
// observers that missed a transition still converge.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"chatpad-go/bus"
	"chatpad-go/types"
	"chatpad-go/x/mathx"
)

var topicConfigHeartbeat = bus.T("config", "heartbeat")

const (
	DefaultInterval = time.Second
	minInterval     = 100 * time.Millisecond
	maxInterval     = time.Hour
)

// StatusSource is satisfied by *keyboard.Hub.
type StatusSource interface {
	PublishStatus() types.ChatpadStatus
}

type Service struct {
	src      StatusSource
	log      *slog.Logger
	interval time.Duration
}

func New(src StatusSource, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{src: src, log: log.With("service", "heartbeat"), interval: DefaultInterval}
}

func (s *Service) serviceLoop(ctx context.Context, cfgSub *bus.Subscription) {
	defer cfgSub.Unsubscribe()

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	last := types.ChatpadStatus(255)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("heartbeat service stopping")
			return
		case <-tick.C:
			if st := s.src.PublishStatus(); st != last {
				s.log.Info("chatpad status", "status", st)
				last = st
			}
		case msg := <-cfgSub.Channel():
			if iv, ok := intervalOf(msg.Payload); ok {
				s.interval = iv
				tick.Reset(iv)
				s.log.Info("heartbeat interval set", "interval", iv)
			}
		}
	}
}

// intervalOf reads {interval: seconds}; YAML may decode it as int or float.
func intervalOf(payload any) (time.Duration, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return 0, false
	}
	var secs float64
	switch v := m["interval"].(type) {
	case int:
		secs = float64(v)
	case float64:
		secs = v
	default:
		return 0, false
	}
	return mathx.Clamp(time.Duration(secs*float64(time.Second)), minInterval, maxInterval), true
}

// Start subscribes to its config and runs until ctx is cancelled.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn.Subscribe(topicConfigHeartbeat))
	return nil
}
