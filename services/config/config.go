// Package config publishes a device's configuration document as retained
// messages, one per top-level key, under config/<key>.
package config

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"chatpad-go/bus"

	"gopkg.in/yaml.v3"
)

const (
	serviceName  = "config"
	configPrefix = "config"
)

type ctxKey string

// CtxDeviceKey carries the device ID selecting the embedded document.
const CtxDeviceKey ctxKey = "device"

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

var (
	errNoDevice  = errors.New("config: missing device ID in context")
	errNoConfig  = errors.New("config: no embedded config for device")
	errNotObject = errors.New("config: document is not a mapping")
)

type ConfigService struct {
	Name string
	path string // optional file overriding the embedded document
	log  *slog.Logger
}

type Option func(*ConfigService)

// WithFile reads the document from path instead of the embedded table.
func WithFile(path string) Option { return func(s *ConfigService) { s.path = path } }

func WithLogger(l *slog.Logger) Option { return func(s *ConfigService) { s.log = l } }

func NewConfigService(opts ...Option) *ConfigService {
	s := &ConfigService{Name: serviceName, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *ConfigService) load(ctx context.Context) ([]byte, error) {
	if s.path != "" {
		return os.ReadFile(s.path)
	}
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return nil, errNoDevice
	}
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return nil, errNoConfig
	}
	return raw, nil
}

// Parse decodes a YAML document into its top-level keys.
func Parse(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errNotObject
	}
	return m, nil
}

// publishConfig resolves the document and publishes each key retained.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	raw, err := s.load(ctx)
	if err != nil {
		return err
	}
	m, err := Parse(raw)
	if err != nil {
		return err
	}
	for k, v := range m {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
	}
	s.log.Info("configuration published", "keys", len(m))
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			s.log.Error("publishing configuration", "err", err)
		}
	}()
}
