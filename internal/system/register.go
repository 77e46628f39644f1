package system

import (
	"context"
	"time"

	"github.com/relaymesh/proxyd/internal/proxycore"
	"gopkg.in/yaml.v3"
)

// settingsConfig is the settings sub-tree accepted by the "system"
// connector type. All fields are optional.
type settingsConfig struct {
	TimeoutSeconds          int  `yaml:"timeout-seconds"`
	TCPNoDelay              bool `yaml:"tcp-no-delay"`
	AcceptErrorDelayMillis  int  `yaml:"accept-error-delay-millis"`
}

func init() {
	proxycore.Global().RegisterConnectorType("system", func(ctx context.Context, resolve proxycore.ConnectorResolver, settings *yaml.Node) (proxycore.Connector, error) {
		cfg := settingsConfig{TCPNoDelay: true}
		if settings != nil && settings.Kind != 0 {
			if err := settings.Decode(&cfg); err != nil {
				return nil, err
			}
		}
		opts := Options{TCPNoDelay: cfg.TCPNoDelay}
		if cfg.TimeoutSeconds > 0 {
			opts.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		if cfg.AcceptErrorDelayMillis > 0 {
			opts.AcceptErrorDelay = time.Duration(cfg.AcceptErrorDelayMillis) * time.Millisecond
		}
		return NewConnector(opts), nil
	})
}
