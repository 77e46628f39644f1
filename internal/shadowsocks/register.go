package shadowsocks

import (
	"context"

	"github.com/relaymesh/proxyd/internal/metrics"
	"github.com/relaymesh/proxyd/internal/proxycore"
	"gopkg.in/yaml.v3"
)

// sharedFilter deduplicates salts across every Shadowsocks handler and
// connector instance in this process, matching the single-process
// replay-protection scope described for SaltFilter.
var sharedFilter = NewSaltFilter()

const (
	defaultMinPaddingLength = 1
	defaultMaxPaddingLength = 900
)

// handlerSettings is the settings sub-tree accepted by the "shadowsocks"
// handler type.
type handlerSettings struct {
	Method    string `yaml:"method"`
	Password  string `yaml:"password"`
	Connector string `yaml:"connector"`
}

// connectorSettings is the settings sub-tree accepted by the
// "shadowsocks" connector type.
type connectorSettings struct {
	Servers           []string `yaml:"server"`
	Method            string   `yaml:"method"`
	Password          string   `yaml:"password"`
	MinPaddingLength  int      `yaml:"min-padding-length"`
	MaxPaddingLength  int      `yaml:"max-padding-length"`
	Connector         string   `yaml:"connector"`
}

func init() {
	proxycore.Global().RegisterHandlerType("shadowsocks", func(ctx context.Context, resolve proxycore.ConnectorResolver, settings *yaml.Node) (proxycore.Handler, error) {
		var cfg handlerSettings
		if settings != nil && settings.Kind != 0 {
			if err := settings.Decode(&cfg); err != nil {
				return nil, err
			}
		}
		method, err := LookupMethod(cfg.Method)
		if err != nil {
			return nil, err
		}
		psk, err := DerivePreSharedKey(method, cfg.Password)
		if err != nil {
			return nil, err
		}
		connector, err := resolve(cfg.Connector)
		if err != nil {
			return nil, err
		}
		return NewHandler(method, psk, connector, sharedFilter, metrics.Default()), nil
	})

	proxycore.Global().RegisterConnectorType("shadowsocks", func(ctx context.Context, resolve proxycore.ConnectorResolver, settings *yaml.Node) (proxycore.Connector, error) {
		cfg := connectorSettings{
			MinPaddingLength: defaultMinPaddingLength,
			MaxPaddingLength: defaultMaxPaddingLength,
		}
		if settings != nil && settings.Kind != 0 {
			if err := settings.Decode(&cfg); err != nil {
				return nil, err
			}
		}
		method, err := LookupMethod(cfg.Method)
		if err != nil {
			return nil, err
		}
		psk, err := DerivePreSharedKey(method, cfg.Password)
		if err != nil {
			return nil, err
		}
		servers := make([]proxycore.Endpoint, 0, len(cfg.Servers))
		for _, s := range cfg.Servers {
			ep, err := proxycore.ParseEndpoint(s)
			if err != nil {
				return nil, err
			}
			servers = append(servers, ep)
		}
		base, err := resolve(cfg.Connector)
		if err != nil {
			return nil, err
		}
		return NewConnector(method, psk, servers, base, sharedFilter, cfg.MinPaddingLength, cfg.MaxPaddingLength, metrics.Default()), nil
	})
}
