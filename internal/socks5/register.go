package socks5

import (
	"context"

	"github.com/relaymesh/proxyd/internal/metrics"
	"github.com/relaymesh/proxyd/internal/proxycore"
	"gopkg.in/yaml.v3"
)

// handlerSettings is the settings sub-tree accepted by the "socks5"
// handler type.
type handlerSettings struct {
	Connector string `yaml:"connector"`
}

// connectorSettings is the settings sub-tree accepted by the "socks5"
// connector type.
type connectorSettings struct {
	Server    string `yaml:"server"`
	Connector string `yaml:"connector"`
}

func init() {
	proxycore.Global().RegisterHandlerType("socks5", func(ctx context.Context, resolve proxycore.ConnectorResolver, settings *yaml.Node) (proxycore.Handler, error) {
		var cfg handlerSettings
		if settings != nil && settings.Kind != 0 {
			if err := settings.Decode(&cfg); err != nil {
				return nil, err
			}
		}
		connector, err := resolve(cfg.Connector)
		if err != nil {
			return nil, err
		}
		return NewHandler(connector, metrics.Default()), nil
	})

	proxycore.Global().RegisterConnectorType("socks5", func(ctx context.Context, resolve proxycore.ConnectorResolver, settings *yaml.Node) (proxycore.Connector, error) {
		var cfg connectorSettings
		if settings != nil && settings.Kind != 0 {
			if err := settings.Decode(&cfg); err != nil {
				return nil, err
			}
		}
		server, err := proxycore.ParseEndpoint(cfg.Server)
		if err != nil {
			return nil, err
		}
		base, err := resolve(cfg.Connector)
		if err != nil {
			return nil, err
		}
		return NewConnector(server, base), nil
	})
}
