package route

import (
	"context"

	"github.com/relaymesh/proxyd/internal/proxycore"
	"gopkg.in/yaml.v3"
)

// ruleSettings is one `rule:` entry in the "route" connector's settings.
type ruleSettings struct {
	Host       []string `yaml:"host"`
	HostSuffix []string `yaml:"host-suffix"`
	Default    bool     `yaml:"default"`
	Drop       bool     `yaml:"drop"`
	Connector  string   `yaml:"connector"`
}

type connectorSettings struct {
	Rule []ruleSettings `yaml:"rule"`
}

func init() {
	proxycore.Global().RegisterConnectorType("route", func(ctx context.Context, resolve proxycore.ConnectorResolver, settings *yaml.Node) (proxycore.Connector, error) {
		var cfg connectorSettings
		if settings != nil && settings.Kind != 0 {
			if err := settings.Decode(&cfg); err != nil {
				return nil, err
			}
		}
		rules := make([]Rule, 0, len(cfg.Rule))
		for _, rs := range cfg.Rule {
			rule := Rule{Hosts: rs.Host, HostSuffixes: rs.HostSuffix, IsDefault: rs.Default}
			if !rs.Drop {
				connector, err := resolve(rs.Connector)
				if err != nil {
					return nil, err
				}
				rule.Connector = connector
			}
			rules = append(rules, rule)
		}
		return NewConnector(rules), nil
	})
}
