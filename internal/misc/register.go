package misc

import (
	"context"

	"github.com/relaymesh/proxyd/internal/proxycore"
	"gopkg.in/yaml.v3"
)

func init() {
	reg := proxycore.Global()
	reg.RegisterHandlerType("echo", func(ctx context.Context, resolve proxycore.ConnectorResolver, settings *yaml.Node) (proxycore.Handler, error) {
		return EchoHandler{}, nil
	})
	reg.RegisterHandlerType("null", func(ctx context.Context, resolve proxycore.ConnectorResolver, settings *yaml.Node) (proxycore.Handler, error) {
		return NullHandler{}, nil
	})
	reg.RegisterHandlerType("random", func(ctx context.Context, resolve proxycore.ConnectorResolver, settings *yaml.Node) (proxycore.Handler, error) {
		return RandomHandler{}, nil
	})
	reg.RegisterHandlerType("zero", func(ctx context.Context, resolve proxycore.ConnectorResolver, settings *yaml.Node) (proxycore.Handler, error) {
		return ZeroHandler{}, nil
	})
}
