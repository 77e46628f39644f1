package proxycore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/relaymesh/proxyd/internal/config"
	"github.com/relaymesh/proxyd/internal/logging"
)

// ListenerFactory constructs and starts a listener for a parsed endpoint,
// handing accepted streams/datagrams to handler. The returned io.Closer
// shuts the listener (and its accept loop) down. Injected by the caller
// (typically cmd/proxyd, wiring in internal/system.NewListener) so that
// proxycore itself has no dependency on any concrete transport package.
type ListenerFactory func(ctx context.Context, name string, ep Endpoint, handler Handler) (io.Closer, error)

// Engine is the process-wide orchestrator: it holds the registry, the
// parsed handler/connector configuration, and lazily-constructed,
// name-cached Handler and Connector instances, mirroring the original
// Proxy class's "resolve once, cache forever" model.
type Engine struct {
	registry    *Registry
	newListener ListenerFactory
	logger      *slog.Logger

	cfg *config.Config

	handlersMu sync.Mutex
	handlers   map[string]Handler

	connectorsMu sync.Mutex
	connectors   map[string]Connector

	listeners []io.Closer
}

// NewEngine constructs an Engine. logger may be nil, in which case a
// discarding logger is used.
func NewEngine(registry *Registry, newListener ListenerFactory, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Engine{
		registry:    registry,
		newListener: newListener,
		logger:      logger,
		handlers:    make(map[string]Handler),
		connectors:  make(map[string]Connector),
	}
}

// SetConfig attaches cfg without starting any listener, for callers that
// only need to resolve named handlers/connectors directly (for example
// `proxyd serve --stdio`, which drives a single handler over stdin/stdout
// instead of opening a listener).
func (e *Engine) SetConfig(cfg *config.Config) {
	e.cfg = cfg
}

// Load parses cfg, instantiates every configured listener's handler chain,
// and starts each listener. Connectors and handlers named in cfg are
// constructed lazily and cached the first time something references them.
func (e *Engine) Load(ctx context.Context, cfg *config.Config) error {
	e.cfg = cfg
	for _, lc := range cfg.Listeners {
		ep, err := ParseEndpoint(lc.Endpoint)
		if err != nil {
			return fmt.Errorf("listener %q: %w", lc.Name, err)
		}
		handler, err := e.GetHandler(ctx, lc.Handler)
		if err != nil {
			return fmt.Errorf("listener %q: handler %q: %w", lc.Name, lc.Handler, err)
		}
		closer, err := e.newListener(ctx, lc.Name, ep, handler)
		if err != nil {
			return fmt.Errorf("listener %q: %w", lc.Name, err)
		}
		e.logger.Info("listener started",
			logging.KeyListener, lc.Name,
			logging.KeyLocalAddr, ep.String(),
			logging.KeyHandler, lc.Handler)
		e.listeners = append(e.listeners, closer)
	}
	return nil
}

// GetHandler resolves a handler by its config name, constructing it (and
// recursively, any connector it references) on first access.
func (e *Engine) GetHandler(ctx context.Context, name string) (Handler, error) {
	e.handlersMu.Lock()
	if h, ok := e.handlers[name]; ok {
		e.handlersMu.Unlock()
		return h, nil
	}
	hc, ok := e.cfg.Handlers[name]
	e.handlersMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("proxycore: unknown handler %q", name)
	}

	settings := hc.Settings
	h, err := e.registry.CreateHandler(ctx, hc.Type, e.GetConnector, &settings)
	if err != nil {
		return nil, fmt.Errorf("proxycore: create handler %q (type %s): %w", name, hc.Type, err)
	}

	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	if existing, ok := e.handlers[name]; ok {
		return existing, nil
	}
	e.handlers[name] = h
	return h, nil
}

// GetConnector resolves a connector by its config name, constructing it on
// first access. Implements ConnectorResolver, so a connector's own factory
// can call back into this to chain to another named connector.
func (e *Engine) GetConnector(name string) (Connector, error) {
	e.connectorsMu.Lock()
	if c, ok := e.connectors[name]; ok {
		e.connectorsMu.Unlock()
		return c, nil
	}
	cc, ok := e.cfg.Connectors[name]
	e.connectorsMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("proxycore: unknown connector %q", name)
	}

	settings := cc.Settings
	c, err := e.registry.CreateConnector(context.Background(), cc.Type, e.GetConnector, &settings)
	if err != nil {
		return nil, fmt.Errorf("proxycore: create connector %q (type %s): %w", name, cc.Type, err)
	}

	e.connectorsMu.Lock()
	defer e.connectorsMu.Unlock()
	if existing, ok := e.connectors[name]; ok {
		return existing, nil
	}
	e.connectors[name] = c
	return c, nil
}

// Close shuts down every listener started by Load.
func (e *Engine) Close() error {
	var firstErr error
	for _, l := range e.listeners {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
