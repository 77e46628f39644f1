package proxycore

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// ConnectorResolver looks up an already-configured connector by its config
// name, lazily constructing it on first access. Passed to factories so a
// decorator connector (Shadowsocks, route) can chain to another by name.
type ConnectorResolver func(name string) (Connector, error)

// HandlerFactory builds a Handler from its settings sub-tree. resolve
// permits the handler to look up the connector it forwards through.
type HandlerFactory func(ctx context.Context, resolve ConnectorResolver, settings *yaml.Node) (Handler, error)

// ConnectorFactory builds a Connector from its settings sub-tree. resolve
// permits chaining to another named connector (connector chaining).
type ConnectorFactory func(ctx context.Context, resolve ConnectorResolver, settings *yaml.Node) (Connector, error)

// Registry is a process-wide {type name -> constructor} map for handler and
// connector types. Registration happens once, in each protocol package's
// init(), via RegisterHandlerType/RegisterConnectorType. Duplicate
// registration of the same type name is a programming error and panics,
// matching the original's abort-on-duplicate-registration semantics.
type Registry struct {
	mu             sync.Mutex
	handlerTypes   map[string]HandlerFactory
	connectorTypes map[string]ConnectorFactory
}

// globalRegistry is the singleton protocol modules register into from
// their package init() functions.
var globalRegistry = NewRegistry()

// Global returns the process-wide registry.
func Global() *Registry { return globalRegistry }

// NewRegistry constructs an empty registry. Most callers want Global();
// a fresh instance is useful in tests that register fake types.
func NewRegistry() *Registry {
	return &Registry{
		handlerTypes:   make(map[string]HandlerFactory),
		connectorTypes: make(map[string]ConnectorFactory),
	}
}

// RegisterHandlerType registers a handler type by name. Panics if the name
// is already registered.
func (r *Registry) RegisterHandlerType(name string, factory HandlerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlerTypes[name]; exists {
		panic(fmt.Sprintf("proxycore: duplicate handler type registration: %q", name))
	}
	r.handlerTypes[name] = factory
}

// RegisterConnectorType registers a connector type by name. Panics if the
// name is already registered.
func (r *Registry) RegisterConnectorType(name string, factory ConnectorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.connectorTypes[name]; exists {
		panic(fmt.Sprintf("proxycore: duplicate connector type registration: %q", name))
	}
	r.connectorTypes[name] = factory
}

// CreateHandler instantiates a handler of the given registered type.
func (r *Registry) CreateHandler(ctx context.Context, typeName string, resolve ConnectorResolver, settings *yaml.Node) (Handler, error) {
	r.mu.Lock()
	factory, ok := r.handlerTypes[typeName]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("proxycore: unknown handler type %q", typeName)
	}
	return factory(ctx, resolve, settings)
}

// CreateConnector instantiates a connector of the given registered type.
func (r *Registry) CreateConnector(ctx context.Context, typeName string, resolve ConnectorResolver, settings *yaml.Node) (Connector, error) {
	r.mu.Lock()
	factory, ok := r.connectorTypes[typeName]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("proxycore: unknown connector type %q", typeName)
	}
	return factory(ctx, resolve, settings)
}
