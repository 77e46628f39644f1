package proxycore

import (
	"context"
	"testing"

	"gopkg.in/yaml.v3"
)

func fakeConnectorFactory(ctx context.Context, resolve ConnectorResolver, settings *yaml.Node) (Connector, error) {
	return nil, nil
}

func fakeHandlerFactory(ctx context.Context, resolve ConnectorResolver, settings *yaml.Node) (Handler, error) {
	return nil, nil
}

func TestRegistryDuplicateConnectorTypePanics(t *testing.T) {
	r := NewRegistry()
	r.RegisterConnectorType("dup", fakeConnectorFactory)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate connector type registration")
		}
	}()
	r.RegisterConnectorType("dup", fakeConnectorFactory)
}

func TestRegistryDuplicateHandlerTypePanics(t *testing.T) {
	r := NewRegistry()
	r.RegisterHandlerType("dup", fakeHandlerFactory)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate handler type registration")
		}
	}()
	r.RegisterHandlerType("dup", fakeHandlerFactory)
}

func TestRegistryCreateUnknownType(t *testing.T) {
	r := NewRegistry()
	if _, err := r.CreateConnector(context.Background(), "nope", nil, nil); err == nil {
		t.Fatal("expected error for unknown connector type")
	}
	if _, err := r.CreateHandler(context.Background(), "nope", nil, nil); err == nil {
		t.Fatal("expected error for unknown handler type")
	}
}
