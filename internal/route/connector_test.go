package route

import (
	"context"
	"net"
	"testing"

	"github.com/relaymesh/proxyd/internal/proxycore"
	"github.com/relaymesh/proxyd/internal/proxyerr"
)

type namedConnector struct {
	name string
}

func (c *namedConnector) ConnectTCP(ctx context.Context, ep proxycore.Endpoint, initialData []byte) (proxycore.Stream, error) {
	return &taggedStream{name: c.name}, nil
}

func (c *namedConnector) BindUDP(ctx context.Context, ep proxycore.Endpoint) (proxycore.Datagram, error) {
	return nil, proxyerr.New("test", proxyerr.NotSupported)
}

type taggedStream struct{ name string }

func (s *taggedStream) Read([]byte) (int, error)  { return 0, nil }
func (s *taggedStream) Write(p []byte) (int, error) { return len(p), nil }
func (s *taggedStream) Close() error               { return nil }

// TestConnectorLiteralAlwaysUsesDefault covers SPEC_FULL.md §9 decision 1: raw V4/V6
// endpoints always dispatch to the default connector, never through
// HostMatcher, even if a rule's suffix pattern would coincidentally
// match the address's string form.
func TestConnectorLiteralAlwaysUsesDefault(t *testing.T) {
	def := &namedConnector{name: "default"}
	other := &namedConnector{name: "other"}
	c := NewConnector([]Rule{
		{HostSuffixes: []string{"1"}, Connector: other},
		{IsDefault: true, Connector: def},
	})

	stream, err := c.ConnectTCP(context.Background(), proxycore.V4Endpoint(net.IPv4(127, 0, 0, 1), 80), nil)
	if err != nil {
		t.Fatalf("ConnectTCP: %v", err)
	}
	if got := stream.(*taggedStream).name; got != "default" {
		t.Fatalf("expected literal V4 endpoint routed to default connector, got %q", got)
	}
}

// TestConnectorHostDispatchesByRule checks that Host endpoints are
// routed through whichever rule's connector the matcher selects.
func TestConnectorHostDispatchesByRule(t *testing.T) {
	def := &namedConnector{name: "default"}
	blocked := &namedConnector{name: "blocked-host"}
	c := NewConnector([]Rule{
		{Hosts: []string{"blocked.example.com"}, Connector: blocked},
		{IsDefault: true, Connector: def},
	})

	stream, err := c.ConnectTCP(context.Background(), proxycore.HostEndpoint("blocked.example.com", 443), nil)
	if err != nil {
		t.Fatalf("ConnectTCP: %v", err)
	}
	if got := stream.(*taggedStream).name; got != "blocked-host" {
		t.Fatalf("expected matched rule connector, got %q", got)
	}

	stream, err = c.ConnectTCP(context.Background(), proxycore.HostEndpoint("anything-else.com", 443), nil)
	if err != nil {
		t.Fatalf("ConnectTCP: %v", err)
	}
	if got := stream.(*taggedStream).name; got != "default" {
		t.Fatalf("expected unmatched host routed to default connector, got %q", got)
	}
}

// TestConnectorBindUDPUnsupported covers SPEC_FULL.md §9 decision 4:
// BindUDP never succeeds.
func TestConnectorBindUDPUnsupported(t *testing.T) {
	c := NewConnector([]Rule{{IsDefault: true, Connector: &namedConnector{name: "default"}}})
	_, err := c.BindUDP(context.Background(), proxycore.V4Endpoint(net.IPv4(127, 0, 0, 1), 53))
	if proxyerr.KindOf(err) != proxyerr.NotSupported {
		t.Fatalf("expected NotSupported, got %v", err)
	}
}
