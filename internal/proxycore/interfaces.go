// Package proxycore defines the capability interfaces and orchestration
// plumbing shared by every protocol module in the proxy engine: the
// Stream/Datagram handle contracts, the Connector/Handler composition
// model, the named-component registry, and the engine that wires a parsed
// configuration into a running listener graph.
package proxycore

import (
	"context"
	"io"
)

// Buffer size constants shared across stream and datagram implementations.
const (
	// StreamBufferSize is the relay buffer size for TCP-shaped streams.
	StreamBufferSize = 65536
	// DatagramBufferSize is the relay buffer size for UDP-shaped datagrams.
	DatagramBufferSize = 8192
)

// Stream is a bidirectional byte-stream handle. Each handle exclusively
// owns its underlying transport; Close releases it. Implementations must
// be safe for one concurrent reader and one concurrent writer (not for
// concurrent readers among themselves, nor writers among themselves).
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// Datagram is a connectionless packet handle bound to a local endpoint.
type Datagram interface {
	// ReceiveFrom reads one packet into p, returning its length and the
	// peer endpoint it arrived from.
	ReceiveFrom(p []byte) (n int, from Endpoint, err error)
	// SendTo writes one packet to the given peer endpoint.
	SendTo(p []byte, to Endpoint) (n int, err error)
	io.Closer
}

// Connector resolves a target Endpoint into an active Stream, or binds a
// local UDP Datagram. Decorator connectors (Shadowsocks, route, SOCKS5
// client) hold a reference to a base Connector and delegate to it.
type Connector interface {
	// ConnectTCP dials ep. initialData, if non-empty, is written to the
	// resulting stream before it is handed back — connectors that frame a
	// handshake (Shadowsocks) fold it into the first encrypted chunk
	// instead of issuing a separate write.
	ConnectTCP(ctx context.Context, ep Endpoint, initialData []byte) (Stream, error)
	// BindUDP opens a local datagram socket suitable for relaying to/from
	// ep's address family. Connectors with no meaningful UDP behavior
	// (route, Shadowsocks) return a NotSupported proxyerr.
	BindUDP(ctx context.Context, ep Endpoint) (Datagram, error)
}

// Handler consumes an accepted Stream or Datagram from a listener and
// drives forwarded traffic through a Connector it was constructed with.
type Handler interface {
	// HandleStream services one accepted TCP-shaped connection until it
	// closes or fails. It must not return until the stream is done with.
	HandleStream(ctx context.Context, stream Stream) error
	// HandleDatagram services the listener's companion UDP socket.
	// Handlers with no UDP behavior drain and discard every packet.
	HandleDatagram(ctx context.Context, datagram Datagram) error
}
