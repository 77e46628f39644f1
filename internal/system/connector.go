// Package system implements the kernel-socket Connector and Listener: the
// leaf of every connector chain, dialing and accepting real TCP/UDP
// sockets on behalf of the decorator connectors (Shadowsocks, route) and
// handlers layered above it.
package system

import (
	"context"
	"net"
	"time"

	"github.com/relaymesh/proxyd/internal/proxycore"
	"github.com/relaymesh/proxyd/internal/proxyerr"
)

// Options configures dial/bind behavior shared by Connector and Listener.
type Options struct {
	// Timeout is the idle timeout after which a stream or datagram with no
	// successful read/write is closed. Zero uses DefaultTimeout.
	Timeout time.Duration
	// TCPNoDelay disables Nagle's algorithm on dialed/accepted sockets.
	TCPNoDelay bool
	// AcceptErrorDelay is the pause before retrying Accept after a
	// transient error (guards against EMFILE/ENFILE spin loops). Zero uses
	// DefaultAcceptErrorDelay.
	AcceptErrorDelay time.Duration
}

// Defaults matching the original system connector/listener.
const (
	DefaultTimeout          = 5 * time.Minute
	DefaultAcceptErrorDelay = 500 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.AcceptErrorDelay <= 0 {
		o.AcceptErrorDelay = DefaultAcceptErrorDelay
	}
	return o
}

// Connector dials kernel TCP sockets and binds kernel UDP sockets. It is
// the default (type: "system") connector implicitly present under the
// empty name whenever a configuration omits one.
type Connector struct {
	opts   Options
	dialer net.Dialer
	timers *proxycore.TimerList
}

// NewConnector constructs a system Connector.
func NewConnector(opts Options) *Connector {
	opts = opts.withDefaults()
	return &Connector{
		opts:   opts,
		timers: proxycore.NewTimerList(opts.Timeout),
	}
}

// ConnectTCP dials ep (literal v4/v6 address or host name — net.Dialer
// resolves host names transparently) and, if initialData is non-empty,
// writes it before returning the stream.
func (c *Connector) ConnectTCP(ctx context.Context, ep proxycore.Endpoint, initialData []byte) (proxycore.Stream, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", ep.HostPort())
	if err != nil {
		return nil, proxyerr.Wrap("system.connect_tcp", classifyDialErr(err), err)
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if ok && c.opts.TCPNoDelay {
		_ = tcpConn.SetNoDelay(true)
	}
	if len(initialData) > 0 {
		if _, err := conn.Write(initialData); err != nil {
			conn.Close()
			return nil, proxyerr.Wrap("system.connect_tcp", proxyerr.ConnectionAborted, err)
		}
	}
	return newTCPStream(conn, c.timers), nil
}

// BindUDP opens a local UDP socket for ep's address family. Host endpoints
// are not bindable (there is no local address to bind to a name).
func (c *Connector) BindUDP(ctx context.Context, ep proxycore.Endpoint) (proxycore.Datagram, error) {
	network, addr, err := udpBindArgs(ep)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP(network, addr)
	if err != nil {
		return nil, proxyerr.Wrap("system.bind_udp", proxyerr.NetworkUnreachable, err)
	}
	return newUDPDatagram(conn, c.timers), nil
}

func udpBindArgs(ep proxycore.Endpoint) (string, *net.UDPAddr, error) {
	switch ep.Kind {
	case proxycore.KindV4:
		return "udp4", &net.UDPAddr{IP: ep.IP, Port: int(ep.Port)}, nil
	case proxycore.KindV6:
		return "udp6", &net.UDPAddr{IP: ep.IP, Port: int(ep.Port)}, nil
	default:
		return "", nil, proxyerr.New("system.bind_udp", proxyerr.AddressFamilyNotSupported)
	}
}

func classifyDialErr(err error) proxyerr.Kind {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return proxyerr.TimedOut
	}
	return proxyerr.NetworkUnreachable
}
