package socks5

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/relaymesh/proxyd/internal/proxycore"
	"github.com/relaymesh/proxyd/internal/proxyerr"
)

// Connector dials a remote SOCKS5 proxy (through base) and performs the
// client side of the CONNECT handshake before handing back a Stream that
// relays target's traffic through it.
type Connector struct {
	server proxycore.Endpoint
	base   proxycore.Connector
}

// NewConnector builds a client-side Connector that reaches the SOCKS5
// server at server by dialing through base (typically the system
// connector).
func NewConnector(server proxycore.Endpoint, base proxycore.Connector) *Connector {
	return &Connector{server: server, base: base}
}

// ConnectTCP implements proxycore.Connector. initialData, if present, is
// written only after the CONNECT handshake completes.
func (c *Connector) ConnectTCP(ctx context.Context, target proxycore.Endpoint, initialData []byte) (proxycore.Stream, error) {
	conn, err := c.base.ConnectTCP(ctx, c.server, nil)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Write([]byte{version, 1, authMethodNoAuth}); err != nil {
		conn.Close()
		return nil, err
	}
	reply := make([]byte, 2)
	if _, err := io.ReadFull(conn, reply); err != nil {
		conn.Close()
		return nil, err
	}
	if reply[0] != version || reply[1] != authMethodNoAuth {
		conn.Close()
		return nil, proxyerr.New("socks5.connector", proxyerr.ProtocolError)
	}

	req, err := encodeConnectRequest(target)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, err
	}

	if err := readConnectReply(conn); err != nil {
		conn.Close()
		return nil, err
	}

	if len(initialData) > 0 {
		if _, err := conn.Write(initialData); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// BindUDP is not supported: this engine's SOCKS5 subset never relays
// UDP ASSOCIATE.
func (c *Connector) BindUDP(ctx context.Context, ep proxycore.Endpoint) (proxycore.Datagram, error) {
	return nil, proxyerr.New("socks5.connector", proxyerr.NotSupported)
}

func encodeConnectRequest(target proxycore.Endpoint) ([]byte, error) {
	buf := []byte{version, cmdConnect, 0x00}
	switch target.Kind {
	case proxycore.KindV4:
		buf = append(buf, atypV4)
		buf = append(buf, target.IP.To4()...)
	case proxycore.KindV6:
		buf = append(buf, atypV6)
		buf = append(buf, target.IP.To16()...)
	case proxycore.KindHost:
		buf = append(buf, atypHost, byte(len(target.Host)))
		buf = append(buf, target.Host...)
	default:
		return nil, proxyerr.New("socks5.connector", proxyerr.InvalidArgument)
	}
	buf = binary.BigEndian.AppendUint16(buf, target.Port)
	return buf, nil
}

// readConnectReply reads the fixed 10-byte IPv4-form reply this engine's
// servers always send and maps a non-success status to a Kind.
func readConnectReply(r io.Reader) error {
	reply := make([]byte, 10)
	if _, err := io.ReadFull(r, reply); err != nil {
		return err
	}
	if reply[0] != version {
		return proxyerr.New("socks5.connector", proxyerr.ProtocolError)
	}
	if reply[1] != replySucceeded {
		return &proxyerr.Error{Op: "socks5.connector", Kind: kindForReply(reply[1])}
	}
	return nil
}

func kindForReply(code byte) proxyerr.Kind {
	switch code {
	case replyCmdNotSupported:
		return proxyerr.NotSupported
	case replyAddrNotSupported:
		return proxyerr.AddressFamilyNotSupported
	case replyHostUnreachable:
		return proxyerr.BadAddress
	case replyNetUnreachable:
		return proxyerr.NetworkUnreachable
	case replyConnRefused:
		return proxyerr.ConnectionAborted
	case replyTTLExpired:
		return proxyerr.TimedOut
	default:
		return proxyerr.Unknown
	}
}
