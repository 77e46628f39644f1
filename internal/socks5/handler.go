// Package socks5 implements an RFC 1928 CONNECT-only SOCKS5 front end:
// no-auth greeting, CONNECT command, atyp 1/3/4 addressing. BIND and UDP
// ASSOCIATE are rejected with the "command not supported" reply.
package socks5

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"

	"github.com/relaymesh/proxyd/internal/metrics"
	"github.com/relaymesh/proxyd/internal/proxycore"
	"github.com/relaymesh/proxyd/internal/proxyerr"
)

// Protocol constants per RFC 1928.
const (
	version = 0x05

	authMethodNoAuth       = 0x00
	authMethodNoAcceptable = 0xFF

	cmdConnect = 0x01

	atypV4   = 0x01
	atypHost = 0x03
	atypV6   = 0x04

	replySucceeded       = 0x00
	replyServerFailure   = 0x01
	replyNetUnreachable  = 0x03
	replyHostUnreachable = 0x04
	replyConnRefused     = 0x05
	replyTTLExpired      = 0x06
	replyCmdNotSupported = 0x07
	replyAddrNotSupported = 0x08
)

const handlerMetricLabel = "socks5"

// successReply is the fixed 10-byte IPv4-form reply this engine always
// sends on success: it never reports the connector's real bind address.
var successReply = [10]byte{version, replySucceeded, 0x00, atypV4, 0, 0, 0, 0, 0, 0}

// Handler terminates a client's SOCKS5 CONNECT handshake and relays the
// resulting stream through connector.
type Handler struct {
	connector proxycore.Connector
	metrics   *metrics.Metrics
}

// NewHandler builds a Handler forwarding CONNECT targets to connector. A
// nil m falls back to metrics.Default().
func NewHandler(connector proxycore.Connector, m *metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.Default()
	}
	return &Handler{connector: connector, metrics: m}
}

// HandleStream implements proxycore.Handler.
func (h *Handler) HandleStream(ctx context.Context, stream proxycore.Stream) error {
	if err := negotiateNoAuth(stream); err != nil {
		return err
	}

	target, err := readConnectRequest(stream)
	if err != nil {
		var perr *proxyerr.Error
		if errors.As(err, &perr) {
			writeReply(stream, replyForKind(perr.Kind))
		}
		return err
	}

	remote, err := h.connector.ConnectTCP(ctx, target, nil)
	if err != nil {
		writeReply(stream, replyForKind(proxyerr.KindOf(err)))
		return err
	}
	defer remote.Close()

	if err := writeReply(stream, replySucceeded); err != nil {
		return err
	}

	h.metrics.ConnectionOpened(handlerMetricLabel)
	defer h.metrics.ConnectionClosed(handlerMetricLabel)

	return relay(h.metrics, stream, remote)
}

// HandleDatagram implements proxycore.Handler; this subset never binds a
// UDP ASSOCIATE relay.
func (h *Handler) HandleDatagram(ctx context.Context, datagram proxycore.Datagram) error {
	buf := make([]byte, proxycore.DatagramBufferSize)
	for {
		if _, _, err := datagram.ReceiveFrom(buf); err != nil {
			return err
		}
	}
}

// negotiateNoAuth reads the greeting and replies with method 0x00 if
// offered, or "no acceptable methods" otherwise.
func negotiateNoAuth(stream proxycore.Stream) error {
	header := make([]byte, 2)
	if _, err := io.ReadFull(stream, header); err != nil {
		return err
	}
	if header[0] != version {
		return proxyerr.New("socks5.handler", proxyerr.ProtocolError)
	}
	methods := make([]byte, int(header[1]))
	if _, err := io.ReadFull(stream, methods); err != nil {
		return err
	}

	offered := false
	for _, m := range methods {
		if m == authMethodNoAuth {
			offered = true
			break
		}
	}
	if !offered {
		stream.Write([]byte{version, authMethodNoAcceptable})
		return proxyerr.New("socks5.handler", proxyerr.ProtocolNotSupported)
	}
	_, err := stream.Write([]byte{version, authMethodNoAuth})
	return err
}

// readConnectRequest reads the request header and decodes the CONNECT
// target. Any other command is rejected with replyCmdNotSupported.
func readConnectRequest(stream proxycore.Stream) (proxycore.Endpoint, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(stream, header); err != nil {
		return proxycore.Endpoint{}, err
	}
	if header[0] != version {
		return proxycore.Endpoint{}, proxyerr.New("socks5.handler", proxyerr.ProtocolError)
	}
	if header[1] != cmdConnect {
		return proxycore.Endpoint{}, &proxyerr.Error{Op: "socks5.handler", Kind: proxyerr.NotSupported}
	}

	switch header[3] {
	case atypV4:
		addr := make([]byte, 4)
		if _, err := io.ReadFull(stream, addr); err != nil {
			return proxycore.Endpoint{}, err
		}
		port, err := readPort(stream)
		if err != nil {
			return proxycore.Endpoint{}, err
		}
		return proxycore.V4Endpoint(net.IP(addr), port), nil
	case atypV6:
		addr := make([]byte, 16)
		if _, err := io.ReadFull(stream, addr); err != nil {
			return proxycore.Endpoint{}, err
		}
		port, err := readPort(stream)
		if err != nil {
			return proxycore.Endpoint{}, err
		}
		return proxycore.V6Endpoint(net.IP(addr), port), nil
	case atypHost:
		lenBuf := make([]byte, 1)
		if _, err := io.ReadFull(stream, lenBuf); err != nil {
			return proxycore.Endpoint{}, err
		}
		host := make([]byte, int(lenBuf[0]))
		if _, err := io.ReadFull(stream, host); err != nil {
			return proxycore.Endpoint{}, err
		}
		port, err := readPort(stream)
		if err != nil {
			return proxycore.Endpoint{}, err
		}
		return proxycore.HostEndpoint(string(host), port), nil
	default:
		return proxycore.Endpoint{}, &proxyerr.Error{Op: "socks5.handler", Kind: proxyerr.AddressFamilyNotSupported}
	}
}

func readPort(r io.Reader) (uint16, error) {
	buf := make([]byte, 2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

func writeReply(stream proxycore.Stream, code byte) error {
	reply := successReply
	reply[1] = code
	_, err := stream.Write(reply[:])
	return err
}

func replyForKind(kind proxyerr.Kind) byte {
	switch kind {
	case proxyerr.NotSupported:
		return replyCmdNotSupported
	case proxyerr.AddressFamilyNotSupported:
		return replyAddrNotSupported
	case proxyerr.BadAddress:
		return replyHostUnreachable
	case proxyerr.NetworkUnreachable:
		return replyNetUnreachable
	case proxyerr.ConnectionAborted:
		return replyConnRefused
	case proxyerr.TimedOut:
		return replyTTLExpired
	default:
		return replyServerFailure
	}
}

// relay copies data bidirectionally between client and remote until
// either side errors or reaches EOF, recording bytes transferred.
func relay(m *metrics.Metrics, client, remote proxycore.Stream) error {
	errCh := make(chan error, 2)

	go func() {
		errCh <- copyBytes(remote, client, m.RecordForwardBytes)
	}()
	go func() {
		errCh <- copyBytes(client, remote, m.RecordBackwardBytes)
	}()

	err1 := <-errCh
	err2 := <-errCh
	if err1 != nil && !errors.Is(err1, io.EOF) {
		return err1
	}
	if err2 != nil && !errors.Is(err2, io.EOF) {
		return err2
	}
	return nil
}

func copyBytes(dst io.Writer, src io.Reader, record func(int)) error {
	buf := make([]byte, proxycore.StreamBufferSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			record(n)
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return rerr
		}
	}
}
