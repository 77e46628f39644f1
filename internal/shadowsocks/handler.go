package shadowsocks

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/relaymesh/proxyd/internal/metrics"
	"github.com/relaymesh/proxyd/internal/proxycore"
	"github.com/relaymesh/proxyd/internal/proxyerr"
)

const handlerMetricLabel = "shadowsocks"

// clockSkew bounds how far a spec-2022 request timestamp may drift from
// wall-clock time before the handshake is rejected as replay or clock
// drift.
const clockSkew = 30 * time.Second

const (
	atypV4   = 1
	atypHost = 3
	atypV6   = 4

	requestType2022  = 0
	responseType2022 = 1
)

// Handler terminates a client's Shadowsocks TCP connection: it decrypts
// and parses the address-record header, opens a stream to the configured
// connector, and then relays payload chunks in both directions, sealing
// and unsealing every chunk against its own Encryptor/Decryptor pair.
type Handler struct {
	method    Method
	psk       []byte
	connector proxycore.Connector
	filter    *SaltFilter
	metrics   *metrics.Metrics
}

// NewHandler builds a server-side Handler for method, keyed by psk
// (already derived via DerivePreSharedKey), forwarding connected streams
// to connector and deduplicating request salts against filter. A nil
// m falls back to metrics.Default().
func NewHandler(method Method, psk []byte, connector proxycore.Connector, filter *SaltFilter, m *metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.Default()
	}
	return &Handler{method: method, psk: psk, connector: connector, filter: filter, metrics: m}
}

// HandleStream implements proxycore.Handler.
func (h *Handler) HandleStream(ctx context.Context, stream proxycore.Stream) error {
	start := time.Now()
	r := newChunkReader(stream, h.method)
	if err := r.initSubkey(h.psk); err != nil {
		return proxyerr.Wrap("shadowsocks.handler", proxyerr.ProtocolError, err)
	}

	requestSalt := append([]byte(nil), r.dec.Salt()...)
	if !h.filter.TestAndInsert(requestSalt) {
		h.metrics.RecordSaltRejection()
		return proxyerr.New("shadowsocks.handler", proxyerr.ProtocolError)
	}

	payloadLen, err := h.readHeaderLength(r)
	if err != nil {
		return err
	}

	body, err := r.readChunk(payloadLen)
	if err != nil {
		return err
	}
	target, initialData, err := h.parseAddressRecord(body)
	if err != nil {
		return err
	}

	remote, err := h.connector.ConnectTCP(ctx, target, initialData)
	if err != nil {
		return err
	}
	defer remote.Close()

	h.metrics.RecordHandshake(handlerMetricLabel, time.Since(start).Seconds())
	h.metrics.ConnectionOpened(handlerMetricLabel)
	defer h.metrics.ConnectionClosed(handlerMetricLabel)

	backward := make(chan error, 1)
	go func() { backward <- h.runBackward(stream, remote, requestSalt) }()

	fwdErr := h.runForward(r, remote)
	remote.Close()
	bwErr := <-backward

	if fwdErr != nil && !errors.Is(fwdErr, io.EOF) {
		return fwdErr
	}
	if bwErr != nil && !errors.Is(bwErr, io.EOF) {
		return bwErr
	}
	return nil
}

// HandleDatagram implements proxycore.Handler; this engine only speaks
// Shadowsocks AEAD framing over TCP, so every packet is drained and
// discarded until the datagram fails or is closed.
func (h *Handler) HandleDatagram(ctx context.Context, datagram proxycore.Datagram) error {
	buf := make([]byte, proxycore.DatagramBufferSize)
	for {
		if _, _, err := datagram.ReceiveFrom(buf); err != nil {
			return err
		}
	}
}

func (h *Handler) readHeaderLength(r *chunkReader) (int, error) {
	if !h.method.Is2022 {
		hdr, err := r.readChunk(2)
		if err != nil {
			return 0, err
		}
		return int(binary.BigEndian.Uint16(hdr)), nil
	}

	hdr, err := r.readChunk(11)
	if err != nil {
		return 0, err
	}
	requestType := hdr[0]
	unixSeconds := binary.BigEndian.Uint64(hdr[1:9])
	payloadLen := int(binary.BigEndian.Uint16(hdr[9:11]))

	if requestType != requestType2022 {
		return 0, proxyerr.New("shadowsocks.handler", proxyerr.ProtocolError)
	}
	if !withinClockSkew(unixSeconds) {
		return 0, proxyerr.New("shadowsocks.handler", proxyerr.ProtocolError)
	}
	return payloadLen, nil
}

func withinClockSkew(unixSeconds uint64) bool {
	now := time.Now().Unix()
	delta := now - int64(unixSeconds)
	if delta < 0 {
		delta = -delta
	}
	return time.Duration(delta)*time.Second <= clockSkew
}

// parseAddressRecord decodes atyp/address/port, an optional spec-2022
// padding field, and the trailing initial-data bytes forwarded verbatim
// to the connector.
func (h *Handler) parseAddressRecord(body []byte) (proxycore.Endpoint, []byte, error) {
	if len(body) < 1 {
		return proxycore.Endpoint{}, nil, proxyerr.New("shadowsocks.handler", proxyerr.ProtocolError)
	}
	atyp := body[0]
	off := 1

	var target proxycore.Endpoint
	switch atyp {
	case atypV4:
		if off+4+2 > len(body) {
			return proxycore.Endpoint{}, nil, proxyerr.New("shadowsocks.handler", proxyerr.ProtocolError)
		}
		ip := net.IP(append([]byte(nil), body[off:off+4]...))
		off += 4
		port := binary.BigEndian.Uint16(body[off : off+2])
		off += 2
		target = proxycore.V4Endpoint(ip, port)
	case atypV6:
		if off+16+2 > len(body) {
			return proxycore.Endpoint{}, nil, proxyerr.New("shadowsocks.handler", proxyerr.ProtocolError)
		}
		ip := net.IP(append([]byte(nil), body[off:off+16]...))
		off += 16
		port := binary.BigEndian.Uint16(body[off : off+2])
		off += 2
		target = proxycore.V6Endpoint(ip, port)
	case atypHost:
		if off+1 > len(body) {
			return proxycore.Endpoint{}, nil, proxyerr.New("shadowsocks.handler", proxyerr.ProtocolError)
		}
		hostLen := int(body[off])
		off++
		if off+hostLen+2 > len(body) {
			return proxycore.Endpoint{}, nil, proxyerr.New("shadowsocks.handler", proxyerr.ProtocolError)
		}
		host := string(body[off : off+hostLen])
		off += hostLen
		port := binary.BigEndian.Uint16(body[off : off+2])
		off += 2
		target = proxycore.HostEndpoint(host, port)
	default:
		return proxycore.Endpoint{}, nil, proxyerr.New("shadowsocks.handler", proxyerr.ProtocolError)
	}

	padLen := 0
	if h.method.Is2022 {
		if off+2 > len(body) {
			return proxycore.Endpoint{}, nil, proxyerr.New("shadowsocks.handler", proxyerr.ProtocolError)
		}
		padLen = int(binary.BigEndian.Uint16(body[off : off+2]))
		off += 2
		if off+padLen > len(body) {
			return proxycore.Endpoint{}, nil, proxyerr.New("shadowsocks.handler", proxyerr.ProtocolError)
		}
		off += padLen
	}

	initialData := body[off:]
	if h.method.Is2022 && padLen == 0 && len(initialData) == 0 {
		return proxycore.Endpoint{}, nil, proxyerr.New("shadowsocks.handler", proxyerr.ProtocolError)
	}
	return target, initialData, nil
}

// runForward unwraps client-to-remote chunks (length chunk, then payload
// chunk) and writes each payload verbatim to remote.
func (h *Handler) runForward(r *chunkReader, remote proxycore.Stream) error {
	for {
		hdr, err := r.readChunk(2)
		if err != nil {
			return err
		}
		length := int(binary.BigEndian.Uint16(hdr))
		if length > MaxChunkSize {
			return proxyerr.New("shadowsocks.handler", proxyerr.ResultOutOfRange)
		}
		payload, err := r.readChunk(length)
		if err != nil {
			return err
		}
		if _, err := remote.Write(payload); err != nil {
			return err
		}
		h.metrics.RecordForwardBytes(len(payload))
	}
}

// runBackward seals remote-to-client bytes. For spec-2022 the first
// chunk bundles a response header binding requestSalt into the same
// AEAD-sealed record; every other chunk (and every legacy chunk) carries
// only its own length-prefixed payload.
func (h *Handler) runBackward(client proxycore.Stream, remote proxycore.Stream, requestSalt []byte) error {
	enc := NewEncryptor(h.method)
	if err := enc.Init(h.psk); err != nil {
		return err
	}
	h.filter.Insert(enc.Salt())

	buf := make([]byte, MaxChunkSize)
	first := true
	for {
		n, rerr := remote.Read(buf)
		if n > 0 {
			// The response header (fixed size: known ahead of decryption)
			// replaces the plain length chunk on the first backward chunk
			// only, binding requestSalt into the same sealed record as
			// chunk_size; the payload itself always follows as its own
			// write_payload_chunk.
			if h.method.Is2022 && first {
				enc.StartChunk()
				enc.PushU8(responseType2022)
				enc.PushBigU64(uint64(time.Now().Unix()))
				enc.PushBuffer(requestSalt)
				enc.PushBigU16(uint16(n))
				enc.FinishChunk()
			} else {
				var lengthPrefix [2]byte
				binary.BigEndian.PutUint16(lengthPrefix[:], uint16(n))
				enc.WritePayloadChunk(lengthPrefix[:])
			}
			enc.WritePayloadChunk(buf[:n])
			first = false
			if _, err := client.Write(enc.TakeBytes()); err != nil {
				return err
			}
			h.metrics.RecordBackwardBytes(n)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return rerr
		}
	}
}
