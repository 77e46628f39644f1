package shadowsocks

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/relaymesh/proxyd/internal/metrics"
	"github.com/relaymesh/proxyd/internal/proxycore"
	"github.com/relaymesh/proxyd/internal/proxyerr"
)

// Connector frames outgoing TCP connections as a Shadowsocks client:
// round-robins across configured server endpoints, dials through a base
// connector, and writes the salt/header/body handshake before handing
// back a Stream that continues sealing and unsealing payload chunks for
// the life of the connection.
type Connector struct {
	method     Method
	psk        []byte
	servers    []proxycore.Endpoint
	base       proxycore.Connector
	filter     *SaltFilter
	minPadding int
	maxPadding int
	next       uint32
	metrics    *metrics.Metrics
}

// NewConnector builds a client-side Connector. servers must be
// non-empty; base resolves the actual V4/V6 dial (typically the system
// connector). minPadding/maxPadding bound the spec-2022 padding length
// chosen per connection (ignored for legacy methods). A nil m falls
// back to metrics.Default().
func NewConnector(method Method, psk []byte, servers []proxycore.Endpoint, base proxycore.Connector, filter *SaltFilter, minPadding, maxPadding int, m *metrics.Metrics) *Connector {
	if m == nil {
		m = metrics.Default()
	}
	return &Connector{
		method:     method,
		psk:        psk,
		servers:    servers,
		base:       base,
		filter:     filter,
		minPadding: minPadding,
		maxPadding: maxPadding,
		metrics:    m,
	}
}

func (c *Connector) pickServer() proxycore.Endpoint {
	idx := atomic.AddUint32(&c.next, 1) - 1
	return c.servers[int(idx)%len(c.servers)]
}

// ConnectTCP dials one of the configured servers and performs the
// Shadowsocks handshake, returning a Stream that relays target's traffic
// through it.
func (c *Connector) ConnectTCP(ctx context.Context, target proxycore.Endpoint, initialData []byte) (proxycore.Stream, error) {
	start := time.Now()
	if len(c.servers) == 0 {
		return nil, proxyerr.New("shadowsocks.connector", proxyerr.InvalidArgument)
	}
	server := c.pickServer()
	conn, err := c.base.ConnectTCP(ctx, server, nil)
	if err != nil {
		return nil, err
	}

	enc := NewEncryptor(c.method)
	if err := enc.Init(c.psk); err != nil {
		conn.Close()
		return nil, err
	}
	requestSalt := append([]byte(nil), enc.Salt()...)
	c.filter.Insert(requestSalt)

	body, err := c.buildBody(target, initialData)
	if err != nil {
		conn.Close()
		return nil, err
	}

	enc.StartChunk()
	if c.method.Is2022 {
		enc.PushU8(requestType2022)
		enc.PushBigU64(uint64(time.Now().Unix()))
	}
	enc.PushBigU16(uint16(len(body)))
	enc.FinishChunk()
	enc.WritePayloadChunk(body)

	if _, err := conn.Write(enc.TakeBytes()); err != nil {
		conn.Close()
		return nil, err
	}

	c.metrics.RecordHandshake(handlerMetricLabel, time.Since(start).Seconds())
	c.metrics.ConnectionOpened(handlerMetricLabel)

	return &clientStream{
		conn:        conn,
		r:           newChunkReader(conn, c.method),
		method:      c.method,
		psk:         c.psk,
		requestSalt: requestSalt,
		forwardEnc:  enc,
		metrics:     c.metrics,
	}, nil
}

// BindUDP is not supported: this engine speaks Shadowsocks AEAD framing
// over TCP only.
func (c *Connector) BindUDP(ctx context.Context, ep proxycore.Endpoint) (proxycore.Datagram, error) {
	return nil, proxyerr.New("shadowsocks.connector", proxyerr.NotSupported)
}

func (c *Connector) buildBody(target proxycore.Endpoint, initialData []byte) ([]byte, error) {
	var buf []byte
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
		return nil, proxyerr.New("shadowsocks.connector", proxyerr.InvalidArgument)
	}
	buf = binary.BigEndian.AppendUint16(buf, target.Port)

	if c.method.Is2022 {
		padLen, err := c.randomPaddingLength()
		if err != nil {
			return nil, err
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(padLen))
		padStart := len(buf)
		buf = append(buf, make([]byte, padLen)...)
		if _, err := crand.Read(buf[padStart:]); err != nil {
			return nil, err
		}
	}
	buf = append(buf, initialData...)
	return buf, nil
}

func (c *Connector) randomPaddingLength() (int, error) {
	if c.maxPadding <= c.minPadding {
		return c.minPadding, nil
	}
	span := c.maxPadding - c.minPadding + 1
	var b [4]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, err
	}
	return c.minPadding + int(binary.BigEndian.Uint32(b[:])%uint32(span)), nil
}

// clientStream is the proxycore.Stream handed back by Connector.ConnectTCP.
// Reads mirror the Handler's backward framing in reverse, verifying the
// response header's echoed salt on the first chunk; writes continue
// sealing length+payload chunk pairs against the handshake's Encryptor.
type clientStream struct {
	conn        proxycore.Stream
	r           *chunkReader
	method      Method
	psk         []byte
	requestSalt []byte
	forwardEnc  *Encryptor
	metrics     *metrics.Metrics

	readInit  bool
	readFirst bool
	pending   []byte
	closed    bool
}

func (c *clientStream) ensureReadInit() error {
	if c.readInit {
		return nil
	}
	if err := c.r.initSubkey(c.psk); err != nil {
		return err
	}
	c.readInit = true
	c.readFirst = true
	return nil
}

// nextPayload decodes one backward chunk — header(if first,2022)/length,
// then payload — mirroring Handler.runBackward.
func (c *clientStream) nextPayload() ([]byte, error) {
	if err := c.ensureReadInit(); err != nil {
		return nil, err
	}

	var length int
	if c.method.Is2022 && c.readFirst {
		saltSize := c.method.SaltSize()
		headerLen := 1 + 8 + saltSize + 2
		hdr, err := c.r.readChunk(headerLen)
		if err != nil {
			return nil, err
		}
		respType := hdr[0]
		echoedSalt := hdr[9 : 9+saltSize]
		length = int(binary.BigEndian.Uint16(hdr[9+saltSize:]))
		if respType != responseType2022 {
			return nil, proxyerr.New("shadowsocks.connector", proxyerr.ProtocolError)
		}
		if !bytes.Equal(echoedSalt, c.requestSalt) {
			return nil, proxyerr.New("shadowsocks.connector", proxyerr.ProtocolError)
		}
	} else {
		hdr, err := c.r.readChunk(2)
		if err != nil {
			return nil, err
		}
		length = int(binary.BigEndian.Uint16(hdr))
	}
	c.readFirst = false

	if length > MaxChunkSize {
		return nil, proxyerr.New("shadowsocks.connector", proxyerr.ResultOutOfRange)
	}
	return c.r.readChunk(length)
}

func (c *clientStream) Read(p []byte) (int, error) {
	for len(c.pending) == 0 {
		payload, err := c.nextPayload()
		if err != nil {
			return 0, err
		}
		c.pending = payload
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	c.metrics.RecordBackwardBytes(n)
	return n, nil
}

func (c *clientStream) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > MaxChunkSize {
			chunk = chunk[:MaxChunkSize]
		}
		var lengthPrefix [2]byte
		binary.BigEndian.PutUint16(lengthPrefix[:], uint16(len(chunk)))
		c.forwardEnc.WritePayloadChunk(lengthPrefix[:])
		c.forwardEnc.WritePayloadChunk(chunk)
		if _, err := c.conn.Write(c.forwardEnc.TakeBytes()); err != nil {
			return total, err
		}
		total += len(chunk)
		p = p[len(chunk):]
	}
	c.metrics.RecordForwardBytes(total)
	return total, nil
}

func (c *clientStream) Close() error {
	if !c.closed {
		c.closed = true
		c.metrics.ConnectionClosed(handlerMetricLabel)
	}
	return c.conn.Close()
}
