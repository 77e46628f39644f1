package wstransport

import (
	"context"
	"net/http"

	"github.com/relaymesh/proxyd/internal/proxycore"
	"github.com/relaymesh/proxyd/internal/proxyerr"
	"nhooyr.io/websocket"
)

// Connector dials a plain (non-TLS) WebSocket server and wraps the
// resulting connection as a proxycore.Stream. It ignores its ep argument
// and every ConnectTCP target in favor of a single fixed url — this
// transport exists to reach one fixed upstream endpoint, not to route by
// target, mirroring how the rest of this engine layers a routing
// connector (route.Connector) above a leaf transport connector.
type Connector struct {
	url        string
	httpClient *http.Client
}

// NewConnector builds a Connector dialing url (e.g. "ws://host:port/path").
func NewConnector(url string) *Connector {
	return &Connector{url: url, httpClient: http.DefaultClient}
}

// ConnectTCP implements proxycore.Connector; ep is ignored (see Connector
// doc comment). initialData, if present, is sent as the first WebSocket
// message.
func (c *Connector) ConnectTCP(ctx context.Context, ep proxycore.Endpoint, initialData []byte) (proxycore.Stream, error) {
	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPClient: c.httpClient})
	if err != nil {
		return nil, proxyerr.Wrap("wstransport.connect_tcp", proxyerr.NetworkUnreachable, err)
	}
	conn.SetReadLimit(maxMessageSize)
	stream := newStream(ctx, conn)
	if len(initialData) > 0 {
		if _, err := stream.Write(initialData); err != nil {
			conn.Close(websocket.StatusInternalError, "")
			return nil, err
		}
	}
	return stream, nil
}

// BindUDP is not supported: a WebSocket connection carries one ordered
// byte stream, not datagrams.
func (c *Connector) BindUDP(ctx context.Context, ep proxycore.Endpoint) (proxycore.Datagram, error) {
	return nil, proxyerr.New("wstransport.bind_udp", proxyerr.NotSupported)
}

// maxMessageSize bounds one WebSocket frame; payload chunks this engine
// ever writes are at most MaxChunkSize-sized, so this is generous headroom.
const maxMessageSize = 1 << 20
