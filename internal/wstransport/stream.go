// Package wstransport carries the proxycore.Stream contract over a plain
// (non-TLS) WebSocket connection: a second transport alongside the
// kernel-socket transport in internal/system. Its Connector and Listener are
// constructed directly; they are not registered, and no configuration key
// selects them.
package wstransport

import (
	"context"
	"io"

	"github.com/relaymesh/proxyd/internal/proxycore"
	"nhooyr.io/websocket"
)

// wsStream adapts a *websocket.Conn to proxycore.Stream, framing every
// Write as one binary WebSocket message and buffering partial reads of a
// message across Read calls (Stream callers may request fewer bytes than
// one message holds).
type wsStream struct {
	ctx     context.Context
	conn    *websocket.Conn
	pending []byte
}

func newStream(ctx context.Context, conn *websocket.Conn) *wsStream {
	return &wsStream{ctx: ctx, conn: conn}
}

func (s *wsStream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		typ, data, err := s.conn.Read(s.ctx)
		if err != nil {
			return 0, mapCloseErr(err)
		}
		if typ != websocket.MessageBinary {
			continue
		}
		s.pending = data
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.conn.Write(s.ctx, websocket.MessageBinary, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

func mapCloseErr(err error) error {
	if websocket.CloseStatus(err) != -1 {
		return io.EOF
	}
	return err
}

var _ proxycore.Stream = (*wsStream)(nil)
