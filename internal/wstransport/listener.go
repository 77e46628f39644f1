package wstransport

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/relaymesh/proxyd/internal/logging"
	"github.com/relaymesh/proxyd/internal/proxycore"
	"nhooyr.io/websocket"
)

// Listener accepts plain (non-TLS) HTTP connections on an endpoint and
// upgrades every request at path to a WebSocket, handing the resulting
// Stream to handler.HandleStream. It never binds a UDP socket: the
// HandleDatagram side of the handler contract is simply never invoked by
// this transport.
type Listener struct {
	path    string
	handler proxycore.Handler
	logger  *slog.Logger

	tcpListener net.Listener
	httpServer  *http.Server
	done        chan struct{}
}

// NewListenerFunc adapts NewListener to proxycore.ListenerFactory for a
// fixed upgrade path, shared by every ws-transport listener entry.
func NewListenerFunc(path string, logger *slog.Logger) proxycore.ListenerFactory {
	return func(ctx context.Context, name string, ep proxycore.Endpoint, handler proxycore.Handler) (io.Closer, error) {
		return NewListener(ep.HostPort(), path, handler, logger)
	}
}

// NewListener binds addr for plain HTTP and upgrades every request to path
// into a WebSocket stream handed to handler.
func NewListener(addr, path string, handler proxycore.Handler, logger *slog.Logger) (*Listener, error) {
	if path == "" {
		path = "/"
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	tcpListener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	l := &Listener{path: path, handler: handler, logger: logger, tcpListener: tcpListener, done: make(chan struct{})}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.upgrade)
	l.httpServer = &http.Server{Handler: mux}

	go func() {
		defer close(l.done)
		_ = l.httpServer.Serve(tcpListener)
	}()
	return l, nil
}

func (l *Listener) upgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		l.logger.Warn("websocket upgrade failed", logging.KeyError, err)
		return
	}
	conn.SetReadLimit(maxMessageSize)
	stream := newStream(r.Context(), conn)
	if err := l.handler.HandleStream(r.Context(), stream); err != nil {
		l.logger.Debug("stream handler returned", logging.KeyError, err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// Close stops accepting new WebSocket upgrades and closes the listening
// socket.
func (l *Listener) Close() error {
	err := l.httpServer.Close()
	<-l.done
	return err
}
