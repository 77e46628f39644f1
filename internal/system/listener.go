package system

import (
	"context"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/relaymesh/proxyd/internal/logging"
	"github.com/relaymesh/proxyd/internal/proxycore"
)

// Listener accepts TCP connections on an endpoint and, per the spec's
// always-bind-both behavior, also binds a single UDP socket on the same
// endpoint, handing the TCP stream to handler.HandleStream per connection
// and the one shared UDP datagram to handler.HandleDatagram once. Handlers
// that do not implement datagram behavior (SOCKS5, in this engine) simply
// drain and discard every packet.
type Listener struct {
	name    string
	handler proxycore.Handler
	opts    Options
	timers  *proxycore.TimerList
	logger  *slog.Logger

	tcpListener *net.TCPListener
	udpConn     *net.UDPConn

	cancel context.CancelFunc
	done   chan struct{}
}

// NewListenerFunc adapts NewListener to proxycore.ListenerFactory.
func NewListenerFunc(opts Options, logger *slog.Logger) proxycore.ListenerFactory {
	return func(ctx context.Context, name string, ep proxycore.Endpoint, handler proxycore.Handler) (io.Closer, error) {
		return NewListener(ctx, name, ep, handler, opts, logger)
	}
}

// NewListener binds ep for both TCP accept and UDP, and starts its accept
// loop and the handler's single datagram session in background goroutines.
func NewListener(ctx context.Context, name string, ep proxycore.Endpoint, handler proxycore.Handler, opts Options, logger *slog.Logger) (*Listener, error) {
	opts = opts.withDefaults()
	if logger == nil {
		logger = logging.NopLogger()
	}

	network, addr, err := udpBindArgs(ep)
	if err != nil {
		// A host-named listener endpoint cannot be bound directly; it is
		// not resolved here and the constructor returns udpBindArgs's
		// AddressFamilyNotSupported error.
		return nil, err
	}
	udpConn, err := net.ListenUDP(network, addr)
	if err != nil {
		return nil, err
	}

	tcpAddr := &net.TCPAddr{IP: addr.IP, Port: addr.Port}
	tcpListener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		udpConn.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	l := &Listener{
		name:        name,
		handler:     handler,
		opts:        opts,
		timers:      proxycore.NewTimerList(opts.Timeout),
		logger:      logger,
		tcpListener: tcpListener,
		udpConn:     udpConn,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	go l.acceptLoop(runCtx)
	go l.datagramSession(runCtx)

	return l, nil
}

func (l *Listener) acceptLoop(ctx context.Context) {
	defer close(l.done)
	for {
		conn, err := l.tcpListener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			l.logger.Warn("accept error", logging.KeyListener, l.name, logging.KeyError, err)
			select {
			case <-time.After(l.opts.AcceptErrorDelay):
			case <-ctx.Done():
				return
			}
			continue
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok && l.opts.TCPNoDelay {
			_ = tcpConn.SetNoDelay(true)
		}
		stream := newTCPStream(conn, l.timers)
		go func() {
			if err := l.handler.HandleStream(ctx, stream); err != nil {
				l.logger.Debug("stream handler returned", logging.KeyListener, l.name, logging.KeyError, err)
			}
		}()
	}
}

func (l *Listener) datagramSession(ctx context.Context) {
	datagram := newUDPDatagram(l.udpConn, l.timers)
	if err := l.handler.HandleDatagram(ctx, datagram); err != nil {
		l.logger.Debug("datagram handler returned", logging.KeyListener, l.name, logging.KeyError, err)
	}
}

// Close stops the accept loop and closes both sockets.
func (l *Listener) Close() error {
	l.cancel()
	err := l.tcpListener.Close()
	if uerr := l.udpConn.Close(); err == nil {
		err = uerr
	}
	l.timers.Close()
	<-l.done
	return err
}
