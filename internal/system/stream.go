package system

import (
	"net"

	"github.com/relaymesh/proxyd/internal/proxycore"
)

// tcpStream wraps a net.Conn (TCP in practice) as a proxycore.Stream,
// touching its idle-timeout entry on every successful read or write.
type tcpStream struct {
	conn  net.Conn
	entry *proxycore.Entry
}

func newTCPStream(conn net.Conn, timers *proxycore.TimerList) *tcpStream {
	s := &tcpStream{conn: conn}
	s.entry = timers.Register(func() { conn.Close() })
	return s
}

func (s *tcpStream) Read(p []byte) (int, error) {
	n, err := s.conn.Read(p)
	if n > 0 {
		s.entry.Touch()
	}
	return n, err
}

func (s *tcpStream) Write(p []byte) (int, error) {
	n, err := s.conn.Write(p)
	if n > 0 {
		s.entry.Touch()
	}
	return n, err
}

func (s *tcpStream) Close() error {
	s.entry.Cancel()
	return s.conn.Close()
}

// StdioStream adapts the process's own stdin/stdout to a proxycore.Stream,
// used by `proxyd serve --stdio` to drive a single connector chain without
// opening a TCP listener.
type StdioStream struct {
	In  ReadCloserLike
	Out WriteCloserLike
}

// ReadCloserLike and WriteCloserLike let StdioStream be constructed from
// os.Stdin/os.Stdout without importing os here.
type ReadCloserLike interface {
	Read(p []byte) (int, error)
}
type WriteCloserLike interface {
	Write(p []byte) (int, error)
}

// NewStdioStream builds a Stream over the given reader/writer (normally
// os.Stdin and os.Stdout). Close is a no-op: closing process stdio is not
// meaningful.
func NewStdioStream(in ReadCloserLike, out WriteCloserLike) *StdioStream {
	return &StdioStream{In: in, Out: out}
}

func (s *StdioStream) Read(p []byte) (int, error)  { return s.In.Read(p) }
func (s *StdioStream) Write(p []byte) (int, error) { return s.Out.Write(p) }
func (s *StdioStream) Close() error                { return nil }
