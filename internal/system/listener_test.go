package system

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/relaymesh/proxyd/internal/proxycore"
)

type echoHandler struct{}

func (echoHandler) HandleStream(ctx context.Context, stream proxycore.Stream) error {
	buf := make([]byte, 1024)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := stream.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			return nil
		}
	}
}

func (echoHandler) HandleDatagram(ctx context.Context, datagram proxycore.Datagram) error {
	<-context.Background().Done()
	return nil
}

func TestListenerAcceptsAndEchoes(t *testing.T) {
	ep := proxycore.V4Endpoint(net.ParseIP("127.0.0.1").To4(), 0)
	// Port 0 isn't resolvable to both TCP and UDP consistently across two
	// separate Listen calls, so pick an ephemeral TCP port first.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	port := probe.Addr().(*net.TCPAddr).Port
	probe.Close()
	ep.Port = uint16(port)

	l, err := NewListener(context.Background(), "test", ep, echoHandler{}, Options{Timeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer l.Close()

	conn, err := net.Dial("tcp", ep.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := readFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("expected echo, got %q", buf)
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
