package wstransport

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/relaymesh/proxyd/internal/proxycore"
)

type echoHandler struct{}

func (echoHandler) HandleStream(ctx context.Context, stream proxycore.Stream) error {
	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := stream.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (echoHandler) HandleDatagram(ctx context.Context, datagram proxycore.Datagram) error {
	return nil
}

func TestConnectorStreamRoundTrip(t *testing.T) {
	listener, err := NewListener("127.0.0.1:0", "/ws", echoHandler{}, nil)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer listener.Close()

	url := "ws://" + listener.tcpListener.Addr().String() + "/ws"
	connector := NewConnector(url)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := connector.ConnectTCP(ctx, proxycore.Endpoint{}, nil)
	if err != nil {
		t.Fatalf("ConnectTCP: %v", err)
	}
	defer stream.Close()

	msg := "hello over websocket"
	if _, err := stream.Write([]byte(msg)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, len(msg))
	total := 0
	for total < len(buf) {
		n, err := stream.Read(buf[total:])
		total += n
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	if got := string(buf); got != msg {
		t.Fatalf("got %q, want %q", got, msg)
	}
}
