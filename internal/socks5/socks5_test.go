package socks5

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/relaymesh/proxyd/internal/proxycore"
	"github.com/relaymesh/proxyd/internal/proxyerr"
)

// passthroughConnector hands back a preset stream, used to stand in for
// whatever connector a handler's CONNECT target resolves to.
type passthroughConnector struct {
	conn proxycore.Stream
	err  error
}

func (c *passthroughConnector) ConnectTCP(ctx context.Context, ep proxycore.Endpoint, initialData []byte) (proxycore.Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.conn, nil
}

func (c *passthroughConnector) BindUDP(ctx context.Context, ep proxycore.Endpoint) (proxycore.Datagram, error) {
	return nil, proxyerr.New("test", proxyerr.NotSupported)
}

// TestEndToEndConnect exercises P12: the fixed greeting/request bytes,
// the fixed 10-byte success reply, and verbatim bidirectional relay
// thereafter.
func TestEndToEndConnect(t *testing.T) {
	client, server := net.Pipe()
	remoteForHandler, remoteForTest := net.Pipe()

	handler := NewHandler(&passthroughConnector{conn: remoteForHandler}, nil)

	done := make(chan error, 1)
	go func() { done <- handler.HandleStream(context.Background(), server) }()

	if _, err := client.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		t.Fatalf("write greeting: %v", err)
	}
	greetingReply := readN(t, client, 2)
	if !bytes.Equal(greetingReply, []byte{0x05, 0x00}) {
		t.Fatalf("greeting reply = % x, want 05 00", greetingReply)
	}

	request := []byte{0x05, 0x01, 0x00, 0x01, 0x7f, 0x00, 0x00, 0x01, 0x00, 0x50}
	if _, err := client.Write(request); err != nil {
		t.Fatalf("write request: %v", err)
	}
	reply := readN(t, client, 10)
	want := []byte{0x05, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(reply, want) {
		t.Fatalf("connect reply = % x, want % x", reply, want)
	}

	if _, err := client.Write([]byte("hello remote")); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	got := readN(t, remoteForTest, len("hello remote"))
	if string(got) != "hello remote" {
		t.Fatalf("remote got %q", got)
	}

	if _, err := remoteForTest.Write([]byte("hello client")); err != nil {
		t.Fatalf("write reply payload: %v", err)
	}
	got = readN(t, client, len("hello client"))
	if string(got) != "hello client" {
		t.Fatalf("client got %q", got)
	}

	client.Close()
	remoteForTest.Close()
	<-done
}

// TestRejectsBindCommand checks that a non-CONNECT command gets the
// "command not supported" reply instead of a dial attempt.
func TestRejectsBindCommand(t *testing.T) {
	client, server := net.Pipe()
	handler := NewHandler(&passthroughConnector{}, nil)

	done := make(chan error, 1)
	go func() { done <- handler.HandleStream(context.Background(), server) }()

	client.Write([]byte{0x05, 0x01, 0x00})
	readN(t, client, 2)

	bindRequest := []byte{0x05, 0x02, 0x00, 0x01, 0x7f, 0x00, 0x00, 0x01, 0x00, 0x50}
	// The handler replies after reading only the 4-byte request header, and
	// net.Pipe is unbuffered, so the full request is written from another
	// goroutine to leave this one free to read the reply.
	go client.Write(bindRequest)
	reply := readN(t, client, 10)
	if reply[1] != replyCmdNotSupported {
		t.Fatalf("reply code = %d, want %d", reply[1], replyCmdNotSupported)
	}

	client.Close()
	<-done
}

func readN(t *testing.T, r net.Conn, n int) []byte {
	t.Helper()
	_ = r.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, n)
	if _, err := readFull(r, buf); err != nil {
		t.Fatalf("read %d bytes: %v", n, err)
	}
	return buf
}

func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
