package misc

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"
)

func TestEchoHandlerStream(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- (EchoHandler{}).HandleStream(context.Background(), server) }()

	msg := []byte("ping")
	if _, err := client.Write(msg); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	got := make([]byte, len(msg))
	if _, err := client.Read(got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("got %q want %q", got, msg)
	}
	client.Close()
	<-done
}

func TestNullHandlerStreamDiscardsWithoutReply(t *testing.T) {
	client, server := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- (NullHandler{}).HandleStream(context.Background(), server) }()

	if _, err := client.Write([]byte("anything")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	client.Close()
	<-done
}

func TestZeroHandlerStreamWritesZeroes(t *testing.T) {
	client, server := net.Pipe()
	go (ZeroHandler{}).HandleStream(context.Background(), server)

	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 64)
	if _, err := client.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d: got %d want 0", i, b)
		}
	}
	client.Close()
}

func TestRandomHandlerStreamWritesSomething(t *testing.T) {
	client, server := net.Pipe()
	go (RandomHandler{}).HandleStream(context.Background(), server)

	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 4096)
	if _, err := client.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	allZero := true
	for _, b := range buf {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.Fatal("expected random bytes, got an all-zero buffer (statistically impossible unless broken)")
	}
	client.Close()
}
