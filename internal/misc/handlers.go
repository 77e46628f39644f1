// Package misc implements the trivial fixed-behavior handlers used as
// test and measurement endpoints: echo, null, random, and zero.
package misc

import (
	"context"
	"crypto/rand"
	"io"

	"github.com/relaymesh/proxyd/internal/proxycore"
)

// EchoHandler copies every byte it reads back to its sender, on both
// streams and datagrams.
type EchoHandler struct{}

func (EchoHandler) HandleStream(ctx context.Context, stream proxycore.Stream) error {
	buf := make([]byte, proxycore.StreamBufferSize)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := stream.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (EchoHandler) HandleDatagram(ctx context.Context, datagram proxycore.Datagram) error {
	buf := make([]byte, proxycore.DatagramBufferSize)
	for {
		n, from, err := datagram.ReceiveFrom(buf)
		if err != nil {
			return err
		}
		if _, err := datagram.SendTo(buf[:n], from); err != nil {
			return err
		}
	}
}

// NullHandler reads and discards everything; it never writes back.
type NullHandler struct{}

func (NullHandler) HandleStream(ctx context.Context, stream proxycore.Stream) error {
	buf := make([]byte, proxycore.StreamBufferSize)
	for {
		_, err := stream.Read(buf)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (NullHandler) HandleDatagram(ctx context.Context, datagram proxycore.Datagram) error {
	buf := make([]byte, proxycore.DatagramBufferSize)
	for {
		if _, _, err := datagram.ReceiveFrom(buf); err != nil {
			return err
		}
	}
}

// RandomHandler discards every read and concurrently writes an
// unbounded stream of cryptographically random bytes; on a datagram, it
// answers every received packet with a same-sized random packet.
type RandomHandler struct{}

func (RandomHandler) HandleStream(ctx context.Context, stream proxycore.Stream) error {
	errCh := make(chan error, 2)
	go func() {
		buf := make([]byte, proxycore.StreamBufferSize)
		for {
			if _, err := stream.Read(buf); err != nil {
				errCh <- err
				return
			}
		}
	}()
	go func() {
		buf := make([]byte, proxycore.StreamBufferSize)
		for {
			if _, err := rand.Read(buf); err != nil {
				errCh <- err
				return
			}
			if _, err := stream.Write(buf); err != nil {
				errCh <- err
				return
			}
		}
	}()
	err := <-errCh
	if err == io.EOF {
		return nil
	}
	return err
}

func (RandomHandler) HandleDatagram(ctx context.Context, datagram proxycore.Datagram) error {
	buf := make([]byte, proxycore.DatagramBufferSize)
	for {
		n, from, err := datagram.ReceiveFrom(buf)
		if err != nil {
			return err
		}
		random := make([]byte, n)
		if _, err := rand.Read(random); err != nil {
			return err
		}
		if _, err := datagram.SendTo(random, from); err != nil {
			return err
		}
	}
}

// ZeroHandler discards every read and concurrently writes an unbounded
// stream of zero bytes; on a datagram, it answers every received packet
// with a same-sized zero-filled packet.
type ZeroHandler struct{}

func (ZeroHandler) HandleStream(ctx context.Context, stream proxycore.Stream) error {
	errCh := make(chan error, 2)
	go func() {
		buf := make([]byte, proxycore.StreamBufferSize)
		for {
			if _, err := stream.Read(buf); err != nil {
				errCh <- err
				return
			}
		}
	}()
	go func() {
		buf := make([]byte, proxycore.StreamBufferSize)
		for {
			if _, err := stream.Write(buf); err != nil {
				errCh <- err
				return
			}
		}
	}()
	err := <-errCh
	if err == io.EOF {
		return nil
	}
	return err
}

func (ZeroHandler) HandleDatagram(ctx context.Context, datagram proxycore.Datagram) error {
	buf := make([]byte, proxycore.DatagramBufferSize)
	for {
		n, from, err := datagram.ReceiveFrom(buf)
		if err != nil {
			return err
		}
		zero := make([]byte, n)
		if _, err := datagram.SendTo(zero, from); err != nil {
			return err
		}
	}
}
