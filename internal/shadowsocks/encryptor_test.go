package shadowsocks

import (
	"bytes"
	"testing"
)

// TestEncryptorDecryptorRoundTrip exercises P4: a stream of framed chunks
// written by an Encryptor must be recoverable byte-for-byte by a
// Decryptor fed the same bytes in arbitrary-sized pieces.
func TestEncryptorDecryptorRoundTrip(t *testing.T) {
	m, err := LookupMethod("chacha20-ietf-poly1305")
	if err != nil {
		t.Fatalf("LookupMethod: %v", err)
	}
	psk, err := DerivePreSharedKey(m, "correct horse battery staple")
	if err != nil {
		t.Fatalf("DerivePreSharedKey: %v", err)
	}

	enc := NewEncryptor(m)
	if err := enc.Init(psk); err != nil {
		t.Fatalf("Encryptor.Init: %v", err)
	}
	payloads := [][]byte{
		[]byte("hello"),
		[]byte(""),
		bytes.Repeat([]byte{0x42}, 4096),
	}
	for _, p := range payloads {
		enc.WritePayloadChunk(p)
	}
	wire := enc.TakeBytes()

	dec := NewDecryptor(m, 1<<16)
	feedAll(t, dec, wire)

	ok, err := dec.Init(psk)
	if err != nil {
		t.Fatalf("Decryptor.Init: %v", err)
	}
	if !ok {
		t.Fatal("Decryptor.Init: expected enough bytes buffered")
	}

	for i, want := range payloads {
		ok, err := dec.StartChunk(len(want))
		if err != nil {
			t.Fatalf("chunk %d StartChunk: %v", i, err)
		}
		if !ok {
			t.Fatalf("chunk %d: expected enough ciphertext buffered", i)
		}
		got, err := dec.PopBuffer(len(want))
		if err != nil {
			t.Fatalf("chunk %d PopBuffer: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("chunk %d: got %q want %q", i, got, want)
		}
		dec.FinishChunk()
	}
}

// feedAll pushes wire bytes into dec through Buffer/Advance as a
// transport read loop would, in small pieces to exercise compaction.
func feedAll(t *testing.T, dec *Decryptor, wire []byte) {
	t.Helper()
	const step = 37
	for len(wire) > 0 {
		n := step
		if n > len(wire) {
			n = len(wire)
		}
		tail := dec.Buffer()
		if len(tail) < n {
			t.Fatalf("working buffer too small: have %d want %d", len(tail), n)
		}
		copy(tail, wire[:n])
		dec.Advance(n)
		wire = wire[n:]
	}
}

// TestEncryptorDecryptorTamperDetected exercises P5: flipping a ciphertext
// byte anywhere in a chunk must cause StartChunk to fail AEAD
// verification and permanently discard the decryptor.
func TestEncryptorDecryptorTamperDetected(t *testing.T) {
	m, _ := LookupMethod("aes-256-gcm")
	psk, _ := DerivePreSharedKey(m, "password")

	enc := NewEncryptor(m)
	if err := enc.Init(psk); err != nil {
		t.Fatalf("Encryptor.Init: %v", err)
	}
	enc.WritePayloadChunk([]byte("tamper me"))
	wire := enc.TakeBytes()

	// Flip every bit of the last byte (inside the payload chunk's tag), well
	// past the salt.
	wire[len(wire)-1] ^= 0xFF

	dec := NewDecryptor(m, 1<<16)
	feedAll(t, dec, wire)

	ok, err := dec.Init(psk)
	if err != nil || !ok {
		t.Fatalf("Decryptor.Init: ok=%v err=%v", ok, err)
	}

	_, err = dec.StartChunk(len("tamper me"))
	if err == nil {
		t.Fatal("expected AEAD verification failure")
	}
	if !dec.Discarded() {
		t.Fatal("expected decryptor to be permanently discarded after AEAD failure")
	}

	before := dec.available()
	dec.Advance(1)
	if dec.available() != before {
		t.Fatal("expected Advance to be a no-op once discarded")
	}
}
