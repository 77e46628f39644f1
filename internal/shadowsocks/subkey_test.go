package shadowsocks

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"testing"
)

func TestDerivePreSharedKeyLegacy(t *testing.T) {
	m, err := LookupMethod("aes-128-gcm")
	if err != nil {
		t.Fatalf("LookupMethod: %v", err)
	}
	key, err := DerivePreSharedKey(m, "secret")
	if err != nil {
		t.Fatalf("DerivePreSharedKey: %v", err)
	}
	if len(key) != 16 {
		t.Fatalf("expected 16-byte key, got %d", len(key))
	}
	want := md5.Sum([]byte("secret"))
	if !bytes.Equal(key, want[:]) {
		t.Fatalf("expected first 16 bytes = MD5(\"secret\"), got %x want %x", key, want)
	}
}

func TestDerivePreSharedKeySpec2022(t *testing.T) {
	m, err := LookupMethod("2022-blake3-aes-128-gcm")
	if err != nil {
		t.Fatalf("LookupMethod: %v", err)
	}
	raw := make([]byte, m.KeySize)
	for i := range raw {
		raw[i] = byte(i)
	}
	password := base64.StdEncoding.EncodeToString(raw)

	key, err := DerivePreSharedKey(m, password)
	if err != nil {
		t.Fatalf("DerivePreSharedKey: %v", err)
	}
	if !bytes.Equal(key, raw) {
		t.Fatalf("expected decoded password returned verbatim, got %x want %x", key, raw)
	}

	if _, err := DerivePreSharedKey(m, base64.StdEncoding.EncodeToString(raw[:len(raw)-1])); err == nil {
		t.Fatal("expected error for wrong-length decoded password")
	}
}

func TestSessionSubkeyDeterministic(t *testing.T) {
	m, _ := LookupMethod("chacha20-ietf-poly1305")
	psk, _ := DerivePreSharedKey(m, "password")
	salt := make([]byte, m.SaltSize())

	a, err := NewSessionSubkey(m, psk, salt)
	if err != nil {
		t.Fatalf("NewSessionSubkey: %v", err)
	}
	b, err := NewSessionSubkey(m, psk, salt)
	if err != nil {
		t.Fatalf("NewSessionSubkey: %v", err)
	}

	plaintext := []byte("same plaintext, same nonce, same ciphertext")
	sealedA := a.Seal(nil, plaintext)
	sealedB := b.Seal(nil, plaintext)
	if !bytes.Equal(sealedA, sealedB) {
		t.Fatalf("expected identical ciphertext from identical (psk, salt), got %x vs %x", sealedA, sealedB)
	}

	// a and b have both moved past nonce 0; a third subkey from the same
	// (psk, salt) still starts there and can open sealedA.
	c, err := NewSessionSubkey(m, psk, salt)
	if err != nil {
		t.Fatalf("NewSessionSubkey: %v", err)
	}
	opened, err := c.Open(nil, sealedA)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", opened, plaintext)
	}
}

func TestSessionSubkeySpec2022Derivation(t *testing.T) {
	m, _ := LookupMethod("2022-blake3-chacha20-poly1305")
	psk := make([]byte, m.KeySize)
	salt := make([]byte, m.SaltSize())
	for i := range salt {
		salt[i] = byte(i + 1)
	}
	if _, err := NewSessionSubkey(m, psk, salt); err != nil {
		t.Fatalf("NewSessionSubkey: %v", err)
	}
}

func TestNonceAdvancesMonotonically(t *testing.T) {
	m, _ := LookupMethod("aes-128-gcm")
	psk, _ := DerivePreSharedKey(m, "password")
	salt := make([]byte, m.SaltSize())
	s, err := NewSessionSubkey(m, psk, salt)
	if err != nil {
		t.Fatalf("NewSessionSubkey: %v", err)
	}
	first := s.Seal(nil, []byte("a"))
	second := s.Seal(nil, []byte("a"))
	if bytes.Equal(first, second) {
		t.Fatal("expected different ciphertext after nonce advance")
	}
}
