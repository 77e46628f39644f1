// Package shadowsocks implements the AEAD framing state machine: method
// table, pre-shared key and session subkey derivation, the Encryptor/
// Decryptor chunk framers, the replay-protection salt filter, and the
// server Handler / client Connector built on top of them.
package shadowsocks

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// aeadKind identifies which AEAD algorithm a Method uses.
type aeadKind int

const (
	aeadAES128GCM aeadKind = iota
	aeadAES192GCM
	aeadAES256GCM
	aeadChaCha20Poly1305
	aeadXChaCha20Poly1305
)

// MaxChunkSize is the largest plaintext length a single chunk may carry.
const MaxChunkSize = 16383

// Method is an immutable, process-wide AEAD cipher suite descriptor.
type Method struct {
	Name      string
	aead      aeadKind
	Is2022    bool
	KeySize   int // equals SaltSize for every method in the table
	NonceSize int
}

// SaltSize equals KeySize for every method this engine supports.
func (m Method) SaltSize() int { return m.KeySize }

var methodTable = map[string]Method{
	"aes-128-gcm":                     {"aes-128-gcm", aeadAES128GCM, false, 16, 12},
	"aes-192-gcm":                     {"aes-192-gcm", aeadAES192GCM, false, 24, 12},
	"aes-256-gcm":                     {"aes-256-gcm", aeadAES256GCM, false, 32, 12},
	"chacha20-ietf-poly1305":          {"chacha20-ietf-poly1305", aeadChaCha20Poly1305, false, 32, 12},
	"xchacha20-ietf-poly1305":         {"xchacha20-ietf-poly1305", aeadXChaCha20Poly1305, false, 32, 24},
	"2022-blake3-aes-128-gcm":         {"2022-blake3-aes-128-gcm", aeadAES128GCM, true, 16, 12},
	"2022-blake3-aes-192-gcm":         {"2022-blake3-aes-192-gcm", aeadAES192GCM, true, 24, 12},
	"2022-blake3-aes-256-gcm":         {"2022-blake3-aes-256-gcm", aeadAES256GCM, true, 32, 12},
	"2022-blake3-chacha20-poly1305":   {"2022-blake3-chacha20-poly1305", aeadChaCha20Poly1305, true, 32, 12},
	"2022-blake3-xchacha20-poly1305":  {"2022-blake3-xchacha20-poly1305", aeadXChaCha20Poly1305, true, 32, 24},
}

// LookupMethod resolves a method by its canonical configuration name.
func LookupMethod(name string) (Method, error) {
	m, ok := methodTable[name]
	if !ok {
		return Method{}, fmt.Errorf("shadowsocks: unknown method %q", name)
	}
	return m, nil
}

// newAEAD constructs the cipher.AEAD for a key derived under this method.
func (m Method) newAEAD(key []byte) (cipher.AEAD, error) {
	switch m.aead {
	case aeadAES128GCM, aeadAES192GCM, aeadAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case aeadChaCha20Poly1305:
		return chacha20poly1305.New(key)
	case aeadXChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("shadowsocks: unhandled aead kind %d", m.aead)
	}
}
