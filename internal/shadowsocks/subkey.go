package shadowsocks

import (
	"crypto/cipher"
	"crypto/sha1"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"
)

const legacySubkeyInfo = "ss-subkey"
const spec2022SubkeyContext = "shadowsocks 2022 session subkey"

// SessionSubkey owns one direction's AEAD context and its little-endian
// counter nonce, initialized to zero and incremented by one after every
// seal or open. Reusing a nonce is a protocol-breaking bug; this type
// never exposes a way to set the nonce except via Seal/Open.
type SessionSubkey struct {
	aead      cipher.AEAD
	nonce     [24]byte // sized for the largest supported nonce (XChaCha20)
	nonceSize int
}

// NewSessionSubkey derives a session subkey from (psk, salt) per m's
// generation: legacy uses HKDF-SHA1 with info "ss-subkey"; spec-2022 uses
// BLAKE3's key-derivation mode with context "shadowsocks 2022 session
// subkey" over psk||salt.
func NewSessionSubkey(m Method, psk, salt []byte) (*SessionSubkey, error) {
	key := make([]byte, m.KeySize)
	if m.Is2022 {
		material := make([]byte, 0, len(psk)+len(salt))
		material = append(material, psk...)
		material = append(material, salt...)
		blake3.DeriveKey(spec2022SubkeyContext, material, key)
	} else {
		r := hkdf.New(sha1.New, psk, salt, []byte(legacySubkeyInfo))
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, err
		}
	}
	aead, err := m.newAEAD(key)
	if err != nil {
		return nil, err
	}
	return &SessionSubkey{aead: aead, nonceSize: m.NonceSize}, nil
}

// Seal encrypts plaintext in place against the current nonce, appending
// ciphertext and a 16-byte tag to dst, then advances the nonce.
func (s *SessionSubkey) Seal(dst, plaintext []byte) []byte {
	out := s.aead.Seal(dst, s.nonce[:s.nonceSize], plaintext, nil)
	s.advance()
	return out
}

// Open authenticates and decrypts ciphertext (which must include its
// trailing 16-byte tag) against the current nonce, advancing it only on
// success.
func (s *SessionSubkey) Open(dst, ciphertext []byte) ([]byte, error) {
	out, err := s.aead.Open(dst, s.nonce[:s.nonceSize], ciphertext, nil)
	if err != nil {
		return nil, err
	}
	s.advance()
	return out, nil
}

// Overhead is the AEAD tag size appended to every sealed record (16 bytes
// for every method in the table).
func (s *SessionSubkey) Overhead() int { return s.aead.Overhead() }

func (s *SessionSubkey) advance() {
	for i := 0; i < s.nonceSize; i++ {
		s.nonce[i]++
		if s.nonce[i] != 0 {
			break
		}
	}
}
