package shadowsocks

import (
	"encoding/binary"

	"github.com/relaymesh/proxyd/internal/proxyerr"
)

// Decryptor is a fixed-capacity ring buffer over raw ciphertext bytes
// received from the transport. Buffer/Advance feed it; Init consumes the
// salt once; StartChunk/Pop*/FinishChunk decrypt and consume one chunk at
// a time. Any AEAD verification failure discards the decryptor
// permanently — future Advance calls become no-ops, matching the
// fatal-to-connection (not fatal-to-process) error model.
type Decryptor struct {
	method Method
	subkey *SessionSubkey

	buf         []byte
	first, last int
	salt        []byte

	discarded bool

	chunkLen             int // -1 when no chunk is currently decrypted
	popCursor            int
	pendingCiphertextLen int
}

// NewDecryptor allocates a Decryptor with the given working-buffer
// capacity.
func NewDecryptor(method Method, capacity int) *Decryptor {
	return &Decryptor{method: method, buf: make([]byte, capacity), chunkLen: -1}
}

// Discarded reports whether a past AEAD failure has permanently disabled
// this decryptor.
func (d *Decryptor) Discarded() bool { return d.discarded }

func (d *Decryptor) available() int { return d.last - d.first }

// Buffer compacts unread bytes to offset 0 and returns the writable tail
// for the caller's next transport read.
func (d *Decryptor) Buffer() []byte {
	if d.first > 0 {
		copy(d.buf, d.buf[d.first:d.last])
		d.last -= d.first
		d.first = 0
	}
	return d.buf[d.last:]
}

// Advance records that n more ciphertext bytes have arrived at the tail
// returned by Buffer. A no-op once the decryptor is discarded.
func (d *Decryptor) Advance(n int) {
	if d.discarded {
		return
	}
	d.last += n
}

// Init consumes SaltSize bytes from the head of the buffer and constructs
// the session subkey. Returns (false, nil) if not enough bytes have
// arrived yet — the caller should Buffer/read/Advance and retry. A
// derivation failure discards the decryptor and returns an error.
func (d *Decryptor) Init(psk []byte) (bool, error) {
	if d.discarded {
		return false, proxyerr.New("shadowsocks.decryptor", proxyerr.ProtocolError)
	}
	saltSize := d.method.SaltSize()
	if d.available() < saltSize {
		return false, nil
	}
	salt := append([]byte(nil), d.buf[d.first:d.first+saltSize]...)
	subkey, err := NewSessionSubkey(d.method, psk, salt)
	if err != nil {
		d.discarded = true
		return false, err
	}
	d.subkey = subkey
	d.salt = salt
	d.first += saltSize
	return true, nil
}

// Salt returns the salt consumed by Init.
func (d *Decryptor) Salt() []byte { return d.salt }

// StartChunk attempts to decrypt exactly n plaintext bytes' worth of
// chunk in place. Returns (true, nil) on success, with the plaintext
// readable via Pop*; (false, nil) if insufficient ciphertext has arrived
// yet (Buffer/read/Advance and retry); (false, err) if AEAD verification
// failed, which discards the decryptor permanently.
func (d *Decryptor) StartChunk(n int) (bool, error) {
	if d.discarded {
		return false, proxyerr.New("shadowsocks.decryptor", proxyerr.ProtocolError)
	}
	need := n + d.subkey.Overhead()
	if d.available() < need {
		return false, nil
	}
	ciphertext := d.buf[d.first : d.first+need]
	if _, err := d.subkey.Open(d.buf[d.first:d.first], ciphertext); err != nil {
		d.discarded = true
		return false, proxyerr.Wrap("shadowsocks.decryptor", proxyerr.ResultOutOfRange, err)
	}
	d.chunkLen = n
	d.popCursor = 0
	d.pendingCiphertextLen = need
	return true, nil
}

func (d *Decryptor) ensure(n int) error {
	if d.chunkLen < 0 || d.popCursor+n > d.chunkLen {
		return proxyerr.New("shadowsocks.decryptor", proxyerr.ProtocolError)
	}
	return nil
}

// PopU8 consumes one plaintext byte from the current chunk.
func (d *Decryptor) PopU8() (byte, error) {
	if err := d.ensure(1); err != nil {
		return 0, err
	}
	v := d.buf[d.first+d.popCursor]
	d.popCursor++
	return v, nil
}

// PopBigU16 consumes a big-endian u16 from the current chunk.
func (d *Decryptor) PopBigU16() (uint16, error) {
	if err := d.ensure(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(d.buf[d.first+d.popCursor:])
	d.popCursor += 2
	return v, nil
}

// PopBigU64 consumes a big-endian u64 from the current chunk.
func (d *Decryptor) PopBigU64() (uint64, error) {
	if err := d.ensure(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(d.buf[d.first+d.popCursor:])
	d.popCursor += 8
	return v, nil
}

// PopBuffer consumes the next n plaintext bytes from the current chunk.
// The returned slice aliases the decryptor's internal buffer and is only
// valid until the next Buffer call.
func (d *Decryptor) PopBuffer(n int) ([]byte, error) {
	if err := d.ensure(n); err != nil {
		return nil, err
	}
	out := d.buf[d.first+d.popCursor : d.first+d.popCursor+n]
	d.popCursor += n
	return out, nil
}

// Remaining reports how many plaintext bytes of the current chunk have
// not yet been popped.
func (d *Decryptor) Remaining() int {
	if d.chunkLen < 0 {
		return 0
	}
	return d.chunkLen - d.popCursor
}

// FinishChunk marks the current chunk fully consumed and advances past
// its ciphertext, including the trailing tag, so the next StartChunk
// operates on fresh data.
func (d *Decryptor) FinishChunk() {
	d.first += d.pendingCiphertextLen
	d.chunkLen = -1
	d.popCursor = 0
	d.pendingCiphertextLen = 0
}

// Discard permanently marks the decryptor unusable, e.g. after a
// higher-level protocol violation unrelated to AEAD verification.
func (d *Decryptor) Discard() { d.discarded = true }
