package shadowsocks

import (
	"crypto/rand"
	"encoding/binary"
)

// Encryptor is an append-only byte buffer tracking the offset at which the
// current plaintext chunk began. FinishChunk in-place seals
// [chunkOffset, end) and appends the 16-byte authentication tag. Multiple
// chunks share one SessionSubkey; the salt is written exactly once, by
// Init.
type Encryptor struct {
	method      Method
	buf         []byte
	chunkOffset int
	subkey      *SessionSubkey
}

// NewEncryptor constructs an Encryptor for the given method. Call Init
// before the first StartChunk.
func NewEncryptor(method Method) *Encryptor {
	return &Encryptor{method: method}
}

// Init writes a fresh random salt to the head of the buffer and constructs
// the SessionSubkey sealing every subsequent chunk.
func (e *Encryptor) Init(psk []byte) error {
	salt := make([]byte, e.method.SaltSize())
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	e.buf = append(e.buf, salt...)
	subkey, err := NewSessionSubkey(e.method, psk, salt)
	if err != nil {
		return err
	}
	e.subkey = subkey
	return nil
}

// Salt returns the salt written by Init.
func (e *Encryptor) Salt() []byte {
	return e.buf[:e.method.SaltSize()]
}

// StartChunk records the current buffer length as the new chunk's offset.
func (e *Encryptor) StartChunk() {
	e.chunkOffset = len(e.buf)
}

// PushU8 appends one plaintext byte.
func (e *Encryptor) PushU8(v byte) { e.buf = append(e.buf, v) }

// PushBigU16 appends a big-endian u16.
func (e *Encryptor) PushBigU16(v uint16) { e.buf = binary.BigEndian.AppendUint16(e.buf, v) }

// PushBigU64 appends a big-endian u64.
func (e *Encryptor) PushBigU64(v uint64) { e.buf = binary.BigEndian.AppendUint64(e.buf, v) }

// PushBuffer appends raw plaintext bytes.
func (e *Encryptor) PushBuffer(p []byte) { e.buf = append(e.buf, p...) }

// PushRandom appends n bytes of cryptographic random padding.
func (e *Encryptor) PushRandom(n int) error {
	start := len(e.buf)
	e.buf = append(e.buf, make([]byte, n)...)
	_, err := rand.Read(e.buf[start:])
	return err
}

// FinishChunk AEAD-seals [chunkOffset, end) in place with the current
// nonce and appends the 16-byte tag, advancing the nonce.
func (e *Encryptor) FinishChunk() {
	plaintext := e.buf[e.chunkOffset:]
	e.buf = e.subkey.Seal(e.buf[:e.chunkOffset], plaintext)
}

// WritePayloadChunk is a shortcut for StartChunk; PushBuffer(payload);
// FinishChunk.
func (e *Encryptor) WritePayloadChunk(payload []byte) {
	e.StartChunk()
	e.PushBuffer(payload)
	e.FinishChunk()
}

// TakeBytes returns every byte accumulated so far and resets the buffer,
// for the caller to write to the underlying transport.
func (e *Encryptor) TakeBytes() []byte {
	out := e.buf
	e.buf = nil
	return out
}

// Len reports the number of unconsumed bytes currently buffered.
func (e *Encryptor) Len() int { return len(e.buf) }
