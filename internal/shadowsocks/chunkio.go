package shadowsocks

import (
	"io"

	"github.com/relaymesh/proxyd/internal/proxyerr"
)

// decryptorBufferSize bounds the ring buffer backing every Decryptor;
// large enough to hold one maximum-size chunk plus its header and tag.
const decryptorBufferSize = MaxChunkSize + 64

// chunkReader drives a Decryptor against a proxycore.Stream, refilling
// the working buffer on demand and handing back one fully-verified
// plaintext chunk at a time.
type chunkReader struct {
	stream io.Reader
	dec    *Decryptor
}

func newChunkReader(stream io.Reader, method Method) *chunkReader {
	return &chunkReader{stream: stream, dec: NewDecryptor(method, decryptorBufferSize)}
}

func (r *chunkReader) fill() error {
	tail := r.dec.Buffer()
	if len(tail) == 0 {
		return proxyerr.New("shadowsocks.chunkio", proxyerr.ProtocolError)
	}
	n, err := r.stream.Read(tail)
	if n > 0 {
		r.dec.Advance(n)
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// initSubkey derives the session subkey from the salt at the head of the
// stream, reading more bytes as needed.
func (r *chunkReader) initSubkey(psk []byte) error {
	for {
		ok, err := r.dec.Init(psk)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := r.fill(); err != nil {
			return err
		}
	}
}

// readChunk returns a freshly-allocated copy of the next n-byte plaintext
// chunk, reading and decrypting as many transport bytes as required.
func (r *chunkReader) readChunk(n int) ([]byte, error) {
	for {
		ok, err := r.dec.StartChunk(n)
		if err != nil {
			return nil, err
		}
		if ok {
			buf, err := r.dec.PopBuffer(n)
			if err != nil {
				return nil, err
			}
			out := append([]byte(nil), buf...)
			r.dec.FinishChunk()
			return out, nil
		}
		if err := r.fill(); err != nil {
			return nil, err
		}
	}
}
