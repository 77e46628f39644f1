package shadowsocks

import (
	"crypto/md5"
	"encoding/base64"

	"github.com/relaymesh/proxyd/internal/proxyerr"
)

// DerivePreSharedKey binds a Method to a fixed-size keying material from a
// user-supplied password string: legacy methods iterate MD5 extension of
// the password, spec-2022 methods require the password to be the base64
// encoding of exactly KeySize random bytes.
func DerivePreSharedKey(m Method, password string) ([]byte, error) {
	if m.Is2022 {
		decoded, err := base64.StdEncoding.DecodeString(password)
		if err != nil {
			return nil, proxyerr.Wrap("shadowsocks.psk", proxyerr.InvalidArgument, err)
		}
		if len(decoded) != m.KeySize {
			return nil, proxyerr.New("shadowsocks.psk", proxyerr.InvalidArgument)
		}
		return decoded, nil
	}
	return deriveLegacyKey(password, m.KeySize), nil
}

// deriveLegacyKey iterates MD5(prev || password) concatenations until
// keySize bytes have accumulated, matching the original Shadowsocks
// EVP_BytesToKey-derived key-stretching scheme.
func deriveLegacyKey(password string, keySize int) []byte {
	key := make([]byte, 0, keySize+md5.Size)
	var prev []byte
	for len(key) < keySize {
		h := md5.New()
		h.Write(prev)
		h.Write([]byte(password))
		sum := h.Sum(nil)
		key = append(key, sum...)
		prev = sum
	}
	return key[:keySize]
}
