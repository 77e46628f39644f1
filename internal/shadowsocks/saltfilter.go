package shadowsocks

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/dchest/siphash"
)

// SaltFilter is a two-generation approximate set of seen salts, backed by
// two cuckoo filters and a per-process SipHash-2-4 key. It is the
// replay-protection mechanism for both legacy and spec-2022 Shadowsocks
// framing: a salt observed twice indicates a replayed or duplicated
// session and must be rejected.
type SaltFilter struct {
	mu       sync.Mutex
	cur      *cuckooFilter
	prev     *cuckooFilter
	k0, k1   uint64
}

// NewSaltFilter constructs a SaltFilter with a fresh random key. The key is
// generated once and never rotated for the filter's lifetime.
func NewSaltFilter() *SaltFilter {
	var keyBytes [16]byte
	if _, err := rand.Read(keyBytes[:]); err != nil {
		panic("shadowsocks: failed to generate salt filter key: " + err.Error())
	}
	return &SaltFilter{
		cur:  newCuckooFilter(),
		prev: newCuckooFilter(),
		k0:   binary.LittleEndian.Uint64(keyBytes[0:8]),
		k1:   binary.LittleEndian.Uint64(keyBytes[8:16]),
	}
}

func (f *SaltFilter) fingerprint(salt []byte) uint64 {
	return siphash.Hash(f.k0, f.k1, salt)
}

// TestAndInsert returns true iff salt was not previously observed, in
// which case it is now inserted; otherwise it returns false and leaves
// state unchanged.
func (f *SaltFilter) TestAndInsert(salt []byte) bool {
	fp := f.fingerprint(salt)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cur.test(fp) || f.prev.test(fp) {
		return false
	}
	f.insertFingerprintLocked(fp)
	return true
}

// Insert unconditionally records salt as seen.
func (f *SaltFilter) Insert(salt []byte) {
	fp := f.fingerprint(salt)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertFingerprintLocked(fp)
}

func (f *SaltFilter) insertFingerprintLocked(fp uint64) {
	const rotationThreshold = 800000
	if f.cur.Size() >= rotationThreshold {
		f.cur, f.prev = f.prev, f.cur
		f.cur.clear()
	}
	f.cur.insert(fp)
}

// Stats reports the current and previous generation occupancy, useful for
// exporting as metrics.
func (f *SaltFilter) Stats() (curSize, prevSize int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur.Size(), f.prev.Size()
}
