package shadowsocks

import (
	"math/rand"
)

// cuckooFilter is a 32-bit-fingerprint cuckoo filter: num_buckets buckets
// of 4 entries each, following Fan et al., "Cuckoo Filter: Practically
// Better Than Bloom".
type cuckooFilter struct {
	buckets []cuckooBucket
	size    int
	rng     *rand.Rand
}

type cuckooBucket struct {
	entries [4]uint32
}

const cuckooNumBuckets = 262144 // power of two

func newCuckooFilter() *cuckooFilter {
	return &cuckooFilter{
		buckets: make([]cuckooBucket, cuckooNumBuckets),
		rng:     rand.New(rand.NewSource(rand.Int63())),
	}
}

func (f *cuckooFilter) clear() {
	for i := range f.buckets {
		f.buckets[i] = cuckooBucket{}
	}
	f.size = 0
}

// Size returns the number of entries currently stored.
func (f *cuckooFilter) Size() int { return f.size }

// insert attempts to add fingerprint, performing cuckoo-kick eviction if
// both candidate buckets are full. Returns false if it had to give up
// after exhausting its kick budget — the caller treats this as a silent
// success (state unchanged, next duplicate check simply misses).
func (f *cuckooFilter) insert(fingerprint uint64) bool {
	index := uint32(fingerprint>>32) & (cuckooNumBuckets - 1)
	fp32 := uint32(fingerprint)

	if bucketAdd(fp32, &f.buckets[index]) {
		f.size++
		return true
	}
	index ^= fp32 & (cuckooNumBuckets - 1)
	if bucketAdd(fp32, &f.buckets[index]) {
		f.size++
		return true
	}

	type kick struct {
		index uint32
		slot  uint64
	}
	var path []kick
	for i := 0; i < 16; i++ {
		seed := f.rng.Uint64()
		for j := 0; j < 32; j++ {
			slot := seed & 3
			seed >>= 2
			entry := &f.buckets[index].entries[slot]
			fp32, *entry = *entry, fp32
			path = append(path, kick{index, slot})
			index ^= fp32 & (cuckooNumBuckets - 1)
			if bucketAdd(fp32, &f.buckets[index]) {
				f.size++
				return true
			}
		}
	}
	// Undo every kick in reverse so the filter is left as it was.
	for k := len(path) - 1; k >= 0; k-- {
		entry := &f.buckets[path[k].index].entries[path[k].slot]
		fp32, *entry = *entry, fp32
	}
	return false
}

// test reports whether fingerprint is present in either candidate bucket.
func (f *cuckooFilter) test(fingerprint uint64) bool {
	index := uint32(fingerprint>>32) & (cuckooNumBuckets - 1)
	fp32 := uint32(fingerprint)
	if bucketFind(f.buckets[index], fp32) {
		return true
	}
	index ^= fp32 & (cuckooNumBuckets - 1)
	return bucketFind(f.buckets[index], fp32)
}

func bucketAdd(fp32 uint32, bucket *cuckooBucket) bool {
	for i, entry := range bucket.entries {
		if entry == 0 {
			bucket.entries[i] = fp32
			return true
		}
	}
	return false
}

func bucketFind(bucket cuckooBucket, fp32 uint32) bool {
	for _, entry := range bucket.entries {
		if entry == 0 {
			return false
		}
		if entry == fp32 {
			return true
		}
	}
	return false
}
