// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// package bucketmap is an untyped hash map and hash set whose keys and values
// are fixed-size byte strings. The key and value sizes are chosen when the map
// is created and every call is checked against them.
//
// # Layout
//
// A Map is an array of buckets, the number of which is always a power of two
// and never less than 8. A key is routed to bucket hash(key) mod N. Unlike
// chaining or open addressing, each bucket is a single growable arena of
// fixed-stride records kept sorted by hash, and a lookup is a binary search
// over that arena:
//
//	buckets (N=8)
//	+---+
//	| 0 | --> [h=0x08 k v][h=0x30 k v]
//	+---+
//	| 1 | --> []
//	+---+
//	| 2 | --> [h=0x0a k v]
//	+---+
//	 ...
//
// Every record caches the hash of its key in front of the key bytes so that
// searching and rehashing never call the hash function again.
//
// The map doubles its bucket count whenever an insert finds the average
// bucket load at or above 2 entries. A resize builds a complete new bucket
// array before releasing the old one; if any allocation fails along the way
// the new array is discarded and the map is left untouched. The bucket count
// never shrinks.
//
// # Key identity
//
// Two keys are the same entry if and only if their hashes are equal. Key
// bytes are never compared. This is exact for injective hash functions such
// as the identity hash over fixed-width integers (see package hashfn), and
// lossy otherwise: a second key that collides with a stored key is reported
// as a duplicate.
//
// # Iteration
//
// Iterate and All walk the buckets in index order and each bucket in hash
// order, calling back for every entry. A Cursor performs the same walk one
// step at a time. Slices handed out by Lookup, iteration and cursors alias
// the map's storage and are only valid until the next mutation. Cursors
// detect such mutations and report ErrStaleCursor rather than returning
// garbage.
package bucketmap

import (
	"fmt"
	"math/bits"
	"strings"
	"unsafe"

	"github.com/rs/zerolog"
)

const (
	// minBuckets is the bucket count of a new map.
	minBuckets = 8
	// maxBuckets bounds the bucket array. Growing past it fails with
	// ErrAllocationFailed.
	maxBuckets = 1 << 30
	// maxAvgBucketLoad is the load factor at which an insert doubles the
	// bucket count.
	maxAvgBucketLoad = 2
)

// HashFunc maps the bytes of a key to a hash. It must be deterministic for
// the lifetime of a map.
type HashFunc func(key []byte) uint64

// Map is an unordered map from fixed-size byte keys to fixed-size byte
// values with Insert, Lookup, Erase, Iterate and cursor operations.
//
// A Map is NOT goroutine-safe.
type Map struct {
	hash      HashFunc
	keySize   int
	valueSize int
	// stride is the size of an encoded record: hashSize+keySize+valueSize.
	stride int
	// The allocator to use for bucket arenas.
	allocator Allocator
	logger    zerolog.Logger
	// initialCapacity is only consulted by New.
	initialCapacity int
	// dir is a power of two in length, >= minBuckets.
	dir []bucket
	// The number of records across all buckets.
	used int
	// gen is bumped by every mutation. Cursors compare against it.
	gen uint64
}

// New constructs a map with 8 buckets whose keys are keySize bytes long and
// whose values are valueSize bytes long. A valueSize of 0 turns the map into
// a set; see NewSet.
func New(hash HashFunc, keySize, valueSize int, options ...option) (*Map, error) {
	if hash == nil {
		return nil, fmt.Errorf("%w: nil hash function", ErrInvalidLayout)
	}
	if keySize < 0 || valueSize < 0 {
		return nil, fmt.Errorf("%w: key size %d, value size %d", ErrInvalidLayout, keySize, valueSize)
	}
	if keySize+valueSize > maxAllocBytes-hashSize {
		return nil, fmt.Errorf("%w: record of %d bytes is too large", ErrInvalidLayout, keySize+valueSize)
	}

	m := &Map{
		hash:      hash,
		keySize:   keySize,
		valueSize: valueSize,
		stride:    hashSize + keySize + valueSize,
		allocator: defaultAllocator{},
		logger:    zerolog.Nop(),
		dir:       make([]bucket, minBuckets),
	}

	for _, op := range options {
		op.apply(m)
	}
	if m.allocator == nil {
		return nil, fmt.Errorf("%w: nil allocator", ErrInvalidLayout)
	}

	if m.initialCapacity > 0 {
		if err := m.Reserve(m.initialCapacity); err != nil {
			return nil, err
		}
	}

	m.checkInvariants()
	return m, nil
}

// Close releases every bucket arena back to the configured allocator. It is
// unnecessary to close a map using the default allocator. It is invalid to
// use a Map after it has been closed, though Close itself is idempotent.
func (m *Map) Close() {
	m.buckets(func(b *bucket) bool {
		b.release(m.allocator)
		return true
	})
	m.dir = nil
	m.used = 0
	m.gen++
}

// Len returns the number of entries in the map.
func (m *Map) Len() int {
	return m.used
}

// KeySize returns the size in bytes of every key.
func (m *Map) KeySize() int {
	return m.keySize
}

// ValueSize returns the size in bytes of every value.
func (m *Map) ValueSize() int {
	return m.valueSize
}

// Contains reports whether an entry with the hash of key is present.
func (m *Map) Contains(key []byte) bool {
	if len(key) != m.keySize {
		return false
	}
	h := m.hash(key)
	_, ok := m.route(h).search(h, m.stride)
	return ok
}

// Lookup returns the value stored for key. The returned slice aliases the
// map's storage: it may be modified in place but is only valid until the next
// mutation of the map.
func (m *Map) Lookup(key []byte) (value []byte, ok bool) {
	if len(key) != m.keySize {
		return nil, false
	}
	h := m.hash(key)
	b := m.route(h)
	i, ok := b.search(h, m.stride)
	if !ok {
		return nil, false
	}
	_, value = m.split(b.record(i, m.stride))
	return value, true
}

// Insert adds an entry mapping key to value. The bytes are copied, so the
// caller may reuse both slices once Insert returns.
//
// Insert returns ErrDuplicateKey without modifying the map if an entry with
// the same key hash already exists, and ErrAllocationFailed, also without
// modifying the visible contents of the map, if memory could not be obtained.
// If the insert first had to double the bucket count and only the growth of
// the target bucket failed, the map keeps its new bucket count; the entries
// are still unchanged.
func (m *Map) Insert(key, value []byte) error {
	if len(key) != m.keySize || len(value) != m.valueSize {
		return fmt.Errorf("%w: got key %d/value %d bytes, want %d/%d",
			ErrSizeMismatch, len(key), len(value), m.keySize, m.valueSize)
	}

	// The load check happens before the duplicate check, so inserting a
	// duplicate into a full map still grows it.
	if m.used >= maxAvgBucketLoad*len(m.dir) {
		if err := m.resize(2 * len(m.dir)); err != nil {
			return err
		}
	}

	h := m.hash(key)
	b := m.route(h)
	i, ok := b.search(h, m.stride)
	if ok {
		return ErrDuplicateKey
	}
	if err := b.insertAt(m.allocator, m.stride, i, h, key, value); err != nil {
		return err
	}
	m.used++
	m.gen++
	m.checkInvariants()
	return nil
}

// Erase removes the entry for key, returning ErrKeyNotFound if there is no
// such entry.
func (m *Map) Erase(key []byte) error {
	if len(key) != m.keySize {
		return fmt.Errorf("%w: got key %d bytes, want %d", ErrSizeMismatch, len(key), m.keySize)
	}
	h := m.hash(key)
	b := m.route(h)
	i, ok := b.search(h, m.stride)
	if !ok {
		return ErrKeyNotFound
	}
	b.removeAt(i, m.stride)
	m.used--
	m.gen++
	m.checkInvariants()
	return nil
}

// Reserve sizes the bucket array so that capacity entries fit without
// another resize: the bucket count becomes the smallest power of two whose
// double is at least capacity. Reserve never shrinks the map. If it fails
// the map is unchanged.
func (m *Map) Reserve(capacity int) error {
	n := bucketsFor(capacity)
	if n <= len(m.dir) {
		return nil
	}
	return m.resize(n)
}

// Clear deletes all entries from the map, keeping the bucket count and
// bucket arenas for reuse.
func (m *Map) Clear() {
	m.buckets(func(b *bucket) bool {
		b.reset(m.stride)
		return true
	})
	m.used = 0
	m.gen++
	m.checkInvariants()
}

// ShrinkToFit trims every bucket arena to the number of records it holds.
// Arenas of empty buckets are released. An arena that cannot be reallocated
// keeps its current size; the first such error is returned. ShrinkToFit
// invalidates outstanding cursors.
func (m *Map) ShrinkToFit() error {
	var err error
	m.buckets(func(b *bucket) bool {
		if e := b.shrinkToFit(m.allocator, m.stride); e != nil && err == nil {
			err = e
		}
		return true
	})
	m.gen++
	m.checkInvariants()
	return err
}

// Stats describes the occupancy of a map.
type Stats struct {
	// Buckets is the number of buckets.
	Buckets int
	// Len is the number of entries.
	Len int
	// EmptyBuckets is the number of buckets holding no entries.
	EmptyBuckets int
	// MaxBucketLen is the number of entries in the fullest bucket.
	MaxBucketLen int
	// ArenaBytes is the total size of all bucket arenas, including unused
	// capacity.
	ArenaBytes int
}

// AvgLoad returns the average number of entries per bucket.
func (s Stats) AvgLoad() float64 {
	if s.Buckets == 0 {
		return 0
	}
	return float64(s.Len) / float64(s.Buckets)
}

// Stats returns the current occupancy of the map.
func (m *Map) Stats() Stats {
	s := Stats{Buckets: len(m.dir), Len: m.used}
	m.buckets(func(b *bucket) bool {
		if b.used == 0 {
			s.EmptyBuckets++
		}
		s.MaxBucketLen = max(s.MaxBucketLen, b.used)
		s.ArenaBytes += len(b.data)
		return true
	})
	return s
}

// bucketCount returns the number of buckets.
func (m *Map) bucketCount() int {
	return len(m.dir)
}

// route returns the bucket for hash value h. The bucket count is a power of
// two so the mask is h mod N.
func (m *Map) route(h uint64) *bucket {
	return &m.dir[h&uint64(len(m.dir)-1)]
}

// buckets calls yield sequentially for each bucket in the map. If yield
// returns false, iteration stops.
func (m *Map) buckets(yield func(b *bucket) bool) {
	for i := range m.dir {
		if !yield(&m.dir[i]) {
			return
		}
	}
}

// split returns the key and value portions of an encoded record.
func (m *Map) split(rec []byte) (key, value []byte) {
	k := hashSize + m.keySize
	return rec[hashSize:k:k], rec[k:m.stride:m.stride]
}

// resize builds a new bucket array of n buckets holding every record, then
// swaps it in and releases the old arenas. If an allocation fails the
// partially built array is released and the map is left untouched.
func (m *Map) resize(n int) error {
	if n > maxBuckets {
		return fmt.Errorf("%w: %d buckets exceeds limit of %d", ErrAllocationFailed, n, maxBuckets)
	}
	// The directory is allocated by the runtime rather than the Allocator,
	// so hold it to the same limit as an arena.
	if n > maxAllocBytes/int(unsafe.Sizeof(bucket{})) {
		return fmt.Errorf("%w: directory of %d buckets exceeds %d bytes", ErrAllocationFailed, n, maxAllocBytes)
	}

	// Size every target arena up front so that copying never reallocates.
	mask := uint64(n - 1)
	counts := make([]int, n)
	m.buckets(func(b *bucket) bool {
		for i := 0; i < b.used; i++ {
			counts[b.hashAt(i, m.stride)&mask]++
		}
		return true
	})

	newBuckets := make([]bucket, n)
	err := func() error {
		for i, c := range counts {
			if c == 0 {
				continue
			}
			if err := newBuckets[i].reserve(m.allocator, m.stride, max(c, minBucketCapacity)); err != nil {
				return err
			}
		}
		for i := range m.dir {
			old := &m.dir[i]
			for j := 0; j < old.used; j++ {
				rec := old.record(j, m.stride)
				h := old.hashAt(j, m.stride)
				nb := &newBuckets[h&mask]
				k, _ := nb.search(h, m.stride)
				if err := nb.insertRecord(m.allocator, m.stride, k, rec); err != nil {
					return err
				}
			}
		}
		return nil
	}()
	if err != nil {
		for i := range newBuckets {
			newBuckets[i].release(m.allocator)
		}
		m.logger.Warn().Err(err).
			Int("from", len(m.dir)).
			Int("to", n).
			Int("elems", m.used).
			Msg("bucketmap: resize rolled back")
		return err
	}

	oldBuckets := m.dir
	m.dir = newBuckets
	for i := range oldBuckets {
		oldBuckets[i].release(m.allocator)
	}
	m.gen++

	m.logger.Debug().
		Int("from", len(oldBuckets)).
		Int("to", n).
		Int("elems", m.used).
		Msg("bucketmap: resized")

	m.checkInvariants()
	return nil
}

// bucketsFor returns the smallest power-of-two bucket count, no smaller than
// minBuckets, whose maximum load covers capacity entries.
func bucketsFor(capacity int) int {
	if capacity > maxAvgBucketLoad*maxBuckets {
		// Let resize report the failure.
		return maxBuckets << 1
	}
	need := (capacity + maxAvgBucketLoad - 1) / maxAvgBucketLoad
	if need <= minBuckets {
		return minBuckets
	}
	return 1 << bits.Len(uint(need-1))
}

func (m *Map) checkInvariants() {
	if invariants {
		n := len(m.dir)
		if n < minBuckets || n&(n-1) != 0 {
			panic(fmt.Sprintf("invariant failed: bucket count %d is not a power of two >= %d", n, minBuckets))
		}

		var used int
		for bi := range m.dir {
			b := &m.dir[bi]
			if b.used > b.capacity(m.stride) {
				panic(fmt.Sprintf("invariant failed: bucket %d holds %d records but has capacity %d\n%s",
					bi, b.used, b.capacity(m.stride), m.debugString()))
			}
			for i := 0; i < b.used; i++ {
				h := b.hashAt(i, m.stride)
				if i > 0 && b.hashAt(i-1, m.stride) >= h {
					panic(fmt.Sprintf("invariant failed: bucket %d is not strictly sorted at record %d\n%s",
						bi, i, m.debugString()))
				}
				if int(h&uint64(n-1)) != bi {
					panic(fmt.Sprintf("invariant failed: hash %016x stored in bucket %d\n%s",
						h, bi, m.debugString()))
				}
				key, _ := m.split(b.record(i, m.stride))
				if kh := m.hash(key); kh != h {
					panic(fmt.Sprintf("invariant failed: cached hash %016x != hash(key) %016x\n%s",
						h, kh, m.debugString()))
				}
			}
			used += b.used
		}

		if used != m.used {
			panic(fmt.Sprintf("invariant failed: found %d records, but used count is %d\n%s",
				used, m.used, m.debugString()))
		}
	}
}

func (m *Map) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "buckets=%d  used=%d  key=%d  value=%d\n",
		len(m.dir), m.used, m.keySize, m.valueSize)
	for bi := range m.dir {
		b := &m.dir[bi]
		if b.used == 0 {
			fmt.Fprintf(&buf, "  %4d: empty [cap=%d]\n", bi, b.capacity(m.stride))
			continue
		}
		fmt.Fprintf(&buf, "  %4d: [cap=%d]\n", bi, b.capacity(m.stride))
		for i := 0; i < b.used; i++ {
			key, value := m.split(b.record(i, m.stride))
			fmt.Fprintf(&buf, "        %016x: % x => % x\n", b.hashAt(i, m.stride), key, value)
		}
	}
	return buf.String()
}
