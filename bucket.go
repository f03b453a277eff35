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

package bucketmap

import (
	"encoding/binary"
	"fmt"
)

const (
	// hashSize is the width of the hash cached at the front of every record.
	hashSize = 8

	// minBucketCapacity is the smallest number of records an arena grows to
	// once it needs any space at all.
	minBucketCapacity = 16
)

// bucket is an arena of fixed-stride records sorted ascending by hash. A
// record is laid out as
//
//	| hash (8 bytes, little endian) | key (keySize) | value (valueSize) |
//
// The stride is owned by the Map and passed in on every call; a bucket does
// not know its own layout. data is always a whole number of records long and
// len(data)/stride is the capacity. Records in [0, used) are live.
type bucket struct {
	data []byte
	used int
}

func (b *bucket) capacity(stride int) int {
	return len(b.data) / stride
}

// record returns the bytes of record i, capacity-limited so that appends by
// the caller cannot spill into the neighbouring record.
func (b *bucket) record(i, stride int) []byte {
	off := i * stride
	return b.data[off : off+stride : off+stride]
}

func (b *bucket) hashAt(i, stride int) uint64 {
	return binary.LittleEndian.Uint64(b.data[i*stride:])
}

// search performs a binary search for hash h. If found, the index of the
// matching record is returned. Otherwise the returned index is the position
// at which a record with hash h would have to be inserted to keep the bucket
// sorted.
func (b *bucket) search(h uint64, stride int) (int, bool) {
	lo, hi := 0, b.used
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		switch rh := b.hashAt(mid, stride); {
		case h < rh:
			hi = mid
		case h == rh:
			return mid, true
		default:
			lo = mid + 1
		}
	}
	return lo, false
}

// reserve grows the arena to hold at least n records. Unlike the automatic
// growth performed by makeSpace, exactly n records are allocated.
func (b *bucket) reserve(a Allocator, stride, n int) error {
	if n <= b.capacity(stride) {
		return nil
	}
	return b.realloc(a, stride, n)
}

// realloc moves the live records into a fresh arena of n records. On failure
// the bucket is unchanged.
func (b *bucket) realloc(a Allocator, stride, n int) error {
	if n > maxAllocBytes/stride {
		return fmt.Errorf("%w: %d records of %d bytes", ErrAllocationFailed, n, stride)
	}
	data, err := a.Alloc(n * stride)
	if err != nil {
		return fmt.Errorf("%w: %d bytes: %v", ErrAllocationFailed, n*stride, err)
	}
	copy(data, b.data[:b.used*stride])
	if b.data != nil {
		a.Free(b.data)
	}
	b.data = data
	return nil
}

// makeSpace opens a zeroed slot at index i, shifting the tail up by one
// record, and returns it. When the arena is full its capacity doubles, with
// a floor of minBucketCapacity records.
func (b *bucket) makeSpace(a Allocator, stride, i int) ([]byte, error) {
	if c := b.capacity(stride); b.used == c {
		n := max(2*c, minBucketCapacity)
		if err := b.realloc(a, stride, n); err != nil {
			return nil, err
		}
	}
	copy(b.data[(i+1)*stride:(b.used+1)*stride], b.data[i*stride:b.used*stride])
	b.used++
	rec := b.record(i, stride)
	clear(rec)
	return rec, nil
}

// insertAt stores a new record with hash h at index i. i must be the index
// returned by a failed search for h.
func (b *bucket) insertAt(a Allocator, stride, i int, h uint64, key, value []byte) error {
	rec, err := b.makeSpace(a, stride, i)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(rec, h)
	copy(rec[hashSize:], key)
	copy(rec[hashSize+len(key):], value)
	return nil
}

// insertRecord copies an encoded record, hash included, into index i.
func (b *bucket) insertRecord(a Allocator, stride, i int, src []byte) error {
	rec, err := b.makeSpace(a, stride, i)
	if err != nil {
		return err
	}
	copy(rec, src)
	return nil
}

// removeAt deletes record i, compacting the tail down by one record.
func (b *bucket) removeAt(i, stride int) {
	copy(b.data[i*stride:], b.data[(i+1)*stride:b.used*stride])
	b.used--
	clear(b.data[b.used*stride : (b.used+1)*stride])
}

// shrinkToFit trims the arena to exactly the live records. An empty bucket
// gives its arena back entirely.
func (b *bucket) shrinkToFit(a Allocator, stride int) error {
	if b.used == b.capacity(stride) {
		return nil
	}
	if b.used == 0 {
		b.release(a)
		return nil
	}
	return b.realloc(a, stride, b.used)
}

// reset drops every record but keeps the arena.
func (b *bucket) reset(stride int) {
	clear(b.data[:b.used*stride])
	b.used = 0
}

func (b *bucket) release(a Allocator) {
	if b.data != nil {
		a.Free(b.data)
	}
	b.data = nil
	b.used = 0
}
