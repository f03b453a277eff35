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

// Package hashfn provides hash functions for bucketmap keys.
//
// A bucketmap treats two keys as equal when their hashes are equal, so the
// choice of function decides which keys can coexist. Identity is injective
// over keys of up to 8 bytes and is the right choice for integer keys.
// Poly31 is the classic multiply-by-31 string hash. XXHash, XXH3 and Murmur3
// are well mixed 64-bit hashes for longer keys where a collision, although
// unlikely, cannot be ruled out.
package hashfn

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// Func is the shape of every hash function in this package. It is assignable
// to bucketmap.HashFunc.
type Func = func(key []byte) uint64

// poly31Seed is the initial value of the Poly31 accumulator.
const poly31Seed = 1212382

// Identity interprets the first 8 bytes of key as a little-endian integer.
// Shorter keys are zero-extended. Bytes past the eighth are ignored.
func Identity(key []byte) uint64 {
	if len(key) >= 8 {
		return binary.LittleEndian.Uint64(key)
	}
	var v uint64
	for i, c := range key {
		v |= uint64(c) << (8 * i)
	}
	return v
}

// Poly31 is a polynomial rolling hash: starting from a fixed seed, each byte
// is added after multiplying the running total by 31. Bytes are treated as
// unsigned, so keys containing bytes >= 0x80 hash differently than under a C
// implementation that adds sign-extended chars.
func Poly31(key []byte) uint64 {
	total := uint64(poly31Seed)
	for _, c := range key {
		total = total*31 + uint64(c)
	}
	return total
}

// XXHash is the 64-bit xxHash of key.
func XXHash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// XXH3 is the 64-bit XXH3 hash of key.
func XXH3(key []byte) uint64 {
	return xxh3.Hash(key)
}

// Murmur3 is the 64-bit half of the 128-bit MurmurHash3 of key.
func Murmur3(key []byte) uint64 {
	return murmur3.Sum64(key)
}

var registry = map[string]Func{
	"identity": Identity,
	"poly31":   Poly31,
	"xxhash":   XXHash,
	"xxh3":     XXH3,
	"murmur3":  Murmur3,
}

// ByName returns the hash function registered under name. Names are matched
// case-insensitively.
func ByName(name string) (Func, error) {
	fn, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("hashfn: unknown hash function %q (known: %s)",
			name, strings.Join(Names(), ", "))
	}
	return fn, nil
}

// Names returns the registered hash function names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
