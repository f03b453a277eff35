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

// Set is a hash set of fixed-size byte keys. It is a Map whose values are
// zero bytes long, and shares all of Map's behaviour, including hash-only key
// identity.
//
// A Set is NOT goroutine-safe.
type Set struct {
	m *Map
}

// NewSet constructs an empty set of keySize-byte keys.
func NewSet(hash HashFunc, keySize int, options ...option) (*Set, error) {
	m, err := New(hash, keySize, 0, options...)
	if err != nil {
		return nil, err
	}
	return &Set{m: m}, nil
}

// Close releases the set's storage. See Map.Close.
func (s *Set) Close() {
	s.m.Close()
}

// Len returns the number of keys in the set.
func (s *Set) Len() int {
	return s.m.Len()
}

// KeySize returns the size in bytes of every key.
func (s *Set) KeySize() int {
	return s.m.KeySize()
}

// Contains reports whether key is in the set.
func (s *Set) Contains(key []byte) bool {
	return s.m.Contains(key)
}

// Insert adds key to the set. It returns ErrDuplicateKey if the key is
// already present.
func (s *Set) Insert(key []byte) error {
	return s.m.Insert(key, nil)
}

// Erase removes key from the set. It returns ErrKeyNotFound if the key is not
// present.
func (s *Set) Erase(key []byte) error {
	return s.m.Erase(key)
}

// Reserve sizes the set to hold capacity keys without resizing.
func (s *Set) Reserve(capacity int) error {
	return s.m.Reserve(capacity)
}

// Clear removes every key.
func (s *Set) Clear() {
	s.m.Clear()
}

// ShrinkToFit trims the set's storage. See Map.ShrinkToFit.
func (s *Set) ShrinkToFit() error {
	return s.m.ShrinkToFit()
}

// Stats returns the current occupancy of the set.
func (s *Set) Stats() Stats {
	return s.m.Stats()
}

// Iterate calls fn for every key in the set. fn must not mutate the set.
func (s *Set) Iterate(fn func(key []byte)) {
	s.m.Iterate(func(key, _ []byte) {
		fn(key)
	})
}

// All calls yield sequentially for each key in the set, stopping early if
// yield returns false.
func (s *Set) All(yield func(key []byte) bool) {
	s.m.All(func(key, _ []byte) bool {
		return yield(key)
	})
}

// SetCursor is a pull-style iterator over a Set with the same semantics as
// Cursor.
type SetCursor struct {
	c Cursor
}

// NewCursor returns a cursor positioned before the first key of the set.
func (s *Set) NewCursor() SetCursor {
	return SetCursor{c: s.m.NewCursor()}
}

// Peek returns the key under the cursor without moving it.
func (c *SetCursor) Peek() (key []byte, ok bool) {
	key, _, ok = c.c.Peek()
	return key, ok
}

// Next advances the cursor and returns the key it moves onto.
func (c *SetCursor) Next() (key []byte, ok bool) {
	key, _, ok = c.c.Next()
	return key, ok
}

// Err returns ErrStaleCursor if the cursor was used after the set changed.
func (c *SetCursor) Err() error {
	return c.c.Err()
}
