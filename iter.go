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

// Iterate calls fn for every entry in the map, in bucket order and then hash
// order within a bucket. fn must not mutate the map, and must not retain the
// key and value slices past its return unless it copies them.
//
// Iterate is cheaper than a Cursor, which has to re-locate its position on
// every step.
func (m *Map) Iterate(fn func(key, value []byte)) {
	m.All(func(key, value []byte) bool {
		fn(key, value)
		return true
	})
}

// All calls yield sequentially for each key and value present in the map. If
// yield returns false, iteration stops. The order is the same as Iterate and
// the same restrictions apply: the map must not be mutated during iteration.
//
// The signature conforms to the range-over-function iterator shape:
//
//	for k, v := range m.All {
//	  fmt.Printf("%x: %x\n", k, v)
//	}
func (m *Map) All(yield func(key, value []byte) bool) {
	m.buckets(func(b *bucket) bool {
		for i := 0; i < b.used; i++ {
			if !yield(m.split(b.record(i, m.stride))) {
				return false
			}
		}
		return true
	})
}

// Cursor is a pull-style iterator over a Map. A Cursor is a weak reference:
// it holds no data of its own and is invalidated by any mutation of its map
// (Insert, Erase, Reserve, Clear, ShrinkToFit, Close, or an internal resize).
// Once a stale use is detected, Peek and Next return ok=false and Err returns
// ErrStaleCursor.
//
// Copying a Cursor is legal and yields an independent cursor at the same
// position.
type Cursor struct {
	m *Map
	// outer is the bucket index, len(m.dir) once exhausted.
	outer int
	// inner is the record index within the bucket.
	inner int
	// started is false until the first call to Next. Before that the cursor
	// sits in front of the record at (outer, inner).
	started bool
	gen     uint64
	err     error
}

// NewCursor returns a cursor positioned before the first entry of the map.
//
// On a new cursor, Peek returns the first entry and so does the first call
// to Next:
//
//	c := m.NewCursor()
//	k1, _, _ := c.Peek() // first entry
//	k2, _, _ := c.Next() // first entry again
//	k3, _, _ := c.Peek() // still the first entry
//	k4, _, _ := c.Next() // second entry
func (m *Map) NewCursor() Cursor {
	return Cursor{
		m:     m,
		outer: m.nextNonEmpty(0),
		gen:   m.gen,
	}
}

// nextNonEmpty returns the index of the first non-empty bucket at or after i,
// or len(m.dir) if there is none.
func (m *Map) nextNonEmpty(i int) int {
	for i < len(m.dir) && m.dir[i].used == 0 {
		i++
	}
	return i
}

// Peek returns the entry under the cursor without moving it. Repeated calls
// return the same entry. ok is false once the cursor has moved past the last
// entry, or if the cursor is stale.
func (c *Cursor) Peek() (key, value []byte, ok bool) {
	if !c.valid() {
		return nil, nil, false
	}
	return c.current()
}

// Next advances the cursor and returns the entry it moves onto. The first
// call on a new cursor returns the first entry. ok is false once the cursor
// has moved past the last entry, or if the cursor is stale.
func (c *Cursor) Next() (key, value []byte, ok bool) {
	if !c.valid() {
		return nil, nil, false
	}
	if !c.started {
		c.started = true
		return c.current()
	}
	if c.outer < len(c.m.dir) {
		c.inner++
		if c.inner >= c.m.dir[c.outer].used {
			c.inner = 0
			c.outer = c.m.nextNonEmpty(c.outer + 1)
		}
	}
	return c.current()
}

// Err returns ErrStaleCursor if the cursor has been used after its map was
// mutated, and nil otherwise.
func (c *Cursor) Err() error {
	return c.err
}

func (c *Cursor) valid() bool {
	if c.err != nil || c.m == nil {
		return false
	}
	if c.gen != c.m.gen {
		c.err = ErrStaleCursor
		return false
	}
	return true
}

func (c *Cursor) current() (key, value []byte, ok bool) {
	if c.outer >= len(c.m.dir) {
		return nil, nil, false
	}
	key, value = c.m.split(c.m.dir[c.outer].record(c.inner, c.m.stride))
	return key, value, true
}
