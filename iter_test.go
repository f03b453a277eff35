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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorSingleEntry(t *testing.T) {
	m := newIdentityMap(t)
	require.NoError(t, m.Insert(key64(5), key64(50)))

	c := m.NewCursor()
	k, v, ok := c.Peek()
	require.True(t, ok)
	require.Equal(t, key64(5), k)
	require.Equal(t, key64(50), v)

	k, v, ok = c.Next()
	require.True(t, ok)
	require.Equal(t, key64(5), k)
	require.Equal(t, key64(50), v)

	_, _, ok = c.Next()
	require.False(t, ok)
	_, _, ok = c.Peek()
	require.False(t, ok)
	_, _, ok = c.Next()
	require.False(t, ok)
	require.NoError(t, c.Err())
}

func TestCursorEmpty(t *testing.T) {
	m := newIdentityMap(t)
	c := m.NewCursor()
	_, _, ok := c.Peek()
	require.False(t, ok)
	_, _, ok = c.Next()
	require.False(t, ok)
	require.NoError(t, c.Err())

	var zero Cursor
	_, _, ok = zero.Next()
	require.False(t, ok)
}

func TestCursorPeekNext(t *testing.T) {
	m := newIdentityMap(t)
	for _, k := range []uint64{1, 2, 9} {
		require.NoError(t, m.Insert(key64(k), key64(k)))
	}

	// Bucket 1 holds 1 and 9, bucket 2 holds 2.
	c := m.NewCursor()
	k, _, _ := c.Peek()
	require.Equal(t, key64(1), k)
	k, _, _ = c.Next()
	require.Equal(t, key64(1), k)
	k, _, _ = c.Peek()
	require.Equal(t, key64(1), k)
	k, _, _ = c.Next()
	require.Equal(t, key64(9), k)
	k, _, _ = c.Peek()
	require.Equal(t, key64(9), k)
	k, _, _ = c.Next()
	require.Equal(t, key64(2), k)
	_, _, ok := c.Next()
	require.False(t, ok)
}

func TestCursorVisitsAll(t *testing.T) {
	m := newIdentityMap(t)
	const count = 1000
	for i := uint64(0); i < count; i++ {
		require.NoError(t, m.Insert(key64(i*7919), key64(i)))
	}

	var fromIterate [][]byte
	m.Iterate(func(k, _ []byte) {
		fromIterate = append(fromIterate, append([]byte(nil), k...))
	})

	seen := make(map[uint64]bool)
	var fromCursor [][]byte
	c := m.NewCursor()
	for {
		k, v, ok := c.Next()
		if !ok {
			break
		}
		require.False(t, seen[val64(k)], "key %d visited twice", val64(k))
		seen[val64(k)] = true
		require.EqualValues(t, val64(k)/7919, val64(v))
		fromCursor = append(fromCursor, append([]byte(nil), k...))
	}
	require.NoError(t, c.Err())
	require.Len(t, seen, count)
	require.Equal(t, fromIterate, fromCursor)
}

func TestCursorCopy(t *testing.T) {
	m := newIdentityMap(t)
	for _, k := range []uint64{1, 2, 3} {
		require.NoError(t, m.Insert(key64(k), key64(k)))
	}
	c := m.NewCursor()
	c.Next()
	d := c
	k, _, _ := c.Next()
	require.Equal(t, key64(2), k)
	k, _, _ = d.Peek()
	require.Equal(t, key64(1), k)
}

func TestCursorStale(t *testing.T) {
	mutations := map[string]func(m *Map) error{
		"insert": func(m *Map) error { return m.Insert(key64(100), key64(0)) },
		"erase":  func(m *Map) error { return m.Erase(key64(1)) },
		"clear": func(m *Map) error {
			m.Clear()
			return nil
		},
		"reserve":     func(m *Map) error { return m.Reserve(1000) },
		"shrinkToFit": func(m *Map) error { return m.ShrinkToFit() },
		"close": func(m *Map) error {
			m.Close()
			return nil
		},
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			m := newIdentityMap(t)
			for _, k := range []uint64{1, 2, 3} {
				require.NoError(t, m.Insert(key64(k), key64(k)))
			}
			c := m.NewCursor()
			_, _, ok := c.Next()
			require.True(t, ok)

			require.NoError(t, mutate(m))

			_, _, ok = c.Peek()
			require.False(t, ok)
			require.ErrorIs(t, c.Err(), ErrStaleCursor)
			_, _, ok = c.Next()
			require.False(t, ok)
			require.ErrorIs(t, c.Err(), ErrStaleCursor)
		})
	}
}

func TestCursorUnaffectedByFailedMutation(t *testing.T) {
	m := newIdentityMap(t)
	require.NoError(t, m.Insert(key64(1), key64(1)))
	c := m.NewCursor()

	require.ErrorIs(t, m.Insert(key64(1), key64(2)), ErrDuplicateKey)
	require.ErrorIs(t, m.Erase(key64(2)), ErrKeyNotFound)
	require.False(t, m.Contains(key64(7)))

	k, _, ok := c.Next()
	require.True(t, ok)
	require.Equal(t, key64(1), k)
	require.NoError(t, c.Err())
}

func TestIterateAll(t *testing.T) {
	m := newIdentityMap(t)
	for i := uint64(0); i < 100; i++ {
		require.NoError(t, m.Insert(key64(i), key64(i)))
	}

	var n int
	m.Iterate(func(k, v []byte) {
		require.Equal(t, k, v)
		n++
	})
	require.Equal(t, 100, n)

	n = 0
	m.All(func(k, v []byte) bool {
		n++
		return n < 10
	})
	require.Equal(t, 10, n)

	// Within a bucket entries come out in hash order.
	var prev []uint64
	m.All(func(k, _ []byte) bool {
		h := val64(k)
		if len(prev) > 0 && prev[len(prev)-1]%uint64(m.bucketCount()) == h%uint64(m.bucketCount()) {
			require.Less(t, prev[len(prev)-1], h)
		}
		prev = append(prev, h)
		return true
	})
	require.Len(t, prev, 100)
}
