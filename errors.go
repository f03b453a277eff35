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

import "errors"

// Outcomes of Insert and Erase that callers are expected to branch on.
var (
	// ErrDuplicateKey is returned by Insert when an entry with the same key
	// hash is already present. The existing entry is left untouched.
	ErrDuplicateKey = errors.New("bucketmap: duplicate key")
	// ErrKeyNotFound is returned by Erase when no entry has the key's hash.
	ErrKeyNotFound = errors.New("bucketmap: key not found")
)

// Failures.
var (
	// ErrAllocationFailed is returned when the Allocator could not supply
	// memory. The map is left exactly as it was before the call.
	ErrAllocationFailed = errors.New("bucketmap: allocation failed")
	// ErrSizeMismatch is returned when a key or value does not have the size
	// the map was constructed with.
	ErrSizeMismatch = errors.New("bucketmap: key or value size does not match map layout")
	// ErrInvalidLayout is returned by New for a nil hash function or negative
	// key or value sizes.
	ErrInvalidLayout = errors.New("bucketmap: invalid map layout")
	// ErrStaleCursor is reported by a Cursor that is used after its map was
	// mutated.
	ErrStaleCursor = errors.New("bucketmap: cursor used after map was modified")
)

var errAllocTooLarge = errors.New("bucketmap: allocation exceeds limit")
