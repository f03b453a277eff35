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
	"math"

	"github.com/rs/zerolog"
)

// maxAllocBytes bounds a single arena allocation made by the default
// allocator.
const maxAllocBytes = math.MaxInt32

// option provide an interface to do work on Map while it is being created.
type option interface {
	apply(m *Map)
}

// Allocator specifies an interface for allocating and releasing the record
// arenas backing each bucket of a Map. The default allocator utilizes Go's
// builtin make() and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that arenas be
// freed then Map.Close must be called in order to ensure Free is called for
// every outstanding arena.
type Allocator interface {
	// Alloc should return a zeroed slice equivalent to make([]byte, n), or an
	// error if the memory cannot be provided.
	Alloc(n int) ([]byte, error)

	// Free can optionally release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by Alloc.
	Free(b []byte)
}

type defaultAllocator struct{}

func (defaultAllocator) Alloc(n int) ([]byte, error) {
	if n < 0 || n > maxAllocBytes {
		return nil, errAllocTooLarge
	}
	return make([]byte, n), nil
}

func (defaultAllocator) Free(b []byte) {
}

type allocatorOption struct {
	allocator Allocator
}

func (op allocatorOption) apply(m *Map) {
	m.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Map.
func WithAllocator(allocator Allocator) option {
	return allocatorOption{allocator}
}

type loggerOption struct {
	logger zerolog.Logger
}

func (op loggerOption) apply(m *Map) {
	m.logger = op.logger
}

// WithLogger is an option to specify the logger that receives resize events.
// By default nothing is logged.
func WithLogger(logger zerolog.Logger) option {
	return loggerOption{logger}
}

type initialCapacityOption int

func (op initialCapacityOption) apply(m *Map) {
	m.initialCapacity = int(op)
}

// WithInitialCapacity is an option to size the bucket array for n entries up
// front, equivalent to calling Reserve(n) on the new map.
func WithInitialCapacity(n int) option {
	return initialCapacityOption(n)
}
