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

// bucketstat loads newline-delimited keys into a bucketmap and reports how
// the chosen hash function spreads them over buckets, and which distinct keys
// it fails to tell apart.
//
//	BUCKETSTAT_HASH=identity BUCKETSTAT_KEYSIZE=8 bucketstat < keys.txt
package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/bucketmap"
	"github.com/cockroachdb/bucketmap/hashfn"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bucketstat: %v\n", err)
		os.Exit(2)
	}
	if err := initLogger(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "bucketstat: %v\n", err)
		os.Exit(2)
	}

	in := io.Reader(os.Stdin)
	if cfg.Input != "-" {
		f, err := os.Open(cfg.Input)
		if err != nil {
			log.Fatal().Err(err).Str("input", cfg.Input).Msg("cannot open input")
		}
		defer f.Close()
		in = f
	}

	r, err := run(cfg, in, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("bucketstat failed")
	}
	r.log(log.Logger)
}

// report summarizes a run.
type report struct {
	Lines      int
	Skipped    int
	Inserted   int
	Duplicates int
	// Collisions counts distinct keys rejected because another key had the
	// same hash.
	Collisions int
	Stats      bucketmap.Stats
}

func (r report) log(logger zerolog.Logger) {
	logger.Info().
		Int("lines", r.Lines).
		Int("skipped", r.Skipped).
		Int("inserted", r.Inserted).
		Int("duplicates", r.Duplicates).
		Int("collisions", r.Collisions).
		Int("buckets", r.Stats.Buckets).
		Int("empty_buckets", r.Stats.EmptyBuckets).
		Int("max_bucket_len", r.Stats.MaxBucketLen).
		Float64("avg_load", r.Stats.AvgLoad()).
		Int("arena_bytes", r.Stats.ArenaBytes).
		Msg("summary")
}

// run inserts every line of in as a zero-padded key. The value stored for a
// key is the 4-byte index of the line that introduced it, which is used to
// tell true duplicates apart from hash collisions.
func run(cfg config, in io.Reader, logger zerolog.Logger) (report, error) {
	hash, err := hashfn.ByName(cfg.Hash)
	if err != nil {
		return report{}, err
	}
	m, err := bucketmap.New(hash, cfg.KeySize, 4,
		bucketmap.WithLogger(logger),
		bucketmap.WithInitialCapacity(cfg.Reserve))
	if err != nil {
		return report{}, err
	}
	defer m.Close()

	var r report
	var lines []string
	key := make([]byte, cfg.KeySize)
	var value [4]byte

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := sc.Text()
		r.Lines++
		if len(line) > cfg.KeySize {
			r.Skipped++
			logger.Warn().Int("line", r.Lines).Int("len", len(line)).Msg("key longer than keysize, skipped")
			continue
		}
		clear(key)
		copy(key, line)
		binary.LittleEndian.PutUint32(value[:], uint32(len(lines)))

		switch err := m.Insert(key, value[:]); {
		case err == nil:
			lines = append(lines, line)
			r.Inserted++
		case errors.Is(err, bucketmap.ErrDuplicateKey):
			prev, _ := m.Lookup(key)
			first := lines[binary.LittleEndian.Uint32(prev)]
			if first == line {
				r.Duplicates++
				continue
			}
			r.Collisions++
			logger.Debug().Str("key", line).Str("collides_with", first).Msg("hash collision")
		default:
			return r, err
		}
	}
	if err := sc.Err(); err != nil {
		return r, err
	}

	r.Stats = m.Stats()
	return r, nil
}
