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

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	in := strings.NewReader("apple\nbanana\napple\ncherry\nwatermelons\n")
	cfg := config{Hash: "xxh3", KeySize: 8, Input: "-", LogLevel: "INFO"}

	r, err := run(cfg, in, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 5, r.Lines)
	require.Equal(t, 1, r.Skipped)
	require.Equal(t, 3, r.Inserted)
	require.Equal(t, 1, r.Duplicates)
	require.Equal(t, 0, r.Collisions)
	require.Equal(t, 3, r.Stats.Len)
	require.Equal(t, 8, r.Stats.Buckets)
}

func TestRunCollisions(t *testing.T) {
	// The identity hash only sees the first 8 bytes of a 12-byte key.
	in := strings.NewReader("prefix00-one\nprefix00-two\nprefix00-one\nother\n")
	cfg := config{Hash: "identity", KeySize: 12}

	var logs bytes.Buffer
	logger := zerolog.New(&logs).Level(zerolog.DebugLevel)
	r, err := run(cfg, in, logger)
	require.NoError(t, err)
	require.Equal(t, 2, r.Inserted)
	require.Equal(t, 1, r.Collisions)
	require.Equal(t, 1, r.Duplicates)
	require.Contains(t, logs.String(), `"collides_with":"prefix00-one"`)
}

func TestRunReserve(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		sb.WriteString(strings.Repeat("x", i%16))
		sb.WriteByte(byte('a' + i/16))
		sb.WriteByte('\n')
	}
	cfg := config{Hash: "murmur3", KeySize: 17, Reserve: 100}
	r, err := run(cfg, strings.NewReader(sb.String()), zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 100, r.Inserted)
	require.Equal(t, 64, r.Stats.Buckets)
}

func TestRunUnknownHash(t *testing.T) {
	_, err := run(config{Hash: "sha1", KeySize: 8}, strings.NewReader(""), zerolog.Nop())
	require.ErrorContains(t, err, "unknown hash function")
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, config{
		Hash:     "poly31",
		KeySize:  16,
		Input:    "-",
		LogLevel: "INFO",
	}, cfg)

	t.Setenv("BUCKETSTAT_HASH", "xxhash")
	t.Setenv("BUCKETSTAT_KEYSIZE", "32")
	t.Setenv("BUCKETSTAT_RESERVE", "1000")
	t.Setenv("BUCKETSTAT_LOGLEVEL", "debug")
	cfg, err = loadConfig()
	require.NoError(t, err)
	require.Equal(t, "xxhash", cfg.Hash)
	require.Equal(t, 32, cfg.KeySize)
	require.Equal(t, 1000, cfg.Reserve)
	require.NoError(t, initLogger(cfg.LogLevel))

	t.Setenv("BUCKETSTAT_KEYSIZE", "0")
	_, err = loadConfig()
	require.ErrorContains(t, err, "keysize must be positive")
}

func TestInitLogger(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)
	require.NoError(t, initLogger("warn"))
	require.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	require.Error(t, initLogger("verbose"))
}
