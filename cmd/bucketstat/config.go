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
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	envPrefix       = "BUCKETSTAT_"
	envDelimiter    = "__"
	configDelimiter = "."
)

// config is the bucketstat configuration. Defaults are overridden by
// BUCKETSTAT_* environment variables, e.g. BUCKETSTAT_HASH=xxh3.
type config struct {
	// Hash names the hash function, see hashfn.Names.
	Hash string `koanf:"hash"`
	// KeySize is the fixed key width. Shorter lines are zero-padded, longer
	// lines are skipped.
	KeySize int `koanf:"keysize"`
	// Reserve pre-sizes the map for this many keys.
	Reserve int `koanf:"reserve"`
	// Input is the file of newline-delimited keys, "-" for stdin.
	Input string `koanf:"input"`
	// LogLevel is one of DEBUG, INFO, WARN, ERROR, DISABLED.
	LogLevel string `koanf:"loglevel"`
}

func loadConfig() (config, error) {
	k := koanf.New(configDelimiter)

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"hash":     "poly31",
		"keysize":  16,
		"reserve":  0,
		"input":    "-",
		"loglevel": "INFO",
	}, configDelimiter), nil); err != nil {
		return config{}, err
	}

	if err := k.Load(env.Provider(envPrefix, envDelimiter, func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return config{}, fmt.Errorf("loading environment: %w", err)
	}

	var cfg config
	if err := k.Unmarshal("", &cfg); err != nil {
		return config{}, err
	}
	if cfg.KeySize <= 0 {
		return config{}, fmt.Errorf("keysize must be positive, got %d", cfg.KeySize)
	}
	return cfg, nil
}

func initLogger(level string) error {
	switch strings.ToUpper(level) {
	case "DEBUG":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "INFO":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "WARN":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "DISABLED":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		return fmt.Errorf("incorrect log level %q", level)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	return nil
}
