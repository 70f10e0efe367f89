// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config provides configuration loading, validation and live
// reloading.
package config

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kortschak/still/config"
)

// Alias the publicly visible types.
type (
	Config   = config.Config
	Element  = config.Element
	Player   = config.Player
	Device   = config.Device
	Duration = config.Duration
	Sum      = config.Sum
)

// Default player configuration values.
const (
	DefaultReadyTimeout = 5 * time.Second
	DefaultSettle       = 250 * time.Millisecond
)

// Load reads, validates and applies defaults to the configuration in the
// TOML file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, _, err := unmarshalConfig(sha1.New(), b)
	if err != nil {
		return nil, err
	}
	return Defaults(cfg, filepath.Dir(path)), nil
}

// unmarshalConfig returns a validated configuration and its semantic hash
// from the provided raw data.
func unmarshalConfig(h hash.Hash, b []byte) (cfg *Config, sum Sum, _ error) {
	c := &Config{}
	err := toml.Unmarshal(b, c)
	if err != nil {
		return nil, sum, err
	}
	_, err = Validate(config.Schema, c)
	if err != nil {
		return nil, sum, fmt.Errorf("invalid configuration: %w", err)
	}
	err = json.NewEncoder(h).Encode(c)
	if err != nil {
		return nil, sum, err
	}
	sum = ([sha1.Size]byte)(h.Sum(nil))
	h.Reset()
	c.Sum = &sum
	return c, sum, nil
}

// Defaults fills unset fields of cfg with their default values, returning
// cfg. Relative data directories are resolved against dir.
func Defaults(cfg *Config, dir string) *Config {
	if cfg.Element == nil {
		cfg.Element = &Element{}
	}
	switch {
	case cfg.Element.DataDir == "":
		cfg.Element.DataDir = dir
	case !filepath.IsAbs(cfg.Element.DataDir):
		cfg.Element.DataDir = filepath.Join(dir, cfg.Element.DataDir)
	}
	if cfg.Player == nil {
		cfg.Player = &Player{}
	}
	p := cfg.Player
	if p.Autoplay == nil {
		p.Autoplay = ptr(false)
	}
	if p.Loop == nil {
		p.Loop = ptr(true)
	}
	if p.FreezeOnPause == nil {
		p.FreezeOnPause = ptr(true)
	}
	if p.ReadyTimeout == nil {
		p.ReadyTimeout = ptr(Duration(DefaultReadyTimeout))
	}
	if p.Settle == nil {
		p.Settle = ptr(Duration(DefaultSettle))
	}
	if cfg.Device != nil && cfg.Device.Control == "" {
		cfg.Device.Control = "toggle"
	}
	return cfg
}

func ptr[T any](v T) *T { return &v }
