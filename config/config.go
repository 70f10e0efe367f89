// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config provides still configuration types and schemas.
package config

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kortschak/ardilla"
)

// Config is a complete configuration.
type Config struct {
	Element *Element `json:"element,omitempty" toml:"element"`
	Player  *Player  `json:"player,omitempty" toml:"player"`
	// Device is the Stream Deck key the element is
	// rendered to. If Device is nil, the element is
	// rendered headless.
	Device *Device `json:"device,omitempty" toml:"device"`

	Sum *Sum `json:"sum,omitempty" toml:"-"`
}

// Element is the displayed element configuration.
type Element struct {
	// Name is the name of the element. It is used to
	// identify the element's lock and its recorded state.
	Name string `json:"name" toml:"name"`
	// Source is the data URI of the animated resource.
	Source string `json:"source" toml:"source"`
	// DataDir is the directory that text/filename sources
	// are relative to. If it is empty, the directory
	// holding the configuration file is used.
	DataDir string `json:"data_dir,omitempty" toml:"data_dir"`
}

// Player is the playback configuration.
type Player struct {
	// Autoplay starts playback on binding. It is only
	// consulted when InitialState is empty.
	Autoplay *bool `json:"autoplay,omitempty" toml:"autoplay"`
	// Loop restarts the animation at the end of each cycle.
	// Loop defaults to true.
	Loop *bool `json:"loop,omitempty" toml:"loop"`
	// FreezeOnPause shows the last frame while paused.
	// FreezeOnPause defaults to true.
	FreezeOnPause *bool `json:"freeze_on_pause,omitempty" toml:"freeze_on_pause"`
	// InitialState is "play", "pause" or empty.
	InitialState string `json:"initial_state,omitempty" toml:"initial_state"`
	// ReadyTimeout bounds the wait for the resource's
	// first decode. Zero waits indefinitely.
	ReadyTimeout *Duration `json:"ready_timeout,omitempty" toml:"ready_timeout"`
	// Settle bounds the wait for a frame to render
	// before a snapshot is taken.
	Settle *Duration `json:"settle,omitempty" toml:"settle"`
	// Remember restores the last recorded playback state
	// of the element when the state database is available.
	Remember bool `json:"remember,omitempty" toml:"remember"`
}

// Device is a Stream Deck key.
type Device struct {
	// PID is the product ID of the device.
	PID ardilla.PID `json:"pid,omitempty" toml:"pid"`
	// Serial is the device serial number. If it is
	// empty, the first device matching PID is used.
	Serial string `json:"serial,omitempty" toml:"serial"`
	Row    int    `json:"row" toml:"row"`
	Col    int    `json:"col" toml:"col"`
	// Control is the action of the key. "toggle" toggles
	// playback on each press, "hold" plays while the key
	// is held and pauses when it is released, and "none"
	// ignores the key. Control defaults to "toggle".
	Control string `json:"control,omitempty" toml:"control"`
}

// Duration is a time.Duration that is marshaled as text.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Schema is the schema for a valid configuration.
const Schema = `
{
	element: _#element
	player?: _#player
	device?: _#device
}

_#element: {
	name:      =~"^[A-Za-z0-9_.-]+$"
	source:    _#data_uri
	data_dir?: string
}

_#player: {
	autoplay?:        bool
	loop?:            bool
	freeze_on_pause?: bool
	initial_state?:   "" | "play" | "pause"
	ready_timeout?:   _#duration
	settle?:          _#duration
	remember?:        bool
}

_#device: {
	pid:    *0 | uint16
	serial: *"" | string
	row:    uint
	col:    uint
	control?: "" | "toggle" | "hold" | "none"
}

_#duration: =~"^(?:[0-9]+(?:\\.[0-9]*)?(?:ns|us|µs|ms|s|m|h))+$|^0$"

_#data_uri: _#text | _#image | _#image_file | _#named_color | _#web_color
_#text: =~"^data:text/plain(?:;[^;]+=[^;]*)*,.*$"
_#image: =~"^data:image/[^;,]+(?:;[^;]+=[^;]*)*;base64,.*$"
_#image_file: =~"^data:text/filename(?:;[^;]+=[^;]*)*,.+$"
_#named_color: =~"^data:image/color(?:;[^;]+=[^;]*)*;name,(?:hi)?(?:black|red|green|yellow|blue|magenta|cyan|white)$"
_#web_color: =~"^data:image/color(?:;[^;]+=[^;]*)*;web,#[0-9a-fA-F]{6}$"
`

// Sum is a comparable optional SHA-1 sum.
type Sum [sha1.Size]byte

// Equal returns whether s is equal to other.
func (s *Sum) Equal(other *Sum) bool {
	switch {
	case s == other:
		return true
	case s != nil && other != nil:
		return *s == *other
	default:
		return false
	}
}

func (s *Sum) String() string {
	if s == nil {
		return ""
	}
	return hex.EncodeToString(s[:])
}

func (s *Sum) UnmarshalText(text []byte) error {
	if len(text) != hex.EncodedLen(len(s)) {
		return fmt.Errorf("invalid length: %d != %d", len(text), hex.EncodedLen(len(s)))
	}
	_, err := hex.Decode(s[:], text)
	return err
}

func (s *Sum) MarshalText() (text []byte, err error) {
	if s == nil {
		return nil, nil
	}
	text = make([]byte, hex.EncodedLen(len(s)))
	hex.Encode(text, s[:])
	return text, nil
}
