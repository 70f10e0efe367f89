// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var (
	verbose = flag.Bool("verbose_log", false, "print full logging")
	lines   = flag.Bool("show_lines", false, "log source code position")
)

const gopherConfig = `
[element]
name   = "gopher"
source = "data:text/filename,gopher.gif"

[player]
loop            = false
initial_state   = "play"
ready_timeout   = "2s"
remember        = true

[device]
pid    = 0x0063
serial = "A00SA3232MN2L8"
row    = 0
col    = 2
control = "hold"
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "still.toml")
	err := os.WriteFile(path, []byte(gopherConfig), 0o644)
	if err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}
	want := &Config{
		Element: &Element{
			Name:    "gopher",
			Source:  "data:text/filename,gopher.gif",
			DataDir: dir,
		},
		Player: &Player{
			Autoplay:      ptr(false),
			Loop:          ptr(false),
			FreezeOnPause: ptr(true),
			InitialState:  "play",
			ReadyTimeout:  ptr(Duration(2 * time.Second)),
			Settle:        ptr(Duration(DefaultSettle)),
			Remember:      true,
		},
		Device: &Device{
			PID:    0x0063,
			Serial: "A00SA3232MN2L8",
			Row:     0,
			Col:     2,
			Control: "hold",
		},
	}
	ignoreSum := cmpopts.IgnoreFields(Config{}, "Sum")
	if !cmp.Equal(want, got, ignoreSum) {
		t.Errorf("unexpected config:\n--- want:\n+++ got:\n%s", cmp.Diff(want, got, ignoreSum))
	}
	if got.Sum == nil {
		t.Error("missing config sum")
	}

	t.Run("invalid", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.toml")
		err := os.WriteFile(path, []byte(strings.Replace(gopherConfig, `"play"`, `"stop"`, 1)), 0o644)
		if err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		_, err = Load(path)
		if err == nil {
			t.Error("expected error for invalid initial state")
		}
	})

	t.Run("syntax", func(t *testing.T) {
		path := filepath.Join(dir, "syntax.toml")
		err := os.WriteFile(path, []byte("[element\n"), 0o644)
		if err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		_, err = Load(path)
		if err == nil {
			t.Error("expected error for invalid toml")
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing.toml"))
		if !os.IsNotExist(err) {
			t.Errorf("unexpected error for missing file: %v", err)
		}
	})
}

func TestDefaults(t *testing.T) {
	got := Defaults(&Config{Element: &Element{Name: "e", Source: "data:text/plain,x", DataDir: "images"}}, "/etc/still")
	want := &Config{
		Element: &Element{Name: "e", Source: "data:text/plain,x", DataDir: "/etc/still/images"},
		Player: &Player{
			Autoplay:      ptr(false),
			Loop:          ptr(true),
			FreezeOnPause: ptr(true),
			ReadyTimeout:  ptr(Duration(DefaultReadyTimeout)),
			Settle:        ptr(Duration(DefaultSettle)),
		},
	}
	if !cmp.Equal(want, got) {
		t.Errorf("unexpected defaults:\n--- want:\n+++ got:\n%s", cmp.Diff(want, got))
	}

	abs := Defaults(&Config{Element: &Element{DataDir: "/srv/images"}, Device: &Device{}}, "/etc/still")
	if abs.Element.DataDir != "/srv/images" {
		t.Errorf("absolute data dir changed: %s", abs.Element.DataDir)
	}
	if abs.Device.Control != "toggle" {
		t.Errorf("unexpected default key control: got:%q want:%q", abs.Device.Control, "toggle")
	}
}
