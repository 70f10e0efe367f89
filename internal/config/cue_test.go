// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kortschak/still/config"
)

var validateTests = []struct {
	name   string
	config *Config
	// wantPaths is checked when wantErr is true
	// and wantPaths is not nil.
	wantPaths [][]string
	wantErr   bool
}{
	{
		name: "minimal",
		config: &Config{
			Element: &Element{Name: "gopher", Source: "data:text/filename,gopher.gif"},
		},
	},
	{
		name: "complete",
		config: &Config{
			Element: &Element{Name: "banner", Source: "data:text/plain;fg=hiwhite;bg=blue,hello gophers", DataDir: "/srv"},
			Player: &Player{
				Autoplay:      ptr(true),
				Loop:          ptr(true),
				FreezeOnPause: ptr(false),
				InitialState:  "pause",
				ReadyTimeout:  ptr(Duration(1500 * time.Millisecond)),
				Settle:        ptr(Duration(0)),
			},
			Device: &Device{PID: 0x0080, Row: 1, Col: 4, Control: "hold"},
		},
	},
	{
		name: "base64_source",
		config: &Config{
			Element: &Element{Name: "gif", Source: "data:image/gif;base64,R0lGODlhAQABAAAAACw="},
		},
	},
	{
		name: "web_color_source",
		config: &Config{
			Element: &Element{Name: "swatch", Source: "data:image/color;web,#ff8000"},
		},
	},
	{
		name:    "no_element",
		config:  &Config{},
		wantErr: true,
	},
	{
		name: "bad_name",
		config: &Config{
			Element: &Element{Name: "a b", Source: "data:text/plain,x"},
		},
		wantPaths: [][]string{{"element", "name"}},
		wantErr:   true,
	},
	{
		name: "bad_source",
		config: &Config{
			Element: &Element{Name: "gopher", Source: "https://go.dev/gopher.gif"},
		},
		wantErr:   true,
	},
	{
		name: "bad_color",
		config: &Config{
			Element: &Element{Name: "swatch", Source: "data:image/color;name,purple"},
		},
		wantErr:   true,
	},
	{
		name: "bad_initial_state",
		config: &Config{
			Element: &Element{Name: "gopher", Source: "data:text/filename,gopher.gif"},
			Player:  &Player{InitialState: "stop"},
		},
		wantErr:   true,
	},
	{
		name: "bad_control",
		config: &Config{
			Element: &Element{Name: "gopher", Source: "data:text/filename,gopher.gif"},
			Device:  &Device{Control: "hover"},
		},
		wantErr: true,
	},
	{
		name: "bad_key",
		config: &Config{
			Element: &Element{Name: "gopher", Source: "data:text/filename,gopher.gif"},
			Device:  &Device{Row: -1},
		},
		wantPaths: [][]string{{"device", "row"}},
		wantErr:   true,
	},
}

func TestValidate(t *testing.T) {
	for _, test := range validateTests {
		t.Run(test.name, func(t *testing.T) {
			paths, err := Validate(config.Schema, test.config)
			if (err != nil) != test.wantErr {
				t.Fatalf("unexpected error: %v", err)
			}
			if !test.wantErr {
				if paths != nil {
					t.Errorf("unexpected paths for valid config: %v", paths)
				}
				return
			}
			if test.wantPaths != nil && !cmp.Equal(test.wantPaths, paths) {
				t.Errorf("unexpected paths:\n--- want:\n+++ got:\n%s", cmp.Diff(test.wantPaths, paths))
			}
		})
	}
}

var uniqueTests = []struct {
	paths [][]string
	want  [][]string
}{
	{paths: nil, want: nil},
	{paths: [][]string{{"a"}}, want: [][]string{{"a"}}},
	{
		paths: [][]string{{"b", "a"}, {"a"}, {"b"}, {"a"}, {"b", "a"}},
		want:  [][]string{{"a"}, {"b"}, {"b", "a"}},
	},
}

func TestUnique(t *testing.T) {
	for _, test := range uniqueTests {
		got := unique(test.paths)
		if !cmp.Equal(test.want, got) {
			t.Errorf("unexpected result:\n--- want:\n+++ got:\n%s", cmp.Diff(test.want, got))
		}
	}
}
