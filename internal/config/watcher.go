// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"context"
	"crypto/sha1"
	"hash"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileDebounce is the default duration we wait for the contents to have
// stabilised to work around some editors writing an empty file and then the
// buffer.
const FileDebounce = 10 * time.Millisecond

// Change is a configuration change identified by a Watcher. Config is nil
// when the change is a removal of the configuration file or Err is not nil.
type Change struct {
	Event  fsnotify.Event
	Config *Config
	Err    error
}

// Watcher watches a single configuration file and reports semantically
// meaningful changes.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	changes  chan<- Change
	hash     hash.Hash
	sum      Sum
	log      *slog.Logger
}

// NewWatcher starts an fsnotify.Watcher for the configuration file at path,
// sending change events on the changes channel. The current contents of the
// file are not reported. The debounce parameter specifies how long to wait
// after an fsnotify.Event before reading the file to ensure that writes will
// be reflected in the state checksum. If it is less than zero, FileDebounce
// is used.
func NewWatcher(ctx context.Context, path string, changes chan<- Change, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory so that atomic replacement
	// of the file by editors is seen.
	err = watcher.Add(filepath.Dir(path))
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if debounce < 0 {
		debounce = FileDebounce
	}
	w := &Watcher{
		path:     path,
		debounce: debounce,
		watcher:  watcher,
		changes:  changes,
		hash:     sha1.New(),
		log:      log.With(slog.String("component", "config_watcher")),
	}
	b, err := os.ReadFile(path)
	if err == nil {
		_, w.sum, _ = unmarshalConfig(w.hash, b)
	}
	w.log.LogAttrs(ctx, slog.LevelDebug, "watching", slog.String("path", path), slog.Any("sum", sumValue{w.sum}))
	return w, nil
}

// Watch processes fsnotify events until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
				w.log.LogAttrs(ctx, slog.LevelDebug, "write", slog.String("name", ev.Name), slog.String("op", ev.Op.String()))
				time.Sleep(w.debounce)

				b, err := os.ReadFile(ev.Name)
				if err != nil {
					w.log.LogAttrs(ctx, slog.LevelError, "read file", slog.Any("error", err))
					w.send(ctx, Change{Event: ev, Err: err})
					continue
				}
				cfg, sum, err := unmarshalConfig(w.hash, b)
				if err != nil {
					w.send(ctx, Change{Event: ev, Err: err})
					continue
				}
				if sum == w.sum {
					w.log.LogAttrs(ctx, slog.LevelDebug, "no change", slog.Any("sum", sumValue{sum}))
					continue
				}
				w.sum = sum
				w.send(ctx, Change{Event: ev, Config: Defaults(cfg, filepath.Dir(w.path))})

			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				w.log.LogAttrs(ctx, slog.LevelDebug, "remove", slog.String("name", ev.Name), slog.String("op", ev.Op.String()))
				w.sum = Sum{}
				w.send(ctx, Change{Event: ev})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.send(ctx, Change{Err: err})
		}
	}
}

func (w *Watcher) send(ctx context.Context, c Change) {
	w.log.LogAttrs(ctx, slog.LevelDebug, "change", slog.Any("change", changeValue{c}))
	select {
	case w.changes <- c:
	case <-ctx.Done():
	}
}

// Close stops watching the file.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
