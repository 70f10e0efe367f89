// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package display

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/kortschak/ardilla"
)

// Deck is a lock-protected [ardilla.Deck].
type Deck struct {
	mu sync.Mutex
	*ardilla.Deck

	log *slog.Logger

	// kMu protects keys and stopWatch.
	kMu       sync.Mutex
	keys      map[int]*Key
	stopWatch context.CancelFunc
}

// OpenDeck opens the Stream Deck with the given PID and serial. The pid and
// serial parameters are interpreted according to the documentation for
// [ardilla.NewDeck].
func OpenDeck(pid ardilla.PID, serial string, log *slog.Logger) (*Deck, error) {
	deck, err := ardilla.NewDeck(pid, serial)
	if err != nil {
		return nil, err
	}
	if serial == "" {
		serial, err = deck.Serial()
		if err != nil {
			deck.Close()
			return nil, err
		}
	}
	model := deck.PID()
	log.LogAttrs(context.Background(), slog.LevelInfo, "opened deck", slog.String("pid", fmt.Sprintf("0x%04x", uint16(model))), slog.String("model", model.String()), slog.String("serial", serial))
	return &Deck{Deck: deck, log: log, keys: make(map[int]*Key)}, nil
}

// Key returns a Sink rendering to the button at the given row and column.
func (d *Deck) Key(row, col int) (*Key, error) {
	rows, cols := d.Layout()
	if row < 0 || rows <= row || col < 0 || cols <= col {
		return nil, fmt.Errorf("key out of range: (%d,%d) not in %dx%d", row, col, rows, cols)
	}
	bounds, err := d.Deck.Bounds()
	if err != nil {
		return nil, err
	}
	idx := d.Deck.Key(row, col)
	d.kMu.Lock()
	defer d.kMu.Unlock()
	k, ok := d.keys[idx]
	if !ok {
		k = &Key{deck: d, row: row, col: col, bounds: bounds}
		d.keys[idx] = k
	}
	return k, nil
}

// Watch dispatches key presses and releases to the handlers registered
// on the deck's keys. It returns when ctx is done or the deck is closed.
func (d *Deck) Watch(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.kMu.Lock()
	d.stopWatch = cancel
	d.kMu.Unlock()
	watchKeys(ctx, d.Deck, d.key, d.log)
}

// key returns the key with the given device index, or nil if the key
// has not been requested with Key.
func (d *Deck) key(idx int) *Key {
	d.kMu.Lock()
	defer d.kMu.Unlock()
	return d.keys[idx]
}

// keyStater is a source of key pressed states.
type keyStater interface {
	// KeyStates blocks until a key state changes and
	// returns the pressed state of all keys.
	KeyStates() ([]bool, error)
}

// watchKeys waits on key state reports from src and calls the handlers
// registered by OnPress and OnRelease on the key returned by lookup for
// each key whose state has changed.
func watchKeys(ctx context.Context, src keyStater, lookup func(idx int) *Key, log *slog.Logger) {
	log = log.WithGroup("watch_keys")
	log.LogAttrs(ctx, slog.LevelDebug, "start")

	type keyEvents struct {
		keys []bool
		time time.Time
	}
	events := make(chan keyEvents)
	go func() {
		for {
			states, err := src.KeyStates()
			if err != nil {
				if errors.Is(err, io.EOF) {
					log.LogAttrs(ctx, slog.LevelDebug, "key states closed")
					close(events)
					return
				}
				select {
				case <-ctx.Done():
					log.LogAttrs(ctx, slog.LevelDebug, "watch keys cancelled")
					return
				default:
				}
				log.LogAttrs(ctx, slog.LevelError, "failed to get states", slog.Any("error", err))
				continue
			}
			select {
			case events <- keyEvents{keys: states, time: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var last []bool
	for {
		select {
		case <-ctx.Done():
			log.LogAttrs(ctx, slog.LevelDebug, "stop")
			return
		case states, ok := <-events:
			if !ok {
				log.LogAttrs(ctx, slog.LevelDebug, "stop")
				return
			}
			if len(last) != len(states.keys) {
				last = make([]bool, len(states.keys))
			}
			for i, pressed := range states.keys {
				if pressed == last[i] {
					continue
				}
				k := lookup(i)
				if k == nil {
					continue
				}
				action := "release"
				if pressed {
					action = "press"
				}
				log.LogAttrs(ctx, slog.LevelDebug, action, slog.Int("row", k.row), slog.Int("col", k.col), slog.Time("triggered", states.time))
				k.dispatch(ctx, pressed, states.time)
			}
			last = states.keys
		}
	}
}

// setImage renders the provided image on the button at the given row and
// column. If img is a *RawImage the internal representation will be used
// directly.
func (d *Deck) setImage(row, col int, img image.Image) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Deck.SetImage(row, col, img)
}

// Close stops watching keys, and resets and closes the device.
func (d *Deck) Close() error {
	d.kMu.Lock()
	if d.stopWatch != nil {
		d.stopWatch()
	}
	d.kMu.Unlock()
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.Deck.Reset()
	if err != nil {
		d.log.LogAttrs(context.Background(), slog.LevelWarn, "reset deck", slog.Any("error", err))
	}
	return d.Deck.Close()
}

// Key is a Sink rendering to a single Stream Deck button.
type Key struct {
	deck     *Deck
	row, col int
	bounds   image.Rectangle

	// mu protects onPress and onRelease.
	mu        sync.Mutex
	onPress   func(ctx context.Context, t time.Time)
	onRelease func(ctx context.Context, t time.Time)
}

// OnPress registers a function to call when the key is pressed. The
// function must not block.
func (k *Key) OnPress(do func(ctx context.Context, t time.Time)) {
	k.mu.Lock()
	k.onPress = do
	k.mu.Unlock()
}

// OnRelease registers a function to call when the key is released. The
// function must not block.
func (k *Key) OnRelease(do func(ctx context.Context, t time.Time)) {
	k.mu.Lock()
	k.onRelease = do
	k.mu.Unlock()
}

func (k *Key) dispatch(ctx context.Context, pressed bool, t time.Time) {
	k.mu.Lock()
	do := k.onRelease
	if pressed {
		do = k.onPress
	}
	k.mu.Unlock()
	if do != nil {
		do(ctx, t)
	}
}

// SetImage resizes img to the button, preserving its aspect ratio, and
// renders it.
func (k *Key) SetImage(img image.Image) error {
	raw, err := k.deck.RawImage(letterbox(img, k.bounds))
	if err != nil {
		return err
	}
	return k.deck.setImage(k.row, k.col, raw)
}

// Bounds returns the image bounds of the button.
func (k *Key) Bounds() image.Rectangle {
	return k.bounds
}
