// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package player provides a playback controller for looping animated
// resources that have no pause or seek primitive.
//
// Playing assigns the original resource to the element, which restarts its
// decoding from the first frame. Pausing substitutes a static snapshot of
// the frame being shown. Resuming therefore always restarts the animation
// from its beginning.
package player

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

	"github.com/kortschak/still/internal/display"
	"github.com/kortschak/still/internal/gate"
	"github.com/kortschak/still/internal/slogext"
	"github.com/kortschak/still/internal/snapshot"
)

// State is a playback state.
type State int32

const (
	Paused State = iota
	Playing
	Transitioning
	Destroyed
)

func (s State) String() string {
	switch s {
	case Paused:
		return "paused"
	case Playing:
		return "playing"
	case Transitioning:
		return "transitioning"
	case Destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrLoadTimeout is the cause of a failed transition when the element's
// resource did not become ready within the ready timeout.
var ErrLoadTimeout = errors.New("load timeout")

var errDestroyed = errors.New("controller destroyed")

// Element is a visual element that a Controller can be bound to.
type Element interface {
	// Displayed returns the element's current resource locator.
	Displayed() string
	// Display assigns a resource locator to the element,
	// restarting its decoding from the first frame.
	Display(uri string) error
	// Ready returns the element's first decode gate.
	Ready() *gate.Gate
	// Bind and Unbind manage the element's single owner.
	Bind(display.Owner) display.Owner
	Unbind(display.Owner)

	snapshot.Source
}

// Options are the construction options for a Controller.
type Options struct {
	// Autoplay starts the controller playing. It is only
	// consulted when InitialState is empty.
	Autoplay bool
	// Loop restarts the animation when it completes a
	// cycle while playing.
	Loop bool
	// FreezeOnPause displays a snapshot of the current
	// frame when paused. Without it, pausing leaves the
	// element displaying the original resource.
	FreezeOnPause bool
	// InitialState is "play", "pause" or empty. When set,
	// it takes precedence over Autoplay.
	InitialState string

	// OnPlay, OnPause and OnEnd are called synchronously
	// after the corresponding transition has been published.
	// OnEnd is called when the animation completes a cycle.
	OnPlay  func()
	OnPause func()
	OnEnd   func()

	// ReadyTimeout bounds the wait for the element's first
	// decode. If it is zero, the wait is bounded only by the
	// context passed to the operation.
	ReadyTimeout time.Duration
	// Settle bounds the wait for a freshly assigned resource
	// to render before a snapshot is captured. See
	// [snapshot.Capturer].
	Settle time.Duration
	// Alloc allocates snapshot raster surfaces. If it is
	// nil, an *image.RGBA is used.
	Alloc func(image.Rectangle) (draw.Image, error)
}

// DefaultOptions returns the default options: looping, freezing on pause
// and starting paused.
func DefaultOptions() Options {
	return Options{
		Loop:          true,
		FreezeOnPause: true,
	}
}

// initialState returns the starting state implied by opts.
func (opts Options) initialState() (State, error) {
	switch opts.InitialState {
	case "play":
		return Playing, nil
	case "pause":
		return Paused, nil
	case "":
		if opts.Autoplay {
			return Playing, nil
		}
		return Paused, nil
	default:
		return 0, fmt.Errorf("invalid initial state: %q", opts.InitialState)
	}
}

// Controller is a playback controller bound to a single element.
// Its methods do not return errors; failures are logged and the
// controller returns to its state before the failed operation.
type Controller struct {
	el       Element
	opts     Options
	capturer snapshot.Capturer
	log      *slog.Logger

	// source is the element's resource when the
	// controller was bound.
	source string

	state atomic.Int32

	// life is cancelled when the controller is destroyed.
	life   context.Context
	cancel context.CancelFunc

	// mu serialises mutation of the element's
	// displayed resource and the publication of
	// completed transitions.
	mu sync.Mutex
	// snapshot is the most recent freeze frame. It
	// is only set while paused with FreezeOnPause.
	snapshot string

	initialized chan struct{}
	initOnce    sync.Once
	destroyOnce sync.Once
}

// New returns a Controller bound to el. Any controller already bound to
// el is destroyed before the element's current resource is recorded as the
// controller's source. The initial transition runs asynchronously and
// completes when the element is ready; see [Controller.Initialized].
func New(el Element, opts Options, log *slog.Logger) (*Controller, error) {
	if el == nil {
		return nil, errors.New("nil element")
	}
	initial, err := opts.initialState()
	if err != nil {
		return nil, err
	}
	if el.Displayed() == "" {
		return nil, errors.New("element has no resource")
	}

	life, cancel := context.WithCancel(context.Background())
	c := &Controller{
		el:   el,
		opts: opts,
		capturer: snapshot.Capturer{
			Alloc:  opts.Alloc,
			Settle: opts.Settle,
			Log:    log,
		},
		log:         log.With(slog.String("component", "player")),
		life:        life,
		cancel:      cancel,
		initialized: make(chan struct{}),
	}
	c.state.Store(int32(Transitioning))

	if prev := el.Bind(c); prev != nil {
		c.log.LogAttrs(life, slog.LevelInfo, "destroy previous owner")
		prev.Destroy()
	}
	c.source = el.Displayed()
	if c.source == "" {
		el.Unbind(c)
		cancel()
		return nil, errors.New("element has no resource")
	}
	c.log = c.log.With(slog.Any("source", slogext.URI(c.source)))
	c.log.LogAttrs(life, slog.LevelDebug, "bound", slog.String("initial", initial.String()), slog.Bool("loop", opts.Loop), slog.Bool("freeze_on_pause", opts.FreezeOnPause))

	go func() {
		defer c.initOnce.Do(func() { close(c.initialized) })
		switch initial {
		case Playing:
			c.play(life, Paused)
		case Paused:
			c.pause(life, Paused)
		}
	}()
	return c, nil
}

// Initialized returns a channel that is closed when the initial transition
// has completed or the controller has been destroyed.
func (c *Controller) Initialized() <-chan struct{} {
	return c.initialized
}

// State returns the current playback state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// IsAnimating returns whether the controller is playing.
func (c *Controller) IsAnimating() bool {
	return c.State() == Playing
}

// Source returns the original resource locator of the element.
func (c *Controller) Source() string {
	return c.source
}

// Displayed returns the resource locator currently displayed by the
// element.
func (c *Controller) Displayed() string {
	return c.el.Displayed()
}

// Snapshot returns the freeze frame being displayed while paused, or the
// empty string if there is none.
func (c *Controller) Snapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Play starts playback from the first frame if the controller is paused.
// It is dropped if a transition is in progress.
func (c *Controller) Play(ctx context.Context) {
	if !c.state.CompareAndSwap(int32(Paused), int32(Transitioning)) {
		c.rejected(ctx, "play")
		return
	}
	c.play(ctx, Paused)
}

// Pause pauses playback if the controller is playing. It is dropped if
// a transition is in progress.
func (c *Controller) Pause(ctx context.Context) {
	if !c.state.CompareAndSwap(int32(Playing), int32(Transitioning)) {
		c.rejected(ctx, "pause")
		return
	}
	c.pause(ctx, Playing)
}

// Toggle pauses a playing controller and plays a paused controller. It
// is dropped if a transition is in progress.
func (c *Controller) Toggle(ctx context.Context) {
	switch c.State() {
	case Playing:
		c.Pause(ctx)
	case Paused:
		c.Play(ctx)
	default:
		c.rejected(ctx, "toggle")
	}
}

// Restart restarts the animation from its first frame if the controller
// is playing.
func (c *Controller) Restart(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.restartCycle(ctx, "restart") {
		c.rejected(ctx, "restart")
		return
	}
	c.log.LogAttrs(ctx, slog.LevelDebug, "restart")
}

// restartCycle reassigns the source to the element if the controller is
// playing, reporting whether it did. The transition is held for the
// duration of the reassignment. c.mu must be held.
func (c *Controller) restartCycle(ctx context.Context, op string) bool {
	if !c.state.CompareAndSwap(int32(Playing), int32(Transitioning)) {
		return false
	}
	err := c.el.Display(c.source)
	c.state.Store(int32(Playing))
	if err != nil {
		c.log.LogAttrs(ctx, slog.LevelError, op, slog.Any("error", err))
	}
	return true
}

// Destroy releases the element, restoring its original resource. It is
// safe to call Destroy more than once. All operations on a destroyed
// controller are no-ops.
func (c *Controller) Destroy() {
	c.destroyOnce.Do(func() {
		c.mu.Lock()
		prev := State(c.state.Swap(int32(Destroyed)))
		c.cancel()
		if c.el.Displayed() != c.source {
			err := c.el.Display(c.source)
			if err != nil {
				c.log.LogAttrs(c.life, slog.LevelWarn, "restore source", slog.Any("error", err))
			}
		}
		c.snapshot = ""
		c.mu.Unlock()

		c.el.Unbind(c)
		c.initOnce.Do(func() { close(c.initialized) })
		c.log.LogAttrs(c.life, slog.LevelInfo, "destroyed", slog.String("from", prev.String()))
	})
}

// Ended handles the end of an animation cycle of the element.
func (c *Controller) Ended(uri string) {
	if uri != c.source {
		return
	}
	c.mu.Lock()
	var ok bool
	if c.opts.Loop {
		ok = c.restartCycle(c.life, "loop")
	} else {
		// The element continues to show the final frame.
		ok = c.state.CompareAndSwap(int32(Playing), int32(Paused))
	}
	c.mu.Unlock()
	if !ok {
		c.log.LogAttrs(c.life, slog.LevelDebug, "ignore end", slog.String("state", c.State().String()))
		return
	}
	c.log.LogAttrs(c.life, slog.LevelDebug, "end", slog.Bool("loop", c.opts.Loop))
	c.notify(c.life, "end", c.opts.OnEnd)
}

// play completes a play transition claimed from the from state.
func (c *Controller) play(ctx context.Context, from State) {
	err := c.awaitReady(ctx)
	if err != nil {
		c.rollback(ctx, "play", from, err)
		return
	}

	c.mu.Lock()
	if c.State() == Destroyed {
		c.mu.Unlock()
		c.log.LogAttrs(ctx, slog.LevelDebug, "discard play after destroy")
		return
	}
	err = c.el.Display(c.source)
	if err != nil {
		c.mu.Unlock()
		c.rollback(ctx, "play", from, err)
		return
	}
	c.snapshot = ""
	c.state.Store(int32(Playing))
	c.mu.Unlock()

	c.log.LogAttrs(ctx, slog.LevelInfo, "play")
	c.notify(ctx, "play", c.opts.OnPlay)
}

// pause completes a pause transition claimed from the from state.
func (c *Controller) pause(ctx context.Context, from State) {
	err := c.awaitReady(ctx)
	if err != nil {
		c.rollback(ctx, "pause", from, err)
		return
	}

	var frozen string
	if c.opts.FreezeOnPause {
		frozen, err = c.capturer.Capture(ctx, c.el)
		if err != nil {
			c.log.LogAttrs(ctx, slog.LevelWarn, "capture failed, showing source", slog.Any("error", err))
			frozen = ""
		}
	}

	c.mu.Lock()
	if c.State() == Destroyed {
		c.mu.Unlock()
		c.log.LogAttrs(ctx, slog.LevelDebug, "discard pause after destroy")
		return
	}
	if c.opts.FreezeOnPause {
		uri := frozen
		if uri == "" {
			uri = c.source
		}
		// Reassigning the source would restart its animation.
		if uri != c.el.Displayed() {
			err = c.el.Display(uri)
			if err != nil {
				c.mu.Unlock()
				c.rollback(ctx, "pause", from, err)
				return
			}
		}
		c.snapshot = frozen
	}
	c.state.Store(int32(Paused))
	c.mu.Unlock()

	c.log.LogAttrs(ctx, slog.LevelInfo, "pause", slog.Bool("frozen", frozen != ""))
	c.notify(ctx, "pause", c.opts.OnPause)
}

// awaitReady waits for the element's first decode, bounded by the
// ready timeout and the controller's lifetime.
func (c *Controller) awaitReady(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(c.life, func() { cancel(errDestroyed) })
	defer stop()
	if c.opts.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, c.opts.ReadyTimeout, ErrLoadTimeout)
		defer cancel()
	}
	err := c.el.Ready().Wait(ctx)
	if err != nil {
		return context.Cause(ctx)
	}
	return nil
}

// rollback returns a failed transition to its from state unless the
// controller has been destroyed.
func (c *Controller) rollback(ctx context.Context, op string, from State, err error) {
	if !c.state.CompareAndSwap(int32(Transitioning), int32(from)) {
		c.log.LogAttrs(ctx, slog.LevelDebug, "discard failed transition", slog.String("op", op), slog.Any("error", err))
		return
	}
	c.log.LogAttrs(ctx, slog.LevelError, op, slog.String("state", from.String()), slog.Any("error", err))
}

// rejected logs an operation that was dropped or had no effect.
func (c *Controller) rejected(ctx context.Context, op string) {
	state := c.State()
	msg := "no-op"
	if state == Transitioning {
		msg = "transition rejected"
	}
	c.log.LogAttrs(ctx, slog.LevelDebug, msg, slog.String("op", op), slog.String("state", state.String()))
}

// notify calls an observer unless the controller has been destroyed.
func (c *Controller) notify(ctx context.Context, event string, fn func()) {
	if fn == nil || c.State() == Destroyed {
		return
	}
	defer func() {
		r := recover()
		if r != nil {
			c.log.LogAttrs(ctx, slog.LevelError, "observer panic", slog.String("event", event), slog.Any("panic", r))
		}
	}()
	fn()
}
