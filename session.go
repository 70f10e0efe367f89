// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/kortschak/still/internal/config"
	"github.com/kortschak/still/internal/control"
	"github.com/kortschak/still/internal/display"
	"github.com/kortschak/still/internal/player"
	"github.com/kortschak/still/internal/slogext"
	"github.com/kortschak/still/internal/state"
)

// session holds the controller currently bound to the element.
type session struct {
	el    *display.Element
	store *state.DB
	log   *slog.Logger

	mu   sync.Mutex
	ctrl *player.Controller
	cfg  *config.Config
}

// bind binds a new controller configured by cfg to the element, replacing
// any existing controller. If the configured source differs from the
// current controller's source, the element is given the new source once
// the current controller has been destroyed.
func (s *session) bind(ctx context.Context, cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl != nil && s.ctrl.Source() != cfg.Element.Source {
		s.ctrl.Destroy()
		s.ctrl = nil
		err := s.el.Display(cfg.Element.Source)
		if err != nil {
			return err
		}
	}
	ctrl, err := player.New(s.el, s.options(ctx, cfg), s.log)
	if err != nil {
		if s.ctrl != nil && s.ctrl.State() == player.Destroyed {
			// The failed binding has already replaced the
			// previous controller.
			s.ctrl = nil
		}
		return err
	}
	s.ctrl = ctrl
	s.cfg = cfg
	return nil
}

// options returns the player options for cfg. When the configuration asks
// for remembered state, a recorded state for the same element and source
// takes precedence over the configured initial state.
func (s *session) options(ctx context.Context, cfg *config.Config) player.Options {
	p := cfg.Player
	opts := player.Options{
		Autoplay:      *p.Autoplay,
		Loop:          *p.Loop,
		FreezeOnPause: *p.FreezeOnPause,
		InitialState:  p.InitialState,
		ReadyTimeout:  time.Duration(*p.ReadyTimeout),
		Settle:        time.Duration(*p.Settle),
	}
	if s.store == nil {
		return opts
	}
	name, source := cfg.Element.Name, cfg.Element.Source
	if p.Remember {
		rec, err := s.store.Get(name)
		switch {
		case err == nil:
			if rec.Source == source {
				s.log.LogAttrs(ctx, slog.LevelInfo, "restore state", slog.String("element", name), slog.String("state", rec.State), slog.Time("updated", rec.Updated))
				opts.InitialState = rec.State
			}
		case errors.Is(err, state.ErrNotFound):
			s.log.LogAttrs(ctx, slog.LevelDebug, "no recorded state", slog.String("element", name))
		default:
			s.log.LogAttrs(ctx, slog.LevelWarn, "get state", slog.String("element", name), slog.Any("error", err))
		}
	}
	record := func(st string) func() {
		return func() {
			err := s.store.Set(name, source, st)
			if err != nil {
				s.log.LogAttrs(ctx, slog.LevelWarn, "record state", slog.String("element", name), slog.String("state", st), slog.Any("error", err))
			}
		}
	}
	opts.OnPlay = record("play")
	opts.OnPause = record("pause")
	if !opts.Loop {
		// A non-looping animation pauses at its end.
		opts.OnEnd = record("pause")
	}
	return opts
}

// apply applies a configuration change to the session.
func (s *session) apply(ctx context.Context, ch config.Change) {
	switch {
	case ch.Err != nil:
		s.log.LogAttrs(ctx, slog.LevelWarn, "config change error", slog.Any("error", ch.Err))
		return
	case ch.Config == nil:
		s.log.LogAttrs(ctx, slog.LevelWarn, "config removed", slog.String("name", ch.Event.Name))
		return
	}

	s.mu.Lock()
	prev := s.cfg
	s.mu.Unlock()
	cfg := ch.Config
	if cfg.Element.Name != s.el.Name() {
		s.log.LogAttrs(ctx, slog.LevelWarn, "element name change requires restart", slog.String("element", s.el.Name()), slog.String("new", cfg.Element.Name))
		return
	}
	if prev != nil {
		if cfg.Element.DataDir != prev.Element.DataDir {
			s.log.LogAttrs(ctx, slog.LevelWarn, "data directory change requires restart", slog.String("data_dir", prev.Element.DataDir), slog.String("new", cfg.Element.DataDir))
		}
		if !reflect.DeepEqual(cfg.Device, prev.Device) {
			s.log.LogAttrs(ctx, slog.LevelWarn, "device change requires restart")
		}
	}
	s.log.LogAttrs(ctx, slog.LevelInfo, "rebind", slog.Any("source", slogext.URI(cfg.Element.Source)), slog.Any("sum", slogext.Stringer{Stringer: cfg.Sum}))
	err := s.bind(ctx, cfg)
	if err != nil {
		s.log.LogAttrs(ctx, slog.LevelError, "rebind", slog.Any("error", err))
	}
}

// current returns the bound controller as a control.Session, or nil if
// no controller is bound.
func (s *session) current() control.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl == nil || s.ctrl.State() == player.Destroyed {
		return nil
	}
	return controlled{Controller: s.ctrl, el: s.el}
}

// wait waits for the bound controller's initial transition.
func (s *session) wait(ctx context.Context) {
	s.mu.Lock()
	ctrl := s.ctrl
	s.mu.Unlock()
	if ctrl == nil {
		return
	}
	select {
	case <-ctrl.Initialized():
	case <-ctx.Done():
	}
}

// forget deletes the recorded playback state of the element.
func (s *session) forget(ctx context.Context) error {
	if s.store == nil {
		return errNoStore
	}
	err := s.store.Delete(s.el.Name())
	if err != nil {
		return err
	}
	s.log.LogAttrs(ctx, slog.LevelInfo, "forget state", slog.String("element", s.el.Name()))
	return nil
}

// keyControl returns the key press and release handlers for the
// configured key control mode. Handlers run the controller operations
// on their own goroutine so that key watching is not blocked while a
// transition waits for the element.
func (s *session) keyControl(mode string) (press, release func(context.Context, time.Time)) {
	op := func(do func(control.Session, context.Context)) func(context.Context, time.Time) {
		return func(ctx context.Context, _ time.Time) {
			sess := s.current()
			if sess == nil {
				return
			}
			go do(sess, ctx)
		}
	}
	switch mode {
	case "toggle":
		return op(control.Session.Toggle), nil
	case "hold":
		return op(control.Session.Play), op(control.Session.Pause)
	default:
		return nil, nil
	}
}

// destroy destroys the bound controller.
func (s *session) destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl == nil {
		return
	}
	s.ctrl.Destroy()
	s.ctrl = nil
}

// controlled is a controller bound to an element.
type controlled struct {
	*player.Controller
	el *display.Element
}

func (c controlled) Status() control.Status {
	return control.StatusOf(c.Controller, c.el.Name(), c.el.Frames())
}
