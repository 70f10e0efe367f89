// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package snapshot captures the currently rendered frame of a visual
// element as a static PNG data URI.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/image/draw"

	"github.com/kortschak/still/internal/datauri"
)

var (
	// ErrZeroSize is the cause of a capture failure when the
	// source has no intrinsic size.
	ErrZeroSize = errors.New("zero intrinsic size")
	// ErrNoFrame is returned by a Source's DrawTo method when
	// it has no rendered frame to draw.
	ErrNoFrame = errors.New("no frame")
)

// DefaultSettle is the default bound on waiting for a freshly assigned
// resource to render before capture.
const DefaultSettle = 250 * time.Millisecond

// Source is a rendered visual resource.
type Source interface {
	// NaturalSize returns the intrinsic pixel dimensions
	// of the resource.
	NaturalSize() image.Point
	// DrawTo draws the currently rendered frame into dst.
	DrawTo(dst draw.Image) error
	// Rendered returns a channel that is closed when the
	// current resource has rendered its first frame.
	Rendered() <-chan struct{}
}

// CaptureError is the error returned when a capture fails.
type CaptureError struct {
	// Op is the failed capture step: one of "settle",
	// "size", "alloc", "draw" or "encode".
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Capturer captures frames from a Source.
type Capturer struct {
	// Alloc allocates the raster surface for a capture.
	// If Alloc is nil, an *image.RGBA is allocated.
	Alloc func(image.Rectangle) (draw.Image, error)

	// Settle is the longest time to wait for the source
	// to render before capturing. If Settle is zero,
	// DefaultSettle is used. A negative Settle does not
	// wait.
	Settle time.Duration

	// Log is the capture logger. If it is nil, no logging
	// is performed.
	Log *slog.Logger
}

// Capture returns a PNG data URI of the frame currently rendered by src.
// The raster surface is sized to the natural size of src and is not
// retained. Errors are returned as *CaptureError.
func (c *Capturer) Capture(ctx context.Context, src Source) (uri string, err error) {
	err = c.settle(ctx, src)
	if err != nil {
		return "", &CaptureError{Op: "settle", Err: err}
	}

	size := src.NaturalSize()
	if size.X <= 0 || size.Y <= 0 {
		return "", &CaptureError{Op: "size", Err: fmt.Errorf("%w: %v", ErrZeroSize, size)}
	}
	rect := image.Rectangle{Max: size}
	alloc := c.Alloc
	if alloc == nil {
		alloc = newRGBA
	}
	dst, err := alloc(rect)
	if err == nil && dst == nil {
		err = errors.New("nil surface")
	}
	if err != nil {
		return "", &CaptureError{Op: "alloc", Err: err}
	}

	err = protect(func() error { return src.DrawTo(dst) })
	if err != nil {
		return "", &CaptureError{Op: "draw", Err: err}
	}
	err = protect(func() error {
		uri, err = datauri.EncodePNG(dst)
		return err
	})
	if err != nil {
		return "", &CaptureError{Op: "encode", Err: err}
	}
	c.debug(ctx, "captured", slog.Int("width", size.X), slog.Int("height", size.Y), slog.Int("length", len(uri)))
	return uri, nil
}

// settle waits for src to render, for at most c.Settle.
func (c *Capturer) settle(ctx context.Context, src Source) error {
	d := c.Settle
	if d == 0 {
		d = DefaultSettle
	}
	rendered := src.Rendered()
	if d < 0 {
		return ctx.Err()
	}
	select {
	case <-rendered:
		return nil
	default:
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-rendered:
	case <-timer.C:
		c.debug(ctx, "settle expired", slog.Duration("settle", d))
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (c *Capturer) debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	if c.Log == nil {
		return
	}
	c.Log.LogAttrs(ctx, slog.LevelDebug, msg, attrs...)
}

func newRGBA(r image.Rectangle) (draw.Image, error) {
	return image.NewRGBA(r), nil
}

// protect calls fn, converting a panic into an error.
func protect(fn func() error) (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
