// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package display provides the visual element that playback is bound to.
//
// An Element holds the resource locator it currently displays. Each
// assignment of a locator decodes the resource and, for animated resources,
// runs exactly one cycle of its frames from the first frame, rendering each
// frame to a Sink. There is no way to pause or seek a running cycle; the
// only control is to assign a new locator.
package display

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/image/draw"

	"github.com/kortschak/still/internal/animation"
	"github.com/kortschak/still/internal/datauri"
	"github.com/kortschak/still/internal/gate"
	"github.com/kortschak/still/internal/slogext"
	"github.com/kortschak/still/internal/snapshot"
)

// ErrClosed is returned by Display when the element has been closed.
var ErrClosed = errors.New("element closed")

// Owner is the single owner of an element's displayed resource.
type Owner interface {
	// Destroy releases the element. It is called when a new
	// owner is bound in place of the receiver.
	Destroy()
	// Ended is called when an animated resource assigned
	// with uri has completed a full cycle of its frames.
	Ended(uri string)
}

// Sink is a rendering destination for an element's frames.
type Sink interface {
	// SetImage renders img. The image must not be retained
	// after SetImage returns.
	SetImage(img image.Image) error
	// Bounds returns the display bounds of the sink. Text
	// and color resources are rendered to these bounds.
	Bounds() image.Rectangle
}

// Element is a visual element displaying a single resource.
type Element struct {
	name    string
	sink    Sink
	datadir string
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// ready is opened when the first assigned
	// resource has been decoded.
	ready *gate.Gate

	// mu protects the fields below.
	mu              sync.Mutex
	uri             string
	generation      uint64
	cancelAnimation context.CancelFunc // last cancellable animation cancellation.
	rendered        chan struct{}
	size            image.Point
	frame           *image.RGBA
	owner           Owner
	closed          bool

	// dMu protects drawing operations.
	dMu sync.Mutex

	frames atomic.Int64
}

// New returns a new Element rendering to sink. Image files named by
// text/filename locators are opened relative to datadir.
func New(ctx context.Context, name string, sink Sink, datadir string, log *slog.Logger) *Element {
	ctx, cancel := context.WithCancel(ctx)
	rendered := make(chan struct{})
	close(rendered)
	return &Element{
		name:     name,
		sink:     sink,
		datadir:  datadir,
		log:      log.With(slog.String("component", "display"), slog.String("element", name)),
		ctx:      ctx,
		cancel:   cancel,
		ready:    gate.New(),
		rendered: rendered,
	}
}

// Name returns the element's name.
func (e *Element) Name() string {
	return e.name
}

// Display assigns uri as the element's displayed resource. Every
// assignment, including reassignment of the currently displayed locator,
// cancels any running animation and decodes the resource afresh, so
// animated resources always start from their first frame.
func (e *Element) Display(uri string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.cancelAnimation != nil {
		e.cancelAnimation()
	}
	e.generation++
	e.uri = uri
	e.rendered = make(chan struct{})
	var ctx context.Context
	ctx, e.cancelAnimation = context.WithCancel(e.ctx)
	e.log.LogAttrs(ctx, slog.LevelDebug, "display", slog.Any("uri", slogext.URI(uri)), slog.Uint64("generation", e.generation))
	go e.run(ctx, e.generation, uri, e.rendered)
	return nil
}

// run decodes and renders the resource assigned as generation gen.
func (e *Element) run(ctx context.Context, gen uint64, uri string, rendered chan struct{}) {
	var once sync.Once
	done := func() { once.Do(func() { close(rendered) }) }
	defer done()

	if e.render(ctx, gen, uri, done) {
		e.ended(gen, uri)
	}
}

// render renders the resource and reports whether an animation
// ran to the end of its cycle.
func (e *Element) render(ctx context.Context, gen uint64, uri string, done func()) (ended bool) {
	e.dMu.Lock()
	defer e.dMu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	bounds := e.sink.Bounds()
	img, err := datauri.Decode(bounds, uri, e.datadir)
	if err != nil {
		e.log.LogAttrs(ctx, slog.LevelWarn, "decode", slog.Any("uri", slogext.URI(uri)), slog.Any("error", err))
		if img == nil {
			blank := image.NewRGBA(bounds)
			draw.Draw(blank, bounds, image.Black, image.Point{}, draw.Src)
			img = blank
		}
	}
	size := img.Bounds().Size()
	if g, ok := img.(*animation.GIF); ok {
		size = g.Size()
	}

	e.mu.Lock()
	current := gen == e.generation
	if current {
		e.size = size
	}
	e.mu.Unlock()
	// A failed decode still counts as ready.
	e.ready.Open()
	if !current {
		return false
	}

	switch img := img.(type) {
	case *animation.GIF:
		dst := image.NewRGBA(image.Rectangle{Max: size})
		err = img.Cycle().Animate(ctx, dst, func(frame image.Image) error {
			if !e.setFrame(gen, frame) {
				return context.Canceled
			}
			err := e.sink.SetImage(frame)
			e.frames.Add(1)
			done()
			if err != nil {
				return err
			}
			return ctx.Err()
		})
		switch {
		case err == nil:
			return true
		case errors.Is(err, context.Canceled):
		default:
			e.log.LogAttrs(ctx, slog.LevelError, "animation", slog.Any("uri", slogext.URI(uri)), slog.Any("error", err))
		}
	default:
		if !e.setFrame(gen, img) {
			return false
		}
		err = e.sink.SetImage(img)
		e.frames.Add(1)
		if err != nil {
			e.log.LogAttrs(ctx, slog.LevelError, "set image", slog.Any("uri", slogext.URI(uri)), slog.Any("error", err))
		}
	}
	return false
}

// setFrame records img as the current frame if gen is the current
// generation and the element is open.
func (e *Element) setFrame(gen uint64, img image.Image) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation || e.closed {
		return false
	}
	b := img.Bounds()
	if e.frame == nil || e.frame.Bounds() != b {
		e.frame = image.NewRGBA(b)
	}
	draw.Copy(e.frame, b.Min, img, b, draw.Src, nil)
	return true
}

// ended notifies the owner that the animation assigned as generation
// gen has completed its cycle.
func (e *Element) ended(gen uint64, uri string) {
	e.mu.Lock()
	owner := e.owner
	current := gen == e.generation && !e.closed
	e.mu.Unlock()
	if !current || owner == nil {
		return
	}
	e.log.LogAttrs(e.ctx, slog.LevelDebug, "cycle ended", slog.Any("uri", slogext.URI(uri)))
	owner.Ended(uri)
}

// Displayed returns the currently assigned resource locator.
func (e *Element) Displayed() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.uri
}

// Ready returns the gate that is opened when the element has completed
// its first decode.
func (e *Element) Ready() *gate.Gate {
	return e.ready
}

// Rendered returns a channel that is closed when the first frame of the
// current assignment has been rendered, or rendering of the assignment
// has been abandoned.
func (e *Element) Rendered() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rendered
}

// NaturalSize returns the intrinsic pixel dimensions of the most recently
// decoded resource. It is the zero point before the first decode.
func (e *Element) NaturalSize() image.Point {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.size
}

// DrawTo draws the currently rendered frame into dst, aligned at the
// origins of the frame and dst. If no frame has been rendered, it returns
// [snapshot.ErrNoFrame].
func (e *Element) DrawTo(dst draw.Image) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.frame == nil {
		return snapshot.ErrNoFrame
	}
	b := e.frame.Bounds()
	draw.Copy(dst, dst.Bounds().Min, e.frame, b, draw.Src, nil)
	return nil
}

// Frames returns the number of frames rendered to the element's sink.
func (e *Element) Frames() int64 {
	return e.frames.Load()
}

// Bind makes o the owner of the element, returning the previous owner.
// The caller is responsible for destroying the previous owner.
func (e *Element) Bind(o Owner) (prev Owner) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev, e.owner = e.owner, o
	return prev
}

// Unbind releases the element if it is owned by o.
func (e *Element) Unbind(o Owner) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.owner == o {
		e.owner = nil
	}
}

// Close stops any running animation and waits for rendering to finish.
// Subsequent calls to Display return ErrClosed.
func (e *Element) Close() error {
	e.mu.Lock()
	e.closed = true
	e.owner = nil
	e.mu.Unlock()
	e.cancel()
	e.dMu.Lock()
	e.dMu.Unlock()
	return nil
}
