// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"io"
	"time"

	"golang.org/x/image/draw"
)

// IsGIF returns whether the data held by r is a GIF image.
func IsGIF(r ReadPeeker) bool {
	return hasMagic("GIF8?a", r)
}

// ReadPeeker is an io.Reader that can also peek n bytes ahead.
type ReadPeeker interface {
	io.Reader
	Peek(n int) ([]byte, error)
}

// AsReadPeeker converts an io.Reader to a ReadPeeker.
func AsReadPeeker(r io.Reader) ReadPeeker {
	if r, ok := r.(ReadPeeker); ok {
		return r
	}
	return bufio.NewReader(r)
}

// hasMagic returns whether r starts with the provided magic bytes.
func hasMagic(magic string, r ReadPeeker) bool {
	b, err := r.Peek(len(magic))
	if err != nil || len(b) != len(magic) {
		return false
	}
	for i, c := range b {
		if magic[i] != c && magic[i] != '?' {
			return false
		}
	}
	return true
}

// GIF is an animated GIF.
//
// The GIF [image.Image] implementation is conditional on whether an animation
// has completed. If the last animation ran to completion the last frame is
// used, otherwise the first frame is used. GIF animations that terminate
// should ensure that the final frame is a complete renderable image.
//
// GIF pointer values must not be shared between goroutines. It is safe to
// share the backing gif.GIF, so if a GIF is to be used concurrently, each
// goroutine should have a pointer to a copy of a parent concrete GIF value.
type GIF struct {
	*gif.GIF

	// complete indicates that the last animation was
	// not terminated.
	complete bool
}

// DecodeGIF returns a [GIF] or [image.Paletted] decoded from the provided
// io.Reader. If the GIF data encodes a single frame, the image returned is
// the frame, otherwise a GIF is returned. When the result is a GIF, GIF delay,
// disposal and global background index values are checked for validity.
func DecodeGIF(r io.Reader) (image.Image, error) {
	g, err := gif.DecodeAll(r)
	if err != nil {
		return nil, err
	}
	if len(g.Image) == 1 {
		return g.Image[0], nil
	}
	if len(g.Image) != len(g.Delay) && g.Delay != nil {
		return nil, fmt.Errorf("mismatched image count and delay count: %d != %d", len(g.Image), len(g.Delay))
	}
	if len(g.Image) != len(g.Disposal) && g.Disposal != nil {
		return nil, fmt.Errorf("mismatched image count and disposal count: %d != %d", len(g.Image), len(g.Disposal))
	}
	pal, ok := g.Config.ColorModel.(color.Palette)
	if idx := int(g.BackgroundIndex); ok && idx >= len(pal) {
		return nil, fmt.Errorf("global background colour index not in palette: %d", idx)
	}
	return &GIF{GIF: g}, nil
}

// Cycle returns a copy of the receiver that runs through its frames exactly
// once when animated.
func (img *GIF) Cycle() *GIF {
	c := *img
	c.LoopCount = -1
	c.complete = false
	return &c
}

// Size returns the natural size of the animation. This is the logical screen
// size of the GIF if it is set, otherwise the union of all frame bounds.
func (img *GIF) Size() image.Point {
	if img.Config.Width > 0 && img.Config.Height > 0 {
		return image.Point{X: img.Config.Width, Y: img.Config.Height}
	}
	var r image.Rectangle
	for _, f := range img.Image {
		r = r.Union(f.Bounds())
	}
	return r.Max
}

// ColorModel implements the image.Image interface. If the GIF has a global
// color table, its color model is returned, otherwise the first or last frame's
// model is used.
func (img *GIF) ColorModel() color.Model {
	if img.Config.ColorModel != nil {
		return img.Config.ColorModel
	}
	return img.GIF.Image[img.frame()].ColorModel()
}

// Bounds implements the image.Image interface.
func (img *GIF) Bounds() image.Rectangle {
	return img.GIF.Image[img.frame()].Bounds()
}

// At implements the image.Image interface.
func (img *GIF) At(x, y int) color.Color {
	return img.GIF.Image[img.frame()].At(x, y)
}

func (img *GIF) frame() int {
	if img.complete {
		return len(img.Image) - 1
	}
	return 0
}

const (
	restoreBackground = 2
	restorePrevious   = 3
)

// Animate renders the receiver's frames into dst and calls fn on each
// rendered frame. The frames are drawn in their position on the GIF's
// logical screen, so dst should have bounds with a zero origin and the
// size returned by Size.
func (img *GIF) Animate(ctx context.Context, dst draw.Image, fn func(image.Image) error) error {
	img.complete = false
	var background image.Image
	pal, ok := img.Config.ColorModel.(color.Palette)
	if idx := int(img.BackgroundIndex); ok {
		background = &image.Uniform{pal[idx]}
	}

	loopCount := img.LoopCount
	if loopCount <= 0 {
		loopCount = -loopCount - 1
	}
	for i := 0; i <= loopCount || loopCount == -1; i++ {
		for f, frame := range img.Image {
			var restore *image.Paletted
			if img.Disposal != nil && img.Disposal[f] == restorePrevious {
				restore = image.NewPaletted(frame.Bounds(), frame.Palette)
				draw.Copy(restore, frame.Bounds().Min, dst, frame.Bounds(), draw.Src, nil)
			}
			draw.Copy(dst, frame.Bounds().Min, frame, frame.Bounds(), draw.Over, nil)
			if err := ctx.Err(); err != nil {
				return err
			}
			err := fn(dst)
			if err != nil {
				return err
			}
			err = wait(ctx, img.delay(f))
			if err != nil {
				return err
			}
			if img.Disposal != nil {
				switch img.Disposal[f] {
				case restoreBackground:
					if background == nil {
						if idx := int(img.BackgroundIndex); idx < len(frame.Palette) {
							background = &image.Uniform{frame.Palette[idx]}
						} else {
							background = image.Transparent
						}
					}
					draw.Copy(dst, frame.Bounds().Min, background, frame.Bounds(), draw.Src, nil)
				case restorePrevious:
					draw.Copy(dst, frame.Bounds().Min, restore, restore.Bounds(), draw.Src, nil)
				}
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	img.complete = true
	return nil
}

// delay returns the display duration of frame f.
func (img *GIF) delay(f int) time.Duration {
	if img.Delay == nil {
		return 0
	}
	return 10 * time.Duration(img.Delay[f]) * time.Millisecond
}

// wait waits for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	delay := time.NewTimer(d)
	select {
	case <-ctx.Done():
		delay.Stop()
		return ctx.Err()
	case <-delay.C:
		return nil
	}
}
