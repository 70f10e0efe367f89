// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"errors"
	"image"
	"image/color"
	"image/gif"
	"strings"

	"github.com/bbrks/wrap/v2"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Text is a scrolling text animator.
type Text string

// GIF returns a GIF containing animation frames required to present the full
// length of the receiver within the given bounds using [basicfont.Face7x13].
// The provided palette must have at least two colors, which will be indexed
// by fg and bg to provide the foreground and background colors for the
// text animation.
//
// Text that fits within the bounds when word wrapped is rendered as a single
// centred frame. Longer text scrolls through a single line in the middle of
// the bounds, one character per frame.
func (t Text) GIF(bound image.Rectangle, pal color.Palette, fg, bg byte) (*GIF, error) {
	face := basicfont.Face7x13
	rows := bound.Dy() / face.Height
	cols := bound.Dx() / face.Advance
	if rows < 1 || cols < 1 {
		return nil, errors.New("bound too small")
	}
	if int(fg) >= len(pal) || int(bg) >= len(pal) {
		return nil, errors.New("color index not in palette")
	}

	var frames [][]string
	wrapper := wrap.NewWrapper()
	wrapper.StripTrailingNewline = true
	wrapper.CutLongWords = true
	lines := strings.Split(wrapper.Wrap(string(t), cols), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	if len(lines) <= rows {
		frames = [][]string{lines}
	} else {
		r := []rune(strings.Repeat(" ", cols) + strings.Join(strings.Fields(string(t)), " "))
		for i := range r {
			frames = append(frames, []string{string(r[i:min(i+cols, len(r))])})
		}
	}

	g := &gif.GIF{
		Image: make([]*image.Paletted, 0, len(frames)),
		Delay: make([]int, 0, len(frames)),
		Config: image.Config{
			ColorModel: pal,
			Width:      bound.Dx(),
			Height:     bound.Dy(),
		},
		BackgroundIndex: bg,
	}
	if len(frames) == 1 {
		g.LoopCount = -1
	}
	background := &image.Uniform{pal[bg]}
	ink := &image.Uniform{pal[fg]}
	for _, lines := range frames {
		dst := image.NewPaletted(image.Rectangle{Max: bound.Size()}, pal)
		draw.Draw(dst, dst.Bounds(), background, image.Point{}, draw.Src)
		top := (dst.Bounds().Dy() - len(lines)*face.Height) / 2
		for i, l := range lines {
			d := font.Drawer{Dst: dst, Src: ink, Face: face}
			left := (dst.Bounds().Dx() - d.MeasureString(l).Round()) / 2
			if len(frames) != 1 {
				left = 0
			}
			d.Dot = fixed.P(left, top+i*face.Height+face.Ascent)
			d.DrawString(l)
		}
		g.Image = append(g.Image, dst)
		g.Delay = append(g.Delay, 15)
	}
	return &GIF{GIF: g}, nil
}
