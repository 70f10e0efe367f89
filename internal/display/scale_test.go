// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package display

import (
	"image"
	"image/color"
	"testing"
)

var fitTests = []struct {
	dst, src image.Rectangle
	want     image.Rectangle
}{
	{
		dst:  image.Rect(0, 0, 72, 72),
		src:  image.Rect(0, 0, 300, 300),
		want: image.Rect(0, 0, 72, 72),
	},
	{
		dst:  image.Rect(0, 0, 72, 72),
		src:  image.Rect(0, 0, 300, 200),
		want: image.Rect(0, 12, 72, 60),
	},
	{
		dst:  image.Rect(0, 0, 72, 72),
		src:  image.Rect(0, 0, 200, 300),
		want: image.Rect(12, 0, 60, 72),
	},
	{
		dst:  image.Rect(10, 10, 82, 82),
		src:  image.Rect(0, 0, 30, 20),
		want: image.Rect(10, 22, 82, 70),
	},
	{
		dst:  image.Rect(0, 0, 96, 72),
		src:  image.Rect(0, 0, 300, 200),
		want: image.Rect(0, 4, 96, 68),
	},
	{
		dst:  image.Rect(0, 0, 72, 72),
		src:  image.Rect(0, 0, 0, 20),
		want: image.Rect(0, 0, 0, 0),
	},
}

func TestFit(t *testing.T) {
	for _, test := range fitTests {
		got := fit(test.dst, test.src)
		if got != test.want {
			t.Errorf("unexpected fit of %v in %v: got:%v want:%v", test.src, test.dst, got, test.want)
		}
	}
}

func TestLetterbox(t *testing.T) {
	bounds := image.Rect(0, 0, 72, 72)

	same := image.NewRGBA(bounds)
	if got := letterbox(same, bounds); got != image.Image(same) {
		t.Error("image with matching size was not returned unaltered")
	}

	src := image.NewUniform(color.RGBA{R: 0xff, A: 0xff})
	wide := &sized{Uniform: src, bounds: image.Rect(0, 0, 300, 200)}
	got := letterbox(wide, bounds)
	if got.Bounds() != bounds {
		t.Fatalf("unexpected bounds: got:%v want:%v", got.Bounds(), bounds)
	}
	for _, p := range []struct {
		pt   image.Point
		want color.RGBA
	}{
		{pt: image.Pt(36, 2), want: color.RGBA{A: 0xff}},
		{pt: image.Pt(36, 36), want: color.RGBA{R: 0xff, A: 0xff}},
		{pt: image.Pt(36, 69), want: color.RGBA{A: 0xff}},
	} {
		if c := color.RGBAModel.Convert(got.At(p.pt.X, p.pt.Y)); c != p.want {
			t.Errorf("unexpected color at %v: got:%v want:%v", p.pt, c, p.want)
		}
	}
}

type sized struct {
	*image.Uniform
	bounds image.Rectangle
}

func (s *sized) Bounds() image.Rectangle { return s.bounds }
