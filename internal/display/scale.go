// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package display

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// fit returns the largest rectangle centred in dst that has the aspect
// ratio of src. It can be used in a call to a draw.Scaler:
//
//	draw.BiLinear.Scale(dst, fit(dst.Bounds(), src.Bounds()), src, src.Bounds(), op, opts)
func fit(dst, src image.Rectangle) image.Rectangle {
	dx, dy := src.Dx(), src.Dy()
	if dx == 0 || dy == 0 {
		return image.Rectangle{Min: dst.Min, Max: dst.Min}
	}
	// Compare dx/dy with dst.Dx()/dst.Dy() without division.
	switch l, r := dx*dst.Dy(), dy*dst.Dx(); {
	case l < r:
		dx, dy = dx*dst.Dy()/dy, dst.Dy()
	case l > r:
		dx, dy = dst.Dx(), dy*dst.Dx()/dx
	default:
		return dst
	}
	offset := dst.Min.Add(image.Point{X: (dst.Dx() - dx) / 2, Y: (dst.Dy() - dy) / 2})
	return image.Rectangle{Max: image.Point{X: dx, Y: dy}}.Add(offset)
}

// letterbox returns img scaled to fit within bounds, preserving its aspect
// ratio and filling the margins with black. If img already has the size of
// bounds it is returned unaltered.
func letterbox(img image.Image, bounds image.Rectangle) image.Image {
	if img.Bounds().Size() == bounds.Size() {
		return img
	}
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.BiLinear.Scale(dst, fit(bounds, img.Bounds()), img, img.Bounds(), draw.Src, nil)
	return dst
}
