// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package display

import (
	"image"
	"sync"

	"golang.org/x/image/draw"
)

// Recorder is an in-memory Sink. It retains a copy of the last image
// rendered to it.
type Recorder struct {
	bounds image.Rectangle

	mu    sync.Mutex
	last  *image.RGBA
	count int
}

// NewRecorder returns a Recorder with the given display bounds.
func NewRecorder(bounds image.Rectangle) *Recorder {
	return &Recorder{bounds: bounds}
}

// SetImage records a copy of img.
func (r *Recorder) SetImage(img image.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := img.Bounds()
	if r.last == nil || r.last.Bounds() != b {
		r.last = image.NewRGBA(b)
	}
	draw.Copy(r.last, b.Min, img, b, draw.Src, nil)
	r.count++
	return nil
}

// Bounds returns the recorder's display bounds.
func (r *Recorder) Bounds() image.Rectangle {
	return r.bounds
}

// Last returns a copy of the last image rendered to the recorder and the
// number of images rendered. If no image has been rendered, the returned
// image is nil.
func (r *Recorder) Last() (image.Image, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil, r.count
	}
	img := image.NewRGBA(r.last.Bounds())
	copy(img.Pix, r.last.Pix)
	return img, r.count
}
