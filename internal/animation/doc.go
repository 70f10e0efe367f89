// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package animation provides animated image support.
//
// Animated resources have no seek or pause primitive. An Animator is either
// running its frame loop from the first frame or it is not running at all.
package animation

import (
	"context"
	"image"

	"golang.org/x/image/draw"
)

// Animator is an image that can animate frames.
type Animator interface {
	// Animate renders the frames into dst and calls
	// fn on each rendered frame. Animate returns nil
	// when a terminating animation completes.
	Animate(ctx context.Context, dst draw.Image, fn func(image.Image) error) error
	image.Image
}
