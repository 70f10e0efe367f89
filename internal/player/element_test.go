// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package player

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"testing"
	"time"

	"github.com/kortschak/still/internal/datauri"
	"github.com/kortschak/still/internal/display"
)

// gifURI returns a data URI holding a w×h GIF with n frames of
// cycling colors, each shown for delay hundredths of a second.
func gifURI(t *testing.T, w, h, n, delay int) string {
	t.Helper()
	pal := color.Palette{
		color.RGBA{R: 0xff, A: 0xff},
		color.RGBA{G: 0xff, A: 0xff},
		color.RGBA{B: 0xff, A: 0xff},
	}
	g := &gif.GIF{Config: image.Config{Width: w, Height: h, ColorModel: pal}}
	for i := 0; i < n; i++ {
		img := image.NewPaletted(image.Rect(0, 0, w, h), pal)
		for j := range img.Pix {
			img.Pix[j] = uint8(i % len(pal))
		}
		g.Image = append(g.Image, img)
		g.Delay = append(g.Delay, delay)
	}
	var buf bytes.Buffer
	err := gif.EncodeAll(&buf, g)
	if err != nil {
		t.Fatalf("failed to encode gif: %v", err)
	}
	return datauri.Encode("image/gif", buf.Bytes())
}

func TestDisplayElement(t *testing.T) {
	log, _ := newLogger(t)
	rec := display.NewRecorder(image.Rect(0, 0, 72, 72))
	el := display.New(context.Background(), "gopher", rec, t.TempDir(), log)
	defer el.Close()

	src := gifURI(t, 300, 200, 3, 1)
	err := el.Display(src)
	if err != nil {
		t.Fatalf("unexpected error displaying source: %v", err)
	}

	ends := make(chan struct{}, 100)
	opts := DefaultOptions()
	opts.InitialState = "play"
	opts.OnEnd = func() { ends <- struct{}{} }
	c, err := New(el, opts, log)
	if err != nil {
		t.Fatalf("unexpected error creating controller: %v", err)
	}
	defer c.Destroy()
	initialized(t, c)
	if c.State() != Playing {
		t.Fatalf("unexpected state: got:%v want:%v", c.State(), Playing)
	}

	// Looping restarts the cycle at each end.
	for i := 0; i < 2; i++ {
		select {
		case <-ends:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for end of cycle %d", i)
		}
	}
	if c.State() != Playing {
		t.Errorf("unexpected state after loop: got:%v want:%v", c.State(), Playing)
	}

	ctx := context.Background()
	c.Pause(ctx)
	frozen := c.Displayed()
	if !isSnapshot(frozen) {
		t.Fatalf("expected frozen frame after pause: %.40q", frozen)
	}
	img, err := datauri.Decode(image.Rect(0, 0, 72, 72), frozen, "")
	if err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if got, want := img.Bounds().Size(), image.Pt(300, 200); got != want {
		t.Errorf("unexpected snapshot size: got:%v want:%v", got, want)
	}
	select {
	case <-el.Rendered():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot render")
	}
	if got, want := el.NaturalSize(), image.Pt(300, 200); got != want {
		t.Errorf("unexpected natural size of snapshot: got:%v want:%v", got, want)
	}

	c.Play(ctx)
	if got := c.Displayed(); got != src {
		t.Errorf("source not displayed after play: %.40q", got)
	}

	c.Destroy()
	if got := el.Displayed(); got != src {
		t.Errorf("source not restored after destroy: %.40q", got)
	}
}
