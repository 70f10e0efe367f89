// Copyright ©2026 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package datauri

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kortschak/still/internal/animation"
)

var parseTests = []struct {
	uri     string
	want    URI
	wantErr error
}{
	{
		uri:  "data:text/plain,message",
		want: URI{Type: "text", MediaType: "text/plain", Data: "message"},
	},
	{
		uri:  "data:text/plain;fg=black;bg=%23ffff00,message",
		want: URI{Type: "text", MediaType: "text/plain", Params: map[string]string{"fg": "black", "bg": "#ffff00"}, Data: "message"},
	},
	{
		uri:  "data:text/filename,gopher.gif",
		want: URI{Type: "text", MediaType: "text/filename", Data: "gopher.gif"},
	},
	{
		uri:  "data:image/png;base64,iVBORw0K",
		want: URI{Type: "image", MediaType: "image/png", Encoding: "base64", Data: "iVBORw0K"},
	},
	{
		uri:  "data:image/*;base64,R0lGOD",
		want: URI{Type: "image", MediaType: "image/*", Encoding: "base64", Data: "R0lGOD"},
	},
	{
		uri:  "data:image/color;name,red",
		want: URI{Type: "image", MediaType: "image/color", Encoding: "name", Data: "red"},
	},
	{
		uri:     "http://example.com/gopher.gif",
		wantErr: errors.New("invalid scheme: http://example.com/gopher.gif"),
	},
	{
		uri:     "data:image/png;hex,00",
		wantErr: errors.New("invalid encoding in image uri: data:image/png;hex,00"),
	},
	{
		uri:     "data:video/mp4;base64,AAAA",
		wantErr: errors.New("unknown mime type: data:video/mp4;base64,AAAA"),
	},
	{
		uri:     "data:text/plain",
		wantErr: errors.New("invalid data uri: data:text/plain"),
	},
}

func TestParse(t *testing.T) {
	for _, test := range parseTests {
		t.Run(test.uri, func(t *testing.T) {
			got, err := Parse(test.uri)
			if !sameError(err, test.wantErr) {
				t.Fatalf("unexpected error: got:%v want:%v", err, test.wantErr)
			}
			if err != nil {
				return
			}
			if !cmp.Equal(test.want, got) {
				t.Errorf("unexpected result:\n--- want:\n+++ got:\n%s", cmp.Diff(test.want, got))
			}
		})
	}
}

func TestDecode(t *testing.T) {
	rect := image.Rect(0, 0, 72, 72)
	dir := t.TempDir()

	var buf bytes.Buffer
	pal := color.Palette{color.Black, color.White}
	anim := &gif.GIF{Config: image.Config{ColorModel: pal, Width: 8, Height: 8}}
	for i := 0; i < 2; i++ {
		f := image.NewPaletted(image.Rect(0, 0, 8, 8), pal)
		f.Pix[0] = uint8(i)
		anim.Image = append(anim.Image, f)
		anim.Delay = append(anim.Delay, 1)
	}
	err := gif.EncodeAll(&buf, anim)
	if err != nil {
		t.Fatalf("unexpected error encoding gif: %v", err)
	}
	err = os.WriteFile(filepath.Join(dir, "anim.gif"), buf.Bytes(), 0o644)
	if err != nil {
		t.Fatalf("unexpected error writing gif: %v", err)
	}

	still := image.NewRGBA(image.Rect(0, 0, 5, 7))
	pngURI, err := EncodePNG(still)
	if err != nil {
		t.Fatalf("unexpected error encoding png: %v", err)
	}
	if !strings.HasPrefix(pngURI, "data:image/png;base64,") {
		t.Fatalf("unexpected png data uri prefix: %.30s", pngURI)
	}

	for _, test := range []struct {
		name     string
		uri      string
		wantType string
		wantSize image.Point
		wantErr  error
	}{
		{
			name:     "text",
			uri:      "data:text/plain,message",
			wantType: "*image.Paletted",
			wantSize: image.Pt(72, 72),
		},
		{
			name:     "long_text",
			uri:      "data:text/plain,a long message that spans more than a single screen in a small font",
			wantType: "*animation.GIF",
			wantSize: image.Pt(72, 72),
		},
		{
			name:     "gif_file",
			uri:      "data:text/filename,anim.gif",
			wantType: "*animation.GIF",
			wantSize: image.Pt(8, 8),
		},
		{
			name:     "gif_base64",
			uri:      Encode("image/gif", buf.Bytes()),
			wantType: "*animation.GIF",
			wantSize: image.Pt(8, 8),
		},
		{
			name:     "png",
			uri:      pngURI,
			wantType: "*image.NRGBA",
			wantSize: image.Pt(5, 7),
		},
		{
			name:     "named_color",
			uri:      "data:image/color;name,hired",
			wantType: "datauri.swatch",
			wantSize: image.Pt(72, 72),
		},
		{
			name:     "web_color",
			uri:      "data:image/color;web,#00ff00",
			wantType: "datauri.swatch",
			wantSize: image.Pt(72, 72),
		},
		{
			name:    "missing_file",
			uri:     "data:text/filename,missing.gif",
			wantErr: errors.New("file: open " + filepath.Join(dir, "missing.gif") + ": no such file or directory"),
		},
		{
			name:    "unknown_text_type",
			uri:     "data:text/mp4,message",
			wantErr: errors.New("unknown text mime type: data:text/mp4,message"),
		},
		{
			name:    "invalid_color",
			uri:     "data:image/color;name,mauve",
			wantErr: errors.New("invalid color name: mauve"),
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			img, err := Decode(rect, test.uri, dir)
			if !sameError(err, test.wantErr) {
				t.Fatalf("unexpected error: got:%v want:%v", err, test.wantErr)
			}
			if img == nil {
				t.Fatal("expected image")
			}
			if err != nil {
				// Errors are rendered into the requested bounds.
				if got := size(img); got != rect.Size() {
					t.Errorf("unexpected error image size: got:%v want:%v", got, rect.Size())
				}
				return
			}
			if got := typeName(img); got != test.wantType {
				t.Errorf("unexpected image type: got:%s want:%s", got, test.wantType)
			}
			if got := size(img); got != test.wantSize {
				t.Errorf("unexpected image size: got:%v want:%v", got, test.wantSize)
			}
		})
	}
}

func size(img image.Image) image.Point {
	if g, ok := img.(*animation.GIF); ok {
		return g.Size()
	}
	return img.Bounds().Size()
}

func typeName(img image.Image) string {
	switch img.(type) {
	case *animation.GIF:
		return "*animation.GIF"
	case *image.Paletted:
		return "*image.Paletted"
	case *image.NRGBA:
		return "*image.NRGBA"
	case *image.RGBA:
		return "*image.RGBA"
	case swatch:
		return "datauri.swatch"
	default:
		return "unknown"
	}
}

func sameError(a, b error) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil, b == nil:
		return false
	default:
		return a.Error() == b.Error()
	}
}
