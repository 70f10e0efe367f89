// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package datauri provides decoding and encoding of the data URIs used to
// locate displayable resources.
//
// The accepted forms are
//
//	data:text/plain[;fg=<color>;bg=<color>],<text>
//	data:text/filename,<path>
//	data:image/<type>;base64,<base64 data>
//	data:image/color;name,<ansi color name>
//	data:image/color;web,#<rrggbb>
//
// Filenames are opened relative to a data directory unless absolute, and a
// leading "~/" is expanded to the user's home directory.
package datauri

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kortschak/still/internal/animation"
)

// URI is a parsed data URI.
type URI struct {
	// Type is the top-level media type, "text" or "image".
	Type string
	// MediaType is the full media type, for example "image/png".
	MediaType string
	// Params holds the media type parameters.
	Params map[string]string
	// Encoding is the data encoding for image URIs; one of
	// "base64", "name" or "web".
	Encoding string
	// Data is the data following the comma.
	Data string
}

// Parse parses a data URI.
func Parse(uri string) (URI, error) {
	typ, mtyp, par, val, enc, err := parseDataURI(uri)
	if err != nil {
		return URI{}, err
	}
	param, err := getParams(par)
	if err != nil {
		return URI{}, err
	}
	return URI{Type: typ, MediaType: mtyp, Params: param, Encoding: enc, Data: val}, nil
}

// Encode returns a base64 data URI holding data with the given media type.
func Encode(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// EncodePNG returns a data URI holding the PNG encoding of img.
func EncodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	err := enc.Encode(&buf, img)
	if err != nil {
		return "", err
	}
	return Encode("image/png", buf.Bytes()), nil
}

// Decode decodes image data from a data URI, rendering text URIs to the
// size of rect. Multi-frame GIF data is returned as an [*animation.GIF].
// Image files are opened relative to the datadir path unless the filename
// is an absolute path. Any error is rendered as a text image and returned
// along with the error.
func Decode(rect image.Rectangle, uri, datadir string) (image.Image, error) {
	pal := color.Palette{color.Black, color.White}
	u, err := Parse(uri)
	if err != nil {
		return ErrorImage(err, rect)
	}
	var r animation.ReadPeeker
	switch u.Type {
	case "text":
		switch u.MediaType {
		default:
			return ErrorImage(fmt.Errorf("unknown text mime type: %s", uri), rect)
		case "text/plain":
			pal[1], pal[0], err = fgbg(pal[1], pal[0], u.Params)
			if err != nil {
				return ErrorImage(err, rect)
			}
			g, err := animation.Text(u.Data).GIF(rect, pal, 1, 0)
			if err != nil {
				return nil, err
			}
			return still(g), nil
		case "text/filename":
			path, ok := strings.CutPrefix(u.Data, "~/")
			if ok {
				home, err := os.UserHomeDir()
				if err != nil {
					return ErrorImage(fmt.Errorf("file: %w", err), rect)
				}
				path = filepath.Join(home, path)
			}
			if !filepath.IsAbs(path) {
				path = filepath.Join(datadir, path)
			}
			f, err := os.Open(path)
			if err != nil {
				return ErrorImage(fmt.Errorf("file: %w", err), rect)
			}
			defer f.Close()
			r = animation.AsReadPeeker(f)
		}
	case "image":
		switch u.Encoding {
		case "name":
			col, ok := ansiColor[u.Data]
			if !ok {
				return ErrorImage(fmt.Errorf("invalid color name: %s", u.Data), rect)
			}
			return swatch{Uniform: col, bounds: rect}, nil
		case "web":
			col, err := webColor(u.Data)
			if err != nil {
				return ErrorImage(err, rect)
			}
			return swatch{Uniform: &image.Uniform{col}, bounds: rect}, nil
		case "base64":
			b, err := base64.StdEncoding.DecodeString(u.Data)
			if err != nil {
				return ErrorImage(fmt.Errorf("base64: %w", err), rect)
			}
			r = animation.AsReadPeeker(bytes.NewReader(b))
		}
	default:
		panic("unreachable")
	}
	var img image.Image
	if animation.IsGIF(r) {
		img, err = animation.DecodeGIF(r)
	} else {
		img, _, err = image.Decode(r)
	}
	if err != nil {
		return ErrorImage(err, rect)
	}
	return img, nil
}

// ErrorImage returns err rendered as text within rect, and err.
func ErrorImage(err error, rect image.Rectangle) (image.Image, error) {
	pal := color.Palette{color.Black, color.White}
	g, gifErr := animation.Text(err.Error()).GIF(rect, pal, 1, 0)
	if gifErr != nil {
		return nil, errors.Join(err, gifErr)
	}
	return still(g), err
}

// still returns the single frame of g if it has only one frame, otherwise
// it returns g.
func still(g *animation.GIF) image.Image {
	if len(g.Image) == 1 {
		return g.Image[0]
	}
	return g
}

func getParams(par string) (map[string]string, error) {
	if par == "" {
		return nil, nil
	}
	param := make(map[string]string)
	var err error
	for _, kv := range strings.Split(par, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok {
			return nil, fmt.Errorf("invalid params: %s", par)
		}
		param[strings.TrimSpace(k)], err = url.PathUnescape(strings.TrimSpace(v))
		if err != nil {
			return nil, err
		}
	}
	return param, nil
}

// handle data URIs in the form "^data:(?:text/(?:filename|plain)|image/[^;]+;(?:base64|name|web)),.*$"
func parseDataURI(uri string) (typ, mtyp, par, val, enc string, err error) {
	u, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", "", "", "", "", fmt.Errorf("invalid scheme: %s", uri)
	}
	mtyp, val, ok = strings.Cut(u, ",")
	if !ok {
		return "", "", "", "", "", fmt.Errorf("invalid data uri: %s", uri)
	}
	typ, _, ok = strings.Cut(mtyp, "/")
	if !ok {
		return "", "", "", "", "", fmt.Errorf("invalid data uri: %s", uri)
	}
	switch typ {
	case "text":
		mtyp, par, _ := strings.Cut(mtyp, ";")
		return typ, mtyp, par, val, "", nil
	case "image":
		mtyp, enc, ok = cutLast(mtyp, ";")
		if !ok {
			return "", "", "", "", "", fmt.Errorf("invalid image data uri: %s", uri)
		}
		switch enc {
		case "base64", "name", "web":
			mtyp, par, _ := strings.Cut(mtyp, ";")
			return typ, mtyp, par, val, enc, nil
		default:
			return "", "", "", "", "", fmt.Errorf("invalid encoding in image uri: %s", uri)
		}
	default:
		return "", "", "", "", "", fmt.Errorf("unknown mime type: %s", uri)
	}
}

func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}

// swatch is a subimage of a uniform color.
type swatch struct {
	*image.Uniform
	bounds image.Rectangle
}

func (i swatch) Bounds() image.Rectangle { return i.bounds }

func fgbg(fg, bg color.Color, param map[string]string) (_fg, _bg color.Color, err error) {
	if v, ok := param["fg"]; ok {
		_fg, err = paramColor(v)
		if err != nil {
			return fg, bg, err
		}
	} else {
		_fg = fg
	}
	if v, ok := param["bg"]; ok {
		_bg, err = paramColor(v)
		if err != nil {
			return fg, bg, err
		}
	} else {
		_bg = bg
	}
	return _fg, _bg, nil
}

func paramColor(val string) (color.Color, error) {
	if strings.HasPrefix(val, "#") {
		return webColor(val)
	}
	col, ok := ansiColor[val]
	if !ok {
		return nil, fmt.Errorf("invalid color name: %s", val)
	}
	return col.C, nil
}

var ansiColor = map[string]*image.Uniform{
	"black":     {C: color.RGBA{R: 0x00, G: 0x00, B: 0x00, A: 0xff}},
	"red":       {C: color.RGBA{R: 0x80, G: 0x00, B: 0x00, A: 0xff}},
	"green":     {C: color.RGBA{R: 0x00, G: 0x80, B: 0x00, A: 0xff}},
	"yellow":    {C: color.RGBA{R: 0x80, G: 0x80, B: 0x00, A: 0xff}},
	"blue":      {C: color.RGBA{R: 0x00, G: 0x00, B: 0x80, A: 0xff}},
	"magenta":   {C: color.RGBA{R: 0x80, G: 0x00, B: 0x80, A: 0xff}},
	"cyan":      {C: color.RGBA{R: 0x00, G: 0x80, B: 0x80, A: 0xff}},
	"white":     {C: color.RGBA{R: 0xc0, G: 0xc0, B: 0xc0, A: 0xff}},
	"hiblack":   {C: color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}},
	"hired":     {C: color.RGBA{R: 0xff, G: 0x00, B: 0x00, A: 0xff}},
	"higreen":   {C: color.RGBA{R: 0x00, G: 0xff, B: 0x00, A: 0xff}},
	"hiyellow":  {C: color.RGBA{R: 0xff, G: 0xff, B: 0x00, A: 0xff}},
	"hiblue":    {C: color.RGBA{R: 0x00, G: 0x00, B: 0xff, A: 0xff}},
	"himagenta": {C: color.RGBA{R: 0xff, G: 0x00, B: 0xff, A: 0xff}},
	"hicyan":    {C: color.RGBA{R: 0x00, G: 0xff, B: 0xff, A: 0xff}},
	"hiwhite":   {C: color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}},
}

func webColor(val string) (color.Color, error) {
	val, ok := strings.CutPrefix(val, "#")
	if !ok {
		return nil, fmt.Errorf("invalid web color: %s", val)
	}
	c, err := strconv.ParseUint(val, 16, 24)
	if err != nil {
		return nil, err
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(c))
	return color.NRGBA{R: b[1], G: b[2], B: b[3], A: 0xff}, nil
}
