// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rawimage decodes the raw thermal image embedded in a FLIR frame
// into raw sensor counts.
//
// The embedded image is either a 16 bits PNG, stored little endian by the
// camera, a 16 bits TIFF or an old style lossless JPEG. The latter cannot be
// decoded by the standard library and is piped through an external command
// that must write a 16 bits PNG on stdout.
package rawimage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/tiff"

	"github.com/maruel/go-csq/csq"
)

// DefaultCommand converts any image on stdin to PNG on stdout, using
// ImageMagick.
var DefaultCommand = []string{"convert", "-", "png:-"}

// Format is the encoding of an embedded raw thermal image.
type Format int

// Known formats.
const (
	Unknown Format = iota
	PNG
	TIFF
	JPEG
)

func (f Format) String() string {
	switch f {
	case PNG:
		return "png"
	case TIFF:
		return "tiff"
	case JPEG:
		return "jpeg"
	default:
		return "unknown"
	}
}

// Sniff returns the format of b.
func Sniff(b []byte) Format {
	switch {
	case bytes.HasPrefix(b, []byte("\x89PNG\r\n\x1a\n")):
		return PNG
	case bytes.HasPrefix(b, []byte("II*\x00")), bytes.HasPrefix(b, []byte("MM\x00*")):
		return TIFF
	case bytes.HasPrefix(b, []byte{0xFF, 0xD8}):
		return JPEG
	default:
		return Unknown
	}
}

// Extractor returns the raw thermal image embedded in a frame.
//
// *exiftool.Tool and *exiftool.Cache implement it.
type Extractor interface {
	RawThermalImage(frame []byte) ([]byte, error)
}

// Decoder implements csq.RawImageDecoder.
type Decoder struct {
	Extractor Extractor
	// Command decodes JPEG and unknown payloads; it reads the payload on stdin
	// and writes a 16 bits PNG on stdout. Defaults to DefaultCommand.
	Command []string
	// NativePNG disables the byte swap of embedded PNG images. FLIR cameras
	// store them little endian.
	NativePNG bool
	Timeout   time.Duration
	Log       logrus.FieldLogger
}

// Available implements csq.Checker.
//
// It checks the extractor when it implements csq.Checker. A missing
// external command is only logged since most cameras embed PNG.
func (d *Decoder) Available() error {
	if d.Extractor == nil {
		return errors.New("rawimage: no extractor")
	}
	if c, ok := d.Extractor.(csq.Checker); ok {
		if err := c.Available(); err != nil {
			return err
		}
	}
	if _, err := exec.LookPath(d.command()[0]); err != nil {
		d.log().WithError(err).Warn("JPEG raw images cannot be decoded")
	}
	return nil
}

// DecodeRaw implements csq.RawImageDecoder.
func (d *Decoder) DecodeRaw(frame []byte) (*csq.RawGrid, error) {
	if d.Extractor == nil {
		return nil, errors.New("rawimage: no extractor")
	}
	b, err := d.Extractor.RawThermalImage(frame)
	if err != nil {
		return nil, err
	}
	return d.Decode(b)
}

// Decode decodes an embedded raw thermal image.
func (d *Decoder) Decode(b []byte) (*csq.RawGrid, error) {
	f := Sniff(b)
	d.log().WithFields(logrus.Fields{"format": f, "size": len(b)}).Debug("raw image")
	switch f {
	case PNG:
		img, err := png.Decode(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("%w: png: %w", csq.ErrDecode, err)
		}
		g, err := FromImage(img)
		if err != nil {
			return nil, err
		}
		if !d.NativePNG {
			SwapBytes(g)
		}
		return g, nil
	case TIFF:
		img, err := tiff.Decode(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("%w: tiff: %w", csq.ErrDecode, err)
		}
		return FromImage(img)
	default:
		return d.external(b)
	}
}

// FromImage returns the 16 bits gray level of every pixel of img, row-major.
func FromImage(img image.Image) (*csq.RawGrid, error) {
	r := img.Bounds()
	if r.Empty() {
		return nil, fmt.Errorf("%w: empty image", csq.ErrDecode)
	}
	g := csq.NewRawGrid(r.Dx(), r.Dy())
	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < g.Height; y++ {
			off := src.PixOffset(r.Min.X, r.Min.Y+y)
			for x := 0; x < g.Width; x++ {
				g.Pix[y*g.Width+x] = float32(uint16(src.Pix[off+2*x])<<8 | uint16(src.Pix[off+2*x+1]))
			}
		}
	case *image.Gray:
		for y := 0; y < g.Height; y++ {
			off := src.PixOffset(r.Min.X, r.Min.Y+y)
			for x := 0; x < g.Width; x++ {
				g.Pix[y*g.Width+x] = float32(src.Pix[off+x])
			}
		}
	default:
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				c := color.Gray16Model.Convert(img.At(r.Min.X+x, r.Min.Y+y)).(color.Gray16)
				g.Pix[y*g.Width+x] = float32(c.Y)
			}
		}
	}
	return g, nil
}

// SwapBytes swaps the two bytes of every 16 bits count of g.
func SwapBytes(g *csq.RawGrid) {
	for i, v := range g.Pix {
		u := uint16(v)
		g.Pix[i] = float32(u>>8 | u<<8)
	}
}

func (d *Decoder) external(b []byte) (*csq.RawGrid, error) {
	argv := d.command()
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(b)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w: %s", csq.ErrDecode, argv[0], err, strings.TrimSpace(stderr.String()))
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("%w: %s output: %w", csq.ErrDecode, argv[0], err)
	}
	return FromImage(img)
}

func (d *Decoder) command() []string {
	if len(d.Command) == 0 {
		return DefaultCommand
	}
	return d.Command
}

func (d *Decoder) log() logrus.FieldLogger {
	if d.Log == nil {
		return discard
	}
	return d.Log
}

var discard = &logrus.Logger{Out: io.Discard, Formatter: new(logrus.TextFormatter), Hooks: make(logrus.LevelHooks), Level: logrus.PanicLevel}
