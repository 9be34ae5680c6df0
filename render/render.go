// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package render converts temperature grids to displayable images.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"

	"github.com/maruel/go-csq/csq"
)

// Size is the number of entries of a Palette.
const Size = 256

// Palette maps a normalized value in [0, 1] to a color.
type Palette []color.RGBA

var palettes = map[string]func() (Palette, error){
	"blackbody": func() (Palette, error) { return fromColorMap(moreland.ExtendedBlackBody()) },
	"bluered":   func() (Palette, error) { return fromColorMap(moreland.SmoothBlueRed()) },
	"rainbow": func() (Palette, error) {
		return fromColors(palette.Rainbow(Size, palette.Blue, palette.Red, 1, 1, 1).Colors()), nil
	},
	"gray": func() (Palette, error) {
		p := make(Palette, Size)
		for i := range p {
			p[i] = color.RGBA{uint8(i), uint8(i), uint8(i), 255}
		}
		return p, nil
	},
}

// Names returns the names accepted by NewPalette.
func Names() []string {
	out := make([]string, 0, len(palettes))
	for k := range palettes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewPalette returns the palette named name. The empty name is "rainbow".
func NewPalette(name string) (Palette, error) {
	if name == "" {
		name = "rainbow"
	}
	f := palettes[name]
	if f == nil {
		return nil, fmt.Errorf("unknown palette %q; valid: %v", name, Names())
	}
	return f()
}

func fromColorMap(m palette.ColorMap) (Palette, error) {
	m.SetMax(1)
	m.SetMin(0)
	return fromColors(m.Palette(Size).Colors()), nil
}

func fromColors(c []color.Color) Palette {
	p := make(Palette, len(c))
	for i := range c {
		p[i] = color.RGBAModel.Convert(c[i]).(color.RGBA)
		p[i].A = 255
	}
	return p
}

// At returns the color of v, clamped to [0, 1].
func (p Palette) At(v float32) color.RGBA {
	switch {
	case !(v > 0):
		return p[0]
	case v >= 1:
		return p[len(p)-1]
	}
	return p[int(v*float32(len(p)-1)+0.5)]
}

// Renderer colorizes temperature grids.
type Renderer struct {
	Palette Palette
	// Min and Max are the fixed temperature range in °C mapped to the palette.
	// When equal, each frame is stretched to its own range.
	Min, Max float32
	// Invalid is the color of NaN and ±Inf pixels.
	Invalid color.RGBA
}

// Range returns the range of temperatures Render uses for g.
func (r *Renderer) Range(g *csq.TemperatureGrid) (lo, hi float32) {
	if r.Min != r.Max {
		return r.Min, r.Max
	}
	return Range(g)
}

// Render colorizes g.
func (r *Renderer) Render(g *csq.TemperatureGrid) *image.RGBA {
	lo, hi := r.Range(g)
	return Colorize(g, r.Palette, lo, hi, r.Invalid)
}

// Range returns the minimum and maximum finite temperatures of g, or 0, 0.
func Range(g *csq.TemperatureGrid) (lo, hi float32) {
	s := g.Stats()
	return float32(s.Min), float32(s.Max)
}

// Colorize linearly maps temperatures from [lo, hi] to p.
func Colorize(g *csq.TemperatureGrid, p Palette, lo, hi float32, invalid color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	scale := float32(0)
	if hi > lo {
		scale = 1 / (hi - lo)
	}
	for i, v := range g.Pix {
		c := invalid
		if finite(v) {
			c = p.At((v - lo) * scale)
		}
		img.Pix[4*i] = c.R
		img.Pix[4*i+1] = c.G
		img.Pix[4*i+2] = c.B
		img.Pix[4*i+3] = 255
	}
	return img
}

// AGC reduces the temperatures to 8 bits very naively, linearly stretching
// the range of the frame. Non-finite values are black.
func AGC(g *csq.TemperatureGrid) *image.Gray {
	lo, hi := Range(g)
	dst := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
	delta := hi - lo
	for i, v := range g.Pix {
		if !finite(v) || delta <= 0 {
			continue
		}
		dst.Pix[i] = uint8((v-lo)*255/delta + 0.5)
	}
	return dst
}

// CentiK returns the temperatures in 0.01°K as a 16 bits gray image, the way
// radiometric thermal cameras export them.
func CentiK(g *csq.TemperatureGrid) *image.Gray16 {
	dst := image.NewGray16(image.Rect(0, 0, g.Width, g.Height))
	for i, v := range g.Pix {
		k := csq.ToCentiK(v)
		dst.Pix[2*i] = uint8(k >> 8)
		dst.Pix[2*i+1] = uint8(k)
	}
	return dst
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}
