// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package csq

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"periph.io/x/periph/conn/physic"
)

// RawGrid is the raw sensor counts of a frame, row-major.
type RawGrid struct {
	Width  int
	Height int
	Pix    []float32 // len(Pix) == Width*Height
}

// NewRawGrid returns a zeroed grid.
func NewRawGrid(width, height int) *RawGrid {
	return &RawGrid{Width: width, Height: height, Pix: make([]float32, width*height)}
}

// At returns the count at column x, row y.
func (r *RawGrid) At(x, y int) float32 {
	return r.Pix[y*r.Width+x]
}

// Set sets the count at column x, row y.
func (r *RawGrid) Set(x, y int, v float32) {
	r.Pix[y*r.Width+x] = v
}

// Validate returns an error if the dimensions do not match the buffer.
func (r *RawGrid) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return errors.New("empty raw grid")
	}
	if len(r.Pix) != r.Width*r.Height {
		return errors.New("raw grid size mismatch")
	}
	return nil
}

// TemperatureGrid is the temperature in °C of each pixel of a frame,
// row-major, with the same dimensions as the RawGrid it was computed from.
//
// Values can be NaN or ±Inf when the calibration is physically meaningless.
type TemperatureGrid struct {
	Width  int
	Height int
	Pix    []float32
}

// At returns the temperature at column x, row y.
func (t *TemperatureGrid) At(x, y int) float32 {
	return t.Pix[y*t.Width+x]
}

// Temp returns the temperature at column x, row y.
func (t *TemperatureGrid) Temp(x, y int) physic.Temperature {
	return Celsius(t.At(x, y))
}

// Equal returns true if both grids are bit-identical.
func (t *TemperatureGrid) Equal(r *TemperatureGrid) bool {
	if t.Width != r.Width || t.Height != r.Height || len(t.Pix) != len(r.Pix) {
		return false
	}
	for i := range t.Pix {
		if math.Float32bits(t.Pix[i]) != math.Float32bits(r.Pix[i]) {
			return false
		}
	}
	return true
}

// GridStats summarizes the finite values of a TemperatureGrid, in °C.
type GridStats struct {
	Min       float64
	Max       float64
	Mean      float64
	StdDev    float64
	Finite    int // Number of finite pixels the statistics are computed on.
	NonFinite int // Number of NaN or ±Inf pixels.
}

// MinTemp returns Min.
func (s GridStats) MinTemp() physic.Temperature {
	return Celsius(float32(s.Min))
}

// MaxTemp returns Max.
func (s GridStats) MaxTemp() physic.Temperature {
	return Celsius(float32(s.Max))
}

// MeanTemp returns Mean.
func (s GridStats) MeanTemp() physic.Temperature {
	return Celsius(float32(s.Mean))
}

// Stats computes the statistics over the finite pixels. All fields except
// NonFinite are zero if there is no finite pixel.
func (t *TemperatureGrid) Stats() GridStats {
	values := make([]float64, 0, len(t.Pix))
	for _, v := range t.Pix {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		values = append(values, f)
	}
	s := GridStats{Finite: len(values), NonFinite: len(t.Pix) - len(values)}
	if len(values) == 0 {
		return s
	}
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		s.StdDev = 0
	}
	return s
}
