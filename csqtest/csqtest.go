// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package csqtest implements fake collaborators and synthetic CSQ streams.
package csqtest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/maruel/go-csq/csq"
)

// Tags returns the calibration tags of a typical FLIR camera, formatted the
// way exiftool prints them.
func Tags() map[string]string {
	return map[string]string{
		"Emissivity":                   "0.95",
		"ObjectDistance":               "1.00 m",
		"ReflectedApparentTemperature": "20.0 C",
		"AtmosphericTemperature":       "20.0 C",
		"IRWindowTemperature":          "20.0 C",
		"IRWindowTransmission":         "1.00",
		"RelativeHumidity":             "50.0 %",
		"PlanckR1":                     "21106.77",
		"PlanckB":                      "1501",
		"PlanckF":                      "1",
		"PlanckO":                      "-7340",
		"PlanckR2":                     "0.012545258",
		"AtmosphericTransAlpha1":       "0.006569",
		"AtmosphericTransAlpha2":       "0.012620",
		"AtmosphericTransBeta1":        "-0.002276",
		"AtmosphericTransBeta2":        "-0.006670",
		"AtmosphericTransX":            "1.900000",
		"CameraModel":                  "FLIR T1020",
		"FrameRate":                    "30",
	}
}

// IdealTags returns tags for which the only correction is the Planck
// relation: black body, no humidity and a perfectly transparent window. All
// the reference temperatures are t °C.
func IdealTags(t float32) map[string]string {
	tags := Tags()
	ts := fmt.Sprintf("%g C", t)
	tags["Emissivity"] = "1.0"
	tags["IRWindowTransmission"] = "1.0"
	tags["RelativeHumidity"] = "0 %"
	tags["ReflectedApparentTemperature"] = ts
	tags["AtmosphericTemperature"] = ts
	tags["IRWindowTemperature"] = ts
	return tags
}

// Calibration returns the parsed Tags.
func Calibration() *csq.Calibration {
	c, err := csq.ParseCalibration(Tags())
	if err != nil {
		panic(err)
	}
	return c
}

// Metadata is a fake csq.MetadataExtractor returning canned tags.
type Metadata struct {
	Tags map[string]string
	// Fail, when set, is called for every frame; a non-nil return is returned
	// as the extraction error.
	Fail func(frame []byte) error

	mu     sync.Mutex
	frames [][]byte
}

// ExtractMetadata implements csq.MetadataExtractor.
func (m *Metadata) ExtractMetadata(frame []byte) (map[string]string, error) {
	m.mu.Lock()
	m.frames = append(m.frames, append([]byte(nil), frame...))
	m.mu.Unlock()
	if m.Fail != nil {
		if err := m.Fail(frame); err != nil {
			return nil, err
		}
	}
	out := make(map[string]string, len(m.Tags))
	for k, v := range m.Tags {
		out[k] = v
	}
	return out, nil
}

// Frames returns a copy of every frame passed to ExtractMetadata.
func (m *Metadata) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.frames...)
}

// Decoder is a fake csq.RawImageDecoder for frames built with EncodeFrame.
type Decoder struct {
	// Err, when set, is returned for every frame.
	Err error
}

// DecodeRaw implements csq.RawImageDecoder.
func (d *Decoder) DecodeRaw(frame []byte) (*csq.RawGrid, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return DecodeFrame(frame)
}

// Available implements csq.Checker.
func (d *Decoder) Available() error {
	return nil
}

// Frame layout after the marker: width and height as uint16 then one uint16
// per pixel, little endian.
const headerSize = len(csq.Marker) + 4

// EncodeFrame returns a raw frame holding g, followed by trailer. Counts are
// truncated to uint16.
//
// It panics if the encoded pixels contain csq.Marker.
func EncodeFrame(g *csq.RawGrid, trailer []byte) []byte {
	b := make([]byte, headerSize+2*len(g.Pix), headerSize+2*len(g.Pix)+len(trailer))
	copy(b, csq.Marker)
	binary.LittleEndian.PutUint16(b[len(csq.Marker):], uint16(g.Width))
	binary.LittleEndian.PutUint16(b[len(csq.Marker)+2:], uint16(g.Height))
	for i, v := range g.Pix {
		binary.LittleEndian.PutUint16(b[headerSize+2*i:], uint16(v))
	}
	b = append(b, trailer...)
	if bytes.Contains(b[1:], []byte(csq.Marker)) {
		panic("csqtest: frame contains the marker")
	}
	return b
}

// DecodeFrame decodes a frame built with EncodeFrame. Trailing bytes are
// ignored.
func DecodeFrame(frame []byte) (*csq.RawGrid, error) {
	if len(frame) < headerSize || string(frame[:len(csq.Marker)]) != csq.Marker {
		return nil, errors.New("csqtest: not a frame")
	}
	w := int(binary.LittleEndian.Uint16(frame[len(csq.Marker):]))
	h := int(binary.LittleEndian.Uint16(frame[len(csq.Marker)+2:]))
	if len(frame) < headerSize+2*w*h {
		return nil, errors.New("csqtest: truncated frame")
	}
	g := csq.NewRawGrid(w, h)
	for i := range g.Pix {
		g.Pix[i] = float32(binary.LittleEndian.Uint16(frame[headerSize+2*i:]))
	}
	return g, nil
}

// Stream concatenates frames, after an optional junk prefix.
func Stream(prefix []byte, frames ...[]byte) []byte {
	var b bytes.Buffer
	b.Write(prefix)
	for _, f := range frames {
		b.Write(f)
	}
	return b.Bytes()
}

// Uniform returns a w×h grid of the raw count a black body at t °C produces.
func Uniform(c *csq.Calibration, w, h int, t float32) *csq.RawGrid {
	g := csq.NewRawGrid(w, h)
	v := csq.PlanckRaw(c, t)
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

// Scene generates a slowly changing thermal scene: a few warm or cold spots
// over an ambient background.
type Scene struct {
	cal     *csq.Calibration
	w, h    int
	ambient float32
	rand    *rand.Rand
	spots   []spot
}

type spot struct {
	delta float64 // °C above ambient at the center.
	x, y  float64
}

// NewScene returns a deterministic Scene for seed.
func NewScene(c *csq.Calibration, w, h int, ambient float32, seed int64) *Scene {
	s := &Scene{cal: c, w: w, h: h, ambient: ambient, rand: rand.New(rand.NewSource(seed))}
	s.spots = make([]spot, 5)
	for i := range s.spots {
		s.spots[i].delta = s.rand.NormFloat64() * 10
		s.spots[i].x = s.rand.Float64() * float64(w)
		s.spots[i].y = s.rand.Float64() * float64(h)
	}
	return s
}

// Temperatures returns the temperature in °C the next frame represents.
func (s *Scene) Temperatures() []float32 {
	for i := range s.spots {
		s.spots[i].delta += s.rand.NormFloat64() * 0.1
		s.spots[i].x += s.rand.NormFloat64() * 0.1
		s.spots[i].y += s.rand.NormFloat64() * 0.1
	}
	out := make([]float32, s.w*s.h)
	for y := 0; y < s.h; y++ {
		fy := float64(y)
		for x := 0; x < s.w; x++ {
			fx := float64(x)
			v := float64(s.ambient)
			for _, sp := range s.spots {
				d := (sp.x-fx)*(sp.x-fx) + (sp.y-fy)*(sp.y-fy)
				v += sp.delta / (1 + d/8)
			}
			// Stay far from raw counts that could spell the marker.
			if v > float64(s.ambient)+40 {
				v = float64(s.ambient) + 40
			}
			if v < float64(s.ambient)-40 {
				v = float64(s.ambient) - 40
			}
			out[y*s.w+x] = float32(v)
		}
	}
	return out
}

// Next returns the raw counts of the next frame, for an ideal calibration.
func (s *Scene) Next() *csq.RawGrid {
	g := csq.NewRawGrid(s.w, s.h)
	for i, t := range s.Temperatures() {
		g.Pix[i] = csq.PlanckRaw(s.cal, t)
	}
	return g
}
