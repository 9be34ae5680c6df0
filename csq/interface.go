// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package csq

import (
	"fmt"
	"math"
	"time"

	"periph.io/x/periph/conn/physic"
)

// MetadataExtractor returns the calibration tags embedded in one raw frame.
// This interface can be mocked.
type MetadataExtractor interface {
	// ExtractMetadata maps tag names, e.g. "PlanckR1", to their string value,
	// e.g. "21106.77".
	ExtractMetadata(frame []byte) (map[string]string, error)
}

// RawImageDecoder decodes the raw sensor counts embedded in one raw frame.
// This interface can be mocked.
type RawImageDecoder interface {
	DecodeRaw(frame []byte) (*RawGrid, error)
}

// Checker is optionally implemented by a MetadataExtractor or a
// RawImageDecoder that depends on an external program. Open calls it before
// the first frame is read.
type Checker interface {
	Available() error
}

// Observer is notified of what happens inside a Reader. All methods are
// called synchronously from Reader.Next.
type Observer interface {
	BlockRead(n int)                 // A block of n bytes was read from the stream.
	FrameDone(elapsed time.Duration) // A frame was decoded and converted.
	FrameError(err error)            // Next returned err.
}

// Stats are cumulative counters of a Reader.
type Stats struct {
	LastFail       error
	Blocks         int
	BytesRead      int64
	GoodFrames     int
	SplitErrors    int // ErrNoMarkerFound and ErrInsufficientMarkers.
	MetadataErrors int // ErrMissingField, ErrMalformedField and ErrMetadataTool.
	DecodeErrors   int
}

// CentiK is temperature in 0.01°K.
type CentiK uint16

func (c CentiK) String() string {
	return fmt.Sprintf("%01d.%02d°K", c/100, c%100)
}

func (c CentiK) ToC() CentiC {
	return CentiC(c)
}

// CentiC is temperature in 0.01°K but printed as °C.
type CentiC uint16

func (c CentiC) String() string {
	v := int(c) - 27315
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%01d.%02d°C", sign, v/100, v%100)
}

func (c CentiC) ToK() CentiK {
	return CentiK(c)
}

// ToCentiK converts a °C value to CentiK, saturating at the uint16 range.
// NaN maps to 0.
func ToCentiK(celsius float32) CentiK {
	v := (float64(celsius) + 273.15) * 100
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 0xFFFF:
		return 0xFFFF
	}
	return CentiK(v + 0.5)
}

// Celsius converts a °C value as produced by Convert to a physic.Temperature.
func Celsius(c float32) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(float64(c)*float64(physic.Kelvin))
}
