// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package csq

import (
	"sort"
	"strconv"
	"strings"

	"periph.io/x/periph/conn/physic"
)

// Calibration is the set of environmental and optical constants of one frame
// used by Convert.
//
// Temperatures are in °C, the distance in meters and the relative humidity in
// percent, as reported by the camera.
type Calibration struct {
	Emissivity                   float32
	ObjectDistance               float32
	ReflectedApparentTemperature float32
	AtmosphericTemperature       float32
	IRWindowTemperature          float32
	IRWindowTransmission         float32
	RelativeHumidity             float32
	PlanckR1                     float32
	PlanckR2                     float32
	PlanckB                      float32
	PlanckF                      float32
	PlanckO                      float32
	AtmosphericTransAlpha1       float32
	AtmosphericTransAlpha2       float32
	AtmosphericTransBeta1        float32
	AtmosphericTransBeta2        float32
	AtmosphericTransX            float32

	// Descriptive holds the optional descriptive tags that were present, e.g.
	// "CameraModel". They are not used by Convert.
	Descriptive map[string]string
}

// requiredFields maps each tag name to its Calibration field, in the order
// they are validated.
var requiredFields = []struct {
	name  string
	field func(c *Calibration) *float32
}{
	{"Emissivity", func(c *Calibration) *float32 { return &c.Emissivity }},
	{"ObjectDistance", func(c *Calibration) *float32 { return &c.ObjectDistance }},
	{"ReflectedApparentTemperature", func(c *Calibration) *float32 { return &c.ReflectedApparentTemperature }},
	{"AtmosphericTemperature", func(c *Calibration) *float32 { return &c.AtmosphericTemperature }},
	{"IRWindowTemperature", func(c *Calibration) *float32 { return &c.IRWindowTemperature }},
	{"IRWindowTransmission", func(c *Calibration) *float32 { return &c.IRWindowTransmission }},
	{"RelativeHumidity", func(c *Calibration) *float32 { return &c.RelativeHumidity }},
	{"PlanckR1", func(c *Calibration) *float32 { return &c.PlanckR1 }},
	{"PlanckR2", func(c *Calibration) *float32 { return &c.PlanckR2 }},
	{"PlanckB", func(c *Calibration) *float32 { return &c.PlanckB }},
	{"PlanckF", func(c *Calibration) *float32 { return &c.PlanckF }},
	{"PlanckO", func(c *Calibration) *float32 { return &c.PlanckO }},
	{"AtmosphericTransAlpha1", func(c *Calibration) *float32 { return &c.AtmosphericTransAlpha1 }},
	{"AtmosphericTransAlpha2", func(c *Calibration) *float32 { return &c.AtmosphericTransAlpha2 }},
	{"AtmosphericTransBeta1", func(c *Calibration) *float32 { return &c.AtmosphericTransBeta1 }},
	{"AtmosphericTransBeta2", func(c *Calibration) *float32 { return &c.AtmosphericTransBeta2 }},
	{"AtmosphericTransX", func(c *Calibration) *float32 { return &c.AtmosphericTransX }},
}

// DescriptiveFields lists the optional tags copied into
// Calibration.Descriptive when present.
var DescriptiveFields = []string{
	"AboveColor", "BelowColor", "CameraModel", "CameraPartNumber",
	"CameraSerialNumber", "CameraSoftware", "CameraTemperatureMaxClip",
	"CameraTemperatureMaxSaturated", "CameraTemperatureMaxWarn",
	"CameraTemperatureMinClip", "CameraTemperatureMinSaturated",
	"CameraTemperatureMinWarn", "CameraTemperatureRangeMax",
	"CameraTemperatureRangeMin", "CreatorSoftware", "DateTimeOriginal",
	"FieldOfView", "FilterModel", "FilterPartNumber", "FilterSerialNumber",
	"FocusDistance", "FocusStepCount", "FrameRate", "GPSAltitude",
	"GPSDilutionOfPrecision", "GPSImgDirection", "GPSImgDirectionRef",
	"GPSLatitude", "GPSLatitudeRef", "GPSLongitude", "GPSLongitudeRef",
	"GPSMapDatum", "GPSPosition", "GPSValid", "Isotherm1Color",
	"Isotherm2Color", "LensModel", "LensPartNumber", "LensSerialNumber",
	"OverflowColor", "Palette", "PaletteColors", "PaletteFileName",
	"PaletteMethod", "PaletteName", "PaletteStretch", "PeakSpectralSensitivity",
	"RawThermalImageHeight", "RawThermalImageType", "RawThermalImageWidth",
	"RawValueMedian", "RawValueRange", "RawValueRangeMax", "RawValueRangeMin",
	"UnderflowColor",
}

// RequiredFields returns the tag names that ParseCalibration requires.
func RequiredFields() []string {
	out := make([]string, len(requiredFields))
	for i, f := range requiredFields {
		out[i] = f.name
	}
	return out
}

// ParseCalibration validates and parses the tags returned by a
// MetadataExtractor.
//
// Each required value is parsed from its first whitespace separated token, so
// "1.00 m" and "0.95 (calculated)" are accepted. It returns a *FieldError
// matching ErrMissingField or ErrMalformedField on the first invalid field.
func ParseCalibration(tags map[string]string) (*Calibration, error) {
	c := &Calibration{}
	for _, f := range requiredFields {
		v, ok := tags[f.name]
		if !ok {
			return nil, &FieldError{Field: f.name, Kind: ErrMissingField}
		}
		tokens := strings.Fields(v)
		if len(tokens) == 0 {
			return nil, &FieldError{Field: f.name, Value: v, Kind: ErrMalformedField}
		}
		x, err := strconv.ParseFloat(tokens[0], 32)
		if err != nil {
			return nil, &FieldError{Field: f.name, Value: v, Kind: ErrMalformedField, Err: err}
		}
		*f.field(c) = float32(x)
	}
	for _, name := range DescriptiveFields {
		if v, ok := tags[name]; ok {
			if c.Descriptive == nil {
				c.Descriptive = map[string]string{}
			}
			c.Descriptive[name] = v
		}
	}
	return c, nil
}

// Info returns an optional descriptive tag.
func (c *Calibration) Info(name string) (string, bool) {
	v, ok := c.Descriptive[name]
	return v, ok
}

// InfoKeys returns the descriptive tags present, sorted.
func (c *Calibration) InfoKeys() []string {
	out := make([]string, 0, len(c.Descriptive))
	for k := range c.Descriptive {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Values returns the required fields as tag name to value, in validation
// order.
func (c *Calibration) Values() []NamedValue {
	out := make([]NamedValue, len(requiredFields))
	for i, f := range requiredFields {
		out[i] = NamedValue{Name: f.name, Value: *f.field(c)}
	}
	return out
}

// NamedValue is a required calibration field.
type NamedValue struct {
	Name  string
	Value float32
}

// ReflectedTemp returns ReflectedApparentTemperature.
func (c *Calibration) ReflectedTemp() physic.Temperature {
	return Celsius(c.ReflectedApparentTemperature)
}

// AtmosphericTemp returns AtmosphericTemperature.
func (c *Calibration) AtmosphericTemp() physic.Temperature {
	return Celsius(c.AtmosphericTemperature)
}

// WindowTemp returns IRWindowTemperature.
func (c *Calibration) WindowTemp() physic.Temperature {
	return Celsius(c.IRWindowTemperature)
}
