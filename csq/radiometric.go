// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package csq

import (
	"math"
)

// zeroCelsius is 0°C in °K.
const zeroCelsius float32 = 273.15

// Convert returns the temperature in °C of every raw count in raw.
//
// It corrects for the reflected radiation, the atmosphere on both sides of
// the IR window and the window itself. The window is assumed to be at the
// mid-point between the object and the camera.
//
// All the computation is done in float32. Nothing is clamped: a meaningless
// calibration, e.g. a zero transmission, yields NaN or ±Inf values.
func Convert(raw *RawGrid, c *Calibration) *TemperatureGrid {
	k := newRadiometry(c)
	out := &TemperatureGrid{Width: raw.Width, Height: raw.Height, Pix: make([]float32, len(raw.Pix))}
	for i, v := range raw.Pix {
		out.Pix[i] = k.temperature(v)
	}
	return out
}

// PlanckRaw returns the raw count a perfect black body at t °C produces for
// the Planck constants in c. It is the inverse of the final step of Convert.
func PlanckRaw(c *Calibration, t float32) float32 {
	return c.PlanckR1/(c.PlanckR2*(exp32(c.PlanckB/(t+zeroCelsius))-c.PlanckF)) - c.PlanckO
}

// radiometry holds the per-frame terms of the conversion.
type radiometry struct {
	emissivity float32
	tau1       float32
	tau2       float32
	irt        float32
	r1, r2     float32
	b, f, o    float32

	// Attenuated raw counts subtracted from every pixel.
	atm1  float32
	atm2  float32
	wind  float32
	refl1 float32
	refl2 float32
}

func newRadiometry(c *Calibration) *radiometry {
	e := c.Emissivity
	irt := c.IRWindowTransmission
	aTemp := c.AtmosphericTemperature
	emissWind := 1 - irt
	var reflWind float32

	// Water vapor partial pressure.
	h2o := (c.RelativeHumidity / 100) * exp32(1.5587+0.06939*aTemp-0.00027816*aTemp*aTemp+0.00000068455*aTemp*aTemp*aTemp)

	// Both sides of the window use half of the object distance.
	halfDist := sqrt32(c.ObjectDistance / 2)
	sqrtH2O := sqrt32(h2o)
	tau := c.AtmosphericTransX*exp32(-halfDist*(c.AtmosphericTransAlpha1+c.AtmosphericTransBeta1*sqrtH2O)) +
		(1-c.AtmosphericTransX)*exp32(-halfDist*(c.AtmosphericTransAlpha2+c.AtmosphericTransBeta2*sqrtH2O))
	tau1 := tau
	tau2 := tau

	r := &radiometry{
		emissivity: e,
		tau1:       tau1,
		tau2:       tau2,
		irt:        irt,
		r1:         c.PlanckR1,
		r2:         c.PlanckR2,
		b:          c.PlanckB,
		f:          c.PlanckF,
		o:          c.PlanckO,
	}

	rawRefl1 := PlanckRaw(c, c.ReflectedApparentTemperature)
	r.refl1 = (1 - e) / e * rawRefl1

	rawAtm1 := PlanckRaw(c, aTemp)
	r.atm1 = (1 - tau1) / e / tau1 * rawAtm1

	rawWind := PlanckRaw(c, c.IRWindowTemperature)
	r.wind = emissWind / e / tau1 / irt * rawWind

	rawRefl2 := PlanckRaw(c, c.ReflectedApparentTemperature)
	r.refl2 = reflWind / e / tau1 / irt * rawRefl2

	rawAtm2 := PlanckRaw(c, aTemp)
	r.atm2 = (1 - tau2) / e / tau1 / irt / tau2 * rawAtm2
	return r
}

// temperature converts a single raw count.
func (r *radiometry) temperature(raw float32) float32 {
	obj := raw/r.emissivity/r.tau1/r.irt/r.tau2 - r.atm1 - r.atm2 - r.wind - r.refl1 - r.refl2
	return r.b/log32(r.r1/(r.r2*(obj+r.o))+r.f) - zeroCelsius
}

func exp32(x float32) float32 {
	return float32(math.Exp(float64(x)))
}

func log32(x float32) float32 {
	return float32(math.Log(float64(x)))
}

func sqrt32(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}
