// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package csq_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/periph/conn/physic"

	"github.com/maruel/go-csq/csq"
	"github.com/maruel/go-csq/csqtest"
)

func TestParseCalibration(t *testing.T) {
	c, err := csq.ParseCalibration(csqtest.Tags())
	require.NoError(t, err)
	assert.Equal(t, float32(0.95), c.Emissivity)
	assert.Equal(t, float32(1), c.ObjectDistance)
	assert.Equal(t, float32(20), c.AtmosphericTemperature)
	assert.Equal(t, float32(50), c.RelativeHumidity)
	assert.Equal(t, float32(21106.77), c.PlanckR1)
	assert.Equal(t, float32(-7340), c.PlanckO)
	assert.Equal(t, float32(1.9), c.AtmosphericTransX)

	v, ok := c.Info("CameraModel")
	assert.True(t, ok)
	assert.Equal(t, "FLIR T1020", v)
	assert.Equal(t, []string{"CameraModel", "FrameRate"}, c.InfoKeys())
	_, ok = c.Info("LensModel")
	assert.False(t, ok)
}

func TestParseCalibration_Annotated(t *testing.T) {
	tags := csqtest.Tags()
	tags["Emissivity"] = "1.0 (calculated)"
	c, err := csq.ParseCalibration(tags)
	require.NoError(t, err)
	assert.Equal(t, float32(1), c.Emissivity)
}

func TestParseCalibration_Missing(t *testing.T) {
	tags := csqtest.Tags()
	delete(tags, "Emissivity")
	_, err := csq.ParseCalibration(tags)
	require.Error(t, err)
	assert.True(t, errors.Is(err, csq.ErrMissingField))
	assert.True(t, csq.IsFrameError(err))
	var fe *csq.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "Emissivity", fe.Field)
}

func TestParseCalibration_Malformed(t *testing.T) {
	for _, v := range []string{"abc", "", "   ", "m 1.0"} {
		tags := csqtest.Tags()
		tags["PlanckB"] = v
		_, err := csq.ParseCalibration(tags)
		require.Error(t, err, "%q", v)
		assert.True(t, errors.Is(err, csq.ErrMalformedField), "%q: %v", v, err)
		assert.False(t, errors.Is(err, csq.ErrMissingField))
		var fe *csq.FieldError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, "PlanckB", fe.Field)
		assert.Equal(t, v, fe.Value)
	}
}

func TestParseCalibration_EveryField(t *testing.T) {
	for _, name := range csq.RequiredFields() {
		tags := csqtest.Tags()
		delete(tags, name)
		_, err := csq.ParseCalibration(tags)
		assert.True(t, errors.Is(err, csq.ErrMissingField), name)
		assert.Contains(t, err.Error(), name)
	}
}

func TestCalibration_Values(t *testing.T) {
	c := csqtest.Calibration()
	values := c.Values()
	require.Len(t, values, len(csq.RequiredFields()))
	assert.Equal(t, csq.NamedValue{Name: "Emissivity", Value: 0.95}, values[0])
	assert.Equal(t, csq.NamedValue{Name: "AtmosphericTransX", Value: 1.9}, values[len(values)-1])
	assert.Equal(t, physic.ZeroCelsius+20*physic.Celsius, c.AtmosphericTemp())
}

func TestErrorKind(t *testing.T) {
	data := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{csq.ErrStreamIO, "stream_io"},
		{csq.ErrNoMarkerFound, "no_marker"},
		{csq.ErrInsufficientMarkers, "insufficient_markers"},
		{&csq.FieldError{Field: "PlanckB", Kind: csq.ErrMissingField}, "missing_field"},
		{&csq.FieldError{Field: "PlanckB", Kind: csq.ErrMalformedField}, "malformed_field"},
		{csq.ErrDecode, "decode"},
		{csq.ErrMetadataTool, "metadata_tool"},
		{fmt.Errorf("%w: %w", csq.ErrDecode, csq.ErrMetadataTool), "metadata_tool"},
		{errors.New("oops"), "other"},
	}
	for _, line := range data {
		assert.Equal(t, line.want, csq.ErrorKind(line.err))
	}
}
