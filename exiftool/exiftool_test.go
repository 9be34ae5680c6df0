// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package exiftool

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruel/go-csq/csq"
	"github.com/maruel/go-csq/csqtest"
)

func TestParseShort(t *testing.T) {
	out := "ExifToolVersion: 12.76\n" +
		"FileName: csq-frame-1.fff\n" +
		"Emissivity: 0.95\n" +
		"ObjectDistance                  : 1.00 m\n" +
		"RelativeHumidity: 50.0 %\n" +
		"DateTimeOriginal: 2024:05:01 10:11:12.123+02:00\n" +
		"Emissivity: 0.10\n" +
		"Warning: [minor] Bad FLIR record\n" +
		"garbage line\n" +
		"Two Words: ignored\n"
	got, err := ParseShort(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "0.95", got["Emissivity"])
	assert.Equal(t, "1.00 m", got["ObjectDistance"])
	assert.Equal(t, "50.0 %", got["RelativeHumidity"])
	assert.Equal(t, "2024:05:01 10:11:12.123+02:00", got["DateTimeOriginal"])
	assert.Equal(t, "[minor] Bad FLIR record", got["Warning"])
	_, ok := got["Two Words"]
	assert.False(t, ok)
	assert.Len(t, got, 7)
}

func TestWithTempFile(t *testing.T) {
	dir := t.TempDir()
	var seen string
	err := WithTempFile(dir, []byte("FFF\x00RT"), func(path string) error {
		seen = path
		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "FFF\x00RT", string(b))
		return errors.New("tool failed")
	})
	assert.EqualError(t, err, "tool failed")
	_, err = os.Stat(seen)
	assert.True(t, os.IsNotExist(err), "temporary file was not removed")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAvailable_Missing(t *testing.T) {
	tool := Tool{Path: filepath.Join(t.TempDir(), "no-exiftool")}
	err := tool.Available()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

// fakeExiftool writes a shell script mimicking the exiftool invocations of
// Tool. Each invocation appends its first argument to calls.txt, next to the
// script.
func fakeExiftool(t *testing.T, tags map[string]string, raw string, fail bool) *Tool {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()
	var lines []string
	for k, v := range tags {
		lines = append(lines, k+": "+v)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tags.txt"), []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "raw.bin"), []byte(raw), 0o600))
	script := "#!/bin/sh\n" +
		"echo \"$1\" >> '" + filepath.Join(dir, "calls.txt") + "'\n"
	if fail {
		script += "echo 'Error: File format error' >&2\nexit 1\n"
	}
	script += "case \"$1\" in\n" +
		"-ver) echo 12.76 ;;\n" +
		"-b) cat '" + filepath.Join(dir, "raw.bin") + "' ;;\n" +
		"-s2) cat '" + filepath.Join(dir, "tags.txt") + "' ;;\n" +
		"*) exit 2 ;;\n" +
		"esac\n"
	p := filepath.Join(dir, "exiftool")
	require.NoError(t, os.WriteFile(p, []byte(script), 0o700))
	return &Tool{Path: p, TempDir: t.TempDir()}
}

func TestTool(t *testing.T) {
	tool := fakeExiftool(t, csqtest.Tags(), "\x89PNGraw", false)
	require.NoError(t, tool.Available())
	v, err := tool.Version()
	require.NoError(t, err)
	assert.Equal(t, "12.76", v)

	frame := []byte(csq.Marker + "payload")
	tags, err := tool.ExtractMetadata(frame)
	require.NoError(t, err)
	assert.Equal(t, csqtest.Tags(), tags)
	c, err := csq.ParseCalibration(tags)
	require.NoError(t, err)
	assert.Equal(t, float32(0.95), c.Emissivity)

	img, err := tool.RawThermalImage(frame)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNGraw", string(img))

	tags, img, err = tool.Extract(frame)
	require.NoError(t, err)
	assert.Len(t, tags, len(csqtest.Tags()))
	assert.Equal(t, "\x89PNGraw", string(img))

	entries, err := os.ReadDir(tool.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTool_Failure(t *testing.T) {
	tool := fakeExiftool(t, nil, "", true)
	_, err := tool.ExtractMetadata([]byte(csq.Marker))
	require.Error(t, err)
	assert.True(t, errors.Is(err, csq.ErrMetadataTool))
	assert.True(t, csq.IsFrameError(err))
	assert.Contains(t, err.Error(), "File format error")
	assert.True(t, errors.Is(tool.Available(), ErrUnavailable))
}

func TestTool_NoRawImage(t *testing.T) {
	tool := fakeExiftool(t, csqtest.Tags(), "", false)
	_, err := tool.RawThermalImage([]byte(csq.Marker))
	require.Error(t, err)
	assert.True(t, errors.Is(err, csq.ErrMetadataTool))
}

// calls returns the first argument of every invocation of the tool.
func calls(t *testing.T, tool *Tool) []string {
	b, err := os.ReadFile(filepath.Join(filepath.Dir(tool.Path), "calls.txt"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Fields(string(b))
}

func TestCache(t *testing.T) {
	tool := fakeExiftool(t, csqtest.Tags(), "\x89PNGraw", false)
	c := &Cache{Tool: tool}
	require.NoError(t, c.Available())
	buf := []byte(csq.Marker + "frame 0")
	tags, err := c.ExtractMetadata(buf)
	require.NoError(t, err)
	assert.Equal(t, csqtest.Tags(), tags)
	img, err := c.RawThermalImage(buf)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNGraw", string(img))
	assert.Equal(t, []string{"-ver", "-s2", "-b"}, calls(t, tool))

	// The buffer is reused for the next frame.
	copy(buf[len(csq.Marker):], "frame 1")
	_, err = c.RawThermalImage(buf)
	require.NoError(t, err)
	_, err = c.ExtractMetadata(buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"-ver", "-s2", "-b", "-s2", "-b"}, calls(t, tool))

	entries, err := os.ReadDir(tool.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCache_NoRawImage(t *testing.T) {
	tool := fakeExiftool(t, csqtest.Tags(), "", false)
	c := &Cache{Tool: tool}
	frame := []byte(csq.Marker)
	tags, err := c.ExtractMetadata(frame)
	require.NoError(t, err)
	assert.Len(t, tags, len(csqtest.Tags()))
	_, err = c.RawThermalImage(frame)
	require.Error(t, err)
	assert.True(t, errors.Is(err, csq.ErrMetadataTool))
	assert.Equal(t, []string{"-s2", "-b"}, calls(t, tool))
}

func TestCache_Failure(t *testing.T) {
	tool := fakeExiftool(t, nil, "", true)
	c := &Cache{Tool: tool}
	_, err := c.ExtractMetadata([]byte(csq.Marker))
	require.Error(t, err)
	assert.True(t, errors.Is(err, csq.ErrMetadataTool))
	_, err = c.RawThermalImage([]byte(csq.Marker))
	assert.True(t, errors.Is(err, csq.ErrMetadataTool))
	assert.Len(t, calls(t, tool), 2)
}

func TestTool_Real(t *testing.T) {
	p, err := exec.LookPath("exiftool")
	if err != nil {
		t.Skip("exiftool not installed")
	}
	tool := Tool{Path: p}
	require.NoError(t, tool.Available())
	// Not a FLIR file: exiftool still reports file level tags.
	tags, err := tool.ExtractMetadata([]byte(csq.Marker + "not really a frame"))
	if err == nil {
		_, err = csq.ParseCalibration(tags)
		assert.True(t, errors.Is(err, csq.ErrMissingField), "%v", err)
	}
}
