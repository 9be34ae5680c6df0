// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pipeline

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruel/go-csq/config"
	"github.com/maruel/go-csq/csq"
	"github.com/maruel/go-csq/csqtest"
	"github.com/maruel/go-csq/exiftool"
	"github.com/maruel/go-csq/rawimage"
	"github.com/maruel/go-csq/video"
)

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestReaderOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Exiftool.Path = "/opt/exiftool"
	cfg.Decoder.PNGByteSwap = false
	cfg.Reader.BlockSize = 4096
	o := ReaderOptions(cfg, quiet(), nil)
	tool, ok := o.Metadata.(*exiftool.Cache)
	require.True(t, ok)
	assert.Equal(t, "/opt/exiftool", tool.Tool.Path)
	dec, ok := o.Decoder.(*rawimage.Decoder)
	require.True(t, ok)
	assert.Same(t, tool, dec.Extractor)
	assert.True(t, dec.NativePNG)
	assert.Equal(t, 4096, o.BlockSize)
	assert.Nil(t, o.Observer)
}

func TestReaderOptions_OneFilePerFrame(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()
	var lines []string
	for k, v := range csqtest.Tags() {
		lines = append(lines, k+": "+v)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tags.txt"), []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	g := csqtest.Uniform(csqtest.Calibration(), 4, 3, 25)
	img := image.NewGray16(image.Rect(0, 0, g.Width, g.Height))
	for i, v := range g.Pix {
		img.Pix[2*i] = uint8(uint16(v) >> 8)
		img.Pix[2*i+1] = uint8(v)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "raw.png"), buf.Bytes(), 0o600))
	// Logs the mode and the file of every invocation.
	calls := filepath.Join(dir, "calls.txt")
	script := "#!/bin/sh\n" +
		"for a; do last=$a; done\n" +
		"echo \"$1 $last\" >> '" + calls + "'\n" +
		"case \"$1\" in\n" +
		"-ver) echo 12.76 ;;\n" +
		"-b) cat '" + filepath.Join(dir, "raw.png") + "' ;;\n" +
		"-s2) cat '" + filepath.Join(dir, "tags.txt") + "' ;;\n" +
		"*) exit 2 ;;\n" +
		"esac\n"
	tool := filepath.Join(dir, "exiftool")
	require.NoError(t, os.WriteFile(tool, []byte(script), 0o700))

	cfg := config.Default()
	cfg.Exiftool.Path = tool
	cfg.Decoder.PNGByteSwap = false
	stream := csqtest.Stream(nil, []byte(csq.Marker+"frame 0"), []byte(csq.Marker+"frame 1"), []byte(csq.Marker+"frame 2"))
	r, err := csq.NewReader(bytes.NewReader(stream), ReaderOptions(cfg, quiet(), nil))
	require.NoError(t, err)
	n := 0
	require.NoError(t, r.Each(func(i int, f *csq.Frame, err error) bool {
		require.NoError(t, err)
		assert.Equal(t, 4, f.Temperatures.Width)
		n++
		return true
	}))
	assert.Equal(t, 3, n)

	b, err := os.ReadFile(calls)
	require.NoError(t, err)
	var got [][]string
	for _, l := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		got = append(got, strings.Fields(l))
	}
	// One metadata run and one raw image run per frame, on the same file.
	require.Len(t, got, 6)
	files := map[string]bool{}
	for i := 0; i < len(got); i += 2 {
		require.Len(t, got[i], 2)
		require.Len(t, got[i+1], 2)
		assert.Equal(t, "-s2", got[i][0])
		assert.Equal(t, "-b", got[i+1][0])
		assert.Equal(t, got[i][1], got[i+1][1])
		files[got[i][1]] = true
	}
	assert.Len(t, files, 3)
}

func TestRenderer(t *testing.T) {
	cfg := config.Default()
	cfg.Render.Palette = "gray"
	cfg.Render.Min, cfg.Render.Max = 10, 30
	r, err := Renderer(&cfg.Render)
	require.NoError(t, err)
	assert.Equal(t, float32(10), r.Min)
	assert.Equal(t, Invalid, r.Invalid)

	cfg.Render.Palette = "nope"
	_, err = Renderer(&cfg.Render)
	assert.Error(t, err)
}

func TestEncoder(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()

	cfg.Video.Output = filepath.Join(dir, "clip.mp4")
	e, err := Encoder(&cfg.Video, quiet())
	require.NoError(t, err)
	f, ok := e.(*video.FFmpeg)
	require.True(t, ok)
	assert.Equal(t, cfg.Video.Output, f.Output)
	assert.Equal(t, 30., f.FPS)

	cfg.Video.Output = filepath.Join(dir, "frames") + "/"
	e, err = Encoder(&cfg.Video, quiet())
	require.NoError(t, err)
	_, ok = e.(*video.PNGSequence)
	assert.True(t, ok)
	assert.True(t, IsSequence(filepath.Join(dir, "frames")))
	assert.False(t, IsSequence(filepath.Join(dir, "clip.mp4")))
}
