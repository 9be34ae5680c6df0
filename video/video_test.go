// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package video

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruel/go-csq/csq"
)

type fakeEncoder struct {
	mu     sync.Mutex
	frames []uint8 // Red channel of the first pixel of each frame.
	closed bool
	failAt int
	block  chan struct{}
}

func (f *fakeEncoder) WriteFrame(img *image.RGBA) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("write after close")
	}
	if f.failAt != 0 && len(f.frames) == f.failAt {
		return errors.New("disk full")
	}
	f.frames = append(f.frames, img.Pix[0])
	return nil
}

func (f *fakeEncoder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// firstPixel renders the first temperature as the red channel.
func firstPixel(g *csq.TemperatureGrid) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	img.Pix[0] = uint8(g.Pix[0])
	return img
}

func frame(i int) *csq.Frame {
	return &csq.Frame{Index: i, Temperatures: &csq.TemperatureGrid{Width: 1, Height: 1, Pix: []float32{float32(i)}}}
}

func TestSink_Order(t *testing.T) {
	enc := &fakeEncoder{block: make(chan struct{})}
	s := NewSink(enc, firstPixel, nil)
	for i := 0; i < 50; i++ {
		require.NoError(t, s.Send(frame(i)))
	}
	// The producer is never blocked by a slow encoder.
	close(enc.block)
	require.NoError(t, s.Close())
	require.Len(t, enc.frames, 50)
	for i, v := range enc.frames {
		assert.Equal(t, uint8(i), v)
	}
	assert.True(t, enc.closed)
	assert.Equal(t, 50, s.Written())
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, ErrClosed, s.Send(frame(51)))
	assert.Equal(t, ErrClosed, s.Close())
}

func TestSink_ConcurrentSend(t *testing.T) {
	enc := &fakeEncoder{}
	s := NewSink(enc, firstPixel, nil)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				assert.NoError(t, s.Send(frame(i)))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, s.Close())
	assert.Len(t, enc.frames, 100)
}

func TestSink_Error(t *testing.T) {
	enc := &fakeEncoder{failAt: 2}
	s := NewSink(enc, firstPixel, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Send(frame(i)))
	}
	err := s.Close()
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, []uint8{0, 1}, enc.frames)
	assert.True(t, enc.closed)
}

func TestSink_Empty(t *testing.T) {
	enc := &fakeEncoder{}
	s := NewSink(enc, firstPixel, nil)
	require.NoError(t, s.Close())
	assert.True(t, enc.closed)
	assert.Empty(t, enc.frames)
}

func TestRGB24(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{1, 2, 3, 255})
	img.SetRGBA(1, 0, color.RGBA{4, 5, 6, 255})
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, RGB24(nil, img))
	sub := img.SubImage(image.Rect(1, 0, 2, 1)).(*image.RGBA)
	assert.Equal(t, []byte{4, 5, 6}, RGB24(nil, sub))
}

func TestFFmpeg_Args(t *testing.T) {
	f := &FFmpeg{Output: "out.mp4"}
	args := f.Args(640, 480)
	assert.Contains(t, args, "640x480")
	assert.Contains(t, args, "libx264")
	assert.Contains(t, args, "yuv420p")
	assert.Equal(t, "30", args[indexOf(args, "-r")+1])
	assert.Equal(t, "out.mp4", args[len(args)-1])

	f = &FFmpeg{Output: "out.mkv", FPS: 8.7, Codec: "ffv1", PixFmt: "bgr0"}
	args = f.Args(3, 3)
	assert.Equal(t, "8.7", args[indexOf(args, "-r")+1])
	assert.Equal(t, "ffv1", args[indexOf(args, "-c:v")+1])
}

func indexOf(s []string, v string) int {
	for i := range s {
		if s[i] == v {
			return i
		}
	}
	return -1
}

func TestFFmpeg_NoFrame(t *testing.T) {
	assert.Error(t, (&FFmpeg{Output: "x.mp4"}).Close())
	assert.Error(t, (&FFmpeg{}).WriteFrame(image.NewRGBA(image.Rect(0, 0, 1, 1))))
}

func TestFFmpeg(t *testing.T) {
	p, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	out := filepath.Join(t.TempDir(), "out.mkv")
	f := &FFmpeg{Path: p, Output: out, Codec: "ffv1", PixFmt: "bgr0"}
	for i := 0; i < 3; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 7, 5))
		img.Pix[0] = uint8(i)
		require.NoError(t, f.WriteFrame(img))
	}
	assert.Error(t, f.WriteFrame(image.NewRGBA(image.Rect(0, 0, 8, 5))))
	require.NoError(t, f.Close())
	st, err := os.Stat(out)
	require.NoError(t, err)
	assert.NotZero(t, st.Size())
}

func TestFFmpeg_ProcessExits(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("needs a POSIX shell")
	}
	// Stops reading its input and keeps writing to stderr before exiting.
	script := "#!/bin/sh\n" +
		"exec 0<&-\n" +
		"i=0\n" +
		"while [ $i -lt 2000 ]; do echo \"bad frame $i\" >&2; i=$((i+1)); done\n" +
		"exit 1\n"
	p := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(p, []byte(script), 0o700))
	f := &FFmpeg{Path: p, Output: filepath.Join(t.TempDir(), "out.mp4")}
	var err error
	for i := 0; i < 20 && err == nil; i++ {
		err = f.WriteFrame(image.NewRGBA(image.Rect(0, 0, 512, 512)))
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg: ")
	err = f.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad frame 1999")
	assert.LessOrEqual(t, len(f.stderr.String()), maxStderr)
}

func TestLockedBuffer(t *testing.T) {
	var l lockedBuffer
	line := make([]byte, 1000)
	for i := range line {
		line[i] = 'a'
	}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = l.Write(line)
				_ = l.String()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, l.String(), maxStderr)
}

func TestPNGSequence(t *testing.T) {
	dir := t.TempDir()
	p := &PNGSequence{Dir: dir}
	s := NewSink(p, firstPixel, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Send(frame(i+10)))
	}
	require.NoError(t, s.Close())
	assert.Equal(t, 3, p.Frames())
	f, err := os.Open(filepath.Join(dir, "frame-000002.png"))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	r, _, _, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(12)*0x101, r)
}
