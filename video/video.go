// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package video encodes colorized thermal frames.
package video

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Encoder writes frames of identical size to a video.
type Encoder interface {
	WriteFrame(img *image.RGBA) error
	// Close finalizes the output.
	Close() error
}

// FFmpeg pipes raw RGB frames to an ffmpeg process.
//
// The process is started on the first frame, once the size is known.
type FFmpeg struct {
	Path   string  // Defaults to "ffmpeg".
	Output string  // Output file; the container is deduced from its extension.
	FPS    float64 // Defaults to 30.
	Codec  string  // Defaults to "libx264".
	PixFmt string  // Defaults to "yuv420p".
	Log    logrus.FieldLogger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr lockedBuffer
	size   image.Point
	buf    []byte
	frames int
}

// Args returns the ffmpeg arguments for frames of w×h pixels.
func (f *FFmpeg) Args(w, h int) []string {
	fps := f.FPS
	if fps <= 0 {
		fps = 30
	}
	codec := f.Codec
	if codec == "" {
		codec = "libx264"
	}
	pixFmt := f.PixFmt
	if pixFmt == "" {
		pixFmt = "yuv420p"
	}
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo", "-pix_fmt", "rgb24",
		"-s", strconv.Itoa(w) + "x" + strconv.Itoa(h),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		// yuv420p requires even dimensions.
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", codec, "-pix_fmt", pixFmt,
		f.Output,
	}
}

// WriteFrame implements Encoder.
func (f *FFmpeg) WriteFrame(img *image.RGBA) error {
	size := img.Bounds().Size()
	if f.cmd == nil {
		if err := f.start(size); err != nil {
			return err
		}
	} else if size != f.size {
		return fmt.Errorf("frame %d is %s, expected %s", f.frames, size, f.size)
	}
	f.buf = RGB24(f.buf[:0], img)
	if _, err := f.stdin.Write(f.buf); err != nil {
		// ffmpeg may still be running and writing to stderr.
		return fmt.Errorf("ffmpeg: %w: %s", err, f.stderr.String())
	}
	f.frames++
	return nil
}

// Close implements Encoder.
func (f *FFmpeg) Close() error {
	if f.cmd == nil {
		return errors.New("ffmpeg: no frame was written")
	}
	err := f.stdin.Close()
	if err2 := f.cmd.Wait(); err2 != nil {
		err = fmt.Errorf("ffmpeg: %w: %s", err2, f.stderr.String())
	}
	if err == nil && f.Log != nil {
		f.Log.WithFields(logrus.Fields{"output": f.Output, "frames": f.frames}).Info("video written")
	}
	f.cmd = nil
	return err
}

func (f *FFmpeg) start(size image.Point) error {
	if f.Output == "" {
		return errors.New("ffmpeg: no output")
	}
	path := f.Path
	if path == "" {
		path = "ffmpeg"
	}
	args := f.Args(size.X, size.Y)
	cmd := exec.Command(path, args...)
	cmd.Stderr = &f.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	if f.Log != nil {
		f.Log.WithField("args", strings.Join(args, " ")).Debug("ffmpeg started")
	}
	f.cmd = cmd
	f.stdin = stdin
	f.size = size
	return nil
}

// lockedBuffer collects the process stderr. exec copies into it from its own
// goroutine until Wait returns.
type lockedBuffer struct {
	mu  sync.Mutex
	buf []byte
}

// maxStderr bounds the retained tail of ffmpeg's stderr.
const maxStderr = 64 * 1024

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, p...)
	if len(l.buf) > maxStderr {
		l.buf = append(l.buf[:0], l.buf[len(l.buf)-maxStderr:]...)
	}
	return len(p), nil
}

// String returns the trimmed content written so far.
func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.TrimSpace(string(l.buf))
}

// RGB24 appends the pixels of img to dst, 3 bytes per pixel, dropping alpha.
func RGB24(dst []byte, img *image.RGBA) []byte {
	r := img.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := img.PixOffset(r.Min.X, y)
		for x := 0; x < r.Dx(); x++ {
			dst = append(dst, img.Pix[off+4*x:off+4*x+3]...)
		}
	}
	return dst
}

// PNGSequence writes each frame as a numbered PNG file in Dir.
type PNGSequence struct {
	Dir    string
	Prefix string // Defaults to "frame-".
	frames int
}

// WriteFrame implements Encoder.
func (p *PNGSequence) WriteFrame(img *image.RGBA) error {
	prefix := p.Prefix
	if prefix == "" {
		prefix = "frame-"
	}
	f, err := os.Create(filepath.Join(p.Dir, fmt.Sprintf("%s%06d.png", prefix, p.frames)))
	if err != nil {
		return err
	}
	err = png.Encode(f, img)
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err == nil {
		p.frames++
	}
	return err
}

// Close implements Encoder.
func (p *PNGSequence) Close() error {
	return nil
}

// Frames returns the number of files written.
func (p *PNGSequence) Frames() int {
	return p.frames
}
