// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package exiftool extracts the FLIR calibration tags and the raw thermal
// image of a frame by running the exiftool program.
//
// Each frame is written to its own temporary file, which is removed once
// exiftool returns, whatever the outcome. Cache runs both extractions on the
// same temporary file.
package exiftool

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maruel/go-csq/csq"
)

// ErrUnavailable is returned by Available when exiftool cannot be run.
var ErrUnavailable = errors.New("exiftool is not available")

// DefaultTimeout bounds a single exiftool invocation.
const DefaultTimeout = 30 * time.Second

// Tool runs exiftool. The zero value is usable.
type Tool struct {
	Path    string        // Defaults to "exiftool" in $PATH.
	Args    []string      // Extra arguments passed before the file name.
	Timeout time.Duration // Defaults to DefaultTimeout.
	TempDir string        // Defaults to os.TempDir().
	Log     logrus.FieldLogger
}

// Available returns an error wrapping ErrUnavailable if exiftool cannot be
// found or does not run.
func (t *Tool) Available() error {
	p, err := exec.LookPath(t.path())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	out, err := t.run(context.Background(), p, "-ver")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	t.log().WithFields(logrus.Fields{"path": p, "version": strings.TrimSpace(string(out))}).Debug("exiftool found")
	return nil
}

// Version returns the version reported by exiftool.
func (t *Tool) Version() (string, error) {
	out, err := t.run(context.Background(), t.path(), "-ver")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ExtractMetadata implements csq.MetadataExtractor.
//
// It returns every tag exiftool reports for the frame, keyed by the short
// tag name, e.g. "PlanckR1".
func (t *Tool) ExtractMetadata(frame []byte) (map[string]string, error) {
	var tags map[string]string
	err := WithTempFile(t.TempDir, frame, func(path string) error {
		var err error
		tags, err = t.metadata(context.Background(), path)
		return err
	})
	if err != nil {
		return nil, wrap(err)
	}
	return tags, nil
}

// RawThermalImage returns the embedded raw sensor image of the frame, as
// stored in the file: PNG, TIFF or JPEG.
func (t *Tool) RawThermalImage(frame []byte) ([]byte, error) {
	var img []byte
	err := WithTempFile(t.TempDir, frame, func(path string) error {
		var err error
		img, err = t.rawThermalImage(context.Background(), path)
		return err
	})
	if err != nil {
		return nil, wrap(err)
	}
	return img, nil
}

// Extract returns both the tags and the raw thermal image of the frame, with
// a single temporary file.
func (t *Tool) Extract(frame []byte) (map[string]string, []byte, error) {
	e := t.extract(frame)
	if e.tagsErr != nil {
		return nil, nil, e.tagsErr
	}
	if e.imgErr != nil {
		return nil, nil, e.imgErr
	}
	return e.tags, e.img, nil
}

// extraction is the outcome of both exiftool runs on one frame. Each half
// fails independently.
type extraction struct {
	tags    map[string]string
	tagsErr error
	img     []byte
	imgErr  error
}

func (t *Tool) extract(frame []byte) extraction {
	var e extraction
	err := WithTempFile(t.TempDir, frame, func(path string) error {
		ctx := context.Background()
		e.tags, e.tagsErr = t.metadata(ctx, path)
		e.img, e.imgErr = t.rawThermalImage(ctx, path)
		return nil
	})
	if err != nil {
		e.tagsErr, e.imgErr = err, err
	}
	if e.tagsErr != nil {
		e.tags, e.tagsErr = nil, wrap(e.tagsErr)
	}
	if e.imgErr != nil {
		e.img, e.imgErr = nil, wrap(e.imgErr)
	}
	return e
}

// WithTempFile writes data to a new temporary file in dir, calls fn with its
// path and removes the file before returning.
func WithTempFile(dir string, data []byte, fn func(path string) error) error {
	f, err := os.CreateTemp(dir, "csq-frame-*.fff")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	_, err = f.Write(data)
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		return err
	}
	return fn(f.Name())
}

// ParseShort parses the output of "exiftool -s2", one "Tag: value" per line.
// Padding around the separator, as printed by "-s", is accepted. Lines without
// a separator are ignored. When a tag is repeated, the first value wins.
func ParseShort(r io.Reader) (map[string]string, error) {
	out := map[string]string{}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		k, v, ok := strings.Cut(s.Text(), ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" || strings.ContainsAny(k, " \t") {
			continue
		}
		if _, ok := out[k]; !ok {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out, s.Err()
}

func (t *Tool) metadata(ctx context.Context, path string) (map[string]string, error) {
	start := time.Now()
	args := append([]string{"-s2"}, t.Args...)
	out, err := t.run(ctx, t.path(), append(args, path)...)
	if err != nil {
		return nil, err
	}
	tags, err := ParseShort(bytes.NewReader(out))
	if err != nil {
		return nil, err
	}
	t.log().WithFields(logrus.Fields{"tags": len(tags), "elapsed": time.Since(start)}).Debug("metadata")
	return tags, nil
}

func (t *Tool) rawThermalImage(ctx context.Context, path string) ([]byte, error) {
	args := append([]string{"-b", "-RawThermalImage"}, t.Args...)
	out, err := t.run(ctx, t.path(), append(args, path)...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("no RawThermalImage in frame")
	}
	return out, nil
}

func (t *Tool) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && len(ee.Stderr) != 0 {
			return nil, fmt.Errorf("%s %s: %w: %s", name, args[0], err, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("%s %s: %w", name, args[0], err)
	}
	return out, nil
}

func (t *Tool) path() string {
	if t.Path == "" {
		return "exiftool"
	}
	return t.Path
}

func (t *Tool) log() logrus.FieldLogger {
	if t.Log == nil {
		return discard
	}
	return t.Log
}

var discard = &logrus.Logger{Out: io.Discard, Formatter: new(logrus.TextFormatter), Hooks: make(logrus.LevelHooks), Level: logrus.PanicLevel}

func wrap(err error) error {
	return fmt.Errorf("%w: %w", csq.ErrMetadataTool, err)
}
