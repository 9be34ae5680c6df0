// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pipeline assembles the packages of this module from a
// configuration, for use by the commands.
package pipeline

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/maruel/go-csq/config"
	"github.com/maruel/go-csq/csq"
	"github.com/maruel/go-csq/exiftool"
	"github.com/maruel/go-csq/rawimage"
	"github.com/maruel/go-csq/render"
	"github.com/maruel/go-csq/video"
)

// Invalid is the color of pixels without a valid temperature.
var Invalid = color.RGBA{A: 255}

// ReaderOptions returns the options to read CSQ files with exiftool. Each
// frame is written once to a temporary file, for both the tags and the raw
// image.
//
// obs may be nil.
func ReaderOptions(cfg *config.Config, log logrus.FieldLogger, obs csq.Observer) csq.ReaderOptions {
	tool := &exiftool.Cache{Tool: &exiftool.Tool{
		Path: cfg.Exiftool.Path,
		Args: cfg.Exiftool.ExtraArgs,
		Log:  log.WithField("component", "exiftool"),
	}}
	dec := &rawimage.Decoder{
		Extractor: tool,
		Command:   cfg.Decoder.Command,
		NativePNG: !cfg.Decoder.PNGByteSwap,
		Log:       log.WithField("component", "rawimage"),
	}
	return csq.ReaderOptions{
		Metadata:  tool,
		Decoder:   dec,
		BlockSize: cfg.Reader.BlockSize,
		Log:       log.WithField("component", "reader"),
		Observer:  obs,
	}
}

// Renderer returns the renderer described by cfg.
func Renderer(cfg *config.RenderConfig) (*render.Renderer, error) {
	p, err := render.NewPalette(cfg.Palette)
	if err != nil {
		return nil, err
	}
	return &render.Renderer{Palette: p, Min: cfg.Min, Max: cfg.Max, Invalid: Invalid}, nil
}

// IsSequence returns true when output designates a directory of PNG files
// instead of a video file.
func IsSequence(output string) bool {
	if strings.HasSuffix(output, "/") || strings.HasSuffix(output, string(filepath.Separator)) {
		return true
	}
	fi, err := os.Stat(output)
	return err == nil && fi.IsDir()
}

// Encoder returns the encoder writing to cfg.Output.
func Encoder(cfg *config.VideoConfig, log logrus.FieldLogger) (video.Encoder, error) {
	if IsSequence(cfg.Output) {
		if err := os.MkdirAll(cfg.Output, 0o755); err != nil {
			return nil, err
		}
		return &video.PNGSequence{Dir: cfg.Output}, nil
	}
	return &video.FFmpeg{
		Path:   cfg.FFmpeg,
		Output: cfg.Output,
		FPS:    cfg.FPS,
		Codec:  cfg.Codec,
		PixFmt: cfg.PixFmt,
		Log:    log.WithField("component", "ffmpeg"),
	}, nil
}
