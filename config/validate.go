// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"strings"
)

var palettes = []string{"blackbody", "bluered", "gray", "rainbow"}

// MaxFPS is the highest accepted frame rate.
const MaxFPS = 1000

func (c *Config) Validate() error {
	if c.Reader.BlockSize <= 0 {
		return fmt.Errorf("reader config: block_size must be positive")
	}
	if c.Exiftool.Path == "" {
		return fmt.Errorf("exiftool config: path is required")
	}
	if err := c.Render.Validate(); err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	if err := c.Video.Validate(); err != nil {
		return fmt.Errorf("video config: %w", err)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server config: invalid port: %d", c.Server.Port)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (r *RenderConfig) Validate() error {
	found := false
	for _, p := range palettes {
		if p == r.Palette {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("invalid palette %q; valid: %s", r.Palette, strings.Join(palettes, ", "))
	}
	if r.Min > r.Max {
		return fmt.Errorf("min %g is above max %g", r.Min, r.Max)
	}
	return nil
}

func (v *VideoConfig) Validate() error {
	if !(v.FPS > 0 && v.FPS <= MaxFPS) {
		return fmt.Errorf("fps %g must be in (0, %d]", v.FPS, MaxFPS)
	}
	if v.Codec == "" {
		return fmt.Errorf("codec is required")
	}
	return nil
}

func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("invalid port: %d", m.Port)
	}
	if !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("path must start with /")
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "panic", "fatal", "error", "warn", "warning", "info", "debug", "trace":
	default:
		return fmt.Errorf("invalid log level: %s", l.Level)
	}
	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("invalid log format: %s", l.Format)
	}
	if l.Output == "" {
		return fmt.Errorf("output is required")
	}
	return nil
}
