// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the configuration shared by the commands.
//
// Values come, by increasing priority, from the defaults, an optional YAML
// file and CSQ_* environment variables, e.g. CSQ_VIDEO_FPS=25.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables overriding the
// configuration.
const EnvPrefix = "CSQ"

type Config struct {
	Reader   ReaderConfig   `mapstructure:"reader"`
	Exiftool ExiftoolConfig `mapstructure:"exiftool"`
	Decoder  DecoderConfig  `mapstructure:"decoder"`
	Render   RenderConfig   `mapstructure:"render"`
	Video    VideoConfig    `mapstructure:"video"`
	Server   ServerConfig   `mapstructure:"server"`
	Stats    StatsConfig    `mapstructure:"stats"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ReaderConfig struct {
	BlockSize int `mapstructure:"block_size"`
}

type ExiftoolConfig struct {
	Path      string   `mapstructure:"path"`
	ExtraArgs []string `mapstructure:"extra_args"`
}

type DecoderConfig struct {
	Command     []string `mapstructure:"command"`       // Reads JPEG on stdin, writes 16 bits PNG on stdout.
	PNGByteSwap bool     `mapstructure:"png_byte_swap"` // FLIR PNG are little endian.
}

type RenderConfig struct {
	Palette string  `mapstructure:"palette"` // blackbody, bluered, rainbow or gray
	Min     float32 `mapstructure:"min"`     // °C; auto range when Min == Max
	Max     float32 `mapstructure:"max"`
}

type VideoConfig struct {
	Output string  `mapstructure:"output"` // File, or directory for a PNG sequence.
	FPS    float64 `mapstructure:"fps"`
	Codec  string  `mapstructure:"codec"`
	PixFmt string  `mapstructure:"pix_fmt"`
	FFmpeg string  `mapstructure:"ffmpeg"`
}

type ServerConfig struct {
	Port int  `mapstructure:"port"`
	Loop bool `mapstructure:"loop"`
}

type StatsConfig struct {
	DB string `mapstructure:"db"` // Empty disables recording.
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or text
	Output     string `mapstructure:"output"` // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// Load reads the configuration. configPath can be empty to only use the
// defaults and the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variable override
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns the default configuration.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("reader.block_size", 1000000)

	v.SetDefault("exiftool.path", "exiftool")
	v.SetDefault("exiftool.extra_args", []string{})

	v.SetDefault("decoder.command", []string{"convert", "-", "png:-"})
	v.SetDefault("decoder.png_byte_swap", true)

	v.SetDefault("render.palette", "rainbow")
	v.SetDefault("render.min", 0)
	v.SetDefault("render.max", 0)

	v.SetDefault("video.output", "out.mp4")
	v.SetDefault("video.fps", 30)
	v.SetDefault("video.codec", "libx264")
	v.SetDefault("video.pix_fmt", "yuv420p")
	v.SetDefault("video.ffmpeg", "ffmpeg")

	v.SetDefault("server.port", 8010)
	v.SetDefault("server.loop", true)

	v.SetDefault("stats.db", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)
}
