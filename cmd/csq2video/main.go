// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// csq2video converts a FLIR CSQ radiometric video into a colorized video or
// a directory of PNG files.
//
// Frames that cannot be converted are logged and skipped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"runtime/pprof"
	"time"

	"github.com/maruel/interrupt"
	"github.com/sirupsen/logrus"

	"github.com/maruel/go-csq/config"
	"github.com/maruel/go-csq/csq"
	"github.com/maruel/go-csq/framedb"
	"github.com/maruel/go-csq/internal/pipeline"
	"github.com/maruel/go-csq/logging"
	"github.com/maruel/go-csq/metrics"
	"github.com/maruel/go-csq/video"
)

// countingEncoder reports each encoded frame to the metrics.
type countingEncoder struct {
	video.Encoder
	m *metrics.Metrics
}

func (c *countingEncoder) WriteFrame(img *image.RGBA) error {
	if err := c.Encoder.WriteFrame(img); err != nil {
		return err
	}
	c.m.FrameEncoded()
	return nil
}

func mainImpl() error {
	cfgPath := flag.String("config", "", "YAML configuration file")
	out := flag.String("o", "", "output video file, or directory ending with / for PNG files")
	fps := flag.Float64("fps", 0, "output frame rate")
	palette := flag.String("palette", "", "color palette: blackbody, bluered, gray or rainbow")
	lo := flag.Float64("min", 0, "temperature in °C mapped to the coldest color; requires -max")
	hi := flag.Float64("max", 0, "temperature in °C mapped to the hottest color; requires -min. The range follows each frame when both are equal")
	db := flag.String("db", "", "SQLite file to record per frame statistics")
	metricsPort := flag.Int("metrics", 0, "serve Prometheus metrics on this port")
	cpuprofile := flag.String("cpuprofile", "", "dump CPU profile in file")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()

	if flag.NArg() != 1 {
		return errors.New("supply path to the CSQ file to convert")
	}
	input := flag.Arg(0)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	ranged := map[string]bool{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "o":
			cfg.Video.Output = *out
		case "fps":
			cfg.Video.FPS = *fps
		case "palette":
			cfg.Render.Palette = *palette
		case "min", "max":
			ranged[f.Name] = true
		case "db":
			cfg.Stats.DB = *db
		case "metrics":
			cfg.Metrics.Enabled = true
			cfg.Metrics.Port = *metricsPort
		case "v":
			if *verbose {
				cfg.Logging.Level = "debug"
			}
		}
	})
	if err := setRange(&cfg.Render, ranged["min"], ranged["max"], *lo, *hi); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logging.New(&cfg.Logging)
	if err != nil {
		return err
	}
	defer logging.Close(log)

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	interrupt.HandleCtrlC()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-interrupt.Channel:
			cancel()
		case <-ctx.Done():
		}
	}()

	var obs csq.Observer
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		obs = m
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Port, cfg.Metrics.Path, log); err != nil {
				log.WithError(err).Error("Metrics server error")
			}
		}()
	}

	var rec *recorder
	if cfg.Stats.DB != "" {
		if rec, err = newRecorder(cfg.Stats.DB, input); err != nil {
			return err
		}
		defer rec.close(log)
	}

	rdr, err := pipeline.Renderer(&cfg.Render)
	if err != nil {
		return err
	}
	enc, err := pipeline.Encoder(&cfg.Video, log)
	if err != nil {
		return err
	}
	if m != nil {
		enc = &countingEncoder{Encoder: enc, m: m}
	}

	r, err := csq.Open(input, pipeline.ReaderOptions(cfg, logging.WithFile(log, input), obs))
	if err != nil {
		return err
	}
	defer r.Close()

	start := time.Now()
	sink := video.NewSink(enc, rdr.Render, logging.WithComponent(log, "sink"))
	err = convert(r, sink, rec, m, log)
	if err2 := sink.Close(); err == nil {
		err = err2
	}
	s := r.Stats()
	if rec != nil {
		rec.stats = s
	}
	fmt.Fprintf(os.Stderr, "\r%d frames %d written %d split errors %d metadata errors %d decode errors in %s\n", s.GoodFrames, sink.Written(), s.SplitErrors, s.MetadataErrors, s.DecodeErrors, time.Since(start).Round(time.Millisecond))
	return err
}

// convert pulls every frame from r and sends it to sink.
// setRange applies -min and -max. They are only accepted together.
func setRange(r *config.RenderConfig, hasLo, hasHi bool, lo, hi float64) error {
	if hasLo != hasHi {
		return errors.New("-min and -max must be used together")
	}
	if hasLo {
		r.Min, r.Max = float32(lo), float32(hi)
	}
	return nil
}

func convert(r *csq.Reader, sink *video.Sink, rec *recorder, m *metrics.Metrics, log logrus.FieldLogger) error {
	last := time.Now()
	for !interrupt.IsSet() {
		f, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if !csq.IsFrameError(err) && !csq.IsBlockError(err) {
				return err
			}
			log.WithError(err).WithField("kind", csq.ErrorKind(err)).Warn("Skipping")
			rec.recordError(err, log)
			continue
		}
		rec.recordFrame(f, log)
		if err := sink.Send(f); err != nil {
			return err
		}
		if m != nil {
			m.SetQueue(sink.Pending())
		}
		if time.Since(last) > time.Second {
			last = time.Now()
			s := r.Stats()
			fmt.Fprintf(os.Stderr, "\r%d frames %d written %d errors", s.GoodFrames, sink.Written(), s.SplitErrors+s.MetadataErrors+s.DecodeErrors)
		}
	}
	log.Warn("Interrupted; finalizing the output")
	return nil
}

// recorder writes a run to a framedb. A nil recorder is a no-op.
type recorder struct {
	db    *framedb.DB
	run   string
	stats csq.Stats
}

func newRecorder(path, source string) (*recorder, error) {
	db, err := framedb.Open(path)
	if err != nil {
		return nil, err
	}
	run, err := db.StartRun(source)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &recorder{db: db, run: run}, nil
}

func (r *recorder) recordFrame(f *csq.Frame, log logrus.FieldLogger) {
	if r == nil {
		return
	}
	if err := r.db.RecordFrame(r.run, f); err != nil {
		log.WithError(err).Error("Failed to record frame")
	}
}

func (r *recorder) recordError(err error, log logrus.FieldLogger) {
	if r == nil {
		return
	}
	if err := r.db.RecordError(r.run, err); err != nil {
		log.WithError(err).Error("Failed to record error")
	}
}

func (r *recorder) close(log logrus.FieldLogger) {
	if err := r.db.EndRun(r.run, r.stats); err != nil {
		log.WithError(err).Error("Failed to end run")
	}
	if err := r.db.Close(); err != nil {
		log.WithError(err).Error("Failed to close database")
	}
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\ncsq2video: %s.\n", err)
		os.Exit(1)
	}
}
