// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// csq-info prints the calibration and the temperatures of a CSQ file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/maruel/interrupt"

	"github.com/maruel/go-csq/config"
	"github.com/maruel/go-csq/csq"
	"github.com/maruel/go-csq/exiftool"
	"github.com/maruel/go-csq/internal/pipeline"
	"github.com/maruel/go-csq/logging"
)

func printFrame(w io.Writer, f *csq.Frame) {
	c := f.Calibration
	fmt.Fprintf(w, "Frame:                        %d\n", f.Index)
	fmt.Fprintf(w, "Size:                         %dx%d (%d bytes)\n", f.Temperatures.Width, f.Temperatures.Height, f.Size)
	for _, k := range c.InfoKeys() {
		v, _ := c.Info(k)
		fmt.Fprintf(w, "%-29s %s\n", k+":", v)
	}
	for _, v := range c.Values() {
		fmt.Fprintf(w, "%-29s %g\n", v.Name+":", v.Value)
	}
	fmt.Fprintf(w, "Reflected:                    %s\n", c.ReflectedTemp())
	fmt.Fprintf(w, "Atmosphere:                   %s\n", c.AtmosphericTemp())
	fmt.Fprintf(w, "Window:                       %s\n", c.WindowTemp())
	s := f.Temperatures.Stats()
	fmt.Fprintf(w, "Min:                          %s\n", s.MinTemp())
	fmt.Fprintf(w, "Max:                          %s\n", s.MaxTemp())
	fmt.Fprintf(w, "Mean:                         %s\n", s.MeanTemp())
	fmt.Fprintf(w, "StdDev:                       %.2f°C\n", s.StdDev)
	if s.NonFinite != 0 {
		fmt.Fprintf(w, "Invalid pixels:               %d\n", s.NonFinite)
	}
}

// summarize prints one line per frame and returns the reader statistics.
func summarize(w io.Writer, r *csq.Reader) (csq.Stats, error) {
	err := r.Each(func(i int, f *csq.Frame, err error) bool {
		if err != nil {
			fmt.Fprintf(w, "%5s  %s\n", "-", err)
		} else {
			s := f.Temperatures.Stats()
			fmt.Fprintf(w, "%5d  %8.2f %8.2f %8.2f %6.2f\n", f.Index, s.Min, s.Max, s.Mean, s.StdDev)
		}
		return !interrupt.IsSet()
	})
	return r.Stats(), err
}

func mainImpl() error {
	cfgPath := flag.String("config", "", "YAML configuration file")
	n := flag.Int("n", 0, "0 based index of the frame to describe, counting only valid frames")
	all := flag.Bool("all", false, "print the temperature range of every frame")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()

	if flag.NArg() != 1 {
		return errors.New("supply path to the CSQ file")
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	log, err := logging.New(&cfg.Logging)
	if err != nil {
		return err
	}
	defer logging.Close(log)
	interrupt.HandleCtrlC()

	opts := pipeline.ReaderOptions(cfg, logging.WithFile(log, flag.Arg(0)), nil)
	if t, ok := opts.Metadata.(*exiftool.Tool); ok {
		if v, err := t.Version(); err == nil {
			fmt.Printf("exiftool:                     %s\n", v)
		}
	}
	r, err := csq.Open(flag.Arg(0), opts)
	if err != nil {
		return err
	}
	defer r.Close()

	if *all {
		fmt.Printf("%5s  %8s %8s %8s %6s\n", "frame", "min", "max", "mean", "stddev")
		s, err := summarize(os.Stdout, r)
		fmt.Printf("%d frames, %d blocks, %d bytes, %d split errors, %d metadata errors, %d decode errors\n", s.GoodFrames, s.Blocks, s.BytesRead, s.SplitErrors, s.MetadataErrors, s.DecodeErrors)
		return err
	}
	for i := 0; !interrupt.IsSet(); {
		f, err := r.Next()
		if err == io.EOF {
			return fmt.Errorf("only %d frames in the file", i)
		}
		if err != nil {
			if csq.IsFrameError(err) || csq.IsBlockError(err) {
				log.WithError(err).Warn("Skipping")
				continue
			}
			return err
		}
		if i == *n {
			printFrame(os.Stdout, f)
			return nil
		}
		i++
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\ncsq-info: %s.\n", err)
		os.Exit(1)
	}
}
