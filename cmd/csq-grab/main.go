// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// csq-grab saves a single frame of a CSQ file as a PNG.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/maruel/interrupt"

	"github.com/maruel/go-csq/config"
	"github.com/maruel/go-csq/csq"
	"github.com/maruel/go-csq/internal/pipeline"
	"github.com/maruel/go-csq/logging"
	"github.com/maruel/go-csq/render"
)

// grab returns the n-th frame converted successfully.
func grab(r *csq.Reader, n int) (*csq.Frame, error) {
	for i := 0; !interrupt.IsSet(); {
		f, err := r.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("only %d frames in the file", i)
		}
		if err != nil {
			if csq.IsFrameError(err) || csq.IsBlockError(err) {
				continue
			}
			return nil, err
		}
		if i == n {
			return f, nil
		}
		i++
	}
	return nil, errors.New("interrupted")
}

func printMeta(w io.Writer, f *csq.Frame) {
	fmt.Fprintf(w, "Frame:        %d\n", f.Index)
	fmt.Fprintf(w, "Size:         %dx%d (%d bytes)\n", f.Temperatures.Width, f.Temperatures.Height, f.Size)
	for _, v := range f.Calibration.Values() {
		fmt.Fprintf(w, "%-24s %g\n", v.Name+":", v.Value)
	}
	s := f.Temperatures.Stats()
	fmt.Fprintf(w, "Min:          %s\n", s.MinTemp())
	fmt.Fprintf(w, "Max:          %s\n", s.MaxTemp())
	fmt.Fprintf(w, "Mean:         %s\n", s.MeanTemp())
}

func mainImpl() error {
	cfgPath := flag.String("config", "", "YAML configuration file")
	n := flag.Int("n", 0, "0 based index of the frame to save, counting only valid frames")
	agc := flag.Bool("agc", false, "save a 8 bits gray PNG instead of a colorized one")
	raw := flag.Bool("raw", false, "save a 16 bits PNG of the temperature in 0.01°K")
	palette := flag.String("palette", "", "color palette: blackbody, bluered, gray or rainbow")
	meta := flag.Bool("meta", false, "print metadata")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()

	if flag.NArg() != 2 {
		return errors.New("supply path to the CSQ file and to the PNG to save")
	}
	if *agc && *raw {
		return errors.New("use only one of -agc and -raw")
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *palette != "" {
		cfg.Render.Palette = *palette
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

	r, err := csq.Open(flag.Arg(0), pipeline.ReaderOptions(cfg, logging.WithFile(log, flag.Arg(0)), nil))
	if err != nil {
		return err
	}
	defer r.Close()
	frame, err := grab(r, *n)
	if err != nil {
		return err
	}
	if *meta {
		printMeta(os.Stdout, frame)
	}

	var img image.Image
	switch {
	case *agc:
		img = render.AGC(frame.Temperatures)
	case *raw:
		img = render.CentiK(frame.Temperatures)
	default:
		rdr, err := pipeline.Renderer(&cfg.Render)
		if err != nil {
			return err
		}
		img = rdr.Render(frame.Temperatures)
	}
	f, err := os.Create(flag.Arg(1))
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return err
	}
	return f.Close()
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\ncsq-grab: %s.\n", err)
		os.Exit(1)
	}
}
