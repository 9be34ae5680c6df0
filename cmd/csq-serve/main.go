// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// csq-serve plays a CSQ file in a web page.
//
// Frames are colorized on the server and pushed to the browsers over a
// WebSocket, with their calibration and temperature range. Prometheus metrics
// are served on the same port.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/maruel/interrupt"

	"github.com/maruel/go-csq/config"
	"github.com/maruel/go-csq/internal/pipeline"
	"github.com/maruel/go-csq/logging"
	"github.com/maruel/go-csq/metrics"
)

func mainImpl() error {
	cfgPath := flag.String("config", "", "YAML configuration file")
	port := flag.Int("port", 0, "http port to listen on")
	once := flag.Bool("once", false, "play the file once instead of looping")
	fps := flag.Float64("fps", 0, "playback frame rate")
	palette := flag.String("palette", "", "color palette: blackbody, bluered, gray or rainbow")
	watch := flag.Bool("watch", false, "exit when the executable or the CSQ file is modified, for the supervisor to restart it")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()

	if flag.NArg() != 1 {
		return errors.New("supply path to the CSQ file to play")
	}
	input := flag.Arg(0)
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "once":
			cfg.Server.Loop = !*once
		case "fps":
			cfg.Video.FPS = *fps
		case "palette":
			cfg.Render.Palette = *palette
		case "v":
			if *verbose {
				cfg.Logging.Level = "debug"
			}
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logging.New(&cfg.Logging)
	if err != nil {
		return err
	}
	defer logging.Close(log)

	interrupt.HandleCtrlC()

	m := metrics.New()
	rdr, err := pipeline.Renderer(&cfg.Render)
	if err != nil {
		return err
	}
	s := NewWebServer(m, logging.WithComponent(log, "http"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.Handler(cfg.Metrics.Path),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("Listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server error")
			interrupt.Set()
		}
	}()
	defer func() {
		s.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	p := &player{
		path:   input,
		opts:   pipeline.ReaderOptions(cfg, logging.WithFile(log, input), m),
		render: rdr,
		server: s,
		fps:    cfg.Video.FPS,
		loop:   cfg.Server.Loop,
		log:    logging.WithComponent(log, "player"),
	}
	errc := make(chan error, 1)
	go func() {
		errc <- p.run()
	}()

	if *watch {
		exe, err := os.Executable()
		if err != nil {
			return err
		}
		changed := make(chan string, 1)
		go func() {
			name, err := watchFiles(exe, input)
			if err != nil {
				log.WithError(err).Error("Watching files failed")
			}
			changed <- name
		}()
		select {
		case name := <-changed:
			if name != "" {
				log.WithField("file", name).Info("File modified; exiting")
			}
			interrupt.Set()
			return nil
		case err := <-errc:
			return err
		}
	}
	select {
	case err := <-errc:
		if err == nil && !cfg.Server.Loop {
			// Keep serving the last frame.
			<-interrupt.Channel
		}
		return err
	case <-interrupt.Channel:
		return nil
	}
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\ncsq-serve: %s.\n", err)
		os.Exit(1)
	}
}
