// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"io"
	"time"

	"github.com/maruel/interrupt"
	"github.com/sirupsen/logrus"

	"github.com/maruel/go-csq/csq"
	"github.com/maruel/go-csq/render"
)

// player replays a CSQ file at a fixed frame rate.
type player struct {
	path   string
	opts   csq.ReaderOptions
	render *render.Renderer
	server *WebServer
	fps    float64
	loop   bool
	log    logrus.FieldLogger
}

// run plays the file until Ctrl-C, or once when loop is false.
func (p *player) run() error {
	t := time.NewTicker(time.Duration(float64(time.Second) / p.fps))
	defer t.Stop()
	for pass := 0; !interrupt.IsSet(); pass++ {
		r, err := csq.Open(p.path, p.opts)
		if err != nil {
			return err
		}
		n, err := p.playOnce(r, t.C)
		r.Close()
		if err != nil {
			return err
		}
		p.log.WithFields(logrus.Fields{"pass": pass, "frames": n, "stats": r.Stats()}).Info("End of file")
		if n == 0 {
			return errors.New("no valid frame in the file")
		}
		if !p.loop {
			return nil
		}
	}
	return nil
}

// playOnce sends every frame of r to the server, one per tick. It returns
// the number of frames sent.
func (p *player) playOnce(r *csq.Reader, tick <-chan time.Time) (int, error) {
	n := 0
	for {
		f, err := r.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			if csq.IsFrameError(err) || csq.IsBlockError(err) {
				p.log.WithError(err).WithField("kind", csq.ErrorKind(err)).Warn("Skipping")
				continue
			}
			return n, err
		}
		sh, err := newShot(f, p.render)
		if err != nil {
			p.log.WithError(err).WithField("frame", f.Index).Warn("Skipping")
			continue
		}
		select {
		case <-tick:
		case <-interrupt.Channel:
			return n, nil
		}
		p.server.AddFrame(sh)
		n++
	}
}
