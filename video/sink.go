// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package video

import (
	"errors"
	"image"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/maruel/go-csq/csq"
)

// ErrClosed is returned by Sink.Send after Close.
var ErrClosed = errors.New("video: sink closed")

// RenderFunc colorizes one frame.
type RenderFunc func(g *csq.TemperatureGrid) *image.RGBA

// Sink colorizes and encodes frames on a single consumer goroutine, in the
// order they were sent.
//
// Send never blocks on the encoder: frames are queued until the consumer
// takes them.
type Sink struct {
	render RenderFunc
	log    logrus.FieldLogger
	done   chan struct{}

	cond   *sync.Cond
	queue  []*csq.Frame
	closed bool

	mu      sync.Mutex // Guards enc.
	enc     Encoder
	err     error
	written int
}

// NewSink starts the consumer goroutine.
func NewSink(enc Encoder, render RenderFunc, log logrus.FieldLogger) *Sink {
	if log == nil {
		log = discard
	}
	s := &Sink{
		render: render,
		log:    log,
		done:   make(chan struct{}),
		cond:   sync.NewCond(&sync.Mutex{}),
		enc:    enc,
	}
	go s.consume()
	return s
}

// Send queues a frame.
func (s *Sink) Send(f *csq.Frame) error {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.queue = append(s.queue, f)
	s.cond.Signal()
	return nil
}

// Pending returns the number of frames queued but not yet taken by the
// consumer.
func (s *Sink) Pending() int {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	return len(s.queue)
}

// Written returns the number of frames encoded so far.
func (s *Sink) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Close waits for every queued frame to be encoded, then finalizes the
// encoder. It returns the first encoding error.
func (s *Sink) Close() error {
	s.cond.L.Lock()
	if s.closed {
		s.cond.L.Unlock()
		<-s.done
		return ErrClosed
	}
	s.closed = true
	s.cond.Broadcast()
	s.cond.L.Unlock()
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Close(); err != nil && s.err == nil {
		s.err = err
	}
	return s.err
}

func (s *Sink) consume() {
	defer close(s.done)
	for {
		s.cond.L.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.cond.L.Unlock()
			return
		}
		f := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.cond.L.Unlock()
		// Do the actual work without the queue lock.
		s.write(f)
	}
}

func (s *Sink) write(f *csq.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		// The output is already broken; drain.
		return
	}
	if err := s.enc.WriteFrame(s.render(f.Temperatures)); err != nil {
		s.err = err
		s.log.WithError(err).WithField("frame", f.Index).Error("encoding failed")
		return
	}
	s.written++
}

var discard = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()
