// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"

	"github.com/maruel/go-csq/csq"
	"github.com/maruel/go-csq/metrics"
	"github.com/maruel/go-csq/render"
)

// frameMeta is sent to the browser after each image.
type frameMeta struct {
	Index       int               `json:"index"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Min         float64           `json:"min"` // °C
	Max         float64           `json:"max"`
	Mean        float64           `json:"mean"`
	Low         finite            `json:"low"` // Temperature of the first palette color.
	High        finite            `json:"high"`
	Invalid     int               `json:"invalid"`
	Calibration map[string]finite `json:"calibration"`
	Info        map[string]string `json:"info,omitempty"`
}

// finite is encoded as null when NaN or infinite, which JSON cannot
// represent.
type finite float32

func (f finite) MarshalJSON() ([]byte, error) {
	if v := float64(f); math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(float32(f))
}

// shot is a frame ready to be sent.
type shot struct {
	png  []byte
	meta []byte
}

func newShot(f *csq.Frame, r *render.Renderer) (*shot, error) {
	lo, hi := r.Range(f.Temperatures)
	var b bytes.Buffer
	if err := png.Encode(&b, render.Colorize(f.Temperatures, r.Palette, lo, hi, r.Invalid)); err != nil {
		return nil, err
	}
	s := f.Temperatures.Stats()
	m := frameMeta{
		Index:       f.Index,
		Width:       f.Temperatures.Width,
		Height:      f.Temperatures.Height,
		Min:         s.Min,
		Max:         s.Max,
		Mean:        s.Mean,
		Low:         finite(lo),
		High:        finite(hi),
		Invalid:     s.NonFinite,
		Calibration: map[string]finite{},
		Info:        f.Calibration.Descriptive,
	}
	for _, v := range f.Calibration.Values() {
		m.Calibration[v.Name] = finite(v.Value)
	}
	meta, err := json.Marshal(&m)
	if err != nil {
		return nil, err
	}
	return &shot{png: b.Bytes(), meta: meta}, nil
}

// WebServer serves the most recent frame to every connected browser.
type WebServer struct {
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	cond   *sync.Cond
	last   *shot
	count  int // Number of frames added.
	closed bool
}

func NewWebServer(m *metrics.Metrics, log logrus.FieldLogger) *WebServer {
	return &WebServer{
		log:     log,
		metrics: m,
		cond:    sync.NewCond(&sync.Mutex{}),
	}
}

// Handler returns the HTTP handler. metricsPath can be empty.
func (s *WebServer) Handler(metricsPath string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.root)
	mux.HandleFunc("/favicon.ico", s.still)
	mux.HandleFunc("/still.png", s.still)
	mux.Handle("/stream", websocket.Handler(s.stream))
	if metricsPath != "" && s.metrics != nil {
		mux.Handle(metricsPath, s.metrics.Handler())
	}
	return loggingHandler{handler: mux, log: s.log}
}

// AddFrame makes sh the frame sent to the browsers.
func (s *WebServer) AddFrame(sh *shot) {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.last = sh
	s.count++
	s.cond.Broadcast()
}

// Close disconnects the browsers.
func (s *WebServer) Close() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

func (s *WebServer) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(read("root.html")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// still returns the most recent frame as a PNG.
func (s *WebServer) still(w http.ResponseWriter, r *http.Request) {
	s.cond.L.Lock()
	sh := s.last
	s.cond.L.Unlock()
	if sh == nil {
		http.Error(w, "No frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Write(sh.png)
}

// stream sends each new frame as a base64 PNG WebSocket message prefixed
// with "I", followed by its metadata as JSON prefixed with "M".
//
// A slow browser skips frames.
func (s *WebServer) stream(w *websocket.Conn) {
	defer w.Close()
	log := s.log.WithFields(logrus.Fields{"session": uuid.NewString(), "remote": w.Request().RemoteAddr})
	log.Info("websocket connected")
	if s.metrics != nil {
		defer s.metrics.ViewerConnected()()
	}
	seen := 0
	var buf bytes.Buffer
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	for {
		for !s.closed && seen == s.count {
			s.cond.Wait()
		}
		if s.closed {
			return
		}
		seen = s.count
		sh := s.last
		s.cond.L.Unlock()

		// Do the actual I/O without the lock.
		err := sendShot(w, &buf, sh)

		s.cond.L.Lock()
		if err != nil {
			log.WithError(err).Info("websocket closed")
			return
		}
	}
}

func sendShot(w *websocket.Conn, buf *bytes.Buffer, sh *shot) error {
	// Frame I is for Image.
	buf.Reset()
	buf.WriteByte('I')
	enc := base64.NewEncoder(base64.StdEncoding, buf)
	enc.Write(sh.png)
	enc.Close()
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	// Frame M is for Metadata.
	buf.Reset()
	buf.WriteByte('M')
	buf.Write(sh.meta)
	_, err := w.Write(buf.Bytes())
	return err
}

// Private details.

type loggingHandler struct {
	handler http.Handler
	log     logrus.FieldLogger
}

type loggingResponseWriter struct {
	http.ResponseWriter
	length int
	status int
}

func (l *loggingResponseWriter) Write(data []byte) (size int, err error) {
	if l.status == 0 {
		l.status = http.StatusOK
	}
	size, err = l.ResponseWriter.Write(data)
	l.length += size
	return
}

func (l *loggingResponseWriter) WriteHeader(status int) {
	l.ResponseWriter.WriteHeader(status)
	l.status = status
}

// Hijack is needed for websocket.
func (l *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h := l.ResponseWriter.(http.Hijacker)
	return h.Hijack()
}

// ServeHTTP logs each HTTP request at debug level.
func (l loggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lrw := &loggingResponseWriter{ResponseWriter: w}
	l.handler.ServeHTTP(lrw, r)
	l.log.WithFields(logrus.Fields{
		"remote":   r.RemoteAddr,
		"status":   lrw.status,
		"bytes":    lrw.length,
		"method":   r.Method,
		"uri":      r.RequestURI,
		"duration": time.Since(start),
	}).Debug("http")
}
