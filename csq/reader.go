// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package csq

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Frame is one converted frame of a CSQ stream.
type Frame struct {
	Index        int // 0 based index of the frame in the stream, counting rejected frames.
	Size         int // Size of the raw frame in bytes.
	Calibration  *Calibration
	Temperatures *TemperatureGrid
}

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	Metadata  MetadataExtractor // Required.
	Decoder   RawImageDecoder   // Required.
	BlockSize int               // Defaults to DefaultBlockSize.
	Log       logrus.FieldLogger
	Observer  Observer
}

// Reader reads a CSQ stream and returns the temperature of each frame, in
// stream order.
type Reader struct {
	splitter *Splitter
	metadata MetadataExtractor
	decoder  RawImageDecoder
	log      logrus.FieldLogger
	observer Observer
	closer   io.Closer
	index    int
	stats    Stats
	err      error // Terminal error or io.EOF.
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader, opts ReaderOptions) (*Reader, error) {
	if opts.Metadata == nil {
		return nil, errors.New("csq: a MetadataExtractor is required")
	}
	if opts.Decoder == nil {
		return nil, errors.New("csq: a RawImageDecoder is required")
	}
	l := opts.Log
	if l == nil {
		d := logrus.New()
		d.SetOutput(io.Discard)
		l = d
	}
	return &Reader{
		splitter: NewSplitter(r, opts.BlockSize),
		metadata: opts.Metadata,
		decoder:  opts.Decoder,
		log:      l,
		observer: opts.Observer,
	}, nil
}

// Open checks that the collaborators are available, then opens the file at
// path. Close must be called to close the file.
func Open(path string, opts ReaderOptions) (*Reader, error) {
	for _, c := range []interface{}{opts.Metadata, opts.Decoder} {
		if ch, ok := c.(Checker); ok {
			if err := ch.Available(); err != nil {
				return nil, err
			}
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Close closes the underlying file when the Reader was created with Open.
func (r *Reader) Close() error {
	if r.closer != nil {
		err := r.closer.Close()
		r.closer = nil
		return err
	}
	return nil
}

// Stats returns the cumulative counters.
func (r *Reader) Stats() Stats {
	s := r.stats
	s.Blocks = r.splitter.Blocks()
	s.BytesRead = r.splitter.BytesRead()
	return s
}

// Next returns the next frame, or io.EOF at the end of the stream.
//
// Frame errors (IsFrameError) and block errors (IsBlockError) only affect the
// current frame or block and Next can be called again. Other errors are
// terminal and are returned again on every call.
func (r *Reader) Next() (*Frame, error) {
	if r.err != nil {
		return nil, r.err
	}
	f, err := r.next()
	if err != nil {
		if err == io.EOF {
			r.err = err
			return nil, err
		}
		if !IsFrameError(err) && !IsBlockError(err) {
			r.err = err
		}
		r.stats.LastFail = err
		if r.observer != nil {
			r.observer.FrameError(err)
		}
		return nil, err
	}
	r.stats.LastFail = nil
	return f, nil
}

// Each calls fn for every frame and every non-terminal error until the end
// of the stream, a terminal error or fn returns false.
//
// i is the index of the pull. It returns the terminal error, if any.
func (r *Reader) Each(fn func(i int, f *Frame, err error) bool) error {
	for i := 0; ; i++ {
		f, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil && !IsFrameError(err) && !IsBlockError(err) {
			return err
		}
		if !fn(i, f, err) {
			return nil
		}
	}
}

func (r *Reader) next() (*Frame, error) {
	blocks := r.splitter.Blocks()
	read := r.splitter.BytesRead()
	raw, err := r.splitter.Next()
	if n := r.splitter.BytesRead() - read; n != 0 && r.observer != nil {
		r.observer.BlockRead(int(n))
	}
	if b := r.splitter.Blocks(); b != blocks {
		r.log.WithFields(logrus.Fields{"block": b, "leftover": len(r.splitter.Leftover())}).Debug("block read")
	}
	if err != nil {
		if IsBlockError(err) {
			r.stats.SplitErrors++
			r.log.WithError(err).Debug("block not split")
		}
		return nil, err
	}
	index := r.index
	r.index++
	start := time.Now()
	log := r.log.WithField("frame", index)

	// Both collaborators see the same raw frame so the calibration and the
	// samples cannot come from different frames.
	tags, err := r.metadata.ExtractMetadata(raw)
	if err != nil {
		r.stats.MetadataErrors++
		return nil, frameErr(index, ErrMetadataTool, err)
	}
	log.WithField("elapsed", time.Since(start)).Debug("metadata extracted")
	cal, err := ParseCalibration(tags)
	if err != nil {
		r.stats.MetadataErrors++
		return nil, fmt.Errorf("frame %d: %w", index, err)
	}
	samples, err := r.decoder.DecodeRaw(raw)
	if err == nil {
		if samples == nil {
			err = errors.New("no image")
		} else {
			err = samples.Validate()
		}
	}
	if errors.Is(err, ErrMetadataTool) {
		// The external tool failed to extract the raw image; nothing was
		// decoded.
		r.stats.MetadataErrors++
		return nil, frameErr(index, ErrMetadataTool, err)
	}
	if err != nil {
		r.stats.DecodeErrors++
		return nil, frameErr(index, ErrDecode, err)
	}
	out := &Frame{Index: index, Size: len(raw), Calibration: cal, Temperatures: Convert(samples, cal)}
	r.stats.GoodFrames++
	elapsed := time.Since(start)
	if r.observer != nil {
		r.observer.FrameDone(elapsed)
	}
	log.WithFields(logrus.Fields{"width": samples.Width, "height": samples.Height, "elapsed": elapsed}).Debug("frame converted")
	return out, nil
}

// frameErr wraps err with kind unless it already matches kind.
func frameErr(index int, kind, err error) error {
	if errors.Is(err, kind) {
		return fmt.Errorf("frame %d: %w", index, err)
	}
	return fmt.Errorf("frame %d: %w: %w", index, kind, err)
}
