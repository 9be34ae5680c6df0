// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package csq

import (
	"bytes"
	"fmt"
	"io"
)

// Marker is the byte sequence starting every frame in a CSQ stream.
const Marker = "FFF\x00RT"

// DefaultBlockSize is the number of bytes read from the stream at once.
const DefaultBlockSize = 1000000

// Splitter cuts a CSQ stream into raw frames, reading one block at a time.
//
// A frame is the bytes from a marker up to the next marker. The bytes after
// the last marker of a block (the leftover) are carried over and completed
// by the bytes of the next block preceding its first marker. Markers cut by a
// block boundary are found, so the frames do not depend on the block size.
type Splitter struct {
	r         io.Reader
	buf       []byte
	leftover  []byte   // Starts with Marker, or empty.
	partial   []byte   // Tail of discarded data that could be the start of a marker.
	frames    [][]byte // Bounded frames not yet returned by Next.
	eof       bool
	blocks    int
	bytesRead int64
}

// NewSplitter returns a Splitter reading r by blocks of blockSize bytes. A
// blockSize of 0 means DefaultBlockSize.
func NewSplitter(r io.Reader, blockSize int) *Splitter {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Splitter{r: r, buf: make([]byte, blockSize)}
}

// Next returns the next raw frame. The caller owns the returned slice.
//
// It returns io.EOF once the stream is exhausted. Errors matching
// ErrNoMarkerFound or ErrInsufficientMarkers are local to one block; calling
// Next again continues with the frames already bounded, then the next block.
// Errors matching ErrStreamIO are terminal.
func (s *Splitter) Next() ([]byte, error) {
	for len(s.frames) == 0 {
		if s.eof {
			return nil, io.EOF
		}
		if err := s.refill(); err != nil {
			return nil, err
		}
	}
	f := s.frames[0]
	s.frames[0] = nil
	s.frames = s.frames[1:]
	return f, nil
}

// Leftover returns the bytes carried over to the next block.
func (s *Splitter) Leftover() []byte {
	return s.leftover
}

// Blocks returns the number of non-empty blocks read so far.
func (s *Splitter) Blocks() int {
	return s.blocks
}

// BytesRead returns the number of bytes read from the stream so far.
func (s *Splitter) BytesRead() int64 {
	return s.bytesRead
}

// Feed splits one block and returns the frames it completes.
//
// When a leftover is pending, the bytes preceding the first marker complete
// it into a frame. Otherwise they are discarded. Every pair of consecutive
// markers bounds one frame. The bytes from the last marker to the end of the
// block become the new leftover, including when the block holds a single
// marker, in which case ErrInsufficientMarkers is returned along the frame
// completed from the previous leftover, if any.
//
// A block without any marker returns ErrNoMarkerFound. If a leftover is
// pending, the block is appended to it since the frame is larger than a
// block.
func (s *Splitter) Feed(block []byte) ([][]byte, error) {
	if len(block) == 0 {
		return nil, nil
	}
	carried := len(s.leftover) != 0
	var data []byte
	from := 0
	if carried {
		data = append(s.leftover, block...)
		// The leftover starts with a marker and contains no other, except one
		// cut by the block boundary.
		from = len(s.leftover) - (len(Marker) - 1)
		if from < 1 {
			from = 1
		}
	} else {
		data = append(s.partial, block...)
	}
	s.partial = nil
	idx := findMarkers(data, from)
	if len(idx) == 0 {
		if carried {
			s.leftover = data
		} else {
			s.leftover = nil
			s.partial = append([]byte(nil), tail(data, len(Marker)-1)...)
		}
		return nil, ErrNoMarkerFound
	}
	var frames [][]byte
	if carried {
		frames = append(frames, data[:idx[0]:idx[0]])
	}
	for i := 0; i+1 < len(idx); i++ {
		frames = append(frames, data[idx[i]:idx[i+1]:idx[i+1]])
	}
	s.leftover = data[idx[len(idx)-1]:]
	if len(idx) == 1 {
		return frames, ErrInsufficientMarkers
	}
	return frames, nil
}

// refill reads one block and queues the frames it completes.
func (s *Splitter) refill() error {
	n, err := io.ReadFull(s.r, s.buf)
	switch {
	case err == io.EOF:
		s.eof = true
		if len(s.leftover) != 0 {
			// The last frame is bounded by the end of the stream.
			s.frames = append(s.frames, s.leftover)
			s.leftover = nil
		}
		return nil
	case err == io.ErrUnexpectedEOF:
		// Short final block.
	case err != nil:
		return fmt.Errorf("%w: %w", ErrStreamIO, err)
	}
	s.blocks++
	s.bytesRead += int64(n)
	frames, err := s.Feed(s.buf[:n])
	s.frames = append(s.frames, frames...)
	if err != nil {
		return fmt.Errorf("block %d (%d bytes): %w", s.blocks, n, err)
	}
	return nil
}

// findMarkers returns the offsets of the non-overlapping markers in data at
// or after from.
func findMarkers(data []byte, from int) []int {
	var out []int
	m := []byte(Marker)
	for from < len(data) {
		i := bytes.Index(data[from:], m)
		if i < 0 {
			break
		}
		out = append(out, from+i)
		from += i + len(m)
	}
	return out
}

func tail(b []byte, n int) []byte {
	if len(b) > n {
		return b[len(b)-n:]
	}
	return b
}
