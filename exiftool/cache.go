// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package exiftool

import (
	"bytes"
	"sync"
)

// Cache implements both csq.MetadataExtractor and rawimage.Extractor on top
// of a Tool.
//
// The first request for a frame writes it once to a temporary file and
// extracts both the tags and the raw thermal image. The following request
// for the same frame content is served from memory. Only the last frame is
// retained.
type Cache struct {
	Tool *Tool

	mu    sync.Mutex
	frame []byte
	last  extraction
	valid bool
}

// ExtractMetadata implements csq.MetadataExtractor.
func (c *Cache) ExtractMetadata(frame []byte) (map[string]string, error) {
	e := c.get(frame)
	return e.tags, e.tagsErr
}

// RawThermalImage implements rawimage.Extractor.
func (c *Cache) RawThermalImage(frame []byte) ([]byte, error) {
	e := c.get(frame)
	return e.img, e.imgErr
}

// Available implements csq.Checker.
func (c *Cache) Available() error {
	return c.Tool.Available()
}

func (c *Cache) get(frame []byte) extraction {
	c.mu.Lock()
	defer c.mu.Unlock()
	// The caller may reuse its buffer for the next frame, compare content.
	if c.valid && bytes.Equal(c.frame, frame) {
		return c.last
	}
	c.last = c.Tool.extract(frame)
	c.frame = append(c.frame[:0], frame...)
	c.valid = true
	return c.last
}
