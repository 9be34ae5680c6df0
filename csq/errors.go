// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package csq

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to match them.
var (
	// ErrStreamIO is a failure of the underlying reader. It is terminal.
	ErrStreamIO = errors.New("stream I/O error")
	// ErrNoMarkerFound means a non-empty block contained no frame marker.
	ErrNoMarkerFound = errors.New("no frame marker found in block")
	// ErrInsufficientMarkers means a block contained a single frame marker so
	// no frame could be bounded inside the block.
	ErrInsufficientMarkers = errors.New("insufficient frame markers in block")
	// ErrMissingField means a required calibration tag is absent.
	ErrMissingField = errors.New("missing calibration field")
	// ErrMalformedField means a required calibration tag is not a number.
	ErrMalformedField = errors.New("malformed calibration field")
	// ErrDecode means the raw sensor image of a frame could not be decoded.
	ErrDecode = errors.New("raw image decode error")
	// ErrMetadataTool means the metadata extraction tool failed for a frame.
	ErrMetadataTool = errors.New("metadata extraction error")
)

// FieldError describes an invalid calibration tag.
type FieldError struct {
	Field string
	Value string
	Kind  error // ErrMissingField or ErrMalformedField.
	Err   error // Parse error, if any.
}

func (f *FieldError) Error() string {
	if f.Kind == ErrMissingField {
		return fmt.Sprintf("%s: %q", f.Kind, f.Field)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %q = %q: %s", f.Kind, f.Field, f.Value, f.Err)
	}
	return fmt.Sprintf("%s: %q = %q", f.Kind, f.Field, f.Value)
}

func (f *FieldError) Is(target error) bool {
	return target == f.Kind
}

func (f *FieldError) Unwrap() error {
	return f.Err
}

// IsFrameError returns true if err only invalidates the current frame. The
// caller can skip it and call Next again.
func IsFrameError(err error) bool {
	return errors.Is(err, ErrMissingField) || errors.Is(err, ErrMalformedField) || errors.Is(err, ErrDecode) || errors.Is(err, ErrMetadataTool)
}

// IsBlockError returns true if err only invalidates the current block. The
// next call to Next reads the following block.
func IsBlockError(err error) bool {
	return errors.Is(err, ErrNoMarkerFound) || errors.Is(err, ErrInsufficientMarkers)
}

// ErrorKind returns a short stable name for err, suitable as a metric label.
//
// An error matching both ErrMetadataTool and ErrDecode is "metadata_tool".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStreamIO):
		return "stream_io"
	case errors.Is(err, ErrNoMarkerFound):
		return "no_marker"
	case errors.Is(err, ErrInsufficientMarkers):
		return "insufficient_markers"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrMalformedField):
		return "malformed_field"
	case errors.Is(err, ErrMetadataTool):
		return "metadata_tool"
	case errors.Is(err, ErrDecode):
		return "decode"
	default:
		return "other"
	}
}
