// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package metrics

import (
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruel/go-csq/csq"
)

func TestObserver(t *testing.T) {
	m := New()
	m.BlockRead(1000)
	m.BlockRead(24)
	m.FrameDone(3 * time.Millisecond)
	m.FrameDone(5 * time.Millisecond)
	m.FrameError(csq.ErrNoMarkerFound)
	m.FrameError(fmt.Errorf("frame 3: %w", csq.ErrDecode))
	m.FrameError(&csq.FieldError{Kind: csq.ErrMissingField, Field: "PlanckR1"})

	assert.Equal(t, 2., testutil.ToFloat64(m.blocks))
	assert.Equal(t, 1024., testutil.ToFloat64(m.bytes))
	assert.Equal(t, 2., testutil.ToFloat64(m.frames))
	assert.Equal(t, 1., testutil.ToFloat64(m.errors.WithLabelValues("no_marker")))
	assert.Equal(t, 1., testutil.ToFloat64(m.errors.WithLabelValues("decode")))
	assert.Equal(t, 1., testutil.ToFloat64(m.errors.WithLabelValues("missing_field")))
	assert.Equal(t, 0., testutil.ToFloat64(m.errors.WithLabelValues("stream_io")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.convert))
}

func TestViewers(t *testing.T) {
	m := New()
	done1 := m.ViewerConnected()
	done2 := m.ViewerConnected()
	assert.Equal(t, 2., testutil.ToFloat64(m.viewers))
	done1()
	assert.Equal(t, 1., testutil.ToFloat64(m.viewers))
	done2()
	assert.Equal(t, 0., testutil.ToFloat64(m.viewers))

	m.SetQueue(4)
	m.FrameEncoded()
	assert.Equal(t, 4., testutil.ToFloat64(m.queue))
	assert.Equal(t, 1., testutil.ToFloat64(m.encoded))
}

func TestHandler(t *testing.T) {
	// Two instances must not collide.
	_ = New()
	m := New()
	m.FrameDone(time.Millisecond)
	s := httptest.NewServer(m.Handler())
	defer s.Close()
	resp, err := s.Client().Get(s.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "csq_frames_total 1")
	assert.Contains(t, string(b), "csq_frame_duration_seconds_bucket")
}
