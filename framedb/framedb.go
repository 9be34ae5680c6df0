// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package framedb records per-frame temperature statistics in a SQLite
// database.
package framedb

import (
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/maruel/go-csq/csq"
)

// DB is a frame statistics database.
type DB struct {
	*sql.DB
}

// schema.sql creates the runs, frames and frame_errors tables.
//
//go:embed schema.sql
var schemaSQL string

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases alive and serializes
	// writers.
	db.SetMaxOpenConns(1)
	if _, err = db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &DB{db}, nil
}

// Run is one pass over a CSQ file.
type Run struct {
	ID             string
	Source         string
	Start          float64 // Unix time in seconds.
	End            sql.NullFloat64
	GoodFrames     int
	SplitErrors    int
	MetadataErrors int
	DecodeErrors   int
}

// FrameRow is the recorded statistics of one frame.
type FrameRow struct {
	Index       int
	Size        int
	Width       int
	Height      int
	Stats       csq.GridStats
	Emissivity  float64
	Distance    float64
	AtmTemp     float64
	Humidity    float64
	CameraModel string
}

// StartRun records the start of a run over source and returns its ID.
func (d *DB) StartRun(source string) (string, error) {
	id := uuid.NewString()
	if _, err := d.Exec(`INSERT INTO runs (run_id, source) VALUES (?, ?)`, id, source); err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// EndRun records the final counters of a run.
func (d *DB) EndRun(runID string, s csq.Stats) error {
	query := `
		UPDATE runs
		SET
			end_timestamp = UNIXEPOCH('subsec'),
			blocks = ?,
			bytes_read = ?,
			good_frames = ?,
			split_errors = ?,
			metadata_errors = ?,
			decode_errors = ?
		WHERE run_id = ?
	`
	res, err := d.Exec(query, s.Blocks, s.BytesRead, s.GoodFrames, s.SplitErrors, s.MetadataErrors, s.DecodeErrors, runID)
	if err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("unknown run %q", runID)
	}
	return nil
}

// RecordFrame stores the statistics and the main calibration values of f.
func (d *DB) RecordFrame(runID string, f *csq.Frame) error {
	query := `
		INSERT INTO frames (
			run_id, frame_index, size, width, height,
			min_c, max_c, mean_c, stddev_c, finite, non_finite,
			emissivity, object_distance, atmospheric_temperature, relative_humidity, camera_model
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	s := f.Temperatures.Stats()
	c := f.Calibration
	model, _ := c.Info("CameraModel")
	_, err := d.Exec(query,
		runID, f.Index, f.Size, f.Temperatures.Width, f.Temperatures.Height,
		s.Min, s.Max, s.Mean, s.StdDev, s.Finite, s.NonFinite,
		c.Emissivity, c.ObjectDistance, c.AtmosphericTemperature, c.RelativeHumidity, model)
	if err != nil {
		return fmt.Errorf("failed to insert frame %d: %w", f.Index, err)
	}
	return nil
}

// RecordError stores a frame or block error.
func (d *DB) RecordError(runID string, err error) error {
	if _, err2 := d.Exec(`INSERT INTO frame_errors (run_id, kind, message) VALUES (?, ?, ?)`, runID, csq.ErrorKind(err), err.Error()); err2 != nil {
		return fmt.Errorf("failed to insert error: %w", err2)
	}
	return nil
}

// Runs returns every run, oldest first.
func (d *DB) Runs() ([]Run, error) {
	rows, err := d.Query(`
		SELECT run_id, source, start_timestamp, end_timestamp,
			COALESCE(good_frames, 0), COALESCE(split_errors, 0),
			COALESCE(metadata_errors, 0), COALESCE(decode_errors, 0)
		FROM runs ORDER BY start_timestamp, rowid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Source, &r.Start, &r.End, &r.GoodFrames, &r.SplitErrors, &r.MetadataErrors, &r.DecodeErrors); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Frames returns the frames of a run, in stream order.
func (d *DB) Frames(runID string) ([]FrameRow, error) {
	rows, err := d.Query(`
		SELECT frame_index, size, width, height,
			min_c, max_c, mean_c, stddev_c, finite, non_finite,
			emissivity, object_distance, atmospheric_temperature, relative_humidity, camera_model
		FROM frames WHERE run_id = ? ORDER BY frame_index
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FrameRow
	for rows.Next() {
		var f FrameRow
		err := rows.Scan(&f.Index, &f.Size, &f.Width, &f.Height,
			&f.Stats.Min, &f.Stats.Max, &f.Stats.Mean, &f.Stats.StdDev, &f.Stats.Finite, &f.Stats.NonFinite,
			&f.Emissivity, &f.Distance, &f.AtmTemp, &f.Humidity, &f.CameraModel)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ErrorCounts returns the number of recorded errors of a run by kind.
func (d *DB) ErrorCounts(runID string) (map[string]int, error) {
	rows, err := d.Query(`SELECT kind, COUNT(*) FROM frame_errors WHERE run_id = ? GROUP BY kind`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}
