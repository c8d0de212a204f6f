// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration derives and stores the magnetometer hard-iron and
// soft-iron correction used by the compass.
//
// The record is a single whitespace-separated line:
//
//	hardx hardy softdeg softx radius noiseUT noiseDeg sdf
//
// Older four-field records (hardx hardy softdeg softx) are still accepted.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Record is the persisted calibration.
type Record struct {
	HardX        int     `json:"hard_x"`
	HardY        int     `json:"hard_y"`
	SoftDeg      int     `json:"soft_deg"`      // ellipse major-axis angle, degrees
	SoftScaleX   float64 `json:"soft_scale_x"`  // x scale applied along the rotated axis
	IdealRadius  int     `json:"ideal_radius"`  // expected circle radius, counts
	NoiseTesla   int     `json:"noise_tesla"`   // mean per-axis std-dev, counts
	NoiseDegrees float64 `json:"noise_degrees"` // noise expressed as an angle at IdealRadius
	StdDevFactor float64 `json:"stddev_factor"` // inclusion factor: 1=68%, 2=95%, 3=99.7%
}

// Uncalibrated returns the identity record: no offsets, no soft-iron.
func Uncalibrated() Record {
	return Record{SoftScaleX: 1.0, StdDevFactor: 1.0}
}

// HasSoftIron reports whether the soft-iron parameters differ from identity.
func (r Record) HasSoftIron() bool {
	return r.SoftDeg != 0 || r.SoftScaleX != 1.0
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if !(r.SoftScaleX > 0) || math.IsInf(r.SoftScaleX, 0) {
		return fmt.Errorf("soft-iron scale must be > 0, got %v", r.SoftScaleX)
	}
	if r.StdDevFactor < 0 {
		return fmt.Errorf("std-dev factor must not be negative, got %v", r.StdDevFactor)
	}
	return nil
}

// Envelope is the accepted distance from an expected value before a sample
// counts as noise.
func (r Record) Envelope() float64 {
	return r.StdDevFactor * float64(r.NoiseTesla)
}

// Correct applies hard-iron and, when set, soft-iron correction to a raw
// magnetometer (x, y) pair.
//
// The soft-iron step rotates by -SoftDeg, scales x, then rotates back by
// +SoftDeg using x' = x*cos - y*sin each time. Only x changes. This is an
// approximation of an ellipse-to-circle mapping, kept for compatibility with
// recorded calibrations.
func (r Record) Correct(rawX, rawY int) (float64, float64) {
	x := float64(rawX - r.HardX)
	y := float64(rawY - r.HardY)
	if !r.HasSoftIron() {
		return x, y
	}
	theta := float64(r.SoftDeg) * math.Pi / 180
	x = xRotate(-theta, x, y)
	x *= r.SoftScaleX
	x = xRotate(theta, x, y)
	return x, y
}

func xRotate(theta, x, y float64) float64 {
	return x*math.Cos(theta) - y*math.Sin(theta)
}

// String renders the record as its on-disk line.
func (r Record) String() string {
	return fmt.Sprintf("%d %d %d %f %d %d %f %f",
		r.HardX, r.HardY, r.SoftDeg, r.SoftScaleX,
		r.IdealRadius, r.NoiseTesla, r.NoiseDegrees, r.StdDevFactor)
}

// Parse reads a record line in either the 4-field or the 8-field form.
func Parse(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 && len(fields) != 8 {
		return Record{}, fmt.Errorf("calibration record: expected 4 or 8 fields, got %d", len(fields))
	}

	rec := Uncalibrated()
	var err error
	ints := []*int{&rec.HardX, &rec.HardY, &rec.SoftDeg}
	for i, dst := range ints {
		if *dst, err = strconv.Atoi(fields[i]); err != nil {
			return Record{}, fmt.Errorf("calibration record field %d: %w", i+1, err)
		}
	}
	if rec.SoftScaleX, err = strconv.ParseFloat(fields[3], 64); err != nil {
		return Record{}, fmt.Errorf("calibration record field 4: %w", err)
	}

	if len(fields) == 8 {
		if rec.IdealRadius, err = strconv.Atoi(fields[4]); err != nil {
			return Record{}, fmt.Errorf("calibration record field 5: %w", err)
		}
		if rec.NoiseTesla, err = strconv.Atoi(fields[5]); err != nil {
			return Record{}, fmt.Errorf("calibration record field 6: %w", err)
		}
		if rec.NoiseDegrees, err = strconv.ParseFloat(fields[6], 64); err != nil {
			return Record{}, fmt.Errorf("calibration record field 7: %w", err)
		}
		if rec.StdDevFactor, err = strconv.ParseFloat(fields[7], 64); err != nil {
			return Record{}, fmt.Errorf("calibration record field 8: %w", err)
		}
	}

	if err := rec.Validate(); err != nil {
		return Record{}, fmt.Errorf("calibration record: %w", err)
	}
	return rec, nil
}

// Load reads the record stored at path. A missing file is reported with an
// error matching os.ErrNotExist.
func Load(path string) (Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("read calibration %s: %w", path, err)
	}
	line, _, _ := strings.Cut(string(b), "\n")
	rec, err := Parse(line)
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

// LoadOrUncalibrated returns the stored record, or the identity record and
// the load error when none can be read.
func LoadOrUncalibrated(path string) (Record, error) {
	rec, err := Load(path)
	if err != nil {
		return Uncalibrated(), err
	}
	return rec, nil
}

// Save writes the record to path atomically: a reader sees either the old
// line or the new one.
func Save(path string, rec Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("refusing to save calibration: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp calibration file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := fmt.Fprintln(tmp, rec.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("write calibration: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync calibration: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close calibration: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod calibration: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace calibration %s: %w", path, err)
	}
	return nil
}

// Exists reports whether a record file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
