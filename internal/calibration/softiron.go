package calibration

import (
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/dieface/internal/average"
)

// ErrDegenerateEllipse is returned when the extreme points cannot produce a
// positive soft-iron scale.
var ErrDegenerateEllipse = errors.New("degenerate soft-iron ellipse")

// SoftIronResult is the outcome of the soft-iron pass.
type SoftIronResult struct {
	Record Record `json:"record"`
	// Circle is set when no smoothed sample left the noise envelope.
	Circle      bool    `json:"circle"`
	Max         Point   `json:"max"`
	Min         Point   `json:"min"`
	DistanceMax float64 `json:"distance_max"`
	DistanceMin float64 `json:"distance_min"`
	HaveMax     bool    `json:"have_max"`
	HaveMin     bool    `json:"have_min"`
	AngleMax    float64 `json:"angle_max"` // degrees
	AngleMin    float64 `json:"angle_min"` // degrees
	// Misaligned is set when the max and min angles disagree by more than
	// NoiseDegrees*StdDevFactor. The record is still produced.
	Misaligned bool `json:"misaligned"`
	// Corrected holds the hard-iron corrected stream, for the rotation file.
	Corrected []Point `json:"-"`
}

// SoftIron looks for ellipticity in a 360° rotation stream using the
// hard-iron record produced by HardIron.
//
// Each sample is hard-iron corrected and smoothed. Samples whose smoothed
// distance from the origin differs from IdealRadius by more than the noise
// envelope are candidates for the farthest-outside (max) and farthest-inside
// (min) extreme points.
func SoftIron(hard Record, stream []Point) (SoftIronResult, error) {
	if len(stream) == 0 {
		return SoftIronResult{}, fmt.Errorf("rotation stream: %w", ErrNoSamples)
	}

	res := SoftIronResult{
		Record:      hard,
		DistanceMax: math.Inf(-1),
		DistanceMin: math.Inf(1),
		Corrected:   make([]Point, 0, len(stream)),
	}
	res.Record.SoftDeg = 0
	res.Record.SoftScaleX = 1.0

	var smooth average.Pair
	envelope := hard.Envelope()
	for _, p := range stream {
		c := Point{X: p.X - hard.HardX, Y: p.Y - hard.HardY}
		res.Corrected = append(res.Corrected, c)

		ax, ay := smooth.Push(c.X, c.Y)
		d := math.Hypot(float64(ax), float64(ay))
		if math.Abs(d-float64(hard.IdealRadius)) <= envelope {
			continue
		}
		outside := d > float64(hard.IdealRadius)
		switch {
		case outside && d > res.DistanceMax:
			res.Max = Point{X: ax, Y: ay}
			res.DistanceMax = d
			res.HaveMax = true
		case !outside && d < res.DistanceMin:
			res.Min = Point{X: ax, Y: ay}
			res.DistanceMin = d
			res.HaveMin = true
		}
	}

	if !res.HaveMax {
		res.DistanceMax = 0
	}
	if !res.HaveMin {
		res.DistanceMin = 0
	}
	if !res.HaveMax && !res.HaveMin {
		res.Circle = true
		return res, nil
	}

	radius := float64(hard.IdealRadius)
	var scale float64
	switch {
	case res.HaveMax && res.HaveMin:
		if res.Max.X == 0 {
			return SoftIronResult{}, fmt.Errorf("max point has x=0: %w", ErrDegenerateEllipse)
		}
		res.AngleMax = degrees(res.Max)
		res.AngleMin = degrees(res.Min)
		scale = math.Abs(float64(res.Min.X) / float64(res.Max.X))
		res.Misaligned = angleBetween(res.AngleMax, res.AngleMin) > hard.NoiseDegrees*hard.StdDevFactor
	case res.HaveMax:
		res.AngleMax = degrees(res.Max)
		scale = radius / res.DistanceMax
	default:
		// Only an inside point: the ellipse is squashed along its angle.
		res.AngleMax = degrees(res.Min)
		if radius == 0 {
			return SoftIronResult{}, fmt.Errorf("ideal radius is 0: %w", ErrDegenerateEllipse)
		}
		scale = res.DistanceMin / radius
	}
	if !(scale > 0) || math.IsInf(scale, 0) {
		return SoftIronResult{}, fmt.Errorf("scale %v: %w", scale, ErrDegenerateEllipse)
	}

	res.Record.SoftDeg = int(math.Round(res.AngleMax))
	res.Record.SoftScaleX = scale
	return res, nil
}

func degrees(p Point) float64 {
	return math.Atan2(float64(p.Y), float64(p.X)) * 180 / math.Pi
}

// angleBetween is the separation of two bearings in degrees, in [0, 180].
func angleBetween(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// ApplyStream corrects every point with rec and returns the rounded result,
// for inspecting a calibration against a fresh rotation capture.
func ApplyStream(rec Record, stream []Point) []Point {
	out := make([]Point, len(stream))
	for i, p := range stream {
		x, y := rec.Correct(p.X, p.Y)
		out[i] = Point{X: int(math.Round(x)), Y: int(math.Round(y))}
	}
	return out
}
