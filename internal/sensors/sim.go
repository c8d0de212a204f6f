package sensors

import (
	"math"

	"github.com/relabs-tech/dieface/internal/imu"
)

// simFaces is the order the simulated die rolls through: up, north, west,
// east, south, down. Each entry is the accelerometer direction.
var simFaces = [6]imu.RawSample{
	{Z: 1},
	{Y: 1},
	{X: -1},
	{X: 1},
	{Y: -1},
	{Z: -1},
}

// Simulated sample magnitudes in raw counts.
const (
	simGravity   = 8192 // 1 g at ±4 g, left justified
	simMagRadius = 400
)

// SimSource stands in for the FXOS8700 on machines without one. It rests on
// each face for Hold samples while the magnetometer turns StepDeg per
// sample.
type SimSource struct {
	Hold    int
	StepDeg float64

	n int
}

// NewSimSource rests 200 samples (5 s at 40 Hz) per face and turns 2° per
// sample.
func NewSimSource() *SimSource {
	return &SimSource{Hold: 200, StepDeg: 2}
}

// Open is a no-op.
func (s *SimSource) Open() error { return nil }

// ReadAccelMag returns the next synthetic sample.
func (s *SimSource) ReadAccelMag() (imu.IMURaw, error) {
	hold := s.Hold
	if hold <= 0 {
		hold = 1
	}
	face := simFaces[(s.n/hold)%len(simFaces)]

	rad := math.Mod(float64(s.n)*s.StepDeg, 360) * math.Pi / 180
	s.n++

	return imu.IMURaw{
		Source: "sim",
		Accel: imu.RawSample{
			X: face.X * simGravity,
			Y: face.Y * simGravity,
			Z: face.Z * simGravity,
		},
		Mag: imu.RawSample{
			X: int16(math.Round(simMagRadius * math.Cos(rad))),
			Y: int16(math.Round(simMagRadius * math.Sin(rad))),
			Z: -simMagRadius / 2,
		},
	}, nil
}

// Close is a no-op.
func (s *SimSource) Close() error { return nil }
