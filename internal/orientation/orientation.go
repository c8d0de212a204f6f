package orientation

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/relabs-tech/dieface/internal/average"
	"github.com/relabs-tech/dieface/internal/calibration"
	"github.com/relabs-tech/dieface/internal/imu"
)

// Face is the discrete face-up index, 1 to 6. Opposite faces sum to 7.
type Face int32

const (
	FaceUp    Face = 1 // +z, the north-reference face
	FaceNorth Face = 2 // +y
	FaceWest  Face = 3 // -x
	FaceEast  Face = 4 // +x
	FaceSouth Face = 5 // -y
	FaceDown  Face = 6 // -z
)

// NoHeading is published when the heading face is not up.
const NoHeading = -1

func (f Face) String() string {
	switch f {
	case FaceUp:
		return "up"
	case FaceNorth:
		return "north"
	case FaceWest:
		return "west"
	case FaceEast:
		return "east"
	case FaceSouth:
		return "south"
	case FaceDown:
		return "down"
	}
	return fmt.Sprintf("Face(%d)", int32(f))
}

// Valid reports whether f is one of the six faces.
func (f Face) Valid() bool { return f >= FaceUp && f <= FaceDown }

// Opposite returns the face on the other side of the die.
func (f Face) Opposite() Face { return 7 - f }

// ClassifyFace picks the face whose axis has the largest magnitude.
//
// Axes are tested x, then y, and each must be strictly larger than both
// others; anything else, exact ties included, falls through to z.
func ClassifyFace(a imu.RawSample) Face {
	x, y, z := abs(a.X), abs(a.Y), abs(a.Z)
	switch {
	case x > y && x > z:
		if a.X > 0 {
			return FaceEast
		}
		return FaceWest
	case y > x && y > z:
		if a.Y > 0 {
			return FaceNorth
		}
		return FaceSouth
	default:
		if a.Z >= 0 {
			return FaceUp
		}
		return FaceDown
	}
}

func abs(v int16) int {
	if v < 0 {
		return -int(v)
	}
	return int(v)
}

// Compass turns magnetometer readings into a smoothed heading.
type Compass struct {
	cal    calibration.Record
	smooth average.Pair
}

// NewCompass returns a compass using cal. Use calibration.Uncalibrated() when
// no record is available.
func NewCompass(cal calibration.Record) *Compass {
	return &Compass{cal: cal}
}

// Calibration returns the record in use.
func (c *Compass) Calibration() calibration.Record { return c.cal }

// SetCalibration swaps the record and clears the smoothing history.
func (c *Compass) SetCalibration(cal calibration.Record) {
	c.cal = cal
	c.smooth.Reset()
}

// Heading corrects mag, pushes it through the smoothers and returns the
// bearing in degrees, 0 to 359.
func (c *Compass) Heading(mag imu.RawSample) int {
	x, y := c.cal.Correct(int(mag.X), int(mag.Y))
	ax, ay := c.smooth.Push(int(math.Round(x)), int(math.Round(y)))

	deg := math.Atan2(float64(ay), float64(ax)) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	h := int(deg + 0.5)
	if h >= 360 {
		h -= 360
	}
	return h
}

// Record is the orientation hand-off written by the sampling daemon.
type Record struct {
	Face    Face  `json:"face"`
	Heading int32 `json:"heading"` // NoHeading unless Face is FaceUp
	// Simulated is set while the daemon runs without the sensor.
	Simulated bool      `json:"simulated"`
	Time      time.Time `json:"time"`
}

// RecordSize is the encoded length of a Record.
const RecordSize = 4 + 4 + 4 + 8

// MarshalBinary encodes r little-endian into RecordSize bytes.
func (r Record) MarshalBinary() ([]byte, error) {
	b := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(r.Face))
	binary.LittleEndian.PutUint32(b[4:], uint32(r.Heading))
	if r.Simulated {
		b[8] = 1
	}
	var ms int64
	if !r.Time.IsZero() {
		ms = r.Time.UnixMilli()
	}
	binary.LittleEndian.PutUint64(b[12:], uint64(ms))
	return b, nil
}

// UnmarshalBinary decodes a buffer produced by MarshalBinary.
func (r *Record) UnmarshalBinary(b []byte) error {
	if len(b) < RecordSize {
		return fmt.Errorf("orientation record: need %d bytes, got %d", RecordSize, len(b))
	}
	r.Face = Face(int32(binary.LittleEndian.Uint32(b[0:])))
	r.Heading = int32(binary.LittleEndian.Uint32(b[4:]))
	r.Simulated = b[8] != 0
	r.Time = time.Time{}
	if ms := int64(binary.LittleEndian.Uint64(b[12:])); ms != 0 {
		r.Time = time.UnixMilli(ms)
	}
	return nil
}

// Classifier combines face classification with the compass.
type Classifier struct {
	compass *Compass
}

// NewClassifier returns a classifier using cal for headings.
func NewClassifier(cal calibration.Record) *Classifier {
	return &Classifier{compass: NewCompass(cal)}
}

// Compass exposes the heading stage.
func (c *Classifier) Compass() *Compass { return c.compass }

// Classify turns one reading into an orientation record. The compass is fed
// on every reading so its history stays current across face changes.
func (c *Classifier) Classify(r imu.IMURaw) Record {
	face := ClassifyFace(r.Accel)
	heading := c.compass.Heading(r.Mag)

	rec := Record{Face: face, Heading: NoHeading}
	if face == FaceUp {
		rec.Heading = int32(heading)
	}
	return rec
}
