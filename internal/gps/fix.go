package gps

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Fix status values.
const (
	StatusLost       int32 = -1 // no satellite fix
	StatusStationary int32 = 0
	StatusMoving     int32 = 1
)

// Hemisphere is one of 'N', 'S', 'E', 'W'.
type Hemisphere byte

// MarshalText renders the hemisphere as its letter in JSON.
func (h Hemisphere) MarshalText() ([]byte, error) {
	if h == 0 {
		return []byte{}, nil
	}
	return []byte{byte(h)}, nil
}

// UnmarshalText accepts a single hemisphere letter.
func (h *Hemisphere) UnmarshalText(b []byte) error {
	switch len(b) {
	case 0:
		*h = 0
	case 1:
		*h = Hemisphere(b[0])
	default:
		return fmt.Errorf("hemisphere %q: expected one letter", b)
	}
	return nil
}

// Fix is the location hand-off written by the GPS daemon. Coordinates are
// packed degrees/minutes/seconds, not decimal degrees.
type Fix struct {
	Status       int32      `json:"status"`
	Latitude     int32      `json:"latitude"` // ddmmss
	LatitudeNS   Hemisphere `json:"latitude_ns"`
	Longitude    int32      `json:"longitude"` // dddmmss
	LongitudeEW  Hemisphere `json:"longitude_ew"`
	Altitude     int32      `json:"altitude"`      // feet
	Declination  float64    `json:"declination"`   // degrees, west negative
	Speed        int32      `json:"speed"`         // km/h
	Track        int32      `json:"track"`         // degrees
	Date         int32      `json:"date"`          // yyyymmdd, UTC
	GMT          int32      `json:"gmt"`           // hhmmss, UTC
	SolarTime    int32      `json:"solar_time"`    // hhmmss, mean local solar time
	MeridianTime int32      `json:"meridian_time"` // hhmmss on MeridianLong
	MeridianLong int32      `json:"meridian_long"` // nearest standard meridian, degrees
	Simulated    bool       `json:"simulated"`
}

// FixSize is the encoded length of a Fix.
const FixSize = 56

// MarshalBinary encodes f little-endian into FixSize bytes.
func (f Fix) MarshalBinary() ([]byte, error) {
	b := make([]byte, FixSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:], uint32(f.Status))
	le.PutUint32(b[4:], uint32(f.Latitude))
	b[8] = byte(f.LatitudeNS)
	b[9] = byte(f.LongitudeEW)
	if f.Simulated {
		b[10] = 1
	}
	le.PutUint32(b[12:], uint32(f.Longitude))
	le.PutUint32(b[16:], uint32(f.Altitude))
	le.PutUint64(b[20:], math.Float64bits(f.Declination))
	le.PutUint32(b[28:], uint32(f.Speed))
	le.PutUint32(b[32:], uint32(f.Track))
	le.PutUint32(b[36:], uint32(f.Date))
	le.PutUint32(b[40:], uint32(f.GMT))
	le.PutUint32(b[44:], uint32(f.SolarTime))
	le.PutUint32(b[48:], uint32(f.MeridianTime))
	le.PutUint32(b[52:], uint32(f.MeridianLong))
	return b, nil
}

// UnmarshalBinary decodes a buffer produced by MarshalBinary.
func (f *Fix) UnmarshalBinary(b []byte) error {
	if len(b) < FixSize {
		return fmt.Errorf("gps fix: need %d bytes, got %d", FixSize, len(b))
	}
	le := binary.LittleEndian
	f.Status = int32(le.Uint32(b[0:]))
	f.Latitude = int32(le.Uint32(b[4:]))
	f.LatitudeNS = Hemisphere(b[8])
	f.LongitudeEW = Hemisphere(b[9])
	f.Simulated = b[10] != 0
	f.Longitude = int32(le.Uint32(b[12:]))
	f.Altitude = int32(le.Uint32(b[16:]))
	f.Declination = math.Float64frombits(le.Uint64(b[20:]))
	f.Speed = int32(le.Uint32(b[28:]))
	f.Track = int32(le.Uint32(b[32:]))
	f.Date = int32(le.Uint32(b[36:]))
	f.GMT = int32(le.Uint32(b[40:]))
	f.SolarTime = int32(le.Uint32(b[44:]))
	f.MeridianTime = int32(le.Uint32(b[48:]))
	f.MeridianLong = int32(le.Uint32(b[52:]))
	return nil
}

// NullIsland is the placeholder published before the receiver answers.
func NullIsland() Fix {
	return Fix{
		Status:      StatusLost,
		LatitudeNS:  'N',
		LongitudeEW: 'E',
		Simulated:   true,
	}
}

// PercyLake is the fixed location published when no receiver is present.
func PercyLake() Fix {
	f := Fix{
		Status:      StatusStationary,
		Latitude:    451309,
		LatitudeNS:  'N',
		Longitude:   782211,
		LongitudeEW: 'W',
		Altitude:    1450,
		Declination: -11.567,
		Speed:       4,
		Track:       90,
		Date:        20181031,
		GMT:         103005,
		Simulated:   true,
	}
	f.SolarTime, f.MeridianLong, f.MeridianTime = localTimes(-(78 + 22.0/60 + 11.0/3600), f.GMT)
	return f
}
