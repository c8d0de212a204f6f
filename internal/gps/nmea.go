package gps

import (
	"math"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

// MovingKmh is the ground speed above which a fix counts as moving.
const MovingKmh = 1

// Tracker accumulates NMEA sentences into a Fix. RMC carries position, time
// and motion; GGA adds altitude.
type Tracker struct {
	fix         Fix
	declination float64
}

// NewTracker starts from NullIsland. declination is used when the receiver
// does not report magnetic variation.
func NewTracker(declination float64) *Tracker {
	f := NullIsland()
	f.Simulated = false
	f.Declination = declination
	return &Tracker{fix: f, declination: declination}
}

// Fix returns the current fix.
func (t *Tracker) Fix() Fix { return t.fix }

// ParseLine parses one NMEA line and applies it. It reports whether the fix
// should be published. Blank and malformed lines are ignored.
func (t *Tracker) ParseLine(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return false
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return false
	}
	return t.Apply(sentence)
}

// Apply folds a parsed sentence into the fix. Only RMC completes a fix.
func (t *Tracker) Apply(sentence nmea.Sentence) bool {
	switch sentence.DataType() {
	case nmea.TypeRMC:
		t.applyRMC(sentence.(nmea.RMC))
		return true
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality != nmea.Invalid {
			t.fix.Altitude = int32(math.Round(m.Altitude * FeetPerMetre))
		}
	}
	return false
}

func (t *Tracker) applyRMC(m nmea.RMC) {
	f := &t.fix

	if m.Time.Valid {
		f.GMT = int32(m.Time.Hour*10000 + m.Time.Minute*100 + m.Time.Second)
	}
	if m.Date.Valid {
		year := 2000 + m.Date.YY
		if m.Date.YY >= 80 {
			year -= 100
		}
		f.Date = int32(year*10000 + m.Date.MM*100 + m.Date.DD)
	}

	if m.Validity != nmea.ValidRMC {
		f.Status = StatusLost
		return
	}

	lat := DDtoDMS(m.Latitude, false)
	lon := DDtoDMS(m.Longitude, true)
	f.Latitude, f.LatitudeNS = lat.Packed(), lat.Hemisphere
	f.Longitude, f.LongitudeEW = lon.Packed(), lon.Hemisphere

	f.Speed = int32(math.Round(m.Speed * KmhPerKnot))
	f.Track = int32(math.Round(m.Course))
	if f.Speed >= MovingKmh {
		f.Status = StatusMoving
	} else {
		f.Status = StatusStationary
	}

	f.Declination = t.declination
	if m.Variation != 0 {
		f.Declination = m.Variation
	}

	f.SolarTime, f.MeridianLong, f.MeridianTime = localTimes(m.Longitude, f.GMT)
}
