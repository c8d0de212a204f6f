package gps

import "math"

// FeetPerMetre converts receiver altitude to the published unit.
const FeetPerMetre = 3.28084

// KmhPerKnot converts NMEA speed over ground.
const KmhPerKnot = 1.852

// DMS is a coordinate split into whole degrees, minutes and seconds.
type DMS struct {
	Degrees    int
	Minutes    int
	Seconds    int
	Hemisphere Hemisphere
}

// Packed returns dddmmss.
func (d DMS) Packed() int32 {
	return int32(d.Degrees*10000 + d.Minutes*100 + d.Seconds)
}

// DDtoDMS converts decimal degrees. Minutes and seconds are truncated.
func DDtoDMS(dd float64, longitude bool) DMS {
	var d DMS
	switch {
	case longitude && dd < 0:
		d.Hemisphere = 'W'
	case longitude:
		d.Hemisphere = 'E'
	case dd < 0:
		d.Hemisphere = 'S'
	default:
		d.Hemisphere = 'N'
	}

	dd = math.Abs(dd)
	d.Degrees = int(dd)
	minutes := (dd - float64(d.Degrees)) * 60
	d.Minutes = int(minutes)
	d.Seconds = int((minutes - float64(d.Minutes)) * 60)
	return d
}

// hhmmss packs seconds since midnight, wrapping into one day.
func hhmmss(secs int) int32 {
	secs %= 86400
	if secs < 0 {
		secs += 86400
	}
	return int32(secs/3600*10000 + secs%3600/60*100 + secs%60)
}

func seconds(t int32) int {
	v := int(t)
	return v/10000*3600 + v/100%100*60 + v%100
}

// localTimes derives mean solar time, the nearest standard meridian and the
// time on that meridian from a longitude (east positive) and UTC hhmmss.
func localTimes(longitude float64, gmt int32) (solar, meridianLong, meridianTime int32) {
	utc := seconds(gmt)
	solar = hhmmss(utc + int(math.Round(longitude*240)))

	zone := int(math.Round(longitude / 15))
	meridianLong = int32(zone * 15)
	meridianTime = hhmmss(utc + zone*3600)
	return solar, meridianLong, meridianTime
}
