package gps

import (
	"encoding/json"
	"fmt"
	"testing"
)

// sentence wraps an NMEA body with '$' and its checksum.
func sentence(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum)
}

func TestDDtoDMS(t *testing.T) {
	cases := []struct {
		name      string
		dd        float64
		longitude bool
		packed    int32
		hemi      Hemisphere
	}{
		{"percy lake longitude", -(78 + 22.0/60 + 11.5/3600), true, 782211, 'W'},
		{"percy lake latitude", 45 + 13.0/60 + 9.5/3600, false, 451309, 'N'},
		{"southern", -(33 + 51.0/60 + 35.5/3600), false, 335135, 'S'},
		{"eastern", 151 + 12.0/60 + 40.5/3600, true, 1511240, 'E'},
		{"zero", 0, false, 0, 'N'},
		{"zero longitude", 0, true, 0, 'E'},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := DDtoDMS(c.dd, c.longitude)
			if got.Packed() != c.packed || got.Hemisphere != c.hemi {
				t.Errorf("DDtoDMS(%f) = %d%c, expected %d%c", c.dd, got.Packed(), got.Hemisphere, c.packed, c.hemi)
			}
		})
	}
}

func TestPercyLake(t *testing.T) {
	f := PercyLake()
	if !f.Simulated || f.Status != StatusStationary {
		t.Errorf("status %d simulated %v", f.Status, f.Simulated)
	}
	if f.Longitude != 782211 || f.LongitudeEW != 'W' || f.Latitude != 451309 || f.LatitudeNS != 'N' {
		t.Errorf("position %d%c %d%c", f.Latitude, f.LatitudeNS, f.Longitude, f.LongitudeEW)
	}
	// 10:30:05 UTC at 78°22'11" W is 05:16:36 solar, 05:30:05 on the 75th meridian.
	if f.SolarTime != 51636 {
		t.Errorf("solar time = %06d", f.SolarTime)
	}
	if f.MeridianLong != -75 || f.MeridianTime != 53005 {
		t.Errorf("meridian %d at %06d", f.MeridianLong, f.MeridianTime)
	}
}

func TestLocalTimesWrap(t *testing.T) {
	solar, long, zone := localTimes(135, 200000)
	if solar != 50000 || long != 135 || zone != 50000 {
		t.Errorf("localTimes = %06d %d %06d", solar, long, zone)
	}
	solar, _, zone = localTimes(-120, 10000)
	if solar != 170000 || zone != 170000 {
		t.Errorf("localTimes west = %06d %06d", solar, zone)
	}
}

func TestFixBinary(t *testing.T) {
	want := PercyLake()
	b, err := want.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != FixSize {
		t.Fatalf("encoded %d bytes", len(b))
	}
	var got Fix
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("decoded %+v, expected %+v", got, want)
	}
	if err := got.UnmarshalBinary(b[:10]); err == nil {
		t.Error("short buffer accepted")
	}
}

func TestFixJSONHemisphere(t *testing.T) {
	b, err := json.Marshal(PercyLake())
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["latitude_ns"] != "N" || m["longitude_ew"] != "W" {
		t.Errorf("hemispheres %v %v", m["latitude_ns"], m["longitude_ew"])
	}
}

func TestTracker(t *testing.T) {
	tr := NewTracker(-11.5)
	if f := tr.Fix(); f.Status != StatusLost || f.Simulated {
		t.Fatalf("initial fix %+v", f)
	}

	if tr.ParseLine("garbage") || tr.ParseLine("$GPRMC,broken*00") {
		t.Error("malformed line published")
	}

	gga := sentence("GPGGA,220516,5133.82,N,00042.24,W,1,08,0.9,545.4,M,46.9,M,,")
	if tr.ParseLine(gga) {
		t.Error("GGA alone should not publish")
	}
	if got := tr.Fix().Altitude; got != 1789 {
		t.Errorf("altitude = %d ft", got)
	}

	rmc := sentence("GPRMC,220516,A,5133.82,N,00042.24,W,173.8,231.8,130694,,")
	if !tr.ParseLine(rmc + "\r\n") {
		t.Fatal("RMC did not publish")
	}
	f := tr.Fix()
	if f.Latitude != 513349 || f.LatitudeNS != 'N' {
		t.Errorf("latitude %d%c", f.Latitude, f.LatitudeNS)
	}
	if f.Longitude != 4214 || f.LongitudeEW != 'W' {
		t.Errorf("longitude %d%c", f.Longitude, f.LongitudeEW)
	}
	if f.GMT != 220516 || f.Date != 19940613 {
		t.Errorf("time %06d date %d", f.GMT, f.Date)
	}
	if f.Speed != 322 || f.Track != 232 || f.Status != StatusMoving {
		t.Errorf("speed %d track %d status %d", f.Speed, f.Track, f.Status)
	}
	if f.Declination != -11.5 {
		t.Errorf("declination = %f", f.Declination)
	}

	void := sentence("GPRMC,220517,V,,,,,,,130694,,")
	tr.ParseLine(void)
	if f := tr.Fix(); f.Status != StatusLost || f.GMT != 220517 {
		t.Errorf("void fix status %d gmt %06d", f.Status, f.GMT)
	}
}
