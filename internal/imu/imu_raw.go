package imu

// RawSample is one signed 16-bit axis triple in raw sensor counts.
type RawSample struct {
	X int16 `json:"x"`
	Y int16 `json:"y"`
	Z int16 `json:"z"`
}

// IMURaw represents a single raw accelerometer + magnetometer sample.
type IMURaw struct {
	Source string `json:"source"` // "fxos8700" or "sim"

	Accel RawSample `json:"accel"`
	Mag   RawSample `json:"mag"`
}

// IMURawSource is anything that yields accelerometer/magnetometer pairs.
// Read errors must not be fatal to the caller; it falls back to default or
// simulated data.
type IMURawSource interface {
	Open() error
	ReadAccelMag() (IMURaw, error)
	Close() error
}
