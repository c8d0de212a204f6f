package app

import (
	"errors"
	"log"

	"github.com/relabs-tech/dieface/internal/config"
	"github.com/relabs-tech/dieface/internal/gesture"
	"github.com/relabs-tech/dieface/internal/gps"
	"github.com/relabs-tech/dieface/internal/orientation"
	"github.com/relabs-tech/dieface/internal/shm"
)

// Snapshot is one read of all three shared regions. A Have flag is false
// while the owning daemon is not running.
type Snapshot struct {
	Orientation     orientation.Record `json:"orientation"`
	HaveOrientation bool               `json:"have_orientation"`
	Event           gesture.DieEvent   `json:"event"`
	HaveEvent       bool               `json:"have_event"`
	GPS             gps.Fix            `json:"gps"`
	HaveGPS         bool               `json:"have_gps"`
}

// snapshotReader follows the three regions across producer restarts.
type snapshotReader struct {
	name string
	fxos *shm.Follower
	die  *shm.Follower
	gps  *shm.Follower

	// last error per region, so a stopped producer is logged once
	lastErr [3]string
}

func newSnapshotReader(name string, cfg *config.Config) *snapshotReader {
	return &snapshotReader{
		name: name,
		fxos: shm.NewFollower(cfg.SHMDir, cfg.SHMNameOrientation, orientation.RecordSize),
		die:  shm.NewFollower(cfg.SHMDir, cfg.SHMNameDieEvent, gesture.DieEventSize),
		gps:  shm.NewFollower(cfg.SHMDir, cfg.SHMNameGPS, gps.FixSize),
	}
}

// Read returns the current snapshot.
func (r *snapshotReader) Read() Snapshot {
	var s Snapshot
	s.HaveOrientation = r.read(0, r.fxos, &s.Orientation)
	s.HaveEvent = r.read(1, r.die, &s.Event)
	s.HaveGPS = r.read(2, r.gps, &s.GPS)
	return s
}

type unmarshaler interface {
	UnmarshalBinary([]byte) error
}

func (r *snapshotReader) read(i int, f *shm.Follower, v unmarshaler) bool {
	seq, err := f.ReadInto(v)
	if err != nil {
		if msg := err.Error(); msg != r.lastErr[i] {
			if errors.Is(err, shm.ErrNotAvailable) {
				log.Printf("%s: waiting for producer: %v", r.name, err)
			} else {
				log.Printf("%s: shared memory read error: %v", r.name, err)
			}
			r.lastErr[i] = msg
		}
		return false
	}
	if r.lastErr[i] != "" {
		log.Printf("%s: producer available again", r.name)
		r.lastErr[i] = ""
	}
	return seq != 0
}

func (r *snapshotReader) Close() {
	r.fxos.Close()
	r.die.Close()
	r.gps.Close()
}
