package shm

import "encoding"

// Follower reads a region across producer restarts, reopening it whenever
// the mapped file has gone away.
type Follower struct {
	dir  string
	name string
	size int
	r    *Reader
}

// NewFollower returns a follower; nothing is opened until the first read.
func NewFollower(dir, name string, size int) *Follower {
	return &Follower{dir: dir, name: name, size: size}
}

// ReadInto reads the current record into v. It returns ErrNotAvailable
// while no producer owns the region.
func (f *Follower) ReadInto(v encoding.BinaryUnmarshaler) (uint64, error) {
	if f.r != nil && !f.r.Alive() {
		f.r.Close()
		f.r = nil
	}
	if f.r == nil {
		r, err := Open(f.dir, f.name, f.size)
		if err != nil {
			return 0, err
		}
		f.r = r
	}
	return f.r.ReadInto(v)
}

// Connected reports whether a region is currently mapped.
func (f *Follower) Connected() bool { return f.r != nil }

// Close releases the mapping, if any.
func (f *Follower) Close() error {
	if f.r == nil {
		return nil
	}
	err := f.r.Close()
	f.r = nil
	return err
}
