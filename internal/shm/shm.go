// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package shm hands fixed-size records from one producer process to any
// number of readers through a memory-mapped file under /dev/shm.
//
// The region starts with an 8-byte sequence counter. The writer makes it odd
// before copying a record in and even afterwards, so a reader that sees an
// odd or changed counter knows it caught a write half way and retries.
//
// The record itself is moved in 8-byte atomic words, padded at the end.
// Plain copies are not ordered against the counter on weakly ordered CPUs
// such as the Pi's ARM cores, so a reader could otherwise accept a torn
// record under an unchanged even counter.
package shm

import (
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultDir is where Linux exposes POSIX shared memory.
const DefaultDir = "/dev/shm"

const (
	headerSize = 8
	wordSize   = 8
)

// regionSize is the mapped length for a record of size bytes.
func regionSize(size int) int {
	return headerSize + (size+wordSize-1)/wordSize*wordSize
}

// readRetries bounds how often a reader retries a torn read.
const readRetries = 64

var (
	// ErrNotAvailable means the producer has not created the region yet, or
	// has removed it on shutdown.
	ErrNotAvailable = errors.New("shared region not available")
	// ErrExists means another producer owns the region, or a crashed one
	// left it behind.
	ErrExists = errors.New("shared region already exists")
	// ErrTorn means every retry overlapped a write.
	ErrTorn = errors.New("shared region changed during read")
)

// Path returns the file backing the named region in dir.
func Path(dir, name string) string {
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, strings.TrimPrefix(name, "/"))
}

// Writer owns a region for the lifetime of a producer.
type Writer struct {
	path string
	size int
	f    *os.File
	data []byte
}

// Create makes the region exclusively. It fails with ErrExists when the file
// is already there.
func Create(dir, name string, size int) (*Writer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shared region %s: invalid size %d", name, size)
	}
	path := Path(dir, name)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrExists)
	}
	if err != nil {
		return nil, fmt.Errorf("create shared region %s: %w", path, err)
	}
	if err := f.Truncate(int64(regionSize(size))); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("size shared region %s: %w", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, regionSize(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("map shared region %s: %w", path, err)
	}

	return &Writer{path: path, size: size, f: f, data: data}, nil
}

// Path returns the backing file.
func (w *Writer) Path() string { return w.path }

// Seq returns the number of completed writes times two.
func (w *Writer) Seq() uint64 { return atomic.LoadUint64(seqPtr(w.data)) }

// Write replaces the record. payload must be exactly the region size.
func (w *Writer) Write(payload []byte) error {
	if w.data == nil {
		return fmt.Errorf("%s: write after close", w.path)
	}
	if len(payload) != w.size {
		return fmt.Errorf("%s: record is %d bytes, region holds %d", w.path, len(payload), w.size)
	}
	seq := seqPtr(w.data)
	s := atomic.LoadUint64(seq)
	atomic.StoreUint64(seq, s+1)
	var word [wordSize]byte
	for off := 0; off < len(payload); off += wordSize {
		word = [wordSize]byte{}
		copy(word[:], payload[off:])
		atomic.StoreUint64(wordPtr(w.data, off), binary.NativeEndian.Uint64(word[:]))
	}
	atomic.StoreUint64(seq, s+2)
	return nil
}

// Publish marshals v and writes it.
func (w *Writer) Publish(v encoding.BinaryMarshaler) error {
	b, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", w.path, err)
	}
	return w.Write(b)
}

// Close unmaps the region and removes it so readers see the producer stop.
func (w *Writer) Close() error {
	if w.data == nil {
		return nil
	}
	var errs []error
	if err := unix.Munmap(w.data); err != nil {
		errs = append(errs, fmt.Errorf("unmap %s: %w", w.path, err))
	}
	w.data = nil
	if err := w.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", w.path, err))
	}
	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("unlink %s: %w", w.path, err))
	}
	return errors.Join(errs...)
}

// Reader maps a region read-only.
type Reader struct {
	path string
	size int
	f    *os.File
	ino  uint64
	data []byte
}

// Open maps an existing region. It fails with ErrNotAvailable until the
// producer has created and sized it.
func Open(dir, name string, size int) (*Reader, error) {
	path := Path(dir, name)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotAvailable)
	}
	if err != nil {
		return nil, fmt.Errorf("open shared region %s: %w", path, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		f.Close()
		return nil, fmt.Errorf("stat shared region %s: %w", path, err)
	}
	if st.Size < int64(regionSize(size)) {
		f.Close()
		return nil, fmt.Errorf("%s: %d bytes, expected %d: %w", path, st.Size, regionSize(size), ErrNotAvailable)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, regionSize(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("map shared region %s: %w", path, err)
	}
	return &Reader{path: path, size: size, f: f, ino: uint64(st.Ino), data: data}, nil
}

// Path returns the backing file.
func (r *Reader) Path() string { return r.path }

// Read copies a consistent record into buf and returns its sequence number.
// Sequence 0 means nothing has been published yet.
func (r *Reader) Read(buf []byte) (uint64, error) {
	if r.data == nil {
		return 0, fmt.Errorf("%s: read after close", r.path)
	}
	if len(buf) < r.size {
		return 0, fmt.Errorf("%s: buffer is %d bytes, record is %d", r.path, len(buf), r.size)
	}
	seq := seqPtr(r.data)
	for i := 0; i < readRetries; i++ {
		s1 := atomic.LoadUint64(seq)
		if s1&1 == 1 {
			runtime.Gosched()
			continue
		}
		var word [wordSize]byte
		for off := 0; off < r.size; off += wordSize {
			binary.NativeEndian.PutUint64(word[:], atomic.LoadUint64(wordPtr(r.data, off)))
			copy(buf[off:r.size], word[:])
		}
		if atomic.LoadUint64(seq) == s1 {
			return s1, nil
		}
	}
	return 0, fmt.Errorf("%s: %w", r.path, ErrTorn)
}

// ReadInto reads a record and unmarshals it into v.
func (r *Reader) ReadInto(v encoding.BinaryUnmarshaler) (uint64, error) {
	buf := make([]byte, r.size)
	seq, err := r.Read(buf)
	if err != nil {
		return 0, err
	}
	if err := v.UnmarshalBinary(buf); err != nil {
		return 0, fmt.Errorf("%s: %w", r.path, err)
	}
	return seq, nil
}

// Alive reports whether the producer still owns the mapped region. A removed
// or replaced file means the producer stopped; reopen to follow a new one.
func (r *Reader) Alive() bool {
	var st unix.Stat_t
	if err := unix.Stat(r.path, &st); err != nil {
		return false
	}
	return uint64(st.Ino) == r.ino
}

// Close unmaps the region.
func (r *Reader) Close() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func seqPtr(b []byte) *uint64 {
	return (*uint64)(unsafe.Pointer(&b[0]))
}

// wordPtr points at the record word starting at byte off.
func wordPtr(b []byte, off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&b[headerSize+off]))
}
