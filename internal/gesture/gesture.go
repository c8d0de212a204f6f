// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package gesture recognises die rolls from a stream of face-up readings.
//
// The machine is Steady until the face changes, collects one digit per face
// visited while Unsteady, and commits a DieEvent once the face has stayed put
// for the steady period.
package gesture

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/relabs-tech/dieface/internal/orientation"
)

// DefaultSteadyAfter is how long a face must stay up to end a roll.
const DefaultSteadyAfter = 3 * time.Second

// State of the roll recogniser.
type State int

const (
	Steady State = iota
	Unsteady
)

func (s State) String() string {
	if s == Steady {
		return "steady"
	}
	return "unsteady"
}

// Event drives the state machine.
type Event int

const (
	FaceChanged Event = iota
	TimedOut
)

func (e Event) String() string {
	if e == FaceChanged {
		return "face-changed"
	}
	return "timed-out"
}

// DieEvent is the last committed roll. ID changes on every commit so a
// poller can tell a repeated face from a new roll.
type DieEvent struct {
	ID         int16            `json:"id"`
	SteadyFace orientation.Face `json:"steady_face"`
	Action     int64            `json:"action"`
	Time       time.Time        `json:"time"`
}

// DieEventSize is the encoded length of a DieEvent.
const DieEventSize = 2 + 2 + 4 + 8 + 8

// MarshalBinary encodes e little-endian into DieEventSize bytes.
func (e DieEvent) MarshalBinary() ([]byte, error) {
	b := make([]byte, DieEventSize)
	binary.LittleEndian.PutUint16(b[0:], uint16(e.ID))
	binary.LittleEndian.PutUint32(b[4:], uint32(e.SteadyFace))
	binary.LittleEndian.PutUint64(b[8:], uint64(e.Action))
	var ms int64
	if !e.Time.IsZero() {
		ms = e.Time.UnixMilli()
	}
	binary.LittleEndian.PutUint64(b[16:], uint64(ms))
	return b, nil
}

// UnmarshalBinary decodes a buffer produced by MarshalBinary.
func (e *DieEvent) UnmarshalBinary(b []byte) error {
	if len(b) < DieEventSize {
		return fmt.Errorf("die event: need %d bytes, got %d", DieEventSize, len(b))
	}
	e.ID = int16(binary.LittleEndian.Uint16(b[0:]))
	e.SteadyFace = orientation.Face(int32(binary.LittleEndian.Uint32(b[4:])))
	e.Action = int64(binary.LittleEndian.Uint64(b[8:]))
	e.Time = time.Time{}
	if ms := int64(binary.LittleEndian.Uint64(b[16:])); ms != 0 {
		e.Time = time.UnixMilli(ms)
	}
	return nil
}

// Options configures a Machine. Zero fields take defaults.
type Options struct {
	SteadyAfter time.Duration
	// Validate looks committed actions up in the action table and logs the
	// ones that are not there. Unknown actions are still committed.
	Validate bool
	Now      func() time.Time
	Logger   *log.Logger
}

type transitionKey struct {
	state State
	event Event
}

type transition func(m *Machine, next orientation.Face, now time.Time) State

var transitions = map[transitionKey]transition{
	{Steady, FaceChanged}:   startRoll,
	{Steady, TimedOut}:      stayPut,
	{Unsteady, FaceChanged}: appendFace,
	{Unsteady, TimedOut}:    commitRoll,
}

// Machine is the roll recogniser. It is not safe for concurrent use.
type Machine struct {
	state     State
	face      orientation.Face
	action    int64
	overflow  bool
	lastEvent time.Time
	event     DieEvent

	steadyAfter time.Duration
	validate    bool
	now         func() time.Time
	logger      *log.Logger
}

// New returns a machine resting on face 1 with DieEvent{ID: 1, SteadyFace: 1}.
func New(opts Options) *Machine {
	m := &Machine{
		state:       Steady,
		face:        orientation.FaceUp,
		steadyAfter: opts.SteadyAfter,
		validate:    opts.Validate,
		now:         opts.Now,
		logger:      opts.Logger,
	}
	if m.steadyAfter <= 0 {
		m.steadyAfter = DefaultSteadyAfter
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = log.Default()
	}
	m.lastEvent = m.now()
	m.event = DieEvent{ID: 1, SteadyFace: orientation.FaceUp, Action: int64(NoAction), Time: m.lastEvent}
	return m
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Face returns the last face seen.
func (m *Machine) Face() orientation.Face { return m.face }

// Pending returns the action collected so far in the current roll.
func (m *Machine) Pending() int64 { return m.action }

// Event returns the last committed roll.
func (m *Machine) Event() DieEvent { return m.event }

// Update feeds one face reading. It returns the last committed event and
// whether this reading committed it.
//
// A reading equal to the current face before the steady period has elapsed
// is poll noise and fires nothing.
func (m *Machine) Update(face orientation.Face) (DieEvent, bool) {
	now := m.now()

	var ev Event
	switch {
	case face != m.face:
		ev = FaceChanged
	case now.Sub(m.lastEvent) >= m.steadyAfter:
		ev = TimedOut
	default:
		return m.event, false
	}

	before := m.event.ID
	m.state = transitions[transitionKey{m.state, ev}](m, face, now)
	m.lastEvent = now
	m.face = face
	return m.event, m.event.ID != before
}

func startRoll(m *Machine, next orientation.Face, _ time.Time) State {
	m.overflow = false
	m.action = int64(m.face)*10 + int64(next)
	if m.action > 999999999 {
		m.action = int64(Undocumented)
	}
	return Unsteady
}

func stayPut(*Machine, orientation.Face, time.Time) State {
	return Steady
}

func appendFace(m *Machine, next orientation.Face, _ time.Time) State {
	if m.overflow {
		return Unsteady
	}
	if m.action > (math.MaxInt64-int64(next))/10 {
		m.logger.Printf("gesture: action code overflow after %d, recording %v", m.action, Undocumented)
		m.action = int64(Undocumented)
		m.overflow = true
		return Unsteady
	}
	m.action = m.action*10 + int64(next)
	return Unsteady
}

func commitRoll(m *Machine, next orientation.Face, now time.Time) State {
	m.event = DieEvent{
		ID:         m.event.ID + 1,
		SteadyFace: next,
		Action:     m.action,
		Time:       now,
	}
	if m.validate {
		if a, ok := Lookup(m.action); ok {
			m.logger.Printf("gesture: roll %d committed: %v, face %d", m.event.ID, a, next)
		} else {
			m.logger.Printf("gesture: roll %d committed: undocumented action %d, face %d", m.event.ID, m.action, next)
		}
	}
	m.action = int64(NoAction)
	m.overflow = false
	return Steady
}
