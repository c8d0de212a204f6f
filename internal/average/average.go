// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package average smooths noisy magnetometer axes with a fixed-depth history.
package average

import "math"

// Depth is the number of readings kept in the history.
const Depth = 40

// MovingAverage keeps the last Depth readings, newest first.
//
// A zero slot counts as "not filled yet", so a genuine zero reading does not
// pull the mean towards zero. The zero value is ready to use.
type MovingAverage struct {
	stack [Depth]int
}

// Push prepends v and drops the oldest reading.
func (m *MovingAverage) Push(v int) {
	copy(m.stack[1:], m.stack[:Depth-1])
	m.stack[0] = v
}

// Average returns the rounded mean of the non-zero slots, or 0 when every
// slot is empty.
func (m *MovingAverage) Average() int {
	sum, n := 0, 0
	for _, v := range m.stack {
		if v == 0 {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}

// Filled reports how many slots hold a non-zero reading.
func (m *MovingAverage) Filled() int {
	n := 0
	for _, v := range m.stack {
		if v != 0 {
			n++
		}
	}
	return n
}

// Reset clears the history.
func (m *MovingAverage) Reset() {
	m.stack = [Depth]int{}
}

// Pair smooths an (x, y) vector with two independent histories.
type Pair struct {
	X MovingAverage
	Y MovingAverage
}

// Push adds one (x, y) reading and returns the smoothed vector.
func (p *Pair) Push(x, y int) (int, int) {
	p.X.Push(x)
	p.Y.Push(y)
	return p.X.Average(), p.Y.Average()
}

// Reset clears both histories.
func (p *Pair) Reset() {
	p.X.Reset()
	p.Y.Reset()
}
