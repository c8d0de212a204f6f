package average

import "testing"

func TestAverageOfRamp(t *testing.T) {
	var m MovingAverage
	for v := 10; v <= 400; v += 10 {
		m.Push(v)
	}
	if got := m.Average(); got != 205 {
		t.Errorf("average of 10..400 = %d, expected 205", got)
	}
	if got := m.Filled(); got != Depth {
		t.Errorf("filled = %d, expected %d", got, Depth)
	}
}

func TestAverageSkipsEmptySlots(t *testing.T) {
	cases := []struct {
		in  []int
		out int
	}{
		{nil, 0},
		{[]int{0, 0, 0}, 0},
		{[]int{7}, 7},
		{[]int{10, 0, 20}, 15},
		{[]int{-3, -4}, -4},
		{[]int{1, 2}, 2},
	}

	for _, tc := range cases {
		var m MovingAverage
		for _, v := range tc.in {
			m.Push(v)
		}
		if res := m.Average(); res != tc.out {
			t.Errorf("%d != expected %d for %v", res, tc.out, tc.in)
		}
	}
}

func TestPushDropsOldest(t *testing.T) {
	var m MovingAverage
	m.Push(1000)
	for i := 0; i < Depth; i++ {
		m.Push(5)
	}
	if got := m.Average(); got != 5 {
		t.Errorf("oldest reading still counted: average %d", got)
	}

	m.Reset()
	if got := m.Average(); got != 0 {
		t.Errorf("average after reset = %d", got)
	}
}

func TestPair(t *testing.T) {
	var p Pair
	p.Push(10, -10)
	x, y := p.Push(20, -30)
	if x != 15 || y != -20 {
		t.Errorf("pair average = (%d, %d), expected (15, -20)", x, y)
	}
}
