package calibration

import (
	"fmt"
	"math"
)

// HeadingStats summarises one heading capture.
type HeadingStats struct {
	Heading  Heading `json:"heading"`
	Samples  int     `json:"samples"`
	Mean     Point   `json:"mean"`
	StdDevX  int     `json:"stddev_x"`
	StdDevY  int     `json:"stddev_y"`
	Rejected int     `json:"rejected"`
}

// RejectedPercent is the share of samples dropped by the scrub.
func (s HeadingStats) RejectedPercent() float64 {
	if s.Samples == 0 {
		return 0
	}
	return float64(s.Rejected) / float64(s.Samples) * 100
}

// HardIronResult is the outcome of the hard-iron pass.
type HardIronResult struct {
	Record   Record          `json:"record"`
	Raw      [4]HeadingStats `json:"raw"`
	Scrubbed [4]HeadingStats `json:"scrubbed"`
	RawNoise int             `json:"raw_noise"`
	RadiusX  int             `json:"radius_x"`
	RadiusY  int             `json:"radius_y"`
	// Ellipse is set when the x and y radii differ by more than the noise
	// envelope; a soft-iron pass should follow.
	Ellipse bool `json:"ellipse"`
	// Kept holds the surviving samples per heading, for the scrub files.
	Kept SampleSet `json:"-"`
}

// HardIron derives hard-iron offsets, circle radius and noise figures from
// the four heading captures. Samples farther than noise*stdDevFactor from
// their heading mean are discarded before the offsets are computed.
func HardIron(set SampleSet, stdDevFactor float64) (HardIronResult, error) {
	var res HardIronResult

	for _, h := range Headings {
		st, err := headingStats(h, set[h])
		if err != nil {
			return HardIronResult{}, fmt.Errorf("%s: %w", h, err)
		}
		res.Raw[h] = st
	}
	res.RawNoise = noise(res.Raw)

	threshold := float64(res.RawNoise) * stdDevFactor
	for _, h := range Headings {
		kept := scrub(set[h], res.Raw[h].Mean, threshold)
		if len(kept) == 0 {
			return HardIronResult{}, fmt.Errorf("%s: every sample rejected: %w", h, ErrNoSamples)
		}
		st, err := headingStats(h, kept)
		if err != nil {
			return HardIronResult{}, fmt.Errorf("%s: %w", h, err)
		}
		st.Samples = len(set[h])
		st.Rejected = len(set[h]) - len(kept)
		res.Scrubbed[h] = st
		res.Kept[h] = kept
	}

	var xs, ys [4]int
	for _, h := range Headings {
		xs[h] = res.Scrubbed[h].Mean.X
		ys[h] = res.Scrubbed[h].Mean.Y
	}
	hardX, radiusX := blendedMidpoint(xs)
	hardY, radiusY := blendedMidpoint(ys)

	res.RadiusX = radiusX
	res.RadiusY = radiusY

	rec := Uncalibrated()
	rec.HardX = hardX
	rec.HardY = hardY
	rec.IdealRadius = (radiusX + radiusY) / 2
	// noise comes from the raw captures; the scrub only moves the means
	rec.NoiseTesla = res.RawNoise
	rec.NoiseDegrees = math.Atan2(float64(rec.NoiseTesla), float64(rec.IdealRadius)) * 180 / math.Pi
	rec.StdDevFactor = stdDevFactor
	res.Record = rec

	res.Ellipse = math.Abs(float64(radiusX-radiusY)) > rec.Envelope()
	return res, nil
}

func headingStats(h Heading, points []Point) (HeadingStats, error) {
	mean, err := Mean(points)
	if err != nil {
		return HeadingStats{}, err
	}
	sx, sy, err := StdDev(points, mean)
	if err != nil {
		return HeadingStats{}, err
	}
	return HeadingStats{Heading: h, Samples: len(points), Mean: mean, StdDevX: sx, StdDevY: sy}, nil
}

// noise is the rounded mean of the eight per-axis standard deviations.
func noise(stats [4]HeadingStats) int {
	sum := 0
	for _, s := range stats {
		sum += s.StdDevX + s.StdDevY
	}
	return int(math.Round(float64(sum) / 8))
}

func scrub(points []Point, mean Point, threshold float64) []Point {
	kept := make([]Point, 0, len(points))
	for _, p := range points {
		if Distance(p, mean) > threshold {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

// blendedMidpoint averages (max-min)/2+min with the two remaining heading
// means, so a single outlying heading moves the offset less. It also
// returns the radius (max-min)/2.
func blendedMidpoint(means [4]int) (mid, radius int) {
	imin, imax := 0, 0
	for i, v := range means {
		if v < means[imin] {
			imin = i
		}
		if v > means[imax] {
			imax = i
		}
	}

	others := make([]int, 0, 3)
	for i := range means {
		if i != imin && i != imax {
			others = append(others, i)
		}
	}
	// All four equal: min and max share an index, pick any two others.
	mid1, mid2 := others[len(others)-1], others[len(others)-2]

	radius = (means[imax] - means[imin]) / 2
	centre := radius + means[imin]
	return (centre + means[mid1] + means[mid2]) / 3, radius
}
