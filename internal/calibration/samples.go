package calibration

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrNoSamples is returned when a heading or stream holds no samples.
	ErrNoSamples = errors.New("no samples")
	// ErrCaptureMissing is returned when a capture file has not been written.
	ErrCaptureMissing = errors.New("capture file missing")
)

// DefaultSampleSize is the number of samples captured per heading.
const DefaultSampleSize = 1000

// ScrubSuffix is appended to a capture file name for its scrubbed copy.
const ScrubSuffix = "scrub"

// Point is one magnetometer (x, y) pair in raw counts.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Heading is one of the four cardinal calibration headings.
type Heading int

const (
	North Heading = iota
	East
	South
	West
)

// Headings lists the capture order.
var Headings = [4]Heading{North, East, South, West}

func (h Heading) String() string {
	switch h {
	case North:
		return "NORTH"
	case East:
		return "EAST"
	case South:
		return "SOUTH"
	case West:
		return "WEST"
	}
	return "Heading(" + strconv.Itoa(int(h)) + ")"
}

// Degrees is the compass bearing of the heading.
func (h Heading) Degrees() int { return int(h) * 90 }

// CaptureFile is the file name holding raw samples for the heading.
func (h Heading) CaptureFile() string {
	return "fxmag" + strconv.Itoa(h.Degrees())
}

// RotationFile holds the hard-iron corrected 360° soft-iron capture.
const RotationFile = "fxmag360"

// RotationRawFile holds the raw 360° capture the rotation file was derived
// from, so the soft-iron and test passes can be rerun without the sensor.
const RotationRawFile = "fxmagraw360"

// TestFile holds fully corrected points written by the calibration test.
const TestFile = "calibraw360"

// SampleSet holds the four heading captures in Headings order.
type SampleSet [4][]Point

// Mean returns the integer mean of the points. The division truncates, as
// the capture tool always did.
func Mean(points []Point) (Point, error) {
	if len(points) == 0 {
		return Point{}, ErrNoSamples
	}
	var sx, sy int
	for _, p := range points {
		sx += p.X
		sy += p.Y
	}
	n := len(points)
	return Point{X: sx / n, Y: sy / n}, nil
}

// StdDev returns the truncated population standard deviation per axis
// against the given mean.
func StdDev(points []Point, mean Point) (int, int, error) {
	if len(points) == 0 {
		return 0, 0, ErrNoSamples
	}
	var vx, vy float64
	for _, p := range points {
		dx := float64(p.X - mean.X)
		dy := float64(p.Y - mean.Y)
		vx += dx * dx
		vy += dy * dy
	}
	n := float64(len(points))
	return int(math.Sqrt(vx / n)), int(math.Sqrt(vy / n)), nil
}

// Distance is the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// WriteCapture writes one " x  y " line per point.
func WriteCapture(w io.Writer, points []Point) error {
	bw := bufio.NewWriter(w)
	for _, p := range points {
		if _, err := fmt.Fprintf(bw, " %d  %d \n", p.X, p.Y); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadCapture parses a capture stream. Blank lines are skipped.
func ReadCapture(r io.Reader) ([]Point, error) {
	var points []Point
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("capture line %d: expected 2 fields, got %d", lineNum, len(fields))
		}
		x, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("capture line %d: %w", lineNum, err)
		}
		y, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("capture line %d: %w", lineNum, err)
		}
		points = append(points, Point{X: x, Y: y})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	return points, nil
}

// SaveCapture writes points to dir/name.
func SaveCapture(dir, name string, points []Point) error {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("create capture %s: %w", name, err)
	}
	if err := WriteCapture(f, points); err != nil {
		f.Close()
		return fmt.Errorf("write capture %s: %w", name, err)
	}
	return f.Close()
}

// LoadCapture reads dir/name. A missing file yields ErrCaptureMissing.
func LoadCapture(dir, name string) ([]Point, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrCaptureMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", name, err)
	}
	defer f.Close()

	points, err := ReadCapture(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return points, nil
}

// LoadSampleSet reads the four heading captures from dir.
func LoadSampleSet(dir string) (SampleSet, error) {
	var set SampleSet
	for _, h := range Headings {
		points, err := LoadCapture(dir, h.CaptureFile())
		if err != nil {
			return SampleSet{}, err
		}
		set[h] = points
	}
	return set, nil
}
