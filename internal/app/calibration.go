package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/dieface/internal/calibration"
	"github.com/relabs-tech/dieface/internal/config"
	"github.com/relabs-tech/dieface/internal/imu"
	"github.com/relabs-tech/dieface/internal/sensors"
)

// Calibration modes accepted by RunCalibration.
const (
	ModeHardIron = "hard"
	ModeSoftIron = "soft"
	ModeTest     = "test"
)

// ErrCalibrationDeclined is returned when the operator refuses to overwrite
// an existing record.
var ErrCalibrationDeclined = errors.New("calibration not saved")

// openCalibrationSource opens the magnetometer for a capture. Unlike the
// orientation daemon it never falls back to the simulator on its own: a
// calibration against synthetic samples must be asked for.
func openCalibrationSource(cfg *config.Config) (imu.IMURawSource, error) {
	if cfg.FXOSSimulate {
		log.Printf("calibration: using simulated samples")
		return sensors.NewSimSource(), nil
	}
	dev := sensors.NewFXOS8700(cfg.FXOSI2CBus, cfg.FXOSI2CAddr)
	if err := dev.Open(); err != nil {
		return nil, err
	}
	return dev, nil
}

// captureMag reads n magnetometer (x, y) pairs, one per interval. progress,
// when set, is called after every sample.
func captureMag(ctx context.Context, src imu.IMURawSource, n int, interval time.Duration, progress func(done, total int)) ([]calibration.Point, error) {
	if n <= 0 {
		return nil, fmt.Errorf("capture size %d: %w", n, calibration.ErrNoSamples)
	}

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	points := make([]calibration.Point, 0, n)
	for len(points) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := src.ReadAccelMag()
		if err != nil {
			return nil, fmt.Errorf("capture sample %d: %w", len(points), err)
		}
		points = append(points, calibration.Point{X: int(s.Mag.X), Y: int(s.Mag.Y)})
		if progress != nil {
			progress(len(points), n)
		}
		if tick != nil && len(points) < n {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-tick:
			}
		}
	}
	return points, nil
}

// writeScrubFiles stores the samples that survived the hard-iron scrub next
// to the raw captures.
func writeScrubFiles(dir string, res calibration.HardIronResult) error {
	for _, h := range calibration.Headings {
		if err := calibration.SaveCapture(dir, h.CaptureFile()+calibration.ScrubSuffix, res.Kept[h]); err != nil {
			return err
		}
	}
	return nil
}

// calibrationCLI walks an operator through one calibration mode on a
// terminal. src is nil when the capture files are replayed from disk.
type calibrationCLI struct {
	cfg      *config.Config
	src      imu.IMURawSource
	in       *bufio.Reader
	out      io.Writer
	size     int
	factor   float64
	interval time.Duration
}

// RunCalibration runs the hard-iron, soft-iron or test pass against the
// global configuration. With capture set the samples are read from the
// sensor; otherwise the capture files already in CALIB_DIR are used.
func RunCalibration(ctx context.Context, mode string, capture bool, in io.Reader, out io.Writer) error {
	cfg := config.Get()

	var src imu.IMURawSource
	if capture {
		s, err := openCalibrationSource(cfg)
		if err != nil {
			return fmt.Errorf("open magnetometer: %w", err)
		}
		defer s.Close()
		src = s
	}
	return runCalibrationCLI(ctx, cfg, src, mode, in, out)
}

func runCalibrationCLI(ctx context.Context, cfg *config.Config, src imu.IMURawSource, mode string, in io.Reader, out io.Writer) error {
	c := &calibrationCLI{
		cfg:      cfg,
		src:      src,
		in:       bufio.NewReader(in),
		out:      out,
		size:     cfg.CalibSampleSize,
		factor:   cfg.CalibStdDevFactor,
		interval: config.Interval(cfg.CalibSampleInterval),
	}

	if c.src != nil {
		c.size = c.promptInt("Sample size", c.size)
	}

	switch mode {
	case ModeHardIron:
		c.factor = c.promptFloat("Std-dev factor (1=68%, 2=95%, 3=99.7%)", c.factor)
		return c.hardIron(ctx)
	case ModeSoftIron:
		return c.softIron(ctx)
	case ModeTest:
		return c.test(ctx)
	}
	return fmt.Errorf("unknown calibration mode %q (want %s, %s or %s)", mode, ModeHardIron, ModeSoftIron, ModeTest)
}

func (c *calibrationCLI) hardIron(ctx context.Context) error {
	dir := c.cfg.CalibDir

	if c.src != nil {
		for _, h := range calibration.Headings {
			c.waitEnter(fmt.Sprintf("Face 1 up, point the die %s (%d°) and keep it still. Press Enter to capture...", h, h.Degrees()))
			points, err := captureMag(ctx, c.src, c.size, c.interval, c.progress)
			if err != nil {
				return fmt.Errorf("capture %s: %w", h, err)
			}
			fmt.Fprintln(c.out)
			if err := calibration.SaveCapture(dir, h.CaptureFile(), points); err != nil {
				return err
			}
		}
	}

	set, err := calibration.LoadSampleSet(dir)
	if err != nil {
		return err
	}
	res, err := calibration.HardIron(set, c.factor)
	if err != nil {
		return fmt.Errorf("hard-iron: %w", err)
	}
	printHardIron(c.out, res)
	logHardIronWarnings(res)

	if err := writeScrubFiles(dir, res); err != nil {
		return err
	}
	return c.save(res.Record)
}

func (c *calibrationCLI) softIron(ctx context.Context) error {
	rec, err := calibration.Load(c.cfg.CalibFile)
	if err != nil {
		return fmt.Errorf("soft-iron needs a hard-iron record, run -mode %s first: %w", ModeHardIron, err)
	}

	raw, err := c.rotation(ctx)
	if err != nil {
		return err
	}
	res, err := calibration.SoftIron(rec, raw)
	if err != nil {
		return fmt.Errorf("soft-iron: %w", err)
	}
	printSoftIron(c.out, res)
	logSoftIronWarnings(res)

	if err := calibration.SaveCapture(c.cfg.CalibDir, calibration.RotationFile, res.Corrected); err != nil {
		return err
	}
	return c.save(res.Record)
}

func (c *calibrationCLI) test(ctx context.Context) error {
	rec, err := calibration.Load(c.cfg.CalibFile)
	if err != nil {
		return fmt.Errorf("nothing to test: %w", err)
	}

	raw, err := c.rotation(ctx)
	if err != nil {
		return err
	}
	corrected := calibration.ApplyStream(rec, raw)
	if err := calibration.SaveCapture(c.cfg.CalibDir, calibration.TestFile, corrected); err != nil {
		return err
	}

	lo, hi := radiusSpread(corrected)
	fmt.Fprintf(c.out, "Calibration %s\n", rec)
	fmt.Fprintf(c.out, "%d corrected points written to %s\n", len(corrected), calibration.TestFile)
	fmt.Fprintf(c.out, "Radius min=%.0f max=%.0f ideal=%d envelope=%.1f\n", lo, hi, rec.IdealRadius, rec.Envelope())
	return nil
}

// rotation returns the raw 360° stream, captured live or replayed from
// RotationRawFile.
func (c *calibrationCLI) rotation(ctx context.Context) ([]calibration.Point, error) {
	if c.src == nil {
		return calibration.LoadCapture(c.cfg.CalibDir, calibration.RotationRawFile)
	}
	c.waitEnter("Face 1 up, turn the die slowly through a full circle during the capture. Press Enter to start...")
	raw, err := captureMag(ctx, c.src, c.size, c.interval, c.progress)
	if err != nil {
		return nil, fmt.Errorf("capture rotation: %w", err)
	}
	fmt.Fprintln(c.out)
	if err := calibration.SaveCapture(c.cfg.CalibDir, calibration.RotationRawFile, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *calibrationCLI) save(rec calibration.Record) error {
	path := c.cfg.CalibFile
	if calibration.Exists(path) {
		if old, err := calibration.Load(path); err == nil {
			fmt.Fprintf(c.out, "Current %s: %s\n", path, old)
		}
		if !c.confirm(fmt.Sprintf("Overwrite %s with %s?", path, rec)) {
			return ErrCalibrationDeclined
		}
	}
	if err := calibration.Save(path, rec); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Wrote %s: %s\n", path, rec)
	return nil
}

func (c *calibrationCLI) progress(done, total int) {
	if done == total || done%100 == 0 {
		fmt.Fprintf(c.out, "\r  %d/%d", done, total)
	}
}

func (c *calibrationCLI) readLine() (string, bool) {
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimSpace(line), true
}

func (c *calibrationCLI) waitEnter(prompt string) {
	fmt.Fprint(c.out, prompt)
	c.readLine()
	fmt.Fprintln(c.out)
}

func (c *calibrationCLI) confirm(question string) bool {
	fmt.Fprintf(c.out, "%s [y/N]: ", question)
	line, _ := c.readLine()
	switch strings.ToLower(line) {
	case "y", "yes":
		return true
	}
	return false
}

func (c *calibrationCLI) promptInt(label string, def int) int {
	fmt.Fprintf(c.out, "%s [%d]: ", label, def)
	line, ok := c.readLine()
	if !ok || line == "" {
		return def
	}
	v, err := strconv.Atoi(line)
	if err != nil || v <= 0 {
		fmt.Fprintf(c.out, "invalid %s %q, using %d\n", strings.ToLower(label), line, def)
		return def
	}
	return v
}

func (c *calibrationCLI) promptFloat(label string, def float64) float64 {
	fmt.Fprintf(c.out, "%s [%g]: ", label, def)
	line, ok := c.readLine()
	if !ok || line == "" {
		return def
	}
	v, err := strconv.ParseFloat(line, 64)
	if err != nil || !(v > 0) {
		fmt.Fprintf(c.out, "invalid factor %q, using %g\n", line, def)
		return def
	}
	return v
}

func printHardIron(w io.Writer, res calibration.HardIronResult) {
	fmt.Fprintln(w, "Heading   n      mean x  mean y  sd x  sd y")
	for _, st := range res.Raw {
		fmt.Fprintf(w, "%-8s %5d  %7d %7d %5d %5d\n", st.Heading, st.Samples, st.Mean.X, st.Mean.Y, st.StdDevX, st.StdDevY)
	}
	fmt.Fprintf(w, "Noise %d counts, scrub at %.1f\n", res.RawNoise, float64(res.RawNoise)*res.Record.StdDevFactor)
	for _, st := range res.Scrubbed {
		fmt.Fprintf(w, "%-8s rejected %d (%.1f%%), mean (%d, %d)\n", st.Heading, st.Rejected, st.RejectedPercent(), st.Mean.X, st.Mean.Y)
	}
	rec := res.Record
	fmt.Fprintf(w, "Hard iron x=%d y=%d, radius x=%d y=%d ideal=%d\n", rec.HardX, rec.HardY, res.RadiusX, res.RadiusY, rec.IdealRadius)
	fmt.Fprintf(w, "Noise %d counts = %.2f°\n", rec.NoiseTesla, rec.NoiseDegrees)
	if res.Ellipse {
		fmt.Fprintf(w, "Radii differ by more than the noise: run -mode %s next\n", ModeSoftIron)
	}
}

func printSoftIron(w io.Writer, res calibration.SoftIronResult) {
	if res.Circle {
		fmt.Fprintln(w, "Rotation stayed inside the noise envelope: no soft-iron correction")
		return
	}
	if res.HaveMax {
		fmt.Fprintf(w, "Max (%d, %d) distance %.1f at %.1f°\n", res.Max.X, res.Max.Y, res.DistanceMax, res.AngleMax)
	}
	if res.HaveMin {
		fmt.Fprintf(w, "Min (%d, %d) distance %.1f at %.1f°\n", res.Min.X, res.Min.Y, res.DistanceMin, res.AngleMin)
	}
	fmt.Fprintf(w, "Soft iron %d° scale x %.4f\n", res.Record.SoftDeg, res.Record.SoftScaleX)
	if res.Misaligned {
		fmt.Fprintln(w, "Max and min angles disagree by more than the noise, recapture the rotation")
	}
}

func logHardIronWarnings(res calibration.HardIronResult) {
	if res.Ellipse {
		log.Printf("calibration: radii x=%d y=%d differ by more than %.1f counts, soft-iron pass needed",
			res.RadiusX, res.RadiusY, res.Record.Envelope())
	}
}

func logSoftIronWarnings(res calibration.SoftIronResult) {
	if res.Misaligned {
		log.Printf("calibration: max angle %.1f° and min angle %.1f° disagree by more than %.1f°, recapture the rotation",
			res.AngleMax, res.AngleMin, res.Record.NoiseDegrees*res.Record.StdDevFactor)
	}
}

// radiusSpread returns the smallest and largest distance from the origin.
func radiusSpread(points []calibration.Point) (lo, hi float64) {
	if len(points) == 0 {
		return 0, 0
	}
	lo = math.Inf(1)
	for _, p := range points {
		d := calibration.Distance(p, calibration.Point{})
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	return lo, hi
}
