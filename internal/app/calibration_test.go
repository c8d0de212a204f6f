package app

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/dieface/internal/calibration"
	"github.com/relabs-tech/dieface/internal/config"
	"github.com/relabs-tech/dieface/internal/imu"
)

// Heading means for a die with hard iron at (100, -50) and a 300 count
// field, in Headings order.
var headingMeans = [4]imu.RawSample{
	{X: 400, Y: -50},
	{X: 100, Y: 250},
	{X: -200, Y: -50},
	{X: 100, Y: -350},
}

// headingSource holds each heading for per samples, then returns to north.
// means overrides headingMeans when set.
type headingSource struct {
	mu    sync.Mutex
	per   int
	n     int
	means *[4]imu.RawSample
}

func (s *headingSource) Open() error  { return nil }
func (s *headingSource) Close() error { return nil }

func (s *headingSource) ReadAccelMag() (imu.IMURaw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.n / s.per
	if i >= len(headingMeans) {
		i = 0 // the rotation capture sits on the circle
	}
	s.n++
	means := &headingMeans
	if s.means != nil {
		means = s.means
	}
	return imu.IMURaw{Accel: imu.RawSample{Z: 8192}, Mag: means[i]}, nil
}

func calibrationConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.CalibDir = dir
	cfg.CalibFile = filepath.Join(dir, "calibdata")
	cfg.CalibSampleSize = 5
	cfg.CalibSampleInterval = 1
	return cfg
}

func writeHeadingCaptures(t *testing.T, dir string) {
	t.Helper()
	for _, h := range calibration.Headings {
		m := headingMeans[h]
		// the two off-mean samples fall outside the zero noise envelope
		points := []calibration.Point{
			{X: int(m.X), Y: int(m.Y)},
			{X: int(m.X) - 1, Y: int(m.Y)},
			{X: int(m.X), Y: int(m.Y)},
			{X: int(m.X) + 1, Y: int(m.Y)},
			{X: int(m.X), Y: int(m.Y)},
		}
		if err := calibration.SaveCapture(dir, h.CaptureFile(), points); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCaptureMag(t *testing.T) {
	src := &headingSource{per: 3}
	var progress []int
	points, err := captureMag(context.Background(), src, 4, 0, func(done, total int) {
		progress = append(progress, done)
		if total != 4 {
			t.Errorf("total %d", total)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 4 || points[0] != (calibration.Point{X: 400, Y: -50}) || points[3] != (calibration.Point{X: 100, Y: 250}) {
		t.Errorf("points %v", points)
	}
	if len(progress) != 4 || progress[3] != 4 {
		t.Errorf("progress %v", progress)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := captureMag(ctx, src, 4, time.Millisecond, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled capture: %v", err)
	}
	if _, err := captureMag(context.Background(), src, 0, 0, nil); !errors.Is(err, calibration.ErrNoSamples) {
		t.Errorf("empty capture: %v", err)
	}
}

func TestCalibrationHardIronFromCaptureFiles(t *testing.T) {
	cfg := calibrationConfig(t)
	writeHeadingCaptures(t, cfg.CalibDir)

	var out bytes.Buffer
	// factor prompt takes the default
	if err := runCalibrationCLI(context.Background(), cfg, nil, ModeHardIron, strings.NewReader("\n"), &out); err != nil {
		t.Fatalf("%v\n%s", err, out.String())
	}

	rec, err := calibration.Load(cfg.CalibFile)
	if err != nil {
		t.Fatal(err)
	}
	if rec.HardX != 100 || rec.HardY != -50 || rec.IdealRadius != 300 || rec.HasSoftIron() {
		t.Errorf("record %+v", rec)
	}
	for _, h := range calibration.Headings {
		if _, err := os.Stat(filepath.Join(cfg.CalibDir, h.CaptureFile()+calibration.ScrubSuffix)); err != nil {
			t.Errorf("scrub file for %s: %v", h, err)
		}
	}
	scrubbed, err := calibration.LoadCapture(cfg.CalibDir, calibration.East.CaptureFile()+calibration.ScrubSuffix)
	if err != nil || len(scrubbed) != 3 {
		t.Errorf("east scrub kept %d: %v", len(scrubbed), err)
	}
	if !strings.Contains(out.String(), "Hard iron x=100 y=-50") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestCalibrationDeclinedOverwrite(t *testing.T) {
	cfg := calibrationConfig(t)
	writeHeadingCaptures(t, cfg.CalibDir)
	old := calibration.Uncalibrated()
	old.HardX = 7
	if err := calibration.Save(cfg.CalibFile, old); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := runCalibrationCLI(context.Background(), cfg, nil, ModeHardIron, strings.NewReader("1.0\nn\n"), &out)
	if !errors.Is(err, ErrCalibrationDeclined) {
		t.Fatalf("err = %v", err)
	}
	rec, err := calibration.Load(cfg.CalibFile)
	if err != nil || rec.HardX != 7 {
		t.Errorf("record replaced: %+v %v", rec, err)
	}
}

func TestCalibrationMissingInputs(t *testing.T) {
	cases := []struct {
		name string
		mode string
		want error
	}{
		{"hard without captures", ModeHardIron, calibration.ErrCaptureMissing},
		{"soft without record", ModeSoftIron, os.ErrNotExist},
		{"test without record", ModeTest, os.ErrNotExist},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := calibrationConfig(t)
			err := runCalibrationCLI(context.Background(), cfg, nil, c.mode, strings.NewReader(""), &bytes.Buffer{})
			if !errors.Is(err, c.want) {
				t.Errorf("err = %v, expected %v", err, c.want)
			}
			if calibration.Exists(cfg.CalibFile) {
				t.Error("record written")
			}
		})
	}

	err := runCalibrationCLI(context.Background(), calibrationConfig(t), nil, "wobble", strings.NewReader(""), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown calibration mode") {
		t.Errorf("unknown mode: %v", err)
	}
}

func TestCalibrationCaptureThenSoftThenTest(t *testing.T) {
	cfg := calibrationConfig(t)
	src := &headingSource{per: 4}

	// sample size, factor, then one Enter per heading
	input := "4\n\n\n\n\n\n"
	var out bytes.Buffer
	if err := runCalibrationCLI(context.Background(), cfg, src, ModeHardIron, strings.NewReader(input), &out); err != nil {
		t.Fatalf("hard: %v\n%s", err, out.String())
	}
	if got, err := calibration.LoadCapture(cfg.CalibDir, calibration.North.CaptureFile()); err != nil || len(got) != 4 {
		t.Fatalf("north capture %v %v", got, err)
	}

	// sample size, Enter to start, confirm overwrite
	out.Reset()
	if err := runCalibrationCLI(context.Background(), cfg, src, ModeSoftIron, strings.NewReader("8\n\ny\n"), &out); err != nil {
		t.Fatalf("soft: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "no soft-iron correction") {
		t.Errorf("soft output:\n%s", out.String())
	}
	raw, err := calibration.LoadCapture(cfg.CalibDir, calibration.RotationRawFile)
	if err != nil || len(raw) != 8 {
		t.Fatalf("raw rotation %d %v", len(raw), err)
	}
	corrected, err := calibration.LoadCapture(cfg.CalibDir, calibration.RotationFile)
	if err != nil || corrected[0] != (calibration.Point{X: 300, Y: 0}) {
		t.Fatalf("rotation file %v %v", corrected, err)
	}

	// replay the rotation without the sensor
	out.Reset()
	if err := runCalibrationCLI(context.Background(), cfg, nil, ModeTest, strings.NewReader(""), &out); err != nil {
		t.Fatalf("test: %v", err)
	}
	tested, err := calibration.LoadCapture(cfg.CalibDir, calibration.TestFile)
	if err != nil || len(tested) != 8 {
		t.Fatalf("test file %d %v", len(tested), err)
	}
	if !strings.Contains(out.String(), "Radius min=300 max=300 ideal=300") {
		t.Errorf("test output:\n%s", out.String())
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) WSResponse {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var resp WSResponse
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("waiting for %q: %v", typ, err)
		}
		if resp.Type == typ {
			return resp
		}
		if resp.Type == "error" {
			t.Fatalf("waiting for %q: error %s", typ, resp.Message)
		}
	}
}

func TestCalibrationWebSession(t *testing.T) {
	cfg := calibrationConfig(t)
	src := &headingSource{per: 6}
	opened := 0
	open := func() (imu.IMURawSource, error) {
		opened++
		return src, nil
	}

	srv := httptest.NewServer(HandleCalibrationWS(cfg, open))
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	send := func(msg WSMessage) {
		t.Helper()
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatal(err)
		}
	}

	send(WSMessage{Action: "save"})
	if resp := readUntil(t, conn, "error"); !strings.Contains(resp.Message, "not finished") {
		t.Errorf("early save: %q", resp.Message)
	}

	send(WSMessage{Action: "init", SampleSize: 6})
	if resp := readUntil(t, conn, "step"); resp.Step != "NORTH" {
		t.Errorf("first step %q", resp.Step)
	}
	for i := 0; i < 3; i++ {
		send(WSMessage{Action: "next"})
		readUntil(t, conn, "action")
	}
	send(WSMessage{Action: "next"})
	readUntil(t, conn, "stats")
	if resp := readUntil(t, conn, "phase"); resp.Phase != phaseSoft {
		t.Errorf("phase %q after headings", resp.Phase)
	}
	readUntil(t, conn, "action")

	send(WSMessage{Action: "next"})
	readUntil(t, conn, "stats")
	readUntil(t, conn, "action")

	send(WSMessage{Action: "save"})
	resp := readUntil(t, conn, "complete")
	if resp.Results == nil {
		t.Error("complete without results")
	}

	rec, err := calibration.Load(cfg.CalibFile)
	if err != nil {
		t.Fatal(err)
	}
	if rec.HardX != 100 || rec.HardY != -50 || rec.IdealRadius != 300 {
		t.Errorf("record %+v", rec)
	}
	if opened != 1 {
		t.Errorf("source opened %d times", opened)
	}

	// a second save needs the overwrite flag
	send(WSMessage{Action: "save"})
	if resp := readUntil(t, conn, "error"); !strings.Contains(resp.Message, "confirm overwrite") {
		t.Errorf("second save: %q", resp.Message)
	}
	send(WSMessage{Action: "save", Overwrite: true})
	readUntil(t, conn, "complete")
}

// lockedBuffer collects log output written from handler goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLog(t *testing.T) *lockedBuffer {
	t.Helper()
	var b lockedBuffer
	log.SetOutput(&b)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &b
}

// Radii of 300 along x and 250 along y around (100, -50).
var ellipseMeans = [4]imu.RawSample{
	{X: 400, Y: -50},
	{X: 100, Y: 200},
	{X: -200, Y: -50},
	{X: 100, Y: -300},
}

func TestCalibrationWebSessionLogsEllipse(t *testing.T) {
	logs := captureLog(t)
	cfg := calibrationConfig(t)
	src := &headingSource{per: 6, means: &ellipseMeans}
	open := func() (imu.IMURawSource, error) { return src, nil }

	srv := httptest.NewServer(HandleCalibrationWS(cfg, open))
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{Action: "init", SampleSize: 6}); err != nil {
		t.Fatal(err)
	}
	readUntil(t, conn, "step")
	for i := 0; i < 4; i++ {
		if err := conn.WriteJSON(WSMessage{Action: "next"}); err != nil {
			t.Fatal(err)
		}
		readUntil(t, conn, "action")
	}

	if !strings.Contains(logs.String(), "radii x=300 y=250 differ") {
		t.Errorf("ellipse warning not logged:\n%s", logs.String())
	}
}

func TestCalibrationCLILogsEllipse(t *testing.T) {
	logs := captureLog(t)
	cfg := calibrationConfig(t)
	src := &headingSource{per: 3, means: &ellipseMeans}

	var out bytes.Buffer
	if err := runCalibrationCLI(context.Background(), cfg, src, ModeHardIron, strings.NewReader("3\n\n\n\n\n\n"), &out); err != nil {
		t.Fatalf("%v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "run -mode soft next") {
		t.Errorf("output:\n%s", out.String())
	}
	if !strings.Contains(logs.String(), "soft-iron pass needed") {
		t.Errorf("ellipse warning not logged:\n%s", logs.String())
	}
}

func TestLogSoftIronWarnings(t *testing.T) {
	logs := captureLog(t)
	res := calibration.SoftIronResult{Record: calibration.Uncalibrated(), AngleMax: 10, AngleMin: 80}
	res.Record.NoiseDegrees = 2
	logSoftIronWarnings(res)
	if logs.String() != "" {
		t.Errorf("aligned result logged: %s", logs.String())
	}
	res.Misaligned = true
	logSoftIronWarnings(res)
	if !strings.Contains(logs.String(), "max angle 10.0° and min angle 80.0° disagree") {
		t.Errorf("log: %s", logs.String())
	}
}
