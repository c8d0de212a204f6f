package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/dieface/internal/calibration"
	"github.com/relabs-tech/dieface/internal/gesture"
	"github.com/relabs-tech/dieface/internal/imu"
	"github.com/relabs-tech/dieface/internal/orientation"
)

func newTestWeb(t *testing.T) (*httptest.Server, *liveState, string) {
	t.Helper()
	cfg := calibrationConfig(t)
	static := t.TempDir()
	if err := os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>die</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	state := &liveState{}
	open := func() (imu.IMURawSource, error) { return nil, errors.New("no sensor in tests") }
	srv := httptest.NewServer(newWebMux(cfg, state, open, http.Dir(static)))
	t.Cleanup(srv.Close)
	return srv, state, cfg.CalibFile
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

func TestWebAPIWaitsForProducers(t *testing.T) {
	srv, _, _ := newTestWeb(t)
	for _, path := range []string{"/api/orientation", "/api/event", "/api/gps"} {
		if code, _ := get(t, srv.URL+path); code != http.StatusServiceUnavailable {
			t.Errorf("%s: status %d", path, code)
		}
	}
	if code, _ := get(t, srv.URL+"/api/calibration"); code != http.StatusNotFound {
		t.Errorf("calibration: status %d", code)
	}
	if code, body := get(t, srv.URL+"/"); code != http.StatusOK || !strings.Contains(body, "<h1>die</h1>") {
		t.Errorf("index: %d %q", code, body)
	}
}

func TestWebAPIServesSnapshot(t *testing.T) {
	srv, state, calibFile := newTestWeb(t)
	state.set(fullSnapshot())

	code, body := get(t, srv.URL+"/api/orientation")
	if code != http.StatusOK {
		t.Fatalf("orientation: %d %s", code, body)
	}
	var rec orientation.Record
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Face != orientation.FaceUp || rec.Heading != 275 {
		t.Errorf("orientation %+v", rec)
	}

	_, body = get(t, srv.URL+"/api/state")
	var snap Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		t.Fatal(err)
	}
	if !snap.HaveGPS || snap.GPS.Latitude != 451309 || snap.Event.Action != int64(gesture.FrontFlip) {
		t.Errorf("state %+v", snap)
	}

	rec2 := calibration.Uncalibrated()
	rec2.HardX = -42
	if err := calibration.Save(calibFile, rec2); err != nil {
		t.Fatal(err)
	}
	code, body = get(t, srv.URL+"/api/calibration")
	if code != http.StatusOK || !strings.Contains(body, `"hard_x":-42`) {
		t.Errorf("calibration: %d %s", code, body)
	}
}

func TestWebActionTable(t *testing.T) {
	srv, _, _ := newTestWeb(t)
	_, body := get(t, srv.URL+"/api/actions")
	var table []actionEntry
	if err := json.Unmarshal([]byte(body), &table); err != nil {
		t.Fatal(err)
	}
	if len(table) != len(gesture.Known()) {
		t.Fatalf("%d actions", len(table))
	}
	if table[0] != (actionEntry{Code: 0, Name: "NOACTION"}) {
		t.Errorf("first entry %+v", table[0])
	}
	last := table[len(table)-1]
	if last.Code != int64(gesture.Front2Flip) || last.Name != "FRONT2FLIP" {
		t.Errorf("last entry %+v", last)
	}
}

func TestWebMetrics(t *testing.T) {
	srv, _, _ := newTestWeb(t)
	code, body := get(t, srv.URL+"/metrics")
	if code != http.StatusOK || !strings.Contains(body, "dieface_orientation_face") {
		t.Errorf("metrics: %d", code)
	}
}

func TestWebLiveStream(t *testing.T) {
	srv, state, _ := newTestWeb(t)
	state.set(fullSnapshot())

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Orientation.Heading != 275 {
		t.Errorf("first push %+v", snap.Orientation)
	}

	next := fullSnapshot()
	next.Orientation = orientation.Record{Face: orientation.FaceDown, Heading: orientation.NoHeading}
	state.set(next)
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Orientation.Face != orientation.FaceDown {
		t.Errorf("second push %+v", snap.Orientation)
	}
}
