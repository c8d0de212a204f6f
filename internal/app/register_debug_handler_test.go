package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/dieface/internal/imu"
	"github.com/relabs-tech/dieface/internal/sensors"
)

type fakeRegisters struct {
	mu    sync.Mutex
	regs  map[byte]byte
	opens int
}

func newFakeRegisters() *fakeRegisters {
	return &fakeRegisters{regs: map[byte]byte{0x0D: sensors.FXOSWhoAmI, 0x2A: 0x0D}}
}

func (f *fakeRegisters) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	return nil
}

func (f *fakeRegisters) Close() error { return nil }

func (f *fakeRegisters) ReadAccelMag() (imu.IMURaw, error) {
	return imu.IMURaw{Source: "fake", Accel: imu.RawSample{X: -8192}, Mag: imu.RawSample{X: 10, Y: 20}}, nil
}

func (f *fakeRegisters) ReadRegister(reg byte) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[reg], nil
}

func (f *fakeRegisters) get(reg byte) (byte, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[reg], f.opens
}

func (f *fakeRegisters) WriteRegister(reg, val byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[reg] = val
	return nil
}

func TestParseHexByte(t *testing.T) {
	cases := []struct {
		in   string
		want byte
		ok   bool
	}{
		{"0x2A", 0x2A, true},
		{"0X2a", 0x2A, true},
		{"5b", 0x5B, true},
		{" 0x00 ", 0x00, true},
		{"0x100", 0, false},
		{"zz", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, err := parseHexByte(c.in)
		if (err == nil) != c.ok || got != c.want {
			t.Errorf("parseHexByte(%q) = 0x%02X, %v", c.in, got, err)
		}
	}
}

func TestRegisterDebugSession(t *testing.T) {
	dev := newFakeRegisters()
	srv := httptest.NewServer(HandleRegisterDebugWS(NewRegisterBench(dev)))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	roundTrip := func(cmd RegisterCmd) RegisterResponse {
		t.Helper()
		if err := conn.WriteJSON(cmd); err != nil {
			t.Fatal(err)
		}
		var resp RegisterResponse
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatal(err)
		}
		return resp
	}

	var first RegisterResponse
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Type != "register_map" || len(first.RegisterMap) != len(sensors.FXOS8700RegisterMap()) {
		t.Fatalf("greeting %+v", first.Type)
	}

	if resp := roundTrip(RegisterCmd{Action: "read", Address: "0x0D"}); resp.Value != "0xC7" {
		t.Errorf("WHO_AM_I read %+v", resp)
	}

	if resp := roundTrip(RegisterCmd{Action: "write", Address: "0x0D", Value: "0x00"}); resp.Type != "error" {
		t.Errorf("read-only write accepted: %+v", resp)
	}
	if resp := roundTrip(RegisterCmd{Action: "write", Address: "0x2A", Value: "0x01"}); resp.Type != "register_data" || resp.Message != "write successful" {
		t.Errorf("write %+v", resp)
	}
	if v, _ := dev.get(0x2A); v != 0x01 {
		t.Errorf("CTRL_REG1 = 0x%02X", v)
	}

	all := roundTrip(RegisterCmd{Action: "read_all"})
	if all.Registers["0x0D"] != "0xC7" || all.Registers["0x2A"] != "0x01" {
		t.Errorf("read_all %v", all.Registers)
	}

	export := roundTrip(RegisterCmd{Action: "export_config"})
	var file RegisterConfigFile
	if err := json.Unmarshal([]byte(export.Config), &file); err != nil {
		t.Fatalf("export %+v: %v", export, err)
	}
	if _, ok := file.Registers["0x0D"]; ok {
		t.Error("read-only register exported")
	}
	if file.Registers["0x2A"] != "0x01" || file.Device != "fxos8700" {
		t.Errorf("export %+v", file)
	}

	resp := roundTrip(RegisterCmd{Action: "init"})
	if _, opens := dev.get(0x2A); resp.Status != "initialized" || opens != 1 {
		t.Errorf("init %+v, opens %d", resp, opens)
	}
	if resp := roundTrip(RegisterCmd{Action: "set_spi_speed"}); resp.Type != "error" {
		t.Errorf("unknown action %+v", resp)
	}
}

func TestHandleSampleData(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleSampleData(NewRegisterBench(newFakeRegisters()))(rec, httptest.NewRequest(http.MethodGet, "/api/sample", nil))

	var got struct {
		Source string `json:"source"`
		Face   int    `json:"face"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Source != "fake" || got.Face != 3 {
		t.Errorf("sample %+v", got)
	}
}
