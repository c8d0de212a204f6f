// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/relabs-tech/dieface/internal/imu"
	"github.com/relabs-tech/dieface/internal/orientation"
	"github.com/relabs-tech/dieface/internal/sensors"
)

const registerDevice = "fxos8700"

// RegisterDevice is the register level access the debug tool needs.
// *sensors.FXOS8700 implements it.
type RegisterDevice interface {
	imu.IMURawSource
	ReadRegister(reg byte) (byte, error)
	WriteRegister(reg, val byte) error
}

// RegisterBench serializes access to one device across debug sessions.
type RegisterBench struct {
	mu  sync.Mutex
	dev RegisterDevice
}

// NewRegisterBench wraps an opened device.
func NewRegisterBench(dev RegisterDevice) *RegisterBench {
	return &RegisterBench{dev: dev}
}

func (b *RegisterBench) read(reg byte) (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev.ReadRegister(reg)
}

func (b *RegisterBench) write(reg, val byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev.WriteRegister(reg, val)
}

// readAll reads every register in the map. Unreadable registers are skipped.
func (b *RegisterBench) readAll() (map[byte]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[byte]byte)
	var firstErr error
	for _, r := range sensors.FXOS8700RegisterMap() {
		addr, err := r.Addr()
		if err != nil {
			return nil, err
		}
		v, err := b.dev.ReadRegister(addr)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("read %s: %w", r.Name, err)
			}
			continue
		}
		out[addr] = v
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (b *RegisterBench) reinit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev.Open()
}

func (b *RegisterBench) sample() (imu.IMURaw, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev.ReadAccelMag()
}

// RegisterDebugSession holds WebSocket connection state for register debugging
type RegisterDebugSession struct {
	Conn  *websocket.Conn
	bench *RegisterBench
}

// RegisterCmd is any request from the register debug page.
type RegisterCmd struct {
	Action  string `json:"action"` // get_map, read, read_all, write, init, export_config
	Address string `json:"addr,omitempty"`
	Value   string `json:"value,omitempty"`
}

// Response types
type RegisterResponse struct {
	Type        string                 `json:"type"` // "register_data", "register_map", "status", "export_config", "error"
	Device      string                 `json:"device,omitempty"`
	Address     string                 `json:"addr,omitempty"`
	Value       string                 `json:"value,omitempty"`
	Registers   map[string]string      `json:"registers,omitempty"` // for bulk read
	Timestamp   string                 `json:"timestamp,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Status      string                 `json:"status,omitempty"`
	RegisterMap []sensors.RegisterInfo `json:"register_map,omitempty"`
	Config      string                 `json:"config,omitempty"`
	Filename    string                 `json:"filename,omitempty"`
}

// RegisterConfigFile represents the JSON structure for exported register configuration
type RegisterConfigFile struct {
	Version   int               `json:"version"`
	Device    string            `json:"device"`
	Timestamp string            `json:"timestamp"`
	Registers map[string]string `json:"registers"` // hex address -> hex value
}

// HandleRegisterDebugWS handles the WebSocket connection for register debugging
func HandleRegisterDebugWS(bench *RegisterBench) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("register_debug: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		session := &RegisterDebugSession{Conn: conn, bench: bench}

		// Send register map on connection
		if err := session.sendRegisterMap(); err != nil {
			log.Printf("register_debug: error sending register map: %v", err)
			return
		}

		for {
			var cmd RegisterCmd
			if err := conn.ReadJSON(&cmd); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("register_debug: websocket error: %v", err)
				}
				return
			}

			switch cmd.Action {
			case "get_map":
				session.sendRegisterMap()
			case "read":
				session.handleRead(cmd)
			case "read_all":
				session.handleReadAll()
			case "write":
				session.handleWrite(cmd)
			case "init":
				session.handleInit()
			case "export_config":
				session.handleExportConfig()
			case "":
				session.sendError("missing or invalid action field")
			default:
				session.sendError(fmt.Sprintf("unknown action: %s", cmd.Action))
			}
		}
	}
}

// parseHexByte accepts "0x2A", "0X2a" or "2A".
func parseHexByte(s string) (byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

func hexByte(v byte) string { return fmt.Sprintf("0x%02X", v) }

func (s *RegisterDebugSession) handleRead(cmd RegisterCmd) {
	if cmd.Address == "" {
		s.sendError("missing addr field")
		return
	}
	addr, err := parseHexByte(cmd.Address)
	if err != nil {
		s.sendError(fmt.Sprintf("invalid address format: %s", cmd.Address))
		return
	}

	value, err := s.bench.read(addr)
	if err != nil {
		s.sendError(fmt.Sprintf("read error: %v", err))
		return
	}

	s.Conn.WriteJSON(RegisterResponse{
		Type:      "register_data",
		Device:    registerDevice,
		Address:   hexByte(addr),
		Value:     hexByte(value),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *RegisterDebugSession) handleReadAll() {
	registers, err := s.bench.readAll()
	if err != nil {
		s.sendError(fmt.Sprintf("read all error: %v", err))
		return
	}

	s.Conn.WriteJSON(RegisterResponse{
		Type:      "register_data",
		Device:    registerDevice,
		Registers: hexRegisters(registers),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *RegisterDebugSession) handleWrite(cmd RegisterCmd) {
	if cmd.Address == "" || cmd.Value == "" {
		s.sendError("missing addr or value field")
		return
	}
	addr, err := parseHexByte(cmd.Address)
	if err != nil {
		s.sendError(fmt.Sprintf("invalid address format: %s", cmd.Address))
		return
	}
	value, err := parseHexByte(cmd.Value)
	if err != nil {
		s.sendError(fmt.Sprintf("invalid value format: %s", cmd.Value))
		return
	}

	info, ok := sensors.LookupRegister(addr)
	if !ok || !info.Writable() {
		s.sendError(fmt.Sprintf("register 0x%02X is not writable", addr))
		return
	}
	if err := s.bench.write(addr, value); err != nil {
		s.sendError(fmt.Sprintf("write error: %v", err))
		return
	}
	log.Printf("register_debug: wrote %s = %s", info.Name, hexByte(value))

	s.Conn.WriteJSON(RegisterResponse{
		Type:      "register_data",
		Device:    registerDevice,
		Address:   hexByte(addr),
		Value:     hexByte(value),
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   "write successful",
	})
}

func (s *RegisterDebugSession) handleInit() {
	if err := s.bench.reinit(); err != nil {
		s.sendError(fmt.Sprintf("reinit error: %v", err))
		return
	}
	s.Conn.WriteJSON(RegisterResponse{
		Type:    "status",
		Device:  registerDevice,
		Status:  "initialized",
		Message: "FXOS8700 reinitialized successfully",
	})
}

func (s *RegisterDebugSession) handleExportConfig() {
	registers, err := s.bench.readAll()
	if err != nil {
		s.sendError(fmt.Sprintf("export error: %v", err))
		return
	}

	// Only the registers a config can restore.
	writable := make(map[byte]byte)
	for addr, v := range registers {
		if info, ok := sensors.LookupRegister(addr); ok && info.Writable() {
			writable[addr] = v
		}
	}

	now := time.Now()
	configJSON, err := json.Marshal(RegisterConfigFile{
		Version:   1,
		Device:    registerDevice,
		Timestamp: now.Format(time.RFC3339),
		Registers: hexRegisters(writable),
	})
	if err != nil {
		s.sendError(fmt.Sprintf("export error: %v", err))
		return
	}

	s.Conn.WriteJSON(RegisterResponse{
		Type:     "export_config",
		Device:   registerDevice,
		Message:  "config exported",
		Config:   string(configJSON),
		Filename: fmt.Sprintf("%s_%s_registers.json", registerDevice, now.Format("20060102_150405")),
	})
}

func (s *RegisterDebugSession) sendRegisterMap() error {
	return s.Conn.WriteJSON(RegisterResponse{
		Type:        "register_map",
		Device:      registerDevice,
		RegisterMap: sensors.FXOS8700RegisterMap(),
	})
}

func (s *RegisterDebugSession) sendError(message string) {
	s.Conn.WriteJSON(RegisterResponse{
		Type:    "error",
		Message: message,
	})
}

func hexRegisters(registers map[byte]byte) map[string]string {
	out := make(map[string]string, len(registers))
	for addr, v := range registers {
		out[hexByte(addr)] = hexByte(v)
	}
	return out
}

// HandleSampleData serves one live sample and the face it classifies as.
func HandleSampleData(bench *RegisterBench) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		raw, err := bench.sample()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		json.NewEncoder(w).Encode(struct {
			imu.IMURaw
			Face orientation.Face `json:"face"`
		}{raw, orientation.ClassifyFace(raw.Accel)})
	}
}
