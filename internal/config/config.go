package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT mirror; an empty broker disables it
	MQTTBroker              string
	MQTTClientIDOrientation string
	MQTTClientIDGesture     string
	MQTTClientIDGPS         string
	MQTTClientIDConsole     string
	MQTTClientIDWeb         string
	MQTTClientIDDisplay     string
	MQTTClientIDCalibration string

	// Topics
	TopicOrientation string
	TopicDieEvent    string
	TopicGPS         string

	// Shared memory
	SHMDir             string
	SHMNameOrientation string
	SHMNameDieEvent    string
	SHMNameGPS         string

	// FXOS8700 hardware
	FXOSI2CBus   string
	FXOSI2CAddr  uint16
	FXOSSimulate bool // skip the sensor and publish simulated samples

	// Timing
	OrientationSampleInterval int // milliseconds
	GestureSampleInterval     int // milliseconds
	GestureSteadySeconds      int
	GestureValidateActions    bool
	ConsoleLogInterval        int // milliseconds

	// GPS
	GPSSerialPort  string
	GPSBaudRate    int
	GPSDeclination float64 // degrees, west negative
	GPSSimulate    bool

	// Calibration
	CalibFile           string
	CalibDir            string
	CalibSampleSize     int
	CalibStdDevFactor   float64
	CalibSampleInterval int // milliseconds

	// Web Server
	WebServerPort     int
	RegisterDebugPort int
	MetricsAddr       string // empty disables /metrics

	// Display
	DisplayI2CBus         string
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	// Logging
	LogFile string // appended to in addition to stderr
}

// Default returns the configuration used for any key a file leaves out.
func Default() *Config {
	return &Config{
		MQTTBroker:              "tcp://localhost:1883",
		MQTTClientIDOrientation: "dieface-orientation",
		MQTTClientIDGesture:     "dieface-gesture",
		MQTTClientIDGPS:         "dieface-gps",
		MQTTClientIDConsole:     "dieface-console",
		MQTTClientIDWeb:         "dieface-web",
		MQTTClientIDDisplay:     "dieface-display",
		MQTTClientIDCalibration: "dieface-calibration",

		TopicOrientation: "dieface/orientation",
		TopicDieEvent:    "dieface/event",
		TopicGPS:         "dieface/gps",

		SHMDir:             "/dev/shm",
		SHMNameOrientation: "pmtfxos",
		SHMNameDieEvent:    "pmtdieface",
		SHMNameGPS:         "pmtgps",

		FXOSI2CBus:  "/dev/i2c-1",
		FXOSI2CAddr: 0x1E,

		OrientationSampleInterval: 25,
		GestureSampleInterval:     500,
		GestureSteadySeconds:      3,
		ConsoleLogInterval:        1000,

		GPSSerialPort: "/dev/serial0",
		GPSBaudRate:   9600,

		CalibFile:           "calibdata",
		CalibDir:            ".",
		CalibSampleSize:     1000,
		CalibStdDevFactor:   1.0,
		CalibSampleInterval: 25,

		WebServerPort:     8080,
		RegisterDebugPort: 8081,

		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 500,
	}
}

// Package-level singleton state. globalConfig is only set through
// InitGlobal and read through Get, guarded by configMu.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file on top of Default.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_ORIENTATION":
		c.MQTTClientIDOrientation = value
	case "MQTT_CLIENT_ID_GESTURE":
		c.MQTTClientIDGesture = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_CLIENT_ID_CALIBRATION":
		c.MQTTClientIDCalibration = value

	// Topics
	case "TOPIC_ORIENTATION":
		c.TopicOrientation = value
	case "TOPIC_DIE_EVENT":
		c.TopicDieEvent = value
	case "TOPIC_GPS":
		c.TopicGPS = value

	// Shared memory
	case "SHM_DIR":
		c.SHMDir = value
	case "SHM_NAME_ORIENTATION":
		c.SHMNameOrientation = value
	case "SHM_NAME_DIE_EVENT":
		c.SHMNameDieEvent = value
	case "SHM_NAME_GPS":
		c.SHMNameGPS = value

	// FXOS8700
	case "FXOS_I2C_BUS":
		c.FXOSI2CBus = value
	case "FXOS_I2C_ADDR":
		c.FXOSI2CAddr, err = parseI2CAddr(key, value)
	case "FXOS_SIMULATE":
		c.FXOSSimulate, err = parseBool(key, value)

	// Timing
	case "ORIENTATION_SAMPLE_INTERVAL":
		c.OrientationSampleInterval, err = parseIntRange(key, value, 1, 60000)
	case "GESTURE_SAMPLE_INTERVAL":
		c.GestureSampleInterval, err = parseIntRange(key, value, 1, 60000)
	case "GESTURE_STEADY_SECONDS":
		c.GestureSteadySeconds, err = parseIntRange(key, value, 1, 3600)
	case "GESTURE_VALIDATE_ACTIONS":
		c.GestureValidateActions, err = parseBool(key, value)
	case "CONSOLE_LOG_INTERVAL":
		c.ConsoleLogInterval, err = parseIntRange(key, value, 1, 3600000)

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = parseIntRange(key, value, 1200, 921600)
	case "GPS_DECLINATION":
		c.GPSDeclination, err = strconv.ParseFloat(value, 64)
		if err == nil && (c.GPSDeclination < -180 || c.GPSDeclination > 180) {
			err = fmt.Errorf("GPS_DECLINATION must be -180..180, got %v", c.GPSDeclination)
		} else if err != nil {
			err = fmt.Errorf("invalid GPS_DECLINATION %q: %w", value, err)
		}
	case "GPS_SIMULATE":
		c.GPSSimulate, err = parseBool(key, value)

	// Calibration
	case "CALIB_FILE":
		c.CalibFile = value
	case "CALIB_DIR":
		c.CalibDir = value
	case "CALIB_SAMPLE_SIZE":
		c.CalibSampleSize, err = parseIntRange(key, value, 1, 1000000)
	case "CALIB_STDDEV_FACTOR":
		c.CalibStdDevFactor, err = strconv.ParseFloat(value, 64)
		if err == nil && c.CalibStdDevFactor <= 0 {
			err = fmt.Errorf("CALIB_STDDEV_FACTOR must be positive, got %v", c.CalibStdDevFactor)
		} else if err != nil {
			err = fmt.Errorf("invalid CALIB_STDDEV_FACTOR %q: %w", value, err)
		}
	case "CALIB_SAMPLE_INTERVAL":
		c.CalibSampleInterval, err = parseIntRange(key, value, 1, 60000)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseIntRange(key, value, 1, 65535)
	case "REGISTER_DEBUG_PORT":
		c.RegisterDebugPort, err = parseIntRange(key, value, 1, 65535)
	case "METRICS_ADDR":
		c.MetricsAddr = value

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		c.DisplayI2CAddr, err = parseI2CAddr(key, value)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseIntRange(key, value, 1, 60000)

	// Logging
	case "LOG_FILE":
		c.LogFile = value

	default:
		// Unknown keys are ignored so one file can serve every daemon version
	}
	return err
}

func parseIntRange(key, value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	return v, nil
}

func parseI2CAddr(key, value string) (uint16, error) {
	v, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < 0x03 || v > 0x77 {
		return 0, fmt.Errorf("%s must be 0x03-0x77, got 0x%02X", key, v)
	}
	return uint16(v), nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// validate checks fields that have no usable zero value.
func (c *Config) validate() error {
	if c.SHMNameOrientation == "" || c.SHMNameDieEvent == "" || c.SHMNameGPS == "" {
		return fmt.Errorf("SHM_NAME_* must not be empty")
	}
	if c.SHMNameOrientation == c.SHMNameDieEvent || c.SHMNameOrientation == c.SHMNameGPS || c.SHMNameDieEvent == c.SHMNameGPS {
		return fmt.Errorf("SHM_NAME_* must be distinct")
	}
	if c.CalibFile == "" {
		return fmt.Errorf("CALIB_FILE is required")
	}
	if c.FXOSI2CBus == "" && !c.FXOSSimulate {
		return fmt.Errorf("FXOS_I2C_BUS is required unless FXOS_SIMULATE=true")
	}
	if c.GPSSerialPort == "" && !c.GPSSimulate {
		return fmt.Errorf("GPS_SERIAL_PORT is required unless GPS_SIMULATE=true")
	}
	return nil
}

// Interval converts a millisecond setting.
func Interval(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// InitGlobal initializes the global configuration from file. Only the first
// call loads anything.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// SetGlobal installs cfg directly, for tests and tools that build a config
// in code.
func SetGlobal(cfg *Config) {
	configOnce.Do(func() {})
	configMu.Lock()
	defer configMu.Unlock()
	globalConfig = cfg
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
