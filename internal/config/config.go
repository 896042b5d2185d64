package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all experiment configuration values. It is immutable
// once the run starts; live tuning of the four pulse-shape parameters
// happens over the MQTT tuning topic, not through this struct.
type Config struct {
	// Subject / run
	SubjectID  string
	MaxTrials  int
	Balanced   bool
	EMSEnabled bool

	// Stimulation pulse shape (live-tunable)
	PulseWidthUS    int
	PulseCount      int
	BurstCount      int
	PulseIntervalUS int

	// Stimulus timing relative to target onset, seconds per side.
	// Negative fires the stimulation before the target appears.
	StimOffsetLeftSec  float64
	StimOffsetRightSec float64

	// Thresholds, degrees
	AngleThresholdDeg  float64
	CenterThresholdDeg float64

	// Random wait bounds before target onset, seconds
	MinWaitSec float64
	MaxWaitSec float64

	// Stimulation device serial link. An empty port runs the
	// experiment in simulation mode (commands dropped).
	SerialPort string
	SerialBaud uint

	// MQTT
	MQTTBroker             string
	MQTTClientIDExperiment string
	MQTTClientIDEMSSim     string
	MQTTClientIDMonitor    string
	MQTTClientIDWeb        string
	MQTTClientIDDisplay    string

	// Topics
	TopicPose     string // head tracker -> experiment
	TopicScene    string // experiment -> renderer (show/hide targets)
	TopicTrial    string // completed trial events
	TopicState    string // live run state
	TopicReaction string // reaction-time display
	TopicTune     string // live stimulation parameter edits

	// Pose input: "mqtt" (head tracker) or "mock" (bench runs)
	PoseSource string

	// Output
	OutputDir string

	// Timing
	FrameIntervalMS int

	// Web Server
	WebServerPort int

	// Display
	DisplayUpdateInterval int // milliseconds
}

// Default returns the configuration the rig usually runs with; a
// config file overrides individual keys.
func Default() *Config {
	return &Config{
		SubjectID:  "anonymous",
		MaxTrials:  30,
		Balanced:   true,
		EMSEnabled: false,

		PulseWidthUS:    200,
		PulseCount:      20,
		BurstCount:      1,
		PulseIntervalUS: 10000,

		AngleThresholdDeg:  15,
		CenterThresholdDeg: 2,
		MinWaitSec:         1.5,
		MaxWaitSec:         3.5,

		SerialBaud: 115200,

		MQTTClientIDExperiment: "reaction-experiment",
		MQTTClientIDEMSSim:     "reaction-emssim",
		MQTTClientIDMonitor:    "reaction-monitor",
		MQTTClientIDWeb:        "reaction-web",
		MQTTClientIDDisplay:    "reaction-display",

		TopicPose:     "reaction/pose",
		TopicScene:    "reaction/scene",
		TopicTrial:    "reaction/trial",
		TopicState:    "reaction/state",
		TopicReaction: "reaction/display",
		TopicTune:     "reaction/stimulation/set",

		PoseSource: "mqtt",

		OutputDir: "ExperimentData",

		FrameIntervalMS: 8,

		WebServerPort: 8080,

		DisplayUpdateInterval: 200,
	}
}

// Package-level unexported variables for the config singleton:
// InitGlobal() sets it once, Get() reads it, the stimulation setters
// take the write lock so live tuning is safe against frame reads.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file over the defaults and returns a
// Config struct.
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
	switch key {
	// Subject / run
	case "SUBJECT_ID":
		c.SubjectID = value
	case "MAX_TRIALS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAX_TRIALS %q: %w", value, err)
		}
		if n < 0 {
			return fmt.Errorf("MAX_TRIALS must be >= 0, got %d", n)
		}
		c.MaxTrials = n
	case "BALANCED":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid BALANCED %q: %w", value, err)
		}
		c.Balanced = b
	case "EMS_ENABLED":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid EMS_ENABLED %q: %w", value, err)
		}
		c.EMSEnabled = b

	// Stimulation pulse shape
	case "PULSE_WIDTH_US":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PULSE_WIDTH_US %q: %w", value, err)
		}
		c.PulseWidthUS = n
	case "PULSE_COUNT":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PULSE_COUNT %q: %w", value, err)
		}
		c.PulseCount = n
	case "BURST_COUNT":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BURST_COUNT %q: %w", value, err)
		}
		c.BurstCount = n
	case "PULSE_INTERVAL_US":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PULSE_INTERVAL_US %q: %w", value, err)
		}
		c.PulseIntervalUS = n

	// Stimulus offsets
	case "STIM_OFFSET_LEFT_SEC":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid STIM_OFFSET_LEFT_SEC %q: %w", value, err)
		}
		c.StimOffsetLeftSec = f
	case "STIM_OFFSET_RIGHT_SEC":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid STIM_OFFSET_RIGHT_SEC %q: %w", value, err)
		}
		c.StimOffsetRightSec = f

	// Thresholds
	case "ANGLE_THRESHOLD_DEG":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid ANGLE_THRESHOLD_DEG %q: %w", value, err)
		}
		if f <= 0 {
			return fmt.Errorf("ANGLE_THRESHOLD_DEG must be > 0, got %v", f)
		}
		c.AngleThresholdDeg = f
	case "CENTER_THRESHOLD_DEG":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid CENTER_THRESHOLD_DEG %q: %w", value, err)
		}
		if f <= 0 {
			return fmt.Errorf("CENTER_THRESHOLD_DEG must be > 0, got %v", f)
		}
		c.CenterThresholdDeg = f

	// Random wait bounds
	case "MIN_WAIT_SEC":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MIN_WAIT_SEC %q: %w", value, err)
		}
		if f < 0 {
			return fmt.Errorf("MIN_WAIT_SEC must be >= 0, got %v", f)
		}
		c.MinWaitSec = f
	case "MAX_WAIT_SEC":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_WAIT_SEC %q: %w", value, err)
		}
		c.MaxWaitSec = f

	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD %q: %w", value, err)
		}
		c.SerialBaud = uint(n)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_EXPERIMENT":
		c.MQTTClientIDExperiment = value
	case "MQTT_CLIENT_ID_EMSSIM":
		c.MQTTClientIDEMSSim = value
	case "MQTT_CLIENT_ID_MONITOR":
		c.MQTTClientIDMonitor = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_POSE":
		c.TopicPose = value
	case "TOPIC_SCENE":
		c.TopicScene = value
	case "TOPIC_TRIAL":
		c.TopicTrial = value
	case "TOPIC_STATE":
		c.TopicState = value
	case "TOPIC_REACTION":
		c.TopicReaction = value
	case "TOPIC_TUNE":
		c.TopicTune = value

	// Pose input
	case "POSE_SOURCE":
		if value != "mqtt" && value != "mock" {
			return fmt.Errorf("POSE_SOURCE must be \"mqtt\" or \"mock\", got %q", value)
		}
		c.PoseSource = value

	// Output
	case "OUTPUT_DIR":
		c.OutputDir = value

	// Timing
	case "FRAME_INTERVAL_MS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid FRAME_INTERVAL_MS %q: %w", value, err)
		}
		if n <= 0 {
			return fmt.Errorf("FRAME_INTERVAL_MS must be > 0, got %d", n)
		}
		c.FrameIntervalMS = n

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks cross-field constraints and required fields.
func (c *Config) validate() error {
	if c.SubjectID == "" {
		return fmt.Errorf("SUBJECT_ID is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if c.MaxWaitSec < c.MinWaitSec {
		return fmt.Errorf("MAX_WAIT_SEC (%v) must be >= MIN_WAIT_SEC (%v)", c.MaxWaitSec, c.MinWaitSec)
	}
	if c.PoseSource == "mqtt" && c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required when POSE_SOURCE=mqtt")
	}
	return nil
}

// Settings lists every experiment parameter as key/value pairs, in the
// order they appear in the output file's settings block.
func (c *Config) Settings() [][2]string {
	return [][2]string{
		{"SubjectID", c.SubjectID},
		{"MaxTrials", strconv.Itoa(c.MaxTrials)},
		{"Balanced", strconv.FormatBool(c.Balanced)},
		{"EMSEnabled", strconv.FormatBool(c.EMSEnabled)},
		{"PulseWidthUS", strconv.Itoa(c.PulseWidthUS)},
		{"PulseCount", strconv.Itoa(c.PulseCount)},
		{"BurstCount", strconv.Itoa(c.BurstCount)},
		{"PulseIntervalUS", strconv.Itoa(c.PulseIntervalUS)},
		{"StimOffsetLeftSec", strconv.FormatFloat(c.StimOffsetLeftSec, 'f', -1, 64)},
		{"StimOffsetRightSec", strconv.FormatFloat(c.StimOffsetRightSec, 'f', -1, 64)},
		{"AngleThresholdDeg", strconv.FormatFloat(c.AngleThresholdDeg, 'f', -1, 64)},
		{"CenterThresholdDeg", strconv.FormatFloat(c.CenterThresholdDeg, 'f', -1, 64)},
		{"MinWaitSec", strconv.FormatFloat(c.MinWaitSec, 'f', -1, 64)},
		{"MaxWaitSec", strconv.FormatFloat(c.MaxWaitSec, 'f', -1, 64)},
	}
}

// InitGlobal initializes the global configuration from file. Uses
// sync.Once so only the first call loads.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance. InitGlobal must be
// called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
