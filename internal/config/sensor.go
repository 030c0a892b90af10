package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/spinlidar/internal/lidar"
)

// DefaultConfigPath is the path to the canonical sensor defaults file.
const DefaultConfigPath = "config/sensor.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// SensorConfig describes one sensor and how its packets reach us.
// Every field is optional; the Get* methods supply defaults for omitted
// fields so partial files are safe.
type SensorConfig struct {
	SensorID     *string `json:"sensor_id,omitempty"`
	Model        *string `json:"model,omitempty"`         // see lidar.ParseModel
	ReturnPolicy *string `json:"return_policy,omitempty"` // last, strongest, dual or dynamic
	// Calibration is "", "embed:NAME" or a path to a YAML params file.
	Calibration *string `json:"calibration,omitempty"`

	// Live capture
	UDPAddress  *string `json:"udp_address,omitempty"`
	UDPPort     *int    `json:"udp_port,omitempty"` // also filters pcap replay
	RcvBufBytes *int    `json:"rcv_buf_bytes,omitempty"`

	// Forwarding is disabled while ForwardAddress is empty.
	ForwardAddress *string `json:"forward_address,omitempty"`
	ForwardPort    *int    `json:"forward_port,omitempty"`

	StatsInterval *string  `json:"stats_interval,omitempty"` // duration string like "60s"
	PCAPSpeed     *float64 `json:"pcap_speed,omitempty"`     // 0 replays as fast as possible
}

// LoadSensorConfig loads a SensorConfig from a JSON file with a .json
// extension and at most 1MB.
func LoadSensorConfig(path string) (*SensorConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &SensorConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *SensorConfig) Validate() error {
	if c.SensorID != nil && *c.SensorID == "" {
		return fmt.Errorf("sensor_id must not be empty")
	}
	if c.Model != nil {
		if _, err := lidar.ParseModel(*c.Model); err != nil {
			return err
		}
	}
	if c.ReturnPolicy != nil {
		if _, err := lidar.ParseReturnPolicy(*c.ReturnPolicy); err != nil {
			return err
		}
	}
	if err := checkPort("udp_port", c.UDPPort); err != nil {
		return err
	}
	if err := checkPort("forward_port", c.ForwardPort); err != nil {
		return err
	}
	if c.RcvBufBytes != nil && *c.RcvBufBytes < 0 {
		return fmt.Errorf("rcv_buf_bytes must be non-negative, got %d", *c.RcvBufBytes)
	}
	if c.StatsInterval != nil && *c.StatsInterval != "" {
		d, err := time.ParseDuration(*c.StatsInterval)
		if err != nil {
			return fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("stats_interval must be positive, got %s", d)
		}
	}
	if c.PCAPSpeed != nil && *c.PCAPSpeed < 0 {
		return fmt.Errorf("pcap_speed must be non-negative, got %f", *c.PCAPSpeed)
	}
	return nil
}

func checkPort(name string, p *int) error {
	if p != nil && (*p < 0 || *p > 65535) {
		return fmt.Errorf("%s must be between 0 and 65535, got %d", name, *p)
	}
	return nil
}

func (c *SensorConfig) GetSensorID() string {
	if c.SensorID == nil {
		return "lidar"
	}
	return *c.SensorID
}

// GetModel returns the configured model, or VLP-16.
func (c *SensorConfig) GetModel() lidar.Model {
	if c.Model == nil {
		return lidar.ModelVLP16
	}
	m, err := lidar.ParseModel(*c.Model)
	if err != nil {
		return lidar.ModelVLP16
	}
	return m
}

// GetReturnPolicy returns the configured policy, or strongest.
func (c *SensorConfig) GetReturnPolicy() lidar.ReturnPolicy {
	if c.ReturnPolicy == nil {
		return lidar.PolicyStrongest
	}
	p, err := lidar.ParseReturnPolicy(*c.ReturnPolicy)
	if err != nil {
		return lidar.PolicyStrongest
	}
	return p
}

func (c *SensorConfig) GetCalibration() string {
	if c.Calibration == nil {
		return ""
	}
	return *c.Calibration
}

func (c *SensorConfig) GetUDPAddress() string {
	if c.UDPAddress == nil || *c.UDPAddress == "" {
		return ":2368"
	}
	return *c.UDPAddress
}

func (c *SensorConfig) GetUDPPort() int {
	if c.UDPPort == nil {
		return 2368
	}
	return *c.UDPPort
}

func (c *SensorConfig) GetRcvBufBytes() int {
	if c.RcvBufBytes == nil {
		return 4 << 20
	}
	return *c.RcvBufBytes
}

func (c *SensorConfig) GetForwardAddress() string {
	if c.ForwardAddress == nil {
		return ""
	}
	return *c.ForwardAddress
}

func (c *SensorConfig) GetForwardPort() int {
	if c.ForwardPort == nil {
		return 2369
	}
	return *c.ForwardPort
}

// GetStatsInterval parses StatsInterval, defaulting to one minute.
func (c *SensorConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return time.Minute
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

func (c *SensorConfig) GetPCAPSpeed() float64 {
	if c.PCAPSpeed == nil {
		return 0
	}
	return *c.PCAPSpeed
}
