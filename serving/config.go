package serving

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Config represents the configuration for the prediction endpoint
type Config struct {
	// Endpoint settings
	Port      int    `json:"port"`       // HTTP port for the prediction endpoint
	ModelName string `json:"model_name"` // Served model name (path segment in /v1/models/<name>)

	// Model artifact settings
	ArtifactPath           string        `json:"artifact_path"`            // Path to the model artifact JSON file
	ArtifactReloadInterval time.Duration `json:"artifact_reload_interval"` // How often to re-read the artifact for hot reload (0 = disabled)

	// Audit log settings
	AuditFlushInterval time.Duration `json:"audit_flush_interval"` // How often to flush the prediction audit buffer
	PostgresConnString string        `json:"postgres_conn_string"` // PostgreSQL connection string (empty = persistence disabled)

	// Logging settings
	LogLevel  string `json:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `json:"log_format"` // Log format: text, json

	// Irradiance sensor (daylight verification)
	SensorModbusAddress string  `json:"sensor_modbus_address"` // Pyranometer Modbus server address (format: IP:PORT), empty = disabled
	DaylightThreshold   float64 `json:"daylight_threshold"`    // Irradiance above this value (W/m2) counts as daylight

	// Default location for one-off predictions and verification
	Latitude  float64 `json:"latitude"`   // Latitude in degrees
	Longitude float64 `json:"longitude"`  // Longitude in degrees
	UTCOffset int     `json:"utc_offset"` // Local timezone offset from UTC in hours
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Port:                   8080,
		ModelName:              "suntimes",
		ArtifactPath:           "suntimes-model.json",
		ArtifactReloadInterval: 1 * time.Minute,
		AuditFlushInterval:     30 * time.Second,
		PostgresConnString:     "",
		LogLevel:               "info",
		LogFormat:              "text",
		SensorModbusAddress:    "",
		DaylightThreshold:      50.0,    // 50 W/m2, well above moonlight and twilight
		Latitude:               56.9496, // Riga, Latvia
		Longitude:              24.1052, // Riga, Latvia
		UTCOffset:              2,
	}
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	config := DefaultConfig()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a JSON file
func (c *Config) SaveConfig(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config JSON: %w", err)
	}

	return nil
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got: %d", c.Port)
	}

	if c.ModelName == "" {
		return fmt.Errorf("model_name cannot be empty")
	}

	if c.ArtifactPath == "" {
		return fmt.Errorf("artifact_path cannot be empty")
	}

	if c.ArtifactReloadInterval < 0 {
		return fmt.Errorf("artifact_reload_interval must be non-negative, got: %s", c.ArtifactReloadInterval)
	}

	if c.AuditFlushInterval <= 0 {
		return fmt.Errorf("audit_flush_interval must be greater than 0, got: %s", c.AuditFlushInterval)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s, must be one of: debug, info, warn, error", c.LogLevel)
	}

	// Validate log format
	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("invalid log_format: %s, must be one of: text, json", c.LogFormat)
	}

	if c.DaylightThreshold < 0 {
		return fmt.Errorf("daylight_threshold must be non-negative, got: %f", c.DaylightThreshold)
	}

	// Validate latitude
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", c.Latitude)
	}

	// Validate longitude
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", c.Longitude)
	}

	if c.UTCOffset < -12 || c.UTCOffset > 14 {
		return fmt.Errorf("utc_offset must be between -12 and 14, got: %d", c.UTCOffset)
	}

	return nil
}

// MarshalJSON implements custom JSON marshaling to handle durations
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		ArtifactReloadInterval string `json:"artifact_reload_interval"`
		AuditFlushInterval     string `json:"audit_flush_interval"`
	}{
		Alias:                  (*Alias)(c),
		ArtifactReloadInterval: c.ArtifactReloadInterval.String(),
		AuditFlushInterval:     c.AuditFlushInterval.String(),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling to handle durations
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		*Alias
		ArtifactReloadInterval string `json:"artifact_reload_interval"`
		AuditFlushInterval     string `json:"audit_flush_interval"`
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if aux.ArtifactReloadInterval != "" {
		if c.ArtifactReloadInterval, err = time.ParseDuration(aux.ArtifactReloadInterval); err != nil {
			return fmt.Errorf("invalid artifact_reload_interval: %w", err)
		}
	}

	if aux.AuditFlushInterval != "" {
		if c.AuditFlushInterval, err = time.ParseDuration(aux.AuditFlushInterval); err != nil {
			return fmt.Errorf("invalid audit_flush_interval: %w", err)
		}
	}

	return nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
