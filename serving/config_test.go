package serving

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Errorf("Default config should be valid, got %v", err)
	}

	if config.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", config.Port)
	}
	if config.ModelName != "suntimes" {
		t.Errorf("Expected default model name suntimes, got %q", config.ModelName)
	}
}

func TestLoadConfigFromReader(t *testing.T) {
	input := `{
		"port": 9090,
		"model_name": "suntimes",
		"artifact_path": "model.json",
		"artifact_reload_interval": "2m",
		"audit_flush_interval": "10s",
		"latitude": 39.833,
		"longitude": -98.583,
		"utc_offset": -6
	}`

	config, err := LoadConfigFromReader(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadConfigFromReader returned error: %v", err)
	}

	if config.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", config.Port)
	}
	if config.ArtifactReloadInterval != 2*time.Minute {
		t.Errorf("Expected reload interval 2m, got %s", config.ArtifactReloadInterval)
	}
	if config.AuditFlushInterval != 10*time.Second {
		t.Errorf("Expected flush interval 10s, got %s", config.AuditFlushInterval)
	}
	if config.UTCOffset != -6 {
		t.Errorf("Expected UTC offset -6, got %d", config.UTCOffset)
	}

	// Unset fields keep their defaults
	if config.DaylightThreshold != 50.0 {
		t.Errorf("Expected default daylight threshold, got %f", config.DaylightThreshold)
	}
}

func TestLoadConfigFromReader_InvalidJSON(t *testing.T) {
	if _, err := LoadConfigFromReader(strings.NewReader("{not json")); err == nil {
		t.Error("Expected error for invalid JSON, got nil")
	}
}

func TestLoadConfigFromReader_InvalidDuration(t *testing.T) {
	input := `{"audit_flush_interval": "soon"}`
	if _, err := LoadConfigFromReader(strings.NewReader(input)); err == nil {
		t.Error("Expected error for invalid duration, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "negative port", mutate: func(c *Config) { c.Port = -1 }},
		{name: "port too high", mutate: func(c *Config) { c.Port = 70000 }},
		{name: "empty model name", mutate: func(c *Config) { c.ModelName = "" }},
		{name: "empty artifact path", mutate: func(c *Config) { c.ArtifactPath = "" }},
		{name: "negative reload interval", mutate: func(c *Config) { c.ArtifactReloadInterval = -time.Second }},
		{name: "zero flush interval", mutate: func(c *Config) { c.AuditFlushInterval = 0 }},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "verbose" }},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }},
		{name: "negative threshold", mutate: func(c *Config) { c.DaylightThreshold = -1 }},
		{name: "latitude out of range", mutate: func(c *Config) { c.Latitude = 91 }},
		{name: "longitude out of range", mutate: func(c *Config) { c.Longitude = -181 }},
		{name: "offset out of range", mutate: func(c *Config) { c.UTCOffset = 20 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestConfig_MarshalRoundTrip(t *testing.T) {
	config := DefaultConfig()
	config.ArtifactReloadInterval = 90 * time.Second

	data := config.String()
	if !strings.Contains(data, `"artifact_reload_interval": "1m30s"`) {
		t.Errorf("Expected duration serialized as string, got %s", data)
	}

	loaded, err := LoadConfigFromReader(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Round trip load returned error: %v", err)
	}
	if loaded.ArtifactReloadInterval != 90*time.Second {
		t.Errorf("Expected 90s after round trip, got %s", loaded.ArtifactReloadInterval)
	}
}
