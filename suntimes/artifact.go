package suntimes

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Constants holds the tunable coefficients of the sunrise/sunset formula.
// They are packaged into a model artifact so the serving endpoint loads the
// formula as versioned data rather than compiled-in values.
type Constants struct {
	AxialTilt  float64 `json:"axial_tilt"`  // Earth's axial tilt in degrees
	EquinoxDay int     `json:"equinox_day"` // Day-of-year of the spring equinox reference
	YearDays   float64 `json:"year_days"`   // Days per year used by the day angle
	EoTSin2B   float64 `json:"eot_sin_2b"`  // Equation-of-time sin(2B) coefficient (minutes)
	EoTCosB    float64 `json:"eot_cos_b"`   // Equation-of-time cos(B) coefficient (minutes)
	EoTSinB    float64 `json:"eot_sin_b"`   // Equation-of-time sin(B) coefficient (minutes)
}

// DefaultConstants returns the standard formula coefficients
func DefaultConstants() Constants {
	return Constants{
		AxialTilt:  23.45,
		EquinoxDay: 81,
		YearDays:   365,
		EoTSin2B:   9.87,
		EoTCosB:    -7.53,
		EoTSinB:    -1.5,
	}
}

// Artifact is the exported model: formula constants plus identifying
// metadata and an integrity checksum over the constants payload.
type Artifact struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Constants Constants `json:"constants"`
	Checksum  string    `json:"checksum"` // hex sha256 of the canonical constants JSON
}

// checksum computes the hex sha256 of the canonical constants encoding
func (c Constants) checksum() string {
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Validate checks artifact metadata and verifies the constants checksum
func (a *Artifact) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("artifact name cannot be empty")
	}
	if a.Version == "" {
		return fmt.Errorf("artifact version cannot be empty")
	}
	if a.Constants.YearDays <= 0 {
		return fmt.Errorf("year_days must be positive, got %f", a.Constants.YearDays)
	}
	if got := a.Constants.checksum(); got != a.Checksum {
		return fmt.Errorf("artifact checksum mismatch: expected %s, got %s", a.Checksum, got)
	}
	return nil
}

// NewArtifact builds an artifact for the given constants with a fresh checksum.
func NewArtifact(name, version string, constants Constants) *Artifact {
	return &Artifact{
		Name:      name,
		Version:   version,
		CreatedAt: time.Now().UTC(),
		Constants: constants,
		Checksum:  constants.checksum(),
	}
}

// Export writes the artifact as indented JSON to a file
func (a *Artifact) Export(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create artifact file: %w", err)
	}
	defer file.Close()

	return a.ExportToWriter(file)
}

// ExportToWriter writes the artifact as indented JSON to an io.Writer
func (a *Artifact) ExportToWriter(writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(a); err != nil {
		return fmt.Errorf("failed to encode artifact JSON: %w", err)
	}

	return nil
}

// LoadArtifact reads and validates an artifact from a file
func LoadArtifact(filename string) (*Artifact, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact file: %w", err)
	}
	defer file.Close()

	return LoadArtifactFromReader(file)
}

// LoadArtifactFromReader reads and validates an artifact from an io.Reader
func LoadArtifactFromReader(reader io.Reader) (*Artifact, error) {
	var artifact Artifact

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(&artifact); err != nil {
		return nil, fmt.Errorf("failed to decode artifact JSON: %w", err)
	}

	if err := artifact.Validate(); err != nil {
		return nil, fmt.Errorf("invalid artifact: %w", err)
	}

	return &artifact, nil
}

// Model is a loaded artifact ready to serve predictions.
type Model struct {
	artifact *Artifact
}

// NewModel wraps a validated artifact into a servable model
func NewModel(artifact *Artifact) (*Model, error) {
	if artifact == nil {
		return nil, fmt.Errorf("artifact cannot be nil")
	}
	if err := artifact.Validate(); err != nil {
		return nil, fmt.Errorf("invalid artifact: %w", err)
	}
	return &Model{artifact: artifact}, nil
}

// Name returns the model name from the artifact
func (m *Model) Name() string {
	return m.artifact.Name
}

// Version returns the model version from the artifact
func (m *Model) Version() string {
	return m.artifact.Version
}

// Predict evaluates the sunrise/sunset formula with the model's constants
func (m *Model) Predict(req Request) (Result, error) {
	return computeWith(m.artifact.Constants, req)
}
