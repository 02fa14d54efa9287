package serving

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/devskill-org/suntimes-serving/suntimes"
)

func testConfig(t *testing.T) *Config {
	t.Helper()

	config := DefaultConfig()
	config.Port = 0 // no listener in unit tests
	config.ArtifactPath = filepath.Join(t.TempDir(), "model.json")
	config.ArtifactReloadInterval = 10 * time.Millisecond
	config.AuditFlushInterval = 10 * time.Millisecond
	return config
}

func writeArtifact(t *testing.T, path, version string, constants suntimes.Constants) {
	t.Helper()
	if err := suntimes.NewArtifact("suntimes", version, constants).Export(path); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}
}

func TestEndpoint_StartAndStop(t *testing.T) {
	config := testConfig(t)
	writeArtifact(t, config.ArtifactPath, "v1", suntimes.DefaultConstants())

	endpoint := NewEndpoint(config, log.New(os.Stdout, "[TEST] ", log.LstdFlags))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- endpoint.Start(ctx)
	}()

	// Wait until the endpoint reports running
	deadline := time.After(2 * time.Second)
	for !endpoint.IsRunning() {
		select {
		case <-deadline:
			t.Fatal("Endpoint did not start in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if endpoint.Model() == nil {
		t.Error("Expected a deployed model after start")
	}
	if def := endpoint.Registry().Default(); def == nil || def.Version != "v1" {
		t.Errorf("Expected default version v1, got %+v", def)
	}

	endpoint.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Endpoint did not stop in time")
	}

	if endpoint.IsRunning() {
		t.Error("Endpoint still reports running after stop")
	}
}

func TestEndpoint_StoreAccessDuringShutdown(t *testing.T) {
	config := testConfig(t)
	writeArtifact(t, config.ArtifactPath, "v1", suntimes.DefaultConstants())

	endpoint := NewEndpoint(config, log.New(os.Stdout, "[TEST] ", log.LstdFlags))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- endpoint.Start(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for !endpoint.IsRunning() {
		select {
		case <-deadline:
			t.Fatal("Endpoint did not start in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Read endpoint state concurrently with the shutdown path
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				endpoint.GetStatus()
				endpoint.Store()
			}
		}()
	}

	endpoint.Stop()
	wg.Wait()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Endpoint did not stop in time")
	}

	if endpoint.Store() != nil {
		t.Error("Expected nil store after stop")
	}
}

func TestEndpoint_StartMissingArtifact(t *testing.T) {
	config := testConfig(t) // artifact file never written

	endpoint := NewEndpoint(config, log.New(os.Stdout, "[TEST] ", log.LstdFlags))

	if err := endpoint.Start(context.Background()); err == nil {
		t.Error("Expected error starting without artifact, got nil")
	}
}

func TestEndpoint_HotReload(t *testing.T) {
	config := testConfig(t)
	writeArtifact(t, config.ArtifactPath, "v1", suntimes.DefaultConstants())

	endpoint := NewEndpoint(config, log.New(os.Stdout, "[TEST] ", log.LstdFlags))

	if err := endpoint.loadArtifactFile(); err != nil {
		t.Fatalf("loadArtifactFile returned error: %v", err)
	}
	if endpoint.Model().Version() != "v1" {
		t.Fatalf("Expected v1, got %s", endpoint.Model().Version())
	}

	// Rewrite the artifact with a new version and a future mtime
	writeArtifact(t, config.ArtifactPath, "v2", suntimes.DefaultConstants())
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(config.ArtifactPath, future, future); err != nil {
		t.Fatalf("Failed to bump mtime: %v", err)
	}

	endpoint.runArtifactReload()

	if got := endpoint.Model().Version(); got != "v2" {
		t.Errorf("Expected hot-reloaded version v2, got %s", got)
	}
	if endpoint.Registry().Count() != 2 {
		t.Errorf("Expected 2 registered versions, got %d", endpoint.Registry().Count())
	}
	// The default stays on the first deployed version
	if def := endpoint.Registry().Default(); def == nil || def.Version != "v1" {
		t.Errorf("Expected default to remain v1, got %+v", def)
	}
}

func TestEndpoint_ReloadSkippedWhenUnchanged(t *testing.T) {
	config := testConfig(t)
	writeArtifact(t, config.ArtifactPath, "v1", suntimes.DefaultConstants())

	endpoint := NewEndpoint(config, log.New(os.Stdout, "[TEST] ", log.LstdFlags))
	if err := endpoint.loadArtifactFile(); err != nil {
		t.Fatalf("loadArtifactFile returned error: %v", err)
	}

	before := endpoint.GetStatus().LastReloadTime
	endpoint.runArtifactReload()
	after := endpoint.GetStatus().LastReloadTime

	if before == nil || after == nil {
		t.Fatal("Expected reload timestamps")
	}
	if !after.Equal(*before) {
		t.Error("Reload ran despite unchanged artifact")
	}
}

func TestEndpoint_DeployArtifactWrongModel(t *testing.T) {
	config := testConfig(t)
	endpoint := NewEndpoint(config, log.New(os.Stdout, "[TEST] ", log.LstdFlags))

	artifact := suntimes.NewArtifact("othermodel", "v1", suntimes.DefaultConstants())
	if err := endpoint.DeployArtifact(artifact); err == nil {
		t.Error("Expected error deploying artifact for another model, got nil")
	}
}

func TestEndpoint_PredictWithoutModel(t *testing.T) {
	config := testConfig(t)
	endpoint := NewEndpoint(config, log.New(os.Stdout, "[TEST] ", log.LstdFlags))

	if _, err := endpoint.Predict(suntimes.Request{Lat: 10, Lng: 0, DayNo: 10}); err == nil {
		t.Error("Expected error predicting without a model, got nil")
	}
}

func TestAuditBuffer(t *testing.T) {
	buffer := &AuditBuffer{}

	if drained := buffer.Drain(); drained != nil {
		t.Errorf("Expected nil drain on empty buffer, got %v", drained)
	}

	buffer.Add(PredictionRecord{Timestamp: 1})
	buffer.Add(PredictionRecord{Timestamp: 2})

	if buffer.Len() != 2 {
		t.Errorf("Expected length 2, got %d", buffer.Len())
	}

	drained := buffer.Drain()
	if len(drained) != 2 || drained[0].Timestamp != 1 || drained[1].Timestamp != 2 {
		t.Errorf("Unexpected drained records: %v", drained)
	}

	if buffer.Len() != 0 {
		t.Errorf("Expected empty buffer after drain, got %d", buffer.Len())
	}
}
