package serving

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/devskill-org/suntimes-serving/suntimes"
)

// PeriodicTask represents a task that runs periodically with an optional initial delay
type PeriodicTask struct {
	name         string
	initialDelay time.Duration
	interval     time.Duration
	runFunc      func()
}

// run executes the periodic task in a loop, respecting the initial delay and context cancellation
func (pt *PeriodicTask) run(ctx context.Context, stopChan <-chan struct{}, logger *log.Logger) {
	if pt.initialDelay > 0 {
		select {
		case <-time.After(pt.initialDelay):
			pt.runFunc()
		case <-ctx.Done():
			logger.Printf("[%s] Stopped during initial delay due to context cancellation", pt.name)
			return
		case <-stopChan:
			logger.Printf("[%s] Stopped during initial delay due to stop signal", pt.name)
			return
		}
	} else {
		pt.runFunc()
	}

	ticker := time.NewTicker(pt.interval)
	defer ticker.Stop()

	logger.Printf("[%s] Started with interval: %v", pt.name, pt.interval)

	for {
		select {
		case <-ticker.C:
			pt.runFunc()
		case <-ctx.Done():
			logger.Printf("[%s] Stopped due to context cancellation", pt.name)
			return
		case <-stopChan:
			logger.Printf("[%s] Stopped due to stop signal", pt.name)
			return
		}
	}
}

// Endpoint hosts a loaded model behind the prediction HTTP API and manages
// its lifecycle: artifact loading and hot reload, version registry, and the
// prediction audit log.
type Endpoint struct {
	// Configuration
	config *Config

	// State
	model           *suntimes.Model
	artifactModTime time.Time
	registry        *Registry
	isRunning       bool
	stopChan        chan struct{}
	mu              sync.RWMutex
	requestCount    uint64
	errorCount      uint64
	lastRequestTime time.Time
	lastReloadTime  time.Time

	// Audit log
	auditBuffer *AuditBuffer
	store       *Store

	// Web server
	server *Server

	// Logging
	logger *log.Logger
}

// EndpointStatus is a snapshot of the endpoint state for health reporting
type EndpointStatus struct {
	IsRunning       bool       `json:"is_running"`
	ModelName       string     `json:"model_name"`
	ModelVersion    string     `json:"model_version"`
	VersionsCount   int        `json:"versions_count"`
	RequestCount    uint64     `json:"request_count"`
	ErrorCount      uint64     `json:"error_count"`
	AuditBufferLen  int        `json:"audit_buffer_len"`
	HasStore        bool       `json:"has_store"`
	LastRequestTime *time.Time `json:"last_request_time,omitempty"`
	LastReloadTime  *time.Time `json:"last_reload_time,omitempty"`
}

// NewEndpoint creates a new prediction endpoint instance
func NewEndpoint(config *Config, logger *log.Logger) *Endpoint {
	if logger == nil {
		logger = log.Default()
	}

	endpoint := &Endpoint{
		config:      config,
		registry:    NewRegistry(config.ModelName),
		stopChan:    make(chan struct{}),
		auditBuffer: &AuditBuffer{},
		logger:      logger,
	}
	endpoint.server = NewServer(endpoint, config.Port)

	return endpoint
}

// GetConfig returns the endpoint configuration
func (e *Endpoint) GetConfig() *Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// Registry returns the model version registry
func (e *Endpoint) Registry() *Registry {
	return e.registry
}

// Model returns the currently loaded model, or nil before deployment
func (e *Endpoint) Model() *suntimes.Model {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model
}

// Store returns the persistence store, or nil when persistence is disabled
func (e *Endpoint) Store() *Store {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store
}

// DeployArtifact loads an artifact, swaps it in as the serving model and
// registers its version (create-if-absent, so redeploys are idempotent).
func (e *Endpoint) DeployArtifact(artifact *suntimes.Artifact) error {
	model, err := suntimes.NewModel(artifact)
	if err != nil {
		return fmt.Errorf("failed to build model from artifact: %w", err)
	}

	if artifact.Name != e.config.ModelName {
		return fmt.Errorf("artifact is for model %q, endpoint serves %q", artifact.Name, e.config.ModelName)
	}

	mv, created, err := e.registry.EnsureVersion(artifact.Version, artifact.Checksum)
	if err != nil {
		return fmt.Errorf("failed to register version: %w", err)
	}

	e.mu.Lock()
	e.model = model
	e.lastReloadTime = time.Now()
	e.mu.Unlock()

	if created {
		e.logger.Printf("Registered new model version %s/%s", mv.Model, mv.Version)
		if store := e.Store(); store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := store.SaveVersion(ctx, *mv); err != nil {
				e.logger.Printf("Failed to persist version %s: %v", mv.Version, err)
			}
		}
	}

	e.logger.Printf("Serving model %s version %s", model.Name(), model.Version())
	return nil
}

// loadArtifactFile reads the configured artifact file and deploys it
func (e *Endpoint) loadArtifactFile() error {
	info, err := os.Stat(e.config.ArtifactPath)
	if err != nil {
		return fmt.Errorf("failed to stat artifact: %w", err)
	}

	artifact, err := suntimes.LoadArtifact(e.config.ArtifactPath)
	if err != nil {
		return err
	}

	if err := e.DeployArtifact(artifact); err != nil {
		return err
	}

	e.mu.Lock()
	e.artifactModTime = info.ModTime()
	e.mu.Unlock()

	return nil
}

// runArtifactReload re-reads the artifact file when its mtime changed
func (e *Endpoint) runArtifactReload() {
	info, err := os.Stat(e.config.ArtifactPath)
	if err != nil {
		e.logger.Printf("Artifact reload: %v", err)
		return
	}

	e.mu.RLock()
	modTime := e.artifactModTime
	e.mu.RUnlock()

	if !info.ModTime().After(modTime) {
		return
	}

	e.logger.Printf("Artifact file changed, reloading %s", e.config.ArtifactPath)
	if err := e.loadArtifactFile(); err != nil {
		e.logger.Printf("Artifact reload failed: %v", err)
	}
}

// runAuditFlush writes buffered prediction records to the database
func (e *Endpoint) runAuditFlush(ctx context.Context) {
	records := e.auditBuffer.Drain()
	if len(records) == 0 {
		return
	}

	store := e.Store()
	if store == nil {
		// Persistence disabled; records are dropped after counting
		return
	}

	flushCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := store.SavePredictions(flushCtx, records); err != nil {
		e.logger.Printf("Audit flush failed: %v", err)
	}
}

// Predict serves one prediction with the current model and audits the call
func (e *Endpoint) Predict(req suntimes.Request) (suntimes.Result, error) {
	e.mu.RLock()
	model := e.model
	e.mu.RUnlock()

	if model == nil {
		return suntimes.Result{}, fmt.Errorf("no model deployed")
	}

	result, err := model.Predict(req)

	record := PredictionRecord{
		Timestamp:    time.Now().Unix(),
		ModelVersion: model.Version(),
		Lat:          req.Lat,
		Lng:          req.Lng,
		DayNo:        req.DayNo,
		UTCOffset:    req.UTCOffset,
	}

	e.mu.Lock()
	e.requestCount++
	e.lastRequestTime = time.Now()
	if err != nil {
		e.errorCount++
	}
	e.mu.Unlock()

	if err != nil {
		record.Error = err.Error()
		// Only audit domain errors; validation failures never reach the model
		if errors.Is(err, suntimes.ErrPolar) {
			e.auditBuffer.Add(record)
		}
		return suntimes.Result{}, err
	}

	record.SunriseHour = result.SunriseHour
	record.SunriseMinute = result.SunriseMinute
	record.SunsetHour = result.SunsetHour
	record.SunsetMinute = result.SunsetMinute
	e.auditBuffer.Add(record)

	return result, nil
}

// GetStatus returns a snapshot of the endpoint state
func (e *Endpoint) GetStatus() EndpointStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	status := EndpointStatus{
		IsRunning:      e.isRunning,
		ModelName:      e.config.ModelName,
		VersionsCount:  e.registry.Count(),
		RequestCount:   e.requestCount,
		ErrorCount:     e.errorCount,
		AuditBufferLen: e.auditBuffer.Len(),
		HasStore:       e.store != nil,
	}

	if e.model != nil {
		status.ModelVersion = e.model.Version()
	}
	if !e.lastRequestTime.IsZero() {
		t := e.lastRequestTime
		status.LastRequestTime = &t
	}
	if !e.lastReloadTime.IsZero() {
		t := e.lastReloadTime
		status.LastReloadTime = &t
	}

	return status
}

// IsRunning returns whether the endpoint is currently serving
func (e *Endpoint) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isRunning
}

// Start deploys the configured artifact and serves until the context is
// cancelled or Stop is called.
func (e *Endpoint) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.isRunning {
		e.mu.Unlock()
		return fmt.Errorf("endpoint is already running")
	}
	e.isRunning = true
	e.stopChan = make(chan struct{})
	e.mu.Unlock()

	// Open persistence first so restored versions survive reloads
	if e.config.PostgresConnString != "" {
		store, err := NewStore(e.config.PostgresConnString, e.logger)
		if err != nil {
			e.logger.Printf("Persistence disabled: %v", err)
		} else {
			e.mu.Lock()
			e.store = store
			e.mu.Unlock()
			initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := store.InitSchema(initCtx); err != nil {
				e.logger.Printf("Failed to initialize schema: %v", err)
			} else if versions, err := store.LoadVersions(initCtx, e.config.ModelName); err != nil {
				e.logger.Printf("Failed to load stored versions: %v", err)
			} else {
				for _, mv := range versions {
					e.registry.restore(mv)
				}
				if len(versions) > 0 {
					e.logger.Printf("Restored %d model versions from database", len(versions))
				}
			}
			cancel()
		}
	}

	if err := e.loadArtifactFile(); err != nil {
		e.stop()
		return fmt.Errorf("failed to deploy artifact: %w", err)
	}

	if e.server != nil {
		if err := e.server.Start(); err != nil {
			e.logger.Printf("Failed to start server: %v", err)
		} else {
			e.logger.Printf("Prediction endpoint started on port %d", e.server.port)
		}
	}

	tasks := []PeriodicTask{
		{
			name:     "AuditFlush",
			interval: e.config.AuditFlushInterval,
			runFunc: func() {
				e.runAuditFlush(ctx)
			},
		},
	}

	if e.config.ArtifactReloadInterval > 0 {
		tasks = append(tasks, PeriodicTask{
			name:         "ArtifactReload",
			initialDelay: e.config.ArtifactReloadInterval,
			interval:     e.config.ArtifactReloadInterval,
			runFunc:      e.runArtifactReload,
		})
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		task := task // capture loop variable
		go func() {
			defer wg.Done()
			task.run(ctx, e.stopChan, e.logger)
		}()
	}

	wg.Wait()

	e.logger.Printf("All periodic tasks stopped")
	e.stop()
	return nil
}

// Stop gracefully stops the endpoint
func (e *Endpoint) Stop() {
	e.stop()
}

func (e *Endpoint) stop() {
	e.mu.Lock()
	wasRunning := e.isRunning
	e.isRunning = false

	// Close stopChan if it's not already closed
	select {
	case <-e.stopChan:
		// Already closed
	default:
		close(e.stopChan)
	}
	e.mu.Unlock()

	if !wasRunning {
		return
	}

	if e.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.server.Stop(ctx); err != nil {
			e.logger.Printf("Error stopping server: %v", err)
		}
	}

	// Final audit flush before releasing the database
	e.runAuditFlush(context.Background())

	e.mu.Lock()
	store := e.store
	e.store = nil
	e.mu.Unlock()

	if store != nil {
		if err := store.Close(); err != nil {
			e.logger.Printf("Error closing database: %v", err)
		}
	}
}
