package serving

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devskill-org/suntimes-serving/suntimes"
)

// Server exposes the prediction API, model management routes, health
// endpoints and a WebSocket live feed for the endpoint
type Server struct {
	endpoint  *Endpoint
	server    *http.Server
	port      int
	startTime time.Time
	upgrader  websocket.Upgrader
	clients   sync.Map
	broadcast chan []byte
	done      chan struct{}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Version   string         `json:"version,omitempty"`
	Endpoint  EndpointStatus `json:"endpoint"`
	System    SystemHealth   `json:"system"`
}

// SystemHealth represents system-level health information
type SystemHealth struct {
	Uptime string `json:"uptime"`
}

// PredictRequest is the batched prediction request body
type PredictRequest struct {
	Instances []suntimes.Request `json:"instances"`
}

// PredictionEntry is one element of the predictions array: either a result
// or a per-instance error for polar day/night.
type PredictionEntry struct {
	*suntimes.Result
	Error string `json:"error,omitempty"`
}

// PredictResponse is the prediction response body
type PredictResponse struct {
	ModelVersion string            `json:"model_version,omitempty"`
	Predictions  []PredictionEntry `json:"predictions"`
}

// errorResponse is the body for request-level failures
type errorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a new server for the endpoint. Returns nil when port
// is not positive, which disables the HTTP surface.
func NewServer(endpoint *Endpoint, port int) *Server {
	if port <= 0 {
		return nil // Server disabled
	}

	mux := http.NewServeMux()
	s := &Server{
		endpoint:  endpoint,
		port:      port,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	// Register API routes
	mux.HandleFunc("/v1/models/", s.modelsHandler)
	mux.HandleFunc("/api/health", s.healthHandler)
	mux.HandleFunc("/api/ready", s.readinessHandler)
	mux.HandleFunc("/api/status", s.statusHandler)
	mux.HandleFunc("/api/ws", s.wsHandler)
	mux.HandleFunc("/", s.rootHandler)

	return s
}

// Start starts the server
func (s *Server) Start() error {
	if s == nil {
		return nil // Server disabled
	}

	// Start the broadcast handler
	go s.handleBroadcasts()

	// Start periodic status broadcaster
	go s.broadcastStatus()

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.endpoint.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil // Server disabled
	}

	// Signal goroutines to stop
	close(s.done)

	// Close all WebSocket connections
	s.clients.Range(func(key, value any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})

	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already out; nothing useful left to do
		return
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// modelsHandler routes everything under /v1/models/
//
// Supported routes:
//
//	POST   /v1/models/<name>:predict
//	GET    /v1/models/<name>/versions
//	POST   /v1/models/<name>/versions
//	POST   /v1/models/<name>/versions/<v>:setDefault
//	DELETE /v1/models/<name>/versions/<v>
func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/models/")
	modelName := s.endpoint.GetConfig().ModelName

	switch {
	case rest == modelName+":predict":
		s.predictHandler(w, r)
	case rest == modelName+"/versions":
		s.versionsHandler(w, r)
	case strings.HasPrefix(rest, modelName+"/versions/"):
		s.versionHandler(w, r, strings.TrimPrefix(rest, modelName+"/versions/"))
	default:
		writeError(w, http.StatusNotFound, "unknown model or route: %s", r.URL.Path)
	}
}

// predictHandler serves POST /v1/models/<name>:predict
func (s *Server) predictHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	var instances []suntimes.Request
	single := false

	if instancesJSON, ok := raw["instances"]; ok {
		if err := json.Unmarshal(instancesJSON, &instances); err != nil {
			writeError(w, http.StatusBadRequest, "invalid instances: %v", err)
			return
		}
		if len(instances) == 0 {
			writeError(w, http.StatusBadRequest, "instances cannot be empty")
			return
		}
	} else {
		// A single bare instance object is also accepted
		body, err := json.Marshal(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		var instance suntimes.Request
		if err := json.Unmarshal(body, &instance); err != nil {
			writeError(w, http.StatusBadRequest, "invalid instance: %v", err)
			return
		}
		instances = []suntimes.Request{instance}
		single = true
	}

	// Validation failures reject the whole request; polar failures are
	// reported per instance.
	for i, instance := range instances {
		if err := instance.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "instance %d: %v", i, err)
			return
		}
	}

	response := PredictResponse{
		Predictions: make([]PredictionEntry, 0, len(instances)),
	}
	if model := s.endpoint.Model(); model != nil {
		response.ModelVersion = model.Version()
	}

	failed := 0
	for _, instance := range instances {
		result, err := s.endpoint.Predict(instance)
		if err != nil {
			failed++
			response.Predictions = append(response.Predictions, PredictionEntry{Error: err.Error()})
			continue
		}
		response.Predictions = append(response.Predictions, PredictionEntry{Result: &result})
	}

	status := http.StatusOK
	if single && failed == 1 {
		status = http.StatusUnprocessableEntity
	}

	writeJSON(w, status, response)
}

// versionsHandler serves GET and POST /v1/models/<name>/versions
func (s *Server) versionsHandler(w http.ResponseWriter, r *http.Request) {
	registry := s.endpoint.Registry()

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"model":    registry.ModelName(),
			"versions": registry.List(),
		})

	case http.MethodPost:
		var req struct {
			Version  string `json:"version"`
			Checksum string `json:"checksum"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.Version == "" {
			writeError(w, http.StatusBadRequest, "version cannot be empty")
			return
		}

		mv, err := registry.Create(req.Version, req.Checksum)
		if err != nil {
			writeError(w, http.StatusConflict, "%v", err)
			return
		}

		s.persistVersion(r.Context(), mv)
		writeJSON(w, http.StatusCreated, mv)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// versionHandler serves routes addressing one version:
// POST <v>:setDefault and DELETE <v>.
func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request, rest string) {
	registry := s.endpoint.Registry()

	if version, ok := strings.CutSuffix(rest, ":setDefault"); ok {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := registry.SetDefault(version); err != nil {
			writeError(w, http.StatusNotFound, "%v", err)
			return
		}
		mv := registry.Get(version)
		s.persistVersion(r.Context(), mv)
		writeJSON(w, http.StatusOK, mv)
		return
	}

	switch r.Method {
	case http.MethodGet:
		mv := registry.Get(rest)
		if mv == nil {
			writeError(w, http.StatusNotFound, "version %q does not exist", rest)
			return
		}
		writeJSON(w, http.StatusOK, mv)

	case http.MethodDelete:
		mv := registry.Get(rest)
		if mv == nil {
			writeError(w, http.StatusNotFound, "version %q does not exist", rest)
			return
		}
		if err := registry.Delete(rest); err != nil {
			writeError(w, http.StatusConflict, "%v", err)
			return
		}
		if store := s.endpoint.Store(); store != nil {
			if err := store.DeleteVersion(r.Context(), registry.ModelName(), rest); err != nil {
				s.endpoint.logger.Printf("Failed to delete stored version %s: %v", rest, err)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": rest})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// persistVersion mirrors a registry change to the database when available
func (s *Server) persistVersion(ctx context.Context, mv *ModelVersion) {
	store := s.endpoint.Store()
	if mv == nil || store == nil {
		return
	}
	if err := store.SaveVersion(ctx, *mv); err != nil {
		s.endpoint.logger.Printf("Failed to persist version %s: %v", mv.Version, err)
	}
}

// healthHandler handles the /api/health endpoint
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := s.buildHealth()

	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, health)
}

// readinessHandler handles the /api/ready endpoint
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Ready means a model is deployed and serving
	ready := s.endpoint.IsRunning() && s.endpoint.Model() != nil

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"ready":     ready,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// statusHandler handles the /api/status endpoint (detailed status)
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, s.buildStatusData())
}

// rootHandler handles the root endpoint
func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	modelName := s.endpoint.GetConfig().ModelName
	endpoints := map[string]string{
		fmt.Sprintf("/v1/models/%s:predict", modelName):  "Prediction endpoint (POST)",
		fmt.Sprintf("/v1/models/%s/versions", modelName): "Model version management",
		"/api/health": "Health check endpoint",
		"/api/ready":  "Readiness check endpoint",
		"/api/status": "Detailed status endpoint",
		"/api/ws":     "WebSocket live status feed",
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service":     "suntimes-serving",
		"version":     "1.0.0",
		"description": "Sunrise/sunset prediction endpoint serving a versioned model artifact",
		"endpoints":   endpoints,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

// wsHandler handles WebSocket connections
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.endpoint.logger.Printf("WebSocket upgrade error: %v", err)
		return
	}

	// Register new client
	s.clients.Store(conn, true)
	s.endpoint.logger.Printf("New WebSocket client connected. Total clients: %d", s.clientCount())

	// Send initial data immediately
	if err := conn.WriteJSON(s.buildStatusData()); err != nil {
		s.endpoint.logger.Printf("Failed to send initial data: %v", err)
	}

	// Handle client disconnection
	defer func() {
		s.clients.Delete(conn)
		conn.Close()
		s.endpoint.logger.Printf("WebSocket client disconnected. Total clients: %d", s.clientCount())
	}()

	// Read messages from client (ping/pong, close)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.endpoint.logger.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

func (s *Server) clientCount() int {
	count := 0
	s.clients.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

// handleBroadcasts sends messages to all connected clients
func (s *Server) handleBroadcasts() {
	for {
		select {
		case message := <-s.broadcast:
			s.clients.Range(func(key, value any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}

				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					s.endpoint.logger.Printf("WebSocket write error: %v", err)
					conn.Close()
					s.clients.Delete(conn)
				}
				return true
			})
		case <-s.done:
			return
		}
	}
}

// broadcastStatus periodically broadcasts status updates
func (s *Server) broadcastStatus() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.clientCount() == 0 {
				continue
			}

			message, err := json.Marshal(s.buildStatusData())
			if err != nil {
				s.endpoint.logger.Printf("Failed to marshal status data: %v", err)
				continue
			}
			s.broadcast <- message
		case <-s.done:
			return
		}
	}
}

// buildHealth builds the health response
func (s *Server) buildHealth() HealthResponse {
	status := s.endpoint.GetStatus()

	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
		Endpoint:  status,
		System: SystemHealth{
			Uptime: formatUptime(time.Since(s.startTime)),
		},
	}

	if !status.IsRunning || status.ModelVersion == "" {
		health.Status = "unhealthy"
	}

	return health
}

// buildStatusData builds combined health and status data
func (s *Server) buildStatusData() map[string]any {
	registry := s.endpoint.Registry()

	versions := map[string]any{
		"count": registry.Count(),
		"list":  registry.List(),
	}
	if def := registry.Default(); def != nil {
		versions["default"] = def.Version
	}

	return map[string]any{
		"type":      "status_update",
		"health":    s.buildHealth(),
		"versions":  versions,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}

// Helper functions

// formatUptime formats a duration as a string with seconds rounded to integer
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
