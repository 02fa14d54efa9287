package predict

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/devskill-org/suntimes-serving/suntimes"
)

// Prediction is one element of the predictions array: a result or a
// per-instance error for polar day/night.
type Prediction struct {
	*suntimes.Result
	Error string `json:"error,omitempty"`
}

// Response is the prediction response body
type Response struct {
	ModelVersion string       `json:"model_version,omitempty"`
	Predictions  []Prediction `json:"predictions"`
}

// Version describes one model version known to the endpoint
type Version struct {
	Model     string    `json:"model"`
	Version   string    `json:"version"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
	IsDefault bool      `json:"is_default"`
}

// Client represents a client for the suntimes prediction endpoint
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewClient creates a new client for the prediction endpoint at baseURL
// serving the named model.
func NewClient(baseURL, model string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		model:   model,
	}
}

// NewClientWithHTTPClient creates a new client with a custom HTTP client
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, model string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		model:      model,
	}
}

// SetBaseURL sets the base URL for the endpoint (useful for testing)
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// Predict requests a single sunrise/sunset prediction
func (c *Client) Predict(instance suntimes.Request) (suntimes.Result, error) {
	if err := instance.Validate(); err != nil {
		return suntimes.Result{}, &ValidationError{Field: "instance", Message: err.Error()}
	}

	response, err := c.post(c.predictURL(), instance)
	if err != nil {
		return suntimes.Result{}, err
	}

	if len(response.Predictions) != 1 {
		return suntimes.Result{}, fmt.Errorf("expected 1 prediction, got %d", len(response.Predictions))
	}

	prediction := response.Predictions[0]
	if prediction.Error != "" {
		return suntimes.Result{}, fmt.Errorf("prediction failed: %s", prediction.Error)
	}
	if prediction.Result == nil {
		return suntimes.Result{}, fmt.Errorf("prediction response has no result")
	}

	return *prediction.Result, nil
}

// PredictBatch requests predictions for multiple instances in one call.
// Per-instance failures (polar day/night) are reported in the returned
// predictions, not as an error.
func (c *Client) PredictBatch(instances []suntimes.Request) (*Response, error) {
	if len(instances) == 0 {
		return nil, &ValidationError{Field: "instances", Message: "cannot be empty"}
	}
	for i, instance := range instances {
		if err := instance.Validate(); err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("instances[%d]", i), Message: err.Error()}
		}
	}

	body := struct {
		Instances []suntimes.Request `json:"instances"`
	}{Instances: instances}

	return c.post(c.predictURL(), body)
}

// Versions lists the model versions registered on the endpoint
func (c *Client) Versions() ([]Version, error) {
	resp, err := c.httpClient.Get(c.versionsURL())
	if err != nil {
		return nil, &NetworkError{Operation: "list versions", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp)
	}

	var listing struct {
		Model    string    `json:"model"`
		Versions []Version `json:"versions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return listing.Versions, nil
}

// CreateVersion registers a new model version on the endpoint
func (c *Client) CreateVersion(version, checksum string) (*Version, error) {
	body := map[string]string{"version": version, "checksum": checksum}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.httpClient.Post(c.versionsURL(), "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, &NetworkError{Operation: "create version", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, newAPIError(resp)
	}

	var created Version
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &created, nil
}

// EnsureVersion creates a version unless it already exists. Mirrors the
// conditional-create step of a deploy script.
func (c *Client) EnsureVersion(version, checksum string) (*Version, bool, error) {
	existing, err := c.Versions()
	if err != nil {
		return nil, false, err
	}
	for i := range existing {
		if existing[i].Version == version {
			return &existing[i], false, nil
		}
	}

	created, err := c.CreateVersion(version, checksum)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// SetDefaultVersion promotes a version to the prediction target
func (c *Client) SetDefaultVersion(version string) error {
	url := fmt.Sprintf("%s/%s:setDefault", c.versionsURL(), version)

	resp, err := c.httpClient.Post(url, "application/json", nil)
	if err != nil {
		return &NetworkError{Operation: "set default version", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newAPIError(resp)
	}
	return nil
}

// DeleteVersion removes a version from the endpoint
func (c *Client) DeleteVersion(version string) error {
	url := fmt.Sprintf("%s/%s", c.versionsURL(), version)

	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Operation: "delete version", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newAPIError(resp)
	}
	return nil
}

// Ready reports whether the endpoint is serving a model
func (c *Client) Ready() (bool, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/api/ready")
	if err != nil {
		return false, &NetworkError{Operation: "readiness check", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusServiceUnavailable:
		return false, nil
	default:
		return false, newAPIError(resp)
	}
}

// post sends a JSON body to the predict route and decodes the response
func (c *Client) post(url string, body any) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	// 422 carries a predictions array with per-instance errors
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnprocessableEntity {
		return nil, newAPIError(resp)
	}

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var response Response
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &response, nil
}

func (c *Client) predictURL() string {
	return fmt.Sprintf("%s/v1/models/%s:predict", c.baseURL, c.model)
}

func (c *Client) versionsURL() string {
	return fmt.Sprintf("%s/v1/models/%s/versions", c.baseURL, c.model)
}

// newAPIError reads the response body into an APIError
func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(body),
	}
}
