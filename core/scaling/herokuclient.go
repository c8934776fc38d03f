package scaling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
)

// DefaultBaseURL is the public Heroku Platform API endpoint
const DefaultBaseURL = "https://api.heroku.com"

// FormationClient manages worker dynos through a platform formation API
type FormationClient interface {
	// GetWorkerCount returns the number of dynos of the given process type.
	// A process type that does not exist counts as 0.
	GetWorkerCount(ctx context.Context, dynoType string) (int, error)
	// ScaleWorker scales the process type to the given quantity
	ScaleWorker(ctx context.Context, dynoType string, quantity int) error
	// EnsureWorkerRunning scales the process type to 1 unless it is already
	// running. Returns true if a dyno had to be started.
	EnsureWorkerRunning(ctx context.Context, dynoType string) (bool, error)
	// StopWorker scales the process type to 0
	StopWorker(ctx context.Context, dynoType string) error
}

// herokuFormationClient implements FormationClient using the Heroku Platform API
type herokuFormationClient struct {
	logger     logging.Logger
	baseURL    string
	apiKey     string
	appName    string
	httpClient *http.Client
}

// NewHerokuFormationClient creates a new Heroku formation client. An empty
// baseURL selects the public Heroku API.
func NewHerokuFormationClient(logger logging.Logger, baseURL, apiKey, appName string, timeout time.Duration) FormationClient {

	if logger == nil {
		logger = logging.NopLogger
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &herokuFormationClient{
		logger:  logger,
		baseURL: baseURL,
		apiKey:  apiKey,
		appName: appName,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// formation is both the GET response and the PATCH update element, the
// Heroku API uses the same keys for both
type formation struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
}

type formationUpdateRequest struct {
	Updates []formation `json:"updates"`
}

func (c *herokuFormationClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/vnd.heroku+json; version=3")
	req.Header.Set("Content-Type", "application/json")
}

// GetWorkerCount returns the number of dynos of the given process type
func (c *herokuFormationClient) GetWorkerCount(ctx context.Context, dynoType string) (int, error) {
	url := fmt.Sprintf("%s/apps/%s/formation/%s", c.baseURL, c.appName, dynoType)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	// The process type does not exist yet
	if resp.StatusCode == http.StatusNotFound {
		c.logger.Warn("Process type not found", "type", dynoType, "app", c.appName)
		return 0, nil
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("heroku API returned status %d: %s", resp.StatusCode, string(body))
	}

	var f formation
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Info("Current dyno quantity", "type", dynoType, "quantity", f.Quantity)
	return f.Quantity, nil
}

// ScaleWorker scales the process type to the given quantity
func (c *herokuFormationClient) ScaleWorker(ctx context.Context, dynoType string, quantity int) error {
	url := fmt.Sprintf("%s/apps/%s/formation", c.baseURL, c.appName)

	payload := formationUpdateRequest{
		Updates: []formation{{Type: dynoType, Quantity: quantity}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PATCH", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("heroku API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Info("Scaled dyno", "type", dynoType, "quantity", quantity)
	return nil
}

// EnsureWorkerRunning scales the process type to 1 unless it is already running
func (c *herokuFormationClient) EnsureWorkerRunning(ctx context.Context, dynoType string) (bool, error) {
	current, err := c.GetWorkerCount(ctx, dynoType)
	if err != nil {
		return false, err
	}

	if current > 0 {
		return false, nil
	}

	if err := c.ScaleWorker(ctx, dynoType, 1); err != nil {
		return false, err
	}
	return true, nil
}

// StopWorker scales the process type to 0
func (c *herokuFormationClient) StopWorker(ctx context.Context, dynoType string) error {
	return c.ScaleWorker(ctx, dynoType, 0)
}
