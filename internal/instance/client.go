// pattern: Imperative Shell
package instance

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a thin HTTP client for querying a running ruwmd instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client targeting the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Status is the JSON shape served at GET /api/state: the current valve,
// water meter, and battery snapshot.
type Status struct {
	Valve      json.RawMessage `json:"valve"`
	WaterMeter json.RawMessage `json:"water_meter"`
	Battery    json.RawMessage `json:"battery"`
}

// Status fetches the running instance's current state snapshot, the data
// source behind "ruwmd status".
func (c *Client) Status() (Status, error) {
	body, err := c.get("/api/state")
	if err != nil {
		return Status{}, err
	}
	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		return Status{}, fmt.Errorf("failed to parse status response: %w", err)
	}
	return st, nil
}

func (c *Client) get(path string) ([]byte, error) {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ruwmd: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := extractErrorMessage(body)
		return nil, fmt.Errorf("ruwmd returned status %d: %s", resp.StatusCode, msg)
	}

	return body, nil
}

// extractErrorMessage attempts to extract the error message from a JSON
// response body. If the body is not valid JSON or doesn't have an
// "error" field, returns the raw body string.
func extractErrorMessage(body []byte) string {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	return string(body)
}
