package tui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/okulovsky/tgweb-automation/internal/api"
)

// Client polls a running daemon's status endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client against base, e.g. "http://127.0.0.1:8484".
func NewClient(base string) *Client {
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Status fetches the daemon's full status.
func (c *Client) Status() (*api.StatusResponse, error) {
	resp, err := c.http.Get(c.baseURL + "/status")
	if err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %s", resp.Status)
	}

	var out api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &out, nil
}

// Cancel requests cancellation of a job.
func (c *Client) Cancel(jobID string) error {
	resp, err := c.http.Post(c.baseURL+"/auth/cancel/"+jobID, "application/json", nil)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cancel returned %s", resp.Status)
	}
	return nil
}
