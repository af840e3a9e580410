// Package tuner implements the relaxation budget steward.
// It observes field backlog via the API, decides on a new per-tick
// budget, and applies it through the admin budget endpoint.
package tuner

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Snapshot holds all data collected during an observation cycle.
type Snapshot struct {
	Status Status      `json:"status"`
	Kinds  []KindStats `json:"kinds"`
}

// Status mirrors GET /api/v1/status.
type Status struct {
	Name    string   `json:"name"`
	Tick    uint64   `json:"tick"`
	Speed   float64  `json:"speed"`
	Running bool     `json:"running"`
	Budget  int      `json:"budget"`
	Kinds   []string `json:"kinds"`
}

// KindStats mirrors items from GET /api/v1/kinds.
type KindStats struct {
	Kind      string `json:"kind"`
	FieldSize int    `json:"field_size"`
	Queued    int    `json:"queued"`
	Tracked   int    `json:"tracked"`
	Detected  int    `json:"detected"`
	Popped    int    `json:"popped"`
	Changed   int    `json:"changed"`
	Ticks     uint64 `json:"ticks"`
}

// Observer fetches field state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Observe fetches the status and kinds endpoints.
func (o *Observer) Observe() (*Snapshot, error) {
	snap := &Snapshot{}

	if err := o.fetchJSON("/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON("/api/v1/kinds", &snap.Kinds); err != nil {
		return nil, fmt.Errorf("fetch kinds: %w", err)
	}

	return snap, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(path string, target any) error {
	resp, err := o.HTTPClient.Get(o.BaseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
