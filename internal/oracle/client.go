// Package oracle wraps the external single-qubit state simulator. The core
// treats it as a black box: a state label in, a state label out, and every
// transport or protocol failure collapsed into a plain error.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"quantum-bluff-server/internal/quantum"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

type simulateRequest struct {
	InitialState *string `json:"initial_state"`
	Gate         string  `json:"gate"`
}

type simulateResponse struct {
	FinalState string `json:"final_state"`
}

// ApplyGate asks the simulator for the post-gate state. The prior state is
// mapped to the canonical "0"/"1" labels the simulator understands; anything
// else (including a never-touched qubit) is sent as null.
func (c *Client) ApplyGate(ctx context.Context, priorState string, gate quantum.GateType) (string, error) {
	var initial *string
	switch priorState {
	case quantum.StateZero:
		v := "0"
		initial = &v
	case quantum.StateOne:
		v := "1"
		initial = &v
	}

	body, err := json.Marshal(simulateRequest{InitialState: initial, Gate: string(gate)})
	if err != nil {
		return "", fmt.Errorf("encode simulate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/simulate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build simulate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call simulator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("simulator returned status %d", resp.StatusCode)
	}

	var result simulateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode simulate response: %w", err)
	}
	if result.FinalState == "" {
		return "", fmt.Errorf("simulator returned empty final state")
	}

	return result.FinalState, nil
}
