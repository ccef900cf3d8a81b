// Package httprunner implements external.Runner against a remote
// datapackage-pipelines-style execution service. It starts the run over
// HTTP and polls for per-pipeline status transitions in a background
// goroutine, invoking the callback exactly as the contract specifies:
// "from arbitrary threads" (spec.md §6, "Runner contract").
package httprunner

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/datopian/flowmanager/external"
)

type Runner struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
}

func New(baseURL string) *Runner {
	return &Runner{
		baseURL:      baseURL,
		pollInterval: 2 * time.Second,
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		},
	}
}

type startRequest struct {
	FlowID    string `json:"flow_id"`
	Pipelines []byte `json:"pipelines"`
	Verbosity int    `json:"verbosity"`
}

type pollEntry struct {
	PipelineID string         `json:"pipeline_id"`
	State      string         `json:"state"`
	Errors     []string       `json:"errors,omitempty"`
	Stats      map[string]any `json:"stats,omitempty"`
	Terminal   bool           `json:"terminal"`
}

// Start kicks the run off synchronously, then polls status in the
// background until every pipeline reaches a terminal state. The poller
// keeps ctx's values but not its cancellation, so cancelling ctx after
// Start returns does not stop it.
func (r *Runner) Start(ctx context.Context, flowID string, serializedPipelines []byte, cb external.StatusCallback, verbosity int) error {
	body, err := json.Marshal(startRequest{FlowID: flowID, Pipelines: serializedPipelines, Verbosity: verbosity})
	if err != nil {
		return fmt.Errorf("marshal start request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/start", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build start request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("call runner: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("runner returned status %d", resp.StatusCode)
	}

	go r.poll(context.WithoutCancel(ctx), flowID, cb)
	return nil
}

func (r *Runner) poll(ctx context.Context, flowID string, cb external.StatusCallback) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	seen := map[string]string{}
	pending := true

	for pending {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		entries, err := r.fetchStatus(ctx, flowID)
		if err != nil {
			continue
		}

		pending = false
		for _, e := range entries {
			if !e.Terminal {
				pending = true
			}
			if seen[e.PipelineID] == e.State {
				continue
			}
			seen[e.PipelineID] = e.State
			cb(ctx, e.PipelineID, e.State, e.Errors, e.Stats)
		}
	}
}

func (r *Runner) fetchStatus(ctx context.Context, flowID string) ([]pollEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/status/"+flowID, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call runner status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("runner status returned %d", resp.StatusCode)
	}

	var entries []pollEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return entries, nil
}
