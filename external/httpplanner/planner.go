// Package httpplanner implements external.Planner by delegating pipeline
// graph construction to a remote planner service over HTTP, the same
// client-hardening shape the teacher uses for outbound job execution
// (timeouts, bounded redirects, a dedicated transport).
package httpplanner

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/datopian/flowmanager/domain"
	"github.com/datopian/flowmanager/external"
)

type Planner struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string) *Planner {
	return &Planner{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
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
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

type planRequest struct {
	Revision     int          `json:"revision"`
	Spec         domain.Spec  `json:"spec"`
	AllowedTypes []string     `json:"allowed_types"`
}

type planResponseEntry struct {
	PipelineID string                 `json:"pipeline_id"`
	Details    map[string]any `json:"details"`
}

func (p *Planner) Plan(ctx context.Context, revision int, spec domain.Spec, allowedTypes []string) ([]external.PlannedPipeline, error) {
	body, err := json.Marshal(planRequest{Revision: revision, Spec: spec, AllowedTypes: allowedTypes})
	if err != nil {
		return nil, fmt.Errorf("marshal plan request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/plan", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build plan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call planner: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("planner returned status %d", resp.StatusCode)
	}

	var entries []planResponseEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode plan response: %w", err)
	}

	out := make([]external.PlannedPipeline, 0, len(entries))
	for _, e := range entries {
		out = append(out, external.PlannedPipeline{
			PipelineID: domain.StripPipelinePrefix(e.PipelineID),
			Details:    domain.PipelineDetails(e.Details),
		})
	}
	return out, nil
}
