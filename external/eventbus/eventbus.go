// Package eventbus implements external.EventSink and external.IncidentReporter
// over HTTP, posting fixed-shape JSON documents to a message broker's REST
// front door. Errors are logged and returned to the caller; the failure
// fanout worker that calls these methods logs them again and drops them, so
// they never reach the reducer's primary transaction (spec.md §4.G, §7).
package eventbus

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/datopian/flowmanager/external"
)

type Client struct {
	eventsURL    string
	incidentsURL string
	client       *http.Client
	logger       *slog.Logger
}

func New(eventsURL, incidentsURL string, logger *slog.Logger) *Client {
	return &Client{
		eventsURL:    eventsURL,
		incidentsURL: incidentsURL,
		logger:       logger.With("component", "eventbus"),
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		},
	}
}

func (c *Client) Send(ctx context.Context, e external.EventRecord) error {
	if c.eventsURL == "" {
		return nil
	}
	if err := c.post(ctx, c.eventsURL, e); err != nil {
		c.logger.WarnContext(ctx, "failed to emit event",
			"flow_id", e.FlowID, "event", e.Event, "error", err)
		return err
	}
	return nil
}

func (c *Client) Report(ctx context.Context, inc external.Incident) error {
	if c.incidentsURL == "" {
		return nil
	}
	if err := c.post(ctx, c.incidentsURL, inc); err != nil {
		c.logger.WarnContext(ctx, "failed to report incident",
			"title", inc.Title, "owner", inc.Owner, "error", err)
		return err
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
