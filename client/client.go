// Package client is the HTTP implementation of the engine's persistence
// interfaces, speaking to the designs REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"designdeck/core"
)

// DesignClient implements engine.DesignFetcher and engine.DesignSaver
// against a designdeck server.
type DesignClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a client for the given server base URL (e.g.
// "http://localhost:3002"). token may be empty when the server runs without
// auth.
func New(baseURL, token string) *DesignClient {
	return &DesignClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchDesign retrieves the authoritative persisted design.
func (c *DesignClient) FetchDesign(ctx context.Context, id string) (*core.Design, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.designURL(id), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch design %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, core.ErrDesignNotFound
	default:
		return nil, fmt.Errorf("fetch design %s: unexpected status %d", id, resp.StatusCode)
	}

	var design core.Design
	if err := json.NewDecoder(resp.Body).Decode(&design); err != nil {
		return nil, fmt.Errorf("decode design %s: %w", id, err)
	}
	return &design, nil
}

// SaveDesign persists the full design document.
func (c *DesignClient) SaveDesign(ctx context.Context, design *core.Design) error {
	body, err := json.Marshal(design)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.designURL(design.ID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("save design %s: %w", design.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("save design %s: unexpected status %d", design.ID, resp.StatusCode)
	}
	return nil
}

func (c *DesignClient) designURL(id string) string {
	return fmt.Sprintf("%s/api/v2/designs/%s", c.baseURL, url.PathEscape(id))
}

func (c *DesignClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
