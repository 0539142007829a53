// Package client is a typed HTTP client for the deployment API used by
// deployctl.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is used when no API address is configured.
const DefaultBaseURL = "http://localhost:4000"

// Client talks to one API server. Tokens are passed per call so a single
// client can serve several identities.
type Client struct {
	base       *url.URL
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default 15s-timeout client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New parses base, adding an http scheme when none is given.
func New(base string, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(base)
	if raw == "" {
		raw = DefaultBaseURL
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api address %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api address %q: unsupported scheme %q", base, u.Scheme)
	}
	c := &Client{base: u, httpClient: &http.Client{Timeout: 15 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL reports the normalised API address.
func (c *Client) BaseURL() string { return c.base.String() }

func id(v int64) string { return strconv.FormatInt(v, 10) }

// ListProjects returns every configured project.
func (c *Client) ListProjects(ctx context.Context, token string) ([]Project, error) {
	return call[[]Project](ctx, c, http.MethodGet, "/projects", token, nil)
}

// ListDeployments fetches recent deployments for a project, newest first.
func (c *Client) ListDeployments(ctx context.Context, token string, projectID int64, limit int) ([]Deployment, error) {
	path := "/projects/" + id(projectID) + "/deployments"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	return call[[]Deployment](ctx, c, http.MethodGet, path, token, nil)
}

// TriggerDeployment creates a manual deployment for the project.
func (c *Client) TriggerDeployment(ctx context.Context, token string, projectID int64, input TriggerInput) (Deployment, error) {
	return call[Deployment](ctx, c, http.MethodPost, "/projects/"+id(projectID)+"/deployments", token, input)
}

// GetDeployment returns a deployment with its steps and full log.
func (c *Client) GetDeployment(ctx context.Context, token string, deploymentID int64) (Deployment, error) {
	return call[Deployment](ctx, c, http.MethodGet, "/deployments/"+id(deploymentID), token, nil)
}

// RetryDeployment creates a new deployment from a failed or cancelled one.
func (c *Client) RetryDeployment(ctx context.Context, token string, deploymentID int64) (Deployment, error) {
	return call[Deployment](ctx, c, http.MethodPost, "/deployments/"+id(deploymentID)+"/retry", token, nil)
}

// CancelDeployment cancels a pending, queued or running deployment.
func (c *Client) CancelDeployment(ctx context.Context, token string, deploymentID int64) (Deployment, error) {
	return call[Deployment](ctx, c, http.MethodPost, "/deployments/"+id(deploymentID)+"/cancel", token, nil)
}

// Queues lists every known project queue.
func (c *Client) Queues(ctx context.Context, token string) ([]QueueStatus, error) {
	return call[[]QueueStatus](ctx, c, http.MethodGet, "/queues", token, nil)
}

// Queue returns one project queue.
func (c *Client) Queue(ctx context.Context, token string, projectID int64) (QueueStatus, error) {
	return call[QueueStatus](ctx, c, http.MethodGet, "/queues/"+id(projectID), token, nil)
}

// RefreshQueue re-applies the project's concurrency limit, first updating it
// when maxConcurrent is positive.
func (c *Client) RefreshQueue(ctx context.Context, token string, projectID int64, maxConcurrent int) (QueueStatus, error) {
	body := map[string]int{}
	if maxConcurrent > 0 {
		body["max_concurrent"] = maxConcurrent
	}
	return call[QueueStatus](ctx, c, http.MethodPut, "/queues/"+id(projectID), token, body)
}

// CancelPending cancels every queued deployment of the project and returns
// how many were cancelled.
func (c *Client) CancelPending(ctx context.Context, token string, projectID int64) (int, error) {
	resp, err := call[struct {
		Cancelled int `json:"cancelled"`
	}](ctx, c, http.MethodDelete, "/queues/"+id(projectID)+"/pending", token, nil)
	return resp.Cancelled, err
}
