package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/homebus/conductor/pkg/graph"
	"github.com/homebus/conductor/pkg/orchestrator"
	"github.com/homebus/conductor/pkg/types"
)

// Client wraps the conductor HTTP API for CLI usage.
type Client struct {
	baseURL string
	user    string
	http    *http.Client
}

// NewClient creates a client against the given API address, e.g.
// "http://127.0.0.1:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// WithUser sets the identity recorded as created_by on submitted tasks.
func (c *Client) WithUser(user string) *Client {
	c.user = user
	return c
}

// apiError is the server's error envelope.
type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.Header.Set("X-Conductor-User", c.user)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListServices lists all registered services with their instances.
func (c *Client) ListServices(ctx context.Context) ([]orchestrator.ServiceStatus, error) {
	var out []orchestrator.ServiceStatus
	err := c.do(ctx, http.MethodGet, "/api/v1/services", nil, &out)
	return out, err
}

// GetService returns one service with its instances.
func (c *Client) GetService(ctx context.Context, name string) (orchestrator.ServiceStatus, error) {
	var out orchestrator.ServiceStatus
	err := c.do(ctx, http.MethodGet, "/api/v1/services/"+name, nil, &out)
	return out, err
}

// Register registers service definitions as one atomic batch.
func (c *Client) Register(ctx context.Context, defs []*types.ServiceDefinition) error {
	return c.do(ctx, http.MethodPost, "/api/v1/services", defs, nil)
}

// Deregister removes a service definition.
func (c *Client) Deregister(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/services/"+name, nil, nil)
}

// StartService submits a start task.
func (c *Client) StartService(ctx context.Context, name string) (types.Task, error) {
	var out types.Task
	err := c.do(ctx, http.MethodPost, "/api/v1/services/"+name+"/start", nil, &out)
	return out, err
}

// StopService submits a stop task.
func (c *Client) StopService(ctx context.Context, name string) (types.Task, error) {
	var out types.Task
	err := c.do(ctx, http.MethodPost, "/api/v1/services/"+name+"/stop", nil, &out)
	return out, err
}

// RestartService submits a restart task; instanceID may be empty.
func (c *Client) RestartService(ctx context.Context, name, instanceID string) (types.Task, error) {
	var out types.Task
	body := map[string]string{}
	if instanceID != "" {
		body["instance_id"] = instanceID
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/services/"+name+"/restart", body, &out)
	return out, err
}

// ScaleService submits a scale task.
func (c *Client) ScaleService(ctx context.Context, name, replicas string) (types.Task, error) {
	var out types.Task
	err := c.do(ctx, http.MethodPost, "/api/v1/services/"+name+"/scale",
		map[string]string{"replicas": replicas}, &out)
	return out, err
}

// SetMaintenance submits a maintenance toggle task.
func (c *Client) SetMaintenance(ctx context.Context, name string, enabled bool) (types.Task, error) {
	var out types.Task
	err := c.do(ctx, http.MethodPost, "/api/v1/services/"+name+"/maintenance",
		map[string]bool{"enabled": enabled}, &out)
	return out, err
}

// ListTasks lists all tasks.
func (c *Client) ListTasks(ctx context.Context) ([]types.Task, error) {
	var out []types.Task
	err := c.do(ctx, http.MethodGet, "/api/v1/tasks", nil, &out)
	return out, err
}

// GetTask returns a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (types.Task, error) {
	var out types.Task
	err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+id, nil, &out)
	return out, err
}

// CancelTask aborts a pending or running task.
func (c *Client) CancelTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/tasks/"+id, nil, nil)
}

// WaitTask polls a task until it reaches a terminal status or the
// context expires.
func (c *Client) WaitTask(ctx context.Context, id string, interval time.Duration) (types.Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := c.GetTask(ctx, id)
		if err != nil {
			return types.Task{}, err
		}
		switch task.Status {
		case types.TaskCompleted, types.TaskFailed, types.TaskCancelled:
			return task, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return task, ctx.Err()
		}
	}
}

// DefineGroup registers a service group.
func (c *Client) DefineGroup(ctx context.Context, group *types.ServiceGroup) error {
	return c.do(ctx, http.MethodPost, "/api/v1/groups", group, nil)
}

// ListGroups lists all groups.
func (c *Client) ListGroups(ctx context.Context) ([]types.ServiceGroup, error) {
	var out []types.ServiceGroup
	err := c.do(ctx, http.MethodGet, "/api/v1/groups", nil, &out)
	return out, err
}

// DeleteGroup removes a group.
func (c *Client) DeleteGroup(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/groups/"+name, nil, nil)
}

// StartGroup submits start tasks for the group and returns their ids.
func (c *Client) StartGroup(ctx context.Context, name string) ([]string, error) {
	var out map[string][]string
	err := c.do(ctx, http.MethodPost, "/api/v1/groups/"+name+"/start", nil, &out)
	return out["task_ids"], err
}

// StopGroup submits stop tasks for the group and returns their ids.
func (c *Client) StopGroup(ctx context.Context, name string) ([]string, error) {
	var out map[string][]string
	err := c.do(ctx, http.MethodPost, "/api/v1/groups/"+name+"/stop", nil, &out)
	return out["task_ids"], err
}

// ListInstances lists all tracked instances.
func (c *Client) ListInstances(ctx context.Context) ([]types.ServiceInstance, error) {
	var out []types.ServiceInstance
	err := c.do(ctx, http.MethodGet, "/api/v1/instances", nil, &out)
	return out, err
}

// DependencyGraph returns the dependency view of every service.
func (c *Client) DependencyGraph(ctx context.Context) ([]graph.DependencyView, error) {
	var out []graph.DependencyView
	err := c.do(ctx, http.MethodGet, "/api/v1/graph", nil, &out)
	return out, err
}

// TopologicalOrder returns the catalog in dependency order.
func (c *Client) TopologicalOrder(ctx context.Context) ([]string, error) {
	var out map[string][]string
	err := c.do(ctx, http.MethodGet, "/api/v1/graph/order", nil, &out)
	return out["order"], err
}
