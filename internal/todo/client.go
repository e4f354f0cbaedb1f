// Package todo adapts the remote todo REST API behind a paginated,
// optimistically cached façade. The remote API is the source of truth;
// nothing here is persisted locally.
package todo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go-todo-app/internal/model"
)

// Client is a thin typed client over the remote todo collection. The
// remote exposes list/create/update/delete by numeric id; list returns
// the full collection, which the façade slices into pages.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func NewClient(httpClient *http.Client, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// List fetches the full todo collection.
func (c *Client) List(ctx context.Context) ([]model.Todo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/todos", nil)
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}

	var todos []model.Todo
	if err := c.do(req, http.StatusOK, &todos); err != nil {
		return nil, err
	}
	return todos, nil
}

// Create posts a new todo and returns the remote's acknowledgment,
// including the id the remote assigned.
func (c *Client) Create(ctx context.Context, t model.Todo) (model.Todo, error) {
	req, err := c.jsonRequest(ctx, http.MethodPost, c.baseURL+"/todos", t)
	if err != nil {
		return model.Todo{}, err
	}

	var created model.Todo
	if err := c.do(req, http.StatusCreated, &created); err != nil {
		return model.Todo{}, err
	}
	return created, nil
}

// Update replaces the todo with the given id.
func (c *Client) Update(ctx context.Context, t model.Todo) (model.Todo, error) {
	req, err := c.jsonRequest(ctx, http.MethodPut, fmt.Sprintf("%s/todos/%d", c.baseURL, t.ID), t)
	if err != nil {
		return model.Todo{}, err
	}

	var updated model.Todo
	if err := c.do(req, http.StatusOK, &updated); err != nil {
		return model.Todo{}, err
	}
	return updated, nil
}

// Delete removes the todo with the given id.
func (c *Client) Delete(ctx context.Context, id int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/todos/%d", c.baseURL, id), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}

	return c.do(req, http.StatusOK, nil)
}

func (c *Client) jsonRequest(ctx context.Context, method string, url string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, wantStatus int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("todo API call failed",
			slog.String("method", req.Method),
			slog.String("url", req.URL.String()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %v", model.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return model.ErrTodoNotFound
	}
	if resp.StatusCode != wantStatus {
		c.logger.Error("todo API returned unexpected status",
			slog.String("method", req.Method),
			slog.String("url", req.URL.String()),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("%w: status %d", model.ErrUpstream, resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response body: %v", model.ErrUpstream, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", model.ErrUpstream, err)
	}
	return nil
}
