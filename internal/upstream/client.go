package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Client issues one-shot control commands against the proxy's REST API.
// It is deliberately minimal: the event stream, not these responses, is the
// source of truth for state.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds upstream command endpoint configuration.
type Config struct {
	URL     string        `toml:"url" mapstructure:"url"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
}

// New creates a command client for the proxy control API.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// Start requests a proxy start. A non-2xx response or transport error is
// returned so the caller can roll back its optimistic transition.
func (c *Client) Start(ctx context.Context) error {
	return c.post(ctx, "/start")
}

// Stop requests a proxy stop.
func (c *Client) Stop(ctx context.Context) error {
	return c.post(ctx, "/stop")
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("upstream command failed", "path", path, "error", err)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	var er struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error == "" {
		return fmt.Errorf("upstream returned HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("upstream error: %s", er.Error)
}
