package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rpanode/internal/config"
	"rpanode/internal/logging"
	"rpanode/internal/services"
)

const userAgent = "rpanode/0.1.0"

// Client talks to the backend on behalf of one node identity.
type Client struct {
	baseURL  string
	nodeID   string
	hostname string
	http     *http.Client
	logger   *slog.Logger

	registerTimeout  time.Duration
	configTimeout    time.Duration
	heartbeatTimeout time.Duration
	ingestTimeout    time.Duration
	errorTimeout     time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "backend")
		}
	}
}

// New builds a client for the configured backend and the given node id.
func New(cfg *config.Config, nodeID string, opts ...Option) *Client {
	c := &Client{
		baseURL:          strings.TrimRight(strings.TrimSpace(cfg.Backend.URL), "/"),
		nodeID:           strings.TrimSpace(nodeID),
		hostname:         strings.TrimSpace(cfg.Backend.Hostname),
		http:             &http.Client{},
		logger:           logging.NewNop(),
		registerTimeout:  config.Seconds(cfg.Backend.RegisterTimeout),
		configTimeout:    config.Seconds(cfg.Backend.ConfigTimeout),
		heartbeatTimeout: config.Seconds(cfg.Backend.HeartbeatTimeout),
		ingestTimeout:    config.Seconds(cfg.Backend.IngestTimeout),
		errorTimeout:     config.Seconds(cfg.Backend.ErrorTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NodeID returns the identity this client reports as.
func (c *Client) NodeID() string { return c.nodeID }

// Register announces the node and returns the current doctor assignment, if any.
func (c *Client) Register(ctx context.Context) (Assignment, error) {
	var out Assignment
	body := registerRequest{UUID: c.nodeID, Hostname: c.hostname}
	if err := c.do(ctx, "register", http.MethodPost, "/rpa/register", c.registerTimeout, body, &out); err != nil {
		return Assignment{}, err
	}
	c.logger.Info("node registered",
		logging.String(logging.FieldEventType, "node_registered"),
		logging.String("node_id", c.nodeID),
		logging.String("hostname", c.hostname),
		logging.Bool("assigned", out.Assigned()),
	)
	return out, nil
}

// FetchConfig returns the assignment, credentials, and target list.
func (c *Client) FetchConfig(ctx context.Context) (NodeConfig, error) {
	var out NodeConfig
	path := "/rpa/" + url.PathEscape(c.nodeID) + "/config"
	if err := c.do(ctx, "fetch config", http.MethodGet, path, c.configTimeout, nil, &out); err != nil {
		return NodeConfig{}, err
	}
	return out, nil
}

// Heartbeat sends a liveness signal.
func (c *Client) Heartbeat(ctx context.Context) error {
	path := "/rpa/" + url.PathEscape(c.nodeID) + "/heartbeat"
	return c.do(ctx, "heartbeat", http.MethodPost, path, c.heartbeatTimeout, nil, nil)
}

// Ingest forwards one stage result.
func (c *Client) Ingest(ctx context.Context, dataType, hospitalType string, payload any) error {
	body := ingestRequest{
		UUID:         c.nodeID,
		DataType:     dataType,
		HospitalType: strings.ToUpper(strings.TrimSpace(hospitalType)),
		Payload:      payload,
	}
	if err := c.do(ctx, "ingest", http.MethodPost, "/rpa/ingest", c.ingestTimeout, body, nil); err != nil {
		return err
	}
	c.logger.Info("data sent",
		logging.String(logging.FieldEventType, "ingest_sent"),
		logging.String("data_type", dataType),
		logging.String(logging.FieldHospital, body.HospitalType),
	)
	return nil
}

// ReportError posts a failure. An empty screenshotURL is sent as null.
func (c *Client) ReportError(ctx context.Context, hospitalType, message, screenshotURL string) error {
	body := errorRequest{
		UUID:         c.nodeID,
		HospitalType: strings.ToUpper(strings.TrimSpace(hospitalType)),
		Error:        strings.TrimSpace(message),
	}
	if s := strings.TrimSpace(screenshotURL); s != "" {
		body.ScreenshotURL = &s
	}
	return c.do(ctx, "report error", http.MethodPost, "/rpa/error", c.errorTimeout, body, nil)
}

func (c *Client) do(ctx context.Context, operation, method, path string, timeout time.Duration, in, out any) error {
	if c == nil || c.http == nil {
		return services.Wrap(services.ErrConfiguration, "backend", operation, "client not initialized", nil)
	}
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "backend", operation, "backend url not configured", nil)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return services.Wrap(services.ErrValidation, "backend", operation, "encode request", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return services.Wrap(services.ErrNetwork, "backend", operation, "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrNetwork, "backend", operation, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(
			services.ErrNetwork, "backend", operation,
			fmt.Sprintf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
			nil,
		)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return services.Wrap(services.ErrNetwork, "backend", operation, "read response", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return services.Wrap(services.ErrNetwork, "backend", operation, "decode response", err)
	}
	return nil
}
