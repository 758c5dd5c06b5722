package screenctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"rpanode/internal/logging"
	"rpanode/internal/screen"
	"rpanode/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, stdin []byte) ([]byte, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client implements screen.Driver on top of the helper binary.
type Client struct {
	binary  string
	timeout time.Duration
	exec    Executor
	logger  *slog.Logger
}

var _ screen.Driver = (*Client)(nil)

// New constructs a driver client.
func New(binary string, timeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("screen driver binary required")
	}
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &Client{
		binary:  binary,
		timeout: timeout,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "screenctl")
	return client, nil
}

type locateReply struct {
	Found  bool `json:"found"`
	X      int  `json:"x"`
	Y      int  `json:"y"`
	Width  int  `json:"width"`
	Height int  `json:"height"`
}

type sizeReply struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Locate searches the screen for tmpl.
func (c *Client) Locate(ctx context.Context, tmpl screen.Template) (screen.Region, bool, error) {
	if strings.TrimSpace(tmpl.Path) == "" {
		return screen.Region{}, false, services.Wrap(services.ErrConfiguration, "screenctl", "locate",
			"template "+tmpl.String()+" has no image path", nil)
	}
	out, err := c.run(ctx, nil, "locate",
		"--template", tmpl.Path,
		"--confidence", strconv.FormatFloat(tmpl.Confidence, 'f', 2, 64),
	)
	if err != nil {
		return screen.Region{}, false, services.Wrap(services.ErrDetectionTimeout, "screenctl", "locate", tmpl.String(), err)
	}
	var reply locateReply
	if err := json.Unmarshal(bytes.TrimSpace(out), &reply); err != nil {
		return screen.Region{}, false, services.Wrap(services.ErrDetectionTimeout, "screenctl", "locate",
			"decode reply for "+tmpl.String(), err)
	}
	if !reply.Found {
		return screen.Region{}, false, nil
	}
	return screen.Region{X: reply.X, Y: reply.Y, Width: reply.Width, Height: reply.Height}, true, nil
}

func (c *Client) Click(ctx context.Context, at screen.Point) error {
	return c.input(ctx, nil, "click", "--x", strconv.Itoa(at.X), "--y", strconv.Itoa(at.Y))
}

func (c *Client) RightClick(ctx context.Context, at screen.Point) error {
	return c.input(ctx, nil, "click", "--button", "right", "--x", strconv.Itoa(at.X), "--y", strconv.Itoa(at.Y))
}

func (c *Client) Press(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.input(ctx, nil, "press", keys...)
}

func (c *Client) Hotkey(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.input(ctx, nil, "hotkey", keys...)
}

// Paste places text on the clipboard and pastes it into the focused field.
func (c *Client) Paste(ctx context.Context, text string) error {
	return c.input(ctx, []byte(text), "paste")
}

func (c *Client) Size(ctx context.Context) (int, int, error) {
	out, err := c.run(ctx, nil, "size")
	if err != nil {
		return 0, 0, services.Wrap(services.ErrInjection, "screenctl", "size", "", err)
	}
	var reply sizeReply
	if err := json.Unmarshal(bytes.TrimSpace(out), &reply); err != nil {
		return 0, 0, services.Wrap(services.ErrInjection, "screenctl", "size", "decode reply", err)
	}
	return reply.Width, reply.Height, nil
}

func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	out, err := c.run(ctx, nil, "screenshot")
	if err != nil {
		return nil, services.Wrap(services.ErrInjection, "screenctl", "screenshot", "", err)
	}
	if !bytes.HasPrefix(out, pngMagic) {
		return nil, services.Wrap(services.ErrInjection, "screenctl", "screenshot", "helper did not return a PNG", nil)
	}
	return out, nil
}

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func (c *Client) input(ctx context.Context, stdin []byte, verb string, args ...string) error {
	if _, err := c.run(ctx, stdin, verb, args...); err != nil {
		return services.Wrap(services.ErrInjection, "screenctl", verb, "", err)
	}
	return nil
}

func (c *Client) run(ctx context.Context, stdin []byte, verb string, args ...string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	argv := append([]string{verb}, args...)
	start := time.Now()
	out, err := c.exec.Run(callCtx, c.binary, argv, stdin)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = fmt.Errorf("%s timed out after %s: %w", verb, c.timeout, err)
		}
		c.logger.Debug("screen driver call failed",
			logging.String("verb", verb),
			logging.Duration("elapsed", time.Since(start)),
			logging.Error(err),
		)
		return nil, err
	}
	return out, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", binary, args[0], err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", binary, args[0], err)
	}
	return stdout.Bytes(), nil
}
