// Package browser shells out to the agent-browser CLI for pages that refuse
// plain HTTP: Cloudflare-fronted registries and JavaScript-only storefronts.
// Each call drives a short open/act/close session in a headless browser.
package browser

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Client drives the scripted browser.
type Client interface {
	// Render opens a URL and returns the fully rendered HTML.
	Render(ctx context.Context, url string) (string, error)
	// Snapshot opens a URL and returns a text snapshot of the visible page.
	Snapshot(ctx context.Context, url string) (string, error)
	// Eval opens a URL and evaluates a JavaScript expression, returning its
	// string result.
	Eval(ctx context.Context, url, script string) (string, error)
}

// Option configures the browser client.
type Option func(*cliClient)

// WithBinary overrides the agent-browser binary path.
func WithBinary(path string) Option {
	return func(c *cliClient) { c.binary = path }
}

// WithTimeout bounds a single browser session.
func WithTimeout(d time.Duration) Option {
	return func(c *cliClient) { c.timeout = d }
}

type cliClient struct {
	binary  string
	timeout time.Duration
}

// NewClient creates a client for a locally installed agent-browser CLI.
func NewClient(opts ...Option) Client {
	c := &cliClient{
		binary:  "agent-browser",
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Available reports whether the binary can be found on PATH.
func Available(binary string) bool {
	if binary == "" {
		binary = "agent-browser"
	}
	_, err := exec.LookPath(binary)
	return err == nil
}

func (c *cliClient) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	verb := args[0]
	// A unique session name keeps concurrent calls from sharing browser state.
	args = append([]string{"--session", uuid.NewString()}, args...)
	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", eris.Errorf("browser: %s timed out after %s", verb, c.timeout)
		}
		return "", eris.Wrapf(err, "browser: %s failed: %s", verb, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (c *cliClient) Render(ctx context.Context, url string) (string, error) {
	out, err := c.run(ctx, "render", "--wait", "networkidle", url)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", eris.Errorf("browser: empty render for %s", url)
	}
	return out, nil
}

func (c *cliClient) Snapshot(ctx context.Context, url string) (string, error) {
	out, err := c.run(ctx, "snapshot", url)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *cliClient) Eval(ctx context.Context, url, script string) (string, error) {
	out, err := c.run(ctx, "eval", "--url", url, script)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
