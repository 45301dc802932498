// Package registry talks to the package registry: publishing through the
// npm command line client and reading metadata over HTTP.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	yerrors "github.com/frederic-klein/yapm/internal/errors"
	"github.com/frederic-klein/yapm/internal/process"
	"github.com/frederic-klein/yapm/internal/settings"
)

// Auth is the registry endpoint and token used by the npm client.
type Auth struct {
	Address string
	Port    int
	Token   string
}

// URL returns http://address:port.
func (a Auth) URL() string {
	return "http://" + a.host()
}

func (a Auth) host() string {
	if a.Port == 0 {
		return a.Address
	}
	return a.Address + ":" + strconv.Itoa(a.Port)
}

// ResolveAuth prefers the project registry when its address and token are
// set, then the global one.
func ResolveAuth(project, global settings.Registry) (Auth, error) {
	for _, r := range []settings.Registry{project, global} {
		if r.IsSet() {
			return Auth{Address: r.Address, Port: r.Port, Token: r.AuthToken}, nil
		}
	}
	return Auth{}, yerrors.NotFoundf("no registry address and auth token configured")
}

// Client runs npm commands against a registry.
type Client struct {
	runner process.Runner
	npm    string
	logger *slog.Logger
}

// NewClient creates a client running npm through runner.
func NewClient(runner process.Runner, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{runner: runner, npm: "npm", logger: logger}
}

// Publish publishes the package in dir. Output lines are passed to
// onOutput as they become available.
func (c *Client) Publish(ctx context.Context, auth Auth, dir string, onOutput func(string)) error {
	if err := c.login(ctx, auth, dir); err != nil {
		return err
	}
	res, err := c.runner.Run(ctx, dir, c.npm, "publish", "--registry", auth.URL())
	c.emit(res, onOutput)
	if err != nil {
		return fmt.Errorf("publishing %s: %w", dir, err)
	}
	return nil
}

// Unpublish removes name@version from the registry.
func (c *Client) Unpublish(ctx context.Context, auth Auth, dir, name, version string, onOutput func(string)) error {
	if err := c.login(ctx, auth, dir); err != nil {
		return err
	}
	res, err := c.runner.Run(ctx, dir, c.npm, "unpublish", name+"@"+version, "--registry", auth.URL())
	c.emit(res, onOutput)
	if err != nil {
		return fmt.Errorf("unpublishing %s@%s: %w", name, version, err)
	}
	return nil
}

func (c *Client) login(ctx context.Context, auth Auth, dir string) error {
	if auth.Address == "" {
		return yerrors.Invalid("registry address is empty")
	}
	if auth.Token == "" {
		return yerrors.Invalid("registry auth token is empty")
	}
	_, err := c.runner.Run(ctx, dir, c.npm, "set", "//"+auth.host()+"/:_authToken", auth.Token)
	if err != nil {
		return fmt.Errorf("setting registry token: %w", err)
	}
	return nil
}

func (c *Client) emit(res process.Result, onOutput func(string)) {
	lines := append(process.Lines(res.Stdout), process.Lines(res.Stderr)...)
	for _, line := range lines {
		c.logger.Debug("npm", "line", line)
		if onOutput != nil {
			onOutput(line)
		}
	}
}
