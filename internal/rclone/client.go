// Package rclone moves job files between configured remotes and the local
// workspace by invoking the rclone CLI.
package rclone

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/ahoge-moe/Shiden/internal/config"
	"github.com/ahoge-moe/Shiden/internal/models"
	"github.com/ahoge-moe/Shiden/internal/process"
	"github.com/ahoge-moe/Shiden/internal/util"
)

// EnvBinary overrides rclone binary lookup.
const EnvBinary = "SHIDEN_RCLONE_BINARY"

// ResolveBinary locates rclone from config, environment or PATH.
func ResolveBinary(cfg config.RcloneConfig) (string, error) {
	p, err := util.FindBinary("rclone", EnvBinary, cfg.BinaryPath)
	if err != nil {
		return "", fmt.Errorf("locating rclone: %w", err)
	}
	return p, nil
}

// JoinRemote joins a remote root and a relative path. Roots ending in ":"
// (such as "gdrive:") take the path directly after the colon; anything else
// is joined as a POSIX path.
func JoinRemote(remote, p string) string {
	if strings.HasSuffix(remote, ":") {
		return remote + strings.TrimLeft(p, "/")
	}
	return path.Join(remote, p)
}

// Client wraps the rclone binary.
type Client struct {
	binary     string
	configPath string
	flags      []string
	runner     process.Runner
	logger     *slog.Logger
}

// NewClient creates a client. flags are appended to every copy.
func NewClient(binary, configPath string, flags []string, runner process.Runner) *Client {
	return &Client{
		binary:     binary,
		configPath: configPath,
		flags:      flags,
		runner:     runner,
		logger:     slog.Default(),
	}
}

// WithLogger sets the logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// Exists reports whether the file at remote path p exists. A listing failure
// counts as "not found" unless it was caused by cancellation.
func (c *Client) Exists(ctx context.Context, p string) (bool, error) {
	args := append([]string{"lsf", p, "--files-only"}, c.configArgs()...)
	out, err := c.runner.Run(ctx, c.binary, args...)
	if err != nil {
		if models.IsKilled(err) {
			return false, err
		}
		c.logger.DebugContext(ctx, "rclone lsf failed", slog.String("path", p), slog.String("error", err.Error()))
		return false, nil
	}

	first, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(first) == path.Base(p), nil
}

// Copy copies src into the directory dst.
func (c *Client) Copy(ctx context.Context, src, dst string) error {
	args := append([]string{"copy", src, dst}, c.configArgs()...)
	args = append(args, c.flags...)
	if _, err := c.runner.Run(ctx, c.binary, args...); err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return nil
}

func (c *Client) configArgs() []string {
	if c.configPath == "" {
		return nil
	}
	return []string{"--config", c.configPath}
}
