// Package ytdlp shells out to yt-dlp for stream URL resolution and video
// downloads.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/maauso/slidecast/internal/lineio"
)

// Static errors for yt-dlp operations.
var (
	// ErrURLRequired is returned when no URL is provided.
	ErrURLRequired = errors.New("ytdlp: url is required")
	// ErrNoStreamURL is returned when yt-dlp resolves no playable stream URL.
	ErrNoStreamURL = errors.New("ytdlp: no stream url returned")
	// ErrNoDownloadedFile is returned when a download completes but no output
	// file can be found.
	ErrNoDownloadedFile = errors.New("ytdlp: no downloaded file found")
)

// Client defines the interface for acquiring remote videos.
type Client interface {
	// ResolveStreamURL returns a direct media URL for the given page URL,
	// selected by a yt-dlp format expression.
	ResolveStreamURL(ctx context.Context, url, format string) (string, error)

	// Download fetches the video into dir and returns the downloaded file
	// path.
	Download(ctx context.Context, url, dir, format string) (string, error)

	// Version reports the installed yt-dlp version.
	Version(ctx context.Context) (string, error)
}

// CLIClient is the subprocess implementation of the Client interface.
type CLIClient struct {
	binPath   string
	extraArgs []string
}

var _ Client = (*CLIClient)(nil)

// ClientOption is a function that configures a CLIClient.
type ClientOption func(*CLIClient)

// WithExtraArgs appends extra arguments to every yt-dlp invocation, for
// things like cookies or rate limits.
func WithExtraArgs(args ...string) ClientOption {
	return func(c *CLIClient) {
		c.extraArgs = append(c.extraArgs, args...)
	}
}

// NewCLIClient creates a new yt-dlp CLI client.
// If binPath is empty, it defaults to "yt-dlp" (found via PATH).
func NewCLIClient(binPath string, opts ...ClientOption) *CLIClient {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	c := &CLIClient{binPath: binPath}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveStreamURL asks yt-dlp for a direct stream URL without downloading.
// For formats that resolve to separate video and audio URLs, the first
// (video) URL wins.
func (c *CLIClient) ResolveStreamURL(ctx context.Context, url, format string) (string, error) {
	if url == "" {
		return "", ErrURLRequired
	}

	args := []string{
		"-g", // Print the resolved media URL instead of downloading
		"-f", format,
		"--no-warnings",
		"--no-playlist",
	}
	args = append(args, c.extraArgs...)
	args = append(args, url)

	stdout, err := c.run(ctx, args)
	if err != nil {
		return "", err
	}

	streamURL := firstLine(stdout)
	if streamURL == "" {
		return "", ErrNoStreamURL
	}
	return streamURL, nil
}

// Download fetches the video into dir under a fixed "video.<ext>" name and
// returns the path of the downloaded file.
func (c *CLIClient) Download(ctx context.Context, url, dir, format string) (string, error) {
	if url == "" {
		return "", ErrURLRequired
	}

	args := []string{
		"-f", format,
		"-o", filepath.Join(dir, "video.%(ext)s"),
		"--no-warnings",
		"--no-playlist",
		"--no-progress",
	}
	args = append(args, c.extraArgs...)
	args = append(args, url)

	if _, err := c.run(ctx, args); err != nil {
		return "", err
	}

	return findDownloadedFile(dir)
}

// Version reports the installed yt-dlp version.
func (c *CLIClient) Version(ctx context.Context) (string, error) {
	stdout, err := c.run(ctx, []string{"--version"})
	if err != nil {
		return "", err
	}
	return firstLine(stdout), nil
}

// run executes yt-dlp and returns its stdout, retaining a bounded stderr
// tail for diagnostics.
func (c *CLIClient) run(ctx context.Context, args []string) (string, error) {
	// #nosec G204 - binPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.binPath, args...)

	var stdout bytes.Buffer
	tail := lineio.NewTailWriter(lineio.DefaultTailLimit)
	cmd.Stdout = &stdout
	cmd.Stderr = tail

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled or timed out
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("yt-dlp timed out: %w", ctx.Err())
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("yt-dlp cancelled: %w", ctx.Err())
		}
		return "", &CommandError{
			Args:   args,
			Stderr: tail.String(),
			Err:    err,
		}
	}
	return stdout.String(), nil
}

// firstLine returns the first non-empty line of s, trimmed.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// findDownloadedFile locates the "video.<ext>" file produced by a download,
// skipping partial-download leftovers.
func findDownloadedFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("ytdlp: scan download dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "video.") {
			continue
		}
		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") {
			continue
		}
		return filepath.Join(dir, name), nil
	}
	return "", fmt.Errorf("%w in %s", ErrNoDownloadedFile, dir)
}

// CommandError represents a failed yt-dlp invocation, including the tail of
// its stderr output.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("yt-dlp error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
