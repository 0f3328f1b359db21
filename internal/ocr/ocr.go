// Package ocr recognizes slide text by shelling out to tesseract.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/maauso/slidecast/internal/lineio"
	"github.com/maauso/slidecast/internal/pool"
)

// pageSegMode 6 assumes a single uniform block of text, which fits slide
// layouts far better than tesseract's automatic segmentation.
const pageSegMode = "6"

// Cleanup bounds. Lines shorter than minLineRunes or tokens longer than
// maxTokenRunes are treated as recognition noise.
const (
	minLineRunes  = 2
	maxTokenRunes = 20
)

// Text is the recognized content of one image.
type Text struct {
	Content    string
	Confidence float64
}

// Runner recognizes text in a single image.
type Runner interface {
	// Recognize returns the cleaned text of one image and a confidence
	// score in [0,1].
	Recognize(ctx context.Context, imagePath string) (Text, error)
	// Version reports the engine version line.
	Version(ctx context.Context) (string, error)
}

// TesseractRunner runs the tesseract CLI.
type TesseractRunner struct {
	binPath string
}

var _ Runner = (*TesseractRunner)(nil)

// NewTesseractRunner creates a runner for the given binary path. An empty
// path falls back to "tesseract" on PATH.
func NewTesseractRunner(binPath string) *TesseractRunner {
	if binPath == "" {
		binPath = "tesseract"
	}
	return &TesseractRunner{binPath: binPath}
}

// Recognize OCRs one image to stdout and cleans the output. Confidence is
// derived from the cleaned text itself; tesseract's own estimates are not
// consulted.
func (t *TesseractRunner) Recognize(ctx context.Context, imagePath string) (Text, error) {
	args := []string{
		imagePath,
		"stdout", // recognized text goes to stdout, no output file
		"--psm", pageSegMode,
	}

	var stdout bytes.Buffer
	if err := t.run(ctx, args, &stdout); err != nil {
		return Text{}, err
	}

	cleaned := CleanText(stdout.String())
	return Text{Content: cleaned, Confidence: Confidence(cleaned)}, nil
}

// Version reports the tesseract version line. Older releases print it to
// stderr, newer ones to stdout; both are accepted.
func (t *TesseractRunner) Version(ctx context.Context) (string, error) {
	var stdout bytes.Buffer
	tail := lineio.NewTailWriter(lineio.DefaultTailLimit)

	// #nosec G204 -- binary path comes from validated configuration.
	cmd := exec.CommandContext(ctx, t.binPath, "--version")
	cmd.Stdout = &stdout
	cmd.Stderr = tail

	if err := cmd.Run(); err != nil {
		return "", t.wrap(ctx, []string{"--version"}, tail.String(), err)
	}

	line := firstLine(stdout.String())
	if line == "" {
		line = firstLine(tail.String())
	}
	return line, nil
}

func (t *TesseractRunner) run(ctx context.Context, args []string, stdout *bytes.Buffer) error {
	tail := lineio.NewTailWriter(lineio.DefaultTailLimit)

	// #nosec G204 -- binary path comes from validated configuration.
	cmd := exec.CommandContext(ctx, t.binPath, args...)
	cmd.Stdout = stdout
	cmd.Stderr = tail

	if err := cmd.Run(); err != nil {
		return t.wrap(ctx, args, tail.String(), err)
	}
	return nil
}

func (t *TesseractRunner) wrap(ctx context.Context, args []string, stderr string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("tesseract timed out: %w", context.DeadlineExceeded)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("tesseract cancelled: %w", ctx.Err())
	}
	return &CommandError{Args: args, Stderr: stderr, Err: err}
}

// CleanText filters raw engine output down to plausible slide text: tokens
// longer than 20 runes are dropped as glyph noise, then lines shorter than
// 2 runes or without a single alphanumeric rune are dropped.
func CleanText(raw string) string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		var kept []string
		for _, tok := range strings.Fields(line) {
			if utf8.RuneCountInString(tok) > maxTokenRunes {
				continue
			}
			kept = append(kept, tok)
		}

		joined := strings.Join(kept, " ")
		if utf8.RuneCountInString(joined) < minLineRunes {
			continue
		}
		if !containsAlnum(joined) {
			continue
		}
		lines = append(lines, joined)
	}
	return strings.Join(lines, "\n")
}

// Confidence scores cleaned text as its alphanumeric rune fraction. Empty
// text scores zero.
func Confidence(text string) float64 {
	if text == "" {
		return 0
	}
	total, alnum := 0, 0
	for _, r := range text {
		total++
		if isAlnum(r) {
			alnum++
		}
	}
	return float64(alnum) / float64(total)
}

func containsAlnum(s string) bool {
	return strings.ContainsFunc(s, isAlnum)
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// firstLine returns the first non-empty trimmed line of s.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// Batch recognizes many images concurrently through one Runner.
type Batch struct {
	runner  Runner
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

// NewBatch creates a Batch. workers bounds concurrent engine processes;
// timeout applies per image (0 disables it).
func NewBatch(runner Runner, workers int, timeout time.Duration, logger *slog.Logger) *Batch {
	if workers < 1 {
		workers = 1
	}
	return &Batch{
		runner:  runner,
		workers: workers,
		timeout: timeout,
		logger:  logger,
	}
}

// Run recognizes every image; result i corresponds to paths[i]. A failed
// image degrades to empty text with zero confidence, the batch always
// completes.
func (b *Batch) Run(ctx context.Context, paths []string) []Text {
	results := pool.Map(ctx, b.workers, paths, func(ctx context.Context, _ int, path string) (Text, error) {
		callCtx, cancel := b.callContext(ctx)
		defer cancel()
		return b.runner.Recognize(callCtx, path)
	})

	out := make([]Text, len(results))
	for i, r := range results {
		if r.Err != nil {
			b.logger.Warn("ocr failed, keeping slide without text",
				"image", paths[i],
				"error", r.Err,
			)
			continue
		}
		out[i] = r.Value
	}
	return out
}

func (b *Batch) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

// CommandError carries the context of a failed tesseract invocation.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("tesseract error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
