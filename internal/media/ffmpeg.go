package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/maauso/slidecast/internal/lineio"
)

// Static errors for media operations.
var (
	// ErrInvalidDimensions is returned when a requested frame size is not positive.
	ErrInvalidDimensions = errors.New("invalid dimensions: size must be positive")
	// ErrInvalidThreshold is returned when a scene threshold is not positive.
	ErrInvalidThreshold = errors.New("invalid scene threshold: must be positive")
	// ErrNoFrameData is returned when ffmpeg produced no frame for a sample request.
	ErrNoFrameData = errors.New("no frame data produced")
)

// Stderr parsers for the showinfo and metadata filters. Both filters log one
// record per frame; pts_time appears on the frame header line and the
// signalstats values on their own lines.
var (
	ptsTimeRe    = regexp.MustCompile(`pts_time:\s*([0-9]+(?:\.[0-9]+)?)`)
	signalStatRe = regexp.MustCompile(`lavfi\.signalstats\.(YAVG|YMIN|YMAX)=([0-9]+(?:\.[0-9]+)?)`)
)

// FFmpegProcessor implements Processor using the ffmpeg and ffprobe CLIs.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

var _ Processor = (*FFmpegProcessor)(nil)

// NewFFmpegProcessor creates a new FFmpegProcessor.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
func NewFFmpegProcessor(ffmpegPath, ffprobePath string) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegProcessor{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Probe inspects the input with ffprobe and returns whatever metadata it
// reports. Fields the prober cannot determine stay nil.
func (p *FFmpegProcessor) Probe(ctx context.Context, input string) (VideoInfo, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		input,
	}

	var stdout bytes.Buffer
	if err := p.run(ctx, "ffprobe", p.ffprobePath, args, &stdout, nil); err != nil {
		return VideoInfo{}, err
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var info VideoInfo
	if out.Format.Duration != "" {
		if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil && d > 0 {
			info.DurationSeconds = &d
		}
	}
	for _, s := range out.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			w, h := s.Width, s.Height
			info.Width = &w
			info.Height = &h
			break
		}
	}
	return info, nil
}

// probeOutput mirrors the ffprobe JSON fields the pipeline cares about.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

// DetectScenes runs ffmpeg's scene-change detector over [start, start+duration)
// and returns the reported frame times, relative to start. A start of 0 and
// duration of 0 scan the whole input. Decode-only: no output is written.
func (p *FFmpegProcessor) DetectScenes(ctx context.Context, input string, threshold, start, duration float64) ([]float64, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}

	// The quotes protect the comma inside gt() from the filtergraph parser.
	filter := fmt.Sprintf("select='gt(scene,%s)',showinfo", strconv.FormatFloat(threshold, 'f', -1, 64))

	args := []string{
		"-nostats", // Keep the progress spinner out of the parsed stderr stream
	}
	if start > 0 {
		args = append(args, "-ss", formatSeconds(start)) // Fast input seek to the window start
	}
	if duration > 0 {
		args = append(args, "-t", formatSeconds(duration)) // Stop reading at the window end
	}
	args = append(args,
		"-i", input,
		"-vf", filter,
		"-f", "null", // Decode and discard; only stderr matters
		"-",
	)

	var times []float64
	onLine := func(line string) {
		if !strings.Contains(line, "Parsed_showinfo") {
			return
		}
		m := ptsTimeRe.FindStringSubmatch(line)
		if m == nil {
			return
		}
		if t, err := strconv.ParseFloat(m[1], 64); err == nil {
			times = append(times, t)
		}
	}

	if err := p.run(ctx, "ffmpeg", p.ffmpegPath, args, nil, onLine); err != nil {
		return nil, err
	}
	return times, nil
}

// GrabFrame decodes the frame at the given time, downscaled to a size x size
// grayscale PNG streamed over stdout, and returns the decoded image.
func (p *FFmpegProcessor) GrabFrame(ctx context.Context, input string, at float64, size int) (image.Image, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size=%d", ErrInvalidDimensions, size)
	}

	// Area downscaling averages pixels, which is what the perceptual hash
	// wants; gray conversion drops chroma before hashing.
	filter := fmt.Sprintf("scale=%d:%d:flags=area,format=gray", size, size)

	args := []string{
		"-nostats",
		"-ss", formatSeconds(at), // Fast input seek
		"-i", input,
		"-frames:v", "1", // Single frame
		"-vf", filter,
		"-f", "image2pipe", // Stream the image instead of writing a file
		"-c:v", "png",
		"pipe:1",
	}

	var stdout bytes.Buffer
	if err := p.run(ctx, "ffmpeg", p.ffmpegPath, args, &stdout, nil); err != nil {
		return nil, err
	}
	if stdout.Len() == 0 {
		// Seeking past the end of the input yields zero frames and exit 0.
		return nil, fmt.Errorf("%w at %.3fs", ErrNoFrameData, at)
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode sampled frame: %w", err)
	}
	return img, nil
}

// ExtractFrame writes the frame at seekBase+offset to outPath as PNG and
// returns its luma statistics. The input seek lands on a keyframe before the
// target and the output seek decodes forward from there, which keeps remote
// stream extraction fast without sacrificing frame accuracy.
func (p *FFmpegProcessor) ExtractFrame(ctx context.Context, input string, seekBase, offset float64, outPath string) (FrameStats, error) {
	args := []string{
		"-nostats",
		"-y", // Overwrite output file without asking
	}
	if seekBase > 0 {
		args = append(args, "-ss", formatSeconds(seekBase)) // Fast input seek
	}
	args = append(args,
		"-i", input,
		"-ss", formatSeconds(offset), // Accurate output seek from the keyframe
		"-frames:v", "1",
		"-vf", "signalstats,metadata=mode=print", // Log per-frame luma stats to stderr
		outPath,
	)

	var stats FrameStats
	onLine := func(line string) {
		if !strings.Contains(line, "Parsed_metadata") {
			return
		}
		if m := ptsTimeRe.FindStringSubmatch(line); m != nil {
			if t, err := strconv.ParseFloat(m[1], 64); err == nil {
				stats.ReportedTime = &t
			}
			return
		}
		m := signalStatRe.FindStringSubmatch(line)
		if m == nil {
			return
		}
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return
		}
		switch m[1] {
		case "YAVG":
			stats.Brightness = v / 255.0
		case "YMIN":
			stats.Contrast -= v / 255.0
		case "YMAX":
			stats.Contrast += v / 255.0
		}
	}

	if err := p.run(ctx, "ffmpeg", p.ffmpegPath, args, nil, onLine); err != nil {
		return FrameStats{}, err
	}
	if stats.Contrast < 0 {
		stats.Contrast = 0
	}
	return stats, nil
}

// Version reports the first line of `ffmpeg -version`.
func (p *FFmpegProcessor) Version(ctx context.Context) (string, error) {
	var stdout bytes.Buffer
	if err := p.run(ctx, "ffmpeg", p.ffmpegPath, []string{"-version"}, &stdout, nil); err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(stdout.String(), "\n")
	return strings.TrimSpace(line), nil
}

// run executes a binary with the given arguments, streaming stderr through
// the optional line callback while retaining a bounded tail for diagnostics.
// A non-nil stdout receives the command's standard output.
func (p *FFmpegProcessor) run(ctx context.Context, name, bin string, args []string, stdout io.Writer, onLine func(string)) error {
	// #nosec G204 - binary paths are set by the application, not user input
	cmd := exec.CommandContext(ctx, bin, args...)

	tail := lineio.NewTailWriter(lineio.DefaultTailLimit)
	var lines *lineio.LineWriter
	if onLine != nil {
		lines = lineio.NewLineWriter(onLine)
		cmd.Stderr = io.MultiWriter(tail, lines)
	} else {
		cmd.Stderr = tail
	}
	if stdout != nil {
		cmd.Stdout = stdout
	}

	err := cmd.Run()
	if lines != nil {
		_ = lines.Close()
	}
	if err != nil {
		// Check if context was cancelled or timed out
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out: %w", name, ctx.Err())
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s cancelled: %w", name, ctx.Err())
		}
		return &CommandError{
			Name:   name,
			Args:   args,
			Stderr: tail.String(),
			Err:    err,
		}
	}
	return nil
}

// formatSeconds renders a timestamp the way ffmpeg expects it.
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// CommandError represents a failed ffmpeg or ffprobe invocation, including
// the tail of its stderr output.
type CommandError struct {
	Name   string
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s error: %v\nargs: %v\nstderr: %s", e.Name, e.Err, e.Args, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
