// Package media provides the ffmpeg/ffprobe layer for video analysis and
// frame extraction.
package media

import (
	"context"
	"image"
)

// VideoInfo carries probed stream metadata. Every field is advisory: a
// missing or failing prober leaves the corresponding field nil and the
// pipeline keeps working with the remaining hints.
type VideoInfo struct {
	// DurationSeconds is the container duration, when known.
	DurationSeconds *float64 `json:"durationSeconds,omitempty"`
	// Width and Height come from the first video stream, when present.
	Width  *int `json:"width,omitempty"`
	Height *int `json:"height,omitempty"`
}

// FrameStats describes a single extracted frame.
type FrameStats struct {
	// Brightness is the mean luma normalized to [0,1].
	Brightness float64
	// Contrast is the luma span (max-min) normalized to [0,1].
	Contrast float64
	// ReportedTime is the decoder-reported pts_time of the frame, relative
	// to the seek origin of the extracting command. Nil when the decoder
	// did not report one.
	ReportedTime *float64
}

// Processor defines the interface for video probing, scene detection and
// frame extraction. Implementations shell out to ffmpeg and ffprobe.
type Processor interface {
	// Probe inspects a video and returns its metadata. The input may be a
	// local file or a remote stream URL.
	Probe(ctx context.Context, input string) (VideoInfo, error)

	// DetectScenes runs a scene-change pass over a window of the input and
	// returns the detected change times in seconds, relative to the start
	// of the window. A start of 0 and duration of 0 scan the whole input.
	DetectScenes(ctx context.Context, input string, threshold, start, duration float64) ([]float64, error)

	// GrabFrame decodes a single frame at the given time, downscaled to a
	// size x size grayscale image. Used for perceptual-hash sampling.
	GrabFrame(ctx context.Context, input string, at float64, size int) (image.Image, error)

	// ExtractFrame writes the frame at seekBase+offset to outPath as PNG
	// and returns its measured statistics. The two-stage seek keeps remote
	// stream extraction fast while staying frame-accurate near the target.
	ExtractFrame(ctx context.Context, input string, seekBase, offset float64, outPath string) (FrameStats, error)

	// Version reports the ffmpeg version banner line.
	Version(ctx context.Context) (string, error)
}
