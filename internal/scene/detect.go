package scene

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/maauso/slidecast/internal/media"
	"github.com/maauso/slidecast/internal/pool"
)

// segmentSeconds is the target width of one concurrent detection window.
const segmentSeconds = 60.0

// grabSize is the decode size of calibration samples before hashing.
const grabSize = 64

// Static errors for scene detection.
var (
	// ErrUnknownDuration is returned when calibration is requested without a
	// probed duration to spread samples over.
	ErrUnknownDuration = errors.New("scene: duration unknown, cannot calibrate")
	// ErrNoSamples is returned when no calibration sample could be decoded.
	ErrNoSamples = errors.New("scene: no calibration samples decoded")
	// ErrDetectionFailed is returned when every detection segment failed.
	ErrDetectionFailed = errors.New("scene: all detection segments failed")
)

// Detector probes, calibrates and detects scene changes through a
// media.Processor. Segment passes run concurrently; every subprocess call
// carries its own timeout.
type Detector struct {
	proc    media.Processor
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

// NewDetector creates a Detector. workers bounds the concurrent segment
// passes; timeout applies per subprocess invocation (0 disables it).
func NewDetector(proc media.Processor, workers int, timeout time.Duration, logger *slog.Logger) *Detector {
	if workers < 1 {
		workers = 1
	}
	return &Detector{
		proc:    proc,
		workers: workers,
		timeout: timeout,
		logger:  logger,
	}
}

// Probe returns whatever metadata the prober reports for the input. A
// failing prober yields an empty VideoInfo, never an error: metadata here is
// advisory.
func (d *Detector) Probe(ctx context.Context, input string) media.VideoInfo {
	callCtx, cancel := d.callContext(ctx)
	defer cancel()

	info, err := d.proc.Probe(callCtx, input)
	if err != nil {
		d.logger.Warn("probe failed, continuing without metadata", "error", err)
		return media.VideoInfo{}
	}
	return info
}

// Calibrate samples frames across the 5%-95% duration window, hashes them
// and derives a scene threshold from the consecutive hash distances.
// Individual sample failures are skipped; calibration fails only when no
// sample decodes at all.
func (d *Detector) Calibrate(ctx context.Context, input string, duration float64, samples int) (Calibration, error) {
	if duration <= 0 {
		return Calibration{}, ErrUnknownDuration
	}
	if samples < 1 {
		samples = 1
	}

	var hashes []Hash
	for _, at := range sampleTimes(duration, samples) {
		img, err := d.grabFrame(ctx, input, at)
		if err != nil {
			if ctx.Err() != nil {
				return Calibration{}, err
			}
			d.logger.Debug("calibration sample failed", "at", at, "error", err)
			continue
		}
		hashes = append(hashes, HashImage(img))
	}

	if len(hashes) == 0 {
		return Calibration{}, ErrNoSamples
	}
	return CalibrateFromRatios(ConsecutiveDistances(hashes)), nil
}

// span is one concurrent detection window.
type span struct {
	Start    float64
	Duration float64
}

// buildSpans splits a duration into min(workers, ceil(duration/60s))
// contiguous windows. An unknown duration yields a single full-input pass.
func buildSpans(duration float64, workers int) []span {
	if duration <= 0 {
		return []span{{Start: 0, Duration: 0}}
	}

	count := int(math.Ceil(duration / segmentSeconds))
	if count > workers {
		count = workers
	}
	if count < 1 {
		count = 1
	}

	width := duration / float64(count)
	spans := make([]span, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * width
		w := width
		if i == count-1 {
			w = duration - start
		}
		spans = append(spans, span{Start: start, Duration: w})
	}
	return spans
}

// Detect runs one scene pass per window concurrently and returns the merged,
// sorted timestamps. Window passes are independent because scene scoring
// only compares consecutive-frame deltas. Failed windows are skipped with a
// warning; detection fails only when every window failed.
func (d *Detector) Detect(ctx context.Context, input string, threshold, duration float64) ([]float64, error) {
	spans := buildSpans(duration, d.workers)

	results := pool.Map(ctx, d.workers, spans, func(ctx context.Context, _ int, s span) ([]float64, error) {
		callCtx, cancel := d.callContext(ctx)
		defer cancel()

		times, err := d.proc.DetectScenes(callCtx, input, threshold, s.Start, s.Duration)
		if err != nil {
			return nil, err
		}
		// Reported times are relative to the window start.
		for i := range times {
			times[i] += s.Start
		}
		return times, nil
	})

	merged := make([]float64, 0)
	var firstErr error
	failed := 0
	for i, r := range results {
		if r.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = r.Err
			}
			d.logger.Warn("scene detection window failed",
				"window", i,
				"start", spans[i].Start,
				"error", r.Err,
			)
			continue
		}
		merged = append(merged, r.Value...)
	}
	if failed == len(results) {
		return nil, fmt.Errorf("%w: %w", ErrDetectionFailed, firstErr)
	}

	sort.Float64s(merged)
	return merged, nil
}

// Outcome reports one detection run plus the threshold that produced it.
type Outcome struct {
	Timestamps         []float64
	EffectiveThreshold float64
	RetryUsed          bool
}

// DetectWithRetry runs Detect at the base threshold and, on zero results,
// retries the full segmented pass once at a halved threshold. An empty
// outcome after the retry is not an error; callers decide whether another
// fallback exists.
func (d *Detector) DetectWithRetry(ctx context.Context, input string, threshold, duration float64) (Outcome, error) {
	times, err := d.Detect(ctx, input, threshold, duration)
	if err != nil {
		return Outcome{}, err
	}
	if len(times) > 0 {
		return Outcome{Timestamps: times, EffectiveThreshold: threshold}, nil
	}

	lower := RetryThreshold(threshold)
	if lower >= threshold {
		// Already at the floor; an identical pass cannot find more.
		return Outcome{EffectiveThreshold: threshold}, nil
	}

	d.logger.Info("no scene changes found, retrying at lower threshold",
		"threshold", threshold,
		"retryThreshold", lower,
	)
	times, err = d.Detect(ctx, input, lower, duration)
	if err != nil {
		return Outcome{}, err
	}
	if len(times) == 0 {
		return Outcome{EffectiveThreshold: threshold}, nil
	}
	return Outcome{Timestamps: times, EffectiveThreshold: lower, RetryUsed: true}, nil
}

// RetryThreshold halves a threshold for the zero-result retry, rounded to
// two decimals and floored at MinThreshold.
func RetryThreshold(threshold float64) float64 {
	return math.Max(MinThreshold, math.Round(threshold*0.5*100)/100)
}

func (d *Detector) grabFrame(ctx context.Context, input string, at float64) (image.Image, error) {
	callCtx, cancel := d.callContext(ctx)
	defer cancel()
	return d.proc.GrabFrame(callCtx, input, at, grabSize)
}

// callContext derives the per-subprocess context.
func (d *Detector) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}
