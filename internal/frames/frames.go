// Package frames extracts one still per selected timestamp and improves
// poor frames with a bounded re-sampling pass.
package frames

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/maauso/slidecast/internal/media"
	"github.com/maauso/slidecast/internal/pool"
	"github.com/maauso/slidecast/internal/timeline"
)

// SeekPad is how far before the target the fast input seek lands; the
// remaining distance is covered by an accurate output seek.
const SeekPad = 2.0

// Quality floors below which a frame is re-sampled.
const (
	minBrightness = 0.24
	minContrast   = 0.16
	// An early first slide often catches an intro fade, so it gets looser
	// floors and a smaller replacement margin.
	firstSlideBrightness = 0.58
	firstSlideContrast   = 0.2
	firstSlideWindow     = 30.0
)

// Refinement pass parameters.
const (
	refineWorkers       = 4
	refineStep          = 2.0
	refineRange         = 10.0
	refinePenaltyWeight = 0.05
	brightnessWeight    = 0.55
	contrastWeight      = 0.45
	scoreMargin         = 0.03
	firstSlideMargin    = 0.015
	renameAttempts      = 3
)

// Frame is one extracted still.
type Frame struct {
	// Index is the 1-based slide position.
	Index int
	// Timestamp is the selected time the frame represents. It is stable
	// across refinement.
	Timestamp float64
	// ActualTime is the reconciled decoder-reported time of the decoded
	// frame.
	ActualTime float64
	// Path is the PNG file location.
	Path string
	// Brightness and Contrast are the measured luma statistics, in [0,1].
	Brightness float64
	Contrast   float64
	// Version counts image replacements by the refinement pass.
	Version int
}

// FrameFileName names a slide image by zero-padded index and
// timestamp-in-seconds suffix.
func FrameFileName(index int, timestamp float64) string {
	return fmt.Sprintf("slide-%03d-%ds.png", index, int(math.Round(timestamp)))
}

// ReconcileTimestamp resolves a decoder-reported frame time that may be
// absolute or relative to the seek base: whichever interpretation lands
// closer to the requested time wins, ties favoring the relative one. With
// no reported value the requested time stands.
func ReconcileTimestamp(requested float64, reported *float64, seekBase float64) float64 {
	if reported == nil {
		return requested
	}
	absolute := *reported
	relative := seekBase + *reported
	if math.Abs(absolute-requested) < math.Abs(relative-requested) {
		return absolute
	}
	return relative
}

// Extractor decodes stills through a media.Processor with a bounded worker
// pool.
type Extractor struct {
	proc    media.Processor
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

// NewExtractor creates an Extractor. workers bounds concurrent decodes;
// timeout applies per subprocess invocation (0 disables it).
func NewExtractor(proc media.Processor, workers int, timeout time.Duration, logger *slog.Logger) *Extractor {
	if workers < 1 {
		workers = 1
	}
	return &Extractor{
		proc:    proc,
		workers: workers,
		timeout: timeout,
		logger:  logger,
	}
}

// Extract decodes one frame per timestamp into dir concurrently. Timestamps
// must be sorted; each is nudged inside its scene segment before decoding.
// Failed timestamps are dropped with a warning and the surviving frames are
// renumbered contiguously. onFrame, when non-nil, fires per successful
// frame in completion order, possibly from concurrent workers.
func (e *Extractor) Extract(ctx context.Context, input, dir string, timestamps []float64, segments []timeline.Segment, onFrame func(Frame)) []Frame {
	if len(timestamps) == 0 {
		return nil
	}

	results := pool.Map(ctx, e.workers, timestamps, func(ctx context.Context, i int, ts float64) (Frame, error) {
		f, err := e.extractOne(ctx, input, dir, i+1, ts, segments)
		if err != nil {
			return Frame{}, err
		}
		if onFrame != nil {
			onFrame(f)
		}
		return f, nil
	})

	frames := make([]Frame, 0, len(results))
	for i, r := range results {
		if r.Err != nil {
			e.logger.Warn("frame extraction failed",
				"index", i+1,
				"timestamp", timestamps[i],
				"error", r.Err,
			)
			// A failed decode may leave a partial output behind.
			_ = os.Remove(filepath.Join(dir, FrameFileName(i+1, timestamps[i])))
			continue
		}
		frames = append(frames, r.Value)
	}

	if len(frames) < len(timestamps) {
		frames = Renumber(frames, e.logger)
	}
	return frames
}

// extractOne decodes a single frame, two-stage seeking to the adjusted
// target.
func (e *Extractor) extractOne(ctx context.Context, input, dir string, index int, ts float64, segments []timeline.Segment) (Frame, error) {
	target := ts
	if seg, ok := timeline.FindSegment(segments, ts); ok {
		target = timeline.AdjustWithinSegment(ts, seg)
	}

	seekBase := math.Max(0, target-SeekPad)
	offset := target - seekBase
	path := filepath.Join(dir, FrameFileName(index, ts))

	callCtx, cancel := e.callContext(ctx)
	defer cancel()

	stats, err := e.proc.ExtractFrame(callCtx, input, seekBase, offset, path)
	if err != nil {
		return Frame{}, err
	}

	return Frame{
		Index:      index,
		Timestamp:  ts,
		ActualTime: ReconcileTimestamp(target, stats.ReportedTime, seekBase),
		Path:       path,
		Brightness: stats.Brightness,
		Contrast:   stats.Contrast,
	}, nil
}

// needsRefinement reports whether a frame falls below its quality floors,
// and the score margin a replacement must clear.
func needsRefinement(f Frame) (bool, float64) {
	if f.Index == 1 && f.Timestamp < firstSlideWindow {
		return f.Brightness < firstSlideBrightness || f.Contrast < firstSlideContrast, firstSlideMargin
	}
	return f.Brightness < minBrightness || f.Contrast < minContrast, scoreMargin
}

// frameScore rates a frame, discounted by how far it sits from the
// originally selected time.
func frameScore(brightness, contrast, timeDistance float64) float64 {
	penalty := refinePenaltyWeight * (math.Abs(timeDistance) / refineRange)
	return brightnessWeight*brightness + contrastWeight*contrast - penalty
}

// Refine re-samples frames below their quality floors at nearby offsets and
// atomically replaces an image only when a candidate clearly beats it. The
// frame's timestamp, index and file name never change; only the image
// bytes, measured statistics and version do. Candidate failures degrade to
// keeping the original frame.
func (e *Extractor) Refine(ctx context.Context, input string, frames []Frame, segments []timeline.Segment, onReplace func(Frame)) []Frame {
	for i := range frames {
		need, margin := needsRefinement(frames[i])
		if !need {
			continue
		}
		if replaced, ok := e.refineOne(ctx, input, frames[i], segments, margin); ok {
			frames[i] = replaced
			if onReplace != nil {
				onReplace(replaced)
			}
		}
	}
	return frames
}

// refineOne samples candidate times around one poor frame and swaps in the
// best candidate if it clears the margin.
func (e *Extractor) refineOne(ctx context.Context, input string, f Frame, segments []timeline.Segment, margin float64) (Frame, bool) {
	candidates := candidateTimes(f.Timestamp, segments)
	if len(candidates) == 0 {
		return Frame{}, false
	}

	type sampled struct {
		at    float64
		path  string
		stats media.FrameStats
	}

	workers := e.workers
	if workers > refineWorkers {
		workers = refineWorkers
	}
	results := pool.Map(ctx, workers, candidates, func(ctx context.Context, i int, at float64) (sampled, error) {
		path := filepath.Join(filepath.Dir(f.Path), fmt.Sprintf(".refine-%03d-%d.png", f.Index, i))
		seekBase := math.Max(0, at-SeekPad)

		callCtx, cancel := e.callContext(ctx)
		defer cancel()

		stats, err := e.proc.ExtractFrame(callCtx, input, seekBase, at-seekBase, path)
		if err != nil {
			_ = os.Remove(path)
			return sampled{}, err
		}
		return sampled{at: at, path: path, stats: stats}, nil
	})

	current := frameScore(f.Brightness, f.Contrast, 0)
	best := -1
	bestScore := current
	for i, r := range results {
		if r.Err != nil {
			e.logger.Debug("refinement candidate failed",
				"index", f.Index,
				"at", candidates[i],
				"error", r.Err,
			)
			continue
		}
		s := frameScore(r.Value.stats.Brightness, r.Value.stats.Contrast, r.Value.at-f.Timestamp)
		if s > bestScore {
			best = i
			bestScore = s
		}
	}

	replaced := false
	if best >= 0 && bestScore-current >= margin {
		winner := results[best].Value
		if err := replaceFile(winner.path, f.Path); err != nil {
			e.logger.Warn("failed to replace refined frame", "path", f.Path, "error", err)
		} else {
			f.ActualTime = winner.at
			f.Brightness = winner.stats.Brightness
			f.Contrast = winner.stats.Contrast
			f.Version++
			replaced = true
			e.logger.Info("refined slide image",
				"index", f.Index,
				"timestamp", f.Timestamp,
				"sampledAt", winner.at,
				"score", bestScore,
			)
		}
	}

	// Temp candidates must never outlive the pass; the output directory has
	// to match the manifest exactly.
	for i, r := range results {
		if r.Err != nil {
			continue
		}
		if replaced && i == best {
			continue
		}
		_ = os.Remove(r.Value.path)
	}

	return f, replaced
}

// candidateTimes builds the re-sample offsets around ts in 2s steps up to
// +/-10s, each nudged inside the enclosing scene segment, deduplicated.
func candidateTimes(ts float64, segments []timeline.Segment) []float64 {
	seg, hasSeg := timeline.FindSegment(segments, ts)

	var out []float64
	seen := map[float64]bool{ts: true}
	for d := refineStep; d <= refineRange; d += refineStep {
		for _, at := range []float64{ts - d, ts + d} {
			if at < 0 {
				continue
			}
			if hasSeg {
				at = timeline.AdjustWithinSegment(at, seg)
			}
			if seen[at] {
				continue
			}
			seen[at] = true
			out = append(out, at)
		}
	}
	return out
}

// replaceFile atomically swaps dst for src, retrying on the rare rename
// collision.
func replaceFile(src, dst string) error {
	var err error
	for attempt := 0; attempt < renameAttempts; attempt++ {
		if err = os.Rename(src, dst); err == nil {
			return nil
		}
		_ = os.Remove(dst)
	}
	return err
}

// Renumber makes frame indices contiguous starting at 1, renaming image
// files to match their new index. Input must be ordered by selection time.
// On a rename failure the old path is kept so the manifest still points at
// a real file.
func Renumber(frames []Frame, logger *slog.Logger) []Frame {
	out := make([]Frame, 0, len(frames))
	for i, f := range frames {
		want := i + 1
		if f.Index != want {
			newPath := filepath.Join(filepath.Dir(f.Path), FrameFileName(want, f.Timestamp))
			if err := os.Rename(f.Path, newPath); err != nil {
				logger.Warn("failed to renumber frame file", "from", f.Path, "to", newPath, "error", err)
			} else {
				f.Path = newPath
			}
			f.Index = want
		}
		out = append(out, f)
	}
	return out
}

// Cap truncates to maxCount frames, deleting the dropped image files.
func Cap(frames []Frame, maxCount int, logger *slog.Logger) ([]Frame, int) {
	if maxCount <= 0 || len(frames) <= maxCount {
		return frames, 0
	}

	for _, f := range frames[maxCount:] {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove capped frame file", "path", f.Path, "error", err)
		}
	}
	return frames[:maxCount], len(frames) - maxCount
}

// callContext derives the per-subprocess context.
func (e *Extractor) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}
