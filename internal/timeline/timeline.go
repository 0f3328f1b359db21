// Package timeline selects the slide timestamps for a run: detected scene
// cuts merged with a uniform fallback grid, snapped, spaced and capped, plus
// the scene-bounded sampling windows derived from the cuts.
package timeline

import (
	"math"
	"slices"
	"sort"
)

// Grid sizing bounds for the uniform fallback grid.
const (
	minGridTarget = 6
	maxGridTarget = 20
	// gridIntervalSeconds is the nominal spacing the grid aims for before
	// minDuration takes over.
	gridIntervalSeconds = 30.0
)

// Snap-window bounds around each grid point, in seconds.
const (
	minSnapWindow = 2.0
	maxSnapWindow = 10.0
)

// Edge pads for sampling inside a scene segment, in seconds.
const (
	minPadSeconds = 0.2
	maxPadSeconds = 1.5
)

// Select produces the final ordered timestamps for a run: detected cuts
// unioned with a snapped fallback grid, deduplicated, spaced at least
// minDuration apart and capped at maxSlides. The second return value is the
// number of timestamps dropped by the cap.
func Select(cuts []float64, duration, minDuration float64, maxSlides int) ([]float64, int) {
	spacing := gridSpacing(duration, minDuration, maxSlides)
	grid := BuildIntervalGrid(duration, minDuration, maxSlides)
	snapped := SnapToScenes(grid, cuts, minDuration, spacing)

	candidates := slices.Clone(cuts)
	candidates = append(candidates, snapped...)

	merged := MergeClose(candidates, minDuration)
	kept := FilterByMinDuration(merged, minDuration)
	return CapTimestamps(kept, maxSlides)
}

// BuildIntervalGrid returns uniform fallback timestamps used to supplement
// sparse scene cuts. Points sit mid-interval so neither clip edge is
// sampled.
func BuildIntervalGrid(duration, minDuration float64, maxSlides int) []float64 {
	if duration <= 0 {
		return nil
	}

	spacing := gridSpacing(duration, minDuration, maxSlides)
	points := make([]float64, 0, int(duration/spacing)+1)
	for t := spacing / 2; t < duration; t += spacing {
		points = append(points, t)
	}
	return points
}

// gridSpacing derives the fallback-grid spacing: the duration split into a
// 6..20 point target (bounded by maxSlides), floored at minDuration.
func gridSpacing(duration, minDuration float64, maxSlides int) float64 {
	target := int(math.Round(duration / gridIntervalSeconds))
	if target < minGridTarget {
		target = minGridTarget
	}
	if target > maxGridTarget {
		target = maxGridTarget
	}
	if maxSlides > 0 && target > maxSlides {
		target = maxSlides
	}
	return math.Max(minDuration, duration/float64(target))
}

// SnapWindow returns the cut-search radius for a grid of the given spacing.
func SnapWindow(intervalSeconds float64) float64 {
	return clamp(intervalSeconds*0.35, minSnapWindow, maxSnapWindow)
}

// SnapToScenes moves each grid point to the nearest scene cut within the
// snap window, preferring a real transition over an arbitrary instant. The
// raw grid point is kept when the snapped one would land closer than
// minDuration to the previous pick.
func SnapToScenes(gridPoints, sceneCuts []float64, minDuration, intervalSeconds float64) []float64 {
	if len(gridPoints) == 0 {
		return nil
	}
	if len(sceneCuts) == 0 {
		return slices.Clone(gridPoints)
	}

	cuts := slices.Clone(sceneCuts)
	slices.Sort(cuts)
	window := SnapWindow(intervalSeconds)

	out := make([]float64, 0, len(gridPoints))
	prev := math.Inf(-1)
	for _, p := range gridPoints {
		pick := p
		if c, ok := nearestWithin(cuts, p, window); ok && c-prev >= minDuration {
			pick = c
		}
		out = append(out, pick)
		prev = pick
	}
	return out
}

// nearestWithin finds the cut closest to t within the window radius.
func nearestWithin(sortedCuts []float64, t, window float64) (float64, bool) {
	idx := sort.SearchFloat64s(sortedCuts, t)

	best := 0.0
	bestDist := math.Inf(1)
	for _, i := range []int{idx - 1, idx} {
		if i < 0 || i >= len(sortedCuts) {
			continue
		}
		if d := math.Abs(sortedCuts[i] - t); d < bestDist {
			best = sortedCuts[i]
			bestDist = d
		}
	}
	if bestDist > window {
		return 0, false
	}
	return best, true
}

// MergeClose sorts and deduplicates timestamps, keeping the earliest of any
// cluster spaced closer than max(0.1, minDuration*0.5).
func MergeClose(timestamps []float64, minDuration float64) []float64 {
	return keepSpaced(timestamps, math.Max(0.1, minDuration*0.5))
}

// FilterByMinDuration keeps the earliest timestamp of any run spaced closer
// than minDuration. A non-positive minDuration only sorts.
func FilterByMinDuration(timestamps []float64, minDuration float64) []float64 {
	return keepSpaced(timestamps, minDuration)
}

// keepSpaced sorts the input and greedily keeps timestamps at least eps
// apart, anchored on the last kept one.
func keepSpaced(timestamps []float64, eps float64) []float64 {
	if len(timestamps) == 0 {
		return nil
	}

	sorted := slices.Clone(timestamps)
	slices.Sort(sorted)
	if eps <= 0 {
		return sorted
	}

	out := make([]float64, 0, len(sorted))
	out = append(out, sorted[0])
	for _, t := range sorted[1:] {
		if t-out[len(out)-1] >= eps {
			out = append(out, t)
		}
	}
	return out
}

// CapTimestamps truncates to at most maxCount entries, returning how many
// were dropped. A non-positive maxCount means unbounded.
func CapTimestamps(timestamps []float64, maxCount int) ([]float64, int) {
	if maxCount <= 0 || len(timestamps) <= maxCount {
		return timestamps, 0
	}
	return timestamps[:maxCount], len(timestamps) - maxCount
}

// Segment is a contiguous interval between two consecutive deduplicated
// scene boundaries (or the clip's ends). A nil End means the clip end is
// unknown.
type Segment struct {
	Start float64
	End   *float64
}

// Length returns the segment duration, or 0 when the end is unknown.
func (s Segment) Length() float64 {
	if s.End == nil {
		return 0
	}
	return *s.End - s.Start
}

// BuildSegments derives [start,end) windows from the cut list. duration
// closes the final window when known; otherwise the final window stays
// open-ended.
func BuildSegments(cuts []float64, duration float64) []Segment {
	sorted := slices.Clone(cuts)
	slices.Sort(sorted)

	unique := make([]float64, 0, len(sorted))
	for _, c := range sorted {
		if c <= 0 {
			continue
		}
		if duration > 0 && c >= duration {
			continue
		}
		if len(unique) > 0 && c == unique[len(unique)-1] {
			continue
		}
		unique = append(unique, c)
	}

	segments := make([]Segment, 0, len(unique)+1)
	start := 0.0
	for _, c := range unique {
		end := c
		segments = append(segments, Segment{Start: start, End: &end})
		start = c
	}
	if duration > 0 {
		if duration > start {
			end := duration
			segments = append(segments, Segment{Start: start, End: &end})
		}
	} else {
		segments = append(segments, Segment{Start: start})
	}
	return segments
}

// FindSegment returns the segment containing t. A t at or past the final
// boundary falls into the last segment.
func FindSegment(segments []Segment, t float64) (Segment, bool) {
	if len(segments) == 0 || t < 0 {
		return Segment{}, false
	}
	for _, s := range segments {
		if t >= s.Start && (s.End == nil || t < *s.End) {
			return s, true
		}
	}

	last := segments[len(segments)-1]
	if t >= last.Start {
		return last, true
	}
	return Segment{}, false
}

// AdjustWithinSegment nudges t inward from the segment edges so sampling
// never lands within a breath of a cut. The pad grows with segment length,
// bounded to [0.2, 1.5] seconds; segments too short to pad sample their
// midpoint. Open-ended segments pad only from the start.
func AdjustWithinSegment(t float64, seg Segment) float64 {
	if seg.End == nil {
		return math.Max(t, seg.Start+minPadSeconds)
	}

	length := *seg.End - seg.Start
	pad := clamp(length*0.08, minPadSeconds, maxPadSeconds)
	if length < 2*pad {
		return seg.Start + length/2
	}
	return clamp(t, seg.Start+pad, *seg.End-pad)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
