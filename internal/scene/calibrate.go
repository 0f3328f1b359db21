package scene

import (
	"math"
	"slices"
)

// Threshold bounds for scene-change sensitivity.
const (
	// MinThreshold is the lowest usable scene-change threshold.
	MinThreshold = 0.05
	// MaxThreshold is the highest usable scene-change threshold.
	MaxThreshold = 0.3
)

// Quantile cutoffs that override the derived threshold.
const (
	// highMotionP75 marks footage whose samples differ so much that only the
	// floor threshold still separates real cuts from motion noise.
	highMotionP75 = 0.12
	// lowMotionP90 marks near-static footage, pinned to the floor threshold.
	lowMotionP90 = 0.05
)

// Calibration is the outcome of threshold auto-tuning.
type Calibration struct {
	// Threshold is the derived scene-change threshold, always within
	// [MinThreshold, MaxThreshold].
	Threshold float64
	// Confidence estimates how well-separated the sampled frames were,
	// in [0,1].
	Confidence float64
}

// CalibrateFromRatios derives a scene threshold and confidence from the
// ordered Hamming-distance ratios between consecutive frame samples. It is a
// pure function: the same ratios always produce the same calibration.
func CalibrateFromRatios(ratios []float64) Calibration {
	if len(ratios) == 0 {
		return Calibration{Threshold: MinThreshold, Confidence: 0}
	}

	sorted := slices.Clone(ratios)
	slices.Sort(sorted)

	median := quantile(sorted, 0.5)
	p75 := quantile(sorted, 0.75)
	p90 := quantile(sorted, 0.9)

	threshold := clamp(max3(median*0.15, p75*0.2, p90*0.25), MinThreshold, MaxThreshold)
	if p75 >= highMotionP75 {
		threshold = math.Min(threshold, MinThreshold)
	}
	if p90 < lowMotionP90 {
		threshold = math.Max(threshold, MinThreshold)
	}

	confidence := clamp(p75/0.25, 0, 1)
	if len(ratios) < 2 {
		confidence = clamp(sorted[len(sorted)-1]/0.25, 0, 1)
	}

	return Calibration{Threshold: threshold, Confidence: confidence}
}

// ConsecutiveDistances returns the pairwise distance ratios between
// consecutive hashes.
func ConsecutiveDistances(hashes []Hash) []float64 {
	if len(hashes) < 2 {
		return nil
	}
	ratios := make([]float64, 0, len(hashes)-1)
	for i := 1; i < len(hashes); i++ {
		ratios = append(ratios, hashes[i-1].Distance(hashes[i]))
	}
	return ratios
}

// sampleTimes spreads count sample points evenly across the 5%-95% window
// of the duration.
func sampleTimes(duration float64, count int) []float64 {
	if count < 1 {
		count = 1
	}
	start := duration * 0.05
	end := duration * 0.95
	if count == 1 {
		return []float64{(start + end) / 2}
	}

	step := (end - start) / float64(count-1)
	times := make([]float64, 0, count)
	for i := 0; i < count; i++ {
		times = append(times, start+float64(i)*step)
	}
	return times
}

// quantile interpolates the q-th quantile of sorted values.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func max3(a, b, c float64) float64 {
	return math.Max(a, math.Max(b, c))
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
