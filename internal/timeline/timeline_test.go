package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildIntervalGrid(t *testing.T) {
	t.Run("long video spaces at the nominal interval", func(t *testing.T) {
		got := BuildIntervalGrid(600, 10, 20)
		require.Len(t, got, 20)
		assert.InDelta(t, 15.0, got[0], 1e-9)
		for i := 1; i < len(got); i++ {
			assert.InDelta(t, 30.0, got[i]-got[i-1], 1e-9)
		}
	})

	t.Run("short video still targets six points", func(t *testing.T) {
		got := BuildIntervalGrid(120, 1, 0)
		require.Len(t, got, 6)
		assert.InDelta(t, 10.0, got[0], 1e-9)
		assert.InDelta(t, 110.0, got[5], 1e-9)
	})

	t.Run("minDuration floors the spacing", func(t *testing.T) {
		got := BuildIntervalGrid(60, 25, 10)
		require.Len(t, got, 2)
		assert.InDelta(t, 12.5, got[0], 1e-9)
		assert.InDelta(t, 37.5, got[1], 1e-9)
	})

	t.Run("maxSlides bounds the target", func(t *testing.T) {
		got := BuildIntervalGrid(600, 1, 4)
		require.Len(t, got, 4)
		assert.InDelta(t, 75.0, got[0], 1e-9)
	})

	t.Run("unknown duration yields no grid", func(t *testing.T) {
		assert.Nil(t, BuildIntervalGrid(0, 10, 20))
	})
}

func TestSnapWindow(t *testing.T) {
	tests := []struct {
		interval float64
		want     float64
	}{
		{30, 10},
		{20, 7},
		{5, 2},
		{100, 10},
	}
	for _, tc := range tests {
		assert.InDelta(t, tc.want, SnapWindow(tc.interval), 1e-9, "interval %v", tc.interval)
	}
}

func TestSnapToScenes(t *testing.T) {
	t.Run("snaps to nearby cuts", func(t *testing.T) {
		got := SnapToScenes([]float64{15, 45, 75}, []float64{17, 43}, 10, 30)
		assert.Equal(t, []float64{17, 43, 75}, got)
	})

	t.Run("keeps raw point when snap would crowd the previous pick", func(t *testing.T) {
		got := SnapToScenes([]float64{10, 20}, []float64{12, 21}, 10, 30)
		assert.Equal(t, []float64{12, 20}, got)
	})

	t.Run("no cuts passes the grid through", func(t *testing.T) {
		got := SnapToScenes([]float64{15, 45}, nil, 10, 30)
		assert.Equal(t, []float64{15, 45}, got)
	})

	t.Run("empty grid", func(t *testing.T) {
		assert.Nil(t, SnapToScenes(nil, []float64{10}, 10, 30))
	})
}

func TestMergeClose(t *testing.T) {
	t.Run("merges clusters keeping the earliest", func(t *testing.T) {
		got := MergeClose([]float64{5.0, 5.05, 5.2, 10}, 4)
		assert.Equal(t, []float64{5.0, 10.0}, got)
	})

	t.Run("zero minDuration still dedupes at the floor", func(t *testing.T) {
		got := MergeClose([]float64{1.0, 1.05, 1.2}, 0)
		assert.Equal(t, []float64{1.0, 1.2}, got)
	})

	t.Run("sorts unsorted input", func(t *testing.T) {
		got := MergeClose([]float64{30, 10, 20}, 2)
		assert.Equal(t, []float64{10.0, 20.0, 30.0}, got)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, MergeClose(nil, 5))
	})
}

func TestFilterByMinDuration(t *testing.T) {
	t.Run("enforces spacing", func(t *testing.T) {
		got := FilterByMinDuration([]float64{0, 3, 7, 20}, 5)
		assert.Equal(t, []float64{0.0, 7.0, 20.0}, got)
	})

	t.Run("non-positive minDuration only sorts", func(t *testing.T) {
		got := FilterByMinDuration([]float64{3, 1, 2}, 0)
		assert.Equal(t, []float64{1.0, 2.0, 3.0}, got)
	})
}

func TestCapTimestamps(t *testing.T) {
	t.Run("caps and counts drops", func(t *testing.T) {
		got, dropped := CapTimestamps([]float64{1, 2, 3, 4, 5}, 3)
		assert.Equal(t, []float64{1.0, 2.0, 3.0}, got)
		assert.Equal(t, 2, dropped)
	})

	t.Run("under the cap", func(t *testing.T) {
		got, dropped := CapTimestamps([]float64{1, 2}, 5)
		assert.Equal(t, []float64{1.0, 2.0}, got)
		assert.Zero(t, dropped)
	})

	t.Run("non-positive cap is unbounded", func(t *testing.T) {
		got, dropped := CapTimestamps([]float64{1, 2, 3}, 0)
		assert.Len(t, got, 3)
		assert.Zero(t, dropped)
	})
}

func TestSelect(t *testing.T) {
	t.Run("irregular cuts respect spacing cap and order", func(t *testing.T) {
		// 45 raw cuts in tight triplets, some under a second apart.
		var cuts []float64
		for i := 1; i <= 15; i++ {
			base := float64(i) * 35
			cuts = append(cuts, base, base+0.4, base+0.9)
		}
		require.Len(t, cuts, 45)

		got, _ := Select(cuts, 600, 10, 20)

		assert.LessOrEqual(t, len(got), 20)
		assert.NotEmpty(t, got)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i]-got[i-1], 10.0-1e-9,
				"timestamps %v and %v too close", got[i-1], got[i])
		}
		for _, ts := range got {
			assert.GreaterOrEqual(t, ts, 0.0)
			assert.LessOrEqual(t, ts, 600.0)
		}
	})

	t.Run("no cuts falls back to the grid", func(t *testing.T) {
		got, dropped := Select(nil, 300, 5, 20)
		assert.NotEmpty(t, got)
		assert.Zero(t, dropped)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i]-got[i-1], 5.0-1e-9)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		cuts := []float64{12, 48, 48.2, 99, 240}
		first, _ := Select(cuts, 300, 8, 10)
		second, _ := Select(cuts, 300, 8, 10)
		assert.Equal(t, first, second)
	})

	t.Run("cap reports drops", func(t *testing.T) {
		var cuts []float64
		for i := 1; i <= 30; i++ {
			cuts = append(cuts, float64(i)*15)
		}
		got, dropped := Select(cuts, 460, 2, 5)
		assert.Len(t, got, 5)
		assert.Positive(t, dropped)
	})
}

func TestBuildSegments(t *testing.T) {
	t.Run("closed segments between cuts", func(t *testing.T) {
		got := BuildSegments([]float64{20, 10, 10, 0, -5}, 30)
		require.Len(t, got, 3)

		assert.Zero(t, got[0].Start)
		require.NotNil(t, got[0].End)
		assert.InDelta(t, 10.0, *got[0].End, 1e-9)

		assert.InDelta(t, 10.0, got[1].Start, 1e-9)
		require.NotNil(t, got[1].End)
		assert.InDelta(t, 20.0, *got[1].End, 1e-9)

		assert.InDelta(t, 20.0, got[2].Start, 1e-9)
		require.NotNil(t, got[2].End)
		assert.InDelta(t, 30.0, *got[2].End, 1e-9)
	})

	t.Run("unknown duration leaves the tail open", func(t *testing.T) {
		got := BuildSegments([]float64{10}, 0)
		require.Len(t, got, 2)
		assert.Nil(t, got[1].End)
	})

	t.Run("cuts beyond the duration are dropped", func(t *testing.T) {
		got := BuildSegments([]float64{10, 35}, 30)
		require.Len(t, got, 2)
		require.NotNil(t, got[1].End)
		assert.InDelta(t, 30.0, *got[1].End, 1e-9)
	})

	t.Run("no cuts yields one full segment", func(t *testing.T) {
		got := BuildSegments(nil, 30)
		require.Len(t, got, 1)
		assert.Zero(t, got[0].Start)
		require.NotNil(t, got[0].End)
		assert.InDelta(t, 30.0, *got[0].End, 1e-9)
	})
}

func TestFindSegment(t *testing.T) {
	segments := BuildSegments([]float64{10, 20}, 30)

	t.Run("inside", func(t *testing.T) {
		seg, ok := FindSegment(segments, 5)
		require.True(t, ok)
		assert.Zero(t, seg.Start)

		seg, ok = FindSegment(segments, 10)
		require.True(t, ok)
		assert.InDelta(t, 10.0, seg.Start, 1e-9)
	})

	t.Run("at or past the end falls into the last segment", func(t *testing.T) {
		seg, ok := FindSegment(segments, 30)
		require.True(t, ok)
		assert.InDelta(t, 20.0, seg.Start, 1e-9)
	})

	t.Run("negative time", func(t *testing.T) {
		_, ok := FindSegment(segments, -1)
		assert.False(t, ok)
	})

	t.Run("no segments", func(t *testing.T) {
		_, ok := FindSegment(nil, 5)
		assert.False(t, ok)
	})
}

func TestAdjustWithinSegment(t *testing.T) {
	closed := func(start, end float64) Segment {
		return Segment{Start: start, End: &end}
	}

	t.Run("pads from both edges", func(t *testing.T) {
		seg := closed(0, 30) // pad = clamp(2.4, 0.2, 1.5) = 1.5
		assert.InDelta(t, 1.5, AdjustWithinSegment(0.5, seg), 1e-9)
		assert.InDelta(t, 28.5, AdjustWithinSegment(29.9, seg), 1e-9)
		assert.InDelta(t, 15.0, AdjustWithinSegment(15, seg), 1e-9)
	})

	t.Run("small segment uses the minimum pad", func(t *testing.T) {
		seg := closed(10, 14) // pad = clamp(0.32, 0.2, 1.5) = 0.32
		assert.InDelta(t, 10.32, AdjustWithinSegment(10, seg), 1e-9)
		assert.InDelta(t, 13.68, AdjustWithinSegment(14, seg), 1e-9)
	})

	t.Run("too short to pad samples the midpoint", func(t *testing.T) {
		seg := closed(5, 5.3)
		assert.InDelta(t, 5.15, AdjustWithinSegment(5.29, seg), 1e-9)
	})

	t.Run("open segment pads only from the start", func(t *testing.T) {
		seg := Segment{Start: 100}
		assert.InDelta(t, 100.2, AdjustWithinSegment(100, seg), 1e-9)
		assert.InDelta(t, 150.0, AdjustWithinSegment(150, seg), 1e-9)
	})
}

func TestSegmentLength(t *testing.T) {
	end := 25.0
	assert.InDelta(t, 15.0, Segment{Start: 10, End: &end}.Length(), 1e-9)
	assert.Zero(t, Segment{Start: 10}.Length())
}
