package subtitle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentFusesWordCues(t *testing.T) {
	cues := []Cue{
		{0, 500, "I"},
		{500, 1000, "have"},
		{1000, 1500, "a"},
		{1500, 2000, "dream."},
		{4000, 4500, "Next"},
		{4500, 5000, "line"},
	}
	opts := SegmentOptions{
		MinDurationMs:  0,
		MaxDurationMs:  7000,
		GapThresholdMs: 1000,
	}

	out := Segment(cues, opts)
	require.Len(t, out, 2)
	assert.Equal(t, Cue{0, 2000, "I have a dream."}, out[0])
	assert.Equal(t, Cue{4000, 5000, "Next line"}, out[1])
}

func TestSegmentSoftBreakWaitsForMinDuration(t *testing.T) {
	// "Hi." terminates a sentence immediately, but the paragraph is too
	// short to stand alone, so fusion continues.
	cues := []Cue{
		{0, 400, "Hi."},
		{400, 900, "Welcome"},
		{900, 1600, "back"},
		{1600, 3500, "everyone."},
		{3600, 4200, "Today"},
		{4200, 6800, "we build."},
	}

	out := Segment(cues, SegmentOptions{
		MinDurationMs:  3000,
		MaxDurationMs:  7000,
		GapThresholdMs: 1200,
	})

	require.Len(t, out, 2)
	assert.Equal(t, "Hi. Welcome back everyone.", out[0].Text)
	assert.Equal(t, "Today we build.", out[1].Text)
}

func TestSegmentHardBreakOnMaxDuration(t *testing.T) {
	// No punctuation and no gaps: only the duration ceiling breaks.
	cues := []Cue{
		{0, 3000, "one"},
		{3000, 6000, "two"},
		{6000, 9000, "three"},
	}

	out := Segment(cues, SegmentOptions{
		MinDurationMs:  1000,
		MaxDurationMs:  7000,
		GapThresholdMs: 1200,
	})

	require.Len(t, out, 2)
	assert.Equal(t, "one two", out[0].Text)
	assert.Equal(t, "three", out[1].Text)
}

func TestSegmentMaxWordsBreak(t *testing.T) {
	cues := []Cue{
		{0, 1000, "alpha"},
		{1000, 2000, "beta"},
		{2000, 3000, "gamma"},
		{3000, 4000, "delta"},
	}

	out := Segment(cues, SegmentOptions{
		MinDurationMs:  1000,
		MaxDurationMs:  60000,
		GapThresholdMs: 5000,
		MaxWords:       2,
	})

	require.Len(t, out, 2)
	assert.Equal(t, "alpha beta", out[0].Text)
	assert.Equal(t, "gamma delta", out[1].Text)
}

func TestSegmentFoldsShortTail(t *testing.T) {
	cues := []Cue{
		{0, 2000, "First sentence is long enough."},
		{2000, 3500, "More words here to finish."},
		{3600, 4000, "bye"},
	}

	out := Segment(cues, SegmentOptions{
		MinDurationMs:  3000,
		MaxDurationMs:  10000,
		GapThresholdMs: 1200,
	})

	require.Len(t, out, 1)
	assert.Equal(t, int64(4000), out[0].EndMs)
	assert.Contains(t, out[0].Text, "bye")
}

func TestSegmentSkipsEmptyCues(t *testing.T) {
	cues := []Cue{
		{0, 1000, "  "},
		{1000, 2000, "real text."},
		{2000, 3000, ""},
	}

	out := Segment(cues, SegmentOptions{
		MinDurationMs:  500,
		MaxDurationMs:  7000,
		GapThresholdMs: 1200,
	})

	require.Len(t, out, 1)
	assert.Equal(t, "real text.", out[0].Text)
	assert.Equal(t, int64(1000), out[0].StartMs)
}

func TestSegmentDeterministic(t *testing.T) {
	cues := []Cue{
		{0, 500, "I"},
		{500, 1000, "have"},
		{1000, 4000, "a dream."},
		{5500, 6000, "Next"},
	}
	opts := DefaultSegmentOptions()

	first := Segment(cues, opts)
	second := Segment(cues, opts)
	assert.Equal(t, first, second)
}

func TestJoinPieces(t *testing.T) {
	tests := []struct {
		name   string
		pieces []string
		want   string
	}{
		{"simple", []string{"hello", "world"}, "hello world"},
		{"collapses runs", []string{"hello  ", "  world"}, "hello world"},
		{"no space before punctuation", []string{"hello", ",", "world", "."}, "hello, world."},
		{"cjk punctuation", []string{"你好", "。", "世界"}, "你好。 世界"},
		{"inside brackets", []string{"(", "aside", ")"}, "(aside)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, joinPieces(tt.pieces))
		})
	}
}

func TestOptimizeTiming(t *testing.T) {
	cues := []Cue{
		{0, 300, "short, room to extend"},
		{2000, 2300, "short, next cue close"},
		{2700, 3000, "short, tail"},
	}

	out := OptimizeTiming(cues)

	// Extended to the preferred 1s display time.
	assert.Equal(t, int64(1000), out[0].EndMs)
	// Capped 100ms before the next cue's start.
	assert.Equal(t, int64(2600), out[1].EndMs)
	// Last cue has no successor, extends freely.
	assert.Equal(t, int64(3700), out[2].EndMs)

	// Input slice untouched.
	assert.Equal(t, int64(300), cues[0].EndMs)
}

func TestOptimizeTimingKeepsLongCues(t *testing.T) {
	cues := []Cue{{0, 5000, "already long"}}
	out := OptimizeTiming(cues)
	assert.Equal(t, cues, out)
}

func TestOptimizeTimingAbsoluteFloor(t *testing.T) {
	// The next cue starts immediately, so the preferred extension is
	// impossible; the floor still applies.
	cues := []Cue{
		{0, 200, "crowded"},
		{250, 1500, "next"},
	}

	out := OptimizeTiming(cues)
	assert.Equal(t, int64(500), out[0].EndMs)
}
