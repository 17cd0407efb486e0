package subtitle

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// SegmentOptions control paragraph fusion. Zero MaxChars/MaxWords
// disable the respective soft-break condition.
type SegmentOptions struct {
	MinDurationMs  int64
	MaxDurationMs  int64
	GapThresholdMs int64
	MaxChars       int
	MaxWords       int
}

func DefaultSegmentOptions() SegmentOptions {
	return SegmentOptions{
		MinDurationMs:  3000,
		MaxDurationMs:  7000,
		GapThresholdMs: 1200,
	}
}

var sentenceTerminators = map[rune]bool{
	'.': true, '!': true, '?': true, '…': true,
	'。': true, '！': true, '？': true,
}

type paragraph struct {
	start  int64
	end    int64
	pieces []string
	chars  int
	words  int
}

func (p *paragraph) add(c Cue, text string) {
	p.end = c.EndMs
	p.pieces = append(p.pieces, text)
	p.chars += utf8.RuneCountInString(text)
	p.words += len(strings.Fields(text))
}

func (p *paragraph) text() string {
	return joinPieces(p.pieces)
}

// Segment fuses fine-grained cues (often one word per cue on ASR
// tracks) into paragraph-level cues. For a fixed option set the output
// is a pure function of the input sequence.
func Segment(cues []Cue, opts SegmentOptions) []Cue {
	var out []Cue
	var para *paragraph

	flush := func() {
		if para == nil {
			return
		}
		out = append(out, Cue{StartMs: para.start, EndMs: para.end, Text: para.text()})
		para = nil
	}

	open := func(c Cue, text string) {
		para = &paragraph{start: c.StartMs, end: c.StartMs}
		para.add(c, text)
	}

	for _, cue := range cues {
		text := strings.TrimSpace(cue.Text)
		if text == "" {
			continue
		}

		if para == nil {
			open(cue, text)
		} else {
			durationIfIncluded := cue.EndMs - para.start
			gap := cue.StartMs - para.end

			if durationIfIncluded >= opts.MaxDurationMs || gap > opts.GapThresholdMs {
				flush()
				open(cue, text)
			} else {
				para.add(cue, text)
			}
		}

		// Soft break: the paragraph is long enough and just reached a
		// natural boundary.
		if para.end-para.start >= opts.MinDurationMs {
			switch {
			case endsWithTerminator(text),
				opts.MaxChars > 0 && para.chars >= opts.MaxChars,
				opts.MaxWords > 0 && para.words >= opts.MaxWords:
				flush()
			}
		}
	}

	if para != nil {
		// A short tail reads better folded into its predecessor.
		if para.end-para.start < opts.MinDurationMs && len(out) > 0 {
			prev := &out[len(out)-1]
			prev.EndMs = para.end
			prev.Text = joinPieces([]string{prev.Text, para.text()})
		} else {
			flush()
		}
	}

	return out
}

func endsWithTerminator(text string) bool {
	r, size := utf8.DecodeLastRuneInString(text)
	if size == 0 {
		return false
	}
	return sentenceTerminators[r]
}

var (
	wsRunRe         = regexp.MustCompile(`\s+`)
	closingPunctRe  = regexp.MustCompile(` +([,.;:!?。！？；：])`)
	afterOpeningRe  = regexp.MustCompile("([(\\[{（「『“]) +")
	beforeClosingRe = regexp.MustCompile("( +)([)\\]}）」』”])")
)

// joinPieces space-joins cue texts and normalizes the seams: no space
// before closing punctuation, none inside brackets or quotes, single
// spaces everywhere else.
func joinPieces(pieces []string) string {
	s := strings.Join(pieces, " ")
	s = wsRunRe.ReplaceAllString(s, " ")
	s = closingPunctRe.ReplaceAllString(s, "$1")
	s = afterOpeningRe.ReplaceAllString(s, "$1")
	s = beforeClosingRe.ReplaceAllString(s, "$2")
	return strings.TrimSpace(s)
}

// Display-time floors used by OptimizeTiming.
const (
	preferredDisplayMs = 1000
	absoluteFloorMs    = 500
	displayGapMs       = 100
)

// OptimizeTiming extends short cues toward a 1s display time without
// running into the next cue, with an absolute 500ms floor.
func OptimizeTiming(cues []Cue) []Cue {
	out := make([]Cue, len(cues))
	copy(out, cues)

	for i := range out {
		if out[i].DurationMs() >= preferredDisplayMs {
			continue
		}

		target := out[i].StartMs + preferredDisplayMs
		if i+1 < len(out) && target > out[i+1].StartMs-displayGapMs {
			target = out[i+1].StartMs - displayGapMs
		}
		if target > out[i].EndMs {
			out[i].EndMs = target
		}
		if out[i].DurationMs() < absoluteFloorMs {
			out[i].EndMs = out[i].StartMs + absoluteFloorMs
		}
	}

	return out
}
