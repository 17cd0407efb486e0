package subtitle

import (
	"encoding/json"
	"strings"
)

// JSON3Codec handles YouTube's json3 timed-text documents: a flat event
// list where each event carries a start, a duration and inner text
// segments (often one word each for ASR tracks).
type JSON3Codec struct{}

type json3Doc struct {
	WireMagic string       `json:"wireMagic,omitempty"`
	Events    []json3Event `json:"events"`
}

type json3Event struct {
	TStartMs    int64      `json:"tStartMs"`
	DDurationMs int64      `json:"dDurationMs"`
	Segs        []json3Seg `json:"segs,omitempty"`
}

type json3Seg struct {
	UTF8 string `json:"utf8"`
}

func (JSON3Codec) Format() Format { return FormatJSON3 }

func (JSON3Codec) Parse(data []byte) ([]Cue, error) {
	var doc json3Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	cues := make([]Cue, 0, len(doc.Events))
	for _, ev := range doc.Events {
		if len(ev.Segs) == 0 {
			continue
		}
		var b strings.Builder
		for _, seg := range ev.Segs {
			b.WriteString(seg.UTF8)
		}
		text := strings.TrimSpace(b.String())
		if text == "" {
			continue
		}
		cues = append(cues, Cue{
			StartMs: ev.TStartMs,
			EndMs:   ev.TStartMs + ev.DDurationMs,
			Text:    text,
		})
	}
	return cues, nil
}

func (JSON3Codec) Render(cues []Cue) ([]byte, error) {
	doc := json3Doc{
		WireMagic: "pb3",
		Events:    make([]json3Event, 0, len(cues)),
	}
	for _, c := range cues {
		doc.Events = append(doc.Events, json3Event{
			TStartMs:    c.StartMs,
			DDurationMs: c.EndMs - c.StartMs,
			Segs:        []json3Seg{{UTF8: c.Text}},
		})
	}
	return json.Marshal(doc)
}
