package subtitle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultOverlapGapMs is the minimum gap the SRV3 renderer keeps between
// adjacent blocks so the player never draws two cues at once.
const DefaultOverlapGapMs int64 = 100

// SRV3Codec handles YouTube's srv3 XML documents. SRV3 is not strict
// XML (YouTube emits bare <br> and undeclared entities), so parsing is
// tag-tolerant rather than schema-driven.
type SRV3Codec struct {
	OverlapGapMs int64
}

var (
	srv3BlockRe = regexp.MustCompile(`(?s)<p\b([^>]*)>(.*?)</p>`)
	srv3AttrTRe = regexp.MustCompile(`\bt="([^"]*)"`)
	srv3AttrDRe = regexp.MustCompile(`\bd="([^"]*)"`)
	srv3BrRe    = regexp.MustCompile(`(?i)<br\s*/?>`)
	srv3TagRe   = regexp.MustCompile(`<[^>]+>`)
	entityNumRe = regexp.MustCompile(`&#(x?[0-9a-fA-F]+);`)
)

func (SRV3Codec) Format() Format { return FormatSRV3 }

func (SRV3Codec) Parse(data []byte) ([]Cue, error) {
	blocks := srv3BlockRe.FindAllStringSubmatch(string(data), -1)
	cues := make([]Cue, 0, len(blocks))
	for _, block := range blocks {
		attrs, body := block[1], block[2]

		start, ok := srv3Attr(attrs, srv3AttrTRe)
		if !ok {
			continue
		}
		dur, ok := srv3Attr(attrs, srv3AttrDRe)
		if !ok {
			continue
		}

		text := srv3BrRe.ReplaceAllString(body, "\n")
		text = srv3TagRe.ReplaceAllString(text, "")
		text = decodeEntities(text)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		cues = append(cues, Cue{StartMs: start, EndMs: start + dur, Text: text})
	}
	return cues, nil
}

// srv3Attr extracts an integer timing attribute; blocks with missing or
// non-finite timing are skipped.
func srv3Attr(attrs string, re *regexp.Regexp) (int64, bool) {
	m := re.FindStringSubmatch(attrs)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(m[1]), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (c SRV3Codec) Render(cues []Cue) ([]byte, error) {
	gap := c.OverlapGapMs
	if gap == 0 {
		gap = DefaultOverlapGapMs
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	b.WriteString(`<timedtext format="3">` + "\n<body>\n")

	for i, cue := range cues {
		d := cue.EndMs - cue.StartMs
		// Clamp so t + d + gap <= next.t; overlapping cues would be
		// drawn simultaneously by the player.
		if i+1 < len(cues) {
			if maxD := cues[i+1].StartMs - gap - cue.StartMs; d > maxD {
				d = maxD
				if d < 0 {
					d = 0
				}
			}
		}

		lines := strings.Split(cue.Text, "\n")
		spans := make([]string, 0, len(lines))
		for _, line := range lines {
			spans = append(spans, "<s>"+escapeXML(line)+"</s>")
		}
		fmt.Fprintf(&b, "<p t=\"%d\" d=\"%d\">%s</p>\n", cue.StartMs, d, strings.Join(spans, "&#x0A;"))
	}

	b.WriteString("</body>\n</timedtext>\n")
	return []byte(b.String()), nil
}

func escapeXML(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return r.Replace(s)
}

// decodeEntities resolves the named set YouTube uses plus numeric
// references (&#N; and &#xN;).
func decodeEntities(s string) string {
	s = entityNumRe.ReplaceAllStringFunc(s, func(m string) string {
		ref := entityNumRe.FindStringSubmatch(m)[1]
		base := 10
		if ref[0] == 'x' || ref[0] == 'X' {
			base = 16
			ref = ref[1:]
		}
		n, err := strconv.ParseInt(ref, base, 32)
		if err != nil || n <= 0 {
			return m
		}
		return string(rune(n))
	})

	r := strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
		"&nbsp;", " ",
		"&amp;", "&",
	)
	return r.Replace(s)
}
