// Package subtitle implements the timed-text pipeline: the three YouTube
// wire codecs (JSON3, SRV3, WebVTT), the paragraph segmenter, and the
// content fingerprint over canonicalized cues.
package subtitle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Cue is the unit of the internal pipeline.
type Cue struct {
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Text    string `json:"text"`
}

func (c Cue) DurationMs() int64 { return c.EndMs - c.StartMs }

type Format string

const (
	FormatJSON3 Format = "json3"
	FormatSRV3  Format = "srv3"
	FormatVTT   Format = "vtt"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON3, FormatSRV3, FormatVTT:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown subtitle format %q", s)
}

// Codec parses one wire format into cues and renders cues back out.
type Codec interface {
	Format() Format
	Parse(data []byte) ([]Cue, error)
	Render(cues []Cue) ([]byte, error)
}

// ForFormat returns the codec for f with default rendering parameters.
func ForFormat(f Format) (Codec, error) {
	return forFormat(f, DefaultOverlapGapMs)
}

func forFormat(f Format, overlapGapMs int64) (Codec, error) {
	switch f {
	case FormatJSON3:
		return JSON3Codec{}, nil
	case FormatSRV3:
		return SRV3Codec{OverlapGapMs: overlapGapMs}, nil
	case FormatVTT:
		return VTTCodec{}, nil
	}
	return nil, fmt.Errorf("unknown subtitle format %q", f)
}

// Sniff guesses the wire format of an upstream document: JSON3 starts
// with '{', WebVTT with its header, everything else is SRV3.
func Sniff(data []byte) Format {
	trimmed := bytes.TrimLeft(data, " \t\r\n\uFEFF")
	switch {
	case len(trimmed) > 0 && trimmed[0] == '{':
		return FormatJSON3
	case bytes.HasPrefix(trimmed, []byte("WEBVTT")):
		return FormatVTT
	default:
		return FormatSRV3
	}
}

// SourceHash is a deterministic 128-bit fingerprint of the canonicalized
// cue list. Parsing before hashing makes the fingerprint insensitive to
// upstream reformatting.
func SourceHash(cues []Cue) string {
	var b strings.Builder
	for _, c := range cues {
		b.WriteString(strconv.FormatInt(c.StartMs, 10))
		b.WriteByte('|')
		b.WriteString(strconv.FormatInt(c.EndMs, 10))
		b.WriteByte('|')
		b.WriteString(strings.TrimSpace(c.Text))
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// Convert re-renders data from its sniffed format into target. Used at
// the edge to serve the cached bilingual form in the client's format.
func Convert(data []byte, target Format) ([]byte, error) {
	return ConvertWithOverlap(data, target, DefaultOverlapGapMs)
}

// ConvertWithOverlap is Convert with an explicit SRV3 overlap gap for
// the rendering side.
func ConvertWithOverlap(data []byte, target Format, overlapGapMs int64) ([]byte, error) {
	src := Sniff(data)
	if src == target {
		return data, nil
	}
	in, err := ForFormat(src)
	if err != nil {
		return nil, err
	}
	cues, err := in.Parse(data)
	if err != nil {
		return nil, err
	}
	out, err := forFormat(target, overlapGapMs)
	if err != nil {
		return nil, err
	}
	return out.Render(cues)
}
