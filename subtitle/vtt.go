package subtitle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// VTTCodec handles WebVTT, the format the bilingual output is stored in.
type VTTCodec struct{}

// HH:MM:SS.mmm or MM:SS.mmm
var vttTimestampRe = regexp.MustCompile(`^(?:(\d+):)?(\d{1,2}):(\d{2})\.(\d{3})$`)

func (VTTCodec) Format() Format { return FormatVTT }

func (VTTCodec) Parse(data []byte) ([]Cue, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	blocks := strings.Split(text, "\n\n")

	var cues []Cue
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" || strings.HasPrefix(block, "WEBVTT") || strings.HasPrefix(block, "NOTE") {
			continue
		}

		lines := strings.Split(block, "\n")
		timingIdx := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timingIdx = i
				break
			}
		}
		if timingIdx < 0 {
			continue
		}

		start, end, err := parseVTTTiming(lines[timingIdx])
		if err != nil {
			return nil, err
		}

		body := strings.TrimSpace(strings.Join(lines[timingIdx+1:], "\n"))
		if body == "" {
			continue
		}

		cues = append(cues, Cue{StartMs: start, EndMs: end, Text: body})
	}
	return cues, nil
}

func parseVTTTiming(line string) (int64, int64, error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid vtt timing line %q", line)
	}

	start, err := parseVTTTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}

	// Cue settings follow the end timestamp after whitespace.
	endField := strings.Fields(strings.TrimSpace(parts[1]))
	if len(endField) == 0 {
		return 0, 0, fmt.Errorf("invalid vtt timing line %q", line)
	}
	end, err := parseVTTTimestamp(endField[0])
	if err != nil {
		return 0, 0, err
	}

	return start, end, nil
}

func parseVTTTimestamp(ts string) (int64, error) {
	m := vttTimestampRe.FindStringSubmatch(ts)
	if m == nil {
		return 0, fmt.Errorf("invalid vtt timestamp %q", ts)
	}

	var hours int64
	if m[1] != "" {
		hours, _ = strconv.ParseInt(m[1], 10, 64)
	}
	minutes, _ := strconv.ParseInt(m[2], 10, 64)
	seconds, _ := strconv.ParseInt(m[3], 10, 64)
	millis, _ := strconv.ParseInt(m[4], 10, 64)

	return ((hours*60+minutes)*60+seconds)*1000 + millis, nil
}

func (VTTCodec) Render(cues []Cue) ([]byte, error) {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, cue := range cues {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatVTTTimestamp(cue.StartMs), formatVTTTimestamp(cue.EndMs))
		b.WriteString(cue.Text)
		b.WriteString("\n\n")
	}
	return []byte(b.String()), nil
}

func formatVTTTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	frac := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, frac)
}
