package translator

import (
	"encoding/json"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

type batchItem struct {
	ID          int    `json:"id"`
	Translation string `json:"translation"`
}

// parseBatchResponse validates the model's reply for a batch spanning
// absolute indices [start, end). Anything short of an exact, complete
// answer fails the batch; the caller decides whether to retry.
func parseBatchResponse(raw string, start, end int) (map[int]string, error) {
	payload := extractJSONArray(raw)
	if payload == "" {
		return nil, pkgerrors.New("response contains no JSON array")
	}

	var items []batchItem
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return nil, pkgerrors.Wrap(err, "parse batch response")
	}

	if len(items) != end-start {
		return nil, pkgerrors.Errorf("expected %d translations, got %d", end-start, len(items))
	}

	out := make(map[int]string, len(items))
	for _, item := range items {
		if item.ID < start || item.ID >= end {
			return nil, pkgerrors.Errorf("translation id %d outside batch [%d,%d)", item.ID, start, end)
		}
		if _, dup := out[item.ID]; dup {
			return nil, pkgerrors.Errorf("duplicate translation id %d", item.ID)
		}
		text := strings.TrimSpace(item.Translation)
		if text == "" {
			return nil, pkgerrors.Errorf("empty translation for id %d", item.ID)
		}
		out[item.ID] = text
	}

	return out, nil
}

// parseGlossaryResponse parses a guidance-pass glossary reply.
func parseGlossaryResponse(raw string) ([]GlossaryEntry, error) {
	payload := extractJSONArray(raw)
	if payload == "" {
		return nil, pkgerrors.New("response contains no JSON array")
	}

	var entries []GlossaryEntry
	if err := json.Unmarshal([]byte(payload), &entries); err != nil {
		return nil, pkgerrors.Wrap(err, "parse glossary response")
	}

	out := entries[:0]
	for _, e := range entries {
		e.Source = strings.TrimSpace(e.Source)
		e.Target = strings.TrimSpace(e.Target)
		if e.Source == "" || e.Target == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// extractJSONArray strips Markdown code fences and returns the
// outermost [...] span, or "" when there is none.
func extractJSONArray(raw string) string {
	if strings.Contains(raw, "```") {
		var kept []string
		for _, line := range strings.Split(raw, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				continue
			}
			kept = append(kept, line)
		}
		raw = strings.Join(kept, "\n")
	}

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
