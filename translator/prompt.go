package translator

import (
	"fmt"
	"strings"
)

// GlossaryEntry maps a source-language term to its canonical
// target-language translation.
type GlossaryEntry struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Note   string `json:"note,omitempty"`
}

// Guidance is the optional whole-transcript context injected into every
// translation prompt to keep terminology stable across batches.
type Guidance struct {
	Summary  string
	Glossary []GlossaryEntry
}

func translationSystemPrompt(targetLang string) string {
	return fmt.Sprintf(
		"You are a professional subtitle translator. Translate subtitle lines into %s. "+
			"Keep translations concise and natural for on-screen display. "+
			"Preserve names, numbers and technical terms. Never merge or split lines.",
		targetLang)
}

// batchPrompt builds the context-windowed prompt for one batch. lines
// holds the full transcript; batch indices are absolute line indices.
func batchPrompt(lines []string, start, end int, g *Guidance, preceding, following int) string {
	var b strings.Builder

	if g != nil {
		if g.Summary != "" {
			b.WriteString("Video summary (for context only, do not translate):\n")
			b.WriteString(g.Summary)
			b.WriteString("\n\n")
		}
		if len(g.Glossary) > 0 {
			b.WriteString("Glossary (always use these translations):\n")
			for _, e := range g.Glossary {
				if e.Note != "" {
					fmt.Fprintf(&b, "- %s => %s (%s)\n", e.Source, e.Target, e.Note)
				} else {
					fmt.Fprintf(&b, "- %s => %s\n", e.Source, e.Target)
				}
			}
			b.WriteString("\n")
		}
	}

	if preceding > 0 && start > 0 {
		from := start - preceding
		if from < 0 {
			from = 0
		}
		b.WriteString("Preceding lines (context only):\n")
		for i := from; i < start; i++ {
			fmt.Fprintf(&b, "[%d] %s\n", i, lines[i])
		}
		b.WriteString("\n")
	}

	b.WriteString("Translate these lines:\n")
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "[%d] %s\n", i, lines[i])
	}

	if following > 0 && end < len(lines) {
		to := end + following
		if to > len(lines) {
			to = len(lines)
		}
		b.WriteString("\nFollowing lines (context only):\n")
		for i := end; i < to; i++ {
			fmt.Fprintf(&b, "[%d] %s\n", i, lines[i])
		}
	}

	fmt.Fprintf(&b,
		"\nReturn exactly one JSON array of %d objects, one per line to translate, "+
			`in the form [{"id": <line number>, "translation": "<translated text>"}]. `+
			"The id values must match the line numbers above. Return nothing else.",
		end-start)

	return b.String()
}

// linePrompt is the degraded single-line prompt used when a batch has
// exhausted its retries.
func linePrompt(line string, g *Guidance) string {
	var b strings.Builder

	if g != nil && g.Summary != "" {
		b.WriteString("Video summary (for context only, do not translate):\n")
		b.WriteString(g.Summary)
		b.WriteString("\n\n")
	}
	if g != nil && len(g.Glossary) > 0 {
		b.WriteString("Glossary (always use these translations):\n")
		for _, e := range g.Glossary {
			fmt.Fprintf(&b, "- %s => %s\n", e.Source, e.Target)
		}
		b.WriteString("\n")
	}

	b.WriteString("Translate this subtitle line. Return only the translation, no quotes, no commentary:\n")
	b.WriteString(line)

	return b.String()
}

func summarySystemPrompt(sourceLang string) string {
	return fmt.Sprintf(
		"You summarize video transcripts. Always answer in the transcript's original language (%s); "+
			"never translate. Keep names, places and technical terms exactly as written.",
		sourceLang)
}

func summaryChunkPrompt(chunk string) string {
	return "Summarize the following transcript excerpt in 3-5 sentences:\n\n" + chunk
}

func summaryCombinePrompt(partials []string) string {
	return "Combine the following partial summaries of one video into a single coherent summary of at most one paragraph:\n\n" +
		strings.Join(partials, "\n\n")
}

func glossarySystemPrompt(sourceLang, targetLang string) string {
	return fmt.Sprintf(
		"You extract terminology from %s video transcripts for translation into %s. "+
			"You respond with JSON only.",
		sourceLang, targetLang)
}

func glossaryChunkPrompt(chunk string, targetLang string) string {
	return fmt.Sprintf(
		"List the proper nouns, recurring technical terms and named entities in the transcript excerpt below "+
			`as a JSON array of objects [{"source": "<term>", "target": "<%s translation>", "note": "<optional disambiguation>"}]. `+
			"Return an empty array if there are none. Return nothing but the JSON array.\n\n%s",
		targetLang, chunk)
}
