// Package translator turns a cue list into a bilingual cue list by
// batching context-aware prompts against a chat-completion LLM.
package translator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/double-tu/youtube-subtitle-proxy/errors"
	"github.com/double-tu/youtube-subtitle-proxy/subtitle"
)

type GuidanceSettings struct {
	Enabled    bool
	MaxTokens  int
	ChunkChars int
}

type ContextSettings struct {
	Enabled        bool
	BatchSize      int
	PrecedingLines int
	FollowingLines int
	Concurrency    int
	BatchRetries   int
	MaxTokens      int
}

type Config struct {
	Summary  GuidanceSettings
	Glossary GuidanceSettings
	Context  ContextSettings
}

// simpleWaveDelay paces the non-context path between waves of
// single-line calls.
const simpleWaveDelay = 200 * time.Millisecond

type Translator struct {
	client ChatClient
	config Config
	logger *logrus.Logger
}

func New(client ChatClient, cfg Config) *Translator {
	if cfg.Context.BatchSize <= 0 {
		cfg.Context.BatchSize = 8
	}
	if cfg.Context.Concurrency <= 0 {
		cfg.Context.Concurrency = 3
	}
	return &Translator{
		client: client,
		config: cfg,
		logger: logrus.StandardLogger(),
	}
}

// Translate produces cues with the input timing and bilingual text
// (original line, newline, translation). Line-level failures degrade to
// the original text; only a run with zero successful translations is an
// error.
func (t *Translator) Translate(ctx context.Context, cues []subtitle.Cue, sourceLang, targetLang string) ([]subtitle.Cue, error) {
	const op = "Translator.Translate"

	if len(cues) == 0 {
		return nil, nil
	}

	lines := make([]string, len(cues))
	for i, c := range cues {
		lines[i] = c.Text
	}

	var (
		translations []string
		err          error
	)

	if t.config.Context.Enabled {
		guidance := t.buildGuidance(ctx, lines, sourceLang, targetLang)
		translations, err = t.translateBatched(ctx, lines, guidance, targetLang)
		if err != nil {
			t.logger.WithError(err).Warn("Context translation failed, falling back to simple path")
			translations, err = t.translateSimple(ctx, lines, targetLang)
		}
	} else {
		translations, err = t.translateSimple(ctx, lines, targetLang)
	}

	if err != nil {
		return nil, errors.Translation(op, err, "translation failed")
	}

	out := make([]subtitle.Cue, len(cues))
	for i, c := range cues {
		out[i] = subtitle.Cue{
			StartMs: c.StartMs,
			EndMs:   c.EndMs,
			Text:    c.Text + "\n" + translations[i],
		}
	}
	return out, nil
}

// translateBatched runs the context-aware path: contiguous batches,
// bounded concurrency, output written into slots by absolute index so
// completion order does not matter.
func (t *Translator) translateBatched(ctx context.Context, lines []string, g *Guidance, targetLang string) ([]string, error) {
	out := make([]string, len(lines))
	var succeeded atomic.Int64

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(t.config.Context.Concurrency)

	batchSize := t.config.Context.BatchSize
	for start := 0; start < len(lines); start += batchSize {
		end := start + batchSize
		if end > len(lines) {
			end = len(lines)
		}
		start, end := start, end

		grp.Go(func() error {
			t.runBatch(gctx, lines, start, end, g, targetLang, out, &succeeded)
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if succeeded.Load() == 0 {
		return nil, pkgerrors.New("no lines could be translated")
	}
	return out, nil
}

// runBatch tries the whole batch with retries, then degrades to
// per-line calls, then to the original text. It never fails the job.
func (t *Translator) runBatch(ctx context.Context, lines []string, start, end int, g *Guidance, targetLang string, out []string, succeeded *atomic.Int64) {
	logger := t.logger.WithFields(logrus.Fields{"batch_start": start, "batch_end": end})

	for attempt := 0; attempt <= t.config.Context.BatchRetries; attempt++ {
		translated, err := t.translateBatch(ctx, lines, start, end, g, targetLang)
		if err == nil {
			for i := start; i < end; i++ {
				out[i] = translated[i]
			}
			succeeded.Add(int64(end - start))
			return
		}
		logger.WithError(err).WithField("attempt", attempt).Warn("Batch translation failed")
		if ctx.Err() != nil {
			break
		}
	}

	logger.Info("Batch retries exhausted, falling back to per-line translation")
	for i := start; i < end; i++ {
		text, err := t.translateLine(ctx, lines[i], g, targetLang)
		if err != nil || text == "" {
			out[i] = lines[i]
			continue
		}
		out[i] = text
		succeeded.Add(1)
	}
}

func (t *Translator) translateBatch(ctx context.Context, lines []string, start, end int, g *Guidance, targetLang string) (map[int]string, error) {
	prompt := batchPrompt(lines, start, end, g,
		t.config.Context.PrecedingLines, t.config.Context.FollowingLines)

	raw, err := t.client.Complete(ctx, translationSystemPrompt(targetLang), prompt, t.config.Context.MaxTokens)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, pkgerrors.New("empty model response")
	}

	return parseBatchResponse(raw, start, end)
}

func (t *Translator) translateLine(ctx context.Context, line string, g *Guidance, targetLang string) (string, error) {
	raw, err := t.client.Complete(ctx, translationSystemPrompt(targetLang), linePrompt(line, g), t.config.Context.MaxTokens)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(raw)
	text = strings.Trim(text, `"`)
	return strings.TrimSpace(text), nil
}

// translateSimple is the non-context path: one cue per call, waves of
// bounded size with a short delay in between.
func (t *Translator) translateSimple(ctx context.Context, lines []string, targetLang string) ([]string, error) {
	out := make([]string, len(lines))
	var succeeded atomic.Int64

	conc := t.config.Context.Concurrency
	for waveStart := 0; waveStart < len(lines); waveStart += conc {
		waveEnd := waveStart + conc
		if waveEnd > len(lines) {
			waveEnd = len(lines)
		}

		var wg sync.WaitGroup
		for i := waveStart; i < waveEnd; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				text, err := t.translateLine(ctx, lines[i], nil, targetLang)
				if err != nil || text == "" {
					out[i] = lines[i]
					return
				}
				out[i] = text
				succeeded.Add(1)
			}(i)
		}
		wg.Wait()

		if waveEnd < len(lines) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(simpleWaveDelay):
			}
		}
	}

	if succeeded.Load() == 0 {
		return nil, pkgerrors.New("no lines could be translated")
	}
	return out, nil
}

// buildGuidance runs the optional summary and glossary passes. Failures
// are logged and translation proceeds without the guidance.
func (t *Translator) buildGuidance(ctx context.Context, lines []string, sourceLang, targetLang string) *Guidance {
	if !t.config.Summary.Enabled && !t.config.Glossary.Enabled {
		return nil
	}

	transcript := strings.Join(lines, " ")
	g := &Guidance{}

	if t.config.Summary.Enabled {
		summary, err := t.summarize(ctx, transcript, sourceLang)
		if err != nil {
			t.logger.WithError(err).Warn("Summary guidance failed, continuing without it")
		} else {
			g.Summary = summary
		}
	}

	if t.config.Glossary.Enabled {
		glossary, err := t.extractGlossary(ctx, transcript, sourceLang, targetLang)
		if err != nil {
			t.logger.WithError(err).Warn("Glossary guidance failed, continuing without it")
		} else {
			g.Glossary = glossary
		}
	}

	if g.Summary == "" && len(g.Glossary) == 0 {
		return nil
	}
	return g
}

// summarize map-reduces the transcript: per-chunk summaries, then one
// consolidation call when there is more than one chunk.
func (t *Translator) summarize(ctx context.Context, transcript, sourceLang string) (string, error) {
	chunks := chunkText(transcript, t.config.Summary.ChunkChars)
	system := summarySystemPrompt(sourceLang)

	partials := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		raw, err := t.client.Complete(ctx, system, summaryChunkPrompt(chunk), t.config.Summary.MaxTokens)
		if err != nil {
			return "", err
		}
		if s := strings.TrimSpace(raw); s != "" {
			partials = append(partials, s)
		}
	}

	switch len(partials) {
	case 0:
		return "", pkgerrors.New("summary pass produced no text")
	case 1:
		return partials[0], nil
	}

	raw, err := t.client.Complete(ctx, system, summaryCombinePrompt(partials), t.config.Summary.MaxTokens)
	if err != nil {
		return "", err
	}
	combined := strings.TrimSpace(raw)
	if combined == "" {
		return "", pkgerrors.New("summary consolidation produced no text")
	}
	return combined, nil
}

func (t *Translator) extractGlossary(ctx context.Context, transcript, sourceLang, targetLang string) ([]GlossaryEntry, error) {
	chunks := chunkText(transcript, t.config.Glossary.ChunkChars)
	system := glossarySystemPrompt(sourceLang, targetLang)

	seen := make(map[string]bool)
	var merged []GlossaryEntry
	for _, chunk := range chunks {
		raw, err := t.client.Complete(ctx, system, glossaryChunkPrompt(chunk, targetLang), t.config.Glossary.MaxTokens)
		if err != nil {
			return nil, err
		}
		entries, err := parseGlossaryResponse(raw)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			key := strings.ToLower(e.Source)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, e)
		}
	}

	return merged, nil
}

// chunkText splits on word boundaries into pieces of roughly chunkChars
// characters.
func chunkText(text string, chunkChars int) []string {
	if chunkChars <= 0 || len(text) <= chunkChars {
		return []string{text}
	}

	words := strings.Fields(text)
	var chunks []string
	var b strings.Builder
	for _, w := range words {
		if b.Len() > 0 && b.Len()+len(w)+1 > chunkChars {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
