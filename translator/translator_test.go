package translator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/double-tu/youtube-subtitle-proxy/errors"
	"github.com/double-tu/youtube-subtitle-proxy/subtitle"
)

// fakeChat scripts the model side of the conversation.
type fakeChat struct {
	mu    sync.Mutex
	calls []string
	fn    func(system, user string) (string, error)
}

func (f *fakeChat) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, user)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.fn(system, user)
}

var promptLineRe = regexp.MustCompile(`\[(\d+)\] (.+)`)

// echoBatch answers a batch prompt with "T:" + the original line for
// every requested id.
func echoBatch(user string) (string, error) {
	section := user
	if i := strings.Index(user, "Translate these lines:"); i >= 0 {
		section = user[i:]
	}
	if i := strings.Index(section, "Following lines"); i >= 0 {
		section = section[:i]
	}

	var items []string
	for _, m := range promptLineRe.FindAllStringSubmatch(section, -1) {
		items = append(items, fmt.Sprintf(`{"id":%s,"translation":"T:%s"}`, m[1], m[2]))
	}
	return "[" + strings.Join(items, ",") + "]", nil
}

func contextConfig() Config {
	return Config{
		Context: ContextSettings{
			Enabled:      true,
			BatchSize:    2,
			Concurrency:  2,
			BatchRetries: 1,
		},
	}
}

func testCues(n int) []subtitle.Cue {
	cues := make([]subtitle.Cue, n)
	for i := range cues {
		cues[i] = subtitle.Cue{
			StartMs: int64(i) * 1000,
			EndMs:   int64(i+1) * 1000,
			Text:    fmt.Sprintf("line %d", i),
		}
	}
	return cues
}

func TestTranslatePreservesOrderAcrossBatches(t *testing.T) {
	client := &fakeChat{fn: func(system, user string) (string, error) {
		return echoBatch(user)
	}}
	tr := New(client, contextConfig())

	cues := testCues(5)
	out, err := tr.Translate(context.Background(), cues, "en", "zh-CN")
	require.NoError(t, err)
	require.Len(t, out, 5)

	for i, c := range out {
		orig := fmt.Sprintf("line %d", i)
		assert.Equal(t, orig+"\nT:"+orig, c.Text)
		assert.Equal(t, cues[i].StartMs, c.StartMs)
		assert.Equal(t, cues[i].EndMs, c.EndMs)
	}
}

func TestTranslateRetriesThenFallsBackPerLine(t *testing.T) {
	client := &fakeChat{fn: func(system, user string) (string, error) {
		if strings.Contains(user, "Translate this subtitle line") {
			line := user[strings.LastIndex(user, "\n")+1:]
			return "T:" + line, nil
		}
		// Batch prompts always come back malformed.
		return "I'd rather chat about something else", nil
	}}
	tr := New(client, contextConfig())

	out, err := tr.Translate(context.Background(), testCues(2), "en", "zh-CN")
	require.NoError(t, err)
	assert.Equal(t, "line 0\nT:line 0", out[0].Text)
	assert.Equal(t, "line 1\nT:line 1", out[1].Text)

	// Two batch attempts (initial + one retry) before the line calls.
	batchCalls := 0
	for _, call := range client.calls {
		if strings.Contains(call, "Translate these lines:") {
			batchCalls++
		}
	}
	assert.Equal(t, 2, batchCalls)
}

func TestTranslateDegradesToOriginalText(t *testing.T) {
	client := &fakeChat{fn: func(system, user string) (string, error) {
		if strings.Contains(user, "line 1") {
			return "", fmt.Errorf("model unavailable")
		}
		if strings.Contains(user, "Translate this subtitle line") {
			return "译文", nil
		}
		return "garbage", nil
	}}
	tr := New(client, contextConfig())

	out, err := tr.Translate(context.Background(), testCues(2), "en", "zh-CN")
	require.NoError(t, err)

	// Line 0 got a per-line translation, line 1 kept the original.
	assert.Equal(t, "line 0\n译文", out[0].Text)
	assert.Equal(t, "line 1\nline 1", out[1].Text)
}

func TestTranslateFailsOnlyWhenNothingSucceeds(t *testing.T) {
	client := &fakeChat{fn: func(system, user string) (string, error) {
		return "", fmt.Errorf("model unavailable")
	}}
	tr := New(client, contextConfig())

	_, err := tr.Translate(context.Background(), testCues(3), "en", "zh-CN")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTranslation))
}

func TestTranslateSimplePath(t *testing.T) {
	client := &fakeChat{fn: func(system, user string) (string, error) {
		if !strings.Contains(user, "Translate this subtitle line") {
			return "", fmt.Errorf("unexpected prompt: %q", user)
		}
		line := user[strings.LastIndex(user, "\n")+1:]
		return `"T:` + line + `"`, nil
	}}

	cfg := Config{Context: ContextSettings{Enabled: false, Concurrency: 2}}
	tr := New(client, cfg)

	out, err := tr.Translate(context.Background(), testCues(3), "en", "zh-CN")
	require.NoError(t, err)

	// Surrounding quotes from the model are stripped.
	assert.Equal(t, "line 2\nT:line 2", out[2].Text)
}

func TestTranslateEmptyInput(t *testing.T) {
	tr := New(&fakeChat{}, contextConfig())
	out, err := tr.Translate(context.Background(), nil, "en", "zh-CN")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGuidanceFlowsIntoBatchPrompts(t *testing.T) {
	client := &fakeChat{fn: func(system, user string) (string, error) {
		switch {
		case strings.Contains(user, "Summarize the following transcript excerpt"):
			return "A talk about building compilers.", nil
		case strings.Contains(user, "List the proper nouns"):
			return `[{"source":"LLVM","target":"LLVM"}]`, nil
		default:
			if !strings.Contains(user, "A talk about building compilers.") {
				return "", fmt.Errorf("guidance missing from prompt")
			}
			if !strings.Contains(user, "LLVM") {
				return "", fmt.Errorf("glossary missing from prompt")
			}
			return echoBatch(user)
		}
	}}

	cfg := contextConfig()
	cfg.Summary = GuidanceSettings{Enabled: true, ChunkChars: 10000}
	cfg.Glossary = GuidanceSettings{Enabled: true, ChunkChars: 10000}
	tr := New(client, cfg)

	out, err := tr.Translate(context.Background(), testCues(2), "en", "zh-CN")
	require.NoError(t, err)
	assert.Equal(t, "line 0\nT:line 0", out[0].Text)
}

func TestGuidanceFailureIsNonFatal(t *testing.T) {
	client := &fakeChat{fn: func(system, user string) (string, error) {
		if strings.Contains(user, "Summarize the following transcript excerpt") {
			return "", fmt.Errorf("guidance backend down")
		}
		return echoBatch(user)
	}}

	cfg := contextConfig()
	cfg.Summary = GuidanceSettings{Enabled: true, ChunkChars: 10000}
	tr := New(client, cfg)

	out, err := tr.Translate(context.Background(), testCues(2), "en", "zh-CN")
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestChunkText(t *testing.T) {
	text := strings.Repeat("word ", 100)

	chunks := chunkText(strings.TrimSpace(text), 120)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 120)
		assert.NotEmpty(t, c)
	}

	assert.Equal(t, []string{"short"}, chunkText("short", 120))
}
