package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBatchResponse(t *testing.T) {
	raw := `[{"id":3,"translation":"三"},{"id":4,"translation":"四"}]`

	out, err := parseBatchResponse(raw, 3, 5)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{3: "三", 4: "四"}, out)
}

func TestParseBatchResponseFenced(t *testing.T) {
	raw := "Here you go:\n```json\n[{\"id\":0,\"translation\":\"a\"}]\n```\n"

	out, err := parseBatchResponse(raw, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", out[0])
}

func TestParseBatchResponseRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no array", "sorry, I cannot help with that"},
		{"wrong count", `[{"id":0,"translation":"a"}]`},
		{"id out of range", `[{"id":0,"translation":"a"},{"id":9,"translation":"b"}]`},
		{"duplicate id", `[{"id":0,"translation":"a"},{"id":0,"translation":"b"}]`},
		{"empty translation", `[{"id":0,"translation":"a"},{"id":1,"translation":"  "}]`},
		{"not json", `[{"id":0,"translation":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseBatchResponse(tt.raw, 0, 2)
			assert.Error(t, err)
		})
	}
}

func TestParseGlossaryResponse(t *testing.T) {
	raw := `[
		{"source":"Kubernetes","target":"Kubernetes","note":"keep untranslated"},
		{"source":"  ","target":"x"},
		{"source":"pod","target":"容器组"}
	]`

	entries, err := parseGlossaryResponse(raw)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Kubernetes", entries[0].Source)
	assert.Equal(t, "容器组", entries[1].Target)
}

func TestExtractJSONArray(t *testing.T) {
	assert.Equal(t, `[1,2]`, extractJSONArray("prefix [1,2] suffix"))
	assert.Equal(t, "", extractJSONArray("no array here"))
	assert.Equal(t, `[{"a":[1]}]`, extractJSONArray(`[{"a":[1]}]`))
}
