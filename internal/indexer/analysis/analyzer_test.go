package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/config"
)

func TestStandardSplitsCJKPerCharacter(t *testing.T) {
	text := "钟无艳"
	toks := Collect(NewStandard(), "userName", text)
	require.Len(t, toks, 3)
	assert.Equal(t, "钟", toks[0].Term)
	assert.Equal(t, "艳", toks[2].Term)
	for i, tok := range toks {
		assert.Equal(t, i, tok.Position)
		assert.Equal(t, tok.Term, text[tok.Start:tok.End])
	}
}

func TestStandardOffsetsPointIntoOriginal(t *testing.T) {
	text := "Hello, WORLD! Ｆｕｌｌ"
	toks := Collect(NewStandard(), "f", text)
	require.Len(t, toks, 3)
	assert.Equal(t, []string{"hello", "world", "full"}, Terms(NewStandard(), "f", text))
	assert.Equal(t, "WORLD", text[toks[1].Start:toks[1].End])
	assert.Equal(t, "Ｆｕｌｌ", text[toks[2].Start:toks[2].End])
}

func TestStopWordsKeepPositions(t *testing.T) {
	toks := Collect(NewStandard(WithStopWords()), "f", "the quick fox")
	require.Len(t, toks, 2)
	assert.Equal(t, "quick", toks[0].Term)
	assert.Equal(t, 1, toks[0].Position)
	assert.Equal(t, 2, toks[1].Position)
}

func TestStemming(t *testing.T) {
	assert.Equal(t, []string{"run", "fox"}, Terms(NewStandard(WithStemming()), "f", "running foxes"))
}

func TestKeywordAndPerField(t *testing.T) {
	a := FromConfig(config.AnalyzerConfig{KeywordFields: []string{"id"}})

	assert.Equal(t, []string{"A-17"}, Terms(a, "id", "  A-17 "))
	assert.Equal(t, []string{"a", "17"}, Terms(a, "other", "A-17"))
	assert.Empty(t, Terms(a, "id", "   "))
}

func TestLimitTruncates(t *testing.T) {
	a := Limit(NewStandard(), 2)
	assert.Equal(t, []string{"one", "two"}, Terms(a, "f", "one two three four"))
}

func TestSameInputSameTokens(t *testing.T) {
	a := NewStandard(WithStopWords(), WithStemming())
	assert.Equal(t, Collect(a, "f", "拥有强健的肌肉 and speed"), Collect(a, "f", "拥有强健的肌肉 and speed"))
}
