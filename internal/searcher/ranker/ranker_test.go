package ranker

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
)

func TestBM25Monotonicity(t *testing.T) {
	assert.Greater(t, IDF(100, 1), IDF(100, 10), "idf decreases with df")
	assert.Greater(t, IDF(100, 100), 0.0, "idf stays positive")

	assert.Greater(t, TFNorm(3, 10, 10), TFNorm(1, 10, 10), "tf increases with frequency")
	assert.Greater(t, TFNorm(1, 5, 10), TFNorm(1, 20, 10), "shorter fields score higher")
	assert.Zero(t, TFNorm(0, 10, 10))
	assert.InDelta(t, 1.0, TFNorm(1, 10, 0), 1e-9, "zero average length disables normalization")

	assert.InDelta(t, IDF(10, 2)*TFNorm(2, 4, 4), BM25(IDF(10, 2), 2, 4, 4), 1e-12)
}

func TestDisMax(t *testing.T) {
	assert.Equal(t, 5.0, DisMax([]float64{5, 2}, 0))
	assert.Equal(t, 5.0, DisMax([]float64{2, 5}, 0))
	assert.InDelta(t, 6.0, DisMax([]float64{5, 2}, 0.5), 1e-12)
	assert.Zero(t, DisMax(nil, 0.3))
}

func TestParseSort(t *testing.T) {
	fields, err := ParseSort("id:numeric:desc, userName")
	require.NoError(t, err)
	assert.Equal(t, []SortField{
		{Field: "id", Type: Numeric, Descending: true},
		{Field: "userName", Type: Lexical},
	}, fields)
	assert.Equal(t, "id:numeric:desc", fields[0].String())

	none, err := ParseSort("  ")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = ParseSort("id:sideways")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = ParseSort(",id")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCompare(t *testing.T) {
	docs := []ScoredDoc{
		{ID: 1, Score: 1, Values: []string{"2"}},
		{ID: 2, Score: 3, Values: []string{"10"}},
		{ID: 3, Score: 2, Values: []string{"n/a"}},
		{ID: 4, Score: 5, Values: []string{"10"}},
	}

	byID := slices.Clone(docs)
	slices.SortFunc(byID, Compare([]SortField{{Field: "id", Type: Numeric, Descending: true}}))
	assert.Equal(t, []float64{5, 3, 1, 2}, scores(byID), "numeric desc, score breaks ties, non-numeric last")

	asc := slices.Clone(docs)
	slices.SortFunc(asc, Compare([]SortField{{Field: "id", Type: Numeric}}))
	assert.Equal(t, []float64{1, 5, 3, 2}, scores(asc))

	lexical := slices.Clone(docs)
	slices.SortFunc(lexical, Compare([]SortField{{Field: "id", Type: Lexical}}))
	assert.Equal(t, []float64{5, 3, 1, 2}, scores(lexical), `"10" < "2" < "n/a" lexically`)

	byScore := slices.Clone(docs)
	slices.SortFunc(byScore, Compare(nil))
	assert.Equal(t, []float64{5, 3, 2, 1}, scores(byScore))

	tied := []ScoredDoc{{ID: 9, Score: 1}, {ID: 4, Score: 1}}
	slices.SortFunc(tied, Compare(nil))
	assert.Equal(t, 4, int(tied[0].ID), "id ascending on equal scores")
}

func scores(docs []ScoredDoc) []float64 {
	out := make([]float64, len(docs))
	for i, d := range docs {
		out[i] = d.Score
	}
	return out
}
