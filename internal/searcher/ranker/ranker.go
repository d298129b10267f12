// Package ranker holds the BM25 scoring functions and the result ordering
// used by the executor.
package ranker

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
)

const (
	k1 = 1.2
	b  = 0.75
)

// ScoredDoc is one candidate. Values holds the stored values of the sort
// fields, in sort order.
type ScoredDoc struct {
	ID     document.DocID `json:"id"`
	Score  float64        `json:"score"`
	Values []string       `json:"-"`
}

// IDF is ln(1 + (N-df+0.5)/(df+0.5)); it decreases as df grows.
func IDF(totalDocs, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(1 + numerator/denominator)
}

// TFNorm saturates a term frequency against the document length. It grows
// with termFreq.
func TFNorm(termFreq, docLength, avgDocLength float64) float64 {
	if termFreq <= 0 {
		return 0
	}
	lengthRatio := 1.0
	if avgDocLength > 0 {
		lengthRatio = docLength / avgDocLength
	}
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}

// BM25 scores one term (or phrase) in one document field.
func BM25(idf, termFreq, docLength, avgDocLength float64) float64 {
	return idf * TFNorm(termFreq, docLength, avgDocLength)
}

// DisMax combines per-field scores: the best field plus tieBreaker times the
// others.
func DisMax(scores []float64, tieBreaker float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	best, sum := scores[0], 0.0
	for _, s := range scores {
		best = max(best, s)
		sum += s
	}
	return best + tieBreaker*(sum-best)
}

type SortType int

const (
	Numeric SortType = iota
	Lexical
)

// SortField orders results by a stored field.
type SortField struct {
	Field      string   `json:"field"`
	Type       SortType `json:"type"`
	Descending bool     `json:"descending"`
}

func (f SortField) String() string {
	kind := "numeric"
	if f.Type == Lexical {
		kind = "lexical"
	}
	dir := "asc"
	if f.Descending {
		dir = "desc"
	}
	return f.Field + ":" + kind + ":" + dir
}

// ParseSort reads a comma separated list of field[:numeric|lexical][:asc|desc].
// The type defaults to lexical and the direction to ascending.
func ParseSort(spec string) ([]SortField, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	var fields []SortField
	for _, part := range strings.Split(spec, ",") {
		bits := strings.Split(strings.TrimSpace(part), ":")
		if bits[0] == "" || len(bits) > 3 {
			return nil, fmt.Errorf("%w: bad sort clause %q", apperrors.ErrInvalidInput, part)
		}
		f := SortField{Field: bits[0], Type: Lexical}
		for _, opt := range bits[1:] {
			switch strings.ToLower(opt) {
			case "numeric", "int", "number":
				f.Type = Numeric
			case "lexical", "string":
				f.Type = Lexical
			case "desc":
				f.Descending = true
			case "asc":
				f.Descending = false
			default:
				return nil, fmt.Errorf("%w: unknown sort option %q", apperrors.ErrInvalidInput, opt)
			}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// Compare returns the ordering of a and b under sort, followed by score
// descending and id ascending. Non-numeric values of a numeric field sort
// after every number regardless of direction.
func Compare(sort []SortField) func(a, b ScoredDoc) int {
	return func(a, b ScoredDoc) int {
		for i, f := range sort {
			if c := compareValue(f, value(a, i), value(b, i)); c != 0 {
				return c
			}
		}
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	}
}

func value(d ScoredDoc, i int) string {
	if i < len(d.Values) {
		return d.Values[i]
	}
	return ""
}

func compareValue(f SortField, a, b string) int {
	if f.Type == Numeric {
		x, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
		y, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
		switch {
		case errA != nil && errB != nil:
			return 0
		case errA != nil:
			return 1
		case errB != nil:
			return -1
		}
		if f.Descending {
			return cmp.Compare(y, x)
		}
		return cmp.Compare(x, y)
	}
	if f.Descending {
		return strings.Compare(b, a)
	}
	return strings.Compare(a, b)
}
