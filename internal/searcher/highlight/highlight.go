// Package highlight marks query terms inside stored field text and picks the
// densest fragment around them.
package highlight

import (
	"cmp"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/analysis"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/config"
)

const (
	DefaultPreTag       = "<font color='red'>"
	DefaultPostTag      = "</font>"
	DefaultFragmentSize = 4
)

// Highlighter is safe for concurrent use; it holds no per-call state.
type Highlighter struct {
	Analyzer analysis.Analyzer
	PreTag   string
	PostTag  string
	// FragmentSize is the window width in tokens.
	FragmentSize int
	// NoMatchSize is the number of leading tokens returned when nothing
	// matches. Zero returns the whole text.
	NoMatchSize int
}

func New(a analysis.Analyzer, cfg config.HighlightConfig) *Highlighter {
	h := &Highlighter{
		Analyzer:     a,
		PreTag:       cfg.PreTag,
		PostTag:      cfg.PostTag,
		FragmentSize: cfg.FragmentSize,
		NoMatchSize:  cfg.NoMatchSize,
	}
	if h.PreTag == "" && h.PostTag == "" {
		h.PreTag, h.PostTag = DefaultPreTag, DefaultPostTag
	}
	if h.FragmentSize <= 0 {
		h.FragmentSize = DefaultFragmentSize
	}
	return h
}

type window struct {
	start, end int // token range [start, end)
	hits       int
	distinct   int
}

// better orders windows: more hits, then more distinct terms, then earlier.
func better(a, b window) int {
	if c := cmp.Compare(b.hits, a.hits); c != 0 {
		return c
	}
	if c := cmp.Compare(b.distinct, a.distinct); c != 0 {
		return c
	}
	return cmp.Compare(a.start, b.start)
}

// Highlight returns the best fragment of text for q with matches wrapped in
// the tags. Text without matches is returned unmarked.
func (h *Highlighter) Highlight(q *parser.Query, field, text string) string {
	tokens, matched := h.match(q, field, text)
	windows := h.windows(tokens, matched)
	if len(windows) == 0 {
		return h.noMatch(tokens, text)
	}
	return h.render(text, tokens, matched, windows[0])
}

// BestFragments returns up to max non-overlapping fragments that contain
// matches, in text order.
func (h *Highlighter) BestFragments(q *parser.Query, field, text string, max int) []string {
	tokens, matched := h.match(q, field, text)
	var chosen []window
	for _, w := range h.windows(tokens, matched) {
		if len(chosen) == max {
			break
		}
		overlaps := slices.ContainsFunc(chosen, func(c window) bool {
			return w.start < c.end && c.start < w.end
		})
		if !overlaps {
			chosen = append(chosen, w)
		}
	}
	slices.SortFunc(chosen, func(a, b window) int { return cmp.Compare(a.start, b.start) })
	out := make([]string, len(chosen))
	for i, w := range chosen {
		out[i] = h.render(text, tokens, matched, w)
	}
	return out
}

func (h *Highlighter) queryTerms(q *parser.Query, field string) map[string]bool {
	terms := make(map[string]bool)
	for _, text := range q.Texts() {
		for _, t := range analysis.Terms(h.Analyzer, field, text) {
			terms[t] = true
		}
	}
	return terms
}

func (h *Highlighter) match(q *parser.Query, field, text string) ([]analysis.Token, []bool) {
	terms := h.queryTerms(q, field)
	tokens := analysis.Collect(h.Analyzer, field, text)
	matched := make([]bool, len(tokens))
	for i, tok := range tokens {
		matched[i] = terms[tok.Term]
	}
	return tokens, matched
}

// windows lists every window holding at least one match, best first.
func (h *Highlighter) windows(tokens []analysis.Token, matched []bool) []window {
	size := max(h.FragmentSize, 1)
	var out []window
	for start := 0; start == 0 || start+size <= len(tokens); start++ {
		end := min(start+size, len(tokens))
		w := window{start: start, end: end}
		seen := make(map[string]bool)
		for i := start; i < end; i++ {
			if matched[i] {
				w.hits++
				if !seen[tokens[i].Term] {
					seen[tokens[i].Term] = true
					w.distinct++
				}
			}
		}
		if w.hits > 0 {
			out = append(out, w)
		}
		if end == len(tokens) {
			break
		}
	}
	slices.SortStableFunc(out, better)
	return out
}

func (h *Highlighter) noMatch(tokens []analysis.Token, text string) string {
	if h.NoMatchSize <= 0 || h.NoMatchSize >= len(tokens) {
		return text
	}
	return text[:tokens[h.NoMatchSize-1].End]
}

// render copies the text covered by w, wrapping matched tokens. Text between
// tokens is kept verbatim.
func (h *Highlighter) render(text string, tokens []analysis.Token, matched []bool, w window) string {
	var b strings.Builder
	pos := tokens[w.start].Start
	for i := w.start; i < w.end; i++ {
		tok := tokens[i]
		b.WriteString(text[pos:tok.Start])
		if matched[i] {
			b.WriteString(h.PreTag)
			b.WriteString(text[tok.Start:tok.End])
			b.WriteString(h.PostTag)
		} else {
			b.WriteString(text[tok.Start:tok.End])
		}
		pos = tok.End
	}
	return b.String()
}
