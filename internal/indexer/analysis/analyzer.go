// Package analysis turns field text into the positional, offset-carrying
// terms stored in postings. The same analyzer must be used at index time and
// at query time.
package analysis

import (
	"iter"
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/config"
)

// Token is one term produced from a field value. Start and End are byte
// offsets into the original text; Position counts tokens from zero.
type Token struct {
	Term     string
	Position int
	Start    int
	End      int
}

// Analyzer splits the text of a field into tokens.
type Analyzer interface {
	Analyze(field, text string) iter.Seq[Token]
}

// Func adapts a function to Analyzer.
type Func func(field, text string) iter.Seq[Token]

func (f Func) Analyze(field, text string) iter.Seq[Token] { return f(field, text) }

var englishStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {}, "for": {}, "if": {}, "in": {},
	"into": {}, "is": {}, "it": {}, "no": {}, "not": {}, "of": {},
	"on": {}, "or": {}, "such": {}, "that": {}, "the": {}, "their": {},
	"then": {}, "there": {}, "these": {}, "they": {}, "this": {}, "to": {},
	"was": {}, "will": {}, "with": {},
}

// Standard segments text on Unicode word boundaries (UAX #29), applies NFKC
// normalization and lower-casing, and optionally drops English stop words
// and stems with Snowball. Ideographic scripts come out one character per
// token, so CJK text is searchable without a dictionary.
type Standard struct {
	stopWords map[string]struct{}
	stem      bool
}

// StandardOption configures a Standard analyzer.
type StandardOption func(*Standard)

// WithStopWords drops the English stop word list. Dropped words still
// consume a position so phrase distances are preserved.
func WithStopWords() StandardOption {
	return func(s *Standard) { s.stopWords = englishStopWords }
}

// WithStemming reduces English words to their Snowball stem.
func WithStemming() StandardOption {
	return func(s *Standard) { s.stem = true }
}

func NewStandard(opts ...StandardOption) *Standard {
	s := &Standard{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (a *Standard) Analyze(_ string, text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		segments := words.FromString(text)
		offset, pos := 0, 0
		for segments.Next() {
			value := segments.Value()
			start := offset
			offset += len(value)
			if !isWord(value) {
				continue
			}
			term := strings.ToLower(norm.NFKC.String(value))
			if _, stop := a.stopWords[term]; stop {
				pos++
				continue
			}
			if a.stem {
				term = english.Stem(term, false)
			}
			if !yield(Token{Term: term, Position: pos, Start: start, End: offset}) {
				return
			}
			pos++
		}
	}
}

func isWord(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// Keyword emits the whole trimmed value as a single token. It suits
// identifiers that must match exactly.
type Keyword struct{}

func (Keyword) Analyze(_ string, text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return
		}
		start := strings.Index(text, trimmed)
		yield(Token{
			Term:     norm.NFKC.String(trimmed),
			Position: 0,
			Start:    start,
			End:      start + len(trimmed),
		})
	}
}

// PerField routes fields to dedicated analyzers and falls back to Default.
type PerField struct {
	Default Analyzer
	Fields  map[string]Analyzer
}

func (p *PerField) Analyze(field, text string) iter.Seq[Token] {
	if a, ok := p.Fields[field]; ok {
		return a.Analyze(field, text)
	}
	return p.Default.Analyze(field, text)
}

// FromConfig builds the analyzer described by cfg: a Standard analyzer with
// the configured filters, wrapped in a PerField when keyword fields are set.
func FromConfig(cfg config.AnalyzerConfig) Analyzer {
	var opts []StandardOption
	if cfg.StopWords {
		opts = append(opts, WithStopWords())
	}
	if cfg.Stem {
		opts = append(opts, WithStemming())
	}
	std := NewStandard(opts...)
	if len(cfg.KeywordFields) == 0 {
		return std
	}
	fields := make(map[string]Analyzer, len(cfg.KeywordFields))
	for _, f := range cfg.KeywordFields {
		fields[f] = Keyword{}
	}
	return &PerField{Default: std, Fields: fields}
}

// Limit caps the number of tokens a field may produce. Tokens past max are
// silently dropped. max <= 0 means unlimited.
func Limit(a Analyzer, max int) Analyzer {
	if max <= 0 {
		return a
	}
	return Func(func(field, text string) iter.Seq[Token] {
		return func(yield func(Token) bool) {
			n := 0
			for tok := range a.Analyze(field, text) {
				if n >= max || !yield(tok) {
					return
				}
				n++
			}
		}
	})
}

// Collect materializes the tokens of one value.
func Collect(a Analyzer, field, text string) []Token {
	var out []Token
	for tok := range a.Analyze(field, text) {
		out = append(out, tok)
	}
	return out
}

// Terms returns just the terms of one value.
func Terms(a Analyzer, field, text string) []string {
	var out []string
	for tok := range a.Analyze(field, text) {
		out = append(out, tok.Term)
	}
	return out
}
