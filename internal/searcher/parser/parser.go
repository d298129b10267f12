// Package parser turns keyword strings into a boolean query tree. The syntax
// has bare words, "quoted phrases", +required and -prohibited clauses,
// AND/OR/NOT and parentheses. The default
// operator is OR. Words are kept raw; the executor analyzes them per field.
package parser

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
)

// Occur says how a clause participates in its boolean.
type Occur int

const (
	Should Occur = iota
	Must
	MustNot
)

func (o Occur) prefix() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	}
	return ""
}

// Node is one of *Term, *Phrase or *Boolean.
type Node interface {
	String() string
}

// Term is a single bare word. Analysis may split it into several tokens, in
// which case it matches them as a phrase.
type Term struct {
	Text string
}

// Phrase is quoted text matched positionally.
type Phrase struct {
	Text string
}

type Clause struct {
	Occur Occur
	Node  Node
}

type Boolean struct {
	Clauses []Clause
}

func (t *Term) String() string   { return t.Text }
func (p *Phrase) String() string { return fmt.Sprintf("%q", p.Text) }

func (b *Boolean) String() string {
	parts := make([]string, len(b.Clauses))
	for i, c := range b.Clauses {
		s := c.Node.String()
		if _, nested := c.Node.(*Boolean); nested {
			s = "(" + s + ")"
		}
		parts[i] = c.Occur.prefix() + s
	}
	return strings.Join(parts, " ")
}

// Query is a parsed keyword string.
type Query struct {
	Raw  string
	Root *Boolean
}

// String renders the query canonically: operators are resolved into
// occurrence prefixes, so equivalent inputs render the same.
func (q *Query) String() string { return q.Root.String() }

// Texts lists the text of every term and phrase that is not prohibited.
func (q *Query) Texts() []string {
	var out []string
	var walk func(b *Boolean)
	walk = func(b *Boolean) {
		for _, c := range b.Clauses {
			if c.Occur == MustNot {
				continue
			}
			switch n := c.Node.(type) {
			case *Term:
				out = append(out, n.Text)
			case *Phrase:
				out = append(out, n.Text)
			case *Boolean:
				walk(n)
			}
		}
	}
	walk(q.Root)
	return out
}

// Parse parses keywords. Errors are *apperrors.QueryParseError.
func Parse(keywords string) (*Query, error) {
	p := &parser{input: keywords}
	if strings.TrimSpace(keywords) == "" {
		return nil, p.errorf(0, "empty query")
	}
	tokens, err := p.lex()
	if err != nil {
		return nil, err
	}
	p.tokens = tokens
	root, err := p.parseGroup(0, false)
	if err != nil {
		return nil, err
	}
	return &Query{Raw: keywords, Root: root}, nil
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokPhrase
	tokAnd
	tokOr
	tokNot
	tokPlus
	tokMinus
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type parser struct {
	input  string
	tokens []token
	next   int
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &apperrors.QueryParseError{Query: p.input, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

// lex splits the input on whitespace, parentheses and quotes. A leading + or
// - is a modifier; inside a word both are ordinary characters. A backslash
// escapes the next character.
func (p *parser) lex() ([]token, error) {
	var tokens []token
	s := p.input
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case isSpace(c):
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, pos: i})
			i++
		case c == '+' || c == '-':
			kind := tokPlus
			if c == '-' {
				kind = tokMinus
			}
			tokens = append(tokens, token{kind: kind, pos: i})
			i++
		case c == '"':
			start := i
			var b strings.Builder
			i++
			closed := false
			for i < len(s) {
				if s[i] == '\\' && i+1 < len(s) {
					b.WriteByte(s[i+1])
					i += 2
					continue
				}
				if s[i] == '"' {
					closed = true
					i++
					break
				}
				b.WriteByte(s[i])
				i++
			}
			if !closed {
				return nil, p.errorf(start, "unterminated quote")
			}
			tokens = append(tokens, token{kind: tokPhrase, text: b.String(), pos: start})
		default:
			start := i
			var b strings.Builder
			for i < len(s) && !isSpace(s[i]) && s[i] != '(' && s[i] != ')' && s[i] != '"' {
				if s[i] == '\\' {
					if i+1 >= len(s) {
						return nil, p.errorf(i, "dangling escape character")
					}
					b.WriteByte(s[i+1])
					i += 2
					continue
				}
				b.WriteByte(s[i])
				i++
			}
			raw := s[start:i]
			switch raw {
			case "AND", "&&":
				tokens = append(tokens, token{kind: tokAnd, pos: start})
			case "OR", "||":
				tokens = append(tokens, token{kind: tokOr, pos: start})
			case "NOT", "!":
				tokens = append(tokens, token{kind: tokNot, pos: start})
			default:
				tokens = append(tokens, token{kind: tokWord, text: b.String(), pos: start})
			}
		}
	}
	return append(tokens, token{kind: tokEOF, pos: len(s)}), nil
}

func (p *parser) peek() token { return p.tokens[p.next] }

func (p *parser) take() token {
	t := p.tokens[p.next]
	if t.kind != tokEOF {
		p.next++
	}
	return t
}

// parseGroup reads clauses until EOF or, when nested, the closing paren.
func (p *parser) parseGroup(open int, nested bool) (*Boolean, error) {
	group := &Boolean{}
	conj := tokOr
	pendingConj := false
	conjPos := 0
	for {
		t := p.peek()
		switch t.kind {
		case tokEOF:
			if nested {
				return nil, p.errorf(open, "unbalanced parenthesis")
			}
			return p.finish(group, open, pendingConj, conjPos)
		case tokRParen:
			if !nested {
				return nil, p.errorf(t.pos, "unbalanced parenthesis")
			}
			if len(group.Clauses) == 0 && !pendingConj {
				return nil, p.errorf(open, "empty group")
			}
			p.take()
			return p.finish(group, open, pendingConj, conjPos)
		case tokAnd, tokOr:
			p.take()
			if len(group.Clauses) == 0 || pendingConj {
				return nil, p.errorf(t.pos, "dangling operator")
			}
			conj, pendingConj, conjPos = t.kind, true, t.pos
			continue
		}

		occur, node, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		if conj == tokAnd && pendingConj {
			prev := &group.Clauses[len(group.Clauses)-1]
			if prev.Occur == Should {
				prev.Occur = Must
			}
			if occur == Should {
				occur = Must
			}
		}
		group.Clauses = append(group.Clauses, Clause{Occur: occur, Node: node})
		conj, pendingConj = tokOr, false
	}
}

func (p *parser) finish(group *Boolean, open int, pendingConj bool, conjPos int) (*Boolean, error) {
	if pendingConj {
		return nil, p.errorf(conjPos, "dangling operator")
	}
	for _, c := range group.Clauses {
		if c.Occur != MustNot {
			return group, nil
		}
	}
	return nil, p.errorf(open, "query has only prohibited clauses")
}

func (p *parser) parseClause() (Occur, Node, error) {
	occur := Should
	t := p.peek()
	switch t.kind {
	case tokPlus:
		occur = Must
	case tokMinus, tokNot:
		occur = MustNot
	}
	if occur != Should {
		p.take()
		if k := p.peek().kind; k == tokEOF || k == tokRParen || k == tokAnd || k == tokOr || k == tokPlus || k == tokMinus || k == tokNot {
			return 0, nil, p.errorf(t.pos, "dangling operator")
		}
	}

	t = p.take()
	switch t.kind {
	case tokWord:
		return occur, &Term{Text: t.text}, nil
	case tokPhrase:
		return occur, &Phrase{Text: t.text}, nil
	case tokLParen:
		group, err := p.parseGroup(t.pos, true)
		if err != nil {
			return 0, nil, err
		}
		return occur, group, nil
	}
	return 0, nil, p.errorf(t.pos, "unexpected token")
}
