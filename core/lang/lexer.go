package lang

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokSingleQuote
	tokDoubleQuote
	tokVariable
	tokDefine
	tokAssign
	tokLBracket
	tokRBracket
)

type token struct {
	Kind tokenKind
	Text string
	Line int
	Col  int
}

// SyntaxError reports a lexing or parsing failure with its position.
type SyntaxError struct {
	Line    int
	Col     int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Message)
}

type lexer struct {
	src  []rune
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src), line: 1, col: 1}
}

func (l *lexer) errorf(format string, args ...interface{}) error {
	return &SyntaxError{Line: l.line, Col: l.col, Message: fmt.Sprintf(format, args...)}
}

func (l *lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) next() rune {
	r := l.peek()
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *lexer) eof() bool { return l.pos >= len(l.src) }

// isWordRune reports whether r may appear in a bare word.
func isWordRune(r rune) bool {
	switch r {
	case '[', ']', '"', '\'', '#', 0:
		return false
	}
	return !unicode.IsSpace(r)
}

func (l *lexer) lex() ([]token, error) {
	var out []token
	for !l.eof() {
		r := l.peek()
		switch {
		case unicode.IsSpace(r):
			l.next()

		case r == '#':
			for !l.eof() && l.peek() != '\n' {
				l.next()
			}

		case r == '[':
			out = append(out, token{Kind: tokLBracket, Text: "[", Line: l.line, Col: l.col})
			l.next()

		case r == ']':
			out = append(out, token{Kind: tokRBracket, Text: "]", Line: l.line, Col: l.col})
			l.next()

		case r == '\'':
			tok, err := l.lexSingleQuote()
			if err != nil {
				return nil, err
			}
			out = append(out, tok)

		case r == '"':
			tok, err := l.lexDoubleQuote()
			if err != nil {
				return nil, err
			}
			out = append(out, tok)

		default:
			tok, err := l.lexWord()
			if err != nil {
				return nil, err
			}
			out = append(out, tok)
		}
	}
	out = append(out, token{Kind: tokEOF, Line: l.line, Col: l.col})
	return out, nil
}

func (l *lexer) lexSingleQuote() (token, error) {
	line, col := l.line, l.col
	l.next() // opening quote
	var sb strings.Builder
	for {
		if l.eof() {
			return token{}, &SyntaxError{Line: line, Col: col, Message: "unterminated single-quoted string"}
		}
		r := l.next()
		if r == '\'' {
			break
		}
		sb.WriteRune(r)
	}
	return token{Kind: tokSingleQuote, Text: sb.String(), Line: line, Col: col}, nil
}

// lexDoubleQuote keeps backslash escapes intact except for \" which would
// otherwise terminate the token; escape handling for $ and \ happens at
// evaluation time alongside variable interpolation.
func (l *lexer) lexDoubleQuote() (token, error) {
	line, col := l.line, l.col
	l.next() // opening quote
	var sb strings.Builder
	for {
		if l.eof() {
			return token{}, &SyntaxError{Line: line, Col: col, Message: "unterminated double-quoted string"}
		}
		r := l.next()
		switch r {
		case '"':
			return token{Kind: tokDoubleQuote, Text: sb.String(), Line: line, Col: col}, nil
		case '\\':
			if l.eof() {
				return token{}, &SyntaxError{Line: line, Col: col, Message: "unterminated double-quoted string"}
			}
			esc := l.next()
			if esc == '"' {
				sb.WriteRune('"')
			} else {
				sb.WriteRune('\\')
				sb.WriteRune(esc)
			}
		default:
			sb.WriteRune(r)
		}
	}
}

// isName reports whether s is a valid variable or assignment name.
func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

func (l *lexer) lexWord() (token, error) {
	line, col := l.line, l.col
	var sb strings.Builder
	for !l.eof() && isWordRune(l.peek()) {
		sb.WriteRune(l.next())
	}
	word := sb.String()
	if word == "" {
		return token{}, l.errorf("unexpected character %q", l.peek())
	}

	switch {
	case strings.HasPrefix(word, "$") && isName(word[1:]):
		return token{Kind: tokVariable, Text: word[1:], Line: line, Col: col}, nil

	case strings.HasPrefix(word, ":") && len(word) > 1:
		return token{Kind: tokDefine, Text: word[1:], Line: line, Col: col}, nil
	}

	if eq := strings.IndexByte(word, '='); eq > 0 && isName(word[:eq]) {
		// Operator words like 2>&1 never reach here: they contain no '='
		// before a name boundary, and >= style words fail isName.
		return token{Kind: tokAssign, Text: word, Line: line, Col: col}, nil
	}

	return token{Kind: tokWord, Text: word, Line: line, Col: col}, nil
}
