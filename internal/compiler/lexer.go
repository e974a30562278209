package compiler

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokLBrace
	tokRBrace
	// tokTerm ends a node: a newline or an explicit ';'.
	tokTerm
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokTerm:
		return "terminator"
	}
	return "unknown token"
}

type token struct {
	kind tokenKind
	text string
	line int
}

type lexer struct {
	input string
	pos   int
	line  int
}

func newLexer(input string) *lexer {
	return &lexer{input: input, line: 1}
}

func (l *lexer) errorf(format string, args ...interface{}) error {
	return &SyntaxError{Line: l.line, Detail: fmt.Sprintf(format, args...)}
}

func (l *lexer) peekByte() (byte, bool) {
	if l.pos >= len(l.input) {
		return 0, false
	}
	return l.input[l.pos], true
}

// next returns the following token, folding runs of blank lines into a single
// terminator and dropping comments.
func (l *lexer) next() (token, error) {
	for {
		c, ok := l.peekByte()
		if !ok {
			return token{kind: tokEOF, line: l.line}, nil
		}
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '\n':
			tok := token{kind: tokTerm, line: l.line}
			for {
				c, ok := l.peekByte()
				if !ok || (c != '\n' && c != ' ' && c != '\t' && c != '\r') {
					break
				}
				if c == '\n' {
					l.line++
				}
				l.pos++
			}
			return tok, nil
		case c == ';':
			tok := token{kind: tokTerm, line: l.line}
			l.pos++
			return tok, nil
		case c == '{':
			tok := token{kind: tokLBrace, line: l.line}
			l.pos++
			return tok, nil
		case c == '}':
			tok := token{kind: tokRBrace, line: l.line}
			l.pos++
			return tok, nil
		case c == '"':
			return l.lexString()
		case c == '/' && strings.HasPrefix(l.input[l.pos:], "//"):
			for {
				c, ok := l.peekByte()
				if !ok || c == '\n' {
					break
				}
				l.pos++
			}
		case c == '/' && strings.HasPrefix(l.input[l.pos:], "/*"):
			if err := l.skipBlockComment(); err != nil {
				return token{}, err
			}
		case isIdentStart(c):
			return l.lexIdent(), nil
		default:
			return token{}, l.errorf("unexpected character %q", string(c))
		}
	}
}

func (l *lexer) lexIdent() token {
	start := l.pos
	for {
		c, ok := l.peekByte()
		if !ok || !isIdentPart(c) {
			break
		}
		l.pos++
	}
	return token{kind: tokIdent, text: l.input[start:l.pos], line: l.line}
}

func (l *lexer) lexString() (token, error) {
	startLine := l.line
	l.pos++ // opening quote
	var b strings.Builder
	for {
		c, ok := l.peekByte()
		if !ok {
			return token{}, &SyntaxError{Line: startLine, Detail: "unterminated string"}
		}
		l.pos++
		switch c {
		case '"':
			return token{kind: tokString, text: b.String(), line: startLine}, nil
		case '\n':
			return token{}, &SyntaxError{Line: startLine, Detail: "unterminated string"}
		case '\\':
			esc, ok := l.peekByte()
			if !ok {
				return token{}, &SyntaxError{Line: startLine, Detail: "unterminated string"}
			}
			l.pos++
			switch esc {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				return token{}, &SyntaxError{Line: l.line, Detail: fmt.Sprintf("invalid escape sequence \\%s", string(esc))}
			}
		default:
			b.WriteByte(c)
		}
	}
}

func (l *lexer) skipBlockComment() error {
	startLine := l.line
	l.pos += 2
	for {
		c, ok := l.peekByte()
		if !ok {
			return &SyntaxError{Line: startLine, Detail: "unterminated block comment"}
		}
		if c == '\n' {
			l.line++
		}
		if c == '*' && strings.HasPrefix(l.input[l.pos:], "*/") {
			l.pos += 2
			return nil
		}
		l.pos++
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c == '-' || (c >= '0' && c <= '9')
}
