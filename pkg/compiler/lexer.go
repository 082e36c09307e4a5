package compiler

import (
	"fmt"
	"strings"
	"unicode"
)

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src       []rune
	pos       int // index of the next rune to consume
	line      int // current 1-based source line
	lineStart int // index of the first rune of the current line
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), pos: 0, line: 1}
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune { return l.peekAt(0) }

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune { return l.peekAt(1) }

func (l *Lexer) peekAt(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.lineStart = l.pos
	}
	return r
}

func (l *Lexer) col() int { return l.pos - l.lineStart + 1 }

func (l *Lexer) errorf(format string, args ...any) error {
	return fmt.Errorf("line %d:%d: %s", l.line, l.col(), fmt.Sprintf(format, args...))
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// skipLineComment discards everything from the current position to end-of-line.
// The opening "//" must already have been consumed.
func (l *Lexer) skipLineComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// skipBlockComment discards everything up to and including the closing "*/".
// The opening "/*" must already have been consumed.
func (l *Lexer) skipBlockComment() error {
	startLine := l.line
	for l.pos < len(l.src) {
		if l.peek() == '*' && l.peek2() == '/' {
			l.advance() // *
			l.advance() // /
			return nil
		}
		l.advance()
	}
	return fmt.Errorf("unterminated block comment (opened on line %d)", startLine)
}

// atLineStart reports whether only blanks precede the current position on
// its line.
func (l *Lexer) atLineStart() bool {
	return strings.TrimSpace(string(l.src[l.lineStart:l.pos])) == ""
}

// scanIdent collects a full identifier or keyword token.
// The first character (letter or '_') must still be at l.peek().
func (l *Lexer) scanIdent() Token {
	line, col := l.line, l.col()
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	tt := IDENTIFIER
	if kw, ok := keywords[lexeme]; ok {
		tt = kw
	}
	return Token{Type: tt, Lexeme: lexeme, Line: line, Col: col}
}

func isHexDigit(r rune) bool {
	return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// scanNumber collects an integer or floating constant with its suffix.
// The first digit (or the leading '.') must still be at l.peek().
func (l *Lexer) scanNumber() (Token, error) {
	line, col := l.line, l.col()
	start := l.pos
	tt := INTEGER

	if l.peek() == '0' && (l.peek2() == 'x' || l.peek2() == 'X') {
		l.advance() // consume '0'
		l.advance() // consume 'x'
		if !isHexDigit(l.peek()) {
			return Token{}, l.errorf("invalid hexadecimal constant")
		}
		for isHexDigit(l.peek()) {
			l.advance()
		}
	} else {
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
		if l.peek() == '.' {
			tt = FLOATING
			l.advance()
			for unicode.IsDigit(l.peek()) {
				l.advance()
			}
		}
		if l.peek() == 'e' || l.peek() == 'E' {
			tt = FLOATING
			l.advance()
			if l.peek() == '+' || l.peek() == '-' {
				l.advance()
			}
			if !unicode.IsDigit(l.peek()) {
				return Token{}, l.errorf("exponent has no digits")
			}
			for unicode.IsDigit(l.peek()) {
				l.advance()
			}
		}
	}

	// Suffixes are validated by the parser.
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	return Token{Type: tt, Lexeme: string(l.src[start:l.pos]), Line: line, Col: col}, nil
}

// scanEscape decodes the escape sequence after a backslash.
func (l *Lexer) scanEscape() (byte, error) {
	next := l.advance()
	switch next {
	case 'n':
		return '\n', nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case 'a':
		return '\a', nil
	case 'b':
		return '\b', nil
	case 'f':
		return '\f', nil
	case 'v':
		return '\v', nil
	case '\\', '\'', '"', '?':
		return byte(next), nil
	case 'x':
		if !isHexDigit(l.peek()) {
			return 0, l.errorf("\\x used with no following hex digits")
		}
		var v int
		for isHexDigit(l.peek()) {
			r := unicode.ToLower(l.advance())
			if r >= 'a' {
				v = v*16 + int(r-'a'+10)
			} else {
				v = v*16 + int(r-'0')
			}
		}
		if v > 0xff {
			return 0, l.errorf("hex escape sequence out of range")
		}
		return byte(v), nil
	}
	if next >= '0' && next <= '7' {
		v := int(next - '0')
		for i := 0; i < 2 && l.peek() >= '0' && l.peek() <= '7'; i++ {
			v = v*8 + int(l.advance()-'0')
		}
		if v > 0xff {
			return 0, l.errorf("octal escape sequence out of range")
		}
		return byte(v), nil
	}
	return 0, l.errorf("unknown escape sequence \\%c", next)
}

// scanChar collects a character constant 'c'.
func (l *Lexer) scanChar() (Token, error) {
	line, col := l.line, l.col()
	l.advance() // consume opening '

	var val byte
	switch r := l.peek(); {
	case r == '\'':
		return Token{}, l.errorf("empty character constant")
	case r == '\n' || r == 0:
		return Token{}, l.errorf("unterminated character constant")
	case r == '\\':
		l.advance()
		v, err := l.scanEscape()
		if err != nil {
			return Token{}, err
		}
		val = v
	case r > 0xff:
		return Token{}, l.errorf("character constant %q does not fit in a char", r)
	default:
		val = byte(l.advance())
	}

	if l.peek() != '\'' {
		return Token{}, l.errorf("multi-character or unterminated character constant")
	}
	l.advance() // consume closing '

	return Token{Type: CHARACTER, Lexeme: fmt.Sprintf("%d", val), Line: line, Col: col}, nil
}

// scanString collects a string literal "...". The lexeme holds the decoded
// bytes.
func (l *Lexer) scanString() (Token, error) {
	line, col := l.line, l.col()
	l.advance() // consume opening "
	var val []byte

	for {
		r := l.peek()
		switch {
		case r == '"':
			l.advance() // consume closing "
			return Token{Type: STRING, Lexeme: string(val), Line: line, Col: col}, nil
		case r == '\n' || l.pos >= len(l.src):
			return Token{}, fmt.Errorf("unterminated string literal on line %d", line)
		case r == '\\':
			l.advance()
			b, err := l.scanEscape()
			if err != nil {
				return Token{}, err
			}
			val = append(val, b)
		default:
			val = append(val, string(l.advance())...)
		}
	}
}

// punctuators is ordered longest first so that maximal munch wins.
var punctuators = []struct {
	text string
	tt   TokenType
}{
	{"...", ELLIPSIS}, {"<<=", SHL_ASSIGN}, {">>=", SHR_ASSIGN},
	{"->", ARROW}, {"++", PLUS_PLUS}, {"--", MINUS_MINUS},
	{"<<", SHL_OP}, {">>", SHR_OP}, {"<=", LESS_EQ}, {">=", GREATER_EQ},
	{"==", EQUALS}, {"!=", NOT_EQ}, {"&&", AND_LOGICAL}, {"||", OR_LOGICAL},
	{"*=", STAR_ASSIGN}, {"/=", SLASH_ASSIGN}, {"%=", PERCENT_ASSIGN},
	{"+=", PLUS_ASSIGN}, {"-=", MINUS_ASSIGN}, {"&=", AND_ASSIGN},
	{"^=", XOR_ASSIGN}, {"|=", OR_ASSIGN},
	{"{", LBRACE}, {"}", RBRACE}, {"(", LPAREN}, {")", RPAREN},
	{"[", LBRACKET}, {"]", RBRACKET}, {".", DOT}, {";", SEMICOLON},
	{",", COMMA}, {":", COLON}, {"?", QUESTION}, {"+", PLUS}, {"-", MINUS},
	{"*", STAR}, {"/", SLASH}, {"%", PERCENT}, {"&", AND}, {"|", PIPE},
	{"^", CARET}, {"~", TILDE}, {"!", NOT}, {"<", LESS}, {">", GREATER},
	{"=", ASSIGN},
}

func (l *Lexer) hasPrefix(s string) bool {
	for i, r := range []rune(s) {
		if l.peekAt(i) != r {
			return false
		}
	}
	return true
}

// nextToken skips whitespace/comments and returns the next Token.
func (l *Lexer) nextToken() (Token, error) {
	// Skip whitespace and both comment styles in a loop so that
	// a comment followed immediately by more whitespace is handled.
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			return Token{Type: EOF, Lexeme: "", Line: l.line, Col: l.col()}, nil
		}
		if l.peek() == '/' && l.peek2() == '/' {
			l.advance()
			l.advance()
			l.skipLineComment()
			continue
		}
		if l.peek() == '/' && l.peek2() == '*' {
			l.advance()
			l.advance()
			if err := l.skipBlockComment(); err != nil {
				return Token{}, err
			}
			continue
		}
		break
	}

	ch := l.peek()
	line, col := l.line, l.col()

	switch {
	case ch == '#' && l.atLineStart():
		return Token{}, l.errorf("preprocessing directives are not supported; run the preprocessor first")
	case unicode.IsLetter(ch) || ch == '_':
		return l.scanIdent(), nil
	case unicode.IsDigit(ch) || (ch == '.' && unicode.IsDigit(l.peek2())):
		return l.scanNumber()
	case ch == '"':
		return l.scanString()
	case ch == '\'':
		return l.scanChar()
	}

	for _, p := range punctuators {
		if l.hasPrefix(p.text) {
			for range p.text {
				l.advance()
			}
			return Token{Type: p.tt, Lexeme: p.text, Line: line, Col: col}, nil
		}
	}
	return Token{}, fmt.Errorf("unexpected character %q on line %d", ch, line)
}

// Lex tokenises src and returns all tokens including the final EOF token.
// It returns a non-nil error on the first illegal character or unterminated comment.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}
