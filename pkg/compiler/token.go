package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // variable / function / typedef name
	INTEGER    // integer constant, suffix included in the lexeme
	FLOATING   // floating constant
	CHARACTER  // character constant, lexeme is its decimal value
	STRING     // string literal, lexeme is the decoded text

	// Keywords
	AUTO
	BREAK
	CASE
	CHAR
	CONST
	CONTINUE
	DEFAULT
	DO
	DOUBLE
	ELSE
	ENUM
	EXTERN
	FLOAT
	FOR
	GOTO
	IF
	INT
	LONG
	REGISTER
	RETURN
	SHORT
	SIGNED
	SIZEOF
	STATIC
	STRUCT
	SWITCH
	TYPEDEF
	UNION
	UNSIGNED
	VOID
	VOLATILE
	WHILE

	// Paired delimiters
	LBRACE   // {
	RBRACE   // }
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]

	// Punctuation
	DOT       // .
	ARROW     // ->
	SEMICOLON // ;
	COMMA     // ,
	COLON     // :
	QUESTION  // ?
	ELLIPSIS  // ...

	// Arithmetic operators
	PLUS        // +
	MINUS       // -
	STAR        // *
	SLASH       // /
	PERCENT     // %
	AND         // & (binary bitwise AND, or unary address-of)
	PIPE        // |
	CARET       // ^
	TILDE       // ~
	SHL_OP      // <<
	SHR_OP      // >>
	AND_LOGICAL // &&
	OR_LOGICAL  // ||
	NOT         // !

	PLUS_PLUS   // ++
	MINUS_MINUS // --

	// Assignment
	ASSIGN         // =
	STAR_ASSIGN    // *=
	SLASH_ASSIGN   // /=
	PERCENT_ASSIGN // %=
	PLUS_ASSIGN    // +=
	MINUS_ASSIGN   // -=
	SHL_ASSIGN     // <<=
	SHR_ASSIGN     // >>=
	AND_ASSIGN     // &=
	XOR_ASSIGN     // ^=
	OR_ASSIGN      // |=

	// Comparison
	EQUALS     // ==
	NOT_EQ     // !=
	LESS       // <
	GREATER    // >
	LESS_EQ    // <=
	GREATER_EQ // >=
)

var tokenNames = [...]string{
	EOF:            "EOF",
	IDENTIFIER:     "IDENTIFIER",
	INTEGER:        "INTEGER",
	FLOATING:       "FLOATING",
	CHARACTER:      "CHARACTER",
	STRING:         "STRING",
	AUTO:           "auto",
	BREAK:          "break",
	CASE:           "case",
	CHAR:           "char",
	CONST:          "const",
	CONTINUE:       "continue",
	DEFAULT:        "default",
	DO:             "do",
	DOUBLE:         "double",
	ELSE:           "else",
	ENUM:           "enum",
	EXTERN:         "extern",
	FLOAT:          "float",
	FOR:            "for",
	GOTO:           "goto",
	IF:             "if",
	INT:            "int",
	LONG:           "long",
	REGISTER:       "register",
	RETURN:         "return",
	SHORT:          "short",
	SIGNED:         "signed",
	SIZEOF:         "sizeof",
	STATIC:         "static",
	STRUCT:         "struct",
	SWITCH:         "switch",
	TYPEDEF:        "typedef",
	UNION:          "union",
	UNSIGNED:       "unsigned",
	VOID:           "void",
	VOLATILE:       "volatile",
	WHILE:          "while",
	LBRACE:         "'{'",
	RBRACE:         "'}'",
	LPAREN:         "'('",
	RPAREN:         "')'",
	LBRACKET:       "'['",
	RBRACKET:       "']'",
	DOT:            "'.'",
	ARROW:          "'->'",
	SEMICOLON:      "';'",
	COMMA:          "','",
	COLON:          "':'",
	QUESTION:       "'?'",
	ELLIPSIS:       "'...'",
	PLUS:           "'+'",
	MINUS:          "'-'",
	STAR:           "'*'",
	SLASH:          "'/'",
	PERCENT:        "'%'",
	AND:            "'&'",
	PIPE:           "'|'",
	CARET:          "'^'",
	TILDE:          "'~'",
	SHL_OP:         "'<<'",
	SHR_OP:         "'>>'",
	AND_LOGICAL:    "'&&'",
	OR_LOGICAL:     "'||'",
	NOT:            "'!'",
	PLUS_PLUS:      "'++'",
	MINUS_MINUS:    "'--'",
	ASSIGN:         "'='",
	STAR_ASSIGN:    "'*='",
	SLASH_ASSIGN:   "'/='",
	PERCENT_ASSIGN: "'%='",
	PLUS_ASSIGN:    "'+='",
	MINUS_ASSIGN:   "'-='",
	SHL_ASSIGN:     "'<<='",
	SHR_ASSIGN:     "'>>='",
	AND_ASSIGN:     "'&='",
	XOR_ASSIGN:     "'^='",
	OR_ASSIGN:      "'|='",
	EQUALS:         "'=='",
	NOT_EQ:         "'!='",
	LESS:           "'<'",
	GREATER:        "'>'",
	LESS_EQ:        "'<='",
	GREATER_EQ:     "'>='",
}

// keywords maps source text to its keyword TokenType.
var keywords = func() map[string]TokenType {
	m := make(map[string]TokenType, WHILE-AUTO+1)
	for tt := AUTO; tt <= WHILE; tt++ {
		m[tokenNames[tt]] = tt
	}
	return m
}()

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string // the source text, or the decoded value of a literal
	Line   int    // 1-based source line
	Col    int    // 1-based column of the first character
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-14q  line %d", t.Type, t.Lexeme, t.Line)
}
