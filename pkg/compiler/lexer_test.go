package compiler

import (
	"reflect"
	"testing"
)

// withoutCols drops columns so that tables only spell out types, lexemes and
// lines.
func withoutCols(tokens []Token) []Token {
	out := make([]Token, len(tokens))
	for i, tok := range tokens {
		tok.Col = 0
		out[i] = tok
	}
	return out
}

func TestLex(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
		wantErr  bool
	}{
		{
			name:  "Empty",
			input: "",
			expected: []Token{
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Keywords and Identifiers",
			input: "unsigned long register volatile typedef _tmp sizeof",
			expected: []Token{
				{Type: UNSIGNED, Lexeme: "unsigned", Line: 1},
				{Type: LONG, Lexeme: "long", Line: 1},
				{Type: REGISTER, Lexeme: "register", Line: 1},
				{Type: VOLATILE, Lexeme: "volatile", Line: 1},
				{Type: TYPEDEF, Lexeme: "typedef", Line: 1},
				{Type: IDENTIFIER, Lexeme: "_tmp", Line: 1},
				{Type: SIZEOF, Lexeme: "sizeof", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Maximal Munch",
			input: "a<<=b>>c...->x--",
			expected: []Token{
				{Type: IDENTIFIER, Lexeme: "a", Line: 1},
				{Type: SHL_ASSIGN, Lexeme: "<<=", Line: 1},
				{Type: IDENTIFIER, Lexeme: "b", Line: 1},
				{Type: SHR_OP, Lexeme: ">>", Line: 1},
				{Type: IDENTIFIER, Lexeme: "c", Line: 1},
				{Type: ELLIPSIS, Lexeme: "...", Line: 1},
				{Type: ARROW, Lexeme: "->", Line: 1},
				{Type: IDENTIFIER, Lexeme: "x", Line: 1},
				{Type: MINUS_MINUS, Lexeme: "--", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Numbers With Suffixes",
			input: "10ul 0x1Fu 017 1.5 .5f 2e10",
			expected: []Token{
				{Type: INTEGER, Lexeme: "10ul", Line: 1},
				{Type: INTEGER, Lexeme: "0x1Fu", Line: 1},
				{Type: INTEGER, Lexeme: "017", Line: 1},
				{Type: FLOATING, Lexeme: "1.5", Line: 1},
				{Type: FLOATING, Lexeme: ".5f", Line: 1},
				{Type: FLOATING, Lexeme: "2e10", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Characters",
			input: `'a' '\n' '\x41' '\0' '\''`,
			expected: []Token{
				{Type: CHARACTER, Lexeme: "97", Line: 1},
				{Type: CHARACTER, Lexeme: "10", Line: 1},
				{Type: CHARACTER, Lexeme: "65", Line: 1},
				{Type: CHARACTER, Lexeme: "0", Line: 1},
				{Type: CHARACTER, Lexeme: "39", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "String Escapes",
			input: `"tab\there\101\"q\""`,
			expected: []Token{
				{Type: STRING, Lexeme: "tab\there\x41\"q\"", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Comments And Lines",
			input: "x // one\n/* two\nthree */ y",
			expected: []Token{
				{Type: IDENTIFIER, Lexeme: "x", Line: 1},
				{Type: IDENTIFIER, Lexeme: "y", Line: 3},
				{Type: EOF, Lexeme: "", Line: 3},
			},
		},
		{
			name:    "Unterminated String",
			input:   "\"hello",
			wantErr: true,
		},
		{
			name:    "Unterminated Comment",
			input:   "/* never closed",
			wantErr: true,
		},
		{
			name:    "Preprocessor Directive",
			input:   "#include <stdio.h>\nint x;",
			wantErr: true,
		},
		{
			name:    "Empty Character",
			input:   "''",
			wantErr: true,
		},
		{
			name:    "Unknown Escape",
			input:   `"\q"`,
			wantErr: true,
		},
		{
			name:    "Hex No Digits",
			input:   "0x",
			wantErr: true,
		},
		{
			name:    "Stray Character",
			input:   "int @x;",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Lex(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Lex() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(withoutCols(got), tt.expected) {
				t.Errorf("Lex() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLexColumns(t *testing.T) {
	got, err := Lex("int  main(\n\tvoid)")
	if err != nil {
		t.Fatalf("Lex() error = %v", err)
	}
	want := [][2]int{{1, 1}, {1, 6}, {1, 10}, {2, 2}, {2, 6}}
	for i, pos := range want {
		if got[i].Line != pos[0] || got[i].Col != pos[1] {
			t.Errorf("token %d (%s) at %d:%d, want %d:%d", i, got[i].Lexeme, got[i].Line, got[i].Col, pos[0], pos[1])
		}
	}
}
