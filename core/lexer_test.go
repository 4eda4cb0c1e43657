package core

import (
	"strings"
	"testing"
)

func collectTokens(t *testing.T, input string) []*Token {
	t.Helper()
	l := NewLexer(strings.NewReader(input))
	var toks []*Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("NextToken(%q): %v", input, err)
		}
		if tok.Type == TokenEOF {
			return toks
		}
		toks = append(toks, tok)
	}
}

func TestLexerTokenTypes(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		value string
	}{
		{"123", TokenInteger, "123"},
		{"-42", TokenInteger, "-42"},
		{"+7", TokenInteger, "+7"},
		{"3.14", TokenReal, "3.14"},
		{".5", TokenReal, ".5"},
		{"-.002", TokenReal, "-.002"},
		{"true", TokenKeyword, "true"},
		{"endobj", TokenKeyword, "endobj"},
		{"R", TokenIndirectRef, "R"},
		{"/Type", TokenName, "Type"},
		{"/A#20B", TokenName, "A B"},
		{"/#2F", TokenName, "/"},
		{"/", TokenName, ""},
		{"(hello)", TokenString, "hello"},
		{"<48656C>", TokenHexString, "48656C"},
		{"<4 8\n6>", TokenHexString, "486"},
		{"[", TokenArrayStart, "["},
		{"]", TokenArrayEnd, "]"},
		{"<<", TokenDictStart, "<<"},
		{">>", TokenDictEnd, ">>"},
		{"% note", TokenComment, " note"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			toks := collectTokens(t, tt.input)
			if len(toks) != 1 {
				t.Fatalf("got %d tokens, want 1", len(toks))
			}
			if toks[0].Type != tt.typ {
				t.Errorf("type = %v, want %v", toks[0].Type, tt.typ)
			}
			if string(toks[0].Value) != tt.value {
				t.Errorf("value = %q, want %q", toks[0].Value, tt.value)
			}
		})
	}
}

func TestLexerLiteralStrings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"balanced parens", "(a (b) c)", "a (b) c"},
		{"escaped parens", `(a \( b)`, "a ( b"},
		{"named escapes", `(\n\r\t\b\f\\)`, "\n\r\t\b\f\\"},
		{"octal", `(\101\60\0063)`, "A0\x063"},
		{"line continuation", "(ab\\\ncd)", "abcd"},
		{"crlf continuation", "(ab\\\r\ncd)", "abcd"},
		{"bare cr normalized", "(a\rb)", "a\nb"},
		{"crlf normalized", "(a\r\nb)", "a\nb"},
		{"unknown escape", `(\q)`, "q"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := collectTokens(t, tt.input)
			if len(toks) != 1 || toks[0].Type != TokenString {
				t.Fatalf("got %v, want one string token", toks)
			}
			if got := string(toks[0].Value); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLexerSequence(t *testing.T) {
	toks := collectTokens(t, "<</Length 12 0 R>>stream")
	want := []TokenType{TokenDictStart, TokenName, TokenInteger, TokenInteger, TokenIndirectRef, TokenDictEnd, TokenKeyword}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, tok := range toks {
		if tok.Type != want[i] {
			t.Errorf("token %d: got %v, want %v", i, tok.Type, want[i])
		}
	}
	if toks[2].Pos != 10 {
		t.Errorf("position of 12 = %d, want 10", toks[2].Pos)
	}
}

func TestLexerErrors(t *testing.T) {
	inputs := []string{"(unterminated", "<48G6>", "<4865", ")", "{", ">x"}
	for _, input := range inputs {
		l := NewLexer(strings.NewReader(input))
		if _, err := l.NextToken(); err == nil {
			t.Errorf("NextToken(%q) expected error", input)
		}
	}
}

func TestLexerReadUntil(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"abc\nendstream", "abc"},
		{"abc\r\nendstream", "abc"},
		{"abc\rendstream", "abc"},
		{"abcendstream", "abc"},
		{"a\n\nendstream", "a\n"},
	}
	for _, tt := range tests {
		l := NewLexer(strings.NewReader(tt.input))
		got, err := l.ReadUntil([]byte("endstream"))
		if err != nil {
			t.Fatalf("ReadUntil(%q): %v", tt.input, err)
		}
		if string(got) != tt.want {
			t.Errorf("ReadUntil(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	l := NewLexer(strings.NewReader("no marker"))
	if _, err := l.ReadUntil([]byte("endstream")); err == nil {
		t.Error("expected error without marker")
	}
}

func TestLexerSkipStreamEOL(t *testing.T) {
	tests := []struct {
		input string
		next  byte
	}{
		{"\nX", 'X'},
		{"\r\nX", 'X'},
		{"\rX", 'X'},
		{"  \nX", 'X'},
		{"X", 'X'},
	}
	for _, tt := range tests {
		l := NewLexer(strings.NewReader(tt.input))
		if err := l.SkipStreamEOL(); err != nil {
			t.Fatalf("SkipStreamEOL(%q): %v", tt.input, err)
		}
		c, err := l.ReadByte()
		if err != nil || c != tt.next {
			t.Errorf("after SkipStreamEOL(%q): got %q, %v", tt.input, c, err)
		}
	}
}

func TestLexerReadBytes(t *testing.T) {
	l := NewLexer(strings.NewReader("abcdef"))
	got, err := l.ReadBytes(4)
	if err != nil || string(got) != "abcd" {
		t.Fatalf("ReadBytes(4) = %q, %v", got, err)
	}
	if l.Pos() != 4 {
		t.Errorf("Pos = %d, want 4", l.Pos())
	}
	if _, err := l.ReadBytes(5); err == nil {
		t.Error("expected error reading past the end")
	}
}
