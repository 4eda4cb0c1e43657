package core

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// TokenType classifies lexical tokens
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenComment
	TokenKeyword     // obj, endobj, stream, true, null, ...
	TokenInteger     // 123, -4
	TokenReal        // 3.14, .5
	TokenString      // (literal)
	TokenHexString   // <48656C6C6F>
	TokenName        // /Type
	TokenArrayStart  // [
	TokenArrayEnd    // ]
	TokenDictStart   // <<
	TokenDictEnd     // >>
	TokenIndirectRef // the R of "1 0 R"
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenComment:
		return "comment"
	case TokenKeyword:
		return "keyword"
	case TokenInteger:
		return "integer"
	case TokenReal:
		return "real"
	case TokenString:
		return "string"
	case TokenHexString:
		return "hex string"
	case TokenName:
		return "name"
	case TokenArrayStart:
		return "'['"
	case TokenArrayEnd:
		return "']'"
	case TokenDictStart:
		return "'<<'"
	case TokenDictEnd:
		return "'>>'"
	case TokenIndirectRef:
		return "'R'"
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is a lexical token. Value holds the decoded bytes for strings and
// names and the raw text for everything else.
type Token struct {
	Type  TokenType
	Value []byte
	Pos   int64
}

func (t *Token) String() string {
	if t == nil {
		return "<nil>"
	}
	if len(t.Value) == 0 {
		return t.Type.String()
	}
	return fmt.Sprintf("%s %q", t.Type, t.Value)
}

// Lexer splits PDF syntax into tokens
type Lexer struct {
	r   *bufio.Reader
	pos int64
}

// NewLexer returns a lexer reading from r
func NewLexer(r io.Reader) *Lexer {
	return &Lexer{r: bufio.NewReader(r)}
}

// Pos returns the number of bytes consumed so far
func (l *Lexer) Pos() int64 {
	return l.pos
}

func (l *Lexer) peek() (byte, error) {
	b, err := l.r.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (l *Lexer) next() (byte, error) {
	b, err := l.r.ReadByte()
	if err == nil {
		l.pos++
	}
	return b, err
}

// NextToken skips white space and returns the next token. At the end of
// input a TokenEOF token is returned with a nil error.
func (l *Lexer) NextToken() (*Token, error) {
	if err := l.skipSpace(); err != nil && err != io.EOF {
		return nil, err
	}
	start := l.pos
	c, err := l.peek()
	if err == io.EOF {
		return &Token{Type: TokenEOF, Pos: start}, nil
	}
	if err != nil {
		return nil, err
	}

	switch c {
	case '%':
		return l.comment()
	case '(':
		return l.literal()
	case '/':
		return l.name()
	case '[', ']':
		l.next()
		typ := TokenArrayStart
		if c == ']' {
			typ = TokenArrayEnd
		}
		return &Token{Type: typ, Value: []byte{c}, Pos: start}, nil
	case '<':
		if two, _ := l.r.Peek(2); len(two) == 2 && two[1] == '<' {
			l.next()
			l.next()
			return &Token{Type: TokenDictStart, Value: []byte("<<"), Pos: start}, nil
		}
		return l.hex()
	case '>':
		if two, _ := l.r.Peek(2); len(two) == 2 && two[1] == '>' {
			l.next()
			l.next()
			return &Token{Type: TokenDictEnd, Value: []byte(">>"), Pos: start}, nil
		}
		return nil, fmt.Errorf("unexpected '>' at offset %d", start)
	case ')', '{', '}':
		return nil, fmt.Errorf("unexpected %q at offset %d", c, start)
	}
	return l.regular()
}

func (l *Lexer) skipSpace() error {
	for {
		c, err := l.peek()
		if err != nil {
			return err
		}
		if !isWhitespace(c) {
			return nil
		}
		l.next()
	}
}

func (l *Lexer) comment() (*Token, error) {
	start := l.pos
	l.next() // %
	var buf bytes.Buffer
	for {
		c, err := l.peek()
		if err == io.EOF || c == '\r' || c == '\n' {
			break
		}
		if err != nil {
			return nil, err
		}
		l.next()
		buf.WriteByte(c)
	}
	return &Token{Type: TokenComment, Value: buf.Bytes(), Pos: start}, nil
}

// literal reads a parenthesised string, handling balanced parentheses,
// escapes and end-of-line normalisation.
func (l *Lexer) literal() (*Token, error) {
	start := l.pos
	l.next() // (
	var buf bytes.Buffer
	depth := 1
	for {
		c, err := l.next()
		if err != nil {
			return nil, fmt.Errorf("unterminated string at offset %d: %w", start, err)
		}
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return &Token{Type: TokenString, Value: buf.Bytes(), Pos: start}, nil
			}
		case '\r':
			// a bare CR or CR LF inside a string reads as LF
			if n, err := l.peek(); err == nil && n == '\n' {
				l.next()
			}
			c = '\n'
		case '\\':
			v, err := l.escape()
			if err != nil {
				return nil, err
			}
			if v >= 0 {
				buf.WriteByte(byte(v))
			}
			continue
		}
		buf.WriteByte(c)
	}
}

// escape decodes the character following a backslash. A line continuation
// yields -1.
func (l *Lexer) escape() (int, error) {
	c, err := l.next()
	if err != nil {
		return 0, err
	}
	switch c {
	case 'n':
		return '\n', nil
	case 'r':
		return '\r', nil
	case 't':
		return '\t', nil
	case 'b':
		return '\b', nil
	case 'f':
		return '\f', nil
	case '\r':
		if n, err := l.peek(); err == nil && n == '\n' {
			l.next()
		}
		return -1, nil
	case '\n':
		return -1, nil
	}
	if c < '0' || c > '7' {
		return int(c), nil
	}
	v := int(c - '0')
	for i := 0; i < 2; i++ {
		n, err := l.peek()
		if err != nil || n < '0' || n > '7' {
			break
		}
		l.next()
		v = v*8 + int(n-'0')
	}
	return v & 0xFF, nil
}

// hex reads <...>. Whitespace is ignored and an odd digit count is padded
// with a trailing zero by the parser.
func (l *Lexer) hex() (*Token, error) {
	start := l.pos
	l.next() // <
	var buf bytes.Buffer
	for {
		c, err := l.next()
		if err != nil {
			return nil, fmt.Errorf("unterminated hex string at offset %d: %w", start, err)
		}
		if c == '>' {
			return &Token{Type: TokenHexString, Value: buf.Bytes(), Pos: start}, nil
		}
		if isWhitespace(c) {
			continue
		}
		if !isHexDigit(c) {
			return nil, fmt.Errorf("invalid hex digit %q at offset %d", c, l.pos-1)
		}
		buf.WriteByte(c)
	}
}

func (l *Lexer) name() (*Token, error) {
	start := l.pos
	l.next() // /
	var buf bytes.Buffer
	for {
		c, err := l.peek()
		if err == io.EOF || isWhitespace(c) || isDelimiter(c) {
			break
		}
		if err != nil {
			return nil, err
		}
		l.next()
		if c == '#' {
			if pair, err := l.r.Peek(2); err == nil && isHexDigit(pair[0]) && isHexDigit(pair[1]) {
				v := hexValue(pair[0])<<4 | hexValue(pair[1])
				l.next()
				l.next()
				buf.WriteByte(v)
				continue
			}
		}
		buf.WriteByte(c)
	}
	return &Token{Type: TokenName, Value: buf.Bytes(), Pos: start}, nil
}

// regular reads a run of regular characters and classifies it as a
// number, the reference marker R, or a keyword.
func (l *Lexer) regular() (*Token, error) {
	start := l.pos
	var buf bytes.Buffer
	for {
		c, err := l.peek()
		if err == io.EOF || isWhitespace(c) || isDelimiter(c) {
			break
		}
		if err != nil {
			return nil, err
		}
		l.next()
		buf.WriteByte(c)
	}
	word := buf.Bytes()
	tok := &Token{Type: TokenKeyword, Value: word, Pos: start}
	switch {
	case len(word) == 1 && word[0] == 'R':
		tok.Type = TokenIndirectRef
	case looksNumeric(word):
		if _, err := strconv.ParseInt(string(word), 10, 64); err == nil {
			tok.Type = TokenInteger
		} else if _, err := strconv.ParseFloat(string(word), 64); err == nil {
			tok.Type = TokenReal
		}
	}
	return tok, nil
}

// ReadBytes reads exactly n raw bytes, used for stream payloads.
func (l *Lexer) ReadBytes(n int) ([]byte, error) {
	data := make([]byte, n)
	got, err := io.ReadFull(l.r, data)
	l.pos += int64(got)
	if err != nil {
		return data[:got], fmt.Errorf("unexpected end of data: want %d bytes, got %d", n, got)
	}
	return data, nil
}

// ReadUntil reads raw bytes up to and including marker and returns the bytes
// before it. A single end-of-line directly in front of the marker is
// dropped, matching the framing of stream data.
func (l *Lexer) ReadUntil(marker []byte) ([]byte, error) {
	var buf bytes.Buffer
	for !bytes.HasSuffix(buf.Bytes(), marker) {
		c, err := l.next()
		if err != nil {
			return nil, fmt.Errorf("%q not found: %w", marker, err)
		}
		buf.WriteByte(c)
	}
	data := buf.Bytes()[:buf.Len()-len(marker)]
	switch {
	case bytes.HasSuffix(data, []byte("\r\n")):
		data = data[:len(data)-2]
	case bytes.HasSuffix(data, []byte("\n")), bytes.HasSuffix(data, []byte("\r")):
		data = data[:len(data)-1]
	}
	return data, nil
}

// SkipStreamEOL consumes the end-of-line marker that must follow the
// stream keyword: LF or CR LF. A lone CR is tolerated.
func (l *Lexer) SkipStreamEOL() error {
	for {
		c, err := l.peek()
		if err != nil {
			return err
		}
		if c != ' ' && c != '\t' {
			break
		}
		l.next()
	}
	c, err := l.peek()
	if err != nil {
		return err
	}
	switch c {
	case '\n':
		l.next()
	case '\r':
		l.next()
		if n, err := l.peek(); err == nil && n == '\n' {
			l.next()
		}
	}
	return nil
}

// Peek returns the next byte without consuming it
func (l *Lexer) Peek() (byte, error) {
	return l.peek()
}

// ReadByte consumes a single byte
func (l *Lexer) ReadByte() (byte, error) {
	return l.next()
}

func looksNumeric(word []byte) bool {
	if len(word) == 0 {
		return false
	}
	c := word[0]
	return isDigit(c) || c == '-' || c == '+' || c == '.'
}

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == 0
}

func isDelimiter(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isHexDigit(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func hexValue(b byte) byte {
	switch {
	case b >= '0' && b <= '9':
		return b - '0'
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10
	}
	return 0
}
