package core

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
)

// ReferenceResolver looks up indirect objects while parsing. The parser
// needs it for stream dictionaries whose /Length is an indirect reference.
type ReferenceResolver interface {
	ResolveReference(ref IndirectRef) (Object, error)
}

// Parser builds PDF objects from the token stream of a Lexer.
type Parser struct {
	lexer    *Lexer
	pending  []*Token // pushed-back tokens, the last one is read next
	resolver ReferenceResolver
}

// NewParser returns a parser reading from r.
func NewParser(r io.Reader) *Parser {
	return &Parser{lexer: NewLexer(r)}
}

// SetReferenceResolver installs the resolver used for indirect stream
// lengths.
func (p *Parser) SetReferenceResolver(resolver ReferenceResolver) {
	p.resolver = resolver
}

// read returns the next significant token. Comments are dropped.
func (p *Parser) read() (*Token, error) {
	if n := len(p.pending); n > 0 {
		tok := p.pending[n-1]
		p.pending = p.pending[:n-1]
		return tok, nil
	}
	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return nil, err
		}
		if tok.Type != TokenComment {
			return tok, nil
		}
	}
}

func (p *Parser) unread(tok *Token) {
	p.pending = append(p.pending, tok)
}

// ParseObject parses the next direct object or indirect reference. At the
// end of input it returns io.EOF.
func (p *Parser) ParseObject() (Object, error) {
	tok, err := p.read()
	if err != nil {
		return nil, err
	}
	return p.object(tok)
}

func (p *Parser) object(tok *Token) (Object, error) {
	switch tok.Type {
	case TokenEOF:
		return nil, io.EOF
	case TokenKeyword:
		switch string(tok.Value) {
		case "null":
			return Null{}, nil
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
		return nil, fmt.Errorf("unexpected keyword %q at offset %d", tok.Value, tok.Pos)
	case TokenInteger:
		return p.integerOrRef(tok)
	case TokenReal:
		v, err := strconv.ParseFloat(string(tok.Value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid real %q: %w", tok.Value, err)
		}
		return Real(v), nil
	case TokenString:
		return String(tok.Value), nil
	case TokenHexString:
		digits := tok.Value
		if len(digits)%2 == 1 {
			digits = append(digits, '0')
		}
		raw := make([]byte, len(digits)/2)
		if _, err := hex.Decode(raw, digits); err != nil {
			return nil, fmt.Errorf("invalid hex string: %w", err)
		}
		return String(raw), nil
	case TokenName:
		return Name(tok.Value), nil
	case TokenArrayStart:
		return p.array()
	case TokenDictStart:
		return p.dict()
	}
	return nil, fmt.Errorf("unexpected %v at offset %d", tok, tok.Pos)
}

// integerOrRef looks two tokens ahead to tell "12" from "12 0 R".
func (p *Parser) integerOrRef(first *Token) (Object, error) {
	num, err := strconv.ParseInt(string(first.Value), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid integer %q: %w", first.Value, err)
	}
	second, err := p.read()
	if err != nil {
		return nil, err
	}
	if second.Type == TokenInteger && num >= 0 {
		third, err := p.read()
		if err != nil {
			return nil, err
		}
		if third.Type == TokenIndirectRef {
			gen, err := strconv.Atoi(string(second.Value))
			if err == nil && gen >= 0 {
				return IndirectRef{Number: int(num), Generation: gen}, nil
			}
		}
		p.unread(third)
	}
	p.unread(second)
	return Int(num), nil
}

func (p *Parser) array() (Object, error) {
	arr := Array{}
	for {
		tok, err := p.read()
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case TokenArrayEnd:
			return arr, nil
		case TokenEOF:
			return nil, fmt.Errorf("unexpected end of input in array")
		}
		elem, err := p.object(tok)
		if err != nil {
			return nil, fmt.Errorf("array element %d: %w", len(arr), err)
		}
		arr = append(arr, elem)
	}
}

func (p *Parser) dict() (Object, error) {
	d := Dict{}
	for {
		tok, err := p.read()
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case TokenDictEnd:
			return d, nil
		case TokenEOF:
			return nil, fmt.Errorf("unexpected end of input in dictionary")
		case TokenName:
		default:
			return nil, fmt.Errorf("dictionary key must be a name, got %v at offset %d", tok, tok.Pos)
		}
		key := string(tok.Value)
		val, err := p.ParseObject()
		if err != nil {
			return nil, fmt.Errorf("dictionary value for /%s: %w", key, err)
		}
		// a null value is equivalent to an absent entry
		if _, isNull := val.(Null); !isNull {
			d[key] = val
		}
	}
}

func (p *Parser) expectInt(what string) (int, error) {
	tok, err := p.read()
	if err != nil {
		return 0, err
	}
	if tok.Type != TokenInteger {
		return 0, fmt.Errorf("expected %s, got %v", what, tok)
	}
	v, err := strconv.Atoi(string(tok.Value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, tok.Value, err)
	}
	return v, nil
}

func (p *Parser) isKeyword(tok *Token, kw string) bool {
	return tok.Type == TokenKeyword && string(tok.Value) == kw
}

// ParseIndirectObject parses "num gen obj ... endobj", including a trailing
// stream body.
func (p *Parser) ParseIndirectObject() (*IndirectObject, error) {
	num, err := p.expectInt("object number")
	if err != nil {
		return nil, err
	}
	gen, err := p.expectInt("generation number")
	if err != nil {
		return nil, err
	}
	tok, err := p.read()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword(tok, "obj") {
		return nil, fmt.Errorf("expected 'obj', got %v", tok)
	}

	obj, err := p.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("object %d %d: %w", num, gen, err)
	}

	tok, err = p.read()
	if err != nil {
		return nil, err
	}
	if p.isKeyword(tok, "stream") {
		d, ok := obj.(Dict)
		if !ok {
			return nil, fmt.Errorf("object %d %d: stream keyword after %s", num, gen, obj.Type())
		}
		if obj, err = p.parseStream(d); err != nil {
			return nil, fmt.Errorf("object %d %d: %w", num, gen, err)
		}
		if tok, err = p.read(); err != nil {
			return nil, err
		}
	}
	// a missing endobj at the end of input is tolerated
	if !p.isKeyword(tok, "endobj") && tok.Type != TokenEOF {
		return nil, fmt.Errorf("object %d %d: expected 'endobj', got %v", num, gen, tok)
	}

	return &IndirectObject{
		Ref:    IndirectRef{Number: num, Generation: gen},
		Object: obj,
	}, nil
}

// streamLength returns the declared /Length, or -1 when it is missing or
// cannot be resolved.
func (p *Parser) streamLength(d Dict) int {
	switch v := d.Get("Length").(type) {
	case Int:
		return int(v)
	case IndirectRef:
		if p.resolver == nil {
			return -1
		}
		obj, err := p.resolver.ResolveReference(v)
		if err != nil {
			return -1
		}
		if n, ok := obj.(Int); ok {
			d["Length"] = n
			return int(n)
		}
	}
	return -1
}

// parseStream reads the payload following the stream keyword. When the
// declared length is unusable the payload is delimited by endstream.
func (p *Parser) parseStream(d Dict) (*Stream, error) {
	if err := p.lexer.SkipStreamEOL(); err != nil {
		return nil, fmt.Errorf("stream keyword: %w", err)
	}
	length := p.streamLength(d)
	if length < 0 {
		data, err := p.lexer.ReadUntil([]byte("endstream"))
		if err != nil {
			return nil, err
		}
		d["Length"] = Int(len(data))
		return &Stream{Dict: d, Data: data}, nil
	}

	data, err := p.lexer.ReadBytes(length)
	if err != nil {
		return nil, fmt.Errorf("stream data: %w", err)
	}
	tok, err := p.read()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword(tok, "endstream") {
		return nil, fmt.Errorf("expected 'endstream' after %d bytes, got %v", length, tok)
	}
	return &Stream{Dict: d, Data: data}, nil
}
