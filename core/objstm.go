package core

import (
	"bytes"
	"fmt"
)

// ObjectStream gives access to the objects packed into a /Type /ObjStm
// stream (PDF 1.5). The payload is decoded lazily on first access.
type ObjectStream struct {
	stream  *Stream
	n       int
	first   int
	extends *IndirectRef

	decoded []byte
	header  []objStmSlot
	cache   map[int]Object
}

// objStmSlot is one "objnum offset" pair of the stream header
type objStmSlot struct {
	num    int
	offset int
}

// NewObjectStream validates the dictionary of an object stream.
func NewObjectStream(stream *Stream) (*ObjectStream, error) {
	if stream == nil {
		return nil, fmt.Errorf("stream is nil")
	}
	d := stream.Dict
	if t, ok := d.GetName("Type"); !ok || t != "ObjStm" {
		return nil, fmt.Errorf("not an object stream: /Type %v", d.Get("Type"))
	}
	n, ok := d.GetInt("N")
	if !ok || n < 0 {
		return nil, fmt.Errorf("object stream has invalid /N %v", d.Get("N"))
	}
	first, ok := d.GetInt("First")
	if !ok || first < 0 {
		return nil, fmt.Errorf("object stream has invalid /First %v", d.Get("First"))
	}

	os := &ObjectStream{
		stream: stream,
		n:      int(n),
		first:  int(first),
		cache:  make(map[int]Object),
	}
	if ref, ok := d.GetIndirectRef("Extends"); ok {
		os.extends = &ref
	}
	return os, nil
}

// N returns the number of objects in the stream
func (os *ObjectStream) N() int {
	return os.n
}

// First returns the offset of the first object in the decoded data
func (os *ObjectStream) First() int {
	return os.first
}

// Extends returns the object stream this one extends, or nil
func (os *ObjectStream) Extends() *IndirectRef {
	return os.extends
}

func (os *ObjectStream) load() error {
	if os.decoded != nil {
		return nil
	}
	data, err := os.stream.Decode()
	if err != nil {
		return fmt.Errorf("failed to decode object stream: %w", err)
	}
	if os.first > len(data) {
		return fmt.Errorf("/First %d beyond decoded length %d", os.first, len(data))
	}

	p := NewParser(bytes.NewReader(data[:os.first]))
	header := make([]objStmSlot, 0, os.n)
	for i := 0; i < os.n; i++ {
		num, err1 := p.ParseObject()
		off, err2 := p.ParseObject()
		if err1 != nil || err2 != nil {
			return fmt.Errorf("object stream header truncated at pair %d", i)
		}
		numInt, ok1 := num.(Int)
		offInt, ok2 := off.(Int)
		if !ok1 || !ok2 {
			return fmt.Errorf("object stream header pair %d is not numeric", i)
		}
		header = append(header, objStmSlot{num: int(numInt), offset: int(offInt)})
	}
	os.decoded = data
	os.header = header
	return nil
}

// GetObjectByIndex returns the object at position index of the header and
// its object number.
func (os *ObjectStream) GetObjectByIndex(index int) (Object, int, error) {
	if err := os.load(); err != nil {
		return nil, 0, err
	}
	if index < 0 || index >= len(os.header) {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d)", index, len(os.header))
	}
	slot := os.header[index]
	if obj, ok := os.cache[index]; ok {
		return obj, slot.num, nil
	}

	start := os.first + slot.offset
	end := len(os.decoded)
	if index+1 < len(os.header) {
		end = min(end, os.first+os.header[index+1].offset)
	}
	if start < os.first || start >= end {
		return nil, 0, fmt.Errorf("object %d has invalid offset %d", slot.num, slot.offset)
	}

	obj, err := NewParser(bytes.NewReader(os.decoded[start:end])).ParseObject()
	if err != nil {
		return nil, 0, fmt.Errorf("object %d in object stream: %w", slot.num, err)
	}
	os.cache[index] = obj
	return obj, slot.num, nil
}

// GetObjectByNumber returns the object with number objNum and its index.
func (os *ObjectStream) GetObjectByNumber(objNum int) (Object, int, error) {
	if err := os.load(); err != nil {
		return nil, 0, err
	}
	for i, slot := range os.header {
		if slot.num == objNum {
			obj, _, err := os.GetObjectByIndex(i)
			return obj, i, err
		}
	}
	return nil, 0, fmt.Errorf("object %d: %w in object stream", objNum, ErrNotFound)
}

// ObjectNumbers lists the object numbers in header order
func (os *ObjectStream) ObjectNumbers() ([]int, error) {
	if err := os.load(); err != nil {
		return nil, err
	}
	nums := make([]int, len(os.header))
	for i, slot := range os.header {
		nums[i] = slot.num
	}
	return nums, nil
}
