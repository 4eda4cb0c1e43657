package core

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Object is implemented by every PDF object type.
type Object interface {
	Type() ObjectType
	String() string
}

// ObjectType identifies the kind of a PDF object
type ObjectType int

const (
	ObjNull ObjectType = iota
	ObjBool
	ObjInt
	ObjReal
	ObjString
	ObjName
	ObjArray
	ObjDict
	ObjStream
	ObjIndirect
)

var objectTypeNames = [...]string{
	ObjNull:     "Null",
	ObjBool:     "Bool",
	ObjInt:      "Int",
	ObjReal:     "Real",
	ObjString:   "String",
	ObjName:     "Name",
	ObjArray:    "Array",
	ObjDict:     "Dict",
	ObjStream:   "Stream",
	ObjIndirect: "IndirectRef",
}

func (t ObjectType) String() string {
	if t < 0 || int(t) >= len(objectTypeNames) {
		return "Unknown"
	}
	return objectTypeNames[t]
}

// Null is the PDF null object
type Null struct{}

func (Null) Type() ObjectType { return ObjNull }
func (Null) String() string   { return "null" }

// Bool is a PDF boolean
type Bool bool

func (b Bool) Type() ObjectType { return ObjBool }
func (b Bool) String() string   { return strconv.FormatBool(bool(b)) }

// Int is a PDF integer
type Int int64

func (i Int) Type() ObjectType { return ObjInt }
func (i Int) String() string   { return strconv.FormatInt(int64(i), 10) }

// Real is a PDF real number
type Real float64

func (r Real) Type() ObjectType { return ObjReal }
func (r Real) String() string   { return strconv.FormatFloat(float64(r), 'f', -1, 64) }

// String is a PDF string. Literal and hexadecimal strings share this type;
// the value holds the raw bytes.
type String string

func (s String) Type() ObjectType { return ObjString }
func (s String) String() string   { return string(s) }

// Name is a PDF name without the leading slash
type Name string

func (n Name) Type() ObjectType { return ObjName }
func (n Name) String() string   { return "/" + string(n) }

// Array is a PDF array
type Array []Object

func (a Array) Type() ObjectType { return ObjArray }
func (a Array) String() string {
	parts := make([]string, len(a))
	for i, obj := range a {
		parts[i] = objString(obj)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Len returns the number of elements
func (a Array) Len() int {
	return len(a)
}

// Get returns the element at index, or nil when out of range
func (a Array) Get(index int) Object {
	if index < 0 || index >= len(a) {
		return nil
	}
	return a[index]
}

// GetInt returns the integer at index
func (a Array) GetInt(index int) (Int, bool) {
	i, ok := a.Get(index).(Int)
	return i, ok
}

// GetName returns the name at index
func (a Array) GetName(index int) (Name, bool) {
	n, ok := a.Get(index).(Name)
	return n, ok
}

// GetNumber returns the number at index as a float64. Both Int and Real
// elements are accepted.
func (a Array) GetNumber(index int) (float64, bool) {
	return toNumber(a.Get(index))
}

// Dict is a PDF dictionary. Keys are stored without the leading slash.
type Dict map[string]Object

func (d Dict) Type() ObjectType { return ObjDict }

// String renders the dictionary with keys in sorted order.
func (d Dict) String() string {
	parts := make([]string, 0, len(d))
	for _, key := range d.Keys() {
		parts = append(parts, "/"+key+" "+objString(d[key]))
	}
	return "<<" + strings.Join(parts, " ") + ">>"
}

// Get returns the raw value stored under key, or nil
func (d Dict) Get(key string) Object {
	return d[key]
}

// GetName returns the name stored under key
func (d Dict) GetName(key string) (Name, bool) {
	n, ok := d[key].(Name)
	return n, ok
}

// GetInt returns the integer stored under key
func (d Dict) GetInt(key string) (Int, bool) {
	i, ok := d[key].(Int)
	return i, ok
}

// GetNumber returns an Int or Real stored under key as float64
func (d Dict) GetNumber(key string) (float64, bool) {
	return toNumber(d[key])
}

// GetDict returns the dictionary stored under key
func (d Dict) GetDict(key string) (Dict, bool) {
	v, ok := d[key].(Dict)
	return v, ok
}

// GetArray returns the array stored under key
func (d Dict) GetArray(key string) (Array, bool) {
	v, ok := d[key].(Array)
	return v, ok
}

// GetString returns the string stored under key
func (d Dict) GetString(key string) (String, bool) {
	v, ok := d[key].(String)
	return v, ok
}

// GetBool returns the boolean stored under key
func (d Dict) GetBool(key string) (Bool, bool) {
	v, ok := d[key].(Bool)
	return v, ok
}

// GetIndirectRef returns the reference stored under key
func (d Dict) GetIndirectRef(key string) (IndirectRef, bool) {
	v, ok := d[key].(IndirectRef)
	return v, ok
}

// Has reports whether key is present
func (d Dict) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// Set stores value under key
func (d Dict) Set(key string, value Object) {
	d[key] = value
}

// Delete removes key. Deleting an absent key is a no-op.
func (d Dict) Delete(key string) {
	delete(d, key)
}

// Keys returns the keys in sorted order
func (d Dict) Keys() []string {
	return slices.Sorted(maps.Keys(d))
}

// Clone returns a shallow copy. Nested containers are shared.
func (d Dict) Clone() Dict {
	if d == nil {
		return nil
	}
	return maps.Clone(d)
}

// Stream is a PDF stream: a dictionary followed by a byte payload.
// Data always holds the encoded bytes as stored in the file.
type Stream struct {
	Dict    Dict
	Data    []byte
	decoded []byte
}

func (s *Stream) Type() ObjectType { return ObjStream }
func (s *Stream) String() string {
	return fmt.Sprintf("stream %s (%d bytes)", s.Dict.String(), len(s.Data))
}

// IndirectRef is a reference "num gen R" to an indirect object
type IndirectRef struct {
	Number     int
	Generation int
}

func (r IndirectRef) Type() ObjectType { return ObjIndirect }
func (r IndirectRef) String() string {
	return fmt.Sprintf("%d %d R", r.Number, r.Generation)
}

// IndirectObject pairs an object with the reference it was defined under
type IndirectObject struct {
	Ref    IndirectRef
	Object Object
}

func objString(obj Object) string {
	if obj == nil {
		return "null"
	}
	return obj.String()
}

func toNumber(obj Object) (float64, bool) {
	switch v := obj.(type) {
	case Int:
		return float64(v), true
	case Real:
		return float64(v), true
	}
	return 0, false
}
