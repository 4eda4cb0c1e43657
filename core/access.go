package core

import "errors"

// ErrNotFound is returned when an object number has no live definition.
var ErrNotFound = errors.New("object not found")

// Resolver follows indirect references. Non-reference objects are returned
// unchanged.
type Resolver interface {
	Resolve(obj Object) (Object, error)
}

// ResolverFunc adapts a reference lookup to the Resolver interface.
type ResolverFunc func(ref IndirectRef) (Object, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(obj Object) (Object, error) {
	ref, ok := obj.(IndirectRef)
	if !ok {
		return obj, nil
	}
	return f(ref)
}

// resolve follows obj through r. Lookup failures and a nil resolver are
// reported as absent.
func resolve(r Resolver, obj Object) (Object, bool) {
	if obj == nil {
		return nil, false
	}
	if _, isRef := obj.(IndirectRef); !isRef {
		return obj, true
	}
	if r == nil {
		return nil, false
	}
	resolved, err := r.Resolve(obj)
	if err != nil || resolved == nil {
		return nil, false
	}
	if _, isNull := resolved.(Null); isNull {
		return nil, false
	}
	return resolved, true
}

// dictOf returns the dictionary part of a dictionary or stream.
func dictOf(obj Object) (Dict, bool) {
	switch v := obj.(type) {
	case Dict:
		return v, true
	case *Stream:
		return v.Dict, true
	}
	return nil, false
}

// Locate walks path from container, resolving references at every step,
// and returns the dictionary found at the end. A stream anywhere on the path
// stands for its dictionary. A missing key, a failed lookup or a value of
// the wrong type yields (nil, false); Locate never fails loudly.
func Locate(r Resolver, container Object, path ...string) (Dict, bool) {
	cur, ok := resolve(r, container)
	if !ok {
		return nil, false
	}
	d, ok := dictOf(cur)
	if !ok {
		return nil, false
	}
	for _, key := range path {
		next, ok := resolve(r, d.Get(key))
		if !ok {
			return nil, false
		}
		if d, ok = dictOf(next); !ok {
			return nil, false
		}
	}
	return d, true
}

// Get returns the resolved value of key, or false if it is absent, null or
// cannot be resolved.
func Get(r Resolver, d Dict, key string) (Object, bool) {
	if d == nil {
		return nil, false
	}
	return resolve(r, d.Get(key))
}

// GetInt returns the resolved integer under key. A Real with an integral
// value is accepted as well.
func GetInt(r Resolver, d Dict, key string) (int, bool) {
	obj, ok := Get(r, d, key)
	if !ok {
		return 0, false
	}
	switch v := obj.(type) {
	case Int:
		return int(v), true
	case Real:
		if float64(v) == float64(int64(v)) {
			return int(v), true
		}
	}
	return 0, false
}

// GetNumber returns the resolved Int or Real under key.
func GetNumber(r Resolver, d Dict, key string) (float64, bool) {
	obj, ok := Get(r, d, key)
	if !ok {
		return 0, false
	}
	return toNumber(obj)
}

// GetName returns the resolved name under key.
func GetName(r Resolver, d Dict, key string) (Name, bool) {
	obj, ok := Get(r, d, key)
	if !ok {
		return "", false
	}
	n, ok := obj.(Name)
	return n, ok
}

// GetBool returns the resolved boolean under key.
func GetBool(r Resolver, d Dict, key string) (bool, bool) {
	obj, ok := Get(r, d, key)
	if !ok {
		return false, false
	}
	b, ok := obj.(Bool)
	return bool(b), ok
}

// GetDict returns the resolved dictionary under key.
func GetDict(r Resolver, d Dict, key string) (Dict, bool) {
	obj, ok := Get(r, d, key)
	if !ok {
		return nil, false
	}
	v, ok := obj.(Dict)
	return v, ok
}

// GetArray returns the resolved array under key.
func GetArray(r Resolver, d Dict, key string) (Array, bool) {
	obj, ok := Get(r, d, key)
	if !ok {
		return nil, false
	}
	v, ok := obj.(Array)
	return v, ok
}
