package core

import (
	"errors"
	"fmt"

	"github.com/tsawler/pdfpatch/internal/filters"
)

// ErrUnsupportedFilter is returned by Decode for filters that produce no
// byte-oriented output here (DCT, JPX, JBIG2, Crypt) or are unknown.
var ErrUnsupportedFilter = errors.New("unsupported filter")

// Filter returns the stream's /Filter entry in decoded form.
func (s *Stream) Filter() Filter {
	return FilterOf(s.Dict.Get("Filter"))
}

// Get returns the raw dictionary value under key.
func (s *Stream) Get(key string) Object {
	return s.Dict.Get(key)
}

// Put stores value under key in the stream dictionary.
func (s *Stream) Put(key string, value Object) {
	if s.Dict == nil {
		s.Dict = Dict{}
	}
	s.Dict.Set(key, value)
}

// Remove deletes keys from the stream dictionary. Absent keys are ignored.
func (s *Stream) Remove(keys ...string) {
	for _, k := range keys {
		s.Dict.Delete(k)
	}
}

// SetData replaces the payload. With compress set the bytes are Flate
// encoded and /Filter becomes /FlateDecode; otherwise they are stored as
// given and the caller owns /Filter. /Length always matches the stored
// bytes afterwards.
func (s *Stream) SetData(data []byte, compress bool) error {
	if s.Dict == nil {
		s.Dict = Dict{}
	}
	if compress {
		enc, err := filters.FlateEncode(data)
		if err != nil {
			return fmt.Errorf("failed to compress stream: %w", err)
		}
		s.Dict.Set("Filter", FilterFlate)
		s.Dict.Delete("DecodeParms")
		s.decoded = data
		data = enc
	} else {
		s.decoded = nil
	}
	s.Data = data
	s.Dict.Set("Length", Int(len(data)))
	return nil
}

// Clone returns a copy with its own dictionary. The payload is shared.
func (s *Stream) Clone() *Stream {
	return &Stream{Dict: s.Dict.Clone(), Data: s.Data, decoded: s.decoded}
}

// Replace makes s a copy of o. Holders of s see the new dictionary and
// payload without their references changing.
func (s *Stream) Replace(o *Stream) {
	s.Dict = o.Dict
	s.Data = o.Data
	s.decoded = o.decoded
}

// ErrUnresolvedFilter is returned when /Filter or /DecodeParms holds a
// reference that cannot be followed. Decoding without the entry would
// produce wrong data.
var ErrUnresolvedFilter = errors.New("unresolved filter entry")

// Decode applies the full filter chain. Streams whose outermost filter is
// an image codec are decoded up to that codec and an error wrapping
// ErrUnsupportedFilter is returned; DecodeUntil is the tool for those.
// References in /Filter or /DecodeParms need DecodeUntil with a resolver.
func (s *Stream) Decode() ([]byte, error) {
	if s.decoded != nil {
		return s.decoded, nil
	}
	data, rest, err := s.DecodeUntil(nil, nil)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, rest[0])
	}
	s.decoded = data
	return data, nil
}

// DecodeUntil applies filters in order until it meets one for which stop
// returns true, or one that is not a byte filter. It returns the data
// decoded so far and the filters that were not applied. A nil stop means
// "apply every byte filter". References in /Filter and /DecodeParms are
// followed through r; with a nil r they fail with ErrUnresolvedFilter.
func (s *Stream) DecodeUntil(r Resolver, stop func(Name) bool) ([]byte, []Name, error) {
	f, err := ResolveFilter(r, s.Dict)
	if err != nil {
		return nil, nil, err
	}
	names := f.Names()
	parms, err := s.decodeParms(r, len(names))
	if err != nil {
		return nil, nil, err
	}

	data := s.Data
	for i, name := range names {
		if (stop != nil && stop(name)) || !isByteFilter(name) {
			return data, names[i:], nil
		}
		data, err = decodeWithFilter(data, name, parms[i])
		if err != nil {
			return nil, nil, fmt.Errorf("filter %d (%s): %w", i, name, err)
		}
	}
	return data, nil, nil
}

// ResolveFilter reads /Filter from d, following a reference to the entry
// and to each element of a chain.
func ResolveFilter(r Resolver, d Dict) (Filter, error) {
	obj, err := resolveEntry(r, d.Get("Filter"), "Filter")
	if err != nil {
		return Filter{}, err
	}
	if arr, ok := obj.(Array); ok {
		chain := make(Array, len(arr))
		for i, elem := range arr {
			if chain[i], err = resolveEntry(r, elem, "Filter"); err != nil {
				return Filter{}, err
			}
		}
		obj = chain
	}
	return FilterOf(obj), nil
}

// decodeParms lines /DecodeParms up with n filters. A single dictionary
// belongs to the first filter.
func (s *Stream) decodeParms(r Resolver, n int) ([]Dict, error) {
	out := make([]Dict, n)
	obj, err := resolveEntry(r, s.Dict.Get("DecodeParms"), "DecodeParms")
	if err != nil {
		return nil, err
	}
	switch v := obj.(type) {
	case Dict:
		if n > 0 {
			if out[0], err = resolveParms(r, v); err != nil {
				return nil, err
			}
		}
	case Array:
		for i := 0; i < n && i < len(v); i++ {
			elem, err := resolveEntry(r, v[i], "DecodeParms")
			if err != nil {
				return nil, err
			}
			if d, ok := elem.(Dict); ok {
				if out[i], err = resolveParms(r, d); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// resolveParms returns d with its values resolved. d itself is returned
// when it holds no references.
func resolveParms(r Resolver, d Dict) (Dict, error) {
	var out Dict
	for k, v := range d {
		if _, isRef := v.(IndirectRef); !isRef {
			continue
		}
		if out == nil {
			out = d.Clone()
		}
		resolved, err := resolveEntry(r, v, "DecodeParms")
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	if out == nil {
		return d, nil
	}
	return out, nil
}

// resolveEntry follows obj if it is a reference. A null target means the
// entry is absent.
func resolveEntry(r Resolver, obj Object, key string) (Object, error) {
	ref, isRef := obj.(IndirectRef)
	if !isRef {
		return obj, nil
	}
	if r == nil {
		return nil, fmt.Errorf("%w: /%s %d %d R", ErrUnresolvedFilter, key, ref.Number, ref.Generation)
	}
	v, err := r.Resolve(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: /%s %d %d R: %v", ErrUnresolvedFilter, key, ref.Number, ref.Generation, err)
	}
	if _, isNull := v.(Null); isNull {
		return nil, nil
	}
	return v, nil
}

func isByteFilter(name Name) bool {
	switch name {
	case FilterFlate, FilterLZW, FilterASCIIHex, FilterASCII85, FilterRunLength, FilterCCITTFax:
		return true
	}
	return false
}

func decodeWithFilter(data []byte, name Name, parms Dict) ([]byte, error) {
	switch name {
	case FilterFlate:
		return filters.FlateDecode(data, dictToParams(parms))
	case FilterLZW:
		return filters.LZWDecode(data, dictToParams(parms))
	case FilterASCIIHex:
		return filters.ASCIIHexDecode(data)
	case FilterASCII85:
		return filters.ASCII85Decode(data)
	case FilterRunLength:
		return filters.RunLengthDecode(data)
	case FilterCCITTFax:
		return filters.CCITTFaxDecode(data, dictToParams(parms))
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
}

// dictToParams flattens a decode parameter dictionary into plain Go values.
func dictToParams(d Dict) filters.Params {
	if d == nil {
		return nil
	}
	params := make(filters.Params, len(d))
	for k, v := range d {
		switch obj := v.(type) {
		case Int:
			params[k] = int(obj)
		case Real:
			params[k] = float64(obj)
		case Bool:
			params[k] = bool(obj)
		case Name:
			params[k] = string(obj)
		case String:
			params[k] = string(obj)
		}
	}
	return params
}
