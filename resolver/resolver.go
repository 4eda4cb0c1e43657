package resolver

import (
	"errors"
	"fmt"
	"slices"

	"github.com/tsawler/pdfpatch/core"
)

var (
	// ErrCycle is returned when a reference leads back to an object that is
	// already being resolved on the current path.
	ErrCycle = errors.New("circular reference")

	// ErrMaxDepth is returned when nesting exceeds the configured depth.
	ErrMaxDepth = errors.New("maximum resolution depth exceeded")
)

// ObjectReader loads indirect objects.
type ObjectReader interface {
	ResolveReference(ref core.IndirectRef) (core.Object, error)
}

// ObjectResolver follows indirect references. It keeps no state between
// calls, so one resolver can be shared by concurrent goroutines as long as
// the underlying reader allows it.
type ObjectResolver struct {
	reader   ObjectReader
	maxDepth int
}

// Option configures the resolver
type Option func(*ObjectResolver)

// WithMaxDepth sets the maximum nesting depth (default 100).
func WithMaxDepth(depth int) Option {
	return func(r *ObjectResolver) {
		r.maxDepth = depth
	}
}

// NewResolver returns a resolver reading objects from reader.
func NewResolver(reader ObjectReader, opts ...Option) *ObjectResolver {
	r := &ObjectResolver{reader: reader, maxDepth: 100}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve follows obj until it is no longer a reference. Chains of
// references ("1 0 R" pointing at "2 0 R") are followed too.
func (r *ObjectResolver) Resolve(obj core.Object) (core.Object, error) {
	var path []int
	for {
		ref, ok := obj.(core.IndirectRef)
		if !ok {
			return obj, nil
		}
		if slices.Contains(path, ref.Number) {
			return nil, fmt.Errorf("%w: object %d", ErrCycle, ref.Number)
		}
		if len(path) >= r.maxDepth {
			return nil, fmt.Errorf("%w (%d)", ErrMaxDepth, r.maxDepth)
		}
		path = append(path, ref.Number)

		next, err := r.reader.ResolveReference(ref)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve reference %d %d R: %w", ref.Number, ref.Generation, err)
		}
		obj = next
	}
}

// ResolveDeep returns a copy of obj with every reference replaced by its
// target. Streams are copied with their dictionary resolved and the
// payload shared. A reference back to an object on the current path is an
// ErrCycle; the same object reached through two sibling paths is fine.
func (r *ObjectResolver) ResolveDeep(obj core.Object) (core.Object, error) {
	return r.deep(obj, nil, 0)
}

func (r *ObjectResolver) deep(obj core.Object, path []int, depth int) (core.Object, error) {
	if depth >= r.maxDepth {
		return nil, fmt.Errorf("%w (%d)", ErrMaxDepth, r.maxDepth)
	}

	switch v := obj.(type) {
	case core.IndirectRef:
		if slices.Contains(path, v.Number) {
			return nil, fmt.Errorf("%w: object %d", ErrCycle, v.Number)
		}
		target, err := r.reader.ResolveReference(v)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve reference %d %d R: %w", v.Number, v.Generation, err)
		}
		return r.deep(target, append(path, v.Number), depth+1)

	case core.Dict:
		out := make(core.Dict, len(v))
		for key, value := range v {
			resolved, err := r.deep(value, path, depth+1)
			if err != nil {
				return nil, fmt.Errorf("/%s: %w", key, err)
			}
			out[key] = resolved
		}
		return out, nil

	case core.Array:
		out := make(core.Array, len(v))
		for i, elem := range v {
			resolved, err := r.deep(elem, path, depth+1)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = resolved
		}
		return out, nil

	case *core.Stream:
		d, err := r.deep(v.Dict, path, depth+1)
		if err != nil {
			return nil, err
		}
		s := v.Clone()
		s.Dict = d.(core.Dict)
		return s, nil
	}
	return obj, nil
}

// ResolveDict deep-resolves a dictionary.
func (r *ObjectResolver) ResolveDict(dict core.Dict) (core.Dict, error) {
	resolved, err := r.ResolveDeep(dict)
	if err != nil {
		return nil, err
	}
	return resolved.(core.Dict), nil
}

// Reachable returns the numbers of all objects reachable from roots by
// following references, in ascending order. Objects that cannot be loaded
// are left out.
func (r *ObjectResolver) Reachable(roots ...core.Object) []int {
	seen := make(map[int]bool)
	stack := slices.Clone(roots)
	for len(stack) > 0 {
		obj := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch v := obj.(type) {
		case core.IndirectRef:
			if _, done := seen[v.Number]; done {
				continue
			}
			target, err := r.reader.ResolveReference(v)
			seen[v.Number] = err == nil
			if err == nil {
				stack = append(stack, target)
			}
		case core.Dict:
			for _, value := range v {
				stack = append(stack, value)
			}
		case core.Array:
			stack = append(stack, v...)
		case *core.Stream:
			stack = append(stack, v.Dict)
		}
	}

	nums := make([]int, 0, len(seen))
	for n, ok := range seen {
		if ok {
			nums = append(nums, n)
		}
	}
	slices.Sort(nums)
	return nums
}
