// Package resolver follows indirect references through a PDF object graph.
//
//	res := resolver.NewResolver(reader)
//	obj, err := res.Resolve(ref)        // follow a reference chain
//	tree, err := res.ResolveDeep(dict)  // copy with every reference expanded
//	nums := res.Reachable(trailerRoot)  // objects still in use
//
// Cycles are detected per path: an object may be reached twice through
// sibling branches, but a reference back to an object that is still being
// expanded fails with ErrCycle. The nesting depth is limited by
// WithMaxDepth.
package resolver
