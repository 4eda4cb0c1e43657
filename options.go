package pdfpatch

import (
	"context"

	"golang.org/x/text/language"

	"github.com/tsawler/pdfpatch/recompress"
	"github.com/tsawler/pdfpatch/tracker"
)

// PatchOptions holds the configuration of a Patcher.
type PatchOptions struct {
	// Page selection (1-indexed in API, stored as-is)
	pages []int

	// Image settings
	threshold byte
	algorithm byte
	verify    bool

	// Processing
	workers  int
	ctx      context.Context
	tracker  tracker.Tracker
	language language.Tag

	// Output
	incremental bool
}

// defaultOptions returns the default options.
func defaultOptions() PatchOptions {
	def := recompress.DefaultOptions()
	return PatchOptions{
		pages:     nil, // nil means all pages
		threshold: def.BinaryThreshold,
		algorithm: def.Algorithm,
		workers:   1,
		ctx:       context.Background(),
		tracker:   tracker.Nop{},
		language:  language.English,
	}
}

// clone creates a deep copy of PatchOptions.
func (o PatchOptions) clone() PatchOptions {
	newOpts := o
	newOpts.pages = nil

	// Deep copy pages slice
	if o.pages != nil {
		newOpts.pages = make([]int, len(o.pages))
		copy(newOpts.pages, o.pages)
	}

	return newOpts
}
