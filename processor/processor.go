// Package processor runs page processors over the pages of a document.
//
// A [PageProcessor] sees the document once per pass: BeginProcess, then
// Process for every selected page, then EndProcess. A processor that
// returns true from EndProcess asks for another pass. [Runner] drives the
// passes, reports progress to a tracker and turns per-page failures into
// [PageError] values instead of stopping.
package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/tsawler/pdfpatch/core"
	"github.com/tsawler/pdfpatch/pages"
	"github.com/tsawler/pdfpatch/tracker"
)

// Document is the object graph processors work on.
type Document interface {
	core.Resolver
	ResolveReference(ref core.IndirectRef) (core.Object, error)
	PageCount() (int, error)
	GetPage(index int) (*pages.Page, error)
	MarkModified(num int)
}

// PageProcessor is one processing step.
type PageProcessor interface {
	// Name is shown to the user when the step finishes.
	Name() string
	BeginProcess(dc *DocContext) error
	// Process handles one page and reports whether it changed anything.
	Process(pc *PageContext) (bool, error)
	// EndProcess reports whether the processor wants another pass.
	EndProcess(doc Document) bool
	// EstimateWorkload is the progress units the processor will report.
	EstimateWorkload(doc Document) int
}

// ConcurrentProcessor marks processors whose Process may run for several
// pages at once.
type ConcurrentProcessor interface {
	PageProcessor
	ProcessesConcurrently()
}

// DocContext is shared by all pages of a pass.
type DocContext struct {
	ctx     context.Context
	Doc     Document
	Tracker tracker.Tracker
}

// NewDocContext returns a context for doc. A nil tracker discards
// everything.
func NewDocContext(ctx context.Context, doc Document, tr tracker.Tracker) *DocContext {
	if tr == nil {
		tr = tracker.Nop{}
	}
	return &DocContext{ctx: ctx, Doc: doc, Tracker: tr}
}

// Context returns the context of the run.
func (dc *DocContext) Context() context.Context {
	return dc.ctx
}

// PageContext is the per-page view handed to Process.
type PageContext struct {
	*DocContext
	Page *pages.Page
}

// Index returns the 0-based page index.
func (pc *PageContext) Index() int {
	return pc.Page.Index()
}

// PageError is a failure of one processor on one page.
type PageError struct {
	Page      int // 0-based
	Processor string
	Err       error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %s: %v", e.Page+1, e.Processor, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// Result summarizes a run.
type Result struct {
	Pages   int // page visits completed, over all passes
	Changed int // page visits in which some processor changed something
	Passes  int
	Errors  []*PageError
}

// Err joins the page errors, or returns nil.
func (r Result) Err() error {
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}
