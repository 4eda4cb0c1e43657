package processor

import (
	"context"
	"fmt"
	"sync"

	"github.com/tsawler/pdfpatch/tracker"
)

// DefaultMaxPasses bounds how often processors may ask to run again.
const DefaultMaxPasses = 3

// Runner sequences processors over the pages of a document.
type Runner struct {
	Processors []PageProcessor
	Tracker    tracker.Tracker

	// Workers > 1 processes pages concurrently when every processor of the
	// pass implements ConcurrentProcessor.
	Workers int

	// MaxPasses defaults to DefaultMaxPasses.
	MaxPasses int

	// Pages selects 0-based page indexes. Nil means every page.
	Pages []int
}

// pageOutcome is what one page visit produced
type pageOutcome struct {
	done    bool
	changed bool
	errs    []*PageError
}

// Run processes doc. Page errors are collected in the result; the returned
// error is for failures that stop the run, including cancellation of ctx.
func (r *Runner) Run(ctx context.Context, doc Document) (Result, error) {
	var res Result
	tr := r.Tracker
	if tr == nil {
		tr = tracker.Nop{}
	}
	maxPasses := r.MaxPasses
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}

	indexes, err := r.selection(doc)
	if err != nil {
		return res, err
	}

	total := 0
	for _, p := range r.Processors {
		total += p.EstimateWorkload(doc)
	}
	tr.SetTotalWorkload(total)

	active := r.Processors
	for pass := 0; pass < maxPasses && len(active) > 0; pass++ {
		dc := NewDocContext(ctx, doc, tr)
		for _, p := range active {
			if err := p.BeginProcess(dc); err != nil {
				return res, fmt.Errorf("%s: %w", p.Name(), err)
			}
		}

		res.Passes++
		for _, out := range r.runPass(dc, active, indexes) {
			if out.done {
				res.Pages++
			}
			if out.changed {
				res.Changed++
			}
			res.Errors = append(res.Errors, out.errs...)
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var again []PageProcessor
		for _, p := range active {
			if p.EndProcess(doc) {
				again = append(again, p)
			}
		}
		active = again
	}
	return res, nil
}

// selection validates r.Pages against the page count
func (r *Runner) selection(doc Document) ([]int, error) {
	n, err := doc.PageCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}
	if r.Pages == nil {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	for _, idx := range r.Pages {
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("page %d out of range [1, %d]", idx+1, n)
		}
	}
	return r.Pages, nil
}

// concurrent reports whether every processor accepts parallel pages
func concurrent(procs []PageProcessor) bool {
	for _, p := range procs {
		if _, ok := p.(ConcurrentProcessor); !ok {
			return false
		}
	}
	return true
}

// runPass visits the pages, in parallel when allowed. Outcomes are in
// page selection order whatever the scheduling.
func (r *Runner) runPass(dc *DocContext, procs []PageProcessor, indexes []int) []pageOutcome {
	outcomes := make([]pageOutcome, len(indexes))
	if r.Workers <= 1 || !concurrent(procs) {
		for i, idx := range indexes {
			if dc.ctx.Err() != nil {
				break
			}
			outcomes[i] = r.visit(dc, procs, idx)
		}
		return outcomes
	}

	slots := make(chan struct{}, r.Workers)
	var wg sync.WaitGroup
	for i, idx := range indexes {
		if dc.ctx.Err() != nil {
			break
		}
		slots <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			if dc.ctx.Err() != nil {
				return
			}
			outcomes[i] = r.visit(dc, procs, idx)
		}()
	}
	wg.Wait()
	return outcomes
}

// visit runs every processor on one page
func (r *Runner) visit(dc *DocContext, procs []PageProcessor, idx int) pageOutcome {
	var out pageOutcome
	page, err := dc.Doc.GetPage(idx)
	if err != nil {
		out.errs = append(out.errs, &PageError{Page: idx, Processor: "load", Err: err})
		return out
	}

	pc := &PageContext{DocContext: dc, Page: page}
	for _, p := range procs {
		changed, err := p.Process(pc)
		if err != nil {
			out.errs = append(out.errs, &PageError{Page: idx, Processor: p.Name(), Err: err})
			dc.Tracker.TraceMessage(tracker.Warning, "page failed",
				tracker.Int("page", idx+1), tracker.String("processor", p.Name()), tracker.Err(err))
		}
		out.changed = out.changed || changed
	}
	out.done = true
	return out
}
