package pdfpatch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/text/language"

	"github.com/tsawler/pdfpatch/processor"
	"github.com/tsawler/pdfpatch/reader"
	"github.com/tsawler/pdfpatch/recompress"
	"github.com/tsawler/pdfpatch/tracker"
	"github.com/tsawler/pdfpatch/writer"
)

// Patcher provides a fluent interface for rewriting a PDF. Each
// configuration method returns a new Patcher, so a base configuration can
// be shared and specialized. Patchers derived from one another share the
// opened document.
type Patcher struct {
	// Source
	filename string
	reader   *reader.Reader

	// Lifecycle
	ownsReader   bool // true if we opened the reader and should close it
	readerOpened bool // true if reader has been opened

	// Configuration
	options PatchOptions

	// Accumulated error (fail-fast)
	err error

	// Result of Recompress, nil before it ran
	report *Report
}

// clone creates a shallow copy of the Patcher with a deep copy of options.
func (p *Patcher) clone() *Patcher {
	newP := &Patcher{
		filename:     p.filename,
		reader:       p.reader,
		ownsReader:   p.ownsReader,
		readerOpened: p.readerOpened,
		options:      p.options.clone(),
		err:          p.err,
	}
	if p.report != nil {
		r := *p.report
		r.Errors = slices.Clone(p.report.Errors)
		newP.report = &r
	}
	return newP
}

// ensureReader opens the reader if not already open.
func (p *Patcher) ensureReader() error {
	if p.readerOpened {
		return nil
	}
	if p.filename == "" {
		return fmt.Errorf("no filename specified")
	}
	r, err := reader.Open(p.filename)
	if err != nil {
		return fmt.Errorf("failed to open PDF: %w", err)
	}
	p.reader = r
	p.ownsReader = true
	p.readerOpened = true
	return nil
}

// Close releases the document if this Patcher opened it. It is safe to
// call Close multiple times.
func (p *Patcher) Close() error {
	if p.ownsReader && p.reader != nil {
		err := p.reader.Close()
		p.reader = nil
		p.ownsReader = false
		return err
	}
	return nil
}

// ============================================================================
// Configuration Methods (return new Patcher instance)
// ============================================================================

// Pages restricts processing to the given pages (1-indexed). Multiple calls
// are cumulative.
//
// Example:
//
//	pdfpatch.Open("doc.pdf").Pages(1, 3, 5).Recompress()
func (p *Patcher) Pages(pages ...int) *Patcher {
	newP := p.clone()
	newP.options.pages = append(newP.options.pages, pages...)
	return newP
}

// PageRange restricts processing to a range of pages (1-indexed,
// inclusive).
func (p *Patcher) PageRange(start, end int) *Patcher {
	newP := p.clone()
	for i := start; i <= end; i++ {
		newP.options.pages = append(newP.options.pages, i)
	}
	return newP
}

// Threshold sets the gray level below which pixels become black. 0 leaves
// every image that is not already bilevel alone.
func (p *Patcher) Threshold(t byte) *Patcher {
	newP := p.clone()
	newP.options.threshold = t
	return newP
}

// Algorithm selects the binarization: 255 thresholds, anything else
// dithers.
func (p *Patcher) Algorithm(a byte) *Patcher {
	newP := p.clone()
	newP.options.algorithm = a
	return newP
}

// Verify decodes every encoded image before it replaces the original.
func (p *Patcher) Verify(v bool) *Patcher {
	newP := p.clone()
	newP.options.verify = v
	return newP
}

// Workers sets how many pages are processed at once. Values below 1 mean
// one.
func (p *Patcher) Workers(n int) *Patcher {
	newP := p.clone()
	newP.options.workers = max(n, 1)
	return newP
}

// Incremental makes Save append an update section to the original bytes
// instead of rewriting the file.
func (p *Patcher) Incremental(on bool) *Patcher {
	newP := p.clone()
	newP.options.incremental = on
	return newP
}

// Tracker sets the receiver of messages and progress. nil discards them.
func (p *Patcher) Tracker(tr tracker.Tracker) *Patcher {
	newP := p.clone()
	if tr == nil {
		tr = tracker.Nop{}
	}
	newP.options.tracker = tr
	return newP
}

// Language sets the locale of the counts in the summary messages.
func (p *Patcher) Language(tag language.Tag) *Patcher {
	newP := p.clone()
	newP.options.language = tag
	return newP
}

// Context sets the context that cancels processing.
func (p *Patcher) Context(ctx context.Context) *Patcher {
	newP := p.clone()
	newP.options.ctx = ctx
	return newP
}

// PageCount returns the number of pages. It does not close the document.
func (p *Patcher) PageCount() (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	if err := p.ensureReader(); err != nil {
		return 0, err
	}
	return p.reader.PageCount()
}

// ============================================================================
// Processing
// ============================================================================

// Recompress replaces eligible images of the selected pages with JBIG2
// versions. Errors that stop the run are kept and returned by the
// terminal operation.
//
// Example:
//
//	report, err := pdfpatch.Open("doc.pdf").Threshold(140).Recompress().Save("out.pdf")
func (p *Patcher) Recompress() *Patcher {
	newP := p.clone()
	if newP.err != nil {
		return newP
	}
	if err := newP.ensureReader(); err != nil {
		newP.err = err
		return newP
	}

	sel, err := newP.resolvePages()
	if err != nil {
		newP.err = err
		return newP
	}

	o := newP.options
	rc := recompress.New(recompress.Options{BinaryThreshold: o.threshold, Algorithm: o.algorithm})
	rc.Verify = o.verify
	rc.Language = o.language
	runner := &processor.Runner{
		Processors: []processor.PageProcessor{rc},
		Tracker:    o.tracker,
		Workers:    o.workers,
		Pages:      sel,
	}

	res, err := runner.Run(o.ctx, newP.reader)
	report := newP.report
	if report == nil {
		report = &Report{}
	}
	report.Pages += res.Pages
	report.Changed += res.Changed
	report.Errors = append(report.Errors, res.Errors...)
	st := rc.Stats()
	report.Images.Examined += st.Examined
	report.Images.Optimized += st.Optimized
	report.Images.Rejected += st.Rejected
	report.Images.Skipped += st.Skipped
	report.Images.Failed += st.Failed
	newP.report = report

	if err != nil {
		newP.err = fmt.Errorf("recompress: %w", err)
	}
	return newP
}

// ============================================================================
// Terminal Operations
// ============================================================================

// Save writes the document to path and closes it. The output is written
// to a temporary file first, so path may name the input file.
func (p *Patcher) Save(path string) (*Report, error) {
	if p.err != nil {
		p.Close()
		return nil, p.err
	}
	if err := p.ensureReader(); err != nil {
		return nil, err
	}
	defer p.Close()

	f, err := os.CreateTemp(filepath.Dir(path), ".pdfpatch-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	if err := f.Chmod(p.outputMode()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	if err := p.write(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write output: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write output: %w", err)
	}
	return p.result(), nil
}

// Write writes the document to w and closes it.
func (p *Patcher) Write(w io.Writer) (*Report, error) {
	if p.err != nil {
		p.Close()
		return nil, p.err
	}
	if err := p.ensureReader(); err != nil {
		return nil, err
	}
	defer p.Close()

	if err := p.write(w); err != nil {
		return nil, err
	}
	return p.result(), nil
}

func (p *Patcher) write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	var err error
	if p.options.incremental {
		err = writer.WriteIncremental(bw, p.reader)
	} else {
		err = writer.Write(bw, p.reader)
	}
	if err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}

// outputMode is the permission of the input file, or 0644 when the
// document did not come from a file.
func (p *Patcher) outputMode() os.FileMode {
	if p.filename != "" {
		if fi, err := os.Stat(p.filename); err == nil {
			return fi.Mode().Perm()
		}
	}
	return 0o644
}

func (p *Patcher) result() *Report {
	r := &Report{}
	if p.report != nil {
		*r = *p.report
	}
	r.Modified = p.reader.Modified()
	return r
}

// ============================================================================
// Internal helpers
// ============================================================================

// resolvePages converts 1-indexed page numbers to 0-indexed and validates
// them. nil means all pages.
func (p *Patcher) resolvePages() ([]int, error) {
	if len(p.options.pages) == 0 {
		return nil, nil
	}
	pageCount, err := p.reader.PageCount()
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}

	seen := make(map[int]bool)
	var pageIndices []int
	for _, n := range p.options.pages {
		if n < 1 || n > pageCount {
			return nil, fmt.Errorf("page %d out of range (1-%d)", n, pageCount)
		}
		if !seen[n-1] {
			seen[n-1] = true
			pageIndices = append(pageIndices, n-1)
		}
	}
	slices.Sort(pageIndices)
	return pageIndices, nil
}
