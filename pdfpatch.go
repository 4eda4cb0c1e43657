// Package pdfpatch provides a fluent API for recompressing the raster
// images of PDF files as JBIG2.
//
// Basic usage:
//
//	report, err := pdfpatch.Open("scan.pdf").Recompress().Save("scan-small.pdf")
//	if err != nil {
//	    // handle error
//	}
//	fmt.Println(report.Images.Optimized, "images replaced")
//
// With options:
//
//	report, err := pdfpatch.Open("scan.pdf").
//	    Threshold(160).
//	    Pages(1, 2, 3).
//	    Workers(4).
//	    Incremental(true).
//	    Recompress().
//	    Save("scan.pdf")
//
// Failures on individual pages do not stop a run; they are listed in
// Report.Errors. For lower-level access use the reader, processor and
// writer packages directly.
package pdfpatch

import (
	"github.com/tsawler/pdfpatch/processor"
	"github.com/tsawler/pdfpatch/reader"
	"github.com/tsawler/pdfpatch/recompress"
)

var _ processor.Document = (*reader.Reader)(nil)

// Open returns a Patcher for the named file. The file is opened lazily by
// the first operation that needs it and closed by Save or Write.
//
// Example:
//
//	report, err := pdfpatch.Open("document.pdf").Recompress().Save("out.pdf")
func Open(filename string) *Patcher {
	return &Patcher{
		filename: filename,
		options:  defaultOptions(),
	}
}

// FromReader creates a Patcher from an already-opened reader.Reader.
// The caller is responsible for closing the reader.
//
// Example:
//
//	r, err := reader.Open("document.pdf")
//	if err != nil {
//	    // handle error
//	}
//	defer r.Close()
//	report, err := pdfpatch.FromReader(r).Recompress().Write(w)
func FromReader(r *reader.Reader) *Patcher {
	return &Patcher{
		reader:       r,
		ownsReader:   false,
		readerOpened: true,
		options:      defaultOptions(),
	}
}

// Must is a helper that wraps a call to a function returning (T, error)
// and panics if the error is non-nil. It is intended for use in scripts
// or tests where error handling would be cumbersome.
//
// Example:
//
//	count := pdfpatch.Must(pdfpatch.Open("document.pdf").PageCount())
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

// Report summarizes what a Patcher did.
type Report struct {
	// Pages is the number of page visits, Changed those that replaced at
	// least one image.
	Pages   int
	Changed int

	Images recompress.Stats

	// Modified lists the object numbers written as changed.
	Modified []int

	// Errors holds the per-page failures. They did not stop the run.
	Errors []*processor.PageError
}
