// Package writer serializes a document loaded by the reader package.
//
// [Write] produces a complete new file: only objects reachable from the
// trailer are kept, object streams are expanded and a classic xref table
// is written. [WriteIncremental] appends the modified objects to the
// original bytes as an update section, leaving every earlier byte as it
// was.
package writer

import (
	"bytes"
	"fmt"
	"io"
	"slices"

	"github.com/tsawler/pdfpatch/core"
	"github.com/tsawler/pdfpatch/reader"
)

// Document is what Write needs from a loaded file.
type Document interface {
	GetObject(num int) (core.Object, error)
	Generation(num int) int
	Trailer() core.Dict
	Reachable() []int
	Version() reader.PDFVersion
}

// IncrementalDocument adds what an update section needs.
type IncrementalDocument interface {
	Document
	Modified() []int
	NumObjects() int
	XRefTable() *core.XRefTable
	WriteOriginal(w io.Writer) (int64, error)
}

var _ IncrementalDocument = (*reader.Reader)(nil)

// trailerKeys survive into a rewritten trailer. Everything else in an
// xref stream dictionary describes the old section.
var trailerKeys = []string{"Root", "Info", "ID"}

// countingWriter tracks the byte offset of the output
type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

// xrefRow is one in-use entry of the section being written
type xrefRow struct {
	num    int
	gen    int
	offset int64
}

// Write serializes every object reachable from the trailer as a new file.
func Write(w io.Writer, doc Document) error {
	cw := &countingWriter{w: w}
	fmt.Fprintf(cw, "%%PDF-%s\n%%\xe2\xe3\xcf\xd3\n", doc.Version())

	var rows []xrefRow
	for _, num := range doc.Reachable() {
		obj, err := doc.GetObject(num)
		if err != nil {
			return fmt.Errorf("failed to load object %d: %w", num, err)
		}
		if isStructural(obj) {
			continue
		}
		row := xrefRow{num: num, gen: doc.Generation(num), offset: cw.n}
		if err := core.WriteIndirect(cw, core.IndirectRef{Number: num, Generation: row.gen}, obj); err != nil {
			return fmt.Errorf("failed to write object %d: %w", num, err)
		}
		rows = append(rows, row)
	}

	size := 1
	if len(rows) > 0 {
		size = rows[len(rows)-1].num + 1
	}
	trailer := core.Dict{"Size": core.Int(size)}
	copyTrailer(trailer, doc.Trailer())

	xrefAt := cw.n
	writeXRefTable(cw, rows, true)
	if err := writeTrailer(cw, trailer, xrefAt); err != nil {
		return err
	}
	return cw.err
}

// WriteIncremental copies the original file and appends an update section
// holding the modified objects. With nothing modified the output is the
// original file. The update is an xref stream when the newest existing
// section is one, and a classic table otherwise.
func WriteIncremental(w io.Writer, doc IncrementalDocument) error {
	cw := &countingWriter{w: w}
	if _, err := doc.WriteOriginal(cw); err != nil {
		return fmt.Errorf("failed to copy original: %w", err)
	}
	mods := doc.Modified()
	if len(mods) == 0 {
		return cw.err
	}
	io.WriteString(cw, "\n")

	var rows []xrefRow
	for _, num := range mods {
		obj, err := doc.GetObject(num)
		if err != nil {
			return fmt.Errorf("failed to load object %d: %w", num, err)
		}
		row := xrefRow{num: num, gen: doc.Generation(num), offset: cw.n}
		if err := core.WriteIndirect(cw, core.IndirectRef{Number: num, Generation: row.gen}, obj); err != nil {
			return fmt.Errorf("failed to write object %d: %w", num, err)
		}
		rows = append(rows, row)
	}

	size := max(doc.NumObjects(), mods[len(mods)-1]+1)
	trailer := core.Dict{"Prev": core.Int(doc.XRefTable().Offset)}
	copyTrailer(trailer, doc.Trailer())

	if doc.XRefTable().IsStream {
		if err := writeXRefStream(cw, rows, size, trailer); err != nil {
			return err
		}
		return cw.err
	}

	trailer["Size"] = core.Int(size)
	xrefAt := cw.n
	writeXRefTable(cw, rows, false)
	if err := writeTrailer(cw, trailer, xrefAt); err != nil {
		return err
	}
	return cw.err
}

func copyTrailer(dst, src core.Dict) {
	for _, k := range trailerKeys {
		if v := src.Get(k); v != nil {
			dst[k] = v
		}
	}
}

// isStructural reports xref and object streams, whose contents the new
// file stores in its own way.
func isStructural(obj core.Object) bool {
	s, ok := obj.(*core.Stream)
	if !ok {
		return false
	}
	t, _ := s.Dict.GetName("Type")
	return t == "XRef" || t == "ObjStm"
}

// subsections groups sorted rows into runs of consecutive numbers
func subsections(rows []xrefRow) [][]xrefRow {
	var out [][]xrefRow
	start := 0
	for i := 1; i <= len(rows); i++ {
		if i == len(rows) || rows[i].num != rows[i-1].num+1 {
			out = append(out, rows[start:i])
			start = i
		}
	}
	return out
}

// writeXRefTable writes a classic table. A full table covers 0 through the
// highest number with free entries for the gaps; an update lists only the
// given rows.
func writeXRefTable(w io.Writer, rows []xrefRow, full bool) {
	io.WriteString(w, "xref\n")
	if !full {
		for _, sub := range subsections(rows) {
			fmt.Fprintf(w, "%d %d\n", sub[0].num, len(sub))
			for _, r := range sub {
				fmt.Fprintf(w, "%010d %05d n \n", r.offset, r.gen)
			}
		}
		return
	}

	size := 1
	if len(rows) > 0 {
		size = rows[len(rows)-1].num + 1
	}
	fmt.Fprintf(w, "0 %d\n0000000000 65535 f \n", size)
	next := 0
	for num := 1; num < size; num++ {
		if next < len(rows) && rows[next].num == num {
			fmt.Fprintf(w, "%010d %05d n \n", rows[next].offset, rows[next].gen)
			next++
			continue
		}
		io.WriteString(w, "0000000000 00000 f \n")
	}
}

func writeTrailer(w io.Writer, trailer core.Dict, xrefAt int64) error {
	io.WriteString(w, "trailer\n")
	if err := core.WriteObject(w, trailer); err != nil {
		return fmt.Errorf("failed to write trailer: %w", err)
	}
	fmt.Fprintf(w, "\nstartxref\n%d\n%%%%EOF\n", xrefAt)
	return nil
}

// xrefStreamWidths is /W of the update stream: type, 4-byte offset,
// 2-byte generation.
var xrefStreamWidths = [3]int{1, 4, 2}

// writeXRefStream writes the update section as an xref stream stored under
// the next free object number.
func writeXRefStream(w *countingWriter, rows []xrefRow, size int, trailer core.Dict) error {
	num := size
	rows = append(slices.Clone(rows), xrefRow{num: num, offset: w.n})

	var data bytes.Buffer
	var index core.Array
	for _, sub := range subsections(rows) {
		index = append(index, core.Int(sub[0].num), core.Int(len(sub)))
		for _, r := range sub {
			if r.offset > 0xFFFFFFFF {
				return fmt.Errorf("object %d offset %d does not fit the xref stream", r.num, r.offset)
			}
			data.Write([]byte{
				1,
				byte(r.offset >> 24), byte(r.offset >> 16), byte(r.offset >> 8), byte(r.offset),
				byte(r.gen >> 8), byte(r.gen),
			})
		}
	}

	d := trailer.Clone()
	d["Type"] = core.Name("XRef")
	d["Size"] = core.Int(num + 1)
	d["W"] = core.Array{core.Int(xrefStreamWidths[0]), core.Int(xrefStreamWidths[1]), core.Int(xrefStreamWidths[2])}
	d["Index"] = index
	s := &core.Stream{Dict: d}
	if err := s.SetData(data.Bytes(), true); err != nil {
		return err
	}

	xrefAt := w.n
	if err := core.WriteIndirect(w, core.IndirectRef{Number: num}, s); err != nil {
		return fmt.Errorf("failed to write xref stream: %w", err)
	}
	fmt.Fprintf(w, "startxref\n%d\n%%%%EOF\n", xrefAt)
	return nil
}
