package reader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strconv"
	"sync"

	"github.com/tsawler/pdfpatch/core"
	"github.com/tsawler/pdfpatch/pages"
	"github.com/tsawler/pdfpatch/resolver"
)

// ErrEncrypted is returned for documents with an /Encrypt dictionary.
var ErrEncrypted = errors.New("encrypted documents are not supported")

// PDFVersion represents a PDF version
type PDFVersion struct {
	Major int
	Minor int
}

// String returns the version as a string (e.g., "1.7")
func (v PDFVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Reader gives access to the objects of a PDF file. It is safe for
// concurrent use.
//
// The object cache doubles as the document's node arena: every lookup of an
// object number returns the same Go value, so a change made to a stream or
// dictionary through one path is seen through every other path. Changed
// objects must be reported with MarkModified so the writer picks them up.
type Reader struct {
	src      io.ReaderAt
	closer   io.Closer
	size     int64
	version  PDFVersion
	xref     *core.XRefTable
	sections []*core.XRefTable
	trailer  core.Dict
	resolver *resolver.ObjectResolver

	mu       sync.Mutex
	cache    map[int]core.Object
	modified map[int]bool

	// object streams keep their own decode state
	stmMu   sync.Mutex
	objStms map[int]*core.ObjectStream

	treeMu sync.Mutex
	tree   *pages.PageTree
}

var (
	_ pages.ObjectResolver   = (*Reader)(nil)
	_ resolver.ObjectReader  = (*Reader)(nil)
	_ core.ReferenceResolver = (*Reader)(nil)
)

// NewReader reads the header and cross-reference sections of the size
// bytes in src.
func NewReader(src io.ReaderAt, size int64) (*Reader, error) {
	r := &Reader{
		src:      src,
		size:     size,
		cache:    make(map[int]core.Object),
		modified: make(map[int]bool),
		objStms:  make(map[int]*core.ObjectStream),
	}

	version, err := r.parseHeader()
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	r.version = version

	if err := r.loadXRef(); err != nil {
		return nil, fmt.Errorf("failed to load xref: %w", err)
	}
	if r.trailer.Has("Encrypt") {
		return nil, ErrEncrypted
	}
	r.resolver = resolver.NewResolver(r)
	return r, nil
}

// Open opens a PDF file and returns a Reader
func Open(filename string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	r, err := NewReader(file, info.Size())
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// Close closes the underlying file when the reader was created by Open.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

var headerPattern = regexp.MustCompile(`%PDF-(\d+)\.(\d+)`)

// parseHeader finds %PDF-x.y in the first kilobyte
func (r *Reader) parseHeader() (PDFVersion, error) {
	head := make([]byte, min(1024, r.size))
	n, err := r.src.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		return PDFVersion{}, fmt.Errorf("failed to read header: %w", err)
	}
	if n < 8 {
		return PDFVersion{}, fmt.Errorf("header too short: %d bytes", n)
	}

	m := headerPattern.FindSubmatch(head[:n])
	if m == nil {
		return PDFVersion{}, fmt.Errorf("invalid PDF header: %q", head[:8])
	}
	major, _ := strconv.Atoi(string(m[1]))
	minor, _ := strconv.Atoi(string(m[2]))
	return PDFVersion{Major: major, Minor: minor}, nil
}

// loadXRef parses every section of the /Prev chain and merges them
func (r *Reader) loadXRef() error {
	sections, err := core.NewXRefParser(io.NewSectionReader(r.src, 0, r.size)).ParseAllXRefs()
	if err != nil {
		return fmt.Errorf("failed to parse xref: %w", err)
	}
	r.sections = sections
	r.xref = core.MergeXRefTables(sections...)
	r.trailer = r.xref.Trailer
	return nil
}

// Version returns the PDF version
func (r *Reader) Version() PDFVersion {
	return r.version
}

// Trailer returns the trailer dictionary of the newest section
func (r *Reader) Trailer() core.Dict {
	return r.trailer
}

// XRefTable returns the merged cross-reference table. Its Offset and
// IsStream describe the newest section.
func (r *Reader) XRefTable() *core.XRefTable {
	return r.xref
}

// Sections returns the cross-reference sections, oldest first.
func (r *Reader) Sections() []*core.XRefTable {
	return r.sections
}

// FileSize returns the size of the PDF file in bytes
func (r *Reader) FileSize() int64 {
	return r.size
}

// WriteOriginal copies the unmodified input to w.
func (r *Reader) WriteOriginal(w io.Writer) (int64, error) {
	return io.Copy(w, io.NewSectionReader(r.src, 0, r.size))
}

// NumObjects returns the /Size entry of the trailer
func (r *Reader) NumObjects() int {
	size, ok := r.trailer.GetInt("Size")
	if !ok {
		return 0
	}
	return int(size)
}

// ObjectNumbers returns the numbers of all in-use objects in ascending
// order.
func (r *Reader) ObjectNumbers() []int {
	nums := make([]int, 0, r.xref.Size())
	for num, e := range r.xref.Entries {
		if e.InUse && num > 0 {
			nums = append(nums, num)
		}
	}
	slices.Sort(nums)
	return nums
}

// Generation returns the generation number of an uncompressed object, or 0.
func (r *Reader) Generation(num int) int {
	e, ok := r.xref.Get(num)
	if !ok || e.Type != core.XRefEntryUncompressed {
		return 0
	}
	return e.Generation
}

// GetObject loads an object by its number. Objects are cached, and
// concurrent loads of the same number agree on a single value.
func (r *Reader) GetObject(objNum int) (core.Object, error) {
	return r.getObject(objNum, true)
}

func (r *Reader) getObject(objNum int, lengths bool) (core.Object, error) {
	r.mu.Lock()
	obj, ok := r.cache[objNum]
	r.mu.Unlock()
	if ok {
		return obj, nil
	}

	entry, ok := r.xref.Get(objNum)
	if !ok || !entry.InUse {
		return nil, fmt.Errorf("object %d: %w", objNum, core.ErrNotFound)
	}

	var err error
	switch entry.Type {
	case core.XRefEntryCompressed:
		obj, err = r.loadCompressed(objNum, entry)
	default:
		obj, err = r.loadAt(objNum, entry.Offset, lengths)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.cache[objNum]; ok {
		return prev, nil
	}
	r.cache[objNum] = obj
	return obj, nil
}

// lengthResolver looks up indirect /Length values while a stream is being
// parsed. The lookups it makes do not resolve lengths themselves, so a
// stream whose length points back at a stream cannot recurse.
type lengthResolver struct{ r *Reader }

func (l lengthResolver) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	return l.r.getObject(ref.Number, false)
}

func (r *Reader) loadAt(objNum int, offset int64, lengths bool) (core.Object, error) {
	if offset < 0 || offset >= r.size {
		return nil, fmt.Errorf("object %d: offset %d outside file", objNum, offset)
	}
	parser := core.NewParser(io.NewSectionReader(r.src, offset, r.size-offset))
	if lengths {
		parser.SetReferenceResolver(lengthResolver{r})
	}
	indObj, err := parser.ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("failed to parse object %d: %w", objNum, err)
	}
	if indObj.Ref.Number != objNum {
		return nil, fmt.Errorf("object number mismatch: expected %d, got %d", objNum, indObj.Ref.Number)
	}
	return indObj.Object, nil
}

func (r *Reader) loadCompressed(objNum int, entry *core.XRefEntry) (core.Object, error) {
	stmNum := entry.StreamNumber()
	if e, ok := r.xref.Get(stmNum); !ok || e.Type != core.XRefEntryUncompressed {
		return nil, fmt.Errorf("object %d: object stream %d is not stored directly", objNum, stmNum)
	}
	stmObj, err := r.GetObject(stmNum)
	if err != nil {
		return nil, fmt.Errorf("object %d: failed to load object stream %d: %w", objNum, stmNum, err)
	}
	stream, ok := stmObj.(*core.Stream)
	if !ok {
		return nil, fmt.Errorf("object %d: object stream %d is %T", objNum, stmNum, stmObj)
	}

	r.stmMu.Lock()
	defer r.stmMu.Unlock()
	objStm, ok := r.objStms[stmNum]
	if !ok {
		if objStm, err = core.NewObjectStream(stream); err != nil {
			return nil, fmt.Errorf("object stream %d: %w", stmNum, err)
		}
		r.objStms[stmNum] = objStm
	}

	// the index is a hint, the header is authoritative
	if obj, num, err := objStm.GetObjectByIndex(entry.StreamIndex()); err == nil && num == objNum {
		return obj, nil
	}
	obj, _, err := objStm.GetObjectByNumber(objNum)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", stmNum, err)
	}
	return obj, nil
}

// ResolveReference resolves an indirect reference
func (r *Reader) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	return r.GetObject(ref.Number)
}

// Resolve follows obj until it is no longer a reference.
func (r *Reader) Resolve(obj core.Object) (core.Object, error) {
	return r.resolver.Resolve(obj)
}

// ResolveDeep returns a copy of obj with every reference replaced by its
// target.
func (r *Reader) ResolveDeep(obj core.Object) (core.Object, error) {
	return r.resolver.ResolveDeep(obj)
}

// Reachable returns the numbers of all objects reachable from the trailer.
func (r *Reader) Reachable() []int {
	return r.resolver.Reachable(r.trailer)
}

// GetCatalog returns the document catalog (root object)
func (r *Reader) GetCatalog() (core.Dict, error) {
	rootRef, ok := r.trailer.GetIndirectRef("Root")
	if !ok {
		return nil, fmt.Errorf("trailer missing /Root reference")
	}
	obj, err := r.Resolve(rootRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog: %w", err)
	}
	catalog, ok := obj.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("catalog is not a dictionary: %T", obj)
	}
	return catalog, nil
}

// GetInfo returns the document info dictionary, or nil when there is none.
func (r *Reader) GetInfo() (core.Dict, error) {
	infoRef := r.trailer.Get("Info")
	if infoRef == nil {
		return nil, nil
	}
	obj, err := r.Resolve(infoRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve info: %w", err)
	}
	info, ok := obj.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("info is not a dictionary: %T", obj)
	}
	return info, nil
}

// PageCount returns the number of pages in the PDF
func (r *Reader) PageCount() (int, error) {
	tree, err := r.pageTree()
	if err != nil {
		return 0, err
	}
	return tree.Count()
}

// GetPage returns the page at the given index (0-based)
func (r *Reader) GetPage(index int) (*pages.Page, error) {
	tree, err := r.pageTree()
	if err != nil {
		return nil, err
	}
	return tree.GetPage(index)
}

// Pages returns all pages in document order
func (r *Reader) Pages() ([]*pages.Page, error) {
	tree, err := r.pageTree()
	if err != nil {
		return nil, err
	}
	return tree.Pages()
}

// pageTree loads and flattens the page tree once
func (r *Reader) pageTree() (*pages.PageTree, error) {
	r.treeMu.Lock()
	defer r.treeMu.Unlock()
	if r.tree != nil {
		return r.tree, nil
	}

	catalog, err := r.GetCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}
	root, err := pages.NewCatalog(catalog, r).Pages()
	if err != nil {
		return nil, err
	}
	tree := pages.NewPageTree(root, r)
	if _, err := tree.Pages(); err != nil {
		return nil, err
	}
	r.tree = tree
	return tree, nil
}

// MarkModified records that object num was changed in place. It must be
// the value the reader returned for num.
func (r *Reader) MarkModified(num int) {
	r.mu.Lock()
	r.modified[num] = true
	r.mu.Unlock()
}

// IsModified reports whether MarkModified was called for num.
func (r *Reader) IsModified(num int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modified[num]
}

// Modified returns the modified object numbers in ascending order.
func (r *Reader) Modified() []int {
	r.mu.Lock()
	nums := make([]int, 0, len(r.modified))
	for n := range r.modified {
		nums = append(nums, n)
	}
	r.mu.Unlock()
	slices.Sort(nums)
	return nums
}

// ClearCache drops cached objects to free memory. Modified objects are
// kept, since they exist nowhere else.
func (r *Reader) ClearCache() {
	r.mu.Lock()
	for num := range r.cache {
		if !r.modified[num] {
			delete(r.cache, num)
		}
	}
	r.mu.Unlock()

	r.stmMu.Lock()
	clear(r.objStms)
	r.stmMu.Unlock()
}

// CacheSize returns the number of cached objects
func (r *Reader) CacheSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
