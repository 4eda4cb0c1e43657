package core

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

// XRefEntryType is the kind of a cross-reference entry
type XRefEntryType int

const (
	XRefEntryFree         XRefEntryType = iota // type 0
	XRefEntryUncompressed                      // type 1, stored at a byte offset
	XRefEntryCompressed                        // type 2, stored inside an object stream
)

func (t XRefEntryType) String() string {
	switch t {
	case XRefEntryFree:
		return "free"
	case XRefEntryUncompressed:
		return "uncompressed"
	case XRefEntryCompressed:
		return "compressed"
	}
	return fmt.Sprintf("XRefEntryType(%d)", int(t))
}

// XRefEntry is one cross-reference entry. For compressed entries Offset is
// the number of the object stream and Generation the index inside it.
type XRefEntry struct {
	Type       XRefEntryType
	Offset     int64
	Generation int
	InUse      bool
}

// StreamNumber returns the containing object stream of a compressed entry
func (e *XRefEntry) StreamNumber() int {
	return int(e.Offset)
}

// StreamIndex returns the position inside the object stream of a
// compressed entry
func (e *XRefEntry) StreamIndex() int {
	return e.Generation
}

// XRefTable is one cross-reference section together with its trailer
type XRefTable struct {
	Entries  map[int]*XRefEntry
	Trailer  Dict
	IsStream bool  // the section was stored as an xref stream
	Offset   int64 // byte offset of the section
}

// NewXRefTable returns an empty table
func NewXRefTable() *XRefTable {
	return &XRefTable{
		Entries: make(map[int]*XRefEntry),
		Trailer: make(Dict),
	}
}

// Get returns the entry for objNum
func (x *XRefTable) Get(objNum int) (*XRefEntry, bool) {
	e, ok := x.Entries[objNum]
	return e, ok
}

// Set stores the entry for objNum
func (x *XRefTable) Set(objNum int, entry *XRefEntry) {
	x.Entries[objNum] = entry
}

// Size returns the number of entries
func (x *XRefTable) Size() int {
	return len(x.Entries)
}

// XRefParser reads cross-reference sections
type XRefParser struct {
	reader io.ReadSeeker
}

// NewXRefParser returns a parser reading from r
func NewXRefParser(r io.ReadSeeker) *XRefParser {
	return &XRefParser{reader: r}
}

// FindXRef returns the offset recorded after the last startxref keyword.
func (x *XRefParser) FindXRef() (int64, error) {
	size, err := x.reader.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to seek to end: %w", err)
	}
	tail := int64(2048)
	if size < tail {
		tail = size
	}
	if _, err := x.reader.Seek(size-tail, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek to trailer area: %w", err)
	}
	buf := make([]byte, tail)
	if _, err := io.ReadFull(x.reader, buf); err != nil {
		return 0, fmt.Errorf("failed to read trailer area: %w", err)
	}

	idx := bytes.LastIndex(buf, []byte("startxref"))
	if idx < 0 {
		return 0, fmt.Errorf("startxref not found")
	}
	fields := bytes.Fields(buf[idx+len("startxref"):])
	if len(fields) == 0 {
		return 0, fmt.Errorf("startxref without offset")
	}
	offset, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid startxref offset: %w", err)
	}
	if offset < 0 || offset >= size {
		return 0, fmt.Errorf("startxref offset %d outside file of %d bytes", offset, size)
	}
	return offset, nil
}

var objHeader = regexp.MustCompile(`^\s*\d+\s+\d+\s+obj`)

// isXRefStream inspects the bytes at the current position and reports
// whether an xref stream object (rather than the xref keyword) starts
// there. The read position is restored.
func (x *XRefParser) isXRefStream() (bool, error) {
	pos, err := x.reader.Seek(0, io.SeekCurrent)
	if err != nil {
		return false, err
	}
	head := make([]byte, 32)
	n, err := io.ReadFull(x.reader, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, err
	}
	head = head[:n]
	if _, err := x.reader.Seek(pos, io.SeekStart); err != nil {
		return false, err
	}

	switch {
	case bytes.HasPrefix(bytes.TrimLeft(head, " \t\r\n\f\x00"), []byte("xref")):
		return false, nil
	case objHeader.Match(head):
		return true, nil
	}
	return false, fmt.Errorf("no cross-reference section at offset %d", pos)
}

// ParseXRef parses the section at offset, which may be a classic table or
// an xref stream.
func (x *XRefParser) ParseXRef(offset int64) (*XRefTable, error) {
	if _, err := x.reader.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to xref: %w", err)
	}
	isStream, err := x.isXRefStream()
	if err != nil {
		return nil, err
	}

	var table *XRefTable
	if isStream {
		table, err = x.parseXRefStream()
	} else {
		table, err = x.parseXRefTable()
	}
	if err != nil {
		return nil, err
	}
	table.Offset = offset
	return table, nil
}

// parseXRefTable reads a classic "xref ... trailer <<>>" section at the
// current position.
func (x *XRefParser) parseXRefTable() (*XRefTable, error) {
	p := NewParser(x.reader)
	tok, err := p.read()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword(tok, "xref") {
		return nil, fmt.Errorf("expected 'xref', got %v", tok)
	}

	table := NewXRefTable()
	for {
		tok, err := p.read()
		if err != nil {
			return nil, err
		}
		if p.isKeyword(tok, "trailer") {
			break
		}
		if tok.Type != TokenInteger {
			return nil, fmt.Errorf("invalid subsection header: %v", tok)
		}
		first, _ := strconv.Atoi(string(tok.Value))
		count, err := p.expectInt("subsection size")
		if err != nil {
			return nil, err
		}
		for i := 0; i < count; i++ {
			entry, err := x.parseEntry(p)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", first+i, err)
			}
			// the first definition of an object number in a section wins
			if _, dup := table.Entries[first+i]; !dup {
				table.Set(first+i, entry)
			}
		}
	}

	obj, err := p.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("failed to parse trailer: %w", err)
	}
	trailer, ok := obj.(Dict)
	if !ok {
		return nil, fmt.Errorf("trailer is %s, not a dictionary", obj.Type())
	}
	table.Trailer = trailer
	return table, nil
}

// parseEntry reads "offset generation n|f".
func (x *XRefParser) parseEntry(p *Parser) (*XRefEntry, error) {
	off, err := p.read()
	if err != nil {
		return nil, err
	}
	if off.Type != TokenInteger {
		return nil, fmt.Errorf("invalid offset %v", off)
	}
	offset, _ := strconv.ParseInt(string(off.Value), 10, 64)
	gen, err := p.expectInt("generation")
	if err != nil {
		return nil, err
	}
	flag, err := p.read()
	if err != nil {
		return nil, err
	}
	switch {
	case p.isKeyword(flag, "n"):
		return &XRefEntry{Type: XRefEntryUncompressed, Offset: offset, Generation: gen, InUse: true}, nil
	case p.isKeyword(flag, "f"):
		return &XRefEntry{Type: XRefEntryFree, Offset: offset, Generation: gen}, nil
	}
	return nil, fmt.Errorf("invalid in-use flag %v", flag)
}

// parseXRefStream reads an xref stream object at the current position.
func (x *XRefParser) parseXRefStream() (*XRefTable, error) {
	ind, err := NewParser(x.reader).ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("failed to parse xref stream: %w", err)
	}
	stream, ok := ind.Object.(*Stream)
	if !ok {
		return nil, fmt.Errorf("xref object %d is %s, not a stream", ind.Ref.Number, ind.Object.Type())
	}
	d := stream.Dict
	if t, _ := d.GetName("Type"); t != "XRef" {
		return nil, fmt.Errorf("xref stream has /Type %v", d.Get("Type"))
	}
	size, ok := d.GetInt("Size")
	if !ok || size < 0 {
		return nil, fmt.Errorf("xref stream missing /Size")
	}
	wArr, ok := d.GetArray("W")
	if !ok {
		return nil, fmt.Errorf("xref stream missing /W")
	}
	if len(wArr) != 3 {
		return nil, fmt.Errorf("xref stream /W has %d elements, want 3", len(wArr))
	}
	w := make([]int, 3)
	for i := range w {
		v, ok := wArr.GetInt(i)
		if !ok || v < 0 || v > 8 {
			return nil, fmt.Errorf("invalid /W element %v", wArr[i])
		}
		w[i] = int(v)
	}

	index := []int{0, int(size)}
	if idxArr, ok := d.GetArray("Index"); ok {
		if len(idxArr)%2 != 0 {
			return nil, fmt.Errorf("xref stream /Index has odd length %d", len(idxArr))
		}
		index = index[:0]
		for i := range idxArr {
			v, ok := idxArr.GetInt(i)
			if !ok || v < 0 {
				return nil, fmt.Errorf("invalid /Index element %v", idxArr[i])
			}
			index = append(index, int(v))
		}
	}

	data, err := stream.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode xref stream: %w", err)
	}

	table := NewXRefTable()
	table.IsStream = true
	table.Trailer = d

	pos := 0
	for i := 0; i < len(index); i += 2 {
		first, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			entry, n, err := x.parseXRefStreamEntry(data[pos:], w)
			if err != nil {
				return nil, fmt.Errorf("xref stream entry %d: %w", first+j, err)
			}
			pos += n
			table.Set(first+j, entry)
		}
	}
	return table, nil
}

// parseXRefStreamEntry decodes one binary entry with field widths w. A
// zero-width type field defaults to type 1.
func (x *XRefParser) parseXRefStreamEntry(data []byte, w []int) (*XRefEntry, int, error) {
	n := w[0] + w[1] + w[2]
	if len(data) < n {
		return nil, 0, fmt.Errorf("need %d bytes, have %d", n, len(data))
	}
	typ := int64(1)
	if w[0] > 0 {
		typ = readBigEndianInt(data, w[0])
	}
	f2 := readBigEndianInt(data[w[0]:], w[1])
	f3 := int(readBigEndianInt(data[w[0]+w[1]:], w[2]))

	entry := &XRefEntry{Offset: f2, Generation: f3}
	switch typ {
	case 0:
		entry.Type = XRefEntryFree
	case 1:
		entry.Type = XRefEntryUncompressed
		entry.InUse = true
	case 2:
		entry.Type = XRefEntryCompressed
		entry.InUse = true
	default:
		// unknown types are treated as references to the null object
		entry.Type = XRefEntryFree
	}
	return entry, n, nil
}

// readBigEndianInt decodes width bytes as an unsigned big-endian number.
func readBigEndianInt(data []byte, width int) int64 {
	var v int64
	for i := 0; i < width && i < len(data); i++ {
		v = v<<8 | int64(data[i])
	}
	return v
}

// ParseXRefFromEOF locates and parses the newest section.
func (x *XRefParser) ParseXRefFromEOF() (*XRefTable, error) {
	offset, err := x.FindXRef()
	if err != nil {
		return nil, err
	}
	return x.ParseXRef(offset)
}

// ParsePrevXRef parses the section named by the /Prev entry of table, or
// returns nil when there is none.
func (x *XRefParser) ParsePrevXRef(table *XRefTable) (*XRefTable, error) {
	prev, ok := table.Trailer.GetInt("Prev")
	if !ok {
		return nil, nil
	}
	return x.ParseXRef(int64(prev))
}

// MergeXRefTables combines sections ordered oldest first. Entries of newer
// sections replace older ones and the newest trailer is kept.
func MergeXRefTables(tables ...*XRefTable) *XRefTable {
	merged := NewXRefTable()
	for _, t := range tables {
		for num, e := range t.Entries {
			merged.Set(num, e)
		}
		merged.Trailer = t.Trailer
		merged.IsStream = t.IsStream
		merged.Offset = t.Offset
	}
	return merged
}

// ParseAllXRefs follows the /Prev chain from the newest section and returns
// every section oldest first. The /XRefStm stream of a hybrid file is folded
// into the table that names it, filling entries the table lacks or marks
// free.
func (x *XRefParser) ParseAllXRefs() ([]*XRefTable, error) {
	offset, err := x.FindXRef()
	if err != nil {
		return nil, err
	}

	var tables []*XRefTable
	seen := make(map[int64]bool)
	for {
		if seen[offset] {
			return nil, fmt.Errorf("xref /Prev chain loops at offset %d", offset)
		}
		seen[offset] = true

		table, err := x.ParseXRef(offset)
		if err != nil {
			return nil, err
		}
		tables = append([]*XRefTable{table}, tables...)

		if stmOff, ok := table.Trailer.GetInt("XRefStm"); ok && !table.IsStream {
			stm, err := x.ParseXRef(int64(stmOff))
			if err != nil {
				return nil, fmt.Errorf("hybrid xref stream: %w", err)
			}
			for num, e := range stm.Entries {
				if cur, ok := table.Entries[num]; !ok || !cur.InUse {
					table.Set(num, e)
				}
			}
		}

		prev, ok := table.Trailer.GetInt("Prev")
		if !ok {
			return tables, nil
		}
		offset = int64(prev)
	}
}
