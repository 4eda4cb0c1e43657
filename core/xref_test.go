package core

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// classicPDF lays out objects and a classic xref table. It returns the
// file and the offset of each object.
func classicPDF(objs []string, trailer string) ([]byte, []int) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n%s\nstartxref\n%d\n%%%%EOF\n", trailer, xref)
	return buf.Bytes(), offsets
}

func TestFindXRef(t *testing.T) {
	data, _ := classicPDF([]string{"<</Type /Catalog>>"}, "<</Size 2 /Root 1 0 R>>")
	off, err := NewXRefParser(bytes.NewReader(data)).FindXRef()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data[off:], []byte("xref")) {
		t.Errorf("offset %d does not point at xref", off)
	}

	bad := []string{
		"%PDF-1.4 no trailer",
		"startxref\n",
		"startxref\nabc\n",
		"startxref\n99999\n",
	}
	for _, input := range bad {
		if _, err := NewXRefParser(strings.NewReader(input)).FindXRef(); err == nil {
			t.Errorf("FindXRef(%q) expected error", input)
		}
	}
}

func TestParseClassicXRef(t *testing.T) {
	data, offsets := classicPDF(
		[]string{"<</Type /Catalog /Pages 2 0 R>>", "<</Type /Pages /Kids [] /Count 0>>"},
		"<</Size 3 /Root 1 0 R>>",
	)
	table, err := NewXRefParser(bytes.NewReader(data)).ParseXRefFromEOF()
	if err != nil {
		t.Fatal(err)
	}
	if table.IsStream {
		t.Error("classic table reported as stream")
	}
	if table.Size() != 3 {
		t.Errorf("Size = %d, want 3", table.Size())
	}
	free, _ := table.Get(0)
	if free.InUse || free.Type != XRefEntryFree || free.Generation != 65535 {
		t.Errorf("entry 0 = %+v", free)
	}
	for i, off := range offsets {
		e, ok := table.Get(i + 1)
		if !ok || !e.InUse || e.Offset != int64(off) {
			t.Errorf("entry %d = %+v, want offset %d", i+1, e, off)
		}
	}
	if root, _ := table.Trailer.GetIndirectRef("Root"); root.Number != 1 {
		t.Errorf("trailer Root = %v", table.Trailer.Get("Root"))
	}
}

func TestParseXRefTableErrors(t *testing.T) {
	tests := []string{
		"xref\n0 1\n0000000000 65535 x \ntrailer\n<<>>",
		"xref\n0 1\nabc 0 n \ntrailer\n<<>>",
		"xref\n0 1\n0000000000 65535 f \ntrailer\n[1]",
		"nothing here",
	}
	for _, input := range tests {
		if _, err := NewXRefParser(strings.NewReader(input)).ParseXRef(0); err == nil {
			t.Errorf("ParseXRef(%q) expected error", input)
		}
	}
}

// xrefStreamEntry packs one entry with widths 1 2 1.
func xrefStreamEntry(typ byte, f2 int, f3 byte) []byte {
	return []byte{typ, byte(f2 >> 8), byte(f2), f3}
}

func TestParseXRefStream(t *testing.T) {
	var rows []byte
	rows = append(rows, xrefStreamEntry(0, 0, 255)...)
	rows = append(rows, xrefStreamEntry(1, 0x1234, 0)...)
	rows = append(rows, xrefStreamEntry(2, 7, 3)...)
	rows = append(rows, xrefStreamEntry(9, 0, 0)...)
	payload := deflate(rows)

	input := fmt.Sprintf("5 0 obj\n<</Type /XRef /Size 4 /W [1 2 1] /Root 1 0 R /Filter /FlateDecode /Length %d>>\nstream\n%s\nendstream\nendobj\n",
		len(payload), payload)

	table, err := NewXRefParser(strings.NewReader(input)).ParseXRef(0)
	if err != nil {
		t.Fatal(err)
	}
	if !table.IsStream {
		t.Error("xref stream not flagged as stream")
	}

	tests := []struct {
		num    int
		typ    XRefEntryType
		inUse  bool
		offset int64
		gen    int
	}{
		{0, XRefEntryFree, false, 0, 255},
		{1, XRefEntryUncompressed, true, 0x1234, 0},
		{2, XRefEntryCompressed, true, 7, 3},
		{3, XRefEntryFree, false, 0, 0},
	}
	for _, tt := range tests {
		e, ok := table.Get(tt.num)
		if !ok {
			t.Fatalf("entry %d missing", tt.num)
		}
		if e.Type != tt.typ || e.InUse != tt.inUse || e.Offset != tt.offset || e.Generation != tt.gen {
			t.Errorf("entry %d = %+v", tt.num, e)
		}
	}
	c, _ := table.Get(2)
	if c.StreamNumber() != 7 || c.StreamIndex() != 3 {
		t.Errorf("compressed entry points at %d[%d]", c.StreamNumber(), c.StreamIndex())
	}
	if _, ok := table.Trailer.GetIndirectRef("Root"); !ok {
		t.Error("xref stream dictionary should serve as trailer")
	}
}

func TestParseXRefStreamIndex(t *testing.T) {
	rows := append(xrefStreamEntry(1, 100, 0), xrefStreamEntry(1, 200, 0)...)
	input := fmt.Sprintf("9 0 obj\n<</Type /XRef /Size 21 /Index [4 1 20 1] /W [1 2 1] /Length %d>>\nstream\n%s\nendstream\nendobj\n",
		len(rows), rows)

	table, err := NewXRefParser(strings.NewReader(input)).ParseXRef(0)
	if err != nil {
		t.Fatal(err)
	}
	if e, ok := table.Get(4); !ok || e.Offset != 100 {
		t.Errorf("entry 4 = %+v", e)
	}
	if e, ok := table.Get(20); !ok || e.Offset != 200 {
		t.Errorf("entry 20 = %+v", e)
	}
	if table.Size() != 2 {
		t.Errorf("Size = %d, want 2", table.Size())
	}
}

func TestParseXRefStreamErrors(t *testing.T) {
	tests := []struct {
		name string
		dict string
	}{
		{"wrong type", "/Type /ObjStm /Size 1 /W [1 2 1]"},
		{"missing size", "/Type /XRef /W [1 2 1]"},
		{"missing W", "/Type /XRef /Size 1"},
		{"short W", "/Type /XRef /Size 1 /W [1 2]"},
		{"wide W", "/Type /XRef /Size 1 /W [1 9 1]"},
		{"odd Index", "/Type /XRef /Size 1 /W [1 2 1] /Index [0]"},
		{"truncated data", "/Type /XRef /Size 5 /W [1 2 1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := fmt.Sprintf("1 0 obj\n<<%s /Length 4>>\nstream\n\x01\x00\x10\x00\nendstream\nendobj\n", tt.dict)
			if _, err := NewXRefParser(strings.NewReader(input)).ParseXRef(0); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseAllXRefsIncremental(t *testing.T) {
	base, offsets := classicPDF(
		[]string{"<</Type /Catalog>>", "(old)"},
		"<</Size 3 /Root 1 0 R>>",
	)
	firstXRef := bytes.LastIndex(base, []byte("xref\n0 3"))

	var buf bytes.Buffer
	buf.Write(base)
	updated := buf.Len()
	buf.WriteString("2 0 obj\n(new)\nendobj\n")
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n2 1\n%010d 00000 n \ntrailer\n<</Size 3 /Root 1 0 R /Prev %d>>\nstartxref\n%d\n%%%%EOF\n",
		updated, firstXRef, xref)

	tables, err := NewXRefParser(bytes.NewReader(buf.Bytes())).ParseAllXRefs()
	if err != nil {
		t.Fatal(err)
	}
	if len(tables) != 2 {
		t.Fatalf("got %d sections, want 2", len(tables))
	}
	if tables[0].Offset != int64(firstXRef) || tables[1].Offset != int64(xref) {
		t.Errorf("sections not ordered oldest first: %d, %d", tables[0].Offset, tables[1].Offset)
	}

	merged := MergeXRefTables(tables...)
	if e, _ := merged.Get(2); e.Offset != int64(updated) {
		t.Errorf("object 2 at %d, want the updated copy at %d", e.Offset, updated)
	}
	if e, _ := merged.Get(1); e.Offset != int64(offsets[0]) {
		t.Errorf("object 1 at %d, want %d", e.Offset, offsets[0])
	}
	if _, ok := merged.Trailer.GetInt("Prev"); !ok {
		t.Error("merged trailer should be the newest one")
	}
}

func TestParseAllXRefsLoop(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 1\n0000000000 65535 f \ntrailer\n<</Size 1 /Prev %d>>\nstartxref\n%d\n%%%%EOF\n", xref, xref)

	if _, err := NewXRefParser(bytes.NewReader(buf.Bytes())).ParseAllXRefs(); err == nil {
		t.Error("a /Prev loop should be reported")
	}
}

func TestParseAllXRefsHybrid(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	catalog := buf.Len()
	buf.WriteString("1 0 obj\n<</Type /Catalog>>\nendobj\n")

	stm := buf.Len()
	rows := append(xrefStreamEntry(2, 3, 0), xrefStreamEntry(1, catalog, 0)...)
	fmt.Fprintf(&buf, "4 0 obj\n<</Type /XRef /Size 5 /Index [2 1 1 1] /W [1 2 1] /Length %d>>\nstream\n%s\nendstream\nendobj\n", len(rows), rows)

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 3\n0000000000 65535 f \n%010d 00000 n \n0000000000 00000 f \ntrailer\n<</Size 5 /Root 1 0 R /XRefStm %d>>\nstartxref\n%d\n%%%%EOF\n",
		catalog, stm, xref)

	tables, err := NewXRefParser(bytes.NewReader(buf.Bytes())).ParseAllXRefs()
	if err != nil {
		t.Fatal(err)
	}
	merged := MergeXRefTables(tables...)

	e, ok := merged.Get(2)
	if !ok || e.Type != XRefEntryCompressed || e.StreamNumber() != 3 {
		t.Errorf("object 2 = %+v, want compressed in stream 3", e)
	}
	e, _ = merged.Get(1)
	if e.Offset != int64(catalog) {
		t.Errorf("object 1 at %d, want %d", e.Offset, catalog)
	}
	if merged.IsStream {
		t.Error("a hybrid file's newest section is a classic table")
	}
}
