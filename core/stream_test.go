package core

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func deflate(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

func TestStreamDecode(t *testing.T) {
	payload := []byte("stream payload")
	hexed := []byte(fmt.Sprintf("%X>", deflate(payload)))

	tests := []struct {
		name   string
		stream *Stream
	}{
		{"unfiltered", &Stream{Dict: Dict{}, Data: payload}},
		{"flate", &Stream{Dict: Dict{"Filter": FilterFlate}, Data: deflate(payload)}},
		{"abbreviated", &Stream{Dict: Dict{"Filter": Name("Fl")}, Data: deflate(payload)}},
		{"hex then flate", &Stream{
			Dict: Dict{"Filter": Array{FilterASCIIHex, FilterFlate}},
			Data: hexed,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.stream.Decode()
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("got %q, want %q", got, payload)
			}
		})
	}
}

func TestStreamDecodeUntil(t *testing.T) {
	s := &Stream{
		Dict: Dict{"Filter": Array{FilterFlate, FilterDCT}},
		Data: deflate([]byte("jpeg bytes")),
	}

	data, rest, err := s.DecodeUntil(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "jpeg bytes" {
		t.Errorf("data = %q", data)
	}
	if d := cmp.Diff([]Name{FilterDCT}, rest); d != "" {
		t.Errorf("remaining filters mismatch (-want +got):\n%s", d)
	}

	if _, err := s.Decode(); !errors.Is(err, ErrUnsupportedFilter) {
		t.Errorf("Decode err = %v, want ErrUnsupportedFilter", err)
	}

	stopAtFlate := func(n Name) bool { return n == FilterFlate }
	data, rest, err = s.DecodeUntil(nil, stopAtFlate)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, s.Data) || len(rest) != 2 {
		t.Errorf("stopping at the first filter should return the raw data and the whole chain")
	}
}

func TestStreamDecodeParms(t *testing.T) {
	parms := Dict{"Predictor": Int(12), "Columns": Int(2)}
	single := &Stream{Dict: Dict{"Filter": FilterFlate, "DecodeParms": parms}}
	got, err := single.decodeParms(nil, 1)
	if err != nil || got[0] == nil {
		t.Errorf("a single dictionary belongs to the first filter: %v, %v", got, err)
	}

	chain := &Stream{Dict: Dict{
		"Filter":      Array{FilterASCIIHex, FilterFlate},
		"DecodeParms": Array{Null{}, parms},
	}}
	got, err = chain.decodeParms(nil, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != nil {
		t.Errorf("parms[0] = %v, want nil", got[0])
	}
	if got[1] == nil {
		t.Error("parms[1] should be the predictor dictionary")
	}

	// Up predictor over two rows of two bytes
	rows := []byte{2, 1, 2, 2, 1, 1}
	s := &Stream{Dict: Dict{"Filter": FilterFlate, "DecodeParms": parms}, Data: deflate(rows)}
	data, err := s.Decode()
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{1, 2, 2, 3}; !bytes.Equal(data, want) {
		t.Errorf("got %v, want %v", data, want)
	}
}

func TestStreamDecodeIndirectEntries(t *testing.T) {
	rows := []byte{2, 1, 2, 2, 1, 1}
	want := []byte{1, 2, 2, 3}
	objects := map[int]Object{
		20: Dict{"Predictor": Int(12), "Columns": IndirectRef{Number: 21}},
		21: Int(2),
		22: FilterFlate,
		23: Array{IndirectRef{Number: 22}},
		24: Array{IndirectRef{Number: 20}},
		25: Null{},
	}
	r := ResolverFunc(func(ref IndirectRef) (Object, error) {
		if obj, ok := objects[ref.Number]; ok {
			return obj, nil
		}
		return nil, ErrNotFound
	})

	tests := []struct {
		name string
		dict Dict
	}{
		{"indirect parms", Dict{"Filter": FilterFlate, "DecodeParms": IndirectRef{Number: 20}}},
		{"indirect filter", Dict{"Filter": IndirectRef{Number: 22}, "DecodeParms": IndirectRef{Number: 20}}},
		{"indirect chain", Dict{"Filter": IndirectRef{Number: 23}, "DecodeParms": IndirectRef{Number: 24}}},
		{"indirect chain elements", Dict{"Filter": Array{IndirectRef{Number: 22}}, "DecodeParms": Array{IndirectRef{Number: 20}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Stream{Dict: tt.dict, Data: deflate(rows)}
			got, rest, err := s.DecodeUntil(r, nil)
			if err != nil {
				t.Fatalf("DecodeUntil: %v", err)
			}
			if len(rest) != 0 || !bytes.Equal(got, want) {
				t.Errorf("got %v (rest %v), want %v", got, rest, want)
			}
			if _, _, err := s.DecodeUntil(nil, nil); !errors.Is(err, ErrUnresolvedFilter) {
				t.Errorf("without resolver err = %v, want ErrUnresolvedFilter", err)
			}
		})
	}

	dangling := &Stream{Dict: Dict{"Filter": FilterFlate, "DecodeParms": IndirectRef{Number: 99}}, Data: deflate(rows)}
	if _, _, err := dangling.DecodeUntil(r, nil); !errors.Is(err, ErrUnresolvedFilter) {
		t.Errorf("dangling parms err = %v, want ErrUnresolvedFilter", err)
	}

	// null target means no parameters
	nullParms := &Stream{Dict: Dict{"Filter": FilterFlate, "DecodeParms": IndirectRef{Number: 25}}, Data: deflate(want)}
	if got, _, err := nullParms.DecodeUntil(r, nil); err != nil || !bytes.Equal(got, want) {
		t.Errorf("null parms: got %v, %v", got, err)
	}
}

func TestStreamSetData(t *testing.T) {
	s := &Stream{
		Dict: Dict{"Filter": FilterDCT, "DecodeParms": Dict{}, "Length": Int(999)},
		Data: []byte("old"),
	}

	if err := s.SetData([]byte("raw jbig2"), false); err != nil {
		t.Fatal(err)
	}
	if string(s.Data) != "raw jbig2" {
		t.Errorf("Data = %q", s.Data)
	}
	if n, _ := s.Dict.GetInt("Length"); n != 9 {
		t.Errorf("Length = %v, want 9", s.Dict.Get("Length"))
	}
	if f, _ := s.Dict.GetName("Filter"); f != FilterDCT {
		t.Error("uncompressed SetData must leave /Filter to the caller")
	}

	plain := bytes.Repeat([]byte("abc"), 100)
	if err := s.SetData(plain, true); err != nil {
		t.Fatal(err)
	}
	if f, _ := s.Dict.GetName("Filter"); f != FilterFlate {
		t.Errorf("Filter = %v, want FlateDecode", s.Dict.Get("Filter"))
	}
	if s.Dict.Has("DecodeParms") {
		t.Error("DecodeParms should be dropped on compression")
	}
	if n, _ := s.Dict.GetInt("Length"); int(n) != len(s.Data) {
		t.Errorf("Length = %d, payload is %d bytes", n, len(s.Data))
	}
	got, err := s.Decode()
	if err != nil || !bytes.Equal(got, plain) {
		t.Errorf("Decode after SetData = %d bytes, %v", len(got), err)
	}
}

func TestStreamPutRemove(t *testing.T) {
	s := &Stream{}
	s.Put("ColorSpace", Name("DeviceGray"))
	s.Put("BitsPerComponent", Int(1))
	s.Remove("BitsPerComponent", "Absent")

	if d := cmp.Diff(Dict{"ColorSpace": Name("DeviceGray")}, s.Dict); d != "" {
		t.Errorf("dictionary mismatch (-want +got):\n%s", d)
	}
	if s.Get("ColorSpace") != Name("DeviceGray") {
		t.Error("Get did not return the stored value")
	}
}

func TestStreamClone(t *testing.T) {
	s := &Stream{Dict: Dict{"A": Int(1)}, Data: []byte("x")}
	c := s.Clone()
	c.Put("A", Int(2))
	if v, _ := s.Dict.GetInt("A"); v != 1 {
		t.Error("Clone must not share the dictionary")
	}
}

func TestStreamReplace(t *testing.T) {
	s := &Stream{Dict: Dict{"Filter": FilterFlate}, Data: deflate([]byte("old"))}
	if _, err := s.Decode(); err != nil {
		t.Fatal(err)
	}
	holder := Dict{"Im0": s}

	next := s.Clone()
	if err := next.SetData([]byte("new"), false); err != nil {
		t.Fatal(err)
	}
	next.Remove("Filter")
	s.Replace(next)

	got, err := holder["Im0"].(*Stream).Decode()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Errorf("Decode after Replace = %q, want %q", got, "new")
	}
	if s.Dict.Has("Filter") {
		t.Error("Replace kept the old dictionary")
	}
}
