package core

// Standard filter names. Abbreviations are only valid in inline images but
// show up in broken files often enough to be accepted on input.
const (
	FilterFlate     Name = "FlateDecode"
	FilterLZW       Name = "LZWDecode"
	FilterASCIIHex  Name = "ASCIIHexDecode"
	FilterASCII85   Name = "ASCII85Decode"
	FilterRunLength Name = "RunLengthDecode"
	FilterCCITTFax  Name = "CCITTFaxDecode"
	FilterDCT       Name = "DCTDecode"
	FilterJPX       Name = "JPXDecode"
	FilterJBIG2     Name = "JBIG2Decode"
	FilterCrypt     Name = "Crypt"
)

var filterAbbreviations = map[Name]Name{
	"Fl":  FilterFlate,
	"LZW": FilterLZW,
	"AHx": FilterASCIIHex,
	"A85": FilterASCII85,
	"RL":  FilterRunLength,
	"CCF": FilterCCITTFax,
	"DCT": FilterDCT,
}

// CanonicalFilter expands an abbreviated filter name.
func CanonicalFilter(n Name) Name {
	if full, ok := filterAbbreviations[n]; ok {
		return full
	}
	return n
}

// FilterKind tells the shapes a /Filter entry can take apart.
type FilterKind int

const (
	FilterNone FilterKind = iota
	FilterSingle
	FilterChain
)

// Filter is the decoded form of a stream's /Filter entry. Filters are listed
// in the order they have to be applied when decoding, so the last one is the
// outermost encoding.
type Filter struct {
	Kind  FilterKind
	names []Name
}

// FilterOf interprets a /Filter value. A name gives a single filter, an
// array gives a chain; anything else (including nil and null) means the
// stream is not filtered. Array elements that are not names are dropped.
func FilterOf(obj Object) Filter {
	switch v := obj.(type) {
	case Name:
		return Filter{Kind: FilterSingle, names: []Name{CanonicalFilter(v)}}
	case Array:
		names := make([]Name, 0, len(v))
		for _, elem := range v {
			if n, ok := elem.(Name); ok {
				names = append(names, CanonicalFilter(n))
			}
		}
		if len(names) == 0 {
			return Filter{Kind: FilterNone}
		}
		return Filter{Kind: FilterChain, names: names}
	}
	return Filter{Kind: FilterNone}
}

// Outermost returns the last filter applied by the encoder: the last
// element of a chain or the single name.
func (f Filter) Outermost() (Name, bool) {
	if len(f.names) == 0 {
		return "", false
	}
	return f.names[len(f.names)-1], true
}

// Names returns the filters in decode order.
func (f Filter) Names() []Name {
	return append([]Name(nil), f.names...)
}

// Len returns the number of filters.
func (f Filter) Len() int {
	return len(f.names)
}

// Contains reports whether any filter in the chain is n.
func (f Filter) Contains(n Name) bool {
	for _, name := range f.names {
		if name == n {
			return true
		}
	}
	return false
}
