package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFilterOf(t *testing.T) {
	tests := []struct {
		name      string
		obj       Object
		kind      FilterKind
		names     []Name
		outermost Name
	}{
		{"absent", nil, FilterNone, []Name{}, ""},
		{"null", Null{}, FilterNone, []Name{}, ""},
		{"wrong type", Int(3), FilterNone, []Name{}, ""},
		{"single", FilterFlate, FilterSingle, []Name{FilterFlate}, FilterFlate},
		{"abbreviated", Name("Fl"), FilterSingle, []Name{FilterFlate}, FilterFlate},
		{"chain outermost is last", Array{FilterASCII85, FilterFlate}, FilterChain, []Name{FilterASCII85, FilterFlate}, FilterFlate},
		{"chain ending in jbig2", Array{FilterFlate, FilterJBIG2}, FilterChain, []Name{FilterFlate, FilterJBIG2}, FilterJBIG2},
		{"non-names dropped", Array{Int(1), FilterDCT}, FilterChain, []Name{FilterDCT}, FilterDCT},
		{"empty array", Array{}, FilterNone, []Name{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := FilterOf(tt.obj)
			if f.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", f.Kind, tt.kind)
			}
			got := f.Names()
			if got == nil {
				got = []Name{}
			}
			if d := cmp.Diff(tt.names, got); d != "" {
				t.Errorf("Names mismatch (-want +got):\n%s", d)
			}
			out, ok := f.Outermost()
			if ok != (tt.outermost != "") || out != tt.outermost {
				t.Errorf("Outermost = %q, %v; want %q", out, ok, tt.outermost)
			}
		})
	}
}

func TestFilterContains(t *testing.T) {
	f := FilterOf(Array{FilterLZW, FilterFlate})
	if !f.Contains(FilterLZW) || f.Contains(FilterDCT) {
		t.Error("Contains gave the wrong answer")
	}
	if f.Len() != 2 {
		t.Errorf("Len = %d, want 2", f.Len())
	}
}
