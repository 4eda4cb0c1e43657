package jbig2

import (
	"math/rand"
	"testing"
)

func TestMQRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		contexts int
		pOne     float64
	}{
		{"all zero", 5000, 1, 0},
		{"all one", 5000, 1, 1},
		{"skewed", 20000, 4, 0.05},
		{"balanced", 20000, 16, 0.5},
		{"single bit", 1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(7))
			bits := make([]int, tt.n)
			cxs := make([]int, tt.n)
			for i := range bits {
				if rng.Float64() < tt.pOne {
					bits[i] = 1
				}
				cxs[i] = rng.Intn(tt.contexts)
			}

			enc := newMQEncoder()
			encStats := make([]context, tt.contexts)
			for i, b := range bits {
				enc.encode(&encStats[cxs[i]], b)
			}
			data := enc.flush()

			if n := len(data); n < 2 || data[n-2] != 0xFF || data[n-1] != 0xAC {
				t.Fatalf("code stream does not end with the 0xFFAC marker: % X", data[max(0, n-4):])
			}

			dec := newMQDecoder(data)
			decStats := make([]context, tt.contexts)
			for i, want := range bits {
				if got := dec.decode(&decStats[cxs[i]]); got != want {
					t.Fatalf("bit %d: got %d, want %d", i, got, want)
				}
			}
		})
	}
}

// The test sequence of T.88 Annex H.2, coded in a single context.
var (
	h2Input = []byte{
		0x00, 0x02, 0x00, 0x51, 0x00, 0x00, 0x00, 0xC0, 0x03, 0x52, 0x87, 0x2A, 0xAA, 0xAA, 0xAA, 0xAA,
		0x82, 0xC0, 0x20, 0x00, 0xFC, 0xD7, 0x9E, 0xF6, 0xBF, 0x7F, 0xED, 0x90, 0x4F, 0x46, 0xA3, 0xBF,
	}
	h2Coded = []byte{
		0x84, 0xC7, 0x3B, 0xFC, 0xE1, 0xA1, 0x43, 0x04, 0x02, 0x20, 0x00, 0x00, 0x41, 0x0D, 0xBB,
		0x86, 0xF4, 0x31, 0x7F, 0xFF, 0x88, 0xFF, 0x37, 0x47, 0x1A, 0xDB, 0x6A, 0xDF, 0xFF, 0xAC,
	}
)

func TestMQDecodeReferenceSequence(t *testing.T) {
	dec := newMQDecoder(h2Coded)
	var cx context
	for i := 0; i < len(h2Input)*8; i++ {
		want := int(h2Input[i/8]>>(7-uint(i%8))) & 1
		if got := dec.decode(&cx); got != want {
			t.Fatalf("bit %d: got %d, want %d", i, got, want)
		}
	}
}

func TestMQEncodeReferenceSequence(t *testing.T) {
	enc := newMQEncoder()
	var cx context
	for i := 0; i < len(h2Input)*8; i++ {
		enc.encode(&cx, int(h2Input[i/8]>>(7-uint(i%8)))&1)
	}
	data := enc.flush()

	dec := newMQDecoder(data)
	var dcx context
	for i := 0; i < len(h2Input)*8; i++ {
		want := int(h2Input[i/8]>>(7-uint(i%8))) & 1
		if got := dec.decode(&dcx); got != want {
			t.Fatalf("bit %d: got %d, want %d", i, got, want)
		}
	}
}

func TestMQCompressesSkewedInput(t *testing.T) {
	enc := newMQEncoder()
	var cx context
	for i := 0; i < 80000; i++ {
		enc.encode(&cx, 0)
	}
	if n := len(enc.flush()); n > 100 {
		t.Errorf("80000 identical bits took %d bytes", n)
	}
}

func TestQeTableConsistency(t *testing.T) {
	for i, s := range qeTable {
		if int(s.nmps) >= len(qeTable) || int(s.nlps) >= len(qeTable) {
			t.Errorf("state %d points outside the table", i)
		}
		if s.qe == 0 || s.qe > 0x5601 {
			t.Errorf("state %d has Qe %#x", i, s.qe)
		}
	}
	swaps := 0
	for _, s := range qeTable {
		if s.swap {
			swaps++
		}
	}
	if swaps != 3 {
		t.Errorf("%d states swap the MPS, want 3", swaps)
	}
}
