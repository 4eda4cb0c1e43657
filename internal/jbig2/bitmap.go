// Package jbig2 encodes bilevel images as embedded JBIG2 streams, the
// form a PDF /JBIG2Decode filter expects: a page information segment
// followed by one immediate generic region, without file header and
// without end-of-page or end-of-file segments.
package jbig2

// Bitmap is a 1 bit per pixel image. A set bit is black. Rows are packed
// MSB first and padded to a whole byte.
type Bitmap struct {
	Width, Height int
	Stride        int
	Pix           []byte
}

// NewBitmap returns a white bitmap of the given size.
func NewBitmap(width, height int) *Bitmap {
	stride := (width + 7) / 8
	return &Bitmap{
		Width:  width,
		Height: height,
		Stride: stride,
		Pix:    make([]byte, stride*height),
	}
}

// Get returns 1 for a black pixel and 0 for white or out of range.
func (b *Bitmap) Get(x, y int) int {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return 0
	}
	return int(b.Pix[y*b.Stride+x/8]>>(7-x%8)) & 1
}

// Set paints the pixel at (x, y). Out of range coordinates are ignored.
func (b *Bitmap) Set(x, y int, black bool) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return
	}
	mask := byte(0x80) >> (x % 8)
	if black {
		b.Pix[y*b.Stride+x/8] |= mask
	} else {
		b.Pix[y*b.Stride+x/8] &^= mask
	}
}

// Row returns the packed bytes of row y.
func (b *Bitmap) Row(y int) []byte {
	return b.Pix[y*b.Stride : (y+1)*b.Stride]
}

// Equal reports whether both bitmaps have the same size and pixels.
// Padding bits are ignored.
func (b *Bitmap) Equal(o *Bitmap) bool {
	if b.Width != o.Width || b.Height != o.Height {
		return false
	}
	full := b.Width / 8
	var last byte
	if rem := b.Width % 8; rem != 0 {
		last = byte(0xFF) << (8 - rem)
	}
	for y := 0; y < b.Height; y++ {
		r1, r2 := b.Row(y), o.Row(y)
		for i := 0; i < full; i++ {
			if r1[i] != r2[i] {
				return false
			}
		}
		if last != 0 && r1[full]&last != r2[full]&last {
			return false
		}
	}
	return true
}

// BlackCount returns the number of black pixels.
func (b *Bitmap) BlackCount() int {
	n := 0
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			n += b.Get(x, y)
		}
	}
	return n
}
