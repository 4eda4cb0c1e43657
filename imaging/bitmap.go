package imaging

import (
	"image"
	"image/color"
	"sync"
	"sync/atomic"
)

var (
	pixPool sync.Pool
	live    atomic.Int64
)

// getPix returns a zeroed buffer of n bytes, reusing a pooled one when it
// is large enough.
func getPix(n int) []byte {
	if p, ok := pixPool.Get().(*[]byte); ok && cap(*p) >= n {
		buf := (*p)[:n]
		clear(buf)
		return buf
	}
	return make([]byte, n)
}

func putPix(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	pixPool.Put(&buf)
}

// LiveBitmaps reports how many bitmaps have been decoded and not yet
// released.
func LiveBitmaps() int64 {
	return live.Load()
}

// Bitmap is a decoded raster. Its pixel buffer comes from a pool, so every
// Bitmap must be released once the caller is done with it. Release is
// idempotent.
type Bitmap struct {
	// BitsPerComponent and ImageMask describe the source image.
	BitsPerComponent int
	ImageMask        bool

	img      image.Image
	buf      []byte
	uniq     int
	released atomic.Bool
}

// newBitmap wraps img, whose pixel storage is buf.
func newBitmap(img image.Image, buf []byte, bpc int, mask bool) *Bitmap {
	live.Add(1)
	return &Bitmap{BitsPerComponent: bpc, ImageMask: mask, img: img, buf: buf, uniq: -1}
}

// newPaletted allocates a pooled paletted image.
func newPaletted(w, h int, pal color.Palette) *image.Paletted {
	return &image.Paletted{Pix: getPix(w * h), Stride: w, Rect: image.Rect(0, 0, w, h), Palette: pal}
}

func newGray(w, h int) *image.Gray {
	return &image.Gray{Pix: getPix(w * h), Stride: w, Rect: image.Rect(0, 0, w, h)}
}

func newRGBA(w, h int) *image.RGBA {
	return &image.RGBA{Pix: getPix(4 * w * h), Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}
}

// Image returns the decoded raster. It must not be used after Release.
func (b *Bitmap) Image() image.Image {
	return b.img
}

// Bounds returns the raster bounds.
func (b *Bitmap) Bounds() image.Rectangle {
	return b.img.Bounds()
}

// HasPalette reports whether the raster is palette based.
func (b *Bitmap) HasPalette() bool {
	_, ok := b.img.(*image.Paletted)
	return ok
}

// UniqueColors counts the distinct colors in use. Paletted rasters count
// the distinct palette entries referenced by pixels; other rasters report
// a count above 256 without scanning further.
func (b *Bitmap) UniqueColors() int {
	if b.uniq >= 0 {
		return b.uniq
	}
	p, ok := b.img.(*image.Paletted)
	if !ok {
		b.uniq = 1 << 24
		return b.uniq
	}
	var seen [256]bool
	n := 0
	for _, idx := range p.Pix {
		if !seen[idx] {
			seen[idx] = true
			n++
		}
	}
	b.uniq = n
	return n
}

// Release returns the pixel buffer to the pool.
func (b *Bitmap) Release() {
	if b == nil || !b.released.CompareAndSwap(false, true) {
		return
	}
	putPix(b.buf)
	b.buf = nil
	b.img = nil
	live.Add(-1)
}
