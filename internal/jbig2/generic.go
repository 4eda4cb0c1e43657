package jbig2

// Generic region coding with template 0 and the nominal adaptive pixel
// positions (3,-1) (-3,-1) (2,-2) (-2,-2).

const (
	pad = 4

	// context used for the typical prediction bit of template 0
	sltpContext = 0x9B25
)

var nominalAT = [8]int8{3, -1, -3, -1, 2, -2, -2, -2}

// window holds the current row and the two rows above it as one byte per
// pixel, padded so the template never reads out of range.
type window struct {
	rows [3][]byte // y-2, y-1, y
}

func newWindow(width int) *window {
	w := &window{}
	for i := range w.rows {
		w.rows[i] = make([]byte, width+2*pad)
	}
	return w
}

// advance moves down one row and clears the new current row.
func (w *window) advance() {
	w.rows[0], w.rows[1], w.rows[2] = w.rows[1], w.rows[2], w.rows[0]
	clear(w.rows[2])
}

func (w *window) load(bm *Bitmap, y int) {
	cur := w.rows[2]
	for x := 0; x < bm.Width; x++ {
		cur[x+pad] = byte(bm.Get(x, y))
	}
}

// context forms the 16 bit template 0 context of pixel x on the current
// row.
func (w *window) context(x int) int {
	i := x + pad
	r2, r1, r0 := w.rows[0], w.rows[1], w.rows[2]
	return int(r0[i-1]) |
		int(r0[i-2])<<1 |
		int(r0[i-3])<<2 |
		int(r0[i-4])<<3 |
		int(r1[i+3])<<4 |
		int(r1[i+2])<<5 |
		int(r1[i+1])<<6 |
		int(r1[i])<<7 |
		int(r1[i-1])<<8 |
		int(r1[i-2])<<9 |
		int(r1[i-3])<<10 |
		int(r2[i+2])<<11 |
		int(r2[i+1])<<12 |
		int(r2[i])<<13 |
		int(r2[i-1])<<14 |
		int(r2[i-2])<<15
}

// sameAsAbove reports whether row y repeats row y-1. Row 0 is compared
// with an all white row.
func sameAsAbove(bm *Bitmap, y int) bool {
	row := bm.Row(y)
	if y == 0 {
		for x := 0; x < bm.Width; x++ {
			if bm.Get(x, 0) != 0 {
				return false
			}
		}
		return true
	}
	prev := bm.Row(y - 1)
	for i := range row {
		if row[i] != prev[i] {
			// padding bits do not count
			if i == len(row)-1 && bm.Width%8 != 0 {
				mask := byte(0xFF) << (8 - bm.Width%8)
				if row[i]&mask == prev[i]&mask {
					continue
				}
			}
			return false
		}
	}
	return true
}

// encodeGeneric codes bm with the MQ coder. With tpgdon set, rows equal to
// the row above are flagged instead of coded.
func encodeGeneric(bm *Bitmap, tpgdon bool) []byte {
	enc := newMQEncoder()
	stats := make([]context, 1<<16)
	win := newWindow(bm.Width)
	ltp := 0

	for y := 0; y < bm.Height; y++ {
		win.advance()
		win.load(bm, y)
		if tpgdon {
			typical := 0
			if sameAsAbove(bm, y) {
				typical = 1
			}
			enc.encode(&stats[sltpContext], ltp^typical)
			ltp = typical
			if typical == 1 {
				continue
			}
		}
		for x := 0; x < bm.Width; x++ {
			enc.encode(&stats[win.context(x)], int(win.rows[2][x+pad]))
		}
	}
	return enc.flush()
}

// decodeGeneric reverses encodeGeneric.
func decodeGeneric(data []byte, width, height int, tpgdon bool) *Bitmap {
	bm := NewBitmap(width, height)
	dec := newMQDecoder(data)
	stats := make([]context, 1<<16)
	win := newWindow(width)
	ltp := 0

	for y := 0; y < height; y++ {
		win.advance()
		if tpgdon {
			ltp ^= dec.decode(&stats[sltpContext])
			if ltp == 1 {
				copy(win.rows[2], win.rows[1])
				if y > 0 {
					copy(bm.Row(y), bm.Row(y-1))
				}
				continue
			}
		}
		cur := win.rows[2]
		for x := 0; x < width; x++ {
			bit := dec.decode(&stats[win.context(x)])
			cur[x+pad] = byte(bit)
			if bit == 1 {
				bm.Set(x, y, true)
			}
		}
	}
	return bm
}
