package jbig2

// qeState is one row of the MQ coder's probability estimation table.
type qeState struct {
	qe   uint32
	nmps uint8
	nlps uint8
	swap bool
}

var qeTable = [47]qeState{
	{0x5601, 1, 1, true},
	{0x3401, 2, 6, false},
	{0x1801, 3, 9, false},
	{0x0AC1, 4, 12, false},
	{0x0521, 5, 29, false},
	{0x0221, 38, 33, false},
	{0x5601, 7, 6, true},
	{0x5401, 8, 14, false},
	{0x4801, 9, 14, false},
	{0x3801, 10, 14, false},
	{0x3001, 11, 17, false},
	{0x2401, 12, 18, false},
	{0x1C01, 13, 20, false},
	{0x1601, 29, 21, false},
	{0x5601, 15, 14, true},
	{0x5401, 16, 14, false},
	{0x5101, 17, 15, false},
	{0x4801, 18, 16, false},
	{0x3801, 19, 17, false},
	{0x3401, 20, 18, false},
	{0x3001, 21, 19, false},
	{0x2801, 22, 19, false},
	{0x2401, 23, 20, false},
	{0x2201, 24, 21, false},
	{0x1C01, 25, 22, false},
	{0x1801, 26, 23, false},
	{0x1601, 27, 24, false},
	{0x1401, 28, 25, false},
	{0x1201, 29, 26, false},
	{0x1101, 30, 27, false},
	{0x0AC1, 31, 28, false},
	{0x09C1, 32, 29, false},
	{0x08A1, 33, 30, false},
	{0x0521, 34, 31, false},
	{0x0441, 35, 32, false},
	{0x02A1, 36, 33, false},
	{0x0221, 37, 34, false},
	{0x0141, 38, 35, false},
	{0x0111, 39, 36, false},
	{0x0085, 40, 37, false},
	{0x0049, 41, 38, false},
	{0x0025, 42, 39, false},
	{0x0015, 43, 40, false},
	{0x0009, 44, 41, false},
	{0x0005, 45, 42, false},
	{0x0001, 45, 43, false},
	{0x5601, 46, 46, false},
}

// context is the adaptive state of one coding context: an index into
// qeTable and the current more probable symbol.
type context struct {
	index uint8
	mps   uint8
}

// mqEncoder is the arithmetic coder of T.88 Annex E.
type mqEncoder struct {
	a, c    uint32
	ct      int
	b       byte
	started bool // false while the pending byte is the one before the output
	out     []byte
}

func newMQEncoder() *mqEncoder {
	return &mqEncoder{a: 0x8000, ct: 12}
}

func (e *mqEncoder) encode(cx *context, bit int) {
	s := &qeTable[cx.index]
	if uint8(bit) == cx.mps {
		e.codeMPS(cx, s)
	} else {
		e.codeLPS(cx, s)
	}
}

func (e *mqEncoder) codeMPS(cx *context, s *qeState) {
	e.a -= s.qe
	if e.a&0x8000 != 0 {
		e.c += s.qe
		return
	}
	if e.a < s.qe {
		e.a = s.qe
	} else {
		e.c += s.qe
	}
	cx.index = s.nmps
	e.renorm()
}

func (e *mqEncoder) codeLPS(cx *context, s *qeState) {
	e.a -= s.qe
	if e.a < s.qe {
		e.c += s.qe
	} else {
		e.a = s.qe
	}
	if s.swap {
		cx.mps ^= 1
	}
	cx.index = s.nlps
	e.renorm()
}

func (e *mqEncoder) renorm() {
	for {
		e.a <<= 1
		e.c <<= 1
		e.ct--
		if e.ct == 0 {
			e.byteOut()
		}
		if e.a&0x8000 != 0 {
			return
		}
	}
}

func (e *mqEncoder) byteOut() {
	if e.b != 0xFF {
		if e.c < 0x8000000 {
			e.shift8()
			return
		}
		e.b++
		if e.b != 0xFF {
			e.shift8()
			return
		}
		e.c &= 0x7FFFFFF
	}
	// after a 0xFF only seven bits go out, leaving room for a carry
	e.emit()
	e.b = byte(e.c >> 20)
	e.c &= 0xFFFFF
	e.ct = 7
}

func (e *mqEncoder) shift8() {
	e.emit()
	e.b = byte(e.c >> 19)
	e.c &= 0x7FFFF
	e.ct = 8
}

func (e *mqEncoder) emit() {
	if e.started {
		e.out = append(e.out, e.b)
	}
	e.started = true
}

// flush terminates the code stream and appends the 0xFF 0xAC marker.
func (e *mqEncoder) flush() []byte {
	temp := e.c + e.a
	e.c |= 0xFFFF
	if e.c >= temp {
		e.c -= 0x8000
	}
	e.c <<= uint(e.ct)
	e.byteOut()
	e.c <<= uint(e.ct)
	e.byteOut()
	e.emit()
	if e.b != 0xFF {
		e.b = 0xFF
		e.emit()
	}
	e.b = 0xAC
	e.emit()
	return e.out
}

// mqDecoder is the matching decoder. Reading past the end of data yields
// 0xFF bytes.
type mqDecoder struct {
	data []byte
	bp   int
	a, c uint32
	ct   int
}

func newMQDecoder(data []byte) *mqDecoder {
	d := &mqDecoder{data: data}
	d.c = uint32(d.byteAt(0)) << 16
	d.byteIn()
	d.c <<= 7
	d.ct -= 7
	d.a = 0x8000
	return d
}

func (d *mqDecoder) byteAt(i int) byte {
	if i < len(d.data) {
		return d.data[i]
	}
	return 0xFF
}

func (d *mqDecoder) byteIn() {
	if d.byteAt(d.bp) == 0xFF {
		if b1 := d.byteAt(d.bp + 1); b1 > 0x8F {
			d.c += 0xFF00
			d.ct = 8
		} else {
			d.bp++
			d.c += uint32(b1) << 9
			d.ct = 7
		}
		return
	}
	d.bp++
	d.c += uint32(d.byteAt(d.bp)) << 8
	d.ct = 8
}

func (d *mqDecoder) decode(cx *context) int {
	s := &qeTable[cx.index]
	d.a -= s.qe
	// the encoder adds Qe for the MPS, so the LPS interval is the low one
	var bit int
	if d.c>>16 < s.qe {
		bit = d.lpsExchange(cx, s)
	} else {
		d.c -= s.qe << 16
		if d.a&0x8000 != 0 {
			return int(cx.mps)
		}
		bit = d.mpsExchange(cx, s)
	}
	d.renorm()
	return bit
}

func (d *mqDecoder) mpsExchange(cx *context, s *qeState) int {
	if d.a < s.qe {
		bit := int(1 - cx.mps)
		if s.swap {
			cx.mps ^= 1
		}
		cx.index = s.nlps
		return bit
	}
	cx.index = s.nmps
	return int(cx.mps)
}

func (d *mqDecoder) lpsExchange(cx *context, s *qeState) int {
	if d.a < s.qe {
		d.a = s.qe
		cx.index = s.nmps
		return int(cx.mps)
	}
	d.a = s.qe
	bit := int(1 - cx.mps)
	if s.swap {
		cx.mps ^= 1
	}
	cx.index = s.nlps
	return bit
}

func (d *mqDecoder) renorm() {
	for {
		if d.ct == 0 {
			d.byteIn()
		}
		d.a <<= 1
		d.c <<= 1
		d.ct--
		if d.a&0x8000 != 0 {
			return
		}
	}
}
