package jbig2

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrEmptyBitmap is returned when asked to encode a bitmap without
	// pixels.
	ErrEmptyBitmap = errors.New("jbig2: empty bitmap")

	// ErrUnsupported is returned by Decode for streams using features
	// outside the generic template 0 subset this package writes.
	ErrUnsupported = errors.New("jbig2: unsupported stream")
)

// Segment types used in embedded streams.
const (
	segPageInfo          = 48
	segImmediateGeneric  = 38
	segImmediateLossless = 39
	segEndOfPage         = 49
	segEndOfStripe       = 50
	segEndOfFile         = 51
)

// Encoder writes generic region streams.
type Encoder struct {
	// TypicalPrediction flags rows that repeat the row above instead of
	// coding them.
	TypicalPrediction bool

	// XRes and YRes are recorded in the page information segment, in
	// pixels per metre. Zero means unknown.
	XRes, YRes uint32
}

// Encode returns bm as an embedded JBIG2 stream.
func (e *Encoder) Encode(bm *Bitmap) ([]byte, error) {
	if bm == nil || bm.Width <= 0 || bm.Height <= 0 {
		return nil, ErrEmptyBitmap
	}
	if len(bm.Pix) < bm.Stride*bm.Height || bm.Stride < (bm.Width+7)/8 {
		return nil, fmt.Errorf("jbig2: bitmap buffer of %d bytes too small for %dx%d", len(bm.Pix), bm.Width, bm.Height)
	}

	page := make([]byte, 0, 19)
	page = binary.BigEndian.AppendUint32(page, uint32(bm.Width))
	page = binary.BigEndian.AppendUint32(page, uint32(bm.Height))
	page = binary.BigEndian.AppendUint32(page, e.XRes)
	page = binary.BigEndian.AppendUint32(page, e.YRes)
	page = append(page, 0x01) // eventually lossless
	page = binary.BigEndian.AppendUint16(page, 0)

	coded := encodeGeneric(bm, e.TypicalPrediction)
	region := make([]byte, 0, 26+len(coded))
	region = binary.BigEndian.AppendUint32(region, uint32(bm.Width))
	region = binary.BigEndian.AppendUint32(region, uint32(bm.Height))
	region = binary.BigEndian.AppendUint32(region, 0)
	region = binary.BigEndian.AppendUint32(region, 0)
	region = append(region, 0) // OR
	var flags byte
	if e.TypicalPrediction {
		flags |= 0x08
	}
	region = append(region, flags)
	for _, v := range nominalAT {
		region = append(region, byte(v))
	}
	region = append(region, coded...)

	out := make([]byte, 0, 2*11+len(page)+len(region))
	out = appendSegment(out, 0, segPageInfo, page)
	out = appendSegment(out, 1, segImmediateGeneric, region)
	return out, nil
}

// appendSegment writes a segment header with no referred-to segments and
// page association 1, followed by data.
func appendSegment(out []byte, number uint32, typ byte, data []byte) []byte {
	out = binary.BigEndian.AppendUint32(out, number)
	out = append(out, typ, 0x00, 0x01)
	out = binary.BigEndian.AppendUint32(out, uint32(len(data)))
	return append(out, data...)
}

// segment is a parsed segment header with its data.
type segment struct {
	number uint32
	typ    byte
	data   []byte
}

func readSegment(buf []byte) (segment, int, error) {
	if len(buf) < 6 {
		return segment{}, 0, fmt.Errorf("jbig2: truncated segment header")
	}
	seg := segment{number: binary.BigEndian.Uint32(buf), typ: buf[4] & 0x3F}
	bigPage := buf[4]&0x40 != 0
	pos := 5

	count := int(buf[pos] >> 5)
	if count == 7 {
		return segment{}, 0, fmt.Errorf("%w: long referred-to segment list", ErrUnsupported)
	}
	pos++
	refSize := 1
	switch {
	case seg.number > 65536:
		refSize = 4
	case seg.number > 256:
		refSize = 2
	}
	pos += count * refSize
	if bigPage {
		pos += 4
	} else {
		pos++
	}
	if len(buf) < pos+4 {
		return segment{}, 0, fmt.Errorf("jbig2: truncated segment header")
	}
	length := binary.BigEndian.Uint32(buf[pos:])
	pos += 4
	if length == 0xFFFFFFFF {
		return segment{}, 0, fmt.Errorf("%w: segment of unknown length", ErrUnsupported)
	}
	if uint64(len(buf)-pos) < uint64(length) {
		return segment{}, 0, fmt.Errorf("jbig2: segment %d data truncated", seg.number)
	}
	seg.data = buf[pos : pos+int(length)]
	return seg, pos + int(length), nil
}

// Decode reads an embedded stream made of a page information segment and
// generic regions coded with template 0 and nominal AT pixels, which is
// what Encoder produces.
func Decode(data []byte) (*Bitmap, error) {
	var page *Bitmap
	for len(data) > 0 {
		seg, n, err := readSegment(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]

		switch seg.typ {
		case segPageInfo:
			if len(seg.data) < 19 {
				return nil, fmt.Errorf("jbig2: page information segment too short")
			}
			w := binary.BigEndian.Uint32(seg.data)
			h := binary.BigEndian.Uint32(seg.data[4:])
			if h == 0xFFFFFFFF || w == 0 || w > 1<<20 || h > 1<<20 {
				return nil, fmt.Errorf("%w: page size %dx%d", ErrUnsupported, w, h)
			}
			page = NewBitmap(int(w), int(h))
		case segImmediateGeneric, segImmediateLossless:
			if page == nil {
				return nil, fmt.Errorf("jbig2: region before page information")
			}
			if err := decodeRegion(page, seg.data); err != nil {
				return nil, err
			}
		case segEndOfStripe, segEndOfPage, segEndOfFile:
		default:
			return nil, fmt.Errorf("%w: segment type %d", ErrUnsupported, seg.typ)
		}
	}
	if page == nil {
		return nil, fmt.Errorf("jbig2: no page information segment")
	}
	return page, nil
}

func decodeRegion(page *Bitmap, data []byte) error {
	if len(data) < 26 {
		return fmt.Errorf("jbig2: generic region segment too short")
	}
	w := int(binary.BigEndian.Uint32(data))
	h := int(binary.BigEndian.Uint32(data[4:]))
	x0 := int(int32(binary.BigEndian.Uint32(data[8:])))
	y0 := int(int32(binary.BigEndian.Uint32(data[12:])))
	flags := data[17]
	if flags&0x01 != 0 {
		return fmt.Errorf("%w: MMR coding", ErrUnsupported)
	}
	if tmpl := flags >> 1 & 0x03; tmpl != 0 {
		return fmt.Errorf("%w: generic template %d", ErrUnsupported, tmpl)
	}
	for i, v := range nominalAT {
		if int8(data[18+i]) != v {
			return fmt.Errorf("%w: adaptive template pixels moved", ErrUnsupported)
		}
	}
	if w <= 0 || h <= 0 || w > page.Width || h > page.Height {
		return fmt.Errorf("jbig2: region %dx%d does not fit page %dx%d", w, h, page.Width, page.Height)
	}

	region := decodeGeneric(data[26:], w, h, flags&0x08 != 0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if region.Get(x, y) == 1 {
				page.Set(x0+x, y0+y, true)
			}
		}
	}
	return nil
}
