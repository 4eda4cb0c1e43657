package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"
	"seehuhn.de/go/icc"

	"github.com/tsawler/pdfpatch/core"
)

// ErrUnsupported marks images this package cannot decode. Callers treat it
// as a reason to skip the image, not as a failure.
var ErrUnsupported = errors.New("unsupported image")

const (
	maxSide   = 32768
	maxPixels = 64 << 20
)

// Decode runs the filter chain of s and converts the samples into a
// Bitmap. Gray images up to 8 bits and Indexed images become paletted
// rasters, 16-bit gray becomes image.Gray and RGB or CMYK becomes
// image.RGBA. The caller must Release the result.
func Decode(r core.Resolver, s *core.Stream, info ImageInfo) (*Bitmap, error) {
	w, h := info.Width, info.Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrUnsupported, w, h)
	}
	if w > maxSide || h > maxSide || w*h > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds size limit", ErrUnsupported, w, h)
	}

	data, rest, err := s.DecodeUntil(r, nil)
	if errors.Is(err, core.ErrUnresolvedFilter) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if err != nil {
		return nil, err
	}
	switch {
	case len(rest) == 0:
	case len(rest) == 1 && rest[0] == core.FilterDCT:
		return decodeDCT(data, info)
	default:
		return nil, fmt.Errorf("%w: filter %s", ErrUnsupported, rest[0])
	}

	if info.ImageMask {
		return decodeMask(data, info)
	}

	cs, err := parseColorSpace(r, info.ColorSpace, 0)
	if err != nil {
		return nil, err
	}
	bpc := info.BitsPerComponent
	if bpc == 0 && info.Filter.Contains(core.FilterCCITTFax) {
		bpc = 1
	}
	switch bpc {
	case 1, 2, 4, 8, 16:
	default:
		return nil, fmt.Errorf("%w: %d bits per component", ErrUnsupported, bpc)
	}
	if cs.indexed() && bpc == 16 {
		return nil, fmt.Errorf("%w: 16-bit indexed image", ErrUnsupported)
	}
	return decodeSamples(data, info, cs, bpc)
}

// colorSpace is the subset of PDF color spaces images can be decoded in.
type colorSpace struct {
	n      int
	base   *colorSpace
	hival  int
	lookup []byte
}

var (
	deviceGray = &colorSpace{n: 1}
	deviceRGB  = &colorSpace{n: 3}
	deviceCMYK = &colorSpace{n: 4}
)

func (cs *colorSpace) indexed() bool { return cs.base != nil }

// components returns the number of samples per pixel.
func (cs *colorSpace) components() int {
	if cs.indexed() {
		return 1
	}
	return cs.n
}

func deref(r core.Resolver, obj core.Object) core.Object {
	if _, ok := obj.(core.IndirectRef); !ok || r == nil {
		return obj
	}
	v, err := r.Resolve(obj)
	if err != nil {
		return nil
	}
	return v
}

func parseColorSpace(r core.Resolver, obj core.Object, depth int) (*colorSpace, error) {
	if depth > 4 {
		return nil, fmt.Errorf("%w: color space nesting too deep", ErrUnsupported)
	}
	switch v := deref(r, obj).(type) {
	case nil:
		return deviceGray, nil
	case core.Name:
		if cs := deviceSpace(v); cs != nil {
			return cs, nil
		}
	case core.Array:
		family, _ := v.GetName(0)
		if cs := deviceSpace(family); cs != nil {
			return cs, nil
		}
		switch family {
		case "ICCBased":
			return parseICCBased(r, deref(r, v.Get(1)), depth)
		case "Indexed", "I":
			return parseIndexed(r, v, depth)
		}
	}
	return nil, fmt.Errorf("%w: color space %v", ErrUnsupported, obj)
}

func deviceSpace(n core.Name) *colorSpace {
	switch n {
	case "DeviceGray", "G", "CalGray":
		return deviceGray
	case "DeviceRGB", "RGB", "CalRGB":
		return deviceRGB
	case "DeviceCMYK", "CMYK":
		return deviceCMYK
	}
	return nil
}

// parseICCBased takes the component count from the embedded profile, then
// from /N, then from /Alternate.
func parseICCBased(r core.Resolver, obj core.Object, depth int) (*colorSpace, error) {
	s, ok := obj.(*core.Stream)
	if !ok {
		return nil, fmt.Errorf("%w: ICCBased without profile stream", ErrUnsupported)
	}
	if profile, err := decodeShared(r, s); err == nil {
		if p, err := icc.Decode(profile); err == nil {
			switch p.ColorSpace {
			case icc.GraySpace:
				return deviceGray, nil
			case icc.RGBSpace:
				return deviceRGB, nil
			case icc.CMYKSpace:
				return deviceCMYK, nil
			}
		}
	}
	if n, ok := core.GetInt(r, s.Dict, "N"); ok {
		switch n {
		case 1:
			return deviceGray, nil
		case 3:
			return deviceRGB, nil
		case 4:
			return deviceCMYK, nil
		}
	}
	if alt, ok := core.Get(r, s.Dict, "Alternate"); ok {
		return parseColorSpace(r, alt, depth+1)
	}
	return nil, fmt.Errorf("%w: ICCBased profile with unknown components", ErrUnsupported)
}

// decodeShared decodes a stream that other images may be reading at the
// same time. Stream.Decode caches its result on the stream, so it is not
// used here.
func decodeShared(r core.Resolver, s *core.Stream) ([]byte, error) {
	data, rest, err := s.DecodeUntil(r, nil)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedFilter, rest[0])
	}
	return data, nil
}

// parseIndexed reads [/Indexed base hival lookup].
func parseIndexed(r core.Resolver, arr core.Array, depth int) (*colorSpace, error) {
	if arr.Len() < 4 {
		return nil, fmt.Errorf("%w: short Indexed color space", ErrUnsupported)
	}
	base, err := parseColorSpace(r, arr.Get(1), depth+1)
	if err != nil {
		return nil, err
	}
	if base.indexed() {
		return nil, fmt.Errorf("%w: Indexed base is Indexed", ErrUnsupported)
	}
	hival, ok := deref(r, arr.Get(2)).(core.Int)
	if !ok || hival < 0 || hival > 255 {
		return nil, fmt.Errorf("%w: Indexed hival %v", ErrUnsupported, arr.Get(2))
	}
	var lookup []byte
	switch v := deref(r, arr.Get(3)).(type) {
	case core.String:
		lookup = []byte(v)
	case *core.Stream:
		if lookup, err = decodeShared(r, v); err != nil {
			return nil, fmt.Errorf("indexed lookup: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: Indexed lookup %T", ErrUnsupported, v)
	}
	return &colorSpace{n: base.n, base: base, hival: int(hival), lookup: lookup}, nil
}

// palette expands the lookup table of an Indexed space. Entries the table
// is too short for are black.
func (cs *colorSpace) palette() color.Palette {
	pal := make(color.Palette, cs.hival+1)
	n := cs.base.n
	for i := range pal {
		off := i * n
		if off+n > len(cs.lookup) {
			pal[i] = color.Black
			continue
		}
		pal[i] = toColor(cs.lookup[off:off+n], n)
	}
	return pal
}

func toColor(v []byte, n int) color.Color {
	switch n {
	case 1:
		return color.Gray{Y: v[0]}
	case 3:
		return color.RGBA{R: v[0], G: v[1], B: v[2], A: 255}
	}
	r, g, b := color.CMYKToRGB(v[0], v[1], v[2], v[3])
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// decodeRanges returns the /Decode pairs for n components, falling back to
// the default for the color space when the array is absent or malformed.
func decodeRanges(info ImageInfo, n, bpc int, indexed bool) []float64 {
	if len(info.Decode) == 2*n {
		return info.Decode
	}
	out := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		out[2*i+1] = 1
		if indexed {
			out[2*i+1] = float64(int(1)<<bpc - 1)
		}
	}
	return out
}

// sampleTable maps every raw sample value of a bpc-bit component to its
// decoded byte: a color value in 0..255, or a palette index for Indexed
// images. 16-bit samples are looked up by their high byte.
func sampleTable(dmin, dmax float64, bpc int, hival int) []byte {
	bits := min(bpc, 8)
	size := 1 << bits
	maxv := float64(size - 1)
	table := make([]byte, size)
	for raw := range table {
		v := dmin + float64(raw)*(dmax-dmin)/maxv
		if hival >= 0 {
			table[raw] = byte(max(0, min(float64(hival), v+0.5)))
			continue
		}
		table[raw] = byte(max(0, min(255, v*255+0.5)))
	}
	return table
}

// sampleAt returns sample i of a packed row, reduced to 8 bits for 16-bit
// data.
func sampleAt(row []byte, i, bpc int) int {
	switch bpc {
	case 8:
		return int(row[i])
	case 16:
		return int(row[2*i])
	}
	bit := i * bpc
	return int(row[bit/8]>>(8-bpc-bit%8)) & (1<<bpc - 1)
}

func decodeSamples(data []byte, info ImageInfo, cs *colorSpace, bpc int) (*Bitmap, error) {
	w, h := info.Width, info.Height
	n := cs.components()
	rowBytes := (w*n*bpc + 7) / 8
	if len(data) < rowBytes*h {
		return nil, fmt.Errorf("insufficient image data: got %d, expected %d", len(data), rowBytes*h)
	}

	hival := -1
	if cs.indexed() {
		hival = cs.hival
	}
	ranges := decodeRanges(info, n, bpc, cs.indexed())
	tables := make([][]byte, n)
	for c := range tables {
		tables[c] = sampleTable(ranges[2*c], ranges[2*c+1], bpc, hival)
	}

	switch {
	case cs.indexed():
		img := newPaletted(w, h, cs.palette())
		for y := 0; y < h; y++ {
			row := data[y*rowBytes:]
			for x := 0; x < w; x++ {
				img.Pix[y*w+x] = tables[0][sampleAt(row, x, bpc)]
			}
		}
		return newBitmap(img, img.Pix, bpc, false), nil

	case n == 1 && bpc <= 8:
		pal := make(color.Palette, 1<<bpc)
		for i := range pal {
			pal[i] = color.Gray{Y: tables[0][i]}
		}
		img := newPaletted(w, h, pal)
		for y := 0; y < h; y++ {
			row := data[y*rowBytes:]
			for x := 0; x < w; x++ {
				img.Pix[y*w+x] = byte(sampleAt(row, x, bpc))
			}
		}
		return newBitmap(img, img.Pix, bpc, false), nil

	case n == 1:
		img := newGray(w, h)
		for y := 0; y < h; y++ {
			row := data[y*rowBytes:]
			for x := 0; x < w; x++ {
				img.Pix[y*w+x] = tables[0][sampleAt(row, x, bpc)]
			}
		}
		return newBitmap(img, img.Pix, bpc, false), nil
	}

	img := newRGBA(w, h)
	px := make([]byte, n)
	for y := 0; y < h; y++ {
		row := data[y*rowBytes:]
		for x := 0; x < w; x++ {
			for c := 0; c < n; c++ {
				px[c] = tables[c][sampleAt(row, x*n+c, bpc)]
			}
			dst := img.Pix[4*(y*w+x):]
			if n == 4 {
				dst[0], dst[1], dst[2] = color.CMYKToRGB(px[0], px[1], px[2], px[3])
			} else {
				dst[0], dst[1], dst[2] = px[0], px[1], px[2]
			}
			dst[3] = 255
		}
	}
	return newBitmap(img, img.Pix, bpc, false), nil
}

// decodeMask reads a stencil mask. Painted samples become palette index 0
// (black) and the rest index 1 (white).
func decodeMask(data []byte, info ImageInfo) (*Bitmap, error) {
	w, h := info.Width, info.Height
	rowBytes := (w + 7) / 8
	if len(data) < rowBytes*h {
		return nil, fmt.Errorf("insufficient mask data: got %d, expected %d", len(data), rowBytes*h)
	}
	painted := 0
	if len(info.Decode) == 2 && info.Decode[0] > info.Decode[1] {
		painted = 1
	}
	img := newPaletted(w, h, color.Palette{color.Black, color.White})
	for y := 0; y < h; y++ {
		row := data[y*rowBytes:]
		for x := 0; x < w; x++ {
			if sampleAt(row, x, 1) != painted {
				img.Pix[y*w+x] = 1
			}
		}
	}
	return newBitmap(img, img.Pix, 1, true), nil
}

// decodeDCT decodes JPEG data. Gray JPEGs keep a 256-level palette like
// other 8-bit gray images; everything else is converted to RGBA.
func decodeDCT(data []byte, info ImageInfo) (*Bitmap, error) {
	src, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("jpeg decode failed: %w", err)
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w*h > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds size limit", ErrUnsupported, w, h)
	}

	if g, ok := src.(*image.Gray); ok {
		invert := len(info.Decode) == 2 && info.Decode[0] > info.Decode[1]
		pal := make(color.Palette, 256)
		for i := range pal {
			v := byte(i)
			if invert {
				v = 255 - v
			}
			pal[i] = color.Gray{Y: v}
		}
		img := newPaletted(w, h, pal)
		for y := 0; y < h; y++ {
			copy(img.Pix[y*w:(y+1)*w], g.Pix[y*g.Stride:])
		}
		return newBitmap(img, img.Pix, 8, false), nil
	}

	img := newRGBA(w, h)
	draw.Draw(img, img.Rect, src, b.Min, draw.Src)
	return newBitmap(img, img.Pix, 8, false), nil
}
