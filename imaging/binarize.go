package imaging

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/tsawler/pdfpatch/internal/jbig2"
)

// AlgorithmGreyscale selects plain thresholding of the greyscale image.
// Every other algorithm id dithers.
const AlgorithmGreyscale = 255

// midpoint is used when a two-valued image is binarized with the
// threshold disabled.
const midpoint = 128

// Binarize reduces bm to one bit per pixel. Pixels darker than threshold
// become black. It returns ReasonThresholdDisabled when threshold is 0 and
// the image is neither 1-bit nor a mask, and ReasonReductionFailed when no
// reduction is possible.
//
// A paletted image with a nonzero threshold is reduced by classifying each
// palette entry once. Otherwise the image is converted to greyscale and
// either thresholded (algorithm 255) or Floyd-Steinberg dithered.
func Binarize(bm *Bitmap, threshold, algorithm byte) (*jbig2.Bitmap, Reason) {
	isOneBit := bm.BitsPerComponent == 1
	if !isOneBit && !bm.ImageMask && threshold == 0 {
		return nil, ReasonThresholdDisabled
	}
	if bm.Bounds().Empty() {
		return nil, ReasonReductionFailed
	}

	if threshold != 0 && bm.HasPalette() && bm.UniqueColors() <= 256 {
		if out, ok := reducePalette(bm.img.(*image.Paletted), threshold); ok {
			return out, ReasonNone
		}
	}

	t := threshold
	if t == 0 {
		t = midpoint
	}
	gray := toGray(bm.img)
	defer putPix(gray.Pix)
	if algorithm == AlgorithmGreyscale {
		return thresholdGray(gray, t), ReasonNone
	}
	return ditherGray(gray, t), ReasonNone
}

func luminance(c color.Color) byte {
	return color.GrayModel.Convert(c).(color.Gray).Y
}

// reducePalette maps every pixel through a per-entry black/white table.
// It fails if a pixel refers past the end of the palette.
func reducePalette(p *image.Paletted, t byte) (*jbig2.Bitmap, bool) {
	black := make([]bool, len(p.Palette))
	for i, c := range p.Palette {
		black[i] = luminance(c) < t
	}
	b := p.Rect
	out := jbig2.NewBitmap(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := p.Pix[y*p.Stride:]
		for x := 0; x < b.Dx(); x++ {
			idx := int(row[x])
			if idx >= len(black) {
				return nil, false
			}
			if black[idx] {
				out.Set(x, y, true)
			}
		}
	}
	return out, true
}

// toGray renders img into a pooled greyscale image.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := newGray(b.Dx(), b.Dy())
	draw.Draw(gray, gray.Rect, img, b.Min, draw.Src)
	return gray
}

func thresholdGray(gray *image.Gray, t byte) *jbig2.Bitmap {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	out := jbig2.NewBitmap(w, h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < w; x++ {
			if row[x] < t {
				out.Set(x, y, true)
			}
		}
	}
	return out
}

// ditherGray shifts the tone curve so that t lands on the midpoint, then
// dithers to black and white.
func ditherGray(gray *image.Gray, t byte) *jbig2.Bitmap {
	var curve [256]byte
	for v := range curve {
		if v < int(t) {
			curve[v] = byte(v * midpoint / int(t))
		} else {
			curve[v] = byte(midpoint + (v-int(t)+1)*(255-midpoint)/(256-int(t)))
		}
	}
	for i, v := range gray.Pix {
		gray.Pix[i] = curve[v]
	}

	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	pal := image.NewPaletted(gray.Rect, color.Palette{color.Black, color.White})
	draw.FloydSteinberg.Draw(pal, pal.Rect, gray, gray.Rect.Min)

	out := jbig2.NewBitmap(w, h)
	for y := 0; y < h; y++ {
		row := pal.Pix[y*pal.Stride:]
		for x := 0; x < w; x++ {
			if row[x] == 0 {
				out.Set(x, y, true)
			}
		}
	}
	return out
}
