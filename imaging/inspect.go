// Package imaging turns PDF image XObjects into bilevel bitmaps.
//
// The flow for one image stream is
//
//	info := imaging.Inspect(doc, stream)
//	if info.Eligible() != imaging.ReasonNone { return }
//	bm, err := imaging.Decode(doc, stream, info)
//	defer bm.Release()
//	bits, reason := imaging.Binarize(bm, threshold, algorithm)
//	sb, err := encoder.Encode(bits)
//	if imaging.FitsIn(sb, info.Length) { ... }
//
// Inspect only reads metadata; Decode owns the filter chain and color
// conversion; Binarize applies the threshold rules.
package imaging

import (
	"github.com/tsawler/pdfpatch/core"
)

// MinLength is the smallest declared /Length worth transcoding.
const MinLength = 400

// IgnoredFilters lists outermost filters that are never re-encoded.
var IgnoredFilters = []core.Name{core.FilterJBIG2}

// Reason says why an image is left alone. ReasonNone means it was not.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonTooSmall
	ReasonAlreadyBilevel
	ReasonThresholdDisabled
	ReasonReductionFailed
	ReasonUnsupported
	ReasonColorKeyMask
)

var reasonNames = [...]string{
	ReasonNone:              "none",
	ReasonTooSmall:          "too small",
	ReasonAlreadyBilevel:    "already bilevel",
	ReasonThresholdDisabled: "threshold disabled",
	ReasonReductionFailed:   "reduction failed",
	ReasonUnsupported:       "unsupported",
	ReasonColorKeyMask:      "color key mask",
}

func (r Reason) String() string {
	if r >= 0 && int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "unknown"
}

// ImageInfo is the metadata of an image XObject with references resolved.
// Missing or mistyped entries are left at their zero values.
type ImageInfo struct {
	Width            int
	Height           int
	BitsPerComponent int
	ImageMask        bool
	ColorSpace       core.Object
	Length           int
	HasLength        bool
	Filter           core.Filter
	Decode           []float64
	// ColorKeyMask is set when /Mask is an array of sample ranges. The
	// ranges are in the original sample space and cannot follow a switch
	// to 1-bit gray.
	ColorKeyMask bool
}

// Inspect reads the image attributes of s.
func Inspect(r core.Resolver, s *core.Stream) ImageInfo {
	d := s.Dict
	var info ImageInfo
	info.Width, _ = core.GetInt(r, d, "Width")
	info.Height, _ = core.GetInt(r, d, "Height")
	info.BitsPerComponent, _ = core.GetInt(r, d, "BitsPerComponent")
	info.ImageMask, _ = core.GetBool(r, d, "ImageMask")
	info.ColorSpace, _ = core.Get(r, d, "ColorSpace")
	info.Length, info.HasLength = core.GetInt(r, d, "Length")
	// an unresolvable chain reads as unfiltered; Decode reports it
	info.Filter, _ = core.ResolveFilter(r, d)
	if arr, ok := core.GetArray(r, d, "Decode"); ok {
		for i := range arr {
			v, ok := arr.GetNumber(i)
			if !ok {
				info.Decode = nil
				break
			}
			info.Decode = append(info.Decode, v)
		}
	}
	_, info.ColorKeyMask = core.GetArray(r, d, "Mask")
	if info.ImageMask {
		info.BitsPerComponent = 1
	}
	return info
}

// OutermostFilter returns the last filter of the chain, if any.
func (i ImageInfo) OutermostFilter() (core.Name, bool) {
	return i.Filter.Outermost()
}

// Eligible applies the size and filter rules. A ReasonNone result makes
// the image a candidate; binarization still decides whether it is
// transcoded.
func (i ImageInfo) Eligible() Reason {
	if !i.HasLength || i.Length < MinLength {
		return ReasonTooSmall
	}
	if f, ok := i.OutermostFilter(); ok {
		for _, ignored := range IgnoredFilters {
			if f == ignored {
				return ReasonAlreadyBilevel
			}
		}
	}
	if i.ColorKeyMask {
		return ReasonColorKeyMask
	}
	return ReasonNone
}
