package imaging

import (
	"fmt"

	"github.com/tsawler/pdfpatch/internal/jbig2"
)

// Encoder compresses a bilevel bitmap into the payload of a /JBIG2Decode
// stream.
type Encoder interface {
	Encode(bm *jbig2.Bitmap) ([]byte, error)
}

// DefaultEncoder writes a single generic region with typical prediction.
func DefaultEncoder() Encoder {
	return &jbig2.Encoder{TypicalPrediction: true}
}

// FitsIn reports whether an encoded payload may replace a stream whose
// declared length is length.
func FitsIn(sb []byte, length int) bool {
	return len(sb) <= length
}

// Verify decodes an encoded payload and checks that it reproduces bm.
func Verify(sb []byte, bm *jbig2.Bitmap) error {
	got, err := jbig2.Decode(sb)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if !got.Equal(bm) {
		return fmt.Errorf("verify: decoded %dx%d bitmap differs from source", got.Width, got.Height)
	}
	return nil
}
