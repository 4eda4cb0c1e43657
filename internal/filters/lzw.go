package filters

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hhrutter/lzw"
)

// LZWDecode expands LZW data. EarlyChange defaults to 1, the PDF default,
// where the code width grows one code early. Predictors are handled as
// for FlateDecode.
func LZWDecode(data []byte, params Params) ([]byte, error) {
	early := getIntParam(params, "EarlyChange", 1) == 1

	rc := lzw.NewReader(bytes.NewReader(data), early)
	defer rc.Close()

	out, err := io.ReadAll(rc)
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("lzw decompression failed: %w", err)
	}
	return unpredict(out, params)
}
