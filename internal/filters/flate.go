package filters

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// Params holds decode parameters from a /DecodeParms dictionary, flattened
// to plain Go values (int, float64, bool, string).
type Params map[string]interface{}

// FlateDecode inflates zlib data and undoes the predictor named in params.
// Truncated input yields whatever was inflated before the damage, since
// many writers omit the final checksum.
func FlateDecode(data []byte, params Params) ([]byte, error) {
	out, err := inflate(data)
	if err != nil {
		return nil, err
	}
	return unpredict(out, params)
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib reader: %w", err)
	}
	defer zr.Close()

	var buf bytes.Buffer
	_, err = io.Copy(&buf, zr)
	switch {
	case err == nil:
	case (errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, zlib.ErrChecksum)) && buf.Len() > 0:
	default:
		return nil, fmt.Errorf("zlib decompression failed: %w", err)
	}
	return buf.Bytes(), nil
}

// FlateEncode deflates data at the best compression level.
func FlateEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// getIntParam returns params[key] as an int, or def when missing or not
// numeric.
func getIntParam(params Params, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// getBoolParam returns params[key] as a bool, or def.
func getBoolParam(params Params, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}
