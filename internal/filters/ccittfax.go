package filters

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/image/ccitt"
)

// CCITTFaxDecode decodes Group 3 or Group 4 fax data into packed rows of
// 1-bit pixels, MSB first. With BlackIs1 false (the default) a 0 bit is
// black, matching a 1-bit DeviceGray image.
//
//   - K: <0 selects Group 4, otherwise Group 3
//   - Columns: row width in pixels (default 1728)
//   - Rows: row count, 0 to run until the end-of-block marker
//   - EncodedByteAlign: rows start on byte boundaries
func CCITTFaxDecode(data []byte, params Params) ([]byte, error) {
	columns := getIntParam(params, "Columns", 1728)
	rows := getIntParam(params, "Rows", 0)
	k := getIntParam(params, "K", 0)
	if columns <= 0 || rows < 0 {
		return nil, fmt.Errorf("invalid fax geometry %dx%d", columns, rows)
	}

	sf := ccitt.Group3
	if k < 0 {
		sf = ccitt.Group4
	}
	opts := &ccitt.Options{
		Invert: getBoolParam(params, "BlackIs1", false),
		Align:  getBoolParam(params, "EncodedByteAlign", false),
	}
	if rows == 0 {
		rows = ccitt.AutoDetectHeight
	}

	r := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, sf, columns, rows, opts)
	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("ccitt decode failed: %w", err)
	}
	return out, nil
}
