// Package filters implements the PDF stream filters needed to get at
// image samples and to write recompressed streams back.
//
// # Decoding
//
//	decoded, err := filters.FlateDecode(data, params)
//	decoded, err := filters.LZWDecode(data, params)
//	decoded, err := filters.ASCIIHexDecode(data)
//	decoded, err := filters.ASCII85Decode(data)
//	decoded, err := filters.RunLengthDecode(data)
//	decoded, err := filters.CCITTFaxDecode(data, params)
//
// FlateDecode and LZWDecode honour the Predictor parameter:
//   - 1: no prediction (default)
//   - 2: TIFF Predictor 2
//   - 10-15: PNG predictors (None, Sub, Up, Average, Paeth)
//
// # Encoding
//
//	encoded, err := filters.FlateEncode(data)
//
// # Decode Parameters
//
// Filters take a Params map built from the stream's /DecodeParms:
//
//	params := filters.Params{
//	    "Predictor": 12,
//	    "Columns":   100,
//	    "Colors":    3,
//	}
package filters
