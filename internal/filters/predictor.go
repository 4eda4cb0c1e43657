package filters

import "fmt"

// unpredict reverses the Predictor of a Flate or LZW stream. Predictor 1
// (or none) leaves the data alone, 2 is the TIFF horizontal predictor and
// 10 to 15 are the PNG filters, chosen per row by a tag byte.
func unpredict(data []byte, params Params) ([]byte, error) {
	predictor := getIntParam(params, "Predictor", 1)
	if predictor <= 1 {
		return data, nil
	}

	colors := getIntParam(params, "Colors", 1)
	bpc := getIntParam(params, "BitsPerComponent", 8)
	columns := getIntParam(params, "Columns", 1)
	if colors < 1 || columns < 1 {
		return nil, fmt.Errorf("invalid predictor geometry: %d colors, %d columns", colors, columns)
	}
	switch bpc {
	case 1, 2, 4, 8, 16:
	default:
		return nil, fmt.Errorf("invalid BitsPerComponent %d for predictor", bpc)
	}

	rowLen := (columns*colors*bpc + 7) / 8
	bpp := max(1, colors*bpc/8)

	switch {
	case predictor == 2:
		return tiffPredictor(data, rowLen, colors, bpc)
	case predictor >= 10 && predictor <= 15:
		return pngPredictor(data, rowLen, bpp)
	}
	return nil, fmt.Errorf("unsupported predictor %d", predictor)
}

// pngPredictor undoes PNG row filtering. A short final row is kept.
func pngPredictor(data []byte, rowLen, bpp int) ([]byte, error) {
	stride := rowLen + 1
	rows := (len(data) + stride - 1) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)

	for r := 0; r < rows; r++ {
		start := r * stride
		end := min(start+stride, len(data))
		if end-start < 2 {
			break
		}
		tag := data[start]
		row := data[start+1 : end]
		clear(cur)
		copy(cur, row)

		for i := 0; i < len(row); i++ {
			var left, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch tag {
			case 0:
			case 1:
				cur[i] += left
			case 2:
				cur[i] += up
			case 3:
				cur[i] += byte((int(left) + int(up)) / 2)
			case 4:
				cur[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("row %d: unknown PNG filter %d", r, tag)
			}
		}
		out = append(out, cur[:len(row)]...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

// tiffPredictor undoes TIFF predictor 2 for 8 and 16 bit samples and for
// sub-byte samples by working on unpacked component values.
func tiffPredictor(data []byte, rowLen, colors, bpc int) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	for start := 0; start+rowLen <= len(out); start += rowLen {
		row := out[start : start+rowLen]
		switch bpc {
		case 8:
			for i := colors; i < len(row); i++ {
				row[i] += row[i-colors]
			}
		case 16:
			for i := 2 * colors; i+1 < len(row); i += 2 {
				v := uint16(row[i])<<8 | uint16(row[i+1])
				p := uint16(row[i-2*colors])<<8 | uint16(row[i-2*colors+1])
				v += p
				row[i], row[i+1] = byte(v>>8), byte(v)
			}
		default:
			mask := byte(1<<bpc - 1)
			samples := rowLen * 8 / bpc
			get := func(i int) byte {
				bit := i * bpc
				return row[bit/8] >> (8 - bpc - bit%8) & mask
			}
			set := func(i int, v byte) {
				bit := i * bpc
				shift := 8 - bpc - bit%8
				row[bit/8] = row[bit/8]&^(mask<<shift) | (v&mask)<<shift
			}
			for i := colors; i < samples; i++ {
				set(i, get(i)+get(i-colors))
			}
		}
	}
	return out, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
