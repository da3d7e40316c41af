package codec

import "github.com/pallas-trace/pallas/endian"

// encodeMasking computes mask = OR of every element, derives the minimum
// byte width w needed to hold any element (ceil(log256(mask+1))), then
// writes each element's low w bytes only. A width of 0 (every element is
// zero) writes nothing per element; a width of 8 degenerates to the raw
// encoding.
func encodeMasking(engine endian.EndianEngine, values []uint64) []byte {
	var mask uint64
	for _, v := range values {
		mask |= v
	}

	width := byteWidth(mask)

	buf := make([]byte, 0, len(values)*width)
	var tmp [8]byte
	for _, v := range values {
		engine.PutUint64(tmp[:], v)
		buf = append(buf, tmp[:width]...)
	}

	return buf
}

// decodeMasking reverses encodeMasking. The byte width isn't stored
// explicitly; the decoder infers it from the total payload size and the
// known element count n: w = total_bytes / n.
func decodeMasking(engine endian.EndianEngine, data []byte, n int) ([]uint64, error) {
	if n == 0 {
		return nil, nil
	}

	width := len(data) / n

	out := make([]uint64, n)
	var tmp [8]byte
	for i := 0; i < n; i++ {
		tmp = [8]byte{}
		copy(tmp[:width], data[i*width:(i+1)*width])
		out[i] = engine.Uint64(tmp[:])
	}

	return out, nil
}

// byteWidth returns the minimum number of little-endian bytes needed to
// represent mask, i.e. ceil(log256(mask+1)). 0 maps to 0 bytes.
func byteWidth(mask uint64) int {
	width := 0
	for mask > 0 {
		width++
		mask >>= 8
	}

	return width
}
