package bamboo

import "errors"

// maxVaru64Size is the longest possible varu64 encoding: a tag byte plus eight
// big-endian bytes.
const maxVaru64Size = 9

var (
	errVaru64Short        = errors.New("varu64: unexpected end of input")
	errVaru64NonCanonical = errors.New("varu64: non-canonical encoding")
)

// varu64Len returns the number of bytes needed to encode n.
func varu64Len(n uint64) int {
	if n < 248 {
		return 1
	}
	size := 1
	for v := n; v != 0; v >>= 8 {
		size++
	}
	return size
}

// putVaru64 writes n to out and returns the number of bytes written. out must
// have room for varu64Len(n) bytes.
//
// Values below 248 are a single byte. Larger values are a tag byte 247+k
// followed by the k big-endian bytes of n.
func putVaru64(out []byte, n uint64) int {
	if n < 248 {
		out[0] = byte(n)
		return 1
	}
	k := varu64Len(n) - 1
	out[0] = byte(247 + k)
	for i := k; i >= 1; i-- {
		out[i] = byte(n)
		n >>= 8
	}
	return k + 1
}

// readVaru64 decodes one varu64 from the front of b and returns the value and
// the remaining bytes. Encodings that use more bytes than necessary are rejected.
func readVaru64(b []byte) (uint64, []byte, error) {
	if len(b) == 0 {
		return 0, nil, errVaru64Short
	}
	tag := b[0]
	if tag < 248 {
		return uint64(tag), b[1:], nil
	}
	k := int(tag) - 247
	if len(b) < 1+k {
		return 0, nil, errVaru64Short
	}
	if b[1] == 0 {
		return 0, nil, errVaru64NonCanonical
	}
	var n uint64
	for _, c := range b[1 : 1+k] {
		n = n<<8 | uint64(c)
	}
	if k == 1 && n < 248 {
		return 0, nil, errVaru64NonCanonical
	}
	return n, b[1+k:], nil
}
