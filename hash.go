package bamboo

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// HashSize is the size in bytes of a BLAKE3-256 digest.
const HashSize = 32

// yasmfHashSize is the encoded size of a hash: varu64 type, varu64 length, digest.
const yasmfHashSize = 1 + 1 + HashSize

// yasmfBlake3 is the YASMF hash-type code for BLAKE3.
const yasmfBlake3 = 0

var (
	errHashShort       = errors.New("hash: unexpected end of input")
	errHashUnsupported = errors.New("hash: unsupported hash type")
	errHashLength      = errors.New("hash: unexpected digest length")
)

// Hash is a BLAKE3-256 digest.
type Hash [HashSize]byte

// Sum hashes data.
func Sum(data []byte) Hash {
	return blake3.Sum256(data)
}

// String returns the lowercase hex form of h.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	return decodeHexInto(h[:], text)
}

// HashLink is an optional reference to another entry by the hash of its
// encoding. The zero value is an absent link.
type HashLink struct {
	Hash  Hash
	Valid bool
}

// LinkTo returns a present link to h.
func LinkTo(h Hash) HashLink { return HashLink{Hash: h, Valid: true} }

// putHash writes the YASMF form of h to out, which must hold yasmfHashSize bytes.
func putHash(out []byte, h Hash) int {
	out[0] = yasmfBlake3
	out[1] = HashSize
	copy(out[2:], h[:])
	return yasmfHashSize
}

// readHash decodes one YASMF hash from the front of b.
func readHash(b []byte) (Hash, []byte, error) {
	var h Hash
	typ, rest, err := readVaru64(b)
	if err != nil {
		return h, nil, errHashShort
	}
	if typ != yasmfBlake3 {
		return h, nil, errHashUnsupported
	}
	size, rest, err := readVaru64(rest)
	if err != nil {
		return h, nil, errHashShort
	}
	if size != HashSize {
		return h, nil, errHashLength
	}
	if len(rest) < HashSize {
		return h, nil, errHashShort
	}
	copy(h[:], rest[:HashSize])
	return h, rest[HashSize:], nil
}

func decodeHexInto(dst, text []byte) error {
	if hex.DecodedLen(len(text)) != len(dst) {
		return fmt.Errorf("expected %d hex bytes, got %d", len(dst), hex.DecodedLen(len(text)))
	}
	_, err := hex.Decode(dst, text)
	return err
}
