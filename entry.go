package bamboo

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"

	"filippo.io/edwards25519"
)

const (
	// PublicKeySize is the size of an ed25519 public key.
	PublicKeySize = ed25519.PublicKeySize
	// SecretKeySize is the size of an ed25519 secret key seed.
	SecretKeySize = ed25519.SeedSize
	// SignatureSize is the size of an ed25519 signature.
	SignatureSize = ed25519.SignatureSize

	// MaxEntrySize is the largest possible encoded entry.
	MaxEntrySize = 1 + SignatureSize + PublicKeySize + 3*yasmfHashSize + 3*maxVaru64Size
)

// Errors returned when an Entry cannot be encoded.
var (
	ErrBufferTooSmall    = errors.New("buffer too small for encoded entry")
	ErrSeqIsZero         = errors.New("entry sequence number is zero")
	ErrLinksInconsistent = errors.New("entry links do not match its sequence number")
)

// PublicKey is an ed25519 public key identifying an author.
type PublicKey [PublicKeySize]byte

// String returns the lowercase hex form of k.
func (k PublicKey) String() string { return hex.EncodeToString(k[:]) }

// MarshalText implements encoding.TextMarshaler.
func (k PublicKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(text []byte) error { return decodeHexInto(k[:], text) }

// Signature is an ed25519 signature.
type Signature [SignatureSize]byte

// MarshalText implements encoding.TextMarshaler.
func (s Signature) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(s[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Signature) UnmarshalText(text []byte) error { return decodeHexInto(s[:], text) }

// wellFormed reports whether s can be an ed25519 signature at all: the top
// three bits of the scalar half must be clear.
func (s Signature) wellFormed() bool { return s[SignatureSize-1]&0xe0 == 0 }

// Entry is one signed, hash-linked record of a log.
//
// An Entry is a value: decoding produces a fresh copy that shares nothing with
// the input buffer.
type Entry struct {
	LogID       uint64
	IsEndOfFeed bool
	PayloadHash Hash
	PayloadSize uint64
	Author      PublicKey
	SeqNum      uint64
	Backlink    HashLink
	LipmaaLink  HashLink
	Sig         Signature
}

// checkLinks validates that the optional links agree with SeqNum.
func (e *Entry) checkLinks() error {
	if e.SeqNum == 0 {
		return ErrSeqIsZero
	}
	if e.SeqNum == 1 {
		if e.Backlink.Valid || e.LipmaaLink.Valid {
			return ErrLinksInconsistent
		}
		return nil
	}
	if !e.Backlink.Valid || e.LipmaaLink.Valid != RequiresSkipLink(e.SeqNum) {
		return ErrLinksInconsistent
	}
	return nil
}

// EncodedSize returns the number of bytes Encode writes for e.
func (e *Entry) EncodedSize() int {
	return e.signingSize() + SignatureSize
}

func (e *Entry) signingSize() int {
	n := 1 + PublicKeySize + varu64Len(e.LogID) + varu64Len(e.SeqNum) +
		varu64Len(e.PayloadSize) + yasmfHashSize
	if e.Backlink.Valid {
		n += yasmfHashSize
	}
	if e.LipmaaLink.Valid {
		n += yasmfHashSize
	}
	return n
}

// EncodeForSigning writes the canonical encoding of every field except the
// signature to out and returns the number of bytes written. These bytes are
// what the author signs.
func (e *Entry) EncodeForSigning(out []byte) (int, error) {
	if err := e.checkLinks(); err != nil {
		return 0, err
	}
	if len(out) < e.signingSize() {
		return 0, ErrBufferTooSmall
	}

	n := 0
	if e.IsEndOfFeed {
		out[n] = 1
	} else {
		out[n] = 0
	}
	n++
	n += copy(out[n:], e.Author[:])
	n += putVaru64(out[n:], e.LogID)
	n += putVaru64(out[n:], e.SeqNum)
	if e.LipmaaLink.Valid {
		n += putHash(out[n:], e.LipmaaLink.Hash)
	}
	if e.Backlink.Valid {
		n += putHash(out[n:], e.Backlink.Hash)
	}
	n += putVaru64(out[n:], e.PayloadSize)
	n += putHash(out[n:], e.PayloadHash)
	return n, nil
}

// Encode writes the complete canonical encoding of e, signature included, to
// out and returns the number of bytes written.
func (e *Entry) Encode(out []byte) (int, error) {
	if err := e.checkLinks(); err != nil {
		return 0, err
	}
	if len(out) < e.EncodedSize() {
		return 0, ErrBufferTooSmall
	}
	n, err := e.EncodeForSigning(out)
	if err != nil {
		return 0, err
	}
	n += copy(out[n:], e.Sig[:])
	return n, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (e *Entry) MarshalBinary() ([]byte, error) {
	out := make([]byte, e.EncodedSize())
	n, err := e.Encode(out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *Entry) UnmarshalBinary(data []byte) error {
	d, err := Decode(data)
	if err != nil {
		return err
	}
	*e = d
	return nil
}

// Hash returns the hash a successor's backlink or lipmaa link must carry to
// reference e: the hash of e's full canonical encoding.
func (e *Entry) Hash() (Hash, error) {
	var buf [MaxEntrySize]byte
	n, err := e.Encode(buf[:])
	if err != nil {
		return Hash{}, err
	}
	return Sum(buf[:n]), nil
}

// Decode parses an encoded entry. It checks only local structure: field
// encodings, link presence against the sequence number, and that exactly one
// signature ends the buffer. It does not check the signature or any hash link.
func Decode(b []byte) (Entry, error) {
	var e Entry
	if len(b) == 0 {
		return Entry{}, DecodeInputIsLengthZero
	}

	switch b[0] {
	case 0:
	case 1:
		e.IsEndOfFeed = true
	default:
		return Entry{}, DecodePayloadHashError
	}
	rest := b[1:]

	if len(rest) < PublicKeySize {
		return Entry{}, DecodeAuthorError
	}
	if _, err := new(edwards25519.Point).SetBytes(rest[:PublicKeySize]); err != nil {
		return Entry{}, wrap(DecodeAuthorError, err)
	}
	copy(e.Author[:], rest[:PublicKeySize])
	rest = rest[PublicKeySize:]

	var err error
	if e.LogID, rest, err = readVaru64(rest); err != nil {
		return Entry{}, wrap(DecodeLogIDError, err)
	}
	if e.SeqNum, rest, err = readVaru64(rest); err != nil {
		return Entry{}, wrap(DecodeSeqError, err)
	}
	if e.SeqNum == 0 {
		return Entry{}, DecodeSeqIsZero
	}

	if e.SeqNum > 1 {
		if RequiresSkipLink(e.SeqNum) {
			var h Hash
			if h, rest, err = readHash(rest); err != nil {
				return Entry{}, wrap(DecodeLipmaaError, err)
			}
			e.LipmaaLink = LinkTo(h)
		}
		var h Hash
		if h, rest, err = readHash(rest); err != nil {
			return Entry{}, wrap(DecodeBacklinkError, err)
		}
		e.Backlink = LinkTo(h)
	}

	if e.PayloadSize, rest, err = readVaru64(rest); err != nil {
		return Entry{}, wrap(DecodePayloadSizeError, err)
	}
	if e.PayloadSize > math.MaxInt64 {
		return Entry{}, DecodePayloadSizeError
	}
	if e.PayloadHash, rest, err = readHash(rest); err != nil {
		return Entry{}, wrap(DecodePayloadHashError, err)
	}

	if len(rest) != SignatureSize {
		return Entry{}, DecodeSigError
	}
	copy(e.Sig[:], rest)
	return e, nil
}

// entryJSON is the JSON form of an Entry, matching the field names of the
// format's published test vectors.
type entryJSON struct {
	LogID       uint64    `json:"logId"`
	IsEndOfFeed bool      `json:"isEndOfFeed"`
	PayloadHash Hash      `json:"payloadHash"`
	PayloadSize uint64    `json:"payloadSize"`
	Author      PublicKey `json:"author"`
	SeqNum      uint64    `json:"seqNum"`
	Backlink    *Hash     `json:"backlink"`
	LipmaaLink  *Hash     `json:"lipmaaLink"`
	Sig         Signature `json:"sig"`
}

// MarshalJSON implements json.Marshaler. Absent links are null.
func (e Entry) MarshalJSON() ([]byte, error) {
	j := entryJSON{
		LogID:       e.LogID,
		IsEndOfFeed: e.IsEndOfFeed,
		PayloadHash: e.PayloadHash,
		PayloadSize: e.PayloadSize,
		Author:      e.Author,
		SeqNum:      e.SeqNum,
		Sig:         e.Sig,
	}
	if e.Backlink.Valid {
		h := e.Backlink.Hash
		j.Backlink = &h
	}
	if e.LipmaaLink.Valid {
		h := e.LipmaaLink.Hash
		j.LipmaaLink = &h
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var j entryJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*e = Entry{
		LogID:       j.LogID,
		IsEndOfFeed: j.IsEndOfFeed,
		PayloadHash: j.PayloadHash,
		PayloadSize: j.PayloadSize,
		Author:      j.Author,
		SeqNum:      j.SeqNum,
		Sig:         j.Sig,
	}
	if j.Backlink != nil {
		e.Backlink = LinkTo(*j.Backlink)
	}
	if j.LipmaaLink != nil {
		e.LipmaaLink = LinkTo(*j.LipmaaLink)
	}
	return nil
}
